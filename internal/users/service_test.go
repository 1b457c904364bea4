package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rukundowilson/smartflow/internal/workflow"
)

type stubRepo struct {
	users  map[int64]User
	hashes map[int64]string
	nextID int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{users: map[int64]User{}, hashes: map[int64]string{}, nextID: 1}
}

func (r *stubRepo) Get(_ context.Context, id int64) (User, error) {
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r *stubRepo) GetByEmail(_ context.Context, email string) (User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *stubRepo) List(_ context.Context) ([]User, error) {
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

func (r *stubRepo) ListByRole(_ context.Context, role workflow.Role) ([]User, error) {
	var out []User
	for _, u := range r.users {
		if u.Role == role && u.IsActive {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *stubRepo) Create(_ context.Context, u User, passwordHash string) (int64, error) {
	id := r.nextID
	r.nextID++
	u.ID = id
	r.users[id] = u
	r.hashes[id] = passwordHash
	return id, nil
}

func (r *stubRepo) SetActive(_ context.Context, id int64, active bool) error {
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = active
	r.users[id] = u
	return nil
}

func TestCreateNormalizesAndHashes(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)

	u, err := svc.Create(context.Background(), CreateInput{
		Email:      "  Alice@Corp.TEST ",
		Name:       " Alice Uwimana ",
		Department: "fINANCE",
		Role:       workflow.RoleEmployee,
		Password:   "secret-pass",
	})
	require.NoError(t, err)
	require.Equal(t, "alice@corp.test", u.Email)
	require.Equal(t, "Alice Uwimana", u.Name)
	require.Equal(t, "Finance", u.Department)
	require.True(t, u.IsActive)

	hash := repo.hashes[u.ID]
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret-pass")))
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newStubRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Email: "not-an-email", Name: "X", Role: workflow.RoleEmployee, Password: "longenough"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, CreateInput{Email: "a@b.test", Name: "", Role: workflow.RoleEmployee, Password: "longenough"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, CreateInput{Email: "a@b.test", Name: "X", Role: workflow.Role("SUPERVISOR"), Password: "longenough"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, CreateInput{Email: "a@b.test", Name: "X", Role: workflow.RoleEmployee, Password: "short"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestApproversForResolvesStageRoles(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)
	ctx := context.Background()

	seed := []User{
		{Email: "hod1@corp.test", Name: "Harold", Role: workflow.RoleHOD, IsActive: true},
		{Email: "hod2@corp.test", Name: "Hilda", Role: workflow.RoleHOD, IsActive: true},
		{Email: "inactive@corp.test", Name: "Gone", Role: workflow.RoleHOD, IsActive: false},
		{Email: "lm@corp.test", Name: "Lena", Role: workflow.RoleLineManager, IsActive: true},
	}
	for _, u := range seed {
		_, err := repo.Create(ctx, u, "x")
		require.NoError(t, err)
	}

	approvers, err := svc.ApproversFor(ctx, workflow.KindAccessRequest, workflow.StagePendingHOD)
	require.NoError(t, err)
	require.Len(t, approvers, 2)
	for _, a := range approvers {
		require.Equal(t, workflow.RoleHOD, a.Role)
	}

	// Terminal stages notify nobody.
	approvers, err = svc.ApproversFor(ctx, workflow.KindAccessRequest, workflow.StageGranted)
	require.NoError(t, err)
	require.Empty(t, approvers)

	_, err = svc.ApproversFor(ctx, workflow.Kind("bogus"), workflow.StagePendingHOD)
	require.ErrorIs(t, err, ErrValidation)
}
