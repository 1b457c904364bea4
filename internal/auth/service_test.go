package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rukundowilson/smartflow/internal/shared"
)

type stubRepo struct {
	accounts map[string]*Account
	sessions map[string]int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{accounts: make(map[string]*Account), sessions: make(map[string]int64)}
}

func (s *stubRepo) FindByEmail(_ context.Context, email string) (*Account, error) {
	acc, ok := s.accounts[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return acc, nil
}

func (s *stubRepo) FindByID(_ context.Context, id int64) (*Account, error) {
	for _, acc := range s.accounts {
		if acc.ID == id {
			return acc, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) CreateSession(_ context.Context, id string, userID int64, _ time.Time, _, _ string) error {
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(_ context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

func seedAccount(t *testing.T, repo *stubRepo, email, password string, active bool) *Account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	acc := &Account{
		ID:           int64(len(repo.accounts) + 1),
		Email:        email,
		Name:         "Test User",
		Role:         "EMPLOYEE",
		PasswordHash: string(hash),
		IsActive:     active,
	}
	repo.accounts[email] = acc
	return acc
}

func TestAuthenticateSuccess(t *testing.T) {
	repo := newStubRepo()
	seeded := seedAccount(t, repo, "jane@example.com", "correct-horse", true)
	svc := NewService(repo)

	acc, err := svc.Authenticate(context.Background(), "jane@example.com", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, seeded.ID, acc.ID)
	require.Equal(t, "jane@example.com", acc.Email)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	repo := newStubRepo()
	seedAccount(t, repo, "jane@example.com", "correct-horse", true)
	svc := NewService(repo)

	_, err := svc.Authenticate(context.Background(), "jane@example.com", "battery-staple")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	svc := NewService(newStubRepo())

	_, err := svc.Authenticate(context.Background(), "ghost@example.com", "whatever12")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	repo := newStubRepo()
	seedAccount(t, repo, "left@example.com", "correct-horse", false)
	svc := NewService(repo)

	_, err := svc.Authenticate(context.Background(), "left@example.com", "correct-horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestSessionRoundTrip(t *testing.T) {
	repo := newStubRepo()
	acc := seedAccount(t, repo, "jane@example.com", "correct-horse", true)
	svc := NewService(repo)

	require.NoError(t, svc.RegisterSession(context.Background(), "sess-1", acc.ID, time.Now().Add(time.Hour), "127.0.0.1", "go-test"))
	require.Equal(t, acc.ID, repo.sessions["sess-1"])

	require.NoError(t, svc.RemoveSession(context.Background(), "sess-1"))
	require.NotContains(t, repo.sessions, "sess-1")
}
