package users

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rukundowilson/smartflow/internal/workflow"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context) ([]User, error)
	ListByRole(ctx context.Context, role workflow.Role) ([]User, error)
	Create(ctx context.Context, u User, passwordHash string) (int64, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// Service orchestrates account management.
type Service struct {
	repo RepositoryPort
}

// NewService constructs the users service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

var departmentCaser = cases.Title(language.English)

// NormalizeDepartment canonicalizes free-text department names so the
// department-history scope matches regardless of input casing.
func NormalizeDepartment(name string) string {
	return departmentCaser.String(strings.ToLower(strings.TrimSpace(name)))
}

// CreateInput describes a new account.
type CreateInput struct {
	Email      string
	Name       string
	Department string
	Role       workflow.Role
	Password   string
}

// Create registers a new account with a hashed password.
func (s *Service) Create(ctx context.Context, input CreateInput) (User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: email", ErrValidation)
	}
	if strings.TrimSpace(input.Name) == "" {
		return User{}, fmt.Errorf("%w: name", ErrValidation)
	}
	if !ValidRole(input.Role) {
		return User{}, fmt.Errorf("%w: role %q", ErrValidation, input.Role)
	}
	if len(input.Password) < 8 {
		return User{}, fmt.Errorf("%w: password too short", ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user := User{
		Email:      email,
		Name:       strings.TrimSpace(input.Name),
		Department: NormalizeDepartment(input.Department),
		Role:       input.Role,
		IsActive:   true,
	}
	id, err := s.repo.Create(ctx, user, string(hash))
	if err != nil {
		return User{}, err
	}
	user.ID = id
	return user, nil
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// ApproversFor returns the active users authorized at the given stage,
// used for notification fan-out.
func (s *Service) ApproversFor(ctx context.Context, kind workflow.Kind, stage workflow.Stage) ([]User, error) {
	rs, ok := workflow.Rules(kind)
	if !ok {
		return nil, fmt.Errorf("%w: kind %q", ErrValidation, kind)
	}
	def, ok := rs.Definition(stage)
	if !ok || def.Terminal {
		return nil, nil
	}
	var out []User
	for _, role := range def.Roles {
		batch, err := s.repo.ListByRole(ctx, role)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

// SetActive enables or disables an account.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}
