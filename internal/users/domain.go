package users

import (
	"errors"
	"time"

	"github.com/rukundowilson/smartflow/internal/workflow"
)

// User represents an account known to the workflow. Role is the
// closed workflow role enumeration; Department scopes the
// department-history view.
type User struct {
	ID         int64
	Email      string
	Name       string
	Department string
	Role       workflow.Role
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = errors.New("users: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("users: invalid input")
)

// validRoles is the closed set accepted on create/update.
var validRoles = map[workflow.Role]bool{
	workflow.RoleEmployee:    true,
	workflow.RoleLineManager: true,
	workflow.RoleHOD:         true,
	workflow.RoleITManager:   true,
	workflow.RoleITSupport:   true,
	workflow.RoleAdmin:       true,
}

// ValidRole reports whether the role belongs to the closed enumeration.
func ValidRole(role workflow.Role) bool {
	return validRoles[role]
}
