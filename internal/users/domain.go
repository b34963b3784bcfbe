package users

import (
	"errors"
	"time"
)

// Role names available for assignment. Operators work the shop floor and never
// see pricing.
const (
	RoleAdmin    = "admin"
	RoleOffice   = "office"
	RoleOperator = "operator"
)

// ValidRoles lists the accepted role names.
var ValidRoles = []string{RoleAdmin, RoleOffice, RoleOperator}

// Sentinel errors.
var (
	ErrNotFound       = errors.New("users: not found")
	ErrValidation     = errors.New("users: validation failed")
	ErrDuplicateEmail = errors.New("users: email already registered")
)

// User represents a user account for management.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateUserRequest carries the fields for a new account.
type CreateUserRequest struct {
	Email    string
	Name     string
	Password string
	Role     string
	ActorID  int64
}

// UpdateUserRequest carries editable account fields.
type UpdateUserRequest struct {
	Name     string
	Role     string
	IsActive bool
	ActorID  int64
}

// IsValidRole reports whether name is one of the assignable roles.
func IsValidRole(name string) bool {
	for _, r := range ValidRoles {
		if r == name {
			return true
		}
	}
	return false
}
