package users

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/mouldworks/mouldworks/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, email, name, passwordHash string) (User, error)
	UpdateUser(ctx context.Context, id int64, name string, isActive bool) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

// RolePort assigns roles; backed by the rbac service.
type RolePort interface {
	SetUserRole(ctx context.Context, userID int64, roleName string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user business logic.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	roles RolePort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// SetRolePort wires role assignment.
func (s *Service) SetRolePort(roles RolePort) {
	s.roles = roles
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// Get fetches one user.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser registers a new account and assigns its role.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.Name)
	role := strings.ToLower(strings.TrimSpace(req.Role))
	switch {
	case email == "" || !strings.Contains(email, "@"):
		return User{}, fmt.Errorf("%w: valid email required", ErrValidation)
	case name == "":
		return User{}, fmt.Errorf("%w: name required", ErrValidation)
	case len(req.Password) < 8:
		return User{}, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	case !IsValidRole(role):
		return User{}, fmt.Errorf("%w: role must be one of %s", ErrValidation, strings.Join(ValidRoles, ", "))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.CreateUser(ctx, email, name, string(hash))
	if err != nil {
		return User{}, err
	}
	if s.roles != nil {
		if err := s.roles.SetUserRole(ctx, user.ID, role); err != nil {
			return User{}, err
		}
		user.Roles = []string{role}
	}
	s.record(ctx, req.ActorID, "users.create", user.ID, map[string]any{"email": email, "role": role})
	return user, nil
}

// UpdateUser edits name, active flag and role.
func (s *Service) UpdateUser(ctx context.Context, id int64, req UpdateUserRequest) (User, error) {
	name := strings.TrimSpace(req.Name)
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if name == "" {
		return User{}, fmt.Errorf("%w: name required", ErrValidation)
	}
	if role != "" && !IsValidRole(role) {
		return User{}, fmt.Errorf("%w: role must be one of %s", ErrValidation, strings.Join(ValidRoles, ", "))
	}
	if err := s.repo.UpdateUser(ctx, id, name, req.IsActive); err != nil {
		return User{}, err
	}
	if role != "" && s.roles != nil {
		if err := s.roles.SetUserRole(ctx, id, role); err != nil {
			return User{}, err
		}
	}
	s.record(ctx, req.ActorID, "users.update", id, map[string]any{"is_active": req.IsActive, "role": role})
	return s.repo.GetUser(ctx, id)
}

// ResetPassword replaces a user's password.
func (s *Service) ResetPassword(ctx context.Context, id int64, password string, actorID int64) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, id, string(hash)); err != nil {
		return err
	}
	s.record(ctx, actorID, "users.reset_password", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}
