package roles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mouldworks/mouldworks/internal/shared"
)

type stubRepo struct {
	roles   []Role
	created []Role
	err     error
}

func (s *stubRepo) ListRoles(ctx context.Context) ([]Role, error) {
	return s.roles, nil
}

func (s *stubRepo) CreateRole(ctx context.Context, name, description string) (Role, error) {
	if s.err != nil {
		return Role{}, s.err
	}
	role := Role{ID: int64(len(s.created) + 1), Name: name, Description: description}
	s.created = append(s.created, role)
	return role, nil
}

func TestCreateRoleNormalizesName(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	role, err := svc.CreateRole(context.Background(), "  Shift-Lead ", " Runs sorting ")
	require.NoError(t, err)
	require.Equal(t, "shift-lead", role.Name)
	require.Equal(t, "Runs sorting", role.Description)
}

func TestCreateRoleRequiresName(t *testing.T) {
	svc := NewService(&stubRepo{})

	_, err := svc.CreateRole(context.Background(), "   ", "whatever")
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateRoleDuplicateName(t *testing.T) {
	repo := &stubRepo{err: shared.ErrDuplicate}
	svc := NewService(repo)

	_, err := svc.CreateRole(context.Background(), "office", "")
	require.ErrorIs(t, err, shared.ErrDuplicate)
}
