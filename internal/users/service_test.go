package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mouldworks/mouldworks/internal/shared"
)

type memoryRepo struct {
	users  map[int64]User
	hashes map[int64]string
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: make(map[int64]User), hashes: make(map[int64]string), nextID: 1}
}

func (r *memoryRepo) ListUsers(ctx context.Context) ([]User, error) {
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

func (r *memoryRepo) GetUser(ctx context.Context, id int64) (User, error) {
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (r *memoryRepo) CreateUser(ctx context.Context, email, name, passwordHash string) (User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return User{}, ErrDuplicateEmail
		}
	}
	u := User{ID: r.nextID, Email: email, Name: name, IsActive: true, Roles: []string{}}
	r.users[u.ID] = u
	r.hashes[u.ID] = passwordHash
	r.nextID++
	return u, nil
}

func (r *memoryRepo) UpdateUser(ctx context.Context, id int64, name string, isActive bool) error {
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Name = name
	u.IsActive = isActive
	r.users[id] = u
	return nil
}

func (r *memoryRepo) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	if _, ok := r.users[id]; !ok {
		return ErrNotFound
	}
	r.hashes[id] = passwordHash
	return nil
}

type fakeRoles struct {
	assigned map[int64]string
}

func (f *fakeRoles) SetUserRole(ctx context.Context, userID int64, roleName string) error {
	if f.assigned == nil {
		f.assigned = make(map[int64]string)
	}
	f.assigned[userID] = roleName
	return nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func TestCreateUserHashesAndAssignsRole(t *testing.T) {
	repo := newMemoryRepo()
	roles := &fakeRoles{}
	audit := &recordingAudit{}
	svc := NewService(repo, audit)
	svc.SetRolePort(roles)

	user, err := svc.CreateUser(context.Background(), CreateUserRequest{
		Email:    "Office@Mouldworks.Local",
		Name:     "Office User",
		Password: "longenoughpass",
		Role:     "office",
		ActorID:  1,
	})
	require.NoError(t, err)
	require.Equal(t, "office@mouldworks.local", user.Email)
	require.Equal(t, []string{"office"}, user.Roles)
	require.Equal(t, "office", roles.assigned[user.ID])

	hash := repo.hashes[user.ID]
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("longenoughpass")))
	require.Error(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("wrong")))

	require.Len(t, audit.logs, 1)
	require.Equal(t, "users.create", audit.logs[0].Action)
}

func TestCreateUserValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)

	cases := []CreateUserRequest{
		{Email: "", Name: "X", Password: "longenough", Role: "admin"},
		{Email: "not-an-email", Name: "X", Password: "longenough", Role: "admin"},
		{Email: "a@b.c", Name: "", Password: "longenough", Role: "admin"},
		{Email: "a@b.c", Name: "X", Password: "short", Role: "admin"},
		{Email: "a@b.c", Name: "X", Password: "longenough", Role: "superuser"},
	}
	for _, req := range cases {
		_, err := svc.CreateUser(context.Background(), req)
		require.ErrorIs(t, err, ErrValidation)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.CreateUser(context.Background(), CreateUserRequest{Email: "a@b.c", Name: "First", Password: "longenough", Role: "admin"})
	require.NoError(t, err)
	_, err = svc.CreateUser(context.Background(), CreateUserRequest{Email: "A@B.C", Name: "Second", Password: "longenough", Role: "admin"})
	require.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestUpdateUserChangesRoleAndActive(t *testing.T) {
	repo := newMemoryRepo()
	roles := &fakeRoles{}
	svc := NewService(repo, nil)
	svc.SetRolePort(roles)

	created, err := svc.CreateUser(context.Background(), CreateUserRequest{Email: "op@b.c", Name: "Op", Password: "longenough", Role: "operator"})
	require.NoError(t, err)

	updated, err := svc.UpdateUser(context.Background(), created.ID, UpdateUserRequest{Name: "Operator One", Role: "office", IsActive: false})
	require.NoError(t, err)
	require.Equal(t, "Operator One", updated.Name)
	require.False(t, updated.IsActive)
	require.Equal(t, "office", roles.assigned[created.ID])
}

func TestResetPasswordReplacesHash(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	created, err := svc.CreateUser(context.Background(), CreateUserRequest{Email: "a@b.c", Name: "A", Password: "originalpass", Role: "admin"})
	require.NoError(t, err)

	require.ErrorIs(t, svc.ResetPassword(context.Background(), created.ID, "short", 1), ErrValidation)
	require.NoError(t, svc.ResetPassword(context.Background(), created.ID, "replacementpass", 1))
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[created.ID]), []byte("replacementpass")))
}
