package user

import (
	"context"
	"testing"
	"time"

	"agency-chat/internal/model"

	"github.com/stretchr/testify/require"
)

type memStore struct {
	users map[string]*User
	roles map[string]model.Role
}

func newMemStore() *memStore {
	return &memStore{users: map[string]*User{}, roles: map[string]model.Role{}}
}

func (m *memStore) CreateUser(ctx context.Context, u *User) (*User, error) {
	u.ID = "id-" + u.Username
	u.Role = model.RoleClient
	if len(m.users) == 0 {
		u.Role = model.RoleAdmin
	}
	m.users[u.Username] = u
	return u, nil
}

func (m *memStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u, ok := m.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (m *memStore) SearchUsers(ctx context.Context, q string) ([]User, error) { return nil, nil }

func (m *memStore) ListWithStats(ctx context.Context) ([]UserWithStats, error) {
	var out []UserWithStats
	for _, u := range m.users {
		out = append(out, UserWithStats{User: *u})
	}
	return out, nil
}

func (m *memStore) UpdateRole(ctx context.Context, id string, role model.Role) error {
	m.roles[id] = role
	return nil
}

func TestService_RegisterLoginValidate(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemStore(), "secret")

	admin, err := svc.Register(ctx, &RegisterRequest{Username: " boss ", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, "boss", admin.Username)
	require.Equal(t, model.RoleAdmin, admin.Role)

	_, err = svc.Register(ctx, &RegisterRequest{Username: "client", Password: "pw"})
	require.NoError(t, err)

	res, err := svc.Login(ctx, &RegisterRequest{Username: "client", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, model.RoleClient, res.Role)

	actor, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, model.Actor{ID: "id-client", Username: "client", Role: model.RoleClient}, actor)

	_, err = svc.Login(ctx, &RegisterRequest{Username: "client", Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, &RegisterRequest{Username: "ghost", Password: "pw"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_RejectsEmptyRegistration(t *testing.T) {
	svc := NewService(newMemStore(), "secret")
	_, err := svc.Register(context.Background(), &RegisterRequest{Username: "  ", Password: "pw"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_ValidateToken_Expired(t *testing.T) {
	svc := NewService(newMemStore(), "secret")
	svc.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }

	token, err := svc.issueToken(&User{ID: "u1", Username: "old", Role: model.RoleClient})
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
}

func TestService_ValidateToken_WrongSecret(t *testing.T) {
	token, err := NewService(newMemStore(), "one").issueToken(&User{ID: "u1"})
	require.NoError(t, err)

	_, err = NewService(newMemStore(), "two").ValidateToken(token)
	require.Error(t, err)
}

func TestService_AdminOnlyOperations(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store, "secret")
	client := model.Actor{ID: "c", Role: model.RoleClient}
	admin := model.Actor{ID: "a", Role: model.RoleAdmin}

	_, err := svc.ListUsers(ctx, client)
	require.ErrorIs(t, err, ErrForbidden)
	require.ErrorIs(t, svc.UpdateRole(ctx, client, "u1", model.RoleAdmin), ErrForbidden)
	require.ErrorIs(t, svc.UpdateRole(ctx, admin, "u1", model.Role("owner")), ErrInvalidRole)

	require.NoError(t, svc.UpdateRole(ctx, admin, "u1", model.RoleAdmin))
	require.Equal(t, model.RoleAdmin, store.roles["u1"])
}
