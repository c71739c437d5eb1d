package users

import (
	"context"
	"sort"
	"testing"
	"time"

	"clinic-crm/internal/access"
	"clinic-crm/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type memoryRepo struct {
	users   map[string]User
	lookups int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: map[string]User{}}
}

func (m *memoryRepo) Create(ctx context.Context, user User) error {
	m.users[user.ID] = user
	return nil
}

func (m *memoryRepo) GetByID(ctx context.Context, id string) (User, error) {
	m.lookups++
	u, ok := m.users[id]
	if !ok {
		return User{}, mongo.ErrNoDocuments
	}
	return u, nil
}

func (m *memoryRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, mongo.ErrNoDocuments
}

func (m *memoryRepo) List(ctx context.Context, role access.Role, limit, offset int64) ([]User, error) {
	items := make([]User, 0)
	for _, u := range m.users {
		if role == "" || u.Role == role {
			items = append(items, u)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (m *memoryRepo) Count(ctx context.Context, role access.Role) (int64, error) {
	items, _ := m.List(ctx, role, 0, 0)
	return int64(len(items)), nil
}

func (m *memoryRepo) Update(ctx context.Context, id string, set bson.M, now time.Time) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, mongo.ErrNoDocuments
	}
	for k, v := range set {
		switch k {
		case "name":
			u.Name = v.(string)
		case "phone":
			u.Phone = v.(string)
		case "role":
			u.Role = v.(access.Role)
		case "passwordHash":
			u.PasswordHash = v.(string)
		}
	}
	u.UpdatedAt = now
	m.users[id] = u
	return u, nil
}

func (m *memoryRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.users[id]; !ok {
		return mongo.ErrNoDocuments
	}
	delete(m.users, id)
	return nil
}

type mapCache struct {
	data map[string][]byte
}

func (c *mapCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(ctx context.Context, key string) error {
	delete(c.data, key)
	return nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *mapCache) {
	t.Helper()
	repo := newMemoryRepo()
	c := &mapCache{data: map[string][]byte{}}
	svc := NewService(repo, c, time.Minute, "setup-secret", time.UTC)
	return svc, repo, c
}

func TestSignupRoles(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sales, err := svc.Signup(ctx, SignupRequest{Name: " Selin ", Email: "Selin@Clinic.test", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, access.RoleSalesperson, sales.Role)
	assert.Equal(t, "selin@clinic.test", sales.Email)
	assert.Equal(t, "Selin", sales.Name)
	assert.NotEqual(t, "password1", sales.PasswordHash)

	admin, err := svc.Signup(ctx, SignupRequest{Name: "Root", Email: "root@clinic.test", Password: "password1", SetupKey: "setup-secret"})
	require.NoError(t, err)
	assert.Equal(t, access.RoleAdmin, admin.Role)

	_, err = svc.Signup(ctx, SignupRequest{Name: "X", Email: "x@clinic.test", Password: "password1", SetupKey: "guess"})
	assert.ErrorIs(t, err, ErrInvalidSetupKey)

	_, err = svc.Signup(ctx, SignupRequest{Name: "Again", Email: "selin@clinic.test", Password: "password1"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = svc.Signup(ctx, SignupRequest{Name: "Short", Email: "s@clinic.test", Password: "short"})
	assert.ErrorIs(t, err, auth.ErrWeakPassword)
}

func TestAuthenticate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.Signup(ctx, SignupRequest{Name: "Selin", Email: "selin@clinic.test", Password: "password1"})
	require.NoError(t, err)

	user, err := svc.Authenticate(ctx, " SELIN@clinic.test", "password1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)

	_, err = svc.Authenticate(ctx, "selin@clinic.test", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody@clinic.test", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestResolveCachesAndInvalidatesOnRoleChange(t *testing.T) {
	svc, repo, c := newTestService(t)
	ctx := context.Background()

	admin, err := svc.Signup(ctx, SignupRequest{Name: "Root", Email: "root@clinic.test", Password: "password1", SetupKey: "setup-secret"})
	require.NoError(t, err)
	sales, err := svc.Signup(ctx, SignupRequest{Name: "Selin", Email: "selin@clinic.test", Password: "password1"})
	require.NoError(t, err)

	id, err := svc.Resolve(ctx, sales.ID)
	require.NoError(t, err)
	assert.Equal(t, access.RoleSalesperson, id.Role)
	_, err = svc.Resolve(ctx, sales.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.lookups)
	assert.Contains(t, c.data, "user:"+sales.ID)

	_, err = svc.UpdateRole(ctx, admin.Identity(), sales.ID, "admin")
	require.NoError(t, err)
	assert.NotContains(t, c.data, "user:"+sales.ID)

	id, err = svc.Resolve(ctx, sales.ID)
	require.NoError(t, err)
	assert.Equal(t, access.RoleAdmin, id.Role)

	_, err = svc.Resolve(ctx, "missing")
	assert.ErrorIs(t, err, access.ErrUnauthenticated)
}

func TestAdminOnlyOperations(t *testing.T) {
	svc, _, c := newTestService(t)
	ctx := context.Background()

	admin, err := svc.Signup(ctx, SignupRequest{Name: "Root", Email: "root@clinic.test", Password: "password1", SetupKey: "setup-secret"})
	require.NoError(t, err)
	sales, err := svc.Signup(ctx, SignupRequest{Name: "Selin", Email: "selin@clinic.test", Password: "password1"})
	require.NoError(t, err)

	_, err = svc.Provision(ctx, sales.Identity(), CreateRequest{Name: "N", Email: "n@clinic.test", Password: "password1", Role: "admin"})
	assert.ErrorIs(t, err, access.ErrForbidden)
	assert.ErrorIs(t, svc.Delete(ctx, sales.Identity(), admin.ID), access.ErrForbidden)
	_, err = svc.UpdateRole(ctx, sales.Identity(), sales.ID, "admin")
	assert.ErrorIs(t, err, access.ErrForbidden)

	assert.ErrorIs(t, svc.Delete(ctx, admin.Identity(), admin.ID), ErrSelfDelete)
	_, err = svc.UpdateRole(ctx, admin.Identity(), admin.ID, "salesperson")
	assert.ErrorIs(t, err, ErrSelfDemote)

	_, err = svc.Resolve(ctx, sales.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, admin.Identity(), sales.ID))
	assert.NotContains(t, c.data, "user:"+sales.ID)
	_, err = svc.Resolve(ctx, sales.ID)
	assert.ErrorIs(t, err, access.ErrUnauthenticated)
	assert.ErrorIs(t, svc.Delete(ctx, admin.Identity(), sales.ID), ErrNotFound)
}

func TestListSalespeopleAndProfile(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupRequest{Name: "Root", Email: "root@clinic.test", Password: "password1", SetupKey: "setup-secret"})
	require.NoError(t, err)
	b, err := svc.Signup(ctx, SignupRequest{Name: "Burak", Email: "burak@clinic.test", Password: "password1"})
	require.NoError(t, err)
	_, err = svc.Signup(ctx, SignupRequest{Name: "Ayla", Email: "ayla@clinic.test", Password: "password1"})
	require.NoError(t, err)

	items, err := svc.ListSalespeople(ctx, b.Identity())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Ayla", items[0].Name)

	_, err = svc.UpdateProfile(ctx, b.Identity(), ProfileUpdateRequest{})
	assert.ErrorIs(t, err, ErrEmptyUpdate)

	updated, err := svc.UpdateProfile(ctx, b.Identity(), ProfileUpdateRequest{Phone: " +90 555 000 11 22 "})
	require.NoError(t, err)
	assert.Equal(t, "+90 555 000 11 22", updated.Phone)
	assert.Equal(t, "Burak", updated.Name)
}

func TestBootstrapIsIdempotent(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	req := CreateRequest{Name: "Root", Email: "root@clinic.test", Password: "password1", Role: "admin"}

	first, created, err := svc.Bootstrap(ctx, req)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := svc.Bootstrap(ctx, req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.users, 1)
}
