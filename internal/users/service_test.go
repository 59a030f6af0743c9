package users

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/marcuspat/devxplatform/internal/platform/cache"
	"github.com/marcuspat/devxplatform/internal/platform/httpx"
)

type mockRepository struct {
	users map[uuid.UUID]*User

	getCalls    int
	createError error
	updateError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{users: make(map[uuid.UUID]*User)}
}

func (m *mockRepository) Get(_ context.Context, id uuid.UUID) (*User, error) {
	m.getCalls++
	u, ok := m.users[id]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *mockRepository) FindByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, httpx.ErrNotFound
}

func (m *mockRepository) List(_ context.Context, req ListUsersRequest) ([]User, int, error) {
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *mockRepository) Create(_ context.Context, user User) error {
	if m.createError != nil {
		return m.createError
	}
	m.users[user.ID] = &user
	return nil
}

func (m *mockRepository) Update(_ context.Context, id uuid.UUID, updates map[string]any) error {
	if m.updateError != nil {
		return m.updateError
	}
	u, ok := m.users[id]
	if !ok {
		return httpx.ErrNotFound
	}
	for col, val := range updates {
		switch col {
		case "email":
			u.Email = val.(string)
		case "username":
			u.Username = val.(string)
		case "full_name":
			u.FullName = val.(string)
		case "password_hash":
			u.PasswordHash = val.(string)
		case "is_active":
			u.IsActive = val.(bool)
		}
	}
	return nil
}

func (m *mockRepository) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.users[id]; !ok {
		return httpx.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewCache(client, "test", 0)
}

func newTestService(t *testing.T) (*Service, *mockRepository) {
	t.Helper()
	repo := newMockRepository()
	svc := NewService(repo, newTestCache(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, repo
}

func TestServiceCreate(t *testing.T) {
	svc, repo := newTestService(t)

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "dev@example.com",
		Username: "dev",
		Password: "secret-password",
		FullName: "Dev Example",
	})
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.True(t, user.IsActive)
	assert.False(t, user.IsSuperuser)
	assert.NotEqual(t, "secret-password", user.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret-password")))

	stored, ok := repo.users[user.ID]
	require.True(t, ok)
	assert.Equal(t, "dev@example.com", stored.Email)
}

func TestServiceCreateDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateUserRequest{Email: "dup@example.com", Username: "first", Password: "password-1"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateUserRequest{Email: "dup@example.com", Username: "second", Password: "password-2"})
	require.ErrorIs(t, err, httpx.ErrDuplicate)
}

func TestServiceGetUsesCache(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateUserRequest{Email: "c@example.com", Username: "cached", Password: "password-1"})
	require.NoError(t, err)

	first, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	callsAfterFirst := repo.getCalls

	second, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, callsAfterFirst, repo.getCalls, "second lookup must be served from cache")
}

func TestServiceGetNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestServiceUpdateInvalidatesCache(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateUserRequest{Email: "u@example.com", Username: "before", Password: "password-1"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, created.ID) // warm the cache
	require.NoError(t, err)

	newName := "after"
	updated, err := svc.Update(ctx, created.ID, UpdateUserRequest{Username: &newName})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Username)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Username, "stale cache entry served after update")
}

func TestServiceUpdateRehashesPassword(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateUserRequest{Email: "p@example.com", Username: "rotate", Password: "old-password"})
	require.NoError(t, err)
	oldHash := repo.users[created.ID].PasswordHash

	newPassword := "new-password"
	_, err = svc.Update(ctx, created.ID, UpdateUserRequest{Password: &newPassword})
	require.NoError(t, err)

	newHash := repo.users[created.ID].PasswordHash
	assert.NotEqual(t, oldHash, newHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(newHash), []byte(newPassword)))
}

func TestServiceUpdateWithoutChangesSkipsRepo(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateUserRequest{Email: "n@example.com", Username: "noop", Password: "password-1"})
	require.NoError(t, err)

	repo.updateError = httpx.ErrUpstream
	got, err := svc.Update(ctx, created.ID, UpdateUserRequest{})
	require.NoError(t, err, "empty update must not hit the repository")
	assert.Equal(t, created.ID, got.ID)
}

func TestServiceDelete(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateUserRequest{Email: "d@example.com", Username: "gone", Password: "password-1"})
	require.NoError(t, err)
	_, err = svc.Get(ctx, created.ID) // warm the cache
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID))
	assert.Empty(t, repo.users)

	_, err = svc.Get(ctx, created.ID)
	require.ErrorIs(t, err, httpx.ErrNotFound, "deleted user still served from cache")
}

func TestServiceListDefaultsLimit(t *testing.T) {
	svc, _ := newTestService(t)
	_, total, err := svc.List(context.Background(), ListUsersRequest{})
	require.NoError(t, err)
	assert.Zero(t, total)
}
