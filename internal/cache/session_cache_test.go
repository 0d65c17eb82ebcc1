package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elearning/internal/models"
)

func newSessionCache(t *testing.T, ttl time.Duration) (*SessionCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionCache(client, ttl), mr
}

func testUser() models.User {
	return models.User{
		ID:           "u1",
		Name:         "Ana",
		Email:        "a@x.com",
		PasswordHash: []byte("$argon2id$secret"),
		Avatar:       models.DefaultAvatar(),
		Role:         models.UserRoleUser,
		Courses:      []models.CourseRef{{CourseID: "c1"}},
	}
}

func TestPutAndGetStripsPassword(t *testing.T) {
	sessions, mr := newSessionCache(t, 72*time.Hour)
	ctx := context.Background()

	require.NoError(t, sessions.Put(ctx, testUser()))

	raw, err := mr.Get("session:u1")
	require.NoError(t, err)
	assert.NotContains(t, raw, "argon2id")
	assert.Equal(t, 72*time.Hour, mr.TTL("session:u1"))

	got, err := sessions.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)
	assert.Nil(t, got.PasswordHash)
	assert.Equal(t, []models.CourseRef{{CourseID: "c1"}}, got.Courses)

	ok, err := sessions.Exists(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetMissingSession(t *testing.T) {
	sessions, _ := newSessionCache(t, time.Hour)

	_, err := sessions.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	ok, err := sessions.Exists(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteIsIdempotent(t *testing.T) {
	sessions, mr := newSessionCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, sessions.Put(ctx, testUser()))
	require.NoError(t, sessions.Delete(ctx, "u1"))
	require.NoError(t, sessions.Delete(ctx, "u1"))
	assert.False(t, mr.Exists("session:u1"))
}

func TestEntriesExpire(t *testing.T) {
	sessions, mr := newSessionCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, sessions.Put(ctx, testUser()))
	mr.FastForward(time.Hour + time.Second)

	_, err := sessions.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRefreshOnlyTouchesActiveSessions(t *testing.T) {
	sessions, mr := newSessionCache(t, time.Hour)
	ctx := context.Background()

	user := testUser()
	require.NoError(t, sessions.Refresh(ctx, user))
	assert.False(t, mr.Exists("session:u1"))

	require.NoError(t, sessions.Put(ctx, user))
	mr.FastForward(10 * time.Minute)

	user.Name = "Ana Maria"
	require.NoError(t, sessions.Refresh(ctx, user))

	got, err := sessions.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", got.Name)
	assert.Equal(t, 50*time.Minute, mr.TTL("session:u1"))
}
