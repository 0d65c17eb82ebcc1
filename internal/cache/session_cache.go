package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"elearning/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

const sessionKeyPrefix = "session:"

// SessionCache stores one entry per user id. The entry's presence is the
// session marker; its value is the user snapshot served by /me.
type SessionCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewSessionCache sets every entry to expire after ttl so abandoned sessions
// age out. A zero ttl keeps entries until they are deleted.
func NewSessionCache(client redis.Cmdable, ttl time.Duration) *SessionCache {
	return &SessionCache{client: client, ttl: ttl}
}

func SessionKey(userID string) string {
	return sessionKeyPrefix + userID
}

// Put marks the session active and stores the user without the password.
func (c *SessionCache) Put(ctx context.Context, user models.User) error {
	raw, err := json.Marshal(user.Public())
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := c.client.Set(ctx, SessionKey(user.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis session set: %w", err)
	}
	return nil
}

func (c *SessionCache) Get(ctx context.Context, userID string) (models.User, error) {
	raw, err := c.client.Get(ctx, SessionKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.User{}, ErrSessionNotFound
		}
		return models.User{}, fmt.Errorf("redis session get: %w", err)
	}

	var user models.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return models.User{}, fmt.Errorf("decode session: %w", err)
	}
	return user, nil
}

func (c *SessionCache) Exists(ctx context.Context, userID string) (bool, error) {
	n, err := c.client.Exists(ctx, SessionKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis session exists: %w", err)
	}
	return n > 0, nil
}

// Delete is idempotent.
func (c *SessionCache) Delete(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, SessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis session delete: %w", err)
	}
	return nil
}

// Refresh rewrites the snapshot only when a session is active, so profile
// changes never resurrect a logged-out session.
func (c *SessionCache) Refresh(ctx context.Context, user models.User) error {
	raw, err := json.Marshal(user.Public())
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	args := redis.SetArgs{Mode: "XX", KeepTTL: true}
	if err := c.client.SetArgs(ctx, SessionKey(user.ID), raw, args).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis session refresh: %w", err)
	}
	return nil
}

func (c *SessionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
