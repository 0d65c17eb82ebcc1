package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elearning/internal/cache"
	"elearning/internal/mail"
	"elearning/internal/middleware"
	"elearning/internal/models"
	"elearning/internal/repository"
	"elearning/internal/security"
	"elearning/internal/service"
)

// flowStore is just enough of a credential store for the HTTP flow test.
type flowStore struct {
	users map[string]models.User
}

func (s *flowStore) find(email string) (models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *flowStore) Create(_ context.Context, u models.User) error {
	if _, err := s.find(u.Email); err == nil {
		return repository.ErrEmailTaken
	}
	s.users[u.ID] = u
	return nil
}

func (s *flowStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	u, err := s.find(email)
	return u.Public(), err
}

func (s *flowStore) FindCredentialsByEmail(_ context.Context, email string) (models.User, error) {
	return s.find(email)
}

func (s *flowStore) GetByID(_ context.Context, id string) (models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u.Public(), nil
}

func (s *flowStore) GetCredentialsByID(_ context.Context, id string) (models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (s *flowStore) UpdatePassword(context.Context, string, []byte) error      { return nil }
func (s *flowStore) UpdateRole(context.Context, string, models.UserRole) error { return nil }
func (s *flowStore) List(context.Context, int, int) ([]models.User, error)     { return nil, nil }

func (s *flowStore) UpdateInfo(ctx context.Context, id, _, _ string) (models.User, error) {
	return s.GetByID(ctx, id)
}

func (s *flowStore) UpdateAvatar(ctx context.Context, id string, _ models.Avatar) (models.Avatar, models.User, error) {
	u, err := s.GetByID(ctx, id)
	return models.DefaultAvatar(), u, err
}

type codeCatcher struct{ code string }

func (c *codeCatcher) Notify(_ context.Context, note mail.Notification) error {
	c.code, _ = note.Data["activationCode"].(string)
	return nil
}

func TestRegisterActivateLoginMeLogoutRefresh(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg := testConfig()
	sessions := cache.NewSessionCache(client, cfg.Security.RefreshTTL)
	store := &flowStore{users: map[string]models.User{}}
	notifier := &codeCatcher{}

	tokens, err := security.NewTokenIssuer("access", "refresh", cfg.Security.AccessTTL, cfg.Security.RefreshTTL)
	require.NoError(t, err)
	activation, err := security.NewActivationCodec("activation", time.Hour)
	require.NoError(t, err)

	accounts, err := service.NewAccountService(service.AccountDeps{
		Users:      store,
		Sessions:   sessions,
		Tokens:     tokens,
		Activation: activation,
		Hasher:     security.NewArgon2Hasher(security.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}),
		Notifier:   notifier,
		Log:        zerolog.Nop(),
	})
	require.NoError(t, err)

	h := NewHandlerSet(zerolog.Nop(), cfg, accounts, middleware.Authenticate(tokens, sessions, store))
	r := gin.New()
	r.Use(middleware.Errors(zerolog.Nop(), false))
	h.Register(r.Group("/api"))

	rec := send(r, http.MethodPost, "/api/v1/registration", `{"name":"Ana","email":"a@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	token := decode(t, rec)["activationToken"].(string)

	rec = send(r, http.MethodPost, "/api/v1/activate-user", `{"activation_token":"`+token+`","activation_code":"`+notifier.code+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "User activated successfully", decode(t, rec)["message"])

	rec = send(r, http.MethodPost, "/api/v1/activate-user", `{"activation_token":"`+token+`","activation_code":"`+notifier.code+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email already exists", decode(t, rec)["message"])

	rec = send(r, http.MethodPost, "/api/v1/login", `{"email":"a@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	access := cookieByName(rec, middleware.AccessCookie)
	refresh := cookieByName(rec, middleware.RefreshCookie)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	userID := decode(t, rec)["user"].(map[string]any)["_id"].(string)
	assert.True(t, mr.Exists(cache.SessionKey(userID)))

	rec = send(r, http.MethodGet, "/api/v1/me", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode(t, rec)["user"].(map[string]any)
	assert.Equal(t, userID, me["_id"])
	assert.NotContains(t, me, "password")

	rec = send(r, http.MethodGet, "/api/v1/logout", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, mr.Exists(cache.SessionKey(userID)))

	rec = send(r, http.MethodGet, "/api/v1/refresh", "", refresh)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = send(r, http.MethodGet, "/api/v1/me", "", access)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
