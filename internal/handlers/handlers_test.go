package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elearning/internal/apperr"
	"elearning/internal/config"
	"elearning/internal/middleware"
	"elearning/internal/models"
	"elearning/internal/repository"
	"elearning/internal/security"
	"elearning/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAccounts struct {
	registerIn service.RegisterInput
	session    service.Session
	err        error
	loggedOut  string
	refreshed  string
	avatarBody []byte
	users      []models.User
	roleUpdate [2]string
}

func (s *stubAccounts) Register(_ context.Context, in service.RegisterInput) (service.RegisterResult, error) {
	s.registerIn = in
	return service.RegisterResult{Email: in.Email, ActivationToken: "act-token"}, s.err
}

func (s *stubAccounts) Activate(_ context.Context, token, code string) (models.User, error) {
	return models.User{}, s.err
}

func (s *stubAccounts) Login(_ context.Context, email, password string) (service.Session, error) {
	return s.session, s.err
}

func (s *stubAccounts) Logout(_ context.Context, userID string) error {
	s.loggedOut = userID
	return s.err
}

func (s *stubAccounts) Refresh(_ context.Context, token string) (service.Session, error) {
	s.refreshed = token
	return s.session, s.err
}

func (s *stubAccounts) SocialAuth(_ context.Context, in service.SocialAuthInput) (service.Session, error) {
	return s.session, s.err
}

func (s *stubAccounts) Profile(_ context.Context, userID string) (models.User, error) {
	return models.User{ID: userID, Name: "Ana"}, s.err
}

func (s *stubAccounts) UpdateInfo(_ context.Context, userID string, in service.UpdateInfoInput) (models.User, error) {
	return models.User{ID: userID, Name: in.Name, Email: in.Email}, s.err
}

func (s *stubAccounts) UpdatePassword(_ context.Context, userID, oldPassword, newPassword string) error {
	return s.err
}

func (s *stubAccounts) UpdateAvatar(_ context.Context, userID string, r io.Reader, size int64) (models.User, error) {
	s.avatarBody, _ = io.ReadAll(r)
	return models.User{ID: userID}, s.err
}

func (s *stubAccounts) ListUsers(_ context.Context, limit, offset int) ([]models.User, error) {
	return s.users, s.err
}

func (s *stubAccounts) UpdateRole(_ context.Context, userID string, role models.UserRole) (models.User, error) {
	s.roleUpdate = [2]string{userID, string(role)}
	return models.User{ID: userID, Role: role}, s.err
}

// tokenIsID treats the cookie value as the user id.
type tokenIsID struct{}

func (tokenIsID) VerifyAccess(token string) (string, error) { return token, nil }

type alwaysActive struct{}

func (alwaysActive) Exists(context.Context, string) (bool, error) { return true, nil }

type userTable map[string]models.User

func (u userTable) GetByID(_ context.Context, id string) (models.User, error) {
	if user, ok := u[id]; ok {
		return user, nil
	}
	return models.User{}, repository.ErrUserNotFound
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Environment: "test",
		Security: config.SecurityConfig{
			AccessTTL:      5 * time.Minute,
			RefreshTTL:     72 * time.Hour,
			CookieSameSite: "lax",
		},
		Storage: config.StorageConfig{MaxAvatarSize: 1 << 20},
	}
}

func newRouter(accounts Accounts, users userTable, checks ...HealthCheck) *gin.Engine {
	cfg := testConfig()
	gate := middleware.Authenticate(tokenIsID{}, alwaysActive{}, users)
	h := NewHandlerSet(zerolog.Nop(), cfg, accounts, gate, checks...)

	r := gin.New()
	r.Use(middleware.Errors(zerolog.Nop(), false))
	h.Register(r.Group("/api"))
	return r
}

func send(r http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRegistrationReturnsActivationToken(t *testing.T) {
	accounts := &stubAccounts{}
	r := newRouter(accounts, nil)

	rec := send(r, http.MethodPost, "/api/v1/registration", `{"name":"Ana","email":"a@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "act-token", body["activationToken"])
	assert.Contains(t, body["message"], "a@x.com")
	assert.Equal(t, "Ana", accounts.registerIn.Name)
}

func TestMalformedBodyIsValidationError(t *testing.T) {
	r := newRouter(&stubAccounts{}, nil)

	rec := send(r, http.MethodPost, "/api/v1/login", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{apperr.New(apperr.KindInvalidCredentials, "Invalid email or password"), http.StatusBadRequest},
		{apperr.New(apperr.KindSessionNotActive, "no session"), http.StatusUnauthorized},
		{apperr.NotFound("missing"), http.StatusNotFound},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := newRouter(&stubAccounts{err: tc.err}, nil)
		rec := send(r, http.MethodPost, "/api/v1/login", `{"email":"a@x.com","password":"x"}`)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Nil(t, cookieByName(rec, middleware.AccessCookie))
	}
}

func TestLoginSetsSessionCookies(t *testing.T) {
	accounts := &stubAccounts{session: service.Session{
		User:   models.User{ID: "u1", Email: "a@x.com"},
		Tokens: security.TokenPair{AccessToken: "acc", RefreshToken: "ref"},
	}}
	r := newRouter(accounts, nil)

	rec := send(r, http.MethodPost, "/api/v1/login", `{"email":"a@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	access := cookieByName(rec, middleware.AccessCookie)
	require.NotNil(t, access)
	assert.Equal(t, "acc", access.Value)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, 300, access.MaxAge)
	assert.Equal(t, http.SameSiteLaxMode, access.SameSite)
	assert.False(t, access.Secure)

	refresh := cookieByName(rec, middleware.RefreshCookie)
	require.NotNil(t, refresh)
	assert.Equal(t, "ref", refresh.Value)
	assert.Equal(t, 72*3600, refresh.MaxAge)

	body := decode(t, rec)
	assert.Equal(t, "acc", body["accessToken"])
}

func TestRefreshReadsCookie(t *testing.T) {
	accounts := &stubAccounts{session: service.Session{Tokens: security.TokenPair{AccessToken: "a2", RefreshToken: "r2"}}}
	r := newRouter(accounts, nil)

	rec := send(r, http.MethodGet, "/api/v1/refresh", "", &http.Cookie{Name: middleware.RefreshCookie, Value: "r1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "r1", accounts.refreshed)
	assert.Equal(t, "a2", cookieByName(rec, middleware.AccessCookie).Value)
}

func TestLogoutClearsCookies(t *testing.T) {
	accounts := &stubAccounts{}
	r := newRouter(accounts, userTable{"u1": {ID: "u1"}})

	rec := send(r, http.MethodGet, "/api/v1/logout", "", &http.Cookie{Name: middleware.AccessCookie, Value: "u1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", accounts.loggedOut)
	access := cookieByName(rec, middleware.AccessCookie)
	require.NotNil(t, access)
	assert.Empty(t, access.Value)
	assert.Less(t, access.MaxAge, 0)
}

func TestProtectedRoutesRequireCookie(t *testing.T) {
	r := newRouter(&stubAccounts{}, userTable{})
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/me"},
		{http.MethodGet, "/api/v1/logout"},
		{http.MethodPut, "/api/v1/update-user-info"},
		{http.MethodPut, "/api/v1/update-user-password"},
		{http.MethodGet, "/api/v1/admin/users"},
	} {
		rec := send(r, route.method, route.path, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, route.path)
	}
}

func TestMeAndUpdateInfo(t *testing.T) {
	r := newRouter(&stubAccounts{}, userTable{"u1": {ID: "u1", Role: models.UserRoleUser}})
	cookie := &http.Cookie{Name: middleware.AccessCookie, Value: "u1"}

	rec := send(r, http.MethodGet, "/api/v1/me", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", decode(t, rec)["user"].(map[string]any)["_id"])

	rec = send(r, http.MethodPut, "/api/v1/update-user-info", `{"name":"Ana B"}`, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Ana B", decode(t, rec)["user"].(map[string]any)["name"])
}

func TestUpdateUserAvatarMultipart(t *testing.T) {
	accounts := &stubAccounts{}
	r := newRouter(accounts, userTable{"u1": {ID: "u1"}})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("avatar", "me.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG\r\n\x1a\npayload"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPut, "/api/v1/update-user-avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(&http.Cookie{Name: middleware.AccessCookie, Value: "u1"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\npayload"), accounts.avatarBody)

	rec = send(r, http.MethodPut, "/api/v1/update-user-avatar", `{}`, &http.Cookie{Name: middleware.AccessCookie, Value: "u1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	accounts := &stubAccounts{users: []models.User{{ID: "u1"}, {ID: "u2"}}}
	r := newRouter(accounts, userTable{
		"u1":    {ID: "u1", Role: models.UserRoleUser},
		"admin": {ID: "admin", Role: models.UserRoleAdmin},
	})

	rec := send(r, http.MethodGet, "/api/v1/admin/users", "", &http.Cookie{Name: middleware.AccessCookie, Value: "u1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	adminCookie := &http.Cookie{Name: middleware.AccessCookie, Value: "admin"}
	rec = send(r, http.MethodGet, "/api/v1/admin/users?limit=10", "", adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["users"], 2)

	rec = send(r, http.MethodPut, "/api/v1/admin/update-user-role", `{"id":"u1","role":"admin"}`, adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [2]string{"u1", "admin"}, accounts.roleUpdate)
}

func TestHealth(t *testing.T) {
	ok := HealthCheck{Name: "postgres", Check: func(context.Context) error { return nil }}
	bad := HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("down") }}

	rec := send(newRouter(&stubAccounts{}, nil, ok), http.MethodGet, "/api/v1/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = send(newRouter(&stubAccounts{}, nil, ok, bad), http.MethodGet, "/api/v1/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	checks := decode(t, rec)["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["postgres"])
	assert.Equal(t, "error", checks["redis"])
}

func TestCookieJarSecureInProduction(t *testing.T) {
	cfg := testConfig()
	cfg.Environment = "production"
	assert.True(t, newCookieJar(cfg).secure)

	cfg = testConfig()
	cfg.Security.CookieSameSite = "none"
	jar := newCookieJar(cfg)
	assert.True(t, jar.secure)
	assert.Equal(t, http.SameSiteNoneMode, jar.sameSite)
}
