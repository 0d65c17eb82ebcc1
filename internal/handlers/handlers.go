package handlers

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"elearning/internal/apperr"
	"elearning/internal/config"
	"elearning/internal/middleware"
	"elearning/internal/models"
	"elearning/internal/service"
)

// Accounts is the subset of service.AccountService the HTTP layer calls.
type Accounts interface {
	Register(ctx context.Context, in service.RegisterInput) (service.RegisterResult, error)
	Activate(ctx context.Context, token, code string) (models.User, error)
	Login(ctx context.Context, email, password string) (service.Session, error)
	Logout(ctx context.Context, userID string) error
	Refresh(ctx context.Context, refreshToken string) (service.Session, error)
	SocialAuth(ctx context.Context, in service.SocialAuthInput) (service.Session, error)
	Profile(ctx context.Context, userID string) (models.User, error)
	UpdateInfo(ctx context.Context, userID string, in service.UpdateInfoInput) (models.User, error)
	UpdatePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	UpdateAvatar(ctx context.Context, userID string, r io.Reader, size int64) (models.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]models.User, error)
	UpdateRole(ctx context.Context, userID string, role models.UserRole) (models.User, error)
}

var _ Accounts = (*service.AccountService)(nil)

// HealthCheck pings one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type HandlerSet struct {
	log          zerolog.Logger
	cfg          *config.AppConfig
	accounts     Accounts
	authenticate gin.HandlerFunc
	checks       []HealthCheck
	cookies      cookieJar
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, accounts Accounts, authenticate gin.HandlerFunc, checks ...HealthCheck) HandlerSet {
	return HandlerSet{
		log:          log,
		cfg:          cfg,
		accounts:     accounts,
		authenticate: authenticate,
		checks:       checks,
		cookies:      newCookieJar(cfg),
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	v1 := router.Group("/v1")

	v1.GET("/healthz", h.Health)

	v1.POST("/registration", h.Registration)
	v1.POST("/activate-user", h.ActivateUser)
	v1.POST("/login", h.Login)
	v1.POST("/social-auth", h.SocialAuth)
	v1.GET("/refresh", h.Refresh)

	authed := v1.Group("")
	authed.Use(h.authenticate)
	authed.GET("/logout", h.Logout)
	authed.GET("/me", h.Me)
	authed.PUT("/update-user-info", h.UpdateUserInfo)
	authed.PUT("/update-user-password", h.UpdateUserPassword)
	authed.PUT("/update-user-avatar", h.UpdateUserAvatar)

	admin := v1.Group("/admin")
	admin.Use(h.authenticate, middleware.RequireRoles(models.UserRoleAdmin))
	admin.GET("/users", h.AdminListUsers)
	admin.PUT("/update-user-role", h.AdminUpdateUserRole)
}

// bindJSON reports malformed bodies as validation errors.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		_ = c.Error(apperr.Wrap(apperr.KindValidation, "Invalid request body", err))
		return false
	}
	return true
}

func currentUser(c *gin.Context) (models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		_ = c.Error(apperr.New(apperr.KindUnauthenticated, "Please login to access this resource"))
	}
	return user, ok
}
