package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"elearning/internal/apperr"
	"elearning/internal/models"
	"elearning/internal/repository"
)

const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"

	currentUserKey = "current_user"
)

type AccessVerifier interface {
	VerifyAccess(token string) (string, error)
}

type SessionChecker interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

type UserLoader interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

// Authenticate admits a request only when the access cookie carries a valid
// token, a session marker exists for its user id and the user still exists.
// The loaded user is available through CurrentUser.
func Authenticate(tokens AccessVerifier, sessions SessionChecker, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(AccessCookie)
		if err != nil || token == "" {
			abort(c, apperr.New(apperr.KindUnauthenticated, "Please login to access this resource"))
			return
		}

		userID, err := tokens.VerifyAccess(token)
		if err != nil {
			abort(c, apperr.Wrap(apperr.KindInvalidToken, "Access token is invalid or expired", err))
			return
		}

		ctx := c.Request.Context()
		active, err := sessions.Exists(ctx, userID)
		if err != nil {
			abort(c, apperr.Internal(err))
			return
		}
		if !active {
			abort(c, apperr.New(apperr.KindSessionNotActive, "Session is not active, please login again"))
			return
		}

		user, err := users.GetByID(ctx, userID)
		if errors.Is(err, repository.ErrUserNotFound) {
			abort(c, apperr.Wrap(apperr.KindUserNotFound, "User not found", err))
			return
		}
		if err != nil {
			abort(c, apperr.Internal(err))
			return
		}

		c.Set(currentUserKey, user.Public())
		c.Next()
	}
}

func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}

func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
