package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"elearning/internal/config"
	"elearning/internal/middleware"
	"elearning/internal/security"
)

type cookieJar struct {
	accessTTL  time.Duration
	refreshTTL time.Duration
	sameSite   http.SameSite
	secure     bool
	domain     string
}

func newCookieJar(cfg *config.AppConfig) cookieJar {
	sameSite := parseSameSite(cfg.Security.CookieSameSite)
	// browsers drop SameSite=None cookies that are not Secure
	secure := cfg.IsProduction() || sameSite == http.SameSiteNoneMode

	return cookieJar{
		accessTTL:  cfg.Security.AccessTTL,
		refreshTTL: cfg.Security.RefreshTTL,
		sameSite:   sameSite,
		secure:     secure,
		domain:     cfg.Security.CookieDomain,
	}
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func (j cookieJar) setSession(c *gin.Context, pair security.TokenPair) {
	j.set(c, middleware.AccessCookie, pair.AccessToken, j.accessTTL)
	j.set(c, middleware.RefreshCookie, pair.RefreshToken, j.refreshTTL)
}

func (j cookieJar) clearSession(c *gin.Context) {
	j.set(c, middleware.AccessCookie, "", -1)
	j.set(c, middleware.RefreshCookie, "", -1)
}

func (j cookieJar) set(c *gin.Context, name, value string, ttl time.Duration) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   j.domain,
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: j.sameSite,
	}
	if ttl < 0 {
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(1, 0)
	} else {
		cookie.MaxAge = int(ttl.Seconds())
		cookie.Expires = time.Now().Add(ttl)
	}
	http.SetCookie(c.Writer, cookie)
}
