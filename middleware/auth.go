package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	models "github.com/phillip/campus-events-go/models"
)

const (
	AuthCookie = "auth_token"

	accountKey = "account"
	tokenKey   = "auth_token"
	// UserIDKey holds the authenticated account id, as a string.
	UserIDKey = "user_id"
)

// Authenticator resolves a session token to its account.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Account, error)
}

// OptionalAuth resolves the caller's token when there is one and keeps the
// browser session's account in step with it. Unverified accounts count as
// anonymous.
func OptionalAuth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := RequestToken(c)
		var acc *models.Account
		if token != "" {
			if resolved, err := a.Authenticate(c.Request.Context(), token); err == nil && resolved.EmailVerified {
				acc = resolved
			} else if _, err := c.Cookie(AuthCookie); err == nil {
				ClearAuthCookie(c)
			}
		}

		if acc != nil {
			c.Set(accountKey, acc)
			c.Set(tokenKey, token)
			c.Set(UserIDKey, acc.ID)
		}

		if s := CurrentSession(c); s != nil {
			prev := s.Account()
			switch {
			case acc != nil && (prev == nil || prev.ID != acc.ID):
				s.SetAccount(acc, token)
			case acc == nil && prev != nil:
				s.SetAccount(nil, "")
			}
		}
		c.Next()
	}
}

// RequireAuth rejects requests without a verified account. It must run
// after OptionalAuth.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentAccount(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

func CurrentAccount(c *gin.Context) *models.Account {
	if v, ok := c.Get(accountKey); ok {
		if acc, ok := v.(*models.Account); ok {
			return acc
		}
	}
	return nil
}

func CurrentToken(c *gin.Context) string {
	return c.GetString(tokenKey)
}

// RequestToken reads a Bearer token, falling back to the auth cookie.
func RequestToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if v, err := c.Cookie(AuthCookie); err == nil {
		return v
	}
	return ""
}

func SetAuthCookie(c *gin.Context, token string, maxAge int, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AuthCookie, token, maxAge, "/", "", secure, true)
}

func ClearAuthCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AuthCookie, "", -1, "/", "", false, true)
}
