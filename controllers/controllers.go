// Package controllers holds the gin handlers of the JSON API and of the
// browser view-model routes.
package controllers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	accounts "github.com/phillip/campus-events-go/accounts"
	apperrors "github.com/phillip/campus-events-go/apperrors"
	auth "github.com/phillip/campus-events-go/auth"
	config "github.com/phillip/campus-events-go/config"
	events "github.com/phillip/campus-events-go/events"
	middleware "github.com/phillip/campus-events-go/middleware"
	session "github.com/phillip/campus-events-go/session"
	utils "github.com/phillip/campus-events-go/utils"
)

const (
	docTimeout  = 5 * time.Second
	listTimeout = 10 * time.Second
)

// Deps is everything a handler may need. Handlers are built once at route
// setup with func X(d *Deps) gin.HandlerFunc.
type Deps struct {
	Config   *config.Config
	Events   *events.Repository
	Accounts *accounts.Client
	Sessions *session.Store
	Images   utils.ImageStore
	Log      *slog.Logger
}

func (d *Deps) logger() *slog.Logger {
	if d.Log == nil {
		return slog.Default()
	}
	return d.Log
}

// SecureCookies reports whether cookies get the Secure flag.
func (d *Deps) SecureCookies() bool {
	return d.Config != nil && strings.HasPrefix(d.Config.BaseURL, "https://")
}

func statusOf(kind apperrors.Kind) int {
	switch kind {
	case apperrors.Validation:
		return http.StatusBadRequest
	case apperrors.Auth:
		return http.StatusUnauthorized
	case apperrors.Authorization, apperrors.Unverified:
		return http.StatusForbidden
	case apperrors.NotFound:
		return http.StatusNotFound
	case apperrors.RemoteAuth, apperrors.RemoteStore:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// statusFor refines remote auth failures the provider attributes to the
// caller.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrEmailInUse):
		return http.StatusConflict
	case errors.Is(err, auth.ErrNoAccount):
		return http.StatusNotFound
	}
	return statusOf(apperrors.KindOf(err))
}

// respondError writes err as {"error": msg} with the status of its kind.
// Internal failures are logged and answered with a generic message.
func (d *Deps) respondError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		d.logger().Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
		if kind == apperrors.Internal {
			c.JSON(status, gin.H{"error": "internal error"})
			return
		}
	}
	body := gin.H{"error": apperrors.Message(err)}
	if kind == apperrors.Unverified {
		body["code"] = string(kind)
	}
	c.JSON(status, body)
}

func withTimeout(c *gin.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), d)
}

func currentUserID(c *gin.Context) string {
	return c.GetString(middleware.UserIDKey)
}
