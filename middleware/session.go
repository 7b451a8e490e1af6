package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	models "github.com/phillip/campus-events-go/models"
	session "github.com/phillip/campus-events-go/session"
)

const (
	SessionCookie = "sid"
	sessionKey    = "session"

	sessionCookieMaxAge = 30 * 24 * 60 * 60
)

// Session attaches the browser's server-side session, creating one (and
// its cookie) on first contact. Account changes of new sessions are logged
// when log is set.
func Session(st *session.Store, secure bool, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(SessionCookie)
		s, created := st.Get(id)
		if created {
			if log != nil {
				sid := s.ID
				s.Subscribe(func(acc *models.Account) {
					if acc == nil {
						log.Info("session signed out", "session", sid)
						return
					}
					log.Info("session signed in", "session", sid, "user_id", acc.ID)
				})
			}
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(SessionCookie, s.ID, sessionCookieMaxAge, "/", "", secure, true)
		}
		c.Set(sessionKey, s)
		c.Next()
	}
}

func CurrentSession(c *gin.Context) *session.Session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(*session.Session); ok {
			return s
		}
	}
	return nil
}
