package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"attendboard/internal/session"
)

const sessionKey = "session"

// CurrentSession returns the session bound by Sessions.
func CurrentSession(c *gin.Context) *session.Session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(*session.Session); ok {
			return s
		}
	}
	return nil
}

// CookieConfig describes the browser session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge int
}

// Sessions binds every request to its browser session, issuing a cookie
// when the browser has none.
func Sessions(mgr *session.Manager, cookie CookieConfig) gin.HandlerFunc {
	if cookie.Name == "" {
		cookie.Name = "attendboard_sid"
	}
	if cookie.MaxAge == 0 {
		cookie.MaxAge = 30 * 24 * 60 * 60
	}
	return func(c *gin.Context) {
		id, err := c.Cookie(cookie.Name)
		if err != nil || !mgr.ValidID(id) {
			id = mgr.NewID()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cookie.Name, id, cookie.MaxAge, "/", "", cookie.Secure, true)
		}
		c.Set(sessionKey, mgr.Acquire(id))
		c.Next()
	}
}

// GuardConfig tunes RequireSession.
type GuardConfig struct {
	// Wait bounds how long a request waits for a loading session.
	Wait      time.Duration
	LoginPath string
	// Loading renders the neutral page shown while a session resolves.
	Loading gin.HandlerFunc
	Logger  *zap.Logger
}

// RequireSession guards protected views. It never redirects while the
// session is still loading.
func RequireSession(cfg GuardConfig) gin.HandlerFunc {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Loading == nil {
		cfg.Loading = func(c *gin.Context) {
			c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte("Loading..."))
		}
	}
	return func(c *gin.Context) {
		s := CurrentSession(c)
		if s == nil {
			c.Redirect(http.StatusSeeOther, cfg.LoginPath)
			c.Abort()
			return
		}

		view := s.View()
		if view.Loading && cfg.Wait > 0 {
			ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.Wait)
			view = s.Wait(ctx)
			cancel()
		}

		switch Decide(view) {
		case ShowLoading:
			cfg.Logger.Debug("session still loading", zap.String("path", c.Request.URL.Path))
			c.Header("Refresh", "1")
			c.Header("Cache-Control", "no-store")
			cfg.Loading(c)
			c.Abort()
		case RedirectLogin:
			c.Redirect(http.StatusSeeOther, cfg.LoginPath)
			c.Abort()
		default:
			c.Next()
		}
	}
}

// RedirectIfAuthenticated sends sessions that are already signed in to
// target, for the login and registration pages.
func RedirectIfAuthenticated(target string, wait time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := CurrentSession(c)
		if s == nil {
			c.Next()
			return
		}
		view := s.View()
		if view.Loading && wait > 0 {
			ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
			view = s.Wait(ctx)
			cancel()
		}
		if Decide(view) == Render && c.Request.Method == http.MethodGet {
			c.Redirect(http.StatusSeeOther, target)
			c.Abort()
			return
		}
		c.Next()
	}
}
