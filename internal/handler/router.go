package handler

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attendboard/internal/auth"
	"attendboard/internal/httpmiddleware"
	"attendboard/internal/session"
)

// HealthChecker is a backing service reported by /healthz.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// Deps is everything NewRouter wires together.
type Deps struct {
	Handler   *Handler
	Sessions  *session.Manager
	Cookie    auth.CookieConfig
	GuardWait time.Duration
	Limiter   *httpmiddleware.FormLimiter
	Templates *template.Template
	Gatherer  prometheus.Gatherer
	Health    map[string]HealthChecker
	// CORSOrigins enables cross-origin reads of the JSON endpoint.
	CORSOrigins []string
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(securityHeaders())
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     d.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Accept"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.SetHTMLTemplate(d.Templates)

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", healthz(d.Health))

	limit := func(c *gin.Context) { c.Next() }
	if d.Limiter != nil {
		limit = d.Limiter.GinMiddleware()
	}

	h := d.Handler
	web := r.Group("/", auth.Sessions(d.Sessions, d.Cookie))
	web.GET("/", h.Root)
	web.POST("/logout", h.Logout)

	guest := web.Group("/", auth.RedirectIfAuthenticated("/dashboard", d.GuardWait))
	guest.GET("/login", h.LoginPage)
	guest.POST("/login", limit, h.Login)
	guest.GET("/register", h.RegisterPage)
	guest.POST("/register", limit, h.Register)

	dash := web.Group("/dashboard", auth.RequireSession(auth.GuardConfig{
		Wait:      d.GuardWait,
		LoginPath: "/login",
		Loading:   h.Loading,
		Logger:    h.log,
	}))
	dash.GET("", h.Dashboard)
	dash.GET("/data.json", h.DashboardData)

	return r
}

func healthz(checks map[string]HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		body := gin.H{"status": "ok"}
		for name, check := range checks {
			ok := check.Healthy(ctx)
			body[name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(status, body)
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
