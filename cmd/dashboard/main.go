package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"attendboard/internal/apiclient"
	"attendboard/internal/attendance"
	"attendboard/internal/auth"
	"attendboard/internal/config"
	"attendboard/internal/handler"
	"attendboard/internal/httpmiddleware"
	"attendboard/internal/logging"
	"attendboard/internal/metrics"
	"attendboard/internal/session"
	"attendboard/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	for _, w := range cfg.Warnings {
		logger.Warn("config fallback", zap.String("detail", w))
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("dashboard server failed", zap.Error(err))
	}
}

func run(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tokens, health, cleanup, err := openTokenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	client := apiclient.New(cfg.APIBaseURL, cfg.APITimeout, m)
	mgr := session.NewManager(client, tokens, session.Options{
		IdleTTL:     cfg.SessionIdleTTL,
		TokenExpiry: auth.TokenExpiry,
		Logger:      logger,
		Metrics:     m,
	})
	mgr.Start(ctx)
	defer mgr.Close()

	tmpl, err := handler.Templates()
	if err != nil {
		return err
	}
	limiter := httpmiddleware.NewFormLimiter(cfg.RateLimitPerMin/3, cfg.RateLimitPerMin)
	go housekeeping(ctx, limiter, tokens, logger)

	var corsOrigins []string
	if !cfg.Production() {
		corsOrigins = cfg.CORSOrigins
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Warn("using local time zone", zap.Error(err))
	}
	h := handler.New(attendance.NewService(client, logger, m), loc, cfg.LowAttendanceThreshold, logger, m)
	r := handler.NewRouter(handler.Deps{
		Handler:     h,
		Sessions:    mgr,
		Cookie:      auth.CookieConfig{Name: cfg.SessionCookie, Secure: cfg.Production()},
		GuardWait:   cfg.GuardWait,
		Limiter:     limiter,
		Templates:   tmpl,
		Gatherer:    reg,
		Health:      health,
		CORSOrigins: corsOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.String("api", cfg.APIBaseURL),
			zap.String("token_store", cfg.TokenStore))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
	return nil
}

// openTokenStore selects where session tokens persist and which backing
// services /healthz reports on.
func openTokenStore(ctx context.Context, cfg config.App, logger *zap.Logger) (store.TokenStore, map[string]handler.HealthChecker, func(), error) {
	switch cfg.TokenStore {
	case "redis":
		rdb := store.NewRedis(cfg.RedisAddr)
		if !rdb.Healthy(ctx) {
			logger.Warn("redis not reachable at startup", zap.String("addr", cfg.RedisAddr))
		}
		return store.NewRedisTokens(rdb.Client, ""),
			map[string]handler.HealthChecker{"redis": rdb},
			func() { _ = rdb.Close() },
			nil
	case "postgres":
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		db, err := store.NewDB(dialCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		pg := store.NewPostgresTokens(db.Client)
		if err := pg.Migrate(dialCtx); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		return pg,
			map[string]handler.HealthChecker{"db": db},
			func() { _ = db.Close() },
			nil
	default:
		return store.NewMemoryTokens(), nil, func() {}, nil
	}
}

// housekeeping forgets refilled rate-limit buckets and purges expired
// Postgres tokens until ctx ends.
func housekeeping(ctx context.Context, limiter *httpmiddleware.FormLimiter, tokens store.TokenStore, logger *zap.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	pg, _ := tokens.(*store.PostgresTokens)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Prune()
			if pg == nil {
				continue
			}
			n, err := pg.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("purge expired tokens", zap.Error(err))
			} else if n > 0 {
				logger.Debug("purged expired tokens", zap.Int64("count", n))
			}
		}
	}
}
