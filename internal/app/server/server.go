package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"perfreview/internal/domain/audit"
	"perfreview/internal/domain/auth"
	"perfreview/internal/domain/cycles"
	"perfreview/internal/domain/notifications"
	"perfreview/internal/platform/config"
	"perfreview/internal/platform/db"
	"perfreview/internal/platform/jobs"
	"perfreview/internal/platform/metrics"
	"perfreview/internal/transport/http/api"
	audithandler "perfreview/internal/transport/http/handlers/audit"
	cycleshandler "perfreview/internal/transport/http/handlers/cycles"
	notificationshandler "perfreview/internal/transport/http/handlers/notifications"
	timelineshandler "perfreview/internal/transport/http/handlers/timelines"
	"perfreview/internal/transport/http/middleware"
)

type App struct {
	Config config.Config
	DB     *pgxpool.Pool
	Router http.Handler
	Jobs   *jobs.Service
}

// Deps are the collaborators of the HTTP router. Nil optional fields switch
// the matching feature off.
type Deps struct {
	Config        config.Config
	Cycles        *cycles.Service
	Perms         middleware.PermissionStore
	Auditor       cycleshandler.Auditor
	AuditReader   audithandler.Reader
	Idempotency   middleware.IdempotencyStore
	Sweeper       cycleshandler.Sweeper
	Notifications *notifications.Service
	Metrics       *metrics.Collector
	Ready         func(ctx context.Context) error
	Now           func() time.Time
}

// New connects to Postgres, applies migrations when enabled and wires the
// router. Background jobs are created but not started.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}

	cycleService := cycles.NewService(cycles.NewStore(pool))
	jobService := jobs.New(jobs.NewPGRunStore(pool), cycleService, cfg.SweepInterval)
	auditService := audit.New(pool)
	notificationService := notifications.New(notifications.NewStore(pool))
	cycleService.SetNotifier(notificationService)

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.New()
	}

	router := NewRouter(Deps{
		Config:        cfg,
		Cycles:        cycleService,
		Perms:         auth.StaticPermissions{},
		Auditor:       auditService,
		AuditReader:   auditService,
		Idempotency:   middleware.NewIdempotencyStore(pool),
		Sweeper:       jobService,
		Notifications: notificationService,
		Metrics:       collector,
		Ready:         pool.Ping,
	})

	return &App{Config: cfg, DB: pool, Router: router, Jobs: jobService}, nil
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

func NewRouter(d Deps) http.Handler {
	if d.Perms == nil {
		d.Perms = auth.StaticPermissions{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(d.Metrics))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(d.Config.IsProduction()))
	router.Use(middleware.BodyLimit(d.Config.MaxBodyBytes))
	router.Use(middleware.Auth(d.Config.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.Ready(ctx); err != nil {
				slog.Warn("readiness check failed", "err", err)
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if d.Metrics != nil {
		router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, d.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		if d.Config.RateLimitPerMinute > 0 {
			r.Use(middleware.RateLimit(d.Config.RateLimitPerMinute, time.Minute))
			r.Use(middleware.CycleMutationRateLimit(d.Config.RateLimitPerMinute, time.Minute))
		}

		timelines := timelineshandler.NewHandler(d.Perms, d.Metrics)
		timelines.Now = d.Now
		timelines.RegisterRoutes(r)

		if d.Cycles != nil {
			cyclesHandler := cycleshandler.NewHandler(d.Cycles, d.Perms, d.Auditor, d.Idempotency, d.Sweeper, d.Metrics)
			cyclesHandler.Now = d.Now
			if d.Notifications != nil {
				cyclesHandler.Notify = d.Notifications
			}
			cyclesHandler.RegisterRoutes(r)
		}

		if d.Notifications != nil {
			notificationshandler.NewHandler(d.Notifications, d.Perms).RegisterRoutes(r)
		}

		if d.AuditReader != nil {
			audithandler.NewHandler(d.AuditReader, d.Perms).RegisterRoutes(r)
		}
	})

	return router
}

// Run loads configuration, starts the sweep jobs and serves HTTP until
// SIGINT or SIGTERM.
func Run() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer app.Close()

	app.Jobs.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("review cycle server listening", "addr", cfg.Addr, "env", cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "err", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("graceful shutdown failed", "err", err)
		}
		slog.Info("server stopped")
	}
}
