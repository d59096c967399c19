package app

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
	"github.com/go-chi/render"

	"github.com/Steivan/LEG-analysis-sub001/internal/config"
	"github.com/Steivan/LEG-analysis-sub001/internal/infrastructure"
	"github.com/Steivan/LEG-analysis-sub001/internal/jobs"
	customMiddleware "github.com/Steivan/LEG-analysis-sub001/internal/middleware"
	"github.com/Steivan/LEG-analysis-sub001/internal/services"
	handlers "github.com/Steivan/LEG-analysis-sub001/internal/transport/http"
)

// AppName is reported in logs and telemetry.
const AppName = "pv-calibrate-server"

const jobRetentionInterval = time.Minute

// Version is set at build time with -ldflags "-X ...app.Version=...".
var Version = "dev"

// Application represents the main application container
type Application struct {
	Config             *config.Config
	Paths              *config.Paths
	Router             *chi.Mux
	Server             *http.Server
	Logger             *slog.Logger
	CalibrationService *services.CalibrationService
	HealthService      *services.HealthService
	JobQueue           *jobs.Queue
	OTelProviders      *infrastructure.OTelProviders
}

// NewApplication wires services, handlers and middleware for cfg.
func NewApplication(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", Version))

	paths, err := cfg.GetPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to get paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	otelProviders, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	calibrationService := services.NewCalibrationService(cfg, logger)
	a := &Application{
		Config:             cfg,
		Paths:              paths,
		Logger:             logger,
		OTelProviders:      otelProviders,
		CalibrationService: calibrationService,
		HealthService:      services.NewHealthService(Version, paths, logger),
		JobQueue:           jobs.NewQueue(cfg.Jobs.Workers, cfg.Jobs.QueueSize, jobs.NewMemoryStore(), calibrationService, logger),
	}

	a.setupRouter()
	a.createServer()
	return a, nil
}

// setupRouter applies middleware in the order
// RequestID, RealIP, OTel, Logger, Recoverer, RateLimit, BodyLimit.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.StripSlashes)

	r.Group(func(r chi.Router) {
		r.Use(customMiddleware.NewOTelMiddleware().Handler)
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))

		if rl := a.Config.Server.RateLimit; rl.Enabled {
			r.Use(customMiddleware.NewRateLimiter(rl.RPS, rl.Burst, a.Logger).Handler)
		}
		r.Use(customMiddleware.BodyLimit(a.Config.Server.MaxBodyBytes))

		a.setupAPIRoutes(r)
	})

	// Scrapes stay outside the rate limiter
	if a.OTelProviders != nil && a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Mount("/health", handlers.NewHealthHandler(a.HealthService, a.Logger).Routes())
		r.Mount("/v1/jobs", handlers.NewJobHandler(a.JobQueue, a.Config, a.Logger).Routes())

		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.OperationTimeout))
			r.Mount("/v1", handlers.NewCalibrationHandler(a.CalibrationService, a.Config, a.Logger).Routes())
		})
	})
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Run serves until ctx is cancelled, SIGINT or SIGTERM arrives, or the
// listener fails, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Jobs outlive the signal context so Stop can drain them
	a.JobQueue.Start(context.WithoutCancel(ctx))
	go a.JobQueue.RetainFinished(ctx, a.Config.Jobs.Retention, jobRetentionInterval)

	serverErr := make(chan error, 1)
	go func() {
		a.Logger.InfoContext(ctx, "HTTP server listening", slog.String("address", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	a.performStartupHealthCheck(ctx)

	select {
	case err := <-serverErr:
		if err != nil {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			a.shutdownTelemetry(context.Background())
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		a.Logger.InfoContext(ctx, "Received shutdown signal")
	}

	return a.Stop(context.Background())
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	if err := a.JobQueue.Stop(a.Config.Server.ShutdownTimeout); err != nil {
		a.Logger.WarnContext(ctx, "Job queue did not drain", slog.String("error", err.Error()))
	}
	a.shutdownTelemetry(shutdownCtx)

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}

func (a *Application) shutdownTelemetry(ctx context.Context) {
	if a.OTelProviders == nil {
		return
	}
	if err := a.OTelProviders.Shutdown(ctx); err != nil {
		a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
	}
}

// performStartupHealthCheck logs components that are not ready. The server
// keeps running; readiness is also exposed at /api/health/ready.
func (a *Application) performStartupHealthCheck(ctx context.Context) {
	status := a.HealthService.ReadinessCheck(ctx)
	if status.Status == "ready" {
		a.Logger.InfoContext(ctx, "Startup health check passed")
		return
	}
	a.Logger.WarnContext(ctx, "Startup health check reported problems", slog.Any("services", status.Services))
}
