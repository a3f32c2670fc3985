// Package app wires configuration, logging, observability, the store, the
// license engine and the HTTP router into a runnable server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"examgate/internal/config"
	apperrors "examgate/internal/errors"
	"examgate/internal/infrastructure"
	"examgate/internal/license"
	custommw "examgate/internal/middleware"
	"examgate/internal/store/postgres"
	handlers "examgate/internal/transport/http"
)

// Version is set at build time
var Version = "dev"

// Application is the dependency container for the server
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	Router        *chi.Mux
	Server        *http.Server
	Engine        *license.Engine
	OTelProviders *infrastructure.OTelProviders

	pg      *postgres.Store       // nil when running on the in-memory store
	limiter *custommw.RateLimiter // nil when rate limiting is disabled
}

// New builds the application from configuration
func New(ctx context.Context) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Startup happens outside any request, so mint a trace id for the logs
	// emitted before the router takes over
	ctx = infrastructure.EnsureTraceID(ctx)

	logger.InfoContext(ctx, "application starting",
		slog.String("service", infrastructure.ServiceName),
		slog.String("version", Version))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	store, err := app.initStore(ctx)
	if err != nil {
		return nil, err
	}

	app.Engine = license.NewEngine(store, cfg.Security.LicenseSecret, logger)
	app.setupRouter()
	app.createServer()

	return app, nil
}

// initStore selects postgres when a DSN is configured, the in-memory store
// otherwise
func (a *Application) initStore(ctx context.Context) (license.Store, error) {
	if a.Config.Database.DSN == "" {
		a.Logger.WarnContext(ctx, "no database DSN configured, using in-memory store",
			slog.String("action", "state will not survive restarts"))
		return license.NewMemoryStore(), nil
	}

	pg, err := postgres.New(ctx, a.Config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres store: %w", err)
	}
	a.pg = pg
	a.Logger.InfoContext(ctx, "postgres store initialized")
	return pg, nil
}

// setupRouter builds the chi router with the full middleware chain
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommw.StructuredLogger(a.Logger))
	if a.OTelProviders.Meter != nil {
		r.Use(custommw.RequestMetrics(a.OTelProviders.Meter, a.Logger))
	}
	r.Use(custommw.Recoverer(a.Logger))
	r.Use(middleware.Timeout(a.Config.Server.RequestTimeout))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	licenseHandler := handlers.NewLicenseHandler(a.Engine, a.Logger)
	adminHandler := handlers.NewAdminHandler(a.Engine, a.Logger)
	progressHandler := handlers.NewProgressHandler(a.Engine, a.Logger)

	var pinger handlers.Pinger
	if a.pg != nil {
		pinger = a.pg
	}
	healthHandler := handlers.NewHealthHandler(pinger, Version)

	if a.Config.Security.RateLimit.Enabled {
		a.limiter = custommw.NewRateLimiter(a.Config.Security.RateLimit, a.Logger)
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if a.limiter != nil {
				r.Use(a.limiter.Handler)
			}
			r.Mount("/", licenseHandler.Routes())
			r.Mount("/progress", progressHandler.Routes())
		})

		r.Group(func(r chi.Router) {
			r.Use(custommw.AdminAuth(a.Config.Security.AdminKey, a.Logger))
			r.Mount("/admin", adminHandler.Routes())
		})

		r.Get("/health", healthHandler.Health)
	})

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		render.Render(w, r, apperrors.NewProblemDetails(
			http.StatusNotFound, "/errors/not-found", "Not Found",
			"The requested resource does not exist.", r.URL.Path))
	})

	a.Router = r
}

// createServer builds the HTTP server from configuration
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Run starts the server and blocks until shutdown completes
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.Logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()

		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}

		if a.limiter != nil {
			a.limiter.Stop()
		}
		if a.pg != nil {
			a.pg.Close()
		}
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("otel shutdown failed", slog.String("error", err.Error()))
		}
		return nil
	})

	err := g.Wait()
	a.Logger.Info("application stopped")
	return err
}
