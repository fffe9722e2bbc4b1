// Package app wires configuration, logging, storage, the binding engine and
// the HTTP transport into a runnable service.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"wsbind/internal/audit"
	"wsbind/internal/binding"
	"wsbind/internal/config"
	"wsbind/internal/fingerprint"
	"wsbind/internal/infrastructure"
	"wsbind/internal/middleware"
	"wsbind/internal/registry"
	"wsbind/internal/services"
	"wsbind/internal/store"
	"wsbind/internal/token"
	transporthttp "wsbind/internal/transport/http"
	"wsbind/pkg/contracts"
)

// App is the assembled service
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	store     store.Store
	trail     *audit.Trail
	service   services.BindingService
	router    chi.Router
}

// New builds the application from configuration
func New(cfg *config.Config) (*App, error) {
	logger, logCloser, err := infrastructure.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	slog.SetDefault(logger)

	var st store.Store
	switch cfg.Storage.Driver {
	case "memory":
		st = store.NewMemoryStore()
	default:
		st, err = store.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
	}

	clock := token.SystemClock{}
	tokens, err := token.NewService(cfg.Token.MasterKey, cfg.Token.KeyContext, st, clock, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	var gateway registry.Gateway
	if cfg.Gateway.BaseURL != "" {
		gateway = registry.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.Timeout, logger)
	} else {
		logger.Warn("no gateway base URL configured, using static verification results")
		gateway = registry.NewStaticGateway(cfg.Gateway.Static)
	}
	gateway = registry.NewCachingGateway(gateway, cfg.Binding.GatewayCacheTTL)

	trail := audit.NewTrail(st, logger)
	metrics := infrastructure.NewMetrics(prometheus.DefaultRegisterer)

	engine := binding.NewEngine(st, tokens, gateway, trail, binding.Config{
		MaxWorkshopBindings:   cfg.Binding.MaxWorkshopBindings,
		MaxValidationFailures: cfg.Binding.MaxValidationFailures,
		MatchPolicy:           fingerprint.MatchPolicy{MaxComponentDrift: cfg.Binding.FingerprintTolerance},
		TokenTTL:              cfg.Binding.TokenTTL,
	}, clock, metrics, logger)

	service := services.NewBindingService(engine, trail, logger)

	a := &App{
		cfg:       cfg,
		logger:    logger,
		logCloser: logCloser,
		store:     st,
		trail:     trail,
		service:   service,
	}
	a.router = a.buildRouter()
	return a, nil
}

// buildRouter assembles the middleware chain and mounts the handlers
func (a *App) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.StructuredLogger(a.logger))
	r.Use(middleware.Recoverer(a.logger))
	if a.cfg.RateLimit.Enabled {
		r.Use(middleware.RateLimit(a.cfg.RateLimit.RPS, a.cfg.RateLimit.Burst))
	}

	bindingHandler := transporthttp.NewBindingHandler(a.service, a.logger)
	auditHandler := transporthttp.NewAuditHandler(a.service, a.trail, a.logger)
	healthHandler := transporthttp.NewHealthHandler(contracts.Version)

	r.Route("/api", func(r chi.Router) {
		r.Mount("/", bindingHandler.Routes())
		r.Mount("/audit", auditHandler.Routes())
		r.Get("/health", healthHandler.Health)
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Router exposes the assembled handler, mainly for tests
func (a *App) Router() http.Handler {
	return a.router
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully.
func (a *App) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("storage_driver", a.cfg.Storage.Driver),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down server")
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close releases the application's resources
func (a *App) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close store", slog.String("error", err.Error()))
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}
