// Package main is the entry point for the feature-flag console server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pitabwire/flagconsole/internal/backend"
	"github.com/pitabwire/flagconsole/internal/capability"
	"github.com/pitabwire/flagconsole/internal/config"
	"github.com/pitabwire/flagconsole/internal/console"
	"github.com/pitabwire/flagconsole/internal/i18n"
	"github.com/pitabwire/flagconsole/internal/lookup"
	"github.com/pitabwire/flagconsole/internal/observability"
	"github.com/pitabwire/flagconsole/internal/openapi"
	"github.com/pitabwire/flagconsole/internal/page"
	"github.com/pitabwire/flagconsole/internal/session"
	"github.com/pitabwire/flagconsole/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.StringP("config", "c", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "flag-console", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Index the gateway operations and build the client.
	idx, err := openapi.LoadFile(ctx, cfg.Gateway.SpecFile, cfg.Gateway.BaseURL)
	if err != nil {
		logger.Error("gateway document load failed", zap.Error(err))
		return 1
	}
	client := backend.NewClient(idx, cfg.Gateway,
		backend.WithObserver(metrics),
		backend.WithLogger(logger.Named("gateway")),
	)
	metrics.SetOpenAPIOperationsIndexed(float64(client.OperationCount()))

	// Step 5: Capability resolver.
	evaluator, err := capability.NewStaticPolicyEvaluator(cfg.Capability.StaticPolicyFile)
	if err != nil {
		logger.Error("capability policy load failed", zap.Error(err))
		return 1
	}
	capResolver := capability.NewResolver(evaluator, cfg.Capability.Cache.TTL)
	capResolver.SetObserver(metrics)

	// Step 6: Resources, lookups, and messages.
	lookups := lookup.NewProvider(cfg.Lookup.Cache,
		lookup.WithObserver(metrics),
		lookup.WithLogger(logger.Named("lookup")),
	)
	pages := page.NewRegistry()
	console.Register(pages, lookups, client)

	catalog, err := i18n.NewCatalog()
	if err != nil {
		logger.Error("message catalog load failed", zap.Error(err))
		return 1
	}

	// Step 7: Session store and manager.
	store, storeCloser, err := buildSessionStore(ctx, cfg.Session.Store, logger)
	if err != nil {
		logger.Error("session store initialization failed", zap.Error(err))
		return 1
	}
	if storeCloser != nil {
		defer storeCloser()
	}

	sessions := session.NewManager(store, pages,
		session.WithTTL(cfg.Session.TTL),
		session.WithCatalog(catalog),
		session.WithPageObserver(metrics),
		session.WithInvalidator(lookups),
		session.WithActiveObserver(metrics),
		session.WithLogger(logger.Named("session")),
	)

	// Step 8: Authentication.
	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL)
	jwks.SetLogger(logger.Named("jwks"))

	// Step 9: Router.
	router := transport.NewRouter(transport.Dependencies{
		Config:             cfg,
		Logger:             logger,
		Authenticate:       transport.JWTAuthenticator(cfg.Identity, jwks),
		CapabilityResolver: capResolver,
		Sessions:           sessions,
		Pages:              pages,
		Lookups:            lookups,
		Catalog:            catalog,
		Metrics:            metrics,
		Readiness: observability.ReadinessChecks{
			Resources:         pages.Len,
			GatewayOperations: client.OperationCount,
			SessionStore:      sessions,
			Gateway:           client,
			GatewayState:      func() string { return client.Breaker().State().String() },
			LiveSessions:      sessions.Live,
		},
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 10: Serve until a signal arrives, then shut down.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("console server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("version", version),
			zap.Strings("resources", pages.Names()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return sessions.Run(gctx, cfg.Session.SweepInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 30 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", zap.Error(err))
		}
		if err := tracingShutdown(shutdownCtx); err != nil {
			logger.Error("tracing shutdown error", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("console server failed", zap.Error(err))
		return 1
	}

	logger.Info("shutdown complete")
	return 0
}

// buildSessionStore creates the session store selected by config.
func buildSessionStore(ctx context.Context, cfg config.SessionStoreConfig, logger *zap.Logger) (session.Store, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory session store")
		return session.NewMemoryStore(), nil, nil
	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("session store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("session store: parse DSN: %w", err)
		}
		if cfg.MaxOpenConns > 0 {
			poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		}
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("session store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("session store: ping: %w", err)
		}

		store := session.NewPgStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("session store: %w", err)
		}
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported session store driver: %q", cfg.Driver)
	}
}
