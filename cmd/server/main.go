package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	appservice "github.com/turtacn/keystore/internal/application/service"
	"github.com/turtacn/keystore/internal/config"
	domainservice "github.com/turtacn/keystore/internal/domain/service"
	"github.com/turtacn/keystore/internal/infrastructure/audit"
	"github.com/turtacn/keystore/internal/infrastructure/crypto"
	"github.com/turtacn/keystore/internal/infrastructure/monitoring"
	"github.com/turtacn/keystore/internal/infrastructure/persistence"
	grpchandlers "github.com/turtacn/keystore/internal/interfaces/grpc"
	"github.com/turtacn/keystore/internal/interfaces/http"
	"github.com/turtacn/keystore/internal/interfaces/http/handlers"
	"github.com/turtacn/keystore/pkg/logger"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// configFileEnv names an explicit config file; otherwise the default search paths apply.
const configFileEnv = "KEYSTORE_CONFIG_FILE"

func main() {
	// Logger for startup
	startupLogger, err := monitoring.NewZapLogger(&config.LogConfig{Level: "info", Format: "json"})
	if err != nil {
		log.Fatalf("Failed to create startup logger: %v", err)
	}

	// Load config
	loader := config.NewLoader(os.Getenv(configFileEnv), startupLogger)
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	// Only the log level is reloadable; everything else needs a restart.
	loader.Watch(func(next *config.Config) {
		if err := appLogger.SetLevel(next.Log.Level); err != nil {
			appLogger.Warn(context.Background(), "Ignoring invalid log level", logger.Fields{"level": next.Log.Level})
			return
		}
		appLogger.Info(context.Background(), "Log level updated", logger.Fields{"level": next.Log.Level})
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Error(context.Background(), "Server exited with error", err)
		_ = appLogger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, appLogger logger.Logger) error {
	a, err := newApp(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen for gRPC: %w", err)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- a.router.Start() }()
	go func() { errCh <- a.grpc.Serve(lis) }()

	appLogger.Info(ctx, "User key store started", logger.Fields{
		"version":   version,
		"backend":   a.store.Backend,
		"http_port": cfg.Server.HTTPPort,
		"grpc_port": cfg.Server.GRPCPort,
	})

	var serveErr error
	select {
	case <-ctx.Done():
		appLogger.Info(context.Background(), "Shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			appLogger.Error(context.Background(), "Server failed", serveErr)
		}
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.router.Stop(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown failed", err)
	}
	a.grpc.Stop(shutdownCtx)
	return serveErr
}

// app holds everything the server wires together.
type app struct {
	store     *persistence.Store
	publisher domainservice.KeyEventPublisher
	tracing   *monitoring.TracingManager
	keys      appservice.UserKeyAppService
	router    *http.Router
	grpc      *grpchandlers.Server
	registry  *prometheus.Registry
	log       logger.Logger
}

func newApp(ctx context.Context, cfg *config.Config, appLogger logger.Logger) (*app, error) {
	a := &app{log: appLogger}

	// Initialize tracing
	tracing, err := monitoring.NewTracingManager(cfg, appLogger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.tracing = tracing

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(a.registry)

	// Initialize storage
	store, err := persistence.Open(ctx, cfg, appLogger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.store = store

	sealer, err := crypto.NewSealer(cfg.Security.KeyEncryptionSecret)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	jwtManager, err := crypto.NewJWTManager(cfg.Auth, appLogger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	generator := crypto.NewSSHKeyGenerator(cfg.Keys.PrivateKeyFormat, cfg.Keys.Comment, appLogger)

	publisher, err := audit.NewPublisher(ctx, cfg.Kafka, store.DB, appLogger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.publisher = publisher

	// Initialize application services
	a.keys = appservice.NewUserKeyAppService(store.Repository, generator, sealer, publisher, metrics, cfg.Keys, appLogger)

	// Initialize HTTP handlers and router
	keyHandler := handlers.NewUserKeyHandler(a.keys, cfg.Server.Organization, appLogger)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{"storage": store.Repository}, version, appLogger)
	a.router = http.NewRouter(cfg, appLogger, keyHandler, healthHandler, jwtManager, metrics, a.registry, tracing.Tracer())

	a.grpc = grpchandlers.NewServer(map[string]grpchandlers.Pinger{"storage": store.Repository}, 0, appLogger)
	return a, nil
}

func (a *app) close(ctx context.Context) {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Error(ctx, "Failed to close event publisher", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Error(ctx, "Failed to close storage", err)
		}
	}
	if a.tracing != nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			a.log.Error(ctx, "Failed to shut down tracing", err)
		}
	}
}

//Personal.AI order the ending
