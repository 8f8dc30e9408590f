// Package main is the entry point for the coreitems server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/coreitems/internal/capability"
	"github.com/pitabwire/coreitems/internal/command"
	"github.com/pitabwire/coreitems/internal/config"
	"github.com/pitabwire/coreitems/internal/cooldown"
	"github.com/pitabwire/coreitems/internal/definition"
	"github.com/pitabwire/coreitems/internal/interaction"
	"github.com/pitabwire/coreitems/internal/inventory"
	"github.com/pitabwire/coreitems/internal/observability"
	"github.com/pitabwire/coreitems/internal/resolver"
	"github.com/pitabwire/coreitems/internal/search"
	"github.com/pitabwire/coreitems/internal/session"
	"github.com/pitabwire/coreitems/internal/transport"
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
	// Step 1: Parse CLI flags and the optional .env file.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	envFile := flag.String("env", ".env", "path to an optional dotenv file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "env file error: %v\n", err)
		return 1
	}

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
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "coreitems", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	var metrics *observability.Metrics
	var gatherer prometheus.Gatherer
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.InitMetrics(prometheus.DefaultRegisterer)
		gatherer = prometheus.DefaultGatherer
	}

	// Step 4: Load item catalogs and build the registry.
	validator, err := definition.NewValidator()
	if err != nil {
		logger.Error("item schema compilation failed", zap.Error(err))
		return 1
	}
	loader := definition.NewLoader(
		cfg.Catalogs.Root,
		cfg.Catalogs.Document,
		definition.NewParser(validator, logger),
		logger,
		definition.WithTemplateDir(cfg.Catalogs.TemplateDir),
	)
	catalogs, err := loader.Load()
	if err != nil {
		logger.Error("catalog loading failed", zap.Error(err))
		return 1
	}
	registry := definition.NewRegistry(catalogs)
	snap := registry.Snapshot()
	metrics.SetCatalogsLoaded(snap.CatalogCount(), snap.DefinitionCount())

	// Step 5: Build the matching, cooldown and tracking components.
	matcher, err := resolver.New(registry, cfg.Resolver.CacheSize, metrics, logger)
	if err != nil {
		logger.Error("resolver initialization failed", zap.Error(err))
		return 1
	}
	cooldowns := cooldown.New(cooldown.SettingsFrom(cfg.ItemInteractions), cooldown.WithMetrics(metrics))
	tracker := inventory.NewTracker(matcher, metrics)
	sessions := session.NewRegistry()

	// Step 6: Initialize the inventory store (optional).
	store, err := buildInventoryStore(ctx, cfg.PlayerData, logger)
	if err != nil {
		logger.Error("inventory store initialization failed", zap.Error(err))
		return 1
	}

	// Step 7: Build the host bridge and command dispatcher.
	var hub *transport.Hub
	if cfg.Host.Enabled {
		hub = transport.NewHub(cfg.Host, metrics, logger)
	}
	dispatcher, dispatcherCloser, err := buildDispatcher(cfg.Commands, hub, logger)
	if err != nil {
		logger.Error("command dispatcher initialization failed", zap.Error(err))
		return 1
	}

	// Step 8: Initialize idempotency store (optional).
	idempotencyStore, idempotencyCloser, err := buildIdempotencyStore(cfg.Idempotency, logger)
	if err != nil {
		logger.Error("idempotency store initialization failed", zap.Error(err))
		return 1
	}

	// Step 9: Initialize capability resolver and authentication.
	capResolver, err := buildCapabilityResolver(cfg.Capability, metrics)
	if err != nil {
		logger.Error("capability resolver initialization failed", zap.Error(err))
		return 1
	}
	authenticate, err := buildAuthenticator(cfg.Identity, logger)
	if err != nil {
		logger.Error("authentication initialization failed", zap.Error(err))
		return 1
	}

	// Step 10: Build the interaction service and restore saved counts. A
	// reload re-reads the config file and reconfigures the auto-scan.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	var scanner *inventory.AutoScanner
	configureScan := func(_ context.Context, c *config.Config) {
		if scanner != nil {
			scanner.Configure(bgCtx, c.PlayerData.Enabled && c.PlayerData.AutoScan.Enabled, c.PlayerData.AutoScan.Interval)
		}
	}
	opts := []interaction.Option{
		interaction.WithMetrics(metrics),
		interaction.WithLogger(logger),
		interaction.WithConfigSource(func() (*config.Config, error) { return config.Load(*configPath) }, configureScan),
	}
	if store != nil {
		opts = append(opts, interaction.WithStore(store))
	}
	service := interaction.NewService(loader, registry, matcher, cooldowns, tracker, sessions, dispatcher, opts...)
	if err := service.Restore(ctx); err != nil {
		logger.Error("inventory restore failed", zap.Error(err))
		return 1
	}

	prompts := search.NewPrompts(registry, cfg.Search.PromptTimeout)
	if hub != nil {
		hub.Bind(service, prompts)
	}

	// Step 11: Build HTTP router.
	readiness := observability.ReadinessChecks{Catalogs: registry.Counts}
	if hc, ok := store.(observability.HealthChecker); ok {
		readiness.InventoryStore = hc
	}
	if hc, ok := dispatcher.(observability.HealthChecker); ok {
		readiness.CommandBus = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:             cfg,
		Authenticate:       authenticate,
		CapabilityResolver: capResolver,
		Service:            service,
		Registry:           registry,
		Tracker:            tracker,
		Idempotency:        idempotencyStore,
		IdempotencyTTL:     cfg.Idempotency.TTL,
		Hub:                hub,
		Metrics:            metrics,
		Gatherer:           gatherer,
		Readiness:          readiness,
		Logger:             logger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 12: Start background tasks.
	if store != nil {
		scanner = inventory.NewAutoScanner(service, logger)
		configureScan(bgCtx, cfg)
		defer scanner.Stop()
	}

	// Step 13: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("catalogs", snap.CatalogCount()),
		zap.Int("items", snap.DefinitionCount()),
		zap.String("dispatcher", dispatcher.Name()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		exitCode = 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Cancel background tasks.
	if scanner != nil {
		scanner.Stop()
	}
	bgCancel()

	// Persist counts one last time, then close stores.
	if err := service.Save(shutdownCtx); err != nil {
		logger.Error("final inventory save failed", zap.Error(err))
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("inventory store close error", zap.Error(err))
		}
	}
	if dispatcherCloser != nil {
		dispatcherCloser()
	}
	if idempotencyCloser != nil {
		idempotencyCloser()
	}

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return exitCode
}

// buildInventoryStore creates the inventory store based on config.
// Returns a nil store if player data persistence is disabled.
func buildInventoryStore(ctx context.Context, cfg config.PlayerDataConfig, logger *zap.Logger) (inventory.Store, error) {
	if !cfg.Enabled {
		logger.Info("player data persistence disabled")
		return nil, nil
	}

	switch cfg.Store.Driver {
	case "file", "":
		logger.Info("using file inventory store", zap.String("path", cfg.Store.Path))
		return inventory.NewFileStore(cfg.Store.Path, logger), nil
	case "memory":
		logger.Info("using in-memory inventory store")
		return inventory.NewMemoryStore(), nil
	case "sqlite":
		store, err := inventory.OpenSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite inventory store", zap.String("path", cfg.Store.Path))
		return store, nil
	case "postgres":
		dsn := os.Getenv(cfg.Store.DSNEnv)
		if dsn == "" {
			return nil, fmt.Errorf("inventory store: %s environment variable not set", cfg.Store.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("inventory store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.Store.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.Store.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.Store.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("inventory store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("inventory store: ping: %w", err)
		}

		store := inventory.NewPgStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("inventory store: migrate: %w", err)
		}
		logger.Info("using postgres inventory store")
		return store, nil
	case "redis":
		client, err := redisClient(ctx, cfg.Store.AddrEnv, cfg.Store.DB)
		if err != nil {
			return nil, fmt.Errorf("inventory store: %w", err)
		}
		logger.Info("using redis inventory store", zap.String("prefix", cfg.Store.KeyPrefix))
		return inventory.NewRedisStore(client, cfg.Store.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported inventory store driver: %q", cfg.Store.Driver)
	}
}

// buildDispatcher creates the command dispatcher based on config.
func buildDispatcher(cfg config.CommandsConfig, hub *transport.Hub, logger *zap.Logger) (command.Dispatcher, func(), error) {
	switch cfg.Dispatcher {
	case "log", "":
		return command.NewLogDispatcher(logger), nil, nil
	case "host":
		if hub == nil {
			return nil, nil, fmt.Errorf("host dispatcher requires the host bridge to be enabled")
		}
		return withBreaker(command.NewHostDispatcher(hub), cfg.Breaker), nil, nil
	case "redis":
		client, err := redisClient(context.Background(), cfg.AddrEnv, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("redis dispatcher: %w", err)
		}
		logger.Info("publishing commands to redis", zap.String("channel", cfg.Channel))
		d := withBreaker(command.NewRedisDispatcher(client, cfg.Channel), cfg.Breaker)
		return d, func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported command dispatcher: %q", cfg.Dispatcher)
	}
}

// withBreaker wraps d in a circuit breaker unless it is disabled.
func withBreaker(d command.Dispatcher, cfg config.BreakerConfig) command.Dispatcher {
	if cfg.FailureThreshold <= 0 {
		return d
	}
	return command.NewBreakerDispatcher(d, command.BreakerSettings{
		FailureThreshold: cfg.FailureThreshold,
		SuccessThreshold: cfg.SuccessThreshold,
		OpenTimeout:      cfg.OpenTimeout,
	})
}

// buildIdempotencyStore creates the idempotency store based on config.
func buildIdempotencyStore(cfg config.IdempotencyConfig, logger *zap.Logger) (command.IdempotencyStore, func(), error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}

	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory idempotency store")
		return command.NewMemoryIdempotencyStore(), nil, nil
	case "redis":
		client, err := redisClient(context.Background(), cfg.AddrEnv, cfg.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("idempotency store: %w", err)
		}
		logger.Info("using redis idempotency store")
		return command.NewRedisIdempotencyStore(client), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported idempotency store driver: %q", cfg.Driver)
	}
}

// buildCapabilityResolver creates the resolver from the policy file, or
// from the built-in roles when no file is configured.
func buildCapabilityResolver(cfg config.CapabilityConfig, metrics *observability.Metrics) (*capability.Resolver, error) {
	var evaluator *capability.StaticPolicyEvaluator
	if cfg.StaticPolicyFile == "" {
		evaluator = capability.NewStaticPolicy(capability.DefaultRoles())
	} else {
		var err error
		evaluator, err = capability.NewStaticPolicyEvaluator(cfg.StaticPolicyFile)
		if err != nil {
			return nil, fmt.Errorf("static policy: %w", err)
		}
	}
	return capability.NewResolver(evaluator, cfg.Cache.TTL, cfg.Cache.MaxEntries, metrics), nil
}

// buildAuthenticator returns nil when identity verification is disabled.
func buildAuthenticator(cfg config.IdentityConfig, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	if !cfg.Enabled {
		logger.Warn("identity verification disabled, trusting every caller as local")
		return nil, nil
	}
	secret := os.Getenv(cfg.SecretEnv)
	if secret == "" {
		return nil, fmt.Errorf("%s environment variable not set", cfg.SecretEnv)
	}
	return transport.HMACAuthenticator(cfg, []byte(secret)), nil
}

func redisClient(ctx context.Context, addrEnv string, db int) (*redis.Client, error) {
	addr := os.Getenv(addrEnv)
	if addr == "" {
		return nil, fmt.Errorf("%s environment variable not set", addrEnv)
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}
