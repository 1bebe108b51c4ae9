package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/pkg/api"
	"github.com/artstore/artstore/pkg/auth"
	"github.com/artstore/artstore/pkg/events"
	"github.com/artstore/artstore/pkg/metrics"
	"github.com/artstore/artstore/pkg/query"
	querystore "github.com/artstore/artstore/pkg/query/store"
	"github.com/artstore/artstore/pkg/ratelimit"
	"github.com/artstore/artstore/pkg/registry"
)

var startQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Start the query service",
	Long: `Start the query service.

The query service consumes file lifecycle events into a PostgreSQL
full-text index and serves search, file lookup, and download redirects
to the owning storage element. Database migrations run automatically
on startup.`,
	RunE: runStartQuery,
}

func runStartQuery(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, telemetryShutdown, err := bootstrap(ctx, "query")
	if err != nil {
		return err
	}
	defer telemetryShutdown()

	if err := cfg.Query.Validate(); err != nil {
		return fmt.Errorf("invalid query configuration: %w", err)
	}

	reg := metrics.NewRegistry(cfg.Metrics)
	eventMetrics := metrics.NewEventMetrics(reg)
	rateLimitMetrics := metrics.NewRateLimitMetrics(reg)

	if err := querystore.Migrate(ctx, cfg.Query.Store); err != nil {
		return fmt.Errorf("query store migration failed: %w", err)
	}
	store, err := querystore.Open(ctx, cfg.Query.Store)
	if err != nil {
		return fmt.Errorf("failed to open query store: %w", err)
	}
	defer store.Close()

	redisClient, err := registry.NewClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()

	// Blocking XREADGROUP calls get their own connection so they never
	// starve topology and rate-limit traffic.
	streamClient, err := registry.NewClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = streamClient.Close() }()

	topology := registry.NewSubscriber(redisClient, nil)
	if err := topology.Hydrate(ctx); err != nil {
		logger.Warn("topology hydration failed, waiting for next publication", logger.Err(err))
	}

	indexer := query.NewIndexer(store, eventMetrics)
	consumer := events.NewConsumer(streamClient, cfg.Query.Consumer, indexer.Handle)

	keyManager, err := auth.NewKeyManager(cfg.Auth.Keys)
	if err != nil {
		return fmt.Errorf("failed to load JWT keys: %w", err)
	}
	verifier := auth.NewVerifier(keyManager, cfg.Auth.Verifier)
	limiter := ratelimit.NewLimiter(redisClient, cfg.Query.RateLimit)

	router := query.NewRouter(query.RouterOptions{
		Handler:          query.NewHandler(store, topology),
		Verifier:         verifier,
		Limiter:          limiter,
		RateLimitMetrics: rateLimitMetrics,
		ReadinessChecks: []api.ReadinessCheck{
			{Name: "postgres", Check: store.Ping},
			{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		},
		RequestTimeout: cfg.Query.API.RequestTimeout,
	})

	logger.Info("Query service initialized",
		"database", cfg.Query.Store.Database,
		"stream", cfg.Query.Consumer.Stream,
		"group", cfg.Query.Consumer.Group,
		"port", cfg.Query.API.Port)

	components := []component{
		{name: "api", run: api.NewServer("query", cfg.Query.API, router).Start},
		{name: "consumer", run: consumer.Run},
		{name: "topology", run: topology.Run},
	}
	if metricsServer := metrics.NewServer("query", cfg.Metrics, reg); metricsServer != nil {
		logger.Info("Metrics enabled", "port", metricsServer.Port())
		components = append(components, component{name: "metrics", run: metricsServer.Start})
	} else {
		logger.Info("Metrics collection disabled")
	}
	if cfg.Auth.Keys.PrivateKeyPath != "" || cfg.Auth.Keys.PublicKeyPath != "" {
		components = append(components, component{name: "key-watcher", run: keyManager.Watch})
	}

	return runComponents(ctx, cfg.ShutdownTimeout, components...)
}
