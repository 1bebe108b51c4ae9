package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/pkg/api"
	"github.com/artstore/artstore/pkg/apiclient"
	"github.com/artstore/artstore/pkg/auth"
	"github.com/artstore/artstore/pkg/ingester"
	"github.com/artstore/artstore/pkg/metrics"
	"github.com/artstore/artstore/pkg/ratelimit"
	"github.com/artstore/artstore/pkg/registry"
)

var startIngesterCmd = &cobra.Command{
	Use:   "ingester",
	Short: "Start the ingester",
	Long: `Start the ingester.

The ingester is the write entrypoint: it authenticates upload requests,
picks the best storage element from the live topology, streams the file
through, and registers the result with the admin module using its own
service-account credentials.`,
	RunE: runStartIngester,
}

func runStartIngester(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, telemetryShutdown, err := bootstrap(ctx, "ingester")
	if err != nil {
		return err
	}
	defer telemetryShutdown()

	if err := cfg.Ingester.Validate(); err != nil {
		return fmt.Errorf("invalid ingester configuration: %w", err)
	}

	reg := metrics.NewRegistry(cfg.Metrics)
	uploadMetrics := metrics.NewUploadMetrics(reg)
	selectorMetrics := metrics.NewSelectorMetrics(reg)
	rateLimitMetrics := metrics.NewRateLimitMetrics(reg)

	redisClient, err := registry.NewClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()

	keyManager, err := auth.NewKeyManager(cfg.Auth.Keys)
	if err != nil {
		return fmt.Errorf("failed to load JWT keys: %w", err)
	}
	verifier := auth.NewVerifier(keyManager, cfg.Auth.Verifier)

	adminClient := apiclient.New(cfg.Ingester.AdminURL)
	registrar := adminClient.WithTokenSource(
		apiclient.NewTokenSource(adminClient, cfg.Ingester.ClientID, cfg.Ingester.ClientSecret))

	elements := registry.NewElementRegistry(redisClient)
	handler := ingester.NewUploadHandler(
		ingester.NewSelector(elements, selectorMetrics),
		ingester.NewForwarder(),
		registrar,
		uploadMetrics,
	)
	if cfg.Ingester.MaxUploadSize > 0 {
		handler.SetMaxUploadSize(cfg.Ingester.MaxUploadSize.Int64())
	}

	limiter := ratelimit.NewLimiter(redisClient, cfg.Ingester.RateLimit)

	router := ingester.NewRouter(ingester.RouterOptions{
		Handler:          handler,
		Verifier:         verifier,
		Limiter:          limiter,
		RateLimitMetrics: rateLimitMetrics,
		ReadinessChecks: []api.ReadinessCheck{
			{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		},
		RequestTimeout: cfg.Ingester.API.RequestTimeout,
	})

	logger.Info("Ingester initialized",
		"admin_url", cfg.Ingester.AdminURL,
		"port", cfg.Ingester.API.Port)

	components := []component{
		{name: "api", run: api.NewServer("ingester", cfg.Ingester.API, router).Start},
	}
	if metricsServer := metrics.NewServer("ingester", cfg.Metrics, reg); metricsServer != nil {
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
