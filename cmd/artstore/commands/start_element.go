package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/pkg/api"
	"github.com/artstore/artstore/pkg/auth"
	"github.com/artstore/artstore/pkg/config"
	"github.com/artstore/artstore/pkg/element"
	elementapi "github.com/artstore/artstore/pkg/element/api"
	"github.com/artstore/artstore/pkg/element/cache"
	"github.com/artstore/artstore/pkg/element/mode"
	"github.com/artstore/artstore/pkg/element/wal"
	"github.com/artstore/artstore/pkg/events"
	"github.com/artstore/artstore/pkg/metrics"
	"github.com/artstore/artstore/pkg/registry"
)

var startElementCmd = &cobra.Command{
	Use:   "element",
	Short: "Start a storage element",
	Long: `Start a storage element.

A storage element owns one storage backend (local filesystem or S3), runs
the write-ahead log that makes uploads atomic, and reports itself to the
topology registry so ingesters and the query service can route to it.

On startup the element replays any transactions interrupted by a crash
before accepting traffic.`,
	RunE: runStartElement,
}

func runStartElement(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, telemetryShutdown, err := bootstrap(ctx, "element")
	if err != nil {
		return err
	}
	defer telemetryShutdown()

	if err := cfg.Element.Validate(); err != nil {
		return fmt.Errorf("invalid element configuration: %w", err)
	}

	reg := metrics.NewRegistry(cfg.Metrics)
	uploadMetrics := metrics.NewUploadMetrics(reg)
	walMetrics := metrics.NewWALMetrics(reg)

	backend, err := config.CreateBackend(ctx, cfg.Element.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	defer func() { _ = backend.Close() }()

	walStore, err := wal.Open(cfg.Element.WALPath)
	if err != nil {
		return fmt.Errorf("failed to open write-ahead log: %w", err)
	}
	defer func() { _ = walStore.Close() }()

	cacheStore, err := cache.Open(cfg.Element.CachePath)
	if err != nil {
		return fmt.Errorf("failed to open metadata cache: %w", err)
	}
	defer func() { _ = cacheStore.Close() }()

	redisClient, err := registry.NewClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()

	// The reporter is created after the mode manager because it needs the
	// service; no transition can fire before the assignment below since the
	// API is not serving yet.
	var reporter *element.Reporter
	modes := mode.NewManager(cfg.Element.InitialMode(), func(change mode.Change) {
		if reporter == nil {
			return
		}
		publishCtx, publishCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer publishCancel()
		if err := reporter.PublishNow(publishCtx); err != nil {
			logger.Warn("mode change publication failed",
				"from", string(change.From), "to", string(change.To), logger.Err(err))
		}
	})

	producer := events.NewProducer(redisClient, cfg.Events.Producer)
	service := element.NewService(cfg.Element.ID, backend, walStore, cacheStore, modes, element.ServiceOptions{
		Producer:      producer,
		UploadMetrics: uploadMetrics,
		WALMetrics:    walMetrics,
	})

	if _, err := service.Recover(ctx); err != nil {
		return fmt.Errorf("WAL recovery failed: %w", err)
	}

	keyManager, err := auth.NewKeyManager(cfg.Auth.Keys)
	if err != nil {
		return fmt.Errorf("failed to load JWT keys: %w", err)
	}
	verifier := auth.NewVerifier(keyManager, cfg.Auth.Verifier)

	elements := registry.NewElementRegistry(redisClient)
	reporter = element.NewReporter(service, elements, cfg.Element.Identity(), cfg.Element.Report)
	if err := reporter.PublishNow(ctx); err != nil {
		return fmt.Errorf("initial registry publication failed: %w", err)
	}

	// Mode changes made through the admin module arrive as topology
	// snapshots; the element adopts them when the transition is legal.
	elementID := cfg.Element.ID
	topology := registry.NewSubscriber(redisClient, func(snapshot registry.TopologySnapshot) {
		for _, info := range snapshot.StorageElements {
			if info.ElementID == elementID {
				modes.Adopt(info.Mode, "admin topology push")
				return
			}
		}
	})
	if err := topology.Hydrate(ctx); err != nil {
		logger.Warn("topology hydration failed, waiting for next publication", logger.Err(err))
	}

	reconciler := cache.NewReconciler(cacheStore, backend)

	router := elementapi.NewRouter(elementapi.RouterOptions{
		Service:    service,
		Reconciler: reconciler,
		Verifier:   verifier,
		ReadinessChecks: []api.ReadinessCheck{
			{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
			{Name: "cache", Check: cacheStore.Ping},
			{Name: "storage", Check: backend.HealthCheck},
		},
		RequestTimeout: cfg.Element.API.RequestTimeout,
	})

	logger.Info("Storage element initialized",
		"element_id", cfg.Element.ID,
		"mode", string(modes.Current()),
		"storage_type", cfg.Element.Storage.Type,
		"port", cfg.Element.API.Port)

	components := []component{
		{name: "api", run: api.NewServer("element", cfg.Element.API, router).Start},
		{name: "reporter", run: reporter.Run},
		{name: "topology", run: topology.Run},
	}
	if metricsServer := metrics.NewServer("element", cfg.Metrics, reg); metricsServer != nil {
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
