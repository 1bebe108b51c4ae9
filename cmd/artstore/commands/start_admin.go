package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/pkg/admin"
	adminapi "github.com/artstore/artstore/pkg/admin/api"
	"github.com/artstore/artstore/pkg/admin/keys"
	adminstore "github.com/artstore/artstore/pkg/admin/store"
	"github.com/artstore/artstore/pkg/api"
	"github.com/artstore/artstore/pkg/auth"
	"github.com/artstore/artstore/pkg/events"
	"github.com/artstore/artstore/pkg/metrics"
	"github.com/artstore/artstore/pkg/registry"
)

var startAdminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Start the admin module",
	Long: `Start the admin module.

The admin module owns the storage-element registry, admin users and
service accounts, JWT signing keys and their rotation, and publishes the
topology snapshot other services route by.

On first start a system admin user is created and its generated password
printed once. Set ARTSTORE_ADMIN_INITIAL_PASSWORD to choose it instead.`,
	RunE: runStartAdmin,
}

func runStartAdmin(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, telemetryShutdown, err := bootstrap(ctx, "admin")
	if err != nil {
		return err
	}
	defer telemetryShutdown()

	if err := cfg.Admin.Validate(); err != nil {
		return fmt.Errorf("invalid admin configuration: %w", err)
	}

	reg := metrics.NewRegistry(cfg.Metrics)
	rotationMetrics := metrics.NewRotationMetrics(reg)

	adminStore, err := adminstore.New(&cfg.Admin.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize admin store: %w", err)
	}
	defer func() { _ = adminStore.Close() }()

	adminPassword, err := adminStore.EnsureSystemAdmin(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure system admin: %w", err)
	}
	if adminPassword != "" {
		logger.Info("System admin created", "username", adminstore.SystemAdminUsername)
		fmt.Printf("\n*** IMPORTANT: System admin created with password: %s ***\n", adminPassword)
		fmt.Println("Please save this password. It will not be shown again.")
		fmt.Println()
	}

	redisClient, err := registry.NewClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()

	provider := keys.NewProvider(adminStore, 0)
	rotator := keys.NewRotator(adminStore, redisClient, cfg.Admin.Rotation, keys.RotatorOptions{
		Provider: provider,
		Metrics:  rotationMetrics,
	})
	if err := rotator.EnsureKey(ctx); err != nil {
		return fmt.Errorf("failed to bootstrap signing key: %w", err)
	}

	issuer := auth.NewIssuer(provider, cfg.Auth.Issuer)
	verifier := auth.NewVerifier(provider, cfg.Auth.Verifier)
	topology := admin.NewTopology(adminStore, redisClient, cfg.Admin.Topology)
	producer := events.NewProducer(redisClient, cfg.Events.Producer)
	audit := admin.NewAuditWriter(adminStore, 0)

	router := adminapi.NewRouter(adminapi.RouterOptions{
		Store:    adminStore,
		Issuer:   issuer,
		Verifier: verifier,
		Topology: topology,
		Provider: provider,
		Rotator:  rotator,
		Producer: producer,
		Audit:    audit,
		ReadinessChecks: []api.ReadinessCheck{
			{Name: "database", Check: adminStore.Ping},
			{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		},
		RequestTimeout: cfg.Admin.API.RequestTimeout,
	})

	logger.Info("Admin module initialized",
		"database", string(cfg.Admin.Database.Type),
		"port", cfg.Admin.API.Port)

	components := []component{
		{name: "api", run: api.NewServer("admin", cfg.Admin.API, router).Start},
		{name: "rotator", run: rotator.Run},
		{name: "topology", run: topology.Run},
		{name: "audit", run: audit.Run},
	}
	if metricsServer := metrics.NewServer("admin", cfg.Metrics, reg); metricsServer != nil {
		logger.Info("Metrics enabled", "port", metricsServer.Port())
		components = append(components, component{name: "metrics", run: metricsServer.Start})
	} else {
		logger.Info("Metrics collection disabled")
	}

	return runComponents(ctx, cfg.ShutdownTimeout, components...)
}
