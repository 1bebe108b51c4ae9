package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/artstore/artstore/internal/logger"
	"github.com/artstore/artstore/internal/telemetry"
	"github.com/artstore/artstore/pkg/config"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// bootstrap loads configuration and brings up the ambient stack shared by
// every service: structured logging, OpenTelemetry tracing, and Pyroscope
// profiling. The returned shutdown function flushes telemetry and must be
// called before the process exits.
func bootstrap(ctx context.Context, service string) (*config.Config, func(), error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, nil, err
	}

	if err := InitLogger(cfg); err != nil {
		return nil, nil, err
	}

	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "artstore-" + service,
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "artstore-" + service,
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		_ = telemetryShutdown(ctx)
		return nil, nil, fmt.Errorf("failed to initialize profiling: %w", err)
	}

	fmt.Printf("ArtStore %s - content-addressed artifact storage\n", service)
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	} else {
		logger.Info("Profiling disabled")
	}

	shutdown := func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}
	return cfg, shutdown, nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// component is one long-running piece of a service. run must block until
// ctx is cancelled or the component fails.
type component struct {
	name string
	run  func(ctx context.Context) error
}

// runComponents starts every component in its own goroutine and blocks until
// a shutdown signal arrives or any component stops. On either event the
// shared context is cancelled and the remaining components get
// shutdownTimeout to drain before the process gives up on them.
func runComponents(ctx context.Context, shutdownTimeout time.Duration, components ...component) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		name string
		err  error
	}
	results := make(chan result, len(components))

	var wg sync.WaitGroup
	for _, c := range components {
		wg.Add(1)
		go func(c component) {
			defer wg.Done()
			results <- result{name: c.name, err: c.run(ctx)}
		}(c)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Service is running. Press Ctrl+C to stop.")

	var firstErr error
	record := func(res result) {
		if res.err == nil || errors.Is(res.err, context.Canceled) {
			logger.Info("Component stopped", "component", res.name)
			return
		}
		logger.Error("Component stopped with error", "component", res.name, "error", res.err)
		if firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", res.name, res.err)
		}
	}

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown", "signal", sig.String())
	case res, ok := <-results:
		if ok {
			record(res)
		}
	}
	cancel()

	timer := time.NewTimer(shutdownTimeout)
	defer timer.Stop()

	for {
		select {
		case res, ok := <-results:
			if !ok {
				if firstErr == nil {
					logger.Info("Service stopped gracefully")
				}
				return firstErr
			}
			record(res)
		case <-timer.C:
			logger.Warn("Shutdown timeout exceeded, exiting", "timeout", shutdownTimeout)
			if firstErr == nil {
				firstErr = fmt.Errorf("shutdown timeout exceeded after %s", shutdownTimeout)
			}
			return firstErr
		}
	}
}
