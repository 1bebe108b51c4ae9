// Package metrics exposes Prometheus instrumentation for the ArtStore
// services.
//
// Every constructor takes a prometheus.Registerer and returns nil when
// handed a nil one; all observation methods are nil-receiver safe, so
// callers never branch on whether metrics are enabled:
//
//	uploads := metrics.NewUploadMetrics(reg) // reg may be nil
//	uploads.Observe(metrics.UploadCommitted, size, time.Since(start))
package metrics

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artstore/artstore/pkg/api"
)

const namespace = "artstore"

// Config controls whether metrics are collected and where they are served.
type Config struct {
	// Enabled defaults to false: metrics are opt-in.
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`

	// Port for the dedicated /metrics listener.
	Port int `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// IsEnabled reports whether metrics collection is turned on.
func (c *Config) IsEnabled() bool {
	return c.Enabled != nil && *c.Enabled
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 9090
	}
}

// NewRegistry returns a registry pre-loaded with the standard process and
// Go runtime collectors, or nil when metrics are disabled. A nil registry
// flows through every constructor in this package.
func NewRegistry(config Config) *prometheus.Registry {
	if !config.IsEnabled() {
		return nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewServer returns the dedicated metrics listener serving GET /metrics,
// or nil when metrics are disabled.
func NewServer(service string, config Config, reg *prometheus.Registry) *api.Server {
	if reg == nil {
		return nil
	}
	config.ApplyDefaults()

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	enabled := true
	serverConfig := api.ServerConfig{Enabled: &enabled, Port: config.Port}
	serverConfig.ApplyDefaults()
	return api.NewServer(fmt.Sprintf("%s-metrics", service), serverConfig, router)
}

// Handler returns the scrape handler for embedding into an existing router,
// or a 404 handler when metrics are disabled.
func Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
