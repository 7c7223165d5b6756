// package database provides client methods for storing
// proxied request metrics emitted by the rpc edge proxy
package database

import (
	"context"

	"github.com/edgerelay/rpc-edge-proxy/config"
	"github.com/edgerelay/rpc-edge-proxy/logging"
)

// MetricsDatabase is the interface the service uses to persist
// proxied request metrics out of band of the request-response cycle
type MetricsDatabase interface {
	SaveProxiedRequestMetric(ctx context.Context, metric *ProxiedRequestMetric) error
	HealthCheck() error
}

// New returns a metrics database for the provided config:
// a postgres backed client when the metric database is enabled,
// otherwise a client that does nothing
func New(ctx context.Context, cfg config.Config, logger *logging.ServiceLogger) (MetricsDatabase, error) {
	if !cfg.MetricDatabaseEnabled {
		logger.Info().Msg("metric database is disabled, request metrics will not be persisted")
		return NewNoop(), nil
	}

	client, err := NewPostgresClient(PostgresDatabaseConfig{
		DatabaseName:        cfg.DatabaseName,
		DatabaseEndpointURL: cfg.DatabaseEndpointURL,
		DatabaseUsername:    cfg.DatabaseUserName,
		DatabasePassword:    cfg.DatabasePassword,
		ReadTimeoutSeconds:  cfg.DatabaseReadTimeoutSeconds,
		SSLEnabled:          cfg.DatabaseSSLEnabled,
		QueryLoggingEnabled: cfg.DatabaseQueryLoggingEnabled,
		Logger:              logger,
	})
	if err != nil {
		return nil, err
	}

	if err := client.CreateTables(ctx); err != nil {
		return nil, err
	}

	return &client, nil
}

// Noop is a metrics database client that does nothing,
// used when the metric database is disabled
type Noop struct{}

var _ MetricsDatabase = (*Noop)(nil)

func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) SaveProxiedRequestMetric(ctx context.Context, metric *ProxiedRequestMetric) error {
	return nil
}

func (n *Noop) HealthCheck() error {
	return nil
}
