package database

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// ProxiedRequestMetric contains request metrics for
// a single request proxied by the rpc edge proxy
type ProxiedRequestMetric struct {
	bun.BaseModel `bun:"table:proxied_request_metrics,alias:prm"`

	ID                          int64 `bun:",pk,autoincrement"`
	MethodName                  string
	BlockNumber                 *int64
	ResponseLatencyMilliseconds float64
	Hostname                    string
	RequestIP                   string
	ResponseStatus              int
	CacheHit                    bool
	RequestTime                 time.Time
}

// SaveProxiedRequestMetric saves a single proxied request metric
// returning error (if any)
func (pg *PostgresClient) SaveProxiedRequestMetric(ctx context.Context, metric *ProxiedRequestMetric) error {
	_, err := pg.NewInsert().Model(metric).Exec(ctx)
	return err
}
