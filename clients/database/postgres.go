package database

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/edgerelay/rpc-edge-proxy/logging"
)

// PostgresDatabaseConfig contains values for creating a
// new connection to a postgres database
type PostgresDatabaseConfig struct {
	DatabaseName        string
	DatabaseEndpointURL string
	DatabaseUsername    string
	DatabasePassword    string
	ReadTimeoutSeconds  int64
	SSLEnabled          bool
	QueryLoggingEnabled bool
	Logger              *logging.ServiceLogger
}

// PostgresClient wraps a connection to a postgres database
type PostgresClient struct {
	*bun.DB
}

var _ MetricsDatabase = (*PostgresClient)(nil)

// NewPostgresClient returns a new connection to the specified
// postgres database and error (if any)
func NewPostgresClient(config PostgresDatabaseConfig) (PostgresClient, error) {
	var pgOptions *pgdriver.Connector

	if config.SSLEnabled {
		pgOptions = pgdriver.NewConnector(
			pgdriver.WithAddr(config.DatabaseEndpointURL),
			pgdriver.WithUser(config.DatabaseUsername),
			pgdriver.WithTLSConfig(&tls.Config{InsecureSkipVerify: false}),
			pgdriver.WithPassword(config.DatabasePassword),
			pgdriver.WithDatabase(config.DatabaseName),
			pgdriver.WithReadTimeout(time.Second*time.Duration(config.ReadTimeoutSeconds)),
		)
	} else {
		pgOptions = pgdriver.NewConnector(
			pgdriver.WithAddr(config.DatabaseEndpointURL),
			pgdriver.WithUser(config.DatabaseUsername),
			pgdriver.WithInsecure(true),
			pgdriver.WithPassword(config.DatabasePassword),
			pgdriver.WithDatabase(config.DatabaseName),
			pgdriver.WithReadTimeout(time.Second*time.Duration(config.ReadTimeoutSeconds)),
		)
	}

	config.Logger.Debug().Msg(fmt.Sprintf("creating database client with options %+v", pgOptions.Config()))

	sqldb := sql.OpenDB(pgOptions)

	db := bun.NewDB(sqldb, pgdialect.New())

	// set up query logging on the database if requested
	if config.QueryLoggingEnabled {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	return PostgresClient{
		DB: db,
	}, nil
}

// CreateTables creates the tables used by the proxy service
// if they do not already exist
func (pg *PostgresClient) CreateTables(ctx context.Context) error {
	_, err := pg.NewCreateTable().
		Model((*ProxiedRequestMetric)(nil)).
		IfNotExists().
		Exec(ctx)

	return err
}

// HealthCheck returns an error if the database can not
// be connected to and queried, nil otherwise
func (pg *PostgresClient) HealthCheck() error {
	_, err := pg.Query(`SELECT 1;`)
	return err
}
