// Package infrastructure opens the PostgreSQL pool shared by the
// notification store and River.
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"go.uber.org/zap"

	"smartspray.io/notifier/internal/config"
	"smartspray.io/notifier/internal/pkg/logger"
	"smartspray.io/notifier/internal/repository"
)

const defaultRiverWorkers = 10

// DatabaseClients holds the pool and, once initialized, the River client
// that enqueues and works jobs on the same pool.
type DatabaseClients struct {
	Pool        *pgxpool.Pool
	RiverClient *river.Client[pgx.Tx]
}

// NewDatabaseClients connects to PostgreSQL and verifies the connection.
func NewDatabaseClients(ctx context.Context, cfg config.DatabaseConfig) (*DatabaseClients, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info("Postgres pool ready",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.Int32("max_conns", pc.MaxConns),
	)
	return &DatabaseClients{Pool: pool}, nil
}

func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.HealthCheckPeriod = time.Minute
	// Retention cutoffs are computed in UTC by the store.
	pc.ConnConfig.RuntimeParams["timezone"] = "UTC"
	return pc, nil
}

// AutoMigrate applies the notifier schema, then River's queue tables.
func (c *DatabaseClients) AutoMigrate(ctx context.Context) error {
	if err := repository.MigratePostgres(ctx, c.Pool); err != nil {
		return err
	}

	migrator, err := rivermigrate.New(riverpgxv5.New(c.Pool), nil)
	if err != nil {
		return fmt.Errorf("river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("river migrate: %w", err)
	}
	logger.Info("Schema migrated", zap.Int("river_versions_applied", len(res.Versions)))
	return nil
}

// InitRiverClient builds the River client. It does not start it.
func (c *DatabaseClients) InitRiverClient(workers *river.Workers, periodic []*river.PeriodicJob, cfg config.RiverConfig) error {
	n := cfg.MaxWorkers
	if n <= 0 {
		n = defaultRiverWorkers
	}
	client, err := river.NewClient(riverpgxv5.New(c.Pool), &river.Config{
		Queues:                      map[string]river.QueueConfig{river.QueueDefault: {MaxWorkers: n}},
		Workers:                     workers,
		PeriodicJobs:                periodic,
		CompletedJobRetentionPeriod: cfg.CompletedJobRetentionPeriod,
	})
	if err != nil {
		return fmt.Errorf("river client: %w", err)
	}
	c.RiverClient = client
	return nil
}

// Close releases the pool. Safe on a nil receiver.
func (c *DatabaseClients) Close() {
	if c != nil && c.Pool != nil {
		c.Pool.Close()
	}
}
