package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/metrics"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
	repopg "github.com/tendant/simple-cms/pkg/simplecms/repo/postgres"
	reposqlite "github.com/tendant/simple-cms/pkg/simplecms/repo/sqlite"
	fsstorage "github.com/tendant/simple-cms/pkg/simplecms/storage/fs"
	memorystorage "github.com/tendant/simple-cms/pkg/simplecms/storage/memory"
	s3storage "github.com/tendant/simple-cms/pkg/simplecms/storage/s3"
	"github.com/tendant/simple-cms/pkg/simplecms/urlstrategy"
)

// Runtime is a built service together with the collaborators callers wire
// into an HTTP server. Close releases database handles.
type Runtime struct {
	Service simplecms.Service
	URLs    urlstrategy.URLStrategy
	Metrics *metrics.Collector // nil when metrics are disabled
	Logger  *slog.Logger

	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// Build creates the service and its collaborators from the configuration.
func (c *ServerConfig) Build(ctx context.Context, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{
		URLs:   urlstrategy.NewDefaultStrategy(c.PublicBaseURL),
		Logger: logger,
	}

	repo, err := c.buildRepository(ctx, rt)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	store, err := c.buildBlobStore()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build storage backend %s: %w", c.Storage.Type, err)
	}

	options := []simplecms.Option{
		simplecms.WithRepository(repo),
		simplecms.WithBlobStore(store),
		simplecms.WithResources(c.ResourceSet()...),
		simplecms.WithLogger(logger),
	}

	if c.EnableEventLogging {
		options = append(options, simplecms.WithEventSink(simplecms.NewLoggingEventSink(logger)))
	}

	if c.EnableMetrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		collector, err := metrics.New("", reg)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.Metrics = collector
		options = append(options,
			simplecms.WithEventSink(collector),
			simplecms.WithHooks(collector.Hooks()),
		)
	}

	svc, err := simplecms.New(options...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Service = svc
	return rt, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context, rt *Runtime) (simplecms.Repository, error) {
	switch c.DatabaseType {
	case DatabaseMemory:
		return memory.New(), nil

	case DatabasePostgres:
		pool, err := OpenPostgres(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		if c.AutoMigrate {
			if _, err := MigratePostgres(ctx, pool, c.DBSchema); err != nil {
				return nil, err
			}
		}
		return repopg.NewWithPool(pool), nil

	case DatabaseSQLite:
		repo, err := reposqlite.Open(c.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = repo.Close() })
		return repo, nil

	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// buildBlobStore creates a BlobStore based on the storage configuration
func (c *ServerConfig) buildBlobStore() (simplecms.BlobStore, error) {
	switch c.Storage.Type {
	case StorageMemory:
		return memorystorage.New(), nil
	case StorageFS:
		return fsstorage.New(fsstorage.Config{BaseDir: c.Storage.BaseDir})
	case StorageS3:
		return s3storage.New(c.Storage.S3)
	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", c.Storage.Type)
	}
}

// OpenPostgres connects a pool whose sessions use schema as search_path and
// verifies connectivity.
func OpenPostgres(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		searchPath := pgx.Identifier{schema}.Sanitize()
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+searchPath)
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// MigratePostgres creates schema when missing and applies pending migrations.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool, schema string) (int, error) {
	if schema != "" {
		if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
			return 0, fmt.Errorf("create schema %s: %w", schema, err)
		}
	}
	return repopg.Migrate(ctx, pool)
}
