package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rotisserie/eris"

	"github.com/sells-group/company-research/internal/db"
)

// pgQueries implements Queries over a pool or a transaction.
type pgQueries struct {
	q db.Querier
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pgQueries
	pool    db.Pool
	raw     *pgxpool.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool, pool), nil
}

func newPostgresStore(pool db.Pool, raw *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pgQueries: pgQueries{q: pool}, pool: pool, raw: raw, closeFn: pool.Close}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Migrate applies the embedded goose migrations through a database/sql
// handle borrowed from the pool.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if s.raw == nil {
		return eris.New("postgres: migrate requires a pgxpool connection")
	}
	sqlDB := stdlib.OpenDBFromPool(s.raw)
	defer sqlDB.Close() //nolint:errcheck
	return eris.Wrap(runMigrations(ctx, goose.DialectPostgres, sqlDB, "migrations/postgres"), "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Begin opens a task session on its own pooled connection.
func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin")
	}
	return &pgTx{pgQueries: pgQueries{q: tx}, tx: tx}, nil
}

type pgTx struct {
	pgQueries
	tx pgx.Tx
}

func (t *pgTx) Commit(ctx context.Context) error {
	return eris.Wrap(t.tx.Commit(ctx), "postgres: commit")
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err == nil || errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return eris.Wrap(err, "postgres: rollback")
}

func checkTag(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return notFound(entity, id)
	}
	return nil
}
