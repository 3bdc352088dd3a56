// Package postgres implements the PostgreSQL persistence layer: projects with
// their step ledger and audit trail, workflow templates and the badge
// catalogue with per-student badge sets.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/alem-hub/alem-missions/pkg/logger"
	"github.com/alem-hub/alem-missions/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrConnectionClosed indicates the connection pool is closed.
	ErrConnectionClosed = errors.New("postgres: connection pool is closed")

	// ErrMigrationFailed indicates a migration failure.
	ErrMigrationFailed = errors.New("postgres: migration failed")
)

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION POOL
// ══════════════════════════════════════════════════════════════════════════════

// Config holds PostgreSQL connection configuration.
type Config struct {
	// DSN is a postgres:// URL or a key=value connection string.
	DSN string

	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration

	// ConnectTimeout bounds each connection attempt at startup.
	ConnectTimeout time.Duration

	// ConnectAttempts is how many times startup tries to reach the database.
	ConnectAttempts int
}

// DefaultConfig returns pool settings suitable for a single worker.
func DefaultConfig() Config {
	return Config{
		MaxConns:          10,
		MinConns:          2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
		ConnectTimeout:    10 * time.Second,
		ConnectAttempts:   5,
	}
}

// PoolConfig returns pgxpool configuration.
func (c Config) PoolConfig() (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if c.MaxConns > 0 {
		config.MaxConns = c.MaxConns
	}
	config.MinConns = c.MinConns
	if c.MaxConnLifetime > 0 {
		config.MaxConnLifetime = c.MaxConnLifetime
	}
	if c.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = c.MaxConnIdleTime
	}
	if c.HealthCheckPeriod > 0 {
		config.HealthCheckPeriod = c.HealthCheckPeriod
	}
	if c.ConnectTimeout > 0 {
		config.ConnConfig.ConnectTimeout = c.ConnectTimeout
	}

	return config, nil
}

// Connection wraps pgxpool.Pool with transaction and health helpers.
type Connection struct {
	pool   *pgxpool.Pool
	logger *zap.Logger

	closed bool
	mu     sync.RWMutex
}

// NewConnection creates the pool and waits until the database answers a ping.
// Startup retries with backoff, so the worker survives a database that is
// still booting next to it.
func NewConnection(ctx context.Context, cfg Config, log *zap.Logger) (*Connection, error) {
	log = logger.OrNop(log).With(logger.Component("postgres"))

	poolConfig, err := cfg.PoolConfig()
	if err != nil {
		return nil, err
	}

	attempts := cfg.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}

	pool, err := retry.Value(ctx, retry.Startup(attempts), func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			err = fmt.Errorf("failed to ping database: %w", err)
			if isAuthFailure(err) {
				return nil, retry.Stop(err)
			}
			return nil, err
		}
		return pool, nil
	}, func(attempt int, err error, wait time.Duration) {
		log.Warn("database not reachable, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		return nil, err
	}

	log.Info("connected to postgres",
		zap.Int32("max_conns", poolConfig.MaxConns),
		zap.String("host", poolConfig.ConnConfig.Host),
	)

	return &Connection{pool: pool, logger: log}, nil
}

// NewConnectionFromURL creates a connection with default pool settings.
func NewConnectionFromURL(ctx context.Context, url string, log *zap.Logger) (*Connection, error) {
	cfg := DefaultConfig()
	cfg.DSN = url
	return NewConnection(ctx, cfg, log)
}

// Pool returns the underlying connection pool.
func (c *Connection) Pool() *pgxpool.Pool {
	return c.pool
}

// Close closes the connection pool.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.pool.Close()
		c.closed = true
	}
}

// IsClosed returns true if the connection pool is closed.
func (c *Connection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Ping verifies the connection is alive.
func (c *Connection) Ping(ctx context.Context) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}
	return c.pool.Ping(ctx)
}

// HealthStatus represents the health of the database connection.
type HealthStatus struct {
	Healthy         bool          `json:"healthy"`
	Latency         time.Duration `json:"latency"`
	TotalConns      int32         `json:"total_conns"`
	IdleConns       int32         `json:"idle_conns"`
	AcquiredConns   int32         `json:"acquired_conns"`
	MaxConns        int32         `json:"max_conns"`
	AcquireCount    int64         `json:"acquire_count"`
	EmptyAcquire    int64         `json:"empty_acquire_count"`
	CanceledAcquire int64         `json:"canceled_acquire_count"`
	Error           string        `json:"error,omitempty"`
}

// Health returns the health status of the connection pool.
func (c *Connection) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{}

	if c.IsClosed() {
		status.Error = ErrConnectionClosed.Error()
		return status
	}

	start := time.Now()
	err := c.pool.Ping(ctx)
	status.Latency = time.Since(start)

	if err != nil {
		status.Error = err.Error()
		return status
	}

	stats := c.pool.Stat()
	status.Healthy = true
	status.TotalConns = stats.TotalConns()
	status.IdleConns = stats.IdleConns()
	status.AcquiredConns = stats.AcquiredConns()
	status.MaxConns = stats.MaxConns()
	status.AcquireCount = stats.AcquireCount()
	status.EmptyAcquire = stats.EmptyAcquireCount()
	status.CanceledAcquire = stats.CanceledAcquireCount()

	return status
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION SUPPORT
// ══════════════════════════════════════════════════════════════════════════════

// TxOptions holds transaction options.
type TxOptions struct {
	IsoLevel   pgx.TxIsoLevel
	AccessMode pgx.TxAccessMode
}

// DefaultTxOptions returns read-committed read-write options.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}
}

// WithTx executes fn within a transaction. The transaction commits when fn
// returns nil and rolls back otherwise, including on panic.
func (c *Connection) WithTx(ctx context.Context, opts TxOptions, fn func(tx pgx.Tx) error) (err error) {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   opts.IsoLevel,
		AccessMode: opts.AccessMode,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			c.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERY HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// Querier is satisfied by both the pool and a transaction, so repository
// helpers can run either way.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Exec executes a query without returning rows.
func (c *Connection) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if c.IsClosed() {
		return pgconn.CommandTag{}, ErrConnectionClosed
	}
	return c.pool.Exec(ctx, sql, args...)
}

// Query executes a query that returns rows.
func (c *Connection) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if c.IsClosed() {
		return nil, ErrConnectionClosed
	}
	return c.pool.Query(ctx, sql, args...)
}

// QueryRow executes a query that returns at most one row.
func (c *Connection) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return c.pool.QueryRow(ctx, sql, args...)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// IsUniqueViolation checks if the error is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// IsForeignKeyViolation checks if the error is a foreign key violation.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// IsNoRows checks if the error indicates no rows were found.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isAuthFailure reports a rejected login (invalid_password or
// invalid_authorization_specification); retrying it cannot succeed.
func isAuthFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "28P01" || pgErr.Code == "28000"
	}
	return false
}
