package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/algariis/polymarket-trading-bot/models"
)

// PostgresStore persists the trade and execution audit trail in PostgreSQL,
// with a Redis client shared for metrics publishing.
type PostgresStore struct {
	pool  *pgxpool.Pool
	redis *redis.Client
}

// NewPostgres creates a PostgreSQL store with connection pooling and verifies
// both Postgres and Redis are reachable.
func NewPostgres(ctx context.Context, postgresURL, redisAddr, redisPassword string) (*PostgresStore, error) {
	pgConfig, err := pgxpool.ParseConfig(postgresURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	// The daemon issues few concurrent queries; a small pool is plenty.
	pgConfig.MaxConns = 10
	pgConfig.MinConns = 2
	pgConfig.MaxConnLifetime = 30 * time.Minute
	pgConfig.MaxConnIdleTime = 5 * time.Minute
	pgConfig.HealthCheckPeriod = 30 * time.Second
	pgConfig.ConnConfig.RuntimeParams["statement_timeout"] = "30000"

	pool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:       redisAddr,
		Password:   redisPassword,
		DB:         0,
		PoolSize:   10,
		MaxRetries: 3,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	s := &PostgresStore{pool: pool, redis: rdb}
	if err := s.initSchema(ctx); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS observed_trades (
			transaction_hash TEXT PRIMARY KEY,
			asset TEXT NOT NULL,
			condition_id TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			side TEXT NOT NULL,
			outcome TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			size DOUBLE PRECISION NOT NULL,
			usdc_size DOUBLE PRECISION NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			event_time TIMESTAMPTZ NOT NULL,
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			retry_count INTEGER NOT NULL DEFAULT 0,
			inserted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_observed_trades_event_time
			ON observed_trades (event_time)`,
		`CREATE TABLE IF NOT EXISTS copy_executions (
			id SERIAL PRIMARY KEY,
			transaction_hash TEXT NOT NULL,
			target_user TEXT NOT NULL,
			asset TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			side TEXT NOT NULL,
			strategy TEXT NOT NULL,
			outcome TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			requested DOUBLE PRECISION NOT NULL,
			filled DOUBLE PRECISION NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			orders INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			executed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_copy_executions_tx_hash
			ON copy_executions (transaction_hash)`,
	}

	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init schema: %w", err)
		}
	}
	return nil
}

// Close releases database connections
func (s *PostgresStore) Close() error {
	if s.redis != nil {
		s.redis.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Redis exposes the shared Redis client for metrics publishing.
func (s *PostgresStore) Redis() *redis.Client {
	return s.redis
}

// SaveObservedTrade upserts an observed trade. Processed state is never
// downgraded: once a hash is marked processed it stays processed.
func (s *PostgresStore) SaveObservedTrade(ctx context.Context, trade models.ObservedTrade) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO observed_trades (
			transaction_hash, asset, condition_id, type, side, outcome, title,
			size, usdc_size, price, event_time, processed, retry_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (transaction_hash) DO UPDATE SET
			processed = observed_trades.processed OR EXCLUDED.processed,
			retry_count = GREATEST(observed_trades.retry_count, EXCLUDED.retry_count)
	`,
		trade.TransactionHash, trade.Asset, trade.ConditionID, trade.Type, trade.Side,
		trade.Outcome, trade.Title, trade.Size, trade.UsdcSize, trade.Price,
		trade.Timestamp, trade.Processed, trade.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("postgres: save observed trade: %w", err)
	}
	return nil
}

// MarkTradeProcessed records that a trade has been handled, with the final
// retry count from the execution engine.
func (s *PostgresStore) MarkTradeProcessed(ctx context.Context, transactionHash string, retryCount int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE observed_trades
		SET processed = TRUE, retry_count = $2
		WHERE transaction_hash = $1
	`, transactionHash, retryCount)
	if err != nil {
		return fmt.Errorf("postgres: mark trade processed: %w", err)
	}
	return nil
}

// ListProcessedHashes returns the hashes of trades already processed since the
// given time. Used to warm the in-memory dedup set on startup.
func (s *PostgresStore) ListProcessedHashes(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT transaction_hash FROM observed_trades
		WHERE processed = TRUE AND event_time >= $1
	`, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list processed hashes: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	return hashes, rows.Err()
}

// PruneObservedTrades deletes trades older than the cutoff and returns the
// number of rows removed.
func (s *PostgresStore) PruneObservedTrades(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM observed_trades WHERE event_time < $1
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune observed trades: %w", err)
	}
	if tag.RowsAffected() > 0 {
		log.Printf("[Storage] Pruned %d observed trades older than %s", tag.RowsAffected(), olderThan.Format(time.RFC3339))
	}
	return tag.RowsAffected(), nil
}

// SaveExecution appends one replication attempt to the audit trail.
func (s *PostgresStore) SaveExecution(ctx context.Context, exec models.Execution) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO copy_executions (
			transaction_hash, target_user, asset, title, side, strategy,
			outcome, reason, requested, filled, retry_count, orders, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		exec.TransactionHash, exec.TargetUser, exec.Asset, exec.Title, exec.Side,
		exec.Strategy, exec.Outcome, exec.Reason, exec.Requested, exec.Filled,
		exec.RetryCount, exec.Orders, exec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save execution: %w", err)
	}
	return nil
}

// ListExecutions returns the most recent executions, newest first.
func (s *PostgresStore) ListExecutions(ctx context.Context, limit int) ([]models.Execution, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, transaction_hash, target_user, asset, title, side, strategy,
			outcome, reason, requested, filled, retry_count, orders, created_at, executed_at
		FROM copy_executions
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var executions []models.Execution
	for rows.Next() {
		var e models.Execution
		if err := rows.Scan(
			&e.ID, &e.TransactionHash, &e.TargetUser, &e.Asset, &e.Title, &e.Side,
			&e.Strategy, &e.Outcome, &e.Reason, &e.Requested, &e.Filled,
			&e.RetryCount, &e.Orders, &e.CreatedAt, &e.ExecutedAt,
		); err != nil {
			return nil, err
		}
		executions = append(executions, e)
	}
	return executions, rows.Err()
}
