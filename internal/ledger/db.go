// Package ledger tracks vault depositors and profit distributions in
// PostgreSQL.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"hyperliquid-alpha-bot/config"
	"hyperliquid-alpha-bot/internal/logging"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	Pool   *pgxpool.Pool
	logger *logging.Logger
}

// NewDB opens a connection pool and verifies connectivity.
func NewDB(cfg config.DatabaseConfig, logger *logging.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log := logger.WithComponent("ledger_db")
	log.Info("connected to postgres", "database", cfg.Database)
	return &DB{Pool: pool, logger: log}, nil
}

// Close releases the pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// RunMigrations creates the ledger schema. Statements are idempotent.
func (db *DB) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS vault_users (
			user_id BIGINT PRIMARY KEY,
			username VARCHAR(64),
			deposit_amount DECIMAL(20, 8) NOT NULL DEFAULT 0
				CHECK (deposit_amount >= 0),
			deposit_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			initial_vault_value DECIMAL(20, 8) NOT NULL DEFAULT 0,
			profit_share_rate DECIMAL(6, 4) NOT NULL DEFAULT 0.10,
			total_profits_earned DECIMAL(20, 8) NOT NULL DEFAULT 0,
			referred_by BIGINT REFERENCES vault_users(user_id) ON DELETE SET NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vault_users_referred_by
			ON vault_users(referred_by)`,

		`CREATE TABLE IF NOT EXISTS profit_distributions (
			id SERIAL PRIMARY KEY,
			distribution_key VARCHAR(32) NOT NULL,
			user_id BIGINT NOT NULL REFERENCES vault_users(user_id) ON DELETE CASCADE,
			amount DECIMAL(20, 8) NOT NULL,
			vault_performance DECIMAL(20, 8) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(distribution_key, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_profit_distributions_user
			ON profit_distributions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_profit_distributions_key
			ON profit_distributions(distribution_key)`,

		`CREATE TABLE IF NOT EXISTS vault_transfers (
			id SERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			direction VARCHAR(8) NOT NULL CHECK (direction IN ('deposit', 'withdraw')),
			amount DECIMAL(20, 8) NOT NULL CHECK (amount > 0),
			tx_status VARCHAR(16) NOT NULL DEFAULT 'confirmed',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vault_transfers_user
			ON vault_transfers(user_id)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info("migrations complete", "statements", len(migrations))
	return nil
}
