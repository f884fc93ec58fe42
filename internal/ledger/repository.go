package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var (
	ErrUserNotFound        = errors.New("vault user not found")
	ErrInsufficientDeposit = errors.New("insufficient deposit")
)

// Repository is the persistence surface the vault manager depends on.
type Repository interface {
	GetUser(ctx context.Context, userID int64) (*VaultUser, error)
	ListUsers(ctx context.Context) ([]*VaultUser, error)
	TotalDeposits(ctx context.Context) (decimal.Decimal, error)
	CreateOrIncreaseDeposit(ctx context.Context, userID int64, username string, amount, vaultValue decimal.Decimal, referredBy *int64) error
	DecreaseDeposit(ctx context.Context, userID int64, amount decimal.Decimal) error
	RemoveUser(ctx context.Context, userID int64) error
	InsertDistribution(ctx context.Context, d Distribution) (bool, error)
	AddProfitEarned(ctx context.Context, userID int64, amount decimal.Decimal) error
	ListDistributions(ctx context.Context, userID int64, limit int) ([]Distribution, error)
	RecordTransfer(ctx context.Context, t Transfer) error
}

// PostgresRepository implements Repository over a pgx pool.
type PostgresRepository struct {
	db *DB
}

// NewRepository creates a Postgres-backed repository.
func NewRepository(db *DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `user_id, username, deposit_amount, deposit_time,
	initial_vault_value, profit_share_rate, total_profits_earned,
	referred_by, created_at, updated_at`

func scanUser(row pgx.Row) (*VaultUser, error) {
	var u VaultUser
	err := row.Scan(&u.UserID, &u.Username, &u.DepositAmount, &u.DepositTime,
		&u.InitialVaultValue, &u.ProfitShareRate, &u.TotalProfitsEarned,
		&u.ReferredBy, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan vault user: %w", err)
	}
	return &u, nil
}

func (r *PostgresRepository) GetUser(ctx context.Context, userID int64) (*VaultUser, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM vault_users WHERE user_id = $1`, userID)
	return scanUser(row)
}

func (r *PostgresRepository) ListUsers(ctx context.Context) ([]*VaultUser, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+userColumns+` FROM vault_users ORDER BY deposit_time`)
	if err != nil {
		return nil, fmt.Errorf("list vault users: %w", err)
	}
	defer rows.Close()

	var users []*VaultUser
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *PostgresRepository) TotalDeposits(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(deposit_amount), 0) FROM vault_users`).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum deposits: %w", err)
	}
	return total, nil
}

// CreateOrIncreaseDeposit upserts the user's deposit in one statement.
// initial_vault_value and referred_by are only set on first deposit.
func (r *PostgresRepository) CreateOrIncreaseDeposit(ctx context.Context, userID int64, username string, amount, vaultValue decimal.Decimal, referredBy *int64) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO vault_users (user_id, username, deposit_amount, initial_vault_value, referred_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			deposit_amount = vault_users.deposit_amount + EXCLUDED.deposit_amount,
			username = EXCLUDED.username,
			updated_at = NOW()`,
		userID, username, amount, vaultValue, referredBy)
	if err != nil {
		return fmt.Errorf("upsert deposit: %w", err)
	}
	return nil
}

// DecreaseDeposit subtracts amount, guarded so the balance can never
// go negative even under concurrent withdrawals.
func (r *PostgresRepository) DecreaseDeposit(ctx context.Context, userID int64, amount decimal.Decimal) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE vault_users
		SET deposit_amount = deposit_amount - $2, updated_at = NOW()
		WHERE user_id = $1 AND deposit_amount >= $2`,
		userID, amount)
	if err != nil {
		return fmt.Errorf("decrease deposit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientDeposit
	}
	return nil
}

func (r *PostgresRepository) RemoveUser(ctx context.Context, userID int64) error {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM vault_users WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("remove vault user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// InsertDistribution writes one payout row. The UNIQUE constraint on
// (distribution_key, user_id) makes re-running a distribution a no-op;
// the bool reports whether the row was actually inserted.
func (r *PostgresRepository) InsertDistribution(ctx context.Context, d Distribution) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		INSERT INTO profit_distributions (distribution_key, user_id, amount, vault_performance)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (distribution_key, user_id) DO NOTHING`,
		d.DistributionKey, d.UserID, d.Amount, d.VaultPerformance)
	if err != nil {
		return false, fmt.Errorf("insert distribution: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) AddProfitEarned(ctx context.Context, userID int64, amount decimal.Decimal) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE vault_users
		SET total_profits_earned = total_profits_earned + $2, updated_at = NOW()
		WHERE user_id = $1`,
		userID, amount)
	if err != nil {
		return fmt.Errorf("add profit earned: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListDistributions(ctx context.Context, userID int64, limit int) ([]Distribution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, distribution_key, user_id, amount, vault_performance, created_at
		FROM profit_distributions
		WHERE ($1 = 0 OR user_id = $1)
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list distributions: %w", err)
	}
	defer rows.Close()

	var out []Distribution
	for rows.Next() {
		var d Distribution
		if err := rows.Scan(&d.ID, &d.DistributionKey, &d.UserID, &d.Amount, &d.VaultPerformance, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) RecordTransfer(ctx context.Context, t Transfer) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO vault_transfers (user_id, direction, amount, tx_status)
		VALUES ($1, $2, $3, $4)`,
		t.UserID, t.Direction, t.Amount, t.TxStatus)
	if err != nil {
		return fmt.Errorf("record transfer: %w", err)
	}
	return nil
}
