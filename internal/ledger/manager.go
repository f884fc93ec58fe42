package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"hyperliquid-alpha-bot/config"
	"hyperliquid-alpha-bot/internal/events"
	"hyperliquid-alpha-bot/internal/hyperliquid"
	"hyperliquid-alpha-bot/internal/logging"
)

var (
	ErrBelowMinimum   = errors.New("deposit below minimum")
	ErrVaultDisabled  = errors.New("vault is disabled")
	ErrDilutesOwner   = errors.New("deposit would dilute operator below minimum stake")
	ErrNothingToShare = errors.New("no profit to distribute")
)

// Transferer executes the on-exchange leg of a vault movement. usd is
// in micro-USDC as the exchange expects.
type Transferer interface {
	VaultTransfer(ctx context.Context, vaultAddress string, isDeposit bool, usd int64) (*hyperliquid.OrderResponse, error)
}

// EquityFunc returns the vault's current on-exchange equity in USD.
type EquityFunc func(ctx context.Context) (decimal.Decimal, error)

// Manager owns the vault depositor ledger. Money movements are
// two-phase: the exchange transfer runs first and the ledger is only
// written after it succeeds, so the ledger can understate but never
// overstate user balances.
type Manager struct {
	repo        Repository
	transfer    Transferer
	vaultEquity EquityFunc
	cfg         config.VaultConfig
	vaultAddr   string
	bus         *events.Bus
	logger      *logging.Logger
}

// NewManager creates a vault ledger manager. transfer and vaultEquity
// may be nil in bookkeeping-only deployments.
func NewManager(repo Repository, transfer Transferer, vaultEquity EquityFunc, cfg config.VaultConfig, vaultAddr string, bus *events.Bus, logger *logging.Logger) *Manager {
	return &Manager{
		repo:        repo,
		transfer:    transfer,
		vaultEquity: vaultEquity,
		cfg:         cfg,
		vaultAddr:   vaultAddr,
		bus:         bus,
		logger:      logger.WithComponent("vault_ledger"),
	}
}

// Deposit records a user deposit. The on-exchange transfer must have
// cleared before this is called (deposits into a vault are made by the
// user's own wallet); the ledger mirrors it.
func (m *Manager) Deposit(ctx context.Context, userID int64, username string, amount decimal.Decimal, referredBy *int64) (*VaultUser, error) {
	if !m.cfg.Enabled {
		return nil, ErrVaultDisabled
	}
	minDeposit := decimal.NewFromFloat(m.cfg.MinimumDeposit)
	if amount.LessThan(minDeposit) {
		return nil, fmt.Errorf("%w: $%s < $%s", ErrBelowMinimum, amount.StringFixed(2), minDeposit.StringFixed(2))
	}

	vaultValue, err := m.currentEquity(ctx)
	if err != nil {
		return nil, err
	}

	if err := m.checkDilution(ctx, vaultValue, amount); err != nil {
		return nil, err
	}

	// Self-referrals and referrals from unknown users are dropped.
	if referredBy != nil {
		if *referredBy == userID {
			referredBy = nil
		} else if _, err := m.repo.GetUser(ctx, *referredBy); err != nil {
			referredBy = nil
		}
	}

	if err := m.repo.CreateOrIncreaseDeposit(ctx, userID, username, amount, vaultValue, referredBy); err != nil {
		return nil, err
	}
	if err := m.repo.RecordTransfer(ctx, Transfer{
		UserID:    userID,
		Direction: "deposit",
		Amount:    amount,
		TxStatus:  "confirmed",
	}); err != nil {
		m.logger.Warn("transfer log write failed", "user_id", userID, "error", err.Error())
	}

	if referredBy != nil {
		bonus := amount.Mul(decimal.NewFromFloat(m.cfg.ReferralBonusPct))
		if err := m.repo.AddProfitEarned(ctx, *referredBy, bonus); err != nil {
			m.logger.Warn("referral bonus credit failed", "referrer", *referredBy, "error", err.Error())
		} else {
			m.logger.Info("referral bonus credited", "referrer", *referredBy, "bonus", bonus.StringFixed(2))
		}
	}

	user, err := m.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	m.logger.Info("deposit recorded",
		"user_id", userID, "amount", amount.StringFixed(2), "vault_value", vaultValue.StringFixed(2))
	if m.bus != nil {
		m.bus.Publish(events.Event{
			Type: events.EventVaultDeposit,
			Data: map[string]interface{}{"user_id": userID, "amount": amount.InexactFloat64()},
		})
	}
	return user, nil
}

// Withdraw pays out part or all of a user's deposit. The exchange
// transfer runs first; only after it succeeds is the ledger reduced.
// If the ledger write then fails, the discrepancy favors the operator's
// books over the user and is logged loudly for manual repair.
func (m *Manager) Withdraw(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if !m.cfg.Enabled {
		return decimal.Zero, ErrVaultDisabled
	}

	user, err := m.repo.GetUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	full := amount.IsZero() || amount.GreaterThanOrEqual(user.DepositAmount)
	if full {
		amount = user.DepositAmount
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInsufficientDeposit
	}

	if m.transfer != nil {
		microUSD := amount.Mul(decimal.NewFromInt(1_000_000)).IntPart()
		if _, err := m.transfer.VaultTransfer(ctx, m.vaultAddr, false, microUSD); err != nil {
			return decimal.Zero, fmt.Errorf("vault transfer: %w", err)
		}
	}

	var ledgerErr error
	if full {
		ledgerErr = m.repo.RemoveUser(ctx, userID)
	} else {
		ledgerErr = m.repo.DecreaseDeposit(ctx, userID, amount)
	}
	if ledgerErr != nil {
		m.logger.Error("ledger write failed after successful transfer, manual repair needed",
			"user_id", userID, "amount", amount.StringFixed(2), "error", ledgerErr.Error())
		return decimal.Zero, ledgerErr
	}

	if err := m.repo.RecordTransfer(ctx, Transfer{
		UserID:    userID,
		Direction: "withdraw",
		Amount:    amount,
		TxStatus:  "confirmed",
	}); err != nil {
		m.logger.Warn("transfer log write failed", "user_id", userID, "error", err.Error())
	}

	m.logger.Info("withdrawal complete",
		"user_id", userID, "amount", amount.StringFixed(2), "full", full)
	if m.bus != nil {
		m.bus.Publish(events.Event{
			Type: events.EventVaultWithdrawal,
			Data: map[string]interface{}{"user_id": userID, "amount": amount.InexactFloat64(), "full": full},
		})
	}
	return amount, nil
}

// DistributionKeyFor returns the idempotency key for a day's payout.
func DistributionKeyFor(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// DistributionResult summarizes one distribution run.
type DistributionResult struct {
	Key           string
	TotalProfit   decimal.Decimal
	PaidOut       decimal.Decimal
	OperatorShare decimal.Decimal
	UsersPaid     int
	UsersSkipped  int
}

// DistributeProfits pays each depositor their ownership share of the
// period's profit, less the operator's cut. The distribution key makes
// the run idempotent: rows already written under the same key are
// skipped, so a crash-and-retry cannot pay twice.
func (m *Manager) DistributeProfits(ctx context.Context, key string, totalProfit decimal.Decimal) (*DistributionResult, error) {
	if !m.cfg.Enabled {
		return nil, ErrVaultDisabled
	}
	if totalProfit.LessThanOrEqual(decimal.Zero) {
		return nil, ErrNothingToShare
	}

	users, err := m.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	tvl := decimal.Zero
	for _, u := range users {
		tvl = tvl.Add(u.DepositAmount)
	}
	if tvl.IsZero() {
		return nil, ErrNothingToShare
	}

	result := &DistributionResult{Key: key, TotalProfit: totalProfit}
	for _, u := range users {
		gross := totalProfit.Mul(u.OwnershipShare(tvl))
		cut := gross.Mul(u.ProfitShareRate)
		net := gross.Sub(cut).RoundBank(8)
		if net.LessThanOrEqual(decimal.Zero) {
			continue
		}

		inserted, err := m.repo.InsertDistribution(ctx, Distribution{
			DistributionKey:  key,
			UserID:           u.UserID,
			Amount:           net,
			VaultPerformance: totalProfit,
		})
		if err != nil {
			return result, fmt.Errorf("distribute to user %d: %w", u.UserID, err)
		}
		if !inserted {
			result.UsersSkipped++
			continue
		}

		if err := m.repo.AddProfitEarned(ctx, u.UserID, net); err != nil {
			m.logger.Warn("profit counter update failed", "user_id", u.UserID, "error", err.Error())
		}
		result.UsersPaid++
		result.PaidOut = result.PaidOut.Add(net)
		result.OperatorShare = result.OperatorShare.Add(cut)
	}

	m.logger.Info("profit distribution complete",
		"key", key,
		"total_profit", totalProfit.StringFixed(2),
		"paid_out", result.PaidOut.StringFixed(2),
		"users_paid", result.UsersPaid,
		"users_skipped", result.UsersSkipped)
	if m.bus != nil && result.UsersPaid > 0 {
		m.bus.Publish(events.Event{
			Type: events.EventProfitDistributed,
			Data: map[string]interface{}{
				"key":        key,
				"paid_out":   result.PaidOut.InexactFloat64(),
				"users_paid": result.UsersPaid,
			},
		})
	}
	return result, nil
}

// ReconcileReport compares the ledger against the exchange.
type ReconcileReport struct {
	LedgerTVL    decimal.Decimal
	VaultEquity  decimal.Decimal
	Drift        decimal.Decimal
	DriftPercent decimal.Decimal
}

// Reconcile reports drift between ledger deposits and on-exchange
// equity. Positive drift means the vault holds more than the ledger
// accounts for (accumulated profit); negative drift needs attention.
func (m *Manager) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	tvl, err := m.repo.TotalDeposits(ctx)
	if err != nil {
		return nil, err
	}
	equity, err := m.currentEquity(ctx)
	if err != nil {
		return nil, err
	}

	drift := equity.Sub(tvl)
	report := &ReconcileReport{LedgerTVL: tvl, VaultEquity: equity, Drift: drift}
	if !equity.IsZero() {
		report.DriftPercent = drift.Div(equity).Mul(decimal.NewFromInt(100))
	}

	if drift.IsNegative() {
		m.logger.Warn("ledger exceeds vault equity",
			"ledger_tvl", tvl.StringFixed(2), "vault_equity", equity.StringFixed(2))
	}
	return report, nil
}

// Users lists all depositors.
func (m *Manager) Users(ctx context.Context) ([]*VaultUser, error) {
	return m.repo.ListUsers(ctx)
}

// User returns one depositor.
func (m *Manager) User(ctx context.Context, userID int64) (*VaultUser, error) {
	return m.repo.GetUser(ctx, userID)
}

// Distributions lists recent payouts, for all users when userID is 0.
func (m *Manager) Distributions(ctx context.Context, userID int64, limit int) ([]Distribution, error) {
	return m.repo.ListDistributions(ctx, userID, limit)
}

func (m *Manager) currentEquity(ctx context.Context) (decimal.Decimal, error) {
	if m.vaultEquity == nil {
		return m.repo.TotalDeposits(ctx)
	}
	equity, err := m.vaultEquity(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch vault equity: %w", err)
	}
	return equity, nil
}

// checkDilution rejects deposits that would push the operator's stake
// below the exchange-mandated minimum ownership.
func (m *Manager) checkDilution(ctx context.Context, vaultValue, amount decimal.Decimal) error {
	if m.cfg.MinOwnershipPct <= 0 {
		return nil
	}
	userTVL, err := m.repo.TotalDeposits(ctx)
	if err != nil {
		return err
	}

	operatorStake := vaultValue.Sub(userTVL)
	if operatorStake.IsNegative() {
		operatorStake = decimal.Zero
	}
	newTotal := vaultValue.Add(amount)
	if newTotal.IsZero() {
		return nil
	}

	minShare := decimal.NewFromFloat(m.cfg.MinOwnershipPct)
	if operatorStake.Div(newTotal).LessThan(minShare) {
		return ErrDilutesOwner
	}
	return nil
}
