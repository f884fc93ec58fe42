package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// VaultUser is one depositor in the pooled vault.
type VaultUser struct {
	UserID             int64           `json:"user_id"`
	Username           string          `json:"username"`
	DepositAmount      decimal.Decimal `json:"deposit_amount"`
	DepositTime        time.Time       `json:"deposit_time"`
	InitialVaultValue  decimal.Decimal `json:"initial_vault_value"`
	ProfitShareRate    decimal.Decimal `json:"profit_share_rate"`
	TotalProfitsEarned decimal.Decimal `json:"total_profits_earned"`
	ReferredBy         *int64          `json:"referred_by,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// OwnershipShare returns the user's fraction of the given TVL.
func (u *VaultUser) OwnershipShare(tvl decimal.Decimal) decimal.Decimal {
	if tvl.IsZero() {
		return decimal.Zero
	}
	return u.DepositAmount.Div(tvl)
}

// Distribution is one per-user profit payout row.
type Distribution struct {
	ID               int64           `json:"id"`
	DistributionKey  string          `json:"distribution_key"`
	UserID           int64           `json:"user_id"`
	Amount           decimal.Decimal `json:"amount"`
	VaultPerformance decimal.Decimal `json:"vault_performance"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Transfer is one on-exchange vault transfer mirrored in the ledger.
type Transfer struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Direction string          `json:"direction"` // "deposit" or "withdraw"
	Amount    decimal.Decimal `json:"amount"`
	TxStatus  string          `json:"tx_status"`
	CreatedAt time.Time       `json:"created_at"`
}
