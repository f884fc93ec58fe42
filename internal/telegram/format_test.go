package telegram

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"hyperliquid-alpha-bot/internal/analytics"
	"hyperliquid-alpha-bot/internal/hyperliquid"
	"hyperliquid-alpha-bot/internal/ledger"
	"hyperliquid-alpha-bot/internal/pricing"
)

func strPtr(s string) *string { return &s }

func TestFormatPortfolioWithPositions(t *testing.T) {
	state := &hyperliquid.UserState{
		MarginSummary: hyperliquid.MarginSummary{
			AccountValue:    "10500.25",
			TotalMarginUsed: "1200.00",
		},
		Withdrawable: "9300.25",
		AssetPositions: []hyperliquid.AssetPosition{
			{Position: hyperliquid.Position{
				Coin: "BTC", Szi: "0.5", EntryPx: strPtr("64000"), UnrealizedPnl: "500.0",
			}},
			{Position: hyperliquid.Position{
				Coin: "ETH", Szi: "-2.0", EntryPx: strPtr("3000"), UnrealizedPnl: "-50.0",
			}},
		},
	}

	out := formatPortfolio(state)
	if !strings.Contains(out, "10500.25") {
		t.Errorf("missing equity: %s", out)
	}
	if !strings.Contains(out, "BTC") || !strings.Contains(out, "LONG") {
		t.Errorf("missing long position: %s", out)
	}
	if !strings.Contains(out, "ETH") || !strings.Contains(out, "SHORT") {
		t.Errorf("missing short position: %s", out)
	}
}

func TestFormatPortfolioEmpty(t *testing.T) {
	state := &hyperliquid.UserState{
		MarginSummary: hyperliquid.MarginSummary{AccountValue: "100.00"},
		Withdrawable:  "100.00",
	}

	out := formatPortfolio(state)
	if !strings.Contains(out, "No open positions") {
		t.Errorf("expected empty-position note: %s", out)
	}
}

func TestFormatVaultWithOwnPosition(t *testing.T) {
	users := []*ledger.VaultUser{
		{UserID: 1, DepositAmount: decimal.NewFromInt(750)},
		{UserID: 2, DepositAmount: decimal.NewFromInt(250)},
	}
	report := &ledger.ReconcileReport{
		LedgerTVL:   decimal.NewFromInt(1000),
		VaultEquity: decimal.NewFromInt(1100),
		Drift:       decimal.NewFromInt(100),
	}
	mine := users[0]

	out := formatVault(users, report, mine)
	if !strings.Contains(out, "Depositors: 2") {
		t.Errorf("missing depositor count: %s", out)
	}
	if !strings.Contains(out, "75.00%") {
		t.Errorf("missing ownership share: %s", out)
	}
}

func TestFormatFeeReport(t *testing.T) {
	report := &analytics.FeeReport{
		Volume: analytics.VolumeStats{
			TotalVolume:   6_000_000,
			MakerSharePct: 80,
			FeesPaid:      120.5,
		},
		Tier:       pricing.FeeTierFor(6_000_000),
		NextTierAt: 25_000_000,
	}

	out := formatFeeReport(report)
	if !strings.Contains(out, "Silver") {
		t.Errorf("missing tier name: %s", out)
	}
	if !strings.Contains(out, "25000000") {
		t.Errorf("missing next tier: %s", out)
	}
}

func TestSessionRegistry(t *testing.T) {
	reg := NewRegistry()

	s1 := reg.GetOrCreate(1)
	s2 := reg.GetOrCreate(1)
	if s1 != s2 {
		t.Error("same user should share a session")
	}

	s1.SetDefaultCoin("ETH")
	if got := s1.Coin("BTC"); got != "ETH" {
		t.Errorf("coin = %s, want ETH", got)
	}
	if got := reg.GetOrCreate(2).Coin("BTC"); got != "BTC" {
		t.Errorf("fresh session coin = %s, want fallback BTC", got)
	}
}

func TestSessionPrune(t *testing.T) {
	reg := NewRegistry()
	old := reg.GetOrCreate(1)
	old.mu.Lock()
	old.lastActivity = time.Now().Add(-2 * time.Hour)
	old.mu.Unlock()
	reg.GetOrCreate(2).Touch()

	if pruned := reg.Prune(time.Hour); pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
	if _, ok := reg.Get(1); ok {
		t.Error("stale session survived prune")
	}
	if _, ok := reg.Get(2); !ok {
		t.Error("active session was pruned")
	}
}
