package strategy

import (
	"context"
	"testing"

	"hyperliquid-alpha-bot/config"
	"hyperliquid-alpha-bot/internal/hyperliquid"
	"hyperliquid-alpha-bot/internal/logging"
)

type fakeAccount struct {
	state *hyperliquid.UserState
}

func (f *fakeAccount) UserState(ctx context.Context, address string) (*hyperliquid.UserState, error) {
	return f.state, nil
}

type fakeVault struct {
	calls []struct {
		isDeposit bool
		usd       int64
	}
}

func (f *fakeVault) VaultTransfer(ctx context.Context, vaultAddress string, isDeposit bool, usd int64) (*hyperliquid.OrderResponse, error) {
	f.calls = append(f.calls, struct {
		isDeposit bool
		usd       int64
	}{isDeposit, usd})
	return &hyperliquid.OrderResponse{Status: "ok"}, nil
}

func airdropConfig() config.AirdropConfig {
	return config.AirdropConfig{
		DailyInteractions: 20,
		MicroTradeSizeUSD: 12,
		SpotPairs:         []string{"PURR/USDC", "HYPE/USDC"},
		IntervalMinutes:   45,
	}
}

func TestAirdropMicroTradeRoundTrip(t *testing.T) {
	trader := &fakeTrader{mid: 4.0}
	logger := logging.New(&logging.Config{Level: "error", Output: "stdout"})
	a := NewAirdrop(trader, airdropConfig(), nil, AirdropDeps{}, logger)

	if err := a.microTrade(context.Background()); err != nil {
		t.Fatalf("microTrade: %v", err)
	}
	placed := trader.placedOrders()
	if len(placed) != 2 {
		t.Fatalf("expected entry and exit, got %d orders", len(placed))
	}
	if !placed[0].IsBuy || placed[1].IsBuy {
		t.Fatalf("expected buy then sell, got %+v", placed)
	}
	if !placed[1].ReduceOnly {
		t.Fatal("exit should be reduce-only")
	}
	if placed[0].Size != 3.0 {
		t.Fatalf("expected size 3.0 at mid 4.0, got %f", placed[0].Size)
	}
}

func TestAirdropRotatesSpotPairs(t *testing.T) {
	trader := &fakeTrader{mid: 4.0}
	logger := logging.New(&logging.Config{Level: "error", Output: "stdout"})
	a := NewAirdrop(trader, airdropConfig(), nil, AirdropDeps{}, logger)

	ctx := context.Background()
	a.microTrade(ctx)
	a.microTrade(ctx)
	placed := trader.placedOrders()
	if placed[0].Coin != "PURR/USDC" || placed[2].Coin != "HYPE/USDC" {
		t.Fatalf("expected pair rotation, got %s then %s", placed[0].Coin, placed[2].Coin)
	}
}

func TestAirdropPerpAdjustment(t *testing.T) {
	trader := &fakeTrader{mid: 100.0}
	account := &fakeAccount{state: &hyperliquid.UserState{
		AssetPositions: []hyperliquid.AssetPosition{
			{Position: hyperliquid.Position{Coin: "ETH", Szi: "2.0"}},
		},
	}}
	logger := logging.New(&logging.Config{Level: "error", Output: "stdout"})
	a := NewAirdrop(trader, airdropConfig(), nil,
		AirdropDeps{Account: account, Address: "0xabc"}, logger)

	done, err := a.adjustPosition(context.Background())
	if err != nil {
		t.Fatalf("adjustPosition: %v", err)
	}
	if !done {
		t.Fatal("expected an adjustment with an open position")
	}
	placed := trader.placedOrders()
	if len(placed) != 1 {
		t.Fatalf("expected one order, got %d", len(placed))
	}
	// First adjustment adds to a long: a buy below mid, 2% of the size.
	if !placed[0].IsBuy || placed[0].ReduceOnly {
		t.Fatalf("expected non-reduce buy, got %+v", placed[0])
	}
	if placed[0].Size != 0.04 {
		t.Fatalf("expected 2%% of 2.0, got %f", placed[0].Size)
	}
	if placed[0].Price >= 100.0 {
		t.Fatalf("add should rest below mid, got %f", placed[0].Price)
	}

	// Second adjustment trims: a reduce-only sell above mid.
	if _, err := a.adjustPosition(context.Background()); err != nil {
		t.Fatalf("second adjustPosition: %v", err)
	}
	placed = trader.placedOrders()
	if placed[1].IsBuy || !placed[1].ReduceOnly {
		t.Fatalf("expected reduce-only sell, got %+v", placed[1])
	}
}

func TestAirdropPerpFallsBackWithoutPositions(t *testing.T) {
	trader := &fakeTrader{mid: 100.0}
	account := &fakeAccount{state: &hyperliquid.UserState{}}
	logger := logging.New(&logging.Config{Level: "error", Output: "stdout"})
	a := NewAirdrop(trader, airdropConfig(), nil,
		AirdropDeps{Account: account, Address: "0xabc"}, logger)

	done, err := a.adjustPosition(context.Background())
	if err != nil {
		t.Fatalf("adjustPosition: %v", err)
	}
	if done {
		t.Fatal("expected no adjustment with no open positions")
	}
}

func TestAirdropVaultCycle(t *testing.T) {
	trader := &fakeTrader{mid: 4.0}
	vault := &fakeVault{}
	logger := logging.New(&logging.Config{Level: "error", Output: "stdout"})
	a := NewAirdrop(trader, airdropConfig(), nil,
		AirdropDeps{Vault: vault, VaultAddr: "0xvault"}, logger)

	ctx := context.Background()
	if err := a.vaultCycle(ctx); err != nil {
		t.Fatalf("open cycle: %v", err)
	}
	if err := a.vaultCycle(ctx); err != nil {
		t.Fatalf("close cycle: %v", err)
	}
	if len(vault.calls) != 2 {
		t.Fatalf("expected deposit then withdraw, got %d calls", len(vault.calls))
	}
	if !vault.calls[0].isDeposit || vault.calls[1].isDeposit {
		t.Fatalf("expected deposit then withdraw, got %+v", vault.calls)
	}
	if vault.calls[0].usd != 12_000_000 || vault.calls[1].usd != 12_000_000 {
		t.Fatalf("expected 12 USD in micro units, got %+v", vault.calls)
	}
	if a.pendingUSD != 0 {
		t.Fatalf("pending should be cleared, got %d", a.pendingUSD)
	}
}

func TestAirdropScoreGrowsWithActivity(t *testing.T) {
	trader := &fakeTrader{mid: 4.0}
	logger := logging.New(&logging.Config{Level: "error", Output: "stdout"})
	a := NewAirdrop(trader, airdropConfig(), nil, AirdropDeps{}, logger)

	status := a.Status()
	base := status["airdrop_score"].(float64)
	if base != 100 {
		t.Fatalf("expected base score 100, got %f", base)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := a.microTrade(ctx); err != nil {
			t.Fatalf("microTrade: %v", err)
		}
	}
	status = a.Status()
	if got := status["airdrop_score"].(float64); got <= base {
		t.Fatalf("score should grow with activity, got %f", got)
	}
	if got := status["interactions_today"].(int64); got != 3 {
		t.Fatalf("expected 3 interactions, got %d", got)
	}
}

func TestAirdropKindRotation(t *testing.T) {
	logger := logging.New(&logging.Config{Level: "error", Output: "stdout"})
	trader := &fakeTrader{mid: 4.0}

	a := NewAirdrop(trader, airdropConfig(), nil, AirdropDeps{}, logger)
	if len(a.kinds) != 2 {
		t.Fatalf("spot-only deps should yield 2 slots, got %d", len(a.kinds))
	}

	full := NewAirdrop(trader, airdropConfig(), nil, AirdropDeps{
		Account:   &fakeAccount{state: &hyperliquid.UserState{}},
		Address:   "0xabc",
		Vault:     &fakeVault{},
		VaultAddr: "0xvault",
	}, logger)
	if len(full.kinds) != 4 {
		t.Fatalf("full deps should yield 4 slots, got %d", len(full.kinds))
	}
}
