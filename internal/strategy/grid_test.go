package strategy

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"hyperliquid-alpha-bot/config"
	"hyperliquid-alpha-bot/internal/engine"
	"hyperliquid-alpha-bot/internal/hyperliquid"
	"hyperliquid-alpha-bot/internal/logging"
)

// fakeTrader implements Trader with scripted prices and recorded calls.
type fakeTrader struct {
	mu        sync.Mutex
	mid       float64
	free      float64
	placed    []engine.OrderParams
	cancelled []string
	nextID    int
	pnls      []float64
}

func (f *fakeTrader) Mid(ctx context.Context, coin string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mid, nil
}

func (f *fakeTrader) PlaceAlo(ctx context.Context, params engine.OrderParams) (*engine.Placement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, params)
	f.nextID++
	return &engine.Placement{Cloid: "0x" + strconv.Itoa(f.nextID) + "00000000000000000000000000000"}, nil
}

func (f *fakeTrader) PlaceMarket(ctx context.Context, params engine.OrderParams) (*engine.Placement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, params)
	f.nextID++
	return &engine.Placement{Cloid: "mkt", FilledSz: params.Size}, nil
}

func (f *fakeTrader) CancelOrder(ctx context.Context, coin, cloid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, cloid)
	return nil
}

func (f *fakeTrader) CancelAll(ctx context.Context, coin string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.placed)
	f.cancelled = append(f.cancelled, "all:"+coin)
	return n, nil
}

func (f *fakeTrader) FreeCollateral(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.free, nil
}

func (f *fakeTrader) RecordTradeResult(pnlUSD float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pnls = append(f.pnls, pnlUSD)
}

func (f *fakeTrader) placedOrders() []engine.OrderParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]engine.OrderParams, len(f.placed))
	copy(out, f.placed)
	return out
}

func gridConfig() config.GridConfig {
	return config.GridConfig{
		Levels:           3,
		SpacingBps:       20,
		AllocationPct:    0.30,
		AllocationCapUSD: 2000,
		RefillIntervalS:  1,
	}
}

func quietLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "ERROR"})
}

func TestGridRebuildPlacesBothSides(t *testing.T) {
	trader := &fakeTrader{mid: 100, free: 10000}
	g := NewGrid(trader, gridConfig(), "SOL", nil, quietLogger())

	if err := g.rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	placed := trader.placedOrders()
	if len(placed) != 6 {
		t.Fatalf("placed %d orders, want 6", len(placed))
	}

	buys, sells := 0, 0
	for _, p := range placed {
		if p.IsBuy {
			buys++
			if p.Price >= 100 {
				t.Errorf("buy level at %v, want below mid", p.Price)
			}
		} else {
			sells++
			if p.Price <= 100 {
				t.Errorf("sell level at %v, want above mid", p.Price)
			}
		}
	}
	if buys != 3 || sells != 3 {
		t.Errorf("buys=%d sells=%d, want 3/3", buys, sells)
	}
}

func TestGridAllocationCap(t *testing.T) {
	// 30% of 100k is 30k, but the cap is 2000: per level notional
	// must come from the cap.
	trader := &fakeTrader{mid: 100, free: 100000}
	g := NewGrid(trader, gridConfig(), "SOL", nil, quietLogger())

	if err := g.rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	for _, p := range trader.placedOrders() {
		notional := p.Price * p.Size
		want := 2000.0 / 6
		if notional > want*1.01 || notional < want*0.99 {
			t.Errorf("level notional = %.2f, want ~%.2f", notional, want)
		}
	}
}

func TestGridBuyFillQueuesSellRefill(t *testing.T) {
	trader := &fakeTrader{mid: 100, free: 10000}
	g := NewGrid(trader, gridConfig(), "SOL", nil, quietLogger())
	if err := g.rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	// Find a buy level and fill it.
	g.mu.Lock()
	var buyCloid string
	var buyLevel *gridLevel
	for cloid, lvl := range g.levels {
		if lvl.isBuy {
			buyCloid = cloid
			buyLevel = lvl
			break
		}
	}
	g.mu.Unlock()
	if buyCloid == "" {
		t.Fatal("no buy level found")
	}

	g.OnFill(hyperliquid.Fill{Coin: "SOL", Cloid: buyCloid, Px: "99", Sz: "1"})

	select {
	case r := <-g.refills:
		if r.isBuy {
			t.Error("buy fill queued another buy")
		}
		wantPx := buyLevel.price * (1 + 0.002)
		if r.price < wantPx*0.999 || r.price > wantPx*1.001 {
			t.Errorf("refill price = %v, want ~%v", r.price, wantPx)
		}
		if r.entryPx != buyLevel.price {
			t.Errorf("refill entry = %v, want %v", r.entryPx, buyLevel.price)
		}
	default:
		t.Fatal("no refill queued")
	}
}

func TestGridSellFillClosesRoundTrip(t *testing.T) {
	trader := &fakeTrader{mid: 100, free: 10000}
	g := NewGrid(trader, gridConfig(), "SOL", nil, quietLogger())

	// Hand-install a sell that came from a buy at 99.
	g.mu.Lock()
	g.levels["0xsell"] = &gridLevel{price: 101, size: 2, isBuy: false, entryPx: 99}
	g.mu.Unlock()

	g.OnFill(hyperliquid.Fill{Coin: "SOL", Cloid: "0xsell", Px: "101", Sz: "2"})

	status := g.Status()
	if status["round_trips"].(int) != 1 {
		t.Errorf("round_trips = %v, want 1", status["round_trips"])
	}
	wantProfit := (101.0 - 99.0) * 2
	if got := status["realized_profit"].(float64); got != wantProfit {
		t.Errorf("realized = %v, want %v", got, wantProfit)
	}

	trader.mu.Lock()
	defer trader.mu.Unlock()
	if len(trader.pnls) != 1 || trader.pnls[0] != wantProfit {
		t.Errorf("pnl reported = %v, want [%v]", trader.pnls, wantProfit)
	}
}

func TestGridIgnoresForeignFills(t *testing.T) {
	trader := &fakeTrader{mid: 100, free: 10000}
	g := NewGrid(trader, gridConfig(), "SOL", nil, quietLogger())

	g.OnFill(hyperliquid.Fill{Coin: "SOL", Cloid: "0xunknown", Px: "100", Sz: "1"})
	if g.Status()["fills"].(int) != 0 {
		t.Error("foreign fill was counted")
	}
}

func TestManagerStartStopJoins(t *testing.T) {
	mgr := NewManager(2, nil, quietLogger())
	trader := &fakeTrader{mid: 100, free: 10000}
	g := NewGrid(trader, gridConfig(), "SOL", nil, quietLogger())

	if err := mgr.Start(context.Background(), "u1:grid:SOL", g); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !mgr.IsRunning("u1:grid:SOL") {
		t.Fatal("strategy not reported running")
	}
	if err := mgr.Start(context.Background(), "u1:grid:SOL", g); err == nil {
		t.Fatal("duplicate Start succeeded")
	}

	if err := mgr.Stop("u1:grid:SOL"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if mgr.IsRunning("u1:grid:SOL") {
		t.Fatal("strategy still running after Stop")
	}
	if err := mgr.Stop("u1:grid:SOL"); err == nil {
		t.Fatal("second Stop succeeded")
	}
}

func TestManagerConcurrencyLimit(t *testing.T) {
	mgr := NewManager(1, nil, quietLogger())
	trader := &fakeTrader{mid: 100, free: 10000}

	if err := mgr.Start(context.Background(), "a", NewGrid(trader, gridConfig(), "SOL", nil, quietLogger())); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer mgr.StopAll()

	err := mgr.Start(context.Background(), "b", NewGrid(trader, gridConfig(), "ETH", nil, quietLogger()))
	if err == nil {
		t.Fatal("limit not enforced")
	}

	// Give the first loop a beat to be doing real work before StopAll.
	time.Sleep(10 * time.Millisecond)
}
