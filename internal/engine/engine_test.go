package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"hyperliquid-alpha-bot/internal/circuit"
	"hyperliquid-alpha-bot/internal/hyperliquid"
	"hyperliquid-alpha-bot/internal/logging"
	"hyperliquid-alpha-bot/internal/orders"
	"hyperliquid-alpha-bot/internal/risk"
)

// mockExchange records submissions and returns scripted responses.
type mockExchange struct {
	placed     [][]hyperliquid.OrderRequest
	cancelled  []string
	placeErr   error
	placeResps []*hyperliquid.OrderResponse
}

func restingResponse(oid int64) *hyperliquid.OrderResponse {
	return &hyperliquid.OrderResponse{
		Status: "ok",
		Response: hyperliquid.OrderResponseBody{
			Data: hyperliquid.OrderResponseData{
				Statuses: []hyperliquid.OrderStatus{{Resting: &hyperliquid.RestingOrder{Oid: oid}}},
			},
		},
	}
}

func (m *mockExchange) PlaceOrders(ctx context.Context, reqs []hyperliquid.OrderRequest) (*hyperliquid.OrderResponse, error) {
	if m.placeErr != nil {
		return nil, m.placeErr
	}
	m.placed = append(m.placed, reqs)
	if len(m.placeResps) > 0 {
		resp := m.placeResps[0]
		m.placeResps = m.placeResps[1:]
		return resp, nil
	}
	return restingResponse(int64(len(m.placed))), nil
}

func (m *mockExchange) CancelOrders(ctx context.Context, coin string, oids []int64) (*hyperliquid.OrderResponse, error) {
	for range oids {
		m.cancelled = append(m.cancelled, coin)
	}
	return restingResponse(0), nil
}

func (m *mockExchange) CancelByCloid(ctx context.Context, coin, cloid string) (*hyperliquid.OrderResponse, error) {
	m.cancelled = append(m.cancelled, cloid)
	return restingResponse(0), nil
}

func (m *mockExchange) PlaceTwap(ctx context.Context, coin string, isBuy bool, size string, minutes int, reduceOnly, randomize bool) (*hyperliquid.OrderResponse, error) {
	return restingResponse(0), nil
}

func (m *mockExchange) UpdateLeverage(ctx context.Context, coin string, leverage int, isCross bool) (*hyperliquid.OrderResponse, error) {
	return restingResponse(0), nil
}

func (m *mockExchange) TradingAddress() string { return "0xabc" }

// mockMarket serves canned market data.
type mockMarket struct {
	mids  map[string]float64
	book  *hyperliquid.L2Book
	state *hyperliquid.UserState
	open  []hyperliquid.OpenOrder
}

func (m *mockMarket) AllMids(ctx context.Context) (map[string]float64, error) {
	return m.mids, nil
}

func (m *mockMarket) L2Snapshot(ctx context.Context, coin string) (*hyperliquid.L2Book, error) {
	if m.book == nil {
		return nil, errors.New("no book")
	}
	return m.book, nil
}

func (m *mockMarket) UserState(ctx context.Context, address string) (*hyperliquid.UserState, error) {
	if m.state == nil {
		return &hyperliquid.UserState{}, nil
	}
	return m.state, nil
}

func (m *mockMarket) OpenOrders(ctx context.Context, address string) ([]hyperliquid.OpenOrder, error) {
	return m.open, nil
}

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "ERROR"})
}

func newTestEngine(exchange *mockExchange, market *mockMarket, breaker *circuit.Breaker, riskMgr *risk.Manager) *TradingEngine {
	tracker := orders.NewTracker(zerolog.Nop())
	return New(exchange, market, tracker, breaker, riskMgr, nil, testLogger(), Config{DefaultSlippageBps: 50})
}

func TestPlaceLimitRoundsAndSubmits(t *testing.T) {
	exchange := &mockExchange{}
	market := &mockMarket{mids: map[string]float64{"BTC": 65000}}
	eng := newTestEngine(exchange, market, nil, nil)

	placement, err := eng.PlaceLimit(context.Background(), OrderParams{
		Coin:  "BTC",
		IsBuy: true,
		Price: 64999.94, // not on the 0.1 tick
		Size:  0.012345678,
	}, hyperliquid.TifGtc)
	if err != nil {
		t.Fatalf("PlaceLimit: %v", err)
	}
	if placement.Cloid == "" {
		t.Error("no cloid generated")
	}

	if len(exchange.placed) != 1 {
		t.Fatalf("placed %d batches, want 1", len(exchange.placed))
	}
	req := exchange.placed[0][0]
	if req.Price != "64999.9" {
		t.Errorf("price = %s, want 64999.9", req.Price)
	}
	if req.Size != "0.01234" {
		t.Errorf("size = %s, want 0.01234", req.Size)
	}
}

func TestPlaceLimitIdempotentResubmit(t *testing.T) {
	exchange := &mockExchange{}
	market := &mockMarket{mids: map[string]float64{"BTC": 65000}}
	eng := newTestEngine(exchange, market, nil, nil)

	cloid := orders.NewCloid()
	params := OrderParams{Coin: "BTC", IsBuy: true, Price: 64000, Size: 0.01, Cloid: cloid}

	first, err := eng.PlaceLimit(context.Background(), params, hyperliquid.TifGtc)
	if err != nil {
		t.Fatalf("first placement: %v", err)
	}
	second, err := eng.PlaceLimit(context.Background(), params, hyperliquid.TifGtc)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.Cloid != first.Cloid {
		t.Error("resubmit returned different cloid")
	}
	if len(exchange.placed) != 1 {
		t.Errorf("exchange saw %d submissions for one cloid, want 1", len(exchange.placed))
	}
}

func TestPlaceMarketAppliesSlippage(t *testing.T) {
	exchange := &mockExchange{}
	market := &mockMarket{mids: map[string]float64{"ETH": 3000}}
	eng := newTestEngine(exchange, market, nil, nil)

	_, err := eng.PlaceMarket(context.Background(), OrderParams{Coin: "ETH", IsBuy: true, Size: 1})
	if err != nil {
		t.Fatalf("PlaceMarket: %v", err)
	}

	req := exchange.placed[0][0]
	if req.Tif != hyperliquid.TifIoc {
		t.Errorf("tif = %s, want Ioc", req.Tif)
	}
	// 3000 * 1.005 = 3015, on ETH's 0.01 tick.
	if req.Price != "3015" {
		t.Errorf("price = %s, want 3015", req.Price)
	}
}

func TestPlaceAloClampsInsideSpread(t *testing.T) {
	exchange := &mockExchange{}
	market := &mockMarket{
		mids: map[string]float64{"ETH": 3000},
		book: &hyperliquid.L2Book{Levels: [][]hyperliquid.L2Level{
			{{Px: "2999.99", Sz: "5"}},
			{{Px: "3000.01", Sz: "5"}},
		}},
	}
	eng := newTestEngine(exchange, market, nil, nil)

	// A buy quoted through the ask must come back below it.
	_, err := eng.PlaceAlo(context.Background(), OrderParams{Coin: "ETH", IsBuy: true, Price: 3001, Size: 1})
	if err != nil {
		t.Fatalf("PlaceAlo: %v", err)
	}
	req := exchange.placed[0][0]
	if req.Tif != hyperliquid.TifAlo {
		t.Errorf("tif = %s, want Alo", req.Tif)
	}
	if req.Price != "3000" {
		t.Errorf("clamped price = %s, want 3000", req.Price)
	}
}

func TestBreakerBlocksOrders(t *testing.T) {
	exchange := &mockExchange{}
	market := &mockMarket{mids: map[string]float64{"BTC": 65000}}
	breaker := circuit.NewBreaker(circuit.Config{
		Enabled:              true,
		MaxConsecutiveLosses: 1,
		MaxLossPerHour:       100,
		MaxDailyLoss:         100,
		MaxTradesPerMinute:   100,
		MaxDailyTrades:       100,
		CooldownMinutes:      30,
	}, nil)
	eng := newTestEngine(exchange, market, breaker, nil)

	breaker.RecordTrade(-1.0)

	_, err := eng.PlaceLimit(context.Background(), OrderParams{Coin: "BTC", IsBuy: true, Price: 64000, Size: 0.01}, hyperliquid.TifGtc)
	if !errors.Is(err, ErrHalted) {
		t.Fatalf("err = %v, want ErrHalted", err)
	}
	if len(exchange.placed) != 0 {
		t.Error("order reached exchange while halted")
	}
}

func TestRiskRejection(t *testing.T) {
	exchange := &mockExchange{}
	market := &mockMarket{mids: map[string]float64{"BTC": 65000}}
	riskMgr := risk.NewManager(risk.Config{MaxOrderSizeUSD: 100})
	eng := newTestEngine(exchange, market, nil, riskMgr)

	_, err := eng.PlaceLimit(context.Background(), OrderParams{Coin: "BTC", IsBuy: true, Price: 64000, Size: 0.01}, hyperliquid.TifGtc)
	if !errors.Is(err, ErrRiskRejected) {
		t.Fatalf("err = %v, want ErrRiskRejected", err)
	}
}

func TestRejectionIsNotRetried(t *testing.T) {
	exchange := &mockExchange{placeErr: &hyperliquid.RejectError{Reason: "Insufficient margin"}}
	market := &mockMarket{mids: map[string]float64{"BTC": 65000}}
	eng := newTestEngine(exchange, market, nil, nil)

	_, err := eng.PlaceLimit(context.Background(), OrderParams{Coin: "BTC", IsBuy: true, Price: 64000, Size: 0.01}, hyperliquid.TifGtc)
	if !errors.Is(err, hyperliquid.ErrRejected) {
		t.Fatalf("err = %v, want rejection", err)
	}
}

func TestValidation(t *testing.T) {
	eng := newTestEngine(&mockExchange{}, &mockMarket{}, nil, nil)
	ctx := context.Background()

	cases := []OrderParams{
		{Coin: "", IsBuy: true, Price: 100, Size: 1},
		{Coin: "BTC", IsBuy: true, Price: 0, Size: 1},
		{Coin: "BTC", IsBuy: true, Price: 100, Size: 0},
		{Coin: "BTC", IsBuy: true, Price: 100, Size: 1, Cloid: "garbage"},
	}
	for i, params := range cases {
		if _, err := eng.PlaceLimit(ctx, params, hyperliquid.TifGtc); !errors.Is(err, ErrValidation) {
			t.Errorf("case %d: err = %v, want ErrValidation", i, err)
		}
	}
}

func TestClosePosition(t *testing.T) {
	exchange := &mockExchange{}
	market := &mockMarket{
		mids: map[string]float64{"BTC": 65000},
		state: &hyperliquid.UserState{
			AssetPositions: []hyperliquid.AssetPosition{
				{Position: hyperliquid.Position{Coin: "BTC", Szi: "-0.5"}},
			},
		},
	}
	eng := newTestEngine(exchange, market, nil, nil)

	placement, err := eng.ClosePosition(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if placement == nil {
		t.Fatal("nil placement")
	}

	req := exchange.placed[0][0]
	if !req.IsBuy {
		t.Error("closing a short must buy")
	}
	if !req.ReduceOnly {
		t.Error("close order not reduce-only")
	}
	if req.Size != "0.5" {
		t.Errorf("size = %s, want 0.5", req.Size)
	}

	if _, err := eng.ClosePosition(context.Background(), "ETH"); !errors.Is(err, ErrNoPosition) {
		t.Errorf("err = %v, want ErrNoPosition", err)
	}
}

func TestCancelAll(t *testing.T) {
	exchange := &mockExchange{}
	market := &mockMarket{
		open: []hyperliquid.OpenOrder{
			{Coin: "BTC", Oid: 1},
			{Coin: "BTC", Oid: 2},
			{Coin: "ETH", Oid: 3},
		},
	}
	eng := newTestEngine(exchange, market, nil, nil)

	n, err := eng.CancelAll(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("CancelAll: %v", err)
	}
	if n != 2 {
		t.Errorf("cancelled %d, want 2", n)
	}
}

func TestDryRunNeverHitsExchange(t *testing.T) {
	exchange := &mockExchange{}
	market := &mockMarket{mids: map[string]float64{"BTC": 65000}}
	tracker := orders.NewTracker(zerolog.Nop())
	eng := New(exchange, market, tracker, nil, nil, nil, testLogger(), Config{DryRun: true})

	placement, err := eng.PlaceLimit(context.Background(), OrderParams{Coin: "BTC", IsBuy: true, Price: 64000, Size: 0.01}, hyperliquid.TifGtc)
	if err != nil {
		t.Fatalf("dry run placement: %v", err)
	}
	if placement.Status != orders.StatusResting {
		t.Errorf("status = %s", placement.Status)
	}
	if len(exchange.placed) != 0 {
		t.Error("dry run submitted a real order")
	}
}

func TestLossRunOpensBreaker(t *testing.T) {
	exchange := &mockExchange{}
	market := &mockMarket{
		mids: map[string]float64{"BTC": 65000},
		state: &hyperliquid.UserState{
			MarginSummary: hyperliquid.MarginSummary{AccountValue: "10000"},
		},
	}
	cfg := circuit.DefaultConfig()
	cfg.MaxConsecutiveLosses = 3
	breaker := circuit.NewBreaker(cfg, nil)
	riskMgr := risk.NewManager(risk.Config{})
	eng := newTestEngine(exchange, market, breaker, riskMgr)

	if err := eng.SyncAccount(context.Background()); err != nil {
		t.Fatalf("SyncAccount: %v", err)
	}
	if got := riskMgr.Equity(); got != 10000 {
		t.Fatalf("equity = %f, want 10000", got)
	}

	for i := 0; i < 3; i++ {
		eng.RecordTradeResult(-100)
	}
	if breaker.State() != circuit.StateOpen {
		t.Fatalf("breaker = %s, want open after three losses", breaker.State())
	}
	if _, err := eng.PlaceLimit(context.Background(), OrderParams{
		Coin: "BTC", IsBuy: true, Price: 65000, Size: 0.01,
	}, hyperliquid.TifGtc); err == nil {
		t.Fatal("order should be refused while the breaker is open")
	}
	if len(exchange.placed) != 0 {
		t.Fatalf("order reached the exchange despite open breaker")
	}
}

func TestSyncAccountFeedsPositionGate(t *testing.T) {
	exchange := &mockExchange{}
	market := &mockMarket{
		mids: map[string]float64{"BTC": 65000},
		state: &hyperliquid.UserState{
			MarginSummary: hyperliquid.MarginSummary{AccountValue: "50000"},
			AssetPositions: []hyperliquid.AssetPosition{
				{Position: hyperliquid.Position{Coin: "BTC", Szi: "0.5"}},
				{Position: hyperliquid.Position{Coin: "ETH", Szi: "-2.0"}},
				{Position: hyperliquid.Position{Coin: "SOL", Szi: "0"}},
			},
		},
	}
	riskMgr := risk.NewManager(risk.Config{MaxOpenPositions: 2})
	eng := newTestEngine(exchange, market, nil, riskMgr)

	if err := eng.SyncAccount(context.Background()); err != nil {
		t.Fatalf("SyncAccount: %v", err)
	}

	// Two live positions: a position-opening order must be refused,
	// a reduce-only one still allowed.
	if _, err := eng.PlaceLimit(context.Background(), OrderParams{
		Coin: "BTC", IsBuy: true, Price: 65000, Size: 0.01,
	}, hyperliquid.TifGtc); !errors.Is(err, ErrRiskRejected) {
		t.Fatalf("expected risk rejection at max positions, got %v", err)
	}
	if _, err := eng.PlaceLimit(context.Background(), OrderParams{
		Coin: "BTC", IsBuy: false, Price: 65000, Size: 0.01, ReduceOnly: true,
	}, hyperliquid.TifGtc); err != nil {
		t.Fatalf("reduce-only order should pass: %v", err)
	}
}
