// Package engine executes orders against the exchange with risk and
// circuit breaker gating, tick rounding, retries, and cloid-based
// idempotency.
package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cenkalti/backoff/v4"

	"hyperliquid-alpha-bot/internal/circuit"
	"hyperliquid-alpha-bot/internal/events"
	"hyperliquid-alpha-bot/internal/hyperliquid"
	"hyperliquid-alpha-bot/internal/logging"
	"hyperliquid-alpha-bot/internal/orders"
	"hyperliquid-alpha-bot/internal/pricing"
	"hyperliquid-alpha-bot/internal/risk"
)

// Exchange is the write side of the exchange client.
type Exchange interface {
	PlaceOrders(ctx context.Context, reqs []hyperliquid.OrderRequest) (*hyperliquid.OrderResponse, error)
	CancelOrders(ctx context.Context, coin string, oids []int64) (*hyperliquid.OrderResponse, error)
	CancelByCloid(ctx context.Context, coin, cloid string) (*hyperliquid.OrderResponse, error)
	PlaceTwap(ctx context.Context, coin string, isBuy bool, size string, minutes int, reduceOnly, randomize bool) (*hyperliquid.OrderResponse, error)
	UpdateLeverage(ctx context.Context, coin string, leverage int, isCross bool) (*hyperliquid.OrderResponse, error)
	TradingAddress() string
}

// MarketData is the read side of the exchange client.
type MarketData interface {
	AllMids(ctx context.Context) (map[string]float64, error)
	L2Snapshot(ctx context.Context, coin string) (*hyperliquid.L2Book, error)
	UserState(ctx context.Context, address string) (*hyperliquid.UserState, error)
	OpenOrders(ctx context.Context, address string) ([]hyperliquid.OpenOrder, error)
}

// Config holds engine behavior knobs.
type Config struct {
	DefaultSlippageBps int
	DryRun             bool
	MaxRetries         uint64
}

// OrderParams describes one order in human units.
type OrderParams struct {
	Coin       string
	IsBuy      bool
	Price      float64 // limit price; 0 derives from mid for market orders
	Size       float64 // coin units
	ReduceOnly bool
	Cloid      string // generated when empty
	Strategy   string
}

// Placement is the outcome of an order submission.
type Placement struct {
	Cloid    string
	Oid      int64
	Status   string
	FilledSz float64
	AvgPx    float64
}

// TradingEngine routes orders through validation, gating and retries.
type TradingEngine struct {
	exchange Exchange
	market   MarketData
	tracker  *orders.Tracker
	breaker  *circuit.Breaker
	risk     *risk.Manager
	bus      *events.Bus
	logger   *logging.Logger
	config   Config
}

// New creates a trading engine. breaker, risk and bus may be nil.
func New(exchange Exchange, market MarketData, tracker *orders.Tracker, breaker *circuit.Breaker, riskMgr *risk.Manager, bus *events.Bus, logger *logging.Logger, config Config) *TradingEngine {
	if config.DefaultSlippageBps <= 0 {
		config.DefaultSlippageBps = 50
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	return &TradingEngine{
		exchange: exchange,
		market:   market,
		tracker:  tracker,
		breaker:  breaker,
		risk:     riskMgr,
		bus:      bus,
		logger:   logger.WithComponent("engine"),
		config:   config,
	}
}

// Mid returns the current mid price for a coin.
func (e *TradingEngine) Mid(ctx context.Context, coin string) (float64, error) {
	mids, err := e.market.AllMids(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch mids: %w", err)
	}
	mid, ok := mids[coin]
	if !ok || mid <= 0 {
		return 0, fmt.Errorf("%w: no mid for %s", hyperliquid.ErrUnknownCoin, coin)
	}
	return mid, nil
}

// gate applies breaker and risk checks before any placement.
func (e *TradingEngine) gate(params OrderParams) error {
	if e.breaker != nil {
		if ok, reason := e.breaker.Allow(); !ok {
			return &haltedError{reason: reason}
		}
	}
	if e.risk != nil {
		notional := params.Price * params.Size
		if err := e.risk.CheckOrder(notional, !params.ReduceOnly); err != nil {
			return fmt.Errorf("%w: %v", ErrRiskRejected, err)
		}
	}
	return nil
}

func (e *TradingEngine) validate(params *OrderParams) error {
	if params.Coin == "" {
		return &validationError{detail: "empty coin"}
	}
	if params.Size <= 0 {
		return &validationError{detail: fmt.Sprintf("size %v", params.Size)}
	}
	if params.Price <= 0 {
		return &validationError{detail: fmt.Sprintf("price %v", params.Price)}
	}
	if params.Cloid == "" {
		params.Cloid = orders.NewCloid()
	} else if err := orders.ValidateCloid(params.Cloid); err != nil {
		return &validationError{detail: err.Error()}
	}
	return nil
}

// PlaceLimit places a resting limit order. Resubmitting a cloid that is
// already live returns the tracked state instead of placing twice.
func (e *TradingEngine) PlaceLimit(ctx context.Context, params OrderParams, tif string) (*Placement, error) {
	params.Price = pricing.RoundToTick(params.Price, params.Coin)
	params.Size = pricing.RoundSize(params.Size, params.Coin)

	if err := e.validate(&params); err != nil {
		return nil, err
	}
	if existing, ok := e.liveDuplicate(params.Cloid); ok {
		return existing, nil
	}
	if err := e.gate(params); err != nil {
		return nil, err
	}
	return e.submit(ctx, params, tif)
}

// PlaceMarket crosses the spread with an IOC limit at mid plus or minus
// the slippage allowance.
func (e *TradingEngine) PlaceMarket(ctx context.Context, params OrderParams) (*Placement, error) {
	mid, err := e.Mid(ctx, params.Coin)
	if err != nil {
		return nil, err
	}

	slippage := float64(e.config.DefaultSlippageBps) / 10000
	if params.IsBuy {
		params.Price = mid * (1 + slippage)
	} else {
		params.Price = mid * (1 - slippage)
	}
	params.Price = pricing.RoundToTick(params.Price, params.Coin)
	params.Size = pricing.RoundSize(params.Size, params.Coin)

	if err := e.validate(&params); err != nil {
		return nil, err
	}
	if existing, ok := e.liveDuplicate(params.Cloid); ok {
		return existing, nil
	}
	if err := e.gate(params); err != nil {
		return nil, err
	}
	return e.submit(ctx, params, hyperliquid.TifIoc)
}

// PlaceAlo places a post-only order. The price is clamped inside the
// spread so the order can never take liquidity; if the book cannot be
// read the exchange's own ALO check is the backstop.
func (e *TradingEngine) PlaceAlo(ctx context.Context, params OrderParams) (*Placement, error) {
	if book, err := e.market.L2Snapshot(ctx, params.Coin); err == nil {
		if bid, ask, ok := book.BestBidAsk(); ok {
			tick := pricing.TickFor(params.Coin, params.Price)
			if params.IsBuy && params.Price >= ask {
				params.Price = ask - tick
			} else if !params.IsBuy && params.Price <= bid {
				params.Price = bid + tick
			}
			if params.Price <= 0 {
				return nil, ErrWouldCross
			}
		}
	}
	return e.PlaceLimit(ctx, params, hyperliquid.TifAlo)
}

// PlaceTwap starts a TWAP execution.
func (e *TradingEngine) PlaceTwap(ctx context.Context, coin string, isBuy bool, size float64, minutes int, reduceOnly bool) error {
	if minutes < 5 {
		return &validationError{detail: "twap duration under 5 minutes"}
	}
	size = pricing.RoundSize(size, coin)
	if size <= 0 {
		return &validationError{detail: "size rounds to zero"}
	}
	if e.breaker != nil {
		if ok, reason := e.breaker.Allow(); !ok {
			return &haltedError{reason: reason}
		}
	}
	if e.config.DryRun {
		e.logger.Info("dry run twap", "coin", coin, "size", size, "minutes", minutes)
		return nil
	}

	_, err := e.exchange.PlaceTwap(ctx, coin, isBuy, pricing.FormatSize(size, coin), minutes, reduceOnly, true)
	if err != nil {
		return fmt.Errorf("twap %s: %w", coin, err)
	}
	return nil
}

// CancelOrder cancels by cloid.
func (e *TradingEngine) CancelOrder(ctx context.Context, coin, cloid string) error {
	if e.config.DryRun {
		e.tracker.RecordCancel(cloid)
		return nil
	}
	if _, err := e.exchange.CancelByCloid(ctx, coin, cloid); err != nil {
		return fmt.Errorf("cancel %s: %w", cloid, err)
	}
	e.tracker.RecordCancel(cloid)
	if e.bus != nil {
		e.bus.Publish(events.Event{
			Type: events.EventOrderCancelled,
			Data: map[string]interface{}{"coin": coin, "cloid": cloid},
		})
	}
	return nil
}

// CancelAll cancels every resting order for a coin, or every order when
// coin is empty.
func (e *TradingEngine) CancelAll(ctx context.Context, coin string) (int, error) {
	open, err := e.market.OpenOrders(ctx, e.exchange.TradingAddress())
	if err != nil {
		return 0, fmt.Errorf("fetch open orders: %w", err)
	}

	byCoin := make(map[string][]int64)
	for _, o := range open {
		if coin != "" && o.Coin != coin {
			continue
		}
		byCoin[o.Coin] = append(byCoin[o.Coin], o.Oid)
	}

	cancelled := 0
	for c, oids := range byCoin {
		if e.config.DryRun {
			cancelled += len(oids)
			continue
		}
		if _, err := e.exchange.CancelOrders(ctx, c, oids); err != nil {
			return cancelled, fmt.Errorf("cancel all %s: %w", c, err)
		}
		cancelled += len(oids)
	}

	for _, o := range open {
		if coin == "" || o.Coin == coin {
			e.tracker.RecordCancel(o.Cloid)
		}
	}
	return cancelled, nil
}

// ClosePosition flattens the position in a coin with a reduce-only
// market order.
func (e *TradingEngine) ClosePosition(ctx context.Context, coin string) (*Placement, error) {
	state, err := e.market.UserState(ctx, e.exchange.TradingAddress())
	if err != nil {
		return nil, fmt.Errorf("fetch user state: %w", err)
	}

	for _, ap := range state.AssetPositions {
		pos := ap.Position
		if pos.Coin != coin {
			continue
		}
		szi := parseSigned(pos.Szi)
		if szi == 0 {
			break
		}
		return e.PlaceMarket(ctx, OrderParams{
			Coin:       coin,
			IsBuy:      szi < 0,
			Size:       abs(szi),
			ReduceOnly: true,
			Strategy:   "close",
		})
	}
	return nil, fmt.Errorf("%w: %s", ErrNoPosition, coin)
}

// SetLeverage updates leverage for a coin.
func (e *TradingEngine) SetLeverage(ctx context.Context, coin string, leverage int, isCross bool) error {
	if leverage < 1 {
		return &validationError{detail: fmt.Sprintf("leverage %d", leverage)}
	}
	if e.config.DryRun {
		return nil
	}
	if _, err := e.exchange.UpdateLeverage(ctx, coin, leverage, isCross); err != nil {
		return fmt.Errorf("update leverage %s: %w", coin, err)
	}
	return nil
}

// FreeCollateral returns the withdrawable balance of the trading
// account.
func (e *TradingEngine) FreeCollateral(ctx context.Context) (float64, error) {
	state, err := e.market.UserState(ctx, e.exchange.TradingAddress())
	if err != nil {
		return 0, fmt.Errorf("fetch user state: %w", err)
	}
	return parseSigned(state.Withdrawable), nil
}

// SyncAccount refreshes the risk manager's view of account equity and
// open position count from the account snapshot. The drawdown and
// exposure gates stay inert until this has run at least once.
func (e *TradingEngine) SyncAccount(ctx context.Context) error {
	if e.risk == nil {
		return nil
	}
	state, err := e.market.UserState(ctx, e.exchange.TradingAddress())
	if err != nil {
		return fmt.Errorf("fetch user state: %w", err)
	}
	open := 0
	for _, ap := range state.AssetPositions {
		if parseSigned(ap.Position.Szi) != 0 {
			open++
		}
	}
	e.risk.UpdateEquity(parseSigned(state.MarginSummary.AccountValue))
	e.risk.SetOpenPositions(open)
	return nil
}

// RecordTradeResult feeds a realized round trip into the breaker and
// risk manager.
func (e *TradingEngine) RecordTradeResult(pnlUSD float64) {
	if e.risk != nil {
		e.risk.RecordPnL(pnlUSD)
		if equity := e.risk.Equity(); equity > 0 && e.breaker != nil {
			e.breaker.RecordTrade(pnlUSD / equity * 100)
		}
	}
}

// Tracker exposes the order tracker for fill routing.
func (e *TradingEngine) Tracker() *orders.Tracker { return e.tracker }

func (e *TradingEngine) liveDuplicate(cloid string) (*Placement, bool) {
	if cloid == "" || !e.tracker.IsLive(cloid) {
		return nil, false
	}
	order, err := e.tracker.Get(cloid)
	if err != nil {
		return nil, false
	}
	return &Placement{
		Cloid:    order.Cloid,
		Oid:      order.Oid,
		Status:   order.Status,
		FilledSz: order.FilledSz,
		AvgPx:    order.AvgPx,
	}, true
}

// submit sends the order, retrying transient failures with exponential
// backoff. Rejections and validation failures are permanent.
func (e *TradingEngine) submit(ctx context.Context, params OrderParams, tif string) (*Placement, error) {
	side := "A"
	if params.IsBuy {
		side = "B"
	}

	tracked := orders.TrackedOrder{
		Cloid:    params.Cloid,
		Coin:     params.Coin,
		Side:     side,
		Price:    params.Price,
		Size:     params.Size,
		Strategy: params.Strategy,
	}

	if e.config.DryRun {
		if err := e.tracker.Track(tracked); err != nil {
			return nil, err
		}
		e.logger.Info("dry run order",
			"coin", params.Coin, "side", side, "tif", tif,
			"price", params.Price, "size", params.Size, "cloid", params.Cloid)
		return &Placement{Cloid: params.Cloid, Status: orders.StatusResting}, nil
	}

	req := hyperliquid.OrderRequest{
		Coin:       params.Coin,
		IsBuy:      params.IsBuy,
		Price:      pricing.FormatPrice(params.Price, params.Coin),
		Size:       pricing.FormatSize(params.Size, params.Coin),
		ReduceOnly: params.ReduceOnly,
		Tif:        tif,
		Cloid:      params.Cloid,
	}

	var resp *hyperliquid.OrderResponse
	operation := func() error {
		var err error
		resp, err = e.exchange.PlaceOrders(ctx, []hyperliquid.OrderRequest{req})
		if err != nil {
			if hyperliquid.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), e.config.MaxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		e.logger.Error("order failed",
			"coin", params.Coin, "cloid", params.Cloid, "error", err.Error())
		if e.bus != nil {
			e.bus.Publish(events.Event{
				Type: events.EventOrderRejected,
				Data: map[string]interface{}{"coin": params.Coin, "cloid": params.Cloid, "error": err.Error()},
			})
		}
		return nil, err
	}

	placement := &Placement{Cloid: params.Cloid, Status: orders.StatusResting}
	if status := resp.FirstStatus(); status != nil {
		switch {
		case status.Error != "":
			return nil, &hyperliquid.RejectError{Reason: status.Error}
		case status.Filled != nil:
			placement.Oid = status.Filled.Oid
			placement.Status = orders.StatusFilled
			placement.FilledSz = parseSigned(status.Filled.TotalSz)
			placement.AvgPx = parseSigned(status.Filled.AvgPx)
		case status.Resting != nil:
			placement.Oid = status.Resting.Oid
		}
	}

	if err := e.tracker.Track(tracked); err == nil {
		e.tracker.SetOid(params.Cloid, placement.Oid)
		if placement.Status == orders.StatusFilled {
			e.tracker.RecordFill(params.Cloid, placement.FilledSz, placement.AvgPx)
		}
	}

	e.logger.Info("order placed",
		"coin", params.Coin, "side", side, "tif", tif,
		"price", params.Price, "size", params.Size,
		"cloid", params.Cloid, "status", placement.Status)
	if e.bus != nil {
		e.bus.PublishOrderPlaced(params.Coin, side, params.Cloid, params.Price, params.Size)
	}
	return placement, nil
}

func parseSigned(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
