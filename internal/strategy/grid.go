package strategy

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"hyperliquid-alpha-bot/config"
	"hyperliquid-alpha-bot/internal/engine"
	"hyperliquid-alpha-bot/internal/events"
	"hyperliquid-alpha-bot/internal/hyperliquid"
	"hyperliquid-alpha-bot/internal/logging"
)

// Trader is the engine surface strategies place orders through.
type Trader interface {
	Mid(ctx context.Context, coin string) (float64, error)
	PlaceAlo(ctx context.Context, params engine.OrderParams) (*engine.Placement, error)
	PlaceMarket(ctx context.Context, params engine.OrderParams) (*engine.Placement, error)
	CancelOrder(ctx context.Context, coin, cloid string) error
	CancelAll(ctx context.Context, coin string) (int, error)
	FreeCollateral(ctx context.Context) (float64, error)
	RecordTradeResult(pnlUSD float64)
}

// gridLevel is one resting grid order.
type gridLevel struct {
	price   float64
	size    float64
	isBuy   bool
	entryPx float64 // for sells: the buy price of the round trip
}

// refill is a queued replacement order after a fill.
type refill struct {
	price   float64
	size    float64
	isBuy   bool
	entryPx float64
}

// Grid runs a symmetric post-only grid around the mid price. Buy fills
// queue a sell one level up; sell fills close the round trip and queue
// a buy one level down. When the mid drifts outside the grid the whole
// ladder is rebuilt.
type Grid struct {
	trader Trader
	cfg    config.GridConfig
	coin   string
	logger *logging.Logger
	bus    *events.Bus

	mu         sync.Mutex
	centerPx   float64
	levels     map[string]*gridLevel // keyed by cloid
	refills    chan refill
	realized   float64
	roundTrips int
	fills      int
}

// NewGrid creates a grid strategy for one coin.
func NewGrid(trader Trader, cfg config.GridConfig, coin string, bus *events.Bus, logger *logging.Logger) *Grid {
	return &Grid{
		trader:  trader,
		cfg:     cfg,
		coin:    coin,
		logger:  logger.WithComponent("grid").WithField("coin", coin),
		bus:     bus,
		levels:  make(map[string]*gridLevel),
		refills: make(chan refill, 256),
	}
}

func (g *Grid) Name() string { return "grid" }
func (g *Grid) Coin() string { return g.coin }

// Status reports grid state for /grid and the API.
func (g *Grid) Status() map[string]interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return map[string]interface{}{
		"center_price":    g.centerPx,
		"active_levels":   len(g.levels),
		"fills":           g.fills,
		"round_trips":     g.roundTrips,
		"realized_profit": g.realized,
	}
}

// Run places the initial ladder and services fills until cancelled.
// On exit every grid order is cancelled.
func (g *Grid) Run(ctx context.Context) error {
	if err := g.rebuild(ctx); err != nil {
		return fmt.Errorf("initial grid: %w", err)
	}

	interval := time.Duration(g.cfg.RefillIntervalS) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.teardown()
			return ctx.Err()

		case r := <-g.refills:
			if err := g.placeLevel(ctx, r.price, r.size, r.isBuy, r.entryPx); err != nil {
				g.logger.Warn("refill failed", "price", r.price, "error", err.Error())
			}

		case <-ticker.C:
			if err := g.maybeRecenter(ctx); err != nil {
				g.logger.Warn("recenter failed", "error", err.Error())
			}
		}
	}
}

// OnFill reacts to a fill on one of the grid's cloids. Counter orders
// are queued rather than placed inline; placement happens on the Run
// goroutine.
func (g *Grid) OnFill(fill hyperliquid.Fill) {
	g.mu.Lock()
	level, ok := g.levels[fill.Cloid]
	if !ok {
		g.mu.Unlock()
		return
	}
	delete(g.levels, fill.Cloid)
	g.fills++

	spacing := g.spacing()
	var r refill
	if level.isBuy {
		// Buy filled: quote the matching sell one level up.
		r = refill{
			price:   level.price * (1 + spacing),
			size:    level.size,
			isBuy:   false,
			entryPx: level.price,
		}
	} else {
		// Sell filled: the round trip is closed.
		if level.entryPx > 0 {
			profit := (level.price - level.entryPx) * level.size
			g.realized += profit
			g.roundTrips++
			g.mu.Unlock()
			g.trader.RecordTradeResult(profit)
			g.mu.Lock()
		}
		r = refill{
			price: level.price / (1 + spacing),
			size:  level.size,
			isBuy: true,
		}
	}
	g.mu.Unlock()

	select {
	case g.refills <- r:
	default:
		g.logger.Warn("refill queue full, dropping", "price", r.price)
	}
}

// spacing returns the per-level price ratio.
func (g *Grid) spacing() float64 {
	return float64(g.cfg.SpacingBps) / 10000
}

// allocation returns the notional budget for the whole ladder.
func (g *Grid) allocation(ctx context.Context) (float64, error) {
	free, err := g.trader.FreeCollateral(ctx)
	if err != nil {
		return 0, err
	}
	alloc := free * g.cfg.AllocationPct
	if g.cfg.AllocationCapUSD > 0 && alloc > g.cfg.AllocationCapUSD {
		alloc = g.cfg.AllocationCapUSD
	}
	return alloc, nil
}

// rebuild cancels any stale ladder and quotes a fresh one around mid.
func (g *Grid) rebuild(ctx context.Context) error {
	mid, err := g.trader.Mid(ctx, g.coin)
	if err != nil {
		return err
	}
	alloc, err := g.allocation(ctx)
	if err != nil {
		return err
	}

	levels := g.cfg.Levels
	if g.cfg.MaxLevels > 0 && levels > g.cfg.MaxLevels {
		levels = g.cfg.MaxLevels
	}
	if levels <= 0 || alloc <= 0 {
		return fmt.Errorf("nothing to quote: levels=%d allocation=%.2f", levels, alloc)
	}
	perLevel := alloc / float64(2*levels)

	if _, err := g.trader.CancelAll(ctx, g.coin); err != nil {
		return err
	}
	g.mu.Lock()
	g.levels = make(map[string]*gridLevel)
	g.centerPx = mid
	g.mu.Unlock()

	spacing := g.spacing()
	placed := 0
	for i := 1; i <= levels; i++ {
		ratio := math.Pow(1+spacing, float64(i))
		buyPx := mid / ratio
		sellPx := mid * ratio

		if err := g.placeLevel(ctx, buyPx, perLevel/buyPx, true, 0); err != nil {
			g.logger.Warn("buy level skipped", "price", buyPx, "error", err.Error())
		} else {
			placed++
		}
		if err := g.placeLevel(ctx, sellPx, perLevel/sellPx, false, mid); err != nil {
			g.logger.Warn("sell level skipped", "price", sellPx, "error", err.Error())
		} else {
			placed++
		}
	}

	g.logger.Info("grid built", "center", mid, "levels", levels, "orders", placed, "allocation", alloc)
	if g.bus != nil {
		g.bus.Publish(events.Event{
			Type: events.EventGridRebalanced,
			Data: map[string]interface{}{"coin": g.coin, "center": mid, "orders": placed},
		})
	}
	return nil
}

// placeLevel quotes one ALO order and records it.
func (g *Grid) placeLevel(ctx context.Context, price, size float64, isBuy bool, entryPx float64) error {
	placement, err := g.trader.PlaceAlo(ctx, engine.OrderParams{
		Coin:     g.coin,
		IsBuy:    isBuy,
		Price:    price,
		Size:     size,
		Strategy: "grid",
	})
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.levels[placement.Cloid] = &gridLevel{price: price, size: size, isBuy: isBuy, entryPx: entryPx}
	g.mu.Unlock()
	return nil
}

// maybeRecenter rebuilds the ladder when the mid has escaped it.
func (g *Grid) maybeRecenter(ctx context.Context) error {
	mid, err := g.trader.Mid(ctx, g.coin)
	if err != nil {
		return err
	}

	g.mu.Lock()
	center := g.centerPx
	g.mu.Unlock()
	if center <= 0 {
		return g.rebuild(ctx)
	}

	levels := g.cfg.Levels
	bound := math.Pow(1+g.spacing(), float64(levels))
	if mid > center*bound || mid < center/bound {
		g.logger.Info("mid escaped grid, rebuilding", "center", center, "mid", mid)
		return g.rebuild(ctx)
	}
	return nil
}

// teardown cancels the ladder with a fresh context since the run
// context is already cancelled.
func (g *Grid) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := g.trader.CancelAll(ctx, g.coin); err != nil {
		g.logger.Warn("teardown cancel failed", "error", err.Error())
	}
}
