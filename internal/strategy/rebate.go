package strategy

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"hyperliquid-alpha-bot/config"
	"hyperliquid-alpha-bot/internal/engine"
	"hyperliquid-alpha-bot/internal/hyperliquid"
	"hyperliquid-alpha-bot/internal/logging"
	"hyperliquid-alpha-bot/internal/pricing"
)

// Rebate quotes tight two-sided post-only orders inside the spread to
// accumulate maker volume. Quotes are replaced when the mid drifts,
// otherwise left resting. Taker fills are never intended; every fill
// this strategy sees counts toward the maker share that earns rebates.
type Rebate struct {
	trader Trader
	cfg    config.RebateConfig
	coin   string
	logger *logging.Logger

	mu          sync.Mutex
	quotedMid   float64
	bidCloid    string
	askCloid    string
	makerVolume float64
	makerFills  int
	feesPaid    float64
}

// NewRebate creates a rebate mining strategy for one coin.
func NewRebate(trader Trader, cfg config.RebateConfig, coin string, logger *logging.Logger) *Rebate {
	return &Rebate{
		trader: trader,
		cfg:    cfg,
		coin:   coin,
		logger: logger.WithComponent("rebate").WithField("coin", coin),
	}
}

func (r *Rebate) Name() string { return "rebate" }
func (r *Rebate) Coin() string { return r.coin }

// Status reports quoting state and accumulated maker volume.
func (r *Rebate) Status() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]interface{}{
		"quoted_mid":   r.quotedMid,
		"maker_volume": r.makerVolume,
		"maker_fills":  r.makerFills,
		"fees_paid":    r.feesPaid,
	}
}

// Run quotes until cancelled, then pulls both quotes.
func (r *Rebate) Run(ctx context.Context) error {
	cycle := time.Duration(r.cfg.CycleSeconds) * time.Second
	if cycle <= 0 {
		cycle = 5 * time.Second
	}
	ticker := time.NewTicker(cycle)
	defer ticker.Stop()

	if err := r.requote(ctx); err != nil {
		r.logger.Warn("initial quote failed", "error", err.Error())
	}

	for {
		select {
		case <-ctx.Done():
			r.teardown()
			return ctx.Err()
		case <-ticker.C:
			if err := r.cycle(ctx); err != nil {
				r.logger.Warn("quote cycle failed", "error", err.Error())
			}
		}
	}
}

// OnFill accumulates maker volume when one of our quotes trades.
func (r *Rebate) OnFill(fill hyperliquid.Fill) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fill.Cloid != r.bidCloid && fill.Cloid != r.askCloid {
		return
	}
	notional := parseFloat(fill.Px) * parseFloat(fill.Sz)
	r.makerVolume += notional
	r.makerFills++
	r.feesPaid += parseFloat(fill.Fee)

	// The filled side has to be re-quoted next cycle.
	if fill.Cloid == r.bidCloid {
		r.bidCloid = ""
	} else {
		r.askCloid = ""
	}
}

// cycle re-quotes when the mid drifted or a side is missing.
func (r *Rebate) cycle(ctx context.Context) error {
	mid, err := r.trader.Mid(ctx, r.coin)
	if err != nil {
		return err
	}

	r.mu.Lock()
	quoted := r.quotedMid
	haveBoth := r.bidCloid != "" && r.askCloid != ""
	r.mu.Unlock()

	driftLimit := float64(r.cfg.RequoteDriftBps) / 10000
	drifted := quoted > 0 && math.Abs(mid-quoted)/quoted > driftLimit
	if haveBoth && !drifted {
		return nil
	}
	return r.requote(ctx)
}

// requote pulls stale quotes and places a fresh two-sided pair.
func (r *Rebate) requote(ctx context.Context) error {
	mid, err := r.trader.Mid(ctx, r.coin)
	if err != nil {
		return err
	}

	r.cancelQuotes(ctx)

	spread := float64(r.cfg.SpreadBps) / 10000
	size := r.cfg.QuoteSizeUSD / mid
	if pricing.RoundSize(size, r.coin) <= 0 {
		return fmt.Errorf("quote size %.2f USD rounds to zero size at mid %.4f", r.cfg.QuoteSizeUSD, mid)
	}

	bid, err := r.trader.PlaceAlo(ctx, engine.OrderParams{
		Coin:     r.coin,
		IsBuy:    true,
		Price:    mid * (1 - spread),
		Size:     size,
		Strategy: "rebate",
	})
	if err != nil {
		return fmt.Errorf("bid quote: %w", err)
	}

	ask, err := r.trader.PlaceAlo(ctx, engine.OrderParams{
		Coin:     r.coin,
		IsBuy:    false,
		Price:    mid * (1 + spread),
		Size:     size,
		Strategy: "rebate",
	})
	if err != nil {
		// One-sided quoting accumulates inventory; pull the bid.
		if cancelErr := r.trader.CancelOrder(ctx, r.coin, bid.Cloid); cancelErr != nil {
			r.logger.Warn("orphan bid cancel failed", "cloid", bid.Cloid, "error", cancelErr.Error())
		}
		return fmt.Errorf("ask quote: %w", err)
	}

	r.mu.Lock()
	r.quotedMid = mid
	r.bidCloid = bid.Cloid
	r.askCloid = ask.Cloid
	r.mu.Unlock()

	r.logger.Debug("quotes refreshed", "mid", mid, "spread_bps", r.cfg.SpreadBps)
	return nil
}

func (r *Rebate) cancelQuotes(ctx context.Context) {
	r.mu.Lock()
	bid, ask := r.bidCloid, r.askCloid
	r.bidCloid, r.askCloid = "", ""
	r.mu.Unlock()

	for _, cloid := range []string{bid, ask} {
		if cloid == "" {
			continue
		}
		if err := r.trader.CancelOrder(ctx, r.coin, cloid); err != nil {
			r.logger.Debug("quote cancel failed", "cloid", cloid, "error", err.Error())
		}
	}
}

func (r *Rebate) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r.cancelQuotes(ctx)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
