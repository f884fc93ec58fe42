package strategy

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"hyperliquid-alpha-bot/config"
	"hyperliquid-alpha-bot/internal/engine"
	"hyperliquid-alpha-bot/internal/hyperliquid"
	"hyperliquid-alpha-bot/internal/logging"
)

// Counter persists per-day interaction counts. The redis cache
// implements it; a nil counter falls back to in-memory counting that
// resets on restart.
type Counter interface {
	IncrDailyCounter(ctx context.Context, name, day string) (int64, error)
	DailyCounter(ctx context.Context, name, day string) (int64, error)
}

// AccountSource reads the account state for position adjustments.
type AccountSource interface {
	UserState(ctx context.Context, address string) (*hyperliquid.UserState, error)
}

// VaultCycler moves funds in and out of a vault.
type VaultCycler interface {
	VaultTransfer(ctx context.Context, vaultAddress string, isDeposit bool, usd int64) (*hyperliquid.OrderResponse, error)
}

// AirdropDeps holds the optional surfaces that unlock the extra
// interaction kinds. A nil field disables its kind and the strategy
// falls back to spot micro trades.
type AirdropDeps struct {
	Account   AccountSource
	Address   string
	Vault     VaultCycler
	VaultAddr string
}

const (
	kindSpot = iota
	kindPerp
	kindVault
)

// Airdrop spreads small genuine interactions across the day: micro
// round trips on rotating spot pairs, post-only nudges to open perp
// positions, and vault deposit/withdraw cycles. Volume is negligible;
// what counts for airdrop criteria is distinct active days and
// interaction counts.
type Airdrop struct {
	trader  Trader
	cfg     config.AirdropConfig
	counter Counter
	deps    AirdropDeps
	logger  *logging.Logger

	mu         sync.Mutex
	kinds      []int
	kindIdx    int
	pairIdx    int
	posIdx     int
	localDay   string
	localUsed  int64
	total      int64
	volumeUSD  float64
	pendingUSD int64 // micro-USD parked in the vault mid-cycle
}

// NewAirdrop creates the airdrop farming strategy.
func NewAirdrop(trader Trader, cfg config.AirdropConfig, counter Counter, deps AirdropDeps, logger *logging.Logger) *Airdrop {
	kinds := []int{kindSpot}
	if deps.Account != nil && deps.Address != "" {
		kinds = append(kinds, kindPerp)
	}
	kinds = append(kinds, kindSpot)
	if deps.Vault != nil && deps.VaultAddr != "" {
		kinds = append(kinds, kindVault)
	}
	return &Airdrop{
		trader:  trader,
		cfg:     cfg,
		counter: counter,
		deps:    deps,
		kinds:   kinds,
		logger:  logger.WithComponent("airdrop"),
	}
}

func (a *Airdrop) Name() string { return "airdrop" }

// Coin reports the pair the next spot interaction will use.
func (a *Airdrop) Coin() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentPair()
}

// Status reports today's progress.
func (a *Airdrop) Status() map[string]interface{} {
	used, _ := a.usedToday(context.Background())
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]interface{}{
		"interactions_today": used,
		"daily_target":       a.cfg.DailyInteractions,
		"total_interactions": a.total,
		"volume_usd":         a.volumeUSD,
		"airdrop_score":      a.score(),
		"next_pair":          a.currentPair(),
	}
}

// score estimates standing against typical airdrop criteria: a base
// for being active, transaction count, volume, and a bonus for hitting
// at least ten interactions today. Capped at 1000. Caller holds a.mu.
func (a *Airdrop) score() float64 {
	s := 100.0
	s += math.Min(100, float64(a.total)*2)
	s += math.Min(50, a.volumeUSD/100)
	if a.localUsed >= 10 {
		s += 50
	}
	return math.Min(1000, s)
}

// Run performs interactions on the configured interval until the daily
// quota is met, then idles until the next day.
func (a *Airdrop) Run(ctx context.Context) error {
	interval := time.Duration(a.cfg.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.unwindVault()
			return ctx.Err()
		case <-ticker.C:
			used, err := a.usedToday(ctx)
			if err != nil {
				a.logger.Warn("counter read failed", "error", err.Error())
			}
			if used >= int64(a.cfg.DailyInteractions) {
				continue
			}
			if err := a.interact(ctx); err != nil {
				a.logger.Warn("interaction failed", "error", err.Error())
			}
		}
	}
}

// interact performs one interaction, rotating through the enabled
// kinds. A perp adjustment falls back to a spot trade when there is no
// open position to nudge.
func (a *Airdrop) interact(ctx context.Context) error {
	a.mu.Lock()
	kind := a.kinds[a.kindIdx%len(a.kinds)]
	a.kindIdx++
	a.mu.Unlock()

	switch kind {
	case kindPerp:
		done, err := a.adjustPosition(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		return a.microTrade(ctx)
	case kindVault:
		return a.vaultCycle(ctx)
	default:
		return a.microTrade(ctx)
	}
}

// microTrade performs one spot micro round trip: market in, market out.
func (a *Airdrop) microTrade(ctx context.Context) error {
	a.mu.Lock()
	coin := a.currentPair()
	a.pairIdx++
	a.mu.Unlock()

	mid, err := a.trader.Mid(ctx, coin)
	if err != nil {
		return err
	}
	size := a.cfg.MicroTradeSizeUSD / mid

	entry, err := a.trader.PlaceMarket(ctx, engine.OrderParams{
		Coin:     coin,
		IsBuy:    true,
		Size:     size,
		Strategy: "airdrop",
	})
	if err != nil {
		return err
	}

	exitSize := size
	if entry.FilledSz > 0 {
		exitSize = entry.FilledSz
	}
	if _, err := a.trader.PlaceMarket(ctx, engine.OrderParams{
		Coin:       coin,
		IsBuy:      false,
		Size:       exitSize,
		ReduceOnly: true,
		Strategy:   "airdrop",
	}); err != nil {
		return err
	}

	count := a.bump(ctx, 2*a.cfg.MicroTradeSizeUSD)
	a.logger.Info("micro trade complete", "coin", coin, "size_usd", a.cfg.MicroTradeSizeUSD, "today", count)
	return nil
}

// adjustPosition nudges an open perp position by 2% with a post-only
// order, alternating between adding and trimming. Returns false when
// there is nothing to adjust.
func (a *Airdrop) adjustPosition(ctx context.Context) (bool, error) {
	state, err := a.deps.Account.UserState(ctx, a.deps.Address)
	if err != nil {
		return false, err
	}

	var open []hyperliquid.Position
	for _, ap := range state.AssetPositions {
		szi, err := strconv.ParseFloat(ap.Position.Szi, 64)
		if err != nil || math.Abs(szi) < 1e-3 {
			continue
		}
		open = append(open, ap.Position)
	}
	if len(open) == 0 {
		return false, nil
	}

	a.mu.Lock()
	idx := a.posIdx
	a.posIdx++
	a.mu.Unlock()

	pos := open[idx%len(open)]
	szi, _ := strconv.ParseFloat(pos.Szi, 64)
	size := math.Abs(szi) * 0.02

	mid, err := a.trader.Mid(ctx, pos.Coin)
	if err != nil {
		return false, err
	}

	adding := idx%2 == 0
	isBuy := adding == (szi > 0)
	price := mid * 1.001
	if isBuy {
		price = mid * 0.999
	}

	if _, err := a.trader.PlaceAlo(ctx, engine.OrderParams{
		Coin:       pos.Coin,
		IsBuy:      isBuy,
		Price:      price,
		Size:       size,
		ReduceOnly: !adding,
		Strategy:   "airdrop",
	}); err != nil {
		return false, err
	}

	count := a.bump(ctx, size*mid)
	a.logger.Info("position adjusted", "coin", pos.Coin, "size", size, "adding", adding, "today", count)
	return true, nil
}

// vaultCycle is a two-tick deposit/withdraw round trip: one tick parks
// a micro amount in the vault, the next pulls it back out.
func (a *Airdrop) vaultCycle(ctx context.Context) error {
	a.mu.Lock()
	pending := a.pendingUSD
	a.mu.Unlock()

	if pending > 0 {
		if _, err := a.deps.Vault.VaultTransfer(ctx, a.deps.VaultAddr, false, pending); err != nil {
			return err
		}
		a.mu.Lock()
		a.pendingUSD = 0
		a.mu.Unlock()
		count := a.bump(ctx, 0)
		a.logger.Info("vault cycle closed", "usd", float64(pending)/1_000_000, "today", count)
		return nil
	}

	usd := int64(a.cfg.MicroTradeSizeUSD * 1_000_000)
	if _, err := a.deps.Vault.VaultTransfer(ctx, a.deps.VaultAddr, true, usd); err != nil {
		return err
	}
	a.mu.Lock()
	a.pendingUSD = usd
	a.mu.Unlock()
	count := a.bump(ctx, 0)
	a.logger.Info("vault cycle opened", "usd", a.cfg.MicroTradeSizeUSD, "today", count)
	return nil
}

// unwindVault pulls back any amount parked mid-cycle on shutdown.
func (a *Airdrop) unwindVault() {
	a.mu.Lock()
	pending := a.pendingUSD
	a.mu.Unlock()
	if pending == 0 || a.deps.Vault == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := a.deps.Vault.VaultTransfer(ctx, a.deps.VaultAddr, false, pending); err != nil {
		a.logger.Error("vault unwind failed", "usd", float64(pending)/1_000_000, "error", err.Error())
		return
	}
	a.mu.Lock()
	a.pendingUSD = 0
	a.mu.Unlock()
}

func (a *Airdrop) currentPair() string {
	if len(a.cfg.SpotPairs) == 0 {
		return "PURR"
	}
	return a.cfg.SpotPairs[a.pairIdx%len(a.cfg.SpotPairs)]
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

func (a *Airdrop) usedToday(ctx context.Context) (int64, error) {
	if a.counter != nil {
		if n, err := a.counter.DailyCounter(ctx, "airdrop_interactions", today()); err == nil {
			return n, nil
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.localDay != today() {
		a.localDay = today()
		a.localUsed = 0
	}
	return a.localUsed, nil
}

func (a *Airdrop) bump(ctx context.Context, volumeUSD float64) int64 {
	a.mu.Lock()
	a.total++
	a.volumeUSD += volumeUSD
	if a.localDay != today() {
		a.localDay = today()
		a.localUsed = 0
	}
	a.localUsed++
	local := a.localUsed
	a.mu.Unlock()

	if a.counter != nil {
		if n, err := a.counter.IncrDailyCounter(ctx, "airdrop_interactions", today()); err == nil {
			return n
		}
	}
	return local
}
