package circuit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"hyperliquid-alpha-bot/internal/events"
)

// State is the breaker state.
type State string

const (
	StateClosed   State = "closed"    // normal operation
	StateOpen     State = "open"      // trading halted
	StateHalfOpen State = "half_open" // probing recovery after cooldown
)

// Config holds the trip thresholds.
type Config struct {
	Enabled              bool
	MaxLossPerHour       float64 // percent of equity
	MaxConsecutiveLosses int
	CooldownMinutes      int
	MaxTradesPerMinute   int
	MaxDailyLoss         float64 // percent of equity
	MaxDailyTrades       int
}

// DefaultConfig returns conservative thresholds.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		MaxLossPerHour:       3.0,
		MaxConsecutiveLosses: 5,
		CooldownMinutes:      30,
		MaxTradesPerMinute:   30,
		MaxDailyLoss:         5.0,
		MaxDailyTrades:       500,
	}
}

// Breaker halts trading when loss or rate thresholds are breached.
// After the cooldown it moves to half-open and closes again on the
// first winning trade.
type Breaker struct {
	mu     sync.RWMutex
	config Config
	bus    *events.Bus

	state             State
	consecutiveLosses int
	hourlyLoss        float64
	dailyLoss         float64
	tradesLastMinute  int
	dailyTrades       int
	trippedAt         time.Time
	tripReason        string
	minuteResetAt     time.Time
	hourlyResetAt     time.Time
	dailyResetAt      time.Time
}

// NewBreaker creates a closed breaker. bus may be nil.
func NewBreaker(config Config, bus *events.Bus) *Breaker {
	now := time.Now()
	return &Breaker{
		config:        config,
		bus:           bus,
		state:         StateClosed,
		minuteResetAt: now.Add(time.Minute),
		hourlyResetAt: now.Add(time.Hour),
		dailyResetAt:  now.Truncate(24 * time.Hour).Add(24 * time.Hour),
	}
}

// Allow reports whether a new order may be placed, with the denial
// reason when it may not.
func (b *Breaker) Allow() (bool, string) {
	if !b.config.Enabled {
		return true, ""
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollWindows()

	if b.state == StateOpen {
		cooldown := time.Duration(b.config.CooldownMinutes) * time.Minute
		elapsed := time.Since(b.trippedAt)
		if elapsed < cooldown {
			return false, fmt.Sprintf("circuit open for %v more (%s)",
				(cooldown - elapsed).Round(time.Second), b.tripReason)
		}
		b.state = StateHalfOpen
	}

	if b.tradesLastMinute >= b.config.MaxTradesPerMinute {
		return false, fmt.Sprintf("trade rate limit: %d/min", b.tradesLastMinute)
	}
	if b.dailyTrades >= b.config.MaxDailyTrades {
		return false, fmt.Sprintf("daily trade limit: %d", b.dailyTrades)
	}

	return true, ""
}

// RecordTrade feeds a realized trade result into the breaker.
// pnlPercent is the trade's PnL as a percent of account equity.
func (b *Breaker) RecordTrade(pnlPercent float64) {
	if !b.config.Enabled {
		return
	}
	if math.IsNaN(pnlPercent) || math.IsInf(pnlPercent, 0) {
		return
	}

	b.mu.Lock()
	b.rollWindows()

	b.tradesLastMinute++
	b.dailyTrades++

	if pnlPercent < 0 {
		b.consecutiveLosses++
		b.hourlyLoss += -pnlPercent
		b.dailyLoss += -pnlPercent
	} else {
		b.consecutiveLosses = 0
		if b.state == StateHalfOpen {
			b.state = StateClosed
			b.publish(events.EventCircuitReset, "recovered")
		}
	}

	reason := ""
	switch {
	case b.consecutiveLosses >= b.config.MaxConsecutiveLosses:
		reason = fmt.Sprintf("consecutive losses: %d", b.consecutiveLosses)
	case b.hourlyLoss >= b.config.MaxLossPerHour:
		reason = fmt.Sprintf("hourly loss: %.2f%%", b.hourlyLoss)
	case b.dailyLoss >= b.config.MaxDailyLoss:
		reason = fmt.Sprintf("daily loss: %.2f%%", b.dailyLoss)
	}
	if reason != "" && b.state != StateOpen {
		b.state = StateOpen
		b.trippedAt = time.Now()
		b.tripReason = reason
		b.publish(events.EventCircuitTripped, reason)
	}
	b.mu.Unlock()
}

// ForceReset closes the breaker and clears loss counters.
func (b *Breaker) ForceReset() {
	b.mu.Lock()
	b.state = StateClosed
	b.consecutiveLosses = 0
	b.hourlyLoss = 0
	b.dailyLoss = 0
	b.tripReason = ""
	b.publish(events.EventCircuitReset, "manual reset")
	b.mu.Unlock()
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Stats returns breaker counters for status reporting.
func (b *Breaker) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return map[string]interface{}{
		"state":              string(b.state),
		"consecutive_losses": b.consecutiveLosses,
		"hourly_loss_pct":    b.hourlyLoss,
		"daily_loss_pct":     b.dailyLoss,
		"trades_last_minute": b.tradesLastMinute,
		"daily_trades":       b.dailyTrades,
		"trip_reason":        b.tripReason,
	}
}

// rollWindows resets the time-based counters. Caller holds the lock.
func (b *Breaker) rollWindows() {
	now := time.Now()
	if now.After(b.minuteResetAt) {
		b.tradesLastMinute = 0
		b.minuteResetAt = now.Add(time.Minute)
	}
	if now.After(b.hourlyResetAt) {
		b.hourlyLoss = 0
		b.hourlyResetAt = now.Add(time.Hour)
	}
	if now.After(b.dailyResetAt) {
		b.dailyLoss = 0
		b.dailyTrades = 0
		b.dailyResetAt = now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	}
}

func (b *Breaker) publish(eventType events.EventType, reason string) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(events.Event{
		Type: eventType,
		Data: map[string]interface{}{"reason": reason, "state": string(b.state)},
	})
}
