// Package orders provides client order id generation and live order
// tracking for the trading engine.
package orders

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Order status constants
const (
	StatusResting   = "RESTING"
	StatusFilled    = "FILLED"
	StatusPartially = "PARTIALLY_FILLED"
	StatusCancelled = "CANCELLED"
	StatusRejected  = "REJECTED"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrDuplicateCloid = errors.New("cloid already tracked")
)

// TrackedOrder is the local view of one order's lifecycle.
type TrackedOrder struct {
	Cloid     string    `json:"cloid"`
	Oid       int64     `json:"oid"`
	Coin      string    `json:"coin"`
	Side      string    `json:"side"` // "B" or "A"
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	FilledSz  float64   `json:"filled_sz"`
	AvgPx     float64   `json:"avg_px"`
	Status    string    `json:"status"`
	Strategy  string    `json:"strategy,omitempty"`
	PlacedAt  time.Time `json:"placed_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tracker keeps the in-memory order book mirror keyed by cloid. It is
// the idempotency source of truth: before resubmitting a cloid the
// engine asks the tracker whether it is already live.
type Tracker struct {
	mu     sync.RWMutex
	orders map[string]*TrackedOrder
	logger zerolog.Logger
}

// NewTracker creates an empty tracker.
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{
		orders: make(map[string]*TrackedOrder),
		logger: logger.With().Str("component", "OrderTracker").Logger(),
	}
}

// Track registers a newly placed order.
func (t *Tracker) Track(order TrackedOrder) error {
	if err := ValidateCloid(order.Cloid); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.orders[order.Cloid]; ok && isLive(existing.Status) {
		return ErrDuplicateCloid
	}

	now := time.Now()
	order.PlacedAt = now
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = StatusResting
	}
	t.orders[order.Cloid] = &order

	t.logger.Debug().
		Str("cloid", order.Cloid).
		Str("coin", order.Coin).
		Str("side", order.Side).
		Float64("price", order.Price).
		Float64("size", order.Size).
		Msg("order tracked")
	return nil
}

// IsLive reports whether the cloid refers to a resting or partially
// filled order.
func (t *Tracker) IsLive(cloid string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	order, ok := t.orders[cloid]
	return ok && isLive(order.Status)
}

// Get returns a copy of the tracked order.
func (t *Tracker) Get(cloid string) (TrackedOrder, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	order, ok := t.orders[cloid]
	if !ok {
		return TrackedOrder{}, ErrOrderNotFound
	}
	return *order, nil
}

// RecordFill applies a fill to the tracked order. Fills for unknown
// cloids are ignored, they belong to orders placed outside this bot.
func (t *Tracker) RecordFill(cloid string, fillSz, fillPx float64) {
	if cloid == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	order, ok := t.orders[cloid]
	if !ok {
		return
	}

	filledBefore := order.FilledSz
	order.FilledSz += fillSz
	if order.FilledSz > 0 {
		order.AvgPx = (order.AvgPx*filledBefore + fillPx*fillSz) / order.FilledSz
	}
	if order.FilledSz >= order.Size {
		order.Status = StatusFilled
	} else {
		order.Status = StatusPartially
	}
	order.UpdatedAt = time.Now()

	t.logger.Info().
		Str("cloid", cloid).
		Str("coin", order.Coin).
		Float64("fill_sz", fillSz).
		Float64("fill_px", fillPx).
		Str("status", order.Status).
		Msg("fill recorded")
}

// RecordCancel marks an order cancelled.
func (t *Tracker) RecordCancel(cloid string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if order, ok := t.orders[cloid]; ok && isLive(order.Status) {
		order.Status = StatusCancelled
		order.UpdatedAt = time.Now()
	}
}

// RecordReject marks an order rejected by the exchange.
func (t *Tracker) RecordReject(cloid string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if order, ok := t.orders[cloid]; ok {
		order.Status = StatusRejected
		order.UpdatedAt = time.Now()
	}
}

// SetOid attaches the exchange order id once known.
func (t *Tracker) SetOid(cloid string, oid int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if order, ok := t.orders[cloid]; ok {
		order.Oid = oid
		order.UpdatedAt = time.Now()
	}
}

// Live returns copies of all live orders, optionally filtered by coin.
func (t *Tracker) Live(coin string) []TrackedOrder {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var live []TrackedOrder
	for _, order := range t.orders {
		if !isLive(order.Status) {
			continue
		}
		if coin != "" && order.Coin != coin {
			continue
		}
		live = append(live, *order)
	}
	return live
}

// Prune drops terminal orders older than maxAge and returns the count.
func (t *Tracker) Prune(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	pruned := 0
	for cloid, order := range t.orders {
		if !isLive(order.Status) && order.UpdatedAt.Before(cutoff) {
			delete(t.orders, cloid)
			pruned++
		}
	}
	return pruned
}

func isLive(status string) bool {
	return status == StatusResting || status == StatusPartially
}
