package risk

import (
	"fmt"
	"sync"
	"time"
)

// Config holds risk management limits.
type Config struct {
	MaxRiskPerTrade    float64 // percent of equity risked per trade
	MaxDailyDrawdown   float64 // percent of equity lost in a day before halting
	MaxOpenPositions   int
	PositionSizeMethod string // "fixed" or "percent"
	FixedPositionSize  float64
	MinAccountBalance  float64 // refuse new orders below this equity
	MinOrderSizeUSD    float64
	MaxOrderSizeUSD    float64
}

// Manager enforces position sizing and exposure limits across every
// strategy sharing the account.
type Manager struct {
	mu             sync.RWMutex
	config         Config
	accountEquity  float64
	openPositions  int
	dailyPnL       float64
	dailyResetAt   time.Time
}

// NewManager creates a risk manager.
func NewManager(config Config) *Manager {
	return &Manager{
		config:       config,
		dailyResetAt: time.Now().Truncate(24 * time.Hour).Add(24 * time.Hour),
	}
}

// UpdateEquity records the current account value.
func (m *Manager) UpdateEquity(equity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accountEquity = equity
}

// Equity returns the last recorded account value.
func (m *Manager) Equity() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accountEquity
}

// SetOpenPositions records the position count from the account snapshot.
func (m *Manager) SetOpenPositions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openPositions = n
}

// RecordPnL feeds a realized PnL amount into the daily drawdown window.
func (m *Manager) RecordPnL(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDaily()
	m.dailyPnL += pnl
}

// CheckOrder validates a prospective order's notional against limits.
func (m *Manager) CheckOrder(notionalUSD float64, opensPosition bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDaily()

	if m.config.MinOrderSizeUSD > 0 && notionalUSD < m.config.MinOrderSizeUSD {
		return fmt.Errorf("order notional $%.2f below minimum $%.2f", notionalUSD, m.config.MinOrderSizeUSD)
	}
	if m.config.MaxOrderSizeUSD > 0 && notionalUSD > m.config.MaxOrderSizeUSD {
		return fmt.Errorf("order notional $%.2f above maximum $%.2f", notionalUSD, m.config.MaxOrderSizeUSD)
	}
	if m.config.MinAccountBalance > 0 && m.accountEquity > 0 && m.accountEquity < m.config.MinAccountBalance {
		return fmt.Errorf("account equity $%.2f below minimum $%.2f", m.accountEquity, m.config.MinAccountBalance)
	}
	if opensPosition && m.config.MaxOpenPositions > 0 && m.openPositions >= m.config.MaxOpenPositions {
		return fmt.Errorf("max open positions reached (%d)", m.openPositions)
	}
	if m.config.MaxDailyDrawdown > 0 && m.accountEquity > 0 {
		drawdownPct := -m.dailyPnL / m.accountEquity * 100
		if drawdownPct >= m.config.MaxDailyDrawdown {
			return fmt.Errorf("daily drawdown limit reached (%.2f%%)", drawdownPct)
		}
	}
	return nil
}

// PositionSizeUSD returns the notional to commit to one trade.
func (m *Manager) PositionSizeUSD() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch m.config.PositionSizeMethod {
	case "fixed":
		return m.config.FixedPositionSize
	default:
		if m.accountEquity <= 0 {
			return 0
		}
		return m.accountEquity * m.config.MaxRiskPerTrade / 100
	}
}

// Stats returns risk counters for status reporting.
func (m *Manager) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]interface{}{
		"account_equity": m.accountEquity,
		"open_positions": m.openPositions,
		"daily_pnl":      m.dailyPnL,
	}
}

// rollDaily resets the PnL window at UTC midnight. Caller holds the lock.
func (m *Manager) rollDaily() {
	now := time.Now()
	if now.After(m.dailyResetAt) {
		m.dailyPnL = 0
		m.dailyResetAt = now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	}
}
