// Package strategy hosts the trading strategy loops and their
// supervisor.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"hyperliquid-alpha-bot/internal/events"
	"hyperliquid-alpha-bot/internal/hyperliquid"
	"hyperliquid-alpha-bot/internal/logging"
)

var (
	ErrAlreadyRunning = errors.New("strategy already running")
	ErrNotRunning     = errors.New("strategy not running")
	ErrTooMany        = errors.New("concurrent strategy limit reached")
)

// Strategy is one trading loop. Run blocks until the context is
// cancelled; returning earlier means the strategy failed.
type Strategy interface {
	Name() string
	Coin() string
	Run(ctx context.Context) error
	Status() map[string]interface{}
}

// FillConsumer is implemented by strategies that react to fills.
type FillConsumer interface {
	OnFill(fill hyperliquid.Fill)
}

type running struct {
	strategy Strategy
	cancel   context.CancelFunc
	done     chan struct{}
}

// Manager supervises strategy goroutines. Every loop runs under its
// own cancellable context and Stop joins the goroutine before
// returning, so no strategy outlives its registration.
type Manager struct {
	mu       sync.Mutex
	running  map[string]*running
	max      int
	bus      *events.Bus
	logger   *logging.Logger
}

// NewManager creates a supervisor allowing at most max concurrent
// strategies (0 = unlimited).
func NewManager(max int, bus *events.Bus, logger *logging.Logger) *Manager {
	return &Manager{
		running: make(map[string]*running),
		max:     max,
		bus:     bus,
		logger:  logger.WithComponent("strategy_manager"),
	}
}

// Start launches a strategy under the given id.
func (m *Manager) Start(ctx context.Context, id string, s Strategy) error {
	m.mu.Lock()
	if _, ok := m.running[id]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	}
	if m.max > 0 && len(m.running) >= m.max {
		m.mu.Unlock()
		return fmt.Errorf("%w (%d)", ErrTooMany, m.max)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &running{strategy: s, cancel: cancel, done: make(chan struct{})}
	m.running[id] = r
	m.mu.Unlock()

	m.logger.Info("strategy started", "id", id, "strategy", s.Name(), "coin", s.Coin())
	if m.bus != nil {
		m.bus.PublishStrategy(events.EventStrategyStarted, s.Name(), s.Coin())
	}

	go func() {
		defer close(r.done)
		err := s.Run(runCtx)

		m.mu.Lock()
		delete(m.running, id)
		m.mu.Unlock()

		if err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("strategy exited with error", "id", id, "error", err.Error())
			if m.bus != nil {
				m.bus.PublishError("strategy", id, err)
			}
		} else {
			m.logger.Info("strategy stopped", "id", id)
		}
		if m.bus != nil {
			m.bus.PublishStrategy(events.EventStrategyStopped, s.Name(), s.Coin())
		}
	}()

	return nil
}

// Stop cancels a strategy and waits for its goroutine to exit.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	r, ok := m.running[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, id)
	}

	r.cancel()
	<-r.done
	return nil
}

// StopAll stops every running strategy.
func (m *Manager) StopAll() {
	m.mu.Lock()
	items := make([]*running, 0, len(m.running))
	for _, r := range m.running {
		items = append(items, r)
	}
	m.mu.Unlock()

	for _, r := range items {
		r.cancel()
	}
	for _, r := range items {
		<-r.done
	}
}

// IsRunning reports whether the id has a live strategy.
func (m *Manager) IsRunning(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[id]
	return ok
}

// Statuses returns the status of every running strategy keyed by id.
func (m *Manager) Statuses() map[string]map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]map[string]interface{}, len(m.running))
	for id, r := range m.running {
		status := r.strategy.Status()
		status["strategy"] = r.strategy.Name()
		status["coin"] = r.strategy.Coin()
		out[id] = status
	}
	return out
}

// RouteFill delivers a fill to every running strategy that consumes
// fills for the matching coin.
func (m *Manager) RouteFill(fill hyperliquid.Fill) {
	m.mu.Lock()
	consumers := make([]FillConsumer, 0, len(m.running))
	for _, r := range m.running {
		if c, ok := r.strategy.(FillConsumer); ok && r.strategy.Coin() == fill.Coin {
			consumers = append(consumers, c)
		}
	}
	m.mu.Unlock()

	for _, c := range consumers {
		c.OnFill(fill)
	}
}
