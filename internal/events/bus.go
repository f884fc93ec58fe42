package events

import (
	"sync"
	"time"
)

// EventType identifies a class of system event.
type EventType string

const (
	EventOrderPlaced      EventType = "ORDER_PLACED"
	EventOrderFilled      EventType = "ORDER_FILLED"
	EventOrderCancelled   EventType = "ORDER_CANCELLED"
	EventOrderRejected    EventType = "ORDER_REJECTED"
	EventPriceUpdate      EventType = "PRICE_UPDATE"
	EventPositionUpdate   EventType = "POSITION_UPDATE"
	EventStrategyStarted  EventType = "STRATEGY_STARTED"
	EventStrategyStopped  EventType = "STRATEGY_STOPPED"
	EventGridRebalanced   EventType = "GRID_REBALANCED"
	EventCircuitTripped   EventType = "CIRCUIT_TRIPPED"
	EventCircuitReset     EventType = "CIRCUIT_RESET"
	EventVaultDeposit     EventType = "VAULT_DEPOSIT"
	EventVaultWithdrawal  EventType = "VAULT_WITHDRAWAL"
	EventProfitDistributed EventType = "PROFIT_DISTRIBUTED"
	EventTierChanged      EventType = "TIER_CHANGED"
	EventError            EventType = "ERROR"
)

// Event is one system event.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber handles events. Subscribers run on their own goroutine per
// event, so they must be safe for concurrent invocation.
type Subscriber func(Event)

// Bus fans events out to subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for one event type.
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for every event.
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, subscriber)
}

// Publish delivers an event to subscribers without blocking the caller.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, sub := range b.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishOrderPlaced publishes an order placement.
func (b *Bus) PublishOrderPlaced(coin, side, cloid string, price, size float64) {
	b.Publish(Event{
		Type: EventOrderPlaced,
		Data: map[string]interface{}{
			"coin":  coin,
			"side":  side,
			"cloid": cloid,
			"price": price,
			"size":  size,
		},
	})
}

// PublishOrderFilled publishes a fill.
func (b *Bus) PublishOrderFilled(coin, side string, price, size, closedPnl, fee float64) {
	b.Publish(Event{
		Type: EventOrderFilled,
		Data: map[string]interface{}{
			"coin":       coin,
			"side":       side,
			"price":      price,
			"size":       size,
			"closed_pnl": closedPnl,
			"fee":        fee,
		},
	})
}

// PublishStrategy publishes a strategy lifecycle change.
func (b *Bus) PublishStrategy(eventType EventType, name, coin string) {
	b.Publish(Event{
		Type: eventType,
		Data: map[string]interface{}{
			"strategy": name,
			"coin":     coin,
		},
	})
}

// PublishError publishes an error with its source.
func (b *Bus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Publish(Event{Type: EventError, Data: data})
}
