package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"hyperliquid-alpha-bot/internal/logging"
)

// MidsHandler receives the mid price map on every allMids push.
type MidsHandler func(mids map[string]float64)

// FillsHandler receives new fills for the subscribed user.
type FillsHandler func(fills []Fill)

// WSClient maintains a websocket subscription to market and account
// streams, reconnecting with backoff when the connection drops.
type WSClient struct {
	url    string
	user   string
	logger *logging.Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	onMids      MidsHandler
	onFills     FillsHandler
	cancel      context.CancelFunc
	done        chan struct{}
	running     bool
	lastMessage time.Time
}

// NewWSClient creates a websocket client. user may be empty when only
// market data is needed.
func NewWSClient(url, user string, logger *logging.Logger) *WSClient {
	return &WSClient{
		url:    url,
		user:   user,
		logger: logger.WithComponent("hyperliquid_ws"),
	}
}

// OnMids registers the allMids handler. Must be called before Start.
func (w *WSClient) OnMids(h MidsHandler) { w.onMids = h }

// OnFills registers the userFills handler. Must be called before Start.
func (w *WSClient) OnFills(h FillsHandler) { w.onFills = h }

// Start connects and runs the read loop in the background.
func (w *WSClient) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("websocket client already running")
	}
	w.running = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.run(ctx)
	return nil
}

// Stop closes the connection and waits for the read loop to exit.
func (w *WSClient) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	if w.conn != nil {
		w.conn.Close()
	}
	done := w.done
	w.mu.Unlock()

	<-done
}

func (w *WSClient) run(ctx context.Context) {
	defer close(w.done)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			return
		}

		if err := w.connect(ctx); err != nil {
			wait := policy.NextBackOff()
			w.logger.Warn("websocket connect failed, retrying",
				"error", err.Error(), "retry_in", wait.String())
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		policy.Reset()
		w.readLoop(ctx)
	}
}

type wsSubscription struct {
	Method       string                 `json:"method"`
	Subscription map[string]interface{} `json:"subscription"`
}

type wsMessage struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

func (w *WSClient) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.url, err)
	}

	subs := []wsSubscription{
		{Method: "subscribe", Subscription: map[string]interface{}{"type": "allMids"}},
	}
	if w.user != "" {
		subs = append(subs, wsSubscription{
			Method:       "subscribe",
			Subscription: map[string]interface{}{"type": "userFills", "user": w.user},
		})
	}
	for _, sub := range subs {
		if err := conn.WriteJSON(sub); err != nil {
			conn.Close()
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	w.mu.Lock()
	w.conn = conn
	w.lastMessage = time.Now()
	w.mu.Unlock()

	w.logger.Info("websocket connected", "url", w.url, "subscriptions", len(subs))
	return nil
}

func (w *WSClient) readLoop(ctx context.Context) {
	conn := w.conn

	// The server drops idle connections; an application-level ping
	// keeps the stream alive.
	pingDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ticker.C:
				// A stale stream means the server stopped answering
				// pings; close so the read loop reconnects.
				if w.LastMessageAge() > 2*time.Minute {
					w.logger.Warn("websocket stale, forcing reconnect")
					conn.Close()
					return
				}
				msg := map[string]string{"method": "ping"}
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			}
		}
	}()
	defer close(pingDone)

	for {
		if ctx.Err() != nil {
			return
		}

		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				w.logger.Warn("websocket read error, reconnecting", "error", err.Error())
			}
			conn.Close()
			return
		}

		w.mu.Lock()
		w.lastMessage = time.Now()
		w.mu.Unlock()

		w.dispatch(msg)
	}
}

func (w *WSClient) dispatch(msg wsMessage) {
	switch msg.Channel {
	case "allMids":
		if w.onMids == nil {
			return
		}
		var data struct {
			Mids map[string]string `json:"mids"`
		}
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			w.logger.Warn("bad allMids payload", "error", err.Error())
			return
		}
		mids := make(map[string]float64, len(data.Mids))
		for coin, px := range data.Mids {
			mids[coin] = parseFloat(px)
		}
		w.onMids(mids)

	case "userFills":
		if w.onFills == nil {
			return
		}
		var data struct {
			IsSnapshot bool   `json:"isSnapshot"`
			Fills      []Fill `json:"fills"`
		}
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			w.logger.Warn("bad userFills payload", "error", err.Error())
			return
		}
		// The initial snapshot replays history already accounted for.
		if data.IsSnapshot {
			return
		}
		w.onFills(data.Fills)

	case "pong", "subscriptionResponse":
		// keepalive traffic

	default:
		w.logger.Debug("unhandled websocket channel", "channel", msg.Channel)
	}
}

// LastMessageAge reports time since the last received frame, for health
// checks.
func (w *WSClient) LastMessageAge() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lastMessage.IsZero() {
		return 0
	}
	return time.Since(w.lastMessage)
}
