package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// NotificationType classifies a message for routing and formatting.
type NotificationType string

const (
	NotifyFill         NotificationType = "fill"
	NotifyTradeClose   NotificationType = "trade_close"
	NotifyCircuit      NotificationType = "circuit"
	NotifyDistribution NotificationType = "distribution"
	NotifyVault        NotificationType = "vault"
	NotifyError        NotificationType = "error"
	NotifyInfo         NotificationType = "info"
)

// Notification is one outbound message.
type Notification struct {
	Type       NotificationType
	Title      string
	Message    string
	Coin       string
	Price      float64
	PnL        float64
	PnLPercent float64
	Timestamp  time.Time
	Extra      map[string]interface{}
}

// Notifier is a delivery channel.
type Notifier interface {
	Send(notification *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager fans a notification out to every enabled channel.
type Manager struct {
	notifiers []Notifier
	enabled   bool
}

func NewManager(enabled bool) *Manager {
	return &Manager{
		notifiers: make([]Notifier, 0),
		enabled:   enabled,
	}
}

func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send delivers to all enabled channels, returning the last error.
func (m *Manager) Send(notification *Notification) error {
	if !m.enabled {
		return nil
	}

	var lastErr error
	for _, n := range m.notifiers {
		if n.IsEnabled() {
			if err := n.Send(notification); err != nil {
				lastErr = err
			}
		}
	}
	return lastErr
}

// SendFill announces an order fill.
func (m *Manager) SendFill(coin, side string, price, size float64) error {
	emoji := "🟢"
	if side == "A" || side == "SELL" {
		emoji = "🔴"
	}

	return m.Send(&Notification{
		Type:      NotifyFill,
		Title:     fmt.Sprintf("%s Fill: %s", emoji, coin),
		Message:   fmt.Sprintf("%s %s @ %.5g\nSize: %.5g", side, coin, price, size),
		Coin:      coin,
		Price:     price,
		Timestamp: time.Now(),
	})
}

// SendTradeClose announces a closed round trip.
func (m *Manager) SendTradeClose(coin string, entryPrice, exitPrice, pnl, pnlPercent float64) error {
	emoji := "✅"
	if pnl < 0 {
		emoji = "❌"
	}

	return m.Send(&Notification{
		Type:       NotifyTradeClose,
		Title:      fmt.Sprintf("%s Round Trip: %s", emoji, coin),
		Message:    fmt.Sprintf("Entry: %.5g, Exit: %.5g\nP&L: %.4f (%.2f%%)", entryPrice, exitPrice, pnl, pnlPercent),
		Coin:       coin,
		Price:      exitPrice,
		PnL:        pnl,
		PnLPercent: pnlPercent,
		Timestamp:  time.Now(),
	})
}

// SendCircuit announces a circuit breaker state change.
func (m *Manager) SendCircuit(state, reason string) error {
	emoji := "🛑"
	if state == "closed" {
		emoji = "🟢"
	}

	return m.Send(&Notification{
		Type:      NotifyCircuit,
		Title:     fmt.Sprintf("%s Circuit Breaker: %s", emoji, state),
		Message:   reason,
		Timestamp: time.Now(),
	})
}

// SendDistribution announces a completed profit distribution.
func (m *Manager) SendDistribution(key string, paidOut float64, usersPaid int) error {
	return m.Send(&Notification{
		Type:      NotifyDistribution,
		Title:     fmt.Sprintf("💰 Profit Distribution %s", key),
		Message:   fmt.Sprintf("Paid $%.2f to %d depositors", paidOut, usersPaid),
		PnL:       paidOut,
		Timestamp: time.Now(),
	})
}

// SendError announces an operational error.
func (m *Manager) SendError(title, message string) error {
	return m.Send(&Notification{
		Type:      NotifyError,
		Title:     fmt.Sprintf("⚠️ %s", title),
		Message:   message,
		Timestamp: time.Now(),
	})
}

// TelegramNotifier posts to the admin channel through the Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	enabled  bool
	client   *http.Client
}

type TelegramConfig struct {
	BotToken string
	ChatID   string
	Enabled  bool
}

func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: config.BotToken,
		chatID:   config.ChatID,
		enabled:  config.Enabled && config.BotToken != "" && config.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

func (t *TelegramNotifier) Send(notification *Notification) error {
	if !t.enabled {
		return nil
	}

	message := fmt.Sprintf("*%s*\n\n%s", notification.Title, notification.Message)

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// DiscordNotifier posts embeds to a webhook.
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

type DiscordConfig struct {
	WebhookURL string
	Enabled    bool
}

func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: config.WebhookURL,
		enabled:    config.Enabled && config.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string {
	return "discord"
}

func (d *DiscordNotifier) IsEnabled() bool {
	return d.enabled
}

func (d *DiscordNotifier) Send(notification *Notification) error {
	if !d.enabled {
		return nil
	}

	color := 0x00FF00
	if notification.Type == NotifyError || notification.Type == NotifyCircuit {
		color = 0xFF0000
	} else if notification.Type == NotifyTradeClose && notification.PnL < 0 {
		color = 0xFF0000
	}

	embed := map[string]interface{}{
		"title":       notification.Title,
		"description": notification.Message,
		"color":       color,
		"timestamp":   notification.Timestamp.Format(time.RFC3339),
	}

	if notification.Coin != "" {
		fields := []map[string]interface{}{
			{"name": "Coin", "value": notification.Coin, "inline": true},
		}
		if notification.Price > 0 {
			fields = append(fields, map[string]interface{}{
				"name": "Price", "value": fmt.Sprintf("%.5g", notification.Price), "inline": true,
			})
		}
		if notification.PnL != 0 {
			fields = append(fields, map[string]interface{}{
				"name": "P&L", "value": fmt.Sprintf("%.4f (%.2f%%)", notification.PnL, notification.PnLPercent), "inline": true,
			})
		}
		embed["fields"] = fields
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}

	return nil
}
