package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"hyperliquid-alpha-bot/config"
	"hyperliquid-alpha-bot/internal/analytics"
	"hyperliquid-alpha-bot/internal/cache"
	"hyperliquid-alpha-bot/internal/circuit"
	"hyperliquid-alpha-bot/internal/engine"
	"hyperliquid-alpha-bot/internal/hyperliquid"
	"hyperliquid-alpha-bot/internal/ledger"
	"hyperliquid-alpha-bot/internal/logging"
	"hyperliquid-alpha-bot/internal/strategy"
)

const handlerTimeout = 30 * time.Second

// Bot is the Telegram frontend. All trading control runs through it;
// the HTTP API is read-mostly.
type Bot struct {
	api        *tgbotapi.BotAPI
	cfg        config.TelegramConfig
	appCfg     *config.Config
	engine     *engine.TradingEngine
	strategies *strategy.Manager
	info       *hyperliquid.InfoClient
	vault      *ledger.Manager
	stats      *analytics.Service
	breaker    *circuit.Breaker
	cache      *cache.Service
	sessions   *Registry
	address    string
	logger     *logging.Logger

	// runCtx outlives individual commands; strategies started from
	// chat are parented to it so they survive the handler returning.
	runCtx context.Context
}

func NewBot(
	cfg config.TelegramConfig,
	appCfg *config.Config,
	eng *engine.TradingEngine,
	strategies *strategy.Manager,
	info *hyperliquid.InfoClient,
	vault *ledger.Manager,
	stats *analytics.Service,
	breaker *circuit.Breaker,
	cacheSvc *cache.Service,
	address string,
	logger *logging.Logger,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Bot{
		api:        api,
		cfg:        cfg,
		appCfg:     appCfg,
		engine:     eng,
		strategies: strategies,
		info:       info,
		vault:      vault,
		stats:      stats,
		breaker:    breaker,
		cache:      cacheSvc,
		sessions:   NewRegistry(),
		address:    address,
		logger:     logger.WithComponent("telegram"),
	}, nil
}

// Run long-polls for updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.runCtx = ctx
	b.logger.Info("telegram bot started", "username", b.api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	prune := time.NewTicker(15 * time.Minute)
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case <-prune.C:
			if n := b.sessions.Prune(2 * time.Hour); n > 0 {
				b.logger.Debug("pruned idle sessions", "count", n)
			}
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	command := msg.Command()

	if !b.cfg.IsAllowed(userID) {
		b.reply(msg.Chat.ID, "You are not authorized to use this bot.")
		return
	}

	if !b.checkCooldown(ctx, msg.Chat.ID, command) {
		b.reply(msg.Chat.ID, "Slow down, please retry in a moment.")
		return
	}

	session := b.sessions.GetOrCreate(userID)
	session.Touch()

	hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	args := strings.Fields(msg.CommandArguments())
	var err error
	switch command {
	case "start":
		err = b.handleStart(msg)
	case "help":
		err = b.handleHelp(msg)
	case "price":
		err = b.handlePrice(hctx, msg, args)
	case "portfolio":
		err = b.handlePortfolio(hctx, msg)
	case "trade":
		err = b.handleTrade(hctx, msg, args)
	case "grid":
		err = b.handleGrid(hctx, msg, args)
	case "rebate":
		err = b.handleRebate(hctx, msg, args)
	case "airdrop":
		err = b.handleAirdrop(hctx, msg)
	case "stop":
		err = b.handleStop(msg, args)
	case "vault":
		err = b.handleVault(hctx, msg)
	case "deposit":
		err = b.handleDeposit(hctx, msg, args)
	case "withdraw":
		err = b.handleWithdraw(hctx, msg, args)
	case "stats":
		err = b.handleStats(hctx, msg)
	case "fees":
		err = b.handleFees(hctx, msg)
	case "admin":
		err = b.handleAdmin(hctx, msg, args)
	default:
		b.reply(msg.Chat.ID, "Unknown command, see /help.")
		return
	}

	if err != nil {
		b.logger.Warn("command failed", "command", command, "user_id", userID, "error", err.Error())
		b.reply(msg.Chat.ID, fmt.Sprintf("⚠️ %s failed: %s", command, err.Error()))
	}
}

// checkCooldown is permissive when redis is down; the exchange rate
// limiter still protects the API budget.
func (b *Bot) checkCooldown(ctx context.Context, chatID int64, command string) bool {
	if b.cache == nil || b.cfg.CommandCooldown <= 0 {
		return true
	}
	// Read-only commands stay snappy.
	switch command {
	case "start", "help", "price", "stats", "fees", "portfolio", "vault":
		return true
	}
	return b.cache.TryCooldown(ctx, chatID, command, time.Duration(b.cfg.CommandCooldown)*time.Second)
}

func (b *Bot) requireAdmin(msg *tgbotapi.Message) bool {
	if b.cfg.IsAdmin(msg.From.ID) {
		return true
	}
	b.reply(msg.Chat.ID, "Admin only.")
	return false
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("telegram send failed", "chat_id", chatID, "error", err.Error())
	}
}
