package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"hyperliquid-alpha-bot/config"
	"hyperliquid-alpha-bot/internal/analytics"
	"hyperliquid-alpha-bot/internal/api"
	"hyperliquid-alpha-bot/internal/cache"
	"hyperliquid-alpha-bot/internal/circuit"
	"hyperliquid-alpha-bot/internal/engine"
	"hyperliquid-alpha-bot/internal/events"
	"hyperliquid-alpha-bot/internal/hyperliquid"
	"hyperliquid-alpha-bot/internal/ledger"
	"hyperliquid-alpha-bot/internal/logging"
	"hyperliquid-alpha-bot/internal/notification"
	"hyperliquid-alpha-bot/internal/orders"
	"hyperliquid-alpha-bot/internal/risk"
	"hyperliquid-alpha-bot/internal/secrets"
	"hyperliquid-alpha-bot/internal/strategy"
	"hyperliquid-alpha-bot/internal/telegram"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "init-config" {
		if err := config.GenerateSampleConfig("config.json"); err != nil {
			log.Fatalf("Failed to write sample config: %v", err)
		}
		log.Println("Wrote config.json")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := events.NewBus()

	notifyManager := notification.NewManager(cfg.NotifyConfig.Enabled)
	if cfg.NotifyConfig.Enabled {
		if cfg.NotifyConfig.TelegramEnabled {
			notifyManager.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
				BotToken: cfg.TelegramConfig.BotToken,
				ChatID:   cfg.TelegramConfig.AdminChatID,
				Enabled:  true,
			}))
			logger.Info("Telegram notifications enabled")
		}
		if cfg.NotifyConfig.DiscordEnabled {
			notifyManager.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{
				WebhookURL: cfg.NotifyConfig.DiscordWebhookURL,
				Enabled:    true,
			}))
			logger.Info("Discord notifications enabled")
		}
	}
	wireNotifications(eventBus, notifyManager)

	riskManager := risk.NewManager(risk.Config{
		MaxRiskPerTrade:    cfg.RiskConfig.MaxRiskPerTrade,
		MaxDailyDrawdown:   cfg.RiskConfig.MaxDailyDrawdown,
		MaxOpenPositions:   cfg.RiskConfig.MaxOpenPositions,
		PositionSizeMethod: cfg.RiskConfig.PositionSizeMethod,
		FixedPositionSize:  cfg.RiskConfig.FixedPositionSize,
		MinAccountBalance:  cfg.RiskConfig.MinAccountBalance,
		MinOrderSizeUSD:    cfg.TradingConfig.MinOrderSizeUSD,
		MaxOrderSizeUSD:    cfg.TradingConfig.MaxOrderSizeUSD,
	})

	breaker := circuit.NewBreaker(circuit.Config{
		Enabled:              cfg.CircuitConfig.Enabled,
		MaxLossPerHour:       cfg.CircuitConfig.MaxLossPerHour,
		MaxConsecutiveLosses: cfg.CircuitConfig.MaxConsecutiveLosses,
		CooldownMinutes:      cfg.CircuitConfig.CooldownMinutes,
		MaxTradesPerMinute:   cfg.CircuitConfig.MaxTradesPerMinute,
		MaxDailyLoss:         cfg.CircuitConfig.MaxDailyLoss,
		MaxDailyTrades:       cfg.CircuitConfig.MaxDailyTrades,
	}, eventBus)

	cacheSvc := cache.NewService(cfg.RedisConfig, logger)
	defer cacheSvc.Close()

	secretsClient, err := secrets.NewClient(cfg.SecretsConfig)
	if err != nil {
		log.Fatalf("Failed to create secrets client: %v", err)
	}

	privateKey := loadAgentKey(ctx, cfg, secretsClient)
	if privateKey == "" {
		log.Fatal("No agent wallet key: set HL_AGENT_PRIVATE_KEY or store one in the secrets backend")
	}

	signer, err := hyperliquid.NewSigner(privateKey, !cfg.HyperliquidConfig.TestNet)
	if err != nil {
		log.Fatalf("Failed to create signer: %v", err)
	}

	timeout := cfg.HyperliquidConfig.HTTPTimeout()
	info := hyperliquid.NewInfoClient(cfg.HyperliquidConfig.APIURL, timeout)
	exchange := hyperliquid.NewExchangeClient(
		cfg.HyperliquidConfig.APIURL, timeout, signer, info, cfg.HyperliquidConfig.VaultAddress)
	tradingAddress := exchange.TradingAddress()
	logger.Info("Exchange client ready",
		"agent", signer.Address().Hex(), "trading_address", tradingAddress,
		"testnet", cfg.HyperliquidConfig.TestNet)

	tracker := orders.NewTracker(zerolog.New(os.Stdout).With().Timestamp().Logger())

	tradingEngine := engine.New(exchange, info, tracker, breaker, riskManager, eventBus, logger, engine.Config{
		DefaultSlippageBps: cfg.TradingConfig.DefaultSlippageBps,
		DryRun:             cfg.TradingConfig.DryRun,
	})

	if err := tradingEngine.SyncAccount(ctx); err != nil {
		logger.Warn("Initial account sync failed", "error", err.Error())
	}
	go runAccountSync(ctx, tradingEngine, logger)
	go runTrackerPrune(ctx, tracker, logger)

	stats := analytics.NewService(info, tradingAddress, logger)

	var vaultManager *ledger.Manager
	if cfg.VaultConfig.Enabled {
		db, err := ledger.NewDB(cfg.DatabaseConfig, logger)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}

		repo := ledger.NewRepository(db)
		equity := func(ctx context.Context) (decimal.Decimal, error) {
			state, err := info.UserState(ctx, tradingAddress)
			if err != nil {
				return decimal.Zero, err
			}
			return decimal.NewFromString(state.MarginSummary.AccountValue)
		}
		vaultManager = ledger.NewManager(
			repo, exchange, equity, cfg.VaultConfig, cfg.HyperliquidConfig.VaultAddress, eventBus, logger)
		logger.Info("Vault ledger ready")
	}

	strategies := strategy.NewManager(getEnvInt("MAX_STRATEGIES", 8), eventBus, logger)

	ws := hyperliquid.NewWSClient(cfg.HyperliquidConfig.WSURL, tradingAddress, logger)
	ws.OnMids(func(mids map[string]float64) {
		for coin, mid := range mids {
			cacheSvc.SetMid(ctx, coin, mid)
		}
	})
	ws.OnFills(func(fills []hyperliquid.Fill) {
		for _, f := range fills {
			px, _ := strconv.ParseFloat(f.Px, 64)
			sz, _ := strconv.ParseFloat(f.Sz, 64)
			pnl, _ := strconv.ParseFloat(f.ClosedPnl, 64)
			fee, _ := strconv.ParseFloat(f.Fee, 64)

			if f.Cloid != "" {
				tracker.RecordFill(f.Cloid, sz, px)
			}
			strategies.RouteFill(f)
			eventBus.PublishOrderFilled(f.Coin, f.Side, px, sz, pnl, fee)
		}
	})
	if err := ws.Start(ctx); err != nil {
		log.Fatalf("Failed to start websocket client: %v", err)
	}
	defer ws.Stop()

	airdropDeps := strategy.AirdropDeps{
		Account:   info,
		Address:   tradingAddress,
		Vault:     exchange,
		VaultAddr: cfg.HyperliquidConfig.VaultAddress,
	}
	autostartStrategies(ctx, cfg, tradingEngine, strategies, cacheSvc, airdropDeps, logger)

	if cfg.TelegramConfig.Enabled {
		bot, err := telegram.NewBot(
			cfg.TelegramConfig, cfg, tradingEngine, strategies, info,
			vaultManager, stats, breaker, cacheSvc, tradingAddress, logger)
		if err != nil {
			log.Fatalf("Failed to create telegram bot: %v", err)
		}
		go func() {
			if err := bot.Run(ctx); err != nil && err != context.Canceled {
				logger.Error("Telegram bot stopped", "error", err.Error())
			}
		}()
	}

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		server = api.NewServer(
			cfg.ServerConfig, strategies, breaker, riskManager, stats, vaultSource(vaultManager), logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("API server stopped", "error", err.Error())
			}
		}()
	}

	if vaultManager != nil {
		go runDistributionLoop(ctx, vaultManager, stats, notifyManager, logger)
	}

	logger.Info("Hyperliquid alpha bot running", "dry_run", cfg.TradingConfig.DryRun)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down")
	cancel()
	strategies.StopAll()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(
			context.Background(), time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("API shutdown error", "error", err.Error())
		}
	}
	logger.Info("Shutdown complete")
}

// loadAgentKey prefers the environment, then the secrets backend keyed
// by the first configured admin.
func loadAgentKey(ctx context.Context, cfg *config.Config, secretsClient *secrets.Client) string {
	if key := os.Getenv("HL_AGENT_PRIVATE_KEY"); key != "" {
		return key
	}
	if len(cfg.TelegramConfig.AdminUsers) == 0 {
		return ""
	}
	walletKey, err := secretsClient.GetWalletKey(ctx, cfg.TelegramConfig.AdminUsers[0], cfg.HyperliquidConfig.TestNet)
	if err != nil {
		return ""
	}
	return walletKey.PrivateKey
}

// autostartStrategies launches the strategies enabled in config.
// Grid and rebate need a coin, taken from the environment; the
// Telegram /grid and /rebate commands cover ad-hoc starts.
func autostartStrategies(
	ctx context.Context,
	cfg *config.Config,
	eng *engine.TradingEngine,
	strategies *strategy.Manager,
	cacheSvc *cache.Service,
	airdropDeps strategy.AirdropDeps,
	logger *logging.Logger,
) {
	if cfg.GridConfig.Enabled {
		if coin := os.Getenv("HL_GRID_COIN"); coin != "" {
			grid := strategy.NewGrid(eng, cfg.GridConfig, coin, nil, logger)
			if err := strategies.Start(ctx, "grid:"+coin, grid); err != nil {
				logger.Error("Grid autostart failed", "coin", coin, "error", err.Error())
			}
		}
	}
	if cfg.RebateConfig.Enabled {
		if coin := os.Getenv("HL_REBATE_COIN"); coin != "" {
			rebate := strategy.NewRebate(eng, cfg.RebateConfig, coin, logger)
			if err := strategies.Start(ctx, "rebate:"+coin, rebate); err != nil {
				logger.Error("Rebate autostart failed", "coin", coin, "error", err.Error())
			}
		}
	}
	if cfg.AirdropConfig.Enabled {
		airdrop := strategy.NewAirdrop(eng, cfg.AirdropConfig, cacheSvc, airdropDeps, logger)
		if err := strategies.Start(ctx, "airdrop", airdrop); err != nil {
			logger.Error("Airdrop autostart failed", "error", err.Error())
		}
	}
}

// wireNotifications forwards operational events to the notify channels.
func wireNotifications(bus *events.Bus, notify *notification.Manager) {
	bus.Subscribe(events.EventCircuitTripped, func(e events.Event) {
		reason, _ := e.Data["reason"].(string)
		notify.SendCircuit("open", reason)
	})
	bus.Subscribe(events.EventCircuitReset, func(e events.Event) {
		notify.SendCircuit("closed", "cooldown elapsed")
	})
	bus.Subscribe(events.EventProfitDistributed, func(e events.Event) {
		key, _ := e.Data["key"].(string)
		paidOut, _ := e.Data["paid_out"].(float64)
		usersPaid, _ := e.Data["users_paid"].(int)
		notify.SendDistribution(key, paidOut, usersPaid)
	})
	bus.Subscribe(events.EventError, func(e events.Event) {
		source, _ := e.Data["source"].(string)
		message, _ := e.Data["message"].(string)
		notify.SendError(source, message)
	})
}

// runDistributionLoop pays out yesterday's realized profit once a day.
// The distribution key makes a restart mid-run harmless.
// runAccountSync keeps the risk limits fed with fresh equity and
// position counts so the drawdown and exposure gates stay live.
func runAccountSync(ctx context.Context, eng *engine.TradingEngine, logger *logging.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := eng.SyncAccount(ctx); err != nil {
				logger.Warn("Account sync failed", "error", err.Error())
			}
		}
	}
}

// runTrackerPrune drops old terminal orders so the tracker map stays
// bounded over long runs.
func runTrackerPrune(ctx context.Context, tracker *orders.Tracker, logger *logging.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := tracker.Prune(24 * time.Hour); n > 0 {
				logger.Debug("pruned order tracker", "count", n)
			}
		}
	}
}

func runDistributionLoop(
	ctx context.Context,
	vault *ledger.Manager,
	stats *analytics.Service,
	notify *notification.Manager,
	logger *logging.Logger,
) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		yesterday := time.Now().UTC().AddDate(0, 0, -1)
		key := ledger.DistributionKeyFor(yesterday)

		days, err := stats.DailyPnlSummary(ctx, 2)
		if err != nil {
			logger.Warn("Distribution PnL lookup failed", "error", err.Error())
			continue
		}
		var realized float64
		for _, d := range days {
			if d.Day == key {
				realized = d.Realized
			}
		}
		if realized <= 0 {
			continue
		}

		result, err := vault.DistributeProfits(ctx, key, decimal.NewFromFloat(realized))
		if err != nil {
			if err != ledger.ErrNothingToShare {
				logger.Warn("Distribution failed", "key", key, "error", err.Error())
			}
			continue
		}
		if result.UsersPaid > 0 {
			notify.SendDistribution(key, result.PaidOut.InexactFloat64(), result.UsersPaid)
		}
	}
}

// vaultSource adapts a possibly-nil manager to the API's interface.
func vaultSource(m *ledger.Manager) api.VaultSource {
	if m == nil {
		return nil
	}
	return m
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
