package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"hyperliquid-alpha-bot/internal/engine"
	"hyperliquid-alpha-bot/internal/ledger"
	"hyperliquid-alpha-bot/internal/strategy"
)

func (b *Bot) handleStart(msg *tgbotapi.Message) error {
	b.reply(msg.Chat.ID, fmt.Sprintf(
		"🚀 *Hyperliquid Alpha Bot*\n\nTrading address: `%s`\n\nSee /help for commands.", b.address))
	return nil
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	help := `*Commands*

*Market*
/price <COIN> - mid price
/portfolio - positions and equity
/trade <COIN> <buy|sell> <usd> [limitPx] - place an order

*Strategies*
/grid <COIN> - start grid trading
/rebate <COIN> - start maker rebate mining
/airdrop - start airdrop farming
/stop <id|all> - stop strategies

*Vault*
/vault - pool overview
/deposit <usd> [referrerID] - record a deposit
/withdraw <usd|all> - withdraw from the pool

*Stats*
/stats - PnL and risk
/fees - fee tier and maker volume`
	if b.cfg.IsAdmin(msg.From.ID) {
		help += "\n\n*Admin*\n/admin status|reset|distribute <key> <usd>|reconcile"
	}
	b.reply(msg.Chat.ID, help)
	return nil
}

func (b *Bot) handlePrice(ctx context.Context, msg *tgbotapi.Message, args []string) error {
	if len(args) < 1 {
		b.reply(msg.Chat.ID, "Usage: /price <COIN>")
		return nil
	}
	coin := strings.ToUpper(args[0])

	mid, err := b.engine.Mid(ctx, coin)
	if err != nil {
		return err
	}
	b.sessions.GetOrCreate(msg.From.ID).SetDefaultCoin(coin)
	b.reply(msg.Chat.ID, fmt.Sprintf("*%s* mid: `%s`", coin, formatUSD(mid)))
	return nil
}

func (b *Bot) handlePortfolio(ctx context.Context, msg *tgbotapi.Message) error {
	state, err := b.info.UserState(ctx, b.address)
	if err != nil {
		return err
	}
	b.reply(msg.Chat.ID, formatPortfolio(state))
	return nil
}

func (b *Bot) handleTrade(ctx context.Context, msg *tgbotapi.Message, args []string) error {
	if !b.requireAdmin(msg) {
		return nil
	}
	if len(args) < 3 {
		b.reply(msg.Chat.ID, "Usage: /trade <COIN> <buy|sell> <usd> [limitPx]")
		return nil
	}

	coin := strings.ToUpper(args[0])
	side := strings.ToLower(args[1])
	if side != "buy" && side != "sell" {
		b.reply(msg.Chat.ID, "Side must be buy or sell.")
		return nil
	}
	usd, err := strconv.ParseFloat(args[2], 64)
	if err != nil || usd <= 0 {
		b.reply(msg.Chat.ID, "Bad USD amount.")
		return nil
	}

	mid, err := b.engine.Mid(ctx, coin)
	if err != nil {
		return err
	}

	params := engine.OrderParams{
		Coin:     coin,
		IsBuy:    side == "buy",
		Size:     usd / mid,
		Strategy: "manual",
	}

	var placement *engine.Placement
	if len(args) >= 4 {
		limitPx, err := strconv.ParseFloat(args[3], 64)
		if err != nil || limitPx <= 0 {
			b.reply(msg.Chat.ID, "Bad limit price.")
			return nil
		}
		params.Price = limitPx
		params.Size = usd / limitPx
		placement, err = b.engine.PlaceLimit(ctx, params, "Gtc")
		if err != nil {
			return err
		}
	} else {
		placement, err = b.engine.PlaceMarket(ctx, params)
		if err != nil {
			return err
		}
	}

	b.reply(msg.Chat.ID, fmt.Sprintf(
		"Order %s\nCloid: `%s`\nStatus: %s", coin, placement.Cloid, placement.Status))
	return nil
}

func (b *Bot) handleGrid(ctx context.Context, msg *tgbotapi.Message, args []string) error {
	if !b.requireAdmin(msg) {
		return nil
	}
	if len(args) < 1 {
		b.reply(msg.Chat.ID, "Usage: /grid <COIN>")
		return nil
	}
	coin := strings.ToUpper(args[0])
	id := "grid:" + coin

	grid := strategy.NewGrid(b.engine, b.appCfg.GridConfig, coin, nil, b.logger)
	if err := b.strategies.Start(b.runCtx, id, grid); err != nil {
		return err
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("Grid started on *%s* (`%s`). Stop with /stop %s", coin, id, id))
	return nil
}

func (b *Bot) handleRebate(ctx context.Context, msg *tgbotapi.Message, args []string) error {
	if !b.requireAdmin(msg) {
		return nil
	}
	if len(args) < 1 {
		b.reply(msg.Chat.ID, "Usage: /rebate <COIN>")
		return nil
	}
	coin := strings.ToUpper(args[0])
	id := "rebate:" + coin

	rebate := strategy.NewRebate(b.engine, b.appCfg.RebateConfig, coin, b.logger)
	if err := b.strategies.Start(b.runCtx, id, rebate); err != nil {
		return err
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("Rebate mining started on *%s* (`%s`).", coin, id))
	return nil
}

func (b *Bot) handleAirdrop(ctx context.Context, msg *tgbotapi.Message) error {
	if !b.requireAdmin(msg) {
		return nil
	}
	id := "airdrop"

	deps := strategy.AirdropDeps{Account: b.info, Address: b.address}
	airdrop := strategy.NewAirdrop(b.engine, b.appCfg.AirdropConfig, b.cache, deps, b.logger)
	if err := b.strategies.Start(b.runCtx, id, airdrop); err != nil {
		return err
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("Airdrop farming started (%d interactions/day).",
		b.appCfg.AirdropConfig.DailyInteractions))
	return nil
}

func (b *Bot) handleStop(msg *tgbotapi.Message, args []string) error {
	if !b.requireAdmin(msg) {
		return nil
	}
	if len(args) < 1 {
		b.reply(msg.Chat.ID, "Usage: /stop <id|all>  (ids from /stats)")
		return nil
	}

	if args[0] == "all" {
		b.strategies.StopAll()
		b.reply(msg.Chat.ID, "All strategies stopped.")
		return nil
	}

	if err := b.strategies.Stop(args[0]); err != nil {
		return err
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("Stopped `%s`.", args[0]))
	return nil
}

func (b *Bot) handleVault(ctx context.Context, msg *tgbotapi.Message) error {
	if b.vault == nil {
		b.reply(msg.Chat.ID, "Vault is disabled.")
		return nil
	}

	users, err := b.vault.Users(ctx)
	if err != nil {
		return err
	}
	report, err := b.vault.Reconcile(ctx)
	if err != nil {
		return err
	}

	var mine *ledger.VaultUser
	if u, err := b.vault.User(ctx, msg.From.ID); err == nil {
		mine = u
	}
	b.reply(msg.Chat.ID, formatVault(users, report, mine))
	return nil
}

func (b *Bot) handleDeposit(ctx context.Context, msg *tgbotapi.Message, args []string) error {
	if b.vault == nil {
		b.reply(msg.Chat.ID, "Vault is disabled.")
		return nil
	}
	if len(args) < 1 {
		b.reply(msg.Chat.ID, "Usage: /deposit <usd> [referrerID]")
		return nil
	}

	amount, err := decimal.NewFromString(args[0])
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		b.reply(msg.Chat.ID, "Bad amount.")
		return nil
	}

	var referredBy *int64
	if len(args) >= 2 {
		if ref, err := strconv.ParseInt(args[1], 10, 64); err == nil {
			referredBy = &ref
		}
	}

	user, err := b.vault.Deposit(ctx, msg.From.ID, msg.From.UserName, amount, referredBy)
	if err != nil {
		return err
	}
	b.reply(msg.Chat.ID, fmt.Sprintf(
		"Deposit recorded: $%s\nYour total: $%s",
		amount.StringFixed(2), user.DepositAmount.StringFixed(2)))
	return nil
}

func (b *Bot) handleWithdraw(ctx context.Context, msg *tgbotapi.Message, args []string) error {
	if b.vault == nil {
		b.reply(msg.Chat.ID, "Vault is disabled.")
		return nil
	}
	if len(args) < 1 {
		b.reply(msg.Chat.ID, "Usage: /withdraw <usd|all>")
		return nil
	}

	amount := decimal.Zero
	if args[0] != "all" {
		var err error
		amount, err = decimal.NewFromString(args[0])
		if err != nil || amount.LessThanOrEqual(decimal.Zero) {
			b.reply(msg.Chat.ID, "Bad amount.")
			return nil
		}
	}

	paid, err := b.vault.Withdraw(ctx, msg.From.ID, amount)
	if err != nil {
		return err
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("Withdrawal of $%s sent.", paid.StringFixed(2)))
	return nil
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) error {
	statuses := b.strategies.Statuses()
	breakerStats := b.breaker.Stats()

	var daily []string
	if b.stats != nil {
		if pnl, err := b.stats.DailyPnlSummary(ctx, 7); err == nil {
			for _, d := range pnl {
				daily = append(daily, fmt.Sprintf("`%s`  %+.2f  (%d fills)", d.Day, d.Realized, d.FillCount))
			}
		}
	}
	b.reply(msg.Chat.ID, formatStats(statuses, breakerStats, daily))
	return nil
}

func (b *Bot) handleFees(ctx context.Context, msg *tgbotapi.Message) error {
	if b.stats == nil {
		b.reply(msg.Chat.ID, "Analytics unavailable.")
		return nil
	}
	report, err := b.stats.FeeReport(ctx)
	if err != nil {
		return err
	}
	b.reply(msg.Chat.ID, formatFeeReport(report))
	return nil
}

func (b *Bot) handleAdmin(ctx context.Context, msg *tgbotapi.Message, args []string) error {
	if !b.requireAdmin(msg) {
		return nil
	}
	if len(args) < 1 {
		b.reply(msg.Chat.ID, "Usage: /admin status|reset|distribute <key> <usd>|reconcile")
		return nil
	}

	switch args[0] {
	case "status":
		stats := b.breaker.Stats()
		b.reply(msg.Chat.ID, fmt.Sprintf(
			"Circuit: *%v*\nRunning strategies: %d", stats["state"], len(b.strategies.Statuses())))
	case "reset":
		b.breaker.ForceReset()
		b.reply(msg.Chat.ID, "Circuit breaker reset.")
	case "distribute":
		if b.vault == nil {
			b.reply(msg.Chat.ID, "Vault is disabled.")
			return nil
		}
		if len(args) < 3 {
			b.reply(msg.Chat.ID, "Usage: /admin distribute <key> <usd>")
			return nil
		}
		profit, err := decimal.NewFromString(args[2])
		if err != nil {
			b.reply(msg.Chat.ID, "Bad profit amount.")
			return nil
		}
		result, err := b.vault.DistributeProfits(ctx, args[1], profit)
		if err != nil {
			return err
		}
		b.reply(msg.Chat.ID, fmt.Sprintf(
			"Distributed $%s to %d users (%d already paid).",
			result.PaidOut.StringFixed(2), result.UsersPaid, result.UsersSkipped))
	case "reconcile":
		if b.vault == nil {
			b.reply(msg.Chat.ID, "Vault is disabled.")
			return nil
		}
		report, err := b.vault.Reconcile(ctx)
		if err != nil {
			return err
		}
		b.reply(msg.Chat.ID, fmt.Sprintf(
			"Ledger TVL: $%s\nVault equity: $%s\nDrift: $%s (%s%%)",
			report.LedgerTVL.StringFixed(2), report.VaultEquity.StringFixed(2),
			report.Drift.StringFixed(2), report.DriftPercent.StringFixed(2)))
	default:
		b.reply(msg.Chat.ID, "Unknown admin subcommand.")
	}
	return nil
}
