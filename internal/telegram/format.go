package telegram

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"hyperliquid-alpha-bot/internal/analytics"
	"hyperliquid-alpha-bot/internal/hyperliquid"
	"hyperliquid-alpha-bot/internal/ledger"
)

var hundred = decimal.NewFromInt(100)

func formatUSD(v float64) string {
	switch {
	case v >= 1000:
		return fmt.Sprintf("$%.2f", v)
	case v >= 1:
		return fmt.Sprintf("$%.4f", v)
	default:
		return fmt.Sprintf("$%.6f", v)
	}
}

func formatPortfolio(state *hyperliquid.UserState) string {
	var sb strings.Builder
	sb.WriteString("*Portfolio*\n\n")
	sb.WriteString(fmt.Sprintf("Equity: `$%s`\n", state.MarginSummary.AccountValue))
	sb.WriteString(fmt.Sprintf("Margin used: `$%s`\n", state.MarginSummary.TotalMarginUsed))
	sb.WriteString(fmt.Sprintf("Withdrawable: `$%s`\n", state.Withdrawable))

	if len(state.AssetPositions) == 0 {
		sb.WriteString("\nNo open positions.")
		return sb.String()
	}

	sb.WriteString("\n*Positions*\n")
	for _, ap := range state.AssetPositions {
		p := ap.Position
		szi, _ := strconv.ParseFloat(p.Szi, 64)
		if szi == 0 {
			continue
		}
		side := "LONG"
		if szi < 0 {
			side = "SHORT"
		}
		entry := "-"
		if p.EntryPx != nil {
			entry = *p.EntryPx
		}
		sb.WriteString(fmt.Sprintf("`%s` %s %s @ %s (uPnL %s)\n",
			p.Coin, side, p.Szi, entry, p.UnrealizedPnl))
	}
	return sb.String()
}

func formatVault(users []*ledger.VaultUser, report *ledger.ReconcileReport, mine *ledger.VaultUser) string {
	var sb strings.Builder
	sb.WriteString("*Vault*\n\n")
	sb.WriteString(fmt.Sprintf("Depositors: %d\n", len(users)))
	sb.WriteString(fmt.Sprintf("Ledger TVL: `$%s`\n", report.LedgerTVL.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Vault equity: `$%s`\n", report.VaultEquity.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Drift: `$%s`\n", report.Drift.StringFixed(2)))

	if mine != nil {
		sb.WriteString(fmt.Sprintf(
			"\n*Your position*\nDeposit: `$%s`\nEarned: `$%s`\n",
			mine.DepositAmount.StringFixed(2), mine.TotalProfitsEarned.StringFixed(2)))
		if !report.LedgerTVL.IsZero() {
			share := mine.OwnershipShare(report.LedgerTVL).Mul(hundred)
			sb.WriteString(fmt.Sprintf("Share: `%s%%`\n", share.StringFixed(2)))
		}
	}
	return sb.String()
}

func formatStats(statuses map[string]map[string]interface{}, breakerStats map[string]interface{}, dailyPnl []string) string {
	var sb strings.Builder
	sb.WriteString("*Stats*\n\n")
	sb.WriteString(fmt.Sprintf("Circuit: `%v`\n", breakerStats["state"]))

	if len(statuses) == 0 {
		sb.WriteString("No strategies running.\n")
	} else {
		sb.WriteString("\n*Strategies*\n")
		for id := range statuses {
			sb.WriteString(fmt.Sprintf("`%s`\n", id))
		}
	}

	if len(dailyPnl) > 0 {
		sb.WriteString("\n*Daily PnL*\n")
		sb.WriteString(strings.Join(dailyPnl, "\n"))
	}
	return sb.String()
}

func formatFeeReport(report *analytics.FeeReport) string {
	var sb strings.Builder
	sb.WriteString("*Fees (14d)*\n\n")
	sb.WriteString(fmt.Sprintf("Volume: `$%.0f`\n", report.Volume.TotalVolume))
	sb.WriteString(fmt.Sprintf("Maker share: `%.2f%%`\n", report.Volume.MakerSharePct))
	sb.WriteString(fmt.Sprintf("Fees paid: `$%.2f`\n", report.Volume.FeesPaid))
	sb.WriteString(fmt.Sprintf("Rebates earned: `$%.2f`\n", report.Volume.RebatesEarned))
	sb.WriteString(fmt.Sprintf("\nTier: *%s* (taker %.2f bps / maker %.2f bps)\n",
		report.Tier.Name, report.Tier.TakerFee*10000, report.Tier.MakerFee*10000))
	if report.RebateTier != nil {
		sb.WriteString(fmt.Sprintf("Rebate tier: *%s* (%.2f bps)\n",
			report.RebateTier.Name, report.RebateTier.Rebate*10000))
	}
	if report.NextTierAt > 0 {
		sb.WriteString(fmt.Sprintf("Next tier at: `$%.0f`\n", report.NextTierAt))
	}
	return sb.String()
}
