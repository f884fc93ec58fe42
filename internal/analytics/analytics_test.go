package analytics

import (
	"context"
	"testing"
	"time"

	"hyperliquid-alpha-bot/internal/hyperliquid"
	"hyperliquid-alpha-bot/internal/logging"
)

type mockFills struct {
	fills []hyperliquid.Fill
}

func (m *mockFills) UserFillsByTime(ctx context.Context, address string, startMs, endMs int64) ([]hyperliquid.Fill, error) {
	return m.fills, nil
}

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "error", Output: "stdout"})
}

func fill(px, sz string, crossed bool, fee, pnl string, at time.Time) hyperliquid.Fill {
	return hyperliquid.Fill{
		Coin: "BTC", Px: px, Sz: sz, Crossed: crossed,
		Fee: fee, ClosedPnl: pnl, Time: at.UnixMilli(),
	}
}

func TestVolumeWindowMakerShare(t *testing.T) {
	now := time.Now()
	src := &mockFills{fills: []hyperliquid.Fill{
		fill("100", "10", false, "-0.01", "0", now), // maker, 1000 notional, rebate
		fill("100", "20", true, "0.70", "0", now),   // taker, 2000 notional
		fill("100", "10", false, "-0.01", "0", now), // maker, 1000 notional
	}}
	svc := NewService(src, "0xabc", testLogger())

	stats, err := svc.VolumeWindow(context.Background(), 14)
	if err != nil {
		t.Fatalf("volume window failed: %v", err)
	}
	if stats.TotalVolume != 4000 {
		t.Errorf("total volume = %v, want 4000", stats.TotalVolume)
	}
	if stats.MakerVolume != 2000 || stats.TakerVolume != 2000 {
		t.Errorf("maker/taker = %v/%v, want 2000/2000", stats.MakerVolume, stats.TakerVolume)
	}
	if stats.MakerSharePct != 50 {
		t.Errorf("maker share = %v, want 50", stats.MakerSharePct)
	}
	if stats.FeesPaid != 0.70 {
		t.Errorf("fees paid = %v, want 0.70", stats.FeesPaid)
	}
	if stats.RebatesEarned != 0.02 {
		t.Errorf("rebates = %v, want 0.02", stats.RebatesEarned)
	}
}

func TestFeeReportTier(t *testing.T) {
	now := time.Now()
	// One 6M notional maker fill lands in the Silver tier.
	src := &mockFills{fills: []hyperliquid.Fill{
		fill("60000", "100", false, "0", "0", now),
	}}
	svc := NewService(src, "0xabc", testLogger())

	report, err := svc.FeeReport(context.Background())
	if err != nil {
		t.Fatalf("fee report failed: %v", err)
	}
	if report.Tier.Name != "Silver" {
		t.Errorf("tier = %s, want Silver", report.Tier.Name)
	}
	if report.NextTierAt != 25_000_000 {
		t.Errorf("next tier at = %v, want 25000000", report.NextTierAt)
	}
	if report.RebateTier == nil || report.RebateTier.Name != "Tier 3" {
		t.Errorf("rebate tier = %+v, want Tier 3 for 100%% maker share", report.RebateTier)
	}
}

func TestDailyPnlSummaryBucketsByDay(t *testing.T) {
	day1 := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	src := &mockFills{fills: []hyperliquid.Fill{
		fill("100", "1", true, "0", "5.5", day1),
		fill("100", "1", true, "0", "-2.0", day1),
		fill("100", "1", true, "0", "3.0", day2),
	}}
	svc := NewService(src, "0xabc", testLogger())

	days, err := svc.DailyPnlSummary(context.Background(), 30)
	if err != nil {
		t.Fatalf("daily pnl failed: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("got %d days, want 2", len(days))
	}
	// Most recent day first.
	if days[0].Day != "2026-08-28" || days[0].Realized != 3.0 {
		t.Errorf("day[0] = %+v, want 2026-08-28 realized 3.0", days[0])
	}
	if days[1].Day != "2026-08-27" || days[1].Realized != 3.5 || days[1].FillCount != 2 {
		t.Errorf("day[1] = %+v, want 2026-08-27 realized 3.5 from 2 fills", days[1])
	}
}
