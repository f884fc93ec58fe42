package analytics

import (
	"context"
	"sort"
	"strconv"
	"time"

	"hyperliquid-alpha-bot/internal/hyperliquid"
	"hyperliquid-alpha-bot/internal/logging"
	"hyperliquid-alpha-bot/internal/pricing"
)

// FillSource provides fill history for an address.
type FillSource interface {
	UserFillsByTime(ctx context.Context, address string, startMs, endMs int64) ([]hyperliquid.Fill, error)
}

// VolumeStats summarizes trailing fill activity.
type VolumeStats struct {
	WindowDays    int     `json:"window_days"`
	TotalVolume   float64 `json:"total_volume"`
	MakerVolume   float64 `json:"maker_volume"`
	TakerVolume   float64 `json:"taker_volume"`
	MakerSharePct float64 `json:"maker_share_pct"`
	FeesPaid      float64 `json:"fees_paid"`
	RebatesEarned float64 `json:"rebates_earned"`
	FillCount     int     `json:"fill_count"`
}

// FeeReport combines the trailing volume with the tier it lands in.
type FeeReport struct {
	Volume     VolumeStats          `json:"volume"`
	Tier       pricing.FeeTier      `json:"tier"`
	RebateTier *pricing.RebateTier  `json:"rebate_tier,omitempty"`
	NextTierAt float64              `json:"next_tier_at,omitempty"`
}

// DailyPnl is realized PnL for one UTC day.
type DailyPnl struct {
	Day        string  `json:"day"`
	Realized   float64 `json:"realized"`
	Volume     float64 `json:"volume"`
	FillCount  int     `json:"fill_count"`
}

// Service computes trading statistics from exchange fill history.
type Service struct {
	fills   FillSource
	address string
	logger  *logging.Logger
}

func NewService(fills FillSource, address string, logger *logging.Logger) *Service {
	return &Service{
		fills:   fills,
		address: address,
		logger:  logger.WithComponent("analytics"),
	}
}

// VolumeWindow aggregates fills over the trailing window. Fee tier
// qualification uses 14 days.
func (s *Service) VolumeWindow(ctx context.Context, days int) (*VolumeStats, error) {
	now := time.Now()
	start := now.AddDate(0, 0, -days)
	fills, err := s.fills.UserFillsByTime(ctx, s.address, start.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, err
	}

	stats := &VolumeStats{WindowDays: days, FillCount: len(fills)}
	for _, f := range fills {
		notional := parseF(f.Px) * parseF(f.Sz)
		stats.TotalVolume += notional
		if f.Crossed {
			stats.TakerVolume += notional
		} else {
			stats.MakerVolume += notional
		}
		fee := parseF(f.Fee)
		if fee >= 0 {
			stats.FeesPaid += fee
		} else {
			stats.RebatesEarned += -fee
		}
	}
	if stats.TotalVolume > 0 {
		stats.MakerSharePct = stats.MakerVolume / stats.TotalVolume * 100
	}
	return stats, nil
}

// FeeReport returns the 14d volume stats plus the fee tier they earn
// and the volume needed to reach the next tier.
func (s *Service) FeeReport(ctx context.Context) (*FeeReport, error) {
	stats, err := s.VolumeWindow(ctx, 14)
	if err != nil {
		return nil, err
	}
	report := &FeeReport{
		Volume:     *stats,
		Tier:       pricing.FeeTierFor(stats.TotalVolume),
		RebateTier: pricing.RebateTierFor(stats.MakerSharePct),
		NextTierAt: pricing.NextTierVolume(stats.TotalVolume),
	}
	return report, nil
}

// DailyPnlSummary buckets realized PnL per UTC day over the trailing
// window, most recent day first.
func (s *Service) DailyPnlSummary(ctx context.Context, days int) ([]DailyPnl, error) {
	now := time.Now()
	start := now.AddDate(0, 0, -days)
	fills, err := s.fills.UserFillsByTime(ctx, s.address, start.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]*DailyPnl)
	for _, f := range fills {
		day := time.UnixMilli(f.Time).UTC().Format("2006-01-02")
		bucket, ok := byDay[day]
		if !ok {
			bucket = &DailyPnl{Day: day}
			byDay[day] = bucket
		}
		bucket.Realized += parseF(f.ClosedPnl)
		bucket.Volume += parseF(f.Px) * parseF(f.Sz)
		bucket.FillCount++
	}

	out := make([]DailyPnl, 0, len(byDay))
	for _, b := range byDay {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day > out[j].Day })
	return out, nil
}

func parseF(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
