// Package pricing holds the price, size and fee arithmetic shared by the
// trading engine and the strategies: tick rounding, size precision, and
// the Hyperliquid fee and rebate tier tables.
package pricing

import (
	"math"
	"strconv"
	"strings"
)

// TickSizes maps listed perp coins to their price tick. Coins absent from
// the table fall back to a magnitude heuristic, see TickFor.
var TickSizes = map[string]float64{
	"BTC":  0.1,
	"ETH":  0.01,
	"SOL":  0.001,
	"ARB":  0.0001,
	"AVAX": 0.001,
	"DOGE": 0.00001,
	"LINK": 0.001,
	"HYPE": 0.001,
	"PURR": 0.00001,
}

// SizeDecimals maps coins to their order size precision (szDecimals).
// The live value comes from the exchange meta; this table is the fallback
// when meta has not been fetched yet.
var SizeDecimals = map[string]int{
	"BTC":  5,
	"ETH":  4,
	"SOL":  2,
	"ARB":  1,
	"AVAX": 2,
	"DOGE": 0,
	"LINK": 1,
	"HYPE": 2,
	"PURR": 0,
}

// TickFor returns the price tick for a coin. Unknown coins get a tick
// derived from the price magnitude, matching how the exchange sizes ticks
// for newly listed assets.
func TickFor(coin string, price float64) float64 {
	if tick, ok := TickSizes[coin]; ok {
		return tick
	}
	switch {
	case price >= 1000:
		return 0.1
	case price >= 10:
		return 0.01
	case price >= 0.1:
		return 0.0001
	default:
		return 0.000001
	}
}

// RoundToTick rounds a price to the coin's tick size. The operation is
// idempotent: rounding an already-rounded price returns it unchanged.
func RoundToTick(price float64, coin string) float64 {
	tick := TickFor(coin, price)
	if tick <= 0 {
		return price
	}
	steps := math.Round(price / tick)
	// Re-quantize through the string form so repeated rounding cannot
	// drift on binary fractions like 0.1.
	rounded, _ := strconv.ParseFloat(strconv.FormatFloat(steps*tick, 'f', tickDecimals(tick), 64), 64)
	return rounded
}

func tickDecimals(tick float64) int {
	d := 0
	for tick < 1 && d < 10 {
		tick *= 10
		d++
	}
	return d
}

// RoundSize rounds an order size down to the coin's size precision.
// Rounding down never turns an affordable order into an unaffordable one.
func RoundSize(size float64, coin string) float64 {
	decimals, ok := SizeDecimals[coin]
	if !ok {
		decimals = 2
	}
	pow := math.Pow10(decimals)
	return math.Floor(size*pow) / pow
}

// FormatPrice renders a price as the trimmed decimal string the exchange
// wire format requires ("1234.5", never "1234.50").
func FormatPrice(price float64, coin string) string {
	tick := TickFor(coin, price)
	s := strconv.FormatFloat(price, 'f', tickDecimals(tick), 64)
	return trimZeros(s)
}

// FormatSize renders an order size as a trimmed decimal string.
func FormatSize(size float64, coin string) string {
	decimals, ok := SizeDecimals[coin]
	if !ok {
		decimals = 2
	}
	return trimZeros(strconv.FormatFloat(size, 'f', decimals, 64))
}

func trimZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

// FeeTier describes one row of the 14-day-volume fee schedule.
type FeeTier struct {
	Name     string
	TakerFee float64
	MakerFee float64
}

// Fee tier thresholds in 14d USD volume.
const (
	silverVolume   = 5_000_000
	goldVolume     = 25_000_000
	platinumVolume = 125_000_000
	diamondVolume  = 500_000_000
)

// FeeTierFor returns the fee tier for a trailing 14-day volume.
func FeeTierFor(volume14d float64) FeeTier {
	switch {
	case volume14d < silverVolume:
		return FeeTier{Name: "Bronze", TakerFee: 0.00035, MakerFee: 0.0001}
	case volume14d < goldVolume:
		return FeeTier{Name: "Silver", TakerFee: 0.000325, MakerFee: 0.00005}
	case volume14d < platinumVolume:
		return FeeTier{Name: "Gold", TakerFee: 0.0003, MakerFee: 0.0}
	case volume14d < diamondVolume:
		return FeeTier{Name: "Platinum", TakerFee: 0.000275, MakerFee: 0.0}
	default:
		return FeeTier{Name: "Diamond", TakerFee: 0.00019, MakerFee: 0.0}
	}
}

// NextTierVolume returns the 14d volume needed for the next fee tier,
// or 0 when already at the top tier.
func NextTierVolume(volume14d float64) float64 {
	for _, threshold := range []float64{silverVolume, goldVolume, platinumVolume, diamondVolume} {
		if volume14d < threshold {
			return threshold
		}
	}
	return 0
}

// RebateTier describes a maker-rebate level. Rebates are negative maker
// fees earned once a trader's maker share of exchange volume crosses the
// threshold.
type RebateTier struct {
	Name       string
	MakerShare float64 // minimum maker share of total volume, percent
	Rebate     float64 // negative = payment to the maker
}

var rebateTiers = []RebateTier{
	{Name: "Tier 3", MakerShare: 3.0, Rebate: -0.00003},
	{Name: "Tier 2", MakerShare: 1.5, Rebate: -0.00002},
	{Name: "Tier 1", MakerShare: 0.5, Rebate: -0.00001},
}

// RebateTierFor returns the rebate tier for a maker share percentage, or
// nil when the share is below every threshold.
func RebateTierFor(makerSharePct float64) *RebateTier {
	for i := range rebateTiers {
		if makerSharePct >= rebateTiers[i].MakerShare {
			t := rebateTiers[i]
			return &t
		}
	}
	return nil
}
