package pricing

import (
	"math"
	"testing"
)

func TestRoundToTick(t *testing.T) {
	cases := []struct {
		coin  string
		price float64
		want  float64
	}{
		{"BTC", 95123.456, 95123.5},
		{"BTC", 95123.44, 95123.4},
		{"ETH", 3412.3456, 3412.35},
		{"SOL", 190.12345, 190.123},
		{"ARB", 0.123456, 0.1235},
		{"DOGE", 0.123456, 0.12346},
	}

	for _, tc := range cases {
		got := RoundToTick(tc.price, tc.coin)
		if math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("RoundToTick(%v, %s) = %v, want %v", tc.price, tc.coin, got, tc.want)
		}
	}
}

func TestRoundToTickIdempotent(t *testing.T) {
	prices := []float64{95123.456, 3412.3456, 190.12345, 0.123456, 1.0, 0.0001}
	coins := []string{"BTC", "ETH", "SOL", "ARB", "DOGE", "UNKNOWN"}

	for _, coin := range coins {
		for _, p := range prices {
			once := RoundToTick(p, coin)
			twice := RoundToTick(once, coin)
			if once != twice {
				t.Errorf("RoundToTick not idempotent for %s: %v -> %v -> %v", coin, p, once, twice)
			}
		}
	}
}

func TestRoundSizeNeverRoundsUp(t *testing.T) {
	cases := []struct {
		coin string
		size float64
	}{
		{"BTC", 0.0123456},
		{"ETH", 1.23456},
		{"SOL", 12.3456},
		{"DOGE", 1234.56},
	}
	for _, tc := range cases {
		got := RoundSize(tc.size, tc.coin)
		if got > tc.size {
			t.Errorf("RoundSize(%v, %s) = %v rounded up", tc.size, tc.coin, got)
		}
	}
}

func TestFormatPriceTrimsTrailingZeros(t *testing.T) {
	cases := []struct {
		coin  string
		price float64
		want  string
	}{
		{"BTC", 95000.0, "95000"},
		{"BTC", 95123.5, "95123.5"},
		{"ETH", 3400.10, "3400.1"},
		{"SOL", 190.0, "190"},
	}
	for _, tc := range cases {
		if got := FormatPrice(tc.price, tc.coin); got != tc.want {
			t.Errorf("FormatPrice(%v, %s) = %q, want %q", tc.price, tc.coin, got, tc.want)
		}
	}
}

func TestFeeTierBoundaries(t *testing.T) {
	cases := []struct {
		volume float64
		want   string
	}{
		{0, "Bronze"},
		{4_999_999, "Bronze"},
		{5_000_000, "Silver"},
		{24_999_999, "Silver"},
		{25_000_000, "Gold"},
		{124_999_999, "Gold"},
		{125_000_000, "Platinum"},
		{499_999_999, "Platinum"},
		{500_000_000, "Diamond"},
	}

	for _, tc := range cases {
		if got := FeeTierFor(tc.volume); got.Name != tc.want {
			t.Errorf("FeeTierFor(%v) = %s, want %s", tc.volume, got.Name, tc.want)
		}
	}
}

func TestFeeTierRates(t *testing.T) {
	bronze := FeeTierFor(0)
	if bronze.TakerFee != 0.00035 || bronze.MakerFee != 0.0001 {
		t.Errorf("Bronze rates = %v/%v", bronze.TakerFee, bronze.MakerFee)
	}
	gold := FeeTierFor(25_000_000)
	if gold.MakerFee != 0 {
		t.Errorf("Gold maker fee = %v, want 0", gold.MakerFee)
	}
	diamond := FeeTierFor(1_000_000_000)
	if diamond.TakerFee != 0.00019 {
		t.Errorf("Diamond taker fee = %v, want 0.00019", diamond.TakerFee)
	}
}

func TestRebateTierFor(t *testing.T) {
	if tier := RebateTierFor(0.4); tier != nil {
		t.Errorf("maker share 0.4%% should have no rebate, got %s", tier.Name)
	}
	if tier := RebateTierFor(0.5); tier == nil || tier.Rebate != -0.00001 {
		t.Errorf("maker share 0.5%% should earn tier 1")
	}
	if tier := RebateTierFor(2.0); tier == nil || tier.Rebate != -0.00002 {
		t.Errorf("maker share 2%% should earn tier 2")
	}
	if tier := RebateTierFor(3.5); tier == nil || tier.Rebate != -0.00003 {
		t.Errorf("maker share 3.5%% should earn tier 3")
	}
}
