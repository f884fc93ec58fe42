package orders

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestTracker() *Tracker {
	return NewTracker(zerolog.Nop())
}

func TestNewCloidFormat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		cloid := NewCloid()
		if err := ValidateCloid(cloid); err != nil {
			t.Fatalf("generated invalid cloid: %v", err)
		}
		if seen[cloid] {
			t.Fatalf("duplicate cloid generated: %s", cloid)
		}
		seen[cloid] = true
	}
}

func TestValidateCloid(t *testing.T) {
	cases := []struct {
		cloid string
		valid bool
	}{
		{"0x1234567890abcdef1234567890abcdef", true},
		{"1234567890abcdef1234567890abcdef", false},  // missing prefix
		{"0x1234567890abcdef1234567890abcde", false}, // too short
		{"0x1234567890ABCDEF1234567890abcdef", false}, // uppercase
		{"", false},
	}
	for _, tc := range cases {
		err := ValidateCloid(tc.cloid)
		if tc.valid && err != nil {
			t.Errorf("ValidateCloid(%q) = %v, want nil", tc.cloid, err)
		}
		if !tc.valid && err == nil {
			t.Errorf("ValidateCloid(%q) = nil, want error", tc.cloid)
		}
	}
}

func TestTrackRejectsDuplicateLiveCloid(t *testing.T) {
	tr := newTestTracker()
	cloid := NewCloid()

	order := TrackedOrder{Cloid: cloid, Coin: "BTC", Side: "B", Price: 65000, Size: 0.01}
	if err := tr.Track(order); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if err := tr.Track(order); err != ErrDuplicateCloid {
		t.Fatalf("duplicate Track error = %v, want ErrDuplicateCloid", err)
	}
	if !tr.IsLive(cloid) {
		t.Error("tracked order not reported live")
	}

	// A terminal order frees its cloid for reuse.
	tr.RecordCancel(cloid)
	if tr.IsLive(cloid) {
		t.Error("cancelled order still live")
	}
	if err := tr.Track(order); err != nil {
		t.Errorf("Track after cancel: %v", err)
	}
}

func TestRecordFillLifecycle(t *testing.T) {
	tr := newTestTracker()
	cloid := NewCloid()
	if err := tr.Track(TrackedOrder{Cloid: cloid, Coin: "ETH", Side: "B", Price: 3400, Size: 1.0}); err != nil {
		t.Fatalf("Track: %v", err)
	}

	tr.RecordFill(cloid, 0.4, 3400)
	order, err := tr.Get(cloid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if order.Status != StatusPartially {
		t.Errorf("status = %s after partial fill, want %s", order.Status, StatusPartially)
	}

	tr.RecordFill(cloid, 0.6, 3410)
	order, _ = tr.Get(cloid)
	if order.Status != StatusFilled {
		t.Errorf("status = %s after full fill, want %s", order.Status, StatusFilled)
	}
	wantAvg := (3400*0.4 + 3410*0.6) / 1.0
	if diff := order.AvgPx - wantAvg; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("avg px = %v, want %v", order.AvgPx, wantAvg)
	}

	// Fills for unknown cloids must not panic or create entries.
	tr.RecordFill("0xdeadbeefdeadbeefdeadbeefdeadbeef", 1, 1)
	if len(tr.Live("")) != 0 {
		t.Error("unexpected live orders")
	}
}

func TestLiveFiltersByCoin(t *testing.T) {
	tr := newTestTracker()
	tr.Track(TrackedOrder{Cloid: NewCloid(), Coin: "BTC", Side: "B", Price: 65000, Size: 0.01})
	tr.Track(TrackedOrder{Cloid: NewCloid(), Coin: "ETH", Side: "A", Price: 3400, Size: 1})
	tr.Track(TrackedOrder{Cloid: NewCloid(), Coin: "BTC", Side: "A", Price: 66000, Size: 0.01})

	if got := len(tr.Live("BTC")); got != 2 {
		t.Errorf("Live(BTC) = %d orders, want 2", got)
	}
	if got := len(tr.Live("")); got != 3 {
		t.Errorf("Live() = %d orders, want 3", got)
	}
}

func TestPruneDropsOnlyTerminalOrders(t *testing.T) {
	tr := newTestTracker()
	liveCloid := NewCloid()
	doneCloid := NewCloid()
	tr.Track(TrackedOrder{Cloid: liveCloid, Coin: "BTC", Side: "B", Price: 65000, Size: 0.01})
	tr.Track(TrackedOrder{Cloid: doneCloid, Coin: "BTC", Side: "B", Price: 64000, Size: 0.01})
	tr.RecordCancel(doneCloid)

	if pruned := tr.Prune(time.Hour); pruned != 0 {
		t.Errorf("pruned %d fresh orders, want 0", pruned)
	}
	if pruned := tr.Prune(0); pruned != 1 {
		t.Errorf("pruned %d orders, want 1", pruned)
	}
	if _, err := tr.Get(liveCloid); err != nil {
		t.Error("live order was pruned")
	}
}
