package hyperliquid

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testInfoServer(t *testing.T, handler func(reqType string) interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/info" {
			http.NotFound(w, r)
			return
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		reqType, _ := body["type"].(string)
		json.NewEncoder(w).Encode(handler(reqType))
	}))
}

func TestAllMids(t *testing.T) {
	srv := testInfoServer(t, func(reqType string) interface{} {
		if reqType != "allMids" {
			t.Errorf("unexpected request type %q", reqType)
		}
		return map[string]string{"BTC": "65432.5", "ETH": "3421.17"}
	})
	defer srv.Close()

	client := NewInfoClient(srv.URL, 5*time.Second)
	mids, err := client.AllMids(context.Background())
	if err != nil {
		t.Fatalf("AllMids: %v", err)
	}
	if mids["BTC"] != 65432.5 {
		t.Errorf("BTC mid = %v, want 65432.5", mids["BTC"])
	}
	if mids["ETH"] != 3421.17 {
		t.Errorf("ETH mid = %v, want 3421.17", mids["ETH"])
	}
}

func TestMetaIsCached(t *testing.T) {
	calls := 0
	srv := testInfoServer(t, func(reqType string) interface{} {
		calls++
		return Meta{Universe: []AssetInfo{
			{Name: "BTC", SzDecimals: 5},
			{Name: "ETH", SzDecimals: 4},
		}}
	})
	defer srv.Close()

	client := NewInfoClient(srv.URL, 5*time.Second)
	ctx := context.Background()

	if _, err := client.Meta(ctx); err != nil {
		t.Fatalf("Meta: %v", err)
	}
	if _, err := client.Meta(ctx); err != nil {
		t.Fatalf("Meta second call: %v", err)
	}
	if calls != 1 {
		t.Errorf("meta fetched %d times, want 1", calls)
	}

	idx, err := client.AssetIndex(ctx, "ETH")
	if err != nil {
		t.Fatalf("AssetIndex: %v", err)
	}
	if idx != 1 {
		t.Errorf("ETH index = %d, want 1", idx)
	}
	if calls != 1 {
		t.Errorf("AssetIndex refetched meta, calls = %d", calls)
	}

	if _, err := client.AssetIndex(ctx, "NOPE"); err == nil {
		t.Error("expected error for unknown coin")
	}

	if dec, ok := client.SzDecimals(ctx, "BTC"); !ok || dec != 5 {
		t.Errorf("SzDecimals(BTC) = %d,%v, want 5,true", dec, ok)
	}
}

func TestInfoErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewInfoClient(srv.URL, 5*time.Second)
	_, err := client.AllMids(context.Background())
	if err == nil {
		t.Fatal("expected error on 429")
	}
	if !IsRetryable(err) {
		t.Errorf("429 should be retryable, got %v", err)
	}
}

func TestL2BookBestBidAsk(t *testing.T) {
	book := L2Book{
		Coin: "BTC",
		Levels: [][]L2Level{
			{{Px: "64999.9", Sz: "1.2"}, {Px: "64999.8", Sz: "0.5"}},
			{{Px: "65000.1", Sz: "0.8"}},
		},
	}
	bid, ask, ok := book.BestBidAsk()
	if !ok {
		t.Fatal("expected both sides of book")
	}
	if bid != 64999.9 {
		t.Errorf("bid = %v, want 64999.9", bid)
	}
	if ask != 65000.1 {
		t.Errorf("ask = %v, want 65000.1", ask)
	}

	empty := L2Book{Levels: [][]L2Level{{}, {}}}
	if _, _, ok := empty.BestBidAsk(); ok {
		t.Error("empty book reported best bid/ask")
	}
}

func TestRateLimiterBudget(t *testing.T) {
	limiter := NewRateLimiter()

	ctx := context.Background()
	if err := limiter.Wait(ctx, 1199); err != nil {
		t.Fatalf("Wait within budget: %v", err)
	}

	// Budget exhausted: Wait must block until the context gives up.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx, 100); err == nil {
		t.Error("expected context deadline when budget exhausted")
	}

	current, max, _ := limiter.Usage()
	if current != 1199 || max != 1200 {
		t.Errorf("usage = %d/%d, want 1199/1200", current, max)
	}
}

func TestRateLimitResponsePenalizesLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewInfoClient(srv.URL, 5*time.Second)
	_, err := client.AllMids(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 APIError, got %v", err)
	}

	// The limiter is now in cooldown: a bounded wait must time out
	// instead of acquiring.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := client.limiter.Wait(ctx, 1); err == nil {
		t.Fatal("limiter should be cooling down after a 429")
	}
}
