package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// InfoClient queries the read-only info endpoint.
type InfoClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *RateLimiter

	mu       sync.RWMutex
	meta     *Meta
	metaAt   time.Time
	assetIdx map[string]int
}

// metaTTL bounds how long the cached universe metadata is trusted.
const metaTTL = 10 * time.Minute

// NewInfoClient creates an info client against the given base URL.
func NewInfoClient(baseURL string, timeout time.Duration) *InfoClient {
	return &InfoClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    NewRateLimiter(),
		assetIdx:   make(map[string]int),
	}
}

// post sends one info request and decodes the response into out.
func (c *InfoClient) post(ctx context.Context, weight int, body map[string]interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx, weight); err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal info request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("info request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			c.limiter.Penalize(10 * time.Second)
		}
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("error parsing info response: %w", err)
	}
	return nil
}

// AllMids returns the mid price for every listed coin.
func (c *InfoClient) AllMids(ctx context.Context) (map[string]float64, error) {
	var raw map[string]string
	if err := c.post(ctx, 2, map[string]interface{}{"type": "allMids"}, &raw); err != nil {
		return nil, err
	}

	mids := make(map[string]float64, len(raw))
	for coin, px := range raw {
		mids[coin] = parseFloat(px)
	}
	return mids, nil
}

// Meta returns the perp universe metadata, cached for metaTTL.
func (c *InfoClient) Meta(ctx context.Context) (*Meta, error) {
	c.mu.RLock()
	if c.meta != nil && time.Since(c.metaAt) < metaTTL {
		meta := c.meta
		c.mu.RUnlock()
		return meta, nil
	}
	c.mu.RUnlock()

	var meta Meta
	if err := c.post(ctx, 20, map[string]interface{}{"type": "meta"}, &meta); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.meta = &meta
	c.metaAt = time.Now()
	c.assetIdx = make(map[string]int, len(meta.Universe))
	for i, asset := range meta.Universe {
		c.assetIdx[asset.Name] = i
	}
	c.mu.Unlock()

	return &meta, nil
}

// AssetIndex resolves a coin to its universe index, fetching meta when
// the cache is cold.
func (c *InfoClient) AssetIndex(ctx context.Context, coin string) (int, error) {
	c.mu.RLock()
	idx, ok := c.assetIdx[coin]
	c.mu.RUnlock()
	if ok {
		return idx, nil
	}

	if _, err := c.Meta(ctx); err != nil {
		return 0, err
	}

	c.mu.RLock()
	idx, ok = c.assetIdx[coin]
	c.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCoin, coin)
	}
	return idx, nil
}

// SzDecimals returns the size precision for a coin from cached meta.
func (c *InfoClient) SzDecimals(ctx context.Context, coin string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.meta == nil {
		return 0, false
	}
	if idx, ok := c.assetIdx[coin]; ok {
		return c.meta.Universe[idx].SzDecimals, true
	}
	return 0, false
}

// UserState returns the clearinghouse state for an address.
func (c *InfoClient) UserState(ctx context.Context, address string) (*UserState, error) {
	var state UserState
	req := map[string]interface{}{"type": "clearinghouseState", "user": address}
	if err := c.post(ctx, 2, req, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// UserFills returns recent fills for an address, newest first.
func (c *InfoClient) UserFills(ctx context.Context, address string) ([]Fill, error) {
	var fills []Fill
	req := map[string]interface{}{"type": "userFills", "user": address}
	if err := c.post(ctx, 20, req, &fills); err != nil {
		return nil, err
	}
	return fills, nil
}

// UserFillsByTime returns fills for an address within [startMs, endMs).
func (c *InfoClient) UserFillsByTime(ctx context.Context, address string, startMs, endMs int64) ([]Fill, error) {
	var fills []Fill
	req := map[string]interface{}{
		"type":      "userFillsByTime",
		"user":      address,
		"startTime": startMs,
	}
	if endMs > 0 {
		req["endTime"] = endMs
	}
	if err := c.post(ctx, 20, req, &fills); err != nil {
		return nil, err
	}
	return fills, nil
}

// OpenOrders returns the resting orders for an address.
func (c *InfoClient) OpenOrders(ctx context.Context, address string) ([]OpenOrder, error) {
	var orders []OpenOrder
	req := map[string]interface{}{"type": "openOrders", "user": address}
	if err := c.post(ctx, 20, req, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// L2Snapshot returns the order book for one coin.
func (c *InfoClient) L2Snapshot(ctx context.Context, coin string) (*L2Book, error) {
	var book L2Book
	req := map[string]interface{}{"type": "l2Book", "coin": coin}
	if err := c.post(ctx, 2, req, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
