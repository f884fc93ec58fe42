package hyperliquid

// Info endpoint request/response types. Field names follow the exchange
// wire format exactly.

// Meta is the perp universe metadata.
type Meta struct {
	Universe []AssetInfo `json:"universe"`
}

// AssetInfo describes one listed perp asset.
type AssetInfo struct {
	Name         string `json:"name"`
	SzDecimals   int    `json:"szDecimals"`
	MaxLeverage  int    `json:"maxLeverage"`
	OnlyIsolated bool   `json:"onlyIsolated,omitempty"`
}

// UserState is the clearinghouse snapshot for one account.
type UserState struct {
	AssetPositions []AssetPosition `json:"assetPositions"`
	MarginSummary  MarginSummary   `json:"marginSummary"`
	Withdrawable   string          `json:"withdrawable"`
}

// MarginSummary holds the account-level margin figures.
type MarginSummary struct {
	AccountValue    string `json:"accountValue"`
	TotalNtlPos     string `json:"totalNtlPos"`
	TotalRawUsd     string `json:"totalRawUsd"`
	TotalMarginUsed string `json:"totalMarginUsed"`
}

// AssetPosition wraps one open position.
type AssetPosition struct {
	Position Position `json:"position"`
	Type     string   `json:"type"`
}

// Position is one open perp position.
type Position struct {
	Coin           string   `json:"coin"`
	Szi            string   `json:"szi"` // signed size, negative = short
	EntryPx        *string  `json:"entryPx"`
	PositionValue  string   `json:"positionValue"`
	UnrealizedPnl  string   `json:"unrealizedPnl"`
	ReturnOnEquity string   `json:"returnOnEquity"`
	LiquidationPx  *string  `json:"liquidationPx"`
	MarginUsed     string   `json:"marginUsed"`
	Leverage       Leverage `json:"leverage"`
}

// Leverage describes the leverage mode of a position.
type Leverage struct {
	Type  string  `json:"type"` // "cross" or "isolated"
	Value int     `json:"value"`
	RawUsd *string `json:"rawUsd,omitempty"`
}

// Fill is one trade fill from userFills.
type Fill struct {
	Coin      string `json:"coin"`
	Px        string `json:"px"`
	Sz        string `json:"sz"`
	Side      string `json:"side"` // "B" or "A"
	Time      int64  `json:"time"`
	StartPos  string `json:"startPosition"`
	Dir       string `json:"dir"`
	ClosedPnl string `json:"closedPnl"`
	Hash      string `json:"hash"`
	Oid       int64  `json:"oid"`
	Crossed   bool   `json:"crossed"` // true = taker
	Fee       string `json:"fee"`
	Tid       int64  `json:"tid"`
	Cloid     string `json:"cloid,omitempty"`
}

// OpenOrder is one resting order from openOrders.
type OpenOrder struct {
	Coin      string `json:"coin"`
	LimitPx   string `json:"limitPx"`
	Oid       int64  `json:"oid"`
	Side      string `json:"side"`
	Sz        string `json:"sz"`
	Timestamp int64  `json:"timestamp"`
	Cloid     string `json:"cloid,omitempty"`
}

// L2Book is the order book snapshot for one coin.
type L2Book struct {
	Coin   string      `json:"coin"`
	Time   int64       `json:"time"`
	Levels [][]L2Level `json:"levels"` // [bids, asks]
}

// L2Level is one price level of the book.
type L2Level struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
	N  int    `json:"n"`
}

// BestBidAsk returns the top of book. ok is false when either side of
// the book is empty.
func (b *L2Book) BestBidAsk() (bid, ask float64, ok bool) {
	if len(b.Levels) != 2 || len(b.Levels[0]) == 0 || len(b.Levels[1]) == 0 {
		return 0, 0, false
	}
	return parseFloat(b.Levels[0][0].Px), parseFloat(b.Levels[1][0].Px), true
}

// Exchange endpoint response types.

// OrderResponse is the envelope returned by the exchange endpoint.
type OrderResponse struct {
	Status   string            `json:"status"` // "ok" or "err"
	Response OrderResponseBody `json:"response"`
	Error    string            `json:"error,omitempty"`
}

// OrderResponseBody carries the per-order statuses.
type OrderResponseBody struct {
	Type string            `json:"type"`
	Data OrderResponseData `json:"data"`
}

// OrderResponseData carries one status entry per submitted order.
type OrderResponseData struct {
	Statuses []OrderStatus `json:"statuses"`
}

// OrderStatus is the placement outcome of a single order: exactly one of
// Resting, Filled or Error is set.
type OrderStatus struct {
	Resting *RestingOrder `json:"resting,omitempty"`
	Filled  *FilledOrder  `json:"filled,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// RestingOrder identifies an order resting on the book.
type RestingOrder struct {
	Oid   int64  `json:"oid"`
	Cloid string `json:"cloid,omitempty"`
}

// FilledOrder describes an immediate fill.
type FilledOrder struct {
	Oid     int64  `json:"oid"`
	TotalSz string `json:"totalSz"`
	AvgPx   string `json:"avgPx"`
	Cloid   string `json:"cloid,omitempty"`
}

// FirstStatus returns the first status entry, or nil when absent.
func (r *OrderResponse) FirstStatus() *OrderStatus {
	if len(r.Response.Data.Statuses) == 0 {
		return nil
	}
	return &r.Response.Data.Statuses[0]
}

// OK reports whether the exchange accepted the request envelope.
// Individual orders can still carry per-order errors.
func (r *OrderResponse) OK() bool {
	return r.Status == "ok"
}
