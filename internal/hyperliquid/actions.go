package hyperliquid

// Exchange action wire structs. Field order is load-bearing: the action
// is msgpack-serialized in declaration order and the hash feeds the
// EIP-712 signature, so reordering a field breaks signing.

// OrderWire is the wire form of one order: {a,b,p,s,r,t,c}.
type OrderWire struct {
	Asset      int           `json:"a" msgpack:"a"`
	IsBuy      bool          `json:"b" msgpack:"b"`
	Price      string        `json:"p" msgpack:"p"`
	Size       string        `json:"s" msgpack:"s"`
	ReduceOnly bool          `json:"r" msgpack:"r"`
	OrderType  OrderTypeWire `json:"t" msgpack:"t"`
	Cloid      *string       `json:"c,omitempty" msgpack:"c,omitempty"`
}

// OrderTypeWire selects limit or trigger semantics.
type OrderTypeWire struct {
	Limit   *LimitOrderType   `json:"limit,omitempty" msgpack:"limit,omitempty"`
	Trigger *TriggerOrderType `json:"trigger,omitempty" msgpack:"trigger,omitempty"`
}

// LimitOrderType carries the time-in-force: Gtc, Ioc or Alo.
type LimitOrderType struct {
	Tif string `json:"tif" msgpack:"tif"`
}

// TriggerOrderType describes a stop or take-profit trigger.
type TriggerOrderType struct {
	IsMarket  bool   `json:"isMarket" msgpack:"isMarket"`
	TriggerPx string `json:"triggerPx" msgpack:"triggerPx"`
	Tpsl      string `json:"tpsl" msgpack:"tpsl"` // "tp" or "sl"
}

// Time-in-force values.
const (
	TifGtc = "Gtc"
	TifIoc = "Ioc"
	TifAlo = "Alo"
)

// OrderAction places one or more orders.
type OrderAction struct {
	Type     string      `json:"type" msgpack:"type"`
	Orders   []OrderWire `json:"orders" msgpack:"orders"`
	Grouping string      `json:"grouping" msgpack:"grouping"`
}

// CancelWire cancels one order by exchange order id.
type CancelWire struct {
	Asset int   `json:"a" msgpack:"a"`
	Oid   int64 `json:"o" msgpack:"o"`
}

// CancelAction cancels a batch of orders.
type CancelAction struct {
	Type    string       `json:"type" msgpack:"type"`
	Cancels []CancelWire `json:"cancels" msgpack:"cancels"`
}

// CancelByCloidWire cancels one order by client order id. Unlike
// CancelWire this uses the long key names on the wire.
type CancelByCloidWire struct {
	Asset int    `json:"asset" msgpack:"asset"`
	Cloid string `json:"cloid" msgpack:"cloid"`
}

// CancelByCloidAction cancels a batch of orders by client order id.
type CancelByCloidAction struct {
	Type    string              `json:"type" msgpack:"type"`
	Cancels []CancelByCloidWire `json:"cancels" msgpack:"cancels"`
}

// TwapWire is the wire form of a TWAP order.
type TwapWire struct {
	Asset      int    `json:"a" msgpack:"a"`
	IsBuy      bool   `json:"b" msgpack:"b"`
	Size       string `json:"s" msgpack:"s"`
	ReduceOnly bool   `json:"r" msgpack:"r"`
	Minutes    int    `json:"m" msgpack:"m"`
	Randomize  bool   `json:"t" msgpack:"t"`
}

// TwapOrderAction starts a native TWAP order.
type TwapOrderAction struct {
	Type string   `json:"type" msgpack:"type"`
	Twap TwapWire `json:"twap" msgpack:"twap"`
}

// UpdateLeverageAction changes leverage for one asset.
type UpdateLeverageAction struct {
	Type     string `json:"type" msgpack:"type"`
	Asset    int    `json:"asset" msgpack:"asset"`
	IsCross  bool   `json:"isCross" msgpack:"isCross"`
	Leverage int    `json:"leverage" msgpack:"leverage"`
}

// VaultTransferAction moves USD between the leader account and a vault.
type VaultTransferAction struct {
	Type         string `json:"type" msgpack:"type"`
	VaultAddress string `json:"vaultAddress" msgpack:"vaultAddress"`
	IsDeposit    bool   `json:"isDeposit" msgpack:"isDeposit"`
	Usd          int64  `json:"usd" msgpack:"usd"` // micro-USD
}

// UsdSendAction transfers USDC to another address. This is a user-signed
// action: it is signed with the HyperliquidSignTransaction domain rather
// than the phantom-agent scheme.
type UsdSendAction struct {
	Type             string `json:"type" msgpack:"type"`
	SignatureChainID string `json:"signatureChainId" msgpack:"signatureChainId"`
	HyperliquidChain string `json:"hyperliquidChain" msgpack:"hyperliquidChain"`
	Destination      string `json:"destination" msgpack:"destination"`
	Amount           string `json:"amount" msgpack:"amount"`
	Time             int64  `json:"time" msgpack:"time"`
}

// WithdrawAction withdraws USDC to an external address via the bridge.
// User-signed like UsdSendAction.
type WithdrawAction struct {
	Type             string `json:"type" msgpack:"type"`
	SignatureChainID string `json:"signatureChainId" msgpack:"signatureChainId"`
	HyperliquidChain string `json:"hyperliquidChain" msgpack:"hyperliquidChain"`
	Destination      string `json:"destination" msgpack:"destination"`
	Amount           string `json:"amount" msgpack:"amount"`
	Time             int64  `json:"time" msgpack:"time"`
}

// GroupingNA is the order grouping for plain, ungrouped orders.
const GroupingNA = "na"
