package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// ExchangeClient signs and submits actions to the exchange endpoint.
// When vaultAddress is set, every action trades on behalf of the vault.
type ExchangeClient struct {
	baseURL      string
	httpClient   *http.Client
	signer       *Signer
	info         *InfoClient
	vaultAddress string

	mu        sync.Mutex
	lastNonce int64
}

// NewExchangeClient wires a signer to the exchange endpoint. The info
// client is used to resolve coin names to asset indices.
func NewExchangeClient(baseURL string, timeout time.Duration, signer *Signer, info *InfoClient, vaultAddress string) *ExchangeClient {
	return &ExchangeClient{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: timeout},
		signer:       signer,
		info:         info,
		vaultAddress: vaultAddress,
	}
}

// Address returns the signing wallet's address.
func (c *ExchangeClient) Address() string {
	return c.signer.Address().Hex()
}

// TradingAddress returns the account whose positions actions affect:
// the vault when configured, otherwise the wallet itself.
func (c *ExchangeClient) TradingAddress() string {
	if c.vaultAddress != "" {
		return c.vaultAddress
	}
	return c.signer.Address().Hex()
}

// nextNonce returns a strictly increasing millisecond nonce. The
// exchange rejects nonces at or below the last accepted one.
func (c *ExchangeClient) nextNonce() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	nonce := time.Now().UnixMilli()
	if nonce <= c.lastNonce {
		nonce = c.lastNonce + 1
	}
	c.lastNonce = nonce
	return nonce
}

type exchangeRequest struct {
	Action       interface{} `json:"action"`
	Nonce        int64       `json:"nonce"`
	Signature    Signature   `json:"signature"`
	VaultAddress *string     `json:"vaultAddress,omitempty"`
}

// postAction signs an L1 action and submits it.
func (c *ExchangeClient) postAction(ctx context.Context, action interface{}) (*OrderResponse, error) {
	nonce := c.nextNonce()

	sig, err := c.signer.SignL1Action(action, c.vaultAddress, nonce)
	if err != nil {
		return nil, fmt.Errorf("sign action: %w", err)
	}

	req := exchangeRequest{Action: action, Nonce: nonce, Signature: sig}
	if c.vaultAddress != "" {
		req.VaultAddress = &c.vaultAddress
	}
	return c.post(ctx, req)
}

// postUserSigned submits an action signed under the user-signed domain.
// The nonce must equal the action's own time field.
func (c *ExchangeClient) postUserSigned(ctx context.Context, action interface{}, sig Signature, nonce int64) (*OrderResponse, error) {
	return c.post(ctx, exchangeRequest{Action: action, Nonce: nonce, Signature: sig})
}

func (c *ExchangeClient) post(ctx context.Context, req exchangeRequest) (*OrderResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal exchange request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/exchange", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			c.info.limiter.Penalize(10 * time.Second)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var orderResp OrderResponse
	if err := json.Unmarshal(data, &orderResp); err != nil {
		return nil, fmt.Errorf("error parsing exchange response: %w", err)
	}
	if orderResp.Status != "ok" {
		return nil, &RejectError{Reason: orderResp.Error}
	}
	return &orderResp, nil
}

// OrderRequest is one order to place, in human units.
type OrderRequest struct {
	Coin       string
	IsBuy      bool
	Price      string
	Size       string
	ReduceOnly bool
	Tif        string
	Cloid      string
}

// PlaceOrders submits a batch of orders as a single action.
func (c *ExchangeClient) PlaceOrders(ctx context.Context, orders []OrderRequest) (*OrderResponse, error) {
	wires := make([]OrderWire, 0, len(orders))
	for _, o := range orders {
		asset, err := c.info.AssetIndex(ctx, o.Coin)
		if err != nil {
			return nil, err
		}
		wire := OrderWire{
			Asset:      asset,
			IsBuy:      o.IsBuy,
			Price:      o.Price,
			Size:       o.Size,
			ReduceOnly: o.ReduceOnly,
			OrderType:  OrderTypeWire{Limit: &LimitOrderType{Tif: o.Tif}},
		}
		if o.Cloid != "" {
			cloid := o.Cloid
			wire.Cloid = &cloid
		}
		wires = append(wires, wire)
	}
	return c.postAction(ctx, OrderAction{Type: "order", Orders: wires, Grouping: GroupingNA})
}

// PlaceOrder submits a single order.
func (c *ExchangeClient) PlaceOrder(ctx context.Context, order OrderRequest) (*OrderResponse, error) {
	return c.PlaceOrders(ctx, []OrderRequest{order})
}

// CancelOrders cancels resting orders by oid.
func (c *ExchangeClient) CancelOrders(ctx context.Context, coin string, oids []int64) (*OrderResponse, error) {
	asset, err := c.info.AssetIndex(ctx, coin)
	if err != nil {
		return nil, err
	}
	cancels := make([]CancelWire, 0, len(oids))
	for _, oid := range oids {
		cancels = append(cancels, CancelWire{Asset: asset, Oid: oid})
	}
	return c.postAction(ctx, CancelAction{Type: "cancel", Cancels: cancels})
}

// CancelByCloid cancels a resting order by its client order id.
func (c *ExchangeClient) CancelByCloid(ctx context.Context, coin, cloid string) (*OrderResponse, error) {
	asset, err := c.info.AssetIndex(ctx, coin)
	if err != nil {
		return nil, err
	}
	action := CancelByCloidAction{
		Type:    "cancelByCloid",
		Cancels: []CancelByCloidWire{{Asset: asset, Cloid: cloid}},
	}
	return c.postAction(ctx, action)
}

// PlaceTwap starts a TWAP execution over the given number of minutes.
func (c *ExchangeClient) PlaceTwap(ctx context.Context, coin string, isBuy bool, size string, minutes int, reduceOnly, randomize bool) (*OrderResponse, error) {
	asset, err := c.info.AssetIndex(ctx, coin)
	if err != nil {
		return nil, err
	}
	action := TwapOrderAction{
		Type: "twapOrder",
		Twap: TwapWire{
			Asset:      asset,
			IsBuy:      isBuy,
			Size:       size,
			ReduceOnly: reduceOnly,
			Minutes:    minutes,
			Randomize:  randomize,
		},
	}
	return c.postAction(ctx, action)
}

// UpdateLeverage sets leverage for a coin.
func (c *ExchangeClient) UpdateLeverage(ctx context.Context, coin string, leverage int, isCross bool) (*OrderResponse, error) {
	asset, err := c.info.AssetIndex(ctx, coin)
	if err != nil {
		return nil, err
	}
	action := UpdateLeverageAction{
		Type:     "updateLeverage",
		Asset:    asset,
		IsCross:  isCross,
		Leverage: leverage,
	}
	return c.postAction(ctx, action)
}

// VaultTransfer deposits into or withdraws from a vault. usd is in
// micro-USDC units as the exchange expects.
func (c *ExchangeClient) VaultTransfer(ctx context.Context, vaultAddress string, isDeposit bool, usd int64) (*OrderResponse, error) {
	action := VaultTransferAction{
		Type:         "vaultTransfer",
		VaultAddress: vaultAddress,
		IsDeposit:    isDeposit,
		Usd:          usd,
	}
	return c.postAction(ctx, action)
}

// UsdSend transfers USDC to another address. User-signed actions carry
// their own timestamp which doubles as the nonce.
func (c *ExchangeClient) UsdSend(ctx context.Context, destination, amount string) (*OrderResponse, error) {
	nonce := c.nextNonce()
	action := UsdSendAction{
		Type:             "usdSend",
		SignatureChainID: "0xa4b1",
		HyperliquidChain: c.signer.ChainName(),
		Destination:      destination,
		Amount:           amount,
		Time:             nonce,
	}
	sig, err := c.signer.SignUsdSend(&action)
	if err != nil {
		return nil, fmt.Errorf("sign usdSend: %w", err)
	}
	return c.postUserSigned(ctx, action, sig, nonce)
}

// Withdraw moves USDC off the exchange to an external address through
// the bridge. The exchange deducts its withdrawal fee from the amount.
func (c *ExchangeClient) Withdraw(ctx context.Context, destination, amount string) (*OrderResponse, error) {
	nonce := c.nextNonce()
	action := WithdrawAction{
		Type:             "withdraw3",
		SignatureChainID: "0xa4b1",
		HyperliquidChain: c.signer.ChainName(),
		Destination:      destination,
		Amount:           amount,
		Time:             nonce,
	}
	sig, err := c.signer.SignWithdraw(&action)
	if err != nil {
		return nil, fmt.Errorf("sign withdraw: %w", err)
	}
	return c.postUserSigned(ctx, action, sig, nonce)
}
