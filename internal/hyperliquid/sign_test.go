package hyperliquid

import (
	"strings"
	"testing"
)

const testKey = "0x0123456789012345678901234567890123456789012345678901234567890123"

func TestNewSignerRejectsBadKey(t *testing.T) {
	if _, err := NewSigner("not-a-key", true); err == nil {
		t.Fatal("expected error for malformed private key")
	}
}

func TestSignerAddressIsStable(t *testing.T) {
	s1, err := NewSigner(testKey, true)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	s2, err := NewSigner(strings.TrimPrefix(testKey, "0x"), true)
	if err != nil {
		t.Fatalf("NewSigner without prefix: %v", err)
	}
	if s1.Address() != s2.Address() {
		t.Errorf("address differs with/without 0x prefix: %s vs %s", s1.Address(), s2.Address())
	}
}

func TestActionHashDeterministic(t *testing.T) {
	action := OrderAction{
		Type: "order",
		Orders: []OrderWire{{
			Asset:     0,
			IsBuy:     true,
			Price:     "50000",
			Size:      "0.01",
			OrderType: OrderTypeWire{Limit: &LimitOrderType{Tif: TifGtc}},
		}},
		Grouping: GroupingNA,
	}

	h1, err := actionHash(action, "", 1700000000000)
	if err != nil {
		t.Fatalf("actionHash: %v", err)
	}
	h2, err := actionHash(action, "", 1700000000000)
	if err != nil {
		t.Fatalf("actionHash: %v", err)
	}
	if h1 != h2 {
		t.Error("same action and nonce produced different hashes")
	}

	h3, _ := actionHash(action, "", 1700000000001)
	if h1 == h3 {
		t.Error("nonce change did not change hash")
	}

	h4, _ := actionHash(action, "0x1234567890123456789012345678901234567890", 1700000000000)
	if h1 == h4 {
		t.Error("vault address did not change hash")
	}
}

func TestSignL1ActionShape(t *testing.T) {
	signer, err := NewSigner(testKey, false)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	action := CancelAction{Type: "cancel", Cancels: []CancelWire{{Asset: 3, Oid: 42}}}
	sig, err := signer.SignL1Action(action, "", 1700000000000)
	if err != nil {
		t.Fatalf("SignL1Action: %v", err)
	}

	if !strings.HasPrefix(sig.R, "0x") || len(sig.R) != 66 {
		t.Errorf("bad r component: %q", sig.R)
	}
	if !strings.HasPrefix(sig.S, "0x") || len(sig.S) != 66 {
		t.Errorf("bad s component: %q", sig.S)
	}
	if sig.V != 27 && sig.V != 28 {
		t.Errorf("v = %d, want 27 or 28", sig.V)
	}

	// Mainnet and testnet signers must not produce interchangeable
	// signatures for the same action.
	mainnet, _ := NewSigner(testKey, true)
	mainnetSig, err := mainnet.SignL1Action(action, "", 1700000000000)
	if err != nil {
		t.Fatalf("SignL1Action mainnet: %v", err)
	}
	if mainnetSig == sig {
		t.Error("mainnet and testnet signatures are identical")
	}
}

func TestSignUsdSend(t *testing.T) {
	signer, err := NewSigner(testKey, true)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	action := &UsdSendAction{
		Type:             "usdSend",
		SignatureChainID: "0xa4b1",
		HyperliquidChain: "Mainnet",
		Destination:      "0x1234567890123456789012345678901234567890",
		Amount:           "12.5",
		Time:             1700000000000,
	}
	sig, err := signer.SignUsdSend(action)
	if err != nil {
		t.Fatalf("SignUsdSend: %v", err)
	}
	if sig.V != 27 && sig.V != 28 {
		t.Errorf("v = %d, want 27 or 28", sig.V)
	}
}

func TestSignWithdraw(t *testing.T) {
	signer, err := NewSigner(testKey, true)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	action := &WithdrawAction{
		Type:             "withdraw3",
		SignatureChainID: "0xa4b1",
		HyperliquidChain: "Mainnet",
		Destination:      "0x1234567890123456789012345678901234567890",
		Amount:           "100",
		Time:             1700000000000,
	}
	sig, err := signer.SignWithdraw(action)
	if err != nil {
		t.Fatalf("SignWithdraw: %v", err)
	}
	if sig.V != 27 && sig.V != 28 {
		t.Errorf("v = %d, want 27 or 28", sig.V)
	}

	// The primary types differ so the two user-signed actions must not
	// produce the same signature for identical fields.
	usdSig, err := signer.SignUsdSend(&UsdSendAction{
		Type:             "usdSend",
		SignatureChainID: "0xa4b1",
		HyperliquidChain: "Mainnet",
		Destination:      "0x1234567890123456789012345678901234567890",
		Amount:           "100",
		Time:             1700000000000,
	})
	if err != nil {
		t.Fatalf("SignUsdSend: %v", err)
	}
	if usdSig.R == sig.R && usdSig.S == sig.S {
		t.Error("withdraw and usdSend signatures should differ")
	}
}
