package hyperliquid

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/vmihailenco/msgpack/v5"
)

// Signature is the r/s/v triple the exchange expects alongside an action.
type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V uint8  `json:"v"`
}

// Signer signs exchange actions with an agent wallet private key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	isMainnet  bool
}

// NewSigner builds a signer from a hex private key (with or without the
// 0x prefix).
func NewSigner(privateKeyHex string, isMainnet bool) (*Signer, error) {
	if len(privateKeyHex) > 2 && privateKeyHex[:2] == "0x" {
		privateKeyHex = privateKeyHex[2:]
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Signer{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
		isMainnet:  isMainnet,
	}, nil
}

// Address returns the wallet address derived from the signing key.
func (s *Signer) Address() common.Address {
	return s.address
}

// ChainName returns the hyperliquidChain value for user-signed actions.
func (s *Signer) ChainName() string {
	if s.isMainnet {
		return "Mainnet"
	}
	return "Testnet"
}

// actionHash computes keccak(msgpack(action) ++ nonce ++ vault marker).
// The msgpack field order must match the Python SDK's, which is why the
// action structs declare fields in wire order.
func actionHash(action interface{}, vaultAddress string, nonce int64) (common.Hash, error) {
	data, err := msgpack.Marshal(action)
	if err != nil {
		return common.Hash{}, fmt.Errorf("msgpack action: %w", err)
	}

	nonceBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(nonceBytes, uint64(nonce))
	data = append(data, nonceBytes...)

	if vaultAddress == "" {
		data = append(data, 0x00)
	} else {
		data = append(data, 0x01)
		data = append(data, common.HexToAddress(vaultAddress).Bytes()...)
	}

	return crypto.Keccak256Hash(data), nil
}

// SignL1Action signs a trading action using the phantom-agent scheme:
// the action hash becomes the connectionId of a synthetic Agent struct
// signed under the Exchange EIP-712 domain (chain id 1337 regardless of
// network; mainnet vs testnet is encoded in the agent source).
func (s *Signer) SignL1Action(action interface{}, vaultAddress string, nonce int64) (Signature, error) {
	hash, err := actionHash(action, vaultAddress, nonce)
	if err != nil {
		return Signature{}, err
	}

	source := "b"
	if s.isMainnet {
		source = "a"
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Agent": {
				{Name: "source", Type: "string"},
				{Name: "connectionId", Type: "bytes32"},
			},
		},
		PrimaryType: "Agent",
		Domain: apitypes.TypedDataDomain{
			Name:              "Exchange",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(1337),
			VerifyingContract: "0x0000000000000000000000000000000000000000",
		},
		Message: apitypes.TypedDataMessage{
			"source":       source,
			"connectionId": hash.Bytes(),
		},
	}

	return s.signTypedData(typedData)
}

// SignUsdSend signs a usdSend action under the user-signed transaction
// domain. Unlike L1 actions these use the real signature chain id.
func (s *Signer) SignUsdSend(action *UsdSendAction) (Signature, error) {
	chainID := new(big.Int)
	chainID.SetString(action.SignatureChainID[2:], 16)

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"HyperliquidTransaction:UsdSend": {
				{Name: "hyperliquidChain", Type: "string"},
				{Name: "destination", Type: "string"},
				{Name: "amount", Type: "string"},
				{Name: "time", Type: "uint64"},
			},
		},
		PrimaryType: "HyperliquidTransaction:UsdSend",
		Domain: apitypes.TypedDataDomain{
			Name:              "HyperliquidSignTransaction",
			Version:           "1",
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: "0x0000000000000000000000000000000000000000",
		},
		Message: apitypes.TypedDataMessage{
			"hyperliquidChain": action.HyperliquidChain,
			"destination":      action.Destination,
			"amount":           action.Amount,
			"time":             big.NewInt(action.Time),
		},
	}

	return s.signTypedData(typedData)
}

// SignWithdraw signs a withdraw3 action. Same domain as usdSend with
// its own primary type.
func (s *Signer) SignWithdraw(action *WithdrawAction) (Signature, error) {
	chainID := new(big.Int)
	chainID.SetString(action.SignatureChainID[2:], 16)

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"HyperliquidTransaction:Withdraw": {
				{Name: "hyperliquidChain", Type: "string"},
				{Name: "destination", Type: "string"},
				{Name: "amount", Type: "string"},
				{Name: "time", Type: "uint64"},
			},
		},
		PrimaryType: "HyperliquidTransaction:Withdraw",
		Domain: apitypes.TypedDataDomain{
			Name:              "HyperliquidSignTransaction",
			Version:           "1",
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: "0x0000000000000000000000000000000000000000",
		},
		Message: apitypes.TypedDataMessage{
			"hyperliquidChain": action.HyperliquidChain,
			"destination":      action.Destination,
			"amount":           action.Amount,
			"time":             big.NewInt(action.Time),
		},
	}

	return s.signTypedData(typedData)
}

func (s *Signer) signTypedData(typedData apitypes.TypedData) (Signature, error) {
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return Signature{}, fmt.Errorf("hash domain: %w", err)
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return Signature{}, fmt.Errorf("hash message: %w", err)
	}

	digest := crypto.Keccak256(
		[]byte{0x19, 0x01},
		domainSeparator,
		messageHash,
	)

	sig, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return Signature{}, fmt.Errorf("sign digest: %w", err)
	}

	return Signature{
		R: "0x" + common.Bytes2Hex(sig[:32]),
		S: "0x" + common.Bytes2Hex(sig[32:64]),
		V: sig[64] + 27,
	}, nil
}
