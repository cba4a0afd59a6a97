package signing

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712DomainName/Version/Message are the typed-data constants exchanges
// using wallet-level auth (an L1-style credential, as opposed to an
// exchange-issued API key) sign over.
const (
	EIP712DomainName    = "ExchangeAuthDomain"
	EIP712DomainVersion = "1"
	EIP712AuthMessage   = "This message attests that I control the given wallet"
)

// EIP712Signer signs the wallet-auth typed-data message and attaches the
// resulting signature, address, timestamp, and nonce as headers. It is the
// credential tier an exchange adapter uses to derive or rotate an API key;
// day-to-day private calls use HMACSigner instead.
type EIP712Signer struct {
	Key     *ecdsa.PrivateKey
	ChainID int
	Nonce   int
	Headers HeaderNames
}

// NewEIP712Signer builds an EIP712Signer with the default header names.
func NewEIP712Signer(key *ecdsa.PrivateKey, chainID, nonce int) *EIP712Signer {
	return &EIP712Signer{Key: key, ChainID: chainID, Nonce: nonce, Headers: DefaultHeaderNames}
}

// Sign ignores method/path/body: wallet-auth signs a fixed domain message,
// not the request itself.
func (s *EIP712Signer) Sign(ctx context.Context, method, path string, body []byte) (http.Header, error) {
	address := crypto.PubkeyToAddress(s.Key.PublicKey).Hex()
	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	sig, err := signAuthMessage(s.Key, s.ChainID, address, timestamp, s.Nonce)
	if err != nil {
		return nil, err
	}

	h := http.Header{}
	h.Set(s.Headers.Address, address)
	h.Set(s.Headers.Signature, sig)
	h.Set(s.Headers.Timestamp, timestamp)
	h.Set(s.Headers.Nonce, fmt.Sprintf("%d", s.Nonce))
	return h, nil
}

// signAuthMessage builds and signs the EIP-712 typed-data wallet-auth
// message, returning a 0x-prefixed hex signature with V normalized to
// 27/28 per the EIP-712 convention.
func signAuthMessage(key *ecdsa.PrivateKey, chainID int, address, timestamp string, nonce int) (string, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"ExchangeAuth": {
				{Name: "address", Type: "address"},
				{Name: "timestamp", Type: "string"},
				{Name: "nonce", Type: "uint256"},
				{Name: "message", Type: "string"},
			},
		},
		PrimaryType: "ExchangeAuth",
		Domain: apitypes.TypedDataDomain{
			Name:    EIP712DomainName,
			Version: EIP712DomainVersion,
			ChainId: math.NewHexOrDecimal256(int64(chainID)),
		},
		Message: apitypes.TypedDataMessage{
			"address":   address,
			"timestamp": timestamp,
			"nonce":     fmt.Sprintf("%d", nonce),
			"message":   EIP712AuthMessage,
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return "", fmt.Errorf("signing: domain hash failed: %w", err)
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return "", fmt.Errorf("signing: message hash failed: %w", err)
	}

	rawData := []byte{0x19, 0x01}
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, messageHash...)
	hash := crypto.Keccak256Hash(rawData)

	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		return "", fmt.Errorf("signing: ecdsa sign failed: %w", err)
	}
	sig[64] += 27

	return fmt.Sprintf("0x%x", sig), nil
}
