package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"stakebridge/native/bridge/gatewaylib"
)

// PrivateKey is a secp256k1 key held by a relayer, facilitator or signer.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

// Address returns the account controlled by the key.
func (k *PrivateKey) Address() common.Address {
	return crypto.PubkeyToAddress(k.PrivateKey.PublicKey)
}

// Sign signs a message or revocation digest in the 65-byte [R || S || V] form
// the gateway verifies.
func (k *PrivateKey) Sign(digest common.Hash) ([]byte, error) {
	return gatewaylib.Sign(digest, k.PrivateKey)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// PrivateKeyFromHex parses a hex encoded key with or without 0x prefix.
func PrivateKeyFromHex(raw string) (*PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return &PrivateKey{key}, nil
}

// ParseAddress parses a 0x-prefixed 20-byte hex address. Unlike
// common.HexToAddress it rejects malformed input instead of truncating it.
func ParseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		return common.Address{}, fmt.Errorf("crypto: address %q missing 0x prefix", raw)
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("crypto: invalid address %q", raw)
	}
	return common.HexToAddress(trimmed), nil
}

// ParseHash parses a 0x-prefixed 32-byte hex digest.
func ParseHash(raw string) (common.Hash, error) {
	trimmed := strings.TrimSpace(raw)
	b, err := hexBytes(trimmed)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("crypto: hash %q must be %d bytes", raw, common.HashLength)
	}
	return common.BytesToHash(b), nil
}

func hexBytes(raw string) ([]byte, error) {
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		return nil, fmt.Errorf("crypto: value %q missing 0x prefix", raw)
	}
	b, err := hex.DecodeString(raw[2:])
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid hex %q: %w", raw, err)
	}
	return b, nil
}
