package gatewaylib

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	bridgeerrors "stakebridge/core/errors"
)

// Sign produces a 65 byte [R || S || V] signature over digest with V in {0, 1}.
func Sign(digest common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	return crypto.Sign(digest.Bytes(), key)
}

// RecoverSigner returns the address that produced sig over digest. Both the
// {0, 1} and the legacy {27, 28} recovery ids are accepted.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: signature must be %d bytes", bridgeerrors.ErrInvalidSignature, crypto.SignatureLength)
	}
	normalized := append([]byte(nil), sig...)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", bridgeerrors.ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySigner checks that sig over digest was produced by expected.
func VerifySigner(digest common.Hash, sig []byte, expected common.Address) error {
	signer, err := RecoverSigner(digest, sig)
	if err != nil {
		return err
	}
	if signer != expected {
		return fmt.Errorf("%w: recovered %s, expected %s", bridgeerrors.ErrInvalidSignature, signer.Hex(), expected.Hex())
	}
	return nil
}
