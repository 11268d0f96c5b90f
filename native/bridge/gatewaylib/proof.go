package gatewaylib

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"

	bridgeerrors "stakebridge/core/errors"
)

// EncodedPath returns the state trie path of an account.
func EncodedPath(addr common.Address) []byte {
	return crypto.Keccak256(addr.Bytes())
}

// StoragePath returns the storage trie path of a slot.
func StoragePath(slot common.Hash) []byte {
	return crypto.Keccak256(slot.Bytes())
}

// DecodeProof splits an RLP list of trie nodes into its elements.
func DecodeProof(encoded []byte) ([][]byte, error) {
	if len(encoded) == 0 {
		return nil, fmt.Errorf("%w: empty proof", bridgeerrors.ErrInvalidInput)
	}
	var nodes [][]byte
	if err := rlp.DecodeBytes(encoded, &nodes); err != nil {
		return nil, fmt.Errorf("%w: proof is not an rlp node list: %v", bridgeerrors.ErrInvalidInput, err)
	}
	return nodes, nil
}

// EncodeProof is the inverse of DecodeProof.
func EncodeProof(nodes [][]byte) ([]byte, error) {
	return rlp.EncodeToBytes(nodes)
}

// resolve walks the proof from root along path and returns the leaf value.
func resolve(root common.Hash, path []byte, proof [][]byte) ([]byte, error) {
	if len(proof) == 0 {
		return nil, fmt.Errorf("%w: empty proof", bridgeerrors.ErrInvalidInput)
	}
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty path", bridgeerrors.ErrInvalidInput)
	}
	nodes := memorydb.New()
	for i, node := range proof {
		if len(node) == 0 {
			return nil, fmt.Errorf("%w: proof node %d is empty", bridgeerrors.ErrInvalidInput, i)
		}
		if err := nodes.Put(crypto.Keccak256(node), node); err != nil {
			return nil, err
		}
	}
	value, err := trie.VerifyProof(root, path, nodes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bridgeerrors.ErrProofInvalid, err)
	}
	if value == nil {
		return nil, fmt.Errorf("%w: no leaf at %x under root %s", bridgeerrors.ErrPathMismatch, path, root.Hex())
	}
	return value, nil
}

// ProveAccount verifies that encodedAccount is the leaf stored at encodedPath
// under stateRoot and returns the storage root it commits to.
func ProveAccount(encodedAccount []byte, proof [][]byte, encodedPath []byte, stateRoot common.Hash) (common.Hash, error) {
	if len(encodedAccount) == 0 {
		return common.Hash{}, fmt.Errorf("%w: empty account encoding", bridgeerrors.ErrInvalidInput)
	}
	leaf, err := resolve(stateRoot, encodedPath, proof)
	if err != nil {
		return common.Hash{}, err
	}
	if !bytes.Equal(leaf, encodedAccount) {
		return common.Hash{}, fmt.Errorf("%w: account leaf does not match claimed encoding", bridgeerrors.ErrProofInvalid)
	}
	var account gethtypes.StateAccount
	if err := rlp.DecodeBytes(encodedAccount, &account); err != nil {
		return common.Hash{}, fmt.Errorf("%w: account encoding: %v", bridgeerrors.ErrInvalidInput, err)
	}
	return account.Root, nil
}

// VerifyStorage checks that slot holds expectedValue under storageRoot.
func VerifyStorage(slot common.Hash, expectedValue []byte, proof [][]byte, storageRoot common.Hash) error {
	leaf, err := resolve(storageRoot, StoragePath(slot), proof)
	if err != nil {
		return err
	}
	if !bytes.Equal(leaf, expectedValue) {
		return fmt.Errorf("%w: slot %s holds %x, expected %x", bridgeerrors.ErrProofInvalid, slot.Hex(), leaf, expectedValue)
	}
	return nil
}
