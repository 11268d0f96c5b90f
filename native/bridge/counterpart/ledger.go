// Package counterpart mirrors the auxiliary ledger of a bridge channel: a
// state trie holding the co-gateway account, whose storage trie carries the
// co-gateway's message box registries. It produces the account and storage
// proofs the origin gateway verifies.
package counterpart

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"stakebridge/native/bridge/gatewaylib"
	"stakebridge/native/bridge/messagebus"
	"stakebridge/storage"
	"stakebridge/storage/trie"
)

// ProofList collects the trie nodes written by Prove in walk order.
type ProofList [][]byte

// Put appends the node.
func (l *ProofList) Put(_ []byte, value []byte) error {
	*l = append(*l, append([]byte(nil), value...))
	return nil
}

// Delete is not supported.
func (l *ProofList) Delete([]byte) error {
	return errors.New("counterpart: proof list is append only")
}

// Ledger is an in-memory model of the auxiliary ledger.
type Ledger struct {
	db       storage.Database
	state    *trie.Trie
	storage  *trie.Trie
	address  common.Address
	layout   messagebus.Layout
	codeHash []byte
	nonce    uint64
	balance  *uint256.Int
}

// New creates a ledger hosting the co-gateway at address. layout describes
// where the co-gateway keeps its registries.
func New(address common.Address, layout messagebus.Layout) (*Ledger, error) {
	db := storage.NewMemDB()
	state, err := trie.NewTrie(db, nil)
	if err != nil {
		return nil, err
	}
	slots, err := trie.NewTrie(db, nil)
	if err != nil {
		return nil, err
	}
	return &Ledger{
		db:       db,
		state:    state,
		storage:  slots,
		address:  address,
		layout:   layout,
		codeHash: crypto.Keccak256([]byte("stakebridge/cogateway")),
		nonce:    1,
		balance:  uint256.NewInt(0),
	}, nil
}

// Close releases the node database.
func (l *Ledger) Close() { l.db.Close() }

// Address returns the co-gateway address.
func (l *Ledger) Address() common.Address { return l.address }

// SetStatus writes a registry entry of the co-gateway. Undeclared clears it.
func (l *Ledger) SetStatus(box messagebus.Box, hash common.Hash, status messagebus.Status) error {
	path := gatewaylib.StoragePath(l.layout.Slot(box, hash))
	if status == messagebus.StatusUndeclared {
		return l.storage.Delete(path)
	}
	return l.storage.Update(path, messagebus.EncodeStatus(status))
}

// SetSlot writes a raw storage value, for storage unrelated to the registries.
func (l *Ledger) SetSlot(slot common.Hash, value []byte) error {
	return l.storage.Update(gatewaylib.StoragePath(slot), value)
}

// SetAccount writes an unrelated externally owned account into the state trie.
func (l *Ledger) SetAccount(addr common.Address, nonce uint64, balance *uint256.Int) error {
	if addr == l.address {
		return fmt.Errorf("counterpart: %s is the co-gateway", addr.Hex())
	}
	encoded, err := encodeAccount(nonce, balance, gethtypes.EmptyRootHash, gethtypes.EmptyCodeHash.Bytes())
	if err != nil {
		return err
	}
	return l.state.Update(gatewaylib.EncodedPath(addr), encoded)
}

// SetBalance sets the co-gateway's native balance.
func (l *Ledger) SetBalance(balance *uint256.Int) {
	if balance == nil {
		balance = new(uint256.Int)
	}
	l.balance = balance.Clone()
}

func encodeAccount(nonce uint64, balance *uint256.Int, root common.Hash, codeHash []byte) ([]byte, error) {
	if balance == nil {
		balance = new(uint256.Int)
	}
	return rlp.EncodeToBytes(&gethtypes.StateAccount{
		Nonce:    nonce,
		Balance:  balance,
		Root:     root,
		CodeHash: codeHash,
	})
}

// Snapshot is the committed view of the ledger at one height.
type Snapshot struct {
	Height       uint64
	StateRoot    common.Hash
	StorageRoot  common.Hash
	Account      []byte
	AccountProof [][]byte

	layout  messagebus.Layout
	storage *trie.Trie
}

// Snapshot folds the current co-gateway storage into its account, updates the
// state trie and returns the resulting roots and account proof.
func (l *Ledger) Snapshot(height uint64) (*Snapshot, error) {
	storageRoot := l.storage.Hash()
	account, err := encodeAccount(l.nonce, l.balance, storageRoot, l.codeHash)
	if err != nil {
		return nil, err
	}
	path := gatewaylib.EncodedPath(l.address)
	if err := l.state.Update(path, account); err != nil {
		return nil, err
	}
	var proof ProofList
	if err := l.state.Prove(path, &proof); err != nil {
		return nil, err
	}
	return &Snapshot{
		Height:       height,
		StateRoot:    l.state.Hash(),
		StorageRoot:  storageRoot,
		Account:      account,
		AccountProof: proof,
		layout:       l.layout,
		storage:      l.storage.Copy(),
	}, nil
}

// ProveStatus returns the storage proof of hash's entry in the given registry
// as of the snapshot.
func (s *Snapshot) ProveStatus(box messagebus.Box, hash common.Hash) ([][]byte, error) {
	var proof ProofList
	if err := s.storage.Prove(gatewaylib.StoragePath(s.layout.Slot(box, hash)), &proof); err != nil {
		return nil, err
	}
	return proof, nil
}
