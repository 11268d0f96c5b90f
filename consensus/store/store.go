package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"stakebridge/storage"
)

// Store persists the committed state roots of the counterpart ledger. A root
// recorded for a height never changes.
type Store struct {
	db storage.Database
}

// New creates a consensus store backed by the provided database.
func New(db storage.Database) *Store {
	return &Store{db: db}
}

// ErrRootConflict is returned when a different root is committed for a height
// that already has one.
var ErrRootConflict = errors.New("consensus store: conflicting state root")

type rootRecord struct {
	Height uint64
	Root   common.Hash
}

var (
	stateRootPrefix = []byte("consensus/stateroot/")
	latestHeightKey = []byte("consensus/latest")
)

func stateRootKey(height uint64) []byte {
	key := make([]byte, len(stateRootPrefix)+8)
	copy(key, stateRootPrefix)
	binary.BigEndian.PutUint64(key[len(stateRootPrefix):], height)
	return key
}

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("consensus store uninitialised")
	}
	return nil
}

// CommitStateRoot records root as the trusted state root at height.
// Recommitting the same root is a no-op.
func (s *Store) CommitStateRoot(height uint64, root common.Hash) error {
	if err := s.ready(); err != nil {
		return err
	}
	if root == (common.Hash{}) {
		return fmt.Errorf("consensus store: empty state root for height %d", height)
	}
	existing, ok, err := s.StateRoot(height)
	if err != nil {
		return err
	}
	if ok {
		if existing != root {
			return fmt.Errorf("%w: height %d has %s, got %s", ErrRootConflict, height, existing.Hex(), root.Hex())
		}
		return nil
	}
	encoded, err := rlp.EncodeToBytes(&rootRecord{Height: height, Root: root})
	if err != nil {
		return err
	}
	if err := s.db.Put(stateRootKey(height), encoded); err != nil {
		return err
	}
	latest, ok, err := s.LatestHeight()
	if err != nil {
		return err
	}
	if !ok || height > latest {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], height)
		return s.db.Put(latestHeightKey, buf[:])
	}
	return nil
}

// StateRoot returns the root committed at height. The boolean is false when
// no root is available yet.
func (s *Store) StateRoot(height uint64) (common.Hash, bool, error) {
	if err := s.ready(); err != nil {
		return common.Hash{}, false, err
	}
	data, err := s.db.Get(stateRootKey(height))
	if errors.Is(err, storage.ErrNotFound) {
		return common.Hash{}, false, nil
	}
	if err != nil {
		return common.Hash{}, false, err
	}
	var rec rootRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return common.Hash{}, false, err
	}
	return rec.Root, true, nil
}

// LatestHeight returns the highest height with a committed root.
func (s *Store) LatestHeight() (uint64, bool, error) {
	if err := s.ready(); err != nil {
		return 0, false, err
	}
	data, err := s.db.Get(latestHeightKey)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(data) != 8 {
		return 0, false, fmt.Errorf("consensus store: corrupt latest height")
	}
	return binary.BigEndian.Uint64(data), true, nil
}
