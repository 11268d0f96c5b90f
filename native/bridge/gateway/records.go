package gateway

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	bridgeerrors "stakebridge/core/errors"
	"stakebridge/native/bridge/messagebus"
)

var (
	linkKey       = []byte("bridge/link")
	activeKey     = []byte("bridge/active")
	stakePrefix   = []byte("bridge/stake/")
	unstakePrefix = []byte("bridge/unstake/")
	processPrefix = []byte("bridge/process/")
	rootPrefix    = []byte("bridge/storage-root/")
)

func prefixed(prefix, suffix []byte) []byte {
	key := make([]byte, len(prefix)+len(suffix))
	copy(key, prefix)
	copy(key[len(prefix):], suffix)
	return key
}

func heightBytes(height uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	return buf[:]
}

func stakeKey(hash common.Hash) []byte      { return prefixed(stakePrefix, hash.Bytes()) }
func unstakeKey(hash common.Hash) []byte    { return prefixed(unstakePrefix, hash.Bytes()) }
func processKey(addr common.Address) []byte { return prefixed(processPrefix, addr.Bytes()) }
func storageRootKey(height uint64) []byte   { return prefixed(rootPrefix, heightBytes(height)) }

type storedProcess struct {
	MessageHash common.Hash
	Box         uint8
}

func (e *Engine) loadLink() (*Link, bool, error) {
	link := new(Link)
	ok, err := e.state.KVGet(linkKey, link)
	if err != nil || !ok {
		return nil, ok, err
	}
	return link, true, nil
}

func (e *Engine) loadStake(hash common.Hash) (*Stake, error) {
	stake := new(Stake)
	ok, err := e.state.KVGet(stakeKey(hash), stake)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: stake %s", bridgeerrors.ErrMessageNotFound, hash.Hex())
	}
	return stake, nil
}

func (e *Engine) loadUnstake(hash common.Hash) (*Unstake, error) {
	unstake := new(Unstake)
	ok, err := e.state.KVGet(unstakeKey(hash), unstake)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: unstake %s", bridgeerrors.ErrMessageNotFound, hash.Hex())
	}
	return unstake, nil
}

func (e *Engine) loadProcess(account common.Address) (*Process, bool, error) {
	var stored storedProcess
	ok, err := e.state.KVGet(processKey(account), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	if stored.Box > uint8(messagebus.Inbox) {
		return nil, false, fmt.Errorf("bridge gateway: corrupt process entry for %s", account.Hex())
	}
	return &Process{MessageHash: stored.MessageHash, Box: messagebus.Box(stored.Box)}, true, nil
}

func (e *Engine) putProcess(account common.Address, proc Process) error {
	return e.state.KVPut(processKey(account), &storedProcess{MessageHash: proc.MessageHash, Box: uint8(proc.Box)})
}

func (e *Engine) loadStorageRoot(height uint64) (common.Hash, bool, error) {
	var root common.Hash
	ok, err := e.state.KVGet(storageRootKey(height), &root)
	if err != nil || !ok {
		return common.Hash{}, false, err
	}
	return root, true, nil
}

// storageRootAt returns the proven storage root that message proofs for
// height are checked against.
func (e *Engine) storageRootAt(height uint64) (common.Hash, error) {
	root, ok, err := e.loadStorageRoot(height)
	if err != nil {
		return common.Hash{}, err
	}
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: height %d", bridgeerrors.ErrStorageRootMissing, height)
	}
	return root, nil
}

// processMessage resolves the message an account's process points at.
func (e *Engine) processMessage(proc *Process) (*messagebus.Message, error) {
	if proc.Box == messagebus.Inbox {
		unstake, err := e.loadUnstake(proc.MessageHash)
		if err != nil {
			return nil, err
		}
		return &unstake.Message, nil
	}
	stake := new(Stake)
	ok, err := e.state.KVGet(stakeKey(proc.MessageHash), stake)
	if err != nil {
		return nil, err
	}
	if ok {
		return &stake.Message, nil
	}
	link, ok, err := e.loadLink()
	if err != nil {
		return nil, err
	}
	if ok && link.MessageHash == proc.MessageHash {
		return &link.Message, nil
	}
	return nil, fmt.Errorf("%w: process message %s", bridgeerrors.ErrMessageNotFound, proc.MessageHash.Hex())
}
