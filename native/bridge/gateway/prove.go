package gateway

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	bridgeerrors "stakebridge/core/errors"
	"stakebridge/core/events"
	"stakebridge/native/bridge/gatewaylib"
	"stakebridge/native/bridge/messagebus"
)

// ProveGateway verifies the co-gateway account against the committed state
// root at blockHeight and records the storage root it commits to. Proving a
// height again must yield the same storage root.
func (e *Engine) ProveGateway(caller common.Address, blockHeight uint64, encodedAccount []byte, proof [][]byte) (*ProveResult, error) {
	var result *ProveResult
	err := e.atomic("prove_gateway", func() error {
		stateRoot, ok, err := e.roots.StateRoot(blockHeight)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: height %d", bridgeerrors.ErrStateRootUnavailable, blockHeight)
		}
		storageRoot, err := gatewaylib.ProveAccount(encodedAccount, proof, gatewaylib.EncodedPath(e.cfg.Channel.CoGateway), stateRoot)
		if err != nil {
			return err
		}
		existing, proven, err := e.loadStorageRoot(blockHeight)
		if err != nil {
			return err
		}
		if proven && existing != storageRoot {
			return fmt.Errorf("%w: height %d has %s, proof yields %s", bridgeerrors.ErrStorageRootMismatch, blockHeight, existing.Hex(), storageRoot.Hex())
		}
		if !proven {
			if err := e.state.KVPut(storageRootKey(blockHeight), storageRoot); err != nil {
				return err
			}
		}
		result = &ProveResult{StorageRoot: storageRoot, AlreadyProven: proven}
		e.queue(events.GatewayProven{
			CoGateway:     e.cfg.Channel.CoGateway,
			BlockHeight:   blockHeight,
			StorageRoot:   storageRoot,
			AlreadyProven: proven,
			Caller:        caller,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// StorageRoot returns the storage root proven for blockHeight.
func (e *Engine) StorageRoot(blockHeight uint64) (common.Hash, bool, error) {
	if e == nil || e.state == nil {
		return common.Hash{}, false, errNilState
	}
	return e.loadStorageRoot(blockHeight)
}

// MessageStatus returns the status of messageHash in the given registry.
func (e *Engine) MessageStatus(box messagebus.Box, messageHash common.Hash) (messagebus.Status, error) {
	if e == nil || e.box == nil {
		return messagebus.StatusUndeclared, errNilState
	}
	return e.box.Status(box, messageHash)
}

// Message returns the message tracked under messageHash in the given
// registry. Outbox messages belong to a stake or to the link, inbox messages
// to an unstake.
func (e *Engine) Message(box messagebus.Box, messageHash common.Hash) (*messagebus.Message, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	msg, err := e.processMessage(&Process{MessageHash: messageHash, Box: box})
	if err != nil {
		return nil, err
	}
	return msg.Copy(), nil
}
