package gateway

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	bridgeerrors "stakebridge/core/errors"
	"stakebridge/native/bridge/messagebus"
)

// ActiveProcess returns the account's current in-flight process, if any.
func (e *Engine) ActiveProcess(account common.Address) (*Process, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	return e.loadProcess(account)
}

// NextNonce returns the nonce the account's next declaration must carry: 0
// without a process, otherwise the active message's nonce plus one.
func (e *Engine) NextNonce(account common.Address) (uint64, error) {
	proc, ok, err := e.ActiveProcess(account)
	if err != nil || !ok {
		return 0, err
	}
	msg, err := e.processMessage(proc)
	if err != nil {
		return 0, err
	}
	return msg.Nonce + 1, nil
}

// beginProcess checks nonce against the account's sequence and replaces the
// account's previous process with hash. The previous process must have
// reached a terminal status unless the permissive policy is configured.
func (e *Engine) beginProcess(account common.Address, nonce uint64, box messagebus.Box, hash common.Hash) error {
	expected, err := e.NextNonce(account)
	if err != nil {
		return err
	}
	if nonce != expected {
		return fmt.Errorf("%w: account %s expects nonce %d, got %d", bridgeerrors.ErrNonceMismatch, account.Hex(), expected, nonce)
	}
	prev, ok, err := e.loadProcess(account)
	if err != nil {
		return err
	}
	if ok {
		if err := e.supersede(account, prev); err != nil {
			return err
		}
	}
	return e.putProcess(account, Process{MessageHash: hash, Box: box})
}

func (e *Engine) supersede(account common.Address, prev *Process) error {
	status, err := e.box.Status(prev.Box, prev.MessageHash)
	if err != nil {
		return err
	}
	if !status.Terminal() {
		if e.cfg.Supersession != SupersessionPermissive {
			return fmt.Errorf("%w: account %s has %s message %s in status %s", bridgeerrors.ErrProcessInFlight, account.Hex(), prev.Box, prev.MessageHash.Hex(), status)
		}
		e.logger.Warn("bridge/gateway: superseding non-terminal process",
			"account", account.Hex(),
			"box", prev.Box.String(),
			"messageHash", prev.MessageHash.Hex(),
			"status", status.String())
	}
	switch prev.Box {
	case messagebus.Inbox:
		return e.state.KVDelete(unstakeKey(prev.MessageHash))
	default:
		return e.state.KVDelete(stakeKey(prev.MessageHash))
	}
}
