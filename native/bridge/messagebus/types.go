package messagebus

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	bridgeerrors "stakebridge/core/errors"
	"stakebridge/native/bridge/gatewaylib"
)

// Status is the lifecycle state of a message in one registry. The numeric
// values are the ones persisted in the counterpart's storage slots.
type Status uint8

const (
	StatusUndeclared Status = iota
	StatusDeclared
	StatusProgressed
	StatusDeclaredRevocation
	StatusRevoked
)

// ParseStatus validates a raw status value received at a boundary.
func ParseStatus(raw uint8) (Status, error) {
	s := Status(raw)
	if s > StatusRevoked {
		return StatusUndeclared, fmt.Errorf("%w: unknown message status %d", bridgeerrors.ErrInvalidInput, raw)
	}
	return s, nil
}

// ParseStatusName resolves the textual form produced by String.
func ParseStatusName(name string) (Status, error) {
	for s := StatusUndeclared; s <= StatusRevoked; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return StatusUndeclared, fmt.Errorf("%w: unknown message status %q", bridgeerrors.ErrInvalidInput, name)
}

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusProgressed || s == StatusRevoked
}

func (s Status) String() string {
	switch s {
	case StatusUndeclared:
		return "undeclared"
	case StatusDeclared:
		return "declared"
	case StatusProgressed:
		return "progressed"
	case StatusDeclaredRevocation:
		return "declared_revocation"
	case StatusRevoked:
		return "revoked"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Box selects one of the two registries.
type Box uint8

const (
	Outbox Box = iota
	Inbox
)

// ParseBox resolves "outbox" or "inbox".
func ParseBox(name string) (Box, error) {
	switch name {
	case "outbox":
		return Outbox, nil
	case "inbox":
		return Inbox, nil
	default:
		return Outbox, fmt.Errorf("%w: unknown message box %q", bridgeerrors.ErrInvalidInput, name)
	}
}

func (b Box) String() string {
	if b == Inbox {
		return "inbox"
	}
	return "outbox"
}

// Message is a tracked cross-ledger intent. Every field except GasConsumed is
// fixed once the message is declared.
type Message struct {
	IntentHash  common.Hash
	Nonce       uint64
	Sender      common.Address
	GasPrice    *big.Int
	GasLimit    *big.Int
	HashLock    common.Hash
	GasConsumed *big.Int
}

// Hash returns the identity under which the message is tracked.
func (m *Message) Hash() common.Hash {
	if m == nil {
		return common.Hash{}
	}
	return gatewaylib.MessageHash(m.IntentHash, m.Nonce, m.GasPrice)
}

// Copy returns a deep copy of the message.
func (m *Message) Copy() *Message {
	if m == nil {
		return nil
	}
	out := *m
	out.GasPrice = cloneAmount(m.GasPrice)
	out.GasLimit = cloneAmount(m.GasLimit)
	out.GasConsumed = cloneAmount(m.GasConsumed)
	return &out
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
