// Package messagebus implements the message lifecycle shared by both ends of a
// bridge channel. Each message hash has an independent status in the outbox
// (locally initiated messages) and in the inbox (messages confirmed from the
// counterpart). Statuses only move through the transition methods of
// MessageBox; Progressed and Revoked are final.
package messagebus

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	bridgeerrors "stakebridge/core/errors"
	"stakebridge/native/bridge/gatewaylib"
)

// Store is the keyed state the registries are persisted in.
type Store interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	outboxPrefix = []byte("bridge/outbox/")
	inboxPrefix  = []byte("bridge/inbox/")
)

func statusKey(box Box, hash common.Hash) []byte {
	prefix := outboxPrefix
	if box == Inbox {
		prefix = inboxPrefix
	}
	key := make([]byte, len(prefix)+common.HashLength)
	copy(key, prefix)
	copy(key[len(prefix):], hash.Bytes())
	return key
}

// MessageBox owns the outbox and inbox registries. Layout describes how the
// counterpart stores its own registries, which is what proofs are checked
// against.
type MessageBox struct {
	store  Store
	layout Layout
}

// New returns a message box persisting into store.
func New(store Store, layout Layout) *MessageBox {
	return &MessageBox{store: store, layout: layout}
}

// Layout returns the counterpart storage layout.
func (mb *MessageBox) Layout() Layout { return mb.layout }

// Status returns the status of hash in the given registry. Absent entries are
// Undeclared.
func (mb *MessageBox) Status(box Box, hash common.Hash) (Status, error) {
	if mb == nil || mb.store == nil {
		return StatusUndeclared, fmt.Errorf("messagebus: store not configured")
	}
	var raw uint8
	ok, err := mb.store.KVGet(statusKey(box, hash), &raw)
	if err != nil {
		return StatusUndeclared, err
	}
	if !ok {
		return StatusUndeclared, nil
	}
	return ParseStatus(raw)
}

func (mb *MessageBox) setStatus(box Box, hash common.Hash, status Status) error {
	return mb.store.KVPut(statusKey(box, hash), uint8(status))
}

// expect loads the current status and checks it is one of allowed.
func (mb *MessageBox) expect(box Box, hash common.Hash, allowed ...Status) (Status, error) {
	current, err := mb.Status(box, hash)
	if err != nil {
		return current, err
	}
	if current.Terminal() {
		return current, fmt.Errorf("%w: %s message %s is %s", bridgeerrors.ErrAlreadyTerminal, box, hash.Hex(), current)
	}
	for _, s := range allowed {
		if current == s {
			return current, nil
		}
	}
	return current, fmt.Errorf("%w: %s message %s is %s", bridgeerrors.ErrInvalidStatus, box, hash.Hex(), current)
}

// expectUndeclared guards the transitions that create a registry entry.
func (mb *MessageBox) expectUndeclared(box Box, hash common.Hash) error {
	current, err := mb.Status(box, hash)
	if err != nil {
		return err
	}
	switch {
	case current.Terminal():
		return fmt.Errorf("%w: %s message %s is %s", bridgeerrors.ErrAlreadyTerminal, box, hash.Hex(), current)
	case current != StatusUndeclared:
		return fmt.Errorf("%w: %s message %s is %s", bridgeerrors.ErrAlreadyDeclared, box, hash.Hex(), current)
	}
	return nil
}

func validateMessage(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: message required", bridgeerrors.ErrInvalidInput)
	}
	if msg.Sender == (common.Address{}) {
		return fmt.Errorf("%w: message sender must not be zero", bridgeerrors.ErrInvalidInput)
	}
	if msg.HashLock == (common.Hash{}) {
		return fmt.Errorf("%w: hash lock must not be zero", bridgeerrors.ErrInvalidInput)
	}
	return nil
}

func checkSecret(msg *Message, secret []byte) error {
	if gatewaylib.HashLock(secret) != msg.HashLock {
		return fmt.Errorf("%w: secret does not open hash lock %s", bridgeerrors.ErrInvalidUnlockSecret, msg.HashLock.Hex())
	}
	return nil
}

// DeclareMessage records msg as Declared in the outbox. signature must be the
// sender's signature over the message hash.
func (mb *MessageBox) DeclareMessage(msg *Message, signature []byte) (common.Hash, error) {
	if err := validateMessage(msg); err != nil {
		return common.Hash{}, err
	}
	hash := msg.Hash()
	if err := mb.expectUndeclared(Outbox, hash); err != nil {
		return common.Hash{}, err
	}
	if err := gatewaylib.VerifySigner(hash, signature, msg.Sender); err != nil {
		return common.Hash{}, err
	}
	if err := mb.setStatus(Outbox, hash, StatusDeclared); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// ProgressOutbox moves a Declared outbox message to Progressed when secret
// opens its hash lock.
func (mb *MessageBox) ProgressOutbox(msg *Message, secret []byte) error {
	hash := msg.Hash()
	if _, err := mb.expect(Outbox, hash, StatusDeclared); err != nil {
		return err
	}
	if err := checkSecret(msg, secret); err != nil {
		return err
	}
	return mb.setStatus(Outbox, hash, StatusProgressed)
}

// ProgressOutboxWithProof moves an outbox message to Progressed given a proof
// of the counterpart inbox status. A Declared message accepts a counterpart
// status of Declared or Progressed. A message under revocation only accepts
// Progressed, since the counterpart already consumed it.
func (mb *MessageBox) ProgressOutboxWithProof(msg *Message, proof [][]byte, storageRoot common.Hash, counterpart Status) error {
	hash := msg.Hash()
	current, err := mb.expect(Outbox, hash, StatusDeclared, StatusDeclaredRevocation)
	if err != nil {
		return err
	}
	accepted := counterpart == StatusProgressed ||
		(current == StatusDeclared && counterpart == StatusDeclared)
	if !accepted {
		return fmt.Errorf("%w: counterpart inbox status %s cannot progress %s outbox message", bridgeerrors.ErrInvalidInput, counterpart, current)
	}
	if err := mb.layout.VerifyStatus(Inbox, hash, counterpart, proof, storageRoot); err != nil {
		return err
	}
	return mb.setStatus(Outbox, hash, StatusProgressed)
}

// DeclareRevocation moves a Declared outbox message to DeclaredRevocation.
// signature must be the sender's signature over the revocation hash.
func (mb *MessageBox) DeclareRevocation(msg *Message, signature []byte) error {
	hash := msg.Hash()
	if _, err := mb.expect(Outbox, hash, StatusDeclared); err != nil {
		return err
	}
	if err := gatewaylib.VerifySigner(gatewaylib.RevocationHash(hash, msg.Nonce), signature, msg.Sender); err != nil {
		return err
	}
	return mb.setStatus(Outbox, hash, StatusDeclaredRevocation)
}

// ProgressOutboxRevocation completes a revocation with the unlock secret.
func (mb *MessageBox) ProgressOutboxRevocation(msg *Message, secret []byte) error {
	hash := msg.Hash()
	if _, err := mb.expect(Outbox, hash, StatusDeclaredRevocation); err != nil {
		return err
	}
	if err := checkSecret(msg, secret); err != nil {
		return err
	}
	return mb.setStatus(Outbox, hash, StatusRevoked)
}

// ProgressOutboxRevocationWithProof completes a revocation once the
// counterpart inbox shows the message Revoked.
func (mb *MessageBox) ProgressOutboxRevocationWithProof(msg *Message, proof [][]byte, storageRoot common.Hash) error {
	hash := msg.Hash()
	if _, err := mb.expect(Outbox, hash, StatusDeclaredRevocation); err != nil {
		return err
	}
	if err := mb.layout.VerifyStatus(Inbox, hash, StatusRevoked, proof, storageRoot); err != nil {
		return err
	}
	return mb.setStatus(Outbox, hash, StatusRevoked)
}

// ConfirmMessage records msg as Declared in the inbox after proving the
// counterpart outbox declared it.
func (mb *MessageBox) ConfirmMessage(msg *Message, proof [][]byte, storageRoot common.Hash) (common.Hash, error) {
	if err := validateMessage(msg); err != nil {
		return common.Hash{}, err
	}
	hash := msg.Hash()
	if err := mb.expectUndeclared(Inbox, hash); err != nil {
		return common.Hash{}, err
	}
	if err := mb.layout.VerifyStatus(Outbox, hash, StatusDeclared, proof, storageRoot); err != nil {
		return common.Hash{}, err
	}
	if err := mb.setStatus(Inbox, hash, StatusDeclared); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// ProgressInbox moves a Declared inbox message to Progressed when secret opens
// its hash lock.
func (mb *MessageBox) ProgressInbox(msg *Message, secret []byte) error {
	hash := msg.Hash()
	if _, err := mb.expect(Inbox, hash, StatusDeclared); err != nil {
		return err
	}
	if err := checkSecret(msg, secret); err != nil {
		return err
	}
	return mb.setStatus(Inbox, hash, StatusProgressed)
}

// ProgressInboxWithProof moves a Declared inbox message to Progressed once the
// counterpart outbox shows it Progressed.
func (mb *MessageBox) ProgressInboxWithProof(msg *Message, proof [][]byte, storageRoot common.Hash, counterpart Status) error {
	hash := msg.Hash()
	if _, err := mb.expect(Inbox, hash, StatusDeclared); err != nil {
		return err
	}
	if counterpart != StatusProgressed {
		return fmt.Errorf("%w: counterpart outbox status %s cannot progress inbox message", bridgeerrors.ErrInvalidInput, counterpart)
	}
	if err := mb.layout.VerifyStatus(Outbox, hash, counterpart, proof, storageRoot); err != nil {
		return err
	}
	return mb.setStatus(Inbox, hash, StatusProgressed)
}

// ConfirmRevocation revokes a Declared inbox message once the counterpart
// outbox shows a declared revocation.
func (mb *MessageBox) ConfirmRevocation(msg *Message, proof [][]byte, storageRoot common.Hash) error {
	hash := msg.Hash()
	if _, err := mb.expect(Inbox, hash, StatusDeclared); err != nil {
		return err
	}
	if err := mb.layout.VerifyStatus(Outbox, hash, StatusDeclaredRevocation, proof, storageRoot); err != nil {
		return err
	}
	return mb.setStatus(Inbox, hash, StatusRevoked)
}
