package gateway

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	bridgeerrors "stakebridge/core/errors"
	"stakebridge/core/events"
	"stakebridge/native/bridge/gatewaylib"
	"stakebridge/native/bridge/messagebus"
)

// LinkIntentHash returns the link digest this gateway expects for nonce.
func (e *Engine) LinkIntentHash(nonce uint64) common.Hash {
	return gatewaylib.LinkIntentHash(e.cfg.Channel, gatewaylib.LinkIntent{
		Bounty:        e.cfg.Bounty,
		TokenName:     e.cfg.TokenName,
		TokenSymbol:   e.cfg.TokenSymbol,
		TokenDecimals: e.cfg.TokenDecimals,
		Nonce:         nonce,
		ValueToken:    e.cfg.ValueToken,
	})
}

// InitiateLink declares the one-time link message. The caller pays the
// bounty, which is returned to whoever progresses the link.
func (e *Engine) InitiateLink(req LinkRequest) (common.Hash, error) {
	var hash common.Hash
	err := e.atomic("initiate_link", func() error {
		if _, ok, err := e.loadLink(); err != nil {
			return err
		} else if ok {
			return bridgeerrors.ErrAlreadyLinked
		}
		if req.Caller == (common.Address{}) || req.Sender == (common.Address{}) {
			return fmt.Errorf("%w: caller and sender required", bridgeerrors.ErrInvalidInput)
		}
		if e.cfg.Organization != (common.Address{}) && req.Sender != e.cfg.Organization {
			return fmt.Errorf("%w: link sender %s is not the organization", bridgeerrors.ErrInvalidInput, req.Sender.Hex())
		}
		if expected := e.LinkIntentHash(req.Nonce); expected != req.IntentHash {
			return fmt.Errorf("%w: link intent %s, expected %s", bridgeerrors.ErrIntentMismatch, req.IntentHash.Hex(), expected.Hex())
		}
		msg := messagebus.Message{
			IntentHash:  req.IntentHash,
			Nonce:       req.Nonce,
			Sender:      req.Sender,
			GasPrice:    cloneBigInt(nil),
			GasLimit:    cloneBigInt(nil),
			HashLock:    req.HashLock,
			GasConsumed: cloneBigInt(nil),
		}
		hash = msg.Hash()
		if err := e.beginProcess(req.Sender, req.Nonce, messagebus.Outbox, hash); err != nil {
			return err
		}
		if _, err := e.box.DeclareMessage(&msg, req.Signature); err != nil {
			return err
		}
		if err := e.state.KVPut(linkKey, &Link{MessageHash: hash, Message: msg}); err != nil {
			return err
		}
		if err := e.bounty.TransferFrom(e.custody(), req.Caller, e.custody(), e.cfg.Bounty); err != nil {
			return err
		}
		e.queue(events.LinkDeclared{
			MessageHash: hash,
			Gateway:     e.cfg.Channel.Gateway,
			CoGateway:   e.cfg.Channel.CoGateway,
			Sender:      req.Sender,
			Facilitator: req.Caller,
			Nonce:       req.Nonce,
			Bounty:      cloneBigInt(e.cfg.Bounty),
		})
		return nil
	})
	return hash, err
}

// ProgressLink completes the link with the unlock secret and activates the
// gateway.
func (e *Engine) ProgressLink(caller common.Address, messageHash common.Hash, secret []byte) error {
	return e.atomic("progress_link", func() error {
		link, err := e.linkFor(messageHash)
		if err != nil {
			return err
		}
		if err := e.box.ProgressOutbox(&link.Message, secret); err != nil {
			return err
		}
		return e.activate(caller, link, false, secret)
	})
}

// ProgressLinkWithProof completes the link once the co-gateway's inbox is
// proven to hold the link message at blockHeight.
func (e *Engine) ProgressLinkWithProof(caller common.Address, messageHash common.Hash, blockHeight uint64, proof [][]byte, counterpart messagebus.Status) error {
	return e.atomic("progress_link_with_proof", func() error {
		link, err := e.linkFor(messageHash)
		if err != nil {
			return err
		}
		root, err := e.storageRootAt(blockHeight)
		if err != nil {
			return err
		}
		if err := e.box.ProgressOutboxWithProof(&link.Message, proof, root, counterpart); err != nil {
			return err
		}
		return e.activate(caller, link, true, nil)
	})
}

func (e *Engine) linkFor(messageHash common.Hash) (*Link, error) {
	link, ok, err := e.loadLink()
	if err != nil {
		return nil, err
	}
	if !ok || link.MessageHash != messageHash {
		return nil, fmt.Errorf("%w: link %s", bridgeerrors.ErrMessageNotFound, messageHash.Hex())
	}
	return link, nil
}

func (e *Engine) activate(caller common.Address, link *Link, withProof bool, secret []byte) error {
	if caller == (common.Address{}) {
		return fmt.Errorf("%w: caller required", bridgeerrors.ErrInvalidInput)
	}
	if err := e.state.KVPut(activeKey, true); err != nil {
		return err
	}
	if err := e.bounty.Transfer(e.custody(), caller, e.cfg.Bounty); err != nil {
		return err
	}
	e.queue(events.LinkProgressed{
		MessageHash:   link.MessageHash,
		Gateway:       e.cfg.Channel.Gateway,
		CoGateway:     e.cfg.Channel.CoGateway,
		Caller:        caller,
		Bounty:        cloneBigInt(e.cfg.Bounty),
		ProofProgress: withProof,
		UnlockSecret:  append([]byte(nil), secret...),
	})
	return nil
}

// IsActive reports whether the link handshake completed.
func (e *Engine) IsActive() (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	var active bool
	ok, err := e.state.KVGet(activeKey, &active)
	if err != nil {
		return false, err
	}
	return ok && active, nil
}

// Link returns the link record once the handshake was initiated.
func (e *Engine) Link() (*Link, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	return e.loadLink()
}

func (e *Engine) requireActive() error {
	active, err := e.IsActive()
	if err != nil {
		return err
	}
	if !active {
		return bridgeerrors.ErrGatewayInactive
	}
	return nil
}
