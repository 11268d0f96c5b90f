package gateway

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	bridgeerrors "stakebridge/core/errors"
	"stakebridge/core/events"
	"stakebridge/native/bridge/gatewaylib"
	"stakebridge/native/bridge/messagebus"
)

func validateStake(req StakeRequest) error {
	switch {
	case !positive(req.Amount):
		return fmt.Errorf("%w: stake amount must be positive", bridgeerrors.ErrInvalidInput)
	case req.Beneficiary == (common.Address{}):
		return fmt.Errorf("%w: beneficiary must not be zero", bridgeerrors.ErrInvalidInput)
	case req.Staker == (common.Address{}):
		return fmt.Errorf("%w: staker must not be zero", bridgeerrors.ErrInvalidInput)
	case req.Caller == (common.Address{}):
		return fmt.Errorf("%w: facilitator must not be zero", bridgeerrors.ErrInvalidInput)
	case req.HashLock == (common.Hash{}):
		return fmt.Errorf("%w: hash lock must not be zero", bridgeerrors.ErrInvalidInput)
	case !nonNegative(req.GasPrice) || !nonNegative(req.GasLimit):
		return fmt.Errorf("%w: gas terms must not be negative", bridgeerrors.ErrInvalidInput)
	case !fitsWord(req.Amount, req.GasPrice, req.GasLimit):
		return fmt.Errorf("%w: amount and gas terms must fit 256 bits", bridgeerrors.ErrInvalidInput)
	}
	return nil
}

// StakeIntentHash returns the stake digest for req on this gateway's channel.
func (e *Engine) StakeIntentHash(req StakeRequest) common.Hash {
	return gatewaylib.StakeIntentHash(e.cfg.Channel, gatewaylib.StakeIntent{
		Amount:      req.Amount,
		Beneficiary: req.Beneficiary,
		Staker:      req.Staker,
		Nonce:       req.Nonce,
		GasPrice:    req.GasPrice,
		GasLimit:    req.GasLimit,
		ValueToken:  e.cfg.ValueToken,
	})
}

// StakeMessage builds the message a stake request declares. Stakers sign its
// hash.
func (e *Engine) StakeMessage(req StakeRequest) messagebus.Message {
	return messagebus.Message{
		IntentHash:  e.StakeIntentHash(req),
		Nonce:       req.Nonce,
		Sender:      req.Staker,
		GasPrice:    cloneBigInt(req.GasPrice),
		GasLimit:    cloneBigInt(req.GasLimit),
		HashLock:    req.HashLock,
		GasConsumed: cloneBigInt(nil),
	}
}

// Stake declares a stake on behalf of req.Staker. The principal is pulled
// from the staker and the bounty from the facilitator (req.Caller) into the
// gateway's custody. Both must have approved the gateway beforehand.
func (e *Engine) Stake(req StakeRequest) (common.Hash, error) {
	var hash common.Hash
	err := e.atomic("stake", func() error {
		if err := e.requireActive(); err != nil {
			return err
		}
		if err := validateStake(req); err != nil {
			return err
		}
		msg := e.StakeMessage(req)
		hash = msg.Hash()
		if err := e.beginProcess(req.Staker, req.Nonce, messagebus.Outbox, hash); err != nil {
			return err
		}
		stake := &Stake{
			Amount:      cloneBigInt(req.Amount),
			Beneficiary: req.Beneficiary,
			Message:     msg,
			Facilitator: req.Caller,
			Bounty:      cloneBigInt(e.cfg.Bounty),
		}
		if err := e.state.KVPut(stakeKey(hash), stake); err != nil {
			return err
		}
		if _, err := e.box.DeclareMessage(&msg, req.Signature); err != nil {
			return err
		}
		if err := e.value.TransferFrom(e.custody(), req.Staker, e.custody(), stake.Amount); err != nil {
			return err
		}
		if err := e.bounty.TransferFrom(e.custody(), req.Caller, e.custody(), stake.Bounty); err != nil {
			return err
		}
		e.queue(events.StakeDeclared{
			MessageHash: hash,
			Staker:      req.Staker,
			Nonce:       req.Nonce,
			Beneficiary: req.Beneficiary,
			Amount:      cloneBigInt(stake.Amount),
			Bounty:      cloneBigInt(stake.Bounty),
			Facilitator: req.Caller,
		})
		return nil
	})
	return hash, err
}

// ProgressStake completes a stake with the unlock secret: the principal moves
// into the vault and the bounty goes to caller.
func (e *Engine) ProgressStake(caller common.Address, messageHash common.Hash, secret []byte) error {
	return e.atomic("progress_stake", func() error {
		stake, err := e.loadStake(messageHash)
		if err != nil {
			return err
		}
		if err := e.box.ProgressOutbox(&stake.Message, secret); err != nil {
			return err
		}
		return e.settleStake(caller, messageHash, stake, false, secret)
	})
}

// ProgressStakeWithProof completes a stake given a proof that the co-gateway
// inbox holds the message with status counterpart at blockHeight.
func (e *Engine) ProgressStakeWithProof(caller common.Address, messageHash common.Hash, blockHeight uint64, proof [][]byte, counterpart messagebus.Status) error {
	return e.atomic("progress_stake_with_proof", func() error {
		stake, err := e.loadStake(messageHash)
		if err != nil {
			return err
		}
		root, err := e.storageRootAt(blockHeight)
		if err != nil {
			return err
		}
		if err := e.box.ProgressOutboxWithProof(&stake.Message, proof, root, counterpart); err != nil {
			return err
		}
		return e.settleStake(caller, messageHash, stake, true, nil)
	})
}

func (e *Engine) settleStake(caller common.Address, hash common.Hash, stake *Stake, withProof bool, secret []byte) error {
	if caller == (common.Address{}) {
		return fmt.Errorf("%w: caller required", bridgeerrors.ErrInvalidInput)
	}
	if err := e.value.Transfer(e.custody(), e.vault.Address(), stake.Amount); err != nil {
		return err
	}
	if err := e.bounty.Transfer(e.custody(), caller, stake.Bounty); err != nil {
		return err
	}
	e.queue(events.StakeProgressed{
		MessageHash:   hash,
		Staker:        stake.Message.Sender,
		Beneficiary:   stake.Beneficiary,
		Amount:        cloneBigInt(stake.Amount),
		Bounty:        cloneBigInt(stake.Bounty),
		Caller:        caller,
		ProofProgress: withProof,
		UnlockSecret:  append([]byte(nil), secret...),
	})
	return nil
}

// RevertStake declares the revocation of an in-flight stake on behalf of the
// staker. signature is the staker's signature over the revocation hash; caller
// only submits it.
func (e *Engine) RevertStake(caller common.Address, messageHash common.Hash, signature []byte) error {
	return e.atomic("revert_stake", func() error {
		if caller == (common.Address{}) {
			return fmt.Errorf("%w: caller required", bridgeerrors.ErrInvalidInput)
		}
		stake, err := e.loadStake(messageHash)
		if err != nil {
			return err
		}
		if err := e.box.DeclareRevocation(&stake.Message, signature); err != nil {
			return err
		}
		e.queue(events.StakeRevertDeclared{
			MessageHash: messageHash,
			Staker:      stake.Message.Sender,
			Nonce:       stake.Message.Nonce,
			Amount:      cloneBigInt(stake.Amount),
			Caller:      caller,
		})
		return nil
	})
}

// ProgressRevertStake completes a revocation once the co-gateway inbox is
// proven to hold the message as Revoked. The principal returns to the staker
// and the bounty goes to caller. There is no unlock-secret variant: the secret
// also unlocks the co-gateway inbox, so it cannot show the counterpart did not
// mint.
func (e *Engine) ProgressRevertStake(caller common.Address, messageHash common.Hash, blockHeight uint64, proof [][]byte) error {
	return e.atomic("progress_revert_stake", func() error {
		if caller == (common.Address{}) {
			return fmt.Errorf("%w: caller required", bridgeerrors.ErrInvalidInput)
		}
		stake, err := e.loadStake(messageHash)
		if err != nil {
			return err
		}
		root, err := e.storageRootAt(blockHeight)
		if err != nil {
			return err
		}
		if err := e.box.ProgressOutboxRevocationWithProof(&stake.Message, proof, root); err != nil {
			return err
		}
		if err := e.value.Transfer(e.custody(), stake.Message.Sender, stake.Amount); err != nil {
			return err
		}
		if err := e.bounty.Transfer(e.custody(), caller, stake.Bounty); err != nil {
			return err
		}
		e.queue(events.StakeReverted{
			MessageHash: messageHash,
			Staker:      stake.Message.Sender,
			Amount:      cloneBigInt(stake.Amount),
			Bounty:      cloneBigInt(stake.Bounty),
			Caller:      caller,
		})
		return nil
	})
}

// StakeOf returns the stake record for messageHash.
func (e *Engine) StakeOf(messageHash common.Hash) (*Stake, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadStake(messageHash)
}
