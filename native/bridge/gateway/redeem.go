package gateway

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	bridgeerrors "stakebridge/core/errors"
	"stakebridge/core/events"
	"stakebridge/native/bridge/gatewaylib"
	"stakebridge/native/bridge/messagebus"
)

func validateRedemption(req RedemptionRequest) error {
	switch {
	case !positive(req.Amount):
		return fmt.Errorf("%w: redeem amount must be positive", bridgeerrors.ErrInvalidInput)
	case req.Redeemer == (common.Address{}):
		return fmt.Errorf("%w: redeemer must not be zero", bridgeerrors.ErrInvalidInput)
	case req.Beneficiary == (common.Address{}):
		return fmt.Errorf("%w: beneficiary must not be zero", bridgeerrors.ErrInvalidInput)
	case req.HashLock == (common.Hash{}):
		return fmt.Errorf("%w: hash lock must not be zero", bridgeerrors.ErrInvalidInput)
	case len(req.Proof) == 0:
		return fmt.Errorf("%w: proof required", bridgeerrors.ErrInvalidInput)
	case !nonNegative(req.GasPrice) || !nonNegative(req.GasLimit) || !nonNegative(req.GasConsumed):
		return fmt.Errorf("%w: gas terms must not be negative", bridgeerrors.ErrInvalidInput)
	case !fitsWord(req.Amount, req.GasPrice, req.GasLimit, req.GasConsumed):
		return fmt.Errorf("%w: amount and gas terms must fit 256 bits", bridgeerrors.ErrInvalidInput)
	}
	return nil
}

// RedeemIntentHash returns the redemption digest for req on this gateway's
// channel.
func (e *Engine) RedeemIntentHash(req RedemptionRequest) common.Hash {
	return gatewaylib.RedeemIntentHash(e.cfg.Channel, gatewaylib.RedeemIntent{
		Amount:       req.Amount,
		Beneficiary:  req.Beneficiary,
		Redeemer:     req.Redeemer,
		Nonce:        req.Nonce,
		GasPrice:     req.GasPrice,
		GasLimit:     req.GasLimit,
		UtilityToken: e.cfg.UtilityToken,
	})
}

// RedeemMessage builds the message the co-gateway declared for req.
func (e *Engine) RedeemMessage(req RedemptionRequest) messagebus.Message {
	return messagebus.Message{
		IntentHash:  e.RedeemIntentHash(req),
		Nonce:       req.Nonce,
		Sender:      req.Redeemer,
		GasPrice:    cloneBigInt(req.GasPrice),
		GasLimit:    cloneBigInt(req.GasLimit),
		HashLock:    req.HashLock,
		GasConsumed: cloneBigInt(req.GasConsumed),
	}
}

// ConfirmRedemptionIntent records a redemption the co-gateway declared, given
// a proof of its outbox at req.BlockHeight.
func (e *Engine) ConfirmRedemptionIntent(req RedemptionRequest) (common.Hash, error) {
	var hash common.Hash
	err := e.atomic("confirm_redemption_intent", func() error {
		if err := e.requireActive(); err != nil {
			return err
		}
		if err := validateRedemption(req); err != nil {
			return err
		}
		root, err := e.storageRootAt(req.BlockHeight)
		if err != nil {
			return err
		}
		msg := e.RedeemMessage(req)
		hash = msg.Hash()
		if err := e.beginProcess(req.Redeemer, req.Nonce, messagebus.Inbox, hash); err != nil {
			return err
		}
		unstake := &Unstake{
			Amount:      cloneBigInt(req.Amount),
			Beneficiary: req.Beneficiary,
			Message:     msg,
		}
		if err := e.state.KVPut(unstakeKey(hash), unstake); err != nil {
			return err
		}
		if _, err := e.box.ConfirmMessage(&msg, req.Proof, root); err != nil {
			return err
		}
		e.queue(events.RedemptionConfirmed{
			MessageHash: hash,
			Redeemer:    req.Redeemer,
			Nonce:       req.Nonce,
			Beneficiary: req.Beneficiary,
			Amount:      cloneBigInt(req.Amount),
			BlockHeight: req.BlockHeight,
			HashLock:    req.HashLock,
			GasConsumed: cloneBigInt(msg.GasConsumed),
		})
		return nil
	})
	return hash, err
}

// ProgressUnstake completes a redemption with the unlock secret.
func (e *Engine) ProgressUnstake(caller common.Address, messageHash common.Hash, secret []byte) (*UnstakeResult, error) {
	var result *UnstakeResult
	err := e.atomic("progress_unstake", func() error {
		unstake, err := e.loadUnstake(messageHash)
		if err != nil {
			return err
		}
		if err := e.box.ProgressInbox(&unstake.Message, secret); err != nil {
			return err
		}
		result, err = e.settleUnstake(caller, messageHash, unstake, false, secret)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ProgressUnstakeWithProof completes a redemption once the co-gateway outbox
// is proven to hold the message as Progressed at blockHeight.
func (e *Engine) ProgressUnstakeWithProof(caller common.Address, messageHash common.Hash, blockHeight uint64, proof [][]byte, counterpart messagebus.Status) (*UnstakeResult, error) {
	var result *UnstakeResult
	err := e.atomic("progress_unstake_with_proof", func() error {
		unstake, err := e.loadUnstake(messageHash)
		if err != nil {
			return err
		}
		root, err := e.storageRootAt(blockHeight)
		if err != nil {
			return err
		}
		if err := e.box.ProgressInboxWithProof(&unstake.Message, proof, root, counterpart); err != nil {
			return err
		}
		result, err = e.settleUnstake(caller, messageHash, unstake, true, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// settleUnstake releases amount - reward to the beneficiary and the reward to
// caller.
func (e *Engine) settleUnstake(caller common.Address, hash common.Hash, unstake *Unstake, withProof bool, secret []byte) (*UnstakeResult, error) {
	if caller == (common.Address{}) {
		return nil, fmt.Errorf("%w: caller required", bridgeerrors.ErrInvalidInput)
	}
	msg := unstake.Message
	reward, err := e.reward(msg.GasPrice, msg.GasConsumed, msg.GasLimit, e.cfg.RelayOverheadGas)
	if err != nil {
		return nil, err
	}
	if reward == nil || reward.Sign() < 0 {
		return nil, fmt.Errorf("%w: reward must not be negative", bridgeerrors.ErrInvalidInput)
	}
	if reward.Cmp(unstake.Amount) > 0 {
		return nil, fmt.Errorf("%w: reward %s exceeds redeem amount %s", bridgeerrors.ErrInvalidInput, reward, unstake.Amount)
	}
	result := &UnstakeResult{
		RedeemAmount:  cloneBigInt(unstake.Amount),
		UnstakeAmount: new(big.Int).Sub(unstake.Amount, reward),
		Reward:        cloneBigInt(reward),
	}
	if err := e.vault.ReleaseTo(unstake.Beneficiary, result.UnstakeAmount); err != nil {
		return nil, err
	}
	if err := e.vault.ReleaseTo(caller, result.Reward); err != nil {
		return nil, err
	}
	e.queue(events.UnstakeProgressed{
		MessageHash:   hash,
		Redeemer:      msg.Sender,
		Beneficiary:   unstake.Beneficiary,
		RedeemAmount:  cloneBigInt(result.RedeemAmount),
		UnstakeAmount: cloneBigInt(result.UnstakeAmount),
		Reward:        cloneBigInt(result.Reward),
		Caller:        caller,
		ProofProgress: withProof,
		UnlockSecret:  append([]byte(nil), secret...),
	})
	return result, nil
}

// ConfirmRevertRedemptionIntent revokes a confirmed redemption once the
// co-gateway outbox is proven to hold a declared revocation. gasConsumed
// replaces the cost recorded at confirmation.
func (e *Engine) ConfirmRevertRedemptionIntent(caller common.Address, messageHash common.Hash, blockHeight uint64, proof [][]byte, gasConsumed *big.Int) error {
	return e.atomic("confirm_revert_redemption_intent", func() error {
		if !nonNegative(gasConsumed) || !fitsWord(gasConsumed) {
			return fmt.Errorf("%w: gas consumed must be a non-negative 256-bit value", bridgeerrors.ErrInvalidInput)
		}
		unstake, err := e.loadUnstake(messageHash)
		if err != nil {
			return err
		}
		root, err := e.storageRootAt(blockHeight)
		if err != nil {
			return err
		}
		if err := e.box.ConfirmRevocation(&unstake.Message, proof, root); err != nil {
			return err
		}
		unstake.Message.GasConsumed = cloneBigInt(gasConsumed)
		if err := e.state.KVPut(unstakeKey(messageHash), unstake); err != nil {
			return err
		}
		e.queue(events.RedemptionRevertConfirmed{
			MessageHash: messageHash,
			Redeemer:    unstake.Message.Sender,
			Nonce:       unstake.Message.Nonce,
			Amount:      cloneBigInt(unstake.Amount),
			BlockHeight: blockHeight,
			GasConsumed: cloneBigInt(unstake.Message.GasConsumed),
		})
		e.logger.Debug("bridge/gateway: redemption revocation confirmed", "caller", caller.Hex(), "messageHash", messageHash.Hex())
		return nil
	})
}

// UnstakeOf returns the unstake record for messageHash.
func (e *Engine) UnstakeOf(messageHash common.Hash) (*Unstake, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadUnstake(messageHash)
}

