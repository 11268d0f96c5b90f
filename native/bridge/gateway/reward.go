package gateway

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	bridgeerrors "stakebridge/core/errors"
)

// RewardFunc computes the relayer reward of a progressed redemption from the
// gas terms of its message and the configured relay overhead.
type RewardFunc func(gasPrice, gasConsumed, gasLimit *big.Int, overhead uint64) (*big.Int, error)

func toUint256(name string, v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s must not be negative", bridgeerrors.ErrInvalidInput, name)
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("%w: %s exceeds 256 bits", bridgeerrors.ErrInvalidInput, name)
	}
	return out, nil
}

// DefaultReward pays gasPrice * min(gasConsumed + overhead, gasLimit).
func DefaultReward(gasPrice, gasConsumed, gasLimit *big.Int, overhead uint64) (*big.Int, error) {
	price, err := toUint256("gas price", gasPrice)
	if err != nil {
		return nil, err
	}
	consumed, err := toUint256("gas consumed", gasConsumed)
	if err != nil {
		return nil, err
	}
	limit, err := toUint256("gas limit", gasLimit)
	if err != nil {
		return nil, err
	}
	gas, overflow := new(uint256.Int).AddOverflow(consumed, uint256.NewInt(overhead))
	if overflow || gas.Gt(limit) {
		gas = limit
	}
	reward, overflow := new(uint256.Int).MulOverflow(price, gas)
	if overflow {
		return nil, fmt.Errorf("%w: reward overflows 256 bits", bridgeerrors.ErrInvalidInput)
	}
	return reward.ToBig(), nil
}
