// Package gateway implements the origin-side orchestrator of a bridge
// channel: the one-time link handshake, the stake flow, the redemption flow
// and the proving of counterpart storage roots. Every public operation runs
// as one transaction against ledger state: it either commits all of its state
// changes, transfers and events, or none of them.
package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"stakebridge/core/events"
	"stakebridge/native/bridge/messagebus"
)

var (
	errNilState  = errors.New("bridge gateway: state not configured")
	errNilTokens = errors.New("bridge gateway: tokens not configured")
	errNilVault  = errors.New("bridge gateway: vault not configured")
	errNilRoots  = errors.New("bridge gateway: state root source not configured")
)

type engineState interface {
	messagebus.Store
	KVDelete(key []byte) error
	Snapshot() int
	RevertToSnapshot(id int) error
	DiscardSnapshot(id int)
}

// Token is the fungible ledger the gateway moves principal and bounties on.
type Token interface {
	BalanceOf(addr common.Address) (*big.Int, error)
	Transfer(from, to common.Address, amount *big.Int) error
	TransferFrom(spender, from, to common.Address, amount *big.Int) error
}

// Vault custodies staked principal and releases it on redemption.
type Vault interface {
	Address() common.Address
	ReleaseTo(beneficiary common.Address, amount *big.Int) error
}

// StateRootSource yields the committed counterpart state root for a height.
// The boolean is false when no root is available yet.
type StateRootSource interface {
	StateRoot(height uint64) (common.Hash, bool, error)
}

// Engine wires the gateway workflow with ledger state, token and vault
// collaborators and the event emitter.
type Engine struct {
	cfg     Config
	state   engineState
	box     *messagebus.MessageBox
	value   Token
	bounty  Token
	vault   Vault
	roots   StateRootSource
	emitter events.Emitter
	reward  RewardFunc
	logger  *slog.Logger

	pending []events.Event
}

// NewEngine creates a gateway engine with a no-op emitter and the default
// reward formula. A missing supersession policy defaults to strict.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, _ := ParseSupersessionPolicy(string(cfg.Supersession))
	cfg.Supersession = policy
	cfg.Bounty = cloneBigInt(cfg.Bounty)
	return &Engine{
		cfg:     cfg,
		emitter: events.NoopEmitter{},
		reward:  DefaultReward,
		logger:  slog.Default(),
	}, nil
}

// Config returns a copy of the gateway configuration.
func (e *Engine) Config() Config {
	cfg := e.cfg
	cfg.Bounty = cloneBigInt(e.cfg.Bounty)
	return cfg
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) {
	e.state = state
	if state == nil {
		e.box = nil
		return
	}
	e.box = messagebus.New(state, e.cfg.Layout)
}

// SetTokens configures the staked asset and the asset bounties are paid in.
// Both may be the same token.
func (e *Engine) SetTokens(value, bounty Token) {
	e.value = value
	e.bounty = bounty
}

// SetVault configures the custody vault.
func (e *Engine) SetVault(vault Vault) { e.vault = vault }

// SetStateRootSource configures where trusted counterpart state roots come
// from.
func (e *Engine) SetStateRootSource(roots StateRootSource) { e.roots = roots }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetRewardFunc overrides the relayer reward formula. Passing nil restores
// DefaultReward.
func (e *Engine) SetRewardFunc(fn RewardFunc) {
	if fn == nil {
		e.reward = DefaultReward
		return
	}
	e.reward = fn
}

// SetLogger configures the structured logger. Passing nil restores the
// process default.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.value == nil || e.bounty == nil:
		return errNilTokens
	case e.vault == nil:
		return errNilVault
	case e.roots == nil:
		return errNilRoots
	}
	return nil
}

func (e *Engine) custody() common.Address { return e.cfg.Channel.Gateway }

func (e *Engine) queue(evt events.Event) {
	e.pending = append(e.pending, evt)
}

// atomic runs fn inside a state snapshot. On failure every write is reverted
// and queued events are dropped; on success the events are emitted in order.
func (e *Engine) atomic(op string, fn func() error) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.pending = e.pending[:0]
	snap := e.state.Snapshot()
	if err := fn(); err != nil {
		e.pending = e.pending[:0]
		if revertErr := e.state.RevertToSnapshot(snap); revertErr != nil {
			e.logger.Error("bridge/gateway: revert failed", "op", op, "error", revertErr)
			return errors.Join(err, fmt.Errorf("bridge gateway: revert: %w", revertErr))
		}
		e.logger.Debug("bridge/gateway: transition rejected", "op", op, "error", err)
		return err
	}
	e.state.DiscardSnapshot(snap)
	emitted := e.pending
	e.pending = nil
	for _, evt := range emitted {
		e.emitter.Emit(evt)
	}
	e.logger.Info("bridge/gateway: transition committed", "op", op, "events", len(emitted))
	return nil
}
