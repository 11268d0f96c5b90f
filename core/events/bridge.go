package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"stakebridge/core/types"
)

const (
	// TypeBridgeLinkDeclared is emitted when the one-time gateway link is declared.
	TypeBridgeLinkDeclared = "bridge.link.declared"
	// TypeBridgeLinkProgressed is emitted when the link completes and the gateway activates.
	TypeBridgeLinkProgressed = "bridge.link.progressed"
	// TypeBridgeStakeDeclared is emitted when a stake intent enters the outbox.
	TypeBridgeStakeDeclared = "bridge.stake.declared"
	// TypeBridgeStakeProgressed is emitted when staked principal moves to the vault.
	TypeBridgeStakeProgressed = "bridge.stake.progressed"
	// TypeBridgeStakeRevertDeclared is emitted when a staker declares revocation.
	TypeBridgeStakeRevertDeclared = "bridge.stake.revert_declared"
	// TypeBridgeStakeReverted is emitted when a revoked stake refunds the staker.
	TypeBridgeStakeReverted = "bridge.stake.reverted"
	// TypeBridgeRedemptionConfirmed is emitted when a remote redemption intent is confirmed.
	TypeBridgeRedemptionConfirmed = "bridge.redeem.confirmed"
	// TypeBridgeUnstakeProgressed is emitted when custody releases redeemed principal.
	TypeBridgeUnstakeProgressed = "bridge.unstake.progressed"
	// TypeBridgeRedemptionRevertConfirmed is emitted when a remote redemption revocation is confirmed.
	TypeBridgeRedemptionRevertConfirmed = "bridge.redeem.revert_confirmed"
	// TypeBridgeGatewayProven is emitted when a counterpart storage root is established or replayed.
	TypeBridgeGatewayProven = "bridge.gateway.proven"
)

// LinkDeclared captures the outbox declaration of the gateway link message.
type LinkDeclared struct {
	MessageHash common.Hash
	Gateway     common.Address
	CoGateway   common.Address
	Sender      common.Address
	Facilitator common.Address
	Nonce       uint64
	Bounty      *big.Int
}

// EventType satisfies the Event interface.
func (LinkDeclared) EventType() string { return TypeBridgeLinkDeclared }

// Event converts the structured payload into a broadcastable event.
func (e LinkDeclared) Event() *types.Event {
	attrs := map[string]string{
		"messageHash": e.MessageHash.Hex(),
		"gateway":     formatAddress(e.Gateway),
		"coGateway":   formatAddress(e.CoGateway),
		"sender":      formatAddress(e.Sender),
		"nonce":       formatUint(e.Nonce),
		"bounty":      formatAmount(e.Bounty),
	}
	setIfNotEmpty(attrs, "facilitator", formatAddress(e.Facilitator))
	return &types.Event{Type: TypeBridgeLinkDeclared, Attributes: attrs}
}

// LinkProgressed captures activation of the gateway.
type LinkProgressed struct {
	MessageHash   common.Hash
	Gateway       common.Address
	CoGateway     common.Address
	Caller        common.Address
	Bounty        *big.Int
	ProofProgress bool
	UnlockSecret  []byte
}

// EventType satisfies the Event interface.
func (LinkProgressed) EventType() string { return TypeBridgeLinkProgressed }

// Event converts the structured payload into a broadcastable event.
func (e LinkProgressed) Event() *types.Event {
	attrs := map[string]string{
		"messageHash":   e.MessageHash.Hex(),
		"gateway":       formatAddress(e.Gateway),
		"coGateway":     formatAddress(e.CoGateway),
		"caller":        formatAddress(e.Caller),
		"bounty":        formatAmount(e.Bounty),
		"proofProgress": formatBool(e.ProofProgress),
	}
	setIfNotEmpty(attrs, "unlockSecret", formatSecret(e.UnlockSecret))
	return &types.Event{Type: TypeBridgeLinkProgressed, Attributes: attrs}
}

// StakeDeclared captures a newly declared stake intent.
type StakeDeclared struct {
	MessageHash common.Hash
	Staker      common.Address
	Nonce       uint64
	Beneficiary common.Address
	Amount      *big.Int
	Bounty      *big.Int
	Facilitator common.Address
}

// EventType satisfies the Event interface.
func (StakeDeclared) EventType() string { return TypeBridgeStakeDeclared }

// Event converts the structured payload into a broadcastable event.
func (e StakeDeclared) Event() *types.Event {
	return &types.Event{Type: TypeBridgeStakeDeclared, Attributes: map[string]string{
		"messageHash": e.MessageHash.Hex(),
		"staker":      formatAddress(e.Staker),
		"nonce":       formatUint(e.Nonce),
		"beneficiary": formatAddress(e.Beneficiary),
		"amount":      formatAmount(e.Amount),
		"bounty":      formatAmount(e.Bounty),
		"facilitator": formatAddress(e.Facilitator),
	}}
}

// StakeProgressed captures principal moving into the custody vault.
type StakeProgressed struct {
	MessageHash   common.Hash
	Staker        common.Address
	Beneficiary   common.Address
	Amount        *big.Int
	Bounty        *big.Int
	Caller        common.Address
	ProofProgress bool
	UnlockSecret  []byte
}

// EventType satisfies the Event interface.
func (StakeProgressed) EventType() string { return TypeBridgeStakeProgressed }

// Event converts the structured payload into a broadcastable event.
func (e StakeProgressed) Event() *types.Event {
	attrs := map[string]string{
		"messageHash":   e.MessageHash.Hex(),
		"staker":        formatAddress(e.Staker),
		"beneficiary":   formatAddress(e.Beneficiary),
		"amount":        formatAmount(e.Amount),
		"bounty":        formatAmount(e.Bounty),
		"caller":        formatAddress(e.Caller),
		"proofProgress": formatBool(e.ProofProgress),
	}
	setIfNotEmpty(attrs, "unlockSecret", formatSecret(e.UnlockSecret))
	return &types.Event{Type: TypeBridgeStakeProgressed, Attributes: attrs}
}

// StakeRevertDeclared captures a staker abandoning an in-flight stake.
type StakeRevertDeclared struct {
	MessageHash common.Hash
	Staker      common.Address
	Nonce       uint64
	Amount      *big.Int
	Caller      common.Address
}

// EventType satisfies the Event interface.
func (StakeRevertDeclared) EventType() string { return TypeBridgeStakeRevertDeclared }

// Event converts the structured payload into a broadcastable event.
func (e StakeRevertDeclared) Event() *types.Event {
	return &types.Event{Type: TypeBridgeStakeRevertDeclared, Attributes: map[string]string{
		"messageHash": e.MessageHash.Hex(),
		"staker":      formatAddress(e.Staker),
		"nonce":       formatUint(e.Nonce),
		"amount":      formatAmount(e.Amount),
		"caller":      formatAddress(e.Caller),
	}}
}

// StakeReverted captures the refund of a revoked stake.
type StakeReverted struct {
	MessageHash common.Hash
	Staker      common.Address
	Amount      *big.Int
	Bounty      *big.Int
	Caller      common.Address
}

// EventType satisfies the Event interface.
func (StakeReverted) EventType() string { return TypeBridgeStakeReverted }

// Event converts the structured payload into a broadcastable event.
func (e StakeReverted) Event() *types.Event {
	return &types.Event{Type: TypeBridgeStakeReverted, Attributes: map[string]string{
		"messageHash": e.MessageHash.Hex(),
		"staker":      formatAddress(e.Staker),
		"amount":      formatAmount(e.Amount),
		"bounty":      formatAmount(e.Bounty),
		"caller":      formatAddress(e.Caller),
	}}
}

// RedemptionConfirmed captures a redemption intent confirmed from a remote proof.
type RedemptionConfirmed struct {
	MessageHash common.Hash
	Redeemer    common.Address
	Nonce       uint64
	Beneficiary common.Address
	Amount      *big.Int
	BlockHeight uint64
	HashLock    common.Hash
	GasConsumed *big.Int
}

// EventType satisfies the Event interface.
func (RedemptionConfirmed) EventType() string { return TypeBridgeRedemptionConfirmed }

// Event converts the structured payload into a broadcastable event.
func (e RedemptionConfirmed) Event() *types.Event {
	return &types.Event{Type: TypeBridgeRedemptionConfirmed, Attributes: map[string]string{
		"messageHash": e.MessageHash.Hex(),
		"redeemer":    formatAddress(e.Redeemer),
		"nonce":       formatUint(e.Nonce),
		"beneficiary": formatAddress(e.Beneficiary),
		"amount":      formatAmount(e.Amount),
		"blockHeight": formatUint(e.BlockHeight),
		"hashLock":    e.HashLock.Hex(),
		"gasConsumed": formatAmount(e.GasConsumed),
	}}
}

// UnstakeProgressed captures release of redeemed principal from custody.
type UnstakeProgressed struct {
	MessageHash   common.Hash
	Redeemer      common.Address
	Beneficiary   common.Address
	RedeemAmount  *big.Int
	UnstakeAmount *big.Int
	Reward        *big.Int
	Caller        common.Address
	ProofProgress bool
	UnlockSecret  []byte
}

// EventType satisfies the Event interface.
func (UnstakeProgressed) EventType() string { return TypeBridgeUnstakeProgressed }

// Event converts the structured payload into a broadcastable event.
func (e UnstakeProgressed) Event() *types.Event {
	attrs := map[string]string{
		"messageHash":   e.MessageHash.Hex(),
		"redeemer":      formatAddress(e.Redeemer),
		"beneficiary":   formatAddress(e.Beneficiary),
		"redeemAmount":  formatAmount(e.RedeemAmount),
		"unstakeAmount": formatAmount(e.UnstakeAmount),
		"reward":        formatAmount(e.Reward),
		"caller":        formatAddress(e.Caller),
		"proofProgress": formatBool(e.ProofProgress),
	}
	setIfNotEmpty(attrs, "unlockSecret", formatSecret(e.UnlockSecret))
	return &types.Event{Type: TypeBridgeUnstakeProgressed, Attributes: attrs}
}

// RedemptionRevertConfirmed captures a remote redemption revocation being mirrored locally.
type RedemptionRevertConfirmed struct {
	MessageHash common.Hash
	Redeemer    common.Address
	Nonce       uint64
	Amount      *big.Int
	BlockHeight uint64
	GasConsumed *big.Int
}

// EventType satisfies the Event interface.
func (RedemptionRevertConfirmed) EventType() string { return TypeBridgeRedemptionRevertConfirmed }

// Event converts the structured payload into a broadcastable event.
func (e RedemptionRevertConfirmed) Event() *types.Event {
	return &types.Event{Type: TypeBridgeRedemptionRevertConfirmed, Attributes: map[string]string{
		"messageHash": e.MessageHash.Hex(),
		"redeemer":    formatAddress(e.Redeemer),
		"nonce":       formatUint(e.Nonce),
		"amount":      formatAmount(e.Amount),
		"blockHeight": formatUint(e.BlockHeight),
		"gasConsumed": formatAmount(e.GasConsumed),
	}}
}

// GatewayProven captures a counterpart storage root verified for a height.
type GatewayProven struct {
	CoGateway     common.Address
	BlockHeight   uint64
	StorageRoot   common.Hash
	AlreadyProven bool
	Caller        common.Address
}

// EventType satisfies the Event interface.
func (GatewayProven) EventType() string { return TypeBridgeGatewayProven }

// Event converts the structured payload into a broadcastable event.
func (e GatewayProven) Event() *types.Event {
	attrs := map[string]string{
		"coGateway":     formatAddress(e.CoGateway),
		"blockHeight":   formatUint(e.BlockHeight),
		"storageRoot":   e.StorageRoot.Hex(),
		"alreadyProven": formatBool(e.AlreadyProven),
	}
	setIfNotEmpty(attrs, "caller", formatAddress(e.Caller))
	return &types.Event{Type: TypeBridgeGatewayProven, Attributes: attrs}
}
