package gateway

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	bridgeerrors "stakebridge/core/errors"
	"stakebridge/native/bridge/gatewaylib"
	"stakebridge/native/bridge/messagebus"
)

// SupersessionPolicy decides whether a new process may replace an account's
// in-flight one.
type SupersessionPolicy string

const (
	// SupersessionStrict requires the previous message to be Progressed or
	// Revoked before the account starts a new process.
	SupersessionStrict SupersessionPolicy = "strict"
	// SupersessionPermissive lets a new process replace a non-terminal one.
	// Every such replacement is logged at WARN level.
	SupersessionPermissive SupersessionPolicy = "permissive"
)

// ParseSupersessionPolicy resolves a configured policy name. The empty string
// selects the strict policy.
func ParseSupersessionPolicy(raw string) (SupersessionPolicy, error) {
	switch SupersessionPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SupersessionStrict:
		return SupersessionStrict, nil
	case SupersessionPermissive:
		return SupersessionPermissive, nil
	default:
		return "", fmt.Errorf("%w: unknown supersession policy %q", bridgeerrors.ErrInvalidInput, raw)
	}
}

// Config holds the immutable parameters of one gateway.
type Config struct {
	// Channel names this gateway (origin) and its co-gateway (auxiliary).
	Channel gatewaylib.Channel
	// ValueToken is the staked asset as named in stake and link digests.
	ValueToken common.Address
	// UtilityToken is the counterpart asset named in redemption digests.
	UtilityToken  common.Address
	TokenName     string
	TokenSymbol   string
	TokenDecimals uint8
	// Bounty is paid by facilitators when declaring and returned on progress.
	Bounty *big.Int
	// Organization, when set, is the only account allowed to sign the link.
	Organization common.Address
	// Layout locates the co-gateway's message registries in its storage.
	Layout           messagebus.Layout
	RelayOverheadGas uint64
	Supersession     SupersessionPolicy
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	if c.Channel.Gateway == (common.Address{}) || c.Channel.CoGateway == (common.Address{}) {
		return fmt.Errorf("%w: gateway and co-gateway addresses required", bridgeerrors.ErrInvalidInput)
	}
	if c.Channel.Gateway == c.Channel.CoGateway {
		return fmt.Errorf("%w: gateway and co-gateway must differ", bridgeerrors.ErrInvalidInput)
	}
	if c.ValueToken == (common.Address{}) {
		return fmt.Errorf("%w: value token address required", bridgeerrors.ErrInvalidInput)
	}
	if c.Bounty == nil || c.Bounty.Sign() < 0 {
		return fmt.Errorf("%w: bounty must not be negative", bridgeerrors.ErrInvalidInput)
	}
	if _, err := ParseSupersessionPolicy(string(c.Supersession)); err != nil {
		return err
	}
	return nil
}

// Link is the singleton record of the gateway link handshake.
type Link struct {
	MessageHash common.Hash
	Message     messagebus.Message
}

// Stake is the record of a declared stake.
type Stake struct {
	Amount      *big.Int
	Beneficiary common.Address
	Message     messagebus.Message
	Facilitator common.Address
	Bounty      *big.Int
}

// Unstake is the record of a redemption confirmed from the counterpart.
type Unstake struct {
	Amount      *big.Int
	Beneficiary common.Address
	Message     messagebus.Message
}

// Process is an account's current in-flight message.
type Process struct {
	MessageHash common.Hash
	Box         messagebus.Box
}

// LinkRequest declares the gateway link.
type LinkRequest struct {
	Caller     common.Address
	IntentHash common.Hash
	Nonce      uint64
	Sender     common.Address
	HashLock   common.Hash
	Signature  []byte
}

// StakeRequest declares a stake. Caller is the facilitator paying the bounty.
type StakeRequest struct {
	Caller      common.Address
	Amount      *big.Int
	Beneficiary common.Address
	Staker      common.Address
	GasPrice    *big.Int
	GasLimit    *big.Int
	Nonce       uint64
	HashLock    common.Hash
	Signature   []byte
}

// RedemptionRequest confirms a redemption the counterpart declared at
// BlockHeight. GasConsumed is the cost of the confirming call, recorded for
// the reward paid when the unstake progresses.
type RedemptionRequest struct {
	Caller      common.Address
	Redeemer    common.Address
	Beneficiary common.Address
	Amount      *big.Int
	GasPrice    *big.Int
	GasLimit    *big.Int
	Nonce       uint64
	HashLock    common.Hash
	BlockHeight uint64
	Proof       [][]byte
	GasConsumed *big.Int
}

// UnstakeResult reports the split of a progressed redemption.
type UnstakeResult struct {
	RedeemAmount  *big.Int
	UnstakeAmount *big.Int
	Reward        *big.Int
}

// ProveResult reports the storage root established by ProveGateway.
type ProveResult struct {
	StorageRoot   common.Hash
	AlreadyProven bool
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

func nonNegative(v *big.Int) bool {
	return v == nil || v.Sign() >= 0
}

// fitsWord reports whether every value fits an unsigned 256-bit word. Digests
// encode amounts as single words, so wider values would alias smaller ones.
func fitsWord(values ...*big.Int) bool {
	for _, v := range values {
		if v == nil {
			continue
		}
		if v.Sign() < 0 {
			return false
		}
		if _, overflow := uint256.FromBig(v); overflow {
			return false
		}
	}
	return true
}
