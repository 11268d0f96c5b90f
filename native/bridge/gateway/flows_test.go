package gateway

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	bridgeerrors "stakebridge/core/errors"
	"stakebridge/core/events"
	"stakebridge/native/bridge/gatewaylib"
	"stakebridge/native/bridge/messagebus"
)

var redeemSecret = []byte("redeem-secret")

func lastAttributes(t *testing.T, c *events.Collector) map[string]string {
	t.Helper()
	all := c.Events()
	require.NotEmpty(t, all)
	b, ok := all[len(all)-1].(events.Broadcastable)
	require.True(t, ok)
	return b.Event().Attributes
}

func TestLinkHandshake(t *testing.T) {
	h := newHarness(t)

	active, err := h.engine.IsActive()
	require.NoError(t, err)
	require.False(t, active)

	staker := newAccount(t)
	_, err = h.engine.Stake(h.stakeRequest(staker, 0, 100))
	require.ErrorIs(t, err, bridgeerrors.ErrGatewayInactive)

	hashLock := gatewaylib.HashLock(linkSecret)
	_, err = h.engine.InitiateLink(LinkRequest{
		Caller:     facilitator,
		IntentHash: crypto.Keccak256Hash([]byte("other intent")),
		Sender:     h.org.addr,
		HashLock:   hashLock,
	})
	require.ErrorIs(t, err, bridgeerrors.ErrIntentMismatch)

	stranger := newAccount(t)
	_, err = h.engine.InitiateLink(LinkRequest{
		Caller:     facilitator,
		IntentHash: h.engine.LinkIntentHash(0),
		Sender:     stranger.addr,
		HashLock:   hashLock,
	})
	require.ErrorIs(t, err, bridgeerrors.ErrInvalidInput)
	require.Empty(t, h.events.Events())

	hash := h.initiateLink()
	require.Equal(t, []string{events.TypeBridgeLinkDeclared}, h.events.Types())
	require.EqualValues(t, 0, h.balance(h.bounty, facilitator))
	require.EqualValues(t, 10, h.balance(h.bounty, gatewayAddr))

	_, err = h.engine.InitiateLink(LinkRequest{Caller: facilitator, Sender: h.org.addr})
	require.ErrorIs(t, err, bridgeerrors.ErrAlreadyLinked)

	require.ErrorIs(t, h.engine.ProgressLink(linker, hash, []byte("wrong")), bridgeerrors.ErrInvalidUnlockSecret)
	require.NoError(t, h.engine.ProgressLink(linker, hash, linkSecret))

	active, err = h.engine.IsActive()
	require.NoError(t, err)
	require.True(t, active)
	require.EqualValues(t, 10, h.balance(h.bounty, linker))
	require.EqualValues(t, 0, h.balance(h.bounty, gatewayAddr))

	link, ok, err := h.engine.Link()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, hash, link.MessageHash)

	attrs := lastAttributes(t, h.events)
	require.Equal(t, events.TypeBridgeLinkProgressed, h.events.Types()[1])
	require.Equal(t, "false", attrs["proofProgress"])

	nonce, err := h.engine.NextNonce(h.org.addr)
	require.NoError(t, err)
	require.EqualValues(t, 1, nonce)
}

func TestProgressLinkWithProof(t *testing.T) {
	h := newHarness(t)
	hash := h.initiateLink()

	height, proof := h.proveStatus(messagebus.Inbox, hash, messagebus.StatusDeclared)
	require.NoError(t, h.engine.ProgressLinkWithProof(relayer, hash, height, proof, messagebus.StatusDeclared))

	active, err := h.engine.IsActive()
	require.NoError(t, err)
	require.True(t, active)
	require.Equal(t, "true", lastAttributes(t, h.events)["proofProgress"])
	require.ErrorIs(t, h.engine.ProgressLinkWithProof(relayer, hash, height, proof, messagebus.StatusDeclared), bridgeerrors.ErrAlreadyTerminal)
}

// Staker stakes 100 with bounty 10 at nonce 0 and a relayer progresses it
// with the secret.
func TestStakeProgressWithSecret(t *testing.T) {
	h := newHarness(t)
	h.link()
	staker := newAccount(t)

	hash := h.stake(staker, 0, 100)
	h.requireStatus(messagebus.Outbox, hash, messagebus.StatusDeclared)
	require.EqualValues(t, 0, h.balance(h.value, staker.addr))
	require.EqualValues(t, 100, h.balance(h.value, gatewayAddr))
	require.EqualValues(t, 10, h.balance(h.bounty, gatewayAddr))
	require.Equal(t, []string{events.TypeBridgeStakeDeclared}, h.events.Types())

	attrs := lastAttributes(t, h.events)
	require.Equal(t, hash.Hex(), attrs["messageHash"])
	require.Equal(t, "100", attrs["amount"])
	require.Equal(t, "10", attrs["bounty"])

	stake, err := h.engine.StakeOf(hash)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), stake.Amount)
	require.Equal(t, beneficiary, stake.Beneficiary)
	require.Equal(t, facilitator, stake.Facilitator)

	require.ErrorIs(t, h.engine.ProgressStake(relayer, hash, []byte("wrong")), bridgeerrors.ErrInvalidUnlockSecret)
	require.NoError(t, h.engine.ProgressStake(relayer, hash, stakeSecret))

	h.requireStatus(messagebus.Outbox, hash, messagebus.StatusProgressed)
	require.EqualValues(t, 100, h.balance(h.value, vaultAddr))
	require.EqualValues(t, 0, h.balance(h.value, gatewayAddr))
	require.EqualValues(t, 10, h.balance(h.bounty, relayer))
	require.Equal(t, []string{events.TypeBridgeStakeDeclared, events.TypeBridgeStakeProgressed}, h.events.Types())

	// A second progress on the same message is rejected and changes nothing.
	err = h.engine.ProgressStake(relayer, hash, stakeSecret)
	require.ErrorIs(t, err, bridgeerrors.ErrAlreadyTerminal)
	require.EqualValues(t, 10, h.balance(h.bounty, relayer))
	require.Len(t, h.events.Events(), 2)
}

func TestStakeRejectsStaleNonce(t *testing.T) {
	h := newHarness(t)
	h.link()
	staker := newAccount(t)

	hash := h.stake(staker, 0, 100)
	require.NoError(t, h.engine.ProgressStake(relayer, hash, stakeSecret))
	h.events.Reset()

	h.fund(h.value, staker.addr, 100)
	h.fund(h.bounty, facilitator, 10)
	_, err := h.engine.Stake(h.stakeRequest(staker, 0, 100))
	require.ErrorIs(t, err, bridgeerrors.ErrNonceMismatch)
	_, err = h.engine.Stake(h.stakeRequest(staker, 2, 100))
	require.ErrorIs(t, err, bridgeerrors.ErrNonceMismatch)
	require.Empty(t, h.events.Events())
	require.EqualValues(t, 100, h.balance(h.value, staker.addr))

	_, err = h.engine.Stake(h.stakeRequest(staker, 1, 100))
	require.NoError(t, err)
}

func TestNoncesIncreaseWithoutGaps(t *testing.T) {
	h := newHarness(t)
	h.link()
	staker := newAccount(t)

	var declared []uint64
	for i := uint64(0); i < 4; i++ {
		nonce, err := h.engine.NextNonce(staker.addr)
		require.NoError(t, err)
		require.Equal(t, i, nonce)
		hash := h.stake(staker, nonce, 50)
		require.NoError(t, h.engine.ProgressStake(relayer, hash, stakeSecret))
		declared = append(declared, nonce)
	}
	require.Equal(t, []uint64{0, 1, 2, 3}, declared)

	proc, ok, err := h.engine.ActiveProcess(staker.addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, messagebus.Outbox, proc.Box)
	msg, err := h.engine.Message(proc.Box, proc.MessageHash)
	require.NoError(t, err)
	require.EqualValues(t, 3, msg.Nonce)
}

func TestStrictSupersessionRejectsInFlightProcess(t *testing.T) {
	h := newHarness(t)
	h.link()
	staker := newAccount(t)

	first := h.stake(staker, 0, 100)
	h.fund(h.value, staker.addr, 100)
	h.fund(h.bounty, facilitator, 10)
	_, err := h.engine.Stake(h.stakeRequest(staker, 1, 100))
	require.ErrorIs(t, err, bridgeerrors.ErrProcessInFlight)

	_, err = h.engine.StakeOf(first)
	require.NoError(t, err)
}

func TestPermissiveSupersessionLogsDiscrepancy(t *testing.T) {
	h := newHarness(t, func(cfg *Config) { cfg.Supersession = SupersessionPermissive })
	h.link()
	staker := newAccount(t)

	first := h.stake(staker, 0, 100)
	second := h.stake(staker, 1, 100)
	require.NotEqual(t, first, second)

	require.True(t, strings.Contains(h.logs.String(), "superseding non-terminal process"))
	require.True(t, strings.Contains(h.logs.String(), first.Hex()))
	_, err := h.engine.StakeOf(first)
	require.ErrorIs(t, err, bridgeerrors.ErrMessageNotFound)

	proc, ok, err := h.engine.ActiveProcess(staker.addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, second, proc.MessageHash)
}

func TestStakeFailureLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	h.link()
	staker := newAccount(t)

	h.fund(h.value, staker.addr, 50)
	h.fund(h.bounty, facilitator, 10)
	req := h.stakeRequest(staker, 0, 100)
	msg := h.engine.StakeMessage(req)
	hash := msg.Hash()

	before := h.state.Hash()
	_, err := h.engine.Stake(req)
	require.ErrorIs(t, err, bridgeerrors.ErrTransferFailed)
	require.Equal(t, before, h.state.Hash())

	h.requireStatus(messagebus.Outbox, hash, messagebus.StatusUndeclared)
	_, err = h.engine.StakeOf(hash)
	require.ErrorIs(t, err, bridgeerrors.ErrMessageNotFound)
	_, ok, err := h.engine.ActiveProcess(staker.addr)
	require.NoError(t, err)
	require.False(t, ok)
	require.EqualValues(t, 10, h.balance(h.bounty, facilitator))
	require.Empty(t, h.events.Events())

	bad := h.stakeRequest(staker, 0, 50)
	badMsg := h.engine.StakeMessage(bad)
	bad.Signature = newAccount(t).sign(t, badMsg.Hash())
	_, err = h.engine.Stake(bad)
	require.ErrorIs(t, err, bridgeerrors.ErrInvalidSignature)
	require.Equal(t, before, h.state.Hash())
}

func TestStakeValidation(t *testing.T) {
	h := newHarness(t)
	h.link()
	staker := newAccount(t)

	cases := map[string]func(*StakeRequest){
		"zero amount":      func(r *StakeRequest) { r.Amount = big.NewInt(0) },
		"zero beneficiary": func(r *StakeRequest) { r.Beneficiary = common.Address{} },
		"zero staker":      func(r *StakeRequest) { r.Staker = common.Address{} },
		"zero hash lock":   func(r *StakeRequest) { r.HashLock = common.Hash{} },
		"negative gas":     func(r *StakeRequest) { r.GasPrice = big.NewInt(-1) },
		"wide amount":      func(r *StakeRequest) { r.Amount = new(big.Int).Add(r.Amount, wordModulus) },
		"wide gas limit":   func(r *StakeRequest) { r.GasLimit = new(big.Int).Lsh(big.NewInt(1), 300) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := h.stakeRequest(staker, 0, 100)
			mutate(&req)
			_, err := h.engine.Stake(req)
			require.ErrorIs(t, err, bridgeerrors.ErrInvalidInput)
		})
	}
}

func TestProgressStakeWithProof(t *testing.T) {
	h := newHarness(t)
	h.link()
	staker := newAccount(t)
	hash := h.stake(staker, 0, 100)

	require.ErrorIs(t, h.engine.ProgressStakeWithProof(relayer, hash, 77, [][]byte{{0x01}}, messagebus.StatusDeclared), bridgeerrors.ErrStorageRootMissing)

	height, proof := h.proveStatus(messagebus.Inbox, hash, messagebus.StatusDeclared)
	for i := range proof {
		tampered := make([][]byte, len(proof))
		for j := range proof {
			tampered[j] = append([]byte(nil), proof[j]...)
		}
		tampered[i][len(tampered[i])/2] ^= 0x10
		require.Error(t, h.engine.ProgressStakeWithProof(relayer, hash, height, tampered, messagebus.StatusDeclared))
	}
	h.requireStatus(messagebus.Outbox, hash, messagebus.StatusDeclared)

	require.NoError(t, h.engine.ProgressStakeWithProof(relayer, hash, height, proof, messagebus.StatusDeclared))
	h.requireStatus(messagebus.Outbox, hash, messagebus.StatusProgressed)
	require.EqualValues(t, 100, h.balance(h.value, vaultAddr))
	require.EqualValues(t, 10, h.balance(h.bounty, relayer))
	require.Equal(t, "true", lastAttributes(t, h.events)["proofProgress"])
}

func TestRevertStake(t *testing.T) {
	h := newHarness(t)
	h.link()
	staker := newAccount(t)
	hash := h.stake(staker, 0, 100)

	revocation := staker.sign(t, gatewaylib.RevocationHash(hash, 0))
	require.ErrorIs(t, h.engine.RevertStake(common.Address{}, hash, revocation), bridgeerrors.ErrInvalidInput)
	require.ErrorIs(t, h.engine.RevertStake(relayer, hash, staker.sign(t, hash)), bridgeerrors.ErrInvalidSignature)
	require.NoError(t, h.engine.RevertStake(relayer, hash, revocation))
	h.requireStatus(messagebus.Outbox, hash, messagebus.StatusDeclaredRevocation)
	declared := lastAttributes(t, h.events)
	require.Equal(t, relayer.Hex(), declared["caller"])
	require.Equal(t, staker.addr.Hex(), declared["staker"])
	require.ErrorIs(t, h.engine.ProgressStake(relayer, hash, stakeSecret), bridgeerrors.ErrInvalidStatus)

	declaredHeight, declaredProof := h.proveStatus(messagebus.Inbox, hash, messagebus.StatusDeclared)
	require.ErrorIs(t, h.engine.ProgressRevertStake(relayer, hash, declaredHeight, declaredProof), bridgeerrors.ErrProofInvalid)

	height, proof := h.proveStatus(messagebus.Inbox, hash, messagebus.StatusRevoked)
	require.NoError(t, h.engine.ProgressRevertStake(relayer, hash, height, proof))
	h.requireStatus(messagebus.Outbox, hash, messagebus.StatusRevoked)
	require.EqualValues(t, 100, h.balance(h.value, staker.addr))
	require.EqualValues(t, 10, h.balance(h.bounty, relayer))
	require.EqualValues(t, 0, h.balance(h.value, gatewayAddr))

	types := h.events.Types()
	require.Contains(t, types, events.TypeBridgeStakeRevertDeclared)
	require.Equal(t, events.TypeBridgeStakeReverted, types[len(types)-1])

	require.ErrorIs(t, h.engine.ProgressRevertStake(relayer, hash, height, proof), bridgeerrors.ErrAlreadyTerminal)

	// The refunded staker may start over once the bounty is approved again.
	_, err := h.engine.Stake(h.stakeRequest(staker, 1, 100))
	require.ErrorIs(t, err, bridgeerrors.ErrTransferFailed)
	h.stake(staker, 1, 100)
}

func (h *harness) redemptionRequest(redeemer common.Address, nonce uint64) RedemptionRequest {
	return RedemptionRequest{
		Caller:      facilitator,
		Redeemer:    redeemer,
		Beneficiary: beneficiary,
		Amount:      big.NewInt(100),
		GasPrice:    big.NewInt(2),
		GasLimit:    big.NewInt(1000),
		Nonce:       nonce,
		HashLock:    gatewaylib.HashLock(redeemSecret),
		GasConsumed: big.NewInt(20),
	}
}

// confirmRedemption declares the redemption on the counterpart and confirms
// it locally.
func (h *harness) confirmRedemption(req RedemptionRequest) common.Hash {
	h.t.Helper()
	msg := h.engine.RedeemMessage(req)
	hash := msg.Hash()
	height, proof := h.proveStatus(messagebus.Outbox, hash, messagebus.StatusDeclared)
	req.BlockHeight = height
	req.Proof = proof
	confirmed, err := h.engine.ConfirmRedemptionIntent(req)
	require.NoError(h.t, err)
	require.Equal(h.t, hash, confirmed)
	return hash
}

func TestConfirmRedemptionBeforeProvingFails(t *testing.T) {
	h := newHarness(t)
	h.link()
	redeemer := newAccount(t)

	req := h.redemptionRequest(redeemer.addr, 0)
	req.BlockHeight = 500
	req.Proof = [][]byte{{0xc0}}
	_, err := h.engine.ConfirmRedemptionIntent(req)
	require.ErrorIs(t, err, bridgeerrors.ErrStorageRootMissing)
	msg := h.engine.RedeemMessage(req)
	h.requireStatus(messagebus.Inbox, msg.Hash(), messagebus.StatusUndeclared)
}

var wordModulus = new(big.Int).Lsh(big.NewInt(1), 256)

func TestConfirmRedemptionRejectsWideTerms(t *testing.T) {
	h := newHarness(t)
	h.link()
	require.NoError(t, h.value.Mint(vaultAddr, big.NewInt(100)))
	redeemer := newAccount(t)

	honest := h.redemptionRequest(redeemer.addr, 0)
	honestMsg := h.engine.RedeemMessage(honest)
	hash := honestMsg.Hash()
	height, proof := h.proveStatus(messagebus.Outbox, hash, messagebus.StatusDeclared)

	forged := h.redemptionRequest(redeemer.addr, 0)
	forged.GasPrice = new(big.Int).Add(forged.GasPrice, wordModulus)
	forgedMsg := h.engine.RedeemMessage(forged)
	require.Equal(t, hash, forgedMsg.Hash())
	forged.BlockHeight = height
	forged.Proof = proof
	_, err := h.engine.ConfirmRedemptionIntent(forged)
	require.ErrorIs(t, err, bridgeerrors.ErrInvalidInput)
	h.requireStatus(messagebus.Inbox, hash, messagebus.StatusUndeclared)

	forged = h.redemptionRequest(redeemer.addr, 0)
	forged.Amount = new(big.Int).Add(forged.Amount, wordModulus)
	forged.BlockHeight = height
	forged.Proof = proof
	_, err = h.engine.ConfirmRedemptionIntent(forged)
	require.ErrorIs(t, err, bridgeerrors.ErrInvalidInput)

	honest.BlockHeight = height
	honest.Proof = proof
	confirmed, err := h.engine.ConfirmRedemptionIntent(honest)
	require.NoError(t, err)
	require.Equal(t, hash, confirmed)
	res, err := h.engine.ProgressUnstake(relayer, hash, redeemSecret)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(50), res.Reward)
}

func TestRedemptionProgressWithSecret(t *testing.T) {
	h := newHarness(t)
	h.link()
	require.NoError(t, h.value.Mint(vaultAddr, big.NewInt(100)))
	redeemer := newAccount(t)

	hash := h.confirmRedemption(h.redemptionRequest(redeemer.addr, 0))
	h.requireStatus(messagebus.Inbox, hash, messagebus.StatusDeclared)
	require.Equal(t, events.TypeBridgeRedemptionConfirmed, h.events.Types()[len(h.events.Types())-1])
	require.Equal(t, "20", lastAttributes(t, h.events)["gasConsumed"])

	unstake, err := h.engine.UnstakeOf(hash)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(20), unstake.Message.GasConsumed)

	_, err = h.engine.ProgressUnstake(relayer, hash, []byte("wrong"))
	require.ErrorIs(t, err, bridgeerrors.ErrInvalidUnlockSecret)

	res, err := h.engine.ProgressUnstake(relayer, hash, redeemSecret)
	require.NoError(t, err)
	// reward = gasPrice 2 * (gasConsumed 20 + overhead 5)
	require.Equal(t, big.NewInt(50), res.Reward)
	require.Equal(t, big.NewInt(50), res.UnstakeAmount)
	require.Equal(t, big.NewInt(100), res.RedeemAmount)
	require.EqualValues(t, 50, h.balance(h.value, beneficiary))
	require.EqualValues(t, 50, h.balance(h.value, relayer))
	require.EqualValues(t, 0, h.balance(h.value, vaultAddr))
	h.requireStatus(messagebus.Inbox, hash, messagebus.StatusProgressed)

	_, err = h.engine.ProgressUnstake(relayer, hash, redeemSecret)
	require.ErrorIs(t, err, bridgeerrors.ErrAlreadyTerminal)

	nonce, err := h.engine.NextNonce(redeemer.addr)
	require.NoError(t, err)
	require.EqualValues(t, 1, nonce)
}

func TestRedemptionProgressWithProof(t *testing.T) {
	h := newHarness(t)
	h.link()
	require.NoError(t, h.value.Mint(vaultAddr, big.NewInt(100)))
	redeemer := newAccount(t)
	hash := h.confirmRedemption(h.redemptionRequest(redeemer.addr, 0))

	stale := h.height
	staleProof, err := h.current.ProveStatus(messagebus.Outbox, hash)
	require.NoError(t, err)
	_, err = h.engine.ProgressUnstakeWithProof(relayer, hash, stale, staleProof, messagebus.StatusDeclared)
	require.ErrorIs(t, err, bridgeerrors.ErrInvalidInput)

	height, proof := h.proveStatus(messagebus.Outbox, hash, messagebus.StatusProgressed)
	res, err := h.engine.ProgressUnstakeWithProof(relayer, hash, height, proof, messagebus.StatusProgressed)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(50), res.Reward)
	require.Equal(t, "true", lastAttributes(t, h.events)["proofProgress"])
}

func TestRewardExceedingAmountIsRejected(t *testing.T) {
	h := newHarness(t)
	h.link()
	require.NoError(t, h.value.Mint(vaultAddr, big.NewInt(100)))
	redeemer := newAccount(t)

	req := h.redemptionRequest(redeemer.addr, 0)
	req.GasPrice = big.NewInt(10)
	hash := h.confirmRedemption(req)
	h.events.Reset()

	_, err := h.engine.ProgressUnstake(relayer, hash, redeemSecret)
	require.ErrorIs(t, err, bridgeerrors.ErrInvalidInput)
	h.requireStatus(messagebus.Inbox, hash, messagebus.StatusDeclared)
	require.EqualValues(t, 100, h.balance(h.value, vaultAddr))
	require.Empty(t, h.events.Events())

	h.engine.SetRewardFunc(func(_, _, _ *big.Int, _ uint64) (*big.Int, error) { return big.NewInt(1), nil })
	res, err := h.engine.ProgressUnstake(relayer, hash, redeemSecret)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(99), res.UnstakeAmount)
}

func TestUnstakeFailsWhenVaultShort(t *testing.T) {
	h := newHarness(t)
	h.link()
	require.NoError(t, h.value.Mint(vaultAddr, big.NewInt(60)))
	redeemer := newAccount(t)
	hash := h.confirmRedemption(h.redemptionRequest(redeemer.addr, 0))

	_, err := h.engine.ProgressUnstake(relayer, hash, redeemSecret)
	require.ErrorIs(t, err, bridgeerrors.ErrTransferFailed)
	h.requireStatus(messagebus.Inbox, hash, messagebus.StatusDeclared)
	require.EqualValues(t, 60, h.balance(h.value, vaultAddr))
	require.EqualValues(t, 0, h.balance(h.value, beneficiary))
}

func TestConfirmRevertRedemptionIntent(t *testing.T) {
	h := newHarness(t)
	h.link()
	redeemer := newAccount(t)
	hash := h.confirmRedemption(h.redemptionRequest(redeemer.addr, 0))

	height, proof := h.proveStatus(messagebus.Outbox, hash, messagebus.StatusDeclaredRevocation)
	require.NoError(t, h.engine.ConfirmRevertRedemptionIntent(relayer, hash, height, proof, big.NewInt(42)))
	h.requireStatus(messagebus.Inbox, hash, messagebus.StatusRevoked)

	unstake, err := h.engine.UnstakeOf(hash)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(42), unstake.Message.GasConsumed)
	require.Equal(t, events.TypeBridgeRedemptionRevertConfirmed, h.events.Types()[len(h.events.Types())-1])

	require.ErrorIs(t, h.engine.ConfirmRevertRedemptionIntent(relayer, hash, height, proof, big.NewInt(1)), bridgeerrors.ErrAlreadyTerminal)

	// A revoked redemption is terminal, so the redeemer may start again.
	h.confirmRedemption(h.redemptionRequest(redeemer.addr, 1))
}

func TestProveGatewayReplay(t *testing.T) {
	h := newHarness(t)
	h.height = 499
	height := h.commitHeight()
	require.EqualValues(t, 500, height)
	snap := h.current
	h.events.Reset()

	res, err := h.engine.ProveGateway(relayer, 500, snap.Account, snap.AccountProof)
	require.NoError(t, err)
	require.True(t, res.AlreadyProven)
	require.Equal(t, snap.StorageRoot, res.StorageRoot)
	require.Equal(t, "true", lastAttributes(t, h.events)["alreadyProven"])

	stored, ok, err := h.engine.StorageRoot(500)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, snap.StorageRoot, stored)

	_, err = h.engine.ProveGateway(relayer, 501, snap.Account, snap.AccountProof)
	require.ErrorIs(t, err, bridgeerrors.ErrStateRootUnavailable)

	tampered := append([]byte(nil), snap.Account...)
	tampered[len(tampered)-1] ^= 0x01
	_, err = h.engine.ProveGateway(relayer, 500, tampered, snap.AccountProof)
	require.ErrorIs(t, err, bridgeerrors.ErrProofInvalid)
}

func TestProveGatewayRejectsConflictingRoot(t *testing.T) {
	h := newHarness(t)
	snap, err := h.remote.Snapshot(7)
	require.NoError(t, err)
	require.NoError(t, h.roots.CommitStateRoot(7, snap.StateRoot))
	require.NoError(t, h.state.KVPut(storageRootKey(7), crypto.Keccak256Hash([]byte("earlier root"))))

	_, err = h.engine.ProveGateway(relayer, 7, snap.Account, snap.AccountProof)
	require.ErrorIs(t, err, bridgeerrors.ErrStorageRootMismatch)
	require.Empty(t, h.events.Events())
}
