package gateway

import (
	"bytes"
	"crypto/ecdsa"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	consensusstore "stakebridge/consensus/store"
	"stakebridge/core/events"
	"stakebridge/core/state"
	"stakebridge/native/bank"
	"stakebridge/native/bridge/counterpart"
	"stakebridge/native/bridge/gatewaylib"
	"stakebridge/native/bridge/messagebus"
	"stakebridge/storage"
	"stakebridge/storage/trie"
)

var (
	gatewayAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	coGatewayAddr = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	valueTokenID  = common.HexToAddress("0x0000000000000000000000000000000000000c03")
	utilityToken  = common.HexToAddress("0x0000000000000000000000000000000000000d04")
	vaultAddr     = common.HexToAddress("0x0000000000000000000000000000000000000fa1")
	facilitator   = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	relayer       = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	linker        = common.HexToAddress("0x00000000000000000000000000000000000000e2")
	beneficiary   = common.HexToAddress("0x00000000000000000000000000000000000000be")

	linkSecret  = []byte("link-secret")
	stakeSecret = []byte("stake-secret")
)

const (
	valueSymbol  = "OST"
	bountySymbol = "BASE"
)

type account struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func newAccount(t *testing.T) account {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return account{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

func (a account) sign(t *testing.T, digest common.Hash) []byte {
	t.Helper()
	sig, err := gatewaylib.Sign(digest, a.key)
	require.NoError(t, err)
	return sig
}

type harness struct {
	t       *testing.T
	engine  *Engine
	state   *state.Manager
	value   *bank.Token
	bounty  *bank.Token
	vault   *bank.Vault
	roots   *consensusstore.Store
	remote  *counterpart.Ledger
	events  *events.Collector
	logs    *bytes.Buffer
	org     account
	height  uint64
	current *counterpart.Snapshot
}

func testConfig(org common.Address) Config {
	return Config{
		Channel:          gatewaylib.Channel{Gateway: gatewayAddr, CoGateway: coGatewayAddr},
		ValueToken:       valueTokenID,
		UtilityToken:     utilityToken,
		TokenName:        "Simple Token",
		TokenSymbol:      valueSymbol,
		TokenDecimals:    18,
		Bounty:           big.NewInt(10),
		Organization:     org,
		Layout:           messagebus.Layout{Offset: 7},
		RelayOverheadGas: 5,
		Supersession:     SupersessionStrict,
	}
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)
	mgr := state.NewManager(tr)
	require.NoError(t, mgr.RegisterToken(valueSymbol, "Simple Token", 18))
	require.NoError(t, mgr.RegisterToken(bountySymbol, "Base Token", 18))

	org := newAccount(t)
	cfg := testConfig(org.addr)
	for _, fn := range mutate {
		fn(&cfg)
	}
	engine, err := NewEngine(cfg)
	require.NoError(t, err)

	value := bank.NewToken(mgr, valueSymbol)
	bounty := bank.NewToken(mgr, bountySymbol)
	vault := bank.NewVault(value, vaultAddr)
	roots := consensusstore.New(db)
	remote, err := counterpart.New(coGatewayAddr, cfg.Layout)
	require.NoError(t, err)
	t.Cleanup(remote.Close)

	collector := &events.Collector{}
	logs := new(bytes.Buffer)
	engine.SetState(mgr)
	engine.SetTokens(value, bounty)
	engine.SetVault(vault)
	engine.SetStateRootSource(roots)
	engine.SetEmitter(collector)
	engine.SetLogger(slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})))

	return &harness{
		t:      t,
		engine: engine,
		state:  mgr,
		value:  value,
		bounty: bounty,
		vault:  vault,
		roots:  roots,
		remote: remote,
		events: collector,
		logs:   logs,
		org:    org,
	}
}

// fund mints tokens to addr and approves the gateway to pull them.
func (h *harness) fund(token *bank.Token, addr common.Address, amount int64) {
	h.t.Helper()
	require.NoError(h.t, token.Mint(addr, big.NewInt(amount)))
	allowance, err := token.Allowance(addr, gatewayAddr)
	require.NoError(h.t, err)
	require.NoError(h.t, token.Approve(addr, gatewayAddr, new(big.Int).Add(allowance, big.NewInt(amount))))
}

func (h *harness) balance(token *bank.Token, addr common.Address) int64 {
	h.t.Helper()
	bal, err := token.BalanceOf(addr)
	require.NoError(h.t, err)
	return bal.Int64()
}

// commitHeight snapshots the counterpart, commits its state root at a new
// height and proves the co-gateway account at that height.
func (h *harness) commitHeight() uint64 {
	h.t.Helper()
	h.height++
	snap, err := h.remote.Snapshot(h.height)
	require.NoError(h.t, err)
	require.NoError(h.t, h.roots.CommitStateRoot(h.height, snap.StateRoot))
	res, err := h.engine.ProveGateway(relayer, h.height, snap.Account, snap.AccountProof)
	require.NoError(h.t, err)
	require.Equal(h.t, snap.StorageRoot, res.StorageRoot)
	h.current = snap
	return h.height
}

func (h *harness) proveStatus(box messagebus.Box, hash common.Hash, status messagebus.Status) (uint64, [][]byte) {
	h.t.Helper()
	require.NoError(h.t, h.remote.SetStatus(box, hash, status))
	height := h.commitHeight()
	proof, err := h.current.ProveStatus(box, hash)
	require.NoError(h.t, err)
	return height, proof
}

func (h *harness) initiateLink() common.Hash {
	h.t.Helper()
	h.fund(h.bounty, facilitator, 10)
	msg := messagebus.Message{
		IntentHash: h.engine.LinkIntentHash(0),
		Sender:     h.org.addr,
		HashLock:   gatewaylib.HashLock(linkSecret),
	}
	hash, err := h.engine.InitiateLink(LinkRequest{
		Caller:     facilitator,
		IntentHash: msg.IntentHash,
		Nonce:      0,
		Sender:     h.org.addr,
		HashLock:   msg.HashLock,
		Signature:  h.org.sign(h.t, msg.Hash()),
	})
	require.NoError(h.t, err)
	require.Equal(h.t, msg.Hash(), hash)
	return hash
}

func (h *harness) link() {
	h.t.Helper()
	hash := h.initiateLink()
	require.NoError(h.t, h.engine.ProgressLink(linker, hash, linkSecret))
	h.events.Reset()
}

func (h *harness) stakeRequest(staker account, nonce uint64, amount int64) StakeRequest {
	h.t.Helper()
	req := StakeRequest{
		Caller:      facilitator,
		Amount:      big.NewInt(amount),
		Beneficiary: beneficiary,
		Staker:      staker.addr,
		GasPrice:    big.NewInt(1),
		GasLimit:    big.NewInt(1000),
		Nonce:       nonce,
		HashLock:    gatewaylib.HashLock(stakeSecret),
	}
	msg := h.engine.StakeMessage(req)
	req.Signature = staker.sign(h.t, msg.Hash())
	return req
}

// stake funds staker and facilitator and declares a stake.
func (h *harness) stake(staker account, nonce uint64, amount int64) common.Hash {
	h.t.Helper()
	h.fund(h.value, staker.addr, amount)
	h.fund(h.bounty, facilitator, 10)
	hash, err := h.engine.Stake(h.stakeRequest(staker, nonce, amount))
	require.NoError(h.t, err)
	return hash
}

func (h *harness) requireStatus(box messagebus.Box, hash common.Hash, want messagebus.Status) {
	h.t.Helper()
	got, err := h.engine.MessageStatus(box, hash)
	require.NoError(h.t, err)
	require.Equal(h.t, want, got)
}

func TestNewEngineValidatesConfig(t *testing.T) {
	cfg := testConfig(common.Address{})
	cfg.Channel.CoGateway = common.Address{}
	_, err := NewEngine(cfg)
	require.Error(t, err)

	cfg = testConfig(common.Address{})
	cfg.Bounty = big.NewInt(-1)
	_, err = NewEngine(cfg)
	require.Error(t, err)

	cfg = testConfig(common.Address{})
	cfg.Supersession = "sometimes"
	_, err = NewEngine(cfg)
	require.Error(t, err)

	cfg = testConfig(common.Address{})
	cfg.Supersession = ""
	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	require.Equal(t, SupersessionStrict, engine.Config().Supersession)
}

func TestEngineRequiresCollaborators(t *testing.T) {
	engine, err := NewEngine(testConfig(common.Address{}))
	require.NoError(t, err)
	_, err = engine.Stake(StakeRequest{})
	require.ErrorIs(t, err, errNilState)
}
