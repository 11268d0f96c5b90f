// Package node assembles the gateway engine over persistent ledger state and
// serialises every operation against it.
package node

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stakebridge/config"
	consensusstore "stakebridge/consensus/store"
	bridgeerrors "stakebridge/core/errors"
	"stakebridge/core/events"
	"stakebridge/core/state"
	"stakebridge/native/bank"
	"stakebridge/native/bridge/gateway"
	"stakebridge/observability"
	"stakebridge/storage"
	"stakebridge/storage/trie"
)

// headKey holds the committed state root followed by the big-endian commit
// height, written in a single Put.
var headKey = []byte("bridged/head")

// Options configures a node.
type Options struct {
	Gateway      gateway.Config
	Vault        common.Address
	ValueSymbol  string
	BountySymbol string
	// Genesis balances are applied only when the database holds no state yet.
	Genesis []config.ParsedAllocation
	Logger  *slog.Logger
	Emitter events.Emitter
}

// OptionsFromConfig derives node options from the file configuration.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	if cfg == nil {
		return Options{}, errors.New("node: nil config")
	}
	engineCfg, err := cfg.Gateway.EngineConfig()
	if err != nil {
		return Options{}, err
	}
	vault, err := cfg.Gateway.VaultAddress()
	if err != nil {
		return Options{}, err
	}
	genesis := make([]config.ParsedAllocation, 0, len(cfg.Genesis))
	for i, alloc := range cfg.Genesis {
		parsed, err := alloc.Parse()
		if err != nil {
			return Options{}, fmt.Errorf("node: genesis[%d]: %w", i, err)
		}
		genesis = append(genesis, parsed)
	}
	return Options{
		Gateway:      engineCfg,
		Vault:        vault,
		ValueSymbol:  cfg.Gateway.ValueSymbol,
		BountySymbol: cfg.Gateway.BountySymbol,
		Genesis:      genesis,
	}, nil
}

// Node owns the ledger state, the committed counterpart roots and the gateway
// engine. One operation runs at a time; each successful operation is committed
// to the database before the next one starts.
type Node struct {
	mu sync.Mutex

	db      storage.Database
	state   *state.Manager
	roots   *consensusstore.Store
	engine  *gateway.Engine
	value   *bank.Token
	bounty  *bank.Token
	vault   *bank.Vault
	logger  *slog.Logger
	metrics *observability.GatewayMetrics

	// pending holds the events of the running operation until it commits.
	pending *events.Collector
	emitter events.Emitter

	height uint64
}

// Open loads the node state from db, seeding it from opts on first start.
func Open(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, errors.New("node: nil database")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	valueSymbol := strings.ToUpper(strings.TrimSpace(opts.ValueSymbol))
	bountySymbol := strings.ToUpper(strings.TrimSpace(opts.BountySymbol))
	if valueSymbol == "" {
		return nil, errors.New("node: value symbol required")
	}
	if bountySymbol == "" {
		bountySymbol = valueSymbol
	}

	head, err := db.Get(headKey)
	fresh := errors.Is(err, storage.ErrNotFound)
	if err != nil && !fresh {
		return nil, fmt.Errorf("node: load head: %w", err)
	}
	var (
		root   []byte
		height uint64
	)
	if !fresh {
		if len(head) != common.HashLength+8 {
			return nil, fmt.Errorf("node: corrupt head record of %d bytes", len(head))
		}
		root = head[:common.HashLength]
		height = binary.BigEndian.Uint64(head[common.HashLength:])
	}
	tr, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("node: open state trie: %w", err)
	}

	engine, err := gateway.NewEngine(opts.Gateway)
	if err != nil {
		return nil, err
	}
	n := &Node{
		db:      db,
		state:   state.NewManager(tr),
		roots:   consensusstore.New(db),
		engine:  engine,
		logger:  logger,
		metrics: observability.Gateway(),
		pending: &events.Collector{},
		height:  height,
	}
	n.value = bank.NewToken(n.state, valueSymbol)
	n.bounty = bank.NewToken(n.state, bountySymbol)
	n.vault = bank.NewVault(n.value, opts.Vault)

	emitters := events.MultiEmitter{newMetricsEmitter(n.metrics)}
	if opts.Emitter != nil {
		emitters = append(emitters, opts.Emitter)
	}
	engine.SetState(n.state)
	engine.SetTokens(n.value, n.bounty)
	engine.SetVault(n.vault)
	engine.SetStateRootSource(n.roots)
	n.emitter = emitters
	engine.SetEmitter(n.pending)
	engine.SetLogger(logger)

	if fresh {
		if err := n.seed(opts, valueSymbol, bountySymbol); err != nil {
			return nil, err
		}
	} else if err := n.state.EnsureStateVersion(); err != nil {
		return nil, err
	}
	logger.Info("bridged/node: state loaded",
		"root", n.state.Root().Hex(),
		"height", n.height,
		"gateway", opts.Gateway.Channel.Gateway.Hex(),
		"fresh", fresh)
	return n, nil
}

func (n *Node) seed(opts Options, valueSymbol, bountySymbol string) error {
	cfg := opts.Gateway
	if err := n.state.SetStateVersion(state.StateVersion); err != nil {
		return err
	}
	name := strings.TrimSpace(cfg.TokenName)
	if name == "" {
		name = valueSymbol
	}
	if err := n.state.RegisterToken(valueSymbol, name, cfg.TokenDecimals); err != nil {
		return fmt.Errorf("node: register %s: %w", valueSymbol, err)
	}
	if bountySymbol != valueSymbol {
		if err := n.state.RegisterToken(bountySymbol, bountySymbol, 18); err != nil {
			return fmt.Errorf("node: register %s: %w", bountySymbol, err)
		}
	}
	for _, alloc := range opts.Genesis {
		var token *bank.Token
		switch alloc.Symbol {
		case valueSymbol:
			token = n.value
		case bountySymbol:
			token = n.bounty
		default:
			return fmt.Errorf("node: genesis symbol %s is not a gateway token", alloc.Symbol)
		}
		if err := token.Mint(alloc.Account, alloc.Amount); err != nil {
			return fmt.Errorf("node: genesis mint: %w", err)
		}
		if alloc.Allowance != nil && alloc.Allowance.Sign() > 0 {
			if err := token.Approve(alloc.Account, cfg.Channel.Gateway, alloc.Allowance); err != nil {
				return fmt.Errorf("node: genesis approve: %w", err)
			}
		}
	}
	return n.commit()
}

func (n *Node) commit() error {
	next := n.height + 1
	root, err := n.state.Commit(next)
	if err != nil {
		return fmt.Errorf("node: commit state: %w", err)
	}
	head := make([]byte, common.HashLength+8)
	copy(head, root.Bytes())
	binary.BigEndian.PutUint64(head[common.HashLength:], next)
	if err := n.db.Put(headKey, head); err != nil {
		return fmt.Errorf("node: persist head: %w", err)
	}
	n.height = next
	return nil
}

// Execute runs a state-changing gateway operation and commits its result.
// Events raised by fn reach the node's emitters only after the commit; on any
// failure the state returns to the last committed root and the events are
// dropped.
func (n *Node) Execute(op string, fn func(*gateway.Engine) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	start := time.Now()
	prev := n.state.Root()
	err := fn(n.engine)
	if err == nil {
		if err = n.commit(); err != nil {
			n.logger.Error("bridged/node: commit failed", "op", op, "error", err)
		}
	}
	if err != nil {
		n.pending.Reset()
		if rerr := n.state.Reset(prev); rerr != nil {
			n.logger.Error("bridged/node: rollback failed", "op", op, "root", prev.Hex(), "error", rerr)
		}
	} else {
		n.flush()
	}
	n.metrics.Observe(op, time.Since(start), string(outcome(err)))
	return err
}

func (n *Node) flush() {
	for _, evt := range n.pending.Events() {
		n.emitter.Emit(evt)
	}
	n.pending.Reset()
}

// Query runs a read-only gateway call.
func (n *Node) Query(fn func(*gateway.Engine) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn(n.engine)
}

// CommitStateRoot records a counterpart state root delivered by consensus.
func (n *Node) CommitStateRoot(height uint64, root common.Hash) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.roots.CommitStateRoot(height, root); err != nil {
		return err
	}
	n.metrics.RecordRootCommit()
	n.logger.Info("bridged/node: state root committed", "height", height, "root", root.Hex())
	return nil
}

// CounterpartStateRoot returns the consensus root committed for height.
func (n *Node) CounterpartStateRoot(height uint64) (common.Hash, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.roots.StateRoot(height)
}

// Balance returns the balance of account in the gateway token with symbol.
func (n *Node) Balance(symbol string, account common.Address) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch strings.ToUpper(strings.TrimSpace(symbol)) {
	case n.value.Symbol():
		return n.value.BalanceOf(account)
	case n.bounty.Symbol():
		return n.bounty.BalanceOf(account)
	}
	return nil, fmt.Errorf("%w: unknown token %q", bridgeerrors.ErrInvalidInput, symbol)
}

// Status reports the committed ledger root and commit counter.
func (n *Node) Status() (common.Hash, uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Root(), n.height
}

func outcome(err error) bridgeerrors.Class {
	if err == nil {
		return "success"
	}
	return bridgeerrors.Classify(err)
}
