package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"stakebridge/config"
	"stakebridge/core/events"
	"stakebridge/crypto"
	"stakebridge/native/bridge/counterpart"
	"stakebridge/native/bridge/gateway"
	"stakebridge/native/bridge/gatewaylib"
	"stakebridge/native/bridge/messagebus"
	"stakebridge/observability/logging"
	"stakebridge/services/bridged/node"
	"stakebridge/storage"
)

var (
	simGateway   = common.HexToAddress("0x00000000000000000000000000000000000b41a1")
	simCoGateway = common.HexToAddress("0x00000000000000000000000000000000000b41b2")
	simVault     = common.HexToAddress("0x00000000000000000000000000000000000b4fa1")
	simLayout    = messagebus.Layout{Offset: 7}
)

type simulationParams struct {
	Stake        int64
	Redeem       int64
	GasPrice     int64
	GasLimit     int64
	GasConsumed  int64
	Overhead     uint64
	Supersession string
	LogLevel     string
}

type simulationReport struct {
	Gateway       string            `json:"gateway"`
	CoGateway     string            `json:"coGateway"`
	LinkHash      string            `json:"linkHash"`
	StakeHash     string            `json:"stakeHash"`
	StakeStatus   string            `json:"stakeStatus"`
	RedeemHash    string            `json:"redeemHash"`
	RedeemStatus  string            `json:"redeemStatus"`
	ProvenHeights []uint64          `json:"provenHeights"`
	UnstakeAmount string            `json:"unstakeAmount"`
	Reward        string            `json:"reward"`
	Balances      map[string]string `json:"balances"`
	Events        []string          `json:"events"`
}

func runSimulate(w io.Writer, args []string) error {
	fs := flag.NewFlagSet(simulateCommand, flag.ContinueOnError)
	params := simulationParams{}
	fs.Int64Var(&params.Stake, "stake", 1000, "Amount staked")
	fs.Int64Var(&params.Redeem, "redeem", 400, "Amount redeemed back")
	fs.Int64Var(&params.GasPrice, "gas-price", 1, "Gas price of the redemption")
	fs.Int64Var(&params.GasLimit, "gas-limit", 100, "Gas limit of the redemption")
	fs.Int64Var(&params.GasConsumed, "gas-consumed", 30, "Gas consumed confirming the redemption")
	fs.Uint64Var(&params.Overhead, "overhead", 20, "Relay overhead gas added to the reward")
	fs.StringVar(&params.Supersession, "supersession", string(gateway.SupersessionStrict), "Supersession policy (strict|permissive)")
	fs.StringVar(&params.LogLevel, "log-level", "warn", "Log level for engine output on stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	report, err := simulate(params, os.Stderr)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// simulator drives one gateway node and the counterpart mirror it proves
// against.
type simulator struct {
	node   *node.Node
	remote *counterpart.Ledger
	height uint64
	proven []uint64
}

func (s *simulator) execute(op string, fn func(*gateway.Engine) error) error {
	if err := s.node.Execute(op, fn); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *simulator) query(fn func(*gateway.Engine) error) error {
	return s.node.Query(fn)
}

// publish sets the counterpart status of hash, commits the counterpart state
// root at the next height and proves the co-gateway against it.
func (s *simulator) publish(box messagebus.Box, hash common.Hash, caller common.Address) (uint64, [][]byte, error) {
	if err := s.remote.SetStatus(box, hash, messagebus.StatusDeclared); err != nil {
		return 0, nil, err
	}
	s.height++
	snap, err := s.remote.Snapshot(s.height)
	if err != nil {
		return 0, nil, err
	}
	if err := s.node.CommitStateRoot(s.height, snap.StateRoot); err != nil {
		return 0, nil, err
	}
	err = s.execute("prove_gateway", func(e *gateway.Engine) error {
		_, err := e.ProveGateway(caller, s.height, snap.Account, snap.AccountProof)
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	s.proven = append(s.proven, s.height)
	proof, err := snap.ProveStatus(box, hash)
	return s.height, proof, err
}

func simulate(params simulationParams, logOut io.Writer) (*simulationReport, error) {
	level, err := logging.ParseLevel(params.LogLevel)
	if err != nil {
		return nil, err
	}
	policy, err := gateway.ParseSupersessionPolicy(params.Supersession)
	if err != nil {
		return nil, err
	}
	if params.Stake <= 0 || params.Redeem <= 0 || params.Redeem > params.Stake {
		return nil, fmt.Errorf("need 0 < redeem <= stake, got stake %d redeem %d", params.Stake, params.Redeem)
	}
	keys := make([]*crypto.PrivateKey, 3)
	for i := range keys {
		if keys[i], err = crypto.GeneratePrivateKey(); err != nil {
			return nil, err
		}
	}
	org, staker, redeemer := keys[0], keys[1], keys[2]
	facilitator := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	relayer := common.HexToAddress("0x00000000000000000000000000000000000000e1")
	beneficiary := common.HexToAddress("0x00000000000000000000000000000000000000be")
	redeemBeneficiary := common.HexToAddress("0x00000000000000000000000000000000000000bf")

	db := storage.NewMemDB()
	defer db.Close()
	remote, err := counterpart.New(simCoGateway, simLayout)
	if err != nil {
		return nil, err
	}
	defer remote.Close()

	collector := &events.Collector{}
	n, err := node.Open(db, node.Options{
		Gateway: gateway.Config{
			Channel:          gatewaylib.Channel{Gateway: simGateway, CoGateway: simCoGateway},
			ValueToken:       common.HexToAddress("0x0c03"),
			UtilityToken:     common.HexToAddress("0x0d04"),
			TokenName:        "Simulated Token",
			TokenSymbol:      "OST",
			TokenDecimals:    18,
			Bounty:           big.NewInt(10),
			Organization:     org.Address(),
			Layout:           simLayout,
			RelayOverheadGas: params.Overhead,
			Supersession:     policy,
		},
		Vault:        simVault,
		ValueSymbol:  "OST",
		BountySymbol: "BASE",
		Genesis: []config.ParsedAllocation{
			{Account: facilitator, Symbol: "BASE", Amount: big.NewInt(1000), Allowance: big.NewInt(1000)},
			{Account: staker.Address(), Symbol: "OST", Amount: big.NewInt(params.Stake), Allowance: big.NewInt(params.Stake)},
		},
		Logger:  logging.New(logOut, "bridgectl", "simulate", level),
		Emitter: collector,
	})
	if err != nil {
		return nil, err
	}
	sim := &simulator{node: n, remote: remote}
	report := &simulationReport{Gateway: simGateway.Hex(), CoGateway: simCoGateway.Hex()}

	linkSecret := []byte("simulated-link-secret")
	var linkHash common.Hash
	err = sim.execute("initiate_link", func(e *gateway.Engine) error {
		msg := messagebus.Message{IntentHash: e.LinkIntentHash(0), Sender: org.Address(), HashLock: gatewaylib.HashLock(linkSecret)}
		sig, err := org.Sign(msg.Hash())
		if err != nil {
			return err
		}
		linkHash, err = e.InitiateLink(gateway.LinkRequest{
			Caller:     facilitator,
			IntentHash: msg.IntentHash,
			Sender:     org.Address(),
			HashLock:   msg.HashLock,
			Signature:  sig,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := sim.execute("progress_link", func(e *gateway.Engine) error {
		return e.ProgressLink(relayer, linkHash, linkSecret)
	}); err != nil {
		return nil, err
	}
	report.LinkHash = linkHash.Hex()

	stakeReq := gateway.StakeRequest{
		Caller:      facilitator,
		Amount:      big.NewInt(params.Stake),
		Beneficiary: beneficiary,
		Staker:      staker.Address(),
		GasPrice:    big.NewInt(params.GasPrice),
		GasLimit:    big.NewInt(params.GasLimit),
		HashLock:    gatewaylib.HashLock([]byte("simulated-stake-secret")),
	}
	var stakeHash common.Hash
	if err := sim.execute("stake", func(e *gateway.Engine) error {
		msg := e.StakeMessage(stakeReq)
		sig, err := staker.Sign(msg.Hash())
		if err != nil {
			return err
		}
		stakeReq.Signature = sig
		stakeHash, err = e.Stake(stakeReq)
		return err
	}); err != nil {
		return nil, err
	}
	height, proof, err := sim.publish(messagebus.Inbox, stakeHash, relayer)
	if err != nil {
		return nil, err
	}
	if err := sim.execute("progress_stake", func(e *gateway.Engine) error {
		return e.ProgressStakeWithProof(relayer, stakeHash, height, proof, messagebus.StatusDeclared)
	}); err != nil {
		return nil, err
	}
	report.StakeHash = stakeHash.Hex()

	redeemSecret := []byte("simulated-redeem-secret")
	redeemReq := gateway.RedemptionRequest{
		Caller:      relayer,
		Redeemer:    redeemer.Address(),
		Beneficiary: redeemBeneficiary,
		Amount:      big.NewInt(params.Redeem),
		GasPrice:    big.NewInt(params.GasPrice),
		GasLimit:    big.NewInt(params.GasLimit),
		HashLock:    gatewaylib.HashLock(redeemSecret),
		GasConsumed: big.NewInt(params.GasConsumed),
	}
	var redeemHash common.Hash
	if err := sim.query(func(e *gateway.Engine) error {
		msg := e.RedeemMessage(redeemReq)
		redeemHash = msg.Hash()
		return nil
	}); err != nil {
		return nil, err
	}
	if redeemReq.BlockHeight, redeemReq.Proof, err = sim.publish(messagebus.Outbox, redeemHash, relayer); err != nil {
		return nil, err
	}
	if err := sim.execute("confirm_redemption", func(e *gateway.Engine) error {
		_, err := e.ConfirmRedemptionIntent(redeemReq)
		return err
	}); err != nil {
		return nil, err
	}
	var result *gateway.UnstakeResult
	if err := sim.execute("progress_unstake", func(e *gateway.Engine) error {
		var err error
		result, err = e.ProgressUnstake(relayer, redeemHash, redeemSecret)
		return err
	}); err != nil {
		return nil, err
	}
	report.RedeemHash = redeemHash.Hex()
	report.UnstakeAmount = result.UnstakeAmount.String()
	report.Reward = result.Reward.String()
	report.ProvenHeights = sim.proven

	if err := sim.query(func(e *gateway.Engine) error {
		stakeStatus, err := e.MessageStatus(messagebus.Outbox, stakeHash)
		if err != nil {
			return err
		}
		redeemStatus, err := e.MessageStatus(messagebus.Inbox, redeemHash)
		if err != nil {
			return err
		}
		report.StakeStatus = stakeStatus.String()
		report.RedeemStatus = redeemStatus.String()
		return nil
	}); err != nil {
		return nil, err
	}

	report.Balances = map[string]string{}
	for _, entry := range []struct {
		label   string
		symbol  string
		account common.Address
	}{
		{"staker", "OST", staker.Address()},
		{"vault", "OST", simVault},
		{"redeemBeneficiary", "OST", redeemBeneficiary},
		{"relayer", "OST", relayer},
		{"relayer", "BASE", relayer},
		{"facilitator", "BASE", facilitator},
	} {
		bal, err := n.Balance(entry.symbol, entry.account)
		if err != nil {
			return nil, err
		}
		report.Balances[entry.label+"/"+entry.symbol] = bal.String()
	}
	report.Events = collector.Types()
	return report, nil
}
