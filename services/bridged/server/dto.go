package server

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	bridgeerrors "stakebridge/core/errors"
	"stakebridge/native/bridge/messagebus"
)

// Amounts travel as decimal strings, byte strings and hashes as 0x-prefixed hex.

type linkInitiateRequest struct {
	Caller     string `json:"caller"`
	IntentHash string `json:"intentHash"`
	Nonce      uint64 `json:"nonce"`
	Sender     string `json:"sender"`
	HashLock   string `json:"hashLock"`
	Signature  string `json:"signature"`
}

// progressRequest drives a declared message forward either with the unlock
// secret or with a proof of the counterpart's status at BlockHeight.
type progressRequest struct {
	Caller            string   `json:"caller"`
	MessageHash       string   `json:"messageHash"`
	UnlockSecret      string   `json:"unlockSecret,omitempty"`
	BlockHeight       uint64   `json:"blockHeight,omitempty"`
	Proof             []string `json:"proof,omitempty"`
	CounterpartStatus string   `json:"counterpartStatus,omitempty"`
}

type stakeRequest struct {
	Caller      string `json:"caller"`
	Amount      string `json:"amount"`
	Beneficiary string `json:"beneficiary"`
	Staker      string `json:"staker"`
	GasPrice    string `json:"gasPrice"`
	GasLimit    string `json:"gasLimit"`
	Nonce       uint64 `json:"nonce"`
	HashLock    string `json:"hashLock"`
	Signature   string `json:"signature"`
}

type revertStakeRequest struct {
	Caller      string `json:"caller"`
	MessageHash string `json:"messageHash"`
	Signature   string `json:"signature"`
}

type provenRequest struct {
	Caller      string   `json:"caller"`
	MessageHash string   `json:"messageHash"`
	BlockHeight uint64   `json:"blockHeight"`
	Proof       []string `json:"proof"`
	GasConsumed string   `json:"gasConsumed,omitempty"`
}

type redemptionRequest struct {
	Caller      string   `json:"caller"`
	Redeemer    string   `json:"redeemer"`
	Beneficiary string   `json:"beneficiary"`
	Amount      string   `json:"amount"`
	GasPrice    string   `json:"gasPrice"`
	GasLimit    string   `json:"gasLimit"`
	Nonce       uint64   `json:"nonce"`
	HashLock    string   `json:"hashLock"`
	BlockHeight uint64   `json:"blockHeight"`
	Proof       []string `json:"proof"`
	GasConsumed string   `json:"gasConsumed"`
}

type proveRequest struct {
	Caller      string   `json:"caller"`
	BlockHeight uint64   `json:"blockHeight"`
	Account     string   `json:"account"`
	Proof       []string `json:"proof"`
}

type commitRootRequest struct {
	Height    uint64 `json:"height"`
	StateRoot string `json:"stateRoot"`
}

type messageHashResponse struct {
	MessageHash string `json:"messageHash"`
}

type unstakeResponse struct {
	MessageHash   string `json:"messageHash"`
	RedeemAmount  string `json:"redeemAmount"`
	UnstakeAmount string `json:"unstakeAmount"`
	Reward        string `json:"reward"`
}

type proveResponse struct {
	BlockHeight   uint64 `json:"blockHeight"`
	StorageRoot   string `json:"storageRoot"`
	AlreadyProven bool   `json:"alreadyProven"`
}

type messageView struct {
	IntentHash  string `json:"intentHash"`
	Nonce       uint64 `json:"nonce"`
	Sender      string `json:"sender"`
	GasPrice    string `json:"gasPrice"`
	GasLimit    string `json:"gasLimit"`
	HashLock    string `json:"hashLock"`
	GasConsumed string `json:"gasConsumed"`
}

type messageResponse struct {
	Box         string       `json:"box"`
	MessageHash string       `json:"messageHash"`
	Status      string       `json:"status"`
	Message     *messageView `json:"message,omitempty"`
}

type processView struct {
	MessageHash string `json:"messageHash"`
	Box         string `json:"box"`
	Status      string `json:"status"`
}

type processResponse struct {
	Account   string       `json:"account"`
	NextNonce uint64       `json:"nextNonce"`
	Process   *processView `json:"process,omitempty"`
}

type rootResponse struct {
	Height      uint64 `json:"height"`
	StateRoot   string `json:"stateRoot,omitempty"`
	StorageRoot string `json:"storageRoot,omitempty"`
}

type balanceResponse struct {
	Account string `json:"account"`
	Symbol  string `json:"symbol"`
	Balance string `json:"balance"`
}

type healthResponse struct {
	Status    string `json:"status"`
	StateRoot string `json:"stateRoot"`
	Commits   uint64 `json:"commits"`
	Linked    bool   `json:"linked"`
}

type auditEntry struct {
	ID          string            `json:"id"`
	Sequence    uint64            `json:"sequence"`
	Type        string            `json:"type"`
	MessageHash string            `json:"messageHash,omitempty"`
	Attributes  map[string]string `json:"attributes"`
	CreatedAt   string            `json:"createdAt"`
}

type auditResponse struct {
	Entries []auditEntry `json:"entries"`
}

func newMessageView(msg *messagebus.Message) *messageView {
	return &messageView{
		IntentHash:  msg.IntentHash.Hex(),
		Nonce:       msg.Nonce,
		Sender:      msg.Sender.Hex(),
		GasPrice:    formatAmount(msg.GasPrice),
		GasLimit:    formatAmount(msg.GasLimit),
		HashLock:    msg.HashLock.Hex(),
		GasConsumed: formatAmount(msg.GasConsumed),
	}
}

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", bridgeerrors.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func parseAddress(field, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "0x") || !common.IsHexAddress(raw) {
		return common.Address{}, invalidf("%s: invalid address %q", field, raw)
	}
	return common.HexToAddress(raw), nil
}

func parseOptionalAddress(field, raw string) (common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return common.Address{}, nil
	}
	return parseAddress(field, raw)
}

func parseHash(field, raw string) (common.Hash, error) {
	b, err := hexutil.Decode(strings.TrimSpace(raw))
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, invalidf("%s: expected 32-byte hex", field)
	}
	return common.BytesToHash(b), nil
}

func parseBytes(field, raw string) ([]byte, error) {
	b, err := hexutil.Decode(strings.TrimSpace(raw))
	if err != nil {
		return nil, invalidf("%s: %v", field, err)
	}
	return b, nil
}

func parseProof(raw []string) ([][]byte, error) {
	if len(raw) == 0 {
		return nil, invalidf("proof: at least one node required")
	}
	out := make([][]byte, len(raw))
	for i, node := range raw {
		b, err := parseBytes(fmt.Sprintf("proof[%d]", i), node)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func parseAmount(field, raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, invalidf("%s: required", field)
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, invalidf("%s: invalid decimal %q", field, raw)
	}
	if v.Sign() < 0 {
		return nil, invalidf("%s: must not be negative", field)
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return nil, invalidf("%s: exceeds 256 bits", field)
	}
	return v, nil
}

func parseOptionalAmount(field, raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return big.NewInt(0), nil
	}
	return parseAmount(field, raw)
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
