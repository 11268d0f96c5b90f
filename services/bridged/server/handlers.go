package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	consensusstore "stakebridge/consensus/store"
	bridgeerrors "stakebridge/core/errors"
	"stakebridge/native/bridge/gateway"
	"stakebridge/native/bridge/messagebus"
	"stakebridge/storage/audit"
)

type progressArgs struct {
	caller      common.Address
	hash        common.Hash
	secret      []byte
	height      uint64
	proof       [][]byte
	counterpart messagebus.Status
}

func (a progressArgs) withProof() bool { return a.secret == nil }

func parseProgress(req progressRequest) (progressArgs, error) {
	var args progressArgs
	var err error
	if args.caller, err = parseAddress("caller", req.Caller); err != nil {
		return args, err
	}
	if args.hash, err = parseHash("messageHash", req.MessageHash); err != nil {
		return args, err
	}
	if req.UnlockSecret != "" {
		if len(req.Proof) > 0 {
			return args, invalidf("unlockSecret and proof are mutually exclusive")
		}
		args.secret, err = parseBytes("unlockSecret", req.UnlockSecret)
		if args.secret == nil {
			args.secret = []byte{}
		}
		return args, err
	}
	if args.proof, err = parseProof(req.Proof); err != nil {
		return args, err
	}
	if req.CounterpartStatus == "" {
		return args, invalidf("counterpartStatus required with a proof")
	}
	args.height = req.BlockHeight
	args.counterpart, err = messagebus.ParseStatusName(strings.ToLower(req.CounterpartStatus))
	return args, err
}

// InitiateLink handles POST /v1/link/initiate.
func (s *Server) InitiateLink(w http.ResponseWriter, r *http.Request) {
	var body linkInitiateRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	body.Caller = s.callerOr(body.Caller)
	req := gateway.LinkRequest{Nonce: body.Nonce}
	var err error
	if req.Caller, err = parseAddress("caller", body.Caller); err == nil {
		if req.Sender, err = parseAddress("sender", body.Sender); err == nil {
			if req.IntentHash, err = parseHash("intentHash", body.IntentHash); err == nil {
				if req.HashLock, err = parseHash("hashLock", body.HashLock); err == nil {
					req.Signature, err = parseBytes("signature", body.Signature)
				}
			}
		}
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var hash common.Hash
	err = s.node.Execute("initiate_link", func(e *gateway.Engine) error {
		var err error
		hash, err = e.InitiateLink(req)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, messageHashResponse{MessageHash: hash.Hex()})
}

// ProgressLink handles POST /v1/link/progress.
func (s *Server) ProgressLink(w http.ResponseWriter, r *http.Request) {
	var body progressRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	body.Caller = s.callerOr(body.Caller)
	args, err := parseProgress(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.node.Execute("progress_link", func(e *gateway.Engine) error {
		if args.withProof() {
			return e.ProgressLinkWithProof(args.caller, args.hash, args.height, args.proof, args.counterpart)
		}
		return e.ProgressLink(args.caller, args.hash, args.secret)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messageHashResponse{MessageHash: args.hash.Hex()})
}

// Stake handles POST /v1/stake.
func (s *Server) Stake(w http.ResponseWriter, r *http.Request) {
	var body stakeRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	body.Caller = s.callerOr(body.Caller)
	req, err := parseStake(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var hash common.Hash
	err = s.node.Execute("stake", func(e *gateway.Engine) error {
		var err error
		hash, err = e.Stake(req)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, messageHashResponse{MessageHash: hash.Hex()})
}

func parseStake(body stakeRequest) (gateway.StakeRequest, error) {
	req := gateway.StakeRequest{Nonce: body.Nonce}
	var err error
	if req.Caller, err = parseAddress("caller", body.Caller); err != nil {
		return req, err
	}
	if req.Staker, err = parseAddress("staker", body.Staker); err != nil {
		return req, err
	}
	if req.Beneficiary, err = parseAddress("beneficiary", body.Beneficiary); err != nil {
		return req, err
	}
	if req.Amount, err = parseAmount("amount", body.Amount); err != nil {
		return req, err
	}
	if req.GasPrice, err = parseOptionalAmount("gasPrice", body.GasPrice); err != nil {
		return req, err
	}
	if req.GasLimit, err = parseOptionalAmount("gasLimit", body.GasLimit); err != nil {
		return req, err
	}
	if req.HashLock, err = parseHash("hashLock", body.HashLock); err != nil {
		return req, err
	}
	req.Signature, err = parseBytes("signature", body.Signature)
	return req, err
}

// ProgressStake handles POST /v1/stake/progress.
func (s *Server) ProgressStake(w http.ResponseWriter, r *http.Request) {
	var body progressRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	body.Caller = s.callerOr(body.Caller)
	args, err := parseProgress(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.node.Execute("progress_stake", func(e *gateway.Engine) error {
		if args.withProof() {
			return e.ProgressStakeWithProof(args.caller, args.hash, args.height, args.proof, args.counterpart)
		}
		return e.ProgressStake(args.caller, args.hash, args.secret)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messageHashResponse{MessageHash: args.hash.Hex()})
}

// RevertStake handles POST /v1/stake/revert.
func (s *Server) RevertStake(w http.ResponseWriter, r *http.Request) {
	var body revertStakeRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	body.Caller = s.callerOr(body.Caller)
	caller, err := parseAddress("caller", body.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	hash, err := parseHash("messageHash", body.MessageHash)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sig, err := parseBytes("signature", body.Signature)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.node.Execute("revert_stake", func(e *gateway.Engine) error {
		return e.RevertStake(caller, hash, sig)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messageHashResponse{MessageHash: hash.Hex()})
}

func parseProven(body provenRequest) (common.Address, common.Hash, [][]byte, error) {
	caller, err := parseAddress("caller", body.Caller)
	if err != nil {
		return caller, common.Hash{}, nil, err
	}
	hash, err := parseHash("messageHash", body.MessageHash)
	if err != nil {
		return caller, hash, nil, err
	}
	proof, err := parseProof(body.Proof)
	return caller, hash, proof, err
}

// ProgressRevertStake handles POST /v1/stake/revert/progress.
func (s *Server) ProgressRevertStake(w http.ResponseWriter, r *http.Request) {
	var body provenRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	body.Caller = s.callerOr(body.Caller)
	caller, hash, proof, err := parseProven(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.node.Execute("progress_revert_stake", func(e *gateway.Engine) error {
		return e.ProgressRevertStake(caller, hash, body.BlockHeight, proof)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messageHashResponse{MessageHash: hash.Hex()})
}

// ConfirmRedemption handles POST /v1/redeem/confirm.
func (s *Server) ConfirmRedemption(w http.ResponseWriter, r *http.Request) {
	var body redemptionRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	body.Caller = s.callerOr(body.Caller)
	req, err := parseRedemption(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var hash common.Hash
	err = s.node.Execute("confirm_redemption", func(e *gateway.Engine) error {
		var err error
		hash, err = e.ConfirmRedemptionIntent(req)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, messageHashResponse{MessageHash: hash.Hex()})
}

func parseRedemption(body redemptionRequest) (gateway.RedemptionRequest, error) {
	req := gateway.RedemptionRequest{Nonce: body.Nonce, BlockHeight: body.BlockHeight}
	var err error
	if req.Caller, err = parseAddress("caller", body.Caller); err != nil {
		return req, err
	}
	if req.Redeemer, err = parseAddress("redeemer", body.Redeemer); err != nil {
		return req, err
	}
	if req.Beneficiary, err = parseAddress("beneficiary", body.Beneficiary); err != nil {
		return req, err
	}
	if req.Amount, err = parseAmount("amount", body.Amount); err != nil {
		return req, err
	}
	if req.GasPrice, err = parseOptionalAmount("gasPrice", body.GasPrice); err != nil {
		return req, err
	}
	if req.GasLimit, err = parseOptionalAmount("gasLimit", body.GasLimit); err != nil {
		return req, err
	}
	if req.GasConsumed, err = parseOptionalAmount("gasConsumed", body.GasConsumed); err != nil {
		return req, err
	}
	if req.HashLock, err = parseHash("hashLock", body.HashLock); err != nil {
		return req, err
	}
	req.Proof, err = parseProof(body.Proof)
	return req, err
}

// ProgressUnstake handles POST /v1/unstake/progress.
func (s *Server) ProgressUnstake(w http.ResponseWriter, r *http.Request) {
	var body progressRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	body.Caller = s.callerOr(body.Caller)
	args, err := parseProgress(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var res *gateway.UnstakeResult
	err = s.node.Execute("progress_unstake", func(e *gateway.Engine) error {
		var err error
		if args.withProof() {
			res, err = e.ProgressUnstakeWithProof(args.caller, args.hash, args.height, args.proof, args.counterpart)
		} else {
			res, err = e.ProgressUnstake(args.caller, args.hash, args.secret)
		}
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, unstakeResponse{
		MessageHash:   args.hash.Hex(),
		RedeemAmount:  formatAmount(res.RedeemAmount),
		UnstakeAmount: formatAmount(res.UnstakeAmount),
		Reward:        formatAmount(res.Reward),
	})
}

// ConfirmRevertRedemption handles POST /v1/redeem/revert/confirm.
func (s *Server) ConfirmRevertRedemption(w http.ResponseWriter, r *http.Request) {
	var body provenRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	body.Caller = s.callerOr(body.Caller)
	caller, hash, proof, err := parseProven(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	consumed, err := parseOptionalAmount("gasConsumed", body.GasConsumed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.node.Execute("confirm_revert_redemption", func(e *gateway.Engine) error {
		return e.ConfirmRevertRedemptionIntent(caller, hash, body.BlockHeight, proof, consumed)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messageHashResponse{MessageHash: hash.Hex()})
}

// ProveGateway handles POST /v1/gateway/prove.
func (s *Server) ProveGateway(w http.ResponseWriter, r *http.Request) {
	var body proveRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	body.Caller = s.callerOr(body.Caller)
	caller, err := parseAddress("caller", body.Caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	account, err := parseBytes("account", body.Account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	proof, err := parseProof(body.Proof)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var res *gateway.ProveResult
	err = s.node.Execute("prove_gateway", func(e *gateway.Engine) error {
		var err error
		res, err = e.ProveGateway(caller, body.BlockHeight, account, proof)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, proveResponse{
		BlockHeight:   body.BlockHeight,
		StorageRoot:   res.StorageRoot.Hex(),
		AlreadyProven: res.AlreadyProven,
	})
}

// GetMessage handles GET /v1/messages/{box}/{hash}.
func (s *Server) GetMessage(w http.ResponseWriter, r *http.Request) {
	box, err := messagebus.ParseBox(strings.ToLower(chi.URLParam(r, "box")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	hash, err := parseHash("hash", chi.URLParam(r, "hash"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := messageResponse{Box: box.String(), MessageHash: hash.Hex()}
	err = s.node.Query(func(e *gateway.Engine) error {
		status, err := e.MessageStatus(box, hash)
		if err != nil {
			return err
		}
		resp.Status = status.String()
		msg, err := e.Message(box, hash)
		if errors.Is(err, bridgeerrors.ErrMessageNotFound) {
			if status == messagebus.StatusUndeclared {
				return err
			}
			return nil
		}
		if err != nil {
			return err
		}
		resp.Message = newMessageView(msg)
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// GetProcess handles GET /v1/process/{account}.
func (s *Server) GetProcess(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := processResponse{Account: account.Hex()}
	err = s.node.Query(func(e *gateway.Engine) error {
		nonce, err := e.NextNonce(account)
		if err != nil {
			return err
		}
		resp.NextNonce = nonce
		proc, ok, err := e.ActiveProcess(account)
		if err != nil || !ok {
			return err
		}
		status, err := e.MessageStatus(proc.Box, proc.MessageHash)
		if err != nil {
			return err
		}
		resp.Process = &processView{
			MessageHash: proc.MessageHash.Hex(),
			Box:         proc.Box.String(),
			Status:      status.String(),
		}
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// GetBalance handles GET /v1/balances/{symbol}/{account}.
func (s *Server) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	balance, err := s.node.Balance(symbol, account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, balanceResponse{Account: account.Hex(), Symbol: symbol, Balance: formatAmount(balance)})
}

// GetRoot handles GET /v1/roots/{height}: the committed consensus state root
// and, once proven, the co-gateway storage root at that height.
func (s *Server) GetRoot(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(chi.URLParam(r, "height"), 10, 64)
	if err != nil {
		s.writeError(w, r, invalidf("height: %v", err))
		return
	}
	stateRoot, haveState, err := s.node.CounterpartStateRoot(height)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := rootResponse{Height: height}
	if haveState {
		resp.StateRoot = stateRoot.Hex()
	}
	var haveStorage bool
	err = s.node.Query(func(e *gateway.Engine) error {
		root, ok, err := e.StorageRoot(height)
		if ok {
			resp.StorageRoot = root.Hex()
			haveStorage = true
		}
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !haveState && !haveStorage {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "no root at height " + strconv.FormatUint(height, 10), Class: string(bridgeerrors.ClassNotFound)})
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// CommitRoot handles POST /v1/roots, the authenticated consensus feed.
func (s *Server) CommitRoot(w http.ResponseWriter, r *http.Request) {
	var body commitRootRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	root, err := parseHash("stateRoot", body.StateRoot)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if root == (common.Hash{}) {
		s.writeError(w, r, invalidf("stateRoot: must not be zero"))
		return
	}
	if err := s.node.CommitStateRoot(body.Height, root); err != nil {
		if errors.Is(err, consensusstore.ErrRootConflict) {
			s.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Class: string(bridgeerrors.ClassConflict)})
			return
		}
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rootResponse{Height: body.Height, StateRoot: root.Hex()})
}

// ListAudit handles GET /v1/audit.
func (s *Server) ListAudit(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "audit journal disabled", Class: string(bridgeerrors.ClassNotFound)})
		return
	}
	q := r.URL.Query()
	filter := audit.Filter{Type: q.Get("type")}
	if raw := q.Get("messageHash"); raw != "" {
		hash, err := parseHash("messageHash", raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		filter.MessageHash = hash.Hex()
	}
	if raw := q.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, invalidf("after: %v", err))
			return
		}
		filter.AfterSeq = after
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, r, invalidf("limit: invalid %q", raw))
			return
		}
		filter.Limit = limit
	}
	entries, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := auditResponse{Entries: make([]auditEntry, 0, len(entries))}
	for _, entry := range entries {
		evt, err := entry.Decode()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.Entries = append(resp.Entries, auditEntry{
			ID:          entry.ID.String(),
			Sequence:    entry.Sequence,
			Type:        entry.Type,
			MessageHash: entry.MessageHash,
			Attributes:  evt.Attributes,
			CreatedAt:   entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	root, commits := s.node.Status()
	var linked bool
	if err := s.node.Query(func(e *gateway.Engine) error {
		var err error
		linked, err = e.IsActive()
		return err
	}); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", StateRoot: root.Hex(), Commits: commits, Linked: linked})
}
