package messagebus_test

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	bridgeerrors "stakebridge/core/errors"
	"stakebridge/core/state"
	"stakebridge/native/bridge/counterpart"
	"stakebridge/native/bridge/gatewaylib"
	"stakebridge/native/bridge/messagebus"
	"stakebridge/storage"
	"stakebridge/storage/trie"
)

var secret = []byte("unlock")

type harness struct {
	t      *testing.T
	box    *messagebus.MessageBox
	remote *counterpart.Ledger
	layout messagebus.Layout
	key    *ecdsa.PrivateKey
	sender common.Address
	height uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)

	layout := messagebus.Layout{Offset: 7}
	remote, err := counterpart.New(common.HexToAddress("0x00000000000000000000000000000000000000b2"), layout)
	require.NoError(t, err)
	t.Cleanup(remote.Close)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &harness{
		t:      t,
		box:    messagebus.New(state.NewManager(tr), layout),
		remote: remote,
		layout: layout,
		key:    key,
		sender: crypto.PubkeyToAddress(key.PublicKey),
	}
}

func (h *harness) message(nonce uint64) *messagebus.Message {
	return &messagebus.Message{
		IntentHash:  crypto.Keccak256Hash([]byte("intent")),
		Nonce:       nonce,
		Sender:      h.sender,
		GasPrice:    big.NewInt(1),
		GasLimit:    big.NewInt(100),
		HashLock:    gatewaylib.HashLock(secret),
		GasConsumed: big.NewInt(0),
	}
}

func (h *harness) sign(digest common.Hash) []byte {
	sig, err := gatewaylib.Sign(digest, h.key)
	require.NoError(h.t, err)
	return sig
}

func (h *harness) declare(msg *messagebus.Message) common.Hash {
	hash, err := h.box.DeclareMessage(msg, h.sign(msg.Hash()))
	require.NoError(h.t, err)
	return hash
}

// prove sets the counterpart registry entry and returns a proof for it.
func (h *harness) prove(box messagebus.Box, hash common.Hash, status messagebus.Status) ([][]byte, common.Hash) {
	require.NoError(h.t, h.remote.SetStatus(box, hash, status))
	h.height++
	snap, err := h.remote.Snapshot(h.height)
	require.NoError(h.t, err)
	proof, err := snap.ProveStatus(box, hash)
	require.NoError(h.t, err)
	return proof, snap.StorageRoot
}

func (h *harness) requireStatus(box messagebus.Box, hash common.Hash, want messagebus.Status) {
	got, err := h.box.Status(box, hash)
	require.NoError(h.t, err)
	require.Equal(h.t, want, got)
}

func TestDeclareAndProgressWithSecret(t *testing.T) {
	h := newHarness(t)
	msg := h.message(0)
	hash := h.declare(msg)
	require.Equal(t, msg.Hash(), hash)
	h.requireStatus(messagebus.Outbox, hash, messagebus.StatusDeclared)
	h.requireStatus(messagebus.Inbox, hash, messagebus.StatusUndeclared)

	require.ErrorIs(t, h.box.ProgressOutbox(msg, []byte("wrong")), bridgeerrors.ErrInvalidUnlockSecret)
	require.NoError(t, h.box.ProgressOutbox(msg, secret))
	h.requireStatus(messagebus.Outbox, hash, messagebus.StatusProgressed)

	require.ErrorIs(t, h.box.ProgressOutbox(msg, secret), bridgeerrors.ErrAlreadyTerminal)
	_, err := h.box.DeclareMessage(msg, h.sign(hash))
	require.ErrorIs(t, err, bridgeerrors.ErrAlreadyTerminal)
	require.ErrorIs(t, h.box.DeclareRevocation(msg, h.sign(gatewaylib.RevocationHash(hash, 0))), bridgeerrors.ErrAlreadyTerminal)
}

func TestDeclareRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	msg := h.message(0)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	badSig, err := gatewaylib.Sign(msg.Hash(), other)
	require.NoError(t, err)
	_, err = h.box.DeclareMessage(msg, badSig)
	require.ErrorIs(t, err, bridgeerrors.ErrInvalidSignature)
	h.requireStatus(messagebus.Outbox, msg.Hash(), messagebus.StatusUndeclared)

	noLock := h.message(0)
	noLock.HashLock = common.Hash{}
	_, err = h.box.DeclareMessage(noLock, h.sign(noLock.Hash()))
	require.ErrorIs(t, err, bridgeerrors.ErrInvalidInput)

	_, err = h.box.DeclareMessage(nil, nil)
	require.ErrorIs(t, err, bridgeerrors.ErrInvalidInput)

	h.declare(msg)
	_, err = h.box.DeclareMessage(msg, h.sign(msg.Hash()))
	require.ErrorIs(t, err, bridgeerrors.ErrAlreadyDeclared)
}

func TestProgressUndeclaredFails(t *testing.T) {
	h := newHarness(t)
	msg := h.message(0)
	require.ErrorIs(t, h.box.ProgressOutbox(msg, secret), bridgeerrors.ErrInvalidStatus)
	require.ErrorIs(t, h.box.ProgressInbox(msg, secret), bridgeerrors.ErrInvalidStatus)
}

func TestProgressOutboxWithProofAcceptedStatuses(t *testing.T) {
	cases := []struct {
		name        string
		revoking    bool
		counterpart messagebus.Status
		wantErr     error
	}{
		{name: "declared/declared", counterpart: messagebus.StatusDeclared},
		{name: "declared/progressed", counterpart: messagebus.StatusProgressed},
		{name: "declared/revoked", counterpart: messagebus.StatusRevoked, wantErr: bridgeerrors.ErrInvalidInput},
		{name: "revoking/progressed", revoking: true, counterpart: messagebus.StatusProgressed},
		{name: "revoking/declared", revoking: true, counterpart: messagebus.StatusDeclared, wantErr: bridgeerrors.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			msg := h.message(0)
			hash := h.declare(msg)
			if tc.revoking {
				require.NoError(t, h.box.DeclareRevocation(msg, h.sign(gatewaylib.RevocationHash(hash, msg.Nonce))))
			}
			proof, root := h.prove(messagebus.Inbox, hash, tc.counterpart)
			err := h.box.ProgressOutboxWithProof(msg, proof, root, tc.counterpart)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			h.requireStatus(messagebus.Outbox, hash, messagebus.StatusProgressed)
		})
	}
}

func TestProgressWithProofRejectsWrongClaim(t *testing.T) {
	h := newHarness(t)
	msg := h.message(0)
	hash := h.declare(msg)

	proof, root := h.prove(messagebus.Inbox, hash, messagebus.StatusDeclared)
	require.ErrorIs(t, h.box.ProgressOutboxWithProof(msg, proof, root, messagebus.StatusProgressed), bridgeerrors.ErrProofInvalid)

	tampered := make([][]byte, len(proof))
	for i := range proof {
		tampered[i] = append([]byte(nil), proof[i]...)
	}
	last := tampered[len(tampered)-1]
	last[len(last)-1] ^= 0x01
	require.Error(t, h.box.ProgressOutboxWithProof(msg, tampered, root, messagebus.StatusDeclared))

	require.Error(t, h.box.ProgressOutboxWithProof(msg, proof, crypto.Keccak256Hash([]byte("root")), messagebus.StatusDeclared))
	h.requireStatus(messagebus.Outbox, hash, messagebus.StatusDeclared)
}

func TestRevocationBranch(t *testing.T) {
	h := newHarness(t)
	msg := h.message(3)
	hash := h.declare(msg)

	require.ErrorIs(t, h.box.DeclareRevocation(msg, h.sign(hash)), bridgeerrors.ErrInvalidSignature)
	require.ErrorIs(t, h.box.ProgressOutboxRevocation(msg, secret), bridgeerrors.ErrInvalidStatus)

	require.NoError(t, h.box.DeclareRevocation(msg, h.sign(gatewaylib.RevocationHash(hash, 3))))
	h.requireStatus(messagebus.Outbox, hash, messagebus.StatusDeclaredRevocation)
	require.ErrorIs(t, h.box.ProgressOutbox(msg, secret), bridgeerrors.ErrInvalidStatus)

	declaredProof, declaredRoot := h.prove(messagebus.Inbox, hash, messagebus.StatusDeclared)
	require.ErrorIs(t, h.box.ProgressOutboxRevocationWithProof(msg, declaredProof, declaredRoot), bridgeerrors.ErrProofInvalid)

	proof, root := h.prove(messagebus.Inbox, hash, messagebus.StatusRevoked)
	require.NoError(t, h.box.ProgressOutboxRevocationWithProof(msg, proof, root))
	h.requireStatus(messagebus.Outbox, hash, messagebus.StatusRevoked)

	require.ErrorIs(t, h.box.ProgressOutboxRevocationWithProof(msg, proof, root), bridgeerrors.ErrAlreadyTerminal)
	require.ErrorIs(t, h.box.ProgressOutboxWithProof(msg, proof, root, messagebus.StatusProgressed), bridgeerrors.ErrAlreadyTerminal)
}

func TestRevocationWithSecret(t *testing.T) {
	h := newHarness(t)
	msg := h.message(0)
	hash := h.declare(msg)
	require.NoError(t, h.box.DeclareRevocation(msg, h.sign(gatewaylib.RevocationHash(hash, 0))))
	require.ErrorIs(t, h.box.ProgressOutboxRevocation(msg, []byte("nope")), bridgeerrors.ErrInvalidUnlockSecret)
	require.NoError(t, h.box.ProgressOutboxRevocation(msg, secret))
	h.requireStatus(messagebus.Outbox, hash, messagebus.StatusRevoked)
}

func TestInboxConfirmAndProgress(t *testing.T) {
	h := newHarness(t)
	msg := h.message(0)
	hash := msg.Hash()

	missing, missingRoot := h.prove(messagebus.Outbox, crypto.Keccak256Hash([]byte("unrelated")), messagebus.StatusDeclared)
	_, err := h.box.ConfirmMessage(msg, missing, missingRoot)
	require.ErrorIs(t, err, bridgeerrors.ErrPathMismatch)

	proof, root := h.prove(messagebus.Outbox, hash, messagebus.StatusDeclared)
	confirmed, err := h.box.ConfirmMessage(msg, proof, root)
	require.NoError(t, err)
	require.Equal(t, hash, confirmed)
	h.requireStatus(messagebus.Inbox, hash, messagebus.StatusDeclared)
	h.requireStatus(messagebus.Outbox, hash, messagebus.StatusUndeclared)

	_, err = h.box.ConfirmMessage(msg, proof, root)
	require.ErrorIs(t, err, bridgeerrors.ErrAlreadyDeclared)

	require.ErrorIs(t, h.box.ProgressInboxWithProof(msg, proof, root, messagebus.StatusDeclared), bridgeerrors.ErrInvalidInput)

	progressed, progressedRoot := h.prove(messagebus.Outbox, hash, messagebus.StatusProgressed)
	require.NoError(t, h.box.ProgressInboxWithProof(msg, progressed, progressedRoot, messagebus.StatusProgressed))
	h.requireStatus(messagebus.Inbox, hash, messagebus.StatusProgressed)

	require.ErrorIs(t, h.box.ProgressInbox(msg, secret), bridgeerrors.ErrAlreadyTerminal)
	require.ErrorIs(t, h.box.ConfirmRevocation(msg, progressed, progressedRoot), bridgeerrors.ErrAlreadyTerminal)
}

func TestInboxProgressWithSecret(t *testing.T) {
	h := newHarness(t)
	msg := h.message(0)
	proof, root := h.prove(messagebus.Outbox, msg.Hash(), messagebus.StatusDeclared)
	_, err := h.box.ConfirmMessage(msg, proof, root)
	require.NoError(t, err)

	require.ErrorIs(t, h.box.ProgressInbox(msg, []byte("nope")), bridgeerrors.ErrInvalidUnlockSecret)
	require.NoError(t, h.box.ProgressInbox(msg, secret))
	h.requireStatus(messagebus.Inbox, msg.Hash(), messagebus.StatusProgressed)
}

func TestConfirmRevocation(t *testing.T) {
	h := newHarness(t)
	msg := h.message(0)
	hash := msg.Hash()
	proof, root := h.prove(messagebus.Outbox, hash, messagebus.StatusDeclared)
	_, err := h.box.ConfirmMessage(msg, proof, root)
	require.NoError(t, err)

	require.ErrorIs(t, h.box.ConfirmRevocation(msg, proof, root), bridgeerrors.ErrProofInvalid)

	revoking, revokingRoot := h.prove(messagebus.Outbox, hash, messagebus.StatusDeclaredRevocation)
	require.NoError(t, h.box.ConfirmRevocation(msg, revoking, revokingRoot))
	h.requireStatus(messagebus.Inbox, hash, messagebus.StatusRevoked)

	_, err = h.box.ConfirmMessage(msg, proof, root)
	require.ErrorIs(t, err, bridgeerrors.ErrAlreadyTerminal)
}

func TestParseStatus(t *testing.T) {
	for raw := uint8(0); raw <= 4; raw++ {
		s, err := messagebus.ParseStatus(raw)
		require.NoError(t, err)
		named, err := messagebus.ParseStatusName(s.String())
		require.NoError(t, err)
		require.Equal(t, s, named)
	}
	_, err := messagebus.ParseStatus(5)
	require.ErrorIs(t, err, bridgeerrors.ErrInvalidInput)
	_, err = messagebus.ParseStatusName("pending")
	require.ErrorIs(t, err, bridgeerrors.ErrInvalidInput)

	require.True(t, messagebus.StatusProgressed.Terminal())
	require.True(t, messagebus.StatusRevoked.Terminal())
	require.False(t, messagebus.StatusDeclaredRevocation.Terminal())
}

func TestLayoutSlot(t *testing.T) {
	hash := crypto.Keccak256Hash([]byte("message"))
	layout := messagebus.Layout{Offset: 7}

	index := make([]byte, 32)
	index[31] = 8
	require.Equal(t, crypto.Keccak256Hash(hash.Bytes(), index), layout.Slot(messagebus.Inbox, hash))
	require.NotEqual(t, layout.Slot(messagebus.Outbox, hash), layout.Slot(messagebus.Inbox, hash))
	require.Equal(t, []byte{0x02}, messagebus.EncodeStatus(messagebus.StatusProgressed))

	box, err := messagebus.ParseBox("inbox")
	require.NoError(t, err)
	require.Equal(t, messagebus.Inbox, box)
	_, err = messagebus.ParseBox("sidebox")
	require.Error(t, err)
}
