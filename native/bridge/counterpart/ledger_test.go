package counterpart

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	bridgeerrors "stakebridge/core/errors"
	"stakebridge/native/bridge/gatewaylib"
	"stakebridge/native/bridge/messagebus"
)

func TestSnapshotProofsVerify(t *testing.T) {
	coGateway := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	layout := messagebus.Layout{Offset: 7}
	ledger, err := New(coGateway, layout)
	require.NoError(t, err)
	defer ledger.Close()

	for i := 1; i <= 8; i++ {
		require.NoError(t, ledger.SetAccount(common.BigToAddress(uint256.NewInt(uint64(i)).ToBig()), uint64(i), uint256.NewInt(uint64(i*100))))
	}
	ledger.SetBalance(uint256.NewInt(42))
	require.Error(t, ledger.SetAccount(coGateway, 0, nil))

	hash := crypto.Keccak256Hash([]byte("message"))
	require.NoError(t, ledger.SetStatus(messagebus.Outbox, hash, messagebus.StatusDeclared))
	require.NoError(t, ledger.SetSlot(crypto.Keccak256Hash([]byte("unrelated")), []byte{0x05}))

	snap, err := ledger.Snapshot(500)
	require.NoError(t, err)

	root, err := gatewaylib.ProveAccount(snap.Account, snap.AccountProof, gatewaylib.EncodedPath(coGateway), snap.StateRoot)
	require.NoError(t, err)
	require.Equal(t, snap.StorageRoot, root)

	proof, err := snap.ProveStatus(messagebus.Outbox, hash)
	require.NoError(t, err)
	require.NoError(t, layout.VerifyStatus(messagebus.Outbox, hash, messagebus.StatusDeclared, proof, snap.StorageRoot))
	require.ErrorIs(t, layout.VerifyStatus(messagebus.Outbox, hash, messagebus.StatusProgressed, proof, snap.StorageRoot), bridgeerrors.ErrProofInvalid)

	inboxProof, err := snap.ProveStatus(messagebus.Inbox, hash)
	require.NoError(t, err)
	require.ErrorIs(t, layout.VerifyStatus(messagebus.Inbox, hash, messagebus.StatusDeclared, inboxProof, snap.StorageRoot), bridgeerrors.ErrPathMismatch)
}

func TestSnapshotIsolatedFromLaterWrites(t *testing.T) {
	layout := messagebus.Layout{}
	ledger, err := New(common.HexToAddress("0xb2"), layout)
	require.NoError(t, err)
	defer ledger.Close()

	hash := crypto.Keccak256Hash([]byte("message"))
	require.NoError(t, ledger.SetStatus(messagebus.Outbox, hash, messagebus.StatusDeclared))
	first, err := ledger.Snapshot(1)
	require.NoError(t, err)

	require.NoError(t, ledger.SetStatus(messagebus.Outbox, hash, messagebus.StatusProgressed))
	second, err := ledger.Snapshot(2)
	require.NoError(t, err)
	require.NotEqual(t, first.StorageRoot, second.StorageRoot)
	require.NotEqual(t, first.StateRoot, second.StateRoot)

	proof, err := first.ProveStatus(messagebus.Outbox, hash)
	require.NoError(t, err)
	require.NoError(t, layout.VerifyStatus(messagebus.Outbox, hash, messagebus.StatusDeclared, proof, first.StorageRoot))

	require.NoError(t, ledger.SetStatus(messagebus.Outbox, hash, messagebus.StatusUndeclared))
	require.NoError(t, ledger.SetStatus(messagebus.Inbox, crypto.Keccak256Hash([]byte("other")), messagebus.StatusDeclared))
	third, err := ledger.Snapshot(3)
	require.NoError(t, err)
	proof, err = third.ProveStatus(messagebus.Outbox, hash)
	require.NoError(t, err)
	require.ErrorIs(t, layout.VerifyStatus(messagebus.Outbox, hash, messagebus.StatusDeclared, proof, third.StorageRoot), bridgeerrors.ErrPathMismatch)
}
