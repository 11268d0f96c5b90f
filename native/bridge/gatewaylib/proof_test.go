package gatewaylib

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	bridgeerrors "stakebridge/core/errors"
)

type nodeList [][]byte

func (n *nodeList) Put(_ []byte, value []byte) error {
	*n = append(*n, value)
	return nil
}

func (n *nodeList) Delete([]byte) error { return errors.New("not supported") }

func newTrie() *trie.Trie {
	return trie.NewEmpty(triedb.NewDatabase(rawdb.NewMemoryDatabase(), nil))
}

type fixture struct {
	stateRoot   common.Hash
	storageRoot common.Hash
	account     []byte
	accountPath []byte
	accountPf   [][]byte
	slot        common.Hash
	slotValue   []byte
	slotPf      [][]byte
}

func buildFixture(t *testing.T) fixture {
	t.Helper()
	storage := newTrie()
	slot := crypto.Keccak256Hash([]byte("slot"))
	value, err := rlp.EncodeToBytes(uint8(2))
	require.NoError(t, err)
	require.NoError(t, storage.Update(StoragePath(slot), value))
	for i := 0; i < 16; i++ {
		other := crypto.Keccak256Hash([]byte{byte(i)})
		require.NoError(t, storage.Update(StoragePath(other), []byte{0x01}))
	}
	storageRoot := storage.Hash()
	var slotPf nodeList
	require.NoError(t, storage.Prove(StoragePath(slot), &slotPf))

	state := newTrie()
	addr := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	encoded, err := rlp.EncodeToBytes(&gethtypes.StateAccount{
		Nonce:    1,
		Balance:  uint256.NewInt(0),
		Root:     storageRoot,
		CodeHash: crypto.Keccak256(nil),
	})
	require.NoError(t, err)
	require.NoError(t, state.Update(EncodedPath(addr), encoded))
	for i := 0; i < 16; i++ {
		other := common.BigToAddress(big.NewInt(int64(1000 + i)))
		require.NoError(t, state.Update(EncodedPath(other), []byte{0xc0 + byte(i%8)}))
	}
	stateRoot := state.Hash()
	var accountPf nodeList
	require.NoError(t, state.Prove(EncodedPath(addr), &accountPf))

	return fixture{
		stateRoot:   stateRoot,
		storageRoot: storageRoot,
		account:     encoded,
		accountPath: EncodedPath(addr),
		accountPf:   accountPf,
		slot:        slot,
		slotValue:   value,
		slotPf:      slotPf,
	}
}

func cloneProof(proof [][]byte) [][]byte {
	out := make([][]byte, len(proof))
	for i, node := range proof {
		out[i] = append([]byte(nil), node...)
	}
	return out
}

func TestProveAccountReturnsStorageRoot(t *testing.T) {
	f := buildFixture(t)
	root, err := ProveAccount(f.account, f.accountPf, f.accountPath, f.stateRoot)
	require.NoError(t, err)
	require.Equal(t, f.storageRoot, root)
}

func TestProveAccountRejectsTamperedProof(t *testing.T) {
	f := buildFixture(t)
	for i := range f.accountPf {
		for _, pos := range []int{0, len(f.accountPf[i]) / 2, len(f.accountPf[i]) - 1} {
			proof := cloneProof(f.accountPf)
			proof[i][pos] ^= 0x01
			_, err := ProveAccount(f.account, proof, f.accountPath, f.stateRoot)
			require.Error(t, err, "node %d byte %d", i, pos)
		}
	}
}

func TestProveAccountErrors(t *testing.T) {
	f := buildFixture(t)

	_, err := ProveAccount(f.account, nil, f.accountPath, f.stateRoot)
	require.ErrorIs(t, err, bridgeerrors.ErrInvalidInput)

	_, err = ProveAccount(nil, f.accountPf, f.accountPath, f.stateRoot)
	require.ErrorIs(t, err, bridgeerrors.ErrInvalidInput)

	_, err = ProveAccount(f.account, f.accountPf, f.accountPath, crypto.Keccak256Hash([]byte("wrong root")))
	require.ErrorIs(t, err, bridgeerrors.ErrProofInvalid)

	claimed := append([]byte(nil), f.account...)
	claimed[len(claimed)-1] ^= 0x01
	_, err = ProveAccount(claimed, f.accountPf, f.accountPath, f.stateRoot)
	require.ErrorIs(t, err, bridgeerrors.ErrProofInvalid)
}

func TestProveAccountPathMismatch(t *testing.T) {
	state := newTrie()
	present := EncodedPath(common.HexToAddress("0x01"))
	require.NoError(t, state.Update(present, []byte("value")))
	absent := EncodedPath(common.HexToAddress("0x02"))

	var proof nodeList
	require.NoError(t, state.Prove(absent, &proof))
	_, err := ProveAccount([]byte("value"), proof, absent, state.Hash())
	require.ErrorIs(t, err, bridgeerrors.ErrPathMismatch)
}

func TestVerifyStorage(t *testing.T) {
	f := buildFixture(t)
	require.NoError(t, VerifyStorage(f.slot, f.slotValue, f.slotPf, f.storageRoot))

	other, err := rlp.EncodeToBytes(uint8(1))
	require.NoError(t, err)
	require.ErrorIs(t, VerifyStorage(f.slot, other, f.slotPf, f.storageRoot), bridgeerrors.ErrProofInvalid)

	proof := cloneProof(f.slotPf)
	proof[0][1] ^= 0xff
	require.Error(t, VerifyStorage(f.slot, f.slotValue, proof, f.storageRoot))
}

func TestDecodeProofRoundTrip(t *testing.T) {
	f := buildFixture(t)
	encoded, err := EncodeProof(f.accountPf)
	require.NoError(t, err)
	decoded, err := DecodeProof(encoded)
	require.NoError(t, err)
	require.Equal(t, f.accountPf, decoded)

	_, err = DecodeProof(nil)
	require.ErrorIs(t, err, bridgeerrors.ErrInvalidInput)
	_, err = DecodeProof([]byte{0x01})
	require.ErrorIs(t, err, bridgeerrors.ErrInvalidInput)
}
