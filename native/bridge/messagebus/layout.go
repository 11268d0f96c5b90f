package messagebus

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"stakebridge/native/bridge/gatewaylib"
)

// Layout describes where the counterpart message box keeps its registries.
// The outbox mapping lives at storage index Offset and the inbox mapping at
// Offset+1.
type Layout struct {
	Offset uint64
}

// Index returns the storage index of the given registry.
func (l Layout) Index(box Box) uint64 {
	if box == Inbox {
		return l.Offset + 1
	}
	return l.Offset
}

// Slot returns the storage slot of messageHash inside the given registry:
// keccak256(messageHash || uint256(index)).
func (l Layout) Slot(box Box, messageHash common.Hash) common.Hash {
	index := common.BigToHash(new(big.Int).SetUint64(l.Index(box)))
	return crypto.Keccak256Hash(messageHash.Bytes(), index.Bytes())
}

// EncodeStatus returns the storage value representing status.
func EncodeStatus(status Status) []byte {
	return rlp.AppendUint64(nil, uint64(status))
}

// VerifyStatus checks a proof that the counterpart registry holds status for
// messageHash under storageRoot.
func (l Layout) VerifyStatus(box Box, messageHash common.Hash, status Status, proof [][]byte, storageRoot common.Hash) error {
	return gatewaylib.VerifyStorage(l.Slot(box, messageHash), EncodeStatus(status), proof, storageRoot)
}
