// Package gatewaylib holds the pure building blocks shared by both ends of a
// bridge channel: canonical intent digests, message hashes, signature recovery
// and Merkle proof verification.
package gatewaylib

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// StakeIntentTypeHash tags stake intents declared on the origin ledger.
	StakeIntentTypeHash = crypto.Keccak256Hash([]byte("StakeIntent(address gateway,address coGateway,uint256 amount,address beneficiary,address staker,uint256 nonce,uint256 gasPrice,uint256 gasLimit,address valueToken)"))
	// RedeemIntentTypeHash tags redemption intents declared on the auxiliary ledger.
	RedeemIntentTypeHash = crypto.Keccak256Hash([]byte("RedeemIntent(address gateway,address coGateway,uint256 amount,address beneficiary,address redeemer,uint256 nonce,uint256 gasPrice,uint256 gasLimit,address utilityToken)"))
	// LinkIntentTypeHash tags the one-time gateway link.
	LinkIntentTypeHash = crypto.Keccak256Hash([]byte("GatewayLink(address gateway,address coGateway,uint256 bounty,string tokenName,string tokenSymbol,uint8 tokenDecimals,uint256 nonce,address valueToken)"))
	// MessageTypeHash tags the final message digest.
	MessageTypeHash = crypto.Keccak256Hash([]byte("Message(bytes32 intentHash,uint256 nonce,uint256 gasPrice)"))
	// RevocationTypeHash tags revocation authorisations.
	RevocationTypeHash = crypto.Keccak256Hash([]byte("Revocation(bytes32 messageHash,uint256 nonce)"))
)

// Channel identifies a bridge channel. Gateway is always the origin-ledger
// endpoint and CoGateway the auxiliary-ledger endpoint, so both sides derive
// identical digests.
type Channel struct {
	Gateway   common.Address
	CoGateway common.Address
}

// StakeIntent carries the fields folded into a stake digest.
type StakeIntent struct {
	Amount      *big.Int
	Beneficiary common.Address
	Staker      common.Address
	Nonce       uint64
	GasPrice    *big.Int
	GasLimit    *big.Int
	ValueToken  common.Address
}

// RedeemIntent carries the fields folded into a redemption digest.
type RedeemIntent struct {
	Amount       *big.Int
	Beneficiary  common.Address
	Redeemer     common.Address
	Nonce        uint64
	GasPrice     *big.Int
	GasLimit     *big.Int
	UtilityToken common.Address
}

// LinkIntent carries the fields folded into the gateway link digest.
type LinkIntent struct {
	Bounty        *big.Int
	TokenName     string
	TokenSymbol   string
	TokenDecimals uint8
	Nonce         uint64
	ValueToken    common.Address
}

// amountWord encodes v as one 32-byte word. Wider values are reduced mod
// 2^256, so callers reject them before hashing.
func amountWord(v *big.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	return math.U256Bytes(new(big.Int).Set(v))
}

func uintWord(v uint64) []byte {
	return amountWord(new(big.Int).SetUint64(v))
}

func addressWord(addr common.Address) []byte {
	return common.LeftPadBytes(addr.Bytes(), 32)
}

func stringWord(s string) []byte {
	return crypto.Keccak256([]byte(s))
}

// StakeIntentHash returns the digest of a stake intent on the given channel.
func StakeIntentHash(ch Channel, in StakeIntent) common.Hash {
	return crypto.Keccak256Hash(
		StakeIntentTypeHash.Bytes(),
		addressWord(ch.Gateway),
		addressWord(ch.CoGateway),
		amountWord(in.Amount),
		addressWord(in.Beneficiary),
		addressWord(in.Staker),
		uintWord(in.Nonce),
		amountWord(in.GasPrice),
		amountWord(in.GasLimit),
		addressWord(in.ValueToken),
	)
}

// RedeemIntentHash returns the digest of a redemption intent on the given
// channel.
func RedeemIntentHash(ch Channel, in RedeemIntent) common.Hash {
	return crypto.Keccak256Hash(
		RedeemIntentTypeHash.Bytes(),
		addressWord(ch.Gateway),
		addressWord(ch.CoGateway),
		amountWord(in.Amount),
		addressWord(in.Beneficiary),
		addressWord(in.Redeemer),
		uintWord(in.Nonce),
		amountWord(in.GasPrice),
		amountWord(in.GasLimit),
		addressWord(in.UtilityToken),
	)
}

// LinkIntentHash returns the digest of the gateway link intent.
func LinkIntentHash(ch Channel, in LinkIntent) common.Hash {
	return crypto.Keccak256Hash(
		LinkIntentTypeHash.Bytes(),
		addressWord(ch.Gateway),
		addressWord(ch.CoGateway),
		amountWord(in.Bounty),
		stringWord(in.TokenName),
		stringWord(in.TokenSymbol),
		uintWord(uint64(in.TokenDecimals)),
		uintWord(in.Nonce),
		addressWord(in.ValueToken),
	)
}

// MessageHash folds the nonce and gas price into an intent digest, giving the
// identity under which the message is tracked in both message boxes.
func MessageHash(intentHash common.Hash, nonce uint64, gasPrice *big.Int) common.Hash {
	return crypto.Keccak256Hash(
		MessageTypeHash.Bytes(),
		intentHash.Bytes(),
		uintWord(nonce),
		amountWord(gasPrice),
	)
}

// RevocationHash is the digest an account signs to revoke its message.
func RevocationHash(messageHash common.Hash, nonce uint64) common.Hash {
	return crypto.Keccak256Hash(
		RevocationTypeHash.Bytes(),
		messageHash.Bytes(),
		uintWord(nonce),
	)
}

// HashLock commits to an unlock secret.
func HashLock(secret []byte) common.Hash {
	return crypto.Keccak256Hash(secret)
}
