package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAddress(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return addr.Hex()
}

func formatBool(v bool) string { return strconv.FormatBool(v) }

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

func formatSecret(secret []byte) string {
	if len(secret) == 0 {
		return ""
	}
	return "0x" + hex.EncodeToString(secret)
}

func setIfNotEmpty(attrs map[string]string, key, value string) {
	if value != "" {
		attrs[key] = value
	}
}
