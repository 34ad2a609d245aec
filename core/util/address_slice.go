package util

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressesToStrings converts a slice of addresses to their checksummed hex representation.
func AddressesToStrings(addrs []common.Address) []string {
	strs := make([]string, len(addrs))
	for i, a := range addrs {
		strs[i] = a.Hex()
	}
	return strs
}

// HashesToStrings converts a slice of hashes to their 0x-prefixed hex representation.
func HashesToStrings(hashes []common.Hash) []string {
	strs := make([]string, len(hashes))
	for i, h := range hashes {
		strs[i] = h.Hex()
	}
	return strs
}

// LabelAddress derives a deterministic address from a human label, so scenarios
// and tests can name accounts ("alice", "funder") instead of spelling out hex.
func LabelAddress(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("launchpad:" + label)))
}

// ResolveAddress accepts either a 0x-prefixed hex address or a label
func ResolveAddress(value string) common.Address {
	value = strings.TrimSpace(value)
	if common.IsHexAddress(value) && strings.HasPrefix(value, "0x") {
		return common.HexToAddress(value)
	}
	return LabelAddress(value)
}
