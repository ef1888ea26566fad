package types

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address is a 20-byte account identifier rendered as lowercase hex prefixed
// "0x". Equality is exact string equality after normalisation, so Address
// values are safe to use as map keys directly.
type Address string

// NewAddress normalises raw (any of go-ethereum's accepted hex forms) into
// the canonical lowercase-hex Address. It returns false if raw is not a
// well-formed 20-byte hex address.
func NewAddress(raw string) (Address, bool) {
	if !common.IsHexAddress(raw) {
		return "", false
	}
	return Address(strings.ToLower(common.HexToAddress(raw).Hex())), true
}

// FromCommon converts a go-ethereum common.Address into our canonical form.
func FromCommon(a common.Address) Address {
	return Address(strings.ToLower(a.Hex()))
}

// Common converts back into go-ethereum's representation, e.g. to build
// FilterQuery values for the chain client.
func (a Address) Common() common.Address {
	return common.HexToAddress(string(a))
}

// Valid reports whether a is a well-formed canonical address.
func (a Address) Valid() bool {
	if len(a) != 42 || !strings.HasPrefix(string(a), "0x") {
		return false
	}
	return string(a) == strings.ToLower(string(a))
}

func (a Address) String() string { return string(a) }
