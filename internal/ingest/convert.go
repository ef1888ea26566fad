package ingest

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"swarm-indexer/internal/types"
)

// commonAddressPtr converts an optional go-ethereum address (nil for
// contract-creation transactions, §6) into the optional internal form.
func commonAddressPtr(a *common.Address) *types.Address {
	if a == nil {
		return nil
	}
	addr := types.FromCommon(*a)
	return &addr
}

// bigFromGo converts an optional *big.Int into an optional types.BigUnsigned.
func bigFromGo(v *big.Int) *types.BigUnsigned {
	if v == nil {
		return nil
	}
	b := types.FromBigInt(v)
	return &b
}
