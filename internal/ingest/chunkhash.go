package ingest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"

	"swarm-indexer/internal/types"
)

// chunkHash computes the chunk cache's primary key (§3 "Chunk cache"):
// H(contract_address || from_block || to_block).
func chunkHash(contractAddress types.Address, from, to types.BlockNumber) string {
	h := sha256.New()
	h.Write([]byte(contractAddress))
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(from))
	binary.BigEndian.PutUint64(buf[8:16], uint64(to))
	h.Write(buf[:])
	return hex.EncodeToString(h.Sum(nil))
}

// commonHash parses a "0x"-prefixed hex transaction hash into go-ethereum's
// representation for chain-client calls.
func commonHash(s string) common.Hash {
	return common.HexToHash(s)
}
