package decode

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"swarm-indexer/internal/types"
)

// DecodeIncentives decodes a log emitted by a PriceOracle, StakeRegistry, or
// Redistribution contract. Return semantics match DecodeStamp.
func DecodeIncentives(log RawLog, coord Coordinates) (*IncentivesEvent, *AttributionMismatch, error) {
	if types.FromCommon(log.Address) != coord.ExpectedAddress {
		return nil, &AttributionMismatch{
			Family:   coord.ContractFamily,
			Expected: coord.ExpectedAddress,
			Actual:   types.FromCommon(log.Address),
			TxHash:   log.TxHash.Hex(),
			LogIndex: log.LogIndex,
		}, nil
	}
	if len(log.Topics) == 0 {
		return nil, nil, nil
	}

	var topics map[common.Hash]eventSpec
	switch coord.ContractFamily {
	case types.FamilyPriceOracle:
		topics = priceOracleTopics
	case types.FamilyStakeRegistry:
		topics = stakeRegistryTopics
	case types.FamilyRedistribution:
		topics = redistributionTopics
	default:
		return nil, nil, &ParseFailure{Family: coord.ContractFamily, TxHash: log.TxHash.Hex(), LogIndex: log.LogIndex, Reason: "not a storage-incentives family"}
	}

	spec, ok := topics[log.Topics[0]]
	if !ok {
		return nil, nil, nil
	}

	indexed, err := decodeIndexed(spec.indexed, log.Topics[1:])
	if err != nil {
		return nil, nil, &ParseFailure{Family: coord.ContractFamily, TxHash: log.TxHash.Hex(), LogIndex: log.LogIndex, Reason: err.Error()}
	}
	unindexed, err := decodeUnindexed(spec.unindexed, log.Data)
	if err != nil {
		return nil, nil, &ParseFailure{Family: coord.ContractFamily, TxHash: log.TxHash.Hex(), LogIndex: log.LogIndex, Reason: err.Error()}
	}

	ev := &IncentivesEvent{
		EventKind:       spec.event.Name,
		BlockNumber:     log.BlockNumber,
		BlockTimestamp:  coord.BlockTimestamp,
		TxHash:          log.TxHash.Hex(),
		LogIndex:        log.LogIndex,
		ContractFamily:  coord.ContractFamily,
		ContractAddress: types.FromCommon(log.Address),
	}

	// Derived fields (§3, §4.3): every incentives event gets round_number;
	// only Redistribution events also get phase. PriceOracle events carry
	// round_number alone.
	round := types.RoundOf(types.BlockNumber(log.BlockNumber))
	roundU64 := uint64(round)
	ev.RoundNumber = &roundU64
	if coord.ContractFamily == types.FamilyRedistribution {
		phase := types.PhaseOf(types.BlockNumber(log.BlockNumber)).String()
		ev.Phase = &phase
	}

	switch spec.event.Name {
	case "PriceUpdate": // PriceOracle
		if price, ok := bigIntOf(unindexed, "price"); ok {
			v := types.FromBigInt(price)
			ev.Price = &v
		}

	case "StakeUpdated":
		if overlay, ok := bytes32Of(indexed, "overlay"); ok {
			o := overlay.Hex()
			ev.Overlay = &o
		}
		if owner, ok := addressOf(indexed, "owner"); ok {
			a := types.FromCommon(owner)
			ev.Owner = &a
		}
		if stake, ok := bigIntOf(unindexed, "stake"); ok {
			v := types.FromBigInt(stake)
			ev.Stake = &v
		}

	case "StakeSlashed", "StakeWithdrawn":
		if overlay, ok := bytes32Of(indexed, "overlay"); ok {
			o := overlay.Hex()
			ev.Overlay = &o
		}
		if amount, ok := bigIntOf(unindexed, "amount"); ok {
			v := types.FromBigInt(amount)
			ev.Amount = &v
		}

	case "Committed":
		if overlay, ok := bytes32Of(indexed, "overlay"); ok {
			o := overlay.Hex()
			ev.Overlay = &o
		}
		if hash, ok := bytes32Of(unindexed, "obfuscatedHash"); ok {
			h := hash.Hex()
			ev.ObfuscatedHash = &h
		}

	case "Revealed":
		if overlay, ok := bytes32Of(indexed, "overlay"); ok {
			o := overlay.Hex()
			ev.Overlay = &o
		}
		if stake, ok := bigIntOf(unindexed, "stake"); ok {
			v := types.FromBigInt(stake)
			ev.Stake = &v
		}
		if depth, ok := uint8Of(unindexed, "depth"); ok {
			ev.Depth = &depth
		}
		if hash, ok := bytes32Of(unindexed, "hash"); ok {
			h := hash.Hex()
			ev.Hash = &h
		}

	case "WinnerSelected":
		// Nested struct handling (§4.3, §9): the Reveal tuple is
		// destructured exactly once, here, and projected to winner_*
		// columns. Nothing downstream ever sees the tuple again.
		winner, ok := unindexed["winner"]
		if !ok {
			return nil, nil, &ParseFailure{Family: coord.ContractFamily, TxHash: log.TxHash.Hex(), LogIndex: log.LogIndex, Reason: "missing winner tuple"}
		}
		if v, ok := tupleField(winner, "owner"); ok {
			if a, ok := v.(common.Address); ok {
				addr := types.FromCommon(a)
				ev.WinnerOwner = &addr
			}
		}
		if v, ok := tupleField(winner, "overlay"); ok {
			if h, ok := v.([32]byte); ok {
				s := common.Hash(h).Hex()
				ev.WinnerOverlay = &s
			}
		}
		if v, ok := tupleField(winner, "stake"); ok {
			if amt, ok := asBigUnsigned(v); ok {
				ev.WinnerStake = &amt
			}
		}
		if v, ok := tupleField(winner, "stakeDensity"); ok {
			if amt, ok := asBigUnsigned(v); ok {
				ev.WinnerStakeDensity = &amt
			}
		}
		if v, ok := tupleField(winner, "hash"); ok {
			if h, ok := v.([32]byte); ok {
				s := common.Hash(h).Hex()
				ev.WinnerHash = &s
			}
		}
		if v, ok := tupleField(winner, "depth"); ok {
			if d, ok := v.(uint8); ok {
				ev.WinnerDepth = &d
			}
		}

	case "Claimed":
		if truth, ok := bytes32Of(unindexed, "truth"); ok {
			t := truth.Hex()
			ev.Truth = &t
		}
		if anchor, ok := bytes32Of(unindexed, "anchor"); ok {
			a := anchor.Hex()
			ev.Anchor = &a
		}
		if redundancy, ok := uint8Of(unindexed, "redundancy"); ok {
			ev.Redundancy = &redundancy
		}
		if chunkCount, ok := bigIntOf(unindexed, "chunkCount"); ok {
			u := chunkCount.Uint64()
			ev.ChunkCount = &u
		}

	case "RoundCounts":
		if commitCount, ok := bigIntOf(unindexed, "commitCount"); ok {
			u := commitCount.Uint64()
			ev.CommitCount = &u
		}
		if revealCount, ok := bigIntOf(unindexed, "revealCount"); ok {
			u := revealCount.Uint64()
			ev.RevealCount = &u
		}

	default:
		return nil, nil, &ParseFailure{Family: coord.ContractFamily, TxHash: log.TxHash.Hex(), LogIndex: log.LogIndex, Reason: "unhandled event kind " + spec.event.Name}
	}

	return ev, nil, nil
}

func asBigUnsigned(v any) (types.BigUnsigned, bool) {
	b, ok := v.(*big.Int)
	if !ok {
		return types.BigUnsigned{}, false
	}
	return types.FromBigInt(b), true
}
