package decode

import (
	"github.com/ethereum/go-ethereum/common"

	"swarm-indexer/internal/types"
)

// DecodeStamp decodes a log emitted by a PostageStamp or StampsRegistry
// contract. It returns (nil, nil, nil) for an unrecognised topic (§4.3:
// "the log belongs to an unrelated event kind"), (nil, nil, err) for a
// malformed payload, and (nil, mismatch, nil) when the log's emitting
// address disagrees with the caller's expectation.
func DecodeStamp(log RawLog, coord Coordinates) (*StampEvent, *AttributionMismatch, error) {
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
	case types.FamilyPostageStamp:
		topics = postageStampTopics
	case types.FamilyStampsRegistry:
		topics = stampsRegistryTopics
	default:
		return nil, nil, &ParseFailure{Family: coord.ContractFamily, TxHash: log.TxHash.Hex(), LogIndex: log.LogIndex, Reason: "not a stamp family"}
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

	ev := &StampEvent{
		EventKind:       spec.event.Name,
		BlockNumber:     log.BlockNumber,
		BlockTimestamp:  coord.BlockTimestamp,
		TxHash:          log.TxHash.Hex(),
		LogIndex:        log.LogIndex,
		ContractFamily:  coord.ContractFamily,
		ContractAddress: types.FromCommon(log.Address),
		DataBlob:        log.Data,
	}

	switch spec.event.Name {
	case "BatchCreated":
		id, _ := bytes32Of(indexed, "batchId")
		owner, _ := addressOf(indexed, "owner")
		batchID := id.Hex()
		ownerAddr := types.FromCommon(owner)
		ev.BatchID = &batchID
		ev.Owner = &ownerAddr
		if total, ok := bigIntOf(unindexed, "totalAmount"); ok {
			v := types.FromBigInt(total)
			ev.TotalAmount = &v
		}
		if bal, ok := bigIntOf(unindexed, "normalisedBalance"); ok {
			v := types.FromBigInt(bal)
			ev.NormalisedBalance = &v
		}
		if depth, ok := uint8Of(unindexed, "depth"); ok {
			ev.Depth = &depth
		}
		if bd, ok := uint8Of(unindexed, "bucketDepth"); ok {
			ev.BucketDepth = &bd
		}
		if im, ok := boolOf(unindexed, "immutable"); ok {
			ev.Immutable = &im
		}
		if payer, ok := addressOf(unindexed, "payer"); ok {
			p := types.FromCommon(payer)
			ev.Payer = &p
		}

	case "BatchTopUp":
		id, _ := bytes32Of(indexed, "batchId")
		batchID := id.Hex()
		ev.BatchID = &batchID
		if bal, ok := bigIntOf(unindexed, "normalisedBalance"); ok {
			v := types.FromBigInt(bal)
			ev.NormalisedBalance = &v
		}

	case "BatchDepthIncrease":
		id, _ := bytes32Of(indexed, "batchId")
		batchID := id.Hex()
		ev.BatchID = &batchID
		if depth, ok := uint8Of(unindexed, "newDepth"); ok {
			ev.Depth = &depth
		}
		if bal, ok := bigIntOf(unindexed, "normalisedBalance"); ok {
			v := types.FromBigInt(bal)
			ev.NormalisedBalance = &v
		}

	case "PriceUpdate":
		// Administrative event: no batch_id (§3 "some administrative
		// events have none").
		if price, ok := bigIntOf(unindexed, "price"); ok {
			v := types.FromBigInt(price)
			ev.Price = &v
		}

	case "PotDistributed":
		if recipient, ok := addressOf(indexed, "potRecipient"); ok {
			r := types.FromCommon(recipient)
			ev.PotRecipient = &r
		}
		if amount, ok := bigIntOf(unindexed, "potTotalAmount"); ok {
			v := types.FromBigInt(amount)
			ev.PotTotalAmount = &v
		}

	case "BatchCopied":
		id, _ := bytes32Of(indexed, "batchId")
		batchID := id.Hex()
		ev.BatchID = &batchID
		if copyID, ok := bytes32Of(indexed, "copyBatchId"); ok {
			c := copyID.Hex()
			ev.CopyBatchID = &c
		}
		if idx, ok := bigIntOf(unindexed, "copyIndex"); ok {
			u := idx.Uint64()
			ev.CopyIndex = &u
		}

	default:
		return nil, nil, &ParseFailure{Family: coord.ContractFamily, TxHash: log.TxHash.Hex(), LogIndex: log.LogIndex, Reason: "unhandled event kind " + spec.event.Name}
	}

	return ev, nil, nil
}
