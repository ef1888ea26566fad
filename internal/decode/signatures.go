package decode

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// eventSpec binds together the abi.Event (whose ID is topics[0]) with the
// split between indexed arguments (found in topics[1:]) and non-indexed
// arguments (packed in Data), matching how go-ethereum's ABI unpacker
// expects them.
type eventSpec struct {
	event     abi.Event
	indexed   abi.Arguments
	unindexed abi.Arguments
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic("decode: bad abi type " + t + ": " + err.Error())
	}
	return typ
}

func mustTupleType(name string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType("tuple", name, components)
	if err != nil {
		panic("decode: bad tuple type " + name + ": " + err.Error())
	}
	return typ
}

func arg(name, typeName string, indexed bool) abi.Argument {
	return abi.Argument{Name: name, Type: mustType(typeName), Indexed: indexed}
}

func newEventSpec(name string, args ...abi.Argument) eventSpec {
	var allArgs abi.Arguments
	var indexed, unindexed abi.Arguments
	for _, a := range args {
		allArgs = append(allArgs, a)
		if a.Indexed {
			indexed = append(indexed, a)
		} else {
			unindexed = append(unindexed, a)
		}
	}
	ev := abi.NewEvent(name, name, false, allArgs)
	return eventSpec{event: ev, indexed: indexed, unindexed: unindexed}
}

// --- PostageStamp / StampsRegistry family -----------------------------------

var (
	sigBatchCreated = newEventSpec("BatchCreated",
		arg("batchId", "bytes32", true),
		arg("totalAmount", "uint256", false),
		arg("normalisedBalance", "uint256", false),
		arg("owner", "address", true),
		arg("depth", "uint8", false),
		arg("bucketDepth", "uint8", false),
		arg("immutable", "bool", false),
	)

	// StampsRegistry's BatchCreated additionally carries the payer (§3:
	// "payer is present only for StampsRegistry family events").
	sigBatchCreatedWithPayer = newEventSpec("BatchCreated",
		arg("batchId", "bytes32", true),
		arg("totalAmount", "uint256", false),
		arg("normalisedBalance", "uint256", false),
		arg("owner", "address", true),
		arg("payer", "address", false),
		arg("depth", "uint8", false),
		arg("bucketDepth", "uint8", false),
		arg("immutable", "bool", false),
	)

	sigBatchTopUp = newEventSpec("BatchTopUp",
		arg("batchId", "bytes32", true),
		arg("topupAmount", "uint256", false),
		arg("normalisedBalance", "uint256", false),
	)

	sigBatchDepthIncrease = newEventSpec("BatchDepthIncrease",
		arg("batchId", "bytes32", true),
		arg("newDepth", "uint8", false),
		arg("normalisedBalance", "uint256", false),
	)

	sigStampPriceUpdate = newEventSpec("PriceUpdate",
		arg("price", "uint256", false),
	)

	sigPotDistributed = newEventSpec("PotDistributed",
		arg("potRecipient", "address", true),
		arg("potTotalAmount", "uint256", false),
	)

	sigBatchCopied = newEventSpec("BatchCopied",
		arg("batchId", "bytes32", true),
		arg("copyBatchId", "bytes32", true),
		arg("copyIndex", "uint256", false),
	)
)

// --- PriceOracle family ------------------------------------------------------

var (
	sigOraclePriceUpdate = newEventSpec("PriceUpdate",
		arg("price", "uint256", false),
	)
)

// --- StakeRegistry family ----------------------------------------------------

var (
	sigStakeUpdated = newEventSpec("StakeUpdated",
		arg("overlay", "bytes32", true),
		arg("owner", "address", true),
		arg("stake", "uint256", false),
	)

	sigStakeSlashed = newEventSpec("StakeSlashed",
		arg("overlay", "bytes32", true),
		arg("amount", "uint256", false),
	)

	sigStakeWithdrawn = newEventSpec("StakeWithdrawn",
		arg("overlay", "bytes32", true),
		arg("amount", "uint256", false),
	)
)

// --- Redistribution family ---------------------------------------------------

var revealTupleComponents = []abi.ArgumentMarshaling{
	{Name: "owner", Type: "address"},
	{Name: "overlay", Type: "bytes32"},
	{Name: "stake", Type: "uint256"},
	{Name: "stakeDensity", Type: "uint256"},
	{Name: "hash", Type: "bytes32"},
	{Name: "depth", Type: "uint8"},
}

var (
	sigCommitted = newEventSpec("Committed",
		arg("round", "uint256", true),
		arg("overlay", "bytes32", true),
		arg("obfuscatedHash", "bytes32", false),
	)

	sigRevealed = newEventSpec("Revealed",
		arg("round", "uint256", true),
		arg("overlay", "bytes32", true),
		arg("stake", "uint256", false),
		arg("depth", "uint8", false),
		arg("hash", "bytes32", false),
	)

	sigWinnerSelected = newEventSpec("WinnerSelected",
		abi.Argument{Name: "winner", Type: mustTupleType("Reveal", revealTupleComponents), Indexed: false},
	)

	sigClaimed = newEventSpec("Claimed",
		arg("round", "uint256", true),
		arg("truth", "bytes32", false),
		arg("anchor", "bytes32", false),
		arg("redundancy", "uint8", false),
		arg("chunkCount", "uint256", false),
	)

	sigRoundCounts = newEventSpec("RoundCounts",
		arg("round", "uint256", true),
		arg("commitCount", "uint256", false),
		arg("revealCount", "uint256", false),
	)
)

// postageStampTopics and stampsRegistryTopics map topic0 -> decoder for each
// family's stamp events. They share most shapes but differ on BatchCreated
// (payer), BatchCopied (StampsRegistry only), and PriceUpdate/PotDistributed
// (PostageStamp only).
var postageStampTopics = map[common.Hash]eventSpec{
	sigBatchCreated.event.ID:       sigBatchCreated,
	sigBatchTopUp.event.ID:         sigBatchTopUp,
	sigBatchDepthIncrease.event.ID: sigBatchDepthIncrease,
	sigStampPriceUpdate.event.ID:   sigStampPriceUpdate,
	sigPotDistributed.event.ID:     sigPotDistributed,
}

var stampsRegistryTopics = map[common.Hash]eventSpec{
	sigBatchCreatedWithPayer.event.ID: sigBatchCreatedWithPayer,
	sigBatchTopUp.event.ID:            sigBatchTopUp,
	sigBatchDepthIncrease.event.ID:    sigBatchDepthIncrease,
	sigBatchCopied.event.ID:           sigBatchCopied,
}

var priceOracleTopics = map[common.Hash]eventSpec{
	sigOraclePriceUpdate.event.ID: sigOraclePriceUpdate,
}

var stakeRegistryTopics = map[common.Hash]eventSpec{
	sigStakeUpdated.event.ID:   sigStakeUpdated,
	sigStakeSlashed.event.ID:   sigStakeSlashed,
	sigStakeWithdrawn.event.ID: sigStakeWithdrawn,
}

var redistributionTopics = map[common.Hash]eventSpec{
	sigCommitted.event.ID:      sigCommitted,
	sigRevealed.event.ID:       sigRevealed,
	sigWinnerSelected.event.ID: sigWinnerSelected,
	sigClaimed.event.ID:        sigClaimed,
	sigRoundCounts.event.ID:    sigRoundCounts,
}
