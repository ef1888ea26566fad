package decode

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"swarm-indexer/internal/types"
)

var (
	testPostageAddr = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	testOwnerAddr   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	testBatchID     = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111")
)

func packUnindexed(t *testing.T, spec eventSpec, values ...any) []byte {
	t.Helper()
	data, err := spec.unindexed.PackValues(values)
	require.NoError(t, err)
	return data
}

func TestDecodeBatchCreated(t *testing.T) {
	data := packUnindexed(t, sigBatchCreated,
		big.NewInt(1_000_000), big.NewInt(900_000), uint8(20), uint8(16), true)

	log := RawLog{
		Address: testPostageAddr,
		Topics: []common.Hash{
			sigBatchCreated.event.ID,
			testBatchID,
			common.BytesToHash(testOwnerAddr.Bytes()),
		},
		Data:        data,
		BlockNumber: 10_050,
		TxHash:      common.HexToHash("0xdead"),
		LogIndex:    3,
	}
	coord := Coordinates{
		BlockTimestamp:  time.Unix(1_700_000_000, 0),
		ContractFamily:  types.FamilyPostageStamp,
		ExpectedAddress: types.FromCommon(testPostageAddr),
	}

	ev, mismatch, err := DecodeStamp(log, coord)
	require.NoError(t, err)
	require.Nil(t, mismatch)
	require.NotNil(t, ev)
	require.Equal(t, "BatchCreated", ev.EventKind)
	require.NotNil(t, ev.Owner)
	require.Equal(t, types.FromCommon(testOwnerAddr), *ev.Owner)
	require.NotNil(t, ev.Depth)
	require.Equal(t, uint8(20), *ev.Depth)
	require.NotNil(t, ev.NormalisedBalance)
	require.Equal(t, "900000", ev.NormalisedBalance.String())
	require.Nil(t, ev.Payer, "PostageStamp family never carries payer")
}

func TestDecodeAttributionMismatch(t *testing.T) {
	data := packUnindexed(t, sigBatchCreated, big.NewInt(1), big.NewInt(1), uint8(1), uint8(1), false)
	log := RawLog{
		Address: common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc"),
		Topics: []common.Hash{
			sigBatchCreated.event.ID,
			testBatchID,
			common.BytesToHash(testOwnerAddr.Bytes()),
		},
		Data: data,
	}
	coord := Coordinates{
		ContractFamily:  types.FamilyPostageStamp,
		ExpectedAddress: types.FromCommon(testPostageAddr),
	}
	ev, mismatch, err := DecodeStamp(log, coord)
	require.NoError(t, err)
	require.Nil(t, ev)
	require.NotNil(t, mismatch)
}

func TestDecodeUnknownTopicYieldsNoEvent(t *testing.T) {
	log := RawLog{
		Address: testPostageAddr,
		Topics:  []common.Hash{common.HexToHash("0xdeadbeef")},
	}
	coord := Coordinates{ContractFamily: types.FamilyPostageStamp, ExpectedAddress: types.FromCommon(testPostageAddr)}
	ev, mismatch, err := DecodeStamp(log, coord)
	require.NoError(t, err)
	require.Nil(t, mismatch)
	require.Nil(t, ev)
}

func TestDecodeWinnerSelected(t *testing.T) {
	redistAddr := common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
	overlay := common.HexToHash("0x2222222222222222222222222222222222222222222222222222222222222")
	hash := common.HexToHash("0x3333333333333333333333333333333333333333333333333333333333333")

	reveal := struct {
		Owner        common.Address
		Overlay      [32]byte
		Stake        *big.Int
		StakeDensity *big.Int
		Hash         [32]byte
		Depth        uint8
	}{
		Owner:        testOwnerAddr,
		Overlay:      overlay,
		Stake:        big.NewInt(5_000),
		StakeDensity: big.NewInt(42),
		Hash:         hash,
		Depth:        18,
	}

	data, err := sigWinnerSelected.unindexed.PackValues([]any{reveal})
	require.NoError(t, err)

	log := RawLog{
		Address:     redistAddr,
		Topics:      []common.Hash{sigWinnerSelected.event.ID},
		Data:        data,
		BlockNumber: 41_105_200,
		TxHash:      common.HexToHash("0xbeef"),
	}
	coord := Coordinates{ContractFamily: types.FamilyRedistribution, ExpectedAddress: types.FromCommon(redistAddr)}

	ev, mismatch, derr := DecodeIncentives(log, coord)
	require.NoError(t, derr)
	require.Nil(t, mismatch)
	require.NotNil(t, ev)
	require.Equal(t, "WinnerSelected", ev.EventKind)
	require.NotNil(t, ev.WinnerOwner)
	require.Equal(t, types.FromCommon(testOwnerAddr), *ev.WinnerOwner)
	require.NotNil(t, ev.WinnerDepth)
	require.Equal(t, uint8(18), *ev.WinnerDepth)
	require.NotNil(t, ev.WinnerStake)
	require.Equal(t, "5000", ev.WinnerStake.String())
	require.NotNil(t, ev.Phase)
	require.NotNil(t, ev.RoundNumber)
}

func TestDecodePriceOracleHasNoPhase(t *testing.T) {
	oracleAddr := common.HexToAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
	data := packUnindexed(t, sigOraclePriceUpdate, big.NewInt(24_000))
	log := RawLog{
		Address:     oracleAddr,
		Topics:      []common.Hash{sigOraclePriceUpdate.event.ID},
		Data:        data,
		BlockNumber: 100,
		TxHash:      common.HexToHash("0xf00d"),
	}
	coord := Coordinates{ContractFamily: types.FamilyPriceOracle, ExpectedAddress: types.FromCommon(oracleAddr)}
	ev, mismatch, err := DecodeIncentives(log, coord)
	require.NoError(t, err)
	require.Nil(t, mismatch)
	require.NotNil(t, ev)
	require.Nil(t, ev.Phase, "PriceOracle events carry round_number only")
	require.NotNil(t, ev.RoundNumber)
}
