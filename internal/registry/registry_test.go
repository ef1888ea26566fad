package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"swarm-indexer/internal/types"
)

func addr(t *testing.T, s string) types.Address {
	t.Helper()
	a, ok := types.NewAddress(s)
	require.True(t, ok, "invalid address %q", s)
	return a
}

func TestRegistryWindowing(t *testing.T) {
	end := types.BlockNumber(41_105_199)
	contracts := []Contract{
		{Name: "redistribution-v0.9.3", Family: types.FamilyRedistribution, Address: addr(t, "0x1111111111111111111111111111111111111111"), Version: "v0.9.3", DeploymentBlock: 40_430_261, EndBlock: &end},
		{Name: "redistribution-v0.9.4", Family: types.FamilyRedistribution, Address: addr(t, "0x2222222222222222222222222222222222222222"), Version: "v0.9.4", DeploymentBlock: 41_105_199, Active: true},
	}
	reg, err := New(contracts)
	require.NoError(t, err)

	rng := types.Range{From: 41_105_195, To: 41_105_205}
	matches := reg.AllIntersecting(rng)
	require.Len(t, matches, 2)

	old, ok := reg.FindActiveAt(types.FamilyRedistribution, 41_105_198)
	require.True(t, ok)
	require.Equal(t, "redistribution-v0.9.3", old.Name)

	cur, ok := reg.FindActiveAt(types.FamilyRedistribution, 41_105_199)
	require.True(t, ok)
	require.Equal(t, "redistribution-v0.9.4", cur.Name)

	_, ok = reg.FindActiveAt(types.FamilyRedistribution, 40_000_000)
	require.False(t, ok)
}

func TestRegistryRejectsOverlap(t *testing.T) {
	end1 := types.BlockNumber(100)
	end2 := types.BlockNumber(200)
	_, err := New([]Contract{
		{Name: "a", Family: types.FamilyPriceOracle, Address: addr(t, "0x1111111111111111111111111111111111111111"), DeploymentBlock: 0, EndBlock: &end1},
		{Name: "b", Family: types.FamilyPriceOracle, Address: addr(t, "0x2222222222222222222222222222222222222222"), DeploymentBlock: 50, EndBlock: &end2, Active: true},
	})
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Issues, 1)
}

func TestRegistryRejectsMultipleActive(t *testing.T) {
	_, err := New([]Contract{
		{Name: "a", Family: types.FamilyStakeRegistry, Address: addr(t, "0x1111111111111111111111111111111111111111"), DeploymentBlock: 0, Active: true},
		{Name: "b", Family: types.FamilyStakeRegistry, Address: addr(t, "0x2222222222222222222222222222222222222222"), DeploymentBlock: 100, Active: true},
	})
	require.Error(t, err)
}

func TestRegistryRejectsAmbiguousInactiveNoEndBlock(t *testing.T) {
	_, err := New([]Contract{
		{Name: "a", Family: types.FamilyStakeRegistry, Address: addr(t, "0x1111111111111111111111111111111111111111"), DeploymentBlock: 0, Active: false},
	})
	require.Error(t, err)
}

func TestRegistryRejectsDuplicateAddress(t *testing.T) {
	a := addr(t, "0x1111111111111111111111111111111111111111")
	_, err := New([]Contract{
		{Name: "a", Family: types.FamilyStakeRegistry, Address: a, DeploymentBlock: 0, Active: true},
		{Name: "b", Family: types.FamilyPriceOracle, Address: a, DeploymentBlock: 0, Active: true},
	})
	require.Error(t, err)
}
