package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBigUnsignedArithmetic(t *testing.T) {
	a, err := ParseBigUnsigned("10000000000")
	require.NoError(t, err)
	b := FromUint64(3)
	require.Equal(t, "10000000003", a.Add(b).String())
	require.Equal(t, "9999999997", a.Sub(b).String())
	require.True(t, Zero().Sub(b).IsZero(), "sub never goes negative")
}

func TestBigUnsignedDivFloor(t *testing.T) {
	balance := FromUint64(10_000_000_000)
	denom := FromUint64(25_165_824_000) // chunks(2^20) * price(24000)
	ttl, ok := balance.DivFloor(denom)
	require.True(t, ok)
	require.Equal(t, "0", ttl.String())

	balance2, err := ParseBigUnsigned("10000000000000")
	require.NoError(t, err)
	ttl2, ok := balance2.DivFloor(denom)
	require.True(t, ok)
	require.Equal(t, "397", ttl2.String())
}

func TestBigUnsignedRejectsNegative(t *testing.T) {
	_, err := ParseBigUnsigned("-5")
	require.Error(t, err)
}

func TestBigUnsignedScanValue(t *testing.T) {
	var b BigUnsigned
	require.NoError(t, b.Scan("42"))
	require.Equal(t, "42", b.String())
	require.NoError(t, b.Scan(nil))
	require.True(t, b.IsZero())
}

func TestBigUnsignedJSONRoundTrip(t *testing.T) {
	original, err := ParseBigUnsigned("90071992547409910000")
	require.NoError(t, err)

	data, err := json.Marshal(original)
	require.NoError(t, err)
	require.Equal(t, `"90071992547409910000"`, string(data))

	var decoded BigUnsigned
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, original.String(), decoded.String())
}
