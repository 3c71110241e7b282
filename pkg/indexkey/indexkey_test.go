package indexkey_test

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/indexkey"
)

func TestInt32Order(t *testing.T) {
	vals := []int32{math.MinInt32, -100, -1, 0, 1, 100, math.MaxInt32}
	for i := 1; i < len(vals); i++ {
		a := indexkey.Int32(vals[i-1], false)
		b := indexkey.Int32(vals[i], false)
		require.True(t, bytes.Compare(a, b) < 0, "%d should sort before %d", vals[i-1], vals[i])
	}
}

func TestInt32NullSortsFirst(t *testing.T) {
	null := indexkey.Int32(0, true)
	val := indexkey.Int32(math.MinInt32, false)
	require.True(t, bytes.Compare(null, val) < 0)
}

func TestFloat64OrderWithNaN(t *testing.T) {
	neg := indexkey.Float64(math.Inf(-1), false)
	zero := indexkey.Float64(0, false)
	pos := indexkey.Float64(math.Inf(1), false)
	nan := indexkey.Float64(math.NaN(), false)

	require.True(t, bytes.Compare(neg, zero) < 0)
	require.True(t, bytes.Compare(zero, pos) < 0)
	require.True(t, bytes.Compare(pos, nan) < 0, "NaN must sort after +Inf")
}

func TestStringPrefixOrder(t *testing.T) {
	a := indexkey.String("sci", false, true)
	b := indexkey.String("sci-fi", false, true)
	require.True(t, bytes.Compare(a, b) < 0, "a true prefix must sort before the longer string")
}

func TestStringCaseInsensitive(t *testing.T) {
	a := indexkey.String("Dune", false, false)
	b := indexkey.String("dune", false, false)
	require.Equal(t, a, b)
}

func TestBoolNullFoldsWithFalse(t *testing.T) {
	require.Equal(t, indexkey.Bool(false, false), indexkey.Bool(false, true))
}
