package codec_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/codec"
	"github.com/cuemby/burrow/pkg/schema"
)

func testProps() []schema.Property {
	return []schema.Property{
		{Index: 0, Name: "title", Kind: schema.KindString},
		{Index: 1, Name: "score", Kind: schema.KindInt32},
		{Index: 2, Name: "tags", Kind: schema.KindStringList},
		{Index: 3, Name: "active", Kind: schema.KindBool},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	props := testProps()
	values := map[uint16]codec.Value{
		0: codec.StringValue("Dune"),
		1: codec.Int32Value(42),
		2: codec.StringListValue([]string{"sci-fi", "desert"}),
		3: codec.BoolValue(true),
	}

	buf, err := codec.Encode(nil, props, values)
	require.NoError(t, err)

	coll := &schema.Collection{Properties: props}
	r := codec.NewReader(1, buf, coll)

	title, ok := r.GetString(0)
	require.True(t, ok)
	require.Equal(t, "Dune", title)

	score, ok := r.GetInt32(1)
	require.True(t, ok)
	require.Equal(t, int32(42), score)

	list, ok := r.GetList(2)
	require.True(t, ok)
	require.Equal(t, []string{"sci-fi", "desert"}, list.Strings())

	active, ok := r.GetBool(3)
	require.True(t, ok)
	require.True(t, active)
}

func TestEncodeDecodeNulls(t *testing.T) {
	props := testProps()
	values := map[uint16]codec.Value{
		1: codec.NullValue(schema.KindInt32),
	}

	buf, err := codec.Encode(nil, props, values)
	require.NoError(t, err)

	coll := &schema.Collection{Properties: props}
	r := codec.NewReader(1, buf, coll)

	_, ok := r.GetString(0)
	require.False(t, ok, "unset property should read as null")

	_, ok = r.GetInt32(1)
	require.False(t, ok, "explicit null should read as null")
}

func TestKindMismatchFails(t *testing.T) {
	props := testProps()
	values := map[uint16]codec.Value{
		1: codec.StringValue("not an int"),
	}
	_, err := codec.Encode(nil, props, values)
	require.Error(t, err)
}
