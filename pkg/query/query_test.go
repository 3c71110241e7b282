package query_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/codec"
	"github.com/cuemby/burrow/pkg/indexkey"
	"github.com/cuemby/burrow/pkg/query"
	"github.com/cuemby/burrow/pkg/schema"
)

// memSource is a minimal in-memory Source used only to exercise the
// planner and executor against known data, without pulling in pkg/burrow
// or pkg/kvstore.
type memSource struct {
	coll *schema.Collection
	rows []query.Row
}

func (m *memSource) Collection() *schema.Collection { return m.coll }

type sliceIter struct {
	rows []query.Row
	pos  int
}

func (s *sliceIter) Next() (query.Row, bool, error) {
	if s.pos >= len(s.rows) {
		return query.Row{}, false, nil
	}
	r := s.rows[s.pos]
	s.pos++
	return r, true, nil
}
func (s *sliceIter) Close() {}

func (m *memSource) ScanPrimary(reverse bool) (query.Iterator, error) {
	rows := append([]query.Row(nil), m.rows...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	if reverse {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	return &sliceIter{rows: rows}, nil
}

func (m *memSource) ScanIndex(idx *schema.Index, reverse bool, low, high []byte) (query.Iterator, error) {
	comp := idx.Components[0]
	type keyed struct {
		key []byte
		row query.Row
	}
	var keyedRows []keyed
	for _, r := range m.rows {
		v, ok := r.Reader.GetInt32(comp.PropertyIndex())
		key := indexkey.Int32(v, !ok)
		if low != nil && string(key) < string(low) {
			continue
		}
		if high != nil && string(key) > string(high) {
			continue
		}
		keyedRows = append(keyedRows, keyed{key: key, row: r})
	}
	sort.Slice(keyedRows, func(i, j int) bool { return string(keyedRows[i].key) < string(keyedRows[j].key) })
	rows := make([]query.Row, len(keyedRows))
	for i, k := range keyedRows {
		rows[i] = k.row
	}
	if reverse {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	return &sliceIter{rows: rows}, nil
}

func buildFixture(t *testing.T) (*schema.Collection, []query.Row) {
	coll := &schema.Collection{
		Name: "books",
		Properties: []schema.Property{
			{Index: 0, Name: "title", Kind: schema.KindString},
			{Index: 1, Name: "year", Kind: schema.KindInt32},
		},
		Indexes: []schema.Index{
			{Name: "by_year", Components: []schema.IndexComponent{{Property: "year"}}},
		},
	}
	s, err := schema.New(*coll)
	require.NoError(t, err)
	c, _ := s.Collection("books")

	data := []struct {
		id    int64
		title string
		year  int32
	}{
		{1, "Dune", 1965},
		{2, "Foundation", 1951},
		{3, "Neuromancer", 1984},
	}
	var rows []query.Row
	for _, d := range data {
		buf, err := codec.Encode(nil, c.Properties, map[uint16]codec.Value{
			0: codec.StringValue(d.title),
			1: codec.Int32Value(d.year),
		})
		require.NoError(t, err)
		rows = append(rows, query.Row{ID: d.id, Reader: codec.NewReader(d.id, buf, c)})
	}
	return c, rows
}

func TestFilterEqualityUsesIndex(t *testing.T) {
	coll, rows := buildFixture(t)
	src := &memSource{coll: coll, rows: rows}

	q, err := query.NewBuilder(coll).Filter(query.Equal(1, codec.Int32Value(1984))).Build()
	require.NoError(t, err)

	cur, err := q.Cursor(src)
	require.NoError(t, err)
	require.Equal(t, 1, cur.Len())
	row, ok := cur.Next()
	require.True(t, ok)
	require.Equal(t, int64(3), row.ID)
}

func TestSortAndLimit(t *testing.T) {
	coll, rows := buildFixture(t)
	src := &memSource{coll: coll, rows: rows}

	q, err := query.NewBuilder(coll).SortBy(1, true, true).Limit(2).Build()
	require.NoError(t, err)

	cur, err := q.Cursor(src)
	require.NoError(t, err)
	require.Equal(t, 2, cur.Len())
	row, _ := cur.Next()
	require.Equal(t, int64(2), row.ID) // Foundation, 1951
}

func TestAggregateMinMaxAverage(t *testing.T) {
	coll, rows := buildFixture(t)
	src := &memSource{coll: coll, rows: rows}

	res, err := query.Aggregate(src, nil, query.AggMin, 1)
	require.NoError(t, err)
	require.False(t, res.ValueIsNull)
	require.Equal(t, int64(1951), res.MinInt)

	res, err = query.Aggregate(src, nil, query.AggMax, 1)
	require.NoError(t, err)
	require.False(t, res.ValueIsNull)
	require.Equal(t, int64(1984), res.MaxInt)

	res, err = query.Aggregate(src, nil, query.AggAverage, 1)
	require.NoError(t, err)
	require.False(t, res.AverageNull)
	require.InDelta(t, (1965.0+1951.0+1984.0)/3.0, res.Average, 0.001)

	res, err = query.Aggregate(src, nil, query.AggCount, 0)
	require.NoError(t, err)
	require.Equal(t, int64(3), res.Count)
}

func TestGlobMatch(t *testing.T) {
	coll, rows := buildFixture(t)
	src := &memSource{coll: coll, rows: rows}

	q, err := query.NewBuilder(coll).Filter(query.Matches(0, "Dun*", true)).Build()
	require.NoError(t, err)
	cur, err := q.Cursor(src)
	require.NoError(t, err)
	require.Equal(t, 1, cur.Len())
}
