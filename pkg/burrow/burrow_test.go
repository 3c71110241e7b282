package burrow_test

import (
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/burrow"
	"github.com/cuemby/burrow/pkg/codec"
	"github.com/cuemby/burrow/pkg/query"
	"github.com/cuemby/burrow/pkg/schema"
)

var nextInstanceID int32

func openTestInstance(t *testing.T) *burrow.Instance {
	t.Helper()
	sc, err := schema.New(schema.Collection{
		Name: "books",
		Properties: []schema.Property{
			{Name: "title", Kind: schema.KindString},
			{Name: "year", Kind: schema.KindInt32},
			{Name: "isbn", Kind: schema.KindString},
		},
		Indexes: []schema.Index{
			{Name: "by_year", Components: []schema.IndexComponent{{Property: "year"}}},
			{Name: "by_isbn", Unique: true, Components: []schema.IndexComponent{{Property: "isbn"}}},
		},
	})
	require.NoError(t, err)

	id := atomic.AddInt32(&nextInstanceID, 1)
	inst, err := burrow.OpenInstance(id, "test", t.TempDir(), sc, 0, nil)
	require.NoError(t, err)
	t.Cleanup(func() { inst.Close(true) })
	return inst
}

func TestInsertThenGet(t *testing.T) {
	inst := openTestInstance(t)
	coll, ok := inst.Collection("books")
	require.True(t, ok)

	txn, err := inst.Begin(true)
	require.NoError(t, err)

	id, err := coll.Insert(txn, 1).Add(nil, map[uint16]codec.Value{
		0: codec.StringValue("Dune"),
		1: codec.Int32Value(1965),
		2: codec.StringValue("isbn-1"),
	})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	txn, err = inst.Begin(false)
	require.NoError(t, err)
	defer txn.Abort()

	r, ok, err := coll.Get(txn, id)
	require.NoError(t, err)
	require.True(t, ok)
	title, ok := r.GetString(0)
	require.True(t, ok)
	require.Equal(t, "Dune", title)
}

func TestUpdateTouchesIndex(t *testing.T) {
	inst := openTestInstance(t)
	coll, _ := inst.Collection("books")

	txn, err := inst.Begin(true)
	require.NoError(t, err)
	id, err := coll.Insert(txn, 1).Add(nil, map[uint16]codec.Value{
		0: codec.StringValue("Dune"),
		1: codec.Int32Value(1965),
		2: codec.StringValue("isbn-1"),
	})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	txn, err = inst.Begin(true)
	require.NoError(t, err)
	changed, err := coll.Update(txn, id, []burrow.Patch{{Property: 1, Value: codec.Int32Value(1977)}})
	require.NoError(t, err)
	require.True(t, changed)
	require.NoError(t, txn.Commit())

	txn, err = inst.Begin(false)
	require.NoError(t, err)
	defer txn.Abort()

	q, err := coll.Builder().Filter(query.Equal(1, codec.Int32Value(1977))).Build()
	require.NoError(t, err)
	cur, err := coll.Cursor(txn, q)
	require.NoError(t, err)
	require.Equal(t, 1, cur.Len())
	row, ok := cur.Next()
	require.True(t, ok)
	require.Equal(t, id, row.ID)

	q, err = coll.Builder().Filter(query.Equal(1, codec.Int32Value(1965))).Build()
	require.NoError(t, err)
	cur, err = coll.Cursor(txn, q)
	require.NoError(t, err)
	require.Equal(t, 0, cur.Len())
}

func TestUniqueViolationLatchesTransaction(t *testing.T) {
	inst := openTestInstance(t)
	coll, _ := inst.Collection("books")

	txn, err := inst.Begin(true)
	require.NoError(t, err)
	_, err = coll.Insert(txn, 1).Add(nil, map[uint16]codec.Value{
		0: codec.StringValue("Dune"),
		1: codec.Int32Value(1965),
		2: codec.StringValue("isbn-1"),
	})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	txn, err = inst.Begin(true)
	require.NoError(t, err)
	_, err = coll.Insert(txn, 1).Add(nil, map[uint16]codec.Value{
		0: codec.StringValue("Dune Messiah"),
		1: codec.Int32Value(1969),
		2: codec.StringValue("isbn-1"),
	})
	require.Error(t, err)
	var berr *burrow.Error
	require.ErrorAs(t, err, &berr)
	require.Equal(t, burrow.KindUniqueViolation, berr.Kind)

	// The transaction is latched: any further operation fails closed,
	// and Commit must not be callable to partially persist the batch.
	_, _, err = coll.Get(txn, 1)
	require.Error(t, err)
	txn.Abort()

	txn, err = inst.Begin(false)
	require.NoError(t, err)
	defer txn.Abort()
	count, err := coll.Count(txn)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestAggregateWithNullsAndClear(t *testing.T) {
	inst := openTestInstance(t)
	coll, _ := inst.Collection("books")

	txn, err := inst.Begin(true)
	require.NoError(t, err)
	ins := coll.Insert(txn, 3)
	_, err = ins.Add(nil, map[uint16]codec.Value{
		0: codec.StringValue("Dune"),
		1: codec.Int32Value(1965),
		2: codec.StringValue("isbn-1"),
	})
	require.NoError(t, err)
	_, err = ins.Add(nil, map[uint16]codec.Value{
		0: codec.StringValue("Foundation"),
		1: codec.NullValue(schema.KindInt32),
		2: codec.StringValue("isbn-2"),
	})
	require.NoError(t, err)
	_, err = ins.Add(nil, map[uint16]codec.Value{
		0: codec.StringValue("Neuromancer"),
		1: codec.Int32Value(1984),
		2: codec.StringValue("isbn-3"),
	})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	txn, err = inst.Begin(false)
	require.NoError(t, err)
	res, err := coll.QueryAggregate(txn, nil, query.AggMin, 1)
	require.NoError(t, err)
	require.False(t, res.ValueIsNull)
	require.Equal(t, int64(1965), res.MinInt)

	res, err = coll.QueryAggregate(txn, nil, query.AggCount, 0)
	require.NoError(t, err)
	require.Equal(t, int64(3), res.Count)
	txn.Abort()

	txn, err = inst.Begin(true)
	require.NoError(t, err)
	require.NoError(t, coll.Clear(txn))
	require.NoError(t, txn.Commit())

	txn, err = inst.Begin(false)
	require.NoError(t, err)
	defer txn.Abort()
	count, err := coll.Count(txn)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestQueryOffsetLimitSort(t *testing.T) {
	inst := openTestInstance(t)
	coll, _ := inst.Collection("books")

	years := []int32{1965, 1951, 1984, 1977, 1992}
	txn, err := inst.Begin(true)
	require.NoError(t, err)
	ins := coll.Insert(txn, len(years))
	for i, y := range years {
		_, err := ins.Add(nil, map[uint16]codec.Value{
			0: codec.StringValue("book"),
			1: codec.Int32Value(y),
			2: codec.StringValue(strconv.Itoa(i)),
		})
		require.NoError(t, err)
	}
	require.NoError(t, txn.Commit())

	txn, err = inst.Begin(false)
	require.NoError(t, err)
	defer txn.Abort()

	q, err := coll.Builder().SortBy(1, true, true).Offset(1).Limit(2).Build()
	require.NoError(t, err)
	cur, err := coll.Cursor(txn, q)
	require.NoError(t, err)
	require.Equal(t, 2, cur.Len())

	row, ok := cur.Next()
	require.True(t, ok)
	v, _ := row.Reader.GetInt32(1)
	require.Equal(t, int32(1965), v) // second-smallest year after 1951

	row, ok = cur.Next()
	require.True(t, ok)
	v, _ = row.Reader.GetInt32(1)
	require.Equal(t, int32(1977), v)
}

func TestWatcherFiresOncePerCommitNeverOnAbort(t *testing.T) {
	inst := openTestInstance(t)
	coll, _ := inst.Collection("books")

	ch, cancel := inst.Watch()
	defer cancel()

	txn, err := inst.Begin(true)
	require.NoError(t, err)
	_, err = coll.Insert(txn, 1).Add(nil, map[uint16]codec.Value{
		0: codec.StringValue("Dune"),
		1: codec.Int32Value(1965),
		2: codec.StringValue("isbn-1"),
	})
	require.NoError(t, err)
	txn.Abort()

	select {
	case ev := <-ch:
		t.Fatalf("watcher fired on an aborted transaction: %+v", ev)
	default:
	}

	txn, err = inst.Begin(true)
	require.NoError(t, err)
	id, err := coll.Insert(txn, 1).Add(nil, map[uint16]codec.Value{
		0: codec.StringValue("Dune"),
		1: codec.Int32Value(1965),
		2: codec.StringValue("isbn-1"),
	})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	ev := <-ch
	require.Equal(t, "books", ev.CollectionName)
	require.NotNil(t, ev.ID)
	require.Equal(t, id, *ev.ID)

	select {
	case ev := <-ch:
		t.Fatalf("watcher fired a second time for one commit: %+v", ev)
	default:
	}
}
