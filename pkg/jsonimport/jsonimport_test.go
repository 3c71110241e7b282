package jsonimport_test

import (
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/burrow"
	"github.com/cuemby/burrow/pkg/jsonimport"
	"github.com/cuemby/burrow/pkg/schema"
)

var nextInstanceID int32

func openTestInstance(t *testing.T) (*burrow.Instance, *burrow.Collection) {
	t.Helper()
	sc, err := schema.New(schema.Collection{
		Name: "people",
		Properties: []schema.Property{
			{Name: "name", Kind: schema.KindString},
			{Name: "age", Kind: schema.KindInt32},
			{Name: "tags", Kind: schema.KindStringList},
		},
	})
	require.NoError(t, err)

	id := atomic.AddInt32(&nextInstanceID, 1)
	inst, err := burrow.OpenInstance(id, "test", t.TempDir(), sc, 0, nil)
	require.NoError(t, err)
	t.Cleanup(func() { inst.Close(true) })

	coll, ok := inst.Collection("people")
	require.True(t, ok)
	return inst, coll
}

func TestImportSuccess(t *testing.T) {
	inst, coll := openTestInstance(t)

	body := `[
		{"name": "Ada", "age": 36, "tags": ["math", "computing"]},
		{"name": "Grace", "age": 85, "tags": []}
	]`

	txn, err := inst.Begin(true)
	require.NoError(t, err)

	n, err := jsonimport.Import(txn, coll, strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, txn.Commit())

	txn, err = inst.Begin(false)
	require.NoError(t, err)
	defer txn.Abort()
	count, err := coll.Count(txn)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestImportNotAnArrayFails(t *testing.T) {
	inst, coll := openTestInstance(t)

	txn, err := inst.Begin(true)
	require.NoError(t, err)
	defer txn.Abort()

	_, err = jsonimport.Import(txn, coll, strings.NewReader(`{"name": "Ada"}`))
	require.Error(t, err)
	var berr *burrow.Error
	require.ErrorAs(t, err, &berr)
	require.Equal(t, burrow.KindJsonError, berr.Kind)
}

func TestImportMalformedElementFails(t *testing.T) {
	inst, coll := openTestInstance(t)

	txn, err := inst.Begin(true)
	require.NoError(t, err)
	defer txn.Abort()

	_, err = jsonimport.Import(txn, coll, strings.NewReader(`[{"name": "Ada"}, not-json]`))
	require.Error(t, err)
	var berr *burrow.Error
	require.ErrorAs(t, err, &berr)
	require.Equal(t, burrow.KindJsonError, berr.Kind)
}

func TestImportNullAndMissingFieldsBecomeNull(t *testing.T) {
	inst, coll := openTestInstance(t)

	txn, err := inst.Begin(true)
	require.NoError(t, err)

	n, err := jsonimport.Import(txn, coll, strings.NewReader(`[{"name": "Ada", "age": null}]`))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, txn.Commit())

	txn, err = inst.Begin(false)
	require.NoError(t, err)
	defer txn.Abort()

	r, ok, err := coll.Get(txn, 1)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok = r.GetInt32(1)
	require.False(t, ok, "age was explicitly null")

	_, ok = r.GetList(2)
	require.False(t, ok, "tags was absent from the element")
}

func TestImportUnsupportedObjectKindFails(t *testing.T) {
	sc, err := schema.New(schema.Collection{
		Name: "nested",
		Properties: []schema.Property{
			{Name: "child", Kind: schema.KindObject, Object: "people"},
		},
	})
	require.NoError(t, err)

	id := atomic.AddInt32(&nextInstanceID, 1)
	inst, err := burrow.OpenInstance(id, "test", t.TempDir(), sc, 0, nil)
	require.NoError(t, err)
	defer inst.Close(true)

	coll, ok := inst.Collection("nested")
	require.True(t, ok)

	txn, err := inst.Begin(true)
	require.NoError(t, err)
	defer txn.Abort()

	_, err = jsonimport.Import(txn, coll, strings.NewReader(`[{"child": {"name": "Ada"}}]`))
	require.Error(t, err)
	var berr *burrow.Error
	require.ErrorAs(t, err, &berr)
	require.Equal(t, burrow.KindJsonError, berr.Kind)
}
