package burrow

import (
	"github.com/cuemby/burrow/pkg/codec"
	"github.com/cuemby/burrow/pkg/indexkey"
	"github.com/cuemby/burrow/pkg/kvstore"
	"github.com/cuemby/burrow/pkg/query"
	"github.com/cuemby/burrow/pkg/schema"
)

// Collection is a handle to one schema.Collection scoped to an Instance.
// Every operation takes an explicit *Txn rather than hiding one on the
// receiver, so call sites always show which transaction an object came
// from.
type Collection struct {
	inst *Instance
	coll *schema.Collection
}

func (c *Collection) Schema() *schema.Collection { return c.coll }

// WatchCollection subscribes to every change-notification for this
// collection, including its whole-collection (clear) events.
func (c *Collection) WatchCollection() (<-chan Event, Cancel) {
	return c.inst.watchers.SubscribeCollection(c.coll.Index)
}

// WatchObject subscribes to change-notifications naming this exact
// (collection, id) pair only.
func (c *Collection) WatchObject(id int64) (<-chan Event, Cancel) {
	return c.inst.watchers.SubscribeObject(c.coll.Index, id)
}

// Patch is one (property, value) pair applied by Update. A patch whose
// Value is a null Value clears that property.
type Patch struct {
	Property uint16
	Value    codec.Value
}

func bucketName(c *schema.Collection) []byte { return []byte(c.Name) }

// Get decodes the object stored under id, or reports ok=false if no such
// object exists.
func (c *Collection) Get(txn *Txn, id int64) (*codec.Reader, bool, error) {
	if err := txn.checkActive(); err != nil {
		return nil, false, err
	}
	b, err := txn.tx.Bucket(bucketName(c.coll))
	if err != nil {
		return nil, false, wrapErr(KindEncodingError, err, "open collection bucket %s", c.coll.Name)
	}
	data, err := b.Get(encodeID(id))
	if err != nil {
		if err == kvstore.ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, wrapErr(KindEncodingError, err, "get object %d", id)
	}
	return codec.NewReader(id, data, c.coll), true, nil
}

// Count walks the collection's primary entries and reports how many
// objects it holds.
func (c *Collection) Count(txn *Txn) (int, error) {
	it, err := c.source(txn).ScanPrimary(false)
	if err != nil {
		return 0, err
	}
	defer it.Close()
	n := 0
	for {
		_, ok, err := it.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			return n, nil
		}
		n++
	}
}

// GetSize sums the stored byte size of the collection's primary entries,
// and of its index entries too when includeIndexes is set.
func (c *Collection) GetSize(txn *Txn, includeIndexes bool) (int64, error) {
	if err := txn.checkActive(); err != nil {
		return 0, err
	}
	b, err := txn.tx.Bucket(bucketName(c.coll))
	if err != nil {
		return 0, wrapErr(KindEncodingError, err, "open collection bucket %s", c.coll.Name)
	}
	pc := txn.acquireCursor(b)
	var total int64
	for k, v := pc.First(); k != nil; k, v = pc.Next() {
		if v == nil {
			continue // nested index bucket marker, not a primary entry
		}
		total += int64(len(k) + len(v))
	}
	txn.releaseCursor(pc)

	if includeIndexes {
		for _, idx := range c.coll.Indexes {
			ib, err := txn.tx.Bucket(bucketName(c.coll), []byte(idx.Name))
			if err != nil {
				continue
			}
			ic := txn.acquireCursor(ib)
			for k, v := ic.First(); k != nil; k, v = ic.Next() {
				total += int64(len(k) + len(v))
			}
			txn.releaseCursor(ic)
		}
	}
	return total, nil
}

// Clear drops every object and index entry in the collection, keeping
// the collection's bucket layout (it recreates empty primary and index
// buckets in place) so later operations need no schema re-apply.
func (c *Collection) Clear(txn *Txn) error {
	if err := txn.checkActive(); err != nil {
		return err
	}
	if !txn.write {
		return newErr(KindWriteTxnRequired, "clear requires a write transaction")
	}
	name := bucketName(c.coll)
	if err := txn.tx.DeleteBucket(name); err != nil {
		return txn.guard(wrapErr(KindEncodingError, err, "delete collection bucket %s", c.coll.Name))
	}
	if _, err := txn.tx.CreateBucketIfNotExists(name); err != nil {
		return txn.guard(wrapErr(KindEncodingError, err, "recreate collection bucket %s", c.coll.Name))
	}
	for _, idx := range c.coll.Indexes {
		if _, err := txn.tx.CreateBucketIfNotExists(name, []byte(idx.Name)); err != nil {
			return txn.guard(wrapErr(KindEncodingError, err, "recreate index bucket %s/%s", c.coll.Name, idx.Name))
		}
	}
	txn.changes.recordWhole(c.coll.Index, c.coll.Name)
	return nil
}

// Update re-encodes object id with patches applied over its current
// values, maintaining every secondary index. It reports ok=false if no
// such object exists.
func (c *Collection) Update(txn *Txn, id int64, patches []Patch) (bool, error) {
	if err := txn.checkActive(); err != nil {
		return false, err
	}
	if !txn.write {
		return false, newErr(KindWriteTxnRequired, "update requires a write transaction")
	}

	old, ok, err := c.Get(txn, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	values := valuesFromReader(old, c.coll.Properties)
	for _, p := range patches {
		values[p.Property] = p.Value
	}

	b, err := txn.tx.Bucket(bucketName(c.coll))
	if err != nil {
		return false, txn.guard(wrapErr(KindEncodingError, err, "open collection bucket %s", c.coll.Name))
	}

	if err := c.removeIndexEntries(txn, old, id); err != nil {
		return false, txn.guard(err)
	}

	if err := storeObject(txn, b, id, c.coll.Properties, values); err != nil {
		return false, txn.guard(err)
	}

	newReader, _, err := c.Get(txn, id)
	if err != nil {
		return false, txn.guard(err)
	}
	if err := c.addIndexEntries(txn, newReader, id); err != nil {
		return false, txn.guard(err)
	}

	txn.changes.recordID(c.coll.Index, c.coll.Name, id)
	return true, nil
}

// Delete removes object id and every index entry it participates in,
// reporting ok=false if it did not exist.
func (c *Collection) Delete(txn *Txn, id int64) (bool, error) {
	if err := txn.checkActive(); err != nil {
		return false, err
	}
	if !txn.write {
		return false, newErr(KindWriteTxnRequired, "delete requires a write transaction")
	}

	old, ok, err := c.Get(txn, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if err := c.removeIndexEntries(txn, old, id); err != nil {
		return false, txn.guard(err)
	}

	b, err := txn.tx.Bucket(bucketName(c.coll))
	if err != nil {
		return false, txn.guard(wrapErr(KindEncodingError, err, "open collection bucket %s", c.coll.Name))
	}
	if err := b.Delete(encodeID(id)); err != nil {
		return false, txn.guard(wrapErr(KindEncodingError, err, "delete object %d", id))
	}

	txn.changes.recordID(c.coll.Index, c.coll.Name, id)
	return true, nil
}

// source builds the query.Source implementation pkg/query drives a
// Cursor through, bound to this collection and transaction.
func (c *Collection) source(txn *Txn) *txnSource {
	return &txnSource{c: c, txn: txn}
}

// Builder starts a query against this collection. Building a Query only
// consults the schema, so it needs no transaction; Cursor/QueryUpdate/
// QueryDelete/QueryAggregate take the transaction the built Query runs
// against.
func (c *Collection) Builder() *query.Builder {
	return query.NewBuilder(c.coll)
}

// Cursor plans and runs q against this collection within txn.
func (c *Collection) Cursor(txn *Txn, q *query.Query) (*query.Cursor, error) {
	return c.runCursor(txn, q)
}

func storeObject(txn *Txn, b kvstore.Bucket, id int64, props []schema.Property, values map[uint16]codec.Value) error {
	data, err := codec.Encode(txn.takeScratch(), props, values)
	if err != nil {
		txn.putScratch(data[:0])
		return wrapErr(KindEncodingError, err, "encode object %d", id)
	}
	// The substrate keeps a reference to the value until commit, so it
	// gets its own copy rather than the scratch buffer the next encode
	// will overwrite.
	if err := b.Put(encodeID(id), append([]byte(nil), data...)); err != nil {
		txn.putScratch(data[:0])
		return wrapErr(KindEncodingError, err, "store object %d", id)
	}
	txn.putScratch(data[:0])
	return nil
}

// valuesFromReader decodes every property of r into a codec.Value map,
// the starting point for an Update's re-encode: patches overwrite the
// entries that name a property, every other property is carried forward
// unchanged.
func valuesFromReader(r *codec.Reader, props []schema.Property) map[uint16]codec.Value {
	out := make(map[uint16]codec.Value, len(props))
	for _, p := range props {
		idx := p.Index
		switch p.Kind {
		case schema.KindBool:
			v, ok := r.GetBool(idx)
			out[idx] = boolOrNull(v, ok)
		case schema.KindByte:
			v, ok := r.GetByte(idx)
			out[idx] = byteOrNull(v, ok)
		case schema.KindInt32:
			v, ok := r.GetInt32(idx)
			out[idx] = int32OrNull(v, ok)
		case schema.KindInt64:
			v, ok := r.GetInt64(idx)
			out[idx] = int64OrNull(v, ok)
		case schema.KindFloat32:
			v, ok := r.GetFloat32(idx)
			out[idx] = float32OrNull(v, ok)
		case schema.KindFloat64:
			v, ok := r.GetFloat64(idx)
			out[idx] = float64OrNull(v, ok)
		case schema.KindString:
			v, ok := r.GetString(idx)
			out[idx] = stringOrNull(v, ok)
		case schema.KindObject:
			v, ok := r.GetObjectBytes(idx)
			out[idx] = objectOrNull(v, ok)
		case schema.KindBoolList:
			lr, ok := r.GetList(idx)
			if !ok {
				out[idx] = codec.NullValue(p.Kind)
				continue
			}
			vals := make([]bool, lr.Len())
			for i := range vals {
				vals[i] = lr.Bool(i)
			}
			out[idx] = codec.BoolListValue(vals)
		case schema.KindByteList:
			lr, ok := r.GetList(idx)
			if !ok {
				out[idx] = codec.NullValue(p.Kind)
				continue
			}
			vals := make([]byte, lr.Len())
			for i := range vals {
				vals[i] = lr.Byte(i)
			}
			out[idx] = codec.ByteListValue(vals)
		case schema.KindInt32List:
			lr, ok := r.GetList(idx)
			if !ok {
				out[idx] = codec.NullValue(p.Kind)
				continue
			}
			vals := make([]int32, lr.Len())
			for i := range vals {
				vals[i] = lr.Int32(i)
			}
			out[idx] = codec.Int32ListValue(vals)
		case schema.KindInt64List:
			lr, ok := r.GetList(idx)
			if !ok {
				out[idx] = codec.NullValue(p.Kind)
				continue
			}
			vals := make([]int64, lr.Len())
			for i := range vals {
				vals[i] = lr.Int64(i)
			}
			out[idx] = codec.Int64ListValue(vals)
		case schema.KindFloat32List:
			lr, ok := r.GetList(idx)
			if !ok {
				out[idx] = codec.NullValue(p.Kind)
				continue
			}
			vals := make([]float32, lr.Len())
			for i := range vals {
				vals[i] = lr.Float32(i)
			}
			out[idx] = codec.Float32ListValue(vals)
		case schema.KindFloat64List:
			lr, ok := r.GetList(idx)
			if !ok {
				out[idx] = codec.NullValue(p.Kind)
				continue
			}
			vals := make([]float64, lr.Len())
			for i := range vals {
				vals[i] = lr.Float64(i)
			}
			out[idx] = codec.Float64ListValue(vals)
		case schema.KindStringList:
			lr, ok := r.GetList(idx)
			if !ok {
				out[idx] = codec.NullValue(p.Kind)
				continue
			}
			out[idx] = codec.StringListValue(lr.Strings())
		case schema.KindObjectList:
			lr, ok := r.GetList(idx)
			if !ok {
				out[idx] = codec.NullValue(p.Kind)
				continue
			}
			out[idx] = codec.ObjectListValue(lr.Objects())
		}
	}
	return out
}

func boolOrNull(v bool, ok bool) codec.Value {
	if !ok {
		return codec.NullValue(schema.KindBool)
	}
	return codec.BoolValue(v)
}
func byteOrNull(v byte, ok bool) codec.Value {
	if !ok {
		return codec.NullValue(schema.KindByte)
	}
	return codec.ByteValue(v)
}
func int32OrNull(v int32, ok bool) codec.Value {
	if !ok {
		return codec.NullValue(schema.KindInt32)
	}
	return codec.Int32Value(v)
}
func int64OrNull(v int64, ok bool) codec.Value {
	if !ok {
		return codec.NullValue(schema.KindInt64)
	}
	return codec.Int64Value(v)
}
func float32OrNull(v float32, ok bool) codec.Value {
	if !ok {
		return codec.NullValue(schema.KindFloat32)
	}
	return codec.Float32Value(v)
}
func float64OrNull(v float64, ok bool) codec.Value {
	if !ok {
		return codec.NullValue(schema.KindFloat64)
	}
	return codec.Float64Value(v)
}
func stringOrNull(v string, ok bool) codec.Value {
	if !ok {
		return codec.NullValue(schema.KindString)
	}
	return codec.StringValue(v)
}
func objectOrNull(v []byte, ok bool) codec.Value {
	if !ok {
		return codec.NullValue(schema.KindObject)
	}
	return codec.ObjectValue(v)
}

// componentKeyFromReader renders one index component's value out of r as
// an order-preserving byte encoding, the same pkg/indexkey functions
// pkg/query's planner uses for bound computation, so storage and query
// planning never disagree about ordering.
func componentKeyFromReader(r *codec.Reader, comp schema.IndexComponent) []byte {
	idx := comp.PropertyIndex()
	if comp.Hashed {
		switch comp.Kind() {
		case schema.KindString:
			v, ok := r.GetString(idx)
			if !ok {
				return indexkey.Hashed(nil, true)
			}
			return indexkey.Hashed([]byte(v), false)
		case schema.KindByteList:
			lr, ok := r.GetList(idx)
			if !ok {
				return indexkey.Hashed(nil, true)
			}
			vals := make([]byte, lr.Len())
			for i := range vals {
				vals[i] = lr.Byte(i)
			}
			return indexkey.Hashed(vals, false)
		case schema.KindStringList:
			lr, ok := r.GetList(idx)
			if !ok {
				return indexkey.Hashed(nil, true)
			}
			elems := make([][]byte, 0, lr.Len())
			for _, s := range lr.Strings() {
				elems = append(elems, []byte(s))
			}
			return indexkey.HashedList(elems, false)
		}
	}
	switch comp.Kind() {
	case schema.KindBool:
		v, ok := r.GetBool(idx)
		return indexkey.Bool(v, !ok)
	case schema.KindByte:
		v, ok := r.GetByte(idx)
		return indexkey.Int32(int32(v), !ok)
	case schema.KindInt32:
		v, ok := r.GetInt32(idx)
		return indexkey.Int32(v, !ok)
	case schema.KindInt64:
		v, ok := r.GetInt64(idx)
		return indexkey.Int64(v, !ok)
	case schema.KindFloat32:
		v, ok := r.GetFloat32(idx)
		return indexkey.Float32(v, !ok)
	case schema.KindFloat64:
		v, ok := r.GetFloat64(idx)
		return indexkey.Float64(v, !ok)
	case schema.KindString:
		v, ok := r.GetString(idx)
		return indexkey.String(v, !ok, comp.CaseSensitive)
	default:
		return indexkey.Hashed(nil, true)
	}
}

func indexKeyOf(r *codec.Reader, idx *schema.Index) []byte {
	parts := make([][]byte, len(idx.Components))
	for i, comp := range idx.Components {
		parts[i] = componentKeyFromReader(r, comp)
	}
	return indexkey.Concat(parts...)
}

// addIndexEntries inserts r's entry into every one of the collection's
// indexes, detecting unique-index collisions against a different id.
func (c *Collection) addIndexEntries(txn *Txn, r *codec.Reader, id int64) error {
	name := bucketName(c.coll)
	for _, idx := range c.coll.Indexes {
		ib, err := txn.tx.Bucket(name, []byte(idx.Name))
		if err != nil {
			return wrapErr(KindEncodingError, err, "open index bucket %s/%s", c.coll.Name, idx.Name)
		}
		key := indexKeyOf(r, &idx)
		if idx.Unique {
			existing, err := ib.Get(key)
			if err != nil && err != kvstore.ErrKeyNotFound {
				return wrapErr(KindEncodingError, err, "read unique index %s/%s", c.coll.Name, idx.Name)
			}
			if existing != nil && decodeID(existing) != id {
				recordUniqueViolation()
				return newErr(KindUniqueViolation, "collection %q: index %q: value already used by object %d", c.coll.Name, idx.Name, decodeID(existing))
			}
			if err := ib.Put(key, encodeID(id)); err != nil {
				return wrapErr(KindEncodingError, err, "write unique index %s/%s", c.coll.Name, idx.Name)
			}
			continue
		}
		compositeKey := append(append([]byte{}, key...), encodeID(id)...)
		if err := ib.Put(compositeKey, encodeID(id)); err != nil {
			return wrapErr(KindEncodingError, err, "write index %s/%s", c.coll.Name, idx.Name)
		}
	}
	return nil
}

// removeIndexEntries deletes r's entry from every one of the
// collection's indexes, the inverse of addIndexEntries.
func (c *Collection) removeIndexEntries(txn *Txn, r *codec.Reader, id int64) error {
	name := bucketName(c.coll)
	for _, idx := range c.coll.Indexes {
		ib, err := txn.tx.Bucket(name, []byte(idx.Name))
		if err != nil {
			return wrapErr(KindEncodingError, err, "open index bucket %s/%s", c.coll.Name, idx.Name)
		}
		key := indexKeyOf(r, &idx)
		if idx.Unique {
			if err := ib.Delete(key); err != nil {
				return wrapErr(KindEncodingError, err, "delete unique index %s/%s", c.coll.Name, idx.Name)
			}
			continue
		}
		compositeKey := append(append([]byte{}, key...), encodeID(id)...)
		if err := ib.Delete(compositeKey); err != nil {
			return wrapErr(KindEncodingError, err, "delete index %s/%s", c.coll.Name, idx.Name)
		}
	}
	return nil
}

// effectiveHigh widens high to cover every composite entry that shares
// its prefix, needed because a non-unique index's stored key is
// componentKey||id: an unmodified high bound equal to a component key
// would exclude every real entry carrying that exact value (their keys
// are longer and therefore sort after it). Unique index keys have no id
// suffix and need no widening.
func effectiveHigh(idx *schema.Index, high []byte) []byte {
	if high == nil || idx.Unique {
		return high
	}
	out := make([]byte, len(high)+8)
	copy(out, high)
	for i := len(high); i < len(out); i++ {
		out[i] = 0xFF
	}
	return out
}
