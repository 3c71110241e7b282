package burrow

import "github.com/cuemby/burrow/pkg/codec"

// Inserter stores up to count objects into one collection within one
// transaction, auto-allocating ids from the collection's persisted
// sequence counter unless the caller supplies one explicitly.
type Inserter struct {
	txn   *Txn
	coll  *Collection
	limit int
	n     int
}

// Insert begins inserting up to count objects into c within txn.
func (c *Collection) Insert(txn *Txn, count int) *Inserter {
	return &Inserter{txn: txn, coll: c, limit: count}
}

// Add stores one object built from values (keyed by property index),
// under id when given or an auto-allocated id otherwise, maintaining
// every secondary index and recording the insert in txn's ChangeSet. It
// returns the id the object was stored under.
func (ins *Inserter) Add(id *int64, values map[uint16]codec.Value) (int64, error) {
	if err := ins.txn.checkActive(); err != nil {
		return 0, err
	}
	if !ins.txn.write {
		return 0, newErr(KindWriteTxnRequired, "insert requires a write transaction")
	}
	if ins.n >= ins.limit {
		return 0, newErr(KindIllegalArg, "insert: exceeded reserved count %d", ins.limit)
	}

	coll := ins.coll.coll
	b, err := ins.txn.tx.Bucket(bucketName(coll))
	if err != nil {
		return 0, ins.txn.guard(wrapErr(KindEncodingError, err, "open collection bucket %s", coll.Name))
	}

	var objID int64
	if id != nil {
		if isReservedID(*id) {
			return 0, newErr(KindIllegalArg, "object id %d is reserved", *id)
		}
		objID = *id
	} else {
		seq, err := b.NextSequence()
		if err != nil {
			return 0, ins.txn.guard(wrapErr(KindEncodingError, err, "allocate object id"))
		}
		objID = int64(seq)
	}

	if id != nil {
		old, ok, err := ins.coll.Get(ins.txn, objID)
		if err != nil {
			return 0, ins.txn.guard(err)
		}
		if ok {
			if err := ins.coll.removeIndexEntries(ins.txn, old, objID); err != nil {
				return 0, ins.txn.guard(err)
			}
		}
	}

	if err := storeObject(ins.txn, b, objID, coll.Properties, values); err != nil {
		return 0, ins.txn.guard(err)
	}

	reader, _, err := ins.coll.Get(ins.txn, objID)
	if err != nil {
		return 0, ins.txn.guard(err)
	}
	if err := ins.coll.addIndexEntries(ins.txn, reader, objID); err != nil {
		return 0, ins.txn.guard(err)
	}

	ins.txn.changes.recordID(coll.Index, coll.Name, objID)
	ins.n++
	return objID, nil
}

// Remaining reports how many more objects this Inserter may still Add.
func (ins *Inserter) Remaining() int { return ins.limit - ins.n }
