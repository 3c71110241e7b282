package burrow

import (
	"bytes"

	"github.com/cuemby/burrow/pkg/codec"
	"github.com/cuemby/burrow/pkg/kvstore"
	"github.com/cuemby/burrow/pkg/query"
	"github.com/cuemby/burrow/pkg/schema"
)

// txnSource bridges a Collection bound to one transaction to
// pkg/query.Source, keeping pkg/query free of any dependency on
// transaction or substrate types.
type txnSource struct {
	c   *Collection
	txn *Txn
}

func (s *txnSource) Collection() *schema.Collection { return s.c.coll }

func (s *txnSource) ScanPrimary(reverse bool) (query.Iterator, error) {
	b, err := s.txn.tx.Bucket(bucketName(s.c.coll))
	if err != nil {
		return nil, wrapErr(KindEncodingError, err, "open collection bucket %s", s.c.coll.Name)
	}
	pc := s.txn.acquireCursor(b)
	return &primaryIterator{txn: s.txn, coll: s.c.coll, cur: pc, reverse: reverse}, nil
}

func (s *txnSource) ScanIndex(idx *schema.Index, reverse bool, low, high []byte) (query.Iterator, error) {
	name := bucketName(s.c.coll)
	idxBucket, err := s.txn.tx.Bucket(name, []byte(idx.Name))
	if err != nil {
		return nil, wrapErr(KindEncodingError, err, "open index bucket %s/%s", s.c.coll.Name, idx.Name)
	}
	primBucket, err := s.txn.tx.Bucket(name)
	if err != nil {
		return nil, wrapErr(KindEncodingError, err, "open collection bucket %s", s.c.coll.Name)
	}
	pc := s.txn.acquireCursor(idxBucket)
	return &indexIterator{
		txn:     s.txn,
		coll:    s.c.coll,
		cur:     pc,
		prim:    primBucket,
		reverse: reverse,
		low:     low,
		high:    effectiveHigh(idx, high),
	}, nil
}

// primaryIterator walks a collection's top-level bucket in id order,
// skipping the nested index buckets that share its key namespace (bbolt
// reports a nil value for a sub-bucket entry, which a real primary entry
// never has — its encoded header is always at least two bytes).
type primaryIterator struct {
	txn     *Txn
	coll    *schema.Collection
	cur     *pooledCursor
	reverse bool
	started bool
}

func (it *primaryIterator) Next() (query.Row, bool, error) {
	k, v := it.advance()
	for k != nil && v == nil {
		k, v = it.advance()
	}
	if k == nil {
		return query.Row{}, false, nil
	}
	id := decodeID(k)
	return query.Row{ID: id, Reader: codec.NewReader(id, v, it.coll)}, true, nil
}

func (it *primaryIterator) advance() (key, value []byte) {
	if !it.started {
		it.started = true
		if it.reverse {
			return it.cur.Last()
		}
		return it.cur.First()
	}
	if it.reverse {
		return it.cur.Prev()
	}
	return it.cur.Next()
}

func (it *primaryIterator) Close() { it.txn.releaseCursor(it.cur) }

// indexIterator walks one index bucket within [low, high] (either bound
// nil means unbounded on that side), resolving every matched id against
// the collection's primary bucket. high has already been widened by
// effectiveHigh to cover a non-unique index's id-suffixed composite keys.
type indexIterator struct {
	txn       *Txn
	coll      *schema.Collection
	cur       *pooledCursor
	prim      kvstore.Bucket
	reverse   bool
	started   bool
	low, high []byte
}

func (it *indexIterator) Next() (query.Row, bool, error) {
	for {
		k, v := it.advance()
		if k == nil {
			return query.Row{}, false, nil
		}
		if it.reverse && it.low != nil && bytes.Compare(k, it.low) < 0 {
			return query.Row{}, false, nil
		}
		if !it.reverse && it.high != nil && bytes.Compare(k, it.high) > 0 {
			return query.Row{}, false, nil
		}

		id := decodeID(v)
		data, err := it.prim.Get(encodeID(id))
		if err != nil {
			if err == kvstore.ErrKeyNotFound {
				continue // index entry outlived its object; skip defensively
			}
			return query.Row{}, false, err
		}
		return query.Row{ID: id, Reader: codec.NewReader(id, data, it.coll)}, true, nil
	}
}

func (it *indexIterator) advance() (key, value []byte) {
	if !it.started {
		it.started = true
		if it.reverse {
			return it.seekReverseStart()
		}
		if it.low == nil {
			return it.cur.First()
		}
		return it.cur.Seek(it.low)
	}
	if it.reverse {
		return it.cur.Prev()
	}
	return it.cur.Next()
}

func (it *indexIterator) seekReverseStart() (key, value []byte) {
	if it.high == nil {
		return it.cur.Last()
	}
	k, v := it.cur.Seek(it.high)
	if k == nil {
		return it.cur.Last()
	}
	if bytes.Compare(k, it.high) > 0 {
		return it.cur.Prev()
	}
	return k, v
}

func (it *indexIterator) Close() { it.txn.releaseCursor(it.cur) }
