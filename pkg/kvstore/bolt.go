package kvstore

import (
	"fmt"
	"os"

	bolt "go.etcd.io/bbolt"
)

// boltDB adapts go.etcd.io/bbolt to the DB interface.
type boltDB struct {
	db *bolt.DB
}

// OpenBolt opens (creating if absent) a bbolt-backed environment at path.
// maxSizeMiB is accepted for parity with substrates that pre-allocate a
// fixed address space (mdbx-style environments); bbolt grows its file
// on demand and has no such ceiling, so the value is accepted and ignored.
func OpenBolt(path string, maxSizeMiB uint) (DB, error) {
	_ = maxSizeMiB
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open %s: %w", path, err)
	}
	return &boltDB{db: db}, nil
}

func (b *boltDB) Begin(writable bool) (Tx, error) {
	tx, err := b.db.Begin(writable)
	if err != nil {
		return nil, fmt.Errorf("kvstore: begin txn: %w", err)
	}
	return &boltTx{tx: tx}, nil
}

func (b *boltDB) CreateBucketIfNotExists(name []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	})
}

func (b *boltDB) Stats() Stats {
	st := b.db.Stats()
	pageSize := int64(os.Getpagesize())
	fileSize := int64(0)
	if fi, err := os.Stat(b.db.Path()); err == nil {
		fileSize = fi.Size()
	}
	return Stats{
		FileSize:     fileSize,
		FreelistSize: int64(st.FreePageN+st.PendingPageN) * pageSize,
	}
}

func (b *boltDB) Path() string { return b.db.Path() }

func (b *boltDB) Close() error { return b.db.Close() }

func (b *boltDB) Copy(w Writer) error {
	return b.db.View(func(tx *bolt.Tx) error {
		_, err := tx.WriteTo(w)
		return err
	})
}

type boltTx struct {
	tx *bolt.Tx
}

func (t *boltTx) Writable() bool { return t.tx.Writable() }

func (t *boltTx) Bucket(names ...[]byte) (Bucket, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("kvstore: bucket: %w", ErrBucketNotFound)
	}
	b := t.tx.Bucket(names[0])
	if b == nil {
		return nil, fmt.Errorf("kvstore: bucket %q: %w", names[0], ErrBucketNotFound)
	}
	for _, name := range names[1:] {
		b = b.Bucket(name)
		if b == nil {
			return nil, fmt.Errorf("kvstore: bucket %q: %w", name, ErrBucketNotFound)
		}
	}
	return &boltBucket{b: b}, nil
}

func (t *boltTx) CreateBucketIfNotExists(names ...[]byte) (Bucket, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("kvstore: create bucket: no name given")
	}
	b, err := t.tx.CreateBucketIfNotExists(names[0])
	if err != nil {
		return nil, fmt.Errorf("kvstore: create bucket %q: %w", names[0], err)
	}
	for _, name := range names[1:] {
		b, err = b.CreateBucketIfNotExists(name)
		if err != nil {
			return nil, fmt.Errorf("kvstore: create bucket %q: %w", name, err)
		}
	}
	return &boltBucket{b: b}, nil
}

func (t *boltTx) DeleteBucket(names ...[]byte) error {
	if len(names) == 0 {
		return fmt.Errorf("kvstore: delete bucket: no name given")
	}
	if len(names) == 1 {
		if err := t.tx.DeleteBucket(names[0]); err != nil && err != bolt.ErrBucketNotFound {
			return fmt.Errorf("kvstore: delete bucket %q: %w", names[0], err)
		}
		return nil
	}
	parent, err := t.Bucket(names[:len(names)-1]...)
	if err != nil {
		return nil // parent never existed; nothing to delete
	}
	pb := parent.(*boltBucket).b
	last := names[len(names)-1]
	if err := pb.DeleteBucket(last); err != nil && err != bolt.ErrBucketNotFound {
		return fmt.Errorf("kvstore: delete bucket %q: %w", last, err)
	}
	return nil
}

func (t *boltTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("kvstore: commit: %w", err)
	}
	return nil
}

func (t *boltTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != bolt.ErrTxClosed {
		return fmt.Errorf("kvstore: rollback: %w", err)
	}
	return nil
}

type boltBucket struct {
	b *bolt.Bucket
}

// Get returns bytes that borrow directly from bbolt's memory-mapped page,
// matching this package's zero-copy reader contract: the slice is valid
// only until the owning Tx ends and must never be retained past it.
func (bk *boltBucket) Get(key []byte) ([]byte, error) {
	v := bk.b.Get(key)
	if v == nil {
		return nil, ErrKeyNotFound
	}
	return v, nil
}

func (bk *boltBucket) Put(key, value []byte) error {
	if err := bk.b.Put(key, value); err != nil {
		return fmt.Errorf("kvstore: put: %w", err)
	}
	return nil
}

func (bk *boltBucket) Delete(key []byte) error {
	if err := bk.b.Delete(key); err != nil {
		return fmt.Errorf("kvstore: delete: %w", err)
	}
	return nil
}

func (bk *boltBucket) Cursor() Cursor {
	return &boltCursor{c: bk.b.Cursor()}
}

func (bk *boltBucket) NextSequence() (uint64, error) {
	seq, err := bk.b.NextSequence()
	if err != nil {
		return 0, fmt.Errorf("kvstore: next sequence: %w", err)
	}
	return seq, nil
}

func (bk *boltBucket) KeyCount() (int, error) {
	return bk.b.Stats().KeyN, nil
}

type boltCursor struct {
	c *bolt.Cursor
}

func (c *boltCursor) First() (key, value []byte)        { return c.c.First() }
func (c *boltCursor) Last() (key, value []byte)         { return c.c.Last() }
func (c *boltCursor) Next() (key, value []byte)         { return c.c.Next() }
func (c *boltCursor) Prev() (key, value []byte)         { return c.c.Prev() }
func (c *boltCursor) Seek(seek []byte) (key, value []byte) { return c.c.Seek(seek) }
