package kvstore

import "errors"

// ErrBucketNotFound is returned when a table name has no backing bucket.
var ErrBucketNotFound = errors.New("kvstore: bucket not found")

// ErrKeyNotFound is returned by Bucket.Get when the key is absent.
var ErrKeyNotFound = errors.New("kvstore: key not found")

// Stats reports substrate-level size information, enough to evaluate a
// compact predicate without depending on a specific backend's stat type.
type Stats struct {
	FileSize     int64
	FreelistSize int64
}

// DB is a live handle to one substrate environment: a directory (or file)
// holding one or more named buckets, opened for the lifetime of an
// Instance.
type DB interface {
	// Begin starts a transaction. writable=false transactions may run
	// concurrently with each other and with at most one writable one.
	Begin(writable bool) (Tx, error)

	// CreateBucketIfNotExists ensures a top-level bucket exists, outside
	// of any caller-visible transaction (used at schema-apply time).
	CreateBucketIfNotExists(name []byte) error

	Stats() Stats
	Path() string
	Close() error

	// Copy streams a consistent snapshot of the whole environment to w.
	Copy(w Writer) error
}

// Writer is the subset of io.Writer the substrate needs for hot-copy;
// declared locally so this package does not need to import io for one
// method signature.
type Writer interface {
	Write(p []byte) (n int, err error)
}

// Tx is one substrate transaction. A read-only Tx never blocks a writer;
// a writable Tx excludes all other writable transactions until it ends.
type Tx interface {
	Writable() bool

	// Bucket looks up a top-level bucket by name, or a nested bucket by
	// passing successive names (collection bucket, then index bucket).
	Bucket(names ...[]byte) (Bucket, error)

	CreateBucketIfNotExists(names ...[]byte) (Bucket, error)
	DeleteBucket(names ...[]byte) error

	Commit() error
	Rollback() error
}

// Bucket is one ordered byte-key -> byte-value map.
type Bucket interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error

	// Cursor returns a positionable iterator over this bucket's entries
	// in key order. The cursor is only valid while the owning Tx is
	// active.
	Cursor() Cursor

	// NextSequence returns a monotonically increasing integer, persisted
	// across transactions, used to auto-allocate object ids.
	NextSequence() (uint64, error)

	// KeyCount reports the number of live key/value pairs.
	KeyCount() (int, error)
}

// Cursor walks a Bucket's entries in key order. A nil key returned from
// any positioning method means the cursor ran off the end (or start) of
// the bucket.
type Cursor interface {
	First() (key, value []byte)
	Last() (key, value []byte)
	Next() (key, value []byte)
	Prev() (key, value []byte)

	// Seek positions at the first key >= seek (or nil if none).
	Seek(seek []byte) (key, value []byte)
}
