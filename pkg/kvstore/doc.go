/*
Package kvstore abstracts the ordered key-value substrate Burrow is built
on top of: an environment, named buckets ("tables"), read-only and
read-write transactions, and cursors that seek and iterate in key order.

Burrow treats the substrate as an external collaborator (see the top-level
design notes): the engine never assumes a specific storage backend, only
the operations declared by the DB/Tx/Bucket/Cursor interfaces below. The
one implementation shipped here wraps go.etcd.io/bbolt, which supplies:

  - a single writer at a time, serialized by bbolt's own internal lock
  - unlimited concurrent readers against memory-mapped, copy-on-write
    snapshots (MVCC without a separate versioning layer)
  - named top-level buckets, nested to let a collection's secondary
    indexes live under its own subtree for fast whole-collection drop

bbolt has no native duplicate-key ("dupsort") bucket type, so non-unique
secondary indexes are emulated by appending the object id to the index key
before using it as a bucket key (see pkg/burrow/collection.go). That
keeps every bucket a plain ordered byte-key -> byte-value map, which is
all this package's interface needs to expose.
*/
package kvstore
