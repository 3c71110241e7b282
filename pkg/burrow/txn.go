package burrow

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/kvstore"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
)

const cursorPoolSize = 3

// pooledCursor is a reusable wrapper around a substrate cursor. bind
// rebinds it to a freshly opened cursor on the requested bucket; bbolt
// offers no true rebind-in-place primitive, so "reuse" here means reusing
// the wrapper allocation and the pool slot, not the underlying bolt
// cursor struct itself — the part of the cost this actually amortizes is
// the bookkeeping around cursor lifetime, while the bound on retained
// cursors (≤3) is the actual bound callers can rely on.
type pooledCursor struct {
	underlying kvstore.Cursor
}

func (p *pooledCursor) bind(b kvstore.Bucket) { p.underlying = b.Cursor() }
func (p *pooledCursor) unbind()               { p.underlying = nil }

func (p *pooledCursor) First() (key, value []byte)         { return p.underlying.First() }
func (p *pooledCursor) Last() (key, value []byte)          { return p.underlying.Last() }
func (p *pooledCursor) Next() (key, value []byte)          { return p.underlying.Next() }
func (p *pooledCursor) Prev() (key, value []byte)          { return p.underlying.Prev() }
func (p *pooledCursor) Seek(seek []byte) (key, value []byte) { return p.underlying.Seek(seek) }

// Txn wraps one substrate transaction with a scratch buffer, cursor
// pool, and change-set accumulator. A Txn is not safe
// for concurrent use from more than one goroutine; callers must serialize
// their own use of it, matching bbolt's own *bolt.Tx contract.
type Txn struct {
	inst *Instance
	tx   kvstore.Tx
	write bool

	active  bool
	latched bool

	scratch      []byte
	scratchTaken bool

	idle []*pooledCursor

	changes *ChangeSet

	startedAt time.Time
	log       zerolog.Logger
}

func newTxn(inst *Instance, tx kvstore.Tx, write bool) *Txn {
	return &Txn{
		inst:      inst,
		tx:        tx,
		write:     write,
		active:    true,
		changes:   newChangeSet(),
		startedAt: time.Now(),
		log:       log.WithTxn(inst.id, write),
	}
}

func (t *Txn) Writable() bool { return t.write }

// checkActive returns TransactionClosed if the transaction has already
// been committed, aborted, or latched by a prior failed mutation.
func (t *Txn) checkActive() error {
	if !t.active || t.latched {
		return newErr(KindTransactionClosed, "transaction is no longer active")
	}
	return nil
}

// guard wraps a mutating primitive: any non-nil error it observes latches
// the transaction, so every later operation fails fast with
// TransactionClosed instead of touching a substrate transaction that may
// already be in an undefined state.
func (t *Txn) guard(err error) error {
	if err != nil {
		t.latched = true
		t.log.Debug().Err(err).Dur("elapsed", time.Since(t.startedAt)).Msg("mutation latched transaction")
	}
	return err
}

func (t *Txn) acquireCursor(b kvstore.Bucket) *pooledCursor {
	if n := len(t.idle); n > 0 {
		pc := t.idle[n-1]
		t.idle = t.idle[:n-1]
		pc.bind(b)
		metrics.CursorPoolIdle.Dec()
		return pc
	}
	pc := &pooledCursor{}
	pc.bind(b)
	return pc
}

func (t *Txn) releaseCursor(pc *pooledCursor) {
	pc.unbind()
	if len(t.idle) < cursorPoolSize {
		t.idle = append(t.idle, pc)
		metrics.CursorPoolIdle.Inc()
	}
}

// dropIdleCursors removes this transaction's contribution to
// CursorPoolIdle when it closes; its pooled cursors stop existing along
// with it.
func (t *Txn) dropIdleCursors() {
	metrics.CursorPoolIdle.Sub(float64(len(t.idle)))
	t.idle = nil
}

// takeScratch moves the transaction's reusable buffer out to the caller,
// cleared to zero length. Only one borrow may be outstanding at a time;
// callers must return the buffer with putScratch before the next
// operation that needs it.
func (t *Txn) takeScratch() []byte {
	if t.scratchTaken {
		panic("burrow: transaction scratch buffer already borrowed")
	}
	t.scratchTaken = true
	buf := t.scratch
	t.scratch = nil
	return buf[:0]
}

func (t *Txn) putScratch(buf []byte) {
	t.scratch = buf
	t.scratchTaken = false
}

// Commit commits the underlying substrate transaction, then — only once
// that commit has returned success — dispatches the accumulated
// ChangeSet to the instance's watchers. A failed commit discards the
// change-set; abort_txn semantics apply: no watcher ever observes it.
func (t *Txn) Commit() error {
	if err := t.checkActive(); err != nil {
		return err
	}
	t.active = false
	t.dropIdleCursors()
	start := t.startedAt
	if err := t.tx.Commit(); err != nil {
		recordCommit(t.write, time.Since(start), false)
		t.log.Debug().Err(err).Dur("elapsed", time.Since(start)).Msg("commit failed")
		return wrapErr(KindDbFull, err, "commit failed")
	}
	recordCommit(t.write, time.Since(start), true)
	t.log.Debug().Dur("elapsed", time.Since(start)).Msg("commit succeeded")
	if !t.changes.empty() {
		t.inst.watchers.dispatch(t.changes.events())
	}
	return nil
}

// Abort discards the transaction and its change-set silently; Abort
// never fails.
func (t *Txn) Abort() {
	if !t.active {
		return
	}
	t.active = false
	t.dropIdleCursors()
	_ = t.tx.Rollback()
	t.log.Debug().Dur("elapsed", time.Since(t.startedAt)).Msg("transaction aborted")
}
