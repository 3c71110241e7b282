package burrow

import (
	"time"

	"github.com/cuemby/burrow/pkg/query"
)

// runCursor plans and runs q against c within txn, timing and labeling the
// run by the driver pkg/query's planner chose (index or primary scan).
func (c *Collection) runCursor(txn *Txn, q *query.Query) (*query.Cursor, error) {
	src := c.source(txn)
	start := time.Now()
	cur, err := q.Cursor(src)
	recordQuery(q.DriverName(src), time.Since(start))
	return cur, err
}

// QueryUpdate applies patches to every object q matches, within q's own
// offset/limit window, recording one ChangeSet entry per affected id so
// watchers observe a bulk update as an ordinary sequence of per-id
// events. It returns the number of objects actually changed.
func (c *Collection) QueryUpdate(txn *Txn, q *query.Query, patches []Patch) (int, error) {
	cur, err := c.runCursor(txn, q)
	if err != nil {
		return 0, err
	}
	n := 0
	for {
		row, ok := cur.Next()
		if !ok {
			return n, nil
		}
		changed, err := c.Update(txn, row.ID, patches)
		if err != nil {
			return n, err
		}
		if changed {
			n++
		}
	}
}

// QueryDelete removes every object q matches, within q's own
// offset/limit window, the delete-side counterpart of QueryUpdate.
func (c *Collection) QueryDelete(txn *Txn, q *query.Query) (int, error) {
	cur, err := c.runCursor(txn, q)
	if err != nil {
		return 0, err
	}
	n := 0
	for {
		row, ok := cur.Next()
		if !ok {
			return n, nil
		}
		changed, err := c.Delete(txn, row.ID)
		if err != nil {
			return n, err
		}
		if changed {
			n++
		}
	}
}

// QueryAggregate runs a single-property aggregation over every object
// matching filter, independent of any sort/distinct/offset/limit a full
// Query would carry.
func (c *Collection) QueryAggregate(txn *Txn, filter *query.FilterNode, agg query.Aggregation, prop uint16) (*query.AggregateResult, error) {
	res, err := query.Aggregate(c.source(txn), filter, agg, prop)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
