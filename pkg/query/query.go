package query

import (
	"sort"

	"github.com/cuemby/burrow/pkg/codec"
	"github.com/cuemby/burrow/pkg/indexkey"
	"github.com/cuemby/burrow/pkg/schema"
)

// Row is one matched (id, decoded object) pair.
type Row struct {
	ID     int64
	Reader *codec.Reader
}

// Iterator walks rows in a chosen scan order. Implementations returned by
// a Source may hold open substrate cursors and must be Closed.
type Iterator interface {
	Next() (Row, bool, error)
	Close()
}

// Source is the storage-facing half of query execution, implemented by
// the per-transaction source pkg/burrow's Collection builds. It keeps this package free of any dependency on
// transaction or substrate types.
type Source interface {
	Collection() *schema.Collection
	ScanPrimary(reverse bool) (Iterator, error)
	// ScanIndex walks idx's bucket in key order within [low, high] (either
	// bound nil means unbounded on that side), resolving each matched id
	// to its decoded object.
	ScanIndex(idx *schema.Index, reverse bool, low, high []byte) (Iterator, error)
}

// SortField is one key of a multi-key in-memory sort.
type SortField struct {
	Property      uint16
	Ascending     bool
	CaseSensitive bool
}

// Query is an immutable, planned-but-not-yet-executed request built by
// Builder.Build.
type Query struct {
	coll       *schema.Collection
	filter     *FilterNode
	sort       []SortField
	distinctBy []uint16
	indexHint  string
	offset     int
	limit      int // -1 means unbounded
}

// Builder accumulates a query against one collection.
type Builder struct {
	q *Query
}

func NewBuilder(coll *schema.Collection) *Builder {
	return &Builder{q: &Query{coll: coll, limit: -1}}
}

func (b *Builder) Filter(n *FilterNode) *Builder { b.q.filter = n; return b }

func (b *Builder) SortBy(prop uint16, ascending, caseSensitive bool) *Builder {
	b.q.sort = append(b.q.sort, SortField{Property: prop, Ascending: ascending, CaseSensitive: caseSensitive})
	return b
}

func (b *Builder) DistinctBy(props ...uint16) *Builder { b.q.distinctBy = props; return b }
func (b *Builder) UseIndex(name string) *Builder       { b.q.indexHint = name; return b }
func (b *Builder) Offset(n int) *Builder               { b.q.offset = n; return b }
func (b *Builder) Limit(n int) *Builder                { b.q.limit = n; return b }

func (b *Builder) Build() (*Query, error) {
	if b.q.indexHint != "" {
		found := false
		for _, idx := range b.q.coll.Indexes {
			if idx.Name == b.q.indexHint {
				found = true
				break
			}
		}
		if !found {
			return nil, &BuildError{Collection: b.q.coll.Name, Index: b.q.indexHint}
		}
	}
	return b.q, nil
}

// BuildError reports an unknown index hint.
type BuildError struct {
	Collection string
	Index      string
}

func (e *BuildError) Error() string {
	return "query: collection " + e.Collection + " has no index named " + e.Index
}

// driver picks a leaf predicate that can drive an index scan, preferring
// the query's explicit index hint and falling back to a top-level
// equality/range leaf whose property matches a single-component index.
func (q *Query) driver(src Source) (*schema.Index, *Predicate) {
	coll := src.Collection()
	if q.indexHint != "" {
		for i := range coll.Indexes {
			if coll.Indexes[i].Name == q.indexHint {
				return &coll.Indexes[i], topLeafFor(q.filter, coll.Indexes[i].Components[0].PropertyIndex())
			}
		}
	}
	leaves := topLevelLeaves(q.filter)
	for _, p := range leaves {
		if p.Op != OpEqual && p.Op != OpBetween && p.Op != OpLess && p.Op != OpGreater {
			continue
		}
		for i := range coll.Indexes {
			idx := &coll.Indexes[i]
			if len(idx.Components) == 1 && idx.Components[0].PropertyIndex() == p.Property {
				return idx, p
			}
		}
	}
	return nil, nil
}

func topLeafFor(n *FilterNode, prop uint16) *Predicate {
	for _, p := range topLevelLeaves(n) {
		if p.Property == prop {
			return p
		}
	}
	return nil
}

// topLevelLeaves collects leaf predicates reachable without crossing an Or
// or Not, i.e. predicates that must ALL hold for the row to match.
func topLevelLeaves(n *FilterNode) []*Predicate {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindLeaf:
		return []*Predicate{n.Leaf}
	case KindAnd:
		var out []*Predicate
		for _, c := range n.Children {
			out = append(out, topLevelLeaves(c)...)
		}
		return out
	}
	return nil
}

func indexBounds(idx *schema.Index, p *Predicate) (low, high []byte) {
	if p == nil {
		return nil, nil
	}
	comp := idx.Components[0]
	switch p.Op {
	case OpEqual:
		k := componentKey(comp, p.Value)
		return k, k
	case OpBetween:
		return componentKey(comp, p.Value), componentKey(comp, p.Value2)
	case OpLess:
		return nil, componentKey(comp, p.Value)
	case OpGreater:
		return componentKey(comp, p.Value), nil
	}
	return nil, nil
}

func componentKey(comp schema.IndexComponent, v codec.Value) []byte {
	if comp.Hashed {
		return indexkey.Hashed([]byte(v.String), false)
	}
	switch comp.Kind() {
	case schema.KindBool:
		return indexkey.Bool(v.Bool, false)
	case schema.KindByte, schema.KindInt32:
		return indexkey.Int32(asInt64Pub(v), false)
	case schema.KindInt64:
		return indexkey.Int64(v.Int64, false)
	case schema.KindFloat32:
		return indexkey.Float32(v.Float32, false)
	case schema.KindFloat64:
		return indexkey.Float64(v.Float64, false)
	case schema.KindString:
		return indexkey.String(v.String, false, comp.CaseSensitive)
	}
	return nil
}

func asInt64Pub(v codec.Value) int32 {
	if v.Kind == schema.KindByte {
		return int32(v.Byte)
	}
	return v.Int32
}

// Cursor yields rows matching the query, applying distinct-by and
// in-memory sort/offset/limit as needed on top of the chosen scan. All
// matching rows are collected when the Cursor is built; Next only walks
// that slice.
type Cursor struct {
	rows []Row
	pos  int
}

func (q *Query) Cursor(src Source) (*Cursor, error) {
	reverse := len(q.sort) > 0 && !q.sort[0].Ascending && len(q.sort) == 1
	idx, pred := q.driver(src)

	var it Iterator
	var err error
	if idx != nil {
		low, high := indexBounds(idx, pred)
		it, err = src.ScanIndex(idx, reverse, low, high)
	} else {
		it, err = src.ScanPrimary(reverse)
	}
	if err != nil {
		return nil, err
	}
	defer it.Close()

	coll := src.Collection()
	var rows []Row
	for {
		row, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if !Eval(q.filter, row.Reader, coll) {
			continue
		}
		rows = append(rows, row)
	}

	if len(q.distinctBy) > 0 {
		rows = distinct(rows, coll, q.distinctBy)
	}

	if idx == nil || len(q.sort) > 1 || (len(q.sort) == 1 && q.sort[0].Property != idx.Components[0].PropertyIndex()) {
		sortRows(rows, coll, q.sort)
	}

	if q.offset > 0 {
		if q.offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[q.offset:]
		}
	}
	if q.limit >= 0 && q.limit < len(rows) {
		rows = rows[:q.limit]
	}

	return &Cursor{rows: rows}, nil
}

func (c *Cursor) Next() (Row, bool) {
	if c.pos >= len(c.rows) {
		return Row{}, false
	}
	row := c.rows[c.pos]
	c.pos++
	return row, true
}

func (c *Cursor) Len() int { return len(c.rows) }

// DriverName reports which scan strategy Cursor would pick for src:
// "index" when a component index drives the scan, "primary" otherwise.
// Exposed so callers can label query-duration metrics without this
// package needing to know anything about metrics itself.
func (q *Query) DriverName(src Source) string {
	if idx, _ := q.driver(src); idx != nil {
		return "index"
	}
	return "primary"
}

func distinct(rows []Row, coll *schema.Collection, props []uint16) []Row {
	seen := make(map[string]struct{}, len(rows))
	out := rows[:0]
	for _, row := range rows {
		key := distinctKey(row.Reader, coll, props)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, row)
	}
	return out
}

func distinctKey(r *codec.Reader, coll *schema.Collection, props []uint16) string {
	var buf []byte
	for _, p := range props {
		buf = append(buf, scalarKey(r, coll, p)...)
		buf = append(buf, 0)
	}
	return string(buf)
}

// scalarKey renders a scalar property as an order-preserving byte
// encoding, reusing pkg/indexkey so sort and distinct-by share the same
// notion of "equal" and "less" that indexes use. List and object
// properties are not supported as sort/distinct keys and render as a
// fixed marker, documented as a scope limitation.
func scalarKey(r *codec.Reader, coll *schema.Collection, prop uint16) []byte {
	p, ok := coll.PropertyByIndex(prop)
	if !ok {
		return nil
	}
	switch p.Kind {
	case schema.KindBool:
		v, ok := r.GetBool(prop)
		return indexkey.Bool(v, !ok)
	case schema.KindByte:
		v, ok := r.GetByte(prop)
		return indexkey.Int32(int32(v), !ok)
	case schema.KindInt32:
		v, ok := r.GetInt32(prop)
		return indexkey.Int32(v, !ok)
	case schema.KindInt64:
		v, ok := r.GetInt64(prop)
		return indexkey.Int64(v, !ok)
	case schema.KindFloat32:
		v, ok := r.GetFloat32(prop)
		return indexkey.Float32(v, !ok)
	case schema.KindFloat64:
		v, ok := r.GetFloat64(prop)
		return indexkey.Float64(v, !ok)
	case schema.KindString:
		v, ok := r.GetString(prop)
		return indexkey.String(v, !ok, true)
	default:
		return []byte{0}
	}
}

func compareProperty(a, b *codec.Reader, coll *schema.Collection, f SortField) int {
	p, ok := coll.PropertyByIndex(f.Property)
	if !ok {
		return 0
	}
	var ka, kb []byte
	if p.Kind == schema.KindString && !f.CaseSensitive {
		av, aok := a.GetString(f.Property)
		bv, bok := b.GetString(f.Property)
		ka, kb = indexkey.String(av, !aok, false), indexkey.String(bv, !bok, false)
	} else {
		ka = scalarKey(a, coll, f.Property)
		kb = scalarKey(b, coll, f.Property)
	}
	switch {
	case string(ka) < string(kb):
		return -1
	case string(ka) > string(kb):
		return 1
	default:
		return 0
	}
}

func sortRows(rows []Row, coll *schema.Collection, fields []SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, f := range fields {
			c := compareProperty(rows[i].Reader, rows[j].Reader, coll, f)
			if c == 0 {
				continue
			}
			if f.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}
