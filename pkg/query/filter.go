/*
Package query implements Burrow's query planning and execution: a filter
tree of conjunctions/disjunctions/negations over per-property predicates,
a sort order, distinct-by, offset/limit, an index-vs-primary-scan planner,
cursor iteration, and Count/Min/Max/Sum/Average aggregation. It depends
only on pkg/codec, pkg/indexkey and pkg/schema; pkg/burrow supplies the
Source implementation that lets this package reach into live collection
storage without the two packages importing each other circularly.
*/
package query

import (
	"strings"

	"github.com/cuemby/burrow/pkg/codec"
	"github.com/cuemby/burrow/pkg/schema"
)

// FilterKind is the shape of one FilterNode.
type FilterKind int

const (
	KindAnd FilterKind = iota
	KindOr
	KindNot
	KindLeaf
)

// CompareOp enumerates the comparison operators a filter predicate supports.
type CompareOp int

const (
	OpEqual CompareOp = iota
	OpNotEqual
	OpLess
	OpGreater
	OpBetween
	OpStartsWith
	OpEndsWith
	OpContains
	OpMatches // glob with * and ?
	OpIsNull
	OpListAnyEqual
	OpListAllEqual
	OpReference
)

// Predicate is one leaf test against a single property.
type Predicate struct {
	Property      uint16
	Op            CompareOp
	Value         codec.Value
	Value2        codec.Value // upper bound for Between
	Inclusive     bool
	Inclusive2    bool
	CaseSensitive bool
	Pattern       string          // for StartsWith/EndsWith/Contains/Matches
	Sub           *FilterNode     // nested filter for Reference
	NestedColl    *schema.Collection // target collection for Reference
}

// FilterNode is one node of the filter tree.
type FilterNode struct {
	Kind     FilterKind
	Children []*FilterNode
	Leaf     *Predicate
}

func And(nodes ...*FilterNode) *FilterNode { return &FilterNode{Kind: KindAnd, Children: nodes} }
func Or(nodes ...*FilterNode) *FilterNode  { return &FilterNode{Kind: KindOr, Children: nodes} }
func Not(n *FilterNode) *FilterNode        { return &FilterNode{Kind: KindNot, Children: []*FilterNode{n}} }

func leaf(p Predicate) *FilterNode { return &FilterNode{Kind: KindLeaf, Leaf: &p} }

func Equal(prop uint16, v codec.Value) *FilterNode {
	return leaf(Predicate{Property: prop, Op: OpEqual, Value: v})
}
func NotEqual(prop uint16, v codec.Value) *FilterNode {
	return leaf(Predicate{Property: prop, Op: OpNotEqual, Value: v})
}
func Less(prop uint16, v codec.Value, inclusive bool) *FilterNode {
	return leaf(Predicate{Property: prop, Op: OpLess, Value: v, Inclusive: inclusive})
}
func Greater(prop uint16, v codec.Value, inclusive bool) *FilterNode {
	return leaf(Predicate{Property: prop, Op: OpGreater, Value: v, Inclusive: inclusive})
}
func Between(prop uint16, lo, hi codec.Value, loInclusive, hiInclusive bool) *FilterNode {
	return leaf(Predicate{Property: prop, Op: OpBetween, Value: lo, Value2: hi, Inclusive: loInclusive, Inclusive2: hiInclusive})
}
func StartsWith(prop uint16, s string, caseSensitive bool) *FilterNode {
	return leaf(Predicate{Property: prop, Op: OpStartsWith, Pattern: s, CaseSensitive: caseSensitive})
}
func EndsWith(prop uint16, s string, caseSensitive bool) *FilterNode {
	return leaf(Predicate{Property: prop, Op: OpEndsWith, Pattern: s, CaseSensitive: caseSensitive})
}
func Contains(prop uint16, s string, caseSensitive bool) *FilterNode {
	return leaf(Predicate{Property: prop, Op: OpContains, Pattern: s, CaseSensitive: caseSensitive})
}
func Matches(prop uint16, glob string, caseSensitive bool) *FilterNode {
	return leaf(Predicate{Property: prop, Op: OpMatches, Pattern: glob, CaseSensitive: caseSensitive})
}
func IsNull(prop uint16) *FilterNode {
	return leaf(Predicate{Property: prop, Op: OpIsNull})
}
func ListAnyEqual(prop uint16, v codec.Value) *FilterNode {
	return leaf(Predicate{Property: prop, Op: OpListAnyEqual, Value: v})
}
func ListAllEqual(prop uint16, v codec.Value) *FilterNode {
	return leaf(Predicate{Property: prop, Op: OpListAllEqual, Value: v})
}
func Reference(prop uint16, nested *schema.Collection, sub *FilterNode) *FilterNode {
	return leaf(Predicate{Property: prop, Op: OpReference, Sub: sub, NestedColl: nested})
}

// Eval reports whether reader r (decoded against coll) satisfies node.
func Eval(node *FilterNode, r *codec.Reader, coll *schema.Collection) bool {
	if node == nil {
		return true
	}
	switch node.Kind {
	case KindAnd:
		for _, c := range node.Children {
			if !Eval(c, r, coll) {
				return false
			}
		}
		return true
	case KindOr:
		for _, c := range node.Children {
			if Eval(c, r, coll) {
				return true
			}
		}
		return len(node.Children) == 0
	case KindNot:
		return !Eval(node.Children[0], r, coll)
	case KindLeaf:
		return evalLeaf(node.Leaf, r, coll)
	}
	return false
}

func evalLeaf(p *Predicate, r *codec.Reader, coll *schema.Collection) bool {
	prop, ok := coll.PropertyByIndex(p.Property)
	if !ok {
		return false
	}

	if p.Op == OpIsNull {
		return isNull(r, p.Property, prop.Kind)
	}
	if p.Op == OpReference {
		nested, ok := r.GetObject(p.Property, p.NestedColl)
		if !ok {
			return false
		}
		return Eval(p.Sub, nested, p.NestedColl)
	}
	if p.Op == OpListAnyEqual || p.Op == OpListAllEqual {
		return evalList(p, r, prop.Kind)
	}

	switch prop.Kind {
	case schema.KindString:
		return evalString(p, r)
	case schema.KindBool:
		v, ok := r.GetBool(p.Property)
		if !ok {
			return false
		}
		return evalBool(p, v)
	case schema.KindByte:
		v, ok := r.GetByte(p.Property)
		if !ok {
			return false
		}
		return evalOrdered(p, int64(v), asInt64(p.Value), asInt64(p.Value2))
	case schema.KindInt32:
		v, ok := r.GetInt32(p.Property)
		if !ok {
			return false
		}
		return evalOrdered(p, int64(v), asInt64(p.Value), asInt64(p.Value2))
	case schema.KindInt64:
		v, ok := r.GetInt64(p.Property)
		if !ok {
			return false
		}
		return evalOrdered(p, v, asInt64(p.Value), asInt64(p.Value2))
	case schema.KindFloat32:
		v, ok := r.GetFloat32(p.Property)
		if !ok {
			return false
		}
		return evalOrderedF(p, float64(v), asFloat64(p.Value), asFloat64(p.Value2))
	case schema.KindFloat64:
		v, ok := r.GetFloat64(p.Property)
		if !ok {
			return false
		}
		return evalOrderedF(p, v, asFloat64(p.Value), asFloat64(p.Value2))
	}
	return false
}

func isNull(r *codec.Reader, idx uint16, kind schema.Kind) bool {
	switch kind {
	case schema.KindString:
		_, ok := r.GetString(idx)
		return !ok
	case schema.KindBool:
		_, ok := r.GetBool(idx)
		return !ok
	case schema.KindByte:
		_, ok := r.GetByte(idx)
		return !ok
	case schema.KindInt32:
		_, ok := r.GetInt32(idx)
		return !ok
	case schema.KindInt64:
		_, ok := r.GetInt64(idx)
		return !ok
	case schema.KindFloat32:
		_, ok := r.GetFloat32(idx)
		return !ok
	case schema.KindFloat64:
		_, ok := r.GetFloat64(idx)
		return !ok
	default:
		_, ok := r.GetList(idx)
		return !ok
	}
}

func evalBool(p *Predicate, v bool) bool {
	switch p.Op {
	case OpEqual:
		return v == p.Value.Bool
	case OpNotEqual:
		return v != p.Value.Bool
	}
	return false
}

func evalOrdered(p *Predicate, v, lo, hi int64) bool {
	switch p.Op {
	case OpEqual:
		return v == lo
	case OpNotEqual:
		return v != lo
	case OpLess:
		if p.Inclusive {
			return v <= lo
		}
		return v < lo
	case OpGreater:
		if p.Inclusive {
			return v >= lo
		}
		return v > lo
	case OpBetween:
		okLo := v > lo || (p.Inclusive && v == lo)
		okHi := v < hi || (p.Inclusive2 && v == hi)
		return okLo && okHi
	}
	return false
}

func evalOrderedF(p *Predicate, v, lo, hi float64) bool {
	switch p.Op {
	case OpEqual:
		return v == lo
	case OpNotEqual:
		return v != lo
	case OpLess:
		if p.Inclusive {
			return v <= lo
		}
		return v < lo
	case OpGreater:
		if p.Inclusive {
			return v >= lo
		}
		return v > lo
	case OpBetween:
		okLo := v > lo || (p.Inclusive && v == lo)
		okHi := v < hi || (p.Inclusive2 && v == hi)
		return okLo && okHi
	}
	return false
}

func evalString(p *Predicate, r *codec.Reader) bool {
	v, ok := r.GetString(p.Property)
	if !ok {
		return false
	}
	switch p.Op {
	case OpEqual:
		return strEq(v, p.Value.String, p.CaseSensitive)
	case OpNotEqual:
		return !strEq(v, p.Value.String, p.CaseSensitive)
	case OpStartsWith:
		return strHasPrefix(v, p.Pattern, p.CaseSensitive)
	case OpEndsWith:
		return strHasSuffix(v, p.Pattern, p.CaseSensitive)
	case OpContains:
		return strContains(v, p.Pattern, p.CaseSensitive)
	case OpMatches:
		return globMatch(p.Pattern, v, p.CaseSensitive)
	case OpLess:
		c := strCompare(v, p.Value.String, p.CaseSensitive)
		if p.Inclusive {
			return c <= 0
		}
		return c < 0
	case OpGreater:
		c := strCompare(v, p.Value.String, p.CaseSensitive)
		if p.Inclusive {
			return c >= 0
		}
		return c > 0
	case OpBetween:
		cl := strCompare(v, p.Value.String, p.CaseSensitive)
		ch := strCompare(v, p.Value2.String, p.CaseSensitive)
		okLo := cl > 0 || (p.Inclusive && cl == 0)
		okHi := ch < 0 || (p.Inclusive2 && ch == 0)
		return okLo && okHi
	}
	return false
}

func evalList(p *Predicate, r *codec.Reader, kind schema.Kind) bool {
	list, ok := r.GetList(p.Property)
	if !ok {
		return false
	}
	elem := kind.Elem()
	match := func(i int) bool {
		switch elem {
		case schema.KindInt32:
			return int64(list.Int32(i)) == asInt64(p.Value)
		case schema.KindInt64:
			return list.Int64(i) == asInt64(p.Value)
		case schema.KindFloat32:
			return float64(list.Float32(i)) == asFloat64(p.Value)
		case schema.KindFloat64:
			return list.Float64(i) == asFloat64(p.Value)
		case schema.KindBool:
			return list.Bool(i) == p.Value.Bool
		case schema.KindByte:
			return list.Byte(i) == p.Value.Byte
		case schema.KindString:
			// Strings() decodes the whole list; cheap relative to a full
			// object decode, and simpler than a per-index string accessor.
			return false
		}
		return false
	}
	if elem == schema.KindString {
		strs := list.Strings()
		for _, s := range strs {
			eq := strEq(s, p.Value.String, true)
			if p.Op == OpListAnyEqual && eq {
				return true
			}
			if p.Op == OpListAllEqual && !eq {
				return false
			}
		}
		return p.Op == OpListAllEqual
	}
	if p.Op == OpListAnyEqual {
		for i := 0; i < list.Len(); i++ {
			if match(i) {
				return true
			}
		}
		return false
	}
	for i := 0; i < list.Len(); i++ {
		if !match(i) {
			return false
		}
	}
	return true
}

func strEq(a, b string, caseSensitive bool) bool {
	if caseSensitive {
		return a == b
	}
	return strings.EqualFold(a, b)
}
func strHasPrefix(s, prefix string, caseSensitive bool) bool {
	if caseSensitive {
		return strings.HasPrefix(s, prefix)
	}
	return strings.HasPrefix(strings.ToLower(s), strings.ToLower(prefix))
}
func strHasSuffix(s, suffix string, caseSensitive bool) bool {
	if caseSensitive {
		return strings.HasSuffix(s, suffix)
	}
	return strings.HasSuffix(strings.ToLower(s), strings.ToLower(suffix))
}
func strContains(s, sub string, caseSensitive bool) bool {
	if caseSensitive {
		return strings.Contains(s, sub)
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
func strCompare(a, b string, caseSensitive bool) int {
	if !caseSensitive {
		a, b = strings.ToLower(a), strings.ToLower(b)
	}
	return strings.Compare(a, b)
}

func asInt64(v codec.Value) int64 {
	switch v.Kind {
	case schema.KindInt32:
		return int64(v.Int32)
	case schema.KindInt64:
		return v.Int64
	case schema.KindByte:
		return int64(v.Byte)
	}
	return 0
}

func asFloat64(v codec.Value) float64 {
	switch v.Kind {
	case schema.KindFloat32:
		return float64(v.Float32)
	case schema.KindFloat64:
		return v.Float64
	}
	return 0
}
