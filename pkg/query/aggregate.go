package query

import "github.com/cuemby/burrow/pkg/schema"

// Aggregation is one of the reducers the query_aggregate operation
// supports.
type Aggregation int

const (
	AggCount Aggregation = iota
	AggIsEmpty
	AggMin
	AggMax
	AggSum
	AggAverage
)

// AggregateResult carries every reducer's output; only the fields
// relevant to the requested Aggregation are meaningful.
type AggregateResult struct {
	Count   int64
	IsEmpty bool

	MinFloat, MaxFloat float64
	MinInt, MaxInt      int64
	MinString, MaxString string
	IsFloatKind          bool
	IsStringKind         bool
	ValueIsNull          bool // true when Min/Max found no non-null rows

	SumFloat float64
	SumInt   int64

	Average     float64
	AverageNull bool // true when every row's property was null
}

// Aggregate scans src applying filter, reducing property prop (ignored
// for Count/IsEmpty) with agg. Nulls are skipped for Min/Max/Sum/Average.
func Aggregate(src Source, filter *FilterNode, agg Aggregation, prop uint16) (AggregateResult, error) {
	var res AggregateResult
	coll := src.Collection()

	if agg == AggCount || agg == AggIsEmpty {
		it, err := src.ScanPrimary(false)
		if err != nil {
			return res, err
		}
		defer it.Close()
		for {
			row, ok, err := it.Next()
			if err != nil {
				return res, err
			}
			if !ok {
				break
			}
			if !Eval(filter, row.Reader, coll) {
				continue
			}
			res.Count++
			if agg == AggIsEmpty {
				res.IsEmpty = false
				return res, nil
			}
		}
		res.IsEmpty = res.Count == 0
		return res, nil
	}

	p, ok := coll.PropertyByIndex(prop)
	if !ok {
		return res, nil
	}
	res.IsFloatKind = p.Kind == schema.KindFloat32 || p.Kind == schema.KindFloat64
	res.IsStringKind = p.Kind == schema.KindString

	it, err := src.ScanPrimary(false)
	if err != nil {
		return res, err
	}
	defer it.Close()

	var n int64
	res.ValueIsNull = true
	res.AverageNull = true
	first := true

	for {
		row, ok, err := it.Next()
		if err != nil {
			return res, err
		}
		if !ok {
			break
		}
		if !Eval(filter, row.Reader, coll) {
			continue
		}
		fv, iv, sv, isNull := propValue(row.Reader, p)
		if isNull {
			continue
		}
		n++
		res.ValueIsNull = false
		res.AverageNull = false

		switch agg {
		case AggMin, AggMax:
			if res.IsStringKind {
				if first || (agg == AggMin && sv < res.MinString) {
					res.MinString = sv
				}
				if first || (agg == AggMax && sv > res.MaxString) {
					res.MaxString = sv
				}
			} else if res.IsFloatKind {
				if first || (agg == AggMin && fv < res.MinFloat) {
					res.MinFloat = fv
				}
				if first || (agg == AggMax && fv > res.MaxFloat) {
					res.MaxFloat = fv
				}
			} else {
				if first || (agg == AggMin && iv < res.MinInt) {
					res.MinInt = iv
				}
				if first || (agg == AggMax && iv > res.MaxInt) {
					res.MaxInt = iv
				}
			}
			first = false
		case AggSum, AggAverage:
			if res.IsFloatKind {
				res.SumFloat += fv
			} else {
				res.SumInt += iv
			}
		}
	}

	if agg == AggAverage && n > 0 {
		if res.IsFloatKind {
			res.Average = res.SumFloat / float64(n)
		} else {
			res.Average = float64(res.SumInt) / float64(n)
		}
	}
	res.Count = n
	return res, nil
}

func propValue(r interface {
	GetInt32(uint16) (int32, bool)
	GetInt64(uint16) (int64, bool)
	GetFloat32(uint16) (float32, bool)
	GetFloat64(uint16) (float64, bool)
	GetByte(uint16) (byte, bool)
	GetString(uint16) (string, bool)
}, p *schema.Property) (f float64, i int64, s string, isNull bool) {
	switch p.Kind {
	case schema.KindByte:
		v, ok := r.GetByte(p.Index)
		return 0, int64(v), "", !ok
	case schema.KindInt32:
		v, ok := r.GetInt32(p.Index)
		return 0, int64(v), "", !ok
	case schema.KindInt64:
		v, ok := r.GetInt64(p.Index)
		return 0, v, "", !ok
	case schema.KindFloat32:
		v, ok := r.GetFloat32(p.Index)
		return float64(v), 0, "", !ok
	case schema.KindFloat64:
		v, ok := r.GetFloat64(p.Index)
		return v, 0, "", !ok
	case schema.KindString:
		v, ok := r.GetString(p.Index)
		return 0, 0, v, !ok
	}
	return 0, 0, "", true
}
