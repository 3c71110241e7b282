/*
Package jsonimport bulk-loads JSON documents into a burrow.Collection. It
decodes a top-level JSON array with github.com/goccy/go-json's streaming
Decoder rather than encoding/json, decoding one element at a time. Every
decoded element is held in memory until the closing bracket is read, and
only then are elements converted and inserted, because the inserter is
sized by the element count; the array is not inserted element by element
as it streams in. Every element is routed through the same
Collection.Insert inserter the rest of the public API uses; nothing is
partially committed on a decode failure, since Import never commits or
aborts the transaction it is given — that stays the caller's call.
*/
package jsonimport

import (
	"fmt"
	"io"

	goccy "github.com/goccy/go-json"

	"github.com/cuemby/burrow/pkg/burrow"
	"github.com/cuemby/burrow/pkg/codec"
	"github.com/cuemby/burrow/pkg/schema"
)

// Import decodes a top-level JSON array from r, converting each
// element's fields to property values by name against coll's schema, and
// inserts the result into coll within txn. It returns how many elements
// were inserted. Malformed JSON fails the whole call with KindJsonError
// before anything is inserted. An element whose fields do not convert
// fails with KindJsonError after the elements before it were already
// written into txn, so the caller must still Abort txn to discard them.
func Import(txn *burrow.Txn, coll *burrow.Collection, r io.Reader) (int, error) {
	dec := goccy.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return 0, burrow.WrapError(burrow.KindJsonError, err, "read opening token")
	}
	if d, ok := tok.(goccy.Delim); !ok || d != '[' {
		return 0, burrow.NewError(burrow.KindJsonError, "expected a top-level JSON array")
	}

	byName := make(map[string]schema.Property, len(coll.Schema().Properties))
	for _, p := range coll.Schema().Properties {
		byName[p.Name] = p
	}

	var elems []map[string]any
	for dec.More() {
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return 0, burrow.WrapError(burrow.KindJsonError, err, "decode element %d", len(elems))
		}
		elems = append(elems, obj)
	}
	if _, err := dec.Token(); err != nil {
		return 0, burrow.WrapError(burrow.KindJsonError, err, "read closing token")
	}

	ins := coll.Insert(txn, len(elems))
	for i, obj := range elems {
		values, err := valuesFromJSON(obj, byName)
		if err != nil {
			return i, burrow.WrapError(burrow.KindJsonError, err, "element %d", i)
		}
		if _, err := ins.Add(nil, values); err != nil {
			return i, err
		}
	}
	return len(elems), nil
}

// valuesFromJSON converts one decoded JSON object's fields into a
// codec.Value map keyed by property index. A field absent from obj, or
// explicitly JSON null, is carried as null; Object and ObjectList
// properties are not supported from JSON and fail with an error naming
// the property, the same scope limit the rest of the insert pipeline
// documents for nested values reached only through pre-encoded bytes.
func valuesFromJSON(obj map[string]any, byName map[string]schema.Property) (map[uint16]codec.Value, error) {
	out := make(map[uint16]codec.Value, len(byName))
	for name, p := range byName {
		raw, present := obj[name]
		if !present || raw == nil {
			out[p.Index] = codec.NullValue(p.Kind)
			continue
		}
		v, err := valueFromJSON(p, raw)
		if err != nil {
			return nil, err
		}
		out[p.Index] = v
	}
	return out, nil
}

func valueFromJSON(p schema.Property, raw any) (codec.Value, error) {
	switch p.Kind {
	case schema.KindBool:
		b, ok := raw.(bool)
		if !ok {
			return codec.Value{}, fmt.Errorf("property %q: expected bool, got %T", p.Name, raw)
		}
		return codec.BoolValue(b), nil
	case schema.KindByte:
		n, err := asNumber(p, raw)
		if err != nil {
			return codec.Value{}, err
		}
		return codec.ByteValue(byte(n)), nil
	case schema.KindInt32:
		n, err := asNumber(p, raw)
		if err != nil {
			return codec.Value{}, err
		}
		return codec.Int32Value(int32(n)), nil
	case schema.KindInt64:
		n, err := asNumber(p, raw)
		if err != nil {
			return codec.Value{}, err
		}
		return codec.Int64Value(int64(n)), nil
	case schema.KindFloat32:
		n, err := asNumber(p, raw)
		if err != nil {
			return codec.Value{}, err
		}
		return codec.Float32Value(float32(n)), nil
	case schema.KindFloat64:
		n, err := asNumber(p, raw)
		if err != nil {
			return codec.Value{}, err
		}
		return codec.Float64Value(n), nil
	case schema.KindString:
		s, ok := raw.(string)
		if !ok {
			return codec.Value{}, fmt.Errorf("property %q: expected string, got %T", p.Name, raw)
		}
		return codec.StringValue(s), nil
	case schema.KindBoolList:
		arr, err := asArray(p, raw)
		if err != nil {
			return codec.Value{}, err
		}
		vals := make([]bool, len(arr))
		for i, e := range arr {
			b, ok := e.(bool)
			if !ok {
				return codec.Value{}, fmt.Errorf("property %q[%d]: expected bool, got %T", p.Name, i, e)
			}
			vals[i] = b
		}
		return codec.BoolListValue(vals), nil
	case schema.KindByteList:
		arr, err := asArray(p, raw)
		if err != nil {
			return codec.Value{}, err
		}
		vals := make([]byte, len(arr))
		for i, e := range arr {
			n, ok := e.(float64)
			if !ok {
				return codec.Value{}, fmt.Errorf("property %q[%d]: expected number, got %T", p.Name, i, e)
			}
			vals[i] = byte(n)
		}
		return codec.ByteListValue(vals), nil
	case schema.KindInt32List:
		arr, err := asArray(p, raw)
		if err != nil {
			return codec.Value{}, err
		}
		vals := make([]int32, len(arr))
		for i, e := range arr {
			n, ok := e.(float64)
			if !ok {
				return codec.Value{}, fmt.Errorf("property %q[%d]: expected number, got %T", p.Name, i, e)
			}
			vals[i] = int32(n)
		}
		return codec.Int32ListValue(vals), nil
	case schema.KindInt64List:
		arr, err := asArray(p, raw)
		if err != nil {
			return codec.Value{}, err
		}
		vals := make([]int64, len(arr))
		for i, e := range arr {
			n, ok := e.(float64)
			if !ok {
				return codec.Value{}, fmt.Errorf("property %q[%d]: expected number, got %T", p.Name, i, e)
			}
			vals[i] = int64(n)
		}
		return codec.Int64ListValue(vals), nil
	case schema.KindFloat32List:
		arr, err := asArray(p, raw)
		if err != nil {
			return codec.Value{}, err
		}
		vals := make([]float32, len(arr))
		for i, e := range arr {
			n, ok := e.(float64)
			if !ok {
				return codec.Value{}, fmt.Errorf("property %q[%d]: expected number, got %T", p.Name, i, e)
			}
			vals[i] = float32(n)
		}
		return codec.Float32ListValue(vals), nil
	case schema.KindFloat64List:
		arr, err := asArray(p, raw)
		if err != nil {
			return codec.Value{}, err
		}
		vals := make([]float64, len(arr))
		for i, e := range arr {
			n, ok := e.(float64)
			if !ok {
				return codec.Value{}, fmt.Errorf("property %q[%d]: expected number, got %T", p.Name, i, e)
			}
			vals[i] = n
		}
		return codec.Float64ListValue(vals), nil
	case schema.KindStringList:
		arr, err := asArray(p, raw)
		if err != nil {
			return codec.Value{}, err
		}
		vals := make([]string, len(arr))
		for i, e := range arr {
			s, ok := e.(string)
			if !ok {
				return codec.Value{}, fmt.Errorf("property %q[%d]: expected string, got %T", p.Name, i, e)
			}
			vals[i] = s
		}
		return codec.StringListValue(vals), nil
	default:
		return codec.Value{}, fmt.Errorf("property %q: kind %s is not supported by JSON import", p.Name, p.Kind)
	}
}

func asNumber(p schema.Property, raw any) (float64, error) {
	n, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("property %q: expected number, got %T", p.Name, raw)
	}
	return n, nil
}

func asArray(p schema.Property, raw any) ([]any, error) {
	arr, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("property %q: expected array, got %T", p.Name, raw)
	}
	return arr, nil
}
