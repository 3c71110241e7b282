/*
Package codec implements Burrow's binary object encoding: a self-describing
byte layout that embeds a property offset table at a known header position,
so a Reader can locate and decode any single property in O(1) without
decoding the whole object. Strings and nested objects are referenced by
offset/length relative to the object's start and returned to callers as
slices that borrow directly from the substrate's mapped pages — callers
must not retain them past the owning transaction.
*/
package codec

import "github.com/cuemby/burrow/pkg/schema"

// nullOffset is the offset-table sentinel marking a property as null. A
// real property body can never begin at this offset (it exceeds any
// object Burrow will ever encode), so it is safe to reserve.
const nullOffset = 0xFFFFFFFF

// Value is a tagged union over one property's value, used on the write
// path (Collection.Insert/Update setters) to describe what to encode.
// Only the field matching Kind is meaningful; Null overrides all of them.
type Value struct {
	Kind Kind

	Null bool

	Bool    bool
	Byte    byte
	Int32   int32
	Int64   int64
	Float32 float32
	Float64 float64
	String  string
	Object  []byte // a pre-encoded nested object, produced by Encode

	BoolList    []bool
	ByteList    []byte
	Int32List   []int32
	Int64List   []int64
	Float32List []float32
	Float64List []float64
	StringList  []string
	ObjectList  [][]byte
}

// Kind is an alias of schema.Kind, so a codec.Kind and a schema.Kind are
// the same type and need no conversion between the two packages.
type Kind = schema.Kind

func NullValue(k Kind) Value           { return Value{Kind: k, Null: true} }
func BoolValue(v bool) Value           { return Value{Kind: schema.KindBool, Bool: v} }
func ByteValue(v byte) Value           { return Value{Kind: schema.KindByte, Byte: v} }
func Int32Value(v int32) Value         { return Value{Kind: schema.KindInt32, Int32: v} }
func Int64Value(v int64) Value         { return Value{Kind: schema.KindInt64, Int64: v} }
func Float32Value(v float32) Value     { return Value{Kind: schema.KindFloat32, Float32: v} }
func Float64Value(v float64) Value     { return Value{Kind: schema.KindFloat64, Float64: v} }
func StringValue(v string) Value       { return Value{Kind: schema.KindString, String: v} }
func ObjectValue(v []byte) Value       { return Value{Kind: schema.KindObject, Object: v} }
func BoolListValue(v []bool) Value     { return Value{Kind: schema.KindBoolList, BoolList: v} }
func ByteListValue(v []byte) Value     { return Value{Kind: schema.KindByteList, ByteList: v} }
func Int32ListValue(v []int32) Value   { return Value{Kind: schema.KindInt32List, Int32List: v} }
func Int64ListValue(v []int64) Value   { return Value{Kind: schema.KindInt64List, Int64List: v} }
func Float32ListValue(v []float32) Value {
	return Value{Kind: schema.KindFloat32List, Float32List: v}
}
func Float64ListValue(v []float64) Value {
	return Value{Kind: schema.KindFloat64List, Float64List: v}
}
func StringListValue(v []string) Value { return Value{Kind: schema.KindStringList, StringList: v} }
func ObjectListValue(v [][]byte) Value { return Value{Kind: schema.KindObjectList, ObjectList: v} }
