package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cuemby/burrow/pkg/schema"
)

// headerSize returns the byte size of the fixed header: a property count
// plus one uint32 offset-table entry per declared property.
func headerSize(n int) int { return 2 + 4*n }

// Encode appends the encoding of values (keyed by property index, missing
// entries treated as null) for the given collection's property list onto
// buf, returning the grown slice. buf is typically a transaction's
// reusable scratch buffer; Encode never retains buf after returning.
func Encode(buf []byte, props []schema.Property, values map[uint16]Value) ([]byte, error) {
	start := len(buf)
	n := len(props)
	buf = append(buf, make([]byte, headerSize(n))...)
	binary.LittleEndian.PutUint16(buf[start:], uint16(n))

	for i, p := range props {
		v, ok := values[p.Index]
		offsetEntry := start + 2 + 4*i
		if !ok || v.Null {
			binary.LittleEndian.PutUint32(buf[offsetEntry:], nullOffset)
			continue
		}
		if v.Kind != p.Kind {
			return nil, fmt.Errorf("codec: property %q: value kind %s does not match schema kind %s", p.Name, v.Kind, p.Kind)
		}
		valueStart := len(buf) - start
		binary.LittleEndian.PutUint32(buf[offsetEntry:], uint32(valueStart))
		var err error
		buf, err = appendValue(buf, v)
		if err != nil {
			return nil, fmt.Errorf("codec: property %q: %w", p.Name, err)
		}
	}
	return buf, nil
}

func appendValue(buf []byte, v Value) ([]byte, error) {
	switch v.Kind {
	case schema.KindBool:
		b := byte(0)
		if v.Bool {
			b = 1
		}
		return append(buf, b), nil
	case schema.KindByte:
		return append(buf, v.Byte), nil
	case schema.KindInt32:
		return appendUint32(buf, uint32(v.Int32)), nil
	case schema.KindInt64:
		return appendUint64(buf, uint64(v.Int64)), nil
	case schema.KindFloat32:
		return appendUint32(buf, math.Float32bits(v.Float32)), nil
	case schema.KindFloat64:
		return appendUint64(buf, math.Float64bits(v.Float64)), nil
	case schema.KindString:
		return appendBytes(buf, []byte(v.String)), nil
	case schema.KindObject:
		return appendBytes(buf, v.Object), nil
	case schema.KindBoolList:
		buf = appendUint32(buf, uint32(len(v.BoolList)))
		for _, b := range v.BoolList {
			x := byte(0)
			if b {
				x = 1
			}
			buf = append(buf, x)
		}
		return buf, nil
	case schema.KindByteList:
		buf = appendUint32(buf, uint32(len(v.ByteList)))
		return append(buf, v.ByteList...), nil
	case schema.KindInt32List:
		buf = appendUint32(buf, uint32(len(v.Int32List)))
		for _, x := range v.Int32List {
			buf = appendUint32(buf, uint32(x))
		}
		return buf, nil
	case schema.KindInt64List:
		buf = appendUint32(buf, uint32(len(v.Int64List)))
		for _, x := range v.Int64List {
			buf = appendUint64(buf, uint64(x))
		}
		return buf, nil
	case schema.KindFloat32List:
		buf = appendUint32(buf, uint32(len(v.Float32List)))
		for _, x := range v.Float32List {
			buf = appendUint32(buf, math.Float32bits(x))
		}
		return buf, nil
	case schema.KindFloat64List:
		buf = appendUint32(buf, uint32(len(v.Float64List)))
		for _, x := range v.Float64List {
			buf = appendUint64(buf, math.Float64bits(x))
		}
		return buf, nil
	case schema.KindStringList:
		buf = appendUint32(buf, uint32(len(v.StringList)))
		for _, s := range v.StringList {
			buf = appendBytes(buf, []byte(s))
		}
		return buf, nil
	case schema.KindObjectList:
		buf = appendUint32(buf, uint32(len(v.ObjectList)))
		for _, o := range v.ObjectList {
			buf = appendBytes(buf, o)
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("codec: unsupported kind %s", v.Kind)
	}
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendBytes(buf []byte, b []byte) []byte {
	buf = appendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}
