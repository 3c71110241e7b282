package codec

import (
	"encoding/binary"
	"math"
)

// ListReader is a borrowed view over one list-kind property. Fixed-width
// element kinds (bool, byte, int32, int64, float32, float64) support O(1)
// random access; string and object elements are length-prefixed and
// scanned sequentially, since Burrow does not require O(1) access to an
// individual element within a list — only to the property itself.
type ListReader struct {
	data  []byte
	count int
}

func (l *ListReader) Len() int { return l.count }

func (l *ListReader) Bool(i int) bool { return l.data[i] != 0 }
func (l *ListReader) Byte(i int) byte { return l.data[i] }

func (l *ListReader) Int32(i int) int32 {
	return int32(binary.LittleEndian.Uint32(l.data[4*i:]))
}

func (l *ListReader) Int64(i int) int64 {
	return int64(binary.LittleEndian.Uint64(l.data[8*i:]))
}

func (l *ListReader) Float32(i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(l.data[4*i:]))
}

func (l *ListReader) Float64(i int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(l.data[8*i:]))
}

// Strings decodes every string element; call once, not per-index, since
// elements are not individually addressable in O(1).
func (l *ListReader) Strings() []string {
	out := make([]string, 0, l.count)
	pos := 0
	for i := 0; i < l.count; i++ {
		n := int(binary.LittleEndian.Uint32(l.data[pos:]))
		pos += 4
		out = append(out, unsafeString(l.data[pos:pos+n]))
		pos += n
	}
	return out
}

// Objects decodes every nested-object element into a raw byte slice; the
// caller wraps each with codec.NewReader against the nested collection.
func (l *ListReader) Objects() [][]byte {
	out := make([][]byte, 0, l.count)
	pos := 0
	for i := 0; i < l.count; i++ {
		n := int(binary.LittleEndian.Uint32(l.data[pos:]))
		pos += 4
		out = append(out, l.data[pos:pos+n])
		pos += n
	}
	return out
}
