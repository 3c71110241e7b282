package codec

import (
	"encoding/binary"
	"math"

	"github.com/cuemby/burrow/pkg/schema"
)

// Reader is a thin, borrowing view over one encoded object's bytes. It is
// only valid while the transaction that produced data lives; callers must
// not retain a Reader, or any string/list/nested Reader obtained from it,
// past that transaction.
type Reader struct {
	id   int64
	data []byte
	coll *schema.Collection
}

// NewReader wraps data (the bytes stored for id under coll's primary
// bucket) in a Reader. data is not copied.
func NewReader(id int64, data []byte, coll *schema.Collection) *Reader {
	return &Reader{id: id, data: data, coll: coll}
}

func (r *Reader) ID() int64 { return r.id }

func (r *Reader) PropertyCount() int {
	return int(binary.LittleEndian.Uint16(r.data[0:2]))
}

// offset returns the raw offset-table entry for property index idx, and
// whether the property is present (non-null) in this object.
func (r *Reader) offset(idx uint16) (uint32, bool) {
	entry := 2 + 4*int(idx)
	if entry+4 > len(r.data) {
		return 0, false
	}
	off := binary.LittleEndian.Uint32(r.data[entry : entry+4])
	if off == nullOffset {
		return 0, false
	}
	return off, true
}

func (r *Reader) GetBool(idx uint16) (bool, bool) {
	off, ok := r.offset(idx)
	if !ok {
		return false, false
	}
	return r.data[off] != 0, true
}

func (r *Reader) GetByte(idx uint16) (byte, bool) {
	off, ok := r.offset(idx)
	if !ok {
		return 0, false
	}
	return r.data[off], true
}

func (r *Reader) GetInt32(idx uint16) (int32, bool) {
	off, ok := r.offset(idx)
	if !ok {
		return 0, false
	}
	return int32(binary.LittleEndian.Uint32(r.data[off:])), true
}

func (r *Reader) GetInt64(idx uint16) (int64, bool) {
	off, ok := r.offset(idx)
	if !ok {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(r.data[off:])), true
}

func (r *Reader) GetFloat32(idx uint16) (float32, bool) {
	off, ok := r.offset(idx)
	if !ok {
		return 0, false
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(r.data[off:])), true
}

func (r *Reader) GetFloat64(idx uint16) (float64, bool) {
	off, ok := r.offset(idx)
	if !ok {
		return 0, false
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(r.data[off:])), true
}

// GetString returns a borrowed, UTF-8-contracted view of a string
// property. The returned string shares memory with the Reader.
func (r *Reader) GetString(idx uint16) (string, bool) {
	b, ok := r.getBytes(idx)
	if !ok {
		return "", false
	}
	return unsafeString(b), true
}

// GetObject returns a borrowed Reader over a nested-object property,
// scoped to the nested collection named in the property descriptor.
func (r *Reader) GetObject(idx uint16, nested *schema.Collection) (*Reader, bool) {
	b, ok := r.getBytes(idx)
	if !ok {
		return nil, false
	}
	return &Reader{id: 0, data: b, coll: nested}, true
}

// GetObjectBytes returns the raw pre-encoded bytes of a nested-object
// property, for callers that need to carry an existing nested value
// forward into a re-encoded object (an update that only patches sibling
// properties) without decoding it.
func (r *Reader) GetObjectBytes(idx uint16) ([]byte, bool) {
	return r.getBytes(idx)
}

func (r *Reader) getBytes(idx uint16) ([]byte, bool) {
	off, ok := r.offset(idx)
	if !ok {
		return nil, false
	}
	length := binary.LittleEndian.Uint32(r.data[off:])
	start := off + 4
	return r.data[start : start+length], true
}

// GetList returns a ListReader for any list-kind property.
func (r *Reader) GetList(idx uint16) (*ListReader, bool) {
	off, ok := r.offset(idx)
	if !ok {
		return nil, false
	}
	count := binary.LittleEndian.Uint32(r.data[off:])
	return &ListReader{data: r.data[off+4:], count: int(count)}, true
}
