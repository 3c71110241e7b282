/*
Package indexkey implements Burrow's total-order byte encoding for index
components: for every supported property kind, lexicographic byte order
over encoded keys equals the intended semantic order, with null sorting
before every non-null value of the same kind (except bool, where null and
false share one encoding). Composite index keys are the
concatenation of per-component encodings with no separator; every
component encoding below is fixed-width (truncating and padding variable
data) precisely so that concatenation stays self-delimiting without one.
*/
package indexkey

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// maxStringLen bounds how many UTF-8 bytes of a string participate in a
// non-hashed index component. Longer strings still compare correctly up
// to this many bytes; ties beyond it collapse (a documented trade-off,
// not a correctness bug: exact equality is always re-checked against the
// stored object during a filter evaluation).
const maxStringLen = 256

// presence-flag bytes prefixed onto every non-bool component so null
// always sorts first regardless of the value encoding that follows.
const (
	flagNull    = 0x00
	flagPresent = 0x01
)

// Bool encodes as a single byte: 0 for false-or-null, 1 for true. Bool
// has no separate null flag because the two-value domain already
// reserves 0 for "not true".
func Bool(v bool, isNull bool) []byte {
	if isNull || !v {
		return []byte{0}
	}
	return []byte{1}
}

func Int32(v int32, isNull bool) []byte {
	out := make([]byte, 1+4)
	if isNull {
		return out
	}
	out[0] = flagPresent
	binary.BigEndian.PutUint32(out[1:], uint32(v)^0x80000000)
	return out
}

func Int64(v int64, isNull bool) []byte {
	out := make([]byte, 1+8)
	if isNull {
		return out
	}
	out[0] = flagPresent
	binary.BigEndian.PutUint64(out[1:], uint64(v)^0x8000000000000000)
	return out
}

func Float32(v float32, isNull bool) []byte {
	out := make([]byte, 1+4)
	if isNull {
		return out
	}
	out[0] = flagPresent
	binary.BigEndian.PutUint32(out[1:], float32SortKey(v))
	return out
}

func Float64(v float64, isNull bool) []byte {
	out := make([]byte, 1+8)
	if isNull {
		return out
	}
	out[0] = flagPresent
	binary.BigEndian.PutUint64(out[1:], float64SortKey(v))
	return out
}

// float32SortKey flips the sign bit of a non-negative float so its raw
// bits compare correctly against negatives (whose bits are fully
// inverted), placing NaN deterministically above +Inf.
func float32SortKey(v float32) uint32 {
	if math.IsNaN(float64(v)) {
		return math.MaxUint32
	}
	bits := math.Float32bits(v)
	if bits&0x80000000 != 0 {
		return ^bits
	}
	return bits | 0x80000000
}

func float64SortKey(v float64) uint64 {
	if math.IsNaN(v) {
		return math.MaxUint64
	}
	bits := math.Float64bits(v)
	if bits&0x8000000000000000 != 0 {
		return ^bits
	}
	return bits | 0x8000000000000000
}

// String encodes a string component, case-folding first when
// caseSensitive is false (Unicode simple lower-casing, per the engine's
// documented resolution of non-ASCII case folding). The result is
// truncated/padded to a fixed width plus a 4-byte big-endian length
// suffix recording the folded string's true byte length, so that a
// string which is a true prefix of another still sorts before it even
// once both are truncated to the same padded width.
func String(v string, isNull bool, caseSensitive bool) []byte {
	out := make([]byte, 1+maxStringLen+4)
	if isNull {
		return out
	}
	out[0] = flagPresent
	folded := v
	if !caseSensitive {
		folded = strings.ToLower(v)
	}
	n := copy(out[1:1+maxStringLen], folded)
	binary.BigEndian.PutUint32(out[1+maxStringLen:], uint32(len(folded)))
	_ = n
	return out
}

// Hashed encodes a fixed-width, non-cryptographic hash of v (xxhash64),
// used for hashed string/bytes index components and for hashed list
// components. Hash order carries no semantic ordering beyond grouping
// equal values together.
func Hashed(v []byte, isNull bool) []byte {
	out := make([]byte, 1+8)
	if isNull {
		return out
	}
	out[0] = flagPresent
	binary.BigEndian.PutUint64(out[1:], xxhash.Sum64(v))
	return out
}

// HashedList hashes a list's elements as a deterministic concatenation of
// their individual byte representations, appended to the hash state in
// order, so two lists with the same elements in the same order hash
// equal.
func HashedList(elems [][]byte, isNull bool) []byte {
	if isNull {
		return Hashed(nil, true)
	}
	d := xxhash.New()
	for _, e := range elems {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e)))
		d.Write(lenBuf[:])
		d.Write(e)
	}
	out := make([]byte, 1+8)
	out[0] = flagPresent
	binary.BigEndian.PutUint64(out[1:], d.Sum64())
	return out
}

// Concat concatenates self-delimiting component encodings into one
// composite index key.
func Concat(components ...[]byte) []byte {
	total := 0
	for _, c := range components {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range components {
		out = append(out, c...)
	}
	return out
}
