package burrow

import "encoding/binary"

// Reserved object id sentinels, per the data model's Open Question
// resolution: 0, math.MinInt64, and math.MaxInt64 never name a real
// object, so auto-allocation skips them and an explicit caller-supplied
// id equal to one of them is rejected outright.
const (
	reservedZero = int64(0)
	reservedMin  = int64(-1) << 63
	reservedMax  = int64(1)<<63 - 1
)

func isReservedID(id int64) bool {
	return id == reservedZero || id == reservedMin || id == reservedMax
}

// encodeID renders an object id as an 8-byte big-endian key that sorts in
// id order: the sign bit is flipped so negative ids (whose two's
// complement bit pattern is numerically larger) sort before non-negative
// ones, the same trick pkg/indexkey uses for signed integers.
func encodeID(id int64) []byte {
	var out [8]byte
	binary.BigEndian.PutUint64(out[:], uint64(id)^0x8000000000000000)
	return out[:]
}

func decodeID(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b) ^ 0x8000000000000000)
}
