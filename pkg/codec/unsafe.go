package codec

import "unsafe"

// unsafeString views b as a string without copying, for the zero-copy
// borrowed-reader contract described in the package doc comment. The
// returned string is only valid as long as b (and the transaction that
// produced it) remains valid.
func unsafeString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}
