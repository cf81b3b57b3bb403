// Package util holds small byte helpers shared by the device codecs.
package util

import "bytes"

// CloneSlice returns a copy of src that doesn't alias it. The copy has size elements,
// or len(src) when size is 0; a larger size pads with zero values and a smaller one cuts.
func CloneSlice[T any](src []T, size int) []T {
	if size == 0 {
		size = len(src)
	}
	dst := make([]T, size)
	copy(dst, src)

	return dst
}

// CString returns the text of b up to the first NUL byte, or all of b when there is none.
func CString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}

	return string(b)
}
