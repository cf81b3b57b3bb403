package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneSlice(t *testing.T) {
	src := []byte{1, 2, 3}

	clone := CloneSlice(src, 0)
	assert.Equal(t, src, clone)
	clone[0] = 9
	assert.Equal(t, byte(1), src[0])

	assert.Equal(t, []byte{1, 2, 3, 0}, CloneSlice(src, 4))
	assert.Equal(t, []byte{1}, CloneSlice(src, 1))
	assert.Empty(t, CloneSlice([]byte(nil), 0))
}

func TestCString(t *testing.T) {
	assert.Equal(t, "HX1000i", CString([]byte("HX1000i\x00\x00garbage")))
	assert.Equal(t, "no terminator", CString([]byte("no terminator")))
	assert.Equal(t, "", CString([]byte{0, 'a'}))
	assert.Equal(t, "", CString(nil))
}
