package drm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-hidlink/frame"
)

func TestParseEDID(t *testing.T) {
	raw := makeEDID("GSM", 0x5B9A, 0x01010101, "108NTAB1C234", "LG ULTRAGEAR")

	e, err := ParseEDID(raw)
	require.NoError(t, err)
	assert.Equal(t, "GSM", e.Manufacturer)
	assert.Equal(t, uint16(0x1E6D), e.Identity.VendorID)
	assert.Equal(t, uint16(0x5B9A), e.Identity.ProductID)
	assert.Equal(t, uint32(0x01010101), e.Identity.IDSerial)
	assert.Equal(t, "108NTAB1C234", e.Identity.SerialNumber)
	assert.Equal(t, "LG ULTRAGEAR", e.Name)
}

func TestParseEDID_Invalid(t *testing.T) {
	good := makeEDID("DEL", 1, 2, "S", "N")

	_, err := ParseEDID(good[:100])
	require.ErrorIs(t, err, ErrInvalidEDID)
	assert.Equal(t, frame.CheckLength, checkOf(t, err))

	bad := append([]byte(nil), good...)
	bad[0] = 0x01
	_, err = ParseEDID(bad)
	require.ErrorIs(t, err, ErrInvalidEDID)
	assert.Equal(t, frame.CheckLeader, checkOf(t, err))

	bad = append([]byte(nil), good...)
	bad[20] ^= 0x10
	_, err = ParseEDID(bad)
	require.ErrorIs(t, err, ErrInvalidEDID)
	assert.Equal(t, frame.CheckChecksum, checkOf(t, err))
}

func checkOf(t *testing.T, err error) frame.Check {
	t.Helper()

	c, ok := frame.CheckOf(err)
	require.True(t, ok, "not a framing error: %v", err)

	return c
}
