package frame

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXOR(t *testing.T) {
	assert.Equal(t, byte(0x6E), XOR(0x6E, nil))
	assert.Equal(t, byte(0x6E^0x51^0x82^0x01^0x10), XOR(0x6E, []byte{0x51, 0x82, 0x01, 0x10}))
}

func TestValidateXOR_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for _, seed := range []byte{0x00, 0x50, 0x6E} {
		for n := 0; n < 40; n++ {
			payload := make([]byte, n)
			for i := range payload {
				payload[i] = byte(rng.IntN(256))
			}

			span := AppendXOR(seed, payload)
			require.NoError(t, ValidateXOR(seed, span))

			// any single-byte corruption must be detected
			for i := range span {
				corrupt := append([]byte(nil), span...)
				corrupt[i] ^= byte(1 + rng.IntN(255))
				err := ValidateXOR(seed, corrupt)
				require.ErrorIs(t, err, ErrFraming)
				check, ok := CheckOf(err)
				require.True(t, ok)
				assert.Equal(t, CheckChecksum, check)
			}
		}
	}
}

func TestValidateXOR_Empty(t *testing.T) {
	err := ValidateXOR(0, nil)
	check, ok := CheckOf(err)
	require.True(t, ok)
	assert.Equal(t, CheckLength, check)
}

func TestExpect(t *testing.T) {
	buf := []byte{0x52, 0xC7}

	require.NoError(t, Expect(buf, 0, 0x52, CheckLeader))

	err := Expect(buf, 1, 0xCA, CheckOpcode)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, CheckOpcode, fe.Check)
	assert.Equal(t, 1, fe.Offset)
	assert.Equal(t, 0xC7, fe.Got)
	assert.Equal(t, 0xCA, fe.Want)
	assert.Contains(t, err.Error(), "opcode check failed at offset 1")

	err = Expect(buf, 5, 0, CheckStatus)
	check, _ := CheckOf(err)
	assert.Equal(t, CheckLength, check)
}

func TestMinLength(t *testing.T) {
	require.NoError(t, MinLength([]byte{1, 2}, 2))
	require.ErrorIs(t, MinLength([]byte{1}, 2), ErrFraming)
}

func TestCheckOf_NotFraming(t *testing.T) {
	_, ok := CheckOf(errors.New("other"))
	assert.False(t, ok)
}
