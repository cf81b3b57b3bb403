package pmbus

import (
	"encoding/binary"
	"math"
)

// Linear11 is a PMBus LINEAR11 value: a signed 5 bit exponent in the top bits and a
// signed 11 bit mantissa in the low bits.
type Linear11 uint16

// Linear11FromBytes decodes the little-endian word a device returns.
func Linear11FromBytes(b []byte) Linear11 {
	return Linear11(binary.LittleEndian.Uint16(b))
}

// Exponent returns the signed exponent.
func (v Linear11) Exponent() int {
	return int(int16(v) >> 11)
}

// Mantissa returns the signed mantissa.
func (v Linear11) Mantissa() int {
	return int(int16(v<<5) >> 5)
}

// Float64 returns mantissa * 2^exponent.
func (v Linear11) Float64() float64 {
	return math.Ldexp(float64(v.Mantissa()), v.Exponent())
}

// NewLinear11 packs a mantissa and exponent. Out of range inputs are truncated to their field widths.
func NewLinear11(mantissa, exponent int) Linear11 {
	return Linear11(uint16(exponent&0x1F)<<11 | uint16(mantissa&0x7FF))
}
