package frame

// XOR returns seed folded with every byte of data.
func XOR(seed byte, data []byte) byte {
	sum := seed
	for _, b := range data {
		sum ^= b
	}

	return sum
}

// AppendXOR appends XOR(seed, buf) to buf.
func AppendXOR(seed byte, buf []byte) []byte {
	return append(buf, XOR(seed, buf))
}

// ValidateXOR checks a span that ends with its own XOR checksum.
// The fold of seed over the whole span, checksum included, must be zero.
func ValidateXOR(seed byte, span []byte) error {
	if len(span) == 0 {
		return Fail(CheckLength, 0, 0, 1)
	}
	if sum := XOR(seed, span); sum != 0 {
		last := len(span) - 1
		return Fail(CheckChecksum, last, int(span[last]), int(XOR(seed, span[:last])))
	}

	return nil
}
