package hidi2c

import (
	"github.com/arloliu/go-hidlink/frame"
)

// FrameLength is the HID report size: the report id followed by 64 bytes.
const FrameLength = 65

// Bridge request kinds and I2C operations.
const (
	kindHandshake byte = 0x0C
	kindI2C       byte = 0x08

	opI2CWrite byte = 0x03
	opI2CRead  byte = 0x04

	i2cWriteMode byte = 0x03
	i2cReadMode  byte = 0x0b

	// ddcOffset is where the DDC/CI message starts in a request frame.
	ddcOffset = 9
	// replyHeaderLength is the size of the bridge header in front of a reply payload.
	replyHeaderLength = 4
)

var handshakeMarker = [3]byte{'H', 'I', 'D'}

// codec routes reply frames by sequence number and drops those of other sessions.
//
// Reply frame: [reportID, length, seq, session, status, data...], where length counts
// the four header bytes and status must be zero.
type codec struct {
	session byte
}

func (c codec) FrameLength() int { return FrameLength }

func (c codec) Correlate(f []byte) (byte, bool) {
	if f[3] != c.session {
		return 0, false
	}

	return f[2], true
}

func (c codec) Unwrap(f []byte) ([]byte, error) {
	msg := f[1:]
	n := int(msg[0])
	if n < replyHeaderLength || n > len(msg) {
		return nil, frame.Fail(frame.CheckLength, 1, n, replyHeaderLength)
	}
	if err := frame.Expect(msg, 3, 0, frame.CheckStatus); err != nil {
		return nil, err
	}

	return msg[replyHeaderLength:n], nil
}

func putHandshake(f []byte, seq, session byte) {
	copy(f[1:], []byte{kindHandshake, seq, session, 0x01, 0x80, 0x1a, 0x06})
}

func putI2CWrite(f []byte, seq, session, addr, length byte) {
	copy(f[1:], []byte{kindI2C, seq, session, opI2CWrite, length, 0, i2cWriteMode, addr})
}

func putI2CRead(f []byte, seq, session, addr, length byte) {
	copy(f[1:], []byte{kindI2C, seq, session, opI2CRead, length, 0, i2cReadMode, addr})
}

func checkHandshake(payload []byte) error {
	if err := frame.MinLength(payload, 8); err != nil {
		return err
	}
	for i, b := range handshakeMarker {
		if payload[5+i] != b {
			return frame.Fail(frame.CheckMarker, 5+i, int(payload[5+i]), int(b))
		}
	}

	return nil
}
