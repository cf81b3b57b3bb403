package ddcci

import (
	"encoding/binary"
	"fmt"

	"github.com/arloliu/go-hidlink/frame"
)

// Request sizes in bytes, source byte and checksum included.
const (
	VCPRequestSize          = 5
	VCPSetSize              = 7
	CapabilitiesRequestSize = 6
	TableReadRequestSize    = 7
)

// PutVCPRequest writes a VCP get request for code into dst and returns its size.
func PutVCPRequest(dst []byte, src, code byte) int {
	dst[0] = src
	dst[1] = 0x82
	dst[2] = OpVCPRequest
	dst[3] = code
	dst[4] = frame.XOR(RequestChecksumSeed, dst[:4])

	return VCPRequestSize
}

// PutVCPSet writes a VCP set request into dst and returns its size.
func PutVCPSet(dst []byte, src, code byte, value uint16) int {
	dst[0] = src
	dst[1] = 0x84
	dst[2] = OpVCPSet
	dst[3] = code
	binary.BigEndian.PutUint16(dst[4:], value)
	dst[6] = frame.XOR(RequestChecksumSeed, dst[:6])

	return VCPSetSize
}

// PutCapabilitiesRequest writes a capabilities request for the fragment at offset.
func PutCapabilitiesRequest(dst []byte, src byte, offset uint16) int {
	dst[0] = src
	dst[1] = 0x83
	dst[2] = OpCapabilitiesRequest
	binary.BigEndian.PutUint16(dst[3:], offset)
	dst[5] = frame.XOR(RequestChecksumSeed, dst[:5])

	return CapabilitiesRequestSize
}

// PutTableReadRequest writes a table read request for code at offset.
func PutTableReadRequest(dst []byte, src, code byte, offset uint16) int {
	dst[0] = src
	dst[1] = 0x84
	dst[2] = OpTableReadRequest
	dst[3] = code
	binary.BigEndian.PutUint16(dst[4:], offset)
	dst[6] = frame.XOR(RequestChecksumSeed, dst[:6])

	return TableReadRequestSize
}

// ParseReply validates a display to host message and returns the bytes following the opcode.
//
// msg layout: [0x6E, 0x80|n, opcode, body(n-1), checksum], where the checksum folds
// to zero with ReplyChecksumSeed over the whole span.
func ParseReply(msg []byte, opcode byte) ([]byte, error) {
	if err := frame.MinLength(msg, 3); err != nil {
		return nil, err
	}
	if err := frame.Expect(msg, 0, ReplySourceAddress, frame.CheckAddress); err != nil {
		return nil, err
	}
	if msg[1] < 0x81 {
		return nil, frame.Fail(frame.CheckLength, 1, int(msg[1]), 0x81)
	}

	n := int(msg[1] & 0x7F)
	if err := frame.MinLength(msg, n+3); err != nil {
		return nil, err
	}
	if err := frame.Expect(msg, 2, opcode, frame.CheckOpcode); err != nil {
		return nil, err
	}
	if err := frame.ValidateXOR(ReplyChecksumSeed, msg[:n+3]); err != nil {
		return nil, err
	}

	return msg[3 : 3+n-1], nil
}

// ParseVCPReply decodes the reply to a VCP get request for code.
func ParseVCPReply(msg []byte, code byte) (VCPValue, error) {
	body, err := ParseReply(msg, OpVCPReply)
	if err != nil {
		return VCPValue{}, err
	}
	if len(body) != 7 {
		return VCPValue{}, frame.Fail(frame.CheckLength, 3, len(body), 7)
	}

	switch body[0] {
	case 0:
	case 1:
		return VCPValue{}, fmt.Errorf("%w: 0x%02X", ErrUnsupportedVCP, code)
	default:
		return VCPValue{}, fmt.Errorf("%w: code 0x%02X, result 0x%02X", ErrVCPFailure, code, body[0])
	}

	if body[1] != code {
		return VCPValue{}, frame.Fail(frame.CheckField, 4, int(body[1]), int(code))
	}

	return VCPValue{
		Temporary: body[2] != 0,
		Maximum:   binary.BigEndian.Uint16(body[3:]),
		Current:   binary.BigEndian.Uint16(body[5:]),
	}, nil
}

// ParseChunk decodes one fragment of a capabilities or table read reply.
// The returned data aliases msg.
func ParseChunk(msg []byte, opcode byte) (offset int, data []byte, err error) {
	body, err := ParseReply(msg, opcode)
	if err != nil {
		return 0, nil, err
	}
	if len(body) < 2 {
		return 0, nil, frame.Fail(frame.CheckLength, 3, len(body), 2)
	}

	return int(binary.BigEndian.Uint16(body)), body[2:], nil
}

// AppendReply builds a display to host message. It is the inverse of ParseReply and
// is used by device simulators.
func AppendReply(dst []byte, opcode byte, body []byte) []byte {
	start := len(dst)
	dst = append(dst, ReplySourceAddress, 0x80|byte(len(body)+1), opcode)
	dst = append(dst, body...)

	return append(dst, frame.XOR(ReplyChecksumSeed, dst[start:]))
}

// AppendVCPReply builds a successful VCP get reply.
func AppendVCPReply(dst []byte, code byte, v VCPValue) []byte {
	body := []byte{0, code, 0, 0, 0, 0, 0}
	if v.Temporary {
		body[2] = 1
	}
	binary.BigEndian.PutUint16(body[3:], v.Maximum)
	binary.BigEndian.PutUint16(body[5:], v.Current)

	return AppendReply(dst, OpVCPReply, body)
}

// AppendChunkReply builds a capabilities or table read fragment.
func AppendChunkReply(dst []byte, opcode byte, offset uint16, data []byte) []byte {
	body := make([]byte, 2, 2+len(data))
	binary.BigEndian.PutUint16(body, offset)

	return AppendReply(dst, opcode, append(body, data...))
}
