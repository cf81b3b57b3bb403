// Package ddcci encodes and decodes DDC/CI (MCCS) messages exchanged with a display.
//
// The codec is transport independent: hidi2c carries the messages inside HID I2C
// bridge frames, drm writes them to a Linux i2c-dev node.
package ddcci

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Bus addresses.
const (
	// DisplayAddress is the 7-bit I2C address of the DDC/CI endpoint of a display.
	DisplayAddress = 0x37
	// HostWriteAddress is the source byte of host to display messages.
	HostWriteAddress = 0x51
	// RequestChecksumSeed seeds the checksum of host to display messages (DisplayAddress << 1).
	RequestChecksumSeed = 0x6E
	// ReplySourceAddress is the leading byte of display to host messages.
	ReplySourceAddress = 0x6E
	// ReplyChecksumSeed seeds the checksum of display to host messages.
	ReplyChecksumSeed = 0x50
)

// Opcodes.
const (
	OpVCPRequest          byte = 0x01
	OpVCPReply            byte = 0x02
	OpVCPSet              byte = 0x03
	OpTableReadRequest    byte = 0xE2
	OpCapabilitiesReply   byte = 0xE3
	OpTableReadReply      byte = 0xE4
	OpCapabilitiesRequest byte = 0xF3
)

// Delays a display needs between a request and the read of its reply, or before the next request.
const (
	VCPRequestDelay   = 40 * time.Millisecond
	VCPSetDelay       = 50 * time.Millisecond
	TableReadDelay    = 50 * time.Millisecond
	CapabilitiesDelay = 50 * time.Millisecond
)

// Reply sizes on the wire, including source, length and checksum bytes.
const (
	VCPReplyLength   = 11
	ChunkReplyLength = 38
	// MaxChunkData is the largest data fragment a capabilities or table reply carries.
	MaxChunkData = 32
)

var (
	// ErrUnsupportedVCP is returned when the display reports a VCP code as unsupported.
	ErrUnsupportedVCP = errors.New("ddcci: unsupported VCP code")
	// ErrVCPFailure is returned when the display reports an unspecified VCP error.
	ErrVCPFailure = errors.New("ddcci: VCP request failed")
)

// VCPValue is the reply to a VCP get request.
type VCPValue struct {
	Current uint16
	Maximum uint16
	// Temporary is set for momentary controls, such as a degauss.
	Temporary bool
}

func (v VCPValue) String() string {
	return fmt.Sprintf("current=%d max=%d temporary=%t", v.Current, v.Maximum, v.Temporary)
}

// VCPController reads and writes VCP controls of one display.
type VCPController interface {
	GetVCP(ctx context.Context, code byte) (VCPValue, error)
	SetVCP(ctx context.Context, code byte, value uint16) error
}

// CapabilitiesReader reads the MCCS capabilities string of a display into dst and
// returns its length.
type CapabilitiesReader interface {
	Capabilities(ctx context.Context, dst []byte) (int, error)
}

// Monitor is a display reachable over DDC/CI.
type Monitor interface {
	VCPController
	CapabilitiesReader
	ReadTable(ctx context.Context, code byte, dst []byte) (int, error)
}
