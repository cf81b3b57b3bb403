// Package frame holds the checksum and structural validation primitives shared by
// the fixed-length report protocols.
//
// Framing failures are reported as *Error values, which match ErrFraming with errors.Is
// and carry the check that failed and the offset where it failed.
package frame

import (
	"errors"
	"fmt"
)

// ErrFraming is the error kind of every structural validation failure.
var ErrFraming = errors.New("frame: invalid frame")

// Check names the structural check that rejected a frame.
type Check uint8

const (
	CheckLength Check = iota + 1
	CheckLeader
	CheckTrailer
	CheckChecksum
	CheckOpcode
	CheckAddress
	CheckStatus
	CheckMarker
	CheckField
)

func (c Check) String() string {
	switch c {
	case CheckLength:
		return "length"
	case CheckLeader:
		return "leader"
	case CheckTrailer:
		return "trailer"
	case CheckChecksum:
		return "checksum"
	case CheckOpcode:
		return "opcode"
	case CheckAddress:
		return "address"
	case CheckStatus:
		return "status"
	case CheckMarker:
		return "marker"
	case CheckField:
		return "field"
	default:
		return fmt.Sprintf("check(%d)", uint8(c))
	}
}

// Error describes a frame rejected by a structural check.
type Error struct {
	Check  Check
	Offset int
	Got    int
	Want   int
}

func (e *Error) Error() string {
	return fmt.Sprintf("frame: %s check failed at offset %d: got 0x%02X, want 0x%02X", e.Check, e.Offset, e.Got, e.Want)
}

// Unwrap makes every *Error match ErrFraming.
func (e *Error) Unwrap() error { return ErrFraming }

// Fail returns a *Error for check at offset.
func Fail(check Check, offset, got, want int) error {
	return &Error{Check: check, Offset: offset, Got: got, Want: want}
}

// Expect checks that buf[offset] equals want.
func Expect(buf []byte, offset int, want byte, check Check) error {
	if offset >= len(buf) {
		return Fail(CheckLength, offset, len(buf), offset+1)
	}
	if buf[offset] != want {
		return Fail(check, offset, int(buf[offset]), int(want))
	}

	return nil
}

// MinLength checks that buf holds at least n bytes.
func MinLength(buf []byte, n int) error {
	if len(buf) < n {
		return Fail(CheckLength, 0, len(buf), n)
	}

	return nil
}

// CheckOf returns the check carried by err, if err wraps a *Error.
func CheckOf(err error) (Check, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Check, true
	}

	return 0, false
}
