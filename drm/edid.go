package drm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/arloliu/go-hidlink/frame"
	"github.com/arloliu/go-hidlink/remote"
)

// ErrInvalidEDID is returned for EDID blobs that fail the header or checksum check.
var ErrInvalidEDID = errors.New("drm: invalid EDID")

const edidBlockLength = 128

var edidHeader = [8]byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

const (
	descriptorSerial byte = 0xFF
	descriptorName   byte = 0xFC
)

// EDID holds the fields of the base EDID block used to identify a monitor.
type EDID struct {
	Identity remote.MonitorIdentity
	// Manufacturer is the three letter PNP id, e.g. "GSM".
	Manufacturer string
	Name         string
}

// ParseEDID decodes the base block of an EDID blob.
func ParseEDID(b []byte) (EDID, error) {
	if err := frame.MinLength(b, edidBlockLength); err != nil {
		return EDID{}, fmt.Errorf("%w: %w", ErrInvalidEDID, err)
	}
	for i, want := range edidHeader {
		if err := frame.Expect(b, i, want, frame.CheckLeader); err != nil {
			return EDID{}, fmt.Errorf("%w: %w", ErrInvalidEDID, err)
		}
	}
	var sum byte
	for _, c := range b[:edidBlockLength] {
		sum += c
	}
	if sum != 0 {
		return EDID{}, fmt.Errorf("%w: %w", ErrInvalidEDID, frame.Fail(frame.CheckChecksum, edidBlockLength-1, int(sum), 0))
	}

	vendor := binary.BigEndian.Uint16(b[8:])
	e := EDID{
		Identity: remote.MonitorIdentity{
			VendorID:  vendor,
			ProductID: binary.LittleEndian.Uint16(b[10:]),
			IDSerial:  binary.LittleEndian.Uint32(b[12:]),
		},
		Manufacturer: string([]byte{
			'A' - 1 + byte(vendor>>10&0x1F),
			'A' - 1 + byte(vendor>>5&0x1F),
			'A' - 1 + byte(vendor&0x1F),
		}),
	}

	for d := 54; d < 126; d += 18 {
		desc := b[d : d+18]
		if desc[0] != 0 || desc[1] != 0 || desc[2] != 0 {
			continue
		}
		switch desc[3] {
		case descriptorSerial:
			e.Identity.SerialNumber = descriptorText(desc)
		case descriptorName:
			e.Name = descriptorText(desc)
		}
	}

	return e, nil
}

func descriptorText(desc []byte) string {
	text := desc[5:18]
	if i := strings.IndexByte(string(text), 0x0A); i >= 0 {
		text = text[:i]
	}

	return strings.TrimSpace(string(text))
}
