// Package pmbus reads and writes power supply registers through the Corsair Link HID bridge.
//
// The bridge carries PMBus commands in 64 byte reports without any request id, so a
// single command may be outstanding. Replies are recognised by their leader and command
// bytes and anything else on the wire is skipped.
package pmbus

import (
	"context"
	"errors"
	"fmt"

	"github.com/arloliu/go-hidlink/internal/util"
	"github.com/arloliu/go-hidlink/transport"
)

// FrameLength is the HID report size: the report id followed by 64 bytes.
const FrameLength = 65

const (
	opWrite     byte = 0x02
	opRead      byte = 0x03
	opHandshake byte = 0xFE
)

// Common PMBus command codes.
const (
	CmdPage             byte = 0x00
	CmdFanConfig12      byte = 0x3A
	CmdFanCommand1      byte = 0x3B
	CmdReadVIn          byte = 0x88
	CmdReadIIn          byte = 0x89
	CmdReadVOut         byte = 0x8B
	CmdReadIOut         byte = 0x8C
	CmdReadTemperature1 byte = 0x8D
	CmdReadTemperature2 byte = 0x8E
	CmdReadFanSpeed1    byte = 0x90
	CmdReadPOut         byte = 0x96
	CmdReadPIn          byte = 0x97
	CmdMfrID            byte = 0x99
	CmdMfrModel         byte = 0x9A
	// CmdFanMode is vendor specific: 0 automatic, 1 manual.
	CmdFanMode byte = 0xF0
)

// ErrInvalidEndpoint is returned when the bridge answers a command with command 0,
// which it does for commands the device does not implement.
var ErrInvalidEndpoint = errors.New("pmbus: invalid endpoint")

type slot struct{}

// codec hands every frame to the single waiter; the waiter decides whether it answers.
type codec struct{}

func (codec) FrameLength() int                { return FrameLength }
func (codec) Correlate([]byte) (slot, bool)   { return slot{}, true }
func (codec) Unwrap(f []byte) ([]byte, error) { return f[1:], nil }

// Device is an opened Corsair Link power supply.
type Device struct {
	t    *transport.Transport[slot]
	name string
}

// Open starts the transport on ch and performs the handshake. The channel is closed on failure.
func Open(ctx context.Context, ch transport.Channel, opts ...transport.Option) (*Device, error) {
	t, err := transport.New[slot](ch, codec{}, append([]transport.Option{transport.WithName("pmbus")}, opts...)...)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}

	d := &Device{t: t}
	if d.name, err = d.handshake(ctx); err != nil {
		_ = t.Close()
		return nil, err
	}

	return d, nil
}

// DeviceName returns the name reported during the handshake.
func (d *Device) DeviceName() string { return d.name }

// Close stops the transport and closes the channel.
func (d *Device) Close() error { return d.t.Close() }

// Metrics returns the transport counters.
func (d *Device) Metrics() *transport.Metrics { return d.t.Metrics() }

func (d *Device) handshake(ctx context.Context) (string, error) {
	var name string
	err := d.exchange(ctx, []byte{opHandshake, 0x03}, func(p []byte) (bool, error) {
		if p[0] != opHandshake || p[1] != 0x03 {
			return false, nil
		}
		name = util.CString(p[2:])

		return true, nil
	})
	if err != nil {
		return "", fmt.Errorf("pmbus: handshake: %w", err)
	}

	return name, nil
}

// read issues a read of cmd and hands the data bytes of the matching reply to parse.
func (d *Device) read(ctx context.Context, cmd byte, parse func(data []byte)) error {
	err := d.exchange(ctx, []byte{opRead, cmd}, func(p []byte) (bool, error) {
		if p[0] != opRead {
			return false, nil
		}
		switch p[1] {
		case cmd:
			parse(p[2:])
			return true, nil
		case 0:
			return true, ErrInvalidEndpoint
		default:
			return false, nil
		}
	})
	if err != nil {
		return fmt.Errorf("pmbus: read 0x%02X: %w", cmd, err)
	}

	return nil
}

// ReadByte reads a one byte register.
func (d *Device) ReadByte(ctx context.Context, cmd byte) (byte, error) {
	var v byte
	err := d.read(ctx, cmd, func(data []byte) { v = data[0] })

	return v, err
}

// ReadString reads a NUL terminated string register.
func (d *Device) ReadString(ctx context.Context, cmd byte) (string, error) {
	var s string
	err := d.read(ctx, cmd, func(data []byte) { s = util.CString(data) })

	return s, err
}

// ReadLinear11 reads a LINEAR11 encoded register.
func (d *Device) ReadLinear11(ctx context.Context, cmd byte) (Linear11, error) {
	var v Linear11
	err := d.read(ctx, cmd, func(data []byte) { v = Linear11FromBytes(data) })

	return v, err
}

// WriteByte writes a one byte register. The bridge acknowledges by echoing command and value.
func (d *Device) WriteByte(ctx context.Context, cmd, value byte) error {
	err := d.exchange(ctx, []byte{opWrite, cmd, value}, func(p []byte) (bool, error) {
		if p[0] != opWrite {
			return false, nil
		}
		switch {
		case p[1] == cmd && p[2] == value:
			return true, nil
		case p[1] == 0 && cmd != 0:
			return true, ErrInvalidEndpoint
		default:
			return false, nil
		}
	})
	if err != nil {
		return fmt.Errorf("pmbus: write 0x%02X: %w", cmd, err)
	}

	return nil
}

func (d *Device) exchange(ctx context.Context, req []byte, decode transport.DecodeFunc) error {
	return d.t.Do(ctx, func(ctx context.Context, tx *transport.Tx[slot]) error {
		copy(tx.Frame()[1:], req)
		return tx.Exchange(ctx, slot{}, decode)
	})
}
