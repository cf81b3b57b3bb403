// Package hidi2c talks DDC/CI to LG monitors through their HID to I2C bridge.
//
// Every bridge request carries a sequence number and a session id. Replies are routed
// back by sequence number, replies for other sessions sharing the device are ignored.
// A VCP get is two frames: the DDC/CI request, then after the mandated delay an I2C
// read trigger whose sequence number the reply echoes.
package hidi2c

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/go-hidlink/ddcci"
	"github.com/arloliu/go-hidlink/transport"
)

// Bridge is an opened HID I2C bridge session.
//
// Operations are serialized by the transport's single write reservation; a call made
// while another is in progress fails with transport.ErrWritePending.
type Bridge struct {
	t       *transport.Transport[byte]
	session byte
	addr    byte
	source  byte
}

var _ ddcci.Monitor = (*Bridge)(nil)

// Option configures a Bridge.
type Option interface {
	apply(b *bridgeConfig) error
}

type bridgeConfig struct {
	addr      byte
	source    byte
	transport []transport.Option
}

type optFunc func(b *bridgeConfig) error

func (f optFunc) apply(b *bridgeConfig) error { return f(b) }

// WithDeviceAddress sets the 7-bit I2C address of the display. Defaults to 0x37.
func WithDeviceAddress(addr byte) Option {
	return optFunc(func(b *bridgeConfig) error {
		if addr > 0x7F {
			return fmt.Errorf("%w: i2c address 0x%02X", transport.ErrInvalidArgument, addr)
		}
		b.addr = addr

		return nil
	})
}

// WithSourceAddress overrides the DDC/CI source byte. Some LG controls are only
// reachable through a vendor specific source.
func WithSourceAddress(src byte) Option {
	return optFunc(func(b *bridgeConfig) error {
		b.source = src
		return nil
	})
}

// WithTransportOptions passes options to the underlying transport.
func WithTransportOptions(opts ...transport.Option) Option {
	return optFunc(func(b *bridgeConfig) error {
		b.transport = append(b.transport, opts...)
		return nil
	})
}

// Open starts a bridge session on ch and performs the handshake.
// On failure ch is closed.
func Open(ctx context.Context, ch transport.Channel, session byte, opts ...Option) (*Bridge, error) {
	cfg := &bridgeConfig{addr: ddcci.DisplayAddress, source: ddcci.HostWriteAddress}
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			_ = ch.Close()
			return nil, err
		}
	}

	topts := append([]transport.Option{transport.WithName("hidi2c")}, cfg.transport...)
	t, err := transport.New[byte](ch, codec{session: session}, topts...)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}

	b := &Bridge{t: t, session: session, addr: cfg.addr, source: cfg.source}
	if err := b.handshake(ctx); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("hidi2c: handshake: %w", err)
	}
	t.Logger().Debug("bridge opened", "session", session, "address", cfg.addr)

	return b, nil
}

// Close ends the session and closes the channel.
func (b *Bridge) Close() error {
	return b.t.Close()
}

// Metrics returns the transport counters.
func (b *Bridge) Metrics() *transport.Metrics {
	return b.t.Metrics()
}

func (b *Bridge) handshake(ctx context.Context) error {
	return b.t.Do(ctx, func(ctx context.Context, tx *transport.Tx[byte]) error {
		seq := tx.Next()
		putHandshake(tx.Frame(), seq, b.session)

		return tx.Exchange(ctx, seq, func(payload []byte) (bool, error) {
			return true, checkHandshake(payload)
		})
	})
}

// GetVCP reads a VCP control.
func (b *Bridge) GetVCP(ctx context.Context, code byte) (ddcci.VCPValue, error) {
	var v ddcci.VCPValue
	err := b.t.Do(ctx, func(ctx context.Context, tx *transport.Tx[byte]) error {
		f := tx.Frame()
		n := ddcci.PutVCPRequest(f[ddcOffset:], b.source, code)
		putI2CWrite(f, tx.Next(), b.session, b.addr, byte(n))
		if err := tx.Write(ctx); err != nil {
			return err
		}
		if err := tx.Delay(ctx, ddcci.VCPRequestDelay); err != nil {
			return err
		}

		tx.Reset()
		seq := tx.Next()
		putI2CRead(f, seq, b.session, b.addr, ddcci.VCPReplyLength)

		return tx.Exchange(ctx, seq, func(payload []byte) (bool, error) {
			var err error
			v, err = ddcci.ParseVCPReply(payload, code)

			return true, err
		})
	})
	if err != nil {
		return ddcci.VCPValue{}, fmt.Errorf("hidi2c: get vcp 0x%02X: %w", code, err)
	}

	return v, nil
}

// SetVCP writes a VCP control. The display does not acknowledge sets; the call returns
// once the settle delay has elapsed.
func (b *Bridge) SetVCP(ctx context.Context, code byte, value uint16) error {
	err := b.t.Do(ctx, func(ctx context.Context, tx *transport.Tx[byte]) error {
		f := tx.Frame()
		n := ddcci.PutVCPSet(f[ddcOffset:], b.source, code, value)
		putI2CWrite(f, tx.Next(), b.session, b.addr, byte(n))
		if err := tx.Write(ctx); err != nil {
			return err
		}

		return tx.Delay(ctx, ddcci.VCPSetDelay)
	})
	if err != nil {
		return fmt.Errorf("hidi2c: set vcp 0x%02X: %w", code, err)
	}

	return nil
}

// Capabilities reads the MCCS capabilities string into dst.
func (b *Bridge) Capabilities(ctx context.Context, dst []byte) (int, error) {
	n, err := b.readChunks(ctx, dst, ddcci.OpCapabilitiesReply, ddcci.CapabilitiesDelay,
		func(buf []byte, offset uint16) int {
			return ddcci.PutCapabilitiesRequest(buf, b.source, offset)
		})
	if err != nil {
		return 0, fmt.Errorf("hidi2c: capabilities: %w", err)
	}

	return n, nil
}

// ReadTable reads a table VCP control into dst.
func (b *Bridge) ReadTable(ctx context.Context, code byte, dst []byte) (int, error) {
	n, err := b.readChunks(ctx, dst, ddcci.OpTableReadReply, ddcci.TableReadDelay,
		func(buf []byte, offset uint16) int {
			return ddcci.PutTableReadRequest(buf, b.source, code, offset)
		})
	if err != nil {
		return 0, fmt.Errorf("hidi2c: read table 0x%02X: %w", code, err)
	}

	return n, nil
}

func (b *Bridge) readChunks(ctx context.Context, dst []byte, replyOp byte, delay time.Duration, put func([]byte, uint16) int) (int, error) {
	if len(dst) == 0 {
		return 0, fmt.Errorf("%w: empty destination", transport.ErrInvalidArgument)
	}

	var n int
	err := b.t.Do(ctx, func(ctx context.Context, tx *transport.Tx[byte]) error {
		var err error
		n, err = transport.ReadMultiPacket(ctx, tx, dst,
			func(ctx context.Context, tx *transport.Tx[byte], offset int) (byte, error) {
				tx.Reset()
				f := tx.Frame()
				size := put(f[ddcOffset:], uint16(offset)) //nolint:gosec
				putI2CWrite(f, tx.Next(), b.session, b.addr, byte(size))
				if err := tx.Write(ctx); err != nil {
					return 0, err
				}
				if err := tx.Delay(ctx, delay); err != nil {
					return 0, err
				}

				tx.Reset()
				seq := tx.Next()
				putI2CRead(f, seq, b.session, b.addr, ddcci.ChunkReplyLength)

				return seq, nil
			},
			func(payload []byte) (int, []byte, error) {
				return ddcci.ParseChunk(payload, replyOp)
			})

		return err
	})

	return n, err
}
