package drm

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/arloliu/go-hidlink/ddcci"
	"github.com/arloliu/go-hidlink/internal/pool"
	"github.com/arloliu/go-hidlink/transport"
)

// Monitor speaks DDC/CI over an i2c-dev node bound to the display address.
// It is safe for concurrent use; requests are serialized.
type Monitor struct {
	conn    Connector
	retrier transport.Retrier

	mu     sync.Mutex
	bus    io.ReadWriteCloser
	wbuf   [ddcci.TableReadRequestSize]byte
	rbuf   [ddcci.ChunkReplyLength]byte
	closed bool
}

var _ ddcci.Monitor = (*Monitor)(nil)

func newMonitor(conn Connector, bus io.ReadWriteCloser, r transport.Retrier) *Monitor {
	return &Monitor{conn: conn, bus: bus, retrier: r}
}

// Connector returns the connector the monitor is attached to.
func (m *Monitor) Connector() Connector { return m.conn }

// Close closes the i2c device.
func (m *Monitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	return m.bus.Close()
}

func (m *Monitor) lock() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("drm: %s: %w", m.conn.Name, transport.ErrDisposed)
	}

	return nil
}

// write sends the first n bytes of wbuf and waits delay before the display may be read.
func (m *Monitor) write(ctx context.Context, n int, delay time.Duration) error {
	if _, err := m.bus.Write(m.wbuf[:n]); err != nil {
		return fmt.Errorf("%w: i2c write: %w", transport.ErrTransient, err)
	}

	return pool.Sleep(ctx, delay)
}

func (m *Monitor) read(n int) ([]byte, error) {
	buf := m.rbuf[:n]
	if _, err := io.ReadFull(m.bus, buf); err != nil {
		return nil, fmt.Errorf("%w: i2c read: %w", transport.ErrTransient, err)
	}

	return buf, nil
}

func (m *Monitor) GetVCP(ctx context.Context, code byte) (ddcci.VCPValue, error) {
	if err := m.lock(); err != nil {
		return ddcci.VCPValue{}, err
	}
	defer m.mu.Unlock()

	v, err := transport.RetryValue(ctx, m.retrier, func(ctx context.Context) (ddcci.VCPValue, error) {
		n := ddcci.PutVCPRequest(m.wbuf[:], ddcci.HostWriteAddress, code)
		if err := m.write(ctx, n, ddcci.VCPRequestDelay); err != nil {
			return ddcci.VCPValue{}, err
		}
		reply, err := m.read(ddcci.VCPReplyLength)
		if err != nil {
			return ddcci.VCPValue{}, err
		}

		return ddcci.ParseVCPReply(reply, code)
	})
	if err != nil {
		return ddcci.VCPValue{}, fmt.Errorf("drm: %s: get vcp 0x%02X: %w", m.conn.Name, code, err)
	}

	return v, nil
}

// SetVCP writes a control and waits for the display to settle.
func (m *Monitor) SetVCP(ctx context.Context, code byte, value uint16) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()

	err := m.retrier.Do(ctx, func(ctx context.Context) error {
		n := ddcci.PutVCPSet(m.wbuf[:], ddcci.HostWriteAddress, code, value)
		return m.write(ctx, n, ddcci.VCPSetDelay)
	})
	if err != nil {
		return fmt.Errorf("drm: %s: set vcp 0x%02X: %w", m.conn.Name, code, err)
	}

	return nil
}

func (m *Monitor) Capabilities(ctx context.Context, dst []byte) (int, error) {
	n, err := m.readChunks(ctx, dst, ddcci.OpCapabilitiesReply, ddcci.CapabilitiesDelay, func(offset uint16) int {
		return ddcci.PutCapabilitiesRequest(m.wbuf[:], ddcci.HostWriteAddress, offset)
	})
	if err != nil {
		return 0, fmt.Errorf("drm: %s: capabilities: %w", m.conn.Name, err)
	}

	return n, nil
}

func (m *Monitor) ReadTable(ctx context.Context, code byte, dst []byte) (int, error) {
	n, err := m.readChunks(ctx, dst, ddcci.OpTableReadReply, ddcci.TableReadDelay, func(offset uint16) int {
		return ddcci.PutTableReadRequest(m.wbuf[:], ddcci.HostWriteAddress, code, offset)
	})
	if err != nil {
		return 0, fmt.Errorf("drm: %s: read table 0x%02X: %w", m.conn.Name, code, err)
	}

	return n, nil
}

// readChunks runs a multi-packet read. A failed fragment restarts the whole read.
func (m *Monitor) readChunks(ctx context.Context, dst []byte, replyOp byte, delay time.Duration, put func(offset uint16) int) (int, error) {
	if len(dst) == 0 {
		return 0, fmt.Errorf("%w: empty destination", transport.ErrInvalidArgument)
	}
	if err := m.lock(); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	return transport.RetryValue(ctx, m.retrier, func(ctx context.Context) (int, error) {
		acc := transport.NewAccumulator(dst, 0)
		for !acc.Done() {
			n := put(uint16(acc.Len())) //nolint:gosec
			if err := m.write(ctx, n, delay); err != nil {
				return 0, err
			}
			reply, err := m.read(ddcci.ChunkReplyLength)
			if err != nil {
				return 0, err
			}
			offset, data, err := ddcci.ParseChunk(reply, replyOp)
			if err != nil {
				return 0, err
			}
			if err := acc.Append(offset, data); err != nil {
				return 0, err
			}
		}

		return acc.Len(), nil
	})
}
