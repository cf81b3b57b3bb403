package transport

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
)

// Channel is a duplex pipe of fixed-length records, typically a HID device.
//
// ReadFrame may return fewer bytes than len(buf); the reader loop keeps reading until
// a full record is assembled. A zero-length read with a nil error, or io.EOF, means the
// channel is closed. Close must unblock a pending ReadFrame.
type Channel interface {
	ReadFrame(ctx context.Context, buf []byte) (int, error)
	WriteFrame(ctx context.Context, buf []byte) error
	Close() error
}

// StreamChannel adapts an io.ReadWriteCloser, for example an opened /dev/hidrawN file,
// to the Channel contract.
type StreamChannel struct {
	rwc     io.ReadWriteCloser
	writeMu sync.Mutex
	once    sync.Once
	err     error
}

var _ Channel = (*StreamChannel)(nil)

// NewStreamChannel wraps rwc.
func NewStreamChannel(rwc io.ReadWriteCloser) *StreamChannel {
	return &StreamChannel{rwc: rwc}
}

// OpenDevice opens a read-write device node such as /dev/hidraw3.
func OpenDevice(path string) (*StreamChannel, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	return NewStreamChannel(f), nil
}

func (c *StreamChannel) ReadFrame(ctx context.Context, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n, err := c.rwc.Read(buf)
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
		return n, nil
	}

	return n, err
}

func (c *StreamChannel) WriteFrame(ctx context.Context, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	for written := 0; written < len(buf); {
		n, err := c.rwc.Write(buf[written:])
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		written += n
	}

	return nil
}

func (c *StreamChannel) Close() error {
	c.once.Do(func() {
		c.err = c.rwc.Close()
	})

	return c.err
}
