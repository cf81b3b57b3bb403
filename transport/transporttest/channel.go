// Package transporttest provides an in-memory transport.Channel that plays the device side in tests.
package transporttest

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// ErrNoWrite is returned by NextWrite when no frame was written in time.
var ErrNoWrite = errors.New("transporttest: no frame written")

// Channel is an in-memory transport.Channel.
//
// Frames written by the transport are available from NextWrite, or are answered by
// the function installed with Respond. Frames sent with Inject are returned by
// ReadFrame, optionally split into chunks to exercise partial reads.
type Channel struct {
	frameLen int
	in       chan []byte
	out      chan []byte
	closed   chan struct{}
	once     sync.Once

	mu       sync.Mutex
	chunk    int
	leftover []byte
}

// NewChannel creates a channel carrying frames of frameLen bytes.
func NewChannel(frameLen int) *Channel {
	return &Channel{
		frameLen: frameLen,
		in:       make(chan []byte),
		out:      make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

// SetChunkSize makes ReadFrame return at most n bytes per call.
func (c *Channel) SetChunkSize(n int) {
	c.mu.Lock()
	c.chunk = n
	c.mu.Unlock()
}

// Inject delivers frame to the reader, zero padded to the frame length.
// It returns false if the channel was closed first.
func (c *Channel) Inject(frame []byte) bool {
	buf := make([]byte, c.frameLen)
	copy(buf, frame)

	select {
	case c.in <- buf:
		return true
	case <-c.closed:
		return false
	}
}

// NextWrite returns the next frame written by the transport.
func (c *Channel) NextWrite(timeout time.Duration) ([]byte, error) {
	select {
	case f := <-c.out:
		return f, nil
	case <-time.After(timeout):
		return nil, ErrNoWrite
	}
}

// Respond starts a device goroutine that answers every written frame with the
// frames returned by fn. It must not be combined with NextWrite.
func (c *Channel) Respond(fn func(written []byte) [][]byte) {
	go func() {
		for {
			select {
			case <-c.closed:
				return
			case f := <-c.out:
				for _, reply := range fn(f) {
					if !c.Inject(reply) {
						return
					}
				}
			}
		}
	}()
}

// CloseFromDevice closes the channel the way a detached device does:
// the pending read returns zero bytes.
func (c *Channel) CloseFromDevice() {
	_ = c.Close()
}

// IsClosed reports whether the channel was closed.
func (c *Channel) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Channel) ReadFrame(ctx context.Context, buf []byte) (int, error) {
	c.mu.Lock()
	if len(c.leftover) > 0 {
		n := c.take(buf, c.leftover)
		c.mu.Unlock()

		return n, nil
	}
	c.mu.Unlock()

	select {
	case f := <-c.in:
		c.mu.Lock()
		defer c.mu.Unlock()

		return c.take(buf, f), nil
	case <-c.closed:
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// take copies the next chunk of src into buf and keeps the rest. c.mu must be held.
func (c *Channel) take(buf, src []byte) int {
	limit := len(buf)
	if c.chunk > 0 && c.chunk < limit {
		limit = c.chunk
	}
	n := copy(buf[:limit], src)
	c.leftover = src[n:]

	return n
}

func (c *Channel) WriteFrame(ctx context.Context, buf []byte) error {
	if c.IsClosed() {
		return io.ErrClosedPipe
	}

	f := make([]byte, len(buf))
	copy(f, buf)

	select {
	case c.out <- f:
		return nil
	case <-c.closed:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) Close() error {
	c.once.Do(func() {
		close(c.closed)
	})

	return nil
}
