// Package transport is the request/response engine shared by the fixed-frame device protocols.
//
// A Transport owns one Channel and one reader goroutine. Callers run transactions
// through Begin or Do: a transaction holds the single write reservation, writes one or
// more frames, observes the mandated delays between them, and awaits replies that the
// reader loop routes by correlation key. Protocol specifics live in a Codec.
//
// Typical use from a device package:
//
//	t, err := transport.New[byte](ch, codec, transport.WithName("hidi2c"))
//	err = t.Do(ctx, func(ctx context.Context, tx *transport.Tx[byte]) error {
//	    seq := tx.Next()
//	    buildRequest(tx.Frame(), seq)
//	    return tx.Exchange(ctx, seq, decodeReply)
//	})
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/arloliu/go-hidlink/internal/task"
	"github.com/arloliu/go-hidlink/logger"
)

// Codec describes the envelope of a frame protocol.
type Codec[K comparable] interface {
	// FrameLength returns the fixed record length, including any leading report id.
	FrameLength() int
	// Correlate returns the key of the waiter a received frame answers.
	// ok is false for frames that do not belong to this transport instance.
	Correlate(frame []byte) (key K, ok bool)
	// Unwrap validates the envelope and returns the payload handed to the waiter.
	Unwrap(frame []byte) ([]byte, error)
}

// Transport correlates replies read from a Channel with the transactions awaiting them.
type Transport[K comparable] struct {
	cfg     *Config
	ch      Channel
	codec   Codec[K]
	seq     *Sequencer
	pending *pendingTable[K]
	rbuf    []byte
	wbuf    []byte
	taskMgr *task.Manager
	logger  logger.Logger
	metrics *Metrics

	closed    chan struct{}
	closeOnce sync.Once
	reason    error // set before closed is closed
}

// New creates a transport over ch and starts its reader loop.
func New[K comparable](ch Channel, codec Codec[K], opts ...Option) (*Transport[K], error) {
	if ch == nil || codec == nil {
		return nil, fmt.Errorf("%w: nil channel or codec", ErrInvalidArgument)
	}
	if codec.FrameLength() <= 0 {
		return nil, fmt.Errorf("%w: frame length %d", ErrInvalidArgument, codec.FrameLength())
	}

	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	l := cfg.logger.With("transport", cfg.name)
	t := &Transport[K]{
		cfg:     cfg,
		ch:      ch,
		codec:   codec,
		seq:     NewSequencer(0),
		pending: newPendingTable[K](),
		rbuf:    make([]byte, codec.FrameLength()),
		wbuf:    make([]byte, codec.FrameLength()),
		taskMgr: task.NewManager(context.Background(), l),
		logger:  l,
		metrics: cfg.metrics,
		closed:  make(chan struct{}),
	}

	if err := t.taskMgr.Start("reader", t.readOnce); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return t, nil
}

// Config returns the transport configuration.
func (t *Transport[K]) Config() *Config { return t.cfg }

// Metrics returns the transport counters.
func (t *Transport[K]) Metrics() *Metrics { return t.metrics }

// Logger returns the transport logger.
func (t *Transport[K]) Logger() logger.Logger { return t.logger }

// Sequencer exposes the write reservation and sequence state.
func (t *Transport[K]) Sequencer() *Sequencer { return t.seq }

// PendingCount returns the number of registered waiters.
func (t *Transport[K]) PendingCount() int { return t.pending.size() }

// Done is closed once the transport stops, either by Close or because the channel closed.
func (t *Transport[K]) Done() <-chan struct{} { return t.closed }

// Err returns why the transport stopped, or nil while it is running.
func (t *Transport[K]) Err() error {
	select {
	case <-t.closed:
		return t.reason
	default:
		return nil
	}
}

// Close disposes the transport. Waiting and later operations fail with ErrDisposed.
// Close waits for the reader loop to exit and is safe to call more than once.
func (t *Transport[K]) Close() error {
	err := t.shutdown(ErrDisposed)
	t.taskMgr.Wait()

	return err
}

func (t *Transport[K]) shutdown(reason error) error {
	var err error
	t.closeOnce.Do(func() {
		t.seq.Dispose()
		t.reason = reason
		close(t.closed)

		t.taskMgr.Stop()
		err = t.ch.Close()

		if n := t.pending.failAll(reason); n > 0 {
			t.logger.Debug("failed pending waiters", "count", n, "reason", reason)
		}
		t.logger.Debug("transport stopped", "reason", reason)
	})

	return err
}

func (t *Transport[K]) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// readOnce reads exactly one frame and dispatches it.
func (t *Transport[K]) readOnce() bool {
	ctx := t.taskMgr.Context()

	for filled := 0; filled < len(t.rbuf); {
		n, err := t.ch.ReadFrame(ctx, t.rbuf[filled:])
		if err != nil {
			if t.isClosed() || errors.Is(err, context.Canceled) {
				return false
			}
			t.logger.Error("read frame failed", "error", err)
			_ = t.shutdown(fmt.Errorf("%w: %w", ErrChannelClosed, err))

			return false
		}
		if n == 0 {
			if !t.isClosed() {
				t.logger.Info("channel closed by device")
				_ = t.shutdown(ErrChannelClosed)
			}

			return false
		}
		filled += n
	}

	t.metrics.incFrameRecvCount()
	t.dispatch(t.rbuf)

	return true
}

func (t *Transport[K]) dispatch(frame []byte) {
	key, ok := t.codec.Correlate(frame)
	if !ok {
		t.logger.Debug("ignore frame for another instance")
		return
	}

	payload, err := t.codec.Unwrap(frame)
	if err != nil {
		t.metrics.incFramingErrCount()
	}

	p, found := t.pending.load(key)
	if !found {
		t.metrics.incUnmatchedFrameCount()
		if err != nil {
			t.logger.Warn("invalid frame without waiter", "key", key, "error", err)
		} else {
			t.logger.Debug("no waiter for frame, drop it", "key", key)
		}

		return
	}

	if err != nil {
		p.complete(fmt.Errorf("key %v: %w", key, err))
		t.pending.remove(key, p)

		return
	}

	if p.deliver(payload) {
		t.pending.remove(key, p)
	}
}
