package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-hidlink/internal/pool"
)

// Tx is a transaction holding the transport's write reservation.
//
// A Tx is not safe for concurrent use. End must be called exactly once; Do does it for you.
type Tx[K comparable] struct {
	t     *Transport[K]
	first byte
	seq   byte
	ended bool
}

// Begin reserves the writer and starts a transaction.
//
// It fails with ErrWritePending while another transaction is open and with
// ErrDisposed after Close.
func (t *Transport[K]) Begin() (*Tx[K], error) {
	seq, err := t.seq.BeginWrite()
	if err != nil {
		return nil, err
	}

	t.metrics.incTxInflightCount()
	clear(t.wbuf)

	return &Tx[K]{t: t, first: seq, seq: seq}, nil
}

// Do runs fn inside a transaction and ends it afterwards.
func (t *Transport[K]) Do(ctx context.Context, fn func(ctx context.Context, tx *Tx[K]) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := t.Begin()
	if err != nil {
		return err
	}
	defer tx.End()

	return fn(ctx, tx)
}

// Seq returns the sequence number the next frame will carry.
func (tx *Tx[K]) Seq() byte { return tx.seq }

// Next returns the sequence number for the frame being built and advances past it.
func (tx *Tx[K]) Next() byte {
	s := tx.seq
	tx.seq++

	return s
}

// Frame returns the shared write buffer. It is only valid until End.
func (tx *Tx[K]) Frame() []byte { return tx.t.wbuf }

// Reset zeroes the write buffer.
func (tx *Tx[K]) Reset() { clear(tx.t.wbuf) }

// Write sends the write buffer as one frame.
func (tx *Tx[K]) Write(ctx context.Context) error {
	if tx.t.isClosed() {
		return tx.t.reason
	}
	if err := tx.t.ch.WriteFrame(ctx, tx.t.wbuf); err != nil {
		if tx.t.isClosed() {
			return tx.t.reason
		}
		return fmt.Errorf("write frame: %w", err)
	}
	tx.t.metrics.incFrameSendCount()

	return nil
}

// Delay waits for a protocol mandated interval between frames.
func (tx *Tx[K]) Delay(ctx context.Context, d time.Duration) error {
	return pool.Sleep(ctx, d)
}

// Exchange registers a waiter for key, writes the buffer and waits for the reply.
//
// The waiter is registered before the write, so a fast reply cannot be missed.
// payload handed to decode is only valid during the call.
func (tx *Tx[K]) Exchange(ctx context.Context, key K, decode DecodeFunc) error {
	t := tx.t
	p := newPending(decode)
	if !t.pending.register(key, p) {
		return fmt.Errorf("%w: %v", ErrKeyInUse, key)
	}
	// Close may have swept the table before the registration landed.
	if t.isClosed() {
		t.pending.remove(key, p)
		return t.reason
	}

	if err := tx.Write(ctx); err != nil {
		t.pending.remove(key, p)
		return err
	}

	return t.await(ctx, key, p)
}

func (t *Transport[K]) await(ctx context.Context, key K, p *pending) error {
	var timeout <-chan time.Time
	if d := t.cfg.replyTimeout; d > 0 {
		timer := pool.GetTimer(d)
		defer pool.PutTimer(timer)
		timeout = timer.C
	}

	select {
	case <-p.done:
		return p.err

	case <-ctx.Done():
		return t.abandon(key, p, ctx.Err())

	case <-timeout:
		err := fmt.Errorf("%w: key %v after %v", ErrReplyTimeout, key, t.cfg.replyTimeout)
		if err = t.abandon(key, p, err); errors.Is(err, ErrReplyTimeout) {
			t.metrics.incTimeoutCount()
			t.logger.Debug("reply timeout", "key", key, "timeout", t.cfg.replyTimeout)
		}

		return err

	case <-t.closed:
		return t.abandon(key, p, t.reason)
	}
}

// abandon completes p with err and unregisters it. A reply decoded first wins and its
// result is returned instead.
func (t *Transport[K]) abandon(key K, p *pending, err error) error {
	if !p.complete(err) {
		return p.err
	}
	t.pending.remove(key, p)

	return err
}

// End releases the reservation and publishes the next sequence number.
func (tx *Tx[K]) End() {
	if tx.ended {
		return
	}
	tx.ended = true
	tx.t.seq.EndWriteAt(tx.first, tx.seq)
	tx.t.metrics.decTxInflightCount()
}
