package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/go-hidlink/internal/pool"
	"github.com/arloliu/go-hidlink/logger"
)

type waiter struct {
	kind Kind
	ch   chan Envelope
}

// session is the service side of one executor connection.
type session struct {
	id      uuid.UUID
	gen     uint64
	stream  Stream
	state   atomicState
	sendq   chan []byte
	waiters *xsync.MapOf[uint32, *waiter]
	handles *xsync.MapOf[uint32, struct{}]
	ids     *requestIDs
	timeout time.Duration
	logger  logger.Logger
	metrics *ProxyMetrics

	done      chan struct{}
	closeOnce sync.Once
}

func newSession(id uuid.UUID, gen uint64, stream Stream, o *options) *session {
	return &session{
		id:      id,
		gen:     gen,
		stream:  stream,
		sendq:   make(chan []byte, o.sendQueueSize),
		waiters: xsync.NewMapOf[uint32, *waiter](),
		handles: xsync.NewMapOf[uint32, struct{}](),
		ids:     newRequestIDs(),
		timeout: o.requestTimeout,
		logger:  o.logger.With("session", id.String(), "generation", gen),
		metrics: o.metrics,
		done:    make(chan struct{}),
	}
}

// run pumps the stream until it fails or ctx is done.
func (s *session) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { _ = s.stream.Close() })
	defer stop()

	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error { return s.writeLoop(gctx) })

	return g.Wait()
}

func (s *session) readLoop(ctx context.Context) error {
	for {
		msg, err := s.stream.Recv(ctx)
		if err != nil {
			return err
		}

		env, err := unmarshalEnvelope(msg)
		if err != nil {
			s.logger.Warn("drop undecodable message", "error", err)
			continue
		}
		if !env.Response {
			s.logger.Warn("drop unexpected request from executor", "kind", env.Kind)
			continue
		}

		w, ok := s.waiters.LoadAndDelete(env.RequestID)
		if !ok {
			s.dropResponse(env)
			continue
		}
		w.ch <- env
	}
}

func (s *session) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-s.sendq:
			if err := s.stream.Send(ctx, msg); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		}
	}
}

// call sends req and decodes the matching response into resp.
func (s *session) call(ctx context.Context, kind Kind, req, resp any) error {
	if !s.state.IsActive() {
		return ErrSessionClosed
	}

	s.metrics.incRequestCount()
	if err := s.roundTrip(ctx, kind, req, resp); err != nil {
		s.metrics.incFailureCount()
		return err
	}

	return nil
}

func (s *session) roundTrip(ctx context.Context, kind Kind, req, resp any) (err error) {
	w := &waiter{kind: kind, ch: make(chan Envelope, 1)}
	id := s.ids.next()
	for {
		if _, loaded := s.waiters.LoadOrStore(id, w); !loaded {
			break
		}
		id = s.ids.next()
	}
	// A late response must not find a cancelled waiter.
	defer func() {
		s.waiters.Compute(id, func(old *waiter, loaded bool) (*waiter, bool) {
			return old, !loaded || old == w
		})
		if err != nil {
			select {
			case env := <-w.ch:
				s.dropResponse(env)
			default:
			}
		}
	}()

	msg, err := marshalEnvelope(Envelope{Kind: kind, RequestID: id}, req)
	if err != nil {
		return err
	}

	var timeout <-chan time.Time
	if s.timeout > 0 {
		timer := pool.GetTimer(s.timeout)
		defer pool.PutTimer(timer)
		timeout = timer.C
	}

	select {
	case s.sendq <- msg:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return fmt.Errorf("%w: %s send", ErrRequestTimeout, kind)
	}

	select {
	case env := <-w.ch:
		return decodeResponse(kind, env, resp)
	case <-s.done:
		select {
		case env := <-w.ch:
			return decodeResponse(kind, env, resp)
		default:
			return ErrSessionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return fmt.Errorf("%w: %s after %v", ErrRequestTimeout, kind, s.timeout)
	}
}

// dropResponse discards a response nobody waits for. A monitor handle it carries is
// released so the executor doesn't hold it until the session ends.
func (s *session) dropResponse(env Envelope) {
	if env.Kind != KindMonitor || env.Status != StatusSuccess {
		s.logger.Debug("no waiter for response, drop it", "kind", env.Kind, "id", env.RequestID)
		return
	}

	var resp MonitorResponse
	if err := env.decodeBody(&resp); err != nil || resp.Handle == 0 {
		s.logger.Debug("drop unclaimed monitor response", "id", env.RequestID, "error", err)
		return
	}

	msg, err := marshalEnvelope(Envelope{Kind: KindMonitorRelease, RequestID: s.ids.next()},
		&MonitorReleaseRequest{Handle: resp.Handle})
	if err != nil {
		return
	}

	select {
	case s.sendq <- msg:
		s.logger.Debug("release unclaimed monitor handle", "handle", resp.Handle)
	case <-s.done:
	default:
		s.logger.Warn("send queue full, unclaimed monitor handle kept until session end", "handle", resp.Handle)
	}
}

func decodeResponse(kind Kind, env Envelope, resp any) error {
	if env.Kind != kind {
		return fmt.Errorf("%w: %s response to %s request", ErrMalformedMessage, env.Kind, kind)
	}
	if err := statusError(kind, env.Status); err != nil {
		return err
	}
	if len(env.Body) == 0 {
		return fmt.Errorf("%s: %w", kind, ErrEmptyResponse)
	}

	return env.decodeBody(resp)
}

func (s *session) lease(handle uint32) {
	if _, loaded := s.handles.LoadOrStore(handle, struct{}{}); !loaded {
		s.metrics.LeasedHandles.Add(1)
	}
}

func (s *session) unlease(handle uint32) {
	if _, loaded := s.handles.LoadAndDelete(handle); loaded {
		s.metrics.LeasedHandles.Add(-1)
	}
}

// close fails every outstanding request and forgets the leased handles.
// The state must already be Draining.
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)

		failed := s.waiters.Size()
		s.waiters.Clear()

		released := 0
		s.handles.Range(func(h uint32, _ struct{}) bool {
			s.unlease(h)
			released++

			return true
		})
		s.state.ToClosed()

		s.logger.Info("session closed", "failed_requests", failed, "released_handles", released)
	})
}
