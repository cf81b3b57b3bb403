package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/go-hidlink/ddcci"
	"github.com/arloliu/go-hidlink/internal/pool"
	"github.com/arloliu/go-hidlink/logger"
	"github.com/arloliu/go-hidlink/transport"
)

// MonitorHandle is a live handle on a monitor owned by the executor.
// Implementations must be safe for concurrent use.
type MonitorHandle interface {
	ddcci.VCPController
	ddcci.CapabilitiesReader
	io.Closer
}

// Backend performs the platform resolution for an Executor.
//
// Errors wrapping ErrNotFound are reported as NotFound and errors wrapping
// ddcci.ErrUnsupportedVCP as InvalidVcpCode.
type Backend interface {
	ResolveAdapter(ctx context.Context, deviceName string) (adapterID uint64, err error)
	OpenMonitor(ctx context.Context, adapterID uint64, id MonitorIdentity) (MonitorHandle, error)
}

// Dialer opens a new stream to the service.
type Dialer func(ctx context.Context) (Stream, error)

// Executor is the hardware side of the proxy. It answers the requests of a Service
// using a Backend.
type Executor struct {
	backend Backend
	opts    *options
	logger  logger.Logger
	metrics *ProxyMetrics
	id      uuid.UUID
}

// NewExecutor creates an executor with a fresh session id.
func NewExecutor(backend Backend, opts ...Option) (*Executor, error) {
	if backend == nil {
		return nil, errors.New("remote: nil backend")
	}
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	id := uuid.New()

	return &Executor{
		backend: backend,
		opts:    o,
		logger:  o.logger.With("component", "proxy-executor", "session", id.String()),
		metrics: o.metrics,
		id:      id,
	}, nil
}

// ID returns the id announced in the hello message.
func (e *Executor) ID() uuid.UUID { return e.id }

// Metrics returns the proxy counters.
func (e *Executor) Metrics() *ProxyMetrics { return e.metrics }

// Run keeps a session open, dialing again with exponential backoff whenever the
// stream fails. It returns when ctx is done.
func (e *Executor) Run(ctx context.Context, dial Dialer) error {
	delay := e.opts.reconnectDelay
	for {
		stream, err := dial(ctx)
		if err == nil {
			delay = e.opts.reconnectDelay
			err = e.Serve(ctx, stream)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err != nil {
			e.logger.Warn("session failed, reconnecting", "error", err, "delay", delay)
		} else {
			e.logger.Info("session ended, reconnecting", "delay", delay)
		}
		if err := pool.Sleep(ctx, delay); err != nil {
			return err
		}
		delay = min(delay*2, e.opts.maxReconnectDelay)
	}
}

// Serve answers requests on stream until it ends. Every handle leased during the
// session is closed before Serve returns.
func (e *Executor) Serve(ctx context.Context, stream Stream) error {
	defer stream.Close()

	hello, err := marshalEnvelope(Envelope{Kind: KindHello}, &Hello{SessionID: e.id.String()})
	if err != nil {
		return err
	}
	if err := stream.Send(ctx, hello); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}
	e.metrics.incSessionCount()
	e.logger.Info("session started")

	handles := newHandleTable(e.metrics)
	defer func() {
		if n := handles.closeAll(); n > 0 {
			e.logger.Info("released monitor handles at session end", "count", n)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { _ = stream.Close() })
	defer stop()

	g.Go(func() error {
		for {
			msg, err := stream.Recv(gctx)
			if err != nil {
				return err
			}

			env, err := unmarshalEnvelope(msg)
			if err != nil {
				e.logger.Warn("drop undecodable message", "error", err)
				continue
			}
			if env.Response || env.Kind == KindHello {
				e.logger.Warn("drop unexpected message", "kind", env.Kind, "response", env.Response)
				continue
			}

			g.Go(func() error {
				e.answer(gctx, stream, handles, env)
				return nil
			})
		}
	})

	err = g.Wait()
	if errors.Is(err, io.EOF) || ctx.Err() != nil {
		return nil
	}

	return err
}

func (e *Executor) answer(ctx context.Context, stream Stream, handles *handleTable, req Envelope) {
	e.metrics.incRequestCount()

	body, err := e.execute(ctx, handles, req)
	resp := Envelope{Kind: req.Kind, RequestID: req.RequestID, Response: true, Status: errorStatus(err)}
	if err != nil {
		e.metrics.incFailureCount()
		e.logger.Debug("request failed", "kind", req.Kind, "id", req.RequestID, "status", resp.Status, "error", err)
		body = nil
	}

	msg, err := marshalEnvelope(resp, body)
	if err != nil {
		e.logger.Error("encode response failed", "kind", req.Kind, "error", err)
		return
	}
	if err := stream.Send(ctx, msg); err != nil && ctx.Err() == nil {
		e.logger.Warn("send response failed", "kind", req.Kind, "error", err)
	}
}

func (e *Executor) execute(ctx context.Context, handles *handleTable, req Envelope) (any, error) {
	switch req.Kind {
	case KindAdapter:
		var r AdapterRequest
		if err := req.decodeBody(&r); err != nil {
			return nil, err
		}
		id, err := e.backend.ResolveAdapter(ctx, r.DeviceName)
		if err != nil {
			return nil, err
		}

		return &AdapterResponse{AdapterID: id}, nil

	case KindMonitor:
		var r MonitorRequest
		if err := req.decodeBody(&r); err != nil {
			return nil, err
		}
		mh, err := e.backend.OpenMonitor(ctx, r.AdapterID, r.Identity)
		if err != nil {
			return nil, err
		}

		return &MonitorResponse{Handle: handles.add(mh)}, nil

	case KindMonitorRelease:
		var r MonitorReleaseRequest
		if err := req.decodeBody(&r); err != nil {
			return nil, err
		}
		if err := handles.release(r.Handle); err != nil {
			return nil, err
		}

		return &MonitorReleaseResponse{}, nil

	case KindMonitorCapabilities:
		var r MonitorCapabilitiesRequest
		if err := req.decodeBody(&r); err != nil {
			return nil, err
		}
		mh, err := handles.get(r.Handle)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, transport.MaxMultiPacketLength)
		n, err := mh.Capabilities(ctx, buf)
		if err != nil {
			return nil, err
		}

		return &MonitorCapabilitiesResponse{Utf8Capabilities: buf[:n]}, nil

	case KindMonitorVcpGet:
		var r MonitorVcpGetRequest
		if err := req.decodeBody(&r); err != nil {
			return nil, err
		}
		mh, err := handles.get(r.Handle)
		if err != nil {
			return nil, err
		}
		v, err := mh.GetVCP(ctx, r.VcpCode)
		if err != nil {
			return nil, err
		}

		return &MonitorVcpGetResponse{Current: v.Current, Maximum: v.Maximum, Temporary: v.Temporary}, nil

	case KindMonitorVcpSet:
		var r MonitorVcpSetRequest
		if err := req.decodeBody(&r); err != nil {
			return nil, err
		}
		mh, err := handles.get(r.Handle)
		if err != nil {
			return nil, err
		}
		if err := mh.SetVCP(ctx, r.VcpCode, r.Value); err != nil {
			return nil, err
		}

		return &MonitorVcpSetResponse{}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported request kind %s", ErrRemoteFailure, req.Kind)
	}
}

// handleTable holds the monitor handles leased during one session.
// Numbering starts at 1 for every session.
type handleTable struct {
	next    atomic.Uint32
	m       *xsync.MapOf[uint32, MonitorHandle]
	metrics *ProxyMetrics
}

func newHandleTable(m *ProxyMetrics) *handleTable {
	return &handleTable{m: xsync.NewMapOf[uint32, MonitorHandle](), metrics: m}
}

func (t *handleTable) add(mh MonitorHandle) uint32 {
	h := t.next.Add(1)
	t.m.Store(h, mh)
	t.metrics.LeasedHandles.Add(1)

	return h
}

func (t *handleTable) get(h uint32) (MonitorHandle, error) {
	mh, ok := t.m.Load(h)
	if !ok {
		return nil, fmt.Errorf("handle %d: %w", h, ErrNotFound)
	}

	return mh, nil
}

func (t *handleTable) release(h uint32) error {
	mh, ok := t.m.LoadAndDelete(h)
	if !ok {
		return fmt.Errorf("handle %d: %w", h, ErrNotFound)
	}
	t.metrics.LeasedHandles.Add(-1)

	return mh.Close()
}

// closeAll closes every remaining handle and returns how many there were.
func (t *handleTable) closeAll() int {
	n := 0
	t.m.Range(func(h uint32, _ MonitorHandle) bool {
		if mh, ok := t.m.LoadAndDelete(h); ok {
			t.metrics.LeasedHandles.Add(-1)
			_ = mh.Close()
			n++
		}

		return true
	})

	return n
}
