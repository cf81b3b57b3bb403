package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/arloliu/go-hidlink/ddcci"
	"github.com/arloliu/go-hidlink/internal/queue"
	"github.com/arloliu/go-hidlink/logger"
	"github.com/arloliu/go-hidlink/transport"
)

// Service is the issuing side of the proxy. It accepts executor connections and
// forwards monitor operations to the current one.
//
// Only one session is current at a time. Sessions connecting while another is current
// wait in FIFO order and the oldest one is promoted when the current session ends.
type Service struct {
	opts     *options
	logger   logger.Logger
	metrics  *ProxyMetrics
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	current *session
	queue   queue.Queue[*session]
	ready   chan struct{} // closed while current is set
	gen     uint64
	closed  bool
}

// NewService creates a service without any session.
func NewService(opts ...Option) (*Service, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		opts:    o,
		logger:  o.logger.With("component", "proxy-service"),
		metrics: o.metrics,
		ctx:     ctx,
		cancel:  cancel,
		queue:   queue.NewSliceQueue[*session](4),
		ready:   make(chan struct{}),
	}, nil
}

// Metrics returns the proxy counters.
func (svc *Service) Metrics() *ProxyMetrics { return svc.metrics }

// ServeHTTP upgrades the request to a websocket and serves it as an executor session.
func (svc *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := svc.upgrader.Upgrade(w, r, nil)
	if err != nil {
		svc.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	if err := svc.Serve(r.Context(), NewWebsocketStream(conn)); err != nil {
		svc.logger.Warn("session ended with error", "remote", r.RemoteAddr, "error", err)
	}
}

// Serve runs one executor session on stream until the stream ends, ctx is done or
// the service is closed. The stream is closed on return.
func (svc *Service) Serve(ctx context.Context, stream Stream) error {
	defer stream.Close()

	svc.mu.Lock()
	if svc.closed {
		svc.mu.Unlock()
		return ErrServiceClosed
	}
	svc.wg.Add(1)
	svc.mu.Unlock()
	defer svc.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(svc.ctx, cancel)
	defer stop()

	id, err := svc.readHello(ctx, stream)
	if err != nil {
		return err
	}

	s := svc.register(id, stream)
	err = s.run(ctx)
	svc.unregister(s)

	if errors.Is(err, io.EOF) || ctx.Err() != nil {
		return nil
	}

	return err
}

func (svc *Service) readHello(ctx context.Context, stream Stream) (uuid.UUID, error) {
	if svc.opts.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, svc.opts.requestTimeout)
		defer cancel()
	}

	msg, err := stream.Recv(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("read hello: %w", err)
	}
	env, err := unmarshalEnvelope(msg)
	if err != nil {
		return uuid.Nil, err
	}
	if env.Kind != KindHello {
		return uuid.Nil, fmt.Errorf("%w: expected hello, got %s", ErrMalformedMessage, env.Kind)
	}

	var hello Hello
	if err := env.decodeBody(&hello); err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(hello.SessionID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: session id: %w", ErrMalformedMessage, err)
	}

	return id, nil
}

func (svc *Service) register(id uuid.UUID, stream Stream) *session {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.gen++
	s := newSession(id, svc.gen, stream, svc.opts)
	svc.metrics.incSessionCount()

	if svc.current == nil {
		svc.promote(s)
	} else {
		svc.queue.Enqueue(s)
		svc.metrics.QueuedSessions.Add(1)
		s.logger.Info("session queued", "position", svc.queue.Length())
	}

	return s
}

// promote makes s current. svc.mu must be held.
func (svc *Service) promote(s *session) bool {
	if !s.state.ToActive() {
		return false
	}
	svc.current = s
	close(svc.ready)
	s.logger.Info("session active")

	return true
}

func (svc *Service) unregister(s *session) {
	s.state.ToDraining()

	svc.mu.Lock()
	if svc.current == s {
		svc.current = nil
		svc.ready = make(chan struct{})
		for next, ok := svc.queue.Dequeue(); ok; next, ok = svc.queue.Dequeue() {
			svc.metrics.QueuedSessions.Add(-1)
			if svc.promote(next) {
				break
			}
		}
	} else if svc.queue.Remove(func(q *session) bool { return q == s }) {
		svc.metrics.QueuedSessions.Add(-1)
	}
	svc.mu.Unlock()

	s.close()
}

// currentSession waits until a session is current.
func (svc *Service) currentSession(ctx context.Context) (*session, error) {
	for {
		svc.mu.Lock()
		if svc.closed {
			svc.mu.Unlock()
			return nil, ErrServiceClosed
		}
		if s := svc.current; s != nil {
			svc.mu.Unlock()
			return s, nil
		}
		ready := svc.ready
		svc.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-svc.ctx.Done():
			return nil, ErrServiceClosed
		}
	}
}

// SessionInfo describes the current session.
type SessionInfo struct {
	ID         uuid.UUID
	Generation uint64
	State      SessionState
	Queued     int
}

// Current reports the current session. ok is false when no executor is connected.
func (svc *Service) Current() (info SessionInfo, ok bool) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	info.Queued = svc.queue.Length()
	if svc.current == nil {
		return info, false
	}
	info.ID = svc.current.id
	info.Generation = svc.current.gen
	info.State = svc.current.state.Get()

	return info, true
}

// Close ends every session and waits for them. Requests in flight fail with ErrSessionClosed,
// callers waiting for a session fail with ErrServiceClosed.
func (svc *Service) Close() error {
	svc.mu.Lock()
	if svc.closed {
		svc.mu.Unlock()
		return nil
	}
	svc.closed = true
	svc.mu.Unlock()

	svc.cancel()
	svc.wg.Wait()

	return nil
}

// ResolveAdapter asks the current executor for the adapter named deviceName,
// waiting for an executor to connect if none is.
func (svc *Service) ResolveAdapter(ctx context.Context, deviceName string) (*Adapter, error) {
	s, err := svc.currentSession(ctx)
	if err != nil {
		return nil, err
	}

	var resp AdapterResponse
	if err := s.call(ctx, KindAdapter, &AdapterRequest{DeviceName: deviceName}, &resp); err != nil {
		return nil, fmt.Errorf("resolve adapter %q: %w", deviceName, err)
	}

	return &Adapter{s: s, id: resp.AdapterID, name: deviceName}, nil
}

// Adapter is a display adapter resolved through a session.
type Adapter struct {
	s    *session
	id   uint64
	name string
}

func (a *Adapter) ID() uint64         { return a.id }
func (a *Adapter) DeviceName() string { return a.name }

// ResolveMonitor leases a handle on the monitor matching id.
func (a *Adapter) ResolveMonitor(ctx context.Context, id MonitorIdentity) (*Monitor, error) {
	var resp MonitorResponse
	req := &MonitorRequest{AdapterID: a.id, Identity: id}
	if err := a.s.call(ctx, KindMonitor, req, &resp); err != nil {
		return nil, fmt.Errorf("resolve monitor %04X:%04X on %q: %w", id.VendorID, id.ProductID, a.name, err)
	}
	a.s.lease(resp.Handle)

	return &Monitor{s: a.s, handle: resp.Handle}, nil
}

// Monitor is a monitor handle leased from the executor. It is released explicitly
// with Release or implicitly when its session ends.
type Monitor struct {
	s        *session
	handle   uint32
	released bool
	mu       sync.Mutex
}

var (
	_ ddcci.VCPController      = (*Monitor)(nil)
	_ ddcci.CapabilitiesReader = (*Monitor)(nil)
)

func (m *Monitor) Handle() uint32 { return m.handle }

func (m *Monitor) call(ctx context.Context, kind Kind, req, resp any) error {
	m.mu.Lock()
	released := m.released
	m.mu.Unlock()
	if released {
		return fmt.Errorf("monitor %d: %w", m.handle, transport.ErrDisposed)
	}

	if err := m.s.call(ctx, kind, req, resp); err != nil {
		return fmt.Errorf("monitor %d: %w", m.handle, err)
	}

	return nil
}

// Capabilities copies the capabilities string into dst and returns its length.
func (m *Monitor) Capabilities(ctx context.Context, dst []byte) (int, error) {
	var resp MonitorCapabilitiesResponse
	if err := m.call(ctx, KindMonitorCapabilities, &MonitorCapabilitiesRequest{Handle: m.handle}, &resp); err != nil {
		return 0, err
	}
	if len(resp.Utf8Capabilities) > len(dst) {
		return 0, fmt.Errorf("%w: capabilities need %d bytes, have %d",
			transport.ErrBufferTooSmall, len(resp.Utf8Capabilities), len(dst))
	}

	return copy(dst, resp.Utf8Capabilities), nil
}

func (m *Monitor) GetVCP(ctx context.Context, code byte) (ddcci.VCPValue, error) {
	var resp MonitorVcpGetResponse
	if err := m.call(ctx, KindMonitorVcpGet, &MonitorVcpGetRequest{Handle: m.handle, VcpCode: code}, &resp); err != nil {
		return ddcci.VCPValue{}, err
	}

	return ddcci.VCPValue{Current: resp.Current, Maximum: resp.Maximum, Temporary: resp.Temporary}, nil
}

func (m *Monitor) SetVCP(ctx context.Context, code byte, value uint16) error {
	var resp MonitorVcpSetResponse
	return m.call(ctx, KindMonitorVcpSet, &MonitorVcpSetRequest{Handle: m.handle, VcpCode: code, Value: value}, &resp)
}

// Release returns the handle to the executor. Releasing twice is a no-op, and releasing
// after the session ended only forgets the handle.
func (m *Monitor) Release(ctx context.Context) error {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return nil
	}
	m.released = true
	m.mu.Unlock()

	m.s.unlease(m.handle)
	if !m.s.state.IsActive() {
		return nil
	}

	var resp MonitorReleaseResponse
	if err := m.s.call(ctx, KindMonitorRelease, &MonitorReleaseRequest{Handle: m.handle}, &resp); err != nil {
		return fmt.Errorf("release monitor %d: %w", m.handle, err)
	}

	return nil
}
