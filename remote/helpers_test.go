package remote

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-hidlink/ddcci"
)

type fakeHandle struct {
	caps    string
	values  map[byte]ddcci.VCPValue
	block   chan struct{} // GetVCP waits on it when set
	entered chan struct{}
	closed  atomic.Bool

	mu sync.Mutex
}

func (h *fakeHandle) GetVCP(ctx context.Context, code byte) (ddcci.VCPValue, error) {
	if h.block != nil {
		close(h.entered)
		select {
		case <-h.block:
		case <-ctx.Done():
			return ddcci.VCPValue{}, ctx.Err()
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.values[code]
	if !ok {
		return ddcci.VCPValue{}, fmt.Errorf("code 0x%02X: %w", code, ddcci.ErrUnsupportedVCP)
	}

	return v, nil
}

func (h *fakeHandle) SetVCP(_ context.Context, code byte, value uint16) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.values[code]
	if !ok {
		return fmt.Errorf("code 0x%02X: %w", code, ddcci.ErrUnsupportedVCP)
	}
	v.Current = value
	h.values[code] = v

	return nil
}

func (h *fakeHandle) Capabilities(_ context.Context, dst []byte) (int, error) {
	return copy(dst, h.caps), nil
}

func (h *fakeHandle) Close() error {
	h.closed.Store(true)
	return nil
}

var testMonitor = MonitorIdentity{VendorID: 0x1E6D, ProductID: 0x5B9A, IDSerial: 12345, SerialNumber: "ABC"}

type fakeBackend struct {
	adapterID uint64
	block     bool

	mu     sync.Mutex
	opened []*fakeHandle
}

func (b *fakeBackend) ResolveAdapter(_ context.Context, name string) (uint64, error) {
	if name != "card0" {
		return 0, fmt.Errorf("adapter %q: %w", name, ErrNotFound)
	}

	return b.adapterID, nil
}

func (b *fakeBackend) OpenMonitor(_ context.Context, adapterID uint64, id MonitorIdentity) (MonitorHandle, error) {
	if adapterID != b.adapterID || id != testMonitor {
		return nil, ErrNotFound
	}

	h := &fakeHandle{
		caps:   "(prot(monitor)vcp(10 12))",
		values: map[byte]ddcci.VCPValue{0x10: {Current: 50, Maximum: 100}, 0x12: {Current: 70, Maximum: 100}},
	}
	if b.block {
		h.block = make(chan struct{})
		h.entered = make(chan struct{})
	}

	b.mu.Lock()
	b.opened = append(b.opened, h)
	b.mu.Unlock()

	return h, nil
}

func (b *fakeBackend) handles() []*fakeHandle {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]*fakeHandle(nil), b.opened...)
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()

	svc, err := NewService(append([]Option{WithRequestTimeout(2 * time.Second)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	return svc
}

type testPeer struct {
	exec     *Executor
	svcSide  Stream
	execDone chan error
	svcDone  chan error
}

// connect attaches an executor for b to svc over an in-memory pipe.
func connect(t *testing.T, svc *Service, b Backend) *testPeer {
	t.Helper()

	exec, err := NewExecutor(b)
	require.NoError(t, err)

	a, c := Pipe()
	p := &testPeer{exec: exec, svcSide: a, execDone: make(chan error, 1), svcDone: make(chan error, 1)}
	go func() { p.svcDone <- svc.Serve(context.Background(), a) }()
	go func() { p.execDone <- exec.Serve(context.Background(), c) }()
	t.Cleanup(func() { _ = a.Close() })

	return p
}

func waitCurrent(t *testing.T, svc *Service, exec *Executor) {
	t.Helper()

	require.Eventually(t, func() bool {
		info, ok := svc.Current()
		return ok && info.ID == exec.ID()
	}, 2*time.Second, 5*time.Millisecond)
}

// rawPeer connects a scripted executor that the test drives message by message.
func rawPeer(t *testing.T, svc *Service) Stream {
	t.Helper()

	a, c := Pipe()
	go func() { _ = svc.Serve(context.Background(), a) }()
	t.Cleanup(func() { _ = c.Close() })

	hello, err := marshalEnvelope(Envelope{Kind: KindHello}, &Hello{SessionID: "0d3b4c1e-8f4e-4d2a-9a57-2f8f4a6b1c00"})
	require.NoError(t, err)
	require.NoError(t, c.Send(context.Background(), hello))

	require.Eventually(t, func() bool {
		_, ok := svc.Current()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	return c
}

func recvRequest(t *testing.T, s Stream) Envelope {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := s.Recv(ctx)
	require.NoError(t, err)
	env, err := unmarshalEnvelope(msg)
	require.NoError(t, err)
	require.False(t, env.Response)

	return env
}

func sendResponse(t *testing.T, s Stream, env Envelope, body any) {
	t.Helper()

	env.Response = true
	msg, err := marshalEnvelope(env, body)
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), msg))
}
