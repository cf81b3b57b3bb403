package transport

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// DecodeFunc consumes the unwrapped payload of a correlated frame.
//
// It runs on the reader goroutine. Returning done=false with a nil error leaves the
// waiter registered, so protocols without a correlation field can skip unrelated
// frames. Any non-nil error completes the waiter with that error.
type DecodeFunc func(payload []byte) (done bool, err error)

// pending is one outstanding wait for a reply. mu serializes decode with completion,
// so a decoder never runs after the waiter gave up.
type pending struct {
	decode   DecodeFunc
	done     chan struct{}
	mu       sync.Mutex
	finished bool
	err      error
}

func newPending(decode DecodeFunc) *pending {
	return &pending{decode: decode, done: make(chan struct{})}
}

// complete resolves the waiter. Only the first call has an effect.
func (p *pending) complete(err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.finishLocked(err)
}

func (p *pending) finishLocked(err error) bool {
	if p.finished {
		return false
	}
	p.finished = true
	p.err = err
	close(p.done)

	return true
}

// deliver hands payload to the decoder and reports whether the waiter completed.
// A completed waiter doesn't decode again.
func (p *pending) deliver(payload []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return true
	}

	done, err := p.decode(payload)
	if err != nil || done {
		p.finishLocked(err)
		return true
	}

	return false
}

// pendingTable maps correlation keys to their waiters. It is written by callers
// and read by the reader loop concurrently.
type pendingTable[K comparable] struct {
	m *xsync.MapOf[K, *pending]
}

func newPendingTable[K comparable]() *pendingTable[K] {
	return &pendingTable[K]{m: xsync.NewMapOf[K, *pending]()}
}

// register stores p under key unless the key already has a waiter.
func (t *pendingTable[K]) register(key K, p *pending) bool {
	_, loaded := t.m.LoadOrStore(key, p)
	return !loaded
}

func (t *pendingTable[K]) load(key K) (*pending, bool) {
	return t.m.Load(key)
}

// remove deletes key only while it still maps to p.
func (t *pendingTable[K]) remove(key K, p *pending) {
	t.m.Compute(key, func(old *pending, loaded bool) (*pending, bool) {
		return old, !loaded || old == p
	})
}

// failAll completes and removes every waiter with err.
func (t *pendingTable[K]) failAll(err error) int {
	n := 0
	t.m.Range(func(key K, p *pending) bool {
		if p.complete(err) {
			n++
		}
		t.m.Delete(key)

		return true
	})

	return n
}

func (t *pendingTable[K]) size() int {
	return t.m.Size()
}
