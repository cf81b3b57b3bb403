package transport

import "sync/atomic"

const (
	stateReady uint32 = iota
	stateReserved
	stateDisposed
)

// Sequencer hands out 8-bit sequence numbers under a single-writer discipline.
//
// The sequence number and the reservation state live in one atomic word, so a
// reservation and the sequence it was taken at can never be observed apart.
// Sequence numbers wrap at 256.
type Sequencer struct {
	word atomic.Uint32 // bits 0-7: state, bits 8-15: sequence
}

func pack(seq byte, state uint32) uint32 {
	return uint32(seq)<<8 | state
}

func unpack(w uint32) (byte, uint32) {
	return byte(w >> 8), w & 0xFF
}

// NewSequencer returns a Ready sequencer starting at seq.
func NewSequencer(seq byte) *Sequencer {
	s := &Sequencer{}
	s.word.Store(pack(seq, stateReady))

	return s
}

// BeginWrite reserves the writer and returns the current sequence number.
//
// It returns ErrWritePending when another writer holds the reservation and
// ErrDisposed after Dispose.
func (s *Sequencer) BeginWrite() (byte, error) {
	for {
		w := s.word.Load()
		seq, state := unpack(w)
		switch state {
		case stateDisposed:
			return 0, ErrDisposed
		case stateReserved:
			return 0, ErrWritePending
		}

		if s.word.CompareAndSwap(w, pack(seq, stateReserved)) {
			return seq, nil
		}
	}
}

// EndWrite releases a reservation taken at used and advances to used+1.
func (s *Sequencer) EndWrite(used byte) {
	s.EndWriteAt(used, used+1)
}

// EndWriteAt releases a reservation taken at used and publishes next as the
// following sequence number. Transactions that consumed several sequence numbers
// pass the first unused one. The call is a no-op after Dispose.
func (s *Sequencer) EndWriteAt(used, next byte) {
	s.word.CompareAndSwap(pack(used, stateReserved), pack(next, stateReady))
}

// Dispose moves the sequencer to its terminal state. It reports whether this call
// performed the transition.
func (s *Sequencer) Dispose() bool {
	for {
		w := s.word.Load()
		seq, state := unpack(w)
		if state == stateDisposed {
			return false
		}
		if s.word.CompareAndSwap(w, pack(seq, stateDisposed)) {
			return true
		}
	}
}

// Current returns the sequence number the next BeginWrite will hand out.
func (s *Sequencer) Current() byte {
	seq, _ := unpack(s.word.Load())
	return seq
}

// IsReserved reports whether a writer holds the reservation.
func (s *Sequencer) IsReserved() bool {
	_, state := unpack(s.word.Load())
	return state == stateReserved
}

// IsDisposed reports whether Dispose was called.
func (s *Sequencer) IsDisposed() bool {
	_, state := unpack(s.word.Load())
	return state == stateDisposed
}
