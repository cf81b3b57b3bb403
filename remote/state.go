package remote

import "sync/atomic"

// SessionState is the lifecycle state of a session.
type SessionState uint32

const (
	// Connecting sessions have completed the hello but are not current yet.
	Connecting SessionState = iota
	// Active is the current session; requests are routed to it.
	Active
	// Draining sessions accept no new requests and are failing the outstanding ones.
	Draining
	// Closed sessions are gone for good.
	Closed
)

func (s SessionState) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Active:
		return "Active"
	case Draining:
		return "Draining"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

type atomicState struct {
	state atomic.Uint32
}

func (st *atomicState) Get() SessionState {
	return SessionState(st.state.Load())
}

func (st *atomicState) IsActive() bool {
	return st.Get() == Active
}

func (st *atomicState) ToActive() bool {
	return st.state.CompareAndSwap(uint32(Connecting), uint32(Active))
}

// ToDraining moves a connecting or active session to Draining.
func (st *atomicState) ToDraining() bool {
	if st.state.CompareAndSwap(uint32(Active), uint32(Draining)) {
		return true
	}

	return st.state.CompareAndSwap(uint32(Connecting), uint32(Draining))
}

func (st *atomicState) ToClosed() bool {
	if st.Get() == Closed {
		return true
	}

	return st.state.CompareAndSwap(uint32(Draining), uint32(Closed))
}
