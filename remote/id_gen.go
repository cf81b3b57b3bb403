package remote

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync/atomic"
)

// requestIDs hands out request ids for one session. The start is random so ids from
// a previous session are unlikely to match a live waiter.
type requestIDs struct {
	id atomic.Uint32
}

func newRequestIDs() *requestIDs {
	g := &requestIDs{}
	var buf [4]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err == nil {
		g.id.Store(binary.LittleEndian.Uint32(buf[:]))
	}

	return g
}

// next returns a non-zero id.
func (g *requestIDs) next() uint32 {
	for {
		if id := g.id.Add(1); id != 0 {
			return id
		}
	}
}
