package hidi2c

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-hidlink/ddcci"
	"github.com/arloliu/go-hidlink/transport"
	"github.com/arloliu/go-hidlink/transport/transporttest"
)

const testSession = 0x5A

type vcpSet struct {
	code  byte
	value uint16
}

// fakeMonitor simulates the bridge and the display behind it.
type fakeMonitor struct {
	mu          sync.Mutex
	session     byte
	vcp         map[byte]ddcci.VCPValue
	unsupported map[byte]bool
	caps        []byte
	tables      map[byte][]byte
	chunk       int
	corrupt     int // number of upcoming DDC replies to corrupt
	foreign     bool
	badMarker   bool
	lastDDC     []byte
	sets        []vcpSet
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{
		session:     testSession,
		vcp:         map[byte]ddcci.VCPValue{},
		unsupported: map[byte]bool{},
		tables:      map[byte][]byte{},
		chunk:       ddcci.MaxChunkData,
	}
}

func replyFrame(seq, session byte, payload []byte) []byte {
	f := make([]byte, FrameLength)
	f[1] = byte(replyHeaderLength + len(payload))
	f[2] = seq
	f[3] = session
	copy(f[5:], payload)

	return f
}

func (m *fakeMonitor) respond(w []byte) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := w[1:]
	seq := msg[1]

	switch msg[0] {
	case kindHandshake:
		payload := []byte{0, 0, 0, 0, 0, 'H', 'I', 'D'}
		if m.badMarker {
			payload[7] = 'X'
		}
		return [][]byte{replyFrame(seq, m.session, payload)}

	case kindI2C:
		switch msg[3] {
		case opI2CWrite:
			m.lastDDC = append([]byte(nil), msg[8:8+int(msg[4])]...)
			if m.lastDDC[2] == ddcci.OpVCPSet {
				m.sets = append(m.sets, vcpSet{m.lastDDC[3], binary.BigEndian.Uint16(m.lastDDC[4:])})
			}
			return nil

		case opI2CRead:
			reply := m.ddcReply()
			if m.corrupt > 0 {
				m.corrupt--
				reply[len(reply)-1] ^= 0xFF
			}
			out := [][]byte{}
			if m.foreign {
				out = append(out, replyFrame(seq, m.session+1, []byte{0xDE, 0xAD}))
			}
			return append(out, replyFrame(seq, m.session, reply))
		}
	}

	return nil
}

func (m *fakeMonitor) ddcReply() []byte {
	ddc := m.lastDDC
	switch ddc[2] {
	case ddcci.OpVCPRequest:
		code := ddc[3]
		if m.unsupported[code] {
			return ddcci.AppendReply(nil, ddcci.OpVCPReply, []byte{1, code, 0, 0, 0, 0, 0})
		}
		return ddcci.AppendVCPReply(nil, code, m.vcp[code])

	case ddcci.OpCapabilitiesRequest:
		offset := binary.BigEndian.Uint16(ddc[3:])
		return ddcci.AppendChunkReply(nil, ddcci.OpCapabilitiesReply, offset, m.slice(m.caps, int(offset)))

	case ddcci.OpTableReadRequest:
		offset := binary.BigEndian.Uint16(ddc[4:])
		return ddcci.AppendChunkReply(nil, ddcci.OpTableReadReply, offset, m.slice(m.tables[ddc[3]], int(offset)))
	}

	return nil
}

func (m *fakeMonitor) slice(data []byte, offset int) []byte {
	if offset >= len(data) {
		return nil
	}

	return data[offset:min(offset+m.chunk, len(data))]
}

func openTestBridge(t *testing.T, m *fakeMonitor) (*Bridge, *transporttest.Channel) {
	t.Helper()

	ch := transporttest.NewChannel(FrameLength)
	ch.Respond(m.respond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	b, err := Open(ctx, ch, testSession, WithTransportOptions(transport.WithReplyTimeout(time.Second)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	return b, ch
}
