package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-hidlink/frame"
	"github.com/arloliu/go-hidlink/transport/transporttest"
)

const (
	testFrameLen  = 8
	testInstance  = 0x42
	testStatusOK  = 0xA5
	testWaitLimit = time.Second
)

// testCodec frames: [reportID, instance, seq, status, payload(4)]
type testCodec struct{}

func (testCodec) FrameLength() int { return testFrameLen }

func (testCodec) Correlate(f []byte) (byte, bool) {
	if f[1] != testInstance {
		return 0, false
	}

	return f[2], true
}

func (testCodec) Unwrap(f []byte) ([]byte, error) {
	if err := frame.Expect(f, 3, testStatusOK, frame.CheckStatus); err != nil {
		return nil, err
	}

	return f[4:], nil
}

func reply(seq byte, payload ...byte) []byte {
	return append([]byte{0, testInstance, seq, testStatusOK}, payload...)
}

func newTestTransport(t *testing.T, opts ...Option) (*Transport[byte], *transporttest.Channel) {
	t.Helper()

	ch := transporttest.NewChannel(testFrameLen)
	tr, err := New[byte](ch, testCodec{}, append([]Option{WithName("test")}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	return tr, ch
}

// echoDevice answers every request with its own sequence and payload.
func echoDevice(written []byte) [][]byte {
	return [][]byte{reply(written[2], written[4:]...)}
}

// exchangeByte runs one transaction that sends b and returns the first payload byte of the reply.
func exchangeByte(ctx context.Context, tr *Transport[byte], b byte) (byte, error) {
	var got byte
	err := tr.Do(ctx, func(ctx context.Context, tx *Tx[byte]) error {
		seq := tx.Next()
		f := tx.Frame()
		f[1], f[2], f[4] = testInstance, seq, b

		return tx.Exchange(ctx, seq, func(payload []byte) (bool, error) {
			got = payload[0]
			return true, nil
		})
	})

	return got, err
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, testWaitLimit, 5*time.Millisecond)
}
