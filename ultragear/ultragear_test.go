package ultragear

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-hidlink/frame"
	"github.com/arloliu/go-hidlink/transport"
	"github.com/arloliu/go-hidlink/transport/transporttest"
)

func response(cmd, dir byte, data ...byte) []byte {
	f := []byte{0, responseLead, cmd, dir, byte(len(data))}
	f = append(f, data...)

	return append(f, frame.XOR(0, f[1:]))
}

func openTestLighting(t *testing.T) (*Lighting, *transporttest.Channel) {
	t.Helper()

	ch := transporttest.NewChannel(FrameLength)
	l, err := Open(ch, transport.WithReplyTimeout(time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	return l, ch
}

func TestPutRequest(t *testing.T) {
	f := make([]byte, FrameLength)
	putRequest(f, CmdSetActiveEffect, Set, []byte{0, 4})

	want := []byte{0, 0x53, 0x43, 0xC7, 0x02, 0x02, 0x00, 0x04}
	assert.Equal(t, want, f[:8])
	assert.Equal(t, frame.XOR(0, want[1:]), f[8])
	assert.Equal(t, []byte{0x45, 0x44}, f[9:11])
}

func TestLighting_Commands(t *testing.T) {
	l, ch := openTestLighting(t)

	var seen [][]byte
	ch.Respond(func(w []byte) [][]byte {
		seen = append(seen, w)
		return [][]byte{response(w[3], w[4])}
	})

	ctx := context.Background()
	require.NoError(t, l.SetActiveEffect(ctx, 5))
	require.NoError(t, l.EnableLighting(ctx, true))
	require.NoError(t, l.EnableLighting(ctx, false))
	require.NoError(t, l.EnableLightingEffect(ctx, 2))

	require.Len(t, seen, 4)
	assert.Equal(t, []byte{0xC7, 2, 2, 0, 5}, seen[0][3:8])
	assert.Equal(t, []byte{0xCF, 2, 2, 1, 0}, seen[1][3:8])
	assert.Equal(t, []byte{0xCF, 2, 2, 2, 0}, seen[2][3:8])
	assert.Equal(t, []byte{0xCA, 2, 2, 3, 2}, seen[3][3:8])
}

func TestLighting_ReplyMatchedOnCommandAndDirection(t *testing.T) {
	l, ch := openTestLighting(t)
	ch.Respond(func(w []byte) [][]byte {
		return [][]byte{
			response(w[3], byte(Get), 0xAA), // same command, other direction
			{0, 0x11, w[3], w[4]},         // not a response frame
			response(w[3], w[4], 0x01, 0x02),
		}
	})

	data, err := l.Exchange(context.Background(), CmdSetActiveEffect, Set, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, data)
	assert.Equal(t, uint64(1), l.Metrics().UnmatchedFrameCount.Load())
}

func TestLighting_ChecksumFailure(t *testing.T) {
	l, ch := openTestLighting(t)
	ch.Respond(func(w []byte) [][]byte {
		r := response(w[3], w[4], 0x01)
		r[len(r)-1] ^= 0x40

		return [][]byte{r}
	})

	err := l.EnableLighting(context.Background(), true)
	require.ErrorIs(t, err, transport.ErrFraming)
	check, _ := frame.CheckOf(err)
	assert.Equal(t, frame.CheckChecksum, check)
}

func TestLighting_SingleOutstanding(t *testing.T) {
	l, ch := openTestLighting(t)

	errCh := make(chan error, 1)
	go func() {
		errCh <- l.SetActiveEffect(context.Background(), 1)
	}()

	w, err := ch.NextWrite(time.Second)
	require.NoError(t, err)

	err = l.EnableLighting(context.Background(), true)
	require.ErrorIs(t, err, transport.ErrWritePending)

	require.True(t, ch.Inject(response(w[3], w[4])))
	require.NoError(t, <-errCh)
}

func TestLighting_TooManyParams(t *testing.T) {
	l, _ := openTestLighting(t)

	_, err := l.Exchange(context.Background(), CmdSetActiveEffect, Set, make([]byte, maxParams+1)...)
	require.ErrorIs(t, err, transport.ErrInvalidArgument)
}

func TestLighting_Disposed(t *testing.T) {
	l, _ := openTestLighting(t)
	require.NoError(t, l.Close())

	err := l.SetActiveEffect(context.Background(), 1)
	require.ErrorIs(t, err, transport.ErrDisposed)
}
