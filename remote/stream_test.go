package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// stalledPeer accepts a websocket connection and never reads from it, so writes
// toward it block once the socket buffers are full.
func stalledPeer(t *testing.T) *WebsocketStream {
	t.Helper()

	release := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	s, err := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	return s
}

// fill keeps sending large messages until a send fails.
func fill(ctx context.Context, s *WebsocketStream) <-chan error {
	done := make(chan error, 1)
	go func() {
		msg := make([]byte, 1<<20)
		for {
			if err := s.Send(ctx, msg); err != nil {
				done <- err
				return
			}
		}
	}()

	return done
}

func TestWebsocketStream_CloseWhileSendBlocked(t *testing.T) {
	s := stalledPeer(t)
	sendErr := fill(context.Background(), s)
	time.Sleep(300 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close waited for a send blocked on the peer")
	}

	select {
	case err := <-sendErr:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked send not failed by Close")
	}
}

func TestWebsocketStream_SendCanceled(t *testing.T) {
	s := stalledPeer(t)
	t.Cleanup(func() { _ = s.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	sendErr := fill(ctx, s)
	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case err := <-sendErr:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("send ignored its canceled context")
	}
}
