package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arloliu/go-hidlink/internal/util"
)

// Stream is an ordered duplex exchange of encoded envelopes.
//
// Send may be called concurrently with Recv. Close unblocks both.
type Stream interface {
	Send(ctx context.Context, msg []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

const closeWriteTimeout = 100 * time.Millisecond

// WebsocketStream carries one envelope per binary websocket message.
type WebsocketStream struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

// NewWebsocketStream wraps an established connection.
func NewWebsocketStream(conn *websocket.Conn) *WebsocketStream {
	return &WebsocketStream{conn: conn}
}

// Dial connects to a service endpoint.
func Dial(ctx context.Context, url string, header http.Header) (*WebsocketStream, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	return NewWebsocketStream(conn), nil
}

// Send writes msg as one binary message. A done ctx aborts a write blocked on the peer.
func (s *WebsocketStream) Send(ctx context.Context, msg []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	if err := s.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return err
	}

	return nil
}

func (s *WebsocketStream) Recv(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		typ, msg, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}

			return nil, err
		}
		if typ == websocket.BinaryMessage {
			return msg, nil
		}
	}
}

// Close sends a normal closure frame and closes the connection. It doesn't wait for a
// Send blocked on the peer; closing the connection fails that write.
func (s *WebsocketStream) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeWriteTimeout))

	return s.conn.Close()
}

var errPipeClosed = errors.New("remote: pipe closed")

type pipeEnd struct {
	in     <-chan []byte
	out    chan<- []byte
	closed chan struct{}
	once   *sync.Once
}

// Pipe returns two connected in-memory streams. Closing either end closes both.
func Pipe() (Stream, Stream) {
	ab := make(chan []byte, 16)
	ba := make(chan []byte, 16)
	closed := make(chan struct{})
	once := &sync.Once{}

	return &pipeEnd{in: ba, out: ab, closed: closed, once: once},
		&pipeEnd{in: ab, out: ba, closed: closed, once: once}
}

func (p *pipeEnd) Send(ctx context.Context, msg []byte) error {
	buf := util.CloneSlice(msg, 0)
	select {
	case <-p.closed:
		return errPipeClosed
	default:
	}

	select {
	case p.out <- buf:
		return nil
	case <-p.closed:
		return errPipeClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Recv(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
