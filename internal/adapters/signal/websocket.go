package signal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrPeerConnected = errors.New("peer already connected")

// WSTransport carries one signaling message per websocket text frame.
type WSTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func NewWSTransport(conn *websocket.Conn, writeTimeout time.Duration) *WSTransport {
	return &WSTransport{conn: conn, writeTimeout: writeTimeout}
}

func (t *WSTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

func (t *WSTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *WSTransport) Close() error {
	t.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

// DialWebSocket connects to a peer's websocket endpoint, retrying until it answers or ctx is done.
func DialWebSocket(ctx context.Context, url string, writeTimeout time.Duration) (*WSTransport, error) {
	var conn *websocket.Conn
	err := retry(ctx, url, func() error {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dial websocket %s: %w", url, err)
	}
	log.Info().Str("module", "signal").Str("url", url).Msg("connected to peer")
	return NewWSTransport(conn, writeTimeout), nil
}

// Acceptor upgrades the first inbound websocket request into a transport.
// Later requests are refused with 409 Conflict.
type Acceptor struct {
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	conns        chan *WSTransport
	taken        atomic.Bool
}

func NewAcceptor(writeTimeout time.Duration) *Acceptor {
	return &Acceptor{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		writeTimeout: writeTimeout,
		conns:        make(chan *WSTransport, 1),
	}
}

func (a *Acceptor) Upgrade(w http.ResponseWriter, r *http.Request) error {
	if !a.taken.CompareAndSwap(false, true) {
		http.Error(w, ErrPeerConnected.Error(), http.StatusConflict)
		return ErrPeerConnected
	}
	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.taken.Store(false)
		return err
	}
	log.Info().Str("module", "signal").Str("remote", r.RemoteAddr).Msg("peer connected")
	a.conns <- NewWSTransport(ws, a.writeTimeout)
	return nil
}

// Accept waits for the peer connection.
func (a *Acceptor) Accept(ctx context.Context) (*WSTransport, error) {
	select {
	case t := <-a.conns:
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close releases a connection that arrived but was never accepted.
func (a *Acceptor) Close() {
	select {
	case t := <-a.conns:
		_ = t.Close()
	default:
	}
}
