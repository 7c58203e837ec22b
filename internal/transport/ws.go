package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	ncerr "vmconn/internal/errors"
)

const (
	wsWriteTimeout = 10 * time.Second

	// DefaultPingInterval keeps idle debug sockets from being reaped by
	// proxies.
	DefaultPingInterval = 30 * time.Second
)

// NetDialer opens raw connections and owns whatever carries them.
// [SSHDialer] is one.
type NetDialer interface {
	NetDial(ctx context.Context, network, address string) (net.Conn, error)
	Close() error
}

// WSDialer connects to debug endpoints that speak WebSocket (ws:// and
// wss:// URLs).
type WSDialer struct {
	Timeout      time.Duration
	PingInterval time.Duration

	// Via, when set, opens the underlying connection (for example
	// through an SSH tunnel) and is closed with the dialer.
	Via NetDialer
}

// Dial performs the WebSocket handshake with the URL in address.
func (d *WSDialer) Dial(ctx context.Context, address string) (Link, error) {
	wd := websocket.Dialer{HandshakeTimeout: d.Timeout}
	if d.Via != nil {
		wd.NetDialContext = d.Via.NetDial
	} else {
		wd.Proxy = http.ProxyFromEnvironment
	}

	conn, resp, err := wd.DialContext(ctx, address, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, ncerr.Wrap("dial", address, err)
	}
	return NewWSLink(conn, d.PingInterval), nil
}

// Close releases Via.  Each link owns its own socket.
func (d *WSDialer) Close() error {
	if d.Via != nil {
		return d.Via.Close()
	}
	return nil
}

// WSLink carries one message per WebSocket text frame.  A close frame
// acts as the half-close: [WSLink.CloseSend] sends one and the peer's
// echoed close surfaces from Receive as io.EOF.
type WSLink struct {
	conn         *websocket.Conn
	pingInterval time.Duration

	writeMu   sync.Mutex // serialises data frames
	closeOnce sync.Once
	done      chan struct{}
}

// NewWSLink wraps conn and, with a positive pingInterval, starts a
// keepalive loop.  The peer must answer pings within two intervals.
func NewWSLink(conn *websocket.Conn, pingInterval time.Duration) *WSLink {
	l := &WSLink{conn: conn, pingInterval: pingInterval, done: make(chan struct{})}
	if pingInterval > 0 {
		conn.SetPongHandler(func(string) error {
			l.extendReadDeadline()
			return nil
		})
		l.extendReadDeadline()
		go l.pingLoop()
	}
	return l
}

// Receive returns the payload of the next data frame.
func (l *WSLink) Receive() ([]byte, error) {
	_, data, err := l.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, err
	}
	l.extendReadDeadline()
	return data, nil
}

// Send writes msg as a text frame.
func (l *WSLink) Send(msg []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	l.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)) //nolint:errcheck
	return l.conn.WriteMessage(websocket.TextMessage, msg)
}

// CloseSend starts the close handshake.
func (l *WSLink) CloseSend() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "detach")
	return l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
}

// Close drops the socket without a handshake.
func (l *WSLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.conn.Close()
	})
	return err
}

// RemoteAddr returns the peer address.
func (l *WSLink) RemoteAddr() string { return l.conn.RemoteAddr().String() }

func (l *WSLink) extendReadDeadline() {
	if l.pingInterval > 0 {
		l.conn.SetReadDeadline(time.Now().Add(2 * l.pingInterval)) //nolint:errcheck
	}
}

func (l *WSLink) pingLoop() {
	ticker := time.NewTicker(l.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			if err := l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
