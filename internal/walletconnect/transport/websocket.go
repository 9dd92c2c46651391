package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"moff.io/walletconnect/pkg/errors"
	"moff.io/walletconnect/pkg/log"
)

// ErrClosed is returned by a connection that has been closed locally.
var ErrClosed = errors.New("connection closed")

// Conn is a text-frame connection to a bridge server.
// ReadMessage is called from a single goroutine; WriteMessage is safe for concurrent use.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens connections to a bridge websocket endpoint.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials bridges with gorilla/websocket.
type WebsocketDialer struct {
	UserAgent        string
	HandshakeTimeout time.Duration
}

func NewWebsocketDialer(userAgent string) *WebsocketDialer {
	return &WebsocketDialer{
		UserAgent:        userAgent,
		HandshakeTimeout: 30 * time.Second,
	}
}

func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	header := http.Header{}
	if d.UserAgent != "" {
		header.Set("User-Agent", d.UserAgent)
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial to wallet connect bridge, status %v", resp.Status)
		}
		return nil, errors.Wrap(err, "dial to wallet connect bridge")
	}
	log.Debugf("wallet connect - connected to bridge %v", url)
	return &websocketConn{conn: conn}, nil
}

type websocketConn struct {
	writeMu   sync.Mutex
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func (c *websocketConn) ReadMessage() ([]byte, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, errors.Wrap(ErrClosed, err.Error())
			}
			return nil, errors.Wrap(err, "read wallet connect message")
		}
		switch msgType {
		case websocket.TextMessage, websocket.BinaryMessage:
			return data, nil
		default:
			log.Debugf("wallet connect - ignore frame type %v", msgType)
		}
	}
}

func (c *websocketConn) WriteMessage(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return errors.Wrap(err, "set websocket write deadline")
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, "write wallet connect message to server")
	}
	return nil
}

func (c *websocketConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
