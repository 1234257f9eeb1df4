package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultReadLimit        = 1 << 20
	closeWriteTimeout       = time.Second
)

// GorillaDialer dials url with gorilla/websocket.
type GorillaDialer struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	ReadLimit        int64
	// ReadTimeout fails a read when no frame or pong arrives within it. Zero
	// waits forever.
	ReadTimeout time.Duration
}

func NewDialer(url string, header http.Header) *GorillaDialer {
	return &GorillaDialer{
		URL:              url,
		Header:           header,
		HandshakeTimeout: DefaultHandshakeTimeout,
		ReadLimit:        DefaultReadLimit,
	}
}

func (d *GorillaDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := gws.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	c, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	if d.ReadLimit > 0 {
		c.SetReadLimit(d.ReadLimit)
	}
	return WrapConn(c, d.ReadTimeout), nil
}

type gorillaConn struct {
	conn        *gws.Conn
	readTimeout time.Duration
	mu          sync.Mutex
}

// WrapConn adapts an established gorilla connection. Writes are serialized;
// reads must come from a single goroutine. A positive readTimeout bounds
// each read and is extended by every pong.
func WrapConn(c *gws.Conn, readTimeout time.Duration) Conn {
	gc := &gorillaConn{conn: c, readTimeout: readTimeout}
	if readTimeout > 0 {
		c.SetPongHandler(func(string) error {
			return c.SetReadDeadline(time.Now().Add(readTimeout))
		})
	}
	return gc
}

func (c *gorillaConn) ReadMessage(ctx context.Context) (MessageType, []byte, error) {
	if err := c.setReadDeadline(ctx); err != nil {
		return 0, nil, err
	}
	t, payload, err := c.conn.ReadMessage()
	if err != nil {
		return 0, nil, err
	}
	return MessageType(t), payload, nil
}

func (c *gorillaConn) WriteMessage(ctx context.Context, msgType MessageType, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msgType == MessagePing || msgType == MessagePong || msgType == MessageClose {
		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(closeWriteTimeout)
		}
		return c.conn.WriteControl(int(msgType), payload, deadline)
	}
	if err := setDeadline(ctx, c.conn.SetWriteDeadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(int(msgType), payload)
}

func (c *gorillaConn) Close(code CloseCode, reason string) error {
	c.mu.Lock()
	_ = c.conn.WriteControl(gws.CloseMessage, gws.FormatCloseMessage(int(code), reason), time.Now().Add(closeWriteTimeout))
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *gorillaConn) setReadDeadline(ctx context.Context) error {
	if ctx != nil {
		if _, ok := ctx.Deadline(); ok || ctx.Err() != nil {
			return setDeadline(ctx, c.conn.SetReadDeadline)
		}
	}
	if c.readTimeout > 0 {
		return c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	return c.conn.SetReadDeadline(time.Time{})
}

func setDeadline(ctx context.Context, set func(time.Time) error) error {
	if ctx == nil {
		return set(time.Time{})
	}
	if deadline, ok := ctx.Deadline(); ok {
		return set(deadline)
	}
	if ctx.Err() != nil {
		return set(time.Now())
	}
	return set(time.Time{})
}
