package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// closeGracePeriod bounds writing the close frame.
const closeGracePeriod = time.Second

// wsClientConn adapts a server-side gorilla connection to ClientConn.
type wsClientConn struct {
	conn      *websocket.Conn
	writeWait time.Duration

	writeMu    sync.Mutex // gorilla allows one concurrent writer
	peerClosed atomic.Bool
	closeOnce  sync.Once
	closeErr   error
}

// NewWebSocketConn wraps an upgraded websocket connection. A positive
// readLimit caps the size of client messages.
func NewWebSocketConn(conn *websocket.Conn, readLimit int64, writeWait time.Duration) ClientConn {
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}
	if writeWait <= 0 {
		writeWait = DefaultWriteWait
	}
	return &wsClientConn{conn: conn, writeWait: writeWait}
}

// ReadMessage returns the next text or binary message. Cancelling ctx
// interrupts the read through the read deadline; a connection whose read was
// interrupted is not readable afterwards. When ctx is cancelled just as a
// message arrives, the message is returned and the deadline is cleared.
func (c *wsClientConn) ReadMessage(ctx context.Context) ([]byte, error) {
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
		close(interrupted)
	})
	defer func() {
		if !stop() {
			<-interrupted
			_ = c.conn.SetReadDeadline(time.Time{})
		}
	}()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, context.Cause(ctx)
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.peerClosed.Store(true)
				return nil, fmt.Errorf("%w: %w", ErrClientClosed, err)
			}
			return nil, err
		}
		if msgType == websocket.TextMessage || msgType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// WriteMessage sends data as a text message. Writes after a clean close by
// the peer fail with ErrClientClosed.
func (c *wsClientConn) WriteMessage(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)

	err := c.conn.WriteMessage(websocket.TextMessage, data)
	if err == nil {
		return nil
	}
	if c.peerClosed.Load() || errors.Is(err, websocket.ErrCloseSent) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return fmt.Errorf("%w: %w", ErrClientClosed, err)
	}
	return err
}

// Close sends a normal-closure frame and closes the connection once.
func (c *wsClientConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
