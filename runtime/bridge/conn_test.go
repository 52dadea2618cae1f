package bridge

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/livebridge/pkg/testutil"
)

// wsPair returns a server-side ClientConn and the client websocket talking to it.
func wsPair(t *testing.T, readLimit int64) (ClientConn, *websocket.Conn) {
	t.Helper()
	serverSide := make(chan ClientConn, 1)
	srv := testutil.NewWebSocketServer(t, func(ws *websocket.Conn, _ *http.Request) {
		serverSide <- NewWebSocketConn(ws, readLimit, time.Second)
	})

	client, resp, err := websocket.DefaultDialer.Dial(testutil.WebSocketURL(srv.URL), nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { _ = client.Close() })

	select {
	case c := <-serverSide:
		return c, client
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade did not complete")
		return nil, nil
	}
}

func TestWebSocketConn_ReadWrite(t *testing.T) {
	conn, client := wsPair(t, 0)

	require.NoError(t, client.WriteMessage(websocket.PingMessage, nil))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"setup":{}}`)))
	data, err := conn.ReadMessage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"setup":{}}`, string(data))

	require.NoError(t, conn.WriteMessage(context.Background(), []byte(`{"text":"hi"}`)))
	msgType, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)
	assert.Equal(t, `{"text":"hi"}`, string(msg))
}

func TestWebSocketConn_NormalCloseIsClientClosed(t *testing.T) {
	conn, client := wsPair(t, 0)

	require.NoError(t, client.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "tab closed")))

	_, err := conn.ReadMessage(context.Background())
	assert.ErrorIs(t, err, ErrClientClosed)

	err = conn.WriteMessage(context.Background(), []byte(`{"text":"late"}`))
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestWebSocketConn_AbnormalCloseIsPeerError(t *testing.T) {
	conn, client := wsPair(t, 0)
	require.NoError(t, client.UnderlyingConn().Close())

	_, err := conn.ReadMessage(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrClientClosed))
}

func TestWebSocketConn_ReadHonoursContext(t *testing.T) {
	conn, _ := wsPair(t, 0)

	ctx, cancel := context.WithCancelCause(context.Background())
	cause := errors.New("sibling exited")
	time.AfterFunc(20*time.Millisecond, func() { cancel(cause) })

	_, err := conn.ReadMessage(ctx)
	assert.ErrorIs(t, err, cause)
}

// cancelOnArrival cancels a context as soon as the first bytes are read and
// holds that read until the cancellation has set the read deadline.
type cancelOnArrival struct {
	net.Conn
	armed    atomic.Bool
	once     sync.Once
	cancel   context.CancelFunc
	deadline chan struct{}
}

func (c *cancelOnArrival) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if n > 0 && c.armed.Load() {
		c.once.Do(func() {
			c.cancel()
			<-c.deadline
		})
	}
	return n, err
}

func (c *cancelOnArrival) SetReadDeadline(t time.Time) error {
	err := c.Conn.SetReadDeadline(t)
	if !t.IsZero() && c.armed.Load() {
		select {
		case c.deadline <- struct{}{}:
		default:
		}
	}
	return err
}

func TestWebSocketConn_CancelRacingArrivalKeepsConnReadable(t *testing.T) {
	peer := make(chan *websocket.Conn, 1)
	srv := testutil.NewWebSocketServer(t, func(ws *websocket.Conn, _ *http.Request) { peer <- ws })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	raw := &cancelOnArrival{cancel: cancel, deadline: make(chan struct{}, 1)}
	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			c, err := (&net.Dialer{}).DialContext(ctx, network, addr)
			raw.Conn = c
			return raw, err
		},
	}
	ws, resp, err := dialer.Dial(testutil.WebSocketURL(srv.URL), nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { _ = ws.Close() })
	server := <-peer

	conn := NewWebSocketConn(ws, 0, time.Second)
	raw.armed.Store(true)

	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`{"setup":{}}`)))
	data, err := conn.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"setup":{}}`, string(data))
	require.Error(t, ctx.Err())

	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`{"realtime_input":{}}`)))
	data, err = conn.ReadMessage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"realtime_input":{}}`, string(data))
}

func TestWebSocketConn_ReadLimit(t *testing.T) {
	conn, client := wsPair(t, 16)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 64))))
	_, err := conn.ReadMessage(context.Background())
	assert.ErrorIs(t, err, websocket.ErrReadLimit)
}

func TestWebSocketConn_CloseIsIdempotent(t *testing.T) {
	conn, client := wsPair(t, 0)

	require.NoError(t, conn.Close())
	assert.NotPanics(t, func() { _ = conn.Close() })

	_, _, err := client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
