// Package testutil provides shared test helper utilities.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// WebSocketURL converts an http(s) test server URL into its ws(s) form.
func WebSocketURL(httpURL string) string {
	if rest, ok := strings.CutPrefix(httpURL, "https"); ok {
		return "wss" + rest
	}
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

// NewWebSocketServer starts a test server that upgrades every request and
// hands the connection and request to fn. The server is closed with the test.
func NewWebSocketServer(t testing.TB, fn func(ws *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fn(ws, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}
