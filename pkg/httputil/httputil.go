// Package httputil provides shared HTTP server construction for livebridge.
// It centralizes timeout defaults so that every listener (relay, UI,
// metrics) uses consistent configuration.
package httputil

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/AltairaLabs/livebridge/runtime/logger"
)

// Standard server timeouts.
const (
	// DefaultReadHeaderTimeout prevents Slowloris attacks.
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultIdleTimeout is how long keep-alive connections wait for the
	// next request. Hijacked websocket connections are not affected.
	DefaultIdleTimeout = 120 * time.Second
)

// NewServer returns an *http.Server for h with the standard timeouts and
// its error log routed to the structured logger at warn level.
func NewServer(h http.Handler) *http.Server {
	return &http.Server{
		Handler:           h,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		ErrorLog:          logger.StdLogger(slog.LevelWarn),
	}
}
