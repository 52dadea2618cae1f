// Package static serves the browser client for the relay.
package static

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/pkg/browser"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/AltairaLabs/livebridge/pkg/httputil"
	"github.com/AltairaLabs/livebridge/runtime/logger"
)

const operationName = "static-ui"

// openURL is replaced in tests.
var openURL = browser.OpenURL

// Server is a file server for the UI directory.
type Server struct {
	addr string
	dir  string

	mu      sync.Mutex
	httpSrv *http.Server
	ln      net.Listener
}

// NewServer creates a server for dir that listens on addr.
func NewServer(addr, dir string) *Server {
	return &Server{addr: addr, dir: dir}
}

// Handler returns the instrumented file server.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(http.FileServer(http.Dir(s.dir)), operationName)
}

// Start listens on the configured address and serves in the background.
// It returns once the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("static dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("static dir %s is not a directory", s.dir)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}

	srv := httputil.NewServer(s.Handler())

	s.mu.Lock()
	s.httpSrv = srv
	s.ln = ln
	s.mu.Unlock()

	logger.InfoContext(ctx, "static server listening", "url", s.URL(), "dir", s.dir)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("static server stopped", "error", err)
		}
	}()
	return nil
}

// URL returns the address browsers should open. It is only meaningful after Start.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return "http://" + s.addr
	}
	host, port, err := net.SplitHostPort(s.ln.Addr().String())
	if err != nil {
		return "http://" + s.addr
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// OpenBrowser opens the UI in the user's default browser.
func (s *Server) OpenBrowser(ctx context.Context) {
	url := s.URL()
	logger.InfoContext(ctx, "opening browser", "url", url)
	if err := openURL(url); err != nil {
		logger.WarnContext(ctx, "could not open browser", "url", url, "error", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
