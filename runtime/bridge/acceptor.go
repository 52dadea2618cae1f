package bridge

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/AltairaLabs/livebridge/pkg/httputil"
	"github.com/AltairaLabs/livebridge/runtime/logger"
	"github.com/AltairaLabs/livebridge/runtime/telemetry"
)

const wsBufferSize = 64 * 1024

// AcceptorConfig configures the listening side of the relay.
type AcceptorConfig struct {
	// Addr is the host:port used by ListenAndServe.
	Addr string

	// AllowedOrigins restricts the upgrade Origin header. Empty or "*" allows any.
	AllowedOrigins []string

	// MaxConnectionsPerSecond limits accepted upgrades. Zero means unlimited.
	MaxConnectionsPerSecond float64

	// MaxMessageBytes caps the size of a client message. Zero means no cap.
	MaxMessageBytes int64

	// Provider names the upstream in logs and spans.
	Provider string

	// Bridge is applied to every accepted connection.
	Bridge Config
}

// Acceptor upgrades incoming connections and runs one Bridge per connection.
type Acceptor struct {
	cfg      AcceptorConfig
	dialer   UpstreamDialer
	observer Observer
	tracer   trace.Tracer
	upgrader websocket.Upgrader
	limiter  *rate.Limiter

	mu      sync.Mutex
	server  *http.Server
	closed  bool
	bridges sync.WaitGroup
}

// AcceptorOption configures an Acceptor.
type AcceptorOption func(*Acceptor)

// WithAcceptorObserver sets the observer handed to every bridge.
func WithAcceptorObserver(o Observer) AcceptorOption {
	return func(a *Acceptor) {
		if o != nil {
			a.observer = o
		}
	}
}

// WithAcceptorTracer sets the tracer handed to every bridge.
func WithAcceptorTracer(t trace.Tracer) AcceptorOption {
	return func(a *Acceptor) { a.tracer = t }
}

// NewAcceptor creates an acceptor that opens upstream sessions with dialer.
func NewAcceptor(cfg AcceptorConfig, dialer UpstreamDialer, opts ...AcceptorOption) *Acceptor {
	a := &Acceptor{
		cfg:      cfg,
		dialer:   dialer,
		observer: NopObserver{},
	}
	a.upgrader = websocket.Upgrader{
		ReadBufferSize:  wsBufferSize,
		WriteBufferSize: wsBufferSize,
		CheckOrigin:     a.checkOrigin,
	}
	if cfg.MaxConnectionsPerSecond > 0 {
		burst := max(1, int(math.Ceil(cfg.MaxConnectionsPerSecond)))
		a.limiter = rate.NewLimiter(rate.Limit(cfg.MaxConnectionsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the HTTP handler serving the websocket and health endpoints.
func (a *Acceptor) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", a.handleUpgrade).Methods(http.MethodGet)
	r.HandleFunc("/ws", a.handleUpgrade).Methods(http.MethodGet)
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	return telemetry.TraceMiddleware(r)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (a *Acceptor) checkOrigin(r *http.Request) bool {
	if len(a.cfg.AllowedOrigins) == 0 || slices.Contains(a.cfg.AllowedOrigins, "*") {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.ContainsFunc(a.cfg.AllowedOrigins, func(o string) bool {
		return strings.EqualFold(o, origin)
	})
}

func (a *Acceptor) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *Acceptor) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if a.isClosed() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	if a.limiter != nil && !a.limiter.Allow() {
		logger.WarnContext(r.Context(), "connection rate limit exceeded", "remote_addr", r.RemoteAddr)
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		logger.WarnContext(r.Context(), "websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		_ = NewWebSocketConn(ws, 0, a.cfg.Bridge.WriteWait).Close()
		return
	}
	a.bridges.Add(1)
	a.mu.Unlock()
	defer a.bridges.Done()

	conn := NewWebSocketConn(ws, a.cfg.MaxMessageBytes, a.cfg.Bridge.WriteWait)
	b := NewBridge(conn, a.dialer, a.cfg.Bridge,
		WithObserver(a.observer),
		WithTracer(a.tracer),
		WithRemoteAddr(r.RemoteAddr),
		WithProvider(a.cfg.Provider),
	)
	// Bridges keep running after Shutdown until their client or upstream ends.
	_, _ = b.Run(context.WithoutCancel(r.Context()))
}

// Serve accepts connections on ln until ctx is cancelled or Shutdown is
// called. It returns nil after a shutdown.
func (a *Acceptor) Serve(ctx context.Context, ln net.Listener) error {
	srv := httputil.NewServer(a.Handler())
	srv.BaseContext = func(net.Listener) context.Context { return context.WithoutCancel(ctx) }

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	a.server = srv
	a.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = a.Shutdown(context.Background())
	})
	defer stop()

	logger.InfoContext(ctx, "relay listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (a *Acceptor) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", a.cfg.Addr)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

// Shutdown stops accepting connections. Bridges already running are left
// alone; use Wait to drain them.
func (a *Acceptor) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	srv := a.server
	a.mu.Unlock()

	if srv == nil {
		return nil
	}
	// Hijacked websocket connections are not tracked by the server, so
	// Shutdown returns once the listener is closed and idle requests end.
	return srv.Shutdown(ctx)
}

// Wait blocks until every running bridge has finished or ctx is done.
func (a *Acceptor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.bridges.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
