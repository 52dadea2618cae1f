package prometheus

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AltairaLabs/livebridge/pkg/httputil"
	"github.com/AltairaLabs/livebridge/runtime/logger"
	"github.com/AltairaLabs/livebridge/runtime/version"
)

// Exporter serves Prometheus metrics over HTTP.
type Exporter struct {
	server   *http.Server
	registry *prometheus.Registry
	mu       sync.Mutex
	started  bool
}

// NewExporter creates a Prometheus exporter with the relay's collectors, build
// info and Go runtime metrics registered.
func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()

	for _, collector := range allMetrics {
		reg.MustRegister(collector)
	}

	buildInfo := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information of the running relay",
		},
		[]string{"version", "commit"},
	)
	buildInfo.WithLabelValues(version.GetVersion(), version.GetCommit()).Set(1)
	reg.MustRegister(buildInfo)

	// Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return newExporterWithRegistry(reg)
}

func newExporterWithRegistry(registry *prometheus.Registry) *Exporter {
	return &Exporter{registry: registry}
}

// Serve serves /metrics and /health on ln. It blocks until the server stops
// and returns nil after a graceful Shutdown.
func (e *Exporter) Serve(ln net.Listener) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		_ = ln.Close()
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	e.server = httputil.NewServer(mux)
	e.started = true
	srv := e.server
	e.mu.Unlock()

	logger.Info("metrics exporter listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the exporter with the given context.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.server != nil && e.started {
		e.started = false
		return e.server.Shutdown(ctx)
	}
	return nil
}

// Handler returns an http.Handler for the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

