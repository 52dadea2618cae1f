package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	"github.com/AltairaLabs/livebridge/pkg/config"
	"github.com/AltairaLabs/livebridge/runtime/bridge"
	"github.com/AltairaLabs/livebridge/runtime/logger"
	"github.com/AltairaLabs/livebridge/runtime/metrics/prometheus"
	"github.com/AltairaLabs/livebridge/runtime/providers/gemini"
	"github.com/AltairaLabs/livebridge/runtime/telemetry"
	"github.com/AltairaLabs/livebridge/runtime/version"
	"github.com/AltairaLabs/livebridge/server/static"
)

// shutdownTimeout bounds draining bridges and flushing telemetry on exit.
const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay and the static UI server",
	Long: `Starts the websocket relay, serves the browser UI and opens it.

The Gemini API key is taken from --api-key, then the environment variables
listed in upstream.apiKeyEnv (GOOGLE_API_KEY, GEMINI_API_KEY), then a .env
file, and finally an interactive prompt.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("listen", "", "Relay listen address (default "+config.DefaultListenAddr+")")
	f.String("model", "", "Upstream model (default "+config.DefaultModel+")")
	f.String("api-key", "", "Gemini API key")
	f.String("static-dir", "", "Directory served by the UI server")
	f.String("static-addr", "", "UI server listen address")
	f.Bool("no-static", false, "Do not start the UI server")
	f.Bool("no-browser", false, "Do not open the browser")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	f.String("otlp-endpoint", "", "Export traces to this OTLP/HTTP endpoint")

	for _, name := range []string{
		"listen", "model", "api-key", "static-dir", "static-addr",
		"no-static", "no-browser", "metrics-addr", "otlp-endpoint",
	} {
		_ = viper.BindPFlag(flagKey(name), f.Lookup(name))
	}

	rootCmd.AddCommand(serveCmd)
}

// flagKey maps a flag name to its viper key (and LIVEBRIDGE_ env suffix).
func flagKey(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

// loadConfig reads the manifest named by --config (or the defaults) and
// applies flag and environment overrides.
func loadConfig() (*config.BridgeConfig, error) {
	cfg := config.Default()
	if path := viper.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	spec := &cfg.Spec
	if v := viper.GetString("listen"); v != "" {
		spec.Listen.Addr = v
	}
	if v := viper.GetString("model"); v != "" {
		spec.Upstream.Model = v
	}
	if v := viper.GetString("static_dir"); v != "" {
		spec.Static.Dir = v
	}
	if v := viper.GetString("static_addr"); v != "" {
		spec.Static.Addr = v
	}
	if viper.GetBool("no_static") {
		spec.Static.Enabled = false
	}
	if viper.GetBool("no_browser") {
		spec.Static.OpenBrowser = false
	}
	if v := viper.GetString("metrics_addr"); v != "" {
		spec.Metrics.Enabled = true
		spec.Metrics.Addr = v
	}
	if v := viper.GetString("otlp_endpoint"); v != "" {
		spec.Telemetry.OTLPEndpoint = v
	}
	if v := viper.GetString("log_format"); v != "" {
		spec.Logging.Format = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bridgeConfig converts the session section into per-bridge settings.
func bridgeConfig(cfg *config.BridgeConfig) bridge.Config {
	s := cfg.Spec.Session
	turnTimeout := s.TurnTimeout.Duration
	if turnTimeout == 0 {
		turnTimeout = -1
	}
	retries := s.MaxReceiveRetries
	if retries == 0 {
		retries = -1
	}
	return bridge.Config{
		Model:               cfg.Spec.Upstream.Model,
		SystemInstruction:   cfg.Spec.Upstream.SystemInstruction,
		HandshakeTimeout:    s.HandshakeTimeout.Duration,
		ConnectTimeout:      s.ConnectTimeout.Duration,
		TurnTimeout:         turnTimeout,
		MaxReceiveRetries:   retries,
		ReceiveRetryBackoff: s.ReceiveRetryBackoff.Duration,
	}
}

func acceptorConfig(cfg *config.BridgeConfig) bridge.AcceptorConfig {
	l := cfg.Spec.Listen
	return bridge.AcceptorConfig{
		Addr:                    l.Addr,
		AllowedOrigins:          l.AllowedOrigins,
		MaxConnectionsPerSecond: l.MaxConnectionsPerSecond,
		MaxMessageBytes:         l.MaxMessageBytes,
		Provider:                cfg.Spec.Upstream.Provider,
		Bridge:                  bridgeConfig(cfg),
	}
}

func dialerConfig(cfg *config.BridgeConfig, apiKey string) gemini.DialerConfig {
	u := cfg.Spec.Upstream
	hb := u.HeartbeatInterval.Duration
	if hb == 0 {
		hb = -1
	}
	return gemini.DialerConfig{
		URL:               u.URL,
		APIKey:            apiKey,
		DialTimeout:       u.DialTimeout.Duration,
		SetupTimeout:      u.SetupTimeout.Duration,
		HeartbeatInterval: hb,
		MaxConnectRetries: u.MaxConnectRetries,
		MaxMessageSize:    cfg.Spec.Listen.MaxMessageBytes,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := logger.Configure(cfg.Spec.Logging.LoggerSpec()); err != nil {
		return err
	}
	if viper.GetBool("verbose") {
		logger.SetVerbose(true)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	version.LogStartup(ctx, "livebridge")

	apiKey, err := config.NewKeyResolver(viper.GetString("api_key"), cfg.Spec.Upstream.APIKeyEnv).Resolve()
	if err != nil {
		return fmt.Errorf("API key is required to continue: %w", err)
	}

	flush, err := telemetry.Setup(ctx, cfg.Spec.Telemetry.OTLPEndpoint, cfg.Spec.Telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer shutdownWith(flush, "telemetry")

	opts := []bridge.AcceptorOption{
		bridge.WithAcceptorTracer(telemetry.Tracer(otel.GetTracerProvider())),
	}
	if cfg.Spec.Metrics.Enabled {
		exporter, err := startMetrics(ctx, cfg.Spec.Metrics.Addr)
		if err != nil {
			return err
		}
		defer shutdownWith(exporter.Shutdown, "metrics exporter")
		opts = append(opts, bridge.WithAcceptorObserver(prometheus.NewBridgeListener()))
	}

	if cfg.Spec.Static.Enabled {
		ui := static.NewServer(cfg.Spec.Static.Addr, cfg.Spec.Static.Dir)
		if err := ui.Start(ctx); err != nil {
			return err
		}
		defer shutdownWith(ui.Shutdown, "static server")
		if cfg.Spec.Static.OpenBrowser {
			ui.OpenBrowser(ctx)
		}
	}

	dialer := gemini.NewLiveDialer(dialerConfig(cfg, apiKey))
	acceptor := bridge.NewAcceptor(acceptorConfig(cfg), dialer, opts...)

	logger.InfoContext(ctx, "relay starting",
		"addr", cfg.Spec.Listen.Addr, "model", cfg.Spec.Upstream.Model, "provider", cfg.Spec.Upstream.Provider)
	printf(cmd, "Relay running on ws://%s (press Ctrl+C to stop)\n", cfg.Spec.Listen.Addr)

	if err := acceptor.ListenAndServe(ctx); err != nil {
		return err
	}

	logger.InfoContext(ctx, "stopping; waiting for active sessions")
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := acceptor.Wait(drainCtx); err != nil {
		logger.Warn("sessions still active at exit", "error", err)
	}
	printf(cmd, "Servers stopped\n")
	return nil
}

func startMetrics(ctx context.Context, addr string) (*prometheus.Exporter, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	exporter := prometheus.NewExporter()
	go func() {
		if err := exporter.Serve(ln); err != nil {
			logger.Error("metrics exporter stopped", "error", err)
		}
	}()
	return exporter, nil
}

func shutdownWith(fn func(context.Context) error, what string) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("shutdown failed", "component", what, "error", err)
	}
}
