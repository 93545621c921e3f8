package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinel-gate/mcp-endpoint/internal/domain/catalog"
	"github.com/sentinel-gate/mcp-endpoint/internal/domain/registry"
	"github.com/sentinel-gate/mcp-endpoint/internal/service/coordinator"
)

// Transport is the inbound WebSocket adapter: it upgrades connections on the
// two fixed endpoints, registers them with the Registry, and feeds frames
// into the Coordinator. It also serves the health and metrics surfaces on
// the same listener.
type Transport struct {
	reg   *registry.Registry
	cat   *catalog.Catalog
	coord *coordinator.Coordinator

	server   *http.Server
	upgrader websocket.Upgrader
	metrics  *Metrics

	addr           string
	healthKey      string
	allowedOrigins []string
	idleTimeout    time.Duration
	logger         *slog.Logger
}

// Option configures a Transport.
type Option func(*Transport)

// WithAddr sets the listen address. Default "127.0.0.1:8080".
func WithAddr(addr string) Option {
	return func(t *Transport) { t.addr = addr }
}

// WithHealthKey sets the static key required by GET /mcp_endpoint/health.
func WithHealthKey(key string) Option {
	return func(t *Transport) { t.healthKey = key }
}

// WithAllowedOrigins restricts the Origin header accepted during the
// WebSocket handshake. Requests without an Origin header are always
// accepted; with an empty list, every request that carries an Origin header
// is rejected.
func WithAllowedOrigins(origins []string) Option {
	return func(t *Transport) { t.allowedOrigins = origins }
}

// WithLogger sets the transport's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// WithIdleTimeout sets how long a tool-server or caller connection may go
// without sending a message before it is closed as idle. Zero disables the
// idle sweep. Default 300 seconds.
func WithIdleTimeout(d time.Duration) Option {
	return func(t *Transport) { t.idleTimeout = d }
}

// New builds a Transport wrapping reg, cat, and coord.
func New(reg *registry.Registry, cat *catalog.Catalog, coord *coordinator.Coordinator, opts ...Option) *Transport {
	t := &Transport{
		reg:         reg,
		cat:         cat,
		coord:       coord,
		addr:        "127.0.0.1:8080",
		idleTimeout: 300 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     t.checkOrigin,
	}
	return t
}

// checkOrigin applies the Origin allowlist as a DNS-rebinding guard: no
// Origin header is allowed through (same-origin or non-browser clients); a
// present Origin must match the configured allowlist.
func (t *Transport) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(t.allowedOrigins) == 0 {
		return false
	}
	for _, allowed := range t.allowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}

// Start begins accepting connections. It blocks until ctx is cancelled or
// the listener errors.
func (t *Transport) Start(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	t.metrics = NewMetrics(reg)

	mux := http.NewServeMux()
	mux.Handle("/", redirectRootHandler())
	mux.Handle("/mcp_endpoint/", rootHandler())
	mux.HandleFunc("/mcp_endpoint/mcp/", t.handleToolServer)
	mux.HandleFunc("/mcp_endpoint/call/", t.handleCaller)
	mux.Handle("/mcp_endpoint/health", healthHandler(t.reg, t.healthKey))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	t.server = &http.Server{
		Addr:    t.addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		t.logger.Info("starting mcp endpoint server", "addr", t.addr)
		err := t.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	if t.idleTimeout > 0 {
		go t.sweepIdleLoop(ctx)
	}

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down mcp endpoint server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// sweepIdleLoop periodically closes connections that have been silent for
// longer than idleTimeout, at half the timeout's period.
func (t *Transport) sweepIdleLoop(ctx context.Context) {
	interval := t.idleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if closed := t.reg.SweepIdle(now, t.idleTimeout); closed > 0 {
				t.logger.Info("closed idle connections", "count", closed)
			}
		}
	}
}

func (t *Transport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during mcp endpoint server shutdown", "error", err)
		return err
	}
	t.logger.Info("mcp endpoint server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *Transport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}
