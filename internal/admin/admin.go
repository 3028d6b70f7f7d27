// Package admin serves the operational HTTP endpoints: prometheus metrics,
// a liveness probe and read-only store statistics.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xtxerr/hivewatch/config"
	"github.com/xtxerr/hivewatch/internal/logging"
	"github.com/xtxerr/hivewatch/internal/metrics"
	"github.com/xtxerr/hivewatch/internal/store"
)

var (
	log  = logging.Component("admin")
	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

// Store is what the admin endpoints read.
type Store interface {
	metrics.StoreSource
	Stats() store.Stats
	Windows() []store.WindowInfo
}

// JSON is a loose response object.
type JSON map[string]any

// WindowView is one entry of /v1/windows.
type WindowView struct {
	Name       string `json:"name"`
	Duration   string `json:"duration"`
	Seconds    int64  `json:"seconds"`
	Sequences  bool   `json:"sequences"`
	Aggregates bool   `json:"aggregates"`
	Size       int    `json:"size"`
}

// NewRouter builds the admin routes over st. Store gauges are registered on
// a private registry and served together with the default one.
func NewRouter(st Store) *mux.Router {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewStoreCollector(st))
	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer, reg}

	h := &handler{store: st, started: time.Now()}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	r.HandleFunc("/v1/stats", h.stats).Methods(http.MethodGet)
	r.HandleFunc("/v1/windows", h.windows).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, JSON{"error": "not found", "path": r.URL.Path})
	})
	return r
}

type handler struct {
	store   Store
	started time.Time
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, JSON{
		"status": "ok",
		"events": h.store.Len(),
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Stats())
}

func (h *handler) windows(w http.ResponseWriter, r *http.Request) {
	infos := h.store.Windows()
	out := make([]WindowView, len(infos))
	for i, info := range infos {
		out[i] = WindowView{
			Name:       info.Name,
			Duration:   info.Duration.String(),
			Seconds:    int64(info.Duration / time.Second),
			Sequences:  info.Sequences,
			Aggregates: info.Aggregates,
			Size:       info.Size,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("write response failed", "error", err)
	}
}

// =============================================================================
// Server
// =============================================================================

// Server runs the admin router on its own listener.
type Server struct {
	addr    string
	handler http.Handler
	ln      net.Listener
	srv     *http.Server
}

// NewServer creates an admin server for st on addr.
func NewServer(addr string, st Store) *Server {
	if addr == "" {
		addr = config.DefaultAdminListenAddress
	}
	return &Server{addr: addr, handler: NewRouter(st)}
}

// Listen binds the listener so Addr is known before Run.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Run serves until ctx ends, then shuts down within DefaultShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(s.ln) }()
	log.Info("admin server listening", "addr", s.ln.Addr().String())

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("admin shutdown incomplete", "error", err)
		return err
	}
	log.Info("admin server stopped")
	return nil
}
