// Package server exposes the log store over HTTP.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"logserver/storage"
)

// Server implements the HTTP API server.
type Server struct {
	store   storage.Store
	log     *zap.Logger
	now     func() time.Time
	reg     *prometheus.Registry
	metrics *metrics
	handler http.Handler
	server  *http.Server
}

// Option customises a Server.
type Option func(*Server)

// WithClock sets the clock used to resolve default date ranges.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithTimeouts bounds how long the server spends reading a request and
// writing its response.
func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		s.server.ReadTimeout = read
		s.server.WriteTimeout = write
	}
}

// WithRegistry registers the server's metrics on reg instead of a private
// registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.reg = reg }
}

// New creates a new API server backed by store.
func New(store storage.Store, log *zap.Logger, opts ...Option) *Server {
	s := &Server{
		store:  store,
		log:    log,
		now:    time.Now,
		server: &http.Server{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.reg == nil {
		s.reg = prometheus.NewRegistry()
	}
	s.metrics = newMetrics(s.reg)
	s.handler = s.withRequestLogger(s.routes())
	s.server.Handler = s.handler
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.observe)

	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/data", s.handleData).Methods(http.MethodGet)
	r.HandleFunc("/max", s.handleMax).Methods(http.MethodGet)
	r.HandleFunc("/min", s.handleMin).Methods(http.MethodGet)
	r.HandleFunc("/avg", s.handleAvg).Methods(http.MethodGet)
	r.HandleFunc("/latest", s.handleLatest).Methods(http.MethodGet)
	r.HandleFunc("/ptest", s.handleRange).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/{stream}", s.handleAppend).Methods(http.MethodPost)

	// A known path with the wrong method is as unmatched as an unknown path.
	notFound := s.observe(http.HandlerFunc(handleNotFound))
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = notFound
	return r
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on addr and serves until Stop is called.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop is called. It returns
// http.ErrServerClosed once stopped, including when Stop ran first.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("API server listening", zap.String("addr", ln.Addr().String()))
	return s.server.Serve(ln)
}

// Stop gracefully shuts the HTTP server down. Any later Start or Serve
// returns immediately.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
