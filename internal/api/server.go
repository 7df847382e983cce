// Package api serves the back office's ledger endpoints over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/curasupply/curaledger/internal/authz"
	"github.com/curasupply/curaledger/internal/finance"
	"github.com/curasupply/curaledger/internal/logging"
)

// Server holds the router and its dependencies.
type Server struct {
	svc      *finance.Service
	logger   *logging.Logger
	registry *prometheus.Registry
	router   *mux.Router

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// Option configures a Server.
type Option func(*Server)

// WithRegistry serves /metrics from registry and registers the HTTP metrics
// in it.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(s *Server) { s.registry = registry }
}

// WithLogger sets the request logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer builds the router over svc.
func NewServer(svc *finance.Service, opts ...Option) (*Server, error) {
	s := &Server{
		svc:    svc,
		logger: logging.L(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.logger = s.logger.Named("api")

	if err := s.registry.Register(s.httpRequests); err != nil {
		return nil, err
	}
	if err := s.registry.Register(s.httpDuration); err != nil {
		return nil, err
	}

	s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.Use(s.instrument, s.gate)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/sign-in", s.signIn).Methods(http.MethodGet)

	r.HandleFunc("/dashboard", s.dashboard).Methods(http.MethodGet)
	r.HandleFunc("/dashboard/statements", s.statement).Methods(http.MethodGet)
	r.HandleFunc("/dashboard/statements/{partnerID}", s.statement).Methods(http.MethodGet)

	r.HandleFunc("/dashboard/partners", s.listPartners).Methods(http.MethodGet)
	r.HandleFunc("/dashboard/partners", s.savePartner).Methods(http.MethodPost)
	r.HandleFunc("/dashboard/partners/{partnerID}", s.getPartner).Methods(http.MethodGet)
	r.HandleFunc("/dashboard/partners/{partnerID}/recompute", s.recompute).Methods(http.MethodPost)

	r.HandleFunc("/dashboard/finance/transactions", s.listTransactions).Methods(http.MethodGet)
	r.HandleFunc("/dashboard/finance/transactions", s.recordTransaction).Methods(http.MethodPost)
	r.HandleFunc("/dashboard/finance/invoices", s.createInvoice).Methods(http.MethodPost)
	r.HandleFunc("/dashboard/finance/report", s.report).Methods(http.MethodGet)
	r.HandleFunc("/dashboard/finance/reconcile", s.reconcile).Methods(http.MethodPost)

	r.NotFoundHandler = s.gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "no such route")
	}))
	s.router = r
}

// gate applies the role allow-list and stores the identity in the context.
func (s *Server) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := authz.IdentityFromRequest(r)
		decision := authz.Authorize(id, r.URL.Path)
		if !decision.Allow {
			if !id.Authenticated || authz.IsSignIn(r.URL.Path) {
				http.Redirect(w, r, decision.Redirect, http.StatusFound)
				return
			}
			s.logger.Debug("route denied",
				zap.String("role", string(id.Role)),
				zap.String("path", r.URL.Path),
			)
			writeJSON(w, http.StatusForbidden, map[string]string{
				"error":    "forbidden",
				"redirect": decision.Redirect,
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(authz.WithIdentity(r.Context(), id)))
	})
}

// instrument logs every request and records its latency.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		srw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(srw, r)

		duration := time.Since(start)
		endpoint := endpointOf(r)
		s.httpRequests.WithLabelValues(r.Method, endpoint, http.StatusText(srw.statusCode)).Inc()
		s.httpDuration.WithLabelValues(r.Method, endpoint).Observe(duration.Seconds())

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", srw.statusCode),
			zap.Duration("duration", duration),
		)
	})
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// endpointOf returns the route template so metrics do not carry partner IDs.
func endpointOf(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unmatched"
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return "unmatched"
	}
	return tpl
}
