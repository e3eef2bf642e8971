package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/rmax-ai/ontoma/pkg/logging"
	"github.com/rmax-ai/ontoma/pkg/lookup"
	"github.com/rmax-ai/ontoma/pkg/provider"
	"github.com/rmax-ai/ontoma/pkg/reports"
	"github.com/rmax-ai/ontoma/pkg/resolver"
	"github.com/rmax-ai/ontoma/pkg/store"
)

// Context keys
type contextKey string

const traceIDKey contextKey = "trace_id"

// Interfaces for dependencies to enable mocking

type StoreInterface interface {
	AppendEvent(ctx context.Context, event *store.Event) error
	ReadRecentEvents(ctx context.Context, limit int) ([]*store.Event, error)
	QueryEvents(ctx context.Context, filter store.EventFilter) ([]*store.Event, error)
	CountOutcomes(ctx context.Context) ([]store.OutcomeCount, error)
}

type ResolverInterface interface {
	Resolve(ctx context.Context, q resolver.Query) (lookup.Result, error)
	LookupName(ont lookup.Ontology, name string) (string, error)
	LookupCode(system, code string) ([]string, error)
	LookupCurated(label string) ([]string, error)
	LookupFuzzy(ctx context.Context, label string) (provider.Candidate, error)
	LookupCrossReference(ctx context.Context, system, code string, distance int) ([]provider.CrossReference, error)
}

// Server encapsulates the HTTP API server
type Server struct {
	resolver ResolverInterface
	store    StoreInterface // nil disables the audit log
	server   *http.Server
	logger   logrus.FieldLogger

	// TLS Config
	tlsCertFile string
	tlsKeyFile  string
}

// NewServer creates a new API server instance. st may be nil.
func NewServer(res ResolverInterface, st StoreInterface, addr string, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{
		resolver: res,
		store:    st,
		logger:   logging.Component(logger, "api"),
	}

	mux := http.NewServeMux()

	// Register routes
	mux.HandleFunc("/v1/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/v1/resolve", s.handleResolve)
	mux.HandleFunc("/v1/lookup/name", s.handleLookupName)
	mux.HandleFunc("/v1/lookup/code", s.handleLookupCode)
	mux.HandleFunc("/v1/lookup/curated", s.handleLookupCurated)
	mux.HandleFunc("/v1/lookup/fuzzy", s.handleLookupFuzzy)
	mux.HandleFunc("/v1/lookup/xref", s.handleLookupCrossReference)
	mux.HandleFunc("/v1/resolutions", s.handleResolutions)
	mux.HandleFunc("/v1/reports", s.handleReports)

	// Middleware: Logging, Panic Recovery, Security Headers
	handler := s.withLogging(s.withRecovery(withSecureHeaders(mux)))

	// Use default port if addr is empty
	if addr == "" {
		addr = ":8090"
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second, // remote services may retry
		IdleTimeout:  15 * time.Second,
	}

	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetTLS configures the server to use TLS
func (s *Server) SetTLS(certFile, keyFile string) {
	s.tlsCertFile = certFile
	s.tlsKeyFile = keyFile
}

// Start runs the HTTP server (blocking)
func (s *Server) Start() error {
	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		s.logger.WithField("addr", s.server.Addr).Info("server_starting_tls")
		if err := s.server.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile); err != http.ErrServerClosed {
			return err
		}
	} else {
		s.logger.WithField("addr", s.server.Addr).Info("server_starting")
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("server_stopping")
	return s.server.Shutdown(ctx)
}

// handleResolutions returns recently recorded resolutions.
func (s *Server) handleResolutions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "audit_log_disabled", "")
		return
	}

	// Parse limit query param
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			limit = val
		}
	}

	events, err := s.store.ReadRecentEvents(r.Context(), limit)
	if err != nil {
		s.log(r).WithError(err).Error("failed_to_read_events")
		writeError(w, http.StatusInternalServerError, "internal_server_error", "")
		return
	}
	if events == nil {
		events = []*store.Event{}
	}

	s.writeJSON(w, r, http.StatusOK, events)
}

// handleReports generates and streams reports.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "audit_log_disabled", "")
		return
	}

	// Parse parameters
	q := r.URL.Query()
	reportType := reports.ReportType(q.Get("type"))
	if reportType == "" {
		reportType = reports.ReportTypeResolutions
	}

	// Default time range: last 24h if not specified
	to := time.Now()
	if toStr := q.Get("to"); toStr != "" {
		var err error
		to, err = time.Parse(time.RFC3339, toStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "format: RFC3339")
			return
		}
	}

	from := to.Add(-24 * time.Hour)
	if fromStr := q.Get("from"); fromStr != "" {
		var err error
		from, err = time.Parse(time.RFC3339, fromStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "format: RFC3339")
			return
		}
	}

	params := reports.ReportParams{
		Start:   from,
		End:     to,
		Filters: make(map[string]string),
	}
	for _, key := range []string{"outcome", "source"} {
		if v := q.Get(key); v != "" {
			params.Filters[key] = v
		}
	}

	gen, err := reports.NewReportGenerator(reportType, s.store)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_report_type", err.Error())
		return
	}

	reader, err := gen.Generate(r.Context(), params)
	if err != nil {
		s.log(r).WithError(err).Error("failed_to_generate_report")
		writeError(w, http.StatusInternalServerError, "report_generation_failed", "")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	filename := fmt.Sprintf("report_%s_%d.csv", reportType, time.Now().Unix())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	if _, err := io.Copy(w, reader); err != nil {
		s.log(r).WithError(err).Error("failed_to_stream_report")
	}
}

// handleHealth returns simple status
func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// errorStatus maps a lookup or resolution error onto an HTTP status and code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, resolver.ErrInvalidQuery):
		return http.StatusBadRequest, "invalid_query"
	case errors.Is(err, resolver.ErrUnknownOntology):
		return http.StatusBadRequest, "unknown_ontology"
	case errors.Is(err, resolver.ErrUnsupportedSystem):
		return http.StatusBadRequest, "unsupported_system"
	case errors.Is(err, lookup.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "service_unavailable"
	case errors.Is(err, lookup.ErrAmbiguous):
		return http.StatusConflict, "ambiguous_source"
	case errors.Is(err, lookup.ErrNoMatch):
		return http.StatusNotFound, "no_match"
	case errors.Is(err, lookup.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_server_error"
	}
}

func (s *Server) writeLookupError(w http.ResponseWriter, r *http.Request, err error, degraded []lookup.Source) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.log(r).WithError(err).Warn("lookup_failed")
	}
	writeBody(w, status, ErrorResponse{Error: code, Message: err.Error(), Degraded: degraded})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeBody(w, status, ErrorResponse{Error: code, Message: message})
}

func writeBody(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log(r).WithError(err).Error("failed_to_encode_response")
	}
}

// log returns the server logger tagged with the request trace id.
func (s *Server) log(r *http.Request) logrus.FieldLogger {
	return s.logger.WithField("trace_id", getTraceID(r.Context()))
}

// Middleware: Panic Recovery
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log(r).WithFields(logrus.Fields{"error": fmt.Sprint(err), "path": r.URL.Path}).Error("panic_recovered")
				writeError(w, http.StatusInternalServerError, "internal_server_error", "")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Middleware: Request Logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// 1. Extract or Generate Trace ID
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = generateTraceID()
		}

		// 2. Inject into Context
		ctx := context.WithValue(r.Context(), traceIDKey, traceID)
		r = r.WithContext(ctx)

		// Wrap writer to capture status code
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		// 3. Set response header
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(ww, r)

		s.logger.WithFields(logrus.Fields{
			"trace_id":    traceID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("http_request")
	})
}

func generateTraceID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// Fallback if random fails (unlikely)
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func getTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// statusWriter captures HTTP status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Middleware: Secure Headers
func withSecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")

		next.ServeHTTP(w, r)
	})
}
