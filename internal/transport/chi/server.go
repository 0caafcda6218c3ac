// Package chi exposes the scan pipeline over HTTP.
package chi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lensmatch/internal/domain"
	"github.com/kailas-cloud/lensmatch/internal/domain/scan"
	"github.com/kailas-cloud/lensmatch/internal/logger"
	"github.com/kailas-cloud/lensmatch/internal/report"
	healthuc "github.com/kailas-cloud/lensmatch/internal/usecase/health"
	"github.com/kailas-cloud/lensmatch/internal/usecase/pipeline"
)

// DefaultMaxUploadBytes bounds the multipart upload when none is configured.
const DefaultMaxUploadBytes = 10 << 20

const (
	formField       = "image"
	contentMarkdown = "text/markdown; charset=utf-8"
)

// ScanRunner executes one scan.
type ScanRunner interface {
	Run(ctx context.Context, raw []byte, listener pipeline.Listener) (*scan.Report, error)
}

// HistoryReader reads stored reports.
type HistoryReader interface {
	Get(ctx context.Context, id string) (*scan.Report, error)
	List(ctx context.Context, limit int) ([]*scan.Report, error)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ScanListResponse is the body of GET /v1/scans.
type ScanListResponse struct {
	Scans []*scan.Report `json:"scans"`
}

// Server holds the HTTP handlers.
type Server struct {
	scans          ScanRunner
	history        HistoryReader
	health         *healthuc.Service
	logger         *zap.Logger
	maxUploadBytes int64
	errorHandlers  []errorHandler
}

// NewServer creates an HTTP API server. history may be nil when scan history is disabled.
func NewServer(
	scans ScanRunner,
	history HistoryReader,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	return &Server{
		scans:          scans,
		history:        history,
		health:         health,
		logger:         logger,
		maxUploadBytes: DefaultMaxUploadBytes,
		errorHandlers:  defaultErrorHandlers(),
	}
}

// WithMaxUploadBytes overrides the upload size limit.
func (s *Server) WithMaxUploadBytes(n int64) *Server {
	if n > 0 {
		s.maxUploadBytes = n
	}
	return s
}

// Register mounts the routes on r.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1/scans", func(r chi.Router) {
		r.Post("/", s.CreateScan)
		r.Get("/", s.ListScans)
		r.Get("/{id}", s.GetScan)
	})
}

// CreateScan handles POST /v1/scans.
func (s *Server) CreateScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge,
				"image exceeds "+strconv.FormatInt(s.maxUploadBytes, 10)+" bytes")
			return
		}
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "expected multipart/form-data body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, _, err := r.FormFile(formField)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "missing form field \""+formField+"\"")
		return
	}
	defer func() { _ = file.Close() }()

	raw, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "failed to read upload")
		return
	}

	rep, err := s.scans.Run(r.Context(), raw, nil)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	s.writeReport(w, r, rep)
}

// ListScans handles GET /v1/scans.
func (s *Server) ListScans(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.handleDomainError(w, r, domain.ErrHistoryDisabled)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	reports, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ScanListResponse{Scans: reports})
}

// GetScan handles GET /v1/scans/{id}.
func (s *Server) GetScan(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.handleDomainError(w, r, domain.ErrHistoryDisabled)
		return
	}

	rep, err := s.history.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	s.writeReport(w, r, rep)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	rep := s.health.Check(r.Context())

	checks := make(map[string]string, len(rep.Checks))
	for k, v := range rep.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if rep.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(rep.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) writeReport(w http.ResponseWriter, r *http.Request, rep *scan.Report) {
	if wantsMarkdown(r) {
		w.Header().Set("Content-Type", contentMarkdown)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, report.Markdown(rep))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// wantsMarkdown selects markdown via ?format=markdown or an Accept header naming text/markdown.
func wantsMarkdown(r *http.Request) bool {
	if f := r.URL.Query().Get("format"); f != "" {
		return strings.EqualFold(f, "markdown") || strings.EqualFold(f, "md")
	}
	return strings.Contains(r.Header.Get("Accept"), "text/markdown")
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	_, log := logger.With(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
