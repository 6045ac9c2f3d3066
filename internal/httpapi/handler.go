// Package httpapi serves the celldyn operations over HTTP/JSON.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nvandessel/celldyn/internal/metrics"
	"github.com/nvandessel/celldyn/internal/models"
	"github.com/nvandessel/celldyn/internal/ratelimit"
	"github.com/nvandessel/celldyn/internal/service"
)

// DefaultMaxBodyBytes bounds request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Operations is the subset of service.Service the handler calls.
type Operations interface {
	Simulate(ctx context.Context, req models.SimulationRequest) (*models.SimulationResult, error)
	PredictDose(ctx context.Context, req models.OptimalDoseRequest) (*models.OptimalDosePrediction, error)
	PredictGrowth(ctx context.Context, req models.GrowthRequest) (*models.GrowthPrediction, error)
	CellLines(ctx context.Context) (map[string]models.CellLineParameters, error)
	Health(ctx context.Context) service.HealthReport
}

// Options configures a Handler. Zero values are usable: no rate limiting,
// no metrics endpoint, discarded logs.
type Options struct {
	Limiters     ratelimit.OperationLimiters
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	MaxBodyBytes int64
}

// Handler routes /api/... requests to the operations.
type Handler struct {
	ops      Operations
	limiters ratelimit.OperationLimiters
	metrics  *metrics.Metrics
	logger   *slog.Logger
	maxBody  int64
}

// NewHandler constructs the HTTP handler.
func NewHandler(ops Operations, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Handler{
		ops:      ops,
		limiters: opts.Limiters,
		metrics:  opts.Metrics,
		logger:   logger,
		maxBody:  maxBody,
	}
}

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Field string `json:"field,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	}()

	rec.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method == http.MethodOptions {
		rec.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		rec.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		rec.WriteHeader(http.StatusNoContent)
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch path {
	case "/api/health":
		h.get(rec, r, ratelimit.OpHealth, h.handleHealth)
	case "/api/cell-lines":
		h.get(rec, r, ratelimit.OpCellLines, h.handleCellLines)
	case "/api/simulate":
		h.post(rec, r, ratelimit.OpSimulate, h.handleSimulate)
	case "/api/predict/optimal-dose":
		h.post(rec, r, ratelimit.OpPredictDose, h.handlePredictDose)
	case "/api/predict/growth":
		h.post(rec, r, ratelimit.OpPredictGrowth, h.handlePredictGrowth)
	case "/metrics":
		if h.metrics == nil {
			writeError(rec, http.StatusNotFound, "metrics not enabled")
			return
		}
		h.metrics.Handler().ServeHTTP(rec, r)
	default:
		writeError(rec, http.StatusNotFound, "endpoint not found")
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, op string, next http.HandlerFunc) {
	h.route(w, r, http.MethodGet, op, next)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request, op string, next http.HandlerFunc) {
	h.route(w, r, http.MethodPost, op, next)
}

func (h *Handler) route(w http.ResponseWriter, r *http.Request, method, op string, next http.HandlerFunc) {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := h.limiters.Check(op, clientKey(r)); err != nil {
		h.metrics.RateLimited(op)
		h.writeServiceError(w, err)
		return
	}
	next(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ops.Health(r.Context()))
}

func (h *Handler) handleCellLines(w http.ResponseWriter, r *http.Request) {
	lines, err := h.ops.CellLines(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lines)
}

func (h *Handler) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req models.SimulationRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.ops.Simulate(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handlePredictDose(w http.ResponseWriter, r *http.Request) {
	var req models.OptimalDoseRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.ops.PredictDose(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handlePredictGrowth(w http.ResponseWriter, r *http.Request) {
	var req models.GrowthRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.ops.PredictGrowth(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// decode reads a single JSON object from the body. It writes the error
// response itself and reports whether the caller should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body is empty")
		default:
			writeError(w, http.StatusBadRequest, "invalid JSON payload: "+err.Error())
		}
		return false
	}
	return true
}

// writeServiceError maps the error taxonomy onto HTTP status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{
		Error: err.Error(),
		Kind:  string(models.KindOf(err)),
		Field: models.FieldOf(err),
	})
}

// StatusFor returns the HTTP status for an operation error.
func StatusFor(err error) int {
	if errors.Is(err, ratelimit.ErrRateLimited) {
		return http.StatusTooManyRequests
	}
	switch models.KindOf(err) {
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindConfiguration, models.KindInvalidParameter:
		return http.StatusBadRequest
	case models.KindDivergence:
		return http.StatusInternalServerError
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
