package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"vmgd-scraper/internal/models"
	"vmgd-scraper/internal/repository"
	"vmgd-scraper/internal/services"
	"vmgd-scraper/pkg/logging"
	"vmgd-scraper/pkg/metrics"
)

const (
	defaultPageErrorLimit = 50
	maxPageErrorLimit     = 500
)

// SessionHandler handles the operator API: triggering sessions and reading
// what they stored.
type SessionHandler struct {
	sessionService *services.SessionService
	logger         *logging.StructuredLogger
	metrics        *metrics.Collector
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(
	sessionService *services.SessionService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		logger:         logger,
		metrics:        metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// ListResponse wraps a list with its length.
type ListResponse struct {
	Data  interface{} `json:"data"`
	Total int         `json:"total"`
}

// RunSummary is the body returned after running one or more sessions.
type RunSummary struct {
	Results   []*services.Result `json:"results"`
	Completed int                `json:"completed"`
	Failed    int                `json:"failed"`
	Skipped   int                `json:"skipped"`
}

func summarize(results []*services.Result) RunSummary {
	summary := RunSummary{Results: results}
	for _, r := range results {
		switch r.Outcome {
		case services.OutcomeCompleted:
			summary.Completed++
		case services.OutcomeFailed:
			summary.Failed++
		case services.OutcomeSkipped:
			summary.Skipped++
		}
	}
	return summary
}

// ListKinds handles GET /api/sessions
func (h *SessionHandler) ListKinds(w http.ResponseWriter, r *http.Request) {
	defer h.observe("/api/sessions", time.Now())

	kinds := h.sessionService.Kinds()
	h.metrics.RecordAPIRequest("/api/sessions", "GET", "200")
	h.sendJSON(w, ListResponse{Data: kinds, Total: len(kinds)}, http.StatusOK)
}

// RunSession handles POST /api/sessions/{kind}/run
func (h *SessionHandler) RunSession(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/sessions/{kind}/run"
	ctx := r.Context()
	defer h.observe(endpoint, time.Now())

	kind, ok := models.ParseSessionKind(mux.Vars(r)["kind"])
	if !ok {
		h.sendError(w, r, "unknown session kind: "+mux.Vars(r)["kind"], http.StatusNotFound)
		return
	}

	result, err := h.sessionService.RunSession(ctx, kind)
	if err != nil {
		h.logger.Error(ctx, "[API_RUN_SESSION_ERROR] Failed to run session", logging.Fields{
			"kind": kind,
		}, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrUnknownSessionKind) {
			status = http.StatusNotFound
		}
		h.sendError(w, r, "failed to run session", status)
		return
	}

	status := http.StatusOK
	if result.Failed() {
		status = http.StatusInternalServerError
		h.metrics.RecordAPIError(string(result.Code), endpoint)
	}
	h.metrics.RecordAPIRequest(endpoint, "POST", strconv.Itoa(status))
	h.sendJSON(w, result, status)
}

// RunAll handles POST /api/sessions/run. An optional kinds query parameter
// takes a comma-separated list; without it every kind runs.
func (h *SessionHandler) RunAll(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/sessions/run"
	ctx := r.Context()
	defer h.observe(endpoint, time.Now())

	var kinds []models.SessionKind
	if raw := r.URL.Query().Get("kinds"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			kind, ok := models.ParseSessionKind(strings.TrimSpace(name))
			if !ok {
				h.sendError(w, r, "unknown session kind: "+name, http.StatusBadRequest)
				return
			}
			kinds = append(kinds, kind)
		}
	}

	results, err := h.sessionService.RunAll(ctx, kinds)
	summary := summarize(results)
	if err != nil {
		h.logger.Error(ctx, "[API_RUN_ALL_ERROR] Some sessions could not be run", logging.Fields{
			"kinds": kinds,
		}, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
	}

	status := http.StatusOK
	if err != nil || summary.Failed > 0 {
		status = http.StatusInternalServerError
	}
	h.metrics.RecordAPIRequest(endpoint, "POST", strconv.Itoa(status))
	h.sendJSON(w, summary, status)
}

// GetLatest handles GET /api/sessions/{kind}/latest
func (h *SessionHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/sessions/{kind}/latest"
	ctx := r.Context()
	defer h.observe(endpoint, time.Now())

	kind, ok := models.ParseSessionKind(mux.Vars(r)["kind"])
	if !ok {
		h.sendError(w, r, "unknown session kind: "+mux.Vars(r)["kind"], http.StatusNotFound)
		return
	}

	snapshot, err := h.sessionService.Latest(ctx, kind)
	if err != nil {
		var notFound *repository.NotFoundError
		if errors.As(err, &notFound) {
			h.sendError(w, r, "no completed session for "+string(kind), http.StatusNotFound)
			return
		}
		h.logger.Error(ctx, "[API_GET_LATEST_ERROR] Failed to get latest session", logging.Fields{
			"kind": kind,
		}, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, r, "failed to retrieve latest session", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, "GET", "200")
	h.sendJSON(w, snapshot, http.StatusOK)
}

// GetPageErrors handles GET /api/page-errors
func (h *SessionHandler) GetPageErrors(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/page-errors"
	ctx := r.Context()
	defer h.observe(endpoint, time.Now())

	limit := defaultPageErrorLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 || l > maxPageErrorLimit {
			h.sendError(w, r, "invalid limit, expected integer between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = l
	}

	pageErrors, err := h.sessionService.PageErrors(ctx, limit)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_PAGE_ERRORS_ERROR] Failed to get page errors", logging.Fields{
			"limit": limit,
		}, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, r, "failed to retrieve page errors", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, "GET", "200")
	h.sendJSON(w, ListResponse{Data: pageErrors, Total: len(pageErrors)}, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *SessionHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.sessionService.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK_FAILED] Database is unreachable", logging.Fields{
			"error": err.Error(),
		})
		status["status"] = "unhealthy"
		h.sendJSON(w, status, http.StatusServiceUnavailable)
		return
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, http.StatusOK)
}

func (h *SessionHandler) observe(endpoint string, start time.Time) {
	h.metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// sendJSON sends a JSON response
func (h *SessionHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *SessionHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	endpoint := r.URL.Path
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			endpoint = tmpl
		}
	}
	h.metrics.RecordAPIRequest(endpoint, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers the operator API routes
func (h *SessionHandler) RegisterRoutes(router *mux.Router) {
	router.Use(RequestIDMiddleware(h.logger))

	router.HandleFunc("/api/sessions", h.ListKinds).Methods("GET")
	router.HandleFunc("/api/sessions/run", h.RunAll).Methods("POST")
	router.HandleFunc("/api/sessions/{kind}/run", h.RunSession).Methods("POST")
	router.HandleFunc("/api/sessions/{kind}/latest", h.GetLatest).Methods("GET")
	router.HandleFunc("/api/page-errors", h.GetPageErrors).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	router.HandleFunc("/api/docs", SwaggerUI).Methods("GET")
	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods("GET")
}
