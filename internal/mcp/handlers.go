// File: internal/mcp/handlers.go
package mcp

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"
)

// Handlers manages the HTTP request handling for the console server.
type Handlers struct {
	log          *zap.Logger
	queryService *QueryService
	runService   *RunService
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(logger *zap.Logger, queryService *QueryService, runService *RunService) *Handlers {
	return &Handlers{
		log:          logger.Named("mcp_handlers"),
		queryService: queryService,
		runService:   runService,
	}
}

// RegisterRoutes sets up the HTTP API routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.HandleHealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/runs", h.HandleStartRun)
		r.Get("/runs/{runID}", h.HandleGetRun)
		r.Get("/recall", h.HandleRecall)
	})
}

// HandleHealthCheck confirms the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HandleStartRun accepts a run and executes it in the background.
func (h *Handlers) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.respondWithError(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	req.Objective = strings.TrimSpace(req.Objective)
	if req.Objective == "" {
		h.respondWithError(w, r, http.StatusBadRequest, "Objective is required.")
		return
	}

	job, err := h.runService.StartRun(req)
	switch {
	case errors.Is(err, ErrBusy):
		active, _ := h.runService.Registry().Active()
		h.respondWithError(w, r, http.StatusConflict, fmt.Sprintf("Run %s is still in progress.", active))
		return
	case errors.Is(err, ErrUnknownEnvironment):
		h.respondWithError(w, r, http.StatusBadRequest,
			fmt.Sprintf("%v. Available: %s.", err, strings.Join(h.runService.Environments(), ", ")))
		return
	case err != nil:
		h.respondWithError(w, r, http.StatusServiceUnavailable, err.Error())
		return
	}

	h.log.Info("Run started", zap.String("job_id", job.ID), zap.String("environment", job.Environment))
	h.respondWithStatus(w, r, http.StatusAccepted, "accepted", map[string]string{"id": job.ID})
}

// HandleGetRun reports the status and result of a run.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	job, exists := h.runService.Registry().GetJob(runID)
	if !exists {
		h.respondWithError(w, r, http.StatusNotFound, "Run ID not found in the job registry.")
		return
	}
	h.respondWithSuccess(w, r, http.StatusOK, job)
}

// HandleRecall searches the recall archive: ?q=&page=&limit= for text, or
// ?from=&to= for a date range.
func (h *Handlers) HandleRecall(w http.ResponseWriter, r *http.Request) {
	if !h.queryService.Available() {
		h.respondWithError(w, r, http.StatusServiceUnavailable, "Recall archive is unavailable (database not configured or connected).")
		return
	}
	params, err := parseRecallParams(r)
	if err != nil {
		h.respondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	msgs, err := h.queryService.Query(r.Context(), params)
	if err != nil {
		if errors.Is(err, errRecallParams) {
			h.respondWithError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("Failed to query recall memory", zap.Error(err))
		h.respondWithError(w, r, http.StatusInternalServerError, "Internal error searching recall memory.")
		return
	}
	h.respondWithSuccess(w, r, http.StatusOK, RecallResult{Count: len(msgs), Messages: msgs})
}

func parseRecallParams(r *http.Request) (RecallParams, error) {
	q := r.URL.Query()
	params := RecallParams{Query: strings.TrimSpace(q.Get("q"))}
	var err error
	if v := q.Get("page"); v != "" {
		if params.Page, err = strconv.Atoi(v); err != nil {
			return params, fmt.Errorf("invalid page %q", v)
		}
	}
	if v := q.Get("limit"); v != "" {
		if params.Limit, err = strconv.Atoi(v); err != nil {
			return params, fmt.Errorf("invalid limit %q", v)
		}
	}
	if v := q.Get("from"); v != "" {
		if params.From, err = ParseTime(v); err != nil {
			return params, err
		}
	}
	if v := q.Get("to"); v != "" {
		if params.To, err = ParseTime(v); err != nil {
			return params, err
		}
	}
	return params, nil
}

// ParseTime accepts RFC 3339 timestamps or plain YYYY-MM-DD dates (UTC).
func ParseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use RFC 3339 or YYYY-MM-DD", v)
	}
	return t, nil
}

// respondWithError sends a standardized JSON error response.
func (h *Handlers) respondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	render.Status(r, statusCode)
	render.JSON(w, r, CommandResponse{Status: "error", Error: message})
}

// respondWithSuccess sends a standardized JSON success response.
func (h *Handlers) respondWithSuccess(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	h.respondWithStatus(w, r, statusCode, "success", data)
}

// respondWithStatus sends a standardized JSON response with a specific status string.
func (h *Handlers) respondWithStatus(w http.ResponseWriter, r *http.Request, statusCode int, status string, data interface{}) {
	render.Status(r, statusCode)
	render.JSON(w, r, CommandResponse{Status: status, Data: data})
}
