// File: internal/command/handlers.go
package command

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/omenav/internal/elementcache"
	"github.com/xkilldash9x/omenav/internal/statewatch"
)

// maxBodyBytes bounds a select_row request body.
const maxBodyBytes = 4 << 10

// Handlers serves the command endpoints.
type Handlers struct {
	log      *zap.Logger
	selector *Selector
	target   Target
	limiter  *rate.Limiter
}

// NewHandlers creates the handlers. A nil limiter disables rate limiting.
func NewHandlers(logger *zap.Logger, selector *Selector, target Target, limiter *rate.Limiter) *Handlers {
	return &Handlers{
		log:      logger.Named("command_handlers"),
		selector: selector,
		target:   target,
		limiter:  limiter,
	}
}

// RegisterRoutes mounts the endpoints on r.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.HandleHealthCheck)
	r.Get("/status", h.HandleStatus)
	r.Post("/select_row", h.HandleSelectRow)
}

// HandleHealthCheck confirms the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HandleStatus reports the watcher state without the handle.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	s := h.target.Snapshot()
	h.respondWithSuccess(w, http.StatusOK, StatusView{
		State:     s,
		Context:   h.target.CurrentContext(),
		HasHandle: s.HasHandle(),
	})
}

// HandleSelectRow validates {"row": N} and presses that row.
func (h *Handlers) HandleSelectRow(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow() {
		h.respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Bad Request: unreadable body")
		return
	}
	row, err := parseSelectRow(body)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	mode, err := h.selector.SelectRow(r.Context(), row)
	switch {
	case err == nil:
		h.respondWithSuccess(w, http.StatusOK, SelectRowResult{Row: row, Mode: string(mode)})
	case errors.Is(err, statewatch.ErrNoHandle):
		h.respondWithError(w, http.StatusServiceUnavailable, "target application not running")
	case errors.Is(err, ErrBusy):
		h.respondWithError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, elementcache.ErrAbsent):
		h.respondWithError(w, http.StatusNotFound, err.Error())
	default:
		h.log.Warn("Row selection failed.", zap.Int("row", row), zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respond(w, statusCode, CommandResponse{Status: "error", Error: message})
}

func (h *Handlers) respondWithSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	h.respond(w, statusCode, CommandResponse{Status: "success", Data: data})
}

func (h *Handlers) respond(w http.ResponseWriter, statusCode int, resp CommandResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
