package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/user/prober-service/internal/delivery/http/request"
	"github.com/user/prober-service/internal/delivery/http/response"
	"github.com/user/prober-service/internal/entity"
	"github.com/user/prober-service/internal/usecase"
)

const (
	defaultRecordLimit = 100
	maxRecordLimit     = 1000
)

type Handler struct {
	runs   usecase.RunManager
	logger *zap.Logger
}

func NewHandler(runs usecase.RunManager, logger *zap.Logger) *Handler {
	return &Handler{
		runs:   runs,
		logger: logger.With(zap.String("component", "http_handler")),
	}
}

func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req request.StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	state, err := h.runs.Start(r.Context(), usecase.StartRequest{
		WorkerCount:   req.WorkerCount,
		MaxCandidates: req.MaxCandidates,
		Candidates:    req.Candidates,
	})
	if err != nil {
		h.writeControlError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, response.StartRunResponse{
		Status:  "success",
		Message: "Run started",
		State:   state,
	})
}

func (h *Handler) HandlePause(w http.ResponseWriter, r *http.Request) {
	if err := h.runs.Pause(); err != nil {
		h.writeControlError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.MessageResponse{Status: "success", Message: "Run paused"})
}

func (h *Handler) HandleResume(w http.ResponseWriter, r *http.Request) {
	if err := h.runs.Resume(); err != nil {
		h.writeControlError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response.MessageResponse{Status: "success", Message: "Run resumed"})
}

// HandleStop always succeeds.
func (h *Handler) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.runs.Stop()
	h.writeJSON(w, http.StatusOK, response.MessageResponse{Status: "success", Message: "Stop requested"})
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.runs.Status())
}

func (h *Handler) HandleRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := entity.RecordFilter{Limit: defaultRecordLimit}

	if raw := q.Get("classification"); raw != "" {
		c, err := entity.ParseClassification(raw)
		if err != nil {
			h.writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.Classification = &c
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			h.writeJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Limit = min(limit, maxRecordLimit)
	}

	records, err := h.runs.Records(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list records", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []entity.Record{}
	}
	h.writeJSON(w, http.StatusOK, response.RecordsResponse{Count: len(records), Records: records})
}

func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	records, err := h.runs.Export(r.Context())
	if err != nil {
		h.logger.Error("failed to export records", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="records.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := WriteRecordsCSV(w, records); err != nil {
		h.logger.Error("failed to write csv export", zap.Error(err))
	}
}

func (h *Handler) HandleProxies(w http.ResponseWriter, r *http.Request) {
	proxies := h.runs.Proxies()
	h.writeJSON(w, http.StatusOK, response.ProxiesResponse{Count: len(proxies), Proxies: proxies})
}

func (h *Handler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req request.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Candidates) == 0 {
		h.writeJSONError(w, "candidates list cannot be empty", http.StatusBadRequest)
		return
	}

	n, err := h.runs.Enqueue(r.Context(), req.Candidates)
	if err != nil {
		if errors.Is(err, usecase.ErrQueueUnsupported) {
			h.writeJSONError(w, err.Error(), http.StatusNotImplemented)
			return
		}
		h.logger.Error("failed to enqueue candidates", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusAccepted, response.EnqueueResponse{Accepted: n})
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeControlError maps engine errors: transitions to 409, configuration to 400.
func (h *Handler) writeControlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, usecase.ErrAlreadyRunning),
		errors.Is(err, usecase.ErrNotRunning),
		errors.Is(err, usecase.ErrNotPaused),
		errors.Is(err, usecase.ErrStoreLocked):
		h.writeJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, usecase.ErrNoWorkers),
		errors.Is(err, usecase.ErrNoCandidates),
		errors.Is(err, usecase.ErrNilProber):
		h.writeJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("control operation failed", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, response.ErrorResponse{Error: message})
}
