package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tunefetch/tunefetch/internal/domain"
	errpkg "github.com/tunefetch/tunefetch/internal/errors"
	"github.com/tunefetch/tunefetch/internal/validation"
)

// QueueService defines the queue operations the API exposes.
type QueueService interface {
	Enqueue(ctx context.Context, reqs []domain.EnqueueRequest) (*domain.BatchEnqueueResponse, error)
	Get(ctx context.Context, id string) (*domain.DownloadTask, error)
	Cancel(ctx context.Context, id string) error
	HardRetry(ctx context.Context, id string) error
	Stats(ctx context.Context) (*domain.QueueStats, error)
}

// TaskHandler handles HTTP requests for download tasks.
type TaskHandler struct {
	queue  QueueService
	logger *slog.Logger
}

// NewTaskHandler creates a TaskHandler over the given queue service.
func NewTaskHandler(queue QueueService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{queue: queue, logger: logger}
}

// EnqueueTasks handles POST /tasks: a batch of tracks to download.
func (h *TaskHandler) EnqueueTasks(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchEnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode enqueue request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := validation.ValidateEnqueue(&req); err != nil {
		h.logger.Warn("enqueue validation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.queue.Enqueue(r.Context(), req.Tracks)
	switch {
	case errors.Is(err, errpkg.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, "service is shutting down")
	case err != nil:
		h.logger.Error("failed to enqueue batch", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	default:
		writeJSON(w, http.StatusAccepted, resp)
	}
}

// GetTask handles GET /tasks/{taskID}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	task, err := h.queue.Get(r.Context(), taskID)
	if errors.Is(err, errpkg.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get task", "task_id", taskID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, domain.NewTaskResponse(task))
}

// CancelTask handles POST /tasks/{taskID}/cancel.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	err := h.queue.Cancel(r.Context(), taskID)
	switch {
	case errors.Is(err, errpkg.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, errpkg.ErrNotRetryable):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		h.logger.Error("failed to cancel task", "task_id", taskID, "error", err)
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID, "status": "cancelling"})
	}
}

// RetryTask handles POST /tasks/{taskID}/retry: a destructive hard retry.
func (h *TaskHandler) RetryTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	err := h.queue.HardRetry(r.Context(), taskID)
	switch {
	case errors.Is(err, errpkg.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, errpkg.ErrTaskActive):
		writeError(w, http.StatusConflict, "task has an active worker; cancel it first")
	case errors.Is(err, errpkg.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, "service is shutting down")
	case err != nil:
		h.logger.Error("failed to retry task", "task_id", taskID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID, "status": "pending"})
	}
}

// GetQueueStats handles GET /queue.
func (h *TaskHandler) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to collect queue stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
