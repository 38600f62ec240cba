package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Trigger queues ad-hoc jobs.
type Trigger interface {
	TriggerReorderScan(ctx context.Context, limit int) (*asynq.TaskInfo, error)
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector *asynq.Inspector
	trigger   Trigger
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints. A nil trigger
// leaves the manual scan endpoint unmounted.
func NewHandler(inspector *asynq.Inspector, trigger Trigger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, trigger: trigger, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	if h.trigger != nil {
		r.Post("/reorder-scan", h.reorderScan)
	}
}

type queueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Processed int    `json:"processed_today"`
	Failed    int    `json:"failed_today"`
	Paused    bool   `json:"paused"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	stats := queueStats{Queue: QueueDefault}
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, stats)
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	if info != nil {
		stats = queueStats{
			Queue:     info.Queue,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
			Processed: info.Processed,
			Failed:    info.Failed,
			Paused:    info.Paused,
		}
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) reorderScan(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.RespondError(w, fmt.Errorf("%w: invalid limit %q", shared.ErrValidation, raw))
			return
		}
		limit = n
	}
	info, err := h.trigger.TriggerReorderScan(r.Context(), limit)
	if err != nil {
		h.logger.Error("trigger reorder scan", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := map[string]string{"task": TaskReorderScan, "queue": QueueDefault}
	if info != nil {
		resp["id"] = info.ID
	}
	httpx.JSON(w, http.StatusAccepted, resp)
}
