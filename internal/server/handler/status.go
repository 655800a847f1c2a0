package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// QueueStats is the slice of the opportunity queue the status endpoint
// reports on.
type QueueStats interface {
	Len(ctx context.Context) (int64, error)
}

// StatusHandler reports the running mode and queue backlog for the
// operator dashboard.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	queue     QueueStats
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler. queue may be nil for modes
// that run without one.
func NewStatusHandler(mode string, queue QueueStats, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		startedAt: time.Now().UTC(),
		queue:     queue,
		logger:    logger,
	}
}

// GetStatus responds with the backend mode, uptime, and queue depth.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.mode,
		"started_at":     h.startedAt.Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}

	if h.queue != nil {
		depth, err := h.queue.Len(r.Context())
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: queue depth failed",
				slog.String("error", err.Error()),
			)
		} else {
			resp["queue_depth"] = depth
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
