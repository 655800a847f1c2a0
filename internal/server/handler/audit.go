package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/ammarbot/internal/domain"
)

// AuditReader is the read side of the audit log.
type AuditReader interface {
	List(ctx context.Context, limit int) ([]domain.AuditEntry, error)
}

// AuditHandler serves the append-only audit trail.
type AuditHandler struct {
	audit  AuditReader
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(audit AuditReader, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		audit:  audit,
		logger: logger,
	}
}

// listAuditResponse wraps the list endpoint output.
type listAuditResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
	Count   int                 `json:"count"`
}

// ListEntries returns the newest audit entries.
// GET /api/audit?limit=100
func (h *AuditHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 100, 1000)

	entries, err := h.audit.List(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}

	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, listAuditResponse{Entries: entries, Count: len(entries)})
}
