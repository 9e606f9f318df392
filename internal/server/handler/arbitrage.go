package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

// History reads persisted opportunities and executions.
type History interface {
	ListRecentOpportunities(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error)
	ListRecentExecutions(ctx context.Context, limit int) ([]domain.Execution, error)
}

// RecentExecutions is the in-memory ring of terminal executions kept by the
// executor.
type RecentExecutions interface {
	Recent() []domain.Execution
}

// ArbHandler serves opportunity and execution history.
type ArbHandler struct {
	history History
	recent  RecentExecutions
	log     ExecutionLog
	logger  *slog.Logger
}

// NewArbHandler creates an ArbHandler. recent and log may be nil.
func NewArbHandler(history History, recent RecentExecutions, log ExecutionLog, logger *slog.Logger) *ArbHandler {
	return &ArbHandler{history: history, recent: recent, log: log, logger: logger}
}

// ListOpportunities returns the most recently detected opportunities.
// GET /api/opportunities?limit=50
func (h *ArbHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 500)

	opps, err := h.history.ListRecentOpportunities(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list opportunities failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	if opps == nil {
		opps = []domain.ArbitrageOpportunity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps})
}

// ListExecutions returns recent terminal executions. The store is read
// when configured; otherwise the executor's in-memory ring is used.
// GET /api/executions?limit=50
func (h *ArbHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 500)

	execs, err := h.history.ListRecentExecutions(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list executions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	if execs == nil && h.recent != nil {
		execs = h.recent.Recent()
		if len(execs) > limit {
			execs = execs[:limit]
		}
	}
	if execs == nil {
		execs = []domain.Execution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": execs})
}

// ExecutionLog reads the durable execution stream.
type ExecutionLog interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

type logEntry struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// ReadExecutionLog pages through the execution stream after ?after=<id>.
// GET /api/executions/log?after=0&limit=100
func (h *ArbHandler) ReadExecutionLog(w http.ResponseWriter, r *http.Request) {
	if h.log == nil {
		writeError(w, http.StatusNotFound, "execution log not configured")
		return
	}
	after := r.URL.Query().Get("after")
	limit := parseLimit(r, 100, 1000)

	msgs, err := h.log.StreamRead(r.Context(), domain.StreamExecutions, after, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: read execution log failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read execution log")
		return
	}

	entries := make([]logEntry, 0, len(msgs))
	next := after
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		entries = append(entries, logEntry{ID: m.ID, Event: m.Payload})
		next = m.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "next": next})
}
