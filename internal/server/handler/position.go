package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/parityarb/internal/domain"
)

// Ledger is the read side of the position ledger.
type Ledger interface {
	Positions() []domain.Position
	Summary() domain.PnLSummary
}

// PnLHistory sums stored execution P&L. It is nil when no store is
// configured.
type PnLHistory interface {
	SumPnL(ctx context.Context, since time.Time) (decimal.Decimal, error)
}

// PositionHandler serves positions and P&L.
type PositionHandler struct {
	ledger  Ledger
	history PnLHistory
	logger  *slog.Logger
}

// NewPositionHandler creates a PositionHandler. history may be nil.
func NewPositionHandler(ledger Ledger, history PnLHistory, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{ledger: ledger, history: history, logger: logger}
}

type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns the ledger's positions. ?open=true hides flat ones.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	openOnly := r.URL.Query().Get("open") == "true"

	positions := make([]domain.Position, 0)
	for _, p := range h.ledger.Positions() {
		if openOnly && p.Flat() {
			continue
		}
		positions = append(positions, p)
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

type pnlResponse struct {
	domain.PnLSummary
	Stored *storedPnL `json:"stored,omitempty"`
}

type storedPnL struct {
	Since string `json:"since"`
	Net   string `json:"net"`
}

// GetPnL returns the ledger totals. With ?since=RFC3339 and a configured
// store it also sums persisted executions from that instant.
// GET /api/pnl
func (h *PositionHandler) GetPnL(w http.ResponseWriter, r *http.Request) {
	resp := pnlResponse{PnLSummary: h.ledger.Summary()}

	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		if h.history != nil {
			net, err := h.history.SumPnL(r.Context(), since)
			if err != nil {
				h.logger.ErrorContext(r.Context(), "handler: sum pnl failed",
					slog.String("error", err.Error()),
				)
				writeError(w, http.StatusInternalServerError, "failed to sum stored pnl")
				return
			}
			resp.Stored = &storedPnL{Since: since.UTC().Format(time.RFC3339), Net: net.String()}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
