package handler

import (
	"context"
	"net/http"

	"github.com/alanyoungcy/parityarb/internal/service"
)

// HaltControl lists and clears symbol halts.
type HaltControl interface {
	Halts() []service.Halt
	Resume(ctx context.Context, symbol string) bool
}

// HaltHandler exposes halted symbols to operators.
type HaltHandler struct {
	control HaltControl
}

// NewHaltHandler creates a HaltHandler.
func NewHaltHandler(control HaltControl) *HaltHandler {
	return &HaltHandler{control: control}
}

// ListHalts returns every halted symbol.
// GET /api/halts
func (h *HaltHandler) ListHalts(w http.ResponseWriter, r *http.Request) {
	halts := h.control.Halts()
	if halts == nil {
		halts = []service.Halt{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"halts": halts})
}

// Resume clears the halt on a symbol.
// POST /api/halts/{symbol}/resume
func (h *HaltHandler) Resume(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	if !h.control.Resume(r.Context(), symbol) {
		writeError(w, http.StatusNotFound, "symbol is not halted")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": symbol, "resumed": true})
}
