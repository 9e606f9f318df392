package orderbook

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/parityarb/internal/domain"
	"github.com/alanyoungcy/parityarb/internal/metrics"
)

// DefaultReconcileInterval is used when no interval is configured.
const DefaultReconcileInterval = 300 * time.Second

// SnapshotSource is the slice of a venue gateway the reconciler needs.
type SnapshotSource interface {
	Venue() domain.Venue
	RequestSnapshot(ctx context.Context, symbol string) (domain.NormalizedTick, bool, error)
}

// Reconciler periodically replaces each symbol's book with venue snapshots.
// Each symbol runs on its own schedule so a slow venue call for one symbol
// does not delay the others.
type Reconciler struct {
	book     *Book
	sources  []SnapshotSource
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler. A non-positive interval falls back to
// DefaultReconcileInterval.
func NewReconciler(book *Book, sources []SnapshotSource, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &Reconciler{
		book:     book,
		sources:  sources,
		interval: interval,
		metrics:  m,
		logger:   logger.With(slog.String("component", "reconciler")),
	}
}

// Run starts one loop per symbol and blocks until ctx is done.
func (r *Reconciler) Run(ctx context.Context, symbols []string) error {
	r.logger.InfoContext(ctx, "reconciler: starting",
		slog.Int("symbols", len(symbols)),
		slog.Duration("interval", r.interval),
	)

	done := make(chan struct{}, len(symbols))
	for i, sym := range symbols {
		// Stagger start times across the interval.
		offset := r.interval * time.Duration(i) / time.Duration(max(len(symbols), 1))
		go func(symbol string, offset time.Duration) {
			defer func() { done <- struct{}{} }()
			r.loop(ctx, symbol, offset)
		}(sym, offset)
	}
	for range symbols {
		<-done
	}
	return ctx.Err()
}

func (r *Reconciler) loop(ctx context.Context, symbol string, offset time.Duration) {
	if offset > 0 {
		t := time.NewTimer(offset)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReconcileSymbol(ctx, symbol)
		}
	}
}

// ReconcileSymbol fetches a snapshot from every venue and installs it. A
// venue returning no snapshot, or an error, leaves that venue unchanged.
func (r *Reconciler) ReconcileSymbol(ctx context.Context, symbol string) {
	for _, src := range r.sources {
		venue := src.Venue()
		tick, ok, err := src.RequestSnapshot(ctx, symbol)
		switch {
		case err != nil:
			r.metrics.Reconciled(string(venue), "error")
			r.logger.WarnContext(ctx, "reconciler: snapshot failed",
				slog.String("symbol", symbol),
				slog.String("venue", string(venue)),
				slog.String("error", err.Error()),
			)
		case !ok:
			r.metrics.Reconciled(string(venue), "empty")
		case !tick.Valid():
			r.metrics.Reconciled(string(venue), "invalid")
			r.logger.WarnContext(ctx, "reconciler: invalid snapshot",
				slog.String("symbol", symbol),
				slog.String("venue", string(venue)),
			)
		default:
			r.book.Reconcile(tick)
			r.metrics.Reconciled(string(venue), "ok")
			r.logger.DebugContext(ctx, "reconciler: applied snapshot",
				slog.String("symbol", symbol),
				slog.String("venue", string(venue)),
				slog.Uint64("seq", tick.Sequence),
			)
		}
	}
}
