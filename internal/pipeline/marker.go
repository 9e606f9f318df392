package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/parityarb/internal/domain"
	"github.com/alanyoungcy/parityarb/internal/service"
)

// DefaultMarkInterval is used when no mark interval is configured.
const DefaultMarkInterval = 5 * time.Second

// Marker revalues open positions at the latest book mids and periodically
// persists a snapshot of every position.
type Marker struct {
	ledger        *service.PositionService
	quotes        domain.QuoteSource
	sink          *service.Sink // may be nil
	interval      time.Duration
	snapshotEvery int
	logger        *slog.Logger
}

// NewMarker creates a Marker. A snapshotEvery of zero disables snapshots.
func NewMarker(ledger *service.PositionService, quotes domain.QuoteSource, sink *service.Sink, interval time.Duration, snapshotEvery int, logger *slog.Logger) *Marker {
	if interval <= 0 {
		interval = DefaultMarkInterval
	}
	return &Marker{
		ledger:        ledger,
		quotes:        quotes,
		sink:          sink,
		interval:      interval,
		snapshotEvery: snapshotEvery,
		logger:        logger.With(slog.String("component", "marker")),
	}
}

// Run marks on every interval until ctx is done.
func (m *Marker) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.tick(ctx, n)
		}
	}
}

func (m *Marker) tick(ctx context.Context, n int) {
	marked := m.ledger.MarkAll(m.quotes)
	if marked > 0 {
		m.logger.DebugContext(ctx, "marker: positions marked", slog.Int("count", marked))
	}
	if m.sink == nil || m.snapshotEvery <= 0 || n%m.snapshotEvery != 0 {
		return
	}
	for _, pos := range m.ledger.Positions() {
		m.sink.PositionSnapshot(ctx, pos)
	}
}
