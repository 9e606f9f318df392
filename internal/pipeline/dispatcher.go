// Package pipeline runs the long-lived loops that move data between the core
// components: tick dispatch, position marking and cold-storage archival.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/alanyoungcy/parityarb/internal/domain"
	"github.com/alanyoungcy/parityarb/internal/ingest"
	"github.com/alanyoungcy/parityarb/internal/orderbook"
)

// Dispatcher is the single consumer of the tick queue. Every tick is applied
// to the book on the dispatcher goroutine, so per-symbol arrival order is
// the order of application and detection.
type Dispatcher struct {
	queue  *ingest.Queue[domain.NormalizedTick]
	book   *orderbook.Book
	logger *slog.Logger

	applied   atomic.Uint64
	gaps      atomic.Uint64
	discarded atomic.Uint64
	invalid   atomic.Uint64
}

// DispatchStats counts apply results since start.
type DispatchStats struct {
	Applied   uint64 `json:"applied"`
	Gaps      uint64 `json:"gaps"`
	Discarded uint64 `json:"discarded"`
	Invalid   uint64 `json:"invalid"`
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(queue *ingest.Queue[domain.NormalizedTick], book *orderbook.Book, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:  queue,
		book:   book,
		logger: logger.With(slog.String("component", "dispatcher")),
	}
}

// Run dequeues and applies ticks until ctx is done or the queue is closed
// and drained.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.InfoContext(ctx, "dispatcher: started", slog.String("queue", d.queue.Name()))
	defer d.logger.Info("dispatcher: stopped", slog.Any("stats", d.Stats()))

	for {
		tick, err := d.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrQueueClosed) {
				return nil
			}
			return err
		}
		d.dispatch(ctx, tick)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, tick domain.NormalizedTick) {
	switch d.book.Apply(ctx, tick) {
	case orderbook.Applied:
		d.applied.Add(1)
	case orderbook.AppliedGap:
		d.applied.Add(1)
		d.gaps.Add(1)
	case orderbook.Discarded:
		d.discarded.Add(1)
	case orderbook.Invalid:
		d.invalid.Add(1)
		d.logger.DebugContext(ctx, "dispatcher: invalid tick",
			slog.String("symbol", tick.Symbol),
			slog.String("venue", string(tick.Venue)),
			slog.Uint64("seq", tick.Sequence),
		)
	}
}

// Stats returns the apply counters.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Applied:   d.applied.Load(),
		Gaps:      d.gaps.Load(),
		Discarded: d.discarded.Load(),
		Invalid:   d.invalid.Load(),
	}
}
