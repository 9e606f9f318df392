package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/parityarb/internal/domain"
	"github.com/alanyoungcy/parityarb/internal/ingest"
	"github.com/alanyoungcy/parityarb/internal/metrics"
)

const (
	sinkQueueName    = "persistence"
	sinkWriteTimeout = 5 * time.Second
)

type recordKind int

const (
	kindOpportunity recordKind = iota
	kindExecution
	kindPosition
)

func (k recordKind) String() string {
	switch k {
	case kindOpportunity:
		return "opportunity"
	case kindExecution:
		return "execution"
	default:
		return "position"
	}
}

type record struct {
	kind recordKind
	opp  domain.ArbitrageOpportunity
	exec domain.Execution
	pos  domain.Position
}

// Sink moves persistence off the trading path. Records are buffered in a
// RAISE queue; a full queue drops the record with a warning rather than
// stalling the caller.
type Sink struct {
	arb     *ArbService
	queue   *ingest.Queue[record]
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewSink creates a Sink writing through arb.
func NewSink(arb *ArbService, capacity int, m *metrics.Metrics, logger *slog.Logger) *Sink {
	return &Sink{
		arb:     arb,
		queue:   ingest.New[record](sinkQueueName, capacity, ingest.Raise, ingest.WithMetrics[record](m)),
		metrics: m,
		logger:  logger.With(slog.String("component", "sink")),
	}
}

// Opportunity queues a detected opportunity.
func (s *Sink) Opportunity(ctx context.Context, opp domain.ArbitrageOpportunity) {
	s.enqueue(ctx, record{kind: kindOpportunity, opp: opp})
}

// Execution queues a terminal execution.
func (s *Sink) Execution(ctx context.Context, exec domain.Execution) {
	s.enqueue(ctx, record{kind: kindExecution, exec: exec})
}

// PositionSnapshot queues a position snapshot.
func (s *Sink) PositionSnapshot(ctx context.Context, pos domain.Position) {
	s.enqueue(ctx, record{kind: kindPosition, pos: pos})
}

func (s *Sink) enqueue(ctx context.Context, r record) {
	err := s.queue.Enqueue(ctx, r)
	if err == nil {
		return
	}
	s.metrics.SinkFailed("overflow")
	var capErr *domain.CapacityError
	if errors.As(err, &capErr) {
		s.logger.WarnContext(ctx, "sink: queue full, record dropped",
			slog.String("kind", r.kind.String()),
			slog.Int("capacity", capErr.Capacity),
		)
		return
	}
	s.logger.WarnContext(ctx, "sink: enqueue failed",
		slog.String("kind", r.kind.String()),
		slog.String("error", err.Error()),
	)
}

// Stats exposes the underlying queue statistics.
func (s *Sink) Stats() ingest.Stats { return s.queue.Stats() }

// Run writes queued records until ctx is done, then drains whatever is
// still buffered before returning.
func (s *Sink) Run(ctx context.Context) error {
	for {
		r, err := s.queue.Dequeue(ctx)
		if err != nil {
			break
		}
		s.write(ctx, r)
	}

	s.queue.Close()
	for {
		r, err := s.queue.Dequeue(context.WithoutCancel(ctx))
		if err != nil {
			return nil
		}
		s.write(ctx, r)
	}
}

func (s *Sink) write(ctx context.Context, r record) {
	// Writes outlive shutdown cancellation; the timeout bounds them.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkWriteTimeout)
	defer cancel()

	var err error
	switch r.kind {
	case kindOpportunity:
		err = s.arb.RecordOpportunity(wctx, r.opp)
	case kindExecution:
		err = s.arb.RecordExecution(wctx, r.exec)
	case kindPosition:
		err = s.arb.RecordPosition(wctx, r.pos)
	}
	if err != nil {
		s.metrics.SinkFailed(r.kind.String())
		s.logger.WarnContext(ctx, "sink: write failed",
			slog.String("kind", r.kind.String()),
			slog.String("error", err.Error()),
		)
	}
}
