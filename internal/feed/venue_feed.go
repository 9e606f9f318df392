// Package feed moves venue market data into the ingest queue: it connects a
// gateway, subscribes the configured symbols and normalizes every message.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/parityarb/internal/domain"
	"github.com/alanyoungcy/parityarb/internal/ingest"
	"github.com/alanyoungcy/parityarb/internal/metrics"
)

const (
	connectDelay    = 2 * time.Second
	maxConnectDelay = 60 * time.Second
)

// VenueFeed pumps one gateway's messages into a shared tick queue.
type VenueFeed struct {
	gateway    domain.Gateway
	normalizer domain.Normalizer
	symbols    []string
	queue      *ingest.Queue[domain.NormalizedTick]
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewVenueFeed creates a feed for gateway.
func NewVenueFeed(
	gateway domain.Gateway,
	normalizer domain.Normalizer,
	symbols []string,
	queue *ingest.Queue[domain.NormalizedTick],
	m *metrics.Metrics,
	logger *slog.Logger,
) *VenueFeed {
	return &VenueFeed{
		gateway:    gateway,
		normalizer: normalizer,
		symbols:    symbols,
		queue:      queue,
		metrics:    m,
		logger:     logger.With(slog.String("component", "feed"), slog.String("venue", string(gateway.Venue()))),
	}
}

// Run connects with backoff, subscribes, and forwards ticks until ctx is
// done or the gateway closes its message channel.
func (f *VenueFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.InfoContext(ctx, "feed: no symbols to subscribe, exiting")
		return nil
	}
	if err := f.connect(ctx); err != nil {
		return err
	}
	f.logger.InfoContext(ctx, "feed: subscribed", slog.Int("symbols", len(f.symbols)))
	defer f.logger.Info("feed: stopped")

	msgs := f.gateway.Messages()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := f.forward(ctx, msg); err != nil {
				return err
			}
		}
	}
}

func (f *VenueFeed) connect(ctx context.Context) error {
	delay := connectDelay
	for {
		err := f.gateway.Connect(ctx)
		if err == nil {
			err = f.gateway.Subscribe(ctx, f.symbols)
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.WarnContext(ctx, "feed: connect failed, retrying",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, maxConnectDelay)
	}
}

// forward normalizes msg and enqueues the tick. Unparseable messages are
// counted and skipped.
func (f *VenueFeed) forward(ctx context.Context, msg domain.VenueMessage) error {
	tick, ok := f.normalizer.Normalize(msg)
	if !ok {
		f.metrics.Unparsable(string(msg.Venue))
		return nil
	}
	if err := f.queue.Enqueue(ctx, tick); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("feed: enqueue %s: %w", tick.Symbol, err)
	}
	return nil
}
