package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Orchestrator supervises the pipeline loops: tick dispatch, position
// marking and, when configured, the archiver cron.
type Orchestrator struct {
	dispatcher  *Dispatcher
	marker      *Marker
	archiver    *Archiver // may be nil
	archiveCron string
	logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator. marker and archiver may be nil.
func NewOrchestrator(dispatcher *Dispatcher, marker *Marker, archiver *Archiver, archiveCron string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		dispatcher:  dispatcher,
		marker:      marker,
		archiver:    archiver,
		archiveCron: archiveCron,
		logger:      logger.With(slog.String("component", "pipeline")),
	}
}

// Run starts every loop in an errgroup. A loop that fails for a reason other
// than cancellation stops the others and its error is returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "pipeline: starting",
		slog.Bool("marker", o.marker != nil),
		slog.String("archive_cron", o.archiveCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.dispatcher.Run(ctx)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("dispatcher: %w", err)
	})

	if o.marker != nil {
		g.Go(func() error {
			err := o.marker.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("marker: %w", err)
		})
	}

	if o.archiver != nil && o.archiveCron != "" {
		g.Go(func() error {
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline: stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline: stopped")
	return nil
}

// Stats exposes the dispatcher counters.
func (o *Orchestrator) Stats() DispatchStats { return o.dispatcher.Stats() }
