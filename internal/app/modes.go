package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/parityarb/internal/arbitrage"
	"github.com/alanyoungcy/parityarb/internal/domain"
	"github.com/alanyoungcy/parityarb/internal/executor"
	"github.com/alanyoungcy/parityarb/internal/feed"
	"github.com/alanyoungcy/parityarb/internal/ingest"
	"github.com/alanyoungcy/parityarb/internal/orderbook"
	"github.com/alanyoungcy/parityarb/internal/pipeline"
	"github.com/alanyoungcy/parityarb/internal/server"
	"github.com/alanyoungcy/parityarb/internal/server/handler"
	"github.com/alanyoungcy/parityarb/internal/server/ws"
	"github.com/alanyoungcy/parityarb/internal/service"
)

const (
	tickQueueName          = "ticks"
	defaultCloseTimeout    = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// core is the market-data side both modes share: venue feeds into the tick
// queue, the book and detector behind it, and the persistence sink.
type core struct {
	venues     map[domain.Venue]venue
	symbols    []string
	queue      *ingest.Queue[domain.NormalizedTick]
	book       *orderbook.Book
	detector   *arbitrage.Detector
	reconciler *orderbook.Reconciler
	arb        *service.ArbService
	sink       *service.Sink
	ledger     *service.PositionService
	pipeline   *pipeline.Orchestrator
	startedAt  time.Time
}

// TradeMode detects opportunities and hands them to the two-leg executor.
// Orders only reach the venues when enable_trading is on and paper_trading
// is off; otherwise the risk service rejects them or paper gateways fill them.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.Bool("enable_trading", a.cfg.Risk.EnableTrading),
		slog.Bool("paper_trading", a.cfg.Risk.PaperTrading),
		slog.Bool("live", a.cfg.LiveTrading()),
	)

	c, err := a.buildCore(ctx, deps)
	if err != nil {
		return err
	}

	risk := service.NewRiskService(service.RiskConfig{
		EnableTrading:        a.cfg.Risk.EnableTrading,
		MaxPositionPerSymbol: a.cfg.Risk.MaxPositionPerSymbol,
		MaxDailyLoss:         a.cfg.Risk.MaxDailyLoss.Decimal,
	}, c.ledger, deps.Metrics, a.logger)

	gateways := make(map[domain.Venue]domain.Gateway, len(c.venues))
	for name, v := range c.venues {
		gateways[name] = v.gateway
	}
	mgr := executor.NewManager(executor.Config{
		LegTimeout:    a.cfg.Execution.LegTimeout.Duration,
		HedgeTimeout:  a.cfg.Execution.HedgeTimeout.Duration,
		HedgeSlippage: a.cfg.Execution.HedgeSlippage.Decimal,
		OrderType:     domain.OrderType(a.cfg.Arbitrage.OrderType),
		MaxCapital: map[domain.Venue]decimal.Decimal{
			domain.VenueKalshi:     a.cfg.Venues.Kalshi.MaxCapital.Decimal,
			domain.VenuePolymarket: a.cfg.Venues.Polymarket.MaxCapital.Decimal,
		},
		LockTTL:  a.cfg.Execution.LockTTL.Duration,
		DedupTTL: a.cfg.Execution.DedupTTL.Duration,
		Paper:    !a.cfg.LiveTrading(),
	}, executor.Deps{
		Gateways: gateways,
		Risk:     risk,
		Ledger:   c.ledger,
		Quotes:   c.book,
		Sink:     c.sink,
		Arb:      c.arb,
		Locks:    deps.LockManager,
		Alerter:  deps.Notifier,
		Metrics:  deps.Metrics,
		Logger:   a.logger,
	})

	c.book.OnUpdate(c.detector.Listener(
		c.sink.Opportunity,
		func(ctx context.Context, opp domain.ArbitrageOpportunity) { mgr.Submit(ctx, opp) },
	))

	handlers := a.handlers(deps, c, mgr)
	handlers.Halts = handler.NewHaltHandler(mgr)
	return a.run(ctx, deps, c, handlers, mgr)
}

// MonitorMode detects and records opportunities without executing them.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	c, err := a.buildCore(ctx, deps)
	if err != nil {
		return err
	}
	c.book.OnUpdate(c.detector.Listener(c.sink.Opportunity))

	return a.run(ctx, deps, c, a.handlers(deps, c, nil), nil)
}

func (a *App) buildCore(ctx context.Context, deps *Dependencies) (*core, error) {
	venues, err := buildVenues(a.cfg, deps.RateLimiter, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: venues: %w", err)
	}
	policy, err := ingest.ParsePolicy(a.cfg.Ingest.Policy)
	if err != nil {
		return nil, fmt.Errorf("app: ingest: %w", err)
	}

	c := &core{
		venues:    venues,
		symbols:   symbolsOf(a.cfg.Markets),
		startedAt: time.Now().UTC(),
	}
	c.queue = ingest.New(tickQueueName, a.cfg.Ingest.Capacity, policy,
		ingest.WithMetrics[domain.NormalizedTick](deps.Metrics))
	c.book = orderbook.New(a.logger, orderbook.WithMetrics(deps.Metrics))
	for _, s := range c.symbols {
		c.book.Track(s)
	}

	c.detector, err = arbitrage.NewDetector(arbitrage.Config{
		Primary:   domain.Venue(a.cfg.Arbitrage.Primary),
		Secondary: domain.Venue(a.cfg.Arbitrage.Secondary),
		Fees: map[domain.Venue]domain.FeeSchedule{
			domain.VenueKalshi:     a.cfg.Venues.Kalshi.Fees.Schedule(domain.VenueKalshi),
			domain.VenuePolymarket: a.cfg.Venues.Polymarket.Fees.Schedule(domain.VenuePolymarket),
		},
		TradeSize:      a.cfg.Arbitrage.TradeSize,
		MinEdgeBps:     a.cfg.Arbitrage.MinEdgeBps.Decimal,
		MaxAge:         a.cfg.Book.MaxAge.Duration,
		OrderType:      domain.OrderType(a.cfg.Arbitrage.OrderType),
		SlippageBuffer: a.cfg.Arbitrage.SlippageBuffer.Decimal,
	}, a.logger, arbitrage.WithMetrics(deps.Metrics))
	if err != nil {
		return nil, fmt.Errorf("app: detector: %w", err)
	}

	sources := make([]orderbook.SnapshotSource, 0, len(venues))
	for _, v := range venues {
		sources = append(sources, v.gateway)
	}
	c.reconciler = orderbook.NewReconciler(c.book, sources, a.cfg.Book.ReconcileInterval.Duration, deps.Metrics, a.logger)

	c.arb = service.NewArbService(
		deps.OpportunityStore, deps.ExecutionStore, deps.PositionStore,
		deps.SignalBus, deps.AuditStore, a.logger,
	)
	c.sink = service.NewSink(c.arb, a.cfg.Pipeline.SinkCapacity, deps.Metrics, a.logger)
	c.ledger = service.NewPositionService(c.sink, a.logger)
	if err := a.restoreLedger(ctx, deps, c); err != nil {
		return nil, err
	}

	var archiver *pipeline.Archiver
	if deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, c.ledger, deps.ExecutionStore,
			a.cfg.Pipeline.ArchiveLookback.Duration, a.logger)
	}
	c.pipeline = pipeline.NewOrchestrator(
		pipeline.NewDispatcher(c.queue, c.book, a.logger),
		pipeline.NewMarker(c.ledger, c.book, c.sink, a.cfg.Pipeline.MarkInterval.Duration, a.cfg.Pipeline.SnapshotEvery, a.logger),
		archiver,
		a.cfg.Pipeline.ArchiveCron,
		a.logger,
	)
	return c, nil
}

// restoreLedger reloads the last persisted positions and today's realized
// P&L so the daily loss limit survives a restart.
func (a *App) restoreLedger(ctx context.Context, deps *Dependencies, c *core) error {
	positions, err := c.arb.LatestPositions(ctx)
	if err != nil {
		return fmt.Errorf("app: restore positions: %w", err)
	}
	c.ledger.Restore(positions)

	var dayPnL decimal.Decimal
	if deps.ExecutionStore != nil {
		now := time.Now().UTC()
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		dayPnL, err = deps.ExecutionStore.SumPnL(ctx, midnight)
		if err != nil {
			return fmt.Errorf("app: restore day pnl: %w", err)
		}
		c.ledger.SeedDayPnL(dayPnL)
	}
	a.logger.InfoContext(ctx, "ledger restored",
		slog.Int("positions", len(positions)),
		slog.String("day_pnl", dayPnL.String()),
	)
	return nil
}

// handlers builds the HTTP handlers. mgr is nil in monitor mode and must be
// passed as an untyped nil to the views.
func (a *App) handlers(deps *Dependencies, c *core, mgr *executor.Manager) server.Handlers {
	var (
		engine handler.EngineView
		recent handler.RecentExecutions
	)
	if mgr != nil {
		engine = mgr
		recent = mgr
	}

	var history handler.PnLHistory
	if deps.ExecutionStore != nil {
		history = deps.ExecutionStore
	}

	status := handler.NewStatusHandler(
		handler.RuntimeInfo{
			Mode:          a.cfg.Mode,
			EnableTrading: a.cfg.Risk.EnableTrading,
			PaperTrading:  !a.cfg.LiveTrading(),
			StartedAt:     c.startedAt,
		},
		c.book,
		engine,
		[]func() ingest.Stats{c.queue.Stats, c.sink.Stats},
		func() map[string]any {
			return map[string]any{"dispatch": c.pipeline.Stats()}
		},
	)

	return server.Handlers{
		Health:    handler.NewHealthHandler(deps.Health, a.logger),
		Status:    status,
		Positions: handler.NewPositionHandler(c.ledger, history, a.logger),
		Arb:       handler.NewArbHandler(c.arb, recent, deps.SignalBus, a.logger),
	}
}

// run starts every loop of the mode and blocks until ctx is done or one of
// them fails. On shutdown the executor drains in-flight executions before
// the gateways close and the sink and notifier flush.
func (a *App) run(ctx context.Context, deps *Dependencies, c *core, handlers server.Handlers, mgr *executor.Manager) error {
	// The sink and notifier outlive the main group.
	tailCtx, stopTail := context.WithCancel(context.WithoutCancel(ctx))
	var tail errgroup.Group
	tail.Go(func() error { return c.sink.Run(tailCtx) })
	tail.Go(func() error { return deps.Notifier.Run(tailCtx) })

	g, gctx := errgroup.WithContext(ctx)

	for _, v := range c.venues {
		f := feed.NewVenueFeed(v.gateway, v.normalizer, v.symbols, c.queue, deps.Metrics, a.logger)
		g.Go(func() error { return ignoreCanceled(f.Run(gctx)) })
	}
	g.Go(func() error { return c.pipeline.Run(gctx) })
	g.Go(func() error { return ignoreCanceled(c.reconciler.Run(gctx, c.symbols)) })
	if mgr != nil {
		g.Go(func() error { return ignoreCanceled(mgr.Run(gctx)) })
	}

	if a.cfg.Server.Enabled {
		hub := ws.NewHub(deps.SignalBus, func() any { return handlers.Status.Status() }, a.cfg.Server.CORSOrigins, a.logger)
		srv := server.NewServer(server.Config{
			Addr:            a.cfg.Server.Addr,
			CORSOrigins:     a.cfg.Server.CORSOrigins,
			APIKey:          a.cfg.Server.APIKey,
			RateLimit:       a.cfg.Server.RateLimit,
			RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
			ShutdownTimeout: defaultShutdownTimeout,
		}, handlers, hub, deps.Registry, deps.RateLimiter, a.logger)
		g.Go(func() error { return ignoreCanceled(hub.Run(gctx)) })
		g.Go(func() error { return srv.Run(gctx) })
	}

	err := g.Wait()
	c.queue.Close()

	if mgr != nil {
		timeout := a.cfg.Execution.CloseTimeout.Duration
		if timeout <= 0 {
			timeout = defaultCloseTimeout
		}
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		if cerr := mgr.Close(closeCtx); cerr != nil {
			a.logger.Error("executor did not drain", slog.String("error", cerr.Error()))
		}
		cancel()
	}
	for name, v := range c.venues {
		if cerr := v.gateway.Close(); cerr != nil {
			a.logger.Warn("gateway close failed", slog.String("venue", string(name)), slog.String("error", cerr.Error()))
		}
	}

	stopTail()
	if terr := tail.Wait(); terr != nil {
		a.logger.Error("sink flush failed", slog.String("error", terr.Error()))
	}
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
