// Package executor runs the two-leg execution protocol: Leg 1 on the primary
// venue, Leg 2 on the secondary venue, and a hedge of Leg 1 when Leg 2 fails.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/parityarb/internal/domain"
	"github.com/alanyoungcy/parityarb/internal/metrics"
	"github.com/alanyoungcy/parityarb/internal/service"
)

const (
	defaultLegTimeout = 2 * time.Second
	lockKeyPrefix     = "parityarb:exec:"
	recentCapacity    = 100
)

// Notification event types.
const (
	EventExecutionCompleted = "execution_completed"
	EventExecutionHedged    = "execution_hedged"
	EventHedgeFailed        = "hedge_failed"
	EventSymbolResumed      = "symbol_resumed"
)

// Alerter delivers operator notifications.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds execution parameters.
type Config struct {
	LegTimeout    time.Duration
	HedgeTimeout  time.Duration
	HedgeSlippage decimal.Decimal // subtracted from the bid when pricing a hedge
	OrderType     domain.OrderType
	MaxCapital    map[domain.Venue]decimal.Decimal
	LockTTL       time.Duration // zero disables the distributed lock
	DedupTTL      time.Duration
	Paper         bool
}

// Deps are the collaborators of a Manager. Sink, Arb, Locks and Alerter may
// be nil.
type Deps struct {
	Gateways map[domain.Venue]domain.Gateway
	Risk     *service.RiskService
	Ledger   *service.PositionService
	Quotes   domain.QuoteSource
	Sink     *service.Sink
	Arb      *service.ArbService
	Locks    domain.LockManager
	Alerter  Alerter
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Manager admits opportunities and executes them on worker goroutines, one
// per symbol at a time.
type Manager struct {
	cfg      Config
	gateways map[domain.Venue]domain.Gateway
	risk     *service.RiskService
	ledger   *service.PositionService
	quotes   domain.QuoteSource
	sink     *service.Sink
	arb      *service.ArbService
	locks    domain.LockManager
	alerter  Alerter
	metrics  *metrics.Metrics
	logger   *slog.Logger

	res *reservations

	// closeMu orders wg.Add in Submit against wg.Wait in Close.
	closeMu sync.Mutex
	closing bool
	wg      sync.WaitGroup

	recentMu sync.Mutex
	recent   []domain.Execution
}

// NewManager creates a Manager.
func NewManager(cfg Config, deps Deps) *Manager {
	if cfg.LegTimeout <= 0 {
		cfg.LegTimeout = defaultLegTimeout
	}
	if cfg.HedgeTimeout <= 0 {
		cfg.HedgeTimeout = cfg.LegTimeout
	}
	if cfg.OrderType == "" {
		cfg.OrderType = domain.OrderTypeTaker
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 2 * time.Minute
	}
	return &Manager{
		cfg:      cfg,
		gateways: deps.Gateways,
		risk:     deps.Risk,
		ledger:   deps.Ledger,
		quotes:   deps.Quotes,
		sink:     deps.Sink,
		arb:      deps.Arb,
		locks:    deps.Locks,
		alerter:  deps.Alerter,
		metrics:  deps.Metrics,
		logger:   deps.Logger.With(slog.String("component", "executor")),
		res:      newReservations(cfg.MaxCapital, cfg.DedupTTL),
	}
}

// Submit admits opp and, if accepted, starts executing it in the background.
// It never blocks on venue I/O.
func (m *Manager) Submit(ctx context.Context, opp domain.ArbitrageOpportunity) domain.SubmitOutcome {
	log := m.logger.With(
		slog.String("opp_id", opp.ID),
		slog.String("symbol", opp.Symbol),
	)

	if m.isClosing() {
		log.DebugContext(ctx, "executor: shutting down, opportunity dropped")
		return domain.SubmitDropped
	}

	if err := m.risk.Admit(ctx, opp); err != nil {
		if errors.Is(err, domain.ErrTradingDisabled) {
			log.DebugContext(ctx, "executor: trading disabled, opportunity not executed")
		} else {
			log.InfoContext(ctx, "executor: opportunity rejected", slog.String("reason", err.Error()))
		}
		return domain.SubmitRejected
	}

	for _, leg := range opp.Legs {
		if _, ok := m.gateways[leg.Venue]; !ok {
			log.ErrorContext(ctx, "executor: no gateway for venue", slog.String("venue", string(leg.Venue)))
			return domain.SubmitRejected
		}
	}

	release, err := m.res.reserve(opp)
	if err != nil {
		m.metrics.Rejected(reasonOf(err))
		log.InfoContext(ctx, "executor: opportunity dropped", slog.String("reason", err.Error()))
		return domain.SubmitDropped
	}

	m.closeMu.Lock()
	if m.closing {
		m.closeMu.Unlock()
		release()
		log.DebugContext(ctx, "executor: shutting down, opportunity dropped")
		return domain.SubmitDropped
	}
	m.wg.Add(1)
	m.closeMu.Unlock()

	go func() {
		defer m.wg.Done()
		defer release()
		// Legs must reach a terminal state even when the caller shuts down;
		// each venue call is bounded by its own timeout instead.
		m.execute(context.WithoutCancel(ctx), opp)
	}()
	return domain.SubmitAccepted
}

func (m *Manager) isClosing() bool {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	return m.closing
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrInFlight):
		return "in_flight"
	case errors.Is(err, ErrCapitalExhausted):
		return "max_capital"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	default:
		return "other"
	}
}

// Run performs periodic housekeeping until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "executor: started", slog.Bool("paper", m.cfg.Paper))
	defer m.logger.Info("executor: stopped")

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.res.cleanup()
		}
	}
}

// Close stops admitting opportunities and waits for in-flight executions to
// finish or for ctx to expire.
func (m *Manager) Close(ctx context.Context) error {
	m.closeMu.Lock()
	m.closing = true
	m.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("executor: close: %w (in flight: %v)", ctx.Err(), m.res.symbols())
	}
}

// Resume clears a halt placed after a hedge failure.
func (m *Manager) Resume(ctx context.Context, symbol string) bool {
	if !m.risk.Resume(symbol) {
		return false
	}
	m.logger.WarnContext(ctx, "executor: symbol resumed by operator", slog.String("symbol", symbol))
	if m.arb != nil {
		m.arb.Resumed(ctx, symbol)
	}
	m.alert(ctx, EventSymbolResumed, "Symbol resumed", fmt.Sprintf("%s trading resumed", symbol))
	return true
}

// Halts lists halted symbols.
func (m *Manager) Halts() []service.Halt { return m.risk.Halts() }

// InFlight lists symbols with an execution in progress.
func (m *Manager) InFlight() []string {
	s := m.res.symbols()
	sort.Strings(s)
	return s
}

// CapitalInUse returns capital reserved by in-flight executions per venue.
func (m *Manager) CapitalInUse() map[domain.Venue]decimal.Decimal { return m.res.capitalInUse() }

// Recent returns the most recent terminal executions, newest first.
func (m *Manager) Recent() []domain.Execution {
	m.recentMu.Lock()
	defer m.recentMu.Unlock()
	out := make([]domain.Execution, len(m.recent))
	for i, e := range m.recent {
		out[len(m.recent)-1-i] = e
	}
	return out
}

func (m *Manager) remember(exec domain.Execution) {
	m.recentMu.Lock()
	defer m.recentMu.Unlock()
	m.recent = append(m.recent, exec)
	if len(m.recent) > recentCapacity {
		m.recent = m.recent[len(m.recent)-recentCapacity:]
	}
}

func (m *Manager) alert(ctx context.Context, event, title, message string) {
	if m.alerter == nil {
		return
	}
	if err := m.alerter.Notify(ctx, event, title, message); err != nil {
		m.logger.WarnContext(ctx, "executor: notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
