// Package arbitrage detects fee-adjusted crossings of a binary contract
// quoted on two venues.
package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/parityarb/internal/domain"
	"github.com/alanyoungcy/parityarb/internal/metrics"
)

var bpsDivisor = decimal.NewFromInt(10_000)

// DefaultMaxAge is the staleness threshold used when none is configured.
const DefaultMaxAge = 500 * time.Millisecond

// Config holds the detector parameters. Primary is the venue Leg 1 executes
// on; Secondary takes Leg 2.
type Config struct {
	Primary        domain.Venue
	Secondary      domain.Venue
	Fees           map[domain.Venue]domain.FeeSchedule
	TradeSize      int64
	MinEdgeBps     decimal.Decimal
	MaxAge         time.Duration
	OrderType      domain.OrderType
	SlippageBuffer decimal.Decimal // per contract
}

func (c Config) validate() error {
	var errs []error
	if c.Primary == "" || c.Secondary == "" || c.Primary == c.Secondary {
		errs = append(errs, fmt.Errorf("primary and secondary venues must be distinct"))
	}
	for _, v := range []domain.Venue{c.Primary, c.Secondary} {
		fs, ok := c.Fees[v]
		if !ok {
			errs = append(errs, fmt.Errorf("no fee schedule for %s", v))
			continue
		}
		if err := fs.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.TradeSize <= 0 {
		errs = append(errs, fmt.Errorf("trade_size must be positive"))
	}
	if c.MinEdgeBps.IsNegative() {
		errs = append(errs, fmt.Errorf("min_edge_bps must not be negative"))
	}
	return errors.Join(errs...)
}

// Detector is stateless: every evaluation reads only the book it is given
// and the clock.
type Detector struct {
	cfg     Config
	now     func() time.Time
	newID   func() string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock overrides the clock used for staleness and timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithMetrics attaches Prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

// NewDetector validates cfg and returns a Detector.
func NewDetector(cfg Config, logger *slog.Logger, opts ...Option) (*Detector, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("arbitrage: %w", err)
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.OrderType == "" {
		cfg.OrderType = domain.OrderTypeTaker
	}
	d := &Detector{
		cfg:    cfg,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: logger.With(slog.String("component", "arb_detector")),
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Evaluate returns the better of the two buy-both-sides directions for book,
// if either clears the edge threshold. A missing or stale tick on either
// venue yields nothing.
func (d *Detector) Evaluate(book domain.SymbolBook) (domain.ArbitrageOpportunity, bool) {
	now := d.now()
	primary, ok := book.Fresh(d.cfg.Primary, now, d.cfg.MaxAge)
	if !ok {
		return domain.ArbitrageOpportunity{}, false
	}
	secondary, ok := book.Fresh(d.cfg.Secondary, now, d.cfg.MaxAge)
	if !ok {
		return domain.ArbitrageOpportunity{}, false
	}

	best, found := domain.ArbitrageOpportunity{}, false
	for _, outcome := range []domain.Outcome{domain.OutcomeYes, domain.OutcomeNo} {
		opp, ok := d.evaluate(book.Symbol, primary, secondary, outcome)
		if !ok {
			continue
		}
		if !found || opp.NetEdge.GreaterThan(best.NetEdge) {
			best, found = opp, true
		}
	}
	if !found {
		return domain.ArbitrageOpportunity{}, false
	}

	best.ID = d.newID()
	best.DetectedAt = now.UnixNano()
	d.metrics.OpportunityDetected(best.Symbol)
	return best, true
}

// evaluate prices buying primaryOutcome on the primary venue and its
// complement on the secondary venue.
func (d *Detector) evaluate(symbol string, primary, secondary domain.NormalizedTick, primaryOutcome domain.Outcome) (domain.ArbitrageOpportunity, bool) {
	size := d.cfg.TradeSize
	qty := decimal.NewFromInt(size)

	priceA, sizeA := primary.Ask(primaryOutcome)
	priceB, sizeB := secondary.Ask(primaryOutcome.Opposite())
	if sizeA < size || sizeB < size {
		return domain.ArbitrageOpportunity{}, false
	}

	feesA := d.cfg.Fees[d.cfg.Primary]
	feesB := d.cfg.Fees[d.cfg.Secondary]
	feeA := feesA.Fee(priceA, size, d.cfg.OrderType)
	feeB := feesB.Fee(priceB, size, d.cfg.OrderType)

	// Exactly one leg pays out, so only one settlement fee is ever charged.
	settlement := decimal.Max(feesA.Settlement(priceA, size), feesB.Settlement(priceB, size))

	cost := priceA.Add(priceB)
	gross := domain.One.Sub(cost)
	net := gross.
		Sub(feeA.Add(feeB).Div(qty)).
		Sub(settlement.Div(qty)).
		Sub(d.cfg.SlippageBuffer)

	// MinEdgeBps is never negative, so a zero threshold still requires net >= 0.
	threshold := d.cfg.MinEdgeBps.Div(bpsDivisor).Mul(cost)
	if net.LessThan(threshold) {
		return domain.ArbitrageOpportunity{}, false
	}

	return domain.ArbitrageOpportunity{
		Symbol: symbol,
		Legs: [2]domain.Leg{
			{Venue: d.cfg.Primary, Outcome: primaryOutcome, Side: domain.OrderSideBuy, Price: priceA, Size: size, Fee: feeA},
			{Venue: d.cfg.Secondary, Outcome: primaryOutcome.Opposite(), Side: domain.OrderSideBuy, Price: priceB, Size: size, Fee: feeB},
		},
		GrossEdge:      gross,
		NetEdge:        net,
		TotalFees:      feeA.Add(feeB),
		SettlementFees: settlement,
		Notional:       cost,
	}, true
}

// Handler consumes a detected opportunity.
type Handler func(ctx context.Context, opp domain.ArbitrageOpportunity)

// Listener adapts the detector to the order book's update callback. Each
// handler is called in order for every opportunity.
func (d *Detector) Listener(handlers ...Handler) func(context.Context, domain.SymbolBook) {
	return func(ctx context.Context, book domain.SymbolBook) {
		opp, ok := d.Evaluate(book)
		if !ok {
			return
		}
		d.logger.InfoContext(ctx, "arb detector: opportunity",
			slog.String("id", opp.ID),
			slog.String("symbol", opp.Symbol),
			slog.String("leg1", fmt.Sprintf("%s %s @ %s", opp.Legs[0].Venue, opp.Legs[0].Outcome, opp.Legs[0].Price)),
			slog.String("leg2", fmt.Sprintf("%s %s @ %s", opp.Legs[1].Venue, opp.Legs[1].Outcome, opp.Legs[1].Price)),
			slog.String("net_edge", opp.NetEdge.String()),
		)
		for _, h := range handlers {
			h(ctx, opp)
		}
	}
}
