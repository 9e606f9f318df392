package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/parityarb/internal/domain"
	"github.com/alanyoungcy/parityarb/internal/metrics"
)

// RiskConfig holds the tunable parameters for pre-trade admission.
type RiskConfig struct {
	EnableTrading        bool
	MaxPositionPerSymbol int64           // contracts per venue, 0 disables
	MaxDailyLoss         decimal.Decimal // positive amount, zero disables
}

// Halt records why a symbol stopped trading.
type Halt struct {
	Symbol string    `json:"symbol"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// RiskService performs admission checks and owns the set of halted symbols.
type RiskService struct {
	cfg     RiskConfig
	ledger  *PositionService
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu     sync.RWMutex
	halted map[string]Halt
}

// NewRiskService creates a RiskService reading exposure from ledger.
func NewRiskService(cfg RiskConfig, ledger *PositionService, m *metrics.Metrics, logger *slog.Logger) *RiskService {
	return &RiskService{
		cfg:     cfg,
		ledger:  ledger,
		metrics: m,
		logger:  logger.With(slog.String("component", "risk_service")),
		halted:  make(map[string]Halt),
	}
}

// TradingEnabled reports the enable_trading switch.
func (s *RiskService) TradingEnabled() bool { return s.cfg.EnableTrading }

// Admit returns nil if opp may be executed. Otherwise it returns
// ErrTradingDisabled, ErrSymbolHalted or a *domain.RiskLimitBreach.
//
// Checks performed:
//  1. Trading switch
//  2. Symbol not halted
//  3. Position limit on each leg venue
//  4. Daily loss, fees included
func (s *RiskService) Admit(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	if !s.cfg.EnableTrading {
		return domain.ErrTradingDisabled
	}
	if _, ok := s.Halted(opp.Symbol); ok {
		return fmt.Errorf("risk_service: %s: %w", opp.Symbol, domain.ErrSymbolHalted)
	}

	if limit := s.cfg.MaxPositionPerSymbol; limit > 0 {
		for _, leg := range opp.Legs {
			held := abs(s.ledger.Quantity(opp.Symbol, leg.Venue))
			if held+leg.Size > limit {
				return s.breach(ctx, &domain.RiskLimitBreach{
					Limit:  "max_position_per_symbol",
					Symbol: opp.Symbol,
					Detail: fmt.Sprintf("%s holds %d, order %d, max %d", leg.Venue, held, leg.Size, limit),
				})
			}
		}
	}

	if s.cfg.MaxDailyLoss.IsPositive() {
		loss := s.ledger.DayPnL().Neg()
		if loss.GreaterThanOrEqual(s.cfg.MaxDailyLoss) {
			return s.breach(ctx, &domain.RiskLimitBreach{
				Limit:  "max_daily_loss",
				Symbol: opp.Symbol,
				Detail: fmt.Sprintf("day loss %s, max %s", loss, s.cfg.MaxDailyLoss),
			})
		}
	}
	return nil
}

func (s *RiskService) breach(ctx context.Context, b *domain.RiskLimitBreach) error {
	s.metrics.Rejected(b.Limit)
	s.logger.WarnContext(ctx, "risk_service: limit breached",
		slog.String("limit", b.Limit),
		slog.String("symbol", b.Symbol),
		slog.String("detail", b.Detail),
	)
	return b
}

// Halt stops all further executions of symbol.
func (s *RiskService) Halt(symbol, reason string) {
	s.mu.Lock()
	s.halted[symbol] = Halt{Symbol: symbol, Reason: reason, At: time.Now().UTC()}
	n := len(s.halted)
	s.mu.Unlock()
	s.metrics.SetHalted(n)
}

// Resume clears a halt. It reports whether symbol was halted.
func (s *RiskService) Resume(symbol string) bool {
	s.mu.Lock()
	_, ok := s.halted[symbol]
	delete(s.halted, symbol)
	n := len(s.halted)
	s.mu.Unlock()
	s.metrics.SetHalted(n)
	return ok
}

// Halted returns the halt record for symbol, if any.
func (s *RiskService) Halted(symbol string) (Halt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.halted[symbol]
	return h, ok
}

// Halts lists every halted symbol.
func (s *RiskService) Halts() []Halt {
	s.mu.RLock()
	out := make([]Halt, 0, len(s.halted))
	for _, h := range s.halted {
		out = append(out, h)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
