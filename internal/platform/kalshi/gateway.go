package kalshi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/parityarb/internal/domain"
	"github.com/alanyoungcy/parityarb/internal/platform/relay"
)

const wsPath = "/trade-api/ws/v2"

// OrderLimit caps order submissions per window. A zero Limit disables it.
type OrderLimit struct {
	Limiter domain.RateLimiter
	Limit   int
	Window  time.Duration
}

// Gateway trades Kalshi through the REST client and streams books from the
// WebSocket client.
type Gateway struct {
	rest    *Client
	ws      *WSClient
	symbols *domain.SymbolMap
	limit   OrderLimit
	relay   *relay.Relay[BookTop]
	logger  *slog.Logger
}

// NewGateway creates a Kalshi gateway. bufferSize bounds the message channel.
func NewGateway(rest *Client, wsURL string, symbols *domain.SymbolMap, limit OrderLimit, bufferSize int, logger *slog.Logger) *Gateway {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	g := &Gateway{
		rest:    rest,
		symbols: symbols,
		limit:   limit,
		logger:  logger.With(slog.String("venue", string(domain.VenueKalshi))),
	}
	g.relay = relay.New(domain.VenueKalshi, bufferSize,
		func(t BookTop) string { return t.Ticker },
		func(t BookTop, seq uint64) BookTop { t.Seq = seq; return t },
		g.logger)
	g.ws = NewWSClient(wsURL, func() (http.Header, error) { return rest.SignHeaders(wsPath) }, logger)
	g.ws.OnBook(g.emit)
	return g
}

// Venue implements domain.Gateway.
func (g *Gateway) Venue() domain.Venue { return domain.VenueKalshi }

// Connect checks every mapped market is open and dials the stream.
func (g *Gateway) Connect(ctx context.Context) error {
	for _, symbol := range g.symbols.Symbols(domain.VenueKalshi) {
		ticker, _ := g.symbols.Native(domain.VenueKalshi, symbol)
		m, err := g.rest.GetMarket(ctx, ticker)
		if err != nil {
			return fmt.Errorf("kalshi: market %s: %w", ticker, err)
		}
		if m.Status == "closed" || m.Status == "settled" {
			g.logger.WarnContext(ctx, "kalshi: market not trading",
				slog.String("ticker", ticker),
				slog.String("status", m.Status))
		}
	}
	return g.ws.Connect(ctx)
}

// Subscribe implements domain.Gateway.
func (g *Gateway) Subscribe(ctx context.Context, symbols []string) error {
	tickers := make([]string, 0, len(symbols))
	for _, s := range symbols {
		t, ok := g.symbols.Native(domain.VenueKalshi, s)
		if !ok {
			return fmt.Errorf("kalshi: no ticker mapped for %s", s)
		}
		tickers = append(tickers, t)
	}
	return g.ws.Subscribe(ctx, tickers)
}

// RequestSnapshot fetches the REST book. The tick carries the stream's
// latest sequence so the order book resumes counting from it.
func (g *Gateway) RequestSnapshot(ctx context.Context, symbol string) (domain.NormalizedTick, bool, error) {
	ticker, ok := g.symbols.Native(domain.VenueKalshi, symbol)
	if !ok {
		return domain.NormalizedTick{}, false, nil
	}
	ob, err := g.rest.GetOrderbook(ctx, ticker)
	if err != nil {
		return domain.NormalizedTick{}, false, err
	}
	top := TopOf(ticker, ob)
	top.Seq = g.relay.LastSeq(ticker)

	now := time.Now().UnixNano()
	tick, ok := NewNormalizer(g.symbols).Normalize(domain.VenueMessage{
		Venue:      domain.VenueKalshi,
		Payload:    top,
		ReceivedAt: now,
	})
	return tick, ok, nil
}

// SubmitOrder places an immediate-or-cancel limit order and reports what
// filled. Nothing filled is an ErrOrderRejected.
func (g *Gateway) SubmitOrder(ctx context.Context, order domain.Order) (domain.Fill, error) {
	ticker, ok := g.symbols.Native(domain.VenueKalshi, order.Symbol)
	if !ok {
		return domain.Fill{}, fmt.Errorf("kalshi: %w: no ticker for %s", domain.ErrInvalidOrder, order.Symbol)
	}
	if err := g.throttle(ctx); err != nil {
		return domain.Fill{}, err
	}

	price := cents(order.Price)
	req := CreateOrderRequest{
		Ticker:        ticker,
		ClientOrderID: order.ID,
		Action:        string(order.Side),
		Side:          string(order.Outcome),
		Type:          "limit",
		Count:         order.Size,
		TimeInForce:   "immediate_or_cancel",
	}
	if order.Outcome == domain.OutcomeNo {
		req.NoPrice = &price
	} else {
		req.YesPrice = &price
	}

	info, err := g.rest.CreateOrder(ctx, req)
	if err != nil {
		return domain.Fill{}, err
	}
	filled := info.Filled()
	if filled == 0 {
		return domain.Fill{}, fmt.Errorf("kalshi: %w: order %s not filled (%s)", domain.ErrOrderRejected, info.OrderID, info.Status)
	}

	fillPrice := order.Price
	if cost := info.TakerFillCost + info.MakerFillCost; cost > 0 {
		fillPrice = decimal.NewFromInt(cost).Div(decimal.NewFromInt(filled)).Div(hundred)
	}
	return domain.Fill{
		OrderID:  order.ID,
		VenueID:  info.OrderID,
		Symbol:   order.Symbol,
		Venue:    domain.VenueKalshi,
		Outcome:  order.Outcome,
		Side:     order.Side,
		Price:    fillPrice,
		Size:     filled,
		Fee:      decimal.NewFromInt(info.TakerFees + info.MakerFees).Div(hundred),
		FilledAt: time.Now().UTC(),
	}, nil
}

func (g *Gateway) throttle(ctx context.Context) error {
	if g.limit.Limiter == nil || g.limit.Limit <= 0 {
		return nil
	}
	ok, err := g.limit.Limiter.Allow(ctx, "kalshi:orders", g.limit.Limit, g.limit.Window)
	if err != nil {
		// The limiter is advisory; a cache outage must not stop trading.
		g.logger.WarnContext(ctx, "kalshi: rate limiter unavailable", slog.String("error", err.Error()))
		return nil
	}
	if !ok {
		return &domain.TransientVenueError{Venue: domain.VenueKalshi, Op: "submit_order", Err: domain.ErrRateLimited}
	}
	return nil
}

// Messages implements domain.Gateway.
func (g *Gateway) Messages() <-chan domain.VenueMessage { return g.relay.Messages() }

// Close implements domain.Gateway.
func (g *Gateway) Close() error {
	err := g.ws.Close()
	g.relay.Close()
	return err
}

// emit forwards a two-sided top. A one-sided book is not a tick and takes
// no sequence number, but a gap it reported still carries over.
func (g *Gateway) emit(top BookTop) {
	if top.Gap {
		g.relay.MarkGap(top.Ticker)
	}
	if !top.twoSided() {
		return
	}
	g.relay.Publish(top)
}
