package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/parityarb/internal/domain"
	"github.com/alanyoungcy/parityarb/internal/platform/relay"
)

// Gateway trades Polymarket through the CLOB client and streams books from
// the market channel.
type Gateway struct {
	clob    *ClobClient
	ws      *WSClient
	symbols *domain.SymbolMap
	markets map[string]Market // canonical symbol -> tokens
	fees    domain.FeeSchedule
	relay   *relay.Relay[BookTop]
	logger  *slog.Logger
}

// NewGateway creates a Polymarket gateway. fees prices the fills the venue
// reports, since order responses carry no fee.
func NewGateway(clob *ClobClient, wsURL string, markets map[string]Market, fees domain.FeeSchedule, bufferSize int, logger *slog.Logger) *Gateway {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	symbols := domain.NewSymbolMap()
	for symbol, m := range markets {
		symbols.Add(domain.VenuePolymarket, symbol, m.YesToken)
	}
	g := &Gateway{
		clob:    clob,
		symbols: symbols,
		markets: markets,
		fees:    fees,
		logger:  logger.With(slog.String("venue", string(domain.VenuePolymarket))),
	}
	g.relay = relay.New(domain.VenuePolymarket, bufferSize,
		func(t BookTop) string { return t.AssetID },
		func(t BookTop, seq uint64) BookTop { t.Seq = seq; return t },
		g.logger)
	g.ws = NewWSClient(wsURL, logger)
	g.ws.OnBook(g.emit)
	return g
}

// Symbols exposes the YES-token mapping for the normalizer.
func (g *Gateway) Symbols() *domain.SymbolMap { return g.symbols }

// Venue implements domain.Gateway.
func (g *Gateway) Venue() domain.Venue { return domain.VenuePolymarket }

// Connect derives API credentials when a signer is configured and dials the
// market channel.
func (g *Gateway) Connect(ctx context.Context) error {
	if g.clob.signer != nil && !g.clob.HasCredentials() {
		if _, err := g.clob.DeriveAPIKey(ctx); err != nil {
			return err
		}
		g.logger.InfoContext(ctx, "polymarket: api credentials derived",
			slog.String("address", g.clob.signer.Address().Hex()))
	}
	return g.ws.Connect(ctx)
}

// Subscribe implements domain.Gateway.
func (g *Gateway) Subscribe(ctx context.Context, symbols []string) error {
	assets := make([]string, 0, len(symbols))
	for _, s := range symbols {
		m, ok := g.markets[s]
		if !ok {
			return fmt.Errorf("polymarket: no token mapped for %s", s)
		}
		assets = append(assets, m.YesToken)
	}
	return g.ws.Subscribe(ctx, assets)
}

// RequestSnapshot fetches the YES-token book over REST.
func (g *Gateway) RequestSnapshot(ctx context.Context, symbol string) (domain.NormalizedTick, bool, error) {
	m, ok := g.markets[symbol]
	if !ok {
		return domain.NormalizedTick{}, false, nil
	}
	book, err := g.clob.GetBook(ctx, m.YesToken)
	if err != nil {
		return domain.NormalizedTick{}, false, err
	}
	top := TopOf(book)
	top.AssetID = m.YesToken
	top.Seq = g.relay.LastSeq(m.YesToken)

	tick, ok := NewNormalizer(g.symbols).Normalize(domain.VenueMessage{
		Venue:      domain.VenuePolymarket,
		Payload:    top,
		ReceivedAt: time.Now().UnixNano(),
	})
	return tick, ok, nil
}

// SubmitOrder places a fill-or-kill order on the outcome token.
func (g *Gateway) SubmitOrder(ctx context.Context, order domain.Order) (domain.Fill, error) {
	m, ok := g.markets[order.Symbol]
	if !ok {
		return domain.Fill{}, fmt.Errorf("polymarket: %w: no market for %s", domain.ErrInvalidOrder, order.Symbol)
	}
	token := m.YesToken
	if order.Outcome == domain.OutcomeNo {
		token = m.NoToken
	}
	if token == "" {
		return domain.Fill{}, fmt.Errorf("polymarket: %w: no %s token for %s", domain.ErrInvalidOrder, order.Outcome, order.Symbol)
	}

	signed, err := g.clob.BuildOrder(token, order.Side, order.Price, order.Size)
	if err != nil {
		return domain.Fill{}, err
	}
	resp, err := g.clob.PostOrder(ctx, signed, "FOK")
	if err != nil {
		return domain.Fill{}, err
	}
	if resp.Status != "" && resp.Status != "matched" {
		return domain.Fill{}, fmt.Errorf("polymarket: %w: order %s %s", domain.ErrOrderRejected, resp.OrderID, resp.Status)
	}

	price, size := fillOf(order, resp)
	return domain.Fill{
		OrderID:  order.ID,
		VenueID:  resp.OrderID,
		Symbol:   order.Symbol,
		Venue:    domain.VenuePolymarket,
		Outcome:  order.Outcome,
		Side:     order.Side,
		Price:    price,
		Size:     size,
		Fee:      g.fees.Fee(price, size, order.Type),
		FilledAt: time.Now().UTC(),
	}, nil
}

// fillOf derives the average price and size from the matched amounts. A
// buy makes USDC and takes shares; a sell the reverse.
func fillOf(order domain.Order, resp PostOrderResponse) (decimal.Decimal, int64) {
	shares, usdc := resp.TakingAmount, resp.MakingAmount
	if order.Side == domain.OrderSideSell {
		shares, usdc = resp.MakingAmount, resp.TakingAmount
	}
	if !shares.IsPositive() || !usdc.IsPositive() {
		return order.Price, order.Size
	}
	return usdc.Div(shares).Round(4), shares.IntPart()
}

// Messages implements domain.Gateway.
func (g *Gateway) Messages() <-chan domain.VenueMessage { return g.relay.Messages() }

// Close implements domain.Gateway.
func (g *Gateway) Close() error {
	err := g.ws.Close()
	g.relay.Close()
	return err
}

// emit forwards tops quoting both sides; others are not ticks.
func (g *Gateway) emit(top BookTop) {
	if top.empty() {
		return
	}
	g.relay.Publish(top)
}
