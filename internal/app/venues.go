package app

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/parityarb/internal/config"
	"github.com/alanyoungcy/parityarb/internal/crypto"
	"github.com/alanyoungcy/parityarb/internal/domain"
	"github.com/alanyoungcy/parityarb/internal/platform/kalshi"
	"github.com/alanyoungcy/parityarb/internal/platform/paper"
	"github.com/alanyoungcy/parityarb/internal/platform/polymarket"
)

// venue is one connected market: the gateway the engine trades through and
// the normalizer for its raw messages.
type venue struct {
	gateway    domain.Gateway
	normalizer domain.Normalizer
	symbols    []string
}

// buildVenues creates a gateway per venue from the markets table. Unless
// trading live, every gateway is wrapped so orders fill locally.
func buildVenues(cfg *config.Config, limiter domain.RateLimiter, logger *slog.Logger) (map[domain.Venue]venue, error) {
	ksyms := kalshiSymbols(cfg.Markets)
	kg, err := buildKalshi(cfg, ksyms, limiter, logger)
	if err != nil {
		return nil, err
	}
	pg, err := buildPolymarket(cfg, logger)
	if err != nil {
		return nil, err
	}

	venues := map[domain.Venue]venue{
		domain.VenueKalshi: {
			gateway:    kg,
			normalizer: kalshi.NewNormalizer(ksyms),
		},
		domain.VenuePolymarket: {
			gateway:    pg,
			normalizer: polymarket.NewNormalizer(pg.Symbols()),
		},
	}

	fees := map[domain.Venue]config.FeeConfig{
		domain.VenueKalshi:     cfg.Venues.Kalshi.Fees,
		domain.VenuePolymarket: cfg.Venues.Polymarket.Fees,
	}
	for name, v := range venues {
		v.symbols = symbolsOf(cfg.Markets)
		if !cfg.LiveTrading() {
			v.gateway = paper.Wrap(v.gateway, fees[name].Schedule(name), cfg.Execution.PaperLatency.Duration, logger)
		}
		venues[name] = v
	}
	return venues, nil
}

func buildKalshi(cfg *config.Config, symbols *domain.SymbolMap, limiter domain.RateLimiter, logger *slog.Logger) (*kalshi.Gateway, error) {
	kc := cfg.Venues.Kalshi
	client := kalshi.NewClient(kc.BaseURL, kc.APIKeyID, kc.RequestTimeout.Duration)

	src := crypto.KeySource{Inline: kc.PrivateKey, File: kc.PrivateKeyPath, Password: kc.KeyPassword}
	if !src.Empty() {
		pem, err := crypto.Load(src)
		if err != nil {
			return nil, fmt.Errorf("kalshi: load private key: %w", err)
		}
		if err := client.SetRSAPrivateKey(pem); err != nil {
			return nil, err
		}
	}

	limit := kalshi.OrderLimit{Limiter: limiter, Limit: kc.OrderRateLimit, Window: kc.OrderRateWindow.Duration}
	return kalshi.NewGateway(client, kc.WSURL, symbols, limit, cfg.Ingest.Capacity, logger), nil
}

func buildPolymarket(cfg *config.Config, logger *slog.Logger) (*polymarket.Gateway, error) {
	pc := cfg.Venues.Polymarket

	// Without a wallet the client reads books only.
	var signer *crypto.Signer
	src := crypto.KeySource{Inline: pc.PrivateKey, File: pc.PrivateKeyPath, Password: pc.KeyPassword}
	if !src.Empty() {
		key, err := crypto.Load(src)
		if err != nil {
			return nil, fmt.Errorf("polymarket: load private key: %w", err)
		}
		signer, err = crypto.NewSigner(strings.TrimSpace(string(key)), pc.ChainID, pc.ExchangeAddress)
		if err != nil {
			return nil, fmt.Errorf("polymarket: %w", err)
		}
	}

	clob := polymarket.NewClobClient(pc.ClobHost, signer, pc.RequestTimeout.Duration)
	if pc.APIKey != "" {
		clob.SetCredentials(crypto.APICredentials{
			Key:        pc.APIKey,
			Secret:     pc.APISecret,
			Passphrase: pc.APIPassphrase,
		})
	}

	markets := make(map[string]polymarket.Market, len(cfg.Markets))
	for _, m := range cfg.Markets {
		markets[m.Symbol] = polymarket.Market{YesToken: m.PolymarketTokenID, NoToken: m.PolymarketNoTokenID}
	}
	return polymarket.NewGateway(clob, pc.WSURL, markets, pc.Fees.Schedule(domain.VenuePolymarket), cfg.Ingest.Capacity, logger), nil
}

func kalshiSymbols(markets []config.MarketConfig) *domain.SymbolMap {
	m := domain.NewSymbolMap()
	for _, mk := range markets {
		m.Add(domain.VenueKalshi, mk.Symbol, mk.KalshiTicker)
	}
	return m
}

func symbolsOf(markets []config.MarketConfig) []string {
	out := make([]string, 0, len(markets))
	for _, m := range markets {
		out = append(out, m.Symbol)
	}
	return out
}
