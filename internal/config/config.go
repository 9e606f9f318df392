// Package config defines the top-level configuration of the arbitrage engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/parityarb/internal/domain"
	"github.com/alanyoungcy/parityarb/internal/ingest"
	"github.com/alanyoungcy/parityarb/internal/pipeline"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PARITYARB_* environment variables.
type Config struct {
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
	Venues    VenuesConfig    `toml:"venues"`
	Markets   []MarketConfig  `toml:"markets"`
	Ingest    IngestConfig    `toml:"ingest"`
	Book      BookConfig      `toml:"book"`
	Arbitrage ArbitrageConfig `toml:"arbitrage"`
	Execution ExecutionConfig `toml:"execution"`
	Risk      RiskConfig      `toml:"risk"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Notify    NotifyConfig    `toml:"notify"`
	Server    ServerConfig    `toml:"server"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
}

// VenuesConfig groups the per-venue sections.
type VenuesConfig struct {
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Polymarket PolymarketConfig `toml:"polymarket"`
}

// KalshiConfig holds Kalshi endpoints, credentials and fees.
type KalshiConfig struct {
	BaseURL         string    `toml:"base_url"`
	WSURL           string    `toml:"ws_url"`
	APIKeyID        string    `toml:"api_key_id"`
	PrivateKey      string    `toml:"private_key"`      // inline PEM
	PrivateKeyPath  string    `toml:"private_key_path"` // PEM, or sealed when ending in .enc
	KeyPassword     string    `toml:"key_password"`
	RequestTimeout  duration  `toml:"request_timeout"`
	OrderRateLimit  int       `toml:"order_rate_limit"` // orders per window, 0 disables
	OrderRateWindow duration  `toml:"order_rate_window"`
	Fees            FeeConfig `toml:"fees"`
	MaxCapital      Decimal   `toml:"max_capital"` // zero disables
}

// PolymarketConfig holds Polymarket CLOB endpoints, wallet and fees.
type PolymarketConfig struct {
	ClobHost        string    `toml:"clob_host"`
	WSURL           string    `toml:"ws_url"`
	ChainID         int64     `toml:"chain_id"`
	ExchangeAddress string    `toml:"exchange_address"`
	PrivateKey      string    `toml:"private_key"` // hex wallet key
	PrivateKeyPath  string    `toml:"private_key_path"`
	KeyPassword     string    `toml:"key_password"`
	APIKey          string    `toml:"api_key"` // derived at startup when empty
	APISecret       string    `toml:"api_secret"`
	APIPassphrase   string    `toml:"api_passphrase"`
	RequestTimeout  duration  `toml:"request_timeout"`
	Fees            FeeConfig `toml:"fees"`
	MaxCapital      Decimal   `toml:"max_capital"`
}

// FeeConfig is the TOML form of a domain.FeeSchedule.
type FeeConfig struct {
	Model           string  `toml:"model"`
	MakerFee        Decimal `toml:"maker_fee"`
	TakerFee        Decimal `toml:"taker_fee"`
	PerContractFee  Decimal `toml:"per_contract_fee"`
	MinFee          Decimal `toml:"min_fee"`
	MaxFee          Decimal `toml:"max_fee"`
	SettlementModel string  `toml:"settlement_model"`
	SettlementFee   Decimal `toml:"settlement_fee"`
}

// Schedule converts the section into the fee schedule of venue.
func (f FeeConfig) Schedule(venue domain.Venue) domain.FeeSchedule {
	settlement := domain.SettlementModel(strings.ToLower(f.SettlementModel))
	if settlement == "" {
		settlement = domain.SettlementNone
	}
	return domain.FeeSchedule{
		Venue:           venue,
		Model:           domain.FeeModel(strings.ToLower(f.Model)),
		MakerFee:        f.MakerFee.Decimal,
		TakerFee:        f.TakerFee.Decimal,
		PerContractFee:  f.PerContractFee.Decimal,
		MinFee:          f.MinFee.Decimal,
		MaxFee:          f.MaxFee.Decimal,
		SettlementModel: settlement,
		SettlementFee:   f.SettlementFee.Decimal,
	}
}

// MarketConfig maps one canonical symbol onto both venues.
type MarketConfig struct {
	Symbol              string `toml:"symbol"`
	KalshiTicker        string `toml:"kalshi_ticker"`
	PolymarketTokenID   string `toml:"polymarket_token_id"`    // YES token
	PolymarketNoTokenID string `toml:"polymarket_no_token_id"` // NO token, needed to trade NO
}

// IngestConfig sizes the tick queue between feeds and the book.
type IngestConfig struct {
	Capacity int    `toml:"capacity"`
	Policy   string `toml:"policy"` // block | drop_oldest | drop_newest | raise
}

// BookConfig holds order book freshness and reconciliation settings.
type BookConfig struct {
	MaxAge            duration `toml:"max_age"`
	ReconcileInterval duration `toml:"reconcile_interval"`
}

// ArbitrageConfig holds detection parameters.
type ArbitrageConfig struct {
	Primary        string  `toml:"primary"` // leg 1 venue
	Secondary      string  `toml:"secondary"`
	TradeSize      int64   `toml:"trade_size"`
	MinEdgeBps     Decimal `toml:"min_edge_bps"`
	OrderType      string  `toml:"order_type"` // taker | maker
	SlippageBuffer Decimal `toml:"slippage_buffer"`
}

// ExecutionConfig holds two-leg execution parameters.
type ExecutionConfig struct {
	LegTimeout    duration `toml:"leg_timeout"`
	HedgeTimeout  duration `toml:"hedge_timeout"`
	HedgeSlippage Decimal  `toml:"hedge_slippage"`
	LockTTL       duration `toml:"lock_ttl"` // zero disables the Redis lock
	DedupTTL      duration `toml:"dedup_ttl"`
	PaperLatency  duration `toml:"paper_latency"`
	CloseTimeout  duration `toml:"close_timeout"`
}

// RiskConfig holds the safety switches and admission limits.
type RiskConfig struct {
	EnableTrading        bool    `toml:"enable_trading"`
	PaperTrading         bool    `toml:"paper_trading"`
	MaxPositionPerSymbol int64   `toml:"max_position_per_symbol"`
	MaxDailyLoss         Decimal `toml:"max_daily_loss"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled        bool     `toml:"enabled"`
	DSN            string   `toml:"dsn"`
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	Database       string   `toml:"database"`
	User           string   `toml:"user"`
	Password       string   `toml:"password"`
	SSLMode        string   `toml:"ssl_mode"`
	PoolMaxConns   int      `toml:"pool_max_conns"`
	PoolMinConns   int      `toml:"pool_min_conns"`
	ConnectTimeout duration `toml:"connect_timeout"`
	RunMigrations  bool     `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	DiscordUsername   string   `toml:"discord_username"`
	TitlePrefix       string   `toml:"title_prefix"`
	Events            []string `toml:"events"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Addr            string   `toml:"addr"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"` // per client, needs redis
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// PipelineConfig holds the background jobs around the hot path.
type PipelineConfig struct {
	SinkCapacity    int      `toml:"sink_capacity"`
	MarkInterval    duration `toml:"mark_interval"`
	SnapshotEvery   int      `toml:"snapshot_every"` // mark ticks between snapshots, 0 disables
	ArchiveCron     string   `toml:"archive_cron"`   // empty disables; needs s3
	ArchiveLookback duration `toml:"archive_lookback"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Decimal decodes TOML strings such as "0.07" into an exact decimal. Money
// and price settings are written as strings so no float is involved.
type Decimal struct {
	decimal.Decimal
}

func dec(s string) Decimal { return Decimal{decimal.RequireFromString(s)} }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Decimal) UnmarshalText(text []byte) error {
	v, err := decimal.NewFromString(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid decimal %q: %w", text, err)
	}
	d.Decimal = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Decimal) MarshalText() ([]byte, error) {
	return []byte(d.Decimal.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Mode:     "monitor",
		LogLevel: "info",
		Venues: VenuesConfig{
			Kalshi: KalshiConfig{
				BaseURL:         "https://api.elections.kalshi.com/trade-api/v2",
				WSURL:           "wss://api.elections.kalshi.com/trade-api/ws/v2",
				RequestTimeout:  duration{10 * time.Second},
				OrderRateLimit:  10,
				OrderRateWindow: duration{time.Second},
				Fees: FeeConfig{
					Model:           string(domain.FeeModelQuadratic),
					MakerFee:        dec("0.0175"),
					TakerFee:        dec("0.07"),
					SettlementModel: string(domain.SettlementNone),
				},
			},
			Polymarket: PolymarketConfig{
				ClobHost:       "https://clob.polymarket.com",
				WSURL:          "wss://ws-subscriptions-clob.polymarket.com/ws/market",
				ChainID:        137,
				RequestTimeout: duration{10 * time.Second},
				Fees: FeeConfig{
					Model:           string(domain.FeeModelNotional),
					SettlementModel: string(domain.SettlementNone),
				},
			},
		},
		Ingest: IngestConfig{
			Capacity: ingest.DefaultCapacity,
			Policy:   string(ingest.DropOldest),
		},
		Book: BookConfig{
			MaxAge:            duration{500 * time.Millisecond},
			ReconcileInterval: duration{30 * time.Second},
		},
		Arbitrage: ArbitrageConfig{
			Primary:    string(domain.VenueKalshi),
			Secondary:  string(domain.VenuePolymarket),
			TradeSize:  10,
			MinEdgeBps: dec("50"),
			OrderType:  string(domain.OrderTypeTaker),
		},
		Execution: ExecutionConfig{
			LegTimeout:    duration{2 * time.Second},
			HedgeTimeout:  duration{2 * time.Second},
			HedgeSlippage: dec("0.02"),
			DedupTTL:      duration{2 * time.Minute},
			CloseTimeout:  duration{30 * time.Second},
		},
		Risk: RiskConfig{
			EnableTrading:        false,
			PaperTrading:         true,
			MaxPositionPerSymbol: 100,
			MaxDailyLoss:         dec("100"),
		},
		Postgres: PostgresConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "parityarb",
			User:           "postgres",
			SSLMode:        "disable",
			PoolMaxConns:   10,
			PoolMinConns:   2,
			ConnectTimeout: duration{10 * time.Second},
			RunMigrations:  true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "parityarb",
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			DiscordUsername: "parityarb",
			Events:          []string{"hedge_failed", "execution_hedged", "symbol_resumed"},
		},
		Server: ServerConfig{
			Enabled:         true,
			Addr:            ":8080",
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitWindow: duration{time.Second},
		},
		Pipeline: PipelineConfig{
			SinkCapacity:    4096,
			MarkInterval:    duration{pipeline.DefaultMarkInterval},
			SnapshotEvery:   12,
			ArchiveCron:     "5 0 * * *",
			ArchiveLookback: duration{pipeline.DefaultArchiveLookback},
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Venues
	k, p := c.Venues.Kalshi, c.Venues.Polymarket
	if k.BaseURL == "" || k.WSURL == "" {
		errs = append(errs, "venues.kalshi: base_url and ws_url must not be empty")
	}
	if p.ClobHost == "" || p.WSURL == "" {
		errs = append(errs, "venues.polymarket: clob_host and ws_url must not be empty")
	}
	if p.ChainID <= 0 {
		errs = append(errs, "venues.polymarket: chain_id must be positive")
	}
	for venue, fc := range map[domain.Venue]FeeConfig{domain.VenueKalshi: k.Fees, domain.VenuePolymarket: p.Fees} {
		if err := fc.Schedule(venue).Validate(); err != nil {
			errs = append(errs, "venues."+string(venue)+".fees: "+err.Error())
		}
	}
	if k.MaxCapital.IsNegative() || p.MaxCapital.IsNegative() {
		errs = append(errs, "venues: max_capital must be >= 0")
	}

	// Live trading needs credentials; paper trading only reads market data.
	if c.LiveTrading() {
		if k.APIKeyID == "" || (k.PrivateKey == "" && k.PrivateKeyPath == "") {
			errs = append(errs, "venues.kalshi: api_key_id and private_key or private_key_path are required for live trading")
		}
		if p.PrivateKey == "" && p.PrivateKeyPath == "" {
			errs = append(errs, "venues.polymarket: private_key or private_key_path is required for live trading")
		}
	}
	if strings.HasSuffix(k.PrivateKeyPath, ".enc") && k.KeyPassword == "" {
		errs = append(errs, "venues.kalshi: key_password is required for an encrypted key file")
	}
	if strings.HasSuffix(p.PrivateKeyPath, ".enc") && p.KeyPassword == "" {
		errs = append(errs, "venues.polymarket: key_password is required for an encrypted key file")
	}
	pk, ps, pp := p.APIKey != "", p.APISecret != "", p.APIPassphrase != ""
	if (pk || ps || pp) && !(pk && ps && pp) {
		errs = append(errs, "venues.polymarket: api_key, api_secret, and api_passphrase must all be set together")
	}

	// Markets
	if len(c.Markets) == 0 {
		errs = append(errs, "markets: at least one market must be configured")
	}
	seen := make(map[string]bool, len(c.Markets))
	for i, m := range c.Markets {
		switch {
		case m.Symbol == "":
			errs = append(errs, fmt.Sprintf("markets[%d]: symbol must not be empty", i))
		case seen[m.Symbol]:
			errs = append(errs, fmt.Sprintf("markets[%d]: duplicate symbol %q", i, m.Symbol))
		}
		seen[m.Symbol] = true
		if m.KalshiTicker == "" || m.PolymarketTokenID == "" {
			errs = append(errs, fmt.Sprintf("markets[%d]: kalshi_ticker and polymarket_token_id are required", i))
		}
		if c.Mode == "trade" && m.PolymarketNoTokenID == "" {
			errs = append(errs, fmt.Sprintf("markets[%d]: polymarket_no_token_id is required in trade mode", i))
		}
	}

	// Ingest / book
	if _, err := ingest.ParsePolicy(c.Ingest.Policy); err != nil {
		errs = append(errs, "ingest: "+err.Error())
	}
	if c.Ingest.Capacity < 1 {
		errs = append(errs, "ingest: capacity must be >= 1")
	}
	if c.Book.MaxAge.Duration <= 0 {
		errs = append(errs, "book: max_age must be > 0")
	}
	if c.Book.ReconcileInterval.Duration < 0 {
		errs = append(errs, "book: reconcile_interval must be >= 0")
	}

	// Arbitrage
	primary, err1 := domain.ParseVenue(c.Arbitrage.Primary)
	secondary, err2 := domain.ParseVenue(c.Arbitrage.Secondary)
	switch {
	case err1 != nil || err2 != nil:
		errs = append(errs, fmt.Sprintf("arbitrage: unknown venue in primary %q / secondary %q", c.Arbitrage.Primary, c.Arbitrage.Secondary))
	case primary == secondary:
		errs = append(errs, "arbitrage: primary and secondary must differ")
	}
	if c.Arbitrage.TradeSize < 1 {
		errs = append(errs, "arbitrage: trade_size must be >= 1")
	}
	if c.Arbitrage.MinEdgeBps.IsNegative() || c.Arbitrage.SlippageBuffer.IsNegative() {
		errs = append(errs, "arbitrage: min_edge_bps and slippage_buffer must be >= 0")
	}
	switch domain.OrderType(c.Arbitrage.OrderType) {
	case domain.OrderTypeTaker, domain.OrderTypeMaker:
	default:
		errs = append(errs, fmt.Sprintf("arbitrage: order_type must be taker or maker, got %q", c.Arbitrage.OrderType))
	}

	// Execution / risk
	if c.Execution.LegTimeout.Duration <= 0 {
		errs = append(errs, "execution: leg_timeout must be > 0")
	}
	if c.Execution.HedgeSlippage.IsNegative() {
		errs = append(errs, "execution: hedge_slippage must be >= 0")
	}
	if c.Execution.LockTTL.Duration > 0 && !c.Redis.Enabled {
		errs = append(errs, "execution: lock_ttl requires redis.enabled")
	}
	if c.Risk.MaxPositionPerSymbol < 0 || c.Risk.MaxDailyLoss.IsNegative() {
		errs = append(errs, "risk: limits must be >= 0")
	}

	// Storage
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" || c.Postgres.Database == "" {
				errs = append(errs, "postgres: host and database must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
		}
		if c.Postgres.PoolMaxConns < 1 || c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: need 0 <= pool_min_conns <= pool_max_conns and pool_max_conns >= 1")
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.S3.Enabled && (c.S3.Endpoint == "" || c.S3.Bucket == "") {
		errs = append(errs, "s3: endpoint and bucket must not be empty")
	}

	// Server
	if c.Server.Enabled && c.Server.Addr == "" {
		errs = append(errs, "server: addr must not be empty")
	}
	if c.Server.RateLimit > 0 && !c.Redis.Enabled {
		errs = append(errs, "server: rate_limit requires redis.enabled")
	}

	// Pipeline
	if c.Pipeline.SinkCapacity < 1 {
		errs = append(errs, "pipeline: sink_capacity must be >= 1")
	}
	if c.Pipeline.SnapshotEvery < 0 {
		errs = append(errs, "pipeline: snapshot_every must be >= 0")
	}
	if c.S3.Enabled && c.Pipeline.ArchiveCron != "" {
		if err := pipeline.ValidateCron(c.Pipeline.ArchiveCron); err != nil {
			errs = append(errs, "pipeline: archive_cron: "+err.Error())
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "pipeline: archive_cron requires postgres.enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LiveTrading reports whether orders reach the venues: trade mode with
// enable_trading on and paper_trading off.
func (c *Config) LiveTrading() bool {
	return c.Mode == "trade" && c.Risk.EnableTrading && !c.Risk.PaperTrading
}
