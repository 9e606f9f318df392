package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PARITYARB_"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PARITYARB_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PARITYARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Top-level ──
	setStr(&cfg.Mode, "MODE")
	setStr(&cfg.LogLevel, "LOG_LEVEL")

	// ── Kalshi ──
	k := &cfg.Venues.Kalshi
	setStr(&k.BaseURL, "KALSHI_BASE_URL")
	setStr(&k.WSURL, "KALSHI_WS_URL")
	setStr(&k.APIKeyID, "KALSHI_API_KEY_ID")
	setStr(&k.PrivateKey, "KALSHI_PRIVATE_KEY")
	setStr(&k.PrivateKeyPath, "KALSHI_PRIVATE_KEY_PATH")
	setStr(&k.KeyPassword, "KALSHI_KEY_PASSWORD")
	setDecimal(&k.MaxCapital, "KALSHI_MAX_CAPITAL")
	setInt(&k.OrderRateLimit, "KALSHI_ORDER_RATE_LIMIT")

	// ── Polymarket ──
	p := &cfg.Venues.Polymarket
	setStr(&p.ClobHost, "POLYMARKET_CLOB_HOST")
	setStr(&p.WSURL, "POLYMARKET_WS_URL")
	setInt64(&p.ChainID, "POLYMARKET_CHAIN_ID")
	setStr(&p.PrivateKey, "POLYMARKET_PRIVATE_KEY")
	setStr(&p.PrivateKeyPath, "POLYMARKET_PRIVATE_KEY_PATH")
	setStr(&p.KeyPassword, "POLYMARKET_KEY_PASSWORD")
	setStr(&p.APIKey, "POLYMARKET_API_KEY")
	setStr(&p.APISecret, "POLYMARKET_API_SECRET")
	setStr(&p.APIPassphrase, "POLYMARKET_API_PASSPHRASE")
	setDecimal(&p.MaxCapital, "POLYMARKET_MAX_CAPITAL")

	// ── Ingest / book ──
	setInt(&cfg.Ingest.Capacity, "INGEST_CAPACITY")
	setStr(&cfg.Ingest.Policy, "INGEST_POLICY")
	setDuration(&cfg.Book.MaxAge, "BOOK_MAX_AGE")
	setDuration(&cfg.Book.ReconcileInterval, "BOOK_RECONCILE_INTERVAL")

	// ── Arbitrage ──
	setStr(&cfg.Arbitrage.Primary, "ARBITRAGE_PRIMARY")
	setStr(&cfg.Arbitrage.Secondary, "ARBITRAGE_SECONDARY")
	setInt64(&cfg.Arbitrage.TradeSize, "ARBITRAGE_TRADE_SIZE")
	setDecimal(&cfg.Arbitrage.MinEdgeBps, "ARBITRAGE_MIN_EDGE_BPS")
	setDecimal(&cfg.Arbitrage.SlippageBuffer, "ARBITRAGE_SLIPPAGE_BUFFER")

	// ── Execution ──
	setDuration(&cfg.Execution.LegTimeout, "EXECUTION_LEG_TIMEOUT")
	setDuration(&cfg.Execution.HedgeTimeout, "EXECUTION_HEDGE_TIMEOUT")
	setDecimal(&cfg.Execution.HedgeSlippage, "EXECUTION_HEDGE_SLIPPAGE")
	setDuration(&cfg.Execution.LockTTL, "EXECUTION_LOCK_TTL")

	// ── Risk ──
	setBool(&cfg.Risk.EnableTrading, "RISK_ENABLE_TRADING")
	setBool(&cfg.Risk.PaperTrading, "RISK_PAPER_TRADING")
	setInt64(&cfg.Risk.MaxPositionPerSymbol, "RISK_MAX_POSITION_PER_SYMBOL")
	setDecimal(&cfg.Risk.MaxDailyLoss, "RISK_MAX_DAILY_LOSS")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.Prefix, "S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NOTIFY_EVENTS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SERVER_ENABLED")
	setStr(&cfg.Server.Addr, "SERVER_ADDR")
	setStr(&cfg.Server.APIKey, "SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "SERVER_RATE_LIMIT")

	// ── Pipeline ──
	setDuration(&cfg.Pipeline.MarkInterval, "PIPELINE_MARK_INTERVAL")
	setInt(&cfg.Pipeline.SnapshotEvery, "PIPELINE_SNAPSHOT_EVERY")
	setStr(&cfg.Pipeline.ArchiveCron, "PIPELINE_ARCHIVE_CRON")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty. Keys are given without EnvPrefix.
// ---------------------------------------------------------------------------

func env(key string) string { return os.Getenv(EnvPrefix + key) }

func setStr(dst *string, key string) {
	if v := env(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := env(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := env(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := env(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := env(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setDecimal(dst *Decimal, key string) {
	if v := env(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			dst.Decimal = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := env(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
