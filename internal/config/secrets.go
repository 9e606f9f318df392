package config

import "slices"

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Venues.Kalshi.APIKeyID)
	redact(&out.Venues.Kalshi.PrivateKey)
	redact(&out.Venues.Kalshi.KeyPassword)

	redact(&out.Venues.Polymarket.PrivateKey)
	redact(&out.Venues.Polymarket.KeyPassword)
	redact(&out.Venues.Polymarket.APIKey)
	redact(&out.Venues.Polymarket.APISecret)
	redact(&out.Venues.Polymarket.APIPassphrase)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Server.APIKey)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	out.Markets = slices.Clone(cfg.Markets)
	out.Notify.Events = slices.Clone(cfg.Notify.Events)
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
