package config

import "maps"

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Binance
	out.Binance = cfg.Binance
	redact(&out.Binance.APISecret)
	redact(&out.Binance.SecretPassword)

	// Postgres
	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// S3
	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Notify
	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Server
	redact(&out.Server.APIKey)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	if cfg.Arbitrage.StartingAssets != nil {
		out.Arbitrage.StartingAssets = make([]string, len(cfg.Arbitrage.StartingAssets))
		copy(out.Arbitrage.StartingAssets, cfg.Arbitrage.StartingAssets)
	}

	// Copy maps so mutations to the redacted copy do not affect the original.
	if cfg.Arbitrage.SimulationBudgets != nil {
		out.Arbitrage.SimulationBudgets = maps.Clone(cfg.Arbitrage.SimulationBudgets)
	}
	if cfg.Trading.Budgets != nil {
		out.Trading.Budgets = maps.Clone(cfg.Trading.Budgets)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
