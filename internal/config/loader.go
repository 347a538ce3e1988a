package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRIARB_* environment variable overrides, and
// returns the final Config. An empty path skips the file and starts from the
// defaults. The returned Config has NOT been validated; the caller should
// invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRIARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Binance ──
	setStr(&cfg.Binance.APIKey, "BINANCE_API_KEY") // compatibility alias
	setStr(&cfg.Binance.APISecret, "BINANCE_SECRET_KEY")
	setStr(&cfg.Binance.APIKey, "TRIARB_BINANCE_API_KEY")
	setStr(&cfg.Binance.APISecret, "TRIARB_BINANCE_API_SECRET")
	setStr(&cfg.Binance.EncryptedSecretPath, "TRIARB_BINANCE_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Binance.SecretPassword, "TRIARB_BINANCE_SECRET_PASSWORD")
	setStr(&cfg.Binance.RESTURL, "TRIARB_BINANCE_REST_URL")
	setStr(&cfg.Binance.WSAPIURL, "TRIARB_BINANCE_WS_API_URL")
	setStr(&cfg.Binance.StreamURL, "TRIARB_BINANCE_STREAM_URL")
	setBool(&cfg.Binance.Testnet, "TRIARB_BINANCE_TESTNET")
	setInt(&cfg.Binance.SymbolsPerConnection, "TRIARB_BINANCE_SYMBOLS_PER_CONNECTION")
	setDuration(&cfg.Binance.RequestTimeout, "TRIARB_BINANCE_REQUEST_TIMEOUT")

	// ── Arbitrage ──
	setDecimal(&cfg.Arbitrage.Fee, "TRIARB_ARBITRAGE_FEE")
	setDecimal(&cfg.Arbitrage.ProfitThreshold, "TRIARB_ARBITRAGE_PROFIT_THRESHOLD")
	setDecimal(&cfg.Arbitrage.SimulationBudget, "TRIARB_ARBITRAGE_SIMULATION_BUDGET")
	setStringSlice(&cfg.Arbitrage.StartingAssets, "TRIARB_ARBITRAGE_STARTING_ASSETS")
	setDuration(&cfg.Arbitrage.Cooldown, "TRIARB_ARBITRAGE_COOLDOWN")
	setDecimal(&cfg.Arbitrage.SafetyBuffer, "TRIARB_ARBITRAGE_SAFETY_BUFFER")
	setDuration(&cfg.Arbitrage.CheckInterval, "TRIARB_ARBITRAGE_CHECK_INTERVAL")
	setInt(&cfg.Arbitrage.Workers, "TRIARB_ARBITRAGE_WORKERS")
	setDuration(&cfg.Arbitrage.CollectTimeout, "TRIARB_ARBITRAGE_COLLECT_TIMEOUT")
	setDecimal(&cfg.Arbitrage.AnomalyThreshold, "TRIARB_ARBITRAGE_ANOMALY_THRESHOLD")
	setDuration(&cfg.Arbitrage.SummaryInterval, "TRIARB_ARBITRAGE_SUMMARY_INTERVAL")

	// ── Trading ──
	setBool(&cfg.Trading.AutoTradeEnabled, "TRIARB_TRADING_AUTO_TRADE_ENABLED")
	setBool(&cfg.Trading.DryRun, "TRIARB_TRADING_DRY_RUN")
	setDecimal(&cfg.Trading.Budget, "TRIARB_TRADING_BUDGET")
	setDuration(&cfg.Trading.Timeout, "TRIARB_TRADING_TIMEOUT")
	setInt(&cfg.Trading.WSFailureThreshold, "TRIARB_TRADING_WS_FAILURE_THRESHOLD")
	setBool(&cfg.Trading.PreferWebsocket, "TRIARB_TRADING_PREFER_WEBSOCKET")
	setBool(&cfg.Trading.DistributedLock, "TRIARB_TRADING_DISTRIBUTED_LOCK")
	setDuration(&cfg.Trading.LockTTL, "TRIARB_TRADING_LOCK_TTL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "TRIARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "TRIARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "TRIARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRIARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRIARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRIARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRIARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRIARB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRIARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRIARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRIARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRIARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRIARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRIARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRIARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRIARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRIARB_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.StreamMaxLen, "TRIARB_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TRIARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TRIARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRIARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRIARB_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "TRIARB_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "TRIARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRIARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRIARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRIARB_S3_FORCE_PATH_STYLE")

	// ── Journal ──
	setStr(&cfg.Journal.Dir, "TRIARB_JOURNAL_DIR")
	setDuration(&cfg.Journal.ArchiveInterval, "TRIARB_JOURNAL_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRIARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRIARB_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "TRIARB_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRIARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRIARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRIARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRIARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRIARB_MODE")
	setStr(&cfg.LogLevel, "TRIARB_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(strings.TrimSpace(v)); err == nil {
			*dst = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
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
