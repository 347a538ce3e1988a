// Package config defines the top-level configuration for the triangular
// arbitrage bot and provides validation helpers.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRIARB_* environment variables.
type Config struct {
	Binance   BinanceConfig   `toml:"binance"`
	Arbitrage ArbitrageConfig `toml:"arbitrage"`
	Trading   TradingConfig   `toml:"trading"`
	Notify    NotifyConfig    `toml:"notify"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	S3        S3Config        `toml:"s3"`
	Journal   JournalConfig   `toml:"journal"`
	Server    ServerConfig    `toml:"server"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// BinanceConfig holds exchange credentials and endpoints.
type BinanceConfig struct {
	APIKey              string `toml:"api_key"`
	APISecret           string `toml:"api_secret"`
	EncryptedSecretPath string `toml:"encrypted_secret_path"`
	SecretPassword      string `toml:"secret_password"`
	// RESTURL overrides the REST API root; empty uses the library default.
	RESTURL              string   `toml:"rest_url"`
	WSAPIURL             string   `toml:"ws_api_url"`
	StreamURL            string   `toml:"stream_url"`
	Testnet              bool     `toml:"testnet"`
	SymbolsPerConnection int      `toml:"symbols_per_connection"`
	RequestTimeout       duration `toml:"request_timeout"`
}

// ArbitrageConfig holds detection parameters. Decimal values are TOML strings.
type ArbitrageConfig struct {
	Fee decimal.Decimal `toml:"fee"`
	// ProfitThreshold is a fraction of the simulated capital (0.001 = 0.1%).
	ProfitThreshold   decimal.Decimal            `toml:"profit_threshold"`
	SimulationBudget  decimal.Decimal            `toml:"simulation_budget"`
	SimulationBudgets map[string]decimal.Decimal `toml:"simulation_budgets"`
	StartingAssets    []string                   `toml:"starting_assets"`
	Cooldown          duration                   `toml:"cooldown"`
	SafetyBuffer      decimal.Decimal            `toml:"safety_buffer"`
	CheckInterval     duration                   `toml:"check_interval"`
	Workers           int                        `toml:"workers"`
	CollectTimeout    duration                   `toml:"collect_timeout"`
	AnomalyThreshold  decimal.Decimal            `toml:"anomaly_threshold"`
	SummaryInterval   duration                   `toml:"summary_interval"`
}

// TradingConfig holds execution parameters.
type TradingConfig struct {
	AutoTradeEnabled   bool                       `toml:"auto_trade_enabled"`
	DryRun             bool                       `toml:"dry_run"`
	Budget             decimal.Decimal            `toml:"budget"`
	Budgets            map[string]decimal.Decimal `toml:"budgets"`
	Timeout            duration                   `toml:"timeout"`
	WSFailureThreshold int                        `toml:"ws_failure_threshold"`
	PreferWebsocket    bool                       `toml:"prefer_websocket"`
	DistributedLock    bool                       `toml:"distributed_lock"`
	LockTTL            duration                   `toml:"lock_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables Redis.
type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int    `toml:"stream_max_len"`
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

// JournalConfig controls the JSON-lines journal and its archival.
type JournalConfig struct {
	Dir             string   `toml:"dir"`
	ArchiveInterval duration `toml:"archive_interval"`
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

// ServerConfig holds status HTTP server parameters.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
	// APIKey guards every route except health and metrics. Empty disables
	// authentication.
	APIKey string `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	workers := runtime.NumCPU() - 1
	if workers < 1 {
		workers = 1
	}
	return Config{
		Binance: BinanceConfig{
			StreamURL:            "wss://stream.binance.com:9443/stream",
			WSAPIURL:             "wss://ws-api.binance.com:443/ws-api/v3",
			SymbolsPerConnection: 200,
			RequestTimeout:       duration{10 * time.Second},
		},
		Arbitrage: ArbitrageConfig{
			Fee:              dec("0.00075"),
			ProfitThreshold:  dec("0.001"),
			SimulationBudget: dec("100"),
			SimulationBudgets: map[string]decimal.Decimal{
				"BTC": dec("0.002"),
				"ETH": dec("0.04"),
				"SOL": dec("1"),
			},
			StartingAssets:   []string{"USDT", "USDC", "FDUSD", "DAI", "TUSD", "BTC", "ETH", "SOL"},
			Cooldown:         duration{60 * time.Second},
			SafetyBuffer:     dec("0.8"),
			CheckInterval:    duration{time.Second},
			Workers:          workers,
			CollectTimeout:   duration{30 * time.Second},
			AnomalyThreshold: dec("0.5"),
			SummaryInterval:  duration{time.Hour},
		},
		Trading: TradingConfig{
			AutoTradeEnabled: false,
			DryRun:           true,
			Budget:           dec("10"),
			Budgets: map[string]decimal.Decimal{
				"BTC": dec("0.0002"),
				"ETH": dec("0.004"),
				"SOL": dec("0.1"),
			},
			Timeout:            duration{30 * time.Second},
			WSFailureThreshold: 3,
			PreferWebsocket:    true,
			DistributedLock:    false,
			LockTTL:            duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			DB:           0,
			PoolSize:     20,
			MaxRetries:   3,
			TLSEnabled:   false,
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "triarb-journal",
			Prefix:         "journal",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Journal: JournalConfig{
			Dir:             "journal",
			ArchiveInterval: duration{time.Hour},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Notify: NotifyConfig{
			Events: []string{"startup", "opportunity", "trade_success", "trade_failed", "summary"},
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"trade":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Trades reports whether the configuration places orders.
func (c *Config) Trades() bool {
	return strings.ToLower(c.Mode) == "trade" && c.Trading.AutoTradeEnabled
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, trade)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Binance
	if c.Binance.SymbolsPerConnection < 1 || c.Binance.SymbolsPerConnection > 200 {
		errs = append(errs, fmt.Sprintf("binance: symbols_per_connection must be 1-200, got %d", c.Binance.SymbolsPerConnection))
	}
	if c.Binance.EncryptedSecretPath != "" && c.Binance.SecretPassword == "" {
		errs = append(errs, "binance: secret_password is required when encrypted_secret_path is set")
	}
	if c.Trades() {
		if c.Binance.APIKey == "" {
			errs = append(errs, "binance: api_key is required when auto trading is enabled")
		}
		if c.Binance.APISecret == "" && c.Binance.EncryptedSecretPath == "" {
			errs = append(errs, "binance: either api_secret or encrypted_secret_path must be set when auto trading is enabled")
		}
	}

	// Arbitrage
	a := c.Arbitrage
	if a.Fee.IsNegative() || a.Fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "arbitrage: fee must be in [0, 1)")
	}
	if a.ProfitThreshold.IsNegative() {
		errs = append(errs, "arbitrage: profit_threshold must be >= 0")
	}
	if !a.SimulationBudget.IsPositive() {
		errs = append(errs, "arbitrage: simulation_budget must be > 0")
	}
	for asset, b := range a.SimulationBudgets {
		if !b.IsPositive() {
			errs = append(errs, fmt.Sprintf("arbitrage: simulation_budgets.%s must be > 0", asset))
		}
	}
	if len(a.StartingAssets) == 0 {
		errs = append(errs, "arbitrage: starting_assets must not be empty")
	}
	if a.Cooldown.Duration < 0 {
		errs = append(errs, "arbitrage: cooldown must be >= 0")
	}
	if !a.SafetyBuffer.IsPositive() || a.SafetyBuffer.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, "arbitrage: safety_buffer must be in (0, 1]")
	}
	if a.CheckInterval.Duration <= 0 {
		errs = append(errs, "arbitrage: check_interval must be > 0")
	}
	if a.Workers < 1 {
		errs = append(errs, "arbitrage: workers must be >= 1")
	}
	if a.CollectTimeout.Duration <= 0 {
		errs = append(errs, "arbitrage: collect_timeout must be > 0")
	}
	if !a.AnomalyThreshold.IsPositive() {
		errs = append(errs, "arbitrage: anomaly_threshold must be > 0")
	}

	// Trading
	if strings.ToLower(c.Mode) == "trade" {
		if !c.Trading.Budget.IsPositive() {
			errs = append(errs, "trading: budget must be > 0")
		}
		for asset, b := range c.Trading.Budgets {
			if !b.IsPositive() {
				errs = append(errs, fmt.Sprintf("trading: budgets.%s must be > 0", asset))
			}
		}
		if c.Trading.Timeout.Duration <= 0 {
			errs = append(errs, "trading: timeout must be > 0")
		}
		if c.Trading.WSFailureThreshold < 1 {
			errs = append(errs, "trading: ws_failure_threshold must be >= 1")
		}
		if c.Trading.DistributedLock && c.Redis.Addr == "" {
			errs = append(errs, "trading: distributed_lock requires redis.addr")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.Journal.Dir == "" {
			errs = append(errs, "s3: archiving requires journal.dir")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
