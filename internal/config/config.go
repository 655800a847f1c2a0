// Package config defines the top-level configuration for the arbitrage bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by AMMARB_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Bodega     BodegaConfig     `toml:"bodega"`
	Myriad     MyriadConfig     `toml:"myriad"`
	Coingecko  CoingeckoConfig  `toml:"coingecko"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Detector   DetectorConfig   `toml:"detector"`
	Executor   ExecutorConfig   `toml:"executor"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Matcher    MatcherConfig    `toml:"matcher"`
	Activity   ActivityConfig   `toml:"activity"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials for CLOB order signing.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	SafeAddress      string `toml:"safe_address"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket API endpoints, chain parameters, and
// L2 API credentials.
type PolymarketConfig struct {
	ClobHost      string `toml:"clob_host"`
	GammaHost     string `toml:"gamma_host"`
	WsHost        string `toml:"ws_host"`
	ChainID       int    `toml:"chain_id"`
	SignatureType int    `toml:"signature_type"`
	ApiKey        string `toml:"api_key"`
	ApiSecret     string `toml:"api_secret"`
	ApiPassphrase string `toml:"api_passphrase"`
}

// BodegaConfig holds the Cardano AMM venue parameters. Markets settle in
// ADA, so a USD conversion applies to every cost.
type BodegaConfig struct {
	Enabled    bool    `toml:"enabled"`
	BaseURL    string  `toml:"base_url"`
	ApiKey     string  `toml:"api_key"`
	Currency   string  `toml:"currency"`
	FXFallback float64 `toml:"fx_fallback"`
	FeeRate    float64 `toml:"fee_rate"`
}

// MyriadConfig holds the USD-stable AMM venue parameters. Positions are
// bought on-chain, so live execution additionally needs the Abstract RPC
// endpoint and a funded signing key.
type MyriadConfig struct {
	Enabled    bool    `toml:"enabled"`
	BaseURL    string  `toml:"base_url"`
	ApiKey     string  `toml:"api_key"`
	Currency   string  `toml:"currency"`
	NetworkID  string  `toml:"network_id"`
	LandID     string  `toml:"land_id"`
	FeeRate    float64 `toml:"fee_rate"`
	ChainRPC   string  `toml:"chain_rpc"`
	PrivateKey string  `toml:"private_key"`
}

// CoingeckoConfig holds the FX reference-rate feed parameters. IDMap
// translates settlement currency codes to CoinGecko asset IDs. The rate
// cache TTL is a detector tunable (detector.fx_cache_ttl).
type CoingeckoConfig struct {
	BaseURL string            `toml:"base_url"`
	ApiKey  string            `toml:"api_key"`
	IDMap   map[string]string `toml:"id_map"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the
// opportunity archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	ArchiveEnabled bool   `toml:"archive_enabled"`
}

// DetectorConfig holds the opportunity thresholds and cache tunables.
type DetectorConfig struct {
	MinProfitUSD     float64  `toml:"min_profit_usd"`
	MinROI           float64  `toml:"min_roi"`
	MinAPY           float64  `toml:"min_apy"`
	FXCacheTTL       duration `toml:"fx_cache_ttl"`
	PositionCacheTTL duration `toml:"position_cache_ttl"`
}

// ExecutorConfig holds trade execution parameters. Mode gates how much
// real money can move: dry_run logs intended trades, limited_live caps
// each trade at MaxTradeUSD, live trades the detected size.
type ExecutorConfig struct {
	Enabled         bool     `toml:"enabled"`
	Mode            string   `toml:"mode"`
	MaxTradeUSD     float64  `toml:"max_trade_usd"`
	MaxDailyLossUSD float64  `toml:"max_daily_loss_usd"`
	Cooldown        duration `toml:"cooldown"`
	LockTTL         duration `toml:"lock_ttl"`
	PopTimeout      duration `toml:"pop_timeout"`
	MaxPriceDriftPc float64  `toml:"max_price_drift_pc"`
	MaxAge          duration `toml:"max_age"`
	ExpiryBuffer    duration `toml:"expiry_buffer"`
	MinEthBalance   float64  `toml:"min_eth_balance"`
	PolygonRPC      string   `toml:"polygon_rpc"`
}

// SchedulerConfig holds the tiered polling parameters.
type SchedulerConfig struct {
	HighHorizon    duration `toml:"high_horizon"`
	HighInterval   duration `toml:"high_interval"`
	HighSegments   int      `toml:"high_segments"`
	NormalInterval duration `toml:"normal_interval"`
	NormalSegments int      `toml:"normal_segments"`
	Repartition    duration `toml:"repartition"`
	MisfireGrace   duration `toml:"misfire_grace"`
}

// MatcherConfig holds the automatic market-matching parameters.
type MatcherConfig struct {
	Enabled      bool     `toml:"enabled"`
	Cutoff       float64  `toml:"cutoff"`
	Interval     duration `toml:"interval"`
	MaxProposals int      `toml:"max_proposals"`
}

// ActivityConfig holds the large-trade monitor parameters.
type ActivityConfig struct {
	Enabled        bool    `toml:"enabled"`
	MinNotionalUSD float64 `toml:"min_notional_usd"`
	DedupWindow    int     `toml:"dedup_window"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	ApiToken    string   `toml:"api_token"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:      "https://clob.polymarket.com",
			GammaHost:     "https://gamma-api.polymarket.com",
			WsHost:        "wss://ws-subscriptions-clob.polymarket.com",
			ChainID:       137,
			SignatureType: 2,
		},
		Bodega: BodegaConfig{
			Enabled:    true,
			BaseURL:    "https://api.bodegamarket.io",
			Currency:   "ADA",
			FXFallback: 0.60,
			FeeRate:    0.02,
		},
		Myriad: MyriadConfig{
			Enabled:   false,
			BaseURL:   "https://api.myriad.markets",
			Currency:  "USD",
			NetworkID: "274133",
			LandID:    "myriad-szn2-usdc-v33",
			FeeRate:   0.03,
		},
		Coingecko: CoingeckoConfig{
			BaseURL: "https://api.coingecko.com/api/v3",
			IDMap: map[string]string{
				"ADA": "cardano",
			},
		},
		Postgres: PostgresConfig{
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
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "ammarbot-data",
			Prefix:         "opportunities",
			UseSSL:         false,
			ForcePathStyle: true,
			ArchiveEnabled: false,
		},
		Detector: DetectorConfig{
			MinProfitUSD:     5.0,
			MinROI:           0.005,
			MinAPY:           0,
			FXCacheTTL:       duration{time.Minute},
			PositionCacheTTL: duration{30 * time.Second},
		},
		Executor: ExecutorConfig{
			Enabled:         false,
			Mode:            "dry_run",
			MaxTradeUSD:     250.0,
			MaxDailyLossUSD: 100.0,
			Cooldown:        duration{5 * time.Minute},
			LockTTL:         duration{30 * time.Second},
			PopTimeout:      duration{5 * time.Second},
			MaxPriceDriftPc: 1.0,
			MaxAge:          duration{2 * time.Minute},
			ExpiryBuffer:    duration{5 * time.Minute},
			MinEthBalance:   0.0003,
			PolygonRPC:      "https://polygon-rpc.com",
		},
		Scheduler: SchedulerConfig{
			HighHorizon:    duration{10 * time.Hour},
			HighInterval:   duration{time.Minute},
			HighSegments:   3,
			NormalInterval: duration{5 * time.Minute},
			NormalSegments: 3,
			Repartition:    duration{5 * time.Minute},
			MisfireGrace:   duration{30 * time.Second},
		},
		Matcher: MatcherConfig{
			Enabled:      false,
			Cutoff:       0.82,
			Interval:     duration{6 * time.Hour},
			MaxProposals: 25,
		},
		Activity: ActivityConfig{
			Enabled:        false,
			MinNotionalUSD: 500.0,
			DedupWindow:    2000,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity", "execution", "large_trade", "pair_proposed", "error"},
		},
		Mode:     "detect",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"detect":  true,
	"execute": true,
	"monitor": true,
	"match":   true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validExecModes enumerates the accepted values for Executor.Mode.
var validExecModes = map[string]bool{
	"dry_run":      true,
	"limited_live": true,
	"live":         true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: detect, execute, monitor, match, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// At least one AMM venue must be enabled for detection to do anything.
	if c.Mode == "detect" || c.Mode == "full" {
		if !c.Bodega.Enabled && !c.Myriad.Enabled {
			errs = append(errs, "venues: at least one of bodega or myriad must be enabled for mode "+c.Mode)
		}
	}
	if c.Bodega.Enabled {
		if c.Bodega.BaseURL == "" {
			errs = append(errs, "bodega: base_url must not be empty")
		}
		if c.Bodega.Currency != "USD" && c.Bodega.FXFallback <= 0 {
			errs = append(errs, "bodega: fx_fallback must be > 0 for a non-USD settlement currency")
		}
		if c.Bodega.FeeRate < 0 || c.Bodega.FeeRate >= 1 {
			errs = append(errs, fmt.Sprintf("bodega: fee_rate must be in [0, 1), got %v", c.Bodega.FeeRate))
		}
	}
	if c.Myriad.Enabled {
		if c.Myriad.BaseURL == "" {
			errs = append(errs, "myriad: base_url must not be empty")
		}
		if c.Myriad.FeeRate < 0 || c.Myriad.FeeRate >= 1 {
			errs = append(errs, fmt.Sprintf("myriad: fee_rate must be in [0, 1), got %v", c.Myriad.FeeRate))
		}
	}

	// Polymarket endpoints
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.SignatureType != 1 && c.Polymarket.SignatureType != 2 {
		errs = append(errs, fmt.Sprintf("polymarket: signature_type must be 1 (EOA) or 2 (Safe), got %d", c.Polymarket.SignatureType))
	}

	// L2 credentials: all three fields must be set together, or all empty.
	pk := c.Polymarket.ApiKey != ""
	ps := c.Polymarket.ApiSecret != ""
	pp := c.Polymarket.ApiPassphrase != ""
	if pk || ps || pp {
		if !(pk && ps && pp) {
			errs = append(errs, "polymarket: api_key, api_secret, and api_passphrase must all be set together")
		}
	}

	// Executor checks: wallet and credentials matter once real orders can go out.
	if c.Executor.Enabled {
		if !validExecModes[c.Executor.Mode] {
			errs = append(errs, fmt.Sprintf("executor: unknown mode %q (valid: dry_run, limited_live, live)", c.Executor.Mode))
		}
		if c.Executor.Mode != "dry_run" {
			if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
				errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for executor mode "+c.Executor.Mode)
			}
			if !pk {
				errs = append(errs, "polymarket: api credentials are required for executor mode "+c.Executor.Mode)
			}
		}
		if c.Executor.MaxTradeUSD <= 0 {
			errs = append(errs, "executor: max_trade_usd must be > 0 when enabled")
		}
		if c.Executor.MaxDailyLossUSD <= 0 {
			errs = append(errs, "executor: max_daily_loss_usd must be > 0 when enabled")
		}
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Postgres
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
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.ArchiveEnabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
	}

	// Detector
	if c.Detector.MinProfitUSD < 0 {
		errs = append(errs, "detector: min_profit_usd must be >= 0")
	}
	if c.Detector.MinROI < 0 {
		errs = append(errs, "detector: min_roi must be >= 0")
	}
	if c.Detector.FXCacheTTL.Duration <= 0 {
		errs = append(errs, "detector: fx_cache_ttl must be > 0")
	}

	// Scheduler
	if c.Scheduler.HighSegments < 1 {
		errs = append(errs, "scheduler: high_segments must be >= 1")
	}
	if c.Scheduler.NormalSegments < 1 {
		errs = append(errs, "scheduler: normal_segments must be >= 1")
	}
	if c.Scheduler.HighInterval.Duration <= 0 {
		errs = append(errs, "scheduler: high_interval must be > 0")
	}
	if c.Scheduler.NormalInterval.Duration <= 0 {
		errs = append(errs, "scheduler: normal_interval must be > 0")
	}
	if c.Scheduler.Repartition.Duration <= 0 {
		errs = append(errs, "scheduler: repartition must be > 0")
	}

	// Matcher
	if c.Matcher.Enabled {
		if c.Matcher.Cutoff <= 0 || c.Matcher.Cutoff > 1 {
			errs = append(errs, fmt.Sprintf("matcher: cutoff must be in (0, 1], got %v", c.Matcher.Cutoff))
		}
	}

	// Activity
	if c.Activity.Enabled {
		if c.Activity.MinNotionalUSD < 0 {
			errs = append(errs, "activity: min_notional_usd must be >= 0")
		}
		if c.Activity.DedupWindow < 1 {
			errs = append(errs, "activity: dedup_window must be >= 1")
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
