package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AMMARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AMMARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "AMMARB_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.SafeAddress, "AMMARB_WALLET_SAFE_ADDRESS")
	setStr(&cfg.Wallet.EncryptedKeyPath, "AMMARB_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "AMMARB_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "AMMARB_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "AMMARB_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "AMMARB_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "AMMARB_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "AMMARB_POLYMARKET_SIGNATURE_TYPE")
	setStr(&cfg.Polymarket.ApiKey, "AMMARB_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.ApiSecret, "AMMARB_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.ApiPassphrase, "AMMARB_POLYMARKET_API_PASSPHRASE")

	// ── Bodega ──
	setBool(&cfg.Bodega.Enabled, "AMMARB_BODEGA_ENABLED")
	setStr(&cfg.Bodega.BaseURL, "AMMARB_BODEGA_BASE_URL")
	setStr(&cfg.Bodega.ApiKey, "AMMARB_BODEGA_API_KEY")
	setStr(&cfg.Bodega.Currency, "AMMARB_BODEGA_CURRENCY")
	setFloat64(&cfg.Bodega.FXFallback, "AMMARB_BODEGA_FX_FALLBACK")
	setFloat64(&cfg.Bodega.FeeRate, "AMMARB_BODEGA_FEE_RATE")

	// ── Myriad ──
	setBool(&cfg.Myriad.Enabled, "AMMARB_MYRIAD_ENABLED")
	setStr(&cfg.Myriad.BaseURL, "AMMARB_MYRIAD_BASE_URL")
	setStr(&cfg.Myriad.ApiKey, "AMMARB_MYRIAD_API_KEY")
	setStr(&cfg.Myriad.Currency, "AMMARB_MYRIAD_CURRENCY")
	setStr(&cfg.Myriad.NetworkID, "AMMARB_MYRIAD_NETWORK_ID")
	setStr(&cfg.Myriad.LandID, "AMMARB_MYRIAD_LAND_ID")
	setFloat64(&cfg.Myriad.FeeRate, "AMMARB_MYRIAD_FEE_RATE")
	setStr(&cfg.Myriad.ChainRPC, "AMMARB_MYRIAD_CHAIN_RPC")
	setStr(&cfg.Myriad.PrivateKey, "AMMARB_MYRIAD_PRIVATE_KEY")

	// ── Coingecko ──
	setStr(&cfg.Coingecko.BaseURL, "AMMARB_COINGECKO_BASE_URL")
	setStr(&cfg.Coingecko.ApiKey, "AMMARB_COINGECKO_API_KEY")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "AMMARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "AMMARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AMMARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AMMARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AMMARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AMMARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AMMARB_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AMMARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AMMARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AMMARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "AMMARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AMMARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AMMARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AMMARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AMMARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AMMARB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "AMMARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AMMARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "AMMARB_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "AMMARB_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "AMMARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AMMARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AMMARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AMMARB_S3_FORCE_PATH_STYLE")
	setBool(&cfg.S3.ArchiveEnabled, "AMMARB_S3_ARCHIVE_ENABLED")

	// ── Detector ──
	setFloat64(&cfg.Detector.MinProfitUSD, "AMMARB_DETECTOR_MIN_PROFIT_USD")
	setFloat64(&cfg.Detector.MinROI, "AMMARB_DETECTOR_MIN_ROI")
	setFloat64(&cfg.Detector.MinAPY, "AMMARB_DETECTOR_MIN_APY")
	setDuration(&cfg.Detector.FXCacheTTL, "AMMARB_DETECTOR_FX_CACHE_TTL")
	setDuration(&cfg.Detector.PositionCacheTTL, "AMMARB_DETECTOR_POSITION_CACHE_TTL")

	// ── Executor ──
	setBool(&cfg.Executor.Enabled, "AMMARB_EXECUTOR_ENABLED")
	setStr(&cfg.Executor.Mode, "AMMARB_EXECUTOR_MODE")
	setFloat64(&cfg.Executor.MaxTradeUSD, "AMMARB_EXECUTOR_MAX_TRADE_USD")
	setFloat64(&cfg.Executor.MaxDailyLossUSD, "AMMARB_EXECUTOR_MAX_DAILY_LOSS_USD")
	setDuration(&cfg.Executor.Cooldown, "AMMARB_EXECUTOR_COOLDOWN")
	setDuration(&cfg.Executor.LockTTL, "AMMARB_EXECUTOR_LOCK_TTL")
	setDuration(&cfg.Executor.PopTimeout, "AMMARB_EXECUTOR_POP_TIMEOUT")
	setFloat64(&cfg.Executor.MaxPriceDriftPc, "AMMARB_EXECUTOR_MAX_PRICE_DRIFT_PC")

	// ── Scheduler ──
	setDuration(&cfg.Scheduler.HighHorizon, "AMMARB_SCHEDULER_HIGH_HORIZON")
	setDuration(&cfg.Scheduler.HighInterval, "AMMARB_SCHEDULER_HIGH_INTERVAL")
	setInt(&cfg.Scheduler.HighSegments, "AMMARB_SCHEDULER_HIGH_SEGMENTS")
	setDuration(&cfg.Scheduler.NormalInterval, "AMMARB_SCHEDULER_NORMAL_INTERVAL")
	setInt(&cfg.Scheduler.NormalSegments, "AMMARB_SCHEDULER_NORMAL_SEGMENTS")
	setDuration(&cfg.Scheduler.Repartition, "AMMARB_SCHEDULER_REPARTITION")
	setDuration(&cfg.Scheduler.MisfireGrace, "AMMARB_SCHEDULER_MISFIRE_GRACE")

	// ── Matcher ──
	setBool(&cfg.Matcher.Enabled, "AMMARB_MATCHER_ENABLED")
	setFloat64(&cfg.Matcher.Cutoff, "AMMARB_MATCHER_CUTOFF")
	setDuration(&cfg.Matcher.Interval, "AMMARB_MATCHER_INTERVAL")
	setInt(&cfg.Matcher.MaxProposals, "AMMARB_MATCHER_MAX_PROPOSALS")

	// ── Activity ──
	setBool(&cfg.Activity.Enabled, "AMMARB_ACTIVITY_ENABLED")
	setFloat64(&cfg.Activity.MinNotionalUSD, "AMMARB_ACTIVITY_MIN_NOTIONAL_USD")
	setInt(&cfg.Activity.DedupWindow, "AMMARB_ACTIVITY_DEDUP_WINDOW")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "AMMARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "AMMARB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AMMARB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.ApiToken, "AMMARB_SERVER_API_TOKEN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "AMMARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AMMARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "AMMARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "AMMARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "AMMARB_MODE")
	setStr(&cfg.LogLevel, "AMMARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
