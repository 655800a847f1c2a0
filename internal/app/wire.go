package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/ammarbot/internal/blob/s3"
	"github.com/alanyoungcy/ammarbot/internal/cache/redis"
	"github.com/alanyoungcy/ammarbot/internal/config"
	"github.com/alanyoungcy/ammarbot/internal/crypto"
	"github.com/alanyoungcy/ammarbot/internal/domain"
	"github.com/alanyoungcy/ammarbot/internal/executor"
	"github.com/alanyoungcy/ammarbot/internal/matching"
	"github.com/alanyoungcy/ammarbot/internal/notify"
	"github.com/alanyoungcy/ammarbot/internal/platform/bodega"
	"github.com/alanyoungcy/ammarbot/internal/platform/chain"
	"github.com/alanyoungcy/ammarbot/internal/platform/coingecko"
	"github.com/alanyoungcy/ammarbot/internal/platform/myriad"
	"github.com/alanyoungcy/ammarbot/internal/platform/polymarket"
	"github.com/alanyoungcy/ammarbot/internal/store/postgres"
)

// Dependencies bundles every concrete collaborator the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function. Fields are nil when the configured mode does not need them.
type Dependencies struct {
	// Stores (Postgres, present in every mode)
	Pairs  domain.PairStore
	Opps   domain.OpportunityStore
	AppCfg domain.AppConfigStore
	Audit  domain.AuditStore

	// Cross-process coordination (Redis, detection and execution modes)
	Queue    domain.OpportunityQueue
	Lock     domain.ExecutionLock
	Cooldown domain.CooldownStore

	// Order-book venue
	Clob   *polymarket.ClobClient
	Gamma  *polymarket.GammaClient
	Stream *polymarket.WSClient

	// AMM venues. Feeds are the raw, uncached clients; detection wraps
	// them in a TTL cache, execution reads them directly.
	Feeds      map[domain.Venue]domain.AMMFeed
	Catalogues []matching.AMMCatalogue
	Rates      domain.RateFeed

	// Live execution (nil outside live execute/full)
	Traders  map[domain.Venue]executor.AMMTrader
	Balances *chain.Balances

	// Notifications and archival
	Notifier *notify.Service
	Archiver *s3blob.Archiver
}

// needsRedis reports whether mode uses the queue, lock, or cooldowns.
func needsRedis(mode string) bool {
	switch mode {
	case "detect", "execute", "full":
		return true
	default:
		return false
	}
}

// needsArchive reports whether mode produces opportunity history worth
// archiving. The archiver follows the detector so a split deployment
// archives once, from the detect process.
func needsArchive(mode string) bool {
	switch mode {
	case "detect", "full":
		return true
	default:
		return false
	}
}

// liveExecution reports whether real orders can go out: an enabled
// executor past dry_run, in a mode that runs it.
func liveExecution(cfg *config.Config) bool {
	mode := strings.ToLower(cfg.Mode)
	if mode != "execute" && mode != "full" {
		return false
	}
	return cfg.Executor.Enabled && cfg.Executor.Mode != "dry_run"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (every mode persists pairs and history) ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Pairs = postgres.NewPairStore(pool)
	deps.Opps = postgres.NewOpportunityStore(pool)
	deps.AppCfg = postgres.NewConfigStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)

	// --- Redis (queue, lock, cooldowns) ---
	if needsRedis(mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Queue = redis.NewOpportunityQueue(redisClient)
		deps.Lock = redis.NewExecutionLock(redisClient)
		deps.Cooldown = redis.NewCooldownStore(redisClient)
	}

	// --- S3 archive ---
	if cfg.S3.ArchiveEnabled && needsArchive(mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Opps, deps.Audit, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewService(senders, cfg.Notify.Events, logger)

	// --- AMM venues ---
	deps.Feeds = make(map[domain.Venue]domain.AMMFeed)
	if cfg.Bodega.Enabled {
		client := bodega.NewClient(bodega.Config{
			BaseURL:  cfg.Bodega.BaseURL,
			APIKey:   cfg.Bodega.ApiKey,
			Currency: cfg.Bodega.Currency,
			FeeRate:  cfg.Bodega.FeeRate,
		})
		deps.Feeds[domain.VenueBodega] = client
		deps.Catalogues = append(deps.Catalogues, client)
	}
	if cfg.Myriad.Enabled {
		client := myriad.NewClient(myriad.Config{
			BaseURL:   cfg.Myriad.BaseURL,
			APIKey:    cfg.Myriad.ApiKey,
			NetworkID: cfg.Myriad.NetworkID,
			LandID:    cfg.Myriad.LandID,
			FeeRate:   cfg.Myriad.FeeRate,
		})
		deps.Feeds[domain.VenueMyriad] = client
		deps.Catalogues = append(deps.Catalogues, client)
	}

	deps.Rates = coingecko.NewClient(coingecko.Config{
		BaseURL: cfg.Coingecko.BaseURL,
		APIKey:  cfg.Coingecko.ApiKey,
		IDMap:   cfg.Coingecko.IDMap,
	})

	// --- Order-book venue ---
	signer, err := walletSigner(cfg)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: wallet: %w", err)
	}

	var hmac *crypto.HMACAuth
	if cfg.Polymarket.ApiKey != "" {
		hmac = &crypto.HMACAuth{
			Key:        cfg.Polymarket.ApiKey,
			Secret:     cfg.Polymarket.ApiSecret,
			Passphrase: cfg.Polymarket.ApiPassphrase,
		}
	}

	deps.Clob = polymarket.NewClobClient(polymarket.ClobConfig{
		BaseURL:       cfg.Polymarket.ClobHost,
		SignatureType: cfg.Polymarket.SignatureType,
		Funder:        cfg.Wallet.SafeAddress,
	}, signer, hmac)

	// A signer without configured L2 credentials can derive its own.
	if signer != nil && hmac == nil {
		if err := deps.Clob.DeriveAPIKey(ctx); err != nil {
			logger.Warn("wire: derive API key failed; authenticated CLOB calls will be rejected",
				slog.String("error", err.Error()),
			)
		}
	}

	deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost)
	deps.Stream = polymarket.NewWSClient(cfg.Polymarket.WsHost, logger)

	// --- On-chain execution ---
	if liveExecution(cfg) {
		if signer == nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: executor mode %s requires a wallet key", cfg.Executor.Mode)
		}
		walletKey, err := crypto.LoadKey(keyConfig(cfg))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
		}

		polygon, err := chain.Dial(ctx, cfg.Executor.PolygonRPC, walletKey, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: polygon rpc: %w", err)
		}
		closers = append(closers, polygon.Close)

		deps.Traders = make(map[domain.Venue]executor.AMMTrader)
		venues := make(map[domain.Venue]chain.VenueFunds)

		if cfg.Myriad.Enabled && cfg.Myriad.ChainRPC != "" && cfg.Myriad.PrivateKey != "" {
			abstract, err := chain.Dial(ctx, cfg.Myriad.ChainRPC, cfg.Myriad.PrivateKey, logger)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: abstract rpc: %w", err)
			}
			closers = append(closers, abstract.Close)

			deps.Traders[domain.VenueMyriad] = myriad.NewTrader(abstract)
			venues[domain.VenueMyriad] = chain.VenueFunds{
				Client:     abstract,
				Collateral: chain.AbstractUSDC,
			}
		}

		deps.Balances = chain.NewBalances(polygon, chain.PolygonUSDC, venues)
	}

	return deps, cleanup, nil
}

// keyConfig maps the wallet section onto the key loader's input.
func keyConfig(cfg *config.Config) crypto.KeyConfig {
	return crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	}
}

// walletSigner builds the order signer when a wallet key is configured.
// No key means read-only CLOB access, which every non-live mode accepts.
func walletSigner(cfg *config.Config) (*crypto.Signer, error) {
	if cfg.Wallet.PrivateKey == "" && cfg.Wallet.EncryptedKeyPath == "" {
		return nil, nil
	}
	key, err := crypto.LoadKey(keyConfig(cfg))
	if err != nil {
		return nil, err
	}
	return crypto.NewSigner(key, cfg.Polymarket.ChainID)
}
