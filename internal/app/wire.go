package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/imperfectform/predictbot/internal/blob/s3"
	"github.com/imperfectform/predictbot/internal/cache/memory"
	"github.com/imperfectform/predictbot/internal/cache/redis"
	"github.com/imperfectform/predictbot/internal/chain"
	"github.com/imperfectform/predictbot/internal/config"
	"github.com/imperfectform/predictbot/internal/crypto"
	"github.com/imperfectform/predictbot/internal/domain"
	"github.com/imperfectform/predictbot/internal/ledger"
	"github.com/imperfectform/predictbot/internal/llm"
	"github.com/imperfectform/predictbot/internal/market"
	"github.com/imperfectform/predictbot/internal/notify"
	"github.com/imperfectform/predictbot/internal/oracle"
	"github.com/imperfectform/predictbot/internal/server/handler"
	"github.com/imperfectform/predictbot/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function. Optional stores are nil when their backend is disabled.
type Dependencies struct {
	// Ledger access
	Registry *chain.Registry
	Client   *market.Client
	Signer   *crypto.Signer
	Ledgers  map[string]*ledger.Ledger // local backend only
	Heads    map[string]oracle.HeadReader

	// Stores
	AuditStore      domain.AuditStore
	PredictionIndex domain.PredictionIndex
	WorkoutStore    domain.WorkoutStore
	ChallengeStore  domain.ChallengeStore

	// Caches
	Drafts      domain.DraftStore
	Dedup       domain.Deduper
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	LLM      *llm.Client
	Notifier *notify.Notifier

	// Checks are the dependencies the health endpoint pings.
	Checks map[string]handler.Pinger
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Checks: make(map[string]handler.Pinger)}

	// --- Signer ---
	signer, err := loadSigner(cfg.Wallet, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: signer: %w", err))
	}
	deps.Signer = signer

	// --- PostgreSQL ---
	if cfg.Supabase.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.PredictionIndex = postgres.NewPredictionIndex(pool)
		deps.WorkoutStore = postgres.NewWorkoutStore(pool)
		deps.ChallengeStore = postgres.NewChallengeStore(pool)
		deps.Checks["postgres"] = pgClient
	}

	// --- Caches: Redis, or in-process ---
	var predictionCache domain.PredictionCache
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		predictionCache = redis.NewPredictionCache(redisClient)
		deps.Drafts = redis.NewDraftStore(redisClient)
		deps.Dedup = redis.NewDeduper(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.LLM.RateLimit, cfg.LLM.RateWindow.Duration)
		deps.LockManager = redis.NewLockManager(redisClient, logger)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Checks["redis"] = redisClient
	} else {
		predictionCache = memory.NewPredictionCache(cfg.Ledger.PredictionCacheTTL.Duration, nil)
		deps.Drafts = memory.NewDraftStore(nil)
		deps.Dedup = memory.NewDeduper(nil)
		deps.RateLimiter = memory.NewRateLimiter(cfg.LLM.RateLimit, cfg.LLM.RateWindow.Duration, nil)
		deps.LockManager = memory.NewLockManager(nil)
		deps.SignalBus = memory.NewSignalBus()
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
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
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), reader, deps.AuditStore, nil)
		deps.Checks["s3"] = pingFunc(s3Client.Health)
	}

	// --- Chains and ledger backends ---
	registry, err := chain.NewRegistry(ChainDescriptors(cfg.Chains), cfg.DefaultChain)
	if err != nil {
		return fail(fmt.Errorf("wire: chains: %w", err))
	}
	deps.Registry = registry

	backends, heads, closeRPC, err := wireBackends(ctx, cfg, registry, signer, deps, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeRPC)
	deps.Heads = heads

	client, err := market.NewClient(registry, backends, predictionCache, logger)
	if err != nil {
		return fail(fmt.Errorf("wire: market client: %w", err))
	}
	deps.Client = client

	// --- LLM ---
	if cfg.Bot.Extractor == "llm" || cfg.Sweat.Verifier == "llm" {
		llmCfg := llm.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout.Duration,
		}
		if cfg.LLM.RateLimit > 0 {
			llmCfg.Limiter = deps.RateLimiter
		}
		deps.LLM, err = llm.New(llmCfg)
		if err != nil {
			return fail(fmt.Errorf("wire: llm: %w", err))
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// loadSigner resolves the bot key. Without key material it generates an
// ephemeral one, which only the local ledger accepts.
func loadSigner(w config.WalletConfig, logger *slog.Logger) (*crypto.Signer, error) {
	if w.PrivateKey == "" && w.EncryptedKeyPath == "" {
		s, err := crypto.GenerateSigner()
		if err != nil {
			return nil, err
		}
		logger.Warn("no wallet key configured, using an ephemeral signer", slog.String("address", s.Address().Hex()))
		return s, nil
	}
	return crypto.LoadSigner(crypto.KeyConfig{
		RawPrivateKey:    w.PrivateKey,
		EncryptedKeyPath: w.EncryptedKeyPath,
		KeyPassword:      w.KeyPassword,
	})
}

// ChainDescriptors merges configured chains over the built-in deployments.
// With no [[chains]] entries every built-in is served; otherwise only the
// listed keys are, each inheriting the built-in of the same key.
func ChainDescriptors(configured []config.ChainConfig) []chain.Descriptor {
	builtins := chain.Defaults()
	if len(configured) == 0 {
		return builtins
	}
	byKey := make(map[string]chain.Descriptor, len(builtins))
	for _, d := range builtins {
		byKey[d.Key] = d
	}
	out := make([]chain.Descriptor, 0, len(configured))
	for _, c := range configured {
		key := strings.ToLower(strings.TrimSpace(c.Key))
		d, ok := byKey[key]
		if !ok {
			d = chain.Descriptor{Key: key, Name: key}
		}
		if c.Name != "" {
			d.Name = c.Name
		}
		if c.RPCURL != "" {
			d.RPCURL = c.RPCURL
		}
		if c.ChainID != 0 {
			d.ChainID = c.ChainID
		}
		if c.ContractAddress != "" {
			d.ContractAddress = common.HexToAddress(c.ContractAddress)
		}
		if c.Symbol != "" {
			d.NativeCurrency.Symbol = c.Symbol
			if d.NativeCurrency.Name == "" {
				d.NativeCurrency.Name = c.Symbol
			}
		}
		if c.Decimals != 0 {
			d.NativeCurrency.Decimals = c.Decimals
		}
		if c.BlockExplorer != "" {
			d.BlockExplorer = c.BlockExplorer
		}
		if c.Testnet {
			d.Testnet = true
		}
		out = append(out, d)
	}
	return out
}

// wireBackends builds one market backend per chain. The local backend keeps
// an in-process ledger per chain; the evm backend dials each RPC. Chain
// oracles read block heights over RPC in both cases.
func wireBackends(
	ctx context.Context,
	cfg *config.Config,
	registry *chain.Registry,
	signer *crypto.Signer,
	deps *Dependencies,
	logger *slog.Logger,
) (map[string]market.Backend, map[string]oracle.HeadReader, func(), error) {
	backends := make(map[string]market.Backend)
	heads := make(map[string]oracle.HeadReader)
	var rpcClosers []func()
	closeAll := func() {
		for _, c := range rpcClosers {
			c()
		}
	}

	startBlocks := make(map[string]uint64, len(cfg.Chains))
	for _, c := range cfg.Chains {
		startBlocks[strings.ToLower(strings.TrimSpace(c.Key))] = c.StartBlock
	}

	if cfg.Ledger.Backend == "local" {
		deps.Ledgers = make(map[string]*ledger.Ledger)
	}
	for _, desc := range registry.All() {
		switch cfg.Ledger.Backend {
		case "evm":
			backend, rpc, err := market.DialEVM(ctx, desc, market.EVMOptions{
				GasMultiplierPct: cfg.Ledger.GasMultiplierPct,
				ReceiptPoll:      cfg.Ledger.ReceiptPoll.Duration,
				StartBlock:       startBlocks[desc.Key],
				MaxLogRange:      cfg.Ledger.MaxLogRange,
			}, logger)
			if err != nil {
				closeAll()
				return nil, nil, nil, fmt.Errorf("wire: chain %s: %w", desc.Key, err)
			}
			rpcClosers = append(rpcClosers, rpc.Close)
			backends[desc.Key] = backend
			heads[desc.Key] = rpc
		default:
			l, err := newLocalLedger(cfg.Ledger, signer.Address(), logger.With(slog.String("chain", desc.Key)))
			if err != nil {
				closeAll()
				return nil, nil, nil, fmt.Errorf("wire: chain %s: %w", desc.Key, err)
			}
			deps.Ledgers[desc.Key] = l
			backends[desc.Key] = market.NewLocalBackend(l)
			if desc.RPCURL != "" {
				rpc, err := dialHead(ctx, desc.RPCURL)
				if err != nil {
					logger.Warn("chain oracle disabled for network",
						slog.String("chain", desc.Key),
						slog.String("error", err.Error()),
					)
					continue
				}
				rpcClosers = append(rpcClosers, rpc.Close)
				heads[desc.Key] = rpc
			}
		}
	}
	return backends, heads, closeAll, nil
}

// newLocalLedger creates an in-process ledger owned by the configured owner,
// or by the bot when none is set, authorizes the bot, and funds the recovery
// reserve.
func newLocalLedger(lc config.LedgerConfig, bot common.Address, logger *slog.Logger) (*ledger.Ledger, error) {
	owner := bot
	if lc.Owner != "" {
		owner = common.HexToAddress(lc.Owner)
	}
	l, err := ledger.New(ledger.Config{
		Owner:                    owner,
		CharityAddress:           addressOr(lc.CharityAddress, owner),
		MaintenanceAddress:       addressOr(lc.MaintenanceAddress, owner),
		CharityFeePercentage:     lc.CharityFeePercentage,
		MaintenanceFeePercentage: lc.MaintenanceFeePercentage,
		ChallengeWindow:          lc.ChallengeWindow.Duration,
		RecoveryPercentage:       lc.RecoveryPercentage,
		OpenCreation:             lc.OpenCreation,
	}, logger)
	if err != nil {
		return nil, err
	}
	if owner != bot {
		if _, err := l.AuthorizeBot(owner, bot, true); err != nil {
			return nil, fmt.Errorf("authorize bot: %w", err)
		}
	}
	reserve, ok := new(big.Int).SetString(lc.InitialReserve, 10)
	if ok && reserve.Sign() > 0 {
		if _, err := l.Deposit(owner, reserve); err != nil {
			return nil, fmt.Errorf("deposit reserve: %w", err)
		}
		if _, err := l.FundRecoveryReserve(owner, reserve); err != nil {
			return nil, fmt.Errorf("fund reserve: %w", err)
		}
	}
	return l, nil
}

func addressOr(s string, fallback common.Address) common.Address {
	if s == "" {
		return fallback
	}
	return common.HexToAddress(s)
}

// dialHead opens a read-only RPC client for block heights.
func dialHead(ctx context.Context, url string) (*ethclient.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return ethclient.DialContext(ctx, url)
}
