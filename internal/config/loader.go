package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PREDICTBOT_"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PREDICTBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
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

// applyEnvOverrides reads well-known PREDICTBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "PREDICTBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "PREDICTBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "PREDICTBOT_WALLET_KEY_PASSWORD")

	// ── Ledger ──
	setStr(&cfg.Ledger.Backend, "PREDICTBOT_LEDGER_BACKEND")
	setStr(&cfg.Ledger.Owner, "PREDICTBOT_LEDGER_OWNER")
	setStr(&cfg.Ledger.CharityAddress, "PREDICTBOT_LEDGER_CHARITY_ADDRESS")
	setStr(&cfg.Ledger.MaintenanceAddress, "PREDICTBOT_LEDGER_MAINTENANCE_ADDRESS")
	setUint64(&cfg.Ledger.CharityFeePercentage, "PREDICTBOT_LEDGER_CHARITY_FEE_PERCENTAGE")
	setUint64(&cfg.Ledger.MaintenanceFeePercentage, "PREDICTBOT_LEDGER_MAINTENANCE_FEE_PERCENTAGE")
	setUint64(&cfg.Ledger.RecoveryPercentage, "PREDICTBOT_LEDGER_RECOVERY_PERCENTAGE")
	setDuration(&cfg.Ledger.ChallengeWindow, "PREDICTBOT_LEDGER_CHALLENGE_WINDOW")
	setBool(&cfg.Ledger.OpenCreation, "PREDICTBOT_LEDGER_OPEN_CREATION")
	setStr(&cfg.Ledger.InitialReserve, "PREDICTBOT_LEDGER_INITIAL_RESERVE")
	setDuration(&cfg.Ledger.PredictionCacheTTL, "PREDICTBOT_LEDGER_PREDICTION_CACHE_TTL")
	setUint64(&cfg.Ledger.GasMultiplierPct, "PREDICTBOT_LEDGER_GAS_MULTIPLIER_PCT")
	setDuration(&cfg.Ledger.ReceiptPoll, "PREDICTBOT_LEDGER_RECEIPT_POLL")
	setUint64(&cfg.Ledger.MaxLogRange, "PREDICTBOT_LEDGER_MAX_LOG_RANGE")

	// ── Chains ── (per configured key, e.g. PREDICTBOT_CHAINS_BASE_RPC_URL)
	for i := range cfg.Chains {
		ch := &cfg.Chains[i]
		prefix := EnvPrefix + "CHAINS_" + strings.ToUpper(strings.TrimSpace(ch.Key)) + "_"
		setStr(&ch.RPCURL, prefix+"RPC_URL")
		setStr(&ch.ContractAddress, prefix+"CONTRACT_ADDRESS")
		setUint64(&ch.StartBlock, prefix+"START_BLOCK")
	}

	// ── Bot ──
	setStr(&cfg.Bot.Extractor, "PREDICTBOT_BOT_EXTRACTOR")
	setDuration(&cfg.Bot.DraftTTL, "PREDICTBOT_BOT_DRAFT_TTL")
	setDuration(&cfg.Bot.DedupTTL, "PREDICTBOT_BOT_DEDUP_TTL")
	setBool(&cfg.Bot.ResolveEnabled, "PREDICTBOT_BOT_RESOLVE_ENABLED")
	setDuration(&cfg.Bot.ResolveInterval, "PREDICTBOT_BOT_RESOLVE_INTERVAL")
	setInt(&cfg.Bot.ResolveConcurrency, "PREDICTBOT_BOT_RESOLVE_CONCURRENCY")
	setDuration(&cfg.Bot.ResolveLockTTL, "PREDICTBOT_BOT_RESOLVE_LOCK_TTL")
	setStringSlice(&cfg.Bot.ResolveChains, "PREDICTBOT_BOT_RESOLVE_CHAINS")
	setDuration(&cfg.Bot.ChainHeadCache, "PREDICTBOT_BOT_CHAIN_HEAD_CACHE")

	// ── LLM ──
	setStr(&cfg.LLM.BaseURL, "PREDICTBOT_LLM_BASE_URL")
	setStr(&cfg.LLM.APIKey, "PREDICTBOT_LLM_API_KEY")
	setStr(&cfg.LLM.Model, "PREDICTBOT_LLM_MODEL")
	setFloat64(&cfg.LLM.Temperature, "PREDICTBOT_LLM_TEMPERATURE")
	setDuration(&cfg.LLM.Timeout, "PREDICTBOT_LLM_TIMEOUT")
	setInt(&cfg.LLM.RateLimit, "PREDICTBOT_LLM_RATE_LIMIT")
	setDuration(&cfg.LLM.RateWindow, "PREDICTBOT_LLM_RATE_WINDOW")

	// ── Sweat ──
	setStr(&cfg.Sweat.Verifier, "PREDICTBOT_SWEAT_VERIFIER")
	setFloat64(&cfg.Sweat.MinConfidence, "PREDICTBOT_SWEAT_MIN_CONFIDENCE")
	setDuration(&cfg.Sweat.VerifyTimeout, "PREDICTBOT_SWEAT_VERIFY_TIMEOUT")
	setDuration(&cfg.Sweat.LockTTL, "PREDICTBOT_SWEAT_LOCK_TTL")

	// ── Supabase ──
	setBool(&cfg.Supabase.Enabled, "PREDICTBOT_SUPABASE_ENABLED")
	setStr(&cfg.Supabase.DSN, "PREDICTBOT_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "PREDICTBOT_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "PREDICTBOT_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "PREDICTBOT_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "PREDICTBOT_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "PREDICTBOT_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "PREDICTBOT_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "PREDICTBOT_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "PREDICTBOT_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "PREDICTBOT_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "PREDICTBOT_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PREDICTBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PREDICTBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDICTBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDICTBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDICTBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDICTBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDICTBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "PREDICTBOT_REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PREDICTBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PREDICTBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDICTBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDICTBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PREDICTBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDICTBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PREDICTBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PREDICTBOT_S3_FORCE_PATH_STYLE")

	// ── Pipeline ──
	setBool(&cfg.Pipeline.Enabled, "PREDICTBOT_PIPELINE_ENABLED")
	setDuration(&cfg.Pipeline.RelayInterval, "PREDICTBOT_PIPELINE_RELAY_INTERVAL")
	setInt(&cfg.Pipeline.ArchiveBatch, "PREDICTBOT_PIPELINE_ARCHIVE_BATCH")
	setInt(&cfg.Pipeline.ArchiveRetentionDays, "PREDICTBOT_PIPELINE_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Pipeline.ArchiveCron, "PREDICTBOT_PIPELINE_ARCHIVE_CRON")

	// ── Server ──
	setInt(&cfg.Server.Port, "PREDICTBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PREDICTBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PREDICTBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "PREDICTBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PREDICTBOT_SERVER_RATE_WINDOW")
	setStr(&cfg.Server.WebhookSecret, "PREDICTBOT_SERVER_WEBHOOK_SECRET")
	setDuration(&cfg.Server.WebhookTolerance, "PREDICTBOT_SERVER_WEBHOOK_TOLERANCE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PREDICTBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PREDICTBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PREDICTBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PREDICTBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PREDICTBOT_MODE")
	setStr(&cfg.DefaultChain, "PREDICTBOT_DEFAULT_CHAIN")
	setStr(&cfg.LogLevel, "PREDICTBOT_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
