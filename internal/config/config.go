// Package config defines the top-level configuration for predictbot and
// provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PREDICTBOT_* environment variables.
type Config struct {
	Wallet       WalletConfig   `toml:"wallet"`
	Ledger       LedgerConfig   `toml:"ledger"`
	Chains       []ChainConfig  `toml:"chains"`
	Bot          BotConfig      `toml:"bot"`
	LLM          LLMConfig      `toml:"llm"`
	Sweat        SweatConfig    `toml:"sweat"`
	Supabase     SupabaseConfig `toml:"supabase"`
	Redis        RedisConfig    `toml:"redis"`
	S3           S3Config       `toml:"s3"`
	Pipeline     PipelineConfig `toml:"pipeline"`
	Server       ServerConfig   `toml:"server"`
	Notify       NotifyConfig   `toml:"notify"`
	Mode         string         `toml:"mode"`
	DefaultChain string         `toml:"default_chain"`
	LogLevel     string         `toml:"log_level"`
}

// WalletConfig holds the bot account's key material.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// LedgerConfig selects the ledger backend and, for the in-process ledger,
// its deployment parameters.
type LedgerConfig struct {
	// Backend is "local" (in-process ledger) or "evm" (deployed contracts).
	Backend                  string   `toml:"backend"`
	Owner                    string   `toml:"owner"`
	CharityAddress           string   `toml:"charity_address"`
	MaintenanceAddress       string   `toml:"maintenance_address"`
	CharityFeePercentage     uint64   `toml:"charity_fee_percentage"`
	MaintenanceFeePercentage uint64   `toml:"maintenance_fee_percentage"`
	RecoveryPercentage       uint64   `toml:"recovery_percentage"`
	ChallengeWindow          duration `toml:"challenge_window"`
	OpenCreation             bool     `toml:"open_creation"`
	// InitialReserve funds the local recovery reserve at startup, in wei.
	InitialReserve     string   `toml:"initial_reserve"`
	PredictionCacheTTL duration `toml:"prediction_cache_ttl"`

	GasMultiplierPct uint64   `toml:"gas_multiplier_pct"`
	ReceiptPoll      duration `toml:"receipt_poll"`
	MaxLogRange      uint64   `toml:"max_log_range"`
}

// ChainConfig overrides or adds one deployment. Entries whose key matches a
// built-in chain only need the fields that differ.
type ChainConfig struct {
	Key             string `toml:"key"`
	Name            string `toml:"name"`
	RPCURL          string `toml:"rpc_url"`
	ChainID         uint64 `toml:"chain_id"`
	ContractAddress string `toml:"contract_address"`
	Symbol          string `toml:"symbol"`
	Decimals        int32  `toml:"decimals"`
	BlockExplorer   string `toml:"block_explorer"`
	Testnet         bool   `toml:"testnet"`
	StartBlock      uint64 `toml:"start_block"`
}

// BotConfig holds the conversational bot and auto-resolver parameters.
type BotConfig struct {
	// Extractor is "heuristic" or "llm".
	Extractor          string   `toml:"extractor"`
	DraftTTL           duration `toml:"draft_ttl"`
	DedupTTL           duration `toml:"dedup_ttl"`
	ResolveEnabled     bool     `toml:"resolve_enabled"`
	ResolveInterval    duration `toml:"resolve_interval"`
	ResolveConcurrency int      `toml:"resolve_concurrency"`
	ResolveLockTTL     duration `toml:"resolve_lock_ttl"`
	// ResolveChains limits the scan; empty means every configured chain.
	ResolveChains []string `toml:"resolve_chains"`
	// ChainHeadCache is how long a chain oracle reuses a block height.
	ChainHeadCache duration `toml:"chain_head_cache"`
}

// LLMConfig holds the chat-completions endpoint used by the llm extractor
// and verifier.
type LLMConfig struct {
	BaseURL     string   `toml:"base_url"`
	APIKey      string   `toml:"api_key"`
	Model       string   `toml:"model"`
	Temperature float64  `toml:"temperature"`
	Timeout     duration `toml:"timeout"`
	// RateLimit caps requests per RateWindow; 0 disables throttling.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// SweatConfig holds sweat-equity verification parameters.
type SweatConfig struct {
	// Verifier is "heuristic" or "llm".
	Verifier      string   `toml:"verifier"`
	MinConfidence float64  `toml:"min_confidence"`
	VerifyTimeout duration `toml:"verify_timeout"`
	LockTTL       duration `toml:"lock_ttl"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
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

// RedisConfig holds Redis connection parameters. When disabled, caches,
// locks, and the signal bus are in-process.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PipelineConfig holds the event relay and audit archive parameters.
type PipelineConfig struct {
	Enabled              bool     `toml:"enabled"`
	RelayInterval        duration `toml:"relay_interval"`
	ArchiveBatch         int      `toml:"archive_batch"`
	ArchiveRetentionDays int      `toml:"archive_retention_days"`
	ArchiveCron          string   `toml:"archive_cron"`
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
	// WebhookSecret, when set, signs bot webhook deliveries and exempts
	// them from the API key.
	WebhookSecret    string   `toml:"webhook_secret"`
	WebhookTolerance duration `toml:"webhook_tolerance"`
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
		Ledger: LedgerConfig{
			Backend:                  "local",
			CharityFeePercentage:     15,
			MaintenanceFeePercentage: 5,
			RecoveryPercentage:       80,
			ChallengeWindow:          duration{24 * time.Hour},
			InitialReserve:           "0",
			PredictionCacheTTL:       duration{30 * time.Second},
			GasMultiplierPct:         120,
			ReceiptPoll:              duration{2 * time.Second},
			MaxLogRange:              5000,
		},
		Bot: BotConfig{
			Extractor:          "heuristic",
			DraftTTL:           duration{30 * time.Minute},
			DedupTTL:           duration{10 * time.Minute},
			ResolveEnabled:     true,
			ResolveInterval:    duration{5 * time.Minute},
			ResolveConcurrency: 4,
			ResolveLockTTL:     duration{2 * time.Minute},
			ChainHeadCache:     duration{15 * time.Second},
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0.1,
			Timeout:     duration{30 * time.Second},
			RateLimit:   60,
			RateWindow:  duration{time.Minute},
		},
		Sweat: SweatConfig{
			Verifier:      "heuristic",
			MinConfidence: 0.7,
			VerifyTimeout: duration{45 * time.Second},
			LockTTL:       duration{2 * time.Minute},
		},
		Supabase: SupabaseConfig{
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
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "predictbot:",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "predictbot-data",
			ForcePathStyle: true,
		},
		Pipeline: PipelineConfig{
			Enabled:              true,
			RelayInterval:        duration{5 * time.Second},
			ArchiveBatch:         500,
			ArchiveRetentionDays: 90,
			ArchiveCron:          "0 3 1 * *",
		},
		Server: ServerConfig{
			Port:             8000,
			CORSOrigins:      []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:        120,
			RateWindow:       duration{time.Minute},
			WebhookTolerance: duration{5 * time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"prediction_created", "prediction_resolved", "resolution_failed", "challenge_verified"},
		},
		Mode:         "full",
		DefaultChain: "base",
		LogLevel:     "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":   true,
	"resolver": true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var (
	validBackends   = map[string]bool{"local": true, "evm": true}
	validExtractors = map[string]bool{"heuristic": true, "llm": true}
)

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, resolver, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet. The local ledger runs with an ephemeral key when none is set.
	if c.Ledger.Backend == "evm" && c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for the evm backend")
	}
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	errs = append(errs, c.validateLedger()...)
	errs = append(errs, c.validateChains()...)

	// Bot
	if !validExtractors[c.Bot.Extractor] {
		errs = append(errs, fmt.Sprintf("bot: unknown extractor %q (valid: heuristic, llm)", c.Bot.Extractor))
	}
	if c.Bot.DraftTTL.Duration <= 0 || c.Bot.DedupTTL.Duration <= 0 {
		errs = append(errs, "bot: draft_ttl and dedup_ttl must be positive")
	}
	if c.Bot.ResolveEnabled {
		if c.Bot.ResolveInterval.Duration <= 0 {
			errs = append(errs, "bot: resolve_interval must be positive")
		}
		if c.Bot.ResolveConcurrency < 1 {
			errs = append(errs, "bot: resolve_concurrency must be >= 1")
		}
	}

	// Sweat
	if !validExtractors[c.Sweat.Verifier] {
		errs = append(errs, fmt.Sprintf("sweat: unknown verifier %q (valid: heuristic, llm)", c.Sweat.Verifier))
	}
	if c.Sweat.MinConfidence < 0 || c.Sweat.MinConfidence > 1 {
		errs = append(errs, fmt.Sprintf("sweat: min_confidence must be within [0, 1], got %g", c.Sweat.MinConfidence))
	}

	// LLM, only when something uses it.
	if c.Bot.Extractor == "llm" || c.Sweat.Verifier == "llm" {
		if c.LLM.BaseURL == "" || c.LLM.Model == "" {
			errs = append(errs, "llm: base_url and model are required by the llm extractor or verifier")
		}
		if c.LLM.RateLimit > 0 && c.LLM.RateWindow.Duration <= 0 {
			errs = append(errs, "llm: rate_window must be positive when rate_limit is set")
		}
	}

	// Supabase
	if c.Supabase.Enabled {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns < 0 {
			errs = append(errs, "supabase: pool_min_conns must be >= 0")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Pipeline
	if c.Pipeline.Enabled {
		if c.Pipeline.RelayInterval.Duration <= 0 {
			errs = append(errs, "pipeline: relay_interval must be positive")
		}
		if c.Pipeline.ArchiveBatch < 1 {
			errs = append(errs, "pipeline: archive_batch must be >= 1")
		}
		if c.Pipeline.ArchiveRetentionDays < 1 {
			errs = append(errs, "pipeline: archive_retention_days must be >= 1")
		}
		if c.S3.Enabled && c.Supabase.Enabled && len(strings.Fields(c.Pipeline.ArchiveCron)) != 5 {
			errs = append(errs, fmt.Sprintf("pipeline: archive_cron must have 5 fields, got %q", c.Pipeline.ArchiveCron))
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		errs = append(errs, "server: rate_window must be positive when rate_limit is set")
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) validateLedger() []string {
	var errs []string
	l := c.Ledger
	if !validBackends[l.Backend] {
		errs = append(errs, fmt.Sprintf("ledger: unknown backend %q (valid: local, evm)", l.Backend))
	}
	if l.CharityFeePercentage+l.MaintenanceFeePercentage >= 100 {
		errs = append(errs, fmt.Sprintf("ledger: charity and maintenance fees must total under 100, got %d",
			l.CharityFeePercentage+l.MaintenanceFeePercentage))
	}
	if l.RecoveryPercentage > 100 {
		errs = append(errs, fmt.Sprintf("ledger: recovery_percentage must be <= 100, got %d", l.RecoveryPercentage))
	}
	if l.ChallengeWindow.Duration <= 0 {
		errs = append(errs, "ledger: challenge_window must be positive")
	}
	for name, addr := range map[string]string{
		"owner":               l.Owner,
		"charity_address":     l.CharityAddress,
		"maintenance_address": l.MaintenanceAddress,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Sprintf("ledger: %s %q is not a hex address", name, addr))
		}
	}
	if _, ok := new(big.Int).SetString(l.InitialReserve, 10); !ok || strings.HasPrefix(l.InitialReserve, "-") {
		errs = append(errs, fmt.Sprintf("ledger: initial_reserve %q is not a non-negative wei amount", l.InitialReserve))
	}
	return errs
}

func (c *Config) validateChains() []string {
	var errs []string
	if c.Ledger.Backend == "evm" && len(c.Chains) == 0 {
		errs = append(errs, "chains: the evm backend needs at least one [[chains]] entry")
	}
	seen := make(map[string]bool, len(c.Chains))
	for i, ch := range c.Chains {
		key := strings.ToLower(strings.TrimSpace(ch.Key))
		if key == "" {
			errs = append(errs, fmt.Sprintf("chains[%d]: key must not be empty", i))
			continue
		}
		if seen[key] {
			errs = append(errs, fmt.Sprintf("chains[%d]: duplicate key %q", i, key))
		}
		seen[key] = true
		if ch.ContractAddress != "" && !common.IsHexAddress(ch.ContractAddress) {
			errs = append(errs, fmt.Sprintf("chains.%s: contract_address %q is not a hex address", key, ch.ContractAddress))
		}
		if c.Ledger.Backend == "evm" && ch.ContractAddress == "" {
			errs = append(errs, fmt.Sprintf("chains.%s: contract_address is required for the evm backend", key))
		}
	}
	if def := strings.ToLower(strings.TrimSpace(c.DefaultChain)); len(c.Chains) > 0 && def != "" && !seen[def] {
		errs = append(errs, fmt.Sprintf("default_chain %q is not among the configured chains", c.DefaultChain))
	}
	return errs
}
