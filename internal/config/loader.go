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
// built-in defaults, applies SNIPER_* environment variable overrides, and
// returns the final Config. An empty path skips the file so a deployment can
// be configured from the environment alone. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known SNIPER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). Secrets belong here rather than in the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Solana ──
	setStr(&cfg.Solana.RPCURL, "SNIPER_SOLANA_RPC_URL")
	setStr(&cfg.Solana.WSURL, "SNIPER_SOLANA_WS_URL")
	setStr(&cfg.Solana.Commitment, "SNIPER_SOLANA_COMMITMENT")
	setDuration(&cfg.Solana.Timeout, "SNIPER_SOLANA_TIMEOUT")
	setInt(&cfg.Solana.MaxRetries, "SNIPER_SOLANA_MAX_RETRIES")

	// ── Jupiter ──
	setStr(&cfg.Jupiter.APIKey, "SNIPER_JUPITER_API_KEY")
	setBool(&cfg.Jupiter.PreferFree, "SNIPER_JUPITER_PREFER_FREE")
	setStr(&cfg.Jupiter.PaidURL, "SNIPER_JUPITER_PAID_URL")
	setStr(&cfg.Jupiter.FreeURL, "SNIPER_JUPITER_FREE_URL")
	setDuration(&cfg.Jupiter.Timeout, "SNIPER_JUPITER_TIMEOUT")
	setDuration(&cfg.Jupiter.QuoteCacheTTL, "SNIPER_JUPITER_QUOTE_CACHE_TTL")

	// ── Trading ──
	setFloat64(&cfg.Trading.TradeAmountSOL, "SNIPER_TRADING_TRADE_AMOUNT_SOL")
	setInt(&cfg.Trading.NumPurchases, "SNIPER_TRADING_NUM_PURCHASES")
	setInt(&cfg.Trading.SlippageBps, "SNIPER_TRADING_SLIPPAGE_BPS")
	setUint64(&cfg.Trading.PriorityFeeLamports, "SNIPER_TRADING_PRIORITY_FEE_LAMPORTS")
	setBool(&cfg.Trading.SmartSplit, "SNIPER_TRADING_SMART_SPLIT")
	setBool(&cfg.Trading.Concurrent, "SNIPER_TRADING_CONCURRENT")
	setDuration(&cfg.Trading.TradeDelay, "SNIPER_TRADING_TRADE_DELAY")
	setFloat64(&cfg.Trading.MaxPriceImpactPct, "SNIPER_TRADING_MAX_PRICE_IMPACT_PCT")
	setBool(&cfg.Trading.Simulate, "SNIPER_TRADING_SIMULATE")
	setDuration(&cfg.Trading.ConfirmTimeout, "SNIPER_TRADING_CONFIRM_TIMEOUT")
	setFloat64(&cfg.Trading.MaxTradeAmountSOL, "SNIPER_TRADING_MAX_TRADE_AMOUNT_SOL")
	setDuration(&cfg.Trading.DedupTTL, "SNIPER_TRADING_DEDUP_TTL")

	// ── Multi-wallet ──
	setBool(&cfg.MultiWallet.Enabled, "SNIPER_MULTI_WALLET_ENABLED")
	setStr(&cfg.MultiWallet.Strategy, "SNIPER_MULTI_WALLET_STRATEGY")
	setFloat64(&cfg.MultiWallet.GasReserveSOL, "SNIPER_MULTI_WALLET_GAS_RESERVE_SOL")
	setFloat64(&cfg.MultiWallet.MinBalanceSOL, "SNIPER_MULTI_WALLET_MIN_BALANCE_SOL")
	setInt(&cfg.MultiWallet.MaxTradesPerWallet, "SNIPER_MULTI_WALLET_MAX_TRADES_PER_WALLET")
	setBool(&cfg.MultiWallet.RandomizeAmounts, "SNIPER_MULTI_WALLET_RANDOMIZE_AMOUNTS")
	setFloat64(&cfg.MultiWallet.AmountVariationPct, "SNIPER_MULTI_WALLET_AMOUNT_VARIATION_PCT")
	setBool(&cfg.MultiWallet.UseMaxAvailableBalance, "SNIPER_MULTI_WALLET_USE_MAX_AVAILABLE_BALANCE")
	setDuration(&cfg.MultiWallet.InitialDelay, "SNIPER_MULTI_WALLET_INITIAL_DELAY")
	setInt(&cfg.MultiWallet.BatchSize, "SNIPER_MULTI_WALLET_BATCH_SIZE")

	// ── Wallet ──
	setStringSlice(&cfg.Wallet.PrivateKeys, "SNIPER_WALLET_PRIVATE_KEYS")
	setStringSlice(&cfg.Wallet.EncryptedKeyPaths, "SNIPER_WALLET_ENCRYPTED_KEY_PATHS")
	setStr(&cfg.Wallet.KeyPassword, "SNIPER_WALLET_KEY_PASSWORD")

	// ── Security ──
	setStringSlice(&cfg.Security.BlacklistedTokens, "SNIPER_SECURITY_BLACKLISTED_TOKENS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SNIPER_REDIS_ENABLED")
	setStr(&cfg.Redis.URL, "SNIPER_REDIS_URL")
	setStr(&cfg.Redis.Addr, "SNIPER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SNIPER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SNIPER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SNIPER_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "SNIPER_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.TriggerChannel, "SNIPER_REDIS_TRIGGER_CHANNEL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SNIPER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SNIPER_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "SNIPER_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SNIPER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SNIPER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SNIPER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SNIPER_NOTIFY_EVENTS")

	// ── Top-level ──
	setBool(&cfg.Metrics.Enabled, "SNIPER_METRICS_ENABLED")
	setStr(&cfg.Mode, "SNIPER_MODE")
	setStr(&cfg.LogLevel, "SNIPER_LOG_LEVEL")
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
