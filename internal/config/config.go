// Package config defines the sniper's configuration and its validation.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SNIPER_* environment variables.
type Config struct {
	Solana      SolanaConfig         `toml:"solana"`
	Jupiter     JupiterConfig        `toml:"jupiter"`
	Trading     TradingConfig        `toml:"trading"`
	MultiWallet MultiWalletConfig    `toml:"multi_wallet"`
	Wallet      WalletConfig         `toml:"wallet"`
	RateLimits  map[string]RateLimit `toml:"rate_limits"`
	Security    SecurityConfig       `toml:"security"`
	Redis       RedisConfig          `toml:"redis"`
	Server      ServerConfig         `toml:"server"`
	Notify      NotifyConfig         `toml:"notify"`
	Metrics     MetricsConfig        `toml:"metrics"`
	Mode        string               `toml:"mode"`
	LogLevel    string               `toml:"log_level"`
}

// SolanaConfig holds ledger RPC settings.
type SolanaConfig struct {
	RPCURL     string   `toml:"rpc_url"`
	WSURL      string   `toml:"ws_url"`
	Commitment string   `toml:"commitment"`
	Timeout    duration `toml:"timeout"`
	MaxRetries int      `toml:"max_retries"`
}

// JupiterConfig holds quote/swap API settings. An API key selects the paid
// tier as preferred unless PreferFree is set; the other tier is the fallback.
type JupiterConfig struct {
	APIKey        string   `toml:"api_key"`
	PreferFree    bool     `toml:"prefer_free"`
	PaidURL       string   `toml:"paid_url"`
	FreeURL       string   `toml:"free_url"`
	PriceURL      string   `toml:"price_url"`
	Timeout       duration `toml:"timeout"`
	QuoteCacheTTL duration `toml:"quote_cache_ttl"`
	MaxAccounts   int      `toml:"max_accounts"`
}

// TradingConfig holds per-trade and single-wallet session settings.
type TradingConfig struct {
	TradeAmountSOL      float64  `toml:"trade_amount_sol"`
	NumPurchases        int      `toml:"num_purchases"`
	SlippageBps         int      `toml:"slippage_bps"`
	PriorityFeeLamports uint64   `toml:"priority_fee_lamports"`
	SmartSplit          bool     `toml:"smart_split"`
	Concurrent          bool     `toml:"concurrent"`
	TradeDelay          duration `toml:"trade_delay"`
	MaxPriceImpactPct   float64  `toml:"max_price_impact_pct"`
	CheckSlippage       bool     `toml:"check_slippage"`
	Simulate            bool     `toml:"simulate"`
	ConfirmTimeout      duration `toml:"confirm_timeout"`
	ConfirmPollInterval duration `toml:"confirm_poll_interval"`
	MaxTradeAmountSOL   float64  `toml:"max_trade_amount_sol"`
	WrapAndUnwrapSOL    bool     `toml:"wrap_and_unwrap_sol"`
	FeeAccount          string   `toml:"fee_account"`
	DedupTTL            duration `toml:"dedup_ttl"`
}

// MultiWalletConfig holds pool planning and dispatch settings.
type MultiWalletConfig struct {
	Enabled                bool     `toml:"enabled"`
	GasReserveSOL          float64  `toml:"gas_reserve_sol"`
	MinBalanceSOL          float64  `toml:"min_balance_sol"`
	DustFloorSOL           float64  `toml:"dust_floor_sol"`
	MaxTradesPerWallet     int      `toml:"max_trades_per_wallet"`
	Strategy               string   `toml:"strategy"`
	RandomizeAmounts       bool     `toml:"randomize_amounts"`
	AmountVariationPct     float64  `toml:"amount_variation_pct"`
	UseMaxAvailableBalance bool     `toml:"use_max_available_balance"`
	InitialDelay           duration `toml:"initial_delay"`
	BatchSize              int      `toml:"batch_size"`
	BatchDelay             duration `toml:"batch_delay"`
	JitterMin              duration `toml:"jitter_min"`
	JitterMax              duration `toml:"jitter_max"`
	BalanceBatchSize       int      `toml:"balance_batch_size"`
	BalanceBatchDelay      duration `toml:"balance_batch_delay"`
}

// WalletConfig lists wallet secret sources. The first resolved key is the
// single-wallet mode wallet.
type WalletConfig struct {
	PrivateKeys       []string `toml:"private_keys"`
	EncryptedKeyPaths []string `toml:"encrypted_key_paths"`
	KeyPassword       string   `toml:"key_password"`
}

// RateLimit is one service's token bucket.
type RateLimit struct {
	RPS   float64 `toml:"rps"`
	Burst int     `toml:"burst"`
}

// SecurityConfig holds target guard settings.
type SecurityConfig struct {
	BlacklistedTokens []string `toml:"blacklisted_tokens"`
}

// RedisConfig holds Redis connection parameters. Redis is optional: without
// it quotes are cached in memory and the session lock is process-local.
type RedisConfig struct {
	Enabled        bool     `toml:"enabled"`
	URL            string   `toml:"url"`
	Addr           string   `toml:"addr"`
	Password       string   `toml:"password"`
	DB             int      `toml:"db"`
	PoolSize       int      `toml:"pool_size"`
	MaxRetries     int      `toml:"max_retries"`
	TLSEnabled     bool     `toml:"tls_enabled"`
	KeyPrefix      string   `toml:"key_prefix"`
	QuoteCache     bool     `toml:"quote_cache"`
	LockTTL        duration `toml:"lock_ttl"`
	TriggerChannel string   `toml:"trigger_channel"`
	SummaryChannel string   `toml:"summary_channel"`
}

// ServerConfig holds HTTP API parameters.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    int    `toml:"port"`
	APIKey  string `toml:"api_key"`
	// RequestsPerSecond limits each client IP.
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"`
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

// Rate limit service names.
const (
	LimitSolanaRPC    = "solana_rpc"
	LimitJupiterPaid  = "jupiter_paid"
	LimitJupiterFree  = "jupiter_free"
	LimitJupiterPrice = "jupiter_price"
	LimitDefault      = "default"
)

// Defaults returns a Config populated with the production defaults.
func Defaults() Config {
	return Config{
		Solana: SolanaConfig{
			RPCURL:     "https://api.mainnet-beta.solana.com",
			Commitment: domain.CommitmentConfirmed,
			Timeout:    duration{10 * time.Second},
			MaxRetries: 3,
		},
		Jupiter: JupiterConfig{
			PaidURL:       "https://api.jup.ag/swap/v1",
			FreeURL:       "https://lite-api.jup.ag/swap/v1",
			PriceURL:      "https://lite-api.jup.ag/price/v2",
			Timeout:       duration{5 * time.Second},
			QuoteCacheTTL: duration{2 * time.Second},
			MaxAccounts:   64,
		},
		Trading: TradingConfig{
			TradeAmountSOL:      0.1,
			NumPurchases:        1,
			SlippageBps:         500,
			PriorityFeeLamports: 100_000,
			SmartSplit:          true,
			Concurrent:          true,
			MaxPriceImpactPct:   15,
			Simulate:            true,
			ConfirmTimeout:      duration{30 * time.Second},
			ConfirmPollInterval: duration{500 * time.Millisecond},
			MaxTradeAmountSOL:   1.0,
			WrapAndUnwrapSOL:    true,
			DedupTTL:            duration{10 * time.Minute},
		},
		MultiWallet: MultiWalletConfig{
			GasReserveSOL:      0.02,
			MinBalanceSOL:      0.05,
			DustFloorSOL:       0.001,
			MaxTradesPerWallet: 3,
			Strategy:           "balanced",
			RandomizeAmounts:   true,
			AmountVariationPct: 15,
			InitialDelay:       duration{15 * time.Second},
			BatchSize:          4,
			BatchDelay:         duration{time.Second},
			JitterMin:          duration{250 * time.Millisecond},
			JitterMax:          duration{600 * time.Millisecond},
			BalanceBatchSize:   5,
			BalanceBatchDelay:  duration{500 * time.Millisecond},
		},
		RateLimits: map[string]RateLimit{
			LimitSolanaRPC:    {RPS: 45, Burst: 15},
			LimitJupiterFree:  {RPS: 1, Burst: 3},
			LimitJupiterPaid:  {RPS: 10, Burst: 10},
			LimitJupiterPrice: {RPS: 1, Burst: 2},
			LimitDefault:      {RPS: 5, Burst: 5},
		},
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			PoolSize:       20,
			MaxRetries:     3,
			KeyPrefix:      "sniper",
			QuoteCache:     true,
			LockTTL:        duration{5 * time.Minute},
			TriggerChannel: "triggers",
			SummaryChannel: "sessions",
		},
		Server: ServerConfig{
			Enabled:           true,
			Port:              8080,
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Notify: NotifyConfig{
			Events: []string{"session_success", "session_partial", "session_failed"},
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "sniper",
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode. "server" takes
// triggers over HTTP, "listener" from the Redis trigger channel, "full" both.
var validModes = map[string]bool{
	"server":   true,
	"listener": true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validCommitments = map[string]bool{
	domain.CommitmentProcessed: true,
	domain.CommitmentConfirmed: true,
	domain.CommitmentFinalized: true,
}

var validStrategies = map[string]bool{
	"balanced":   true,
	"sequential": true,
	"random":     true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, listener, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Solana
	if !validURL(c.Solana.RPCURL, "http", "https") {
		errs = append(errs, fmt.Sprintf("solana: rpc_url %q must be an http(s) URL", c.Solana.RPCURL))
	}
	if c.Solana.WSURL != "" && !validURL(c.Solana.WSURL, "ws", "wss") {
		errs = append(errs, fmt.Sprintf("solana: ws_url %q must be a ws(s) URL", c.Solana.WSURL))
	}
	if !validCommitments[c.Solana.Commitment] {
		errs = append(errs, fmt.Sprintf("solana: unknown commitment %q", c.Solana.Commitment))
	}
	if c.Solana.Timeout.Duration <= 0 {
		errs = append(errs, "solana: timeout must be > 0")
	}
	if c.Solana.MaxRetries < 0 {
		errs = append(errs, "solana: max_retries must be >= 0")
	}

	// Jupiter
	if c.Jupiter.FreeURL == "" {
		errs = append(errs, "jupiter: free_url must not be empty")
	}
	if c.Jupiter.PaidURL == "" {
		errs = append(errs, "jupiter: paid_url must not be empty")
	}
	if c.Jupiter.Timeout.Duration <= 0 {
		errs = append(errs, "jupiter: timeout must be > 0")
	}
	if c.Jupiter.QuoteCacheTTL.Duration < 0 {
		errs = append(errs, "jupiter: quote_cache_ttl must be >= 0")
	}

	// Trading
	t := c.Trading
	if t.TradeAmountSOL <= 0 {
		errs = append(errs, "trading: trade_amount_sol must be > 0")
	}
	if t.NumPurchases < 1 {
		errs = append(errs, "trading: num_purchases must be >= 1")
	}
	if t.SlippageBps < 1 || t.SlippageBps > 10_000 {
		errs = append(errs, fmt.Sprintf("trading: slippage_bps must be 1-10000, got %d", t.SlippageBps))
	}
	if t.MaxPriceImpactPct <= 0 || t.MaxPriceImpactPct > 100 {
		errs = append(errs, "trading: max_price_impact_pct must be in (0, 100]")
	}
	if t.MaxTradeAmountSOL <= 0 {
		errs = append(errs, "trading: max_trade_amount_sol must be > 0")
	}
	if t.ConfirmTimeout.Duration <= 0 {
		errs = append(errs, "trading: confirm_timeout must be > 0")
	}
	if t.ConfirmPollInterval.Duration <= 0 {
		errs = append(errs, "trading: confirm_poll_interval must be > 0")
	}
	if t.TradeDelay.Duration < 0 || t.DedupTTL.Duration < 0 {
		errs = append(errs, "trading: delays must be >= 0")
	}

	// Multi-wallet
	mw := c.MultiWallet
	if !validStrategies[strings.ToLower(mw.Strategy)] {
		errs = append(errs, fmt.Sprintf("multi_wallet: unknown strategy %q (valid: balanced, sequential, random)", mw.Strategy))
	}
	if mw.GasReserveSOL < 0 || mw.MinBalanceSOL < 0 || mw.DustFloorSOL < 0 {
		errs = append(errs, "multi_wallet: gas_reserve_sol, min_balance_sol and dust_floor_sol must be >= 0")
	}
	if t.MaxTradeAmountSOL > 0 && t.MaxTradeAmountSOL <= mw.DustFloorSOL {
		errs = append(errs, "trading: max_trade_amount_sol must be > multi_wallet.dust_floor_sol")
	}
	if mw.MaxTradesPerWallet < 0 {
		errs = append(errs, "multi_wallet: max_trades_per_wallet must be >= 0")
	}
	if mw.AmountVariationPct < 0 || mw.AmountVariationPct >= 100 {
		errs = append(errs, "multi_wallet: amount_variation_pct must be in [0, 100)")
	}
	if mw.BatchSize < 1 {
		errs = append(errs, "multi_wallet: batch_size must be >= 1")
	}
	if mw.BalanceBatchSize < 1 {
		errs = append(errs, "multi_wallet: balance_batch_size must be >= 1")
	}
	if mw.JitterMin.Duration < 0 || mw.JitterMax.Duration < mw.JitterMin.Duration {
		errs = append(errs, "multi_wallet: jitter_min must be >= 0 and <= jitter_max")
	}
	if mw.InitialDelay.Duration < 0 || mw.BatchDelay.Duration < 0 || mw.BalanceBatchDelay.Duration < 0 {
		errs = append(errs, "multi_wallet: delays must be >= 0")
	}

	// Wallet
	if len(nonEmpty(c.Wallet.PrivateKeys)) == 0 && len(nonEmpty(c.Wallet.EncryptedKeyPaths)) == 0 {
		errs = append(errs, "wallet: set private_keys or encrypted_key_paths")
	}
	if len(nonEmpty(c.Wallet.EncryptedKeyPaths)) > 0 && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_paths is set")
	}

	// Rate limits
	for name, rl := range c.RateLimits {
		if rl.RPS <= 0 || rl.Burst < 1 {
			errs = append(errs, fmt.Sprintf("rate_limits.%s: rps must be > 0 and burst >= 1", name))
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.URL == "" && c.Redis.Addr == "" {
			errs = append(errs, "redis: url or addr must be set when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}
	if strings.ToLower(c.Mode) != "server" && !c.Redis.Enabled {
		errs = append(errs, fmt.Sprintf("mode %q reads the trigger channel and needs redis.enabled", c.Mode))
	}

	// Server
	if c.Server.Enabled || strings.ToLower(c.Mode) == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RequestsPerSecond < 0 {
			errs = append(errs, "server: requests_per_second must be >= 0")
		}
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

func validURL(raw string, schemes ...string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return true
		}
	}
	return false
}

func nonEmpty(ss []string) []string {
	var out []string
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// TradeAmount is the per-trade default in lamports.
func (t TradingConfig) TradeAmount() uint64 { return domain.SOLFloatToLamports(t.TradeAmountSOL) }

// MaxTradeAmount is the per-trade ceiling in lamports.
func (t TradingConfig) MaxTradeAmount() uint64 {
	return domain.SOLFloatToLamports(t.MaxTradeAmountSOL)
}

// GasReserve, MinBalance and DustFloor convert the pool thresholds to
// lamports.
func (m MultiWalletConfig) GasReserve() uint64 { return domain.SOLFloatToLamports(m.GasReserveSOL) }

func (m MultiWalletConfig) MinBalance() uint64 { return domain.SOLFloatToLamports(m.MinBalanceSOL) }

func (m MultiWalletConfig) DustFloor() uint64 { return domain.SOLFloatToLamports(m.DustFloorSOL) }

// Limit returns the bucket for service, falling back to the default entry.
func (c *Config) Limit(service string) RateLimit {
	if rl, ok := c.RateLimits[service]; ok {
		return rl
	}
	return c.RateLimits[LimitDefault]
}
