package config

import "net/url"

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Wallet. Each key is replaced individually so the count stays visible.
	out.Wallet.PrivateKeys = redactAll(cfg.Wallet.PrivateKeys)
	out.Wallet.EncryptedKeyPaths = copyStrings(cfg.Wallet.EncryptedKeyPaths)
	redact(&out.Wallet.KeyPassword)

	// Jupiter
	redact(&out.Jupiter.APIKey)

	// Redis
	redact(&out.Redis.Password)
	if u, err := url.Parse(cfg.Redis.URL); err == nil && u.User != nil {
		out.Redis.URL = u.Redacted()
	}

	// Server
	redact(&out.Server.APIKey)

	// Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices and maps so callers cannot mutate the original through the
	// redacted copy.
	out.Notify.Events = copyStrings(cfg.Notify.Events)
	out.Security.BlacklistedTokens = copyStrings(cfg.Security.BlacklistedTokens)
	if cfg.RateLimits != nil {
		out.RateLimits = make(map[string]RateLimit, len(cfg.RateLimits))
		for k, v := range cfg.RateLimits {
			out.RateLimits[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

func redactAll(ss []string) []string {
	out := copyStrings(ss)
	for i := range out {
		redact(&out[i])
	}
	return out
}

func copyStrings(ss []string) []string {
	if ss == nil {
		return nil
	}
	out := make([]string, len(ss))
	copy(out, ss)
	return out
}
