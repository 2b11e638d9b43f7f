package provider

import (
	"log/slog"
)

// Config holds provider configuration
type Config struct {
	// Issuer is the provider's issuer identifier (base URL)
	Issuer string

	// AuthorizationCodeTTL is how long authorization codes are valid
	AuthorizationCodeTTL int64 // seconds, default: 60

	// AccessTokenTTL is how long access tokens are valid
	AccessTokenTTL int64 // seconds, default: 3600 (1 hour)

	// IDTokenTTL is how long issued ID tokens are valid
	IDTokenTTL int64 // seconds, default: 3600 (1 hour)

	// ClockSkewGracePeriod is the grace period for expiry checks (in seconds)
	// Default: 5 seconds
	ClockSkewGracePeriod int64

	// SupportedScopes lists the scopes that are allowed for clients.
	// If empty, all scopes are allowed.
	SupportedScopes []string

	// AllowPKCEPlain allows the 'plain' code_challenge_method.
	// WARNING: The 'plain' method is insecure and deprecated in OAuth 2.1.
	// When false, only S256 is accepted (secure by default).
	// Default: false
	AllowPKCEPlain bool

	// RequirePKCE enforces PKCE for all authorization requests.
	// WARNING: Disabling this significantly weakens security. Only disable
	// for backward compatibility with very old clients.
	// Default: true
	RequirePKCE bool
}

// applySecureDefaults applies secure-by-default configuration values.
// This follows the principle: secure by default, opt-in for less secure options.
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	applyTimeDefaults(config)
	applySecurityDefaults(config, logger)

	return config
}

// applyTimeDefaults sets default values for time-based configuration
func applyTimeDefaults(config *Config) {
	if config.AuthorizationCodeTTL == 0 {
		config.AuthorizationCodeTTL = 60
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = 3600
	}
	if config.IDTokenTTL == 0 {
		config.IDTokenTTL = 3600
	}
	if config.ClockSkewGracePeriod == 0 {
		config.ClockSkewGracePeriod = 5
	}
}

// applySecurityDefaults sets secure defaults for security-related configuration.
// Uses a heuristic to detect whether the config is fresh (all security bools
// false) or explicitly configured.
func applySecurityDefaults(config *Config, logger *slog.Logger) {
	isDefaultConfig := !config.RequirePKCE && !config.AllowPKCEPlain

	if isDefaultConfig {
		config.RequirePKCE = true
		config.AllowPKCEPlain = false
		return
	}

	if !config.RequirePKCE {
		logger.Warn("SECURITY WARNING: PKCE is disabled",
			"risk", "authorization code interception attacks",
			"recommendation", "set RequirePKCE=true")
	}
	if config.AllowPKCEPlain {
		logger.Warn("SECURITY WARNING: plain PKCE method is allowed",
			"risk", "weak code challenge protection",
			"recommendation", "set AllowPKCEPlain=false to require S256")
	}
}
