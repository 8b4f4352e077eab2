// Package config provides the declarative configuration schema for
// sentinelwatch: the local HTTP server, the threat-analysis engine, the
// per-agent budget guardian, the essential-tool permission registry, and
// the multi-provider LLM proxy.
//
// Configuration is layered: a YAML file provides the base, environment
// variables override it, and CLI flags override both. On startup the
// resolved values are reconciled into the settings repository so the
// local HTTP server's runtime view and the on-disk file never diverge
// silently (see Reconcile in settings.go).
package config

import (
	"os"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for sentinelwatch.
type Config struct {
	// Server configures the local HTTP control-plane listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Security configures the threat analyzer and response scanning.
	Security SecurityConfig `yaml:"security" mapstructure:"security"`

	// Budget configures per-agent and global spending limits.
	Budget BudgetConfig `yaml:"budget" mapstructure:"budget"`

	// Tools configures the essential-tool permission registry and overrides.
	Tools ToolsConfig `yaml:"tools" mapstructure:"tools"`

	// Proxy configures the multi-provider LLM reverse proxy.
	Proxy ProxyConfig `yaml:"proxy" mapstructure:"proxy"`

	// Database configures the embedded SQLite store.
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// DevMode enables permissive defaults and verbose logging.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the local HTTP control-plane server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on, localhost-only by default.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum slog level: debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// AllowedOrigins restricts browser-originated requests to the admin API.
	// Empty means same-origin/localhost only.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`

	// BearerTokenHash is the stored hash (see internal/domain/auth) of the
	// optional shared bearer token remote callers must present. Empty
	// disables remote access entirely; localhost callers always bypass it.
	BearerTokenHash string `yaml:"bearer_token_hash" mapstructure:"bearer_token_hash"`
}

// SecurityConfig configures the threat analyzer.
type SecurityConfig struct {
	// ScanMode is "monitor" (log only) or "enforce" (block on detection).
	ScanMode string `yaml:"scan_mode" mapstructure:"scan_mode" validate:"omitempty,oneof=monitor enforce"`

	// RedactSecrets controls whether secret-shaped substrings are redacted
	// from persisted request/response text.
	RedactSecrets bool `yaml:"redact_secrets" mapstructure:"redact_secrets"`

	// RuleReloadInterval controls how often the analyzer polls the rule
	// store for changes (e.g. "30s"). Zero disables polling; the analyzer
	// still reloads immediately after any CRUD mutation.
	RuleReloadInterval string `yaml:"rule_reload_interval" mapstructure:"rule_reload_interval" validate:"omitempty"`

	// MaxScanBodyBytes bounds how much of a response body is buffered for
	// scanning before the proxy gives up and forwards unscanned.
	MaxScanBodyBytes int `yaml:"max_scan_body_bytes" mapstructure:"max_scan_body_bytes" validate:"omitempty,min=1"`

	// StoreText controls whether the analyzed request/response text
	// itself is persisted alongside an event, or only its digest and
	// length. Disable to keep the event timeline free of raw content.
	StoreText bool `yaml:"store_text" mapstructure:"store_text"`
}

// BudgetConfig configures spending limits enforced by the budget guardian.
type BudgetConfig struct {
	// Enabled turns budget enforcement on or off.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// GlobalDailyLimitUSD caps total spend across all agents per UTC day.
	// Zero means unlimited.
	GlobalDailyLimitUSD float64 `yaml:"global_daily_limit_usd" mapstructure:"global_daily_limit_usd" validate:"omitempty,min=0"`

	// DefaultAgentDailyLimitUSD is applied to an agent with no explicit
	// per-agent limit row in the budgets table.
	DefaultAgentDailyLimitUSD float64 `yaml:"default_agent_daily_limit_usd" mapstructure:"default_agent_daily_limit_usd" validate:"omitempty,min=0"`

	// WarnThresholdPercent is the spend percentage (0-100) of a limit at
	// which the guardian returns "warn" instead of "allow".
	WarnThresholdPercent int `yaml:"warn_threshold_percent" mapstructure:"warn_threshold_percent" validate:"omitempty,min=0,max=100"`
}

// ToolsConfig configures the essential-tool permission engine.
type ToolsConfig struct {
	// LogOnly makes every tool-call decision "log_only" regardless of the
	// registry — useful when first deploying to observe traffic.
	LogOnly bool `yaml:"log_only" mapstructure:"log_only"`
}

// ProxyUpstream configures one LLM provider the reverse proxy routes to.
type ProxyUpstream struct {
	// Provider is the path segment under /{provider}/... (e.g. "openai").
	Provider string `yaml:"provider" mapstructure:"provider" validate:"required"`
	// Base is the upstream base URL (e.g. "https://api.openai.com").
	Base string `yaml:"base" mapstructure:"base" validate:"required,url"`
	// AuthHeader is the header name credentials are injected into
	// (e.g. "Authorization", "x-api-key").
	AuthHeader string `yaml:"auth_header" mapstructure:"auth_header"`
	// AuthValuePrefix precedes the resolved credential in the header
	// value (e.g. "Bearer ").
	AuthValuePrefix string `yaml:"auth_value_prefix" mapstructure:"auth_value_prefix"`
	// CredentialEnv names the environment variable holding the raw
	// credential for this provider.
	CredentialEnv string `yaml:"credential_env" mapstructure:"credential_env"`
	// Enabled controls whether this upstream accepts traffic.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// ProxyConfig configures the multi-provider LLM reverse proxy.
type ProxyConfig struct {
	// Enabled controls whether the proxy listener is started.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// ListenAddr is the address the proxy listens on.
	ListenAddr string `yaml:"listen_addr" mapstructure:"listen_addr" validate:"omitempty,hostname_port"`
	// Timeout bounds a single upstream round trip (e.g. "60s").
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty"`
	// Upstreams overrides/extends the built-in provider table.
	Upstreams []ProxyUpstream `yaml:"upstreams" mapstructure:"upstreams" validate:"omitempty,dive"`
	// DefaultAgentHeader names the request header the proxy reads the
	// calling agent's ID from.
	DefaultAgentHeader string `yaml:"default_agent_header" mapstructure:"default_agent_header"`

	// Events configures the off-path event/cost recording channel.
	Events EventsConfig `yaml:"events" mapstructure:"events"`
}

// EventsConfig configures the buffered channel that carries threat
// events, tool-call decisions, and cost records off the proxy's
// response path for persistence.
type EventsConfig struct {
	// ChannelSize is the buffer size for the side-effect channel.
	// Defaults to 1000 if not specified or 0.
	ChannelSize int `yaml:"channel_size" mapstructure:"channel_size" validate:"omitempty,min=1"`

	// WarningThreshold is the fraction (0-1) of ChannelSize at which a
	// warning is logged for sustained near-capacity backlog.
	WarningThreshold float64 `yaml:"warning_threshold" mapstructure:"warning_threshold" validate:"omitempty,min=0,max=1"`
}

// DatabaseConfig configures the embedded SQLite store.
type DatabaseConfig struct {
	// Path is the filesystem path to the SQLite database file.
	// Defaults to a path under the OS data directory.
	Path string `yaml:"path" mapstructure:"path"`
}

// SetDevDefaults applies permissive defaults for development mode,
// applied BEFORE validation so required fields are satisfied.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if c.Security.ScanMode == "" {
		c.Security.ScanMode = "monitor"
	}
	if !c.Budget.Enabled && !viper.IsSet("budget.enabled") {
		c.Budget.Enabled = false
	}
}

// SetDefaults applies sensible default values to the configuration.
// viper.IsSet distinguishes "not set" (zero value) from "explicitly false",
// so booleans that should default true do not get silently overridden.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8765"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Security.ScanMode == "" {
		c.Security.ScanMode = "enforce"
	}
	if !viper.IsSet("security.redact_secrets") {
		c.Security.RedactSecrets = true
	}
	if !viper.IsSet("security.store_text") {
		c.Security.StoreText = true
	}
	if c.Security.RuleReloadInterval == "" {
		c.Security.RuleReloadInterval = "30s"
	}
	if c.Security.MaxScanBodyBytes == 0 {
		c.Security.MaxScanBodyBytes = 1 << 20 // 1 MiB
	}

	if !viper.IsSet("budget.enabled") {
		c.Budget.Enabled = true
	}
	if c.Budget.WarnThresholdPercent == 0 {
		c.Budget.WarnThresholdPercent = 80
	}

	if !viper.IsSet("proxy.enabled") {
		c.Proxy.Enabled = true
	}
	if c.Proxy.ListenAddr == "" {
		c.Proxy.ListenAddr = "127.0.0.1:8766"
	}
	if c.Proxy.Timeout == "" {
		c.Proxy.Timeout = "60s"
	}
	if c.Proxy.DefaultAgentHeader == "" {
		c.Proxy.DefaultAgentHeader = "X-Agent-Id"
	}
	if c.Proxy.Events.ChannelSize == 0 {
		c.Proxy.Events.ChannelSize = 1000
	}
	if c.Proxy.Events.WarningThreshold == 0 {
		c.Proxy.Events.WarningThreshold = 0.8
	}

	if c.Database.Path == "" {
		dir, err := os.UserCacheDir()
		if err == nil {
			c.Database.Path = dir + "/sentinelwatch/sentinelwatch.db"
		} else {
			c.Database.Path = "sentinelwatch.db"
		}
	}
}
