// ABOUTME: Configuration loading and parsing for the parley gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete parley gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Security  SecurityConfig  `yaml:"security"`
	Presence  PresenceConfig  `yaml:"presence"`
	Messaging MessagingConfig `yaml:"messaging"`
	Tools     ToolsConfig     `yaml:"tools"`
	MCP       MCPConfig       `yaml:"mcp"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds session token configuration
type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	SessionTTL time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	SessionTTLRaw string `yaml:"session_ttl"`
}

// SecurityConfig holds envelope encoding configuration
type SecurityConfig struct {
	EnvelopeSecret string `yaml:"envelope_secret"`
}

// PresenceConfig holds presence monitoring configuration
type PresenceConfig struct {
	SweepInterval time.Duration `yaml:"-"`

	// Rolling window sizes; zero means the monitor's defaults apply
	ResponseWindow int `yaml:"response_window"`
	ActivityWindow int `yaml:"activity_window"`
	ErrorWindow    int `yaml:"error_window"`

	// Raw string value for YAML unmarshaling
	SweepIntervalRaw string `yaml:"sweep_interval"`
}

// MessagingConfig holds send deduplication configuration
type MessagingConfig struct {
	DedupeTTL        time.Duration `yaml:"-"`
	DedupeMaxEntries int           `yaml:"dedupe_max_entries"`

	// Raw string value for YAML unmarshaling
	DedupeTTLRaw string `yaml:"dedupe_ttl"`
}

// ToolsConfig holds tool dispatch configuration
type ToolsConfig struct {
	CallTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	CallTimeoutRaw string `yaml:"call_timeout"`
}

// MCPConfig holds MCP endpoint configuration
type MCPConfig struct {
	RequireAuth bool `yaml:"require_auth"`

	// DefaultCapabilities are granted to JWT and anonymous sessions,
	// which carry no capability list of their own
	DefaultCapabilities []string `yaml:"default_capabilities"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if c.Security.EnvelopeSecret == "" {
		return fmt.Errorf("security.envelope_secret is required")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.SessionTTLRaw != "" {
		cfg.Auth.SessionTTL, err = time.ParseDuration(cfg.Auth.SessionTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing session_ttl %q: %w", cfg.Auth.SessionTTLRaw, err)
		}
	}

	if cfg.Presence.SweepIntervalRaw != "" {
		cfg.Presence.SweepInterval, err = time.ParseDuration(cfg.Presence.SweepIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sweep_interval %q: %w", cfg.Presence.SweepIntervalRaw, err)
		}
	}

	if cfg.Messaging.DedupeTTLRaw != "" {
		cfg.Messaging.DedupeTTL, err = time.ParseDuration(cfg.Messaging.DedupeTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe_ttl %q: %w", cfg.Messaging.DedupeTTLRaw, err)
		}
	}

	if cfg.Tools.CallTimeoutRaw != "" {
		cfg.Tools.CallTimeout, err = time.ParseDuration(cfg.Tools.CallTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing call_timeout %q: %w", cfg.Tools.CallTimeoutRaw, err)
		}
	}

	return nil
}
