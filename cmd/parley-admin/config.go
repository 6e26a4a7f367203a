// ABOUTME: Configuration loading for the parley-admin CLI
// ABOUTME: Loads TOML config from XDG path with environment variable expansion

package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Gateway GatewayConfig `toml:"gateway"`
	Auth    AuthConfig    `toml:"auth"`
}

type GatewayConfig struct {
	URL string `toml:"url"`
}

type AuthConfig struct {
	Token     string `toml:"token"`
	TokenFile string `toml:"token_file"`
}

// configPath returns the path to the admin config file.
// Priority: PARLEY_ADMIN_CONFIG env var > XDG_CONFIG_HOME/parley/admin.toml > ~/.config/parley/admin.toml
func configPath() string {
	if envPath := os.Getenv("PARLEY_ADMIN_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "admin.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "parley", "admin.toml")
}

// loadConfig reads the admin config, falling back to environment variables
// when no config file exists. A missing file is not an error: everything the
// CLI needs can come from PARLEY_GATEWAY_URL and PARLEY_TOKEN.
func loadConfig() (*Config, error) {
	path := configPath()

	cfg := &Config{}
	if data, err := os.ReadFile(path); err == nil {
		expanded := expandEnvVars(string(data))
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills unset fields from the environment and standard paths.
func (c *Config) applyDefaults() {
	if c.Gateway.URL == "" {
		if envURL := os.Getenv("PARLEY_GATEWAY_URL"); envURL != "" {
			c.Gateway.URL = envURL
		} else {
			c.Gateway.URL = "http://localhost:8390"
		}
	}

	if c.Auth.Token == "" {
		if envToken := os.Getenv("PARLEY_TOKEN"); envToken != "" {
			c.Auth.Token = envToken
		}
	}

	// Token file written by parley-gateway bootstrap
	if c.Auth.Token == "" {
		tokenFile := c.Auth.TokenFile
		if tokenFile == "" {
			tokenFile = filepath.Join(filepath.Dir(configPath()), "token")
		}
		if data, err := os.ReadFile(tokenFile); err == nil {
			c.Auth.Token = strings.TrimSpace(string(data))
		}
	}
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// Validate checks that config fields are present and valid.
func (c *Config) Validate() error {
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required")
	}
	u, err := url.Parse(c.Gateway.URL)
	if err != nil {
		return fmt.Errorf("gateway.url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("gateway.url must use http or https scheme")
	}
	return nil
}
