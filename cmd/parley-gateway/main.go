// ABOUTME: Entry point for the parley-gateway messaging server
// ABOUTME: Hosts agent mailboxes, the thread registry, and the MCP endpoint

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/parley/internal/auth"
	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                     _
  _ __    __ _  _ __ | |  ___  _   _
 | '_ \  / _' || '__|| | / _ \| | | |
 | |_) || (_| || |   | ||  __/| |_| |
 | .__/  \__,_||_|   |_| \___| \__, |
 |_|                            |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: PARLEY_CONFIG env var > XDG_CONFIG_HOME/parley/gateway.yaml > ~/.config/parley/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PARLEY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "parley", "gateway.yaml")
}

// getDataPath returns the path to the parley data directory.
// Priority: XDG_DATA_HOME/parley > ~/.local/share/parley
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "parley")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: parley-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve      Start the gateway server")
		fmt.Println("  init       Create a new config file interactively")
		fmt.Println("  bootstrap  Create config with fresh secrets and an operator token")
		fmt.Println("  health     Check gateway health")
		fmt.Println("  agents     Show how many agents are online")
		os.Exit(1)
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "bootstrap":
		err = runBootstrap()
	case "health":
		err = runHealth(ctx)
	case "agents":
		err = runAgents(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)

	// Create and run gateway
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	green.Print("    ▶ ")
	fmt.Printf("MCP:      ")
	cyan.Print(gw.MCPEndpoint())
	if !cfg.MCP.RequireAuth {
		yellow.Print(" [auth optional]")
	}
	fmt.Println()
	fmt.Println()

	logger.Info("starting parley-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runAgents(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("agents check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	fmt.Println(string(body))
	return nil
}

// runBootstrap performs first-time setup of the gateway:
// 1. Creates config file with random JWT and envelope secrets (if not exists)
// 2. Mints an operator session token for the admin CLI
//
// This is a one-command setup: parley-gateway bootstrap
func runBootstrap() error {
	configPath := getConfigPath()
	dataPath := getDataPath()
	dbPath := filepath.Join(dataPath, "gateway.db")

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	var cfg *config.Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		jwtSecret, err := randomSecret()
		if err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		envelopeSecret, err := randomSecret()
		if err != nil {
			return fmt.Errorf("generating envelope secret: %w", err)
		}

		configDir := filepath.Dir(configPath)
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		if err := os.MkdirAll(dataPath, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		configContent := fmt.Sprintf(`# parley-gateway configuration
# Generated by parley-gateway bootstrap

server:
  http_addr: "localhost:8390"

database:
  path: "%s"

auth:
  jwt_secret: "%s"
  session_ttl: "24h"

security:
  envelope_secret: "%s"

mcp:
  require_auth: true

logging:
  level: "info"
  format: "text"
`, dbPath, jwtSecret, envelopeSecret)

		if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}

		green.Printf("  ✓ Created config: %s\n", configPath)

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	} else {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	// Mint an operator token. Sessions are stateless JWTs, so this works
	// without the gateway running.
	sessions, err := auth.NewSessions([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating session authority: %w", err)
	}

	tokenTTL := 30 * 24 * time.Hour
	token, expiresAt, err := sessions.Issue("operator", tokenTTL)
	if err != nil {
		return fmt.Errorf("minting operator token: %w", err)
	}

	tokenPath := filepath.Join(filepath.Dir(configPath), "token")
	if err := os.WriteFile(tokenPath, []byte(token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green.Printf("  ✓ Saved operator token: %s\n", tokenPath)

	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  Operator Session")
	cyan.Println("  ----------------")
	fmt.Printf("  Agent ID: operator\n")
	fmt.Printf("  Token:    %s (expires %s)\n", tokenPath, expiresAt.Format("Jan 02, 2006"))
	fmt.Println()

	yellow.Println("  Ready to go:")
	fmt.Println("    parley-gateway serve        # start the gateway")
	fmt.Println("    parley-admin agents         # list known agents")
	fmt.Println("    parley-admin token create --agent researcher --caps comms,status")
	fmt.Println()

	return nil
}

// randomSecret returns a base64-encoded 32-byte random secret.
func randomSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("parley-gateway configuration setup")
	fmt.Println("==================================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "gateway.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8390")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Secrets are required; generate them rather than prompting
	jwtSecret, err := randomSecret()
	if err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	envelopeSecret, err := randomSecret()
	if err != nil {
		return fmt.Errorf("generating envelope secret: %w", err)
	}

	// MCP
	fmt.Println("\n--- MCP Configuration ---")
	requireAuthStr := prompt(reader, "Require auth on the MCP endpoint?", "yes")
	requireAuth := strings.ToLower(requireAuthStr) == "yes" || strings.ToLower(requireAuthStr) == "y"
	defaultCaps := prompt(reader, "Default capabilities for JWT sessions (comma-separated, empty for all)", "")

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# parley-gateway configuration\n")
	cfg.WriteString("# Generated by parley-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n", jwtSecret))
	cfg.WriteString("  session_ttl: \"24h\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("security:\n")
	cfg.WriteString(fmt.Sprintf("  envelope_secret: \"%s\"\n", envelopeSecret))
	cfg.WriteString("\n")

	cfg.WriteString("presence:\n")
	cfg.WriteString("  sweep_interval: \"30s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("messaging:\n")
	cfg.WriteString("  dedupe_ttl: \"5m\"\n")
	cfg.WriteString("  dedupe_max_entries: 100000\n")
	cfg.WriteString("\n")

	cfg.WriteString("tools:\n")
	cfg.WriteString("  call_timeout: \"30s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("mcp:\n")
	cfg.WriteString(fmt.Sprintf("  require_auth: %t\n", requireAuth))
	if defaultCaps != "" {
		caps := strings.Split(defaultCaps, ",")
		quoted := make([]string, 0, len(caps))
		for _, c := range caps {
			if c = strings.TrimSpace(c); c != "" {
				quoted = append(quoted, fmt.Sprintf("%q", c))
			}
		}
		cfg.WriteString(fmt.Sprintf("  default_capabilities: [%s]\n", strings.Join(quoted, ", ")))
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  parley-gateway serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
