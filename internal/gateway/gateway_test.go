// ABOUTME: Tests for Gateway orchestrator lifecycle and health endpoints.
// ABOUTME: Boots the real stack on loopback ports with an in-memory store.

package gateway

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/2389/parley/internal/config"
)

// testConfig creates a minimal config for testing with an available port.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	httpListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available HTTP port: %v", err)
	}
	httpAddr := httpListener.Addr().String()
	httpListener.Close()

	return &config.Config{
		Server: config.ServerConfig{
			HTTPAddr: httpAddr,
		},
		Database: config.DatabaseConfig{
			Path: ":memory:",
		},
		Auth: config.AuthConfig{
			JWTSecret: "test-jwt-secret-for-gateway-tests",
		},
		Security: config.SecurityConfig{
			EnvelopeSecret: "test-envelope-secret-for-gateway",
		},
	}
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGatewayNew(t *testing.T) {
	cfg := testConfig(t)
	logger := testLogger()

	gw, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())

	if gw.config != cfg {
		t.Error("gateway config mismatch")
	}
	if gw.store == nil {
		t.Error("store should not be nil")
	}
	if gw.monitor == nil {
		t.Error("monitor should not be nil")
	}
	if gw.threads == nil {
		t.Error("threads should not be nil")
	}
	if gw.comms == nil {
		t.Error("comms should not be nil")
	}
	if gw.lifecycle == nil {
		t.Error("lifecycle should not be nil")
	}
	if gw.sessions == nil {
		t.Error("sessions should not be nil")
	}
	if gw.mcpServer == nil {
		t.Error("mcpServer should not be nil")
	}
	if gw.mcpTokens == nil {
		t.Error("mcpTokens should not be nil")
	}

	if got := gw.registry.Count(); got != 15 {
		t.Errorf("registry.Count() = %d, want 15 builtin tools", got)
	}
	if !strings.HasPrefix(gw.serverID, "parley-gateway-") {
		t.Errorf("serverID = %q, want parley-gateway- prefix", gw.serverID)
	}
}

func TestGatewayRunAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	logger := testLogger()

	gw, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Run gateway in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Run(ctx)
	}()

	// Give it time to start
	time.Sleep(100 * time.Millisecond)

	// Shutdown via context cancel
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("gateway did not shutdown in time")
	}
}

func TestGatewayRun_PortInUse(t *testing.T) {
	cfg := testConfig(t)
	logger := testLogger()

	// Occupy the port so Run fails to listen
	ln, err := net.Listen("tcp", cfg.Server.HTTPAddr)
	if err != nil {
		t.Fatalf("failed to occupy port: %v", err)
	}
	defer ln.Close()

	gw, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	if err := gw.Run(runCtx); err == nil {
		t.Error("Run() should fail when the port is already in use")
	}
}

func TestHealthEndpoint(t *testing.T) {
	cfg := testConfig(t)
	logger := testLogger()

	gw, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = gw.Run(ctx)
	}()

	// Wait for server to start
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get("http://" + cfg.Server.HTTPAddr + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestReadyEndpoint_NoAgents(t *testing.T) {
	cfg := testConfig(t)
	logger := testLogger()

	gw, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = gw.Run(ctx)
	}()

	time.Sleep(100 * time.Millisecond)

	// With no agents online, ready should return 503
	resp, err := http.Get("http://" + cfg.Server.HTTPAddr + "/health/ready")
	if err != nil {
		t.Fatalf("ready request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("ready status = %d, want %d (no agents)", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestReadyEndpoint_AgentOnline(t *testing.T) {
	cfg := testConfig(t)
	logger := testLogger()

	gw, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = gw.Run(ctx)
	}()

	time.Sleep(100 * time.Millisecond)

	gw.monitor.MarkOnline("worker", "session-1", time.Now().Add(time.Hour))

	resp, err := http.Get("http://" + cfg.Server.HTTPAddr + "/health/ready")
	if err != nil {
		t.Fatalf("ready request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready status = %d, want %d (one agent online)", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "ready (1 agents)") {
		t.Errorf("ready body = %q, want agent count", string(body))
	}
}

func TestPresenceSweeper(t *testing.T) {
	cfg := testConfig(t)
	cfg.Presence.SweepInterval = 10 * time.Millisecond
	logger := testLogger()

	gw, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer gw.Shutdown(context.Background())

	// Session already expired; the sweeper should flip the agent offline.
	gw.monitor.MarkOnline("stale-agent", "session-1", time.Now().Add(-time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gw.runPresenceSweeper(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for gw.monitor.Online("stale-agent") {
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not expire the stale session in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Record survives, just offline
	status := gw.monitor.Status("stale-agent")
	if status == nil {
		t.Fatal("agent record should survive sweeping")
	}
	if status.Online {
		t.Error("agent should be offline after sweep")
	}
}

func TestInitStore_EnvOverride(t *testing.T) {
	dbPath := t.TempDir() + "/override.db"
	t.Setenv("PARLEY_DB_PATH", dbPath)

	cfg := testConfig(t)
	cfg.Database.Path = "/nonexistent/should/not/be/used.db"

	s, err := initStore(cfg)
	if err != nil {
		t.Fatalf("initStore() failed: %v", err)
	}
	defer s.Close()
}

func TestDetermineMCPEndpoint(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{HTTPAddr: "localhost:8585"},
	}

	t.Run("derived from config", func(t *testing.T) {
		if got := determineMCPEndpoint(cfg); got != "http://localhost:8585/mcp" {
			t.Errorf("endpoint = %q, want derived addr", got)
		}
	})

	t.Run("gateway url env", func(t *testing.T) {
		t.Setenv("PARLEY_GATEWAY_URL", "https://parley.example.com")
		if got := determineMCPEndpoint(cfg); got != "https://parley.example.com/mcp" {
			t.Errorf("endpoint = %q, want gateway url + /mcp", got)
		}
	})

	t.Run("explicit endpoint env wins", func(t *testing.T) {
		t.Setenv("PARLEY_GATEWAY_URL", "https://parley.example.com")
		t.Setenv("PARLEY_MCP_ENDPOINT", "https://mcp.example.com/mcp")
		if got := determineMCPEndpoint(cfg); got != "https://mcp.example.com/mcp" {
			t.Errorf("endpoint = %q, want explicit env value", got)
		}
	})
}

func TestGenerateServerID(t *testing.T) {
	id := generateServerID()
	if !strings.HasPrefix(id, "parley-gateway-") {
		t.Errorf("serverID = %q, want parley-gateway- prefix", id)
	}
}
