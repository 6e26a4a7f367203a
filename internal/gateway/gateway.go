// ABOUTME: Gateway orchestrator that wires the messaging stack behind one HTTP server
// ABOUTME: Manages store, presence sweeping, tool packs, and server lifecycle

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/2389/parley/internal/auth"
	"github.com/2389/parley/internal/comms"
	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/dedupe"
	"github.com/2389/parley/internal/envelope"
	"github.com/2389/parley/internal/mailbox"
	"github.com/2389/parley/internal/mcp"
	"github.com/2389/parley/internal/presence"
	"github.com/2389/parley/internal/store"
	"github.com/2389/parley/internal/thread"
	"github.com/2389/parley/internal/tools"
)

// DefaultSweepInterval is how often expired presence sessions are reaped
// when the config leaves presence.sweep_interval unset.
const DefaultSweepInterval = 30 * time.Second

// Gateway orchestrates the parley server components. It owns the message
// store, presence monitor, tool packs, and the HTTP server that carries
// both the MCP endpoint and the operator API.
type Gateway struct {
	config     *config.Config
	store      store.Store
	monitor    *presence.Monitor
	threads    *thread.Registry
	comms      *comms.Service
	lifecycle  *mailbox.Service
	sessions   *auth.Sessions
	httpServer *http.Server
	logger     *slog.Logger

	// serverID identifies this gateway instance
	serverID string

	// sends deduplicates retried send requests
	sends *dedupe.Cache

	// registry tracks the builtin tool packs
	registry *tools.Registry

	// router dispatches tool calls with a per-call timeout
	router *tools.Router

	// mcpTokens maps MCP access tokens to agent identities
	mcpTokens *mcp.TokenStore

	// mcpServer is the MCP-compatible HTTP server for agents
	mcpServer *mcp.Server

	// mcpEndpoint is the base URL for the MCP endpoint (e.g., "http://localhost:8080/mcp")
	mcpEndpoint string
}

// initStore creates and returns a store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("PARLEY_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// presenceLogger logs agent presence flips as they happen.
type presenceLogger struct {
	logger *slog.Logger
}

func (p *presenceLogger) PresenceChanged(agentID string, online bool) {
	if online {
		p.logger.Info("agent online", "agent_id", agentID)
	} else {
		p.logger.Info("agent offline", "agent_id", agentID)
	}
}

// registerToolPacks registers all builtin packs with the registry.
func registerToolPacks(registry *tools.Registry, svc *comms.Service, lifecycle *mailbox.Service, threads *thread.Registry) error {
	if err := registry.RegisterPack(tools.CommsPack(svc)); err != nil {
		return fmt.Errorf("registering comms pack: %w", err)
	}
	if err := registry.RegisterPack(tools.ManagePack(lifecycle)); err != nil {
		return fmt.Errorf("registering manage pack: %w", err)
	}
	if err := registry.RegisterPack(tools.StatusPack(svc, threads)); err != nil {
		return fmt.Errorf("registering status pack: %w", err)
	}
	return nil
}

// determineMCPEndpoint resolves the MCP endpoint URL from env or config.
// Priority: PARLEY_MCP_ENDPOINT env > PARLEY_GATEWAY_URL + /mcp > derived from config.
func determineMCPEndpoint(cfg *config.Config) string {
	if envEndpoint := os.Getenv("PARLEY_MCP_ENDPOINT"); envEndpoint != "" {
		return envEndpoint
	}
	if envGatewayURL := os.Getenv("PARLEY_GATEWAY_URL"); envGatewayURL != "" {
		return envGatewayURL + "/mcp"
	}
	return "http://" + cfg.Server.HTTPAddr + "/mcp"
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	monitor := presence.NewMonitor(presence.Config{
		ResponseWindow: cfg.Presence.ResponseWindow,
		ActivityWindow: cfg.Presence.ActivityWindow,
		ErrorWindow:    cfg.Presence.ErrorWindow,
		Logger:         logger.With("component", "presence"),
	})
	monitor.Subscribe(&presenceLogger{logger: logger.With("component", "presence")})

	threads := thread.NewRegistry(logger.With("component", "threads"))
	resolver := thread.NewResolver(threads, logger.With("component", "resolver"))

	codec, err := envelope.NewCodec([]byte(cfg.Security.EnvelopeSecret))
	if err != nil {
		return nil, fmt.Errorf("creating envelope codec: %w", err)
	}

	dedupeTTL := cfg.Messaging.DedupeTTL
	if dedupeTTL <= 0 {
		dedupeTTL = 5 * time.Minute
	}
	dedupeMax := cfg.Messaging.DedupeMaxEntries
	if dedupeMax <= 0 {
		dedupeMax = 100_000
	}
	sends := dedupe.New(dedupeTTL, dedupeMax)

	lifecycle := mailbox.New(s, logger.With("component", "mailbox"))
	svc, err := comms.New(comms.Config{
		Store:     s,
		Lifecycle: lifecycle,
		Threads:   threads,
		Resolver:  resolver,
		Presence:  monitor,
		Codec:     codec,
		Sends:     sends,
		Logger:    logger.With("component", "comms"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating comms service: %w", err)
	}

	sessions, err := auth.NewSessions([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating session authority: %w", err)
	}

	registry := tools.NewRegistry(logger.With("component", "tools"))
	router := tools.NewRouter(tools.RouterConfig{
		Registry: registry,
		Logger:   logger.With("component", "router"),
		Timeout:  cfg.Tools.CallTimeout,
	})
	if err := registerToolPacks(registry, svc, lifecycle, threads); err != nil {
		return nil, err
	}

	mcpTokens := mcp.NewTokenStore()
	gw := &Gateway{
		config:      cfg,
		store:       s,
		monitor:     monitor,
		threads:     threads,
		comms:       svc,
		lifecycle:   lifecycle,
		sessions:    sessions,
		logger:      logger.With("component", "gateway"),
		serverID:    generateServerID(),
		sends:       sends,
		registry:    registry,
		router:      router,
		mcpTokens:   mcpTokens,
		mcpEndpoint: determineMCPEndpoint(cfg),
	}

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)

	// Operator API - bearer session token required
	gw.registerAPIRoutes(mux)

	// MCP endpoint for agents (Claude Code and friends)
	mcpServer, err := mcp.NewServer(mcp.Config{
		Registry:    registry,
		Router:      router,
		Presence:    monitor,
		Logger:      logger.With("component", "mcp"),
		Verifier:    sessions,
		Tokens:      mcpTokens,
		RequireAuth: cfg.MCP.RequireAuth,
		DefaultCaps: cfg.MCP.DefaultCapabilities,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}
	gw.mcpServer = mcpServer
	gw.mcpServer.RegisterRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// MCPEndpoint returns the externally reachable MCP base URL.
func (g *Gateway) MCPEndpoint() string {
	return g.mcpEndpoint
}

// Run starts the gateway server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the
// server fails.
func (g *Gateway) Run(ctx context.Context) error {
	g.logger.Info("starting gateway",
		"http_addr", g.config.Server.HTTPAddr,
		"server_id", g.serverID,
	)

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	go g.runPresenceSweeper(ctx)

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// runPresenceSweeper periodically reaps expired agent sessions so presence
// does not report agents whose sessions lapsed without a clean disconnect.
func (g *Gateway) runPresenceSweeper(ctx context.Context) {
	interval := g.config.Presence.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := g.monitor.CleanupExpiredSessions(); n > 0 {
				g.logger.Info("swept expired agent sessions", "count", n)
			}
		}
	}
}

// startServer starts the HTTP server in a goroutine, returning an error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		g.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (g *Gateway) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		g.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// closeOptionalComponents closes optional components that may be nil.
func (g *Gateway) closeOptionalComponents() {
	if g.sends != nil {
		g.sends.Close()
	}
}

// Shutdown gracefully stops the gateway server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "store close", g.store.Close())

	g.closeOptionalComponents()

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if at least one agent is online.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	online := g.monitor.Count()
	if online == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no agents online"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d agents)", online)
}

// generateServerID creates a unique identifier for this gateway instance.
func generateServerID() string {
	return fmt.Sprintf("parley-gateway-%d", time.Now().UnixNano()%1000000)
}
