// Package gateway orchestrates the parley-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator of the parley-gateway
// server. It owns and manages all major components: message store, presence
// monitor, thread registry, messaging services, tool packs, and the HTTP
// server carrying both the operator API and the MCP endpoint.
//
// # Gateway Struct
//
// The Gateway struct is the main entry point:
//
//	type Gateway struct {
//	    config     *config.Config
//	    store      store.Store
//	    monitor    *presence.Monitor
//	    threads    *thread.Registry
//	    comms      *comms.Service
//	    lifecycle  *mailbox.Service
//	    sessions   *auth.Sessions
//	    registry   *tools.Registry
//	    router     *tools.Router
//	    mcpServer  *mcp.Server
//	    httpServer *http.Server
//	    // ... and more
//	}
//
// # HTTP API
//
// The gateway exposes HTTP endpoints in api.go. All /api routes require a
// session bearer token; health endpoints are unauthenticated.
//
//   - GET  /api/agents - Presence roster (?online=true filters)
//   - GET  /api/agents/{id} - Status, identity validation, and metrics
//   - GET  /api/flagged - Agents over response-time or error thresholds
//   - POST /api/send - Inject a message on behalf of a sender
//   - GET  /api/threads?agent=X - Threads an agent participates in
//   - GET  /api/threads/{id} - Thread detail with messages
//   - POST /api/threads/{id}/archive - Archive an active thread
//   - POST /api/threads/{id}/close - Close an active thread
//   - GET  /api/stats - Server, presence, thread, and tool counts
//   - POST /api/sessions - Mint a session JWT for an agent
//   - POST /api/tokens - Mint an opaque MCP access token
//   - GET  /health - Liveness check
//   - GET  /health/ready - Readiness check
//
// # MCP Endpoint
//
// External agents connect over MCP Streamable HTTP at /mcp. The mcp package
// implements the transport; the gateway wires it to the tool registry, the
// tool router, and the presence monitor so that initialize and session
// termination drive agent online/offline state.
//
// # Tool Packs
//
// Agent-facing operations are grouped into capability-gated packs:
//
//   - comms: send, receive, reply, mark_read, mark_replied
//   - manage: bulk_mark_read, update_states, delete_messages, empty_mailbox
//   - status: agent_sync_status, agent_threads, thread_messages,
//     archive_thread, close_thread, thread_stats
//
// A token minted with capabilities ["comms"] can only discover and call the
// comms pack. Tokens without capabilities see every pack.
//
// # Presence Sweeping
//
// A background sweeper expires agent sessions whose expiry has passed,
// flipping them offline. Observers subscribed to the monitor receive the
// transitions; the gateway installs one that logs them.
//
// # Lifecycle
//
// Start the gateway:
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	go gw.Run(ctx)
//
// Graceful shutdown:
//
//	cancel()
//	gw.Shutdown(shutdownCtx)
//
// # Key Files
//
//   - gateway.go: Gateway struct, initialization, Run/Shutdown
//   - api.go: Operator HTTP handlers and token minting
package gateway
