// Package mcp implements the Model Context Protocol server for agent access.
//
// # Overview
//
// MCP (Model Context Protocol) is a standard for AI tool integration. This
// package provides an MCP-compatible HTTP server that exposes the messaging
// tools to external AI clients (like Claude Code, other LLMs, or custom
// applications). It implements the Streamable HTTP transport from the
// 2025-11-25 revision of the spec.
//
// # Protocol
//
// The server speaks JSON-RPC 2.0 over a single HTTP endpoint:
//
//   - POST /mcp - JSON-RPC requests (initialize, tools/list, tools/call)
//   - DELETE /mcp - explicit session termination
//
// Sessions are created by the initialize handshake and identified by the
// Mcp-Session-Id response header, which clients echo on subsequent requests.
// GET (server-initiated SSE streams) is not supported.
//
// # Authentication
//
// Three credential forms are accepted, checked in order:
//
//	POST /mcp/<token>           token embedded in the URL path
//	POST /mcp?token=<token>     token as a query parameter
//	Authorization: Bearer <jwt> signed session JWT
//
// Opaque tokens come from the TokenStore and carry both an agent id and a
// capability list. JWTs authenticate the agent id only; JWT sessions receive
// the server's default capability set.
//
// # Identity
//
// The authenticated agent id is bound to the session at initialize time and
// flows into every tool call as the acting agent. Tool input never names the
// caller. Creating a session marks the agent online in the presence monitor;
// terminating it marks the agent offline.
//
// # Tool Discovery
//
// Clients call tools/list to discover available tools:
//
//	{
//	  "jsonrpc": "2.0",
//	  "method": "tools/list",
//	  "id": 1
//	}
//
// The listing is filtered to tools the session's capabilities allow.
//
// # Tool Execution
//
// Clients call tools/call to execute a tool:
//
//	{
//	  "jsonrpc": "2.0",
//	  "method": "tools/call",
//	  "params": {
//	    "name": "send",
//	    "arguments": {"to": "researcher", "content": "results are in"}
//	  },
//	  "id": 2
//	}
//
// A domain error from the tool (unknown recipient, illegal state change,
// malformed input) is returned as a tool result with isError set so the
// calling model can read it. Routing failures (unknown tool, timeout,
// cancellation) are JSON-RPC errors.
//
// # Usage
//
// Create the server and mount it:
//
//	server, err := mcp.NewServer(mcp.Config{
//	    Registry: registry,
//	    Router:   router,
//	    Presence: monitor,
//	    Tokens:   tokenStore,
//	    Verifier: sessions,
//	})
//	server.RegisterRoutes(mux)
//
// Issue an access token for an agent:
//
//	token := tokenStore.CreateToken("researcher", []string{"comms", "status"})
//
// # Integration with Claude Code
//
// Add to the client's MCP configuration:
//
//	{
//	  "mcpServers": {
//	    "parley": {
//	      "url": "http://localhost:8080/mcp/<token>"
//	    }
//	  }
//	}
package mcp
