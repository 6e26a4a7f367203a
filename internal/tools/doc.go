// Package tools provides the tool-call surface agents use to operate parley.
//
// # Overview
//
// Every parley operation an agent can perform is exposed as a named tool
// with a JSON Schema input. Tools are grouped into packs, registered once
// at startup, and dispatched by name. All tools execute in-process; the
// MCP server (internal/mcp) is the protocol layer in front of this package.
//
// # Tool Packs
//
// The package provides 3 packs with 15 tools:
//
// Comms Pack (builtin:comms) - requires "comms" capability:
//
//   - send: Send a message to another agent
//   - receive: Fetch messages from your mailbox
//   - reply: Reply to a message you received
//   - mark_read: Mark a received message as read
//   - mark_replied: Mark a read message as replied without sending a reply
//
// Manage Pack (builtin:manage) - requires "manage" capability:
//
//   - bulk_mark_read: Mark a batch of messages as read
//   - update_states: Apply one state transition to a batch of messages
//   - delete_messages: Delete messages from your mailbox
//   - empty_mailbox: Delete every message in your mailbox, optionally filtered
//
// Status Pack (builtin:status) - requires "status" capability:
//
//   - agent_sync_status: Report presence, identity, and performance
//   - agent_threads: List the conversation threads you participate in
//   - thread_messages: Read a page of messages from one of your threads
//   - archive_thread: Archive one of your active threads
//   - close_thread: Close one of your active threads
//   - thread_stats: Aggregate counts over all conversation threads
//
// # Tool Routing
//
// When an agent calls a tool, the router:
//
//  1. Looks up the tool by name in the registry
//  2. Applies the per-call execution deadline
//  3. Invokes the handler with the caller's agent ID and input JSON
//  4. Returns the JSON result or the handler's error
//
// Tool names are globally unique across packs. The caller's identity comes
// from the authenticated session, never from tool input: a tool can only
// ever act on the calling agent's own mailbox and threads.
//
// # Capabilities
//
// Each tool names the capabilities an agent needs to see it. The registry
// filters tool listings by capability set; agents without "manage" never
// learn the bulk tools exist.
//
// # Usage
//
// Create a registry, register packs, and dispatch:
//
//	registry := tools.NewRegistry(logger)
//	registry.RegisterPack(tools.CommsPack(svc))
//	registry.RegisterPack(tools.ManagePack(lifecycle))
//	registry.RegisterPack(tools.StatusPack(svc, threads))
//
//	router := tools.NewRouter(tools.RouterConfig{Registry: registry, Logger: logger})
//	result, err := router.Dispatch(ctx, "send", agentID, input)
package tools
