// ABOUTME: HTTP API handlers for the operator surface of the gateway.
// ABOUTME: Exposes agent roster, message injection, thread inspection, and token minting.

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/parley/internal/comms"
	"github.com/2389/parley/internal/presence"
	"github.com/2389/parley/internal/store"
	"github.com/2389/parley/internal/thread"
)

// SendMessageRequest is the JSON request body for POST /api/send.
type SendMessageRequest struct {
	From          string            `json:"from"`
	To            string            `json:"to"`
	Subject       string            `json:"subject,omitempty"`
	Content       string            `json:"content"`
	Priority      string            `json:"priority,omitempty"`
	Security      string            `json:"security,omitempty"`
	RequiresReply bool              `json:"requires_reply,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// AgentDetailResponse is the JSON response for GET /api/agents/{id}.
type AgentDetailResponse struct {
	Status   *presence.AgentStatus        `json:"status"`
	Identity presence.IdentityValidation  `json:"identity"`
	Metrics  *presence.PerformanceMetrics `json:"metrics,omitempty"`
}

// ThreadResponse is the JSON shape for a thread in API responses.
type ThreadResponse struct {
	ID           string    `json:"id"`
	Participants []string  `json:"participants"`
	Subject      string    `json:"subject,omitempty"`
	Priority     string    `json:"priority"`
	State        string    `json:"state"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// ThreadDetailResponse is the JSON response for GET /api/threads/{id}.
type ThreadDetailResponse struct {
	Thread   ThreadResponse      `json:"thread"`
	Messages []thread.MessageRef `json:"messages"`
}

// StatsResponse is the JSON response for GET /api/stats.
type StatsResponse struct {
	ServerID    string       `json:"server_id"`
	KnownAgents int          `json:"known_agents"`
	OnlineCount int          `json:"online_count"`
	Threads     thread.Stats `json:"threads"`
	MCPSessions int          `json:"mcp_sessions"`
	Tools       int          `json:"tools"`
}

// MintSessionRequest is the JSON request body for POST /api/sessions.
type MintSessionRequest struct {
	AgentID string `json:"agent_id"`
	TTL     string `json:"ttl,omitempty"`
}

// MintSessionResponse is the JSON response for POST /api/sessions.
type MintSessionResponse struct {
	AgentID   string    `json:"agent_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MintTokenRequest is the JSON request body for POST /api/tokens.
type MintTokenRequest struct {
	AgentID      string   `json:"agent_id"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// MintTokenResponse is the JSON response for POST /api/tokens.
type MintTokenResponse struct {
	AgentID string `json:"agent_id"`
	Token   string `json:"token"`
	URL     string `json:"url"`
}

// registerAPIRoutes registers the operator API behind session auth.
func (g *Gateway) registerAPIRoutes(mux *http.ServeMux) {
	authed := g.requireSession
	mux.Handle("/api/agents", authed(http.HandlerFunc(g.handleListAgents)))
	mux.Handle("/api/agents/", authed(http.HandlerFunc(g.handleAgentDetail)))
	mux.Handle("/api/flagged", authed(http.HandlerFunc(g.handleFlaggedAgents)))
	mux.Handle("/api/send", authed(http.HandlerFunc(g.handleSendMessage)))
	mux.Handle("/api/threads", authed(http.HandlerFunc(g.handleListThreads)))
	mux.Handle("/api/threads/", authed(http.HandlerFunc(g.handleThreadRoutes)))
	mux.Handle("/api/stats", authed(http.HandlerFunc(g.handleStats)))
	mux.Handle("/api/sessions", authed(http.HandlerFunc(g.handleMintSession)))
	mux.Handle("/api/tokens", authed(http.HandlerFunc(g.handleMintToken)))
	g.logger.Info("operator API enabled", "auth", "bearer session token")
}

// requireSession verifies the Authorization bearer token before passing the
// request through. Health endpoints stay outside this gate.
func (g *Gateway) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			g.sendJSONError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if _, err := g.sessions.Verify(token); err != nil {
			g.sendJSONError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleListAgents handles GET /api/agents requests.
// It returns the full presence roster. Supports ?online=true to filter.
func (g *Gateway) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	onlineOnly := r.URL.Query().Get("online") == "true"

	roster := g.monitor.Roster()
	response := make([]*presence.AgentStatus, 0, len(roster))
	for _, status := range roster {
		if onlineOnly && !status.Online {
			continue
		}
		response = append(response, status)
	}

	g.writeJSON(w, response)
}

// handleAgentDetail handles GET /api/agents/{id} requests.
// Returns presence status, identity validation, and performance metrics.
func (g *Gateway) handleAgentDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	agentID := strings.TrimPrefix(r.URL.Path, "/api/agents/")
	agentID = strings.TrimSuffix(agentID, "/")
	if agentID == "" || strings.Contains(agentID, "/") {
		g.sendJSONError(w, http.StatusBadRequest, "invalid path")
		return
	}

	status := g.monitor.Status(agentID)
	if status == nil {
		g.sendJSONError(w, http.StatusNotFound, "agent not found")
		return
	}

	g.writeJSON(w, AgentDetailResponse{
		Status:   status,
		Identity: g.monitor.ValidateIdentity(agentID),
		Metrics:  g.monitor.Metrics(agentID),
	})
}

// handleFlaggedAgents handles GET /api/flagged requests.
// Returns agents exceeding response-time or error thresholds.
func (g *Gateway) handleFlaggedAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	thresholdMs := 5000.0
	if raw := r.URL.Query().Get("threshold_ms"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			g.sendJSONError(w, http.StatusBadRequest, "threshold_ms must be a positive number")
			return
		}
		thresholdMs = v
	}

	var errorThreshold int64 = 10
	if raw := r.URL.Query().Get("errors"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			g.sendJSONError(w, http.StatusBadRequest, "errors must be a non-negative integer")
			return
		}
		errorThreshold = v
	}

	slow := g.monitor.PoorPerformers(thresholdMs)
	erroring := g.monitor.HighErrorAgents(errorThreshold)

	g.writeJSON(w, map[string]any{
		"slow":     slow,
		"erroring": erroring,
	})
}

// handleSendMessage handles POST /api/send requests.
// Operators can inject a message on behalf of any sender; agents themselves
// go through the MCP send tool, which binds the sender to the session.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, err := parseSendRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	priority, ok := store.ParsePriority(req.Priority)
	if !ok {
		g.sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid priority: %q", req.Priority))
		return
	}
	security, ok := store.ParseSecurityLevel(req.Security)
	if !ok {
		g.sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid security level: %q", req.Security))
		return
	}

	result, err := g.comms.Send(r.Context(), &comms.SendRequest{
		From:          req.From,
		To:            req.To,
		Subject:       req.Subject,
		Content:       req.Content,
		Priority:      priority,
		Security:      security,
		RequiresReply: req.RequiresReply,
		Metadata:      req.Metadata,
	})
	if err != nil {
		g.logger.Error("failed to send message", "error", err)
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	g.writeJSON(w, result)
}

// handleListThreads handles GET /api/threads?agent=X requests.
func (g *Gateway) handleListThreads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	agentID := r.URL.Query().Get("agent")
	if agentID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "agent query param required")
		return
	}

	threads := g.threads.AgentThreads(agentID)
	response := make([]ThreadResponse, 0, len(threads))
	for _, t := range threads {
		response = append(response, threadResponse(t))
	}

	g.writeJSON(w, response)
}

// handleThreadRoutes dispatches /api/threads/{id} and its subroutes.
//
//	GET  /api/threads/{id}          thread with messages
//	POST /api/threads/{id}/archive  archive an active thread
//	POST /api/threads/{id}/close    close an active thread
func (g *Gateway) handleThreadRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/threads/")
	parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		g.handleThreadDetail(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "archive":
		g.handleThreadStateChange(w, r, parts[0], "archive")
	case len(parts) == 2 && parts[1] == "close":
		g.handleThreadStateChange(w, r, parts[0], "close")
	default:
		g.sendJSONError(w, http.StatusBadRequest, "invalid path")
	}
}

// handleThreadDetail handles GET /api/threads/{id} requests.
func (g *Gateway) handleThreadDetail(w http.ResponseWriter, r *http.Request, threadID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = v
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			g.sendJSONError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = v
	}

	t, err := g.threads.Get(threadID)
	if err != nil {
		g.sendJSONError(w, http.StatusNotFound, "thread not found")
		return
	}

	messages, err := g.threads.ThreadMessages(threadID, limit, offset)
	if err != nil {
		g.sendJSONError(w, http.StatusNotFound, "thread not found")
		return
	}

	g.writeJSON(w, ThreadDetailResponse{
		Thread:   threadResponse(t),
		Messages: messages,
	})
}

// handleThreadStateChange handles POST /api/threads/{id}/archive and /close.
func (g *Gateway) handleThreadStateChange(w http.ResponseWriter, r *http.Request, threadID, action string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if _, err := g.threads.Get(threadID); err != nil {
		g.sendJSONError(w, http.StatusNotFound, "thread not found")
		return
	}

	var ok bool
	if action == "archive" {
		ok = g.threads.Archive(threadID)
	} else {
		ok = g.threads.Close(threadID)
	}
	if !ok {
		g.sendJSONError(w, http.StatusConflict, "thread is not active")
		return
	}

	g.writeJSON(w, map[string]string{"thread_id": threadID, "state": action + "d"})
}

// handleStats handles GET /api/stats requests.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	g.writeJSON(w, StatsResponse{
		ServerID:    g.serverID,
		KnownAgents: len(g.monitor.Roster()),
		OnlineCount: g.monitor.Count(),
		Threads:     g.threads.Stats(),
		MCPSessions: g.mcpServer.SessionCount(),
		Tools:       g.registry.Count(),
	})
}

// handleMintSession handles POST /api/sessions requests.
// Mints a session JWT for an agent to authenticate against the MCP endpoint.
func (g *Gateway) handleMintSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req MintSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AgentID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	var ttl time.Duration
	if req.TTL != "" {
		parsed, err := time.ParseDuration(req.TTL)
		if err != nil || parsed <= 0 {
			g.sendJSONError(w, http.StatusBadRequest, "ttl must be a positive duration")
			return
		}
		ttl = parsed
	}

	token, expiresAt, err := g.sessions.Issue(req.AgentID, ttl)
	if err != nil {
		g.logger.Error("failed to mint session", "agent_id", req.AgentID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.writeJSON(w, MintSessionResponse{
		AgentID:   req.AgentID,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// handleMintToken handles POST /api/tokens requests.
// Mints an opaque MCP access token carrying the agent's capability grant.
func (g *Gateway) handleMintToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req MintTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AgentID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	token := g.mcpTokens.CreateToken(req.AgentID, req.Capabilities)

	g.writeJSON(w, MintTokenResponse{
		AgentID: req.AgentID,
		Token:   token,
		URL:     g.mcpEndpoint + "/" + token,
	})
}

// threadResponse converts a thread to its API shape.
func threadResponse(t *thread.Thread) ThreadResponse {
	return ThreadResponse{
		ID:           t.ID,
		Participants: t.Participants,
		Subject:      t.Subject,
		Priority:     string(t.Priority),
		State:        string(t.State),
		MessageCount: len(t.Messages),
		CreatedAt:    t.CreatedAt,
		LastActivity: t.LastActivity,
	}
}

// writeJSON writes a JSON response body.
func (g *Gateway) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// parseSendRequest parses and validates a SendMessageRequest from the given reader.
// Returns an error if the JSON is invalid or required fields are missing.
func parseSendRequest(r io.Reader) (*SendMessageRequest, error) {
	var req SendMessageRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}

	if req.From == "" {
		return nil, errors.New("from is required")
	}
	if req.To == "" {
		return nil, errors.New("to is required")
	}
	if req.Content == "" {
		return nil, errors.New("content is required")
	}

	return &req, nil
}
