// ABOUTME: MCP token store mapping access tokens to agent identity and capabilities.
// ABOUTME: Tokens are minted during agent provisioning and validated on MCP requests.

package mcp

import (
	"sync"

	"github.com/google/uuid"
)

// tokenIdentity is what a token resolves to: who is calling and what they may see.
type tokenIdentity struct {
	agentID      string
	capabilities []string
}

// TokenStore manages MCP access tokens and the identities behind them.
// Tokens are created when agents are provisioned and invalidated when they
// are retired.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]tokenIdentity
}

// NewTokenStore creates a new token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]tokenIdentity),
	}
}

// CreateToken generates a new token bound to an agent and its capabilities.
// Returns the token string that should be included in MCP URLs.
func (s *TokenStore) CreateToken(agentID string, capabilities []string) string {
	token := uuid.New().String()

	// Copy capabilities to avoid aliasing
	caps := make([]string, len(capabilities))
	copy(caps, capabilities)

	s.mu.Lock()
	s.tokens[token] = tokenIdentity{agentID: agentID, capabilities: caps}
	s.mu.Unlock()

	return token
}

// Identity returns the agent id and capabilities behind a token.
// The third return is false when the token is unknown.
func (s *TokenStore) Identity(token string) (string, []string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.tokens[token]
	if !ok {
		return "", nil, false
	}

	// Return a copy to prevent modification
	caps := make([]string, len(id.capabilities))
	copy(caps, id.capabilities)
	return id.agentID, caps, true
}

// InvalidateToken removes a token from the store.
// Called when an agent is retired.
func (s *TokenStore) InvalidateToken(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// TokenCount returns the number of active tokens (for monitoring).
func (s *TokenStore) TokenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}
