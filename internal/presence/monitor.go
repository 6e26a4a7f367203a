// ABOUTME: Monitor tracks agent liveness, sessions, and activity samples
// ABOUTME: Single RWMutex over a map of per-agent records, lazily created

package presence

import (
	"log/slog"
	"sync"
	"time"
)

// Observer is notified when an agent's online state flips. Callbacks run
// outside the monitor's lock; implementations may call back into the
// monitor safely.
type Observer interface {
	PresenceChanged(agentID string, online bool)
}

// Config tunes the monitor. The zero value is usable; unset fields fall
// back to the package defaults.
type Config struct {
	ResponseWindow     int
	ActivityWindow     int
	ErrorWindow        int
	FingerprintHistory int
	ScoreHistory       int

	// Clock overrides time.Now, for tests.
	Clock func() time.Time

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.ResponseWindow <= 0 {
		c.ResponseWindow = DefaultResponseWindow
	}
	if c.ActivityWindow <= 0 {
		c.ActivityWindow = DefaultActivityWindow
	}
	if c.ErrorWindow <= 0 {
		c.ErrorWindow = DefaultErrorWindow
	}
	if c.FingerprintHistory <= 0 {
		c.FingerprintHistory = DefaultFingerprintHistory
	}
	if c.ScoreHistory <= 0 {
		c.ScoreHistory = DefaultScoreHistory
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Monitor keeps presence and performance state for every agent the gateway
// has ever seen. Records are created on first mention and survive until the
// process exits; going offline never discards history.
type Monitor struct {
	mu        sync.RWMutex
	agents    map[string]*record
	observers []Observer

	cfg    Config
	logger *slog.Logger
}

// NewMonitor creates a monitor with the given config.
func NewMonitor(cfg Config) *Monitor {
	cfg = cfg.withDefaults()
	return &Monitor{
		agents: make(map[string]*record),
		cfg:    cfg,
		logger: cfg.Logger.With("component", "presence"),
	}
}

func (m *Monitor) now() time.Time {
	return m.cfg.Clock().UTC()
}

// getOrCreateLocked returns the record for agentID, creating it if needed.
// Caller holds the write lock.
func (m *Monitor) getOrCreateLocked(agentID string) *record {
	r, ok := m.agents[agentID]
	if !ok {
		r = &record{
			agentID:     agentID,
			threadIndex: make(map[string]struct{}),
		}
		m.agents[agentID] = r
		m.logger.Debug("tracking new agent", "agent_id", agentID)
	}
	return r
}

// Subscribe registers an observer for online/offline transitions.
func (m *Monitor) Subscribe(obs Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, obs)
}

// notify fans out a presence flip. Called without the lock held.
func (m *Monitor) notify(agentID string, online bool) {
	m.mu.RLock()
	observers := append([]Observer(nil), m.observers...)
	m.mu.RUnlock()
	for _, obs := range observers {
		obs.PresenceChanged(agentID, online)
	}
}

// MarkOnline records a session for the agent and flips it online. The
// expiry is what CleanupExpiredSessions later enforces.
func (m *Monitor) MarkOnline(agentID, sessionToken string, expiresAt time.Time) {
	now := m.now()

	m.mu.Lock()
	r := m.getOrCreateLocked(agentID)
	wasOnline := r.online
	r.online = true
	r.sessionToken = sessionToken
	r.sessionExpiry = expiresAt
	r.lastSeen = now
	m.mu.Unlock()

	if !wasOnline {
		m.logger.Info("agent online", "agent_id", agentID)
		m.notify(agentID, true)
	}
}

// MarkOffline flips the agent offline and clears its session. History is
// retained. Unknown agents are ignored.
func (m *Monitor) MarkOffline(agentID string) {
	m.mu.Lock()
	r, ok := m.agents[agentID]
	if !ok || !r.online {
		m.mu.Unlock()
		return
	}
	r.online = false
	r.sessionToken = ""
	r.sessionExpiry = time.Time{}
	m.mu.Unlock()

	m.logger.Info("agent offline", "agent_id", agentID)
	m.notify(agentID, false)
}

// RecordActivity notes that the agent did something, refreshing last-seen
// and feeding the uptime window. Creates the record if needed, but does not
// change online state: activity from an agent without a session keeps it in
// whatever state it already was.
func (m *Monitor) RecordActivity(agentID string) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.getOrCreateLocked(agentID)
	r.lastSeen = now
	r.lastActivity = now
	r.activity = pushBounded(r.activity, now, m.cfg.ActivityWindow)
}

// RecordMessage bumps the agent's message counter and counts as activity.
func (m *Monitor) RecordMessage(agentID string) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.getOrCreateLocked(agentID)
	r.messageCount++
	r.lastSeen = now
	r.lastActivity = now
	r.activity = pushBounded(r.activity, now, m.cfg.ActivityWindow)
}

// RecordResponseTime adds one response-time sample in milliseconds.
// Negative samples are dropped.
func (m *Monitor) RecordResponseTime(agentID string, ms float64) {
	if ms < 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.getOrCreateLocked(agentID)
	r.responseTimes = pushBounded(r.responseTimes, ms, m.cfg.ResponseWindow)
}

// RecordError attributes a failure to the agent. Errors are not activity:
// they bump the counter and the error window but leave last-activity alone.
func (m *Monitor) RecordError(agentID, message string) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.getOrCreateLocked(agentID)
	r.errorCount++
	r.errors = pushBounded(r.errors, errorSample{at: now, message: message}, m.cfg.ErrorWindow)
}

// RecordThread associates the agent with a conversation thread. Duplicate
// associations are ignored.
func (m *Monitor) RecordThread(agentID, threadID string) {
	if threadID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.getOrCreateLocked(agentID)
	if _, dup := r.threadIndex[threadID]; dup {
		return
	}
	r.threadIndex[threadID] = struct{}{}
	r.threadIDs = append(r.threadIDs, threadID)
}

// CleanupExpiredSessions sweeps every online agent and flips offline those
// whose session expiry has passed. Returns how many were expired. Intended
// to run on a ticker.
func (m *Monitor) CleanupExpiredSessions() int {
	now := m.now()

	m.mu.Lock()
	var expired []string
	for id, r := range m.agents {
		if !r.online || r.sessionExpiry.IsZero() {
			continue
		}
		if now.After(r.sessionExpiry) {
			r.online = false
			r.sessionToken = ""
			r.sessionExpiry = time.Time{}
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.logger.Info("session expired", "agent_id", id)
		m.notify(id, false)
	}
	return len(expired)
}

// Status returns a snapshot for one agent, or nil if it was never seen.
func (m *Monitor) Status(agentID string) *AgentStatus {
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.agents[agentID]
	if !ok {
		return nil
	}
	return r.snapshot(now)
}

// Roster snapshots every known agent. Order is unspecified.
func (m *Monitor) Roster() []*AgentStatus {
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*AgentStatus, 0, len(m.agents))
	for _, r := range m.agents {
		out = append(out, r.snapshot(now))
	}
	return out
}

// Known reports whether the agent has ever been seen.
func (m *Monitor) Known(agentID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.agents[agentID]
	return ok
}

// Online reports whether the agent currently holds a live session.
func (m *Monitor) Online(agentID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.agents[agentID]
	return ok && r.online
}

// Count returns how many agents are currently online.
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.agents {
		if r.online {
			n++
		}
	}
	return n
}
