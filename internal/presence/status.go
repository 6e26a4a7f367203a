// ABOUTME: AgentStatus record and the bounded sample windows behind it
// ABOUTME: One record per agent, lazily created, kept for the process lifetime

package presence

import "time"

// Default capacities for the bounded per-agent sample windows. Oldest
// samples are evicted first when a window is full.
const (
	DefaultResponseWindow     = 100
	DefaultActivityWindow     = 1000
	DefaultErrorWindow        = 100
	DefaultFingerprintHistory = 10
	DefaultScoreHistory       = 20
)

// uptimeBuckets is the number of one-minute buckets the uptime metric
// looks back over.
const uptimeBuckets = 60

// AgentStatus is a point-in-time snapshot of everything the monitor knows
// about one agent. Returned values are copies; mutating them has no effect
// on the monitor's state.
type AgentStatus struct {
	AgentID         string    `json:"agent_id"`
	Online          bool      `json:"online"`
	LastSeen        time.Time `json:"last_seen"`
	LastActivity    time.Time `json:"last_activity"`
	SessionToken    string    `json:"-"`
	SessionExpiry   time.Time `json:"session_expiry,omitempty"`
	MessageCount    int64     `json:"message_count"`
	ErrorCount      int64     `json:"error_count"`
	AvgResponseTime float64   `json:"avg_response_time_ms"`
	UptimePercent   float64   `json:"uptime_percent"`
	ActiveThreads   []string  `json:"active_threads,omitempty"`
}

// IdentityValidation is the transient result of checking an agent's claimed
// identity against its fingerprint history. Recomputed per call, never stored.
type IdentityValidation struct {
	Valid         bool      `json:"valid"`
	Confidence    float64   `json:"confidence"`
	DriftDetected bool      `json:"drift_detected"`
	Timestamp     time.Time `json:"timestamp"`
}

// IdentityClaim is the identity metadata an agent asserts about itself on a
// status update. The update timestamp is deliberately not part of the claim:
// volatile fields would make every fingerprint unique and the consistency
// comparison meaningless.
type IdentityClaim struct {
	Role         string   `json:"role"`
	Capabilities []string `json:"capabilities,omitempty"`
	Workspace    string   `json:"workspace"`
}

// PerformanceMetrics are derived on read from an agent's recorded samples.
// Nothing here is cached or incrementally maintained.
type PerformanceMetrics struct {
	Throughput        float64 `json:"throughput_per_min"`
	SuccessRate       float64 `json:"success_rate"`
	AvgResponseTime   float64 `json:"avg_response_time_ms"`
	UptimePercent     float64 `json:"uptime_percent"`
	MessageCount      int64   `json:"message_count"`
	ErrorCount        int64   `json:"error_count"`
	IdentityStability float64 `json:"identity_stability"`
}

// errorSample is one recorded failure attributed to an agent.
type errorSample struct {
	at      time.Time
	message string
}

// record is the monitor-internal mutable state for one agent. All access
// happens under the monitor's lock; snapshots copy out of it.
type record struct {
	agentID       string
	online        bool
	lastSeen      time.Time
	lastActivity  time.Time
	sessionToken  string
	sessionExpiry time.Time

	messageCount int64
	errorCount   int64

	responseTimes []float64
	activity      []time.Time
	errors        []errorSample

	fingerprints []uint64
	scores       []float64

	threadIDs   []string
	threadIndex map[string]struct{}
}

// snapshot builds a caller-safe copy. now is needed for the uptime window.
func (r *record) snapshot(now time.Time) *AgentStatus {
	s := &AgentStatus{
		AgentID:         r.agentID,
		Online:          r.online,
		LastSeen:        r.lastSeen,
		LastActivity:    r.lastActivity,
		SessionToken:    r.sessionToken,
		SessionExpiry:   r.sessionExpiry,
		MessageCount:    r.messageCount,
		ErrorCount:      r.errorCount,
		AvgResponseTime: mean(r.responseTimes),
		UptimePercent:   r.uptime(now),
	}
	if len(r.threadIDs) > 0 {
		s.ActiveThreads = append([]string(nil), r.threadIDs...)
	}
	return s
}

// uptime is the percentage of the most recent 60 one-minute buckets with at
// least one activity sample, capped at 100.
func (r *record) uptime(now time.Time) float64 {
	if len(r.activity) == 0 {
		return 0
	}

	var seen [uptimeBuckets]bool
	for _, ts := range r.activity {
		age := now.Sub(ts)
		if age < 0 || age >= uptimeBuckets*time.Minute {
			continue
		}
		seen[int(age/time.Minute)] = true
	}

	active := 0
	for _, hit := range seen {
		if hit {
			active++
		}
	}

	pct := float64(active) / uptimeBuckets * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// mean is the arithmetic mean of the current window, 0 when empty.
func mean(window []float64) float64 {
	if len(window) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	return sum / float64(len(window))
}

// pushBounded appends v and evicts the oldest entries once the window
// exceeds cap. FIFO per the window invariants.
func pushBounded[T any](window []T, v T, capacity int) []T {
	window = append(window, v)
	if len(window) > capacity {
		window = window[len(window)-capacity:]
	}
	return window
}
