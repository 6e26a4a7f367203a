// ABOUTME: Performance metrics derived on demand from recorded samples
// ABOUTME: Throughput, success rate, uptime, and threshold-based rankings

package presence

import (
	"sort"
	"time"
)

// AgentMetric pairs an agent with one metric value, used by the ranking
// queries.
type AgentMetric struct {
	AgentID string  `json:"agent_id"`
	Value   float64 `json:"value"`
}

// Metrics derives the full performance picture for one agent. Everything
// is computed from the current windows on each call; nothing is cached.
// Returns nil for agents never seen.
func (m *Monitor) Metrics(agentID string) *PerformanceMetrics {
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.agents[agentID]
	if !ok {
		return nil
	}
	return &PerformanceMetrics{
		Throughput:        throughput(r, now),
		SuccessRate:       successRate(r),
		AvgResponseTime:   mean(r.responseTimes),
		UptimePercent:     r.uptime(now),
		MessageCount:      r.messageCount,
		ErrorCount:        r.errorCount,
		IdentityStability: stability(r.scores),
	}
}

// throughput is messages per minute over the span of the activity window,
// with a one-minute floor so a burst of samples in the same instant does
// not divide by zero or explode.
func throughput(r *record, now time.Time) float64 {
	if len(r.activity) == 0 || r.messageCount == 0 {
		return 0
	}
	span := now.Sub(r.activity[0])
	if span < time.Minute {
		span = time.Minute
	}
	return float64(r.messageCount) / span.Minutes()
}

// successRate = (messages - errors) / messages, clamped to [0,1]. An agent
// with no messages has nothing to fail, so it rates 1.0.
func successRate(r *record) float64 {
	if r.messageCount == 0 {
		return 1.0
	}
	rate := float64(r.messageCount-r.errorCount) / float64(r.messageCount)
	if rate < 0 {
		return 0
	}
	if rate > 1 {
		return 1
	}
	return rate
}

func stability(scores []float64) float64 {
	if len(scores) == 0 {
		return 1.0
	}
	return mean(scores)
}

// PoorPerformers returns agents whose average response time exceeds
// threshold milliseconds, slowest first.
func (m *Monitor) PoorPerformers(thresholdMs float64) []AgentMetric {
	m.mu.RLock()
	var out []AgentMetric
	for id, r := range m.agents {
		avg := mean(r.responseTimes)
		if avg > thresholdMs {
			out = append(out, AgentMetric{AgentID: id, Value: avg})
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].AgentID < out[j].AgentID
	})
	return out
}

// HighErrorAgents returns agents whose error count exceeds threshold,
// most errors first.
func (m *Monitor) HighErrorAgents(threshold int64) []AgentMetric {
	m.mu.RLock()
	var out []AgentMetric
	for id, r := range m.agents {
		if r.errorCount > threshold {
			out = append(out, AgentMetric{AgentID: id, Value: float64(r.errorCount)})
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].AgentID < out[j].AgentID
	})
	return out
}
