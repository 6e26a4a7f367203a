// ABOUTME: Tests for derived performance metrics and threshold rankings
// ABOUTME: Throughput, success rate, and uptime come from live windows only

package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_UnknownAgent(t *testing.T) {
	m, _ := newTestMonitor(t)
	assert.Nil(t, m.Metrics("ghost"))
}

func TestMetrics_FreshAgentDefaults(t *testing.T) {
	m, _ := newTestMonitor(t)
	m.RecordActivity("agent-a")

	got := m.Metrics("agent-a")
	require.NotNil(t, got)
	assert.Equal(t, 0.0, got.Throughput, "activity without messages moves nothing")
	assert.Equal(t, 1.0, got.SuccessRate, "no messages means nothing failed")
	assert.Equal(t, 0.0, got.AvgResponseTime)
	assert.Equal(t, 1.0, got.IdentityStability)
}

func TestMetrics_Throughput(t *testing.T) {
	m, clock := newTestMonitor(t)

	// 10 messages over 5 minutes: 2 per minute.
	for i := 0; i < 10; i++ {
		m.RecordMessage("agent-a")
		clock.Advance(30 * time.Second)
	}

	got := m.Metrics("agent-a")
	require.NotNil(t, got)
	assert.InDelta(t, 2.0, got.Throughput, 0.01)
}

func TestMetrics_ThroughputFloorsAtOneMinute(t *testing.T) {
	m, _ := newTestMonitor(t)

	// A burst with no elapsed time measures against a one-minute span
	// instead of dividing by zero.
	for i := 0; i < 30; i++ {
		m.RecordMessage("agent-a")
	}

	got := m.Metrics("agent-a")
	require.NotNil(t, got)
	assert.InDelta(t, 30.0, got.Throughput, 0.01)
}

func TestMetrics_SuccessRate(t *testing.T) {
	m, _ := newTestMonitor(t)

	for i := 0; i < 10; i++ {
		m.RecordMessage("agent-a")
	}
	m.RecordError("agent-a", "timeout")
	m.RecordError("agent-a", "timeout")

	got := m.Metrics("agent-a")
	require.NotNil(t, got)
	assert.InDelta(t, 0.8, got.SuccessRate, 1e-9)
}

func TestMetrics_SuccessRateClamped(t *testing.T) {
	m, _ := newTestMonitor(t)

	// More errors than messages clamps to zero rather than going negative.
	m.RecordMessage("agent-a")
	for i := 0; i < 5; i++ {
		m.RecordError("agent-a", "boom")
	}

	got := m.Metrics("agent-a")
	require.NotNil(t, got)
	assert.Equal(t, 0.0, got.SuccessRate)
}

func TestMetrics_CarriesCountsAndStability(t *testing.T) {
	m, _ := newTestMonitor(t)

	m.RecordMessage("agent-a")
	m.RecordError("agent-a", "late")
	m.RecordResponseTime("agent-a", 250)
	m.RecordIdentity("agent-a", IdentityClaim{Role: "r"})

	got := m.Metrics("agent-a")
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.MessageCount)
	assert.Equal(t, int64(1), got.ErrorCount)
	assert.Equal(t, 250.0, got.AvgResponseTime)
	assert.Equal(t, 1.0, got.IdentityStability)
}

func TestPoorPerformers(t *testing.T) {
	m, _ := newTestMonitor(t)

	m.RecordResponseTime("slow", 900)
	m.RecordResponseTime("slower", 1500)
	m.RecordResponseTime("fast", 50)

	got := m.PoorPerformers(500)
	require.Len(t, got, 2)
	assert.Equal(t, "slower", got[0].AgentID, "sorted descending by average")
	assert.Equal(t, 1500.0, got[0].Value)
	assert.Equal(t, "slow", got[1].AgentID)

	assert.Empty(t, m.PoorPerformers(2000))
	// Threshold is exclusive.
	assert.Len(t, m.PoorPerformers(1500), 1)
}

func TestHighErrorAgents(t *testing.T) {
	m, _ := newTestMonitor(t)

	for i := 0; i < 5; i++ {
		m.RecordError("flaky", "err")
	}
	for i := 0; i < 2; i++ {
		m.RecordError("mostly-fine", "err")
	}
	m.RecordMessage("clean")

	got := m.HighErrorAgents(1)
	require.Len(t, got, 2)
	assert.Equal(t, "flaky", got[0].AgentID)
	assert.Equal(t, 5.0, got[0].Value)
	assert.Equal(t, "mostly-fine", got[1].AgentID)

	// Threshold is exclusive: exactly 2 errors does not exceed 2.
	got = m.HighErrorAgents(2)
	require.Len(t, got, 1)
	assert.Equal(t, "flaky", got[0].AgentID)
}

func TestMetrics_UptimeWithinBounds(t *testing.T) {
	m, clock := newTestMonitor(t)

	for i := 0; i < 30; i++ {
		m.RecordMessage("agent-a")
		clock.Advance(2 * time.Minute)
	}

	got := m.Metrics("agent-a")
	require.NotNil(t, got)
	assert.GreaterOrEqual(t, got.UptimePercent, 0.0)
	assert.LessOrEqual(t, got.UptimePercent, 100.0)
	// Every other minute active over the last hour lands near 50%.
	assert.InDelta(t, 50.0, got.UptimePercent, 5.0)
}
