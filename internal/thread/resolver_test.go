// ABOUTME: Tests for thread resolution: reply routing, subject similarity, creation
// ABOUTME: Covers idempotency, participant-order independence, and the urgent tier mapping

package thread

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/store"
)

func newTestResolver(t *testing.T) (*Resolver, *Registry) {
	t.Helper()
	reg := NewRegistry(nil)
	return NewResolver(reg, nil), reg
}

func TestResolver_CreatesAndIndexesThread(t *testing.T) {
	r, reg := newTestResolver(t)

	id, err := r.Resolve("agent-b", "agent-a", "Status Update", store.PriorityNormal, "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"agent-a", "agent-b"}, got.Participants, "participants are stored sorted")
	assert.Equal(t, StateActive, got.State)
	assert.Equal(t, store.PriorityNormal, got.Priority)
	assert.Empty(t, got.Messages)

	// Both participants can find the thread
	assert.Len(t, reg.AgentThreads("agent-a"), 1)
	assert.Len(t, reg.AgentThreads("agent-b"), 1)
}

func TestResolver_Idempotent(t *testing.T) {
	r, _ := newTestResolver(t)

	first, err := r.Resolve("agent-a", "agent-b", "deploy checklist", store.PriorityNormal, "")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := r.Resolve("agent-a", "agent-b", "deploy checklist", store.PriorityNormal, "")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestResolver_ParticipantOrderIrrelevant(t *testing.T) {
	r, _ := newTestResolver(t)

	id1, err := r.Resolve("agent-a", "agent-b", "sync", store.PriorityNormal, "")
	require.NoError(t, err)
	id2, err := r.Resolve("agent-b", "agent-a", "sync", store.PriorityNormal, "")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func TestResolver_ReSubjectMatchesParent(t *testing.T) {
	// Scenario: a thread on "Status Update" should absorb a follow-up titled
	// "Re: Status Update" even without an explicit reply link.
	r, _ := newTestResolver(t)

	id1, err := r.Resolve("agent-a", "agent-b", "Status Update", store.PriorityNormal, "")
	require.NoError(t, err)

	id2, err := r.Resolve("agent-b", "agent-a", "Re: Status Update", store.PriorityNormal, "")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func TestResolver_ReplyToWinsOverSubject(t *testing.T) {
	r, reg := newTestResolver(t)

	id1, err := r.Resolve("agent-a", "agent-b", "alpha", store.PriorityNormal, "")
	require.NoError(t, err)
	require.NoError(t, reg.AddMessage(id1, MessageRef{
		ID: "m1", Sender: "agent-a", Recipient: "agent-b", Subject: "alpha",
		Timestamp: time.Now(), State: store.StateSent, Priority: store.PriorityNormal,
	}))

	// Entirely unrelated subject, but replyTo pins it to the parent thread
	id2, err := r.Resolve("agent-b", "agent-a", "completely different topic", store.PriorityNormal, "m1")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestResolver_UnknownReplyToFallsThrough(t *testing.T) {
	r, _ := newTestResolver(t)

	id1, err := r.Resolve("agent-a", "agent-b", "alpha", store.PriorityNormal, "")
	require.NoError(t, err)

	id2, err := r.Resolve("agent-a", "agent-b", "alpha", store.PriorityNormal, "never-indexed")
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "stale reply id should still match by participants and subject")
}

func TestResolver_DifferentParticipantsNewThread(t *testing.T) {
	r, _ := newTestResolver(t)

	id1, err := r.Resolve("agent-a", "agent-b", "same subject", store.PriorityNormal, "")
	require.NoError(t, err)
	id2, err := r.Resolve("agent-a", "agent-c", "same subject", store.PriorityNormal, "")
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
}

func TestResolver_ArchivedThreadNotACandidate(t *testing.T) {
	r, reg := newTestResolver(t)

	id1, err := r.Resolve("agent-a", "agent-b", "quarterly numbers", store.PriorityNormal, "")
	require.NoError(t, err)
	require.True(t, reg.Archive(id1))

	id2, err := r.Resolve("agent-a", "agent-b", "quarterly numbers", store.PriorityNormal, "")
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestResolver_FirstMatchInCreationOrder(t *testing.T) {
	r, reg := newTestResolver(t)

	// Two active threads for the same pair whose subjects both match the probe
	id1, err := r.Resolve("agent-a", "agent-b", "build status", store.PriorityNormal, "")
	require.NoError(t, err)
	_, err = r.Resolve("agent-a", "agent-b", "release status", store.PriorityNormal, "")
	require.NoError(t, err)
	require.Equal(t, 2, reg.Stats().TotalThreads)

	// "status" is contained in both subjects; the oldest thread wins
	got, err := r.Resolve("agent-a", "agent-b", "status", store.PriorityNormal, "")
	require.NoError(t, err)
	assert.Equal(t, id1, got)
}

func TestResolver_UrgentMapsToHighTier(t *testing.T) {
	r, reg := newTestResolver(t)

	id, err := r.Resolve("agent-a", "agent-b", "fire", store.PriorityUrgent, "")
	require.NoError(t, err)

	got, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, store.PriorityHigh, got.Priority)
}

func TestResolver_Validation(t *testing.T) {
	r, _ := newTestResolver(t)

	_, err := r.Resolve("", "agent-b", "s", store.PriorityNormal, "")
	assert.Error(t, err)

	_, err = r.Resolve("agent-a", "", "s", store.PriorityNormal, "")
	assert.Error(t, err)

	_, err = r.Resolve("agent-a", "agent-a", "s", store.PriorityNormal, "")
	assert.Error(t, err)
}

func TestNormalizeSubject(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Status Update", "status update"},
		{"Re: Status Update", "status update"},
		{"RE: Status Update", "status update"},
		{"  re:   spaced  ", "spaced"},
		{"revision plan", "revision plan"}, // "re" prefix inside a word stays
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeSubject(tt.in), "input %q", tt.in)
	}
}

func TestSubjectsMatch(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"identical", "deploy plan", "deploy plan", true},
		{"re prefix", "Status Update", "Re: Status Update", true},
		{"containment", "status", "release status", true},
		{"case folding", "ALPHA BETA", "alpha beta", true},
		{"half tokens shared", "alpha beta gamma delta", "alpha beta x y", true},
		{"below half", "deploy api today", "deploy web tomorrow", false},
		{"disjoint", "alpha", "beta", false},
		{"empty matches anything by containment", "", "whatever", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, subjectsMatch(tt.a, tt.b))
			assert.Equal(t, tt.want, subjectsMatch(tt.b, tt.a), "similarity is symmetric")
		})
	}
}
