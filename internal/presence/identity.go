// ABOUTME: Identity drift detection from fingerprinted status updates
// ABOUTME: FNV-64a over the claim fields, adjacent-pair consistency scoring

package presence

import (
	"hash/fnv"
	"sort"
	"strings"
)

// Thresholds for interpreting the consistency score. The half-open band
// between them means an identity can be valid and drifting at once; callers
// must read both flags.
const (
	driftThreshold = 0.7
	validThreshold = 0.5
)

// fingerprint hashes the identity-relevant fields of a status update.
// The update timestamp is never part of the input: hashing anything
// volatile would make every fingerprint unique and drift undetectable.
// Capabilities are sorted so ["a","b"] and ["b","a"] claim the same
// identity.
func fingerprint(agentID string, claim IdentityClaim) uint64 {
	caps := append([]string(nil), claim.Capabilities...)
	sort.Strings(caps)

	h := fnv.New64a()
	h.Write([]byte(agentID))
	h.Write([]byte{0})
	h.Write([]byte(claim.Role))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(caps, ",")))
	h.Write([]byte{0})
	h.Write([]byte(claim.Workspace))
	return h.Sum64()
}

// consistency is the fraction of adjacent fingerprint pairs that are equal,
// 1.0 when there are fewer than two samples to compare.
func consistency(history []uint64) float64 {
	if len(history) < 2 {
		return 1.0
	}
	equal := 0
	for i := 1; i < len(history); i++ {
		if history[i] == history[i-1] {
			equal++
		}
	}
	return float64(equal) / float64(len(history)-1)
}

// RecordIdentity ingests an identity claim from a status update: the
// fingerprint joins the bounded history and the resulting consistency
// score joins the bounded score history. Returns the validation computed
// from the post-update state.
func (m *Monitor) RecordIdentity(agentID string, claim IdentityClaim) IdentityValidation {
	now := m.now()
	fp := fingerprint(agentID, claim)

	m.mu.Lock()
	r := m.getOrCreateLocked(agentID)
	r.fingerprints = pushBounded(r.fingerprints, fp, m.cfg.FingerprintHistory)
	score := consistency(r.fingerprints)
	r.scores = pushBounded(r.scores, score, m.cfg.ScoreHistory)
	m.mu.Unlock()

	v := IdentityValidation{
		Valid:         score > validThreshold,
		Confidence:    score,
		DriftDetected: score < driftThreshold,
		Timestamp:     now,
	}
	if v.DriftDetected {
		m.logger.Warn("identity drift detected",
			"agent_id", agentID,
			"confidence", score)
	}
	return v
}

// ValidateIdentity recomputes the validation from the stored fingerprint
// history without mutating anything. Agents with no recorded claims
// validate clean.
func (m *Monitor) ValidateIdentity(agentID string) IdentityValidation {
	now := m.now()

	m.mu.RLock()
	var score float64 = 1.0
	if r, ok := m.agents[agentID]; ok {
		score = consistency(r.fingerprints)
	}
	m.mu.RUnlock()

	return IdentityValidation{
		Valid:         score > validThreshold,
		Confidence:    score,
		DriftDetected: score < driftThreshold,
		Timestamp:     now,
	}
}

// IdentityStability is the mean of the agent's recorded consistency
// scores, 1.0 when none have been recorded.
func (m *Monitor) IdentityStability(agentID string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.agents[agentID]
	if !ok || len(r.scores) == 0 {
		return 1.0
	}
	return mean(r.scores)
}
