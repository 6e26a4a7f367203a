// ABOUTME: Status pack provides presence sync and thread inspection tools.
// ABOUTME: Requires the "status" capability.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/parley/internal/comms"
	"github.com/2389/parley/internal/store"
	"github.com/2389/parley/internal/thread"
)

// StatusPack creates the status pack with presence and thread tools.
func StatusPack(svc *comms.Service, threads *thread.Registry) *Pack {
	s := &statusHandlers{svc: svc, threads: threads}
	return &Pack{
		ID: "builtin:status",
		Tools: []*Tool{
			{
				Definition: &Definition{
					Name:                 "agent_sync_status",
					Description:          "Report presence, identity, and performance for yourself",
					InputSchema:          `{"type":"object","properties":{"identity":{"type":"object","properties":{"role":{"type":"string"},"capabilities":{"type":"array","items":{"type":"string"}},"workspace":{"type":"string"}}},"interactions":{"type":"array","items":{"type":"string"}}}}`,
					RequiredCapabilities: []string{"status"},
				},
				Handler: s.SyncStatus,
			},
			{
				Definition: &Definition{
					Name:                 "agent_threads",
					Description:          "List the conversation threads you participate in",
					InputSchema:          `{"type":"object","properties":{}}`,
					RequiredCapabilities: []string{"status"},
				},
				Handler: s.AgentThreads,
			},
			{
				Definition: &Definition{
					Name:                 "thread_messages",
					Description:          "Read a page of messages from one of your threads",
					InputSchema:          `{"type":"object","properties":{"thread_id":{"type":"string"},"limit":{"type":"integer"},"offset":{"type":"integer"}},"required":["thread_id"]}`,
					RequiredCapabilities: []string{"status"},
				},
				Handler: s.ThreadMessages,
			},
			{
				Definition: &Definition{
					Name:                 "archive_thread",
					Description:          "Archive one of your active threads",
					InputSchema:          `{"type":"object","properties":{"thread_id":{"type":"string"}},"required":["thread_id"]}`,
					RequiredCapabilities: []string{"status"},
				},
				Handler: s.ArchiveThread,
			},
			{
				Definition: &Definition{
					Name:                 "close_thread",
					Description:          "Close one of your active threads",
					InputSchema:          `{"type":"object","properties":{"thread_id":{"type":"string"}},"required":["thread_id"]}`,
					RequiredCapabilities: []string{"status"},
				},
				Handler: s.CloseThread,
			},
			{
				Definition: &Definition{
					Name:                 "thread_stats",
					Description:          "Aggregate counts over all conversation threads",
					InputSchema:          `{"type":"object","properties":{}}`,
					RequiredCapabilities: []string{"status"},
				},
				Handler: s.ThreadStats,
			},
		},
	}
}

type statusHandlers struct {
	svc     *comms.Service
	threads *thread.Registry
}

type syncStatusInput struct {
	Identity     *identityInput `json:"identity"`
	Interactions []string       `json:"interactions"`
}

func (s *statusHandlers) SyncStatus(ctx context.Context, agentID string, input json.RawMessage) (json.RawMessage, error) {
	var in syncStatusInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	report, err := s.svc.SyncStatus(&comms.StatusRequest{
		AgentID:      agentID,
		Identity:     in.Identity.claim(),
		Interactions: in.Interactions,
	})
	if err != nil {
		return nil, err
	}

	return json.Marshal(report)
}

// threadSummary is the JSON shape a thread takes in tool results. Message
// bodies stay out; thread_messages pages through the projections.
type threadSummary struct {
	ID           string         `json:"id"`
	Participants []string       `json:"participants"`
	Subject      string         `json:"subject,omitempty"`
	Priority     store.Priority `json:"priority"`
	State        thread.State   `json:"state"`
	MessageCount int            `json:"message_count"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
}

func newThreadSummary(t *thread.Thread) threadSummary {
	return threadSummary{
		ID:           t.ID,
		Participants: t.Participants,
		Subject:      t.Subject,
		Priority:     t.Priority,
		State:        t.State,
		MessageCount: len(t.Messages),
		CreatedAt:    t.CreatedAt,
		LastActivity: t.LastActivity,
	}
}

func (s *statusHandlers) AgentThreads(ctx context.Context, agentID string, input json.RawMessage) (json.RawMessage, error) {
	threads := s.threads.AgentThreads(agentID)

	summaries := make([]threadSummary, len(threads))
	for i, t := range threads {
		summaries[i] = newThreadSummary(t)
	}

	return json.Marshal(map[string]any{"threads": summaries, "count": len(summaries)})
}

type threadIDInput struct {
	ThreadID string `json:"thread_id"`
	Limit    int    `json:"limit"`
	Offset   int    `json:"offset"`
}

// agentThread fetches a thread the agent participates in. Unknown threads and
// threads the agent is not part of both come back as not found.
func (s *statusHandlers) agentThread(threadID, agentID string) (*thread.Thread, error) {
	t, err := s.threads.Get(threadID)
	if err != nil {
		return nil, fmt.Errorf("thread not found")
	}
	for _, p := range t.Participants {
		if p == agentID {
			return t, nil
		}
	}
	return nil, fmt.Errorf("thread not found")
}

func (s *statusHandlers) ThreadMessages(ctx context.Context, agentID string, input json.RawMessage) (json.RawMessage, error) {
	var in threadIDInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.ThreadID == "" {
		return nil, fmt.Errorf("thread_id is required")
	}

	if _, err := s.agentThread(in.ThreadID, agentID); err != nil {
		return nil, err
	}

	msgs, err := s.threads.ThreadMessages(in.ThreadID, in.Limit, in.Offset)
	if err != nil {
		return nil, err
	}

	return json.Marshal(map[string]any{"messages": msgs, "count": len(msgs)})
}

func (s *statusHandlers) ArchiveThread(ctx context.Context, agentID string, input json.RawMessage) (json.RawMessage, error) {
	var in threadIDInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.ThreadID == "" {
		return nil, fmt.Errorf("thread_id is required")
	}

	if _, err := s.agentThread(in.ThreadID, agentID); err != nil {
		return nil, err
	}
	if !s.threads.Archive(in.ThreadID) {
		return nil, fmt.Errorf("thread %s is not active", in.ThreadID)
	}

	return json.Marshal(map[string]string{"thread_id": in.ThreadID, "status": "archived"})
}

func (s *statusHandlers) CloseThread(ctx context.Context, agentID string, input json.RawMessage) (json.RawMessage, error) {
	var in threadIDInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.ThreadID == "" {
		return nil, fmt.Errorf("thread_id is required")
	}

	if _, err := s.agentThread(in.ThreadID, agentID); err != nil {
		return nil, err
	}
	if !s.threads.Close(in.ThreadID) {
		return nil, fmt.Errorf("thread %s is not active", in.ThreadID)
	}

	return json.Marshal(map[string]string{"thread_id": in.ThreadID, "status": "closed"})
}

func (s *statusHandlers) ThreadStats(ctx context.Context, agentID string, input json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(s.threads.Stats())
}
