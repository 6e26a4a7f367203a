// ABOUTME: Manage pack provides bulk mailbox maintenance tools.
// ABOUTME: Requires the "manage" capability.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/parley/internal/mailbox"
	"github.com/2389/parley/internal/store"
)

// ManagePack creates the manage pack with bulk mailbox tools.
func ManagePack(lifecycle *mailbox.Service) *Pack {
	m := &manageHandlers{lifecycle: lifecycle}
	return &Pack{
		ID: "builtin:manage",
		Tools: []*Tool{
			{
				Definition: &Definition{
					Name:                 "bulk_mark_read",
					Description:          "Mark a batch of messages as read",
					InputSchema:          `{"type":"object","properties":{"message_ids":{"type":"array","items":{"type":"string"}}},"required":["message_ids"]}`,
					RequiredCapabilities: []string{"manage"},
				},
				Handler: m.BulkMarkRead,
			},
			{
				Definition: &Definition{
					Name:                 "update_states",
					Description:          "Apply one state transition to a batch of messages",
					InputSchema:          `{"type":"object","properties":{"message_ids":{"type":"array","items":{"type":"string"}},"state":{"type":"string","enum":["sent","arrived","unread","read","replied","ignored"]}},"required":["message_ids","state"]}`,
					RequiredCapabilities: []string{"manage"},
				},
				Handler: m.UpdateStates,
			},
			{
				Definition: &Definition{
					Name:                 "delete_messages",
					Description:          "Delete messages from your mailbox",
					InputSchema:          `{"type":"object","properties":{"message_ids":{"type":"array","items":{"type":"string"}}},"required":["message_ids"]}`,
					RequiredCapabilities: []string{"manage"},
				},
				Handler: m.DeleteMessages,
			},
			{
				Definition: &Definition{
					Name:                 "empty_mailbox",
					Description:          "Delete every message in your mailbox, optionally filtered",
					InputSchema:          `{"type":"object","properties":{"state":{"type":"string","enum":["sent","arrived","unread","read","replied","ignored"]},"thread_id":{"type":"string"},"since":{"type":"string","format":"date-time"}}}`,
					RequiredCapabilities: []string{"manage"},
				},
				Handler: m.EmptyMailbox,
			},
		},
	}
}

type manageHandlers struct {
	lifecycle *mailbox.Service
}

func parseState(s string) (store.State, error) {
	st, ok := store.ParseState(s)
	if !ok {
		return "", fmt.Errorf("invalid state: %q", s)
	}
	return st, nil
}

type batchInput struct {
	MessageIDs []string `json:"message_ids"`
}

func (m *manageHandlers) BulkMarkRead(ctx context.Context, agentID string, input json.RawMessage) (json.RawMessage, error) {
	var in batchInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if len(in.MessageIDs) == 0 {
		return nil, fmt.Errorf("message_ids is required")
	}

	result, err := m.lifecycle.BulkMarkRead(ctx, in.MessageIDs)
	if err != nil {
		return nil, err
	}

	return json.Marshal(result)
}

type updateStatesInput struct {
	MessageIDs []string `json:"message_ids"`
	State      string   `json:"state"`
}

func (m *manageHandlers) UpdateStates(ctx context.Context, agentID string, input json.RawMessage) (json.RawMessage, error) {
	var in updateStatesInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if len(in.MessageIDs) == 0 {
		return nil, fmt.Errorf("message_ids is required")
	}
	if in.State == "" {
		return nil, fmt.Errorf("state is required")
	}
	state, err := parseState(in.State)
	if err != nil {
		return nil, err
	}

	result, err := m.lifecycle.BulkUpdateState(ctx, in.MessageIDs, state)
	if err != nil {
		return nil, err
	}

	return json.Marshal(result)
}

func (m *manageHandlers) DeleteMessages(ctx context.Context, agentID string, input json.RawMessage) (json.RawMessage, error) {
	var in batchInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if len(in.MessageIDs) == 0 {
		return nil, fmt.Errorf("message_ids is required")
	}

	deleted, err := m.lifecycle.DeleteMessages(ctx, agentID, in.MessageIDs)
	if err != nil {
		return nil, err
	}

	return json.Marshal(map[string]int{"deleted": deleted})
}

type emptyMailboxInput struct {
	State    string `json:"state"`
	ThreadID string `json:"thread_id"`
	Since    string `json:"since"`
}

func (m *manageHandlers) EmptyMailbox(ctx context.Context, agentID string, input json.RawMessage) (json.RawMessage, error) {
	var in emptyMailboxInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	f := store.Filter{ThreadID: in.ThreadID}
	if in.State != "" {
		state, err := parseState(in.State)
		if err != nil {
			return nil, err
		}
		f.State = state
	}
	if in.Since != "" {
		t, err := time.Parse(time.RFC3339, in.Since)
		if err != nil {
			return nil, fmt.Errorf("invalid since date: %w", err)
		}
		f.Since = &t
	}

	deleted, err := m.lifecycle.EmptyMailbox(ctx, agentID, f)
	if err != nil {
		return nil, err
	}

	return json.Marshal(map[string]int{"deleted": deleted})
}
