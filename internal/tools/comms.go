// ABOUTME: Comms pack provides the message exchange tools: send, receive, reply.
// ABOUTME: Requires the "comms" capability.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/parley/internal/comms"
	"github.com/2389/parley/internal/presence"
	"github.com/2389/parley/internal/store"
)

// CommsPack creates the comms pack with the message exchange tools.
func CommsPack(svc *comms.Service) *Pack {
	c := &commsHandlers{svc: svc}
	return &Pack{
		ID: "builtin:comms",
		Tools: []*Tool{
			{
				Definition: &Definition{
					Name:                 "send",
					Description:          "Send a message to another agent",
					InputSchema:          `{"type":"object","properties":{"to":{"type":"string"},"subject":{"type":"string"},"content":{"type":"string"},"priority":{"type":"string","enum":["low","normal","high","urgent"]},"security":{"type":"string","enum":["none","basic","signed","encrypted"]},"reply_to":{"type":"string"},"requires_reply":{"type":"boolean"},"metadata":{"type":"object","additionalProperties":{"type":"string"}},"identity":{"type":"object","properties":{"role":{"type":"string"},"capabilities":{"type":"array","items":{"type":"string"}},"workspace":{"type":"string"}}},"request_id":{"type":"string"}},"required":["to","content"]}`,
					RequiredCapabilities: []string{"comms"},
				},
				Handler: c.Send,
			},
			{
				Definition: &Definition{
					Name:                 "receive",
					Description:          "Fetch messages from your mailbox",
					InputSchema:          `{"type":"object","properties":{"unread_only":{"type":"boolean"},"since":{"type":"string","format":"date-time"},"limit":{"type":"integer"}}}`,
					RequiredCapabilities: []string{"comms"},
				},
				Handler: c.Receive,
			},
			{
				Definition: &Definition{
					Name:                 "reply",
					Description:          "Reply to a message you received",
					InputSchema:          `{"type":"object","properties":{"message_id":{"type":"string"},"content":{"type":"string"},"priority":{"type":"string","enum":["low","normal","high","urgent"]},"security":{"type":"string","enum":["none","basic","signed","encrypted"]},"metadata":{"type":"object","additionalProperties":{"type":"string"}},"identity":{"type":"object","properties":{"role":{"type":"string"},"capabilities":{"type":"array","items":{"type":"string"}},"workspace":{"type":"string"}}},"request_id":{"type":"string"}},"required":["message_id","content"]}`,
					RequiredCapabilities: []string{"comms"},
				},
				Handler: c.Reply,
			},
			{
				Definition: &Definition{
					Name:                 "mark_read",
					Description:          "Mark a received message as read",
					InputSchema:          `{"type":"object","properties":{"message_id":{"type":"string"}},"required":["message_id"]}`,
					RequiredCapabilities: []string{"comms"},
				},
				Handler: c.MarkRead,
			},
			{
				Definition: &Definition{
					Name:                 "mark_replied",
					Description:          "Mark a read message as replied without sending a reply",
					InputSchema:          `{"type":"object","properties":{"message_id":{"type":"string"}},"required":["message_id"]}`,
					RequiredCapabilities: []string{"comms"},
				},
				Handler: c.MarkReplied,
			},
		},
	}
}

type commsHandlers struct {
	svc *comms.Service
}

// identityInput is the optional identity claim agents piggyback on sends.
type identityInput struct {
	Role         string   `json:"role"`
	Capabilities []string `json:"capabilities"`
	Workspace    string   `json:"workspace"`
}

func (in *identityInput) claim() *presence.IdentityClaim {
	if in == nil {
		return nil
	}
	return &presence.IdentityClaim{
		Role:         in.Role,
		Capabilities: in.Capabilities,
		Workspace:    in.Workspace,
	}
}

func parsePriority(s string) (store.Priority, error) {
	p, ok := store.ParsePriority(s)
	if !ok {
		return "", fmt.Errorf("invalid priority: %q", s)
	}
	return p, nil
}

func parseSecurity(s string) (store.SecurityLevel, error) {
	l, ok := store.ParseSecurityLevel(s)
	if !ok {
		return "", fmt.Errorf("invalid security level: %q", s)
	}
	return l, nil
}

// messageView is the JSON shape a message takes in tool results.
type messageView struct {
	ID            string              `json:"id"`
	ThreadID      string              `json:"thread_id"`
	From          string              `json:"from"`
	To            string              `json:"to"`
	Subject       string              `json:"subject,omitempty"`
	Content       string              `json:"content"`
	Priority      store.Priority      `json:"priority"`
	State         store.State         `json:"state"`
	Security      store.SecurityLevel `json:"security"`
	ReplyTo       string              `json:"reply_to,omitempty"`
	RequiresReply bool                `json:"requires_reply,omitempty"`
	Metadata      map[string]string   `json:"metadata,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	ReadAt        *time.Time          `json:"read_at,omitempty"`
}

func newMessageView(m *store.Message) messageView {
	return messageView{
		ID:            m.ID,
		ThreadID:      m.ThreadID,
		From:          m.Sender,
		To:            m.Recipient,
		Subject:       m.Subject,
		Content:       m.Content,
		Priority:      m.Priority,
		State:         m.State,
		Security:      m.SecurityLevel,
		ReplyTo:       m.ReplyTo,
		RequiresReply: m.RequiresReply,
		Metadata:      m.Metadata,
		CreatedAt:     m.CreatedAt,
		ReadAt:        m.ReadAt,
	}
}

type sendInput struct {
	To            string            `json:"to"`
	Subject       string            `json:"subject"`
	Content       string            `json:"content"`
	Priority      string            `json:"priority"`
	Security      string            `json:"security"`
	ReplyTo       string            `json:"reply_to"`
	RequiresReply bool              `json:"requires_reply"`
	Metadata      map[string]string `json:"metadata"`
	Identity      *identityInput    `json:"identity"`
	RequestID     string            `json:"request_id"`
}

func (c *commsHandlers) Send(ctx context.Context, agentID string, input json.RawMessage) (json.RawMessage, error) {
	var in sendInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	if in.To == "" {
		return nil, fmt.Errorf("to is required")
	}
	if in.Content == "" {
		return nil, fmt.Errorf("content is required")
	}
	priority, err := parsePriority(in.Priority)
	if err != nil {
		return nil, err
	}
	security, err := parseSecurity(in.Security)
	if err != nil {
		return nil, err
	}

	result, err := c.svc.Send(ctx, &comms.SendRequest{
		From:          agentID,
		To:            in.To,
		Subject:       in.Subject,
		Content:       in.Content,
		Priority:      priority,
		Security:      security,
		ReplyTo:       in.ReplyTo,
		RequiresReply: in.RequiresReply,
		Metadata:      in.Metadata,
		Identity:      in.Identity.claim(),
		RequestID:     in.RequestID,
	})
	if err != nil {
		return nil, err
	}

	return json.Marshal(result)
}

type receiveInput struct {
	UnreadOnly bool   `json:"unread_only"`
	Since      string `json:"since"`
	Limit      int    `json:"limit"`
}

func (c *commsHandlers) Receive(ctx context.Context, agentID string, input json.RawMessage) (json.RawMessage, error) {
	var in receiveInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	var since *time.Time
	if in.Since != "" {
		t, err := time.Parse(time.RFC3339, in.Since)
		if err != nil {
			return nil, fmt.Errorf("invalid since date: %w", err)
		}
		since = &t
	}

	msgs, err := c.svc.Receive(ctx, &comms.ReceiveRequest{
		Agent:      agentID,
		UnreadOnly: in.UnreadOnly,
		Since:      since,
		Limit:      in.Limit,
	})
	if err != nil {
		return nil, err
	}

	views := make([]messageView, len(msgs))
	for i, m := range msgs {
		views[i] = newMessageView(m)
	}

	return json.Marshal(map[string]any{"messages": views, "count": len(views)})
}

type replyInput struct {
	MessageID string            `json:"message_id"`
	Content   string            `json:"content"`
	Priority  string            `json:"priority"`
	Security  string            `json:"security"`
	Metadata  map[string]string `json:"metadata"`
	Identity  *identityInput    `json:"identity"`
	RequestID string            `json:"request_id"`
}

func (c *commsHandlers) Reply(ctx context.Context, agentID string, input json.RawMessage) (json.RawMessage, error) {
	var in replyInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	if in.MessageID == "" {
		return nil, fmt.Errorf("message_id is required")
	}
	if in.Content == "" {
		return nil, fmt.Errorf("content is required")
	}
	priority, err := parsePriority(in.Priority)
	if err != nil {
		return nil, err
	}
	security, err := parseSecurity(in.Security)
	if err != nil {
		return nil, err
	}

	result, err := c.svc.Reply(ctx, &comms.ReplyRequest{
		MessageID: in.MessageID,
		From:      agentID,
		Content:   in.Content,
		Priority:  priority,
		Security:  security,
		Metadata:  in.Metadata,
		Identity:  in.Identity.claim(),
		RequestID: in.RequestID,
	})
	if err != nil {
		return nil, err
	}

	return json.Marshal(result)
}

type markInput struct {
	MessageID string `json:"message_id"`
}

func (c *commsHandlers) MarkRead(ctx context.Context, agentID string, input json.RawMessage) (json.RawMessage, error) {
	var in markInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.MessageID == "" {
		return nil, fmt.Errorf("message_id is required")
	}

	if err := c.svc.MarkRead(ctx, agentID, in.MessageID); err != nil {
		return nil, err
	}

	return json.Marshal(map[string]string{"message_id": in.MessageID, "status": "read"})
}

func (c *commsHandlers) MarkReplied(ctx context.Context, agentID string, input json.RawMessage) (json.RawMessage, error) {
	var in markInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.MessageID == "" {
		return nil, fmt.Errorf("message_id is required")
	}

	if err := c.svc.MarkReplied(ctx, agentID, in.MessageID); err != nil {
		return nil, err
	}

	return json.Marshal(map[string]string{"message_id": in.MessageID, "status": "replied"})
}
