// ABOUTME: Service is the central layer tying threads, lifecycle, and presence together
// ABOUTME: Every message flows through here - the store is written before anything else reacts

package comms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/parley/internal/mailbox"
	"github.com/2389/parley/internal/presence"
	"github.com/2389/parley/internal/store"
	"github.com/2389/parley/internal/thread"
)

// defaultReceiveLimit bounds a Receive call that does not name its own limit.
const defaultReceiveLimit = 50

// MessageStore defines what the service needs from storage.
type MessageStore interface {
	Create(ctx context.Context, msg *store.Message) error
	Get(ctx context.Context, id string) (*store.Message, error)
	Query(ctx context.Context, f store.Filter, limit int) ([]*store.Message, error)
}

// Codec defines what the service needs from the envelope layer.
type Codec interface {
	Encode(content, senderID, recipientID string, level store.SecurityLevel) (string, error)
	Decode(envelope, recipientID string) (string, error)
}

// SendCache deduplicates retried sends by request id. Suppression is best
// effort within the cache window.
type SendCache interface {
	Lookup(key string) (string, bool)
	Remember(key, value string)
}

// Config carries the collaborators a Service is built from.
type Config struct {
	Store     MessageStore
	Lifecycle *mailbox.Service
	Threads   *thread.Registry
	Resolver  *thread.Resolver
	Presence  *presence.Monitor
	Codec     Codec

	// Sends is optional; without it request ids are ignored.
	Sends SendCache

	Logger *slog.Logger
}

// Service orchestrates agent messaging: routing into threads, lifecycle
// transitions, envelope encoding, and presence bookkeeping.
type Service struct {
	store     MessageStore
	lifecycle *mailbox.Service
	threads   *thread.Registry
	resolver  *thread.Resolver
	presence  *presence.Monitor
	codec     Codec
	sends     SendCache
	logger    *slog.Logger
}

// New creates the orchestration service. All collaborators except Sends and
// Logger are required.
func New(cfg Config) (*Service, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("comms: store is required")
	case cfg.Lifecycle == nil:
		return nil, errors.New("comms: lifecycle is required")
	case cfg.Threads == nil:
		return nil, errors.New("comms: thread registry is required")
	case cfg.Resolver == nil:
		return nil, errors.New("comms: resolver is required")
	case cfg.Presence == nil:
		return nil, errors.New("comms: presence monitor is required")
	case cfg.Codec == nil:
		return nil, errors.New("comms: codec is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     cfg.Store,
		lifecycle: cfg.Lifecycle,
		threads:   cfg.Threads,
		resolver:  cfg.Resolver,
		presence:  cfg.Presence,
		codec:     cfg.Codec,
		sends:     cfg.Sends,
		logger:    logger.With("component", "comms"),
	}, nil
}

// SendRequest contains everything needed to send a message between agents.
type SendRequest struct {
	// Routing (required)
	From string
	To   string

	// Content
	Subject string
	Content string

	// Delivery options. Zero values mean normal priority and basic security.
	Priority      store.Priority
	Security      store.SecurityLevel
	ReplyTo       string
	RequiresReply bool
	Metadata      map[string]string

	// Identity, when supplied, is the sender's identity claim piggybacked
	// on the send and fed to drift detection.
	Identity *presence.IdentityClaim

	// RequestID lets retries of the same logical send be answered with the
	// original result instead of producing a second message.
	RequestID string
}

// SendResult reports what a send produced.
type SendResult struct {
	MessageID string      `json:"message_id"`
	ThreadID  string      `json:"thread_id"`
	State     store.State `json:"state"`
	CreatedAt time.Time   `json:"created_at"`

	// Duplicate marks a send answered from the idempotency cache.
	Duplicate bool `json:"duplicate,omitempty"`

	// GhostRecipient marks a recipient presence has never observed. The
	// send still goes through; the flag is advisory.
	GhostRecipient bool `json:"ghost_recipient,omitempty"`
}

// Send routes a message into its thread and persists it.
//
// Key principle: record first, then react. The message is written to the
// store before the thread projection and presence are updated, so a crash
// mid-send can leave bookkeeping behind but never lose the message body.
func (s *Service) Send(ctx context.Context, req *SendRequest) (*SendResult, error) {
	if req.From == "" {
		return nil, fmt.Errorf("from_agent is required")
	}
	if req.To == "" {
		return nil, fmt.Errorf("to_agent is required")
	}
	if req.Content == "" {
		return nil, fmt.Errorf("content is required")
	}

	priority := req.Priority
	if priority == "" {
		priority = store.PriorityNormal
	}
	security := req.Security
	if security == "" {
		security = store.SecurityBasic
	}

	// A retry carrying a known request id is answered with the original.
	if req.RequestID != "" && s.sends != nil {
		if msgID, ok := s.sends.Lookup(req.RequestID); ok {
			if prior, err := s.store.Get(ctx, msgID); err == nil {
				s.logger.Debug("duplicate send suppressed",
					"request_id", req.RequestID,
					"message_id", msgID)
				return &SendResult{
					MessageID: prior.ID,
					ThreadID:  prior.ThreadID,
					State:     prior.State,
					CreatedAt: prior.CreatedAt,
					Duplicate: true,
				}, nil
			}
			// The cached message is gone; treat the retry as fresh.
		}
	}

	// 1. Resolve or create the thread.
	threadID, err := s.resolver.Resolve(req.From, req.To, req.Subject, priority, req.ReplyTo)
	if err != nil {
		return nil, fmt.Errorf("thread resolution failed: %w", err)
	}

	// 2. Encode the body at the requested security level.
	encoded, err := s.codec.Encode(req.Content, req.From, req.To, security)
	if err != nil {
		return nil, fmt.Errorf("encoding content: %w", err)
	}

	// 3. Record the message FIRST (the store is the source of truth).
	now := time.Now().UTC()
	msg := &store.Message{
		ID:            uuid.New().String(),
		ThreadID:      threadID,
		Sender:        req.From,
		Recipient:     req.To,
		Subject:       req.Subject,
		Content:       encoded,
		Priority:      priority,
		State:         store.StateSent,
		SecurityLevel: security,
		ReplyTo:       req.ReplyTo,
		RequiresReply: req.RequiresReply,
		Metadata:      req.Metadata,
		CreatedAt:     now,
	}
	if err := s.store.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to record message: %w", err)
	}

	// 4. Append the projection to the thread.
	ref := thread.MessageRef{
		ID:        msg.ID,
		Sender:    msg.Sender,
		Recipient: msg.Recipient,
		Subject:   msg.Subject,
		Timestamp: msg.CreatedAt,
		State:     msg.State,
		Priority:  msg.Priority,
		ReplyTo:   msg.ReplyTo,
	}
	if err := s.threads.AddMessage(threadID, ref); err != nil {
		return nil, fmt.Errorf("appending to thread %s: %w", threadID, err)
	}

	// 5. Presence bookkeeping. Ghost detection happens before any of it can
	// create a record for the recipient.
	ghost := !s.presence.Known(req.To)
	s.presence.RecordMessage(req.From)
	s.presence.RecordThread(req.From, threadID)
	if !ghost {
		s.presence.RecordThread(req.To, threadID)
	}
	if req.Identity != nil {
		s.presence.RecordIdentity(req.From, *req.Identity)
	}

	if req.RequestID != "" && s.sends != nil {
		s.sends.Remember(req.RequestID, msg.ID)
	}

	s.logger.Debug("message sent",
		"message_id", msg.ID,
		"thread_id", threadID,
		"from", req.From,
		"to", req.To,
		"ghost_recipient", ghost)

	return &SendResult{
		MessageID:      msg.ID,
		ThreadID:       threadID,
		State:          msg.State,
		CreatedAt:      msg.CreatedAt,
		GhostRecipient: ghost,
	}, nil
}

// ReplyRequest answers an existing message.
type ReplyRequest struct {
	// MessageID names the message being answered (required).
	MessageID string

	// From is the replying agent (required). Only the original recipient
	// may reply.
	From string

	Content  string
	Priority store.Priority
	Security store.SecurityLevel
	Metadata map[string]string
	Identity *presence.IdentityClaim

	RequestID string
}

// Reply sends an answer back to the parent's sender, routed into the
// parent's thread, and marks the parent replied. The parent's age at reply
// time feeds the replier's response-time window.
func (s *Service) Reply(ctx context.Context, req *ReplyRequest) (*SendResult, error) {
	if req.MessageID == "" {
		return nil, fmt.Errorf("message_id is required")
	}
	if req.From == "" {
		return nil, fmt.Errorf("from_agent is required")
	}
	if req.Content == "" {
		return nil, fmt.Errorf("content is required")
	}

	parent, err := s.store.Get(ctx, req.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("message %s: %w", req.MessageID, mailbox.ErrMessageNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading message %s: %w", req.MessageID, err)
	}

	// Foreign messages look absent, same as reading them.
	if parent.Recipient != req.From {
		return nil, fmt.Errorf("message %s: %w", req.MessageID, mailbox.ErrMessageNotFound)
	}
	// An ignored parent accepts no reply; reject before creating anything.
	if parent.State == store.StateIgnored {
		return nil, fmt.Errorf("message %s is %s: %w",
			req.MessageID, parent.State, mailbox.ErrInvalidStateTransition)
	}

	result, err := s.Send(ctx, &SendRequest{
		From:      req.From,
		To:        parent.Sender,
		Subject:   replySubject(parent.Subject),
		Content:   req.Content,
		Priority:  req.Priority,
		Security:  req.Security,
		ReplyTo:   parent.ID,
		Metadata:  req.Metadata,
		Identity:  req.Identity,
		RequestID: req.RequestID,
	})
	if err != nil {
		return nil, err
	}
	if result.Duplicate {
		return result, nil
	}

	// The reply is recorded; marking the parent is the follow-through. A
	// second reply finds the parent already replied, which is a no-op.
	if err := s.lifecycle.MarkReplied(ctx, parent.ID); err != nil {
		return nil, fmt.Errorf("marking parent replied: %w", err)
	}

	s.presence.RecordResponseTime(req.From,
		float64(time.Now().UTC().Sub(parent.CreatedAt).Milliseconds()))

	return result, nil
}

// replySubject prefixes "Re: " once.
func replySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(subject)), "re:") {
		return subject
	}
	return "Re: " + subject
}

// ReceiveRequest fetches an agent's mailbox.
type ReceiveRequest struct {
	// Agent is whose mailbox to read (required).
	Agent string

	// UnreadOnly keeps only messages not yet read (sent, arrived, unread).
	UnreadOnly bool

	// Since drops messages created before it.
	Since *time.Time

	// Limit caps how many messages are considered; 0 means the default.
	// With UnreadOnly the page is filtered afterwards, so fewer may return.
	Limit int
}

// Receive returns the agent's messages, newest first, with bodies decoded.
// Fetching is a delivery observation: messages still in sent move to
// arrived, best effort. A body that fails its envelope check aborts the
// whole call with ErrDecryptionFailure from the codec.
func (s *Service) Receive(ctx context.Context, req *ReceiveRequest) ([]*store.Message, error) {
	if req.Agent == "" {
		return nil, fmt.Errorf("agent_id is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultReceiveLimit
	}

	msgs, err := s.store.Query(ctx, store.Filter{Recipient: req.Agent, Since: req.Since}, limit)
	if err != nil {
		return nil, fmt.Errorf("querying mailbox for %s: %w", req.Agent, err)
	}

	out := make([]*store.Message, 0, len(msgs))
	for _, msg := range msgs {
		if req.UnreadOnly && !awaitingRead(msg.State) {
			continue
		}

		if msg.State == store.StateSent {
			// Delivery observation. Failures leave the message in sent;
			// the next fetch tries again.
			if err := s.lifecycle.UpdateState(ctx, msg.ID, store.StateArrived); err != nil {
				s.logger.Warn("arrival transition failed",
					"message_id", msg.ID, "error", err)
			} else {
				msg.State = store.StateArrived
			}
		}

		content, err := s.codec.Decode(msg.Content, req.Agent)
		if err != nil {
			return nil, fmt.Errorf("decoding message %s: %w", msg.ID, err)
		}
		msg.Content = content
		out = append(out, msg)
	}

	s.presence.RecordActivity(req.Agent)
	return out, nil
}

// awaitingRead reports whether a state still counts as unread mail.
func awaitingRead(st store.State) bool {
	return st == store.StateSent || st == store.StateArrived || st == store.StateUnread
}

// MarkRead moves one of the agent's own messages to read. Messages owned by
// someone else are reported as missing, not forbidden.
func (s *Service) MarkRead(ctx context.Context, agentID, messageID string) error {
	if err := s.checkOwnership(ctx, agentID, messageID); err != nil {
		return err
	}
	if err := s.lifecycle.MarkRead(ctx, messageID); err != nil {
		return err
	}
	s.presence.RecordActivity(agentID)
	return nil
}

// MarkReplied moves one of the agent's own messages to replied without
// sending an answer through the gateway.
func (s *Service) MarkReplied(ctx context.Context, agentID, messageID string) error {
	if err := s.checkOwnership(ctx, agentID, messageID); err != nil {
		return err
	}
	if err := s.lifecycle.MarkReplied(ctx, messageID); err != nil {
		return err
	}
	s.presence.RecordActivity(agentID)
	return nil
}

func (s *Service) checkOwnership(ctx context.Context, agentID, messageID string) error {
	if agentID == "" {
		return fmt.Errorf("agent_id is required")
	}
	if messageID == "" {
		return fmt.Errorf("message_id is required")
	}

	msg, err := s.store.Get(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("message %s: %w", messageID, mailbox.ErrMessageNotFound)
	}
	if err != nil {
		return fmt.Errorf("loading message %s: %w", messageID, err)
	}
	if msg.Recipient != agentID {
		return fmt.Errorf("message %s: %w", messageID, mailbox.ErrMessageNotFound)
	}
	return nil
}

// StatusRequest is an agent's periodic status sync.
type StatusRequest struct {
	// AgentID is the syncing agent (required).
	AgentID string

	// Identity, when supplied, is recorded and scored for drift. Without
	// it the existing history is validated read-only.
	Identity *presence.IdentityClaim

	// Interactions lists agent ids this agent believes it has talked to;
	// ids presence has never observed come back as ghosts.
	Interactions []string
}

// StatusReport merges everything the gateway knows about one agent.
type StatusReport struct {
	Agent    *presence.AgentStatus        `json:"agent"`
	Identity presence.IdentityValidation  `json:"identity"`
	Metrics  *presence.PerformanceMetrics `json:"metrics"`
	Ghosts   []string                     `json:"ghosts,omitempty"`
}

// SyncStatus ingests an agent's status update and returns the merged view.
// Ghost interactions are reported, never failed on.
func (s *Service) SyncStatus(req *StatusRequest) (*StatusReport, error) {
	if req.AgentID == "" {
		return nil, fmt.Errorf("agent_id is required")
	}

	s.presence.RecordActivity(req.AgentID)

	var validation presence.IdentityValidation
	if req.Identity != nil {
		validation = s.presence.RecordIdentity(req.AgentID, *req.Identity)
	} else {
		validation = s.presence.ValidateIdentity(req.AgentID)
	}

	var ghosts []string
	for _, id := range req.Interactions {
		if id != "" && !s.presence.Known(id) {
			ghosts = append(ghosts, id)
		}
	}
	if len(ghosts) > 0 {
		s.logger.Info("ghost interactions reported",
			"agent_id", req.AgentID,
			"ghosts", len(ghosts))
	}

	return &StatusReport{
		Agent:    s.presence.Status(req.AgentID),
		Identity: validation,
		Metrics:  s.presence.Metrics(req.AgentID),
		Ghosts:   ghosts,
	}, nil
}
