// ABOUTME: End-to-end tests for the orchestration service over the mock store
// ABOUTME: Sends, replies, receives, ownership checks, dedupe, and status syncs

package comms

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/dedupe"
	"github.com/2389/parley/internal/envelope"
	"github.com/2389/parley/internal/mailbox"
	"github.com/2389/parley/internal/presence"
	"github.com/2389/parley/internal/store"
	"github.com/2389/parley/internal/thread"
)

type testComms struct {
	svc      *Service
	mock     *store.MockStore
	threads  *thread.Registry
	presence *presence.Monitor
}

func newTestComms(t *testing.T) *testComms {
	t.Helper()

	mock := store.NewMockStore()
	registry := thread.NewRegistry(nil)
	monitor := presence.NewMonitor(presence.Config{})
	codec, err := envelope.NewCodec([]byte("comms-test-secret"))
	require.NoError(t, err)

	cache := dedupe.New(time.Minute, 100)
	t.Cleanup(cache.Close)

	svc, err := New(Config{
		Store:     mock,
		Lifecycle: mailbox.New(mock, nil),
		Threads:   registry,
		Resolver:  thread.NewResolver(registry, nil),
		Presence:  monitor,
		Codec:     codec,
		Sends:     cache,
	})
	require.NoError(t, err)

	return &testComms{svc: svc, mock: mock, threads: registry, presence: monitor}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestSend_FullFlow(t *testing.T) {
	tc := newTestComms(t)
	ctx := context.Background()

	res, err := tc.svc.Send(ctx, &SendRequest{
		From:    "agent-a",
		To:      "agent-b",
		Subject: "deploy plan",
		Content: "ship it tomorrow",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.MessageID)
	assert.NotEmpty(t, res.ThreadID)
	assert.Equal(t, store.StateSent, res.State)
	assert.True(t, res.GhostRecipient, "agent-b was never observed")

	// The stored body is envelope-encoded at the default basic level.
	stored, err := tc.mock.Get(ctx, res.MessageID)
	require.NoError(t, err)
	assert.NotEqual(t, "ship it tomorrow", stored.Content)
	assert.Equal(t, store.SecurityBasic, stored.SecurityLevel)
	assert.Equal(t, store.PriorityNormal, stored.Priority)

	// The projection landed in the thread.
	refs, err := tc.threads.ThreadMessages(res.ThreadID, 0, 0)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, res.MessageID, refs[0].ID)

	// Presence saw the sender but not the recipient.
	assert.True(t, tc.presence.Known("agent-a"))
	assert.False(t, tc.presence.Known("agent-b"))
	st := tc.presence.Status("agent-a")
	require.NotNil(t, st)
	assert.Equal(t, int64(1), st.MessageCount)
	assert.Equal(t, []string{res.ThreadID}, st.ActiveThreads)
}

func TestSend_Validation(t *testing.T) {
	tc := newTestComms(t)
	ctx := context.Background()

	cases := []SendRequest{
		{To: "agent-b", Content: "x"},
		{From: "agent-a", Content: "x"},
		{From: "agent-a", To: "agent-b"},
		{From: "agent-a", To: "agent-a", Content: "x"},
	}
	for _, req := range cases {
		_, err := tc.svc.Send(ctx, &req)
		assert.Error(t, err)
	}

	// Nothing was persisted by the rejected sends.
	msgs, err := tc.mock.Query(ctx, store.Filter{}, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSend_ReusesThread(t *testing.T) {
	tc := newTestComms(t)
	ctx := context.Background()

	first, err := tc.svc.Send(ctx, &SendRequest{
		From: "agent-a", To: "agent-b", Subject: "deploy plan", Content: "v1",
	})
	require.NoError(t, err)

	second, err := tc.svc.Send(ctx, &SendRequest{
		From: "agent-b", To: "agent-a", Subject: "Re: deploy plan", Content: "v2",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ThreadID, second.ThreadID)
}

func TestSend_KnownRecipient(t *testing.T) {
	tc := newTestComms(t)
	ctx := context.Background()

	tc.presence.RecordActivity("agent-b")

	res, err := tc.svc.Send(ctx, &SendRequest{
		From: "agent-a", To: "agent-b", Subject: "s", Content: "c",
	})
	require.NoError(t, err)
	assert.False(t, res.GhostRecipient)

	st := tc.presence.Status("agent-b")
	require.NotNil(t, st)
	assert.Equal(t, []string{res.ThreadID}, st.ActiveThreads,
		"known recipients get the thread associated")
}

func TestSend_DuplicateRequestID(t *testing.T) {
	tc := newTestComms(t)
	ctx := context.Background()

	req := &SendRequest{
		From: "agent-a", To: "agent-b", Subject: "s", Content: "c",
		RequestID: "req-1",
	}
	first, err := tc.svc.Send(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := tc.svc.Send(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.MessageID, second.MessageID)
	assert.Equal(t, first.ThreadID, second.ThreadID)

	msgs, err := tc.mock.Query(ctx, store.Filter{Recipient: "agent-b"}, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "the retry must not produce a second message")
}

func TestSend_RecordsIdentityClaim(t *testing.T) {
	tc := newTestComms(t)
	ctx := context.Background()

	send := func(role string) {
		_, err := tc.svc.Send(ctx, &SendRequest{
			From: "agent-a", To: "agent-b", Subject: "s", Content: "c",
			Identity: &presence.IdentityClaim{Role: role, Workspace: "/w"},
		})
		require.NoError(t, err)
	}
	send("researcher")
	send("operator")

	v := tc.presence.ValidateIdentity("agent-a")
	assert.Equal(t, 0.0, v.Confidence, "both claims were recorded and disagree")
	assert.True(t, v.DriftDetected)
}

func TestReply_FullFlow(t *testing.T) {
	tc := newTestComms(t)
	ctx := context.Background()

	parent, err := tc.svc.Send(ctx, &SendRequest{
		From: "agent-a", To: "agent-b", Subject: "deploy plan", Content: "thoughts?",
	})
	require.NoError(t, err)

	res, err := tc.svc.Reply(ctx, &ReplyRequest{
		MessageID: parent.MessageID,
		From:      "agent-b",
		Content:   "looks good",
	})
	require.NoError(t, err)
	assert.Equal(t, parent.ThreadID, res.ThreadID, "a reply stays in its parent's thread")

	reply, err := tc.mock.Get(ctx, res.MessageID)
	require.NoError(t, err)
	assert.Equal(t, "agent-a", reply.Recipient)
	assert.Equal(t, parent.MessageID, reply.ReplyTo)
	assert.Equal(t, "Re: deploy plan", reply.Subject)

	got, err := tc.mock.Get(ctx, parent.MessageID)
	require.NoError(t, err)
	assert.Equal(t, store.StateReplied, got.State)
	assert.NotNil(t, got.RepliedAt)
}

func TestReply_RecordsResponseTime(t *testing.T) {
	tc := newTestComms(t)
	ctx := context.Background()

	// Seed a parent that has been waiting a while.
	require.NoError(t, tc.mock.Create(ctx, &store.Message{
		ID: "parent", ThreadID: "t1", Sender: "agent-a", Recipient: "agent-b",
		Subject: "old question", Content: "still there?",
		CreatedAt: time.Now().UTC().Add(-3 * time.Second),
	}))

	_, err := tc.svc.Reply(ctx, &ReplyRequest{
		MessageID: "parent", From: "agent-b", Content: "yes",
	})
	require.NoError(t, err)

	st := tc.presence.Status("agent-b")
	require.NotNil(t, st)
	assert.GreaterOrEqual(t, st.AvgResponseTime, 3000.0,
		"the parent's age feeds the response-time window")
}

func TestReply_OnlyRecipientMayReply(t *testing.T) {
	tc := newTestComms(t)
	ctx := context.Background()

	parent, err := tc.svc.Send(ctx, &SendRequest{
		From: "agent-a", To: "agent-b", Subject: "s", Content: "c",
	})
	require.NoError(t, err)

	_, err = tc.svc.Reply(ctx, &ReplyRequest{
		MessageID: parent.MessageID, From: "agent-c", Content: "intruding",
	})
	assert.ErrorIs(t, err, mailbox.ErrMessageNotFound,
		"foreign messages look absent")
}

func TestReply_IgnoredParentRejected(t *testing.T) {
	tc := newTestComms(t)
	ctx := context.Background()

	parent, err := tc.svc.Send(ctx, &SendRequest{
		From: "agent-a", To: "agent-b", Subject: "s", Content: "c",
	})
	require.NoError(t, err)
	require.NoError(t, tc.svc.MarkRead(ctx, "agent-b", parent.MessageID))
	_, err = tc.mock.UpdateState(ctx, parent.MessageID, store.StateIgnored)
	require.NoError(t, err)

	before, err := tc.mock.Query(ctx, store.Filter{}, 100)
	require.NoError(t, err)

	_, err = tc.svc.Reply(ctx, &ReplyRequest{
		MessageID: parent.MessageID, From: "agent-b", Content: "too late",
	})
	assert.ErrorIs(t, err, mailbox.ErrInvalidStateTransition)

	after, err := tc.mock.Query(ctx, store.Filter{}, 100)
	require.NoError(t, err)
	assert.Len(t, after, len(before), "a rejected reply must not create a message")
}

func TestReply_ParentNotFound(t *testing.T) {
	tc := newTestComms(t)

	_, err := tc.svc.Reply(context.Background(), &ReplyRequest{
		MessageID: "ghost", From: "agent-b", Content: "hello?",
	})
	assert.ErrorIs(t, err, mailbox.ErrMessageNotFound)
}

func TestReceive_DecodesAndMarksArrived(t *testing.T) {
	tc := newTestComms(t)
	ctx := context.Background()

	sent, err := tc.svc.Send(ctx, &SendRequest{
		From: "agent-a", To: "agent-b", Subject: "s", Content: "hello b",
		Security: store.SecurityEncrypted,
	})
	require.NoError(t, err)

	msgs, err := tc.svc.Receive(ctx, &ReceiveRequest{Agent: "agent-b"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello b", msgs[0].Content, "bodies come back decoded")
	assert.Equal(t, store.StateArrived, msgs[0].State)

	stored, err := tc.mock.Get(ctx, sent.MessageID)
	require.NoError(t, err)
	assert.Equal(t, store.StateArrived, stored.State, "fetching is a delivery observation")
}

func TestReceive_UnreadOnly(t *testing.T) {
	tc := newTestComms(t)
	ctx := context.Background()

	first, err := tc.svc.Send(ctx, &SendRequest{
		From: "agent-a", To: "agent-b", Subject: "one", Content: "1",
	})
	require.NoError(t, err)
	second, err := tc.svc.Send(ctx, &SendRequest{
		From: "agent-a", To: "agent-b", Subject: "two", Content: "2",
	})
	require.NoError(t, err)

	require.NoError(t, tc.svc.MarkRead(ctx, "agent-b", first.MessageID))

	msgs, err := tc.svc.Receive(ctx, &ReceiveRequest{Agent: "agent-b", UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, second.MessageID, msgs[0].ID)

	// Without the filter both come back.
	msgs, err = tc.svc.Receive(ctx, &ReceiveRequest{Agent: "agent-b"})
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestReceive_CorruptEnvelopeFails(t *testing.T) {
	tc := newTestComms(t)
	ctx := context.Background()

	require.NoError(t, tc.mock.Create(ctx, &store.Message{
		ID: "bad", ThreadID: "t1", Sender: "agent-a", Recipient: "agent-b",
		Subject: "s", Content: "pv1:encrypted:YWdlbnQtYQ:!!!not-base64!!!",
	}))

	_, err := tc.svc.Receive(ctx, &ReceiveRequest{Agent: "agent-b"})
	assert.ErrorIs(t, err, envelope.ErrDecryptionFailure)
}

func TestReceive_Validation(t *testing.T) {
	tc := newTestComms(t)

	_, err := tc.svc.Receive(context.Background(), &ReceiveRequest{})
	assert.Error(t, err)
}

func TestMarkRead_OwnershipEnforced(t *testing.T) {
	tc := newTestComms(t)
	ctx := context.Background()

	sent, err := tc.svc.Send(ctx, &SendRequest{
		From: "agent-a", To: "agent-b", Subject: "s", Content: "c",
	})
	require.NoError(t, err)

	// The sender does not own the recipient's copy.
	err = tc.svc.MarkRead(ctx, "agent-a", sent.MessageID)
	assert.ErrorIs(t, err, mailbox.ErrMessageNotFound)

	require.NoError(t, tc.svc.MarkRead(ctx, "agent-b", sent.MessageID))

	got, err := tc.mock.Get(ctx, sent.MessageID)
	require.NoError(t, err)
	assert.Equal(t, store.StateRead, got.State)
}

func TestMarkReplied_OwnershipEnforced(t *testing.T) {
	tc := newTestComms(t)
	ctx := context.Background()

	sent, err := tc.svc.Send(ctx, &SendRequest{
		From: "agent-a", To: "agent-b", Subject: "s", Content: "c",
	})
	require.NoError(t, err)

	err = tc.svc.MarkReplied(ctx, "agent-c", sent.MessageID)
	assert.ErrorIs(t, err, mailbox.ErrMessageNotFound)

	require.NoError(t, tc.svc.MarkReplied(ctx, "agent-b", sent.MessageID))

	got, err := tc.mock.Get(ctx, sent.MessageID)
	require.NoError(t, err)
	assert.Equal(t, store.StateReplied, got.State)
}

func TestSyncStatus(t *testing.T) {
	tc := newTestComms(t)
	ctx := context.Background()

	// agent-b becomes known by sending something.
	_, err := tc.svc.Send(ctx, &SendRequest{
		From: "agent-b", To: "agent-x", Subject: "s", Content: "c",
	})
	require.NoError(t, err)

	report, err := tc.svc.SyncStatus(&StatusRequest{
		AgentID:      "agent-a",
		Identity:     &presence.IdentityClaim{Role: "researcher", Workspace: "/w"},
		Interactions: []string{"agent-b", "agent-ghost", ""},
	})
	require.NoError(t, err)

	require.NotNil(t, report.Agent)
	assert.Equal(t, "agent-a", report.Agent.AgentID)
	require.NotNil(t, report.Metrics)
	assert.True(t, report.Identity.Valid)
	assert.Equal(t, []string{"agent-ghost"}, report.Ghosts,
		"only never-observed ids are ghosts")

	// The ghost report must not create a record.
	assert.False(t, tc.presence.Known("agent-ghost"))
}

func TestSyncStatus_Validation(t *testing.T) {
	tc := newTestComms(t)

	_, err := tc.svc.SyncStatus(&StatusRequest{})
	assert.Error(t, err)
}

func TestSyncStatus_WithoutClaimIsReadOnly(t *testing.T) {
	tc := newTestComms(t)

	claim := presence.IdentityClaim{Role: "r", Workspace: "/w"}
	_, err := tc.svc.SyncStatus(&StatusRequest{AgentID: "agent-a", Identity: &claim})
	require.NoError(t, err)

	// Claimless syncs validate without pushing fingerprints; confidence
	// stays at 1.0 no matter how many run.
	for i := 0; i < 3; i++ {
		report, err := tc.svc.SyncStatus(&StatusRequest{AgentID: "agent-a"})
		require.NoError(t, err)
		assert.Equal(t, 1.0, report.Identity.Confidence)
	}
}
