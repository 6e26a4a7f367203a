// ABOUTME: Tests for the message lifecycle state machine
// ABOUTME: Covers the transition table, mark-read paths, deletes, and mailbox emptying

package mailbox

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.MockStore) {
	t.Helper()
	mock := store.NewMockStore()
	return New(mock, nil), mock
}

func seedMessage(t *testing.T, mock *store.MockStore, id string, state store.State) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, mock.Create(ctx, &store.Message{
		ID: id, ThreadID: "t1", Sender: "agent-a", Recipient: "agent-b",
		Subject: "subject", Content: "content",
	}))
	if state != store.StateSent {
		ok, err := mock.UpdateState(ctx, id, state)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestCanTransition_FullTable(t *testing.T) {
	states := []store.State{
		store.StateSent, store.StateArrived, store.StateRead,
		store.StateReplied, store.StateIgnored, store.StateUnread,
	}
	allowed := map[string]bool{
		"sent->arrived":   true,
		"sent->ignored":   true,
		"arrived->read":   true,
		"arrived->ignored": true,
		"read->replied":   true,
		"read->unread":    true,
		"read->ignored":   true,
		"unread->read":    true,
		"unread->ignored": true,
	}

	for _, from := range states {
		for _, to := range states {
			key := fmt.Sprintf("%s->%s", from, to)
			assert.Equal(t, allowed[key], CanTransition(from, to), key)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(store.StateReplied))
	assert.True(t, IsTerminal(store.StateIgnored))
	assert.False(t, IsTerminal(store.StateSent))
	assert.False(t, IsTerminal(store.StateArrived))
	assert.False(t, IsTerminal(store.StateRead))
	assert.False(t, IsTerminal(store.StateUnread))
}

func TestService_MarkRead_FromSent(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()
	seedMessage(t, mock, "m1", store.StateSent)

	require.NoError(t, svc.MarkRead(ctx, "m1"))

	got, err := mock.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, store.StateRead, got.State)
	assert.NotNil(t, got.ReadAt)
}

func TestService_MarkRead_FromArrivedAndUnread(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	seedMessage(t, mock, "arrived", store.StateArrived)
	seedMessage(t, mock, "unread", store.StateUnread)

	require.NoError(t, svc.MarkRead(ctx, "arrived"))
	require.NoError(t, svc.MarkRead(ctx, "unread"))

	for _, id := range []string{"arrived", "unread"} {
		got, err := mock.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, store.StateRead, got.State, id)
	}
}

func TestService_MarkRead_AlreadyRead_NoOp(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()
	seedMessage(t, mock, "m1", store.StateRead)

	assert.NoError(t, svc.MarkRead(ctx, "m1"))
}

func TestService_MarkRead_TerminalStates(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	seedMessage(t, mock, "replied", store.StateReplied)
	seedMessage(t, mock, "ignored", store.StateIgnored)

	assert.ErrorIs(t, svc.MarkRead(ctx, "replied"), ErrInvalidStateTransition)
	assert.ErrorIs(t, svc.MarkRead(ctx, "ignored"), ErrInvalidStateTransition)
}

func TestService_MarkRead_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.MarkRead(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestService_MarkReplied_FromEveryNonTerminal(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	for _, from := range []store.State{store.StateSent, store.StateArrived, store.StateRead, store.StateUnread} {
		id := "msg-" + string(from)
		seedMessage(t, mock, id, from)
		require.NoError(t, svc.MarkReplied(ctx, id), "from %s", from)

		got, err := mock.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, store.StateReplied, got.State, id)
		assert.NotNil(t, got.RepliedAt, id)
	}
}

func TestService_MarkReplied_AlreadyReplied_NoOp(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()
	seedMessage(t, mock, "m1", store.StateReplied)

	assert.NoError(t, svc.MarkReplied(ctx, "m1"))
}

func TestService_MarkReplied_IgnoredRejected(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()
	seedMessage(t, mock, "m1", store.StateIgnored)

	assert.ErrorIs(t, svc.MarkReplied(ctx, "m1"), ErrInvalidStateTransition)
}

func TestService_MarkReplied_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.MarkReplied(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestService_UpdateState_ValidMoves(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	seedMessage(t, mock, "m1", store.StateSent)

	require.NoError(t, svc.UpdateState(ctx, "m1", store.StateArrived))
	require.NoError(t, svc.UpdateState(ctx, "m1", store.StateRead))
	require.NoError(t, svc.UpdateState(ctx, "m1", store.StateUnread))
	require.NoError(t, svc.UpdateState(ctx, "m1", store.StateRead))
	require.NoError(t, svc.UpdateState(ctx, "m1", store.StateReplied))

	got, err := mock.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, store.StateReplied, got.State)
	assert.NotNil(t, got.ReadAt)
	assert.NotNil(t, got.RepliedAt)
}

func TestService_UpdateState_SkipAheadRejected(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()
	seedMessage(t, mock, "m1", store.StateSent)

	// Generic updates are single-step; sent cannot jump straight to read
	err := svc.UpdateState(ctx, "m1", store.StateRead)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	got, _ := mock.Get(ctx, "m1")
	assert.Equal(t, store.StateSent, got.State)
}

func TestService_UpdateState_TerminalRejectsEverything(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	targets := []store.State{
		store.StateSent, store.StateArrived, store.StateRead,
		store.StateReplied, store.StateIgnored, store.StateUnread,
	}

	seedMessage(t, mock, "replied", store.StateReplied)
	seedMessage(t, mock, "ignored", store.StateIgnored)

	for _, to := range targets {
		assert.ErrorIs(t, svc.UpdateState(ctx, "replied", to), ErrInvalidStateTransition, "replied -> %s", to)
		assert.ErrorIs(t, svc.UpdateState(ctx, "ignored", to), ErrInvalidStateTransition, "ignored -> %s", to)
	}
}

func TestService_UpdateState_IgnoreFromAnyNonTerminal(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	for _, from := range []store.State{store.StateSent, store.StateArrived, store.StateRead, store.StateUnread} {
		id := "msg-" + string(from)
		seedMessage(t, mock, id, from)
		require.NoError(t, svc.UpdateState(ctx, id, store.StateIgnored), "from %s", from)
	}
}

func TestService_UpdateState_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.UpdateState(context.Background(), "ghost", store.StateArrived)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestService_DeleteMessages_SkipsUnmatched(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	seedMessage(t, mock, "m1", store.StateSent)
	seedMessage(t, mock, "m2", store.StateSent)

	// "ghost" does not exist and is skipped silently
	n, err := svc.DeleteMessages(ctx, "agent-b", []string{"m1", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = svc.DeleteMessages(ctx, "agent-z", []string{"m2"})
	require.NoError(t, err)
	assert.Equal(t, 0, n, "foreign owner must not delete")
}

func TestService_EmptyMailbox_All(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		seedMessage(t, mock, fmt.Sprintf("m%d", i), store.StateSent)
	}
	// One message for a different recipient survives
	require.NoError(t, mock.Create(ctx, &store.Message{
		ID: "other", ThreadID: "t2", Sender: "agent-b", Recipient: "agent-a",
		Subject: "s", Content: "c",
	}))

	n, err := svc.EmptyMailbox(ctx, "agent-b", store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = mock.Get(ctx, "other")
	assert.NoError(t, err)
}

func TestService_EmptyMailbox_StateFilter(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	seedMessage(t, mock, "read1", store.StateRead)
	seedMessage(t, mock, "read2", store.StateRead)
	seedMessage(t, mock, "fresh", store.StateSent)

	n, err := svc.EmptyMailbox(ctx, "agent-b", store.Filter{State: store.StateRead})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = mock.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestService_EmptyMailbox_DrainsPastPageSize(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	total := emptyPageSize + 25
	for i := 0; i < total; i++ {
		require.NoError(t, mock.Create(ctx, &store.Message{
			ID: fmt.Sprintf("m%04d", i), ThreadID: "t1",
			Sender: "agent-a", Recipient: "agent-b", Subject: "s", Content: "c",
		}))
	}

	n, err := svc.EmptyMailbox(ctx, "agent-b", store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, total, n)

	left, err := mock.Query(ctx, store.Filter{Recipient: "agent-b"}, 10)
	require.NoError(t, err)
	assert.Empty(t, left)
}
