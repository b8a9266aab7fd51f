package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSendAndPollAgentInboxIsDestructive(t *testing.T) {
	t.Parallel()
	b := newMessageBus()
	defer b.close()

	now := time.Now()
	msg, err := b.send("agent-a", "agent-b", "note", "hello", now)
	require.NoError(t, err)
	require.Equal(t, "agent-a", msg.From)
	require.NotEmpty(t, msg.ID)

	got := b.poll("agent-b")
	require.Len(t, got, 1)
	require.Equal(t, "hello", got[0].Content)

	// A second poll with nothing new drains to empty rather than
	// re-delivering.
	again := b.poll("agent-b")
	require.Empty(t, again)
}

func TestPollInboxIsPerRecipient(t *testing.T) {
	t.Parallel()
	b := newMessageBus()
	defer b.close()

	now := time.Now()
	b.send("agent-a", "agent-b", "note", "for b", now)
	b.send("agent-a", "agent-c", "note", "for c", now)

	require.Len(t, b.poll("agent-b"), 1)
	require.Len(t, b.poll("agent-c"), 1)
	require.Empty(t, b.poll("agent-b"))
}

func TestSendToUserPersistsHistoryNonDestructively(t *testing.T) {
	t.Parallel()
	b := newMessageBus()
	defer b.close()

	now := time.Now()
	b.send("agent-a", "user", "status", "working on it", now)
	b.send("agent-a", "user", "status", "done", now.Add(time.Second))

	first := b.pollUser()
	require.Len(t, first, 2)

	// Unlike the per-agent inbox, polling the user inbox does not consume
	// it: a second poll returns the same history.
	second := b.pollUser()
	require.Equal(t, first, second)
}

func TestAcknowledgeMarksSpecificIDs(t *testing.T) {
	t.Parallel()
	b := newMessageBus()
	defer b.close()

	now := time.Now()
	m1, _ := b.send("agent-a", "user", "status", "one", now)
	m2, _ := b.send("agent-a", "user", "status", "two", now)

	b.acknowledge([]string{m1.ID}, false)
	require.True(t, b.acked[m1.ID])
	require.False(t, b.acked[m2.ID])
}

func TestAcknowledgeAllMarksEveryHistoryEntry(t *testing.T) {
	t.Parallel()
	b := newMessageBus()
	defer b.close()

	now := time.Now()
	m1, _ := b.send("agent-a", "user", "status", "one", now)
	m2, _ := b.send("agent-a", "user", "status", "two", now)

	b.acknowledge(nil, true)
	require.True(t, b.acked[m1.ID])
	require.True(t, b.acked[m2.ID])
}

func TestHistoryReturnsFullUserTranscript(t *testing.T) {
	t.Parallel()
	b := newMessageBus()
	defer b.close()

	now := time.Now()
	b.send("agent-a", "user", "status", "one", now)
	b.send("agent-b", "user", "status", "two", now)

	h := b.history()
	require.Len(t, h, 2)
}

func TestSendAssignsMonotonicIDs(t *testing.T) {
	t.Parallel()
	b := newMessageBus()
	defer b.close()

	now := time.Now()
	m1, err := b.send("agent-a", "agent-b", "note", "x", now)
	require.NoError(t, err)
	m2, err := b.send("agent-a", "agent-b", "note", "y", now)
	require.NoError(t, err)

	require.NotEqual(t, m1.ID, m2.ID)
}
