package client

import (
	"testing"
	"time"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func confirmed(id, content, clientID string) domain.Message {
	return domain.Message{
		ID:        domain.MessageID(id),
		RoomID:    "r1",
		SenderID:  "alice",
		Content:   content,
		CreatedAt: time.Now(),
		ClientID:  clientID,
	}
}

func TestBroadcastReplacesPlaceholderInPlace(t *testing.T) {
	tl := NewTimeline("alice", "r1", nil)
	tl.Receive(domain.Message{ID: "m0", RoomID: "r1", SenderID: "bob", Content: "before"})
	p := tl.AddPending("hello")
	tl.Receive(domain.Message{ID: "m1", RoomID: "r1", SenderID: "bob", Content: "after"})

	assert.True(t, tl.Receive(confirmed("m2", "hello", p.TempID)))
	tl.Confirm(p.TempID, confirmed("m2", "hello", p.TempID))

	entries := tl.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, domain.MessageID("m2"), entries[1].Message.ID)
	assert.Equal(t, Confirmed, entries[1].State)
	assert.Equal(t, p.TempID, entries[1].TempID)
}

func TestAckThenBroadcastRendersOnce(t *testing.T) {
	tl := NewTimeline("alice", "r1", nil)
	p := tl.AddPending("hello")

	tl.Confirm(p.TempID, confirmed("m1", "hello", p.TempID))
	assert.False(t, tl.Receive(confirmed("m1", "hello", p.TempID)))

	require.Equal(t, 1, tl.Len())
	assert.Equal(t, Confirmed, tl.Entries()[0].State)
}

func TestLiveAndFallbackResolveToOneEntry(t *testing.T) {
	tl := NewTimeline("alice", "r1", nil)
	p := tl.AddPending("hello")
	msg := confirmed("m1", "hello", p.TempID)

	// the late live ack and the fallback response carry the same stored message
	tl.Confirm(p.TempID, msg)
	tl.Confirm(p.TempID, msg)
	tl.Receive(msg)

	require.Equal(t, 1, tl.Len())
	assert.Equal(t, domain.MessageID("m1"), tl.Entries()[0].Message.ID)
}

func TestOtherTabMessageDoesNotStealPlaceholder(t *testing.T) {
	tl := NewTimeline("alice", "r1", nil)
	p := tl.AddPending("same words")

	tl.Receive(confirmed("m1", "same words", "other-tab-temp"))

	entries := tl.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, Pending, entries[0].State)
	assert.Equal(t, p.TempID, entries[0].TempID)
	assert.Equal(t, domain.MessageID("m1"), entries[1].Message.ID)
}

func TestContentMatchWithoutClientID(t *testing.T) {
	tl := NewTimeline("alice", "r1", nil)
	tl.AddPending(" hi ")

	tl.Receive(confirmed("m1", "hi", ""))

	require.Equal(t, 1, tl.Len())
	assert.Equal(t, Confirmed, tl.Entries()[0].State)
}

func TestContentMatchRespectsWindow(t *testing.T) {
	tl := NewTimeline("alice", "r1", nil)
	tl.AddPending("hi")

	old := confirmed("m1", "hi", "")
	old.CreatedAt = time.Now().Add(-time.Hour)
	tl.Receive(old)

	assert.Equal(t, 2, tl.Len())
}

func TestFailRemovesPlaceholder(t *testing.T) {
	tl := NewTimeline("alice", "r1", nil)
	p := tl.AddPending("doomed")

	e, ok := tl.Fail(p.TempID)
	require.True(t, ok)
	assert.Equal(t, Failed, e.State)
	assert.Equal(t, "doomed", e.Message.Content)
	assert.Zero(t, tl.Len())

	_, ok = tl.Fail(p.TempID)
	assert.False(t, ok)
}

func TestPrependSkipsRendered(t *testing.T) {
	tl := NewTimeline("alice", "r1", nil)
	tl.Receive(confirmed("m3", "c", ""))

	n := tl.Prepend([]domain.Message{confirmed("m1", "a", ""), confirmed("m2", "b", ""), confirmed("m3", "c", "")})
	assert.Equal(t, 2, n)
	assert.Equal(t, domain.MessageID("m1"), tl.OldestID())
	assert.Equal(t, 3, tl.Len())

	assert.Zero(t, tl.Prepend([]domain.Message{confirmed("m1", "a", "")}))
}

func TestProcessedSetEvictsOldest(t *testing.T) {
	s := NewProcessedSet(2)
	assert.True(t, s.Mark("a"))
	assert.False(t, s.Mark("a"))
	s.Mark("b")
	s.Mark("c")

	assert.Equal(t, 2, s.Len())
	assert.False(t, s.Mark("c"))
	assert.True(t, s.Mark("a"), "evicted ids count as new")
}
