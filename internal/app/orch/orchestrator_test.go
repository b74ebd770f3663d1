package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/core/mocks"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type recConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (c *recConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errors.New("buffer full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *recConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *recConn) ofType(typ string) []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []core.Frame
	for _, f := range c.frames {
		var env protocol.Envelope
		if json.Unmarshal(f, &env) == nil && env.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

func (c *recConn) presence(t *testing.T) []protocol.PresenceEvent {
	t.Helper()
	var out []protocol.PresenceEvent
	for _, f := range c.ofType(protocol.TypePresence) {
		var ev protocol.PresenceEvent
		require.NoError(t, json.Unmarshal(f, &ev))
		out = append(out, ev)
	}
	return out
}

func (c *recConn) lastPresence(t *testing.T) protocol.PresenceEvent {
	t.Helper()
	evs := c.presence(t)
	require.NotEmpty(t, evs)
	return evs[len(evs)-1]
}

type fixture struct {
	o      *Orchestrator
	oracle *mocks.MockMembershipOracle
	admins *mocks.MockAdminAuthorizer
	store  *mocks.MockMessageStore
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{
		oracle: mocks.NewMockMembershipOracle(ctrl),
		admins: mocks.NewMockAdminAuthorizer(ctrl),
		store:  mocks.NewMockMessageStore(ctrl),
	}
	f.o = &Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(10),
		Policy:   app.SimplePolicy{},
		Oracle:   f.oracle,
		Admins:   f.admins,
		Store:    f.store,
		Limits:   Limits{MaxContentLen: 20},
	}
	return f
}

func (f *fixture) allow(room domain.RoomID, users ...domain.UserID) {
	for _, u := range users {
		f.oracle.EXPECT().IsMember(gomock.Any(), room, u).Return(true, nil).AnyTimes()
	}
}

func (f *fixture) connect(sid core.SessionID) *recConn {
	c := &recConn{}
	f.o.Connect(sid, c, func() {})
	return c
}

func (f *fixture) join(t *testing.T, sid core.SessionID, room domain.RoomID, user domain.UserID) *recConn {
	t.Helper()
	c := f.connect(sid)
	require.NoError(t, f.o.Join(context.Background(), sid, room, user))
	return c
}

func TestJoinAdmitsMember(t *testing.T) {
	f := newFixture(t)
	f.allow("r1", "alice")

	c := f.join(t, "s1", "r1", "alice")

	assert.Equal(t, 1, f.o.Presence("r1"))
	ev := c.lastPresence(t)
	assert.Equal(t, domain.RoomID("r1"), ev.RoomID)
	assert.Equal(t, 1, ev.Count)
}

func TestJoinRefusedForNonMember(t *testing.T) {
	f := newFixture(t)
	f.oracle.EXPECT().IsMember(gomock.Any(), domain.RoomID("r1"), domain.UserID("mallory")).Return(false, nil)

	c := f.connect("s1")
	err := f.o.Join(context.Background(), "s1", "r1", "mallory")

	require.ErrorIs(t, err, domain.ErrNotMember)
	assert.Equal(t, 0, f.o.Presence("r1"))
	assert.Empty(t, c.frames)
	s, _ := f.o.Registry.Get("s1")
	assert.False(t, s.Joined())
}

func TestJoinOracleFailureIsTransient(t *testing.T) {
	f := newFixture(t)
	f.oracle.EXPECT().IsMember(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, errors.New("dial tcp: refused"))

	f.connect("s1")
	err := f.o.Join(context.Background(), "s1", "r1", "alice")

	require.ErrorIs(t, err, domain.ErrCheckFailed)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))
	assert.Equal(t, 0, f.o.Presence("r1"))
}

func TestJoinValidatesIDs(t *testing.T) {
	f := newFixture(t)
	f.connect("s1")
	assert.ErrorIs(t, f.o.Join(context.Background(), "s1", "", "alice"), domain.ErrRoomIDEmpty)
	assert.ErrorIs(t, f.o.Join(context.Background(), "s1", "r1", ""), domain.ErrUserIDEmpty)
	assert.ErrorIs(t, f.o.Join(context.Background(), "unknown", "r1", "alice"), domain.ErrNotJoined)
}

func TestRejoinSameRoomKeepsCount(t *testing.T) {
	f := newFixture(t)
	f.allow("r1", "alice")
	f.join(t, "s1", "r1", "alice")
	require.NoError(t, f.o.Join(context.Background(), "s1", "r1", "alice"))
	assert.Equal(t, 1, f.o.Presence("r1"))
}

func TestSwitchRoomMovesConnection(t *testing.T) {
	f := newFixture(t)
	f.allow("r1", "alice", "bob")
	f.allow("r2", "alice")

	bob := f.join(t, "s2", "r1", "bob")
	f.join(t, "s1", "r1", "alice")
	require.NoError(t, f.o.Join(context.Background(), "s1", "r2", "alice"))

	assert.Equal(t, 1, f.o.Presence("r1"))
	assert.Equal(t, 1, f.o.Presence("r2"))
	assert.Equal(t, 1, bob.lastPresence(t).Count)
}

func TestPresenceTracksJoinsAndDisconnects(t *testing.T) {
	f := newFixture(t)
	f.allow("r1", "alice", "bob", "carol")

	a := f.join(t, "s1", "r1", "alice")
	f.join(t, "s2", "r1", "bob")
	f.join(t, "s3", "r1", "carol")
	// second tab of alice counts separately
	f.join(t, "s4", "r1", "alice")
	assert.Equal(t, 4, f.o.Presence("r1"))
	assert.Equal(t, 4, a.lastPresence(t).Count)

	f.o.Disconnect("s2")
	f.o.Disconnect("s3")
	f.o.Disconnect("s3")
	assert.Equal(t, 2, f.o.Presence("r1"))
	assert.Equal(t, 2, a.lastPresence(t).Count)

	counts := []int{}
	for _, ev := range a.presence(t) {
		counts = append(counts, ev.Count)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 3, 2}, counts)

	f.o.Disconnect("s1")
	f.o.Disconnect("s4")
	assert.Equal(t, 0, f.o.Presence("r1"))
	_, ok := f.o.Rooms.Get("r1")
	assert.False(t, ok)
}

func TestLeaveKeepsConnection(t *testing.T) {
	f := newFixture(t)
	f.allow("r1", "alice", "bob")
	f.join(t, "s1", "r1", "alice")
	bob := f.join(t, "s2", "r1", "bob")

	f.o.Leave("s1")

	assert.Equal(t, 1, bob.lastPresence(t).Count)
	s, ok := f.o.Registry.Get("s1")
	require.True(t, ok)
	assert.False(t, s.Joined())
}

func stored(d domain.Draft) *domain.Message {
	return &domain.Message{
		ID:         "01HZX0000000000000000000AA",
		RoomID:     d.RoomID,
		SenderID:   d.SenderID,
		SenderName: d.SenderName,
		Content:    d.Content,
		CreatedAt:  time.Unix(1700000000, 0).UTC(),
		ClientID:   d.ClientID,
	}
}

func TestSendFansOutIncludingSender(t *testing.T) {
	f := newFixture(t)
	f.allow("r1", "alice", "bob")
	a := f.join(t, "s1", "r1", "alice")
	b := f.join(t, "s2", "r1", "bob")

	f.store.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, d domain.Draft) (*domain.Message, error) {
			assert.Equal(t, "hello", d.Content)
			assert.Equal(t, "alice", d.SenderName)
			assert.Equal(t, "tmp-1", d.ClientID)
			return stored(d), nil
		})

	msg, err := f.o.Send(context.Background(), "s1", SendRequest{RoomID: "r1", SenderID: "alice", Content: "  hello ", ClientID: "tmp-1"})
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)

	for _, c := range []*recConn{a, b} {
		frames := c.ofType(protocol.TypeMessage)
		require.Len(t, frames, 1)
		var ev protocol.MessageEvent
		require.NoError(t, json.Unmarshal(frames[0], &ev))
		assert.Equal(t, msg.ID, ev.Message.ID)
	}

	f.store.EXPECT().Recent(gomock.Any(), domain.RoomID("r1"), 10).Return([]domain.Message{*msg}, nil)
	recent, err := f.o.Recent(context.Background(), "r1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, msg.ID, recent[0].ID)
}

func TestSendUsesDirectoryProfile(t *testing.T) {
	f := newFixture(t)
	users := mocks.NewMockUserDirectory(gomock.NewController(t))
	f.o.Users = users
	f.allow("r1", "alice")
	f.join(t, "s1", "r1", "alice")

	avatar := "https://cdn.example/a.png"
	users.EXPECT().Lookup(gomock.Any(), domain.UserID("alice")).Return(&domain.User{ID: "alice", DisplayName: "Alice", AvatarURL: &avatar}, nil)
	f.store.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, d domain.Draft) (*domain.Message, error) {
			assert.Equal(t, "Alice", d.SenderName)
			assert.Equal(t, &avatar, d.SenderAvatar)
			return stored(d), nil
		})

	_, err := f.o.Send(context.Background(), "s1", SendRequest{RoomID: "r1", SenderID: "alice", Content: "hi"})
	require.NoError(t, err)
}

func TestSendSenderMismatchPersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.allow("r1", "alice")
	b := f.join(t, "s1", "r1", "alice")

	_, err := f.o.Send(context.Background(), "s1", SendRequest{RoomID: "r1", SenderID: "bob", Content: "spoof"})

	require.ErrorIs(t, err, domain.ErrSenderMismatch)
	assert.Equal(t, "unauthorized", domain.CodeOf(err))
	assert.Empty(t, b.ofType(protocol.TypeMessage))
}

func TestSendRejections(t *testing.T) {
	f := newFixture(t)
	f.allow("r1", "alice")
	f.join(t, "s1", "r1", "alice")
	f.connect("s9")

	ctx := context.Background()
	_, err := f.o.Send(ctx, "s1", SendRequest{RoomID: "r1", SenderID: "alice", Content: "   "})
	assert.ErrorIs(t, err, domain.ErrEmptyContent)

	_, err = f.o.Send(ctx, "s1", SendRequest{RoomID: "r1", SenderID: "alice", Content: "this is well over twenty runes"})
	assert.ErrorIs(t, err, domain.ErrContentTooLong)

	_, err = f.o.Send(ctx, "s1", SendRequest{RoomID: "r2", SenderID: "alice", Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrNotJoined)

	_, err = f.o.Send(ctx, "s9", SendRequest{RoomID: "r1", SenderID: "alice", Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrNotJoined)
}

func TestSendRechecksMembership(t *testing.T) {
	f := newFixture(t)
	gomock.InOrder(
		f.oracle.EXPECT().IsMember(gomock.Any(), domain.RoomID("r1"), domain.UserID("alice")).Return(true, nil),
		f.oracle.EXPECT().IsMember(gomock.Any(), domain.RoomID("r1"), domain.UserID("alice")).Return(false, nil),
	)
	f.join(t, "s1", "r1", "alice")

	_, err := f.o.Send(context.Background(), "s1", SendRequest{RoomID: "r1", SenderID: "alice", Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrNotMember)
}

func TestSendStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.allow("r1", "alice")
	c := f.join(t, "s1", "r1", "alice")
	f.store.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil, errors.New("disk full"))

	_, err := f.o.Send(context.Background(), "s1", SendRequest{RoomID: "r1", SenderID: "alice", Content: "hi"})

	require.ErrorIs(t, err, domain.ErrStoreFailed)
	assert.Empty(t, c.ofType(protocol.TypeMessage))
}

func TestSendRateLimited(t *testing.T) {
	f := newFixture(t)
	f.o.SendLimiter = app.NewRateLimiter(1, time.Minute)
	f.allow("r1", "alice")
	f.join(t, "s1", "r1", "alice")
	f.store.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, d domain.Draft) (*domain.Message, error) { return stored(d), nil })

	ctx := context.Background()
	_, err := f.o.Send(ctx, "s1", SendRequest{RoomID: "r1", SenderID: "alice", Content: "one"})
	require.NoError(t, err)
	_, err = f.o.Send(ctx, "s1", SendRequest{RoomID: "r1", SenderID: "alice", Content: "two"})
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestSendFallbackReachesLiveMembers(t *testing.T) {
	f := newFixture(t)
	f.allow("r1", "alice", "bob")
	b := f.join(t, "s2", "r1", "bob")
	f.store.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, d domain.Draft) (*domain.Message, error) { return stored(d), nil })

	msg, err := f.o.SendFallback(context.Background(), SendRequest{RoomID: "r1", SenderID: "alice", Content: "from http"})
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("alice"), msg.SenderID)
	assert.Len(t, b.ofType(protocol.TypeMessage), 1)

	_, err = f.o.SendFallback(context.Background(), SendRequest{RoomID: "", SenderID: "alice", Content: "x"})
	assert.ErrorIs(t, err, domain.ErrRoomIDEmpty)
}

func TestTypingNotEchoedToSender(t *testing.T) {
	f := newFixture(t)
	f.allow("r1", "alice", "bob")
	a := f.join(t, "s1", "r1", "alice")
	b := f.join(t, "s2", "r1", "bob")

	f.o.Typing("s1", false)
	f.o.Typing("s1", true)

	assert.Empty(t, a.ofType(protocol.TypeTyping))
	assert.Empty(t, a.ofType(protocol.TypeStopTyping))
	require.Len(t, b.ofType(protocol.TypeTyping), 1)
	require.Len(t, b.ofType(protocol.TypeStopTyping), 1)

	var ev protocol.TypingEvent
	require.NoError(t, json.Unmarshal(b.ofType(protocol.TypeTyping)[0], &ev))
	assert.Equal(t, domain.UserID("alice"), ev.UserID)
}

func TestTypingThrottled(t *testing.T) {
	f := newFixture(t)
	f.o.TypingLimiter = app.NewRateLimiter(1, time.Minute)
	f.allow("r1", "alice", "bob")
	f.join(t, "s1", "r1", "alice")
	b := f.join(t, "s2", "r1", "bob")

	f.o.Typing("s1", false)
	f.o.Typing("s1", false)
	assert.Len(t, b.ofType(protocol.TypeTyping), 1)
}

func TestAdminMonitor(t *testing.T) {
	f := newFixture(t)
	f.allow("r1", "alice", "bob")
	f.admins.EXPECT().AuthorizeAdmin(gomock.Any(), "good").Return(domain.UserID("ops"), nil)

	f.join(t, "s1", "r1", "alice")
	admin := f.connect("adm")
	snap, err := f.o.AdminJoinAll(context.Background(), "adm", "good")
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, 1, snap[0].Count)
	assert.Equal(t, []domain.UserID{"alice"}, snap[0].Users)

	f.join(t, "s2", "r1", "bob")
	assert.Equal(t, 2, f.o.Presence("r1"), "admin must not count as an occupant")

	ev := admin.lastPresence(t)
	assert.True(t, ev.Admin)
	require.Len(t, ev.Rooms, 1)
	assert.Equal(t, 2, ev.Rooms[0].Count)

	_, err = f.o.Send(context.Background(), "adm", SendRequest{RoomID: "r1", SenderID: "ops", Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrAdminCannotSend)

	f.o.AdminLeaveAll("adm")
	f.o.Disconnect("s2")
	assert.Equal(t, 1, countAdmin(t, admin))
}

func countAdmin(t *testing.T, c *recConn) int {
	n := 0
	for _, ev := range c.presence(t) {
		if ev.Admin {
			n++
		}
	}
	return n
}

func TestAdminJoinRefused(t *testing.T) {
	f := newFixture(t)
	f.admins.EXPECT().AuthorizeAdmin(gomock.Any(), "bad").Return(domain.UserID(""), domain.ErrForbidden)
	f.connect("adm")

	_, err := f.o.AdminJoinAll(context.Background(), "adm", "bad")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	s, _ := f.o.Registry.Get("adm")
	assert.False(t, s.Admin)
}

func TestSlowMemberIsKicked(t *testing.T) {
	f := newFixture(t)
	f.allow("r1", "alice", "bob")
	f.join(t, "s1", "r1", "alice")
	slow := f.join(t, "s2", "r1", "bob")
	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	f.o.Typing("s1", false)

	slow.mu.Lock()
	defer slow.mu.Unlock()
	assert.True(t, slow.closed)
}

func TestHistoryChecksMembership(t *testing.T) {
	f := newFixture(t)
	f.oracle.EXPECT().IsMember(gomock.Any(), domain.RoomID("r1"), domain.UserID("mallory")).Return(false, nil)
	f.allow("r1", "alice")

	_, err := f.o.History(context.Background(), "r1", "mallory", "", 10)
	assert.ErrorIs(t, err, domain.ErrNotMember)

	page := &domain.HistoryPage{Messages: []domain.Message{{ID: "m1"}}}
	f.store.EXPECT().History(gomock.Any(), domain.RoomID("r1"), "", 10).Return(page, nil)
	got, err := f.o.History(context.Background(), "r1", "alice", "", 10)
	require.NoError(t, err)
	assert.Same(t, page, got)

	f.store.EXPECT().History(gomock.Any(), domain.RoomID("r1"), "zzz", 10).Return(nil, domain.ErrInvalidCursor)
	_, err = f.o.History(context.Background(), "r1", "alice", "zzz", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidCursor)
}

func TestRecentFallsBackToStore(t *testing.T) {
	f := newFixture(t)
	f.store.EXPECT().Recent(gomock.Any(), domain.RoomID("r1"), 5).Return([]domain.Message{{ID: "m1"}}, nil)

	msgs, err := f.o.Recent(context.Background(), "r1", 5)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestFanOutSkipsDeadMemberButPersists(t *testing.T) {
	f := newFixture(t)
	f.allow("r1", "alice", "bob", "carol")
	a := f.join(t, "s1", "r1", "alice")
	dead := f.join(t, "s2", "r1", "bob")
	c := f.join(t, "s3", "r1", "carol")
	dead.mu.Lock()
	dead.full = true
	dead.mu.Unlock()

	f.store.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, d domain.Draft) (*domain.Message, error) { return stored(d), nil })

	msg, err := f.o.Send(context.Background(), "s1", SendRequest{RoomID: "r1", SenderID: "alice", Content: "still here?"})
	require.NoError(t, err)
	require.NotNil(t, msg)

	assert.Len(t, a.ofType(protocol.TypeMessage), 1)
	assert.Len(t, c.ofType(protocol.TypeMessage), 1)
	assert.Empty(t, dead.ofType(protocol.TypeMessage))
	dead.mu.Lock()
	assert.True(t, dead.closed)
	dead.mu.Unlock()
}

func olderIDs(n int) []domain.Message {
	out := make([]domain.Message, n)
	for i := range out {
		out[i] = domain.Message{ID: domain.MessageID(fmt.Sprintf("01HZX0000000000000000000%02d", i+1)), RoomID: "r1"}
	}
	return out
}

func TestRecentMergesStoreWithLiveBuffer(t *testing.T) {
	f := newFixture(t)
	f.allow("r1", "alice")
	f.join(t, "s1", "r1", "alice")
	f.store.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, d domain.Draft) (*domain.Message, error) { return stored(d), nil })
	live, err := f.o.Send(context.Background(), "s1", SendRequest{RoomID: "r1", SenderID: "alice", Content: "back again"})
	require.NoError(t, err)

	f.store.EXPECT().Recent(gomock.Any(), domain.RoomID("r1"), 50).Return(olderIDs(4), nil)
	msgs, err := f.o.Recent(context.Background(), "r1", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	assert.Equal(t, domain.MessageID("01HZX000000000000000000001"), msgs[0].ID)
	assert.Equal(t, live.ID, msgs[4].ID)

	f.store.EXPECT().Recent(gomock.Any(), domain.RoomID("r1"), 3).Return(append(olderIDs(4)[2:], *live), nil)
	msgs, err = f.o.Recent(context.Background(), "r1", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, live.ID, msgs[2].ID)
}

func TestRecentServedFromFullBuffer(t *testing.T) {
	f := newFixture(t)
	f.allow("r1", "alice")
	f.join(t, "s1", "r1", "alice")
	f.store.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, d domain.Draft) (*domain.Message, error) { return stored(d), nil })
	_, err := f.o.Send(context.Background(), "s1", SendRequest{RoomID: "r1", SenderID: "alice", Content: "only one"})
	require.NoError(t, err)

	// no store expectation: a buffer that fills the request answers alone
	msgs, err := f.o.Recent(context.Background(), "r1", 1)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	f.store.EXPECT().Recent(gomock.Any(), domain.RoomID("r1"), 5).Return(nil, errors.New("db down"))
	msgs, err = f.o.Recent(context.Background(), "r1", 5)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestSendWithEmptyRoomAfterLeave(t *testing.T) {
	f := newFixture(t)
	f.allow("r1", "alice")
	f.join(t, "s1", "r1", "alice")
	f.o.Leave("s1")

	// an empty room id is a validation error, not a membership miss
	_, err := f.o.Send(context.Background(), "s1", SendRequest{RoomID: "", SenderID: "alice", Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrRoomIDEmpty)
	assert.Equal(t, "bad_room_id", domain.CodeOf(err))

	_, err = f.o.Send(context.Background(), "s1", SendRequest{RoomID: "r1", SenderID: "alice", Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrNotJoined)
}
