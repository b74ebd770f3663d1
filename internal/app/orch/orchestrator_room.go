package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/logging"
	"github.com/dkeye/Chat/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Connect registers a fresh transport. It carries no session until Join.
func (o *Orchestrator) Connect(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	o.Registry.BindSignal(sid, conn, cancel)
	log.Debug().Str("module", "orch").Str("sid", string(sid)).Int("connections", o.Registry.Len()).Msg("connected")
}

// Join admits a connection to a room after the membership oracle confirms it.
// Repeating a join for the same room and user re-confirms membership.
func (o *Orchestrator) Join(ctx context.Context, sid core.SessionID, roomID domain.RoomID, userID domain.UserID) error {
	if err := roomID.Validate(); err != nil {
		return err
	}
	if err := userID.Validate(); err != nil {
		return err
	}
	if _, ok := o.Registry.Get(sid); !ok {
		return domain.ErrNotJoined
	}
	if err := o.checkMember(ctx, roomID, userID); err != nil {
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Err(err).Msg("join refused")
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	prev, ok := o.Registry.Get(sid)
	if !ok {
		return domain.ErrNotJoined
	}
	if prev.Room != "" && prev.Room != roomID {
		o.removeFromRoom(sid, prev.Room)
		o.publishPresence(prev.Room)
	}
	o.Registry.BindRoom(sid, userID, roomID)
	o.Rooms.GetOrCreate(roomID).AddMember(sid, core.NewMemberSession(userID, prev.Signal))
	o.publishPresence(roomID)

	logging.Audit(ctx, "chat.join_room", string(userID), string(roomID))
	return nil
}

// Leave unbinds the connection from its room without closing it.
func (o *Orchestrator) Leave(sid core.SessionID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	prev, ok := o.Registry.ClearRoom(sid)
	if !ok || prev.Room == "" {
		return
	}
	o.removeFromRoom(sid, prev.Room)
	o.publishPresence(prev.Room)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(prev.Room)).Msg("left room")
}

// Disconnect tears down everything a dropped transport owned.
func (o *Orchestrator) Disconnect(sid core.SessionID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	prev, ok := o.Registry.Unbind(sid)
	if !ok {
		return
	}
	if prev.Room != "" {
		o.removeFromRoom(sid, prev.Room)
		o.publishPresence(prev.Room)
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(prev.Room)).Bool("admin", prev.Admin).Int("connections", o.Registry.Len()).Msg("disconnected")
}

// AdminJoinAll turns the connection into a monitor of every room and returns
// the current occupancy snapshot.
func (o *Orchestrator) AdminJoinAll(ctx context.Context, sid core.SessionID, token string) ([]domain.RoomPresence, error) {
	if o.Admins == nil {
		return nil, fmt.Errorf("%w: no authorizer configured", domain.ErrForbidden)
	}
	adminID, err := o.Admins.AuthorizeAdmin(ctx, token)
	if err != nil {
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Err(err).Msg("admin join refused")
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	prev, ok := o.Registry.Get(sid)
	if !ok {
		return nil, domain.ErrNotJoined
	}
	if prev.Room != "" {
		o.removeFromRoom(sid, prev.Room)
		o.publishPresence(prev.Room)
	}
	o.Registry.BindAdmin(sid, adminID)
	snapshot := o.Rooms.Snapshot()

	logging.Audit(ctx, "chat.admin_join_all", string(adminID), "*")
	return snapshot, nil
}

func (o *Orchestrator) AdminLeaveAll(sid core.SessionID) {
	if s, ok := o.Registry.Get(sid); ok && s.Admin {
		o.Registry.ClearRoom(sid)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("admin left all rooms")
	}
}

// Presence returns the live count of a room.
func (o *Orchestrator) Presence(roomID domain.RoomID) int {
	if room, ok := o.Rooms.Get(roomID); ok {
		return room.MemberCount()
	}
	return 0
}

// removeFromRoom must run under o.mu.
func (o *Orchestrator) removeFromRoom(sid core.SessionID, roomID domain.RoomID) {
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return
	}
	room.RemoveMember(sid)
	o.Rooms.StopRoom(roomID)
}

// publishPresence sends the recomputed count to the room and a one-room
// snapshot to admin monitors. Must run under o.mu so counts go out in order.
func (o *Orchestrator) publishPresence(roomID domain.RoomID) {
	count := 0
	var users []domain.UserID
	if room, ok := o.Rooms.Get(roomID); ok {
		users = room.Users()
		count = len(users)
		o.broadcast(room, "", protocol.NewPresence(roomID, count))
	}
	log.Debug().Str("module", "orch").Str("room", string(roomID)).Int("count", count).Msg("presence")

	admins := o.Registry.Admins()
	if len(admins) == 0 {
		return
	}
	if users == nil {
		users = []domain.UserID{}
	}
	snap := protocol.NewAdminPresence([]domain.RoomPresence{{RoomID: roomID, Count: count, Users: users}})
	for _, a := range admins {
		o.sendTo(a.Signal, snap)
	}
}
