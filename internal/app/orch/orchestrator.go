package orch

import (
	"sync"

	"github.com/dkeye/Chat/internal/app"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/protocol"
	"github.com/rs/zerolog/log"
)

type Limits struct {
	MaxContentLen int
}

// Orchestrator owns the live chat state: who is connected, which room each
// connection is bound to, and the single path a message takes to become durable.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy

	Oracle core.MembershipOracle
	Admins core.AdminAuthorizer
	Users  core.UserDirectory
	Store  core.MessageStore

	SendLimiter   *app.RateLimiter
	TypingLimiter *app.RateLimiter
	Limits        Limits

	// mu serializes membership mutations; it is never held across I/O.
	mu sync.Mutex
}

// broadcast fans v out to a room and applies the backpressure policy to
// members that could not take it.
func (o *Orchestrator) broadcast(room core.RoomService, exclude core.SessionID, v any) core.PublishResult {
	frame, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode broadcast")
		return core.PublishResult{}
	}
	res := room.Broadcast(exclude, frame)
	o.onDropped(room.ID(), res.Dropped)
	return res
}

func (o *Orchestrator) onDropped(roomID domain.RoomID, dropped []core.SessionID) {
	if o.Policy == nil {
		return
	}
	for _, sid := range dropped {
		switch o.Policy.OnBackPressure(roomID, sid) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Msg("kicking slow member")
			o.Kick(sid)
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}

// Kick closes a connection. The transport's teardown then calls Disconnect.
func (o *Orchestrator) Kick(sid core.SessionID) {
	o.Registry.Cancel(sid)
}

func (o *Orchestrator) sendTo(conn core.SignalConnection, v any) {
	if conn == nil {
		return
	}
	frame, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode direct")
		return
	}
	if err := conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "orch").Msg("direct send dropped")
	}
}
