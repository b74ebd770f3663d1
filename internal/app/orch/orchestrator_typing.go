package orch

import (
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Typing relays a typing or stopTyping signal to the sender's room mates.
// It is best-effort: unjoined connections and throttled starts are dropped.
func (o *Orchestrator) Typing(sid core.SessionID, stop bool) {
	s, ok := o.Registry.Get(sid)
	if !ok || !s.Joined() || s.Admin {
		return
	}
	kind := protocol.TypeTyping
	if stop {
		kind = protocol.TypeStopTyping
	} else if !o.TypingLimiter.Allow(s.User) {
		return
	}
	room, ok := o.Rooms.Get(s.Room)
	if !ok {
		return
	}
	res := o.broadcast(room, sid, protocol.TypingEvent{Type: kind, UserID: s.User})
	log.Trace().Str("module", "orch").Str("sid", string(sid)).Str("type", kind).Int("sent_to", res.SendTo).Msg("typing relayed")
}
