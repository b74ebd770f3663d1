package app

import (
	"context"
	"sync"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	User   domain.UserID
	Room   domain.RoomID
	Admin  bool
	Signal core.SignalConnection
	Cancel context.CancelFunc
}

// Session is a read-only copy of a registry entry.
// A connection carries a Session once it joined a room or became an admin monitor.
type Session struct {
	ID     core.SessionID
	User   domain.UserID
	Room   domain.RoomID
	Admin  bool
	Signal core.SignalConnection
}

func (s Session) Joined() bool { return s.User != "" && s.Room != "" }

// Registry tracks every live connection and what it is bound to.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
	}
}

func (e *sessionEntry) view(sid core.SessionID) Session {
	return Session{ID: sid, User: e.User, Room: e.Room, Admin: e.Admin, Signal: e.Signal}
}

func (r *Registry) BindSignal(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{Signal: conn, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound signal")
}

// BindRoom attaches user and room to a live connection. It reports false
// when the connection is already gone.
func (r *Registry) BindRoom(sid core.SessionID, user domain.UserID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.User = user
	e.Room = room
	e.Admin = false
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user", string(user)).Str("room", string(room)).Msg("bound room")
	return true
}

func (r *Registry) BindAdmin(sid core.SessionID, user domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.User = user
	e.Room = ""
	e.Admin = true
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user", string(user)).Msg("bound admin")
	return true
}

func (r *Registry) Get(sid core.SessionID) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.view(sid), true
	}
	return Session{}, false
}

// ClearRoom drops the room or admin binding but keeps the connection.
func (r *Registry) ClearRoom(sid core.SessionID) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return Session{}, false
	}
	prev := e.view(sid)
	e.Room = ""
	e.Admin = false
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("cleared room binding")
	return prev, true
}

// Unbind removes the connection and returns what it was bound to.
func (r *Registry) Unbind(sid core.SessionID) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
	return e.view(sid), true
}

func (r *Registry) Admins() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0)
	for sid, e := range r.sessions {
		if e.Admin {
			out = append(out, e.view(sid))
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Cancel stops the connection's pumps and closes its transport.
func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	if e.Signal != nil {
		e.Signal.Close()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
