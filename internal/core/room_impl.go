package core

import (
	"sync"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	id    domain.RoomID
	mu    sync.RWMutex
	bySID map[SessionID]MemberSession

	// ring of the last confirmed messages, oldest at head
	recent    []domain.Message
	head      int
	recentCap int
}

func NewRoomService(id domain.RoomID, recentCap int) RoomService {
	return &roomImpl{
		id:        id,
		bySID:     make(map[SessionID]MemberSession),
		recentCap: recentCap,
	}
}

func (r *roomImpl) ID() domain.RoomID { return r.id }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) Empty() bool { return r.MemberCount() == 0 }

// Users lists one entry per connection, so two tabs of one user appear twice.
func (r *roomImpl) Users() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.UserID, 0, len(r.bySID))
	for _, ms := range r.bySID {
		out = append(out, ms.User())
	}
	return out
}

func (r *roomImpl) AddMember(sid SessionID, ms MemberSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySID[sid] = ms
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(sid)).Str("user", string(ms.User())).Msg("member added")
}

func (r *roomImpl) RemoveMember(sid SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[sid]; !ok {
		return false
	}
	delete(r.bySID, sid)
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(sid)).Msg("member removed")
	return true
}

func (r *roomImpl) HasMember(sid SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bySID[sid]
	return ok
}

func (r *roomImpl) Broadcast(exclude SessionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for sid, m := range r.bySID {
		if exclude != "" && sid == exclude {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, sid)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) Remember(msg domain.Message) {
	if r.recentCap <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.recent {
		if m.ID == msg.ID {
			return
		}
	}
	if len(r.recent) < r.recentCap {
		r.recent = append(r.recent, msg)
		return
	}
	r.recent[r.head] = msg
	r.head = (r.head + 1) % r.recentCap
}

// Recent returns up to limit of the newest remembered messages, oldest first.
func (r *roomImpl) Recent(limit int) []domain.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := len(r.recent)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.Message, 0, limit)
	for i := n - limit; i < n; i++ {
		out = append(out, r.recent[(r.head+i)%n])
	}
	return out
}
