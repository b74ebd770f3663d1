package app

import (
	"sort"
	"sync"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/rs/zerolog/log"
)

type RoomManagerImpl struct {
	mu        sync.RWMutex
	rooms     map[domain.RoomID]core.RoomService
	recentCap int
}

// NewRoomManager keeps up to recentCap confirmed messages per live room.
func NewRoomManager(recentCap int) core.RoomManager {
	return &RoomManagerImpl{
		rooms:     make(map[domain.RoomID]core.RoomService),
		recentCap: recentCap,
	}
}

func (f *RoomManagerImpl) GetOrCreate(id domain.RoomID) core.RoomService {
	f.mu.RLock()
	room, ok := f.rooms[id]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[id]; ok {
		return room
	}
	room = core.NewRoomService(id, f.recentCap)
	f.rooms[id] = room
	log.Debug().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	return room
}

func (f *RoomManagerImpl) Get(id domain.RoomID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	return room, ok
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: r.MemberCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot enumerates every room with at least one occupant.
func (f *RoomManagerImpl) Snapshot() []domain.RoomPresence {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]domain.RoomPresence, 0, len(f.rooms))
	for id, r := range f.rooms {
		users := r.Users()
		if len(users) == 0 {
			continue
		}
		out = append(out, domain.RoomPresence{RoomID: id, Count: len(users), Users: users})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

func (f *RoomManagerImpl) StopRoom(id domain.RoomID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rooms[id]; ok && r.Empty() {
		delete(f.rooms, id)
		log.Debug().Str("module", "app.rooms").Str("room", string(id)).Msg("room stopped")
	}
}
