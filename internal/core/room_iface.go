package core

import (
	"github.com/dkeye/Chat/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []SessionID
}

// RoomService is the core-facing API of a live room.
// It owns the connection set but never touches transport resources.
type RoomService interface {
	ID() domain.RoomID
	MemberCount() int
	Users() []domain.UserID
	Empty() bool

	AddMember(sid SessionID, ms MemberSession)
	RemoveMember(sid SessionID) bool
	HasMember(sid SessionID) bool
	// Broadcast sends data to every member except the exclude session.
	// An empty exclude reaches everyone.
	Broadcast(exclude SessionID, data Frame) PublishResult

	Remember(msg domain.Message)
	Recent(limit int) []domain.Message
}

type RoomInfo struct {
	ID          domain.RoomID `json:"roomId"`
	MemberCount int           `json:"count"`
}

type RoomManager interface {
	GetOrCreate(id domain.RoomID) RoomService
	Get(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	Snapshot() []domain.RoomPresence
	// StopRoom drops the room if it has no members left.
	StopRoom(id domain.RoomID)
}
