package domain

import "errors"

const MaxRoomIDLen = 64

var (
	ErrRoomIDEmpty   = errors.New("room id empty")
	ErrRoomIDTooLong = errors.New("room id too long")
)

// RoomID is the external chapter or group id a room is keyed by.
type RoomID string

func (id RoomID) Validate() error {
	if len(id) == 0 {
		return ErrRoomIDEmpty
	}
	if len(id) > MaxRoomIDLen {
		return ErrRoomIDTooLong
	}
	return nil
}

// RoomPresence is one row of the admin snapshot.
type RoomPresence struct {
	RoomID RoomID   `json:"roomId"`
	Count  int      `json:"count"`
	Users  []UserID `json:"users"`
}
