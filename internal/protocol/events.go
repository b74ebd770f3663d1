// Package protocol defines the JSON events exchanged over the live connection.
package protocol

import (
	"encoding/json"

	"github.com/dkeye/Chat/internal/domain"
)

const (
	TypeJoin          = "join"
	TypeLeave         = "leave"
	TypeSend          = "send"
	TypeTyping        = "typing"
	TypeStopTyping    = "stopTyping"
	TypeAdminJoinAll  = "adminJoinAll"
	TypeAdminLeaveAll = "adminLeaveAll"
	TypePing          = "ping"
	TypeWhoAmI        = "whoami"

	TypePong     = "pong"
	TypeAck      = "ack"
	TypeMessage  = "message"
	TypePresence = "presence"
	TypeError    = "error"
)

// Envelope is decoded first to route an inbound event.
type Envelope struct {
	Type string `json:"type"`
	Seq  int64  `json:"seq,omitempty"`
}

type JoinRequest struct {
	Type   string        `json:"type"`
	Seq    int64         `json:"seq,omitempty"`
	RoomID domain.RoomID `json:"roomId"`
	UserID domain.UserID `json:"userId"`
}

type SendRequest struct {
	Type     string        `json:"type"`
	Seq      int64         `json:"seq,omitempty"`
	TempID   string        `json:"id"`
	RoomID   domain.RoomID `json:"roomId"`
	SenderID domain.UserID `json:"senderId"`
	Content  string        `json:"content"`
}

type AdminJoinAllRequest struct {
	Type  string `json:"type"`
	Seq   int64  `json:"seq,omitempty"`
	Token string `json:"token"`
}

// Ack answers join and send.
type Ack struct {
	Type    string          `json:"type"`
	Seq     int64           `json:"seq,omitempty"`
	OK      bool            `json:"ok"`
	TempID  string          `json:"tempId,omitempty"`
	Message *domain.Message `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
}

type MessageEvent struct {
	Type    string         `json:"type"`
	Message domain.Message `json:"message"`
}

// PresenceEvent carries a room count, or a snapshot for admin monitors.
type PresenceEvent struct {
	Type   string                `json:"type"`
	RoomID domain.RoomID         `json:"roomId,omitempty"`
	Count  int                   `json:"count"`
	Admin  bool                  `json:"admin,omitempty"`
	Rooms  []domain.RoomPresence `json:"rooms,omitempty"`
}

type TypingEvent struct {
	Type   string        `json:"type"`
	UserID domain.UserID `json:"userId"`
}

type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func NewAckOK(seq int64, tempID string, msg *domain.Message) Ack {
	return Ack{Type: TypeAck, Seq: seq, OK: true, TempID: tempID, Message: msg}
}

func NewAckErr(seq int64, tempID string, err error) Ack {
	return Ack{Type: TypeAck, Seq: seq, OK: false, TempID: tempID, Error: err.Error(), Code: domain.CodeOf(err)}
}

func NewPresence(room domain.RoomID, count int) PresenceEvent {
	return PresenceEvent{Type: TypePresence, RoomID: room, Count: count}
}

func NewAdminPresence(rooms []domain.RoomPresence) PresenceEvent {
	total := 0
	for _, r := range rooms {
		total += r.Count
	}
	return PresenceEvent{Type: TypePresence, Admin: true, Count: total, Rooms: rooms}
}

func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}
