package store

import (
	"time"

	"github.com/dkeye/Chat/internal/domain"
)

type MessageModel struct {
	ID           string    `gorm:"primaryKey;size:26;index:idx_messages_room_id,priority:2"`
	RoomID       string    `gorm:"size:64;not null;index:idx_messages_room_id,priority:1"`
	SenderID     string    `gorm:"size:64;not null;uniqueIndex:idx_messages_sender_client"`
	SenderName   string    `gorm:"size:128;not null"`
	SenderAvatar *string   `gorm:"size:512"`
	Content      string    `gorm:"type:text;not null"`
	CreatedAt    time.Time `gorm:"not null"`
	ClientID     *string   `gorm:"size:64;uniqueIndex:idx_messages_sender_client"`
}

func (MessageModel) TableName() string { return "messages" }

func (m *MessageModel) ToDomain() domain.Message {
	var clientID string
	if m.ClientID != nil {
		clientID = *m.ClientID
	}
	return domain.Message{
		ID:           domain.MessageID(m.ID),
		RoomID:       domain.RoomID(m.RoomID),
		SenderID:     domain.UserID(m.SenderID),
		SenderName:   m.SenderName,
		SenderAvatar: m.SenderAvatar,
		Content:      m.Content,
		CreatedAt:    m.CreatedAt.UTC(),
		ClientID:     clientID,
	}
}

// MembershipModel mirrors the chapter/group membership owned by the main application.
type MembershipModel struct {
	RoomID    string    `gorm:"primaryKey;size:64"`
	UserID    string    `gorm:"primaryKey;size:64"`
	CreatedAt time.Time
}

func (MembershipModel) TableName() string { return "room_members" }

type UserModel struct {
	ID          string  `gorm:"primaryKey;size:64"`
	DisplayName string  `gorm:"size:128;not null"`
	AvatarURL   *string `gorm:"size:512"`
	UpdatedAt   time.Time
}

func (UserModel) TableName() string { return "users" }

func (m *UserModel) ToDomain() *domain.User {
	return &domain.User{
		ID:          domain.UserID(m.ID),
		DisplayName: m.DisplayName,
		AvatarURL:   m.AvatarURL,
	}
}
