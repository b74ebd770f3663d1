package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const DefaultMaxContentLen = 2000

type MessageID string

// Message is immutable once persisted.
type Message struct {
	ID           MessageID `json:"id"`
	RoomID       RoomID    `json:"roomId"`
	SenderID     UserID    `json:"senderId"`
	SenderName   string    `json:"senderName"`
	SenderAvatar *string   `json:"senderAvatar"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"createdAt"`
	// ClientID is the sender's temporary id; a retried send reuses it.
	ClientID string `json:"clientId,omitempty"`
}

// Draft is a message before the store assigned it an id and timestamp.
type Draft struct {
	RoomID       RoomID
	SenderID     UserID
	SenderName   string
	SenderAvatar *string
	Content      string
	ClientID     string
}

// ValidateContent rejects blank content and content above maxLen runes.
// Content is returned trimmed.
func ValidateContent(content string, maxLen int) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", ErrEmptyContent
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxContentLen
	}
	if utf8.RuneCountInString(trimmed) > maxLen {
		return "", ErrContentTooLong
	}
	return trimmed, nil
}

// HistoryPage is one backward page of room history, oldest message first.
// NextCursor is nil when no older messages exist.
type HistoryPage struct {
	Messages   []Message `json:"messages"`
	NextCursor *string   `json:"nextCursor"`
}
