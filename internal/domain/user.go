// Package domain contains chat entities and their validation rules.
package domain

import "errors"

const MaxUserIDLen = 64

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
)

type UserID string

func (id UserID) Validate() error {
	if len(id) == 0 {
		return ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return ErrUserIDTooLong
	}
	return nil
}

// User is the profile view the chat core needs: who sent a message and how to render it.
type User struct {
	ID          UserID  `json:"id"`
	DisplayName string  `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl"`
}

// Anonymous is used when the directory has no profile for a member.
func Anonymous(id UserID) *User {
	return &User{ID: id, DisplayName: string(id)}
}
