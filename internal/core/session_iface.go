package core

import "github.com/dkeye/Chat/internal/domain"

type SessionID string

// MemberSession binds a user to its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	User() domain.UserID
	Signal() SignalConnection
}
