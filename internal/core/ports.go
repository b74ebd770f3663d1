package core

//go:generate mockgen -destination=mocks/ports_mock.go -package=mocks github.com/dkeye/Chat/internal/core MembershipOracle,AdminAuthorizer,UserDirectory,MessageStore

import (
	"context"

	"github.com/dkeye/Chat/internal/domain"
)

// MembershipOracle answers whether a user belongs to a room.
// Implementations return a plain error for infrastructure failures;
// callers wrap it as domain.ErrCheckFailed.
type MembershipOracle interface {
	IsMember(ctx context.Context, room domain.RoomID, user domain.UserID) (bool, error)
}

// AdminAuthorizer gates the monitor capability separately from room membership.
type AdminAuthorizer interface {
	AuthorizeAdmin(ctx context.Context, token string) (domain.UserID, error)
}

// UserDirectory resolves the sender's current profile at send time.
type UserDirectory interface {
	Lookup(ctx context.Context, user domain.UserID) (*domain.User, error)
}

// MessageStore is the append-only source of truth for room history.
type MessageStore interface {
	Append(ctx context.Context, draft domain.Draft) (*domain.Message, error)
	History(ctx context.Context, room domain.RoomID, cursor string, limit int) (*domain.HistoryPage, error)
	Recent(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error)
}
