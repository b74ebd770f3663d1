package domain

import "errors"

// Kind is the failure class a caller reacts to.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthorized
	KindValidation
	KindTransient
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindTransient:
		return "transient"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

var (
	ErrNotMember       = errors.New("not a member of this room")
	ErrCheckFailed     = errors.New("membership check failed")
	ErrSenderMismatch  = errors.New("session user does not match sender")
	ErrNotJoined       = errors.New("connection has not joined this room")
	ErrForbidden       = errors.New("admin authorization failed")
	ErrEmptyContent    = errors.New("message content is empty")
	ErrContentTooLong  = errors.New("message content too long")
	ErrRateLimited     = errors.New("too many messages")
	ErrStoreFailed     = errors.New("message store unavailable")
	ErrUserLookup      = errors.New("user directory unavailable")
	ErrBadPayload      = errors.New("bad payload")
	ErrInvalidCursor   = errors.New("invalid cursor")
	ErrAdminCannotSend = errors.New("admin sessions cannot send")
)

var kinds = []struct {
	err  error
	kind Kind
	code string
}{
	{ErrNotMember, KindUnauthorized, "not_a_member"},
	{ErrSenderMismatch, KindUnauthorized, "unauthorized"},
	{ErrNotJoined, KindUnauthorized, "not_joined"},
	{ErrForbidden, KindUnauthorized, "forbidden"},
	{ErrAdminCannotSend, KindUnauthorized, "unauthorized"},
	{ErrEmptyContent, KindValidation, "empty_content"},
	{ErrContentTooLong, KindValidation, "content_too_long"},
	{ErrRateLimited, KindValidation, "rate_limited"},
	{ErrUserIDEmpty, KindValidation, "bad_user_id"},
	{ErrUserIDTooLong, KindValidation, "bad_user_id"},
	{ErrRoomIDEmpty, KindValidation, "bad_room_id"},
	{ErrRoomIDTooLong, KindValidation, "bad_room_id"},
	{ErrInvalidCursor, KindValidation, "bad_cursor"},
	{ErrCheckFailed, KindTransient, "check_failed"},
	{ErrStoreFailed, KindTransient, "store_unavailable"},
	{ErrUserLookup, KindTransient, "store_unavailable"},
	{ErrBadPayload, KindProtocol, "bad_payload"},
}

// KindOf classifies err by the first sentinel it wraps.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// CodeOf returns the stable wire code for err.
func CodeOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return "internal_error"
}
