package orch

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/logging"
	"github.com/dkeye/Chat/internal/protocol"
	"github.com/rs/zerolog/log"
)

// SendRequest is one send attempt. ClientID is the sender's temporary id and
// makes a retry through the other entry point idempotent.
type SendRequest struct {
	RoomID   domain.RoomID
	SenderID domain.UserID
	Content  string
	ClientID string
}

// Send is the acknowledged live entry point. The connection must be joined
// to the target room as the claimed sender.
func (o *Orchestrator) Send(ctx context.Context, sid core.SessionID, req SendRequest) (*domain.Message, error) {
	roomID, senderID := req.RoomID, req.SenderID
	if err := roomID.Validate(); err != nil {
		return nil, err
	}
	s, ok := o.Registry.Get(sid)
	if !ok || s.User == "" {
		return nil, domain.ErrNotJoined
	}
	if s.Admin {
		return nil, domain.ErrAdminCannotSend
	}
	if s.Room != roomID {
		return nil, domain.ErrNotJoined
	}
	if s.User != senderID {
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("session_user", string(s.User)).Str("sender", string(senderID)).Msg("sender mismatch")
		return nil, domain.ErrSenderMismatch
	}
	return o.deliver(ctx, req)
}

// SendFallback is the stateless entry point used when no live connection
// exists or the live acknowledgement timed out.
func (o *Orchestrator) SendFallback(ctx context.Context, req SendRequest) (*domain.Message, error) {
	if err := req.RoomID.Validate(); err != nil {
		return nil, err
	}
	if err := req.SenderID.Validate(); err != nil {
		return nil, err
	}
	return o.deliver(ctx, req)
}

// deliver validates, re-checks membership, persists and fans out.
// Both entry points converge here. A retried ClientID yields the stored
// message, which is fanned out again; receivers drop it by id.
func (o *Orchestrator) deliver(ctx context.Context, req SendRequest) (*domain.Message, error) {
	roomID, senderID := req.RoomID, req.SenderID
	text, err := domain.ValidateContent(req.Content, o.Limits.MaxContentLen)
	if err != nil {
		return nil, err
	}
	if !o.SendLimiter.Allow(senderID) {
		return nil, domain.ErrRateLimited
	}
	if err := o.checkMember(ctx, roomID, senderID); err != nil {
		return nil, err
	}

	sender, err := o.lookupSender(ctx, senderID)
	if err != nil {
		return nil, err
	}

	msg, err := o.Store.Append(ctx, domain.Draft{
		RoomID:       roomID,
		SenderID:     senderID,
		SenderName:   sender.DisplayName,
		SenderAvatar: sender.AvatarURL,
		Content:      text,
		ClientID:     req.ClientID,
	})
	if err != nil {
		l := logging.Ctx(ctx)
		l.Error().Err(err).Str("room", string(roomID)).Msg("append message")
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreFailed, err)
	}
	logging.Audit(ctx, "chat.send_message", string(senderID), string(roomID))

	o.fanOut(*msg)
	return msg, nil
}

// fanOut reaches every connection joined at broadcast time, the sender's own
// included. Members that dropped earlier catch up through history.
func (o *Orchestrator) fanOut(msg domain.Message) {
	room, ok := o.Rooms.Get(msg.RoomID)
	if !ok {
		log.Debug().Str("module", "orch").Str("room", string(msg.RoomID)).Msg("no live members for message")
		return
	}
	room.Remember(msg)
	res := o.broadcast(room, "", protocol.MessageEvent{Type: protocol.TypeMessage, Message: msg})
	log.Debug().Str("module", "orch").Str("room", string(msg.RoomID)).Str("message", string(msg.ID)).Int("sent_to", res.SendTo).Msg("message fan-out")
}

func (o *Orchestrator) checkMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	ok, err := o.Oracle.IsMember(ctx, roomID, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCheckFailed, err)
	}
	if !ok {
		return domain.ErrNotMember
	}
	return nil
}

func (o *Orchestrator) lookupSender(ctx context.Context, userID domain.UserID) (*domain.User, error) {
	if o.Users == nil {
		return domain.Anonymous(userID), nil
	}
	u, err := o.Users.Lookup(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUserLookup, err)
	}
	if u == nil {
		return domain.Anonymous(userID), nil
	}
	return u, nil
}

// Recent serves the live room's in-memory buffer when it alone can fill the
// request. Otherwise the store answers, merged with the buffer by id, since
// the buffer starts over whenever a room goes live again.
func (o *Orchestrator) Recent(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.Message, error) {
	if err := roomID.Validate(); err != nil {
		return nil, err
	}
	var live []domain.Message
	if room, ok := o.Rooms.Get(roomID); ok {
		live = room.Recent(limit)
		if limit > 0 && len(live) >= limit {
			return live, nil
		}
	}
	msgs, err := o.Store.Recent(ctx, roomID, limit)
	if err != nil {
		if len(live) > 0 {
			log.Warn().Err(err).Str("module", "orch").Str("room", string(roomID)).Msg("recent from buffer only")
			return live, nil
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreFailed, err)
	}
	return mergeRecent(msgs, live, limit), nil
}

// mergeRecent unions two oldest-first lists by id and keeps the newest limit.
func mergeRecent(stored, live []domain.Message, limit int) []domain.Message {
	if len(live) == 0 {
		return stored
	}
	seen := make(map[domain.MessageID]struct{}, len(stored))
	out := make([]domain.Message, 0, len(stored)+len(live))
	for _, m := range stored {
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	for _, m := range live {
		if _, ok := seen[m.ID]; !ok {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b domain.Message) int { return strings.Compare(string(a.ID), string(b.ID)) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// History returns one backward page for a member of the room.
func (o *Orchestrator) History(ctx context.Context, roomID domain.RoomID, userID domain.UserID, cursor string, limit int) (*domain.HistoryPage, error) {
	if err := roomID.Validate(); err != nil {
		return nil, err
	}
	if err := userID.Validate(); err != nil {
		return nil, err
	}
	if err := o.checkMember(ctx, roomID, userID); err != nil {
		return nil, err
	}
	page, err := o.Store.History(ctx, roomID, cursor, limit)
	if err != nil {
		if domain.KindOf(err) == domain.KindValidation {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreFailed, err)
	}
	return page, nil
}
