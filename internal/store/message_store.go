package store

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

const DefaultPageSize = 50

// MessageStore keeps messages keyed by ULID. ULIDs sort by creation time, so a
// backward page is a plain key range below the cursor.
type MessageStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewMessageStore(db *gorm.DB) *MessageStore {
	return &MessageStore{db: db, now: time.Now}
}

// Append persists d. A draft carrying a ClientID the sender already used
// returns the stored message instead of a second copy.
func (s *MessageStore) Append(ctx context.Context, d domain.Draft) (*domain.Message, error) {
	if d.ClientID != "" {
		if msg, err := s.byClientID(ctx, d.SenderID, d.ClientID); err != nil || msg != nil {
			return msg, err
		}
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	id, err := ulid.New(ulid.Timestamp(now), ulid.DefaultEntropy())
	if err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}
	row := MessageModel{
		ID:           id.String(),
		RoomID:       string(d.RoomID),
		SenderID:     string(d.SenderID),
		SenderName:   d.SenderName,
		SenderAvatar: d.SenderAvatar,
		Content:      d.Content,
		CreatedAt:    now,
	}
	if d.ClientID != "" {
		row.ClientID = &d.ClientID
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if d.ClientID != "" {
			// a concurrent retry may have won the unique index
			if msg, lerr := s.byClientID(ctx, d.SenderID, d.ClientID); lerr == nil && msg != nil {
				return msg, nil
			}
		}
		return nil, fmt.Errorf("insert message: %w", err)
	}
	msg := row.ToDomain()
	return &msg, nil
}

func (s *MessageStore) byClientID(ctx context.Context, sender domain.UserID, clientID string) (*domain.Message, error) {
	var rows []MessageModel
	err := s.db.WithContext(ctx).
		Where("sender_id = ? AND client_id = ?", string(sender), clientID).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query client id: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	msg := rows[0].ToDomain()
	return &msg, nil
}

// History returns up to limit messages older than cursor, oldest first.
// An empty cursor starts from the newest message.
func (s *MessageStore) History(ctx context.Context, room domain.RoomID, cursor string, limit int) (*domain.HistoryPage, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	q := s.db.WithContext(ctx).Where("room_id = ?", string(room))
	if cursor != "" {
		if _, err := ulid.ParseStrict(cursor); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCursor, err)
		}
		q = q.Where("id < ?", cursor)
	}

	var rows []MessageModel
	if err := q.Order("id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	page := &domain.HistoryPage{Messages: toDomainAsc(rows)}
	if hasMore {
		next := rows[len(rows)-1].ID
		page.NextCursor = &next
	}
	return page, nil
}

// Recent returns the newest limit messages, oldest first.
func (s *MessageStore) Recent(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	var rows []MessageModel
	err := s.db.WithContext(ctx).
		Where("room_id = ?", string(room)).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	return toDomainAsc(rows), nil
}

// toDomainAsc converts rows fetched newest first.
func toDomainAsc(rows []MessageModel) []domain.Message {
	out := make([]domain.Message, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	slices.Reverse(out)
	return out
}
