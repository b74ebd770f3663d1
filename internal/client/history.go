package client

import (
	"context"
	"sync"

	"github.com/dkeye/Chat/internal/domain"
)

// HistorySource is the read side a pager pulls from.
type HistorySource interface {
	History(ctx context.Context, room domain.RoomID, user domain.UserID, cursor string, limit int) (*domain.HistoryPage, error)
	Recent(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error)
}

// HistoryPager walks a room's history backward into a Timeline.
// A page without a next cursor ends the walk; that is not an error.
type HistoryPager struct {
	mu       sync.Mutex
	src      HistorySource
	timeline *Timeline
	room     domain.RoomID
	user     domain.UserID
	limit    int
	cursor   string
	done     bool
}

func NewHistoryPager(src HistorySource, tl *Timeline, room domain.RoomID, user domain.UserID, limit int) *HistoryPager {
	return &HistoryPager{src: src, timeline: tl, room: room, user: user, limit: limit}
}

// LoadInitial reads the newest page from the membership-aware history. Only
// when that succeeds with nothing does it ask the live service for its recent
// buffer; a refusal or failure is returned as is.
func (p *HistoryPager) LoadInitial(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	page, err := p.src.History(ctx, p.room, p.user, "", p.limit)
	if err != nil {
		return 0, err
	}
	if len(page.Messages) > 0 {
		return p.apply(page), nil
	}

	msgs, err := p.src.Recent(ctx, p.room, p.limit)
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		p.done = true
		return 0, nil
	}
	p.cursor = string(msgs[0].ID)
	return p.timeline.Prepend(msgs), nil
}

// LoadOlder prepends the next older page and returns the rows inserted.
func (p *HistoryPager) LoadOlder(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return 0, nil
	}
	page, err := p.src.History(ctx, p.room, p.user, p.cursor, p.limit)
	if err != nil {
		return 0, err
	}
	return p.apply(page), nil
}

func (p *HistoryPager) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *HistoryPager) apply(page *domain.HistoryPage) int {
	if page.NextCursor == nil {
		p.done = true
	} else {
		p.cursor = *page.NextCursor
	}
	return p.timeline.Prepend(page.Messages)
}
