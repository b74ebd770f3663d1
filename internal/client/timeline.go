package client

import (
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/google/uuid"
)

type EntryState int

const (
	Pending EntryState = iota
	Confirmed
	Failed
)

func (s EntryState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	default:
		return "failed"
	}
}

// Entry is one rendered row. TempID is set for rows that began as a placeholder.
type Entry struct {
	TempID  string
	State   EntryState
	Message domain.Message
}

// DefaultMatchWindow is how far apart a placeholder and its broadcast may be.
const DefaultMatchWindow = 30 * time.Second

// Timeline is the client view of one room. Each placeholder moves
// Pending -> Confirmed (replaced in place) or Pending -> Failed (removed).
type Timeline struct {
	mu      sync.Mutex
	self    domain.UserID
	room    domain.RoomID
	entries []Entry
	seen    *ProcessedSet
	window  time.Duration
	now     func() time.Time
}

func NewTimeline(self domain.UserID, room domain.RoomID, seen *ProcessedSet) *Timeline {
	if seen == nil {
		seen = NewProcessedSet(0)
	}
	return &Timeline{
		self:   self,
		room:   room,
		seen:   seen,
		window: DefaultMatchWindow,
		now:    time.Now,
	}
}

// AddPending inserts a placeholder for a send the user just issued.
func (t *Timeline) AddPending(content string) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := Entry{
		TempID: uuid.NewString(),
		State:  Pending,
		Message: domain.Message{
			RoomID:    t.room,
			SenderID:  t.self,
			Content:   content,
			CreatedAt: t.now(),
		},
	}
	t.entries = append(t.entries, e)
	return e
}

// Confirm resolves the placeholder tempID with the server's record.
// If that record was already rendered, the placeholder is dropped instead.
func (t *Timeline) Confirm(tempID string, msg domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.pendingIndex(tempID)
	if !t.seen.Mark(msg.ID) {
		if i >= 0 {
			t.removeAt(i)
		}
		return
	}
	if i >= 0 {
		t.entries[i].Message = msg
		t.entries[i].State = Confirmed
		return
	}
	t.entries = append(t.entries, Entry{State: Confirmed, Message: msg})
}

// Receive merges a broadcast message. It reports false for an id already
// rendered. An own message replaces the oldest matching placeholder.
func (t *Timeline) Receive(msg domain.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.seen.Mark(msg.ID) {
		return false
	}
	if msg.SenderID == t.self {
		if i := t.matchPlaceholder(msg); i >= 0 {
			t.entries[i].Message = msg
			t.entries[i].State = Confirmed
			return true
		}
	}
	t.entries = append(t.entries, Entry{State: Confirmed, Message: msg})
	return true
}

// Fail removes a placeholder whose send could not be completed.
func (t *Timeline) Fail(tempID string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.pendingIndex(tempID)
	if i < 0 {
		return Entry{}, false
	}
	e := t.entries[i]
	e.State = Failed
	t.removeAt(i)
	return e, true
}

// Prepend inserts older messages ahead of the current view and returns how
// many rows were inserted, so a view can shift its scroll anchor by that much.
func (t *Timeline) Prepend(older []domain.Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	fresh := make([]Entry, 0, len(older))
	for _, m := range older {
		if !t.seen.Mark(m.ID) {
			continue
		}
		fresh = append(fresh, Entry{State: Confirmed, Message: m})
	}
	if len(fresh) == 0 {
		return 0
	}
	t.entries = append(fresh, t.entries...)
	return len(fresh)
}

func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// OldestID is the id of the oldest confirmed row, or empty.
func (t *Timeline) OldestID() domain.MessageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.State == Confirmed {
			return e.Message.ID
		}
	}
	return ""
}

func (t *Timeline) pendingIndex(tempID string) int {
	for i, e := range t.entries {
		if e.State == Pending && e.TempID == tempID {
			return i
		}
	}
	return -1
}

// matchPlaceholder matches on the echoed client id, or on content and
// recency for messages that carry none.
func (t *Timeline) matchPlaceholder(msg domain.Message) int {
	if msg.ClientID != "" {
		return t.pendingIndex(msg.ClientID)
	}
	for i, e := range t.entries {
		if e.State != Pending || strings.TrimSpace(e.Message.Content) != msg.Content {
			continue
		}
		d := msg.CreatedAt.Sub(e.Message.CreatedAt)
		if d < 0 {
			d = -d
		}
		if d <= t.window {
			return i
		}
	}
	return -1
}

func (t *Timeline) removeAt(i int) {
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
}
