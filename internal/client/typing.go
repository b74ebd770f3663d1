package client

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Chat/internal/domain"
)

// TypingThrottle limits outgoing typing signals to one per interval.
type TypingThrottle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	active   bool
	now      func() time.Time
}

func NewTypingThrottle(interval time.Duration) *TypingThrottle {
	return &TypingThrottle{interval: interval, now: time.Now}
}

// Keystroke reports whether a typing signal should go out now.
func (t *TypingThrottle) Keystroke() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if t.active && now.Sub(t.last) < t.interval {
		return false
	}
	t.active = true
	t.last = now
	return true
}

// Stop reports whether a stopTyping signal is owed.
func (t *TypingThrottle) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return false
	}
	t.active = false
	return true
}

// DefaultTypingIdle clears a peer's indicator when no signal refreshes it.
const DefaultTypingIdle = 5 * time.Second

// TypingTracker holds the peers currently shown as typing. Each indicator
// expires after the idle window even if stopTyping never arrives.
type TypingTracker struct {
	mu       sync.Mutex
	idle     time.Duration
	gen      uint64
	peers    map[domain.UserID]typingPeer
	onChange func([]domain.UserID)
}

type typingPeer struct {
	timer *time.Timer
	gen   uint64
}

func NewTypingTracker(idle time.Duration, onChange func([]domain.UserID)) *TypingTracker {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &TypingTracker{
		idle:     idle,
		peers:    make(map[domain.UserID]typingPeer),
		onChange: onChange,
	}
}

func (t *TypingTracker) Typing(user domain.UserID) {
	t.mu.Lock()
	old, existed := t.peers[user]
	if existed {
		old.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.peers[user] = typingPeer{
		timer: time.AfterFunc(t.idle, func() { t.expire(user, gen) }),
		gen:   gen,
	}
	t.mu.Unlock()

	if !existed {
		t.notify()
	}
}

func (t *TypingTracker) Stop(user domain.UserID) {
	t.mu.Lock()
	p, ok := t.peers[user]
	if ok {
		p.timer.Stop()
		delete(t.peers, user)
	}
	t.mu.Unlock()

	if ok {
		t.notify()
	}
}

// expire only removes user if no newer signal refreshed it.
func (t *TypingTracker) expire(user domain.UserID, gen uint64) {
	t.mu.Lock()
	p, ok := t.peers[user]
	if !ok || p.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.peers, user)
	t.mu.Unlock()
	t.notify()
}

func (t *TypingTracker) Active() []domain.UserID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.UserID, 0, len(t.peers))
	for u := range t.peers {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close stops every pending expiry.
func (t *TypingTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for u, p := range t.peers {
		p.timer.Stop()
		delete(t.peers, u)
	}
}

func (t *TypingTracker) notify() {
	if t.onChange != nil {
		t.onChange(t.Active())
	}
}
