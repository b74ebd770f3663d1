package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	calls atomic.Int32
	delay time.Duration
}

func (s *countingStore) Append(context.Context, domain.Draft) (*domain.Message, error) {
	return nil, errors.New("not used")
}

func (s *countingStore) History(_ context.Context, room domain.RoomID, cursor string, limit int) (*domain.HistoryPage, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	return &domain.HistoryPage{Messages: []domain.Message{{ID: domain.MessageID(cursor + "-older"), RoomID: room}}}, nil
}

func (s *countingStore) Recent(context.Context, domain.RoomID, int) ([]domain.Message, error) {
	return nil, nil
}

type memCache struct {
	mu    sync.Mutex
	pages map[string]*domain.HistoryPage
	gets  int
	fail  bool
}

func newMemCache() *memCache { return &memCache{pages: make(map[string]*domain.HistoryPage)} }

func (c *memCache) Get(_ context.Context, key string) (*domain.HistoryPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.fail {
		return nil, errors.New("redis down")
	}
	p, ok := c.pages[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return p, nil
}

func (c *memCache) Set(_ context.Context, key string, page *domain.HistoryPage, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[key] = page
	return nil
}

func (c *memCache) BuildKey(room domain.RoomID, cursor string, limit int) string {
	return fmt.Sprintf("test:%s:%s:%d", room, cursor, limit)
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pages[key]
	return ok
}

func TestCachedStoreNewestPageReadsThrough(t *testing.T) {
	inner := &countingStore{}
	cache := newMemCache()
	s := NewCachedStore(inner, cache, time.Minute)

	for i := 0; i < 3; i++ {
		_, err := s.History(context.Background(), "r1", "", 10)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, inner.calls.Load())
	assert.Zero(t, cache.gets)
}

func TestCachedStoreServesCursorPagesFromCache(t *testing.T) {
	inner := &countingStore{}
	cache := newMemCache()
	s := NewCachedStore(inner, cache, time.Minute)
	ctx := context.Background()

	page, err := s.History(ctx, "r1", "C1", 10)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageID("C1-older"), page.Messages[0].ID)

	key := cache.BuildKey("r1", "C1", 10)
	assert.Eventually(t, func() bool { return cache.has(key) }, time.Second, 10*time.Millisecond)

	again, err := s.History(ctx, "r1", "C1", 10)
	require.NoError(t, err)
	assert.Equal(t, page.Messages, again.Messages)
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestCachedStoreCollapsesConcurrentMisses(t *testing.T) {
	inner := &countingStore{delay: 50 * time.Millisecond}
	s := NewCachedStore(inner, newMemCache(), time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.History(context.Background(), "r1", "C1", 10)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Less(t, inner.calls.Load(), int32(8))
}

func TestCachedStoreSurvivesCacheErrors(t *testing.T) {
	inner := &countingStore{}
	cache := newMemCache()
	cache.fail = true
	s := NewCachedStore(inner, cache, time.Minute)

	page, err := s.History(context.Background(), "r1", "C1", 10)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)
	assert.EqualValues(t, 1, inner.calls.Load())
}
