package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/domain"
	"github.com/dkeye/Chat/internal/logging"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// CachedStore serves cursor pages from a cache. Pages below a cursor never
// change because new messages always sort after existing ones; the newest
// page (empty cursor) is always read through.
type CachedStore struct {
	core.MessageStore
	cache HistoryCache
	ttl   time.Duration
	sf    singleflight.Group
}

func NewCachedStore(inner core.MessageStore, cache HistoryCache, ttl time.Duration) *CachedStore {
	return &CachedStore{MessageStore: inner, cache: cache, ttl: ttl}
}

func (s *CachedStore) History(ctx context.Context, room domain.RoomID, cursor string, limit int) (*domain.HistoryPage, error) {
	if cursor == "" {
		return s.MessageStore.History(ctx, room, cursor, limit)
	}

	key := s.cache.BuildKey(room, cursor, limit)
	v, err, _ := s.sf.Do(key, func() (any, error) {
		return s.fetchWithCache(ctx, room, cursor, limit, key)
	})
	if err != nil {
		return nil, err
	}
	page, ok := v.(*domain.HistoryPage)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	return page, nil
}

func (s *CachedStore) fetchWithCache(ctx context.Context, room domain.RoomID, cursor string, limit int, key string) (*domain.HistoryPage, error) {
	cached, err := s.cache.Get(ctx, key)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		l := logging.Ctx(ctx)
		l.Warn().Err(err).Msg("cache get error")
	}

	page, err := s.MessageStore.History(ctx, room, cursor, limit)
	if err != nil {
		return nil, err
	}

	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.cache.Set(cacheCtx, key, page, s.ttl); err != nil {
			log.Warn().Str("module", "store").Err(err).Msg("cache set error")
		}
	}()
	return page, nil
}
