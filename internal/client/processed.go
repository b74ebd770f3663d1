package client

import (
	"github.com/dkeye/Chat/internal/domain"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultProcessedCapacity bounds the processed-id set of one browsing session.
const DefaultProcessedCapacity = 10000

// ProcessedSet remembers ids already rendered. The least recently seen ids
// are evicted past capacity; a redelivery older than that would render again.
type ProcessedSet struct {
	ids *lru.Cache[domain.MessageID, struct{}]
}

func NewProcessedSet(capacity int) *ProcessedSet {
	if capacity <= 0 {
		capacity = DefaultProcessedCapacity
	}
	ids, _ := lru.New[domain.MessageID, struct{}](capacity)
	return &ProcessedSet{ids: ids}
}

// Mark records id and reports whether it was new.
func (s *ProcessedSet) Mark(id domain.MessageID) bool {
	found, _ := s.ids.ContainsOrAdd(id, struct{}{})
	return !found
}

func (s *ProcessedSet) Len() int { return s.ids.Len() }
