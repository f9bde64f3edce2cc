package audit

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore keeps audit events in memory for tests and dev.
type InMemoryStore struct {
	mu     sync.Mutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) ListByEntity(_ context.Context, entityType EntityType, entityID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matching := make([]Event, 0)
	for _, event := range s.events {
		if event.EntityType == entityType && event.EntityID == entityID {
			matching = append(matching, event)
		}
	}
	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].Timestamp.Before(matching[j].Timestamp)
	})
	return matching, nil
}
