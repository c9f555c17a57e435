package syncqueue

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store, used in tests and local dev runs
// without redis.
type MemoryStore struct {
	mu      sync.Mutex
	order   map[int][]string
	entries map[int]map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		order:   make(map[int][]string),
		entries: make(map[int]map[string]Entry),
	}
}

func (s *MemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userEntries, ok := s.entries[entry.UserID]
	if !ok {
		userEntries = make(map[string]Entry)
		s.entries[entry.UserID] = userEntries
	}

	if _, exists := userEntries[entry.ID]; exists {
		return nil
	}

	userEntries[entry.ID] = entry
	s.order[entry.UserID] = append(s.order[entry.UserID], entry.ID)
	return nil
}

func (s *MemoryStore) Entries(_ context.Context, userID int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []Entry
	for _, id := range s.order[userID] {
		if entry, ok := s.entries[userID][id]; ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (s *MemoryStore) Update(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userEntries, ok := s.entries[entry.UserID]
	if !ok {
		return ErrEntryNotFound
	}
	if _, exists := userEntries[entry.ID]; !exists {
		return ErrEntryNotFound
	}
	userEntries[entry.ID] = entry
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, userID int, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userEntries, ok := s.entries[userID]
	if !ok {
		return ErrEntryNotFound
	}
	if _, exists := userEntries[entryID]; !exists {
		return ErrEntryNotFound
	}
	delete(userEntries, entryID)

	ids := s.order[userID]
	for i, id := range ids {
		if id == entryID {
			s.order[userID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.order[userID]) == 0 {
		delete(s.order, userID)
		delete(s.entries, userID)
	}
	return nil
}

func (s *MemoryStore) Users(_ context.Context) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var users []int
	for userID := range s.order {
		users = append(users, userID)
	}
	sort.Ints(users)
	return users, nil
}
