// Package preview holds the locally selected files the dashboard shows
// before they are submitted. Nothing here is sent to the backend.
package preview

import (
	"sync"

	"github.com/google/uuid"
)

// Item is one previewable file.
type Item struct {
	Name        string
	ContentType string
	Data        []byte
}

// Store maps preview ids to files. Every Put must be matched by a Release.
type Store struct {
	mu    sync.RWMutex
	items map[string]Item
}

func NewStore() *Store {
	return &Store{items: make(map[string]Item)}
}

// Put registers a file and returns its id.
func (s *Store) Put(item Item) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.items[id] = item
	s.mu.Unlock()
	return id
}

// Get returns the file registered under id.
func (s *Store) Get(id string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

// Release frees id. Releasing an unknown or empty id is a no-op.
func (s *Store) Release(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// Len is the number of live previews.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
