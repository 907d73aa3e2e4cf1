// Package memory keeps the collection in process memory only. Used when
// neither remote coordinates nor a local data file are available; data lives
// exactly as long as the session.
package memory

import (
	"context"
	"sync"

	"coinlog/internal/core"
)

type Store struct {
	mu   sync.Mutex
	data core.Collection
}

func New() *Store {
	return &Store{data: core.Collection{}}
}

func (s *Store) Load(_ context.Context) (core.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone(), nil
}

func (s *Store) Save(_ context.Context, c core.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = c.Clone()
	return nil
}
