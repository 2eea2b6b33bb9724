package userstore

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory backend for tests.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*UserConfig
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*UserConfig)}
}

func (s *MemoryStore) Get(ctx context.Context, username string) (*UserConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	return cfg.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, cfg *UserConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[cfg.Username] = cfg.Clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; !ok {
		return ErrNotFound
	}
	delete(s.users, username)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.users))
	for name := range s.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) Close() error { return nil }
