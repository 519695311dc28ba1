package storage

import (
	"context"
	"sync"
)

type MemoryStore struct {
	values sync.Map
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context, key string) (string, bool, error) {
	val, ok := s.values.Load(key)
	if !ok {
		return "", false, nil
	}
	return val.(string), true, nil
}

func (s *MemoryStore) Save(ctx context.Context, key, value string) error {
	s.values.Store(key, value)
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	s.values.Delete(key)
	return nil
}
