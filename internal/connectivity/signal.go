// Package connectivity provides the online/offline signal consumed by the
// offline manager.
package connectivity

import (
	"sort"
	"sync"
)

// Source exposes the current connectivity and transition events. Handlers
// receive true on offline→online and false on online→offline.
type Source interface {
	Online() bool
	Subscribe(handler func(online bool)) (cancel func())
}

// Signal is a Source driven by explicit SetOnline calls.
type Signal struct {
	mu       sync.Mutex
	online   bool
	nextID   int
	handlers map[int]func(bool)
}

func NewSignal(online bool) *Signal {
	return &Signal{online: online, handlers: make(map[int]func(bool))}
}

func (s *Signal) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *Signal) Subscribe(handler func(bool)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = handler
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.handlers, id)
			s.mu.Unlock()
		})
	}
}

// SetOnline updates the state and reports whether it was a transition.
// Subscribers only hear about transitions, in registration order.
func (s *Signal) SetOnline(online bool) bool {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return false
	}
	s.online = online
	ids := make([]int, 0, len(s.handlers))
	for id := range s.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]func(bool), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, s.handlers[id])
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(online)
	}
	return true
}
