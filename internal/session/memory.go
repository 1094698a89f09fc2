package session

import (
	"context"
	"sync"

	"github.com/jwebster45206/npc-engine/pkg/chat"
)

type entry struct {
	mu    sync.Mutex
	turns []chat.Turn
	dead  bool // set by Reset once the entry has left the map
}

// MemoryStore keeps history in process memory. Each key has its own lock,
// so sessions never contend with each other.
type MemoryStore struct {
	entries sync.Map // string -> *entry
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Pinger = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]chat.Turn, error) {
	v, ok := s.entries.Load(key)
	if !ok {
		return []chat.Turn{}, nil
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]chat.Turn, len(e.turns))
	copy(out, e.turns)
	return out, nil
}

func (s *MemoryStore) Append(_ context.Context, key string, turns ...chat.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	for {
		v, _ := s.entries.LoadOrStore(key, &entry{})
		e := v.(*entry)
		e.mu.Lock()
		if e.dead {
			// Lost a race with Reset; retry against the fresh entry.
			e.mu.Unlock()
			continue
		}
		e.turns = keepRecent(append(e.turns, turns...))
		e.mu.Unlock()
		return nil
	}
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	v, ok := s.entries.Load(key)
	if !ok {
		return nil
	}
	e := v.(*entry)
	e.mu.Lock()
	e.dead = true
	e.turns = nil
	s.entries.CompareAndDelete(key, e)
	e.mu.Unlock()
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }
