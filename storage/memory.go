package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps checkpoints in process memory. Threads are lost on restart.
type MemoryStore struct {
	mu  sync.RWMutex
	cps map[string]Checkpoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cps: make(map[string]Checkpoint)}
}

func (s *MemoryStore) Save(_ context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cps[cp.ThreadID] = cloneCheckpoint(cp)
	return nil
}

func (s *MemoryStore) Load(_ context.Context, threadID string) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.cps[threadID]
	if !ok {
		return Checkpoint{}, ErrCheckpointNotFound
	}
	return cloneCheckpoint(cp), nil
}

func (s *MemoryStore) List(_ context.Context) ([]Checkpoint, error) {
	s.mu.RLock()
	cps := make([]Checkpoint, 0, len(s.cps))
	for _, cp := range s.cps {
		cps = append(cps, cloneCheckpoint(cp))
	}
	s.mu.RUnlock()
	sortNewestFirst(cps)
	return cps, nil
}

func (s *MemoryStore) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cps[threadID]; !ok {
		return ErrCheckpointNotFound
	}
	delete(s.cps, threadID)
	return nil
}
