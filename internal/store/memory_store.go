package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store and Queue for single-client mode and tests.
type Memory struct {
	mu     sync.RWMutex
	data   map[string]string
	queues map[string][][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data:   make(map[string]string),
		queues: make(map[string][][]byte),
	}
}

func (s *Memory) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *Memory) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
	return nil
}

func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

func (s *Memory) Enqueue(_ context.Context, queue string, payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)

	s.mu.Lock()
	s.queues[queue] = append(s.queues[queue], cp)
	s.mu.Unlock()
	return nil
}

// Queued returns a copy of everything enqueued on queue so far.
func (s *Memory) Queued(queue string) [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]byte, len(s.queues[queue]))
	copy(out, s.queues[queue])
	return out
}
