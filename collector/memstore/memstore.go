// Package memstore is an in-memory, dependency-free collector.Store used
// by tests and local development (spec.md treats the store as an external
// collaborator; this is the minimal concrete implementation of that
// collaborator needed to exercise the collector without Redis).
package memstore

import (
	"context"
	"sync"

	"github.com/luxfi/ruth/collector"
)

type round struct {
	updates [][]byte
	count   uint64
	status  collector.Status
}

// Store is a mutex-protected, in-process implementation of collector.Store.
type Store struct {
	mu     sync.Mutex
	rounds map[uint64]*round
}

// New builds an empty Store.
func New() *Store {
	return &Store{rounds: make(map[uint64]*round)}
}

func (s *Store) get(r uint64) *round {
	rd, ok := s.rounds[r]
	if !ok {
		rd = &round{status: collector.StatusOpen}
		s.rounds[r] = rd
	}
	return rd
}

func (s *Store) AppendAndIncr(_ context.Context, r uint64, b []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rd := s.get(r)
	rd.updates = append(rd.updates, append([]byte(nil), b...))
	rd.count++
	return rd.count, nil
}

func (s *Store) Count(_ context.Context, r uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rd, ok := s.rounds[r]
	if !ok {
		return 0, nil
	}
	return rd.count, nil
}

func (s *Store) ReadAll(_ context.Context, r uint64) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rd, ok := s.rounds[r]
	if !ok {
		return nil, nil
	}
	out := make([][]byte, len(rd.updates))
	copy(out, rd.updates)
	return out, nil
}

func (s *Store) DeleteBoth(_ context.Context, r uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rd, ok := s.rounds[r]; ok {
		rd.updates = nil
		rd.count = 0
	}
	return nil
}

func (s *Store) TryTransition(_ context.Context, r uint64, from, to collector.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rd := s.get(r)
	if rd.status != from {
		return false, nil
	}
	rd.status = to
	return true, nil
}

func (s *Store) SetStatus(_ context.Context, r uint64, status collector.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(r).status = status
	return nil
}

func (s *Store) ScanRounds(_ context.Context) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, 0, len(s.rounds))
	for r, rd := range s.rounds {
		if rd.status != collector.StatusClosed || rd.count != 0 {
			out = append(out, r)
		}
	}
	return out, nil
}
