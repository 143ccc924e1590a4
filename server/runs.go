package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// runRecord is a finished run kept for later lookup.
type runRecord struct {
	result   *RunResponse
	lastUsed time.Time
}

// RunStore keeps the results of recent runs, keyed by run ID.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*runRecord
}

// NewRunStore creates an empty run store.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*runRecord)}
}

// Create assigns a fresh run ID to res and records it.
func (s *RunStore) Create(res *RunResponse) string {
	id := uuid.NewString()
	res.RunID = id

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[id] = &runRecord{result: res, lastUsed: time.Now()}
	return id
}

// Lookup returns the recorded result of a run.
func (s *RunStore) Lookup(id string) (*RunResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, false
	}
	r.lastUsed = time.Now()
	return r.result, true
}

// Release forgets a run.
func (s *RunStore) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, id)
}

// Len returns the number of recorded runs.
func (s *RunStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// Sweep removes runs that haven't been looked up within the TTL.
func (s *RunStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, r := range s.runs {
		if r.lastUsed.Before(cutoff) {
			delete(s.runs, id)
			removed++
		}
	}
	if removed > 0 {
		log.Debugf("swept %d runs", removed)
	}
	return removed
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *RunStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
