// Package store caches compiled programs by the hash of their source, so
// unchanged programs skip lexing and bracket resolution.
package store

import (
	"crypto/sha256"
	"errors"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/tape/compiler"
)

var log = commonlog.GetLogger("tape.store")

// ErrNotFound is returned by Get when no program has the requested hash.
var ErrNotFound = errors.New("program not found")

// Store is a content-addressed collection of compiled programs, keyed by
// Program.Hash. Implementations are safe for concurrent use.
type Store interface {
	Get(hash [32]byte) (*compiler.Program, error)
	Put(p *compiler.Program) error
	Len() (int, error)
	Close() error
}

// Compile returns the compiled program for source, consulting st first and
// storing freshly compiled programs in it. Programs that fail to compile
// are never stored. A failing store is logged and bypassed.
func Compile(st Store, source string) (*compiler.Program, error) {
	h := sha256.Sum256([]byte(source))

	p, err := st.Get(h)
	if err == nil {
		log.Debugf("cache hit for %x", h[:4])
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		log.Warningf("cache lookup for %x failed: %v", h[:4], err)
	}

	p, err = compiler.Compile(source)
	if err != nil {
		return nil, err
	}
	if err := st.Put(p); err != nil {
		log.Warningf("cache store for %x failed: %v", h[:4], err)
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// MemoryStore
// ---------------------------------------------------------------------------

// MemoryStore keeps programs in a map for the life of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	programs map[[32]byte]*compiler.Program
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		programs: make(map[[32]byte]*compiler.Program),
	}
}

func (s *MemoryStore) Get(hash [32]byte) (*compiler.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.programs[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// Put indexes p by its hash. Programs with a zero hash are silently ignored.
func (s *MemoryStore) Put(p *compiler.Program) error {
	if p.Hash == ([32]byte{}) {
		return nil
	}
	s.mu.Lock()
	s.programs[p.Hash] = p
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Len() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.programs), nil
}

func (s *MemoryStore) Close() error { return nil }
