// Package server exposes the compiler and machine over HTTP (connect, JSON)
// and to editors over the language server protocol.
package server

import (
	"net/http"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/tape/store"
	"github.com/chazu/tape/vm"
)

var log = commonlog.GetLogger("tape.server")

// TapeServer serves RunService on a single HTTP mux.
type TapeServer struct {
	worker *Worker
	runs   *RunStore
	store  store.Store
	mux    *http.ServeMux

	stopSweeper func()
}

// ServerOption configures a TapeServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	store    store.Store
	machine  []vm.Option
	maxSteps uint64
	runTTL   time.Duration
}

// WithStore sets the program cache shared by all requests. The default is
// an in-memory store.
func WithStore(st store.Store) ServerOption {
	return func(c *serverConfig) { c.store = st }
}

// WithMachineOptions sets the base machine options for every run.
func WithMachineOptions(opts ...vm.Option) ServerOption {
	return func(c *serverConfig) { c.machine = opts }
}

// WithMaxSteps caps the steps of a single run. Zero removes the cap.
func WithMaxSteps(n uint64) ServerOption {
	return func(c *serverConfig) { c.maxSteps = n }
}

// WithRunTTL sets how long unread run results are kept.
func WithRunTTL(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.runTTL = d }
}

// New creates a TapeServer.
func New(opts ...ServerOption) *TapeServer {
	cfg := &serverConfig{
		maxSteps: DefaultMaxSteps,
		runTTL:   30 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.store == nil {
		cfg.store = store.NewMemoryStore()
	}

	s := &TapeServer{
		worker: NewWorker(),
		runs:   NewRunStore(),
		store:  cfg.store,
		mux:    http.NewServeMux(),
	}

	svc := NewRunService(s.worker, s.store, s.runs, cfg.machine, cfg.maxSteps)
	for path, h := range svc.Handlers() {
		s.mux.Handle(path, h)
	}

	sweepEvery := cfg.runTTL / 6
	if sweepEvery < time.Second {
		sweepEvery = time.Second
	}
	s.stopSweeper = s.runs.StartSweeper(sweepEvery, cfg.runTTL)
	return s
}

// Handler returns the server's HTTP handler.
func (s *TapeServer) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *TapeServer) ListenAndServe(addr string) error {
	log.Noticef("tape server listening on %s", addr)
	log.Noticef("  Connect (HTTP/JSON): http://%s%s", addr, RunProcedure)
	return http.ListenAndServe(addr, s.mux)
}

// Stop shuts down the server's background goroutines.
func (s *TapeServer) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.worker.Stop()
}
