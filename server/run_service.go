package server

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"

	"github.com/chazu/tape/compiler"
	"github.com/chazu/tape/store"
	"github.com/chazu/tape/vm"
)

// Procedure paths served by RunService.
const (
	RunServiceName   = "tape.v1.RunService"
	CompileProcedure = "/" + RunServiceName + "/Compile"
	RunProcedure     = "/" + RunServiceName + "/Run"
	GetRunProcedure  = "/" + RunServiceName + "/GetRun"
)

// DefaultMaxSteps bounds runs submitted to the server.
const DefaultMaxSteps = 10_000_000

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

type CompileRequest struct {
	Source string `json:"source"`
}

type CompileResponse struct {
	OK           bool   `json:"ok"`
	Error        string `json:"error,omitempty"`
	Line         int    `json:"line,omitempty"`
	Column       int    `json:"column,omitempty"`
	Instructions int    `json:"instructions"`
	Hash         string `json:"hash,omitempty"`
	Disassembly  string `json:"disassembly,omitempty"`
}

// Input and Output are raw bytes, base64 in JSON.
type RunRequest struct {
	Source   string `json:"source"`
	Input    []byte `json:"input,omitempty"`
	MaxSteps uint64 `json:"maxSteps,omitempty"`
	Memory   string `json:"memory,omitempty"`
	EOF      string `json:"eof,omitempty"`
}

type RunResponse struct {
	RunID       string `json:"runId"`
	OK          bool   `json:"ok"`
	Output      []byte `json:"output"`
	Error       string `json:"error,omitempty"`
	Steps       uint64 `json:"steps"`
	DataPointer int    `json:"dataPointer"`
	Tape        []int  `json:"tape,omitempty"`
}

type GetRunRequest struct {
	RunID string `json:"runId"`
}

// ---------------------------------------------------------------------------
// RunService
// ---------------------------------------------------------------------------

// RunService compiles and runs programs submitted over HTTP.
type RunService struct {
	worker   *Worker
	store    store.Store
	runs     *RunStore
	machine  []vm.Option
	maxSteps uint64
}

// NewRunService creates a RunService. machine holds the base options for
// every run; maxSteps caps the steps of a single run (0 means no cap).
func NewRunService(worker *Worker, st store.Store, runs *RunStore, machine []vm.Option, maxSteps uint64) *RunService {
	return &RunService{
		worker:   worker,
		store:    st,
		runs:     runs,
		machine:  machine,
		maxSteps: maxSteps,
	}
}

// Handlers returns the connect handlers for every procedure, keyed by path.
func (s *RunService) Handlers() map[string]http.Handler {
	codec := connect.WithCodec(jsonCodec{})
	return map[string]http.Handler{
		CompileProcedure: connect.NewUnaryHandler(CompileProcedure, s.Compile, codec),
		RunProcedure:     connect.NewUnaryHandler(RunProcedure, s.Run, codec),
		GetRunProcedure:  connect.NewUnaryHandler(GetRunProcedure, s.GetRun, codec),
	}
}

// Compile checks source and returns its disassembly. Compile errors are
// reported in the response, not as RPC errors. Empty source is a valid,
// empty program.
func (s *RunService) Compile(
	ctx context.Context,
	req *connect.Request[CompileRequest],
) (*connect.Response[CompileResponse], error) {
	p, err := store.Compile(s.store, req.Msg.Source)
	if err != nil {
		res := &CompileResponse{Error: err.Error()}
		var ce *compiler.CompileError
		if errors.As(err, &ce) {
			res.Line = ce.Pos.Line
			res.Column = ce.Pos.Column
		}
		return connect.NewResponse(res), nil
	}

	return connect.NewResponse(&CompileResponse{
		OK:           true,
		Instructions: p.Len(),
		Hash:         hex.EncodeToString(p.Hash[:]),
		Disassembly:  p.Disassemble(),
	}), nil
}

// Run compiles and executes source with the request's input. The run is
// recorded and can be fetched again with GetRun.
func (s *RunService) Run(
	ctx context.Context,
	req *connect.Request[RunRequest],
) (*connect.Response[RunResponse], error) {
	msg := req.Msg
	opts, err := s.machineOptions(msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	result, err := s.worker.Do(ctx, func() any {
		return s.run(ctx, msg, opts)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, connect.NewError(connect.CodeCanceled, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	res := result.(*RunResponse)
	id := s.runs.Create(res)
	log.Infof("run %s: ok=%t steps=%d", id, res.OK, res.Steps)
	return connect.NewResponse(res), nil
}

// GetRun returns the result of an earlier run.
func (s *RunService) GetRun(
	ctx context.Context,
	req *connect.Request[GetRunRequest],
) (*connect.Response[RunResponse], error) {
	id := req.Msg.RunID
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("run id is required"))
	}
	res, ok := s.runs.Lookup(id)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("run %q not found", id))
	}
	return connect.NewResponse(res), nil
}

// machineOptions layers the request's settings over the service defaults.
// A requested memory model keeps the configured tape sizes.
func (s *RunService) machineOptions(msg *RunRequest) ([]vm.Option, error) {
	opts := append([]vm.Option(nil), s.machine...)
	if msg.Memory != "" {
		model, err := vm.ParseMemoryModel(msg.Memory)
		if err != nil {
			return nil, err
		}
		opts = append(opts, vm.WithMemoryModel(model))
	}
	if msg.EOF != "" {
		eof, err := vm.ParseEOFPolicy(msg.EOF)
		if err != nil {
			return nil, err
		}
		opts = append(opts, vm.WithEOF(eof))
	}

	steps := s.maxSteps
	if msg.MaxSteps > 0 && (steps == 0 || msg.MaxSteps < steps) {
		steps = msg.MaxSteps
	}
	opts = append(opts, vm.WithMaxSteps(steps))
	return opts, nil
}

// run executes on the worker goroutine.
func (s *RunService) run(ctx context.Context, msg *RunRequest, opts []vm.Option) *RunResponse {
	p, err := store.Compile(s.store, msg.Source)
	if err != nil {
		return &RunResponse{Error: err.Error()}
	}

	var out bytes.Buffer
	opts = append(opts, vm.WithInput(bytes.NewReader(msg.Input)), vm.WithOutput(&out))
	m := vm.New(p, opts...)
	err = m.Run(ctx)

	res := &RunResponse{
		OK:          err == nil,
		Output:      out.Bytes(),
		Steps:       m.Steps(),
		DataPointer: m.DataPointer(),
		Tape:        tapeSnapshot(m.Tape(), m.DataPointer()),
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// tapeSnapshot returns the cells up to the last non-zero cell or the data
// pointer, whichever is further right.
func tapeSnapshot(t vm.Tape, dp int) []int {
	cells := t.Bytes()
	end := dp + 1
	for i := len(cells) - 1; i >= end; i-- {
		if cells[i] != 0 {
			end = i + 1
			break
		}
	}
	if end > len(cells) {
		end = len(cells)
	}
	out := make([]int, end)
	for i := range out {
		out[i] = int(cells[i])
	}
	return out
}
