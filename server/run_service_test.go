package server

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"connectrpc.com/connect"

	"github.com/chazu/tape/vm"
)

const helloWorld = "++++++++[>++++[>++>+++>+++>+<<<<-]>+>->+>>+[<]<-]>>.>>---.+++++++..+++.>.<<-.>.+++.------.--------.>+.>++."

// ---------------------------------------------------------------------------
// Compile
// ---------------------------------------------------------------------------

func TestRunService_Compile(t *testing.T) {
	client := newClient[CompileRequest, CompileResponse](testHTTP, CompileProcedure)

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&CompileRequest{Source: "+[-]."}))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	res := resp.Msg
	if !res.OK {
		t.Fatalf("Compile not ok: %s", res.Error)
	}
	if res.Instructions != 5 {
		t.Errorf("instructions = %d, want 5", res.Instructions)
	}
	if len(res.Hash) != 64 {
		t.Errorf("hash = %q, want 64 hex digits", res.Hash)
	}
	if !strings.Contains(res.Disassembly, "0001  OPEN   [  -> 0003") {
		t.Errorf("disassembly missing resolved open:\n%s", res.Disassembly)
	}
}

func TestRunService_CompileError(t *testing.T) {
	client := newClient[CompileRequest, CompileResponse](testHTTP, CompileProcedure)

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&CompileRequest{Source: "+\n+]"}))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	res := resp.Msg
	if res.OK {
		t.Fatal("Compile of unbalanced source reported ok")
	}
	if res.Line != 2 || res.Column != 2 {
		t.Errorf("error position = %d:%d, want 2:2", res.Line, res.Column)
	}
	if !strings.Contains(res.Error, "loop close without matching open") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestRunService_EmptySource(t *testing.T) {
	compile := newClient[CompileRequest, CompileResponse](testHTTP, CompileProcedure)
	cres, err := compile.CallUnary(context.Background(), connect.NewRequest(&CompileRequest{}))
	if err != nil {
		t.Fatalf("Compile(empty): %v", err)
	}
	if !cres.Msg.OK || cres.Msg.Instructions != 0 {
		t.Errorf("Compile(empty) = %+v, want ok with no instructions", cres.Msg)
	}

	run := newClient[RunRequest, RunResponse](testHTTP, RunProcedure)
	rres, err := run.CallUnary(context.Background(), connect.NewRequest(&RunRequest{}))
	if err != nil {
		t.Fatalf("Run(empty): %v", err)
	}
	if !rres.Msg.OK || rres.Msg.Steps != 0 || len(rres.Msg.Output) != 0 {
		t.Errorf("Run(empty) = %+v, want ok with no steps or output", rres.Msg)
	}
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func TestRunService_RunHelloWorld(t *testing.T) {
	client := newClient[RunRequest, RunResponse](testHTTP, RunProcedure)

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&RunRequest{Source: helloWorld}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res := resp.Msg
	if !res.OK {
		t.Fatalf("Run not ok: %s", res.Error)
	}
	if string(res.Output) != "Hello World!\n" {
		t.Errorf("output = %q, want %q", res.Output, "Hello World!\n")
	}
	if res.RunID == "" {
		t.Error("run id is empty")
	}
	if res.Steps == 0 {
		t.Error("steps = 0")
	}
}

func TestRunService_RunEcho(t *testing.T) {
	client := newClient[RunRequest, RunResponse](testHTTP, RunProcedure)

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&RunRequest{
		Source: ",[.,]",
		Input:  []byte("abc"),
		EOF:    "zero",
	}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !resp.Msg.OK || string(resp.Msg.Output) != "abc" {
		t.Errorf("Run = %+v, want ok with output abc", resp.Msg)
	}
}

func TestRunService_RunTapeSnapshot(t *testing.T) {
	client := newClient[RunRequest, RunResponse](testHTTP, RunProcedure)

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&RunRequest{Source: "+++>>++<"}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res := resp.Msg
	want := []int{3, 0, 2}
	if len(res.Tape) != len(want) {
		t.Fatalf("tape = %v, want %v", res.Tape, want)
	}
	for i := range want {
		if res.Tape[i] != want[i] {
			t.Errorf("tape = %v, want %v", res.Tape, want)
			break
		}
	}
	if res.DataPointer != 1 {
		t.Errorf("data pointer = %d, want 1", res.DataPointer)
	}
}

func TestRunService_RuntimeErrorInResponse(t *testing.T) {
	client := newClient[RunRequest, RunResponse](testHTTP, RunProcedure)

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&RunRequest{
		Source: "+.<",
		Memory: "fixed",
	}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res := resp.Msg
	if res.OK {
		t.Fatal("Run moving left of a fixed tape reported ok")
	}
	if !bytes.Equal(res.Output, []byte{1}) {
		t.Errorf("output = %q, want the byte written before the failure", res.Output)
	}
	if !strings.Contains(res.Error, "outside the tape") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestRunService_StepLimit(t *testing.T) {
	client := newClient[RunRequest, RunResponse](testHTTP, RunProcedure)

	// The server caps runs at 100,000 steps; the request asks for fewer.
	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&RunRequest{
		Source:   "+[]",
		MaxSteps: 50,
	}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Msg.OK || resp.Msg.Steps != 50 {
		t.Errorf("Run = ok %t, steps %d; want failure after 50 steps", resp.Msg.OK, resp.Msg.Steps)
	}

	// A larger request is clamped to the server cap.
	resp, err = client.CallUnary(context.Background(), connect.NewRequest(&RunRequest{
		Source:   "+[]",
		MaxSteps: 1 << 40,
	}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Msg.Steps != 100_000 {
		t.Errorf("steps = %d, want 100000", resp.Msg.Steps)
	}
}

func TestRunService_BadOptions(t *testing.T) {
	client := newClient[RunRequest, RunResponse](testHTTP, RunProcedure)

	_, err := client.CallUnary(context.Background(), connect.NewRequest(&RunRequest{Source: "+", EOF: "retry"}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("bad eof code = %v, want InvalidArgument", connect.CodeOf(err))
	}
	_, err = client.CallUnary(context.Background(), connect.NewRequest(&RunRequest{Source: "+", Memory: "infinite"}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("bad memory code = %v, want InvalidArgument", connect.CodeOf(err))
	}
}

func TestRunService_CompileErrorOnRun(t *testing.T) {
	client := newClient[RunRequest, RunResponse](testHTTP, RunProcedure)

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&RunRequest{Source: "[["}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Msg.OK || resp.Msg.Steps != 0 {
		t.Errorf("Run = %+v, want a failed run with no steps", resp.Msg)
	}
	if !strings.Contains(resp.Msg.Error, "compile error") {
		t.Errorf("error = %q", resp.Msg.Error)
	}
}

func TestRunService_RawBytes(t *testing.T) {
	client := newClient[RunRequest, RunResponse](testHTTP, RunProcedure)

	// "-." writes 0xff; the echo passes input bytes through untouched.
	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&RunRequest{
		Source: "-.>,.,.",
		Input:  []byte{0x80, 0x00},
	}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !resp.Msg.OK {
		t.Fatalf("Run not ok: %s", resp.Msg.Error)
	}
	want := []byte{0xff, 0x80, 0x00}
	if !bytes.Equal(resp.Msg.Output, want) {
		t.Errorf("output = %v, want %v", resp.Msg.Output, want)
	}
}

func TestRunService_MemoryKeepsConfiguredLimit(t *testing.T) {
	srv := New(WithMachineOptions(vm.WithMemory(vm.MemoryGrowable, 0, 4)))
	defer srv.Stop()
	h := httptest.NewServer(srv.Handler())
	defer h.Close()

	client := newClient[RunRequest, RunResponse](h, RunProcedure)
	for _, memory := range []string{"", "growable"} {
		resp, err := client.CallUnary(context.Background(), connect.NewRequest(&RunRequest{
			Source: ">>>>>>>>",
			Memory: memory,
		}))
		if err != nil {
			t.Fatalf("Run(memory=%q): %v", memory, err)
		}
		res := resp.Msg
		if res.OK || res.DataPointer != 3 {
			t.Errorf("Run(memory=%q) = ok %t, dp %d; want failure at dp 3", memory, res.OK, res.DataPointer)
		}
		if !strings.Contains(res.Error, "grow") {
			t.Errorf("Run(memory=%q) error = %q", memory, res.Error)
		}
	}
}

// ---------------------------------------------------------------------------
// GetRun
// ---------------------------------------------------------------------------

func TestRunService_GetRun(t *testing.T) {
	run := newClient[RunRequest, RunResponse](testHTTP, RunProcedure)
	get := newClient[GetRunRequest, RunResponse](testHTTP, GetRunProcedure)

	resp, err := run.CallUnary(context.Background(), connect.NewRequest(&RunRequest{Source: "++++++++[>++++++++<-]>+."}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := get.CallUnary(context.Background(), connect.NewRequest(&GetRunRequest{RunID: resp.Msg.RunID}))
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Msg.RunID != resp.Msg.RunID || string(got.Msg.Output) != "A" {
		t.Errorf("GetRun = %+v, want run %s with output A", got.Msg, resp.Msg.RunID)
	}

	_, err = get.CallUnary(context.Background(), connect.NewRequest(&GetRunRequest{RunID: "missing"}))
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("GetRun(missing) code = %v, want NotFound", connect.CodeOf(err))
	}
}

func TestRunService_UnlimitedServer(t *testing.T) {
	srv := New(WithMaxSteps(0))
	defer srv.Stop()
	h := httptest.NewServer(srv.Handler())
	defer h.Close()

	client := newClient[RunRequest, RunResponse](h, RunProcedure)
	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&RunRequest{
		Source:   "+[]",
		MaxSteps: 200_000,
	}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Msg.Steps != 200_000 {
		t.Errorf("steps = %d, want 200000", resp.Msg.Steps)
	}
}
