package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/tape/compiler"
	"github.com/chazu/tape/vm"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[machine]
memory = "fixed"
cells = 100
eof = "zero"
max-steps = 5000

[cache]
path = ".tape/cache.db"

[log]
verbosity = 1
file = "tape.log"

[server]
addr = "127.0.0.1:9000"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Machine.Memory != "fixed" {
		t.Errorf("machine memory = %q, want fixed", m.Machine.Memory)
	}
	if m.Machine.Cells != 100 {
		t.Errorf("machine cells = %d, want 100", m.Machine.Cells)
	}
	if m.Machine.EOF != "zero" {
		t.Errorf("machine eof = %q, want zero", m.Machine.EOF)
	}
	if m.Machine.MaxSteps != 5000 {
		t.Errorf("machine max-steps = %d, want 5000", m.Machine.MaxSteps)
	}
	if m.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("server addr = %q, want 127.0.0.1:9000", m.Server.Addr)
	}
	if m.Log.Verbosity != 1 {
		t.Errorf("log verbosity = %d, want 1", m.Log.Verbosity)
	}

	abs, _ := filepath.Abs(dir)
	if got, want := m.CachePath(), filepath.Join(abs, ".tape", "cache.db"); got != want {
		t.Errorf("CachePath() = %q, want %q", got, want)
	}
	if got := m.LogFile(); got == nil || *got != filepath.Join(abs, "tape.log") {
		t.Errorf("LogFile() = %v, want %s", got, filepath.Join(abs, "tape.log"))
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "")

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Machine.Memory != "growable" {
		t.Errorf("default memory = %q, want growable", m.Machine.Memory)
	}
	if m.Machine.Cells != vm.DefaultCells {
		t.Errorf("default cells = %d, want %d", m.Machine.Cells, vm.DefaultCells)
	}
	if m.Machine.EOF != "fail" {
		t.Errorf("default eof = %q, want fail", m.Machine.EOF)
	}
	if m.CachePath() != "" {
		t.Errorf("default CachePath() = %q, want empty", m.CachePath())
	}
	if m.LogFile() != nil {
		t.Errorf("default LogFile() = %v, want nil", *m.LogFile())
	}
}

func TestLoadManifestInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown memory model", "[machine]\nmemory = \"infinite\"\n", "memory"},
		{"unknown eof policy", "[machine]\neof = \"retry\"\n", "eof"},
		{"negative limit", "[machine]\nlimit = -1\n", "limit"},
		{"negative step limit", "[machine]\nmax-steps = -10\n", "max-steps"},
		{"negative cells", "[machine]\ncells = -3\n", "cells"},
	}

	for _, tc := range tests {
		dir := t.TempDir()
		writeManifest(t, dir, tc.content)
		_, err := Load(dir)
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: Load error = %v, want ErrInvalid", tc.name, err)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}

func TestLoadManifestParseError(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[machine\n")
	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "parse error") {
		t.Errorf("Load error = %v, want a parse error", err)
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[machine]\nmemory = \"fixed\"\n")

	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Machine.Memory != "fixed" {
		t.Errorf("machine memory = %q, want fixed", m.Machine.Memory)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no tape.toml exists")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := Default()
	want.Machine.Limit = 4096
	want.Cache.Path = "cache.db"

	if err := Write(dir, want); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Machine != want.Machine {
		t.Errorf("machine = %+v, want %+v", got.Machine, want.Machine)
	}
	if got.Cache != want.Cache || got.Server != want.Server {
		t.Errorf("manifest = %+v, want %+v", got, want)
	}
}

func TestMachineOptions(t *testing.T) {
	m := Default()
	m.Machine.Memory = "fixed"
	m.Machine.Cells = 4
	m.Machine.EOF = "zero"
	m.Machine.MaxSteps = 100

	opts, err := m.MachineOptions()
	if err != nil {
		t.Fatalf("MachineOptions: %v", err)
	}

	p, err := compiler.Compile(",>>>>")
	if err != nil {
		t.Fatal(err)
	}
	mach := vm.New(p, opts...)
	if mach.Tape().Len() != 4 {
		t.Errorf("tape length = %d, want 4", mach.Tape().Len())
	}
	err = mach.Run(context.Background())
	if !errors.Is(err, vm.ErrOutOfBounds) {
		t.Errorf("Run error = %v, want ErrOutOfBounds", err)
	}

	m.Machine.Memory = "infinite"
	if _, err := m.MachineOptions(); err == nil {
		t.Error("MachineOptions accepted an unknown memory model")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	if err := os.WriteFile(path, []byte("[cache]\npath = \"c.db\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	abs, _ := filepath.Abs(dir)
	if got := m.CachePath(); got != filepath.Join(abs, "c.db") {
		t.Errorf("CachePath() = %q, want %q", got, filepath.Join(abs, "c.db"))
	}
}
