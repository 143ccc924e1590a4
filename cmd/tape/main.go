// Tape CLI - compiles and runs tape programs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/tape/artifact"
	"github.com/chazu/tape/compiler"
	"github.com/chazu/tape/manifest"
	"github.com/chazu/tape/server"
	"github.com/chazu/tape/store"
	"github.com/chazu/tape/vm"
)

var log = commonlog.GetLogger("tape.cmd")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// options holds the parsed command line.
type options struct {
	config   string
	memory   string
	cells    int
	limit    int
	eof      string
	maxSteps uint64
	disasm   bool
	output   string
	binary   bool
	cache    string
	profile  bool
	verbose  bool
	serve    bool
	port     int
	lsp      bool
	initCfg  bool

	set  map[string]bool // flags given explicitly
	args []string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{set: make(map[string]bool)}
	fs := flag.NewFlagSet("tape", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&o.config, "config", "", "Configuration file (default: nearest tape.toml)")
	fs.StringVar(&o.memory, "memory", "", "Memory model: growable or fixed")
	fs.IntVar(&o.cells, "cells", 0, "Tape size for the fixed memory model")
	fs.IntVar(&o.limit, "limit", 0, "Maximum cells for the growable memory model (0 = unlimited)")
	fs.StringVar(&o.eof, "eof", "", "End-of-input policy: fail, zero or unchanged")
	fs.Uint64Var(&o.maxSteps, "max-steps", 0, "Stop after this many instructions (0 = unlimited)")
	fs.BoolVar(&o.disasm, "d", false, "Print the disassembly instead of running")
	fs.StringVar(&o.output, "o", "", "Write the compiled program to this file instead of running")
	fs.BoolVar(&o.binary, "bin", false, "Treat the path as a compiled program")
	fs.StringVar(&o.cache, "cache", "", "Compiled-program cache database")
	fs.BoolVar(&o.profile, "profile", false, "Print an execution profile to stderr")
	fs.BoolVar(&o.verbose, "v", false, "Verbose output")
	fs.BoolVar(&o.serve, "serve", false, "Start the HTTP run service")
	fs.IntVar(&o.port, "port", 4567, "Run service port (used with -serve)")
	fs.BoolVar(&o.lsp, "lsp", false, "Start the language server on stdio")
	fs.BoolVar(&o.initCfg, "init", false, "Write a default tape.toml in the current directory")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: tape [options] <path>\n\n")
		fmt.Fprintf(stderr, "Compiles the program at path and runs it with stdin as input and stdout as output.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  tape hello.b                    # Run a program\n")
		fmt.Fprintf(stderr, "  tape -memory fixed -eof zero x.b\n")
		fmt.Fprintf(stderr, "  tape -d hello.b                 # Show the disassembly\n")
		fmt.Fprintf(stderr, "  tape -o hello%s hello.b     # Compile to a file\n", artifact.Extension)
		fmt.Fprintf(stderr, "  tape -bin hello%s           # Run a compiled file\n", artifact.Extension)
		fmt.Fprintf(stderr, "  tape -serve -port 8080          # Start the run service\n")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	o.args = fs.Args()
	return o, nil
}

// loadManifest returns the configuration selected by -config, the nearest
// tape.toml, or the defaults, with command-line overrides applied.
func loadManifest(o *options) (*manifest.Manifest, error) {
	var (
		m   *manifest.Manifest
		err error
	)
	if o.config != "" {
		m, err = manifest.LoadFile(o.config)
	} else {
		m, err = manifest.FindAndLoad(".")
	}
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
	}

	if o.set["memory"] {
		m.Machine.Memory = o.memory
	}
	if o.set["cells"] {
		m.Machine.Cells = o.cells
	}
	if o.set["limit"] {
		m.Machine.Limit = o.limit
	}
	if o.set["eof"] {
		m.Machine.EOF = o.eof
	}
	if o.set["max-steps"] {
		m.Machine.MaxSteps = int64(o.maxSteps)
	}
	if o.set["cache"] {
		m.Cache.Path = o.cache
	}
	if o.set["port"] {
		m.Server.Addr = fmt.Sprintf(":%d", o.port)
	}
	if o.verbose && m.Log.Verbosity < 1 {
		m.Log.Verbosity = 1
	}
	return m, m.Validate()
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if err := execute(ctx, o, stdin, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "tape: %v\n", err)
		return 1
	}
	return 0
}

func execute(ctx context.Context, o *options, stdin io.Reader, stdout, stderr io.Writer) error {
	if o.initCfg {
		if _, err := os.Stat(manifest.FileName); err == nil {
			return fmt.Errorf("%s already exists", manifest.FileName)
		}
		return manifest.Write(".", manifest.Default())
	}

	m, err := loadManifest(o)
	if err != nil {
		return err
	}
	commonlog.Configure(m.Log.Verbosity, m.LogFile())

	if o.lsp {
		return server.NewLSP().Run()
	}

	var st store.Store
	if path := m.CachePath(); path != "" {
		sq, err := store.OpenSQLite(path)
		if err != nil {
			return err
		}
		defer sq.Close()
		st = sq
	}

	machine, err := m.MachineOptions()
	if err != nil {
		return err
	}

	if o.serve {
		opts := []server.ServerOption{server.WithMachineOptions(machine...)}
		if st != nil {
			opts = append(opts, server.WithStore(st))
		}
		if m.Machine.MaxSteps > 0 {
			opts = append(opts, server.WithMaxSteps(uint64(m.Machine.MaxSteps)))
		}
		srv := server.New(opts...)
		defer srv.Stop()
		return srv.ListenAndServe(m.Server.Addr)
	}

	if len(o.args) != 1 {
		return fmt.Errorf("expected exactly one program path, got %d", len(o.args))
	}
	path := o.args[0]

	p, err := load(path, o.binary, st)
	if err != nil {
		return err
	}

	if o.disasm || o.output != "" {
		if o.output != "" {
			if err := artifact.WriteFile(o.output, p); err != nil {
				return err
			}
			log.Infof("wrote %s (%d instructions)", o.output, p.Len())
		}
		if o.disasm {
			fmt.Fprint(stdout, p.DisassembleWithName(filepath.Base(path)))
		}
		return nil
	}

	var prof *vm.Profile
	if o.profile {
		prof = vm.NewProfile()
		machine = append(machine, vm.WithProfile(prof))
	}
	machine = append(machine, vm.WithInput(stdin), vm.WithOutput(stdout))

	err = vm.New(p, machine...).Run(ctx)
	if prof != nil {
		prof.Report(stderr, p)
	}
	return err
}

// load reads a compiled program or compiles source, going through the cache
// when one is configured.
func load(path string, binary bool, st store.Store) (*compiler.Program, error) {
	if binary || strings.HasSuffix(path, artifact.Extension) {
		return artifact.ReadFile(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if st != nil {
		return store.Compile(st, string(data))
	}
	return compiler.Compile(string(data))
}
