// Package manifest handles tape.toml configuration.
package manifest

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/BurntSushi/toml"

	"github.com/chazu/tape/vm"
)

// FileName is the name of the configuration file looked up by FindAndLoad.
const FileName = "tape.toml"

// ErrInvalid is wrapped by errors for manifests that decode but violate the
// schema.
var ErrInvalid = errors.New("invalid manifest")

//go:embed schema.cue
var schemaSource string

// Manifest represents a tape.toml configuration.
type Manifest struct {
	Machine Machine `toml:"machine" json:"machine"`
	Cache   Cache   `toml:"cache" json:"cache"`
	Log     Log     `toml:"log" json:"log"`
	Server  Server  `toml:"server" json:"server"`

	// Dir is the directory containing the tape.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Machine configures the virtual machine.
type Machine struct {
	Memory   string `toml:"memory" json:"memory"`
	Cells    int    `toml:"cells" json:"cells"`
	Limit    int    `toml:"limit" json:"limit"`
	EOF      string `toml:"eof" json:"eof"`
	MaxSteps int64  `toml:"max-steps" json:"max-steps"`
}

// Cache configures the compiled-program cache.
type Cache struct {
	Path string `toml:"path" json:"path"`
}

// Log configures logging.
type Log struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	File      string `toml:"file" json:"file"`
}

// Server configures the HTTP run service.
type Server struct {
	Addr string `toml:"addr" json:"addr"`
}

// Default returns the configuration used when no tape.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Machine.Memory == "" {
		m.Machine.Memory = vm.MemoryGrowable.String()
	}
	if m.Machine.Cells == 0 {
		m.Machine.Cells = vm.DefaultCells
	}
	if m.Machine.EOF == "" {
		m.Machine.EOF = vm.EOFFail.String()
	}
	if m.Server.Addr == "" {
		m.Server.Addr = ":4567"
	}
}

// Load parses a tape.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses the configuration file at path. Relative paths in the
// file are resolved against its directory.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a tape.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Write encodes m as tape.toml in dir. An existing file is overwritten.
func Write(dir string, m *Manifest) error {
	path := filepath.Join(dir, FileName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(m); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return f.Close()
}

// Validate checks m against the embedded CUE schema.
func (m *Manifest) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("manifest schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Manifest"))

	v := def.Unify(ctx.Encode(m))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, cueerrors.Details(err, nil))
	}
	return nil
}

// MachineOptions converts the [machine] section to vm options.
func (m *Manifest) MachineOptions() ([]vm.Option, error) {
	model, err := vm.ParseMemoryModel(m.Machine.Memory)
	if err != nil {
		return nil, err
	}
	eof, err := vm.ParseEOFPolicy(m.Machine.EOF)
	if err != nil {
		return nil, err
	}
	opts := []vm.Option{
		vm.WithMemory(model, m.Machine.Cells, m.Machine.Limit),
		vm.WithEOF(eof),
	}
	if m.Machine.MaxSteps > 0 {
		opts = append(opts, vm.WithMaxSteps(uint64(m.Machine.MaxSteps)))
	}
	return opts, nil
}

// CachePath returns the absolute path of the program cache, or "" when the
// cache is disabled.
func (m *Manifest) CachePath() string {
	if m.Cache.Path == "" {
		return ""
	}
	if filepath.IsAbs(m.Cache.Path) || m.Dir == "" {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}

// LogFile returns the absolute path of the log file, or nil to log to
// stderr.
func (m *Manifest) LogFile() *string {
	if m.Log.File == "" {
		return nil
	}
	path := m.Log.File
	if !filepath.IsAbs(path) && m.Dir != "" {
		path = filepath.Join(m.Dir, path)
	}
	return &path
}
