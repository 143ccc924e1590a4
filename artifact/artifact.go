// Package artifact encodes compiled programs as self-describing CBOR files,
// so a program can be compiled once and run, cached or shipped without its
// source.
package artifact

import (
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/tape/compiler"
)

// Magic identifies an artifact file.
const Magic = "TAPE"

// Version is the current artifact format version.
// Increment when making incompatible changes to the format.
const Version uint16 = 1

// Extension is the conventional file extension for artifacts.
const Extension = ".tapec"

var (
	ErrBadMagic   = errors.New("not a tape artifact")
	ErrBadVersion = errors.New("unsupported artifact version")
	ErrCorrupt    = errors.New("corrupt artifact")
)

// File is the on-disk form of a compiled program. Ops and Targets are
// parallel; Targets holds compiler.Unresolved for non-loop instructions.
type File struct {
	Magic     string     `cbor:"1,keyasint"`
	Version   uint16     `cbor:"2,keyasint"`
	Hash      [32]byte   `cbor:"3,keyasint"`
	Ops       []byte     `cbor:"4,keyasint"`
	Targets   []int      `cbor:"5,keyasint"`
	SourceMap []Position `cbor:"6,keyasint,omitempty"`
}

// Position is the encoded form of compiler.Position.
type Position struct {
	Offset int `cbor:"1,keyasint"`
	Line   int `cbor:"2,keyasint"`
	Column int `cbor:"3,keyasint"`
}

// cborEncMode uses canonical encoding so that equal programs encode to equal
// bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("artifact: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// FromProgram converts a compiled program to its file form.
func FromProgram(p *compiler.Program) *File {
	f := &File{
		Magic:   Magic,
		Version: Version,
		Hash:    p.Hash,
		Ops:     make([]byte, len(p.Instructions)),
		Targets: make([]int, len(p.Instructions)),
	}
	for i, in := range p.Instructions {
		f.Ops[i] = byte(in.Op)
		f.Targets[i] = in.Target
	}
	if len(p.SourceMap) > 0 {
		f.SourceMap = make([]Position, len(p.SourceMap))
		for i, pos := range p.SourceMap {
			f.SourceMap[i] = Position{Offset: pos.Offset, Line: pos.Line, Column: pos.Column}
		}
	}
	return f
}

// Program converts the file form back into a program and validates it.
func (f *File) Program() (*compiler.Program, error) {
	if f.Magic != Magic {
		return nil, ErrBadMagic
	}
	if f.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, f.Version)
	}
	if len(f.Ops) != len(f.Targets) {
		return nil, fmt.Errorf("%w: %d ops but %d targets", ErrCorrupt, len(f.Ops), len(f.Targets))
	}

	p := &compiler.Program{
		Instructions: make([]compiler.Instruction, len(f.Ops)),
		Hash:         f.Hash,
	}
	for i, op := range f.Ops {
		p.Instructions[i] = compiler.Instruction{Op: compiler.Op(op), Target: f.Targets[i]}
	}
	if len(f.SourceMap) > 0 {
		p.SourceMap = make([]compiler.Position, len(f.SourceMap))
		for i, pos := range f.SourceMap {
			p.SourceMap[i] = compiler.Position{Offset: pos.Offset, Line: pos.Line, Column: pos.Column}
		}
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return p, nil
}

// Marshal serializes a program to CBOR bytes.
func Marshal(p *compiler.Program) ([]byte, error) {
	return cborEncMode.Marshal(FromProgram(p))
}

// Unmarshal deserializes and validates a program from CBOR bytes.
func Unmarshal(data []byte) (*compiler.Program, error) {
	var f File
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("artifact: unmarshal: %w", err)
	}
	p, err := f.Program()
	if err != nil {
		return nil, fmt.Errorf("artifact: %w", err)
	}
	return p, nil
}

// WriteFile writes the artifact for p to path.
func WriteFile(path string, p *compiler.Program) error {
	data, err := Marshal(p)
	if err != nil {
		return fmt.Errorf("artifact: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("artifact: %w", err)
	}
	return nil
}

// ReadFile reads and validates the artifact at path.
func ReadFile(path string) (*compiler.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("artifact: %w", err)
	}
	return Unmarshal(data)
}
