package compiler

import (
	"crypto/sha256"
	"errors"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("tape.compiler")

// Program is a compiled, bracket-resolved instruction stream. It is not
// modified after Compile returns and may be shared between machines.
type Program struct {
	Instructions []Instruction

	// SourceMap holds the source position of each instruction. It is empty
	// for programs built without source, such as hand-assembled ones.
	SourceMap []Position

	// Hash is the SHA-256 of the source text the program was compiled from.
	Hash [32]byte
}

// Compile lexes and resolves source into a Program. Every character other
// than the eight command symbols is ignored.
func Compile(source string) (*Program, error) {
	ins, locs := LexSource(source)
	resolved, err := Resolve(ins)
	if err != nil {
		var ce *CompileError
		if errors.As(err, &ce) && ce.Index < len(locs) {
			ce.Pos = locs[ce.Index]
		}
		return nil, err
	}

	p := &Program{
		Instructions: resolved,
		SourceMap:    locs,
		Hash:         sha256.Sum256([]byte(source)),
	}
	log.Debugf("compiled %d instructions from %d bytes of source", len(resolved), len(source))
	return p, nil
}

// Len returns the number of instructions.
func (p *Program) Len() int {
	return len(p.Instructions)
}

// Partner returns the index of the bracket matching the loop instruction at
// i. ok is false if i is out of range or not a resolved loop instruction.
func (p *Program) Partner(i int) (int, bool) {
	if i < 0 || i >= len(p.Instructions) {
		return 0, false
	}
	in := p.Instructions[i]
	if !in.Op.IsLoop() || in.Target == Unresolved {
		return 0, false
	}
	return in.Target, true
}

// Position returns the source position of instruction i, if known.
func (p *Program) Position(i int) (Position, bool) {
	if i < 0 || i >= len(p.SourceMap) {
		return Position{}, false
	}
	return p.SourceMap[i], true
}

// IndexAt returns the index of the instruction compiled from the character
// at the given 1-based line and column.
func (p *Program) IndexAt(line, column int) (int, bool) {
	for i, pos := range p.SourceMap {
		if pos.Line == line && pos.Column == column {
			return i, true
		}
		if pos.Line > line {
			break
		}
	}
	return 0, false
}

// Validate checks that every loop instruction is correctly nested and paired
// with its partner. Programs produced by Compile always validate; programs
// decoded from untrusted bytes may not.
func (p *Program) Validate() error {
	if len(p.SourceMap) != 0 && len(p.SourceMap) != len(p.Instructions) {
		return errors.New("source map length does not match instruction count")
	}
	var open []int
	for i, in := range p.Instructions {
		switch {
		case !in.Op.Valid():
			return &CompileError{Err: ErrInvalidOp, Index: i}
		case in.Op == OpLoopOpen:
			if in.Target <= i || in.Target >= len(p.Instructions) {
				return &CompileError{Err: ErrBadTarget, Index: i}
			}
			open = append(open, i)
		case in.Op == OpLoopClose:
			if len(open) == 0 {
				return &CompileError{Err: ErrUnmatchedClose, Index: i}
			}
			o := open[len(open)-1]
			open = open[:len(open)-1]
			if in.Target != o || p.Instructions[o].Target != i {
				return &CompileError{Err: ErrBadTarget, Index: i}
			}
		case in.Target != Unresolved:
			return &CompileError{Err: ErrBadTarget, Index: i}
		}
	}
	if len(open) > 0 {
		return &CompileError{Err: ErrUnclosedOpen, Index: open[len(open)-1]}
	}
	return nil
}

// String returns the canonical source of the program: only the command
// symbols, with comments and whitespace removed.
func (p *Program) String() string {
	var sb strings.Builder
	sb.Grow(len(p.Instructions))
	for _, in := range p.Instructions {
		sb.WriteByte(in.Op.Glyph())
	}
	return sb.String()
}
