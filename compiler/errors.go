package compiler

import (
	"errors"
	"fmt"
)

var (
	ErrUnmatchedClose = errors.New("loop close without matching open")
	ErrUnclosedOpen   = errors.New("loop open is never closed")
	ErrBadTarget      = errors.New("loop target does not refer to its partner")
	ErrInvalidOp      = errors.New("invalid instruction")
)

// CompileError reports a malformed program. Index is the position of the
// offending instruction in the instruction stream; Pos is its location in the
// source, and is the zero Position when no source map is available.
type CompileError struct {
	Err   error
	Index int
	Pos   Position
}

func (e *CompileError) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("compile error at line %d, column %d: %v", e.Pos.Line, e.Pos.Column, e.Err)
	}
	return fmt.Sprintf("compile error at instruction %d: %v", e.Index, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}
