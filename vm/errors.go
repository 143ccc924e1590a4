package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/tape/compiler"
)

var (
	ErrOutOfBounds    = errors.New("data pointer moved outside the tape")
	ErrTapeExhausted  = errors.New("tape cannot grow any further")
	ErrInputExhausted = errors.New("end of input")
	ErrInput          = errors.New("input failed")
	ErrOutput         = errors.New("output failed")
	ErrStepLimit      = errors.New("step limit exceeded")
	ErrCanceled       = errors.New("execution canceled")
)

// RuntimeError is an error encountered while executing a program. IP and DP
// are the instruction and data pointers at the time of the failure, and Op is
// the instruction being executed (nil if the failure happened between
// instructions).
type RuntimeError struct {
	Err error
	IP  int
	DP  int
	Op  *compiler.Instruction
}

func (e *RuntimeError) Error() string {
	if e.Op != nil {
		return fmt.Sprintf("runtime error at ip %d (dp %d) %s: %v", e.IP, e.DP, e.Op.Op, e.Err)
	}
	return fmt.Sprintf("runtime error at ip %d (dp %d): %v", e.IP, e.DP, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
