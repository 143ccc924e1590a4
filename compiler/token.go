package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Instruction set
// ---------------------------------------------------------------------------

// Op identifies one of the eight tape-machine instructions.
type Op byte

const (
	OpMoveRight Op = iota // >
	OpMoveLeft            // <
	OpIncrement           // +
	OpDecrement           // -
	OpWrite               // .
	OpRead                // ,
	OpLoopOpen            // [
	OpLoopClose           // ]
)

// Unresolved is the Target of a loop instruction whose partner has not been
// matched yet, and of every non-loop instruction.
const Unresolved = -1

var opNames = [...]string{
	OpMoveRight: "RIGHT",
	OpMoveLeft:  "LEFT",
	OpIncrement: "INC",
	OpDecrement: "DEC",
	OpWrite:     "WRITE",
	OpRead:      "READ",
	OpLoopOpen:  "OPEN",
	OpLoopClose: "CLOSE",
}

var opGlyphs = [...]byte{
	OpMoveRight: '>',
	OpMoveLeft:  '<',
	OpIncrement: '+',
	OpDecrement: '-',
	OpWrite:     '.',
	OpRead:      ',',
	OpLoopOpen:  '[',
	OpLoopClose: ']',
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", o)
}

// Glyph returns the source character for the op, or '?' if the op is invalid.
func (o Op) Glyph() byte {
	if int(o) < len(opGlyphs) {
		return opGlyphs[o]
	}
	return '?'
}

// Valid reports whether o is one of the eight defined ops.
func (o Op) Valid() bool {
	return o <= OpLoopClose
}

// IsLoop reports whether o is a loop bracket.
func (o Op) IsLoop() bool {
	return o == OpLoopOpen || o == OpLoopClose
}

// Instruction is a single compiled instruction. Loop brackets carry the
// absolute index of their matching partner in Target once resolved.
type Instruction struct {
	Op     Op
	Target int
}

// Resolved reports whether a loop instruction has been matched. Non-loop
// instructions are always considered resolved.
func (in Instruction) Resolved() bool {
	return !in.Op.IsLoop() || in.Target != Unresolved
}

func (in Instruction) String() string {
	if in.Op.IsLoop() {
		if in.Target == Unresolved {
			return in.Op.String() + "(?)"
		}
		return fmt.Sprintf("%s(%d)", in.Op, in.Target)
	}
	return in.Op.String()
}

// Position is a location in program source.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}
