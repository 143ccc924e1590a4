package compiler

import "unicode/utf8"

// ---------------------------------------------------------------------------
// Lexer: character to instruction
// ---------------------------------------------------------------------------

// Lex maps a single source character to its instruction. Every character
// other than the eight command symbols is a comment and yields false.
// Loop brackets are returned unresolved.
func Lex(ch rune) (Instruction, bool) {
	var op Op
	switch ch {
	case '>':
		op = OpMoveRight
	case '<':
		op = OpMoveLeft
	case '+':
		op = OpIncrement
	case '-':
		op = OpDecrement
	case '.':
		op = OpWrite
	case ',':
		op = OpRead
	case '[':
		op = OpLoopOpen
	case ']':
		op = OpLoopClose
	default:
		return Instruction{}, false
	}
	return Instruction{Op: op, Target: Unresolved}, true
}

// Lexer walks program source and tracks the position of each character.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // current column (1-based)
	eof     bool
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// readChar advances to the next character, updating line and column.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.pos = l.readPos
		l.eof = true
		return
	}
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

// Next returns the next instruction and its source position. ok is false
// once the input is exhausted.
func (l *Lexer) Next() (in Instruction, pos Position, ok bool) {
	for !l.eof {
		pos = Position{Offset: l.pos, Line: l.line, Column: l.col}
		in, ok = Lex(l.ch)
		l.readChar()
		if ok {
			return in, pos, true
		}
	}
	return Instruction{}, Position{}, false
}

// LexSource lexes the whole source, returning the unresolved instructions
// and a parallel slice with the position of each one.
func LexSource(src string) ([]Instruction, []Position) {
	l := NewLexer(src)
	var (
		ins  []Instruction
		locs []Position
	)
	for {
		in, pos, ok := l.Next()
		if !ok {
			break
		}
		ins = append(ins, in)
		locs = append(locs, pos)
	}
	return ins, locs
}
