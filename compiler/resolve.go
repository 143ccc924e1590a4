package compiler

// Resolve matches every loop open with its loop close in a single pass and
// returns a copy of ins in which both ends of each pair carry the index of
// the other. The input slice is left untouched.
//
// A close with no pending open fails immediately with ErrUnmatchedClose.
// Opens still pending at the end fail with ErrUnclosedOpen, reported at the
// innermost one.
func Resolve(ins []Instruction) ([]Instruction, error) {
	out := make([]Instruction, len(ins))
	var open []int

	for i, in := range ins {
		switch in.Op {
		case OpLoopOpen:
			out[i] = Instruction{Op: OpLoopOpen, Target: Unresolved}
			open = append(open, i)
		case OpLoopClose:
			if len(open) == 0 {
				return nil, &CompileError{Err: ErrUnmatchedClose, Index: i}
			}
			o := open[len(open)-1]
			open = open[:len(open)-1]
			out[o].Target = i
			out[i] = Instruction{Op: OpLoopClose, Target: o}
		default:
			if !in.Op.Valid() {
				return nil, &CompileError{Err: ErrInvalidOp, Index: i}
			}
			out[i] = Instruction{Op: in.Op, Target: Unresolved}
		}
	}

	if len(open) > 0 {
		return nil, &CompileError{Err: ErrUnclosedOpen, Index: open[len(open)-1]}
	}
	return out, nil
}
