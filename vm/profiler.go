package vm

import (
	"fmt"
	"io"
	"sort"

	"github.com/chazu/tape/compiler"
)

// Profile collects execution counts for a run: how often each op executed,
// how many times each loop jumped back to its head, and the largest the tape
// grew. A Profile is filled by a single machine and is not safe for
// concurrent use.
type Profile struct {
	Ops       [compiler.OpLoopClose + 1]uint64
	BackEdges uint64
	PeakTape  int

	// Loops maps the index of a loop open to the number of back-edges its
	// close has taken.
	Loops map[int]uint64

	// HotThreshold is the back-edge count at which a loop is reported by
	// HotLoops. Default: 1000.
	HotThreshold uint64
}

// LoopProfile is the profile of a single loop.
type LoopProfile struct {
	Open       int
	Iterations uint64
}

// NewProfile creates an empty profile with default thresholds.
func NewProfile() *Profile {
	return &Profile{
		Loops:        make(map[int]uint64),
		HotThreshold: 1000,
	}
}

func (p *Profile) observeOp(op compiler.Op) {
	if int(op) < len(p.Ops) {
		p.Ops[op]++
	}
}

func (p *Profile) observeBackEdge(open int) {
	p.BackEdges++
	if p.Loops == nil {
		p.Loops = make(map[int]uint64)
	}
	p.Loops[open]++
}

func (p *Profile) observeTape(n int) {
	if n > p.PeakTape {
		p.PeakTape = n
	}
}

// Total returns the number of instructions executed.
func (p *Profile) Total() uint64 {
	var n uint64
	for _, c := range p.Ops {
		n += c
	}
	return n
}

// HotLoops returns the loops whose back-edge count reached HotThreshold,
// most iterated first. Ties are ordered by position in the program.
func (p *Profile) HotLoops() []LoopProfile {
	var hot []LoopProfile
	for open, n := range p.Loops {
		if n >= p.HotThreshold {
			hot = append(hot, LoopProfile{Open: open, Iterations: n})
		}
	}
	sort.Slice(hot, func(i, j int) bool {
		if hot[i].Iterations != hot[j].Iterations {
			return hot[i].Iterations > hot[j].Iterations
		}
		return hot[i].Open < hot[j].Open
	})
	return hot
}

// Report writes a human-readable summary of the profile to w. If prog is
// non-nil, hot loops are annotated with their source positions.
func (p *Profile) Report(w io.Writer, prog *compiler.Program) {
	fmt.Fprintf(w, "; %d instructions executed, %d back-edges, peak tape %d cells\n",
		p.Total(), p.BackEdges, p.PeakTape)
	for op := compiler.OpMoveRight; op <= compiler.OpLoopClose; op++ {
		if p.Ops[op] == 0 {
			continue
		}
		fmt.Fprintf(w, ";   %-5s %c %12d\n", op, op.Glyph(), p.Ops[op])
	}
	for _, l := range p.HotLoops() {
		fmt.Fprintf(w, "; hot loop @%04d: %d iterations", l.Open, l.Iterations)
		if prog != nil {
			if pos, ok := prog.Position(l.Open); ok {
				fmt.Fprintf(w, " (%s)", pos)
			}
		}
		fmt.Fprintln(w)
	}
}
