package vm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tliron/commonlog"

	"github.com/chazu/tape/compiler"
)

var log = commonlog.GetLogger("tape.vm")

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Option configures a Machine.
type Option func(*config)

type config struct {
	tape     Tape
	model    MemoryModel
	cells    int
	limit    int
	input    io.Reader
	output   io.Writer
	eof      EOFPolicy
	maxSteps uint64
	profile  *Profile
}

// WithTape runs the machine on t instead of a tape built from the memory
// model options.
func WithTape(t Tape) Option {
	return func(c *config) { c.tape = t }
}

// WithMemory selects the memory model. cells is the size of a fixed tape and
// limit the maximum size of a growable one; zero selects the defaults.
func WithMemory(model MemoryModel, cells, limit int) Option {
	return func(c *config) {
		c.model = model
		c.cells = cells
		c.limit = limit
	}
}

// WithMemoryModel selects the memory model and keeps any sizes set by an
// earlier WithMemory.
func WithMemoryModel(model MemoryModel) Option {
	return func(c *config) { c.model = model }
}

// WithInput sets the source of bytes for read instructions.
func WithInput(r io.Reader) Option {
	return func(c *config) { c.input = r }
}

// WithOutput sets the sink for write instructions. Writers that do not
// implement io.ByteWriter are buffered and flushed when Run returns.
func WithOutput(w io.Writer) Option {
	return func(c *config) { c.output = w }
}

// WithEOF sets the end-of-input policy. The default is EOFFail.
func WithEOF(p EOFPolicy) Option {
	return func(c *config) { c.eof = p }
}

// WithMaxSteps makes Run fail with ErrStepLimit after n instructions.
// Zero means no limit.
func WithMaxSteps(n uint64) Option {
	return func(c *config) { c.maxSteps = n }
}

// WithProfile records execution counts into p.
func WithProfile(p *Profile) Option {
	return func(c *config) { c.profile = p }
}

// ---------------------------------------------------------------------------
// Machine
// ---------------------------------------------------------------------------

// Machine executes one compiled program. It holds the tape, the data
// pointer and the instruction pointer, and is used for a single run.
type Machine struct {
	code []compiler.Instruction
	tape Tape
	dp   int
	ip   int

	in    io.ByteReader
	out   io.ByteWriter
	flush func() error
	eof   EOFPolicy

	steps    uint64
	maxSteps uint64
	profile  *Profile

	err error // sticky; set on the first failure
}

// New creates a machine for p. p must be a resolved program, as returned by
// compiler.Compile.
func New(p *compiler.Program, opts ...Option) *Machine {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	m := &Machine{
		code:     p.Instructions,
		tape:     cfg.tape,
		eof:      cfg.eof,
		maxSteps: cfg.maxSteps,
		profile:  cfg.profile,
	}

	if m.tape == nil {
		switch cfg.model {
		case MemoryFixed:
			m.tape = NewFixedTape(cfg.cells)
		default:
			m.tape = NewGrowableTape(cfg.limit)
		}
	}

	if cfg.input != nil {
		m.in = byteReader(cfg.input)
	} else {
		m.in = emptyInput{}
	}

	if cfg.output != nil {
		m.out, m.flush = byteWriter(cfg.output)
	} else {
		m.out = discard{}
	}

	if m.profile != nil {
		m.profile.observeTape(m.tape.Len())
	}
	return m
}

// Tape returns the machine's tape.
func (m *Machine) Tape() Tape { return m.tape }

// DataPointer returns the index of the current cell.
func (m *Machine) DataPointer() int { return m.dp }

// InstructionPointer returns the index of the next instruction.
func (m *Machine) InstructionPointer() int { return m.ip }

// Steps returns the number of instructions executed so far.
func (m *Machine) Steps() uint64 { return m.steps }

// Cell returns the value of the current cell.
func (m *Machine) Cell() byte { return m.tape.Get(m.dp) }

// Done reports whether the program ran to completion.
func (m *Machine) Done() bool { return m.err == nil && m.ip >= len(m.code) }

// Err returns the error that stopped the machine, if any.
func (m *Machine) Err() error { return m.err }

// Run executes instructions until the program ends, an instruction fails,
// the step limit is reached or ctx is done. Buffered output is flushed
// before Run returns, including on failure.
func (m *Machine) Run(ctx context.Context) error {
	log.Debugf("run: %d instructions, %s tape", len(m.code), m.tapeName())

	err := m.run(ctx)
	if ferr := m.flushOutput(); err == nil && ferr != nil {
		err = m.fail(fmt.Errorf("%w: %w", ErrOutput, ferr), nil)
	}

	if err != nil {
		log.Debugf("run failed after %d steps: %v", m.steps, err)
		return err
	}
	log.Debugf("run finished after %d steps, tape length %d", m.steps, m.tape.Len())
	return nil
}

func (m *Machine) run(ctx context.Context) error {
	for {
		if m.steps%cancelCheckInterval == 0 {
			if err := checkContext(ctx); err != nil {
				return m.fail(err, nil)
			}
		}
		done, err := m.Step()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// Step executes a single instruction. done is true once the instruction
// pointer has run past the end of the program. After a failure every
// further call returns the same error.
func (m *Machine) Step() (done bool, err error) {
	if m.err != nil {
		return false, m.err
	}
	if m.ip >= len(m.code) {
		return true, nil
	}
	if m.maxSteps > 0 && m.steps >= m.maxSteps {
		return false, m.fail(ErrStepLimit, nil)
	}

	in := &m.code[m.ip]
	switch in.Op {
	case compiler.OpMoveRight:
		dp, err := m.tape.Right(m.dp)
		if err != nil {
			return false, m.fail(err, in)
		}
		m.dp = dp
		if m.profile != nil {
			m.profile.observeTape(m.tape.Len())
		}
		m.ip++

	case compiler.OpMoveLeft:
		dp, err := m.tape.Left(m.dp)
		if err != nil {
			return false, m.fail(err, in)
		}
		m.dp = dp
		if m.profile != nil {
			m.profile.observeTape(m.tape.Len())
		}
		m.ip++

	case compiler.OpIncrement:
		m.tape.Set(m.dp, m.tape.Get(m.dp)+1)
		m.ip++

	case compiler.OpDecrement:
		m.tape.Set(m.dp, m.tape.Get(m.dp)-1)
		m.ip++

	case compiler.OpWrite:
		if err := m.out.WriteByte(m.tape.Get(m.dp)); err != nil {
			return false, m.fail(fmt.Errorf("%w: %w", ErrOutput, err), in)
		}
		m.ip++

	case compiler.OpRead:
		if err := m.read(); err != nil {
			return false, m.fail(err, in)
		}
		m.ip++

	case compiler.OpLoopOpen:
		if m.tape.Get(m.dp) == 0 {
			m.ip = in.Target + 1
		} else {
			m.ip++
		}

	case compiler.OpLoopClose:
		if m.tape.Get(m.dp) != 0 {
			m.ip = in.Target + 1
			if m.profile != nil {
				m.profile.observeBackEdge(in.Target)
			}
		} else {
			m.ip++
		}

	default:
		return false, m.fail(compiler.ErrInvalidOp, in)
	}

	m.steps++
	if m.profile != nil {
		m.profile.observeOp(in.Op)
	}
	return m.ip >= len(m.code), nil
}

// read stores one input byte in the current cell, applying the EOF policy
// when the input is exhausted.
func (m *Machine) read() error {
	// Prompts written before a read must be visible to whoever supplies
	// the input.
	if err := m.flushOutput(); err != nil {
		return fmt.Errorf("%w: %w", ErrOutput, err)
	}

	b, err := m.in.ReadByte()
	switch {
	case err == nil:
		m.tape.Set(m.dp, b)
		return nil
	case errors.Is(err, io.EOF):
		switch m.eof {
		case EOFZero:
			m.tape.Set(m.dp, 0)
			return nil
		case EOFUnchanged:
			return nil
		default:
			return ErrInputExhausted
		}
	default:
		return fmt.Errorf("%w: %w", ErrInput, err)
	}
}

func (m *Machine) flushOutput() error {
	if m.flush == nil {
		return nil
	}
	return m.flush()
}

// fail records err as the machine's terminal error.
func (m *Machine) fail(err error, in *compiler.Instruction) error {
	rerr := &RuntimeError{Err: err, IP: m.ip, DP: m.dp}
	if in != nil {
		cp := *in
		rerr.Op = &cp
	}
	m.err = rerr
	return rerr
}

func (m *Machine) tapeName() string {
	switch t := m.tape.(type) {
	case *FixedTape:
		return fmt.Sprintf("fixed %d-cell", t.Len())
	case *GrowableTape:
		return "growable"
	default:
		return fmt.Sprintf("%T", t)
	}
}
