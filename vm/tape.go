package vm

import (
	"fmt"
	"math"
	"strings"
)

// DefaultCells is the size of a fixed tape when none is given.
const DefaultCells = 30000

// Tape is the machine's byte memory. Indexes are always in [0, Len()).
type Tape interface {
	// Len returns the current number of cells.
	Len() int

	// Get returns the cell at i.
	Get(i int) byte

	// Set stores b in the cell at i.
	Set(i int, b byte)

	// Right returns the data pointer after moving right from dp, extending
	// the tape if the model allows it.
	Right(dp int) (int, error)

	// Left returns the data pointer after moving left from dp, extending
	// the tape at the front if the model allows it.
	Left(dp int) (int, error)

	// Bytes returns a copy of all cells.
	Bytes() []byte
}

// ---------------------------------------------------------------------------
// Memory model selection
// ---------------------------------------------------------------------------

// MemoryModel selects the tape implementation.
type MemoryModel int

const (
	MemoryGrowable MemoryModel = iota
	MemoryFixed
)

func (m MemoryModel) String() string {
	switch m {
	case MemoryGrowable:
		return "growable"
	case MemoryFixed:
		return "fixed"
	default:
		return fmt.Sprintf("MemoryModel(%d)", m)
	}
}

// ParseMemoryModel parses "growable" or "fixed".
func ParseMemoryModel(s string) (MemoryModel, error) {
	switch strings.ToLower(s) {
	case "growable", "":
		return MemoryGrowable, nil
	case "fixed":
		return MemoryFixed, nil
	}
	return 0, fmt.Errorf("unknown memory model %q (want growable or fixed)", s)
}

// ---------------------------------------------------------------------------
// FixedTape
// ---------------------------------------------------------------------------

// FixedTape is a zero-initialized tape of constant size. Moving off either
// end fails with ErrOutOfBounds.
type FixedTape struct {
	cells []byte
}

// NewFixedTape creates a fixed tape with n cells. n <= 0 means DefaultCells.
func NewFixedTape(n int) *FixedTape {
	if n <= 0 {
		n = DefaultCells
	}
	return &FixedTape{cells: make([]byte, n)}
}

func (t *FixedTape) Len() int          { return len(t.cells) }
func (t *FixedTape) Get(i int) byte    { return t.cells[i] }
func (t *FixedTape) Set(i int, b byte) { t.cells[i] = b }

func (t *FixedTape) Right(dp int) (int, error) {
	if dp+1 >= len(t.cells) {
		return dp, ErrOutOfBounds
	}
	return dp + 1, nil
}

func (t *FixedTape) Left(dp int) (int, error) {
	if dp == 0 {
		return dp, ErrOutOfBounds
	}
	return dp - 1, nil
}

func (t *FixedTape) Bytes() []byte {
	out := make([]byte, len(t.cells))
	copy(out, t.cells)
	return out
}

// ---------------------------------------------------------------------------
// GrowableTape
// ---------------------------------------------------------------------------

// minGrowableCap is the initial buffer capacity of a growable tape.
const minGrowableCap = 16

// GrowableTape starts with a single zero cell and grows in the direction of
// travel. Cells live in buf[head : head+n]; logical index 0 is buf[head].
// Growing re-centers the cells in a buffer of twice the size, so both
// appends and prepends are amortized O(1).
type GrowableTape struct {
	buf   []byte
	head  int
	n     int
	limit int
}

// NewGrowableTape creates a growable tape holding at most limit cells.
// limit <= 0 means no limit other than the largest representable index.
func NewGrowableTape(limit int) *GrowableTape {
	if limit <= 0 {
		limit = math.MaxInt
	}
	return &GrowableTape{
		buf:   make([]byte, minGrowableCap),
		head:  minGrowableCap / 2,
		n:     1,
		limit: limit,
	}
}

func (t *GrowableTape) Len() int          { return t.n }
func (t *GrowableTape) Get(i int) byte    { return t.buf[t.head+i] }
func (t *GrowableTape) Set(i int, b byte) { t.buf[t.head+i] = b }

// Limit returns the maximum number of cells.
func (t *GrowableTape) Limit() int { return t.limit }

func (t *GrowableTape) Right(dp int) (int, error) {
	if dp+1 < t.n {
		return dp + 1, nil
	}
	if t.n >= t.limit {
		return dp, ErrTapeExhausted
	}
	if t.head+t.n == len(t.buf) {
		t.grow()
	}
	t.buf[t.head+t.n] = 0
	t.n++
	return dp + 1, nil
}

// Left prepends a cell when dp is 0; the pointer then stays at 0, which now
// addresses the new cell.
func (t *GrowableTape) Left(dp int) (int, error) {
	if dp > 0 {
		return dp - 1, nil
	}
	if t.n >= t.limit {
		return dp, ErrTapeExhausted
	}
	if t.head == 0 {
		t.grow()
	}
	t.head--
	t.buf[t.head] = 0
	t.n++
	return 0, nil
}

func (t *GrowableTape) grow() {
	size := len(t.buf) * 2
	if size < minGrowableCap {
		size = minGrowableCap
	}
	buf := make([]byte, size)
	head := (size - t.n) / 2
	copy(buf[head:], t.buf[t.head:t.head+t.n])
	t.buf = buf
	t.head = head
}

func (t *GrowableTape) Bytes() []byte {
	out := make([]byte, t.n)
	copy(out, t.buf[t.head:t.head+t.n])
	return out
}
