package vm

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// EOFPolicy decides what a read does once the input is exhausted.
type EOFPolicy int

const (
	// EOFFail stops the machine with ErrInputExhausted.
	EOFFail EOFPolicy = iota
	// EOFZero stores 0 in the current cell.
	EOFZero
	// EOFUnchanged leaves the current cell as it is.
	EOFUnchanged
)

func (p EOFPolicy) String() string {
	switch p {
	case EOFFail:
		return "fail"
	case EOFZero:
		return "zero"
	case EOFUnchanged:
		return "unchanged"
	default:
		return fmt.Sprintf("EOFPolicy(%d)", p)
	}
}

// ParseEOFPolicy parses "fail", "zero" or "unchanged".
func ParseEOFPolicy(s string) (EOFPolicy, error) {
	switch strings.ToLower(s) {
	case "fail", "":
		return EOFFail, nil
	case "zero":
		return EOFZero, nil
	case "unchanged":
		return EOFUnchanged, nil
	}
	return 0, fmt.Errorf("unknown eof policy %q (want fail, zero or unchanged)", s)
}

// byteReader adapts r to io.ByteReader, buffering only when needed.
func byteReader(r io.Reader) io.ByteReader {
	if br, ok := r.(io.ByteReader); ok {
		return br
	}
	return bufio.NewReader(r)
}

// byteWriter adapts w to io.ByteWriter. The returned flush func is nil when
// w already writes single bytes.
func byteWriter(w io.Writer) (io.ByteWriter, func() error) {
	if bw, ok := w.(io.ByteWriter); ok {
		return bw, nil
	}
	buf := bufio.NewWriter(w)
	return buf, buf.Flush
}

// emptyInput is the input of a machine configured without one.
type emptyInput struct{}

func (emptyInput) ReadByte() (byte, error) { return 0, io.EOF }

// discard is the output of a machine configured without one.
type discard struct{}

func (discard) WriteByte(byte) error { return nil }
