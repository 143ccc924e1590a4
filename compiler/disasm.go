package compiler

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the program.
func (p *Program) Disassemble() string {
	return p.DisassembleWithName("")
}

// DisassembleWithName returns a human-readable listing with a name header.
func (p *Program) DisassembleWithName(name string) string {
	var sb strings.Builder

	if name != "" {
		fmt.Fprintf(&sb, "; === %s ===\n", name)
	}
	fmt.Fprintf(&sb, "; %d instructions, source %s\n", len(p.Instructions), hex.EncodeToString(p.Hash[:4]))

	for i, in := range p.Instructions {
		fmt.Fprintf(&sb, "%04d  %-5s  %c", i, in.Op, in.Op.Glyph())
		if in.Op.IsLoop() && in.Target != Unresolved {
			fmt.Fprintf(&sb, "  -> %04d", in.Target)
		} else if in.Op.IsLoop() {
			sb.WriteString("  -> ????")
		}
		if pos, ok := p.Position(i); ok {
			if !in.Op.IsLoop() {
				sb.WriteString("         ")
			}
			fmt.Fprintf(&sb, "  ; %s", pos)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
