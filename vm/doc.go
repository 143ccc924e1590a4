// Package vm implements the tape machine that executes compiled programs.
//
// This package contains:
//   - Two tape memory models: a fixed 30,000-cell array and a growable
//     double-ended buffer that extends in the direction of travel
//   - The Machine, an explicit dispatch loop over a resolved instruction
//     stream with 8-bit wraparound cell arithmetic
//   - Typed runtime errors carrying the failing instruction and pointers
//   - An optional execution profile (per-op counts, hot loops)
//
// A Machine is owned by a single run and is not safe for concurrent use.
package vm
