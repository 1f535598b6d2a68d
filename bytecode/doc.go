// Package bytecode defines the compiled-artifact layer shared by the
// compiler and vm packages: the instruction set (§4.3), the Chunk type
// that holds code, a literal pool, and a run-length source-location map
// (§4.1), and a disassembler for the bytecode dump format (§6).
//
// Chunk deliberately knows nothing about vm.Value: its literal pool is a
// []uint64 of raw NaN-boxed words, so this package has no dependency on
// vm and can be tested in isolation. Callers that need to print a
// literal's script-level representation supply a ConstFormatter.
package bytecode
