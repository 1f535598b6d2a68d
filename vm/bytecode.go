package vm

import (
	"io"

	"github.com/chazu/ember/bytecode"
)

// chunkAlias binds bytecode.Chunk into this package under the name
// object.go's ChunkRef expects, keeping the vm <-> bytecode boundary in
// one file. vm never needs its own opcode or chunk type: it consumes
// bytecode.Opcode/bytecode.Chunk directly and only converts at the
// Value<->raw-word boundary, since Chunk.Constants is []uint64 rather
// than []Value (see bytecode/chunk.go).
type chunkAlias = bytecode.Chunk

// constAt returns the literal pool entry at idx as a Value.
func constAt(c *bytecode.Chunk, idx uint16) Value {
	return Value(c.Constants[idx])
}

// addConstant appends v to c's literal pool as a raw word and returns its
// index.
func addConstant(c *bytecode.Chunk, v Value) uint16 {
	return c.AddConstant(uint64(v))
}

// formatConst renders a literal for disassembly via Stringify, satisfying
// bytecode.ConstFormatter without bytecode importing vm.
func formatConst(intern *Interner) bytecode.ConstFormatter {
	return func(raw uint64) string {
		return Stringify(Value(raw), intern)
	}
}

// Disassemble writes c's disassembly to w, then recurses into any nested
// function chunks reachable through OpCloseFunction literals, matching §6
// "nested chunks are printed after the enclosing chunk".
func Disassemble(w io.Writer, c *bytecode.Chunk, intern *Interner) error {
	fmtConst := formatConst(intern)
	var pending []*bytecode.Chunk

	err := bytecode.Disassemble(w, c, fmtConst, func(raw uint64) {
		v := Value(raw)
		if v.IsObject() {
			if fc, ok := asFunctionCode(v); ok {
				pending = append(pending, fc.Chunk)
			}
		}
	})
	if err != nil {
		return err
	}
	for _, nested := range pending {
		if err := Disassemble(w, nested, intern); err != nil {
			return err
		}
	}
	return nil
}

func asFunctionCode(v Value) (*ObjFunctionCode, bool) {
	h := v.Object()
	if h.tag != objFunctionCode {
		return nil, false
	}
	return (*ObjFunctionCode)(objectFrom(h)), true
}
