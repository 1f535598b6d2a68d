// Package bytecode defines the instruction buffer, literal pool, and
// debug-location map shared by the compiler and VM, plus a disassembler
// for the bytecode dump format described in SPEC_FULL.md §6.
package bytecode

import "fmt"

// Span is the source range an instruction (or run of instructions) belongs
// to. It mirrors ast.Span but bytecode does not import ast, to keep the
// compiled-artifact layer independent of the tree that produced it.
type Span struct {
	Line   int
	Column int
}

// locRun is one entry of the debug-loc run-length table: "the next Count
// bytes of code all belong to Loc" (§4.1).
type locRun struct {
	Loc   Span
	Count int
}

// Chunk is a compiled function's bytecode, literal pool, and debug map.
//
// Constants holds NaN-boxed Value words as raw uint64s: bytecode does not
// depend on the vm package (which owns the Value type and the GC), so
// callers in vm cast through vm.Value(chunk.Constants[i]) and
// uint64(v) when appending. This keeps the compiled-artifact layer
// reusable independent of any particular VM/GC implementation, the same
// separation the teacher's own pkg/bytecode package draws between chunk
// format and interpreter.
type Chunk struct {
	Code      []byte
	Constants []uint64
	Source    string // the Chunk's originating location, for dump headers

	locs       []locRun
	lastOffset int
}

// NewChunk creates an empty chunk.
func NewChunk(source string) *Chunk {
	return &Chunk{
		Code:   make([]byte, 0, 64),
		Source: source,
	}
}

// Emit appends a single opcode byte at the given source location and
// returns its offset.
func (c *Chunk) Emit(op Opcode, loc Span) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	c.recordLoc(loc)
	return offset
}

// EmitByte appends a raw u8 operand byte.
func (c *Chunk) EmitByte(b byte, loc Span) {
	c.Code = append(c.Code, b)
	c.recordLoc(loc)
}

// EmitU16 appends a big-endian u16 operand.
func (c *Chunk) EmitU16(v uint16, loc Span) {
	c.Code = append(c.Code, byte(v>>8), byte(v))
	c.recordLoc(loc)
	c.recordLoc(loc)
}

func (c *Chunk) recordLoc(loc Span) {
	if n := len(c.locs); n > 0 && c.locs[n-1].Loc == loc {
		c.locs[n-1].Count++
		return
	}
	c.locs = append(c.locs, locRun{Loc: loc, Count: 1})
}

// AddConstant appends a literal to the pool, deduplicating by raw word, and
// returns its u16 index. Panics if the pool would overflow 65535 entries —
// callers that care report this as a compile error first (§7 "too many
// ... literals").
func (c *Chunk) AddConstant(raw uint64) uint16 {
	for i, v := range c.Constants {
		if v == raw {
			return uint16(i)
		}
	}
	if len(c.Constants) >= 0xFFFF {
		panic("bytecode: literal pool overflow")
	}
	c.Constants = append(c.Constants, raw)
	return uint16(len(c.Constants) - 1)
}

// EmitConstant emits `op L16` where L16 indexes raw in the literal pool.
func (c *Chunk) EmitConstant(op Opcode, raw uint64, loc Span) int {
	offset := c.Emit(op, loc)
	idx := c.AddConstant(raw)
	c.EmitU16(idx, loc)
	return offset
}

// EmitJump emits a jump opcode with a placeholder u16 offset and returns
// the offset of the placeholder, for a later PatchJump.
func (c *Chunk) EmitJump(op Opcode, loc Span) int {
	c.Emit(op, loc)
	placeholder := len(c.Code)
	c.EmitU16(0xFFFF, loc)
	return placeholder
}

// PatchJump backpatches a placeholder emitted by EmitJump to jump to the
// current end of the chunk.
func (c *Chunk) PatchJump(placeholder int) error {
	return c.PatchJumpTo(placeholder, len(c.Code))
}

// PatchJumpTo backpatches a placeholder to jump to an explicit target
// offset. The encoded delta is relative to just after the operand (§4.3).
func (c *Chunk) PatchJumpTo(placeholder, target int) error {
	delta := target - (placeholder + 2)
	if delta < 0 || delta > 0xFFFF {
		return fmt.Errorf("bytecode: jump offset overflow (delta=%d)", delta)
	}
	c.Code[placeholder] = byte(delta >> 8)
	c.Code[placeholder+1] = byte(delta)
	return nil
}

// EmitLoop emits `Loop u16` jumping backward to loopStart.
func (c *Chunk) EmitLoop(loopStart int, loc Span) error {
	c.Emit(OpLoop, loc)
	placeholder := len(c.Code)
	c.EmitU16(0xFFFF, loc)
	delta := (placeholder + 2) - loopStart
	if delta < 0 || delta > 0xFFFF {
		return fmt.Errorf("bytecode: loop offset overflow (delta=%d)", delta)
	}
	c.Code[placeholder] = byte(delta >> 8)
	c.Code[placeholder+1] = byte(delta)
	return nil
}

// Len returns the current size of the code section.
func (c *Chunk) Len() int { return len(c.Code) }

// SpanAt walks the debug-loc runs to find the source location for a byte
// offset (§4.1, §7).
func (c *Chunk) SpanAt(offset int) Span {
	pos := 0
	for _, run := range c.locs {
		if offset < pos+run.Count {
			return run.Loc
		}
		pos += run.Count
	}
	if len(c.locs) == 0 {
		return Span{}
	}
	return c.locs[len(c.locs)-1].Loc
}
