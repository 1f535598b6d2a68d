package bytecode

import (
	"fmt"
	"io"
)

// ConstFormatter renders a literal-pool entry for disassembly. The bytecode
// package has no notion of Value (see chunk.go), so callers in vm supply a
// formatter that knows how to stringify a raw NaN-boxed word.
type ConstFormatter func(raw uint64) string

// Disassemble writes the bytecode dump format described in SPEC_FULL.md §6:
// a header line, then one line per instruction with the source line
// inlined only when it changes from the previous instruction. nested is
// invoked for every OpCloseFunction literal encountered, in case the
// caller wants to disassemble closed-over chunks after the enclosing one;
// it may be nil.
func Disassemble(w io.Writer, c *Chunk, fmtConst ConstFormatter, nested func(raw uint64)) error {
	if _, err := fmt.Fprintf(w, "=== Chunk from %s, size: %d ===\n", c.Source, len(c.Code)); err != nil {
		return err
	}

	lastLine := -1
	offset := 0
	for offset < len(c.Code) {
		loc := c.SpanAt(offset)
		n, err := disassembleInstruction(w, c, offset, loc.Line, &lastLine, fmtConst, nested)
		if err != nil {
			return err
		}
		offset += n
	}
	return nil
}

func disassembleInstruction(w io.Writer, c *Chunk, offset, line int, lastLine *int, fmtConst ConstFormatter, nested func(raw uint64)) (int, error) {
	op := Opcode(c.Code[offset])

	linePrefix := "   |"
	if line != *lastLine {
		linePrefix = fmt.Sprintf("%4d", line)
		*lastLine = line
	}

	switch {
	case op == OpCloseFunction:
		if offset+2 >= len(c.Code) {
			return 1, fmt.Errorf("bytecode: truncated CloseFunction at %d", offset)
		}
		idx := u16At(c.Code, offset+1)
		raw := c.Constants[idx]
		fmt.Fprintf(w, "%s %04d: %-14s %5d '%s'\n", linePrefix, offset, op.String(), idx, fmtConst(raw))
		pos := offset + 3
		upCount := int(c.Code[pos])
		pos++
		fmt.Fprintf(w, "     |      %d upvalues\n", upCount)
		for i := 0; i < upCount; i++ {
			isLocal := c.Code[pos]
			upIdx := u16At(c.Code, pos+1)
			kind := "upvalue"
			if isLocal != 0 {
				kind = "local"
			}
			fmt.Fprintf(w, "     |        %d: %s %d\n", i, kind, upIdx)
			pos += 3
		}
		if nested != nil {
			nested(raw)
		}
		return pos - offset, nil

	case op == OpConstant || op == OpGetGlobal || op == OpSetGlobal || op == OpDefineGlobal ||
		op == OpClass || op == OpAttachMethod || op == OpGetMember || op == OpSetMember || op == OpGetSuper:
		idx := u16At(c.Code, offset+1)
		fmt.Fprintf(w, "%s %04d: %-14s %5d '%s'\n", linePrefix, offset, op.String(), idx, fmtConst(c.Constants[idx]))
		return 3, nil

	case op == OpInvoke:
		idx := u16At(c.Code, offset+1)
		argc := c.Code[offset+3]
		fmt.Fprintf(w, "%s %04d: %-14s %5d '%s' (%d args)\n", linePrefix, offset, op.String(), idx, fmtConst(c.Constants[idx]), argc)
		return 4, nil

	case op.IsJump():
		delta := u16At(c.Code, offset+1)
		target := offset + 3 + int(delta)
		if op == OpLoop {
			target = offset + 3 - int(delta)
		}
		fmt.Fprintf(w, "%s %04d: %-14s %5d -> %d\n", linePrefix, offset, op.String(), delta, target)
		return 3, nil

	case op == OpCall:
		fmt.Fprintf(w, "%s %04d: %-14s %5d\n", linePrefix, offset, op.String(), c.Code[offset+1])
		return 2, nil

	case op.OperandLen() == 2:
		fmt.Fprintf(w, "%s %04d: %-14s %5d\n", linePrefix, offset, op.String(), u16At(c.Code, offset+1))
		return 3, nil

	default:
		fmt.Fprintf(w, "%s %04d: %s\n", linePrefix, offset, op.String())
		return 1, nil
	}
}

func u16At(code []byte, offset int) uint16 {
	return uint16(code[offset])<<8 | uint16(code[offset+1])
}
