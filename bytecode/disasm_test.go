package bytecode

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func constName(raw uint64) string {
	return fmt.Sprintf("const#%d", raw)
}

func TestDisassembleSimple(t *testing.T) {
	c := NewChunk("<test>")
	loc := Span{Line: 1}
	c.EmitConstant(OpConstant, 7, loc)
	c.Emit(OpPop, loc)
	c.Emit(OpHalt, Span{Line: 2})

	var buf bytes.Buffer
	if err := Disassemble(&buf, c, constName, nil); err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "=== Chunk from <test>, size: 5 ===") {
		t.Errorf("missing header, got:\n%s", out)
	}
	if !strings.Contains(out, "Constant") || !strings.Contains(out, "const#7") {
		t.Errorf("missing constant line, got:\n%s", out)
	}
	if !strings.Contains(out, "Halt") {
		t.Errorf("missing halt line, got:\n%s", out)
	}
}

func TestDisassembleJump(t *testing.T) {
	c := NewChunk("<test>")
	loc := Span{Line: 1}
	placeholder := c.EmitJump(OpJump, loc)
	c.Emit(OpPop, loc)
	if err := c.PatchJump(placeholder); err != nil {
		t.Fatalf("PatchJump: %v", err)
	}

	var buf bytes.Buffer
	if err := Disassemble(&buf, c, constName, nil); err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	if !strings.Contains(buf.String(), "Jump") {
		t.Errorf("missing jump line, got:\n%s", buf.String())
	}
}

func TestDisassembleCloseFunctionInvokesNested(t *testing.T) {
	c := NewChunk("<outer>")
	loc := Span{Line: 1}

	offset := c.Emit(OpCloseFunction, loc)
	idx := c.AddConstant(123)
	c.EmitU16(idx, loc)
	c.EmitByte(1, loc) // one upvalue
	c.EmitByte(1, loc) // is_local = true
	c.EmitU16(0, loc)  // slot 0
	_ = offset

	var seen []uint64
	var buf bytes.Buffer
	err := Disassemble(&buf, c, constName, func(raw uint64) {
		seen = append(seen, raw)
	})
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	if len(seen) != 1 || seen[0] != 123 {
		t.Errorf("nested callback saw %v, want [123]", seen)
	}
	if !strings.Contains(buf.String(), "upvalues") {
		t.Errorf("missing upvalue dump, got:\n%s", buf.String())
	}
}
