package compiler

import (
	"github.com/chazu/ember/ast"
	"github.com/chazu/ember/bytecode"
)

// localVar is one entry of a Compiler's local-variable stack (§4.2). depth
// is -1 between declaration and markInitialized, during which a read of
// the same name is a compile error (self-referential initializer).
type localVar struct {
	name     string
	span     ast.Span
	depth    int
	captured bool
}

// upvar is one entry of a Compiler's upvalue vector (§4.2): either a slot
// in the immediately enclosing compiler's locals (isLocal) or an index
// into the enclosing compiler's own upvalue vector.
type upvar struct {
	index   uint16
	isLocal bool
}

// declareLocal pushes a new, as-yet-uninitialized local. At global scope
// callers use defineVariable's DefineGlobal path instead; declareLocal is
// only called once scopeDepth > 0.
func (c *Compiler) declareLocal(name string, span ast.Span) {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].depth < c.scopeDepth {
			break
		}
		if c.locals[i].name == name {
			c.error(span.Start, "variable %q already declared in this scope", name)
			return
		}
	}
	c.locals = append(c.locals, localVar{name: name, span: span, depth: -1})
}

// markInitialized promotes the most recently declared local to the current
// scope depth, making it visible to reads.
func (c *Compiler) markInitialized() {
	if c.scopeDepth == 0 {
		return
	}
	c.locals[len(c.locals)-1].depth = c.scopeDepth
}

// resolveLocal searches only this compiler's own locals, innermost first
// (§4.2 resolution step 1).
func (c *Compiler) resolveLocal(name string, span ast.Span) (int, bool) {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name != name {
			continue
		}
		if c.locals[i].depth == -1 {
			c.error(span.Start, "cannot read local variable %q in its own initializer", name)
			return 0, false
		}
		return i, true
	}
	return 0, false
}

// resolveUpvalue walks the enclosing compiler chain (§4.2 resolution step
// 2), marking any enclosing local it captures and recording the capture
// chain as upvalues on every compiler in between.
func (c *Compiler) resolveUpvalue(name string, span ast.Span) (int, bool) {
	if c.enclosing == nil {
		return 0, false
	}
	if idx, ok := c.enclosing.resolveLocal(name, span); ok {
		c.enclosing.locals[idx].captured = true
		return c.addUpvalue(uint16(idx), true), true
	}
	if idx, ok := c.enclosing.resolveUpvalue(name, span); ok {
		return c.addUpvalue(uint16(idx), false), true
	}
	return 0, false
}

// addUpvalue records a new upvalue slot, or returns the index of an
// existing identical one.
func (c *Compiler) addUpvalue(index uint16, isLocal bool) int {
	for i, uv := range c.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	c.upvalues = append(c.upvalues, upvar{index: index, isLocal: isLocal})
	return len(c.upvalues) - 1
}

// beginScope opens a new block scope.
func (c *Compiler) beginScope() {
	c.scopeDepth++
}

// endScope closes the current block scope, popping every local declared
// inside it. A captured local is closed over with CloseUpvalue instead of
// a plain Pop, since some live closure may still read it (§4.2, §4.4).
func (c *Compiler) endScope(span ast.Span) {
	c.scopeDepth--
	loc := toSpan(span)
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		last := c.locals[len(c.locals)-1]
		if last.captured {
			c.chunk.Emit(bytecode.OpCloseUpvalue, loc)
		} else {
			c.chunk.Emit(bytecode.OpPop, loc)
		}
		c.locals = c.locals[:len(c.locals)-1]
	}
}
