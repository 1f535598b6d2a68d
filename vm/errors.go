package vm

import (
	"fmt"

	"github.com/chazu/ember/bytecode"
)

// errKind classifies a runtime error per §7's taxonomy (compile errors
// live in the compiler package; this covers the runtime kinds).
type errKind int

const (
	errType errKind = iota
	errArity
	errName
)

// vmError is a plain, unwrapped runtime error before it has a dispatching
// instruction's span attached; the interpreter loop promotes it to a
// *RuntimeError at the point of failure.
type vmError struct {
	kind errKind
	msg  string
}

func (e *vmError) Error() string { return e.msg }

func newTypeError(format string, args ...interface{}) error {
	return &vmError{kind: errType, msg: fmt.Sprintf(format, args...)}
}

func newArityError(format string, args ...interface{}) error {
	return &vmError{kind: errArity, msg: fmt.Sprintf(format, args...)}
}

func newNameError(format string, args ...interface{}) error {
	return &vmError{kind: errName, msg: fmt.Sprintf(format, args...)}
}

// RuntimeError is the error the VM returns to its caller for any failure
// during Run: a type, arity, or name error, or a top-level return of the
// wrong kind (§7). Its Span is the currently-dispatching instruction's
// source location, resolved through the chunk's debug-loc runs.
type RuntimeError struct {
	Message string
	Span    bytecode.Span
	Stack   []int // instruction pointers of every enclosing frame, innermost last
	Cause   error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error at line %d: %s", e.Span.Line, e.Message)
}

func (e *RuntimeError) Unwrap() error { return e.Cause }
