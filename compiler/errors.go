package compiler

import (
	"fmt"

	"github.com/chazu/ember/ast"
)

// Error is a single compile-time diagnostic, carrying the source position
// that produced it (§7). Compile never stops at the first one: every error
// found while walking a Namespace is collected and joined into the
// returned error via errors.Join, mirroring the teacher's
// RuntimeError/Span pairing for runtime diagnostics.
type Error struct {
	Message string
	Pos     ast.Position
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

func newError(pos ast.Position, format string, args ...interface{}) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Pos: pos}
}
