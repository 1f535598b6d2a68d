package vm

import (
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// primKind indexes the five primitive value kinds that can carry a
// BuiltinType method table (§3 "BuiltinType").
type primKind int

const (
	primInt primKind = iota
	primFloat
	primBool
	primString
	primNull
	primKindCount
)

// Frame is one call's activation record (§4.4 "Per-frame state").
type Frame struct {
	fn            *ObjFunction
	ip            int
	stackBase     int
	isConstructor bool
}

// VM is the stack-based interpreter: operand stack, frame stack, globals,
// string interning, open upvalues, and the native FFI surface (§4.4).
// A *VM is never shared across goroutines (§5).
type VM struct {
	ID uuid.UUID

	stack  []Value
	gcs    []Value // GC-protection stack (§4.5, §9 "Protection stack")
	frames []*Frame

	Globals    map[*ObjString]Value
	Strings    *Interner
	Heap       *Heap
	InitString *ObjString

	openUpvalues *ObjUpvalue // head, descending-slot order

	builtins [primKindCount]*ObjBuiltinType

	compilerRoots CompilerRootFunc

	log commonlog.Logger
}

// CompilerRootFunc reports every heap object a still-compiling Compiler
// chain currently holds that isn't yet reachable through the ordinary root
// set (locals on an operand stack, globals, frames): interned string and
// nested FunctionCode literals added to an in-progress chunk before the
// enclosing function object that will eventually reference them exists
// (§4.5 "Root set"). Defined in terms of Value rather than the unexported
// object header type, so the compiler package can implement it without
// importing vm internals.
type CompilerRootFunc func() []Value

// NewVM creates a VM with its string table, heap, and primitive
// BuiltinTypes bootstrapped, ready to run compiled code.
func NewVM() *VM {
	v := &VM{
		stack:   make([]Value, 0, 256),
		Globals: make(map[*ObjString]Value, 64),
		Strings: NewInterner(),
		Heap:    NewHeap(),
		ID:      uuid.New(),
		log:     commonlog.GetLogger("ember.vm"),
	}
	v.Heap.OnFreeString = func(s *ObjString) {
		v.Strings.mu.Lock()
		delete(v.Strings.byName, s.Chars)
		v.Strings.mu.Unlock()
	}
	v.InitString = v.Strings.CopyString("init", v.Heap)
	for k := primKind(0); k < primKindCount; k++ {
		v.builtins[k] = v.allocateBuiltinType(primKindName(k))
	}
	return v
}

func primKindName(k primKind) string {
	switch k {
	case primInt:
		return "Int"
	case primFloat:
		return "Float"
	case primBool:
		return "Bool"
	case primString:
		return "String"
	case primNull:
		return "Null"
	default:
		return "?"
	}
}

// SetCompilerRoots registers a callback the GC consults while a Compiler
// chain is still in progress, satisfying §4.5's root-set requirement
// without vm importing compiler (which would cycle back through vm for
// Value). compiler.Compile installs and clears this around each call.
func (v *VM) SetCompilerRoots(fn CompilerRootFunc) {
	v.compilerRoots = fn
}

// markRoots grays every object directly reachable from VM state (§4.5
// "Root set").
func (v *VM) markRoots(gray []*objHeader) []*objHeader {
	for _, val := range v.stack {
		gray = markValue(val, gray)
	}
	for _, val := range v.gcs {
		gray = markValue(val, gray)
	}
	for _, f := range v.frames {
		gray = mark(&f.fn.objHeader, gray)
	}
	for uv := v.openUpvalues; uv != nil; uv = uv.nextOpen {
		gray = mark(&uv.objHeader, gray)
	}
	for k, val := range v.Globals {
		gray = mark(&k.objHeader, gray)
		gray = markValue(val, gray)
	}
	if v.InitString != nil {
		gray = mark(&v.InitString.objHeader, gray)
	}
	for _, bt := range v.builtins {
		if bt != nil {
			gray = mark(&bt.objHeader, gray)
		}
	}
	if v.compilerRoots != nil {
		for _, val := range v.compilerRoots() {
			gray = markValue(val, gray)
		}
	}
	return gray
}

// --- operand stack ---

func (v *VM) push(val Value) {
	v.stack = append(v.stack, val)
}

func (v *VM) pop() Value {
	n := len(v.stack) - 1
	val := v.stack[n]
	v.stack = v.stack[:n]
	return val
}

func (v *VM) peek(distance int) Value {
	return v.stack[len(v.stack)-1-distance]
}

func (v *VM) protect(val Value) {
	v.gcs = append(v.gcs, val)
}

func (v *VM) unprotect() {
	v.gcs = v.gcs[:len(v.gcs)-1]
}

func (v *VM) currentFrame() *Frame {
	return v.frames[len(v.frames)-1]
}

// builtinFor returns the BuiltinType attached to the primitive kind that
// val's own Value tag belongs to, for member lookups on non-object values
// (§4.4 "get_member_value").
func (v *VM) builtinFor(val Value) *ObjBuiltinType {
	switch {
	case val.IsInt():
		return v.builtins[primInt]
	case val.IsFloat():
		return v.builtins[primFloat]
	case val.IsBool():
		return v.builtins[primBool]
	case val.IsNull():
		return v.builtins[primNull]
	case val.IsObject():
		if s, ok := asString(val); ok {
			_ = s
			return v.builtins[primString]
		}
	}
	return nil
}
