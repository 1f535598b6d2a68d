package vm

import "unsafe"

// objTag identifies an object's concrete variant (§3).
type objTag byte

const (
	objString objTag = iota
	objFunctionCode
	objFunction
	objUpvalue
	objClass
	objInstance
	objMethod
	objNative
	objBuiltinType
)

// objHeader is embedded in every heap object variant. It carries the GC's
// intrusive linked-list pointer and mark bit (§4.5), the tag needed to
// recover the concrete type from a bare Value, and the property dict every
// object carries regardless of variant (§3 "every heap object has a
// dict"). members is nil until the first write, since most objects never
// gain extra members beyond whatever fields their own variant defines.
type objHeader struct {
	tag     objTag
	marked  bool
	next    *objHeader
	members map[*ObjString]Value
}

// dict returns h's property dict, allocating it on first write. Read paths
// that only need to look a name up should index h.members directly: a nil
// map read is safe in Go and doesn't force every object to carry a map it
// never populates.
func (h *objHeader) dict() map[*ObjString]Value {
	if h.members == nil {
		h.members = make(map[*ObjString]Value, 4)
	}
	return h.members
}

func (h *objHeader) header() *objHeader { return h }

// objectFrom recovers the concrete struct pointer that embeds header, using
// the same unsafe-pointer round trip as Value's own boxing. This mirrors
// the teacher's FromObjectPtr/ObjectPtr convention, generalized from a
// fixed Object struct to a tagged variant family.
func objectFrom(h *objHeader) unsafe.Pointer { return unsafe.Pointer(h) }

// ToValue boxes an object header as a Value.
func (h *objHeader) ToValue() Value { return FromObject(h) }

// ObjString is an interned, immutable byte string (§3).
type ObjString struct {
	objHeader
	Chars string
	Hash  uint32
}

// ObjFunctionCode is the compiled body of a function or method: its
// chunk, arity, and upvalue count, independent of any particular closure
// over it (§3 "FunctionCode").
type ObjFunctionCode struct {
	objHeader
	Name        *ObjString
	Chunk       *ChunkRef
	Arity       int
	UpvalueDesc []UpvalueDesc
}

// UpvalueDesc records how a closure should capture one upvalue slot: from
// the enclosing function's locals (IsLocal) or from the enclosing
// function's own upvalue array.
type UpvalueDesc struct {
	IsLocal bool
	Index   uint16
}

// ObjFunction is a closure: FunctionCode plus its captured upvalues (§3).
type ObjFunction struct {
	objHeader
	Code     *ObjFunctionCode
	Upvalues []*ObjUpvalue
}

// ObjUpvalue is an indirection cell for a captured local. While open, it
// holds an index into the owning VM's operand stack rather than a raw
// pointer, since that stack is a growable slice that can reallocate on
// append; Close copies the current value into Closed and marks the slot
// invalid, matching §4.4's open/closed protocol (the spec's own tagged
// union `open(slot_index)` / `closed(Value)`).
type ObjUpvalue struct {
	objHeader
	slot     int // >= 0 while open; -1 once closed
	Closed   Value
	nextOpen *ObjUpvalue // intrusive open-upvalue list, ordered by descending slot
}

func (u *ObjUpvalue) isOpen() bool { return u.slot >= 0 }

func (u *ObjUpvalue) get(stack []Value) Value {
	if u.isOpen() {
		return stack[u.slot]
	}
	return u.Closed
}

func (u *ObjUpvalue) set(stack []Value, v Value) {
	if u.isOpen() {
		stack[u.slot] = v
		return
	}
	u.Closed = v
}

func (u *ObjUpvalue) close(stack []Value) {
	if u.isOpen() {
		u.Closed = stack[u.slot]
		u.slot = -1
	}
}

// ObjClass is a class: an optional superclass, plus its own dict (embedded
// via objHeader) holding method name to unbound ObjFunction (§3).
type ObjClass struct {
	objHeader
	Name  *ObjString
	Super *ObjClass
}

// ObjInstance is an instance of a class: a class pointer plus its own
// property dict, embedded via objHeader (§3).
type ObjInstance struct {
	objHeader
	Class *ObjClass
}

// ObjMethod is a bound method: a receiver closed over a plain ObjFunction,
// produced by GetMember when the looked-up member is a class method (§4.4
// "method binding").
type ObjMethod struct {
	objHeader
	Receiver Value
	Func     *ObjFunction
}

// NativeFn is the ABI shape every native function implements (§6 "Native
// ABI"): given the running VM and its argument slice, return a Value.
type NativeFn func(vm *VM, argc int, args []Value) Value

// ObjNative wraps a Go-implemented function registered through the native
// ABI (§1: clock, print, abs).
type ObjNative struct {
	objHeader
	Name *ObjString
	Fn   NativeFn
}

// ObjBuiltinType attaches a method dict (embedded via objHeader) to a
// primitive kind (numbers, strings, bools) so built-in values can still
// respond to member lookups without being heap objects themselves (§3).
type ObjBuiltinType struct {
	objHeader
	Name *ObjString
}

// ChunkRef aliases the bytecode package's Chunk so vm can hold one without
// every object file importing bytecode directly; see bytecode.go for the
// concrete binding.
type ChunkRef = chunkAlias
