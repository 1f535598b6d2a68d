package vm

// This file gathers every GC-aware allocation path (§4.5 "Object
// allocation"): run the growth check, then link the new object into the
// heap's intrusive list. The check runs first so a collection it triggers
// never sweeps the object that provoked it, which isn't reachable from any
// root until its caller stores it somewhere. Object.go defines the struct
// shapes; this file constructs every variant except ObjString, which
// Interner.CopyString (intern.go) builds and registers itself without a
// growth check.

func (v *VM) allocateFunctionCode(name *ObjString, chunk *ChunkRef, arity int, upvals []UpvalueDesc) *ObjFunctionCode {
	fc := &ObjFunctionCode{Name: name, Chunk: chunk, Arity: arity, UpvalueDesc: upvals}
	v.Heap.MaybeCollect(v)
	v.Heap.register(&fc.objHeader, objFunctionCode)
	return fc
}

// AllocateFunctionCode is compiler's entry point for turning a finished
// chunk into a heap object once a function body has been fully compiled
// (§4.2, §4.5).
func (v *VM) AllocateFunctionCode(name *ObjString, chunk *ChunkRef, arity int, upvals []UpvalueDesc) *ObjFunctionCode {
	return v.allocateFunctionCode(name, chunk, arity, upvals)
}

func (v *VM) allocateFunction(code *ObjFunctionCode) *ObjFunction {
	fn := &ObjFunction{Code: code, Upvalues: make([]*ObjUpvalue, len(code.UpvalueDesc))}
	v.Heap.MaybeCollect(v)
	v.Heap.register(&fn.objHeader, objFunction)
	return fn
}

// AllocateFunction is compiler's entry point for wrapping a finished
// top-level FunctionCode into a callable closure (§4.2, §4.5). The
// top-level program never captures anything, so its Upvalues array is
// always empty.
func (v *VM) AllocateFunction(code *ObjFunctionCode) *ObjFunction {
	return v.allocateFunction(code)
}

func (v *VM) allocateUpvalue(slot int) *ObjUpvalue {
	uv := &ObjUpvalue{slot: slot}
	v.Heap.MaybeCollect(v)
	v.Heap.register(&uv.objHeader, objUpvalue)
	return uv
}

func (v *VM) allocateClass(name *ObjString, super *ObjClass) *ObjClass {
	c := &ObjClass{Name: name, Super: super}
	v.Heap.MaybeCollect(v)
	v.Heap.register(&c.objHeader, objClass)
	return c
}

func (v *VM) allocateInstance(class *ObjClass) *ObjInstance {
	i := &ObjInstance{Class: class}
	v.Heap.MaybeCollect(v)
	v.Heap.register(&i.objHeader, objInstance)
	return i
}

func (v *VM) allocateMethod(receiver Value, fn *ObjFunction) *ObjMethod {
	m := &ObjMethod{Receiver: receiver, Func: fn}
	v.Heap.MaybeCollect(v)
	v.Heap.register(&m.objHeader, objMethod)
	return m
}

func (v *VM) allocateNative(name *ObjString, fn NativeFn) *ObjNative {
	n := &ObjNative{Name: name, Fn: fn}
	v.Heap.MaybeCollect(v)
	v.Heap.register(&n.objHeader, objNative)
	return n
}

func (v *VM) allocateBuiltinType(name string) *ObjBuiltinType {
	nameObj := v.Strings.CopyString(name, v.Heap)
	b := &ObjBuiltinType{Name: nameObj}
	v.Heap.MaybeCollect(v)
	v.Heap.register(&b.objHeader, objBuiltinType)
	return b
}

// --- value-kind narrowing helpers, used throughout member dispatch ---

func asString(v Value) (*ObjString, bool) {
	if !v.IsObject() {
		return nil, false
	}
	h := v.Object()
	if h.tag != objString {
		return nil, false
	}
	return (*ObjString)(objectFrom(h)), true
}

func asClass(v Value) (*ObjClass, bool) {
	if !v.IsObject() {
		return nil, false
	}
	h := v.Object()
	if h.tag != objClass {
		return nil, false
	}
	return (*ObjClass)(objectFrom(h)), true
}

func asInstance(v Value) (*ObjInstance, bool) {
	if !v.IsObject() {
		return nil, false
	}
	h := v.Object()
	if h.tag != objInstance {
		return nil, false
	}
	return (*ObjInstance)(objectFrom(h)), true
}

func asFunction(v Value) (*ObjFunction, bool) {
	if !v.IsObject() {
		return nil, false
	}
	h := v.Object()
	if h.tag != objFunction {
		return nil, false
	}
	return (*ObjFunction)(objectFrom(h)), true
}

func asMethod(v Value) (*ObjMethod, bool) {
	if !v.IsObject() {
		return nil, false
	}
	h := v.Object()
	if h.tag != objMethod {
		return nil, false
	}
	return (*ObjMethod)(objectFrom(h)), true
}

func asNative(v Value) (*ObjNative, bool) {
	if !v.IsObject() {
		return nil, false
	}
	h := v.Object()
	if h.tag != objNative {
		return nil, false
	}
	return (*ObjNative)(objectFrom(h)), true
}

// immutable reports whether v's dict may not be written to via SetMember
// (§4.4 "SetMember ... mutable only on objects that are not immutable").
func immutable(v Value) bool {
	if !v.IsObject() {
		return true
	}
	switch v.Object().tag {
	case objString, objFunctionCode, objNative:
		return true
	default:
		return false
	}
}
