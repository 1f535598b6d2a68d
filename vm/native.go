package vm

import (
	"fmt"
	"time"
)

// RegisterNative defines a global bound to a native function, using the
// ABI described in §6: `Value fn(VM*, u32 argc, Value* args)`.
func (v *VM) RegisterNative(name string, fn NativeFn) {
	nameObj := v.Strings.CopyString(name, v.Heap)
	native := v.allocateNative(nameObj, fn)
	v.Globals[nameObj] = native.ToValue()
}

// RegisterStandardLibrary installs the three native functions named in
// §1: clock, print, and integer abs. A front end with no other built-ins
// gets exactly these and nothing more.
func (v *VM) RegisterStandardLibrary() {
	v.RegisterNative("clock", nativeClock)
	v.RegisterNative("print", nativePrint)
	v.RegisterNative("abs", nativeAbs)
}

func nativeClock(vm *VM, argc int, args []Value) Value {
	return FromFloat64(float64(time.Now().UnixNano()) / 1e9)
}

func nativePrint(vm *VM, argc int, args []Value) Value {
	parts := make([]interface{}, argc)
	for i, a := range args[:argc] {
		parts[i] = Stringify(a, vm.Strings)
	}
	format := make([]byte, 0, argc*4)
	for i := range parts {
		if i > 0 {
			format = append(format, ' ')
		}
		format = append(format, '%', 'v')
	}
	fmt.Println(fmt.Sprintf(string(format), parts...))
	return Null
}

func nativeAbs(vm *VM, argc int, args []Value) Value {
	if argc != 1 {
		return Null
	}
	a := args[0]
	if a.IsInt() {
		n := a.Int()
		if n < 0 {
			n = -n
		}
		return FromInt(n)
	}
	if a.IsFloat() {
		f := a.Float64()
		if f < 0 {
			f = -f
		}
		return FromFloat64(f)
	}
	return Null
}

// Stringify renders v the way print does: the minimal textual form
// needed for §8's end-to-end scenario output.
func Stringify(v Value, intern *Interner) string {
	switch {
	case v.IsNull():
		return "null"
	case v.IsBool():
		return fmt.Sprintf("%v", v.Bool())
	case v.IsInt():
		return fmt.Sprintf("%d", v.Int())
	case v.IsFloat():
		return fmt.Sprintf("%g", v.Float64())
	case v.IsObject():
		return stringifyObject(v)
	default:
		return "?"
	}
}

func stringifyObject(v Value) string {
	h := v.Object()
	switch h.tag {
	case objString:
		return (*ObjString)(objectFrom(h)).Chars
	case objFunction:
		return "<function>"
	case objFunctionCode:
		return "<code>"
	case objClass:
		return "<class " + (*ObjClass)(objectFrom(h)).Name.Chars + ">"
	case objInstance:
		return "<instance of " + (*ObjInstance)(objectFrom(h)).Class.Name.Chars + ">"
	case objMethod:
		return "<bound method>"
	case objNative:
		return "<native " + (*ObjNative)(objectFrom(h)).Name.Chars + ">"
	case objBuiltinType:
		return "<builtin " + (*ObjBuiltinType)(objectFrom(h)).Name.Chars + ">"
	case objUpvalue:
		return "<upvalue>"
	default:
		return "<object>"
	}
}
