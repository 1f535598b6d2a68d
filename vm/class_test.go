package vm

import (
	"testing"

	"github.com/chazu/ember/bytecode"
)

// TestSetMemberRoundTripsOnEveryMutableVariant checks the universal-dict
// invariant directly: o.dict[name] = v by way of SetMember, followed by
// GetMember for that same name, must return v for any object variant that
// isn't one of the three immutables (String, FunctionCode, NativeFunction).
func TestSetMemberRoundTripsOnEveryMutableVariant(t *testing.T) {
	vmInst := NewVM()
	name := vmInst.Strings.CopyString("extra", vmInst.Heap)

	code := vmInst.AllocateFunctionCode(nil, bytecode.NewChunk("test"), 0, nil)
	fn := vmInst.allocateFunction(code)
	uv := vmInst.allocateUpvalue(-1)
	method := vmInst.allocateMethod(Null, fn)
	class := vmInst.allocateClass(vmInst.Strings.CopyString("C", vmInst.Heap), nil)
	inst := vmInst.allocateInstance(class)

	variants := map[string]Value{
		"Function": fn.ToValue(),
		"Upvalue":  uv.ToValue(),
		"Method":   method.ToValue(),
		"Class":    class.ToValue(),
		"Instance": inst.ToValue(),
		"BuiltinType": vmInst.builtins[primInt].ToValue(),
	}

	for label, v := range variants {
		if err := vmInst.setMember(v, name, FromInt(42)); err != nil {
			t.Fatalf("%s: SetMember failed: %v", label, err)
		}
		got, err := vmInst.getMember(v, name)
		if err != nil {
			t.Fatalf("%s: GetMember failed: %v", label, err)
		}
		if !got.IsInt() || got.Int() != 42 {
			t.Fatalf("%s: expected 42, got %s", label, Stringify(got, vmInst.Strings))
		}
	}
}

// TestSetMemberRejectsImmutableVariants checks that the three variants the
// spec calls out as immutable (String, FunctionCode, NativeFunction) still
// reject SetMember even though they carry the same generic dict.
func TestSetMemberRejectsImmutableVariants(t *testing.T) {
	vmInst := NewVM()
	name := vmInst.Strings.CopyString("extra", vmInst.Heap)

	str := vmInst.Strings.CopyString("frozen", vmInst.Heap)
	code := vmInst.AllocateFunctionCode(nil, bytecode.NewChunk("test"), 0, nil)
	native := vmInst.allocateNative(vmInst.Strings.CopyString("f", vmInst.Heap), func(*VM, int, []Value) Value { return Null })

	for label, v := range map[string]Value{
		"String":         str.ToValue(),
		"FunctionCode":   code.ToValue(),
		"NativeFunction": native.ToValue(),
	} {
		if err := vmInst.setMember(v, name, FromInt(1)); err == nil {
			t.Fatalf("%s: expected SetMember to fail on an immutable value", label)
		}
	}
}
