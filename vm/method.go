package vm

// This file implements the calling convention shared by Call, Invoke,
// class construction, and super dispatch (§4.4).

// call dispatches `Call argc`: the operand stack holds
// [callee, arg0, ..., argN-1] with callee at stack[top-argc].
func (v *VM) call(argc int) error {
	callee := v.peek(argc)

	switch {
	case callee.IsObject() && callee.Object().tag == objFunction:
		fn, _ := asFunction(callee)
		return v.callFunction(fn, argc)

	case callee.IsObject() && callee.Object().tag == objNative:
		native, _ := asNative(callee)
		return v.callNative(native, argc)

	case callee.IsObject() && callee.Object().tag == objClass:
		class, _ := asClass(callee)
		return v.callClass(class, argc)

	case callee.IsObject() && callee.Object().tag == objMethod:
		m, _ := asMethod(callee)
		return v.callMethodLike(argc, m.Func, m.Receiver)

	default:
		return newTypeError("value is not callable")
	}
}

// callFunction verifies arity and pushes a new frame over the current
// stack window.
func (v *VM) callFunction(fn *ObjFunction, argc int) error {
	if int(fn.Code.Arity) != argc {
		return newArityError("expected %d arguments, got %d", fn.Code.Arity, argc)
	}
	v.frames = append(v.frames, &Frame{
		fn:        fn,
		ip:        0,
		stackBase: len(v.stack) - argc - 1,
	})
	return nil
}

// callNative invokes a native function in place and replaces its argc+1
// stack entries with the result.
func (v *VM) callNative(n *ObjNative, argc int) error {
	base := len(v.stack) - argc
	args := v.stack[base:]
	result := n.Fn(v, argc, args)
	v.stack = v.stack[:base-1]
	v.push(result)
	return nil
}

// callClass implements the Class branch of the calling convention:
// allocate an Instance, splice it in as the callee, then dispatch to
// `init` if the class chain defines one.
func (v *VM) callClass(class *ObjClass, argc int) error {
	inst := v.allocateInstance(class)
	instVal := inst.ToValue()
	v.stack[len(v.stack)-argc-1] = instVal

	m := classMember(class, v.InitString)
	if !m.found {
		if argc != 0 {
			return newArityError("class %s has no init method, expected 0 arguments, got %d", class.Name.Chars, argc)
		}
		return nil
	}
	initFn, ok := asFunction(m.value)
	if !ok {
		return newTypeError("init is not a function")
	}
	return v.callMethodLikeCtor(argc, initFn, instVal)
}

// callMethodLike splices recv into the stack just before the arguments
// and dispatches as if the underlying Function had been called with
// argc+1 (§4.4 "Method: ... splice this_val into the stack before the
// arguments").
func (v *VM) callMethodLike(argc int, fn *ObjFunction, recv Value) error {
	base := len(v.stack) - argc
	v.stack = append(v.stack, Null) // grow by one
	copy(v.stack[base+1:], v.stack[base:len(v.stack)-1])
	v.stack[base] = recv
	return v.callFunction(fn, argc+1)
}

// callMethodLikeCtor is callMethodLike but marks the resulting frame as a
// constructor frame, so Return substitutes the receiver for the popped
// value (§4.4 "Return").
func (v *VM) callMethodLikeCtor(argc int, fn *ObjFunction, recv Value) error {
	if err := v.callMethodLike(argc, fn, recv); err != nil {
		return err
	}
	v.currentFrame().isConstructor = true
	return nil
}

// invoke implements `Invoke name argc`: the fused GetMember+Call that
// preserves `this`. Stack form is [receiver, args...] with receiver at
// depth argc.
func (v *VM) invoke(name *ObjString, argc int) error {
	recv := v.peek(argc)
	_, isInstance := asInstance(recv)
	m := v.getMemberValue(recv, name, isInstance)
	if !m.found {
		return newNameError("no member %q", name.Chars)
	}
	if m.isMethod {
		if fn, ok := asFunction(m.value); ok {
			return v.callMethodLike(argc, fn, recv)
		}
	}
	// Not a method-shaped Function: call the resolved value directly,
	// discarding the receiver (§4.4).
	base := len(v.stack) - argc - 1
	v.stack[base] = m.value
	return v.call(argc)
}

// doReturn implements the Return opcode for an active frame: pop the
// return value, substitute the receiver if the frame is a constructor,
// truncate to stack_base, push the result, and pop the frame.
func (v *VM) doReturn() Value {
	result := v.pop()
	frame := v.currentFrame()
	if frame.isConstructor {
		result = v.stack[frame.stackBase+1]
	}
	v.closeUpvaluesFrom(frame.stackBase)
	v.stack = v.stack[:frame.stackBase]
	v.frames = v.frames[:len(v.frames)-1]
	return result
}
