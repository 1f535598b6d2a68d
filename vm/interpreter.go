package vm

import (
	"fmt"

	"github.com/chazu/ember/bytecode"
)

// Run executes fn as the top-level program (§4.4, §5). A panic raised by
// any instruction handler is recovered here and converted into a
// *RuntimeError carrying the dispatching instruction's source span, so
// callers never see a bare Go panic escape the VM.
func (v *VM) Run(fn *ObjFunction) (result Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			if re, ok := r.(*RuntimeError); ok {
				err = re
				return
			}
			err = v.wrapPanic(r)
		}
	}()

	v.push(fn.ToValue())
	if err := v.callFunction(fn, 0); err != nil {
		return Null, err
	}
	return v.run()
}

func (v *VM) wrapPanic(r interface{}) *RuntimeError {
	span := bytecode.Span{}
	if len(v.frames) > 0 {
		f := v.currentFrame()
		span = f.fn.Code.Chunk.SpanAt(f.ip)
	}
	return &RuntimeError{Message: fmt.Sprintf("%v", r), Span: span, Stack: v.frameTrace()}
}

// run is the main fetch-decode-execute loop. It returns when the frame
// stack empties via a top-level Return, or Halt is dispatched.
func (v *VM) run() (Value, error) {
	for {
		frame := v.currentFrame()
		chunk := frame.fn.Code.Chunk
		op := bytecode.Opcode(chunk.Code[frame.ip])
		span := chunk.SpanAt(frame.ip)
		frame.ip++

		switch op {
		case bytecode.OpNull:
			v.push(Null)
		case bytecode.OpTrue:
			v.push(True)
		case bytecode.OpFalse:
			v.push(False)
		case bytecode.OpConstant:
			idx := v.readU16(frame)
			v.push(constAt(chunk, idx))
		case bytecode.OpPop:
			v.pop()

		case bytecode.OpAdd:
			if err := v.add(); err != nil {
				return Null, v.runtimeErr(err, span)
			}
		case bytecode.OpSub:
			if err := v.arith(span, func(a, b float64) float64 { return a - b }); err != nil {
				return Null, err
			}
		case bytecode.OpMul:
			if err := v.arith(span, func(a, b float64) float64 { return a * b }); err != nil {
				return Null, err
			}
		case bytecode.OpDiv:
			if err := v.arith(span, func(a, b float64) float64 { return a / b }); err != nil {
				return Null, err
			}
		case bytecode.OpLessThan:
			if err := v.compare(span, func(a, b float64) bool { return a < b }); err != nil {
				return Null, err
			}
		case bytecode.OpGreaterThan:
			if err := v.compare(span, func(a, b float64) bool { return a > b }); err != nil {
				return Null, err
			}
		case bytecode.OpEqual:
			b := v.pop()
			a := v.pop()
			v.push(FromBool(a == b))

		case bytecode.OpJump:
			delta := v.readU16(frame)
			frame.ip += int(delta)
		case bytecode.OpJumpIfFalse:
			delta := v.readU16(frame)
			if v.peek(0).IsFalsy() {
				frame.ip += int(delta)
			}
		case bytecode.OpLoop:
			delta := v.readU16(frame)
			frame.ip -= int(delta)

		case bytecode.OpGetLocal:
			idx := v.readU16(frame)
			v.push(v.stack[frame.stackBase+int(idx)])
		case bytecode.OpSetLocal:
			idx := v.readU16(frame)
			v.stack[frame.stackBase+int(idx)] = v.peek(0)

		case bytecode.OpGetGlobal:
			idx := v.readU16(frame)
			name, _ := asString(constAt(chunk, idx))
			val, ok := v.Globals[name]
			if !ok {
				return Null, v.runtimeErr(newNameError("undefined global %q", name.Chars), span)
			}
			v.push(val)
		case bytecode.OpSetGlobal:
			idx := v.readU16(frame)
			name, _ := asString(constAt(chunk, idx))
			if _, ok := v.Globals[name]; !ok {
				return Null, v.runtimeErr(newNameError("undefined global %q", name.Chars), span)
			}
			v.Globals[name] = v.peek(0)
		case bytecode.OpDefineGlobal:
			idx := v.readU16(frame)
			name, _ := asString(constAt(chunk, idx))
			v.Globals[name] = v.pop()

		case bytecode.OpGetUpvalue:
			idx := v.readU16(frame)
			v.push(frame.fn.Upvalues[idx].get(v.stack))
		case bytecode.OpSetUpvalue:
			idx := v.readU16(frame)
			frame.fn.Upvalues[idx].set(v.stack, v.peek(0))
		case bytecode.OpCloseUpvalue:
			v.closeUpvaluesFrom(len(v.stack) - 1)
			v.pop()

		case bytecode.OpCloseFunction:
			if err := v.closeFunction(frame, chunk); err != nil {
				return Null, v.runtimeErr(err, span)
			}

		case bytecode.OpCall:
			argc := int(chunk.Code[frame.ip])
			frame.ip++
			if err := v.call(argc); err != nil {
				return Null, v.runtimeErr(err, span)
			}
		case bytecode.OpInvoke:
			idx := v.readU16(frame)
			argc := int(chunk.Code[frame.ip])
			frame.ip++
			name, _ := asString(constAt(chunk, idx))
			if err := v.invoke(name, argc); err != nil {
				return Null, v.runtimeErr(err, span)
			}
		case bytecode.OpReturn:
			result := v.doReturn()
			if len(v.frames) == 0 {
				if !result.IsInt() {
					return Null, v.runtimeErr(newTypeError("top-level return must be an int"), span)
				}
				return result, nil
			}
			v.push(result)

		case bytecode.OpClass:
			idx := v.readU16(frame)
			name, _ := asString(constAt(chunk, idx))
			class := v.allocateClass(name, nil)
			v.push(class.ToValue())
		case bytecode.OpInherit:
			sub := v.pop()
			super := v.peek(0)
			if err := inherit(super, sub); err != nil {
				return Null, v.runtimeErr(err, span)
			}
		case bytecode.OpAttachMethod:
			idx := v.readU16(frame)
			name, _ := asString(constAt(chunk, idx))
			fnVal := v.pop()
			fn, ok := asFunction(fnVal)
			if !ok {
				return Null, v.runtimeErr(newTypeError("method body is not a function"), span)
			}
			class, _ := asClass(v.peek(0))
			class.dict()[name] = fn.ToValue()
		case bytecode.OpGetMember:
			idx := v.readU16(frame)
			name, _ := asString(constAt(chunk, idx))
			recv := v.pop()
			val, err := v.getMember(recv, name)
			if err != nil {
				return Null, v.runtimeErr(err, span)
			}
			v.push(val)
		case bytecode.OpSetMember:
			idx := v.readU16(frame)
			name, _ := asString(constAt(chunk, idx))
			val := v.pop()
			recv := v.peek(0)
			if err := v.setMember(recv, name, val); err != nil {
				return Null, v.runtimeErr(err, span)
			}
		case bytecode.OpGetSuper:
			idx := v.readU16(frame)
			name, _ := asString(constAt(chunk, idx))
			superVal := v.pop()
			this := v.pop()
			val, err := v.getSuper(this, superVal, name)
			if err != nil {
				return Null, v.runtimeErr(err, span)
			}
			v.push(val)

		case bytecode.OpHalt:
			return FromInt(0), nil

		default:
			return Null, v.runtimeErr(newTypeError("unknown opcode %d", op), span)
		}
	}
}

func (v *VM) readU16(f *Frame) uint16 {
	chunk := f.fn.Code.Chunk
	hi, lo := chunk.Code[f.ip], chunk.Code[f.ip+1]
	f.ip += 2
	return uint16(hi)<<8 | uint16(lo)
}

func (v *VM) runtimeErr(err error, span bytecode.Span) error {
	var re *RuntimeError
	if e, ok := err.(*RuntimeError); ok {
		if e.Span == (bytecode.Span{}) {
			e.Span = span
		}
		e.Stack = v.frameTrace()
		re = e
	} else {
		re = &RuntimeError{Message: err.Error(), Span: span, Stack: v.frameTrace(), Cause: err}
	}
	v.log.Errorf("runtime error at %d:%d: %s", re.Span.Line, re.Span.Column, re.Message)
	return re
}

// closeFunction implements the CloseFunction opcode: allocate a Function
// wrapping the literal FunctionCode, then resolve each upvalue descriptor
// against the *current* frame (§4.4).
func (v *VM) closeFunction(frame *Frame, chunk *bytecode.Chunk) error {
	idx := v.readU16(frame)
	codeVal := constAt(chunk, idx)
	code, ok := asFunctionCode(codeVal)
	if !ok {
		return newTypeError("CloseFunction literal is not a FunctionCode")
	}
	fn := v.allocateFunction(code)

	upCount := int(chunk.Code[frame.ip])
	frame.ip++
	for i := 0; i < upCount; i++ {
		isLocal := chunk.Code[frame.ip] != 0
		idx := int(chunk.Code[frame.ip+1])<<8 | int(chunk.Code[frame.ip+2])
		frame.ip += 3
		if isLocal {
			fn.Upvalues[i] = v.captureUpvalue(frame.stackBase + idx)
		} else {
			fn.Upvalues[i] = frame.fn.Upvalues[idx]
		}
	}
	v.push(fn.ToValue())
	return nil
}

// captureUpvalue returns the open upvalue for slot, sharing an existing
// one if present (§4.4 "capture_upvalue"), maintaining the open list in
// descending-slot order.
func (v *VM) captureUpvalue(slot int) *ObjUpvalue {
	var prev *ObjUpvalue
	uv := v.openUpvalues
	for uv != nil && uv.slot > slot {
		prev = uv
		uv = uv.nextOpen
	}
	if uv != nil && uv.slot == slot {
		return uv
	}
	created := v.allocateUpvalue(slot)
	created.nextOpen = uv
	if prev == nil {
		v.openUpvalues = created
	} else {
		prev.nextOpen = created
	}
	return created
}

// closeUpvaluesFrom closes every open upvalue at or above fromSlot
// (§4.4 "close_upvalue").
func (v *VM) closeUpvaluesFrom(fromSlot int) {
	for v.openUpvalues != nil && v.openUpvalues.slot >= fromSlot {
		uv := v.openUpvalues
		uv.close(v.stack)
		v.openUpvalues = uv.nextOpen
		uv.nextOpen = nil
	}
}

func (v *VM) frameTrace() []int {
	trace := make([]int, len(v.frames))
	for i, f := range v.frames {
		trace[i] = f.ip
	}
	return trace
}
