package vm

// member is the result of a dict/member-chain lookup: the resolved value,
// whether it was found at all, and whether the lookup context treats it
// as a method (so the caller knows to apply the method-binding protocol).
type member struct {
	value    Value
	found    bool
	isMethod bool
}

// getMemberObj implements §4.4 "Member lookup (get_member_obj)": try the
// object's own dict first — every variant has one via objHeader, not just
// Instance and Class — then, if it's an Instance and the lookup misses,
// recurse into its Class with isMethod=true; if it's a Class and the
// lookup misses, recurse into its parent Class. An attribute defined
// directly on an instance shadows class methods.
func getMemberObj(recv Value, name *ObjString, isMethod bool) member {
	h := recv.Object()
	if v, ok := h.members[name]; ok {
		if _, isInst := asInstance(recv); isInst {
			return member{value: v, found: true, isMethod: false}
		}
		return member{value: v, found: true, isMethod: isMethod}
	}
	if inst, ok := asInstance(recv); ok {
		return classMember(inst.Class, name)
	}
	if class, ok := asClass(recv); ok && class.Super != nil {
		return classMember(class.Super, name)
	}
	return member{}
}

// classMember continues a lookup up a Class's own dict and, failing that,
// its superclass chain.
func classMember(class *ObjClass, name *ObjString) member {
	for c := class; c != nil; c = c.Super {
		if v, ok := c.members[name]; ok {
			return member{value: v, found: true, isMethod: true}
		}
	}
	return member{}
}

// getMemberValue dispatches by Value kind (§4.4): object receivers use
// getMemberObj; primitive receivers look the name up on the matching
// BuiltinType's dict with isMethod=true.
func (v *VM) getMemberValue(recv Value, name *ObjString, isMethod bool) member {
	if recv.IsObject() {
		return getMemberObj(recv, name, isMethod)
	}
	bt := v.builtinFor(recv)
	if bt == nil {
		return member{}
	}
	if val, ok := bt.members[name]; ok {
		return member{value: val, found: true, isMethod: true}
	}
	return member{}
}

// bindMethod implements the method-binding protocol shared by GetMember,
// Invoke, and GetSuper: if the resolved member is a Function, wrap it in
// a Method bound to recv; otherwise the resolved value itself is used.
func (v *VM) bindMethod(recv Value, m member) Value {
	if !m.found {
		return Null
	}
	if fn, ok := asFunction(m.value); ok {
		return v.allocateMethod(recv, fn).ToValue()
	}
	return m.value
}

// getMember implements the GetMember opcode: stack [receiver] -> [result].
// isMethod is true only when the receiver is an Instance (§4.4).
func (v *VM) getMember(recv Value, name *ObjString) (Value, error) {
	_, isInstance := asInstance(recv)
	m := v.getMemberValue(recv, name, isInstance)
	if !m.found {
		return Null, newNameError("no member %q", name.Chars)
	}
	if m.isMethod {
		return v.bindMethod(recv, m), nil
	}
	return m.value, nil
}

// setMember implements SetMember: writes to recv's own dict, which every
// object variant carries via objHeader (§3, §4.4 "try the object's own
// dict first"). Fails if recv is immutable; immutable() itself already
// covers non-object values, since every non-object Value reports
// immutable (there's no dict to write to).
func (v *VM) setMember(recv Value, name *ObjString, val Value) error {
	if immutable(recv) {
		return newTypeError("cannot set member %q on an immutable value", name.Chars)
	}
	recv.Object().dict()[name] = val
	return nil
}

// inherit implements the Inherit opcode: stack [superclass, subclass] ->
// [superclass], wiring subclass.Super = superclass. The interpreter pops
// the subclass; the superclass stays in place as the compiler's `super`
// local.
func inherit(super, sub Value) error {
	superClass, ok := asClass(super)
	if !ok {
		return newTypeError("superclass must be a class")
	}
	subClass, ok := asClass(sub)
	if !ok {
		return newTypeError("subclass must be a class")
	}
	subClass.Super = superClass
	return nil
}

// getSuper implements GetSuper: stack [this, superclass] -> [result].
// Looks name up in superclass's own chain (following Super), then binds
// it to `this` if it resolves to a Function.
func (v *VM) getSuper(this, superVal Value, name *ObjString) (Value, error) {
	superClass, ok := asClass(superVal)
	if !ok {
		return Null, newTypeError("super is not a class")
	}
	m := classMember(superClass, name)
	if !m.found {
		return Null, newNameError("no member %q on superclass", name.Chars)
	}
	return v.bindMethod(this, m), nil
}
