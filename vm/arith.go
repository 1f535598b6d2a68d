package vm

import "github.com/chazu/ember/bytecode"

// concatScratchLimit is not referenced by any code path: add builds every
// concatenation with Go's own string concatenation, whatever its size, and
// there is no scratch buffer for this constant to bound (§4.4 Add).
const concatScratchLimit = 16 * 1024

// add implements Add, which additionally handles string concatenation
// when both operands are strings (§4.4).
func (v *VM) add() error {
	b := v.pop()
	a := v.pop()

	if as, ok := asString(a); ok {
		if bs, ok := asString(b); ok {
			v.protect(a)
			v.protect(b)
			v.Heap.MaybeCollect(v)
			result := v.Strings.CopyString(as.Chars+bs.Chars, v.Heap)
			v.unprotect()
			v.unprotect()
			v.push(result.ToValue())
			return nil
		}
	}

	x, y, isFloat, err := numericOperands(a, b)
	if err != nil {
		return err
	}
	if isFloat {
		v.push(FromFloat64(x + y))
	} else {
		v.push(FromInt(int32(x) + int32(y)))
	}
	return nil
}

// arith implements Sub/Mul/Div: int-op-float promotes to float, per §4.4.
func (v *VM) arith(span bytecode.Span, op func(a, b float64) float64) error {
	b := v.pop()
	a := v.pop()
	x, y, isFloat, err := numericOperands(a, b)
	if err != nil {
		return v.runtimeErr(err, span)
	}
	if isFloat {
		v.push(FromFloat64(op(x, y)))
	} else {
		v.push(FromInt(int32(op(x, y))))
	}
	return nil
}

// compare implements LessThan/GreaterThan with the same int/float
// coercion rules as arith.
func (v *VM) compare(span bytecode.Span, op func(a, b float64) bool) error {
	b := v.pop()
	a := v.pop()
	x, y, _, err := numericOperands(a, b)
	if err != nil {
		return v.runtimeErr(err, span)
	}
	v.push(FromBool(op(x, y)))
	return nil
}

// numericOperands coerces a, b to float64 for a shared arithmetic op,
// reporting whether the result should be boxed back as a float (true if
// either operand was a float) and erroring on non-numeric operands.
func numericOperands(a, b Value) (x, y float64, isFloat bool, err error) {
	switch {
	case a.IsInt() && b.IsInt():
		return float64(a.Int()), float64(b.Int()), false, nil
	case a.IsInt() && b.IsFloat():
		return float64(a.Int()), b.Float64(), true, nil
	case a.IsFloat() && b.IsInt():
		return a.Float64(), float64(b.Int()), true, nil
	case a.IsFloat() && b.IsFloat():
		return a.Float64(), b.Float64(), true, nil
	default:
		return 0, 0, false, newTypeError("arithmetic requires two numbers")
	}
}
