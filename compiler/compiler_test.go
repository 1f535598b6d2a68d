package compiler

import (
	"strconv"
	"testing"

	"github.com/chazu/ember/ast"
	"github.com/chazu/ember/vm"
)

// --- hand-built AST helpers ---
//
// There is no lexer/parser in this repository (ast.Namespace is the
// compiler's only input), so every scenario below builds its tree
// directly. Source positions are not exercised by these tests, so every
// node gets the zero-value span.

func id(name string) *ast.Identifier   { return &ast.Identifier{Name: name} }
func ilit(n int64) *ast.IntLiteral     { return &ast.IntLiteral{Text: strconv.FormatInt(n, 10), Base: 10} }
func slit(s string) *ast.StringLiteral { return &ast.StringLiteral{Value: s} }
func nullLit() *ast.NullLiteral        { return &ast.NullLiteral{} }
func block(stmts ...ast.Statement) *ast.BlockStmt {
	return &ast.BlockStmt{Statements: stmts}
}
func ret(e ast.Expression) *ast.ReturnStmt { return &ast.ReturnStmt{Value: e} }
func exprStmt(e ast.Expression) *ast.ExprStmt { return &ast.ExprStmt{X: e} }
func varDecl(name string, init ast.Expression) *ast.VarDecl {
	return &ast.VarDecl{Name: name, Init: init}
}
func assign(target, value ast.Expression) *ast.AssignExpr {
	return &ast.AssignExpr{Target: target, Value: value}
}
func bin(op ast.Operator, l, r ast.Expression) *ast.BinaryExpr {
	return &ast.BinaryExpr{Left: l, Operator: op, Right: r}
}
func call(callee ast.Expression, args ...ast.Expression) *ast.CallExpr {
	return &ast.CallExpr{Callee: callee, Arguments: args}
}
func member(left ast.Expression, prop string) *ast.MemberExpr {
	return &ast.MemberExpr{Left: left, Property: prop}
}
func superExpr(prop string) *ast.SuperExpr { return &ast.SuperExpr{Property: prop} }
func funcDecl(name string, params []string, body *ast.BlockStmt, decorators ...ast.Expression) *ast.FuncDecl {
	return &ast.FuncDecl{Name: name, Params: params, Body: body, Decorators: decorators}
}
func methodDecl(name string, params []string, body *ast.BlockStmt, decorators ...ast.Expression) *ast.MethodDecl {
	return &ast.MethodDecl{Name: name, Params: params, Body: body, Decorators: decorators}
}
func classDecl(name, super string, methods ...*ast.MethodDecl) *ast.ClassDecl {
	return &ast.ClassDecl{Name: name, SuperName: super, Methods: methods}
}
func ifStmt(cond ast.Expression, then *ast.BlockStmt, els *ast.BlockStmt) *ast.IfStmt {
	return &ast.IfStmt{Cond: cond, Then: then, Else: els}
}
func forStmt(init ast.Statement, cond, step ast.Expression, body *ast.BlockStmt) *ast.ForStmt {
	return &ast.ForStmt{Init: init, Cond: cond, Step: step, Body: body}
}
func ns(stmts ...ast.Statement) *ast.Namespace {
	return &ast.Namespace{Statements: stmts}
}

// runProgram compiles prog, fails the test on a compile error, and runs
// the resulting closure to completion.
func runProgram(t *testing.T, prog *ast.Namespace) (*vm.VM, vm.Value, error) {
	t.Helper()
	vmInst := vm.NewVM()
	fn, err := Compile(prog, vmInst, "test")
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	result, runErr := vmInst.Run(fn)
	return vmInst, result, runErr
}

// global looks up a top-level `let`/`def`/`class` binding by name, for
// scenarios where the value under test isn't the program's exit code.
func global(t *testing.T, vmInst *vm.VM, name string) vm.Value {
	t.Helper()
	nameObj, ok := vmInst.Strings.Lookup(name)
	if !ok {
		t.Fatalf("global %q was never interned", name)
	}
	val, ok := vmInst.Globals[nameObj]
	if !ok {
		t.Fatalf("global %q not found", name)
	}
	return val
}

func TestArithmeticTopLevelReturn(t *testing.T) {
	// return 1 + 2 * 3;
	prog := ns(ret(bin(ast.OpPlus, ilit(1), bin(ast.OpMultiply, ilit(2), ilit(3)))))
	_, result, err := runProgram(t, prog)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !result.IsInt() || result.Int() != 7 {
		t.Fatalf("expected 7, got %s", vm.Stringify(result, nil))
	}
}

// TestClosureCapturesLoopVariableAtScopeExit mirrors the classic
// let-in-a-for-loop idiom: each iteration's `captured` is a fresh local,
// so three closures built across three iterations each see their own
// value rather than all sharing the loop counter's final value.
func TestClosureCapturesLoopVariableAtScopeExit(t *testing.T) {
	body := block(
		varDecl("captured", id("i")),
		funcDecl("get", nil, block(ret(id("captured")))),
		ifStmt(bin(ast.OpEquals, id("i"), ilit(0)), block(exprStmt(assign(id("a"), id("get")))), nil),
		ifStmt(bin(ast.OpEquals, id("i"), ilit(1)), block(exprStmt(assign(id("b"), id("get")))), nil),
		ifStmt(bin(ast.OpEquals, id("i"), ilit(2)), block(exprStmt(assign(id("c"), id("get")))), nil),
	)
	prog := ns(
		varDecl("a", nullLit()),
		varDecl("b", nullLit()),
		varDecl("c", nullLit()),
		forStmt(
			varDecl("i", ilit(0)),
			bin(ast.OpLessThan, id("i"), ilit(3)),
			assign(id("i"), bin(ast.OpPlus, id("i"), ilit(1))),
			body,
		),
		ret(bin(ast.OpPlus,
			bin(ast.OpMultiply, call(id("a")), ilit(100)),
			bin(ast.OpPlus, bin(ast.OpMultiply, call(id("b")), ilit(10)), call(id("c"))))),
	)
	_, result, err := runProgram(t, prog)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !result.IsInt() || result.Int() != 12 {
		t.Fatalf("expected 12 (a()=0, b()=1, c()=2), got %s", vm.Stringify(result, nil))
	}
}

// TestManualDecorator exercises a decorator that is itself an ordinary
// script-level function closing over the decorated function.
func TestManualDecorator(t *testing.T) {
	// def makeDoubler(fn) { def wrapper(x) { return fn(x) * 2; } return wrapper; }
	// @makeDoubler def addOne(x) { return x + 1; }
	// return addOne(3); // (3+1)*2 = 8
	makeDoubler := funcDecl("makeDoubler", []string{"fn"}, block(
		funcDecl("wrapper", []string{"x"}, block(ret(bin(ast.OpMultiply, call(id("fn"), id("x")), ilit(2))))),
		ret(id("wrapper")),
	))
	addOne := funcDecl("addOne", []string{"x"}, block(ret(bin(ast.OpPlus, id("x"), ilit(1)))), id("makeDoubler"))
	prog := ns(makeDoubler, addOne, ret(call(id("addOne"), ilit(3))))
	_, result, err := runProgram(t, prog)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !result.IsInt() || result.Int() != 8 {
		t.Fatalf("expected 8, got %s", vm.Stringify(result, nil))
	}
}

// TestStackedDecorators verifies the written top-to-bottom, applied
// bottom-up stacking convention: @double @incr def base(x){return x;}
// applies incr first (closest to the def), then double.
func TestStackedDecorators(t *testing.T) {
	incr := funcDecl("incr", []string{"fn"}, block(
		funcDecl("wrapped", []string{"x"}, block(ret(bin(ast.OpPlus, call(id("fn"), id("x")), ilit(1))))),
		ret(id("wrapped")),
	))
	double := funcDecl("double", []string{"fn"}, block(
		funcDecl("wrapped", []string{"x"}, block(ret(bin(ast.OpMultiply, call(id("fn"), id("x")), ilit(2))))),
		ret(id("wrapped")),
	))
	base := funcDecl("base", []string{"x"}, block(ret(id("x"))), id("double"), id("incr"))
	prog := ns(incr, double, base, ret(call(id("base"), ilit(5))))
	_, result, err := runProgram(t, prog)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	// incr(base)(5) = 5+1 = 6; double(incr(base))(5) = 6*2 = 12
	if !result.IsInt() || result.Int() != 12 {
		t.Fatalf("expected 12, got %s", vm.Stringify(result, nil))
	}
}

// TestMethodDecorator applies the same decorator machinery to a method
// declared inside a class body.
func TestMethodDecorator(t *testing.T) {
	logged := funcDecl("logged", []string{"fn"}, block(
		funcDecl("wrapped", []string{"this", "x"}, block(
			ret(bin(ast.OpPlus, call(id("fn"), id("this"), id("x")), ilit(100))))),
		ret(id("wrapped")),
	))
	counter := classDecl("Counter", "",
		methodDecl("bump", []string{"this", "x"}, block(ret(bin(ast.OpPlus, id("x"), ilit(1)))), id("logged")),
	)
	prog := ns(
		logged,
		counter,
		varDecl("c", call(id("Counter"))),
		ret(call(member(id("c"), "bump"), ilit(5))),
	)
	_, result, err := runProgram(t, prog)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	// bump(5) undecorated = 6; decorated = 6+100 = 106
	if !result.IsInt() || result.Int() != 106 {
		t.Fatalf("expected 106, got %s", vm.Stringify(result, nil))
	}
}

// TestInheritanceAndSuper checks that a subclass method can extend its
// parent's implementation through `super`, and that construction falls
// through the chain to an inherited `init`. The greeting is stashed in a
// global rather than returned, since a top-level `return` is constrained
// to an int exit code.
func TestInheritanceAndSuper(t *testing.T) {
	animal := classDecl("Animal", "",
		methodDecl("init", []string{"this", "name"}, block(
			exprStmt(assign(member(id("this"), "name"), id("name"))))),
		methodDecl("speak", []string{"this"}, block(
			ret(bin(ast.OpPlus, member(id("this"), "name"), slit(" makes a sound"))))),
	)
	dog := classDecl("Dog", "Animal",
		methodDecl("speak", []string{"this"}, block(
			ret(bin(ast.OpPlus, call(superExpr("speak")), slit("!"))))),
	)
	prog := ns(
		animal,
		dog,
		varDecl("d", call(id("Dog"), slit("Rex"))),
		varDecl("greeting", call(member(id("d"), "speak"))),
	)
	vmInst, _, err := runProgram(t, prog)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	greeting := global(t, vmInst, "greeting")
	got := vm.Stringify(greeting, vmInst.Strings)
	want := "Rex makes a sound!"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

// TestConstructorReturnsReceiver checks that `init` need not (and here
// does not) explicitly return anything: construction still yields the
// new instance, not init's own implicit null.
func TestConstructorReturnsReceiver(t *testing.T) {
	point := classDecl("Point", "",
		methodDecl("init", []string{"this", "x", "y"}, block(
			exprStmt(assign(member(id("this"), "x"), id("x"))),
			exprStmt(assign(member(id("this"), "y"), id("y"))))),
		methodDecl("sum", []string{"this"}, block(
			ret(bin(ast.OpPlus, member(id("this"), "x"), member(id("this"), "y"))))),
	)
	prog := ns(
		point,
		varDecl("p", call(id("Point"), ilit(3), ilit(4))),
		ret(call(member(id("p"), "sum"))),
	)
	vmInst, result, err := runProgram(t, prog)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !result.IsInt() || result.Int() != 7 {
		t.Fatalf("expected 7, got %s", vm.Stringify(result, nil))
	}
	p := global(t, vmInst, "p")
	if got := vm.Stringify(p, vmInst.Strings); got != "<instance of Point>" {
		t.Fatalf("expected p to stringify as an instance, got %q", got)
	}
}

// TestCompileErrorsAreCollectedNotFirstOnly checks that Compile doesn't
// stop at the first diagnostic: a class that inherits from itself and an
// out-of-class `super` are two independent compile-time errors, and both
// should surface from one call.
func TestCompileErrorsAreCollectedNotFirstOnly(t *testing.T) {
	prog := ns(
		exprStmt(superExpr("speak")),
		classDecl("Loopy", "Loopy"),
	)
	vmInst := vm.NewVM()
	_, err := Compile(prog, vmInst, "test")
	if err == nil {
		t.Fatalf("expected compile errors")
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		t.Fatalf("expected an errors.Join result, got %T", err)
	}
	if got := len(joined.Unwrap()); got != 2 {
		t.Fatalf("expected 2 collected errors, got %d: %v", got, err)
	}
}

// TestCallingANativeFunction exercises the native ABI end to end: a global
// bound by RegisterStandardLibrary is an ordinary callable Value from the
// compiled program's point of view, dispatched through the same `Call`
// opcode as any script-defined function.
func TestCallingANativeFunction(t *testing.T) {
	// return abs(0 - 5);
	prog := ns(ret(call(id("abs"), bin(ast.OpMinus, ilit(0), ilit(5)))))
	vmInst := vm.NewVM()
	vmInst.RegisterStandardLibrary()
	fn, err := Compile(prog, vmInst, "test")
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	result, err := vmInst.Run(fn)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !result.IsInt() || result.Int() != 5 {
		t.Fatalf("expected abs(-5) == 5, got %s", vm.Stringify(result, nil))
	}
}

// TestGCStressProducesIdenticalResult runs the closure-capture scenario
// twice, once under normal GC pacing and once with Heap.Stress forcing a
// collection on every allocation, and requires identical output: nothing
// a live compiler root or open upvalue needs should ever get swept.
func TestGCStressProducesIdenticalResult(t *testing.T) {
	build := func() *ast.Namespace {
		body := block(
			varDecl("captured", id("i")),
			funcDecl("get", nil, block(ret(id("captured")))),
			ifStmt(bin(ast.OpEquals, id("i"), ilit(0)), block(exprStmt(assign(id("a"), id("get")))), nil),
			ifStmt(bin(ast.OpEquals, id("i"), ilit(1)), block(exprStmt(assign(id("b"), id("get")))), nil),
			ifStmt(bin(ast.OpEquals, id("i"), ilit(2)), block(exprStmt(assign(id("c"), id("get")))), nil),
		)
		return ns(
			varDecl("a", nullLit()),
			varDecl("b", nullLit()),
			varDecl("c", nullLit()),
			forStmt(
				varDecl("i", ilit(0)),
				bin(ast.OpLessThan, id("i"), ilit(3)),
				assign(id("i"), bin(ast.OpPlus, id("i"), ilit(1))),
				body,
			),
			ret(bin(ast.OpPlus,
				bin(ast.OpMultiply, call(id("a")), ilit(100)),
				bin(ast.OpPlus, bin(ast.OpMultiply, call(id("b")), ilit(10)), call(id("c"))))),
		)
	}

	vmNormal := vm.NewVM()
	fnNormal, err := Compile(build(), vmNormal, "test")
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	normalResult, err := vmNormal.Run(fnNormal)
	if err != nil {
		t.Fatalf("run error (normal): %v", err)
	}

	vmStress := vm.NewVM()
	vmStress.Heap.Stress = true
	fnStress, err := Compile(build(), vmStress, "test")
	if err != nil {
		t.Fatalf("compile error under stress: %v", err)
	}
	stressResult, err := vmStress.Run(fnStress)
	if err != nil {
		t.Fatalf("run error (stress): %v", err)
	}

	if normalResult.Int() != stressResult.Int() {
		t.Fatalf("stress GC changed the result: normal=%d stress=%d", normalResult.Int(), stressResult.Int())
	}
}
