// Package compiler lowers a hand-built ast.Namespace into bytecode and
// hands back a closure ready for vm.VM.Run (§4.2). There is no lexer or
// parser here: ast.Namespace is the compiler's only input.
package compiler

import (
	"errors"
	"strconv"

	"github.com/tliron/commonlog"

	"github.com/chazu/ember/ast"
	"github.com/chazu/ember/bytecode"
	"github.com/chazu/ember/vm"
)

var log = commonlog.GetLogger("ember.compiler")

// classScope tracks the enclosing ClassDecl context so SuperExpr can
// verify a superclass is actually in scope (§4.2 Class lowering).
type classScope struct {
	enclosing *classScope
	hasSuper  bool
}

// rootTracker reports every chunk literal a still-compiling Compiler chain
// holds that the ordinary VM root set can't see yet, satisfying §4.5's GC
// root-set requirement across the vm/compiler package boundary.
type rootTracker struct {
	current *Compiler
}

func (rt *rootTracker) roots() []vm.Value {
	var out []vm.Value
	for c := rt.current; c != nil; c = c.enclosing {
		out = append(out, c.pending...)
	}
	return out
}

// Compiler compiles a single function body (or the top-level Namespace) —
// one instance per nested function, linked to its enclosing function's
// Compiler (§4.2).
type Compiler struct {
	vmInst    *vm.VM
	enclosing *Compiler
	tracker   *rootTracker
	source    string

	chunk      *bytecode.Chunk
	locals     []localVar
	upvalues   []upvar
	scopeDepth int

	// pending holds heap-object constants (interned strings, nested
	// FunctionCodes) already added to chunk but not yet reachable through
	// any object this Compiler's caller holds a reference to.
	pending []vm.Value

	classes *classScope

	errs []error
}

func toSpan(s ast.Span) bytecode.Span {
	return bytecode.Span{Line: s.Start.Line, Column: s.Start.Column}
}

func (c *Compiler) error(pos ast.Position, format string, args ...interface{}) {
	c.errs = append(c.errs, newError(pos, format, args...))
}

func (c *Compiler) errorsJoined() error {
	return errors.Join(c.errs...)
}

// addConstValue appends val to the chunk's literal pool, tracking it as a
// pending GC root if it is a heap object, and returns the raw word
// EmitConstant/Emit* expect.
func (c *Compiler) addConstValue(val vm.Value) uint64 {
	if val.IsObject() {
		c.pending = append(c.pending, val)
	}
	return uint64(val)
}

func (c *Compiler) stringValue(s string) vm.Value {
	return c.vmInst.Strings.CopyString(s, c.vmInst.Heap).ToValue()
}

// --- low-level emission helpers ---

func (c *Compiler) emitOp(op bytecode.Opcode, span ast.Span) int {
	return c.chunk.Emit(op, toSpan(span))
}

func (c *Compiler) emitU16Op(op bytecode.Opcode, operand uint16, span ast.Span) {
	c.chunk.Emit(op, toSpan(span))
	c.chunk.EmitU16(operand, toSpan(span))
}

func (c *Compiler) emitByteOp(op bytecode.Opcode, b byte, span ast.Span) {
	c.chunk.Emit(op, toSpan(span))
	c.chunk.EmitByte(b, toSpan(span))
}

func (c *Compiler) emitConstOp(op bytecode.Opcode, val vm.Value, span ast.Span) {
	c.chunk.EmitConstant(op, c.addConstValue(val), toSpan(span))
}

func (c *Compiler) emitJump(op bytecode.Opcode, span ast.Span) int {
	return c.chunk.EmitJump(op, toSpan(span))
}

func (c *Compiler) patchJump(placeholder int, span ast.Span) {
	if err := c.chunk.PatchJump(placeholder); err != nil {
		c.error(span.Start, "%s", err)
	}
}

func (c *Compiler) emitLoop(loopStart int, span ast.Span) {
	if err := c.chunk.EmitLoop(loopStart, toSpan(span)); err != nil {
		c.error(span.Start, "%s", err)
	}
}

// Compile lowers prog into a top-level closure and installs it as the GC's
// compiler-root source for the duration of compilation (§4.5).
func Compile(prog *ast.Namespace, vmInst *vm.VM, source string) (*vm.ObjFunction, error) {
	root := &Compiler{
		vmInst: vmInst,
		source: source,
		chunk:  bytecode.NewChunk(source),
	}
	// Slot 0 is a sentinel empty-name local that keeps the function itself
	// addressable on the stack (§4.2).
	root.locals = append(root.locals, localVar{name: "", depth: 0})

	tracker := &rootTracker{current: root}
	root.tracker = tracker
	vmInst.SetCompilerRoots(tracker.roots)
	defer vmInst.SetCompilerRoots(nil)

	for _, stmt := range prog.Statements {
		root.compileStatement(stmt)
	}
	root.emitOp(bytecode.OpHalt, prog.Span())

	if err := root.errorsJoined(); err != nil {
		return nil, err
	}

	code := vmInst.AllocateFunctionCode(nil, root.chunk, 0, nil)
	return vmInst.AllocateFunction(code), nil
}

// --- statements ---

func (c *Compiler) compileStatement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.BlockStmt:
		c.beginScope()
		for _, inner := range s.Statements {
			c.compileStatement(inner)
		}
		c.endScope(s.Span())
	case *ast.ExprStmt:
		c.compileExpr(s.X)
		c.emitOp(bytecode.OpPop, s.Span())
	case *ast.VarDecl:
		c.compileVarDecl(s)
	case *ast.ReturnStmt:
		if s.Value != nil {
			c.compileExpr(s.Value)
		} else {
			c.emitOp(bytecode.OpNull, s.Span())
		}
		c.emitOp(bytecode.OpReturn, s.Span())
	case *ast.IfStmt:
		c.compileIf(s)
	case *ast.WhileStmt:
		c.compileWhile(s)
	case *ast.ForStmt:
		c.compileFor(s)
	case *ast.FuncDecl:
		c.compileFuncDecl(s)
	case *ast.ClassDecl:
		c.compileClassDecl(s)
	default:
		c.error(stmt.Pos(), "compiler: unhandled statement %T", stmt)
	}
}

func (c *Compiler) compileVarDecl(s *ast.VarDecl) {
	if s.Init != nil {
		c.compileExpr(s.Init)
	} else {
		c.emitOp(bytecode.OpNull, s.Span())
	}
	c.declareAndDefine(s.Name, s.Span())
}

// declareAndDefine creates name as a variable bound to whatever is
// currently on top of the stack: DefineGlobal at global scope, or simply
// leaving the pushed value in its local slot otherwise (§4.2).
func (c *Compiler) declareAndDefine(name string, span ast.Span) {
	if c.scopeDepth == 0 {
		c.emitConstOp(bytecode.OpDefineGlobal, c.stringValue(name), span)
		return
	}
	c.declareLocal(name, span)
	c.markInitialized()
}

func (c *Compiler) compileIf(s *ast.IfStmt) {
	c.compileExpr(s.Cond)
	thenJump := c.emitJump(bytecode.OpJumpIfFalse, s.Span())
	c.emitOp(bytecode.OpPop, s.Span())
	c.compileStatement(s.Then)
	endJump := c.emitJump(bytecode.OpJump, s.Span())
	c.patchJump(thenJump, s.Span())
	c.emitOp(bytecode.OpPop, s.Span())
	if s.Else != nil {
		c.compileStatement(s.Else)
	}
	c.patchJump(endJump, s.Span())
}

func (c *Compiler) compileWhile(s *ast.WhileStmt) {
	loopStart := c.chunk.Len()
	c.compileExpr(s.Cond)
	exitJump := c.emitJump(bytecode.OpJumpIfFalse, s.Span())
	c.emitOp(bytecode.OpPop, s.Span())
	c.compileStatement(s.Body)
	c.emitLoop(loopStart, s.Span())
	c.patchJump(exitJump, s.Span())
	c.emitOp(bytecode.OpPop, s.Span())
}

func (c *Compiler) compileFor(s *ast.ForStmt) {
	c.beginScope()
	if s.Init != nil {
		c.compileStatement(s.Init)
	}

	loopStart := c.chunk.Len()
	var exitJump int
	hasExit := s.Cond != nil
	if hasExit {
		c.compileExpr(s.Cond)
		exitJump = c.emitJump(bytecode.OpJumpIfFalse, s.Span())
		c.emitOp(bytecode.OpPop, s.Span())
	}

	c.compileStatement(s.Body)

	if s.Step != nil {
		c.compileExpr(s.Step)
		c.emitOp(bytecode.OpPop, s.Span())
	}

	c.emitLoop(loopStart, s.Span())
	if hasExit {
		c.patchJump(exitJump, s.Span())
		c.emitOp(bytecode.OpPop, s.Span())
	}
	c.endScope(s.Span())
}

func (c *Compiler) compileFuncDecl(s *ast.FuncDecl) {
	// Create and mark the variable before compiling the body so the
	// function can reference itself (§4.2).
	if c.scopeDepth > 0 {
		c.declareLocal(s.Name, s.Span())
		c.markInitialized()
	}
	c.compileFunctionLiteral(s.Name, s.Params, s.Body, s.Decorators, s.Span())
	if c.scopeDepth == 0 {
		c.emitConstOp(bytecode.OpDefineGlobal, c.stringValue(s.Name), s.Span())
	}
}

// compileClassDecl lowers a class declaration, following clox's own
// convention of re-fetching the class once before the method loop so the
// same sequence works whether or not there's a superclass (§4.2).
func (c *Compiler) compileClassDecl(s *ast.ClassDecl) {
	span := s.Span()
	if c.scopeDepth > 0 {
		c.declareLocal(s.Name, span)
		c.markInitialized()
	}
	c.emitConstOp(bytecode.OpClass, c.stringValue(s.Name), span)
	if c.scopeDepth == 0 {
		c.emitConstOp(bytecode.OpDefineGlobal, c.stringValue(s.Name), span)
	}

	hasSuper := false
	if s.SuperName != "" {
		if s.SuperName == s.Name {
			c.error(span.Start, "class %q cannot inherit from itself", s.Name)
		} else {
			hasSuper = true
			c.compileVariable(s.SuperName, span)
			c.beginScope()
			c.declareLocal("super", span)
			c.markInitialized()

			c.compileVariable(s.Name, span)
			c.emitOp(bytecode.OpInherit, span)
		}
	}

	c.classes = &classScope{enclosing: c.classes, hasSuper: hasSuper}

	c.compileVariable(s.Name, span)
	for _, method := range s.Methods {
		c.compileFunctionLiteral(method.Name, method.Params, method.Body, method.Decorators, method.Span())
		c.emitConstOp(bytecode.OpAttachMethod, c.stringValue(method.Name), method.Span())
	}
	c.emitOp(bytecode.OpPop, span)

	c.classes = c.classes.enclosing
	if hasSuper {
		c.endScope(span)
	}
}

// --- function/decorator lowering ---

// compileFunctionLiteral compiles params/body in a fresh child Compiler,
// applies decorators, and leaves the decorated function value on the
// parent's stack (§4.2 "Function literals and decorators").
func (c *Compiler) compileFunctionLiteral(name string, params []string, body *ast.BlockStmt, decorators []ast.Expression, span ast.Span) *vm.ObjFunctionCode {
	for _, dec := range decorators {
		c.compileExpr(dec)
	}

	child := &Compiler{
		vmInst:  c.vmInst,
		source:  c.source,
		chunk:   bytecode.NewChunk(c.source),
		classes: c.classes,
	}
	child.enclosing = c
	child.tracker = c.tracker
	child.locals = append(child.locals, localVar{name: "", depth: 0})

	// A function body's own top level is scope depth 1, never depth 0
	// ("global"): depth 0 is reserved for the outermost Namespace compiler,
	// matching the teacher's funcCompiler convention of opening a scope
	// before declaring parameters.
	child.beginScope()
	for _, p := range params {
		child.declareLocal(p, span)
		child.markInitialized()
	}

	prevCurrent := c.tracker.current
	c.tracker.current = child
	for _, stmt := range body.Statements {
		child.compileStatement(stmt)
	}
	child.emitOp(bytecode.OpNull, span)
	child.emitOp(bytecode.OpReturn, span)

	c.errs = append(c.errs, child.errs...)

	nameObj := c.vmInst.Strings.CopyString(name, c.vmInst.Heap)
	child.pending = append(child.pending, nameObj.ToValue())
	upvalDescs := make([]vm.UpvalueDesc, len(child.upvalues))
	for i, uv := range child.upvalues {
		upvalDescs[i] = vm.UpvalueDesc{IsLocal: uv.isLocal, Index: uv.index}
	}
	// The child stays the tracker's current compiler until its FunctionCode
	// exists, so a collection inside AllocateFunctionCode still sees the
	// child's literals and name.
	code := c.vmInst.AllocateFunctionCode(nameObj, child.chunk, len(params), upvalDescs)
	c.tracker.current = prevCurrent
	c.pending = append(c.pending, code.ToValue())
	log.Debugf("compiled function %q: %d params, %d locals, %d upvalues", name, len(params), len(child.locals), len(child.upvalues))

	c.emitConstOp(bytecode.OpCloseFunction, code.ToValue(), span)
	c.chunk.EmitByte(byte(len(child.upvalues)), toSpan(span))
	for _, uv := range child.upvalues {
		var isLocalByte byte
		if uv.isLocal {
			isLocalByte = 1
		}
		c.chunk.EmitByte(isLocalByte, toSpan(span))
		c.chunk.EmitU16(uv.index, toSpan(span))
	}

	for range decorators {
		c.emitByteOp(bytecode.OpCall, 1, span)
	}
	return code
}

// --- expressions ---

func (c *Compiler) compileExpr(expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.IntLiteral:
		c.compileIntLiteral(e)
	case *ast.FloatLiteral:
		f, err := strconv.ParseFloat(e.Text, 64)
		if err != nil {
			c.error(e.Pos(), "invalid float literal %q: %s", e.Text, err)
			return
		}
		c.emitConstOp(bytecode.OpConstant, vm.FromFloat64(f), e.Span())
	case *ast.StringLiteral:
		c.emitConstOp(bytecode.OpConstant, c.stringValue(e.Value), e.Span())
	case *ast.BoolLiteral:
		if e.Value {
			c.emitOp(bytecode.OpTrue, e.Span())
		} else {
			c.emitOp(bytecode.OpFalse, e.Span())
		}
	case *ast.NullLiteral:
		c.emitOp(bytecode.OpNull, e.Span())
	case *ast.Identifier:
		c.compileVariable(e.Name, e.Span())
	case *ast.NamespaceExpr:
		c.compileNamespaceExpr(e)
	case *ast.MemberExpr:
		c.compileExpr(e.Left)
		c.emitConstOp(bytecode.OpGetMember, c.stringValue(e.Property), e.Span())
	case *ast.SuperExpr:
		c.compileSuperExpr(e)
	case *ast.BinaryExpr:
		c.compileBinary(e)
	case *ast.UnaryExpr:
		c.compileUnary(e)
	case *ast.AssignExpr:
		c.compileAssign(e)
	case *ast.CallExpr:
		c.compileCall(e)
	case *ast.FuncExpr:
		c.compileFunctionLiteral("", e.Params, e.Body, e.Decorators, e.Span())
	default:
		c.error(expr.Pos(), "compiler: unhandled expression %T", expr)
	}
}

func (c *Compiler) compileIntLiteral(e *ast.IntLiteral) {
	n, err := strconv.ParseInt(e.Text, e.Base, 32)
	if err != nil {
		c.error(e.Pos(), "invalid int literal %q: %s", e.Text, err)
		return
	}
	c.emitConstOp(bytecode.OpConstant, vm.FromInt(int32(n)), e.Span())
}

func (c *Compiler) compileNamespaceExpr(e *ast.NamespaceExpr) {
	name := ""
	for i, part := range e.Path {
		if i > 0 {
			name += "."
		}
		name += part
	}
	c.emitConstOp(bytecode.OpGetGlobal, c.stringValue(name), e.Span())
}

func (c *Compiler) compileSuperExpr(e *ast.SuperExpr) {
	if c.classes == nil || !c.classes.hasSuper {
		c.error(e.Pos(), "'super' used outside a subclass method")
		return
	}
	c.compileVariable("this", e.Span())
	c.compileVariable("super", e.Span())
	c.emitConstOp(bytecode.OpGetSuper, c.stringValue(e.Property), e.Span())
}

func (c *Compiler) compileBinary(e *ast.BinaryExpr) {
	switch e.Operator {
	case ast.OpAnd:
		c.compileExpr(e.Left)
		endJump := c.emitJump(bytecode.OpJumpIfFalse, e.Span())
		c.emitOp(bytecode.OpPop, e.Span())
		c.compileExpr(e.Right)
		c.patchJump(endJump, e.Span())
		return
	case ast.OpOr:
		c.compileExpr(e.Left)
		elseJump := c.emitJump(bytecode.OpJumpIfFalse, e.Span())
		endJump := c.emitJump(bytecode.OpJump, e.Span())
		c.patchJump(elseJump, e.Span())
		c.emitOp(bytecode.OpPop, e.Span())
		c.compileExpr(e.Right)
		c.patchJump(endJump, e.Span())
		return
	}

	c.compileExpr(e.Left)
	c.compileExpr(e.Right)
	switch e.Operator {
	case ast.OpPlus:
		c.emitOp(bytecode.OpAdd, e.Span())
	case ast.OpMinus:
		c.emitOp(bytecode.OpSub, e.Span())
	case ast.OpMultiply:
		c.emitOp(bytecode.OpMul, e.Span())
	case ast.OpDivide:
		c.emitOp(bytecode.OpDiv, e.Span())
	case ast.OpEquals:
		c.emitOp(bytecode.OpEqual, e.Span())
	case ast.OpLessThan:
		c.emitOp(bytecode.OpLessThan, e.Span())
	case ast.OpGreaterThan:
		c.emitOp(bytecode.OpGreaterThan, e.Span())
	default:
		c.error(e.Pos(), "compiler: unsupported binary operator %s", e.Operator)
	}
}

// compileUnary lowers both forms the opcode set has no dedicated
// instruction for: unary minus as `0 - x` (Sub already coerces int/float
// mixes), and logical not as an explicit truthy/falsy branch built from
// JumpIfFalse, matching the Jump+Pop idiom the short-circuit operators use
// (§4.2, §4.3).
func (c *Compiler) compileUnary(e *ast.UnaryExpr) {
	if !e.Not {
		c.emitConstOp(bytecode.OpConstant, vm.FromInt(0), e.Span())
		c.compileExpr(e.Right)
		c.emitOp(bytecode.OpSub, e.Span())
		return
	}

	c.compileExpr(e.Right)
	falseJump := c.emitJump(bytecode.OpJumpIfFalse, e.Span())
	c.emitOp(bytecode.OpPop, e.Span())
	c.emitOp(bytecode.OpFalse, e.Span())
	endJump := c.emitJump(bytecode.OpJump, e.Span())
	c.patchJump(falseJump, e.Span())
	c.emitOp(bytecode.OpPop, e.Span())
	c.emitOp(bytecode.OpTrue, e.Span())
	c.patchJump(endJump, e.Span())
}

func (c *Compiler) compileCall(e *ast.CallExpr) {
	if member, ok := e.Callee.(*ast.MemberExpr); ok {
		c.compileExpr(member.Left)
		for _, arg := range e.Arguments {
			c.compileExpr(arg)
		}
		c.chunk.Emit(bytecode.OpInvoke, toSpan(e.Span()))
		idx := c.chunk.AddConstant(c.addConstValue(c.stringValue(member.Property)))
		c.chunk.EmitU16(idx, toSpan(e.Span()))
		c.chunk.EmitByte(byte(len(e.Arguments)), toSpan(e.Span()))
		return
	}

	c.compileExpr(e.Callee)
	for _, arg := range e.Arguments {
		c.compileExpr(arg)
	}
	c.emitByteOp(bytecode.OpCall, byte(len(e.Arguments)), e.Span())
}

func (c *Compiler) compileAssign(e *ast.AssignExpr) {
	switch target := e.Target.(type) {
	case *ast.Identifier:
		c.compileExpr(e.Value)
		c.compileAssignVariable(target.Name, e.Span())
	case *ast.MemberExpr:
		// SetMember pops the value and peeks the receiver, so the receiver
		// must be pushed first (§4.4 "SetMember").
		c.compileExpr(target.Left)
		c.compileExpr(e.Value)
		c.emitConstOp(bytecode.OpSetMember, c.stringValue(target.Property), e.Span())
	default:
		c.error(e.Pos(), "invalid assignment target %T", target)
	}
}

// --- variable resolution (§4.2) ---

func (c *Compiler) compileVariable(name string, span ast.Span) {
	if idx, ok := c.resolveLocal(name, span); ok {
		c.emitU16Op(bytecode.OpGetLocal, uint16(idx), span)
		return
	}
	if idx, ok := c.resolveUpvalue(name, span); ok {
		c.emitU16Op(bytecode.OpGetUpvalue, uint16(idx), span)
		return
	}
	c.emitConstOp(bytecode.OpGetGlobal, c.stringValue(name), span)
}

func (c *Compiler) compileAssignVariable(name string, span ast.Span) {
	if idx, ok := c.resolveLocal(name, span); ok {
		c.emitU16Op(bytecode.OpSetLocal, uint16(idx), span)
		return
	}
	if idx, ok := c.resolveUpvalue(name, span); ok {
		c.emitU16Op(bytecode.OpSetUpvalue, uint16(idx), span)
		return
	}
	c.emitConstOp(bytecode.OpSetGlobal, c.stringValue(name), span)
}
