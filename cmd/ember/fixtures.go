package main

import (
	"strconv"

	"github.com/chazu/ember/ast"
)

// Source files aren't parsed here (§1: no lexer/parser lives in this
// repository) — a fixture is a pre-built ast.Namespace standing in for
// whatever an external front end would have produced. ember.toml's
// source.entry names one of these by key.
var fixtures = map[string]func() *ast.Namespace{
	"fib":    fibFixture,
	"shapes": shapesFixture,
	"absval": absValFixture,
}

func id(name string) *ast.Identifier { return &ast.Identifier{Name: name} }

func ilit(n int64) *ast.IntLiteral {
	return &ast.IntLiteral{Text: strconv.FormatInt(n, 10), Base: 10}
}

func slit(s string) *ast.StringLiteral { return &ast.StringLiteral{Value: s} }

func block(stmts ...ast.Statement) *ast.BlockStmt { return &ast.BlockStmt{Statements: stmts} }

func ret(e ast.Expression) *ast.ReturnStmt { return &ast.ReturnStmt{Value: e} }

func exprStmt(e ast.Expression) *ast.ExprStmt { return &ast.ExprStmt{X: e} }

func varDecl(name string, init ast.Expression) *ast.VarDecl {
	return &ast.VarDecl{Name: name, Init: init}
}

func call(callee ast.Expression, args ...ast.Expression) *ast.CallExpr {
	return &ast.CallExpr{Callee: callee, Arguments: args}
}

func member(left ast.Expression, prop string) *ast.MemberExpr {
	return &ast.MemberExpr{Left: left, Property: prop}
}

func bin(op ast.Operator, l, r ast.Expression) *ast.BinaryExpr {
	return &ast.BinaryExpr{Left: l, Operator: op, Right: r}
}

func ifStmt(cond ast.Expression, then, els *ast.BlockStmt) *ast.IfStmt {
	return &ast.IfStmt{Cond: cond, Then: then, Else: els}
}

func funcDecl(name string, params []string, body *ast.BlockStmt) *ast.FuncDecl {
	return &ast.FuncDecl{Name: name, Params: params, Body: body}
}

func methodDecl(name string, params []string, body *ast.BlockStmt) *ast.MethodDecl {
	return &ast.MethodDecl{Name: name, Params: params, Body: body}
}

func classDecl(name, super string, methods ...*ast.MethodDecl) *ast.ClassDecl {
	return &ast.ClassDecl{Name: name, SuperName: super, Methods: methods}
}

func ns(stmts ...ast.Statement) *ast.Namespace { return &ast.Namespace{Statements: stmts} }

// fibFixture computes fib(10) recursively and returns it as the process
// exit code:
//
//	def fib(n) {
//	    if (n < 2) { return n; }
//	    return fib(n - 1) + fib(n - 2);
//	}
//	return fib(10);
func fibFixture() *ast.Namespace {
	return ns(
		funcDecl("fib", []string{"n"}, block(
			ifStmt(bin(ast.OpLessThan, id("n"), ilit(2)), block(ret(id("n"))), nil),
			ret(bin(ast.OpPlus,
				call(id("fib"), bin(ast.OpMinus, id("n"), ilit(1))),
				call(id("fib"), bin(ast.OpMinus, id("n"), ilit(2))),
			)),
		)),
		ret(call(id("fib"), ilit(10))),
	)
}

// absValFixture calls the standard-library `abs` native and returns its
// result as the process exit code:
//
//	return abs(0 - 7);
func absValFixture() *ast.Namespace {
	return ns(ret(call(id("abs"), bin(ast.OpMinus, ilit(0), ilit(7)))))
}

// shapesFixture builds a small inheritance hierarchy and stores a
// greeting built through a `super` call in a global, since a non-int
// value can't be the top-level return value:
//
//	class Shape {
//	    init(this, name) { this.name = name; }
//	    describe(this) { return "a " + this.name; }
//	}
//	class Circle : Shape {
//	    describe(this) { return super.describe() + " (round)"; }
//	}
//	let c = Circle("circle");
//	let greeting = c.describe();
func shapesFixture() *ast.Namespace {
	shape := classDecl("Shape", "",
		methodDecl("init", []string{"this", "name"}, block(
			exprStmt(&ast.AssignExpr{Target: member(id("this"), "name"), Value: id("name")}),
		)),
		methodDecl("describe", []string{"this"}, block(
			ret(bin(ast.OpPlus, slit("a "), member(id("this"), "name"))),
		)),
	)
	circle := classDecl("Circle", "Shape",
		methodDecl("describe", []string{"this"}, block(
			ret(bin(ast.OpPlus, call(&ast.SuperExpr{Property: "describe"}), slit(" (round)"))),
		)),
	)
	return ns(
		shape,
		circle,
		varDecl("c", call(id("Circle"), slit("circle"))),
		varDecl("greeting", call(member(id("c"), "describe"))),
	)
}
