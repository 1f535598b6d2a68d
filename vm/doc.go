// Package vm implements the ember virtual machine.
//
// This package contains:
//   - NaN-boxed value representation
//   - Object heap and tracing garbage collector
//   - Class/instance member dispatch
//   - Bytecode interpreter and calling convention
//   - Native function ABI
package vm
