// Package state implements the per-thread execution state of a Lua-style
// virtual machine.
//
// This package contains:
//   - the growable value stack, addressed by slot index so that growth never
//     invalidates references held by frames, checkpoints or upvalues
//   - the call-frame chain with call-depth and non-yieldable accounting
//   - protected regions (checkpoints), error raising and unwinding
//   - the to-be-closed list
//   - debug hooks (call, return, line, count)
//   - open upvalues and the registry of threads that own them
//   - coroutine resume and yield built on continuations
//
// Bytecode execution is not part of this package. A dispatch loop plugs in
// through the Executor interface and drives frames it is handed.
package state
