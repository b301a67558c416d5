// Package sim runs C++ construct trees one primitive step at a time.
//
// A Program is assembled with a Builder, which resolves names through the
// scope package, picks overloads and inserts the implicit conversions. A
// Simulation executes the program on a memory.Memory and reports what
// happens as Events to its observers.
//
// Each construct is driven in two phases. upNext pushes the subconstructs
// that must run first (or pops the construct when it has nothing left to
// do); stepForward performs the construct's own effect. A step is a single
// stepForward of the instance on top of the stack.
//
// Problems in the simulated program (uninitialized reads, dangling pointers,
// out-of-bounds accesses, leaks) are diagnostics: events with a Severity.
// They never stop the run. Only an internal fault, a panic inside the
// engine, makes a run terminal until the next Start.
package sim
