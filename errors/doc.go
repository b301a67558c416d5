// Package errors provides structured error types for the cppsim engine.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: the scope path, the C++ type involved,
// argument types of a failed lookup, and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLookup, errors.KindHidden).
//		Path("Derived", "f").
//		Args("int").
//		Detail("Base::f is hidden by Derived::f").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotFound(errors.PhaseLookup, "name", "x")
//	err := errors.OutOfMemory(errors.PhaseRuntime, "heap", 16)
//
// Runtime diagnostics (undefined behavior, crashes, leaks) are not errors: the
// simulation reports them as events. Errors are reserved for lookups that must
// succeed, malformed inputs, and internal faults that end a run.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
