// Package cppsim provides a stepping simulation engine for a teaching subset
// of C++.
//
// The engine executes an already-typed construct tree one primitive action at
// a time. Every address, allocation and pointer bounds check is modeled over a
// flat byte store, so the engine can pause, step forward, step over or out,
// replay backwards, and report unsafe behavior (uninitialized reads, dangling
// pointers, out-of-bounds access, leaks) as events instead of crashing.
//
// # Architecture Overview
//
//	cppsim/         Root package with the ByteStore interface
//	├── types/      C++ type model, class layouts, conversion ranks
//	├── value/      Immutable tagged scalars and operators
//	├── memory/     Regions, objects, frames, stack, heap, temporaries
//	├── scope/      Name lookup, overload sets, class name hiding
//	├── sim/        Entities, constructs, stepping engine, leak detector
//	├── loader/     YAML program descriptions to construct trees
//	├── trace/      CBOR event traces for replay and determinism checks
//	├── config/     TOML configuration
//	└── errors/     Structured error types
//
// # Quick Start
//
//	b := sim.NewBuilder()
//	m := b.Function("main", types.Int{})
//	m.Declare("p", types.Pointer{Elem: types.Int{}}, m.New(types.Int{}, m.Int(3)))
//	m.Delete(m.Name("p"))
//	m.Return(m.Int(0))
//	prog, err := b.Program()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	s, err := sim.New(prog, sim.Options{Seed: 1})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := s.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	if err := s.AutoRun(ctx, sim.AutoRunOptions{}); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(s.Console().Output())
package cppsim
