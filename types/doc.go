// Package types models the C++ types understood by the simulation engine.
//
// Types are small comparable values except for class layouts, which are shared
// through *ClassInfo. Top-level const is carried by each type and ignored by
// Same; pointer bounds and array provenance are carried by ArrayPointer so that
// the memory layer can stay a plain byte store.
//
//	intPtr := types.Pointer{Elem: types.Int{}}
//	arr := types.Array{Elem: types.Int{}, Length: 4}
//	types.Same(intPtr, types.Pointer{Elem: types.Int{Const: false}}) // true
package types
