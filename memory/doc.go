// Package memory implements the synthetic memory model of the simulation.
//
// A single byte store is divided into four contiguous regions:
//
//	[0, static)                   static storage, allocated upward
//	[static, static+stack)        call stack, frames pushed upward
//	[static+stack, total)         heap, allocated downward from total
//	[total, total+temporary)      temporary objects
//
// Objects are records in an Arena addressed by Handle. Allocation assigns an
// address and marks the object (and its subobjects) alive; deallocation marks
// it dead but keeps the record and the address index so that later accesses
// through dangling pointers can be described rather than crash.
//
// All reads and writes go through Memory.ReadBytes and Memory.WriteBytes and
// are reported to observers:
//
//	mem := memory.New(memory.DefaultLayout(), memory.NewSliceStore(size))
//	mem.Subscribe(observer)
//	obj := memory.NewObject(memory.KindStatic, "g", types.Int{})
//	if err := mem.AllocateStatic(obj); err != nil { ... }
//	obj.WriteValue(value.Int(3))
package memory
