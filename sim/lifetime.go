package sim

import (
	"github.com/wippyai/cppsim/memory"
	"github.com/wippyai/cppsim/types"
)

// scopeOwner returns the instance whose exit ends the lifetime of objects
// declared under in: the innermost block, for statement, function or the
// program itself for statics.
func scopeOwner(in *Instance) *Instance {
	return in.ancestor(func(a *Instance) bool {
		switch m := a.model.(type) {
		case *Block:
			return !m.inline
		case *For, *FunctionDef, *mainCall:
			return true
		}
		return false
	})
}

// constructed records obj as declared in the scope of in. Objects are
// destroyed in reverse order of construction when the scope is left.
func (s *Simulation) constructed(in *Instance, obj *memory.Object) {
	owner := scopeOwner(in)
	if owner == nil {
		return
	}
	for _, o := range owner.locals {
		if o == obj {
			return
		}
	}
	owner.locals = append(owner.locals, obj)
}

// begin revives a local whose lifetime ended when its scope was last left,
// as happens to a declaration in a loop body.
func (s *Simulation) begin(obj *memory.Object) {
	if !obj.IsAlive() {
		s.mem.AllocateObject(obj, obj.Address())
	}
}

// exitScope hands in's own locals to unwind. It returns true while
// destructor calls are pending.
func (s *Simulation) exitScope(in *Instance) bool {
	if len(in.locals) > 0 {
		in.dying = append(in.dying, in.locals...)
		in.locals = nil
	}
	return s.unwind(in)
}

// unwind ends the lifetimes of in's dying objects, last first. Class
// objects (and class array elements, in reverse) get a destructor call
// pushed under in first; unwind returns true when it pushed one. Automatic
// objects are then deallocated; statics keep their storage.
func (s *Simulation) unwind(in *Instance) bool {
	ended := false
	for len(in.dying) > 0 {
		obj := in.dying[len(in.dying)-1]
		if parts := s.destructible(obj); in.unwound < len(parts) {
			part := parts[len(parts)-1-in.unwound]
			in.unwound++
			s.pushCall(in, s.classDef(part.Type()).dtorCall, part)
			return true
		}
		in.dying = in.dying[:len(in.dying)-1]
		in.unwound = 0
		if obj.Kind() == memory.KindAutomatic {
			s.mem.Deallocate(obj)
			ended = true
		}
	}
	if ended {
		s.checkLeaks()
	}
	return false
}

// destructible returns the parts of obj that have a destructor, in
// construction order.
func (s *Simulation) destructible(obj *memory.Object) []*memory.Object {
	if !obj.IsAlive() {
		return nil
	}
	if arr, ok := obj.Type().(types.Array); ok {
		if cd := s.classDef(arr.Elem); cd != nil && cd.dtorCall != nil {
			return obj.Elements()
		}
		return nil
	}
	if cd := s.classDef(obj.Type()); cd != nil && cd.dtorCall != nil {
		return []*memory.Object{obj}
	}
	return nil
}

// jump pops everything above target, as break, continue and return do.
// The locals of the scopes left on the way are handed to target, innermost
// last, so that target destroys them before it continues.
func (s *Simulation) jump(from, target *Instance) {
	var scopes []*Instance
	for a := from.parent; a != nil && a != target; a = a.parent {
		if len(a.locals) > 0 {
			scopes = append(scopes, a)
		}
	}
	for i := len(scopes) - 1; i >= 0; i-- {
		target.dying = append(target.dying, scopes[i].locals...)
		scopes[i].locals = nil
	}
	s.popTo(target)
}
