// Package scope implements compile-time name lookup: nested lexical scopes,
// function overload sets, and class scopes whose base-class chaining follows
// the C++ name-hiding rules.
package scope

import (
	"strings"

	"github.com/wippyai/cppsim/errors"
	"github.com/wippyai/cppsim/types"
)

// Entity is a declared name.
type Entity interface {
	Name() string
}

// Function is an entity that can be overloaded.
type Function interface {
	Entity
	Signature() types.Function
}

// ResultKind classifies a lookup outcome.
type ResultKind uint8

const (
	NotFound ResultKind = iota
	Found
	Overloads
	NoMatch
	Hidden
	Ambiguous
)

func (k ResultKind) String() string {
	switch k {
	case Found:
		return "found"
	case Overloads:
		return "overloads"
	case NoMatch:
		return "no match"
	case Hidden:
		return "hidden"
	case Ambiguous:
		return "ambiguous"
	}
	return "not found"
}

// Result is the outcome of a lookup. Entity is set for Found; Functions for
// Overloads (and for Ambiguous, the tied candidates).
type Result struct {
	Entity    Entity
	Scope     *Scope
	Functions []Function
	Kind      ResultKind
}

// Options narrows a lookup.
type Options struct {
	// ParamTypes, when non-nil, keeps only overloads whose parameter list
	// matches exactly.
	ParamTypes []types.Type
	// IsThisConst excludes non-const member functions.
	IsThisConst bool
	// Own restricts the lookup to this scope (and, for classes, its bases)
	// without climbing to the lexical parent.
	Own bool
}

type binding struct {
	entity    Entity
	functions []Function
}

// Scope maps names to entities. Class scopes additionally chain to the scope
// of their base class.
type Scope struct {
	parent   *Scope
	base     *Scope
	entities map[string]*binding
	name     string
	order    []string
	class    bool
}

// New creates a lexical or namespace scope.
func New(name string, parent *Scope) *Scope {
	return &Scope{name: name, parent: parent, entities: make(map[string]*binding)}
}

// NewClass creates the scope of a class whose base class scope is base (may
// be nil) and whose enclosing scope is parent.
func NewClass(name string, parent, base *Scope) *Scope {
	s := New(name, parent)
	s.class = true
	s.base = base
	return s
}

func (s *Scope) Name() string   { return s.name }
func (s *Scope) Parent() *Scope { return s.parent }
func (s *Scope) Base() *Scope   { return s.base }
func (s *Scope) IsClass() bool  { return s.class }

// QualifiedName joins enclosing scope names, e.g. "A::f".
func (s *Scope) QualifiedName() string {
	var parts []string
	for c := s; c != nil; c = c.parent {
		if c.name != "" {
			parts = append(parts, c.name)
		}
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "::")
}

// Declare adds e to the scope. Functions with distinct signatures join an
// overload set; any other redeclaration is an error.
func (s *Scope) Declare(e Entity) error {
	name := e.Name()
	b, exists := s.entities[name]
	fn, isFunc := e.(Function)

	if !exists {
		b = &binding{}
		if isFunc {
			b.functions = []Function{fn}
		} else {
			b.entity = e
		}
		s.entities[name] = b
		s.order = append(s.order, name)
		return nil
	}

	if !isFunc || b.entity != nil {
		return errors.Redeclared(s.QualifiedName(), name)
	}
	sig := fn.Signature()
	for _, other := range b.functions {
		osig := other.Signature()
		if types.SameParams(osig.Params, sig.Params) && osig.ConstMember == sig.ConstMember {
			return errors.Redeclared(s.QualifiedName(), name)
		}
	}
	b.functions = append(b.functions, fn)
	return nil
}

// Entities returns the non-function entities in declaration order.
func (s *Scope) Entities() []Entity {
	var out []Entity
	for _, name := range s.order {
		if e := s.entities[name].entity; e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Functions returns every function declared in the scope, in declaration order.
func (s *Scope) Functions() []Function {
	var out []Function
	for _, name := range s.order {
		out = append(out, s.entities[name].functions...)
	}
	return out
}

// Lookup resolves name from this scope outward.
func (s *Scope) Lookup(name string, opts Options) Result {
	for c := s; c != nil; c = c.parent {
		r := c.lookupOwn(name, opts)
		if r.Kind != NotFound || opts.Own {
			return r
		}
	}
	return Result{Kind: NotFound}
}

// lookupOwn searches this scope and, for class scopes, the base chain.
func (s *Scope) lookupOwn(name string, opts Options) Result {
	b, declared := s.entities[name]
	if declared {
		r := b.resolve(s, opts)
		if r.Kind != NoMatch {
			return r
		}
		// The name is declared here but nothing is viable. A candidate in
		// a base class is hidden, not considered.
		if s.class && s.base != nil {
			if br := s.base.lookupOwn(name, opts); br.Kind == Found || br.Kind == Overloads {
				return Result{Kind: Hidden, Scope: s, Functions: br.Functions, Entity: br.Entity}
			}
		}
		return r
	}
	if s.class && s.base != nil {
		return s.base.lookupOwn(name, opts)
	}
	return Result{Kind: NotFound}
}

func (b *binding) resolve(s *Scope, opts Options) Result {
	if b.entity != nil {
		return Result{Kind: Found, Entity: b.entity, Scope: s}
	}

	viable := make([]Function, 0, len(b.functions))
	for _, f := range b.functions {
		sig := f.Signature()
		if opts.IsThisConst && !sig.ConstMember {
			continue
		}
		if opts.ParamTypes != nil && !types.SameParams(sig.Params, opts.ParamTypes) {
			continue
		}
		viable = append(viable, f)
	}

	// Prefer the overload whose constness matches the receiver.
	if opts.ParamTypes != nil && len(viable) > 1 {
		var matching []Function
		for _, f := range viable {
			if f.Signature().ConstMember == opts.IsThisConst {
				matching = append(matching, f)
			}
		}
		if len(matching) == 1 {
			viable = matching
		}
	}

	switch {
	case len(viable) == 0:
		return Result{Kind: NoMatch, Scope: s, Functions: b.functions}
	case opts.ParamTypes != nil && len(viable) > 1:
		return Result{Kind: Ambiguous, Scope: s, Functions: viable}
	}
	return Result{Kind: Overloads, Scope: s, Functions: viable}
}

// RequiredLookup is Lookup that turns anything but a unique result into an
// error carrying the scope, the name and the argument types.
func (s *Scope) RequiredLookup(name string, opts Options) (Result, error) {
	r := s.Lookup(name, opts)
	var args []string
	if opts.ParamTypes != nil {
		args = types.Names(opts.ParamTypes)
	}
	path := []string{s.QualifiedName(), name}
	if path[0] == "" {
		path = path[1:]
	}

	switch r.Kind {
	case Found, Overloads:
		return r, nil
	case NoMatch:
		return r, errors.New(errors.PhaseLookup, errors.KindNoMatch).Path(path...).Args(args...).
			Detail("no viable overload of %q among %d candidates", name, len(r.Functions)).Build()
	case Hidden:
		return r, errors.New(errors.PhaseLookup, errors.KindHidden).Path(path...).Args(args...).
			Detail("%q in a base class is hidden by the declaration in %s", name, r.Scope.QualifiedName()).Build()
	case Ambiguous:
		return r, errors.New(errors.PhaseLookup, errors.KindAmbiguous).Path(path...).Args(args...).
			Detail("call to %q is ambiguous between %d overloads", name, len(r.Functions)).Build()
	}
	return r, errors.New(errors.PhaseLookup, errors.KindNotFound).Path(path...).
		Detail("%q was not declared in this scope", name).Build()
}
