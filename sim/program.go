package sim

import (
	"github.com/wippyai/cppsim/scope"
	"github.com/wippyai/cppsim/types"
)

// Program is a checked program ready to simulate. It is immutable once
// built; any number of simulations may run it.
type Program struct {
	global     *scope.Scope
	main       *FunctionDef
	entry      *mainCall
	classes    map[*types.ClassInfo]*ClassDef
	statics    []*StaticVariable
	inits      []Stmt
	literals   []*StringLiteral
	functions  []*FunctionDef
	classOrder []*ClassDef
}

func newProgram() *Program {
	return &Program{
		global:  scope.New("", nil),
		classes: make(map[*types.ClassInfo]*ClassDef),
	}
}

func (p *Program) Global() *scope.Scope       { return p.global }
func (p *Program) Main() *FunctionDef         { return p.main }
func (p *Program) Functions() []*FunctionDef  { return p.functions }
func (p *Program) Classes() []*ClassDef       { return p.classOrder }
func (p *Program) Statics() []*StaticVariable { return p.statics }
func (p *Program) Literals() []*StringLiteral { return p.literals }
func (p *Program) StaticInitializers() []Stmt { return p.inits }

// Class returns the class called name.
func (p *Program) Class(name string) (*ClassDef, bool) {
	for _, c := range p.classOrder {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Function returns the free functions called name.
func (p *Program) Function(name string) []*FunctionDef {
	var out []*FunctionDef
	for _, f := range p.functions {
		if f.name == name && f.class == nil {
			out = append(out, f)
		}
	}
	return out
}
