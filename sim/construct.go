package sim

import (
	"github.com/wippyai/cppsim/memory"
	"github.com/wippyai/cppsim/value"
)

// Phase is where an instance is in the two-phase stepping protocol.
type Phase uint8

const (
	// PhaseExpanding instances still have children to push.
	PhaseExpanding Phase = iota
	// PhaseActing instances are ready for their stepForward.
	PhaseActing
	// PhaseDone instances have been popped.
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseExpanding:
		return "expanding"
	case PhaseActing:
		return "acting"
	}
	return "done"
}

// StackType tags an instance with the granularity it runs at.
type StackType uint8

const (
	StackExpression StackType = iota
	StackStatement
	StackFunction
	StackCall
	StackInitializer
	StackMain
)

func (t StackType) String() string {
	switch t {
	case StackExpression:
		return "expression"
	case StackStatement:
		return "statement"
	case StackFunction:
		return "function"
	case StackCall:
		return "call"
	case StackInitializer:
		return "initializer"
	}
	return "main"
}

// Construct is a node of the compiled construct tree. The simulation drives
// it through two callbacks:
//
// upNext is called while the instance is on top of the stack and expanding.
// It pushes children that must run first, or pops the instance when nothing
// observable remains, and returns true to be looked at again. It returns
// false once the instance is ready to act.
//
// stepForward performs the construct's effect. It either pops the instance
// or leaves it on the stack (possibly under new children) to be expanded
// again.
type Construct interface {
	StackType() StackType
	Describe() string
	upNext(s *Simulation, in *Instance) bool
	stepForward(s *Simulation, in *Instance)
}

// Result is the evaluation result of an expression instance: an object for
// lvalues (and class prvalues held in temporaries), a value otherwise.
type Result struct {
	Object *memory.Object
	Value  value.Value
	// checked is set when the access that produced Object already reported
	// its problems.
	checked bool
}

// Instance is the live counterpart of one construct during one execution.
// Instances form a tree through parent and children, and a stack in the
// simulation's push order.
type Instance struct {
	model    Construct
	parent   *Instance
	fn       *Instance
	stmt     *Instance
	children []*Instance

	// Function instances.
	frame    *memory.Frame
	receiver *memory.Object
	ret      *memory.Object
	refRet   *memory.Object
	returned bool

	// Scope instances: objects declared in the scope in construction order,
	// and objects waiting for their lifetime to end, last first.
	locals  []*memory.Object
	dying   []*memory.Object
	unwound int

	// Per-construct progress.
	target *memory.Object
	callee *Instance
	temps  []*memory.Object
	result Result
	stage  int
	index  int

	id              uint64
	phase           Phase
	pauseWhenUpNext bool
}

func (in *Instance) Model() Construct      { return in.model }
func (in *Instance) Parent() *Instance     { return in.parent }
func (in *Instance) Children() []*Instance { return in.children }
func (in *Instance) Phase() Phase          { return in.phase }
func (in *Instance) ID() uint64            { return in.id }
func (in *Instance) Result() Result        { return in.result }
func (in *Instance) StackType() StackType  { return in.model.StackType() }

// Frame returns the memory frame of the function this instance runs in.
func (in *Instance) Frame() *memory.Frame {
	if in.fn == nil {
		return nil
	}
	return in.fn.frame
}

// SetPauseWhenUpNext asks an auto-run or Start to stop the next time this
// instance is expanded.
func (in *Instance) SetPauseWhenUpNext() {
	in.pauseWhenUpNext = true
}

func (in *Instance) String() string {
	return in.model.Describe()
}

// child returns the i-th child pushed by this instance.
func (in *Instance) child(i int) *Instance {
	return in.children[i]
}

func (in *Instance) last() *Instance {
	return in.children[len(in.children)-1]
}

// resetChildren forgets finished children between loop iterations.
func (in *Instance) resetChildren() {
	clear(in.children)
	in.children = in.children[:0]
}

func (in *Instance) ancestor(match func(*Instance) bool) *Instance {
	for a := in; a != nil; a = a.parent {
		if match(a) {
			return a
		}
	}
	return nil
}
