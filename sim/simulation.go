package sim

import (
	"fmt"
	"math/rand"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/cppsim"
	"github.com/wippyai/cppsim/errors"
	"github.com/wippyai/cppsim/memory"
	"github.com/wippyai/cppsim/types"
	"github.com/wippyai/cppsim/value"
)

// Options configures a Simulation.
type Options struct {
	// Store backs the simulated memory; nil uses a byte slice.
	Store cppsim.ByteStore
	// Input is the initial content of the cin buffer.
	Input string
	// Layout sizes the memory regions; the zero value uses DefaultLayout.
	Layout memory.Layout
	// Seed seeds rand(). Runs with equal seeds are identical.
	Seed int64
}

// fedInput is text fed to cin while the program runs, remembered with the
// step it arrived at so that replays see it at the same point.
type fedInput struct {
	text string
	step int
}

type pendingAllocation struct {
	obj   *memory.Object
	owner *Instance
}

// Simulation runs one program. All state is reset by Start; a Simulation is
// not safe for concurrent use except for Pause.
type Simulation struct {
	program   *Program
	mem       *memory.Memory
	console   *Console
	rng       *rand.Rand
	fault     error
	statics   map[*StaticVariable]memory.Handle
	literals  map[*StringLiteral]memory.Handle
	exitCode  value.Value
	stack     []*Instance
	pending   []pendingAllocation
	observers []subscription
	fed       []fedInput
	opts      Options

	stepsTaken   int
	fedNext      int
	nextID       uint64
	nextObserver uint64
	paused       atomic.Bool
	markerHit    bool
	pauseAtMain  bool
	started      bool
	atEnd        bool
	muted        bool
	inMain       bool
}

// New creates a simulation of program. Call Start before stepping.
func New(program *Program, opts Options) (*Simulation, error) {
	if program == nil || program.main == nil {
		return nil, errors.NotInitialized(errors.PhaseRuntime, "program")
	}
	if opts.Layout == (memory.Layout{}) {
		opts.Layout = memory.DefaultLayout()
	}
	mem, err := memory.New(opts.Layout, opts.Store)
	if err != nil {
		return nil, err
	}
	s := &Simulation{
		program:  program,
		mem:      mem,
		console:  &Console{},
		opts:     opts,
		statics:  make(map[*StaticVariable]memory.Handle),
		literals: make(map[*StringLiteral]memory.Handle),
	}
	mem.Subscribe(s)
	return s, nil
}

func (s *Simulation) Program() *Program      { return s.program }
func (s *Simulation) Memory() *memory.Memory { return s.mem }
func (s *Simulation) StepsTaken() int        { return s.stepsTaken }
func (s *Simulation) AtEnd() bool            { return s.atEnd }
func (s *Simulation) Fault() error           { return s.fault }

// ExitCode is the value main returned, once the program has ended.
func (s *Simulation) ExitCode() value.Value { return s.exitCode }

// Stack returns the execution stack, bottom first.
func (s *Simulation) Stack() []*Instance {
	out := make([]*Instance, len(s.stack))
	copy(out, s.stack)
	return out
}

// Top returns the instance on top of the execution stack.
func (s *Simulation) Top() *Instance {
	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1]
}

// Resolve finds the object e denotes in the context of the top instance.
func (s *Simulation) Resolve(e Entity) (*memory.Object, bool) {
	top := s.Top()
	if top == nil {
		if v, ok := e.(*StaticVariable); ok {
			return v.lookup(s, nil)
		}
		return nil, false
	}
	return e.lookup(s, top)
}

// Start resets all state and runs the program up to the first statement of
// main: string literals and statics are allocated in declaration order, then
// the static initializers run. The step count starts at zero from there.
func (s *Simulation) Start() error {
	s.fed = nil
	return s.restart(false, 0)
}

// Feed appends text to the cin buffer. Input fed at a step is fed again at
// that step when StepBackward replays the run; input fed earlier but not yet
// replayed is discarded.
func (s *Simulation) Feed(text string) {
	s.fed = append(s.fed[:s.fedNext], fedInput{text: text, step: s.stepsTaken})
	s.fedNext = len(s.fed)
	s.console.feed(text)
}

// replayFeeds feeds the remembered input due at the current step.
func (s *Simulation) replayFeeds() {
	for s.fedNext < len(s.fed) && s.fed[s.fedNext].step <= s.stepsTaken {
		s.console.feed(s.fed[s.fedNext].text)
		s.fedNext++
	}
}

func (s *Simulation) restart(mute bool, replay int) error {
	s.fault = nil
	if err := s.reset(); err != nil {
		return err
	}
	prev := s.muted
	s.muted = prev || mute
	defer func() { s.muted = prev }()

	if !s.muted {
		s.emit(Event{Type: EventStarted})
	}
	err := s.guard(func() {
		s.runToMain()
		for i := 0; i < replay && !s.atEnd; i++ {
			s.stepOnce()
		}
	})
	if mute && !prev {
		s.muted = false
		s.emit(Event{Type: EventStarted})
	}
	return err
}

func (s *Simulation) reset() error {
	if s.started {
		s.emit(Event{Type: EventCleared})
	}
	s.started = false
	s.stack = nil
	s.pending = nil
	s.stepsTaken = 0
	s.fedNext = 0
	s.inMain = false
	s.nextID = 0
	s.atEnd = false
	s.markerHit = false
	s.pauseAtMain = false
	s.paused.Store(false)
	s.exitCode = value.Value{}
	clear(s.statics)
	clear(s.literals)
	s.rng = rand.New(rand.NewSource(s.opts.Seed))
	s.console.reset(s.opts.Input)

	prev := s.muted
	s.muted = true
	defer func() { s.muted = prev }()

	if err := s.mem.Reset(); err != nil {
		return err
	}
	for _, lit := range s.program.literals {
		obj := memory.NewObject(memory.KindStringLiteral, "", lit.typ)
		if err := s.mem.AllocateStatic(obj); err != nil {
			return err
		}
		if err := s.mem.WriteBytes(obj.Address(), []byte(lit.text)); err != nil {
			return errors.Wrap(errors.PhaseRuntime, errors.KindInvalidData, err, "write string literal")
		}
		s.literals[lit] = obj.Handle()
	}
	for _, v := range s.program.statics {
		obj := memory.NewObject(memory.KindStatic, v.name, v.typ)
		if err := s.mem.AllocateStatic(obj); err != nil {
			return err
		}
		s.statics[v] = obj.Handle()
	}
	s.started = true
	Logger().Debug("simulation reset",
		zap.Int("literals", len(s.program.literals)),
		zap.Int("statics", len(s.program.statics)),
		zap.Uint32("static_top", s.mem.StaticTop()))
	return nil
}

// runToMain pushes the program instance and runs static initialization
// until main's body is about to run.
func (s *Simulation) runToMain() {
	s.pauseAtMain = true
	s.push(nil, s.program.entry)
	s.settle()
	for !s.markerHit && !s.atEnd {
		s.stepOnce()
	}
	s.markerHit = false
	s.stepsTaken = 0
	s.inMain = true
	s.replayFeeds()
}

// guard runs fn, converting a panic in a construct callback into a terminal
// internal fault.
func (s *Simulation) guard(fn func()) (err error) {
	if s.fault != nil {
		return s.fault
	}
	if !s.started {
		return errors.NotInitialized(errors.PhaseRuntime, "simulation")
	}
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		cause, _ := r.(error)
		s.fault = errors.Internal(fmt.Sprint(r), cause)
		Logger().Error("internal fault", zap.Error(s.fault), zap.Int("step", s.stepsTaken))
		s.emit(Event{Type: EventCrash, Instance: s.Top(), Message: s.fault.Error()})
		err = s.fault
	}()
	fn()
	return nil
}

func (s *Simulation) push(parent *Instance, model Construct) *Instance {
	in := &Instance{model: model, parent: parent, id: s.nextID}
	s.nextID++
	if parent != nil {
		in.fn = parent.fn
		in.stmt = parent.stmt
		parent.children = append(parent.children, in)
	}
	switch model.StackType() {
	case StackExpression, StackCall:
	default:
		in.stmt = in
	}
	s.stack = append(s.stack, in)
	s.emit(Event{Type: EventPushed, Instance: in})
	return in
}

func (s *Simulation) pushFunction(parent *Instance, f *FunctionDef, frame *memory.Frame, recv *memory.Object) *Instance {
	in := s.push(parent, f)
	in.fn = in
	in.frame = frame
	in.receiver = recv
	in.ret = parent.ret
	if f == s.program.main && s.pauseAtMain {
		s.pauseAtMain = false
		in.pauseWhenUpNext = true
	}
	return in
}

// pushCall pushes a call whose receiver is known at run time, such as a
// constructor or destructor call.
func (s *Simulation) pushCall(parent *Instance, c *Call, recv *memory.Object) *Instance {
	in := s.push(parent, c)
	in.target = recv
	return in
}

// pop pops in, which must be the top of the stack.
func (s *Simulation) pop(in *Instance) {
	if s.Top() != in {
		panic(fmt.Sprintf("pop of %s, which is not on top of the stack", in))
	}
	s.popUntil(in)
}

// popUntil pops instances until target has been popped, then checks for
// leaks if a statement or function ended.
func (s *Simulation) popUntil(target *Instance) {
	if target.phase == PhaseDone {
		return
	}
	check := false
	for len(s.stack) > 0 {
		top := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]
		s.popped(top)
		if t := top.model.StackType(); t == StackStatement || t == StackFunction {
			check = true
		}
		if top == target {
			break
		}
	}
	if check {
		s.checkLeaks()
	}
}

// popUntilType pops instances until one of type t has been popped.
func (s *Simulation) popUntilType(t StackType) {
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i].model.StackType() == t {
			s.popUntil(s.stack[i])
			return
		}
	}
}

// popTo pops the instances above target, leaving target on top.
func (s *Simulation) popTo(target *Instance) {
	check := false
	for len(s.stack) > 0 && s.Top() != target {
		top := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]
		s.popped(top)
		if t := top.model.StackType(); t == StackStatement || t == StackFunction {
			check = true
		}
	}
	target.phase = PhaseExpanding
	if check {
		s.checkLeaks()
	}
}

func (s *Simulation) popped(in *Instance) {
	in.phase = PhaseDone
	if in.stmt == in {
		for _, t := range in.temps {
			s.mem.Temporaries().Free(t)
		}
		in.temps = nil
		kept := s.pending[:0]
		for _, p := range s.pending {
			if p.owner != in {
				kept = append(kept, p)
			}
		}
		clear(s.pending[len(kept):])
		s.pending = kept
	}
	if _, isFunc := in.model.(*FunctionDef); isFunc {
		s.mem.Stack().PopFrame()
	}
	s.emit(Event{Type: EventPopped, Instance: in})
}

func (s *Simulation) evaluated(in *Instance) {
	s.emit(Event{Type: EventEvaluated, Instance: in, Object: in.result.Object, Value: in.result.Value})
}

// allocateTemporary places obj in the temporary region, owned by the
// statement in belongs to.
func (s *Simulation) allocateTemporary(in *Instance, obj *memory.Object) bool {
	if err := s.mem.Temporaries().Allocate(obj); err != nil {
		s.diagnose(in, SeverityCrash, "temporary storage exhausted allocating %s", obj.Type())
		return false
	}
	owner := in.stmt
	if owner == nil {
		owner = in
	}
	owner.temps = append(owner.temps, obj)
	return true
}

func (s *Simulation) addPending(in *Instance, obj *memory.Object) {
	owner := in.stmt
	if owner == nil {
		owner = in
	}
	s.pending = append(s.pending, pendingAllocation{obj: obj, owner: owner})
}

func (s *Simulation) dropPending(obj *memory.Object) {
	for i, p := range s.pending {
		if p.obj == obj {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// settle expands the top of the stack until it is ready to act. An empty
// stack ends the simulation.
func (s *Simulation) settle() {
	for len(s.stack) > 0 {
		top := s.stack[len(s.stack)-1]
		if top.phase == PhaseActing {
			return
		}
		if top.pauseWhenUpNext {
			top.pauseWhenUpNext = false
			s.markerHit = true
		}
		s.emit(Event{Type: EventUpNext, Instance: top})
		if !top.model.upNext(s, top) {
			top.phase = PhaseActing
			return
		}
	}
	s.end()
}

func (s *Simulation) end() {
	if s.atEnd {
		return
	}
	s.atEnd = true
	s.emit(Event{Type: EventAtEnded})
}

// stepOnce performs exactly one stepForward and settles the new top.
func (s *Simulation) stepOnce() {
	s.settle()
	top := s.Top()
	if top == nil {
		return
	}
	top.model.stepForward(s, top)
	s.stepsTaken++
	if top.phase != PhaseDone {
		top.phase = PhaseExpanding
	}
	if s.inMain {
		s.replayFeeds()
	}
	s.settle()
}

// StaticObject returns the object of the static variable called name.
func (s *Simulation) StaticObject(name string) (*memory.Object, bool) {
	for _, v := range s.program.statics {
		if v.name == name {
			return v.lookup(s, nil)
		}
	}
	return nil, false
}

// stringType is the array type of a string literal's storage.
func stringType(text string) types.Array {
	return types.Array{Elem: types.Char{Const: true}, Length: uint32(len(text)) + 1}
}
