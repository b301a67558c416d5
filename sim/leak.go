package sim

import (
	"go.uber.org/zap"

	"github.com/wippyai/cppsim/memory"
	"github.com/wippyai/cppsim/types"
	"github.com/wippyai/cppsim/value"
)

// checkLeaks walks everything reachable from the roots and flags heap objects
// that were not reached. Roots are statics, live frames, live temporaries,
// allocations not yet stored anywhere and the results held by stack
// instances.
func (s *Simulation) checkLeaks() {
	heap := s.mem.Heap().Objects()
	if len(heap) == 0 {
		return
	}

	w := walker{mem: s.mem, seen: make(map[*memory.Object]bool)}
	for _, h := range s.statics {
		if obj, ok := s.mem.Arena().Get(h); ok {
			w.add(obj)
		}
	}
	for _, f := range s.mem.Stack().Frames() {
		for _, obj := range f.Objects() {
			w.add(obj)
		}
		for _, obj := range f.References() {
			w.add(obj)
		}
	}
	for _, obj := range s.mem.Temporaries().Objects() {
		w.add(obj)
	}
	for _, p := range s.pending {
		w.add(p.obj)
	}
	for _, in := range s.stack {
		w.addResult(in.result)
		for _, c := range in.children {
			w.addResult(c.result)
		}
	}
	w.run()

	for _, obj := range heap {
		reached := w.seen[obj]
		switch {
		case !reached && !obj.IsLeaked():
			obj.SetLeaked(true)
			Logger().Debug("leak", zap.String("object", obj.Describe()), zap.Int("step", s.stepsTaken))
			s.emit(Event{Type: EventLeaked, Object: obj, Severity: SeverityMemoryLeak,
				Message: obj.Describe() + " can no longer be reached and was never deleted"})
		case reached && obj.IsLeaked():
			obj.SetLeaked(false)
			s.emit(Event{Type: EventUnleaked, Object: obj})
		}
	}
}

// walker is a breadth-first reachability walk over complete objects.
type walker struct {
	mem   *memory.Memory
	seen  map[*memory.Object]bool
	queue []*memory.Object
}

func (w *walker) add(obj *memory.Object) {
	if obj == nil || obj.IsAnonymous() || !obj.IsAlive() {
		return
	}
	obj = obj.Complete()
	if w.seen[obj] {
		return
	}
	w.seen[obj] = true
	w.queue = append(w.queue, obj)
}

func (w *walker) addResult(r Result) {
	w.add(r.Object)
	w.addPointer(r.Value)
}

// addPointer adds the target of a pointer value. An array pointer reaches
// the whole array it was derived from.
func (w *walker) addPointer(v value.Value) {
	if v.Type() == nil || !v.IsValid() || !types.IsPointer(v.Type()) || v.IsNull() {
		return
	}
	if ap, ok := v.Type().(types.ArrayPointer); ok {
		if arr, ok := w.mem.Arena().Get(memory.Handle(ap.Origin.Handle)); ok {
			w.add(arr)
			return
		}
	}
	w.add(w.mem.GetObject(v))
}

func (w *walker) run() {
	for len(w.queue) > 0 {
		obj := w.queue[0]
		w.queue = w.queue[1:]
		w.visit(obj)
	}
}

func (w *walker) visit(obj *memory.Object) {
	if sub := obj.Subobjects(); len(sub) > 0 {
		for _, c := range sub {
			w.visit(c)
		}
		return
	}
	if types.IsPointer(obj.Type()) {
		w.addPointer(obj.PeekValue())
	}
}
