package trace

import (
	"sync"

	"github.com/wippyai/cppsim/sim"
)

// Recorder is a sim.Observer that keeps the records of the current run.
// A cleared event discards what was recorded, so after a backward step the
// recorder holds only the replayed run.
type Recorder struct {
	mu      sync.Mutex
	filter  func(sim.Event) bool
	records []Record
}

// NewRecorder returns a recorder keeping the events filter accepts. A nil
// filter keeps everything.
func NewRecorder(filter func(sim.Event) bool) *Recorder {
	return &Recorder{filter: filter}
}

// Diagnostics keeps only diagnostic events.
func Diagnostics(e sim.Event) bool { return e.IsDiagnostic() }

func (r *Recorder) OnEvent(e sim.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.Type == sim.EventCleared {
		r.records = r.records[:0]
		return
	}
	if r.filter != nil && !r.filter(e) {
		return
	}
	r.records = append(r.records, NewRecord(e))
}

// Records returns a copy of the recorded events.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Len returns the number of records.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Trace builds a trace of the recorded events.
func (r *Recorder) Trace(program string, opts sim.Options) *Trace {
	return &Trace{
		Program: program,
		Seed:    opts.Seed,
		Input:   opts.Input,
		Records: r.Records(),
	}
}
