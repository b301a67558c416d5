package trace

import (
	"path/filepath"
	"testing"

	"github.com/wippyai/cppsim/errors"
	"github.com/wippyai/cppsim/sim"
	"github.com/wippyai/cppsim/types"
)

func leakyProgram(t *testing.T) *sim.Program {
	t.Helper()
	b := sim.NewBuilder()
	m := b.Function("main", types.Int{})
	m.Declare("s", types.Int{}, m.Op("%", m.Rand(), m.Int(10)))
	m.Block(func(inner *sim.BlockBuilder) {
		inner.Declare("p", types.Pointer{Elem: types.Int{}}, inner.New(types.Int{}, inner.Name("s")))
	})
	m.Cout(m.Name("s"))
	m.Return(m.Int(0))
	p, err := b.Program()
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func record(t *testing.T, p *sim.Program, opts sim.Options, filter func(sim.Event) bool) *Trace {
	t.Helper()
	s, err := sim.New(p, opts)
	if err != nil {
		t.Fatal(err)
	}
	rec := NewRecorder(filter)
	s.Subscribe(rec)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.StepForward(10_000); err != nil {
		t.Fatal(err)
	}
	return rec.Trace("leaky", opts)
}

func TestDeterministicDigest(t *testing.T) {
	p := leakyProgram(t)
	a := record(t, p, sim.Options{Seed: 9}, nil)
	b := record(t, p, sim.Options{Seed: 9}, nil)

	if len(a.Records) == 0 {
		t.Fatal("nothing recorded")
	}
	if i := Diff(a, b); i != -1 {
		t.Fatalf("traces differ at %d: %s vs %s", i, a.Records[i], b.Records[i])
	}
	da, err := Digest(a)
	if err != nil {
		t.Fatal(err)
	}
	db, err := Digest(b)
	if err != nil {
		t.Fatal(err)
	}
	if da != db {
		t.Errorf("digests differ: %s vs %s", da, db)
	}
}

func TestRoundTrip(t *testing.T) {
	tr := record(t, leakyProgram(t), sim.Options{Seed: 1}, nil)
	path := filepath.Join(t.TempDir(), "run.cbor")
	if err := WriteFile(path, tr); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Program != "leaky" || got.Seed != 1 {
		t.Errorf("header = %q/%d", got.Program, got.Seed)
	}
	if i := Diff(tr, got); i != -1 {
		t.Errorf("decoded trace differs at record %d", i)
	}
}

func TestDiagnosticsFilter(t *testing.T) {
	tr := record(t, leakyProgram(t), sim.Options{Seed: 1}, Diagnostics)
	if len(tr.Records) != 1 {
		t.Fatalf("records = %v, want one leak", tr.Records)
	}
	if r := tr.Records[0]; r.Type != "leaked" || r.Severity != "memory leak" {
		t.Errorf("record = %s", r)
	}
}

func TestRecorderClearedOnReplay(t *testing.T) {
	s, err := sim.New(leakyProgram(t), sim.Options{Seed: 1})
	if err != nil {
		t.Fatal(err)
	}
	rec := NewRecorder(nil)
	s.Subscribe(rec)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.StepForward(5); err != nil {
		t.Fatal(err)
	}
	if err := s.StepBackward(5); err != nil {
		t.Fatal(err)
	}
	recs := rec.Records()
	if len(recs) != 1 || recs[0].Type != "started" {
		t.Errorf("records after replay = %v, want only started", recs)
	}
}

func TestDiff(t *testing.T) {
	a := &Trace{Records: []Record{{Step: 1, Type: "pushed"}, {Step: 2, Type: "popped"}}}
	b := &Trace{Records: []Record{{Step: 1, Type: "pushed"}, {Step: 2, Type: "evaluated"}}}
	c := &Trace{Records: a.Records[:1]}

	if got := Diff(a, a); got != -1 {
		t.Errorf("Diff(a, a) = %d", got)
	}
	if got := Diff(a, b); got != 1 {
		t.Errorf("Diff(a, b) = %d, want 1", got)
	}
	if got := Diff(a, c); got != 1 {
		t.Errorf("Diff(a, c) = %d, want 1", got)
	}
}

func TestUnmarshalError(t *testing.T) {
	_, err := Unmarshal([]byte{0xff, 0x00})
	if !errors.Is(err, errors.PhaseTrace, errors.KindInvalidData) {
		t.Errorf("err = %v", err)
	}
}
