package sim

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/cppsim/memory"
	"github.com/wippyai/cppsim/value"
)

// EventType identifies a simulation notification.
type EventType uint8

const (
	EventStarted EventType = iota
	EventCleared
	EventPushed
	EventPopped
	EventUpNext
	EventEvaluated
	EventAllocated
	EventDeallocated
	EventValueWritten
	EventValueRead
	EventAlert
	EventCrash
	EventExplain
	EventLeaked
	EventUnleaked
	EventOutput
	EventAtEnded
)

var eventNames = [...]string{
	EventStarted:      "started",
	EventCleared:      "cleared",
	EventPushed:       "pushed",
	EventPopped:       "popped",
	EventUpNext:       "upNext",
	EventEvaluated:    "evaluated",
	EventAllocated:    "allocated",
	EventDeallocated:  "deallocated",
	EventValueWritten: "valueWritten",
	EventValueRead:    "valueRead",
	EventAlert:        "alert",
	EventCrash:        "crash",
	EventExplain:      "explain",
	EventLeaked:       "leaked",
	EventUnleaked:     "unleaked",
	EventOutput:       "output",
	EventAtEnded:      "atEnded",
}

func (t EventType) String() string {
	if int(t) < len(eventNames) {
		return eventNames[t]
	}
	return "event(" + strconv.Itoa(int(t)) + ")"
}

// Severity classifies a diagnostic.
type Severity uint8

const (
	SeverityNone Severity = iota
	SeverityUndefinedBehavior
	SeverityUnspecifiedBehavior
	SeverityAssertionFailure
	SeverityCrash
	SeverityMemoryLeak
)

func (s Severity) String() string {
	switch s {
	case SeverityUndefinedBehavior:
		return "undefined behavior"
	case SeverityUnspecifiedBehavior:
		return "unspecified behavior"
	case SeverityAssertionFailure:
		return "assertion failure"
	case SeverityCrash:
		return "crash"
	case SeverityMemoryLeak:
		return "memory leak"
	}
	return ""
}

// Event is a notification emitted by a running simulation. Instance is set
// for stack events and diagnostics raised by a construct; Object and Value
// for memory events.
type Event struct {
	Instance *Instance
	Object   *memory.Object
	Value    value.Value
	Message  string
	Type     EventType
	Severity Severity
	Step     int
}

// String renders the event without pointer identities, so that two runs of
// the same program produce identical strings.
func (e Event) String() string {
	s := fmt.Sprintf("%d %s", e.Step, e.Type)
	if e.Instance != nil {
		s += " " + e.Instance.model.Describe()
	}
	if e.Object != nil {
		s += " " + e.Object.String()
	}
	if e.Value.Type() != nil {
		s += " = " + e.Value.String()
	}
	if e.Severity != SeverityNone {
		s += " [" + e.Severity.String() + "]"
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	return s
}

// IsDiagnostic reports whether the event reports a problem in the program.
func (e Event) IsDiagnostic() bool {
	return e.Severity != SeverityNone
}

// Observer receives simulation events.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

type subscription struct {
	observer Observer
	id       uint64
}

// Subscribe adds an observer and returns a function that removes it again.
func (s *Simulation) Subscribe(o Observer) (unsubscribe func()) {
	s.nextObserver++
	id := s.nextObserver
	s.observers = append(s.observers, subscription{observer: o, id: id})
	return func() {
		for i, sub := range s.observers {
			if sub.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

func (s *Simulation) emit(e Event) {
	if s.muted {
		return
	}
	e.Step = s.stepsTaken
	for _, sub := range s.observers {
		sub.observer.OnEvent(e)
	}
}

// OnMemoryEvent forwards memory notifications to the simulation's observers.
func (s *Simulation) OnMemoryEvent(me memory.Event) {
	var t EventType
	switch me.Type {
	case memory.EventAllocated:
		t = EventAllocated
	case memory.EventDeallocated:
		t = EventDeallocated
	case memory.EventValueWritten:
		t = EventValueWritten
	case memory.EventValueRead:
		t = EventValueRead
	default:
		return
	}
	s.emit(Event{Type: t, Object: me.Object, Value: me.Value})
}

func (s *Simulation) diagnose(in *Instance, sev Severity, format string, args ...any) {
	t := EventAlert
	if sev == SeverityCrash {
		t = EventCrash
	}
	msg := fmt.Sprintf(format, args...)
	Logger().Debug("diagnostic", zap.Stringer("severity", sev), zap.String("message", msg), zap.Int("step", s.stepsTaken))
	s.emit(Event{Type: t, Instance: in, Severity: sev, Message: msg})
}

func (s *Simulation) explain(in *Instance, format string, args ...any) {
	s.emit(Event{Type: EventExplain, Instance: in, Message: fmt.Sprintf(format, args...)})
}
