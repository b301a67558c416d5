package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseLookup,
				Kind:   KindHidden,
				Path:   []string{"Derived", "f"},
				Args:   []string{"int"},
				Type:   "void(double)",
				Detail: "hidden by derived declaration",
			},
			contains: []string{"[lookup]", "hidden", "Derived::f", "(int)", "void(double)", "hidden by derived"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseRuntime,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[runtime]", "out_of_bounds"},
		},
		{
			name: "empty argument list",
			err: &Error{
				Phase: PhaseLookup,
				Kind:  KindNoMatch,
				Path:  []string{"g"},
				Args:  []string{},
			},
			contains: []string{"at g()"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseRuntime,
				Kind:   KindInternal,
				Detail: "step failed",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[runtime]", "internal", "step failed", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLoad,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseLookup,
		Kind:  KindAmbiguous,
		Path:  []string{"f"},
	}

	if !err.Is(&Error{Phase: PhaseLookup, Kind: KindAmbiguous}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseRuntime, Kind: KindAmbiguous}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseLookup, Kind: KindHidden}) {
		t.Error("Is should not match different kind")
	}

	target := &Error{Phase: PhaseLookup, Kind: KindAmbiguous}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseLookup, KindNoMatch).
		Path("A", "f").
		Args("int", "double").
		Type("int(char)").
		Value(42).
		Cause(cause).
		Detail("no viable overload among %d", 2).
		Build()

	if err.Phase != PhaseLookup {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseLookup)
	}
	if err.Kind != KindNoMatch {
		t.Errorf("Kind = %v, want %v", err.Kind, KindNoMatch)
	}
	if len(err.Path) != 2 || err.Path[0] != "A" || err.Path[1] != "f" {
		t.Errorf("Path = %v, want [A f]", err.Path)
	}
	if len(err.Args) != 2 || err.Args[1] != "double" {
		t.Errorf("Args = %v, want [int double]", err.Args)
	}
	if err.Type != "int(char)" {
		t.Errorf("Type = %v, want 'int(char)'", err.Type)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "no viable overload among 2" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("OutOfMemory", func(t *testing.T) {
		err := OutOfMemory(PhaseRuntime, "heap", 1024)
		if err.Kind != KindOutOfMemory {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOutOfMemory)
		}
		if !strings.Contains(err.Detail, "1024") {
			t.Errorf("Detail = %v, should contain size", err.Detail)
		}
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(PhaseRuntime, []string{"arr"}, 10, 5)
		if err.Kind != KindOutOfBounds {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOutOfBounds)
		}
		if err.Value != 10 {
			t.Errorf("Value = %v, want 10", err.Value)
		}
	})

	t.Run("Redeclared", func(t *testing.T) {
		err := Redeclared("main", "x")
		if err.Kind != KindRedeclared || err.Phase != PhaseBuild {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
	})

	t.Run("Internal", func(t *testing.T) {
		cause := errors.New("boom")
		err := Internal("construct panicked", cause)
		if !errors.Is(err, &Error{Phase: PhaseRuntime, Kind: KindInternal}) {
			t.Error("Internal should match runtime/internal")
		}
		if !errors.Is(err, cause) {
			t.Error("Internal should wrap cause")
		}
	})

	t.Run("TypeMismatch", func(t *testing.T) {
		err := TypeMismatch(PhaseLoad, []string{"main", "x"}, "int", "double")
		if err.Type != "double" || !strings.Contains(err.Detail, "int") {
			t.Errorf("got %+v", err)
		}
	})
}
