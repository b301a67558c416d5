package sim

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StepForward performs up to n primitive steps.
func (s *Simulation) StepForward(n int) error {
	return s.guard(func() {
		for i := 0; i < n && !s.atEnd; i++ {
			s.stepOnce()
		}
	})
}

// StepOver steps until the statement currently executing has finished.
func (s *Simulation) StepOver() error {
	return s.stepUntilPopped(func(in *Instance) bool {
		return in.model.StackType() == StackStatement
	})
}

// StepOut steps until the function currently executing has returned.
func (s *Simulation) StepOut() error {
	return s.stepUntilPopped(func(in *Instance) bool {
		return in.model.StackType() == StackFunction
	})
}

func (s *Simulation) stepUntilPopped(match func(*Instance) bool) error {
	var target *Instance
	for i := len(s.stack) - 1; i >= 0; i-- {
		if match(s.stack[i]) {
			target = s.stack[i]
			break
		}
	}
	if target == nil {
		return s.StepForward(1)
	}
	return s.guard(func() {
		for target.phase != PhaseDone && !s.atEnd {
			s.stepOnce()
		}
	})
}

// StepBackward undoes n steps by restarting and silently replaying the
// steps before them.
func (s *Simulation) StepBackward(n int) error {
	if s.fault != nil {
		return s.fault
	}
	target := max(s.stepsTaken-n, 0)
	Logger().Debug("step backward", zap.Int("from", s.stepsTaken), zap.Int("to", target))
	return s.restart(true, target)
}

// Pause asks a running AutoRun to stop at the next batch boundary. It is the
// one method that may be called from another goroutine.
func (s *Simulation) Pause() {
	s.paused.Store(true)
}

// RunBatch steps until budget has elapsed, the program ends or a pause is
// requested, and returns the number of steps taken.
func (s *Simulation) RunBatch(budget time.Duration) (int, error) {
	return s.runBatch(budget, nil, 0)
}

func (s *Simulation) runBatch(budget time.Duration, pauseIf func(*Simulation) bool, limit int) (int, error) {
	steps := 0
	deadline := time.Now().Add(budget)
	err := s.guard(func() {
		s.markerHit = false
		for !s.atEnd && !s.markerHit && !s.paused.Load() {
			if limit > 0 && s.stepsTaken >= limit {
				return
			}
			s.stepOnce()
			steps++
			if pauseIf != nil && pauseIf(s) {
				s.paused.Store(true)
				return
			}
			if !time.Now().Before(deadline) {
				return
			}
		}
	})
	return steps, err
}

// AutoRunOptions configures AutoRun.
type AutoRunOptions struct {
	// OnFinish is called when the program ends.
	OnFinish func(*Simulation)
	// OnPause is called when the run stops before the end.
	OnPause func(*Simulation)
	// PauseIf is checked after every step; returning true pauses the run.
	PauseIf func(*Simulation) bool
	// Batch is the time budget of one batch. Zero uses 10ms.
	Batch time.Duration
	// After is the delay between batches.
	After time.Duration
	// StepLimit pauses the run once this many steps have been taken.
	StepLimit int
}

// AutoRun runs batches until the program ends, a pause marker is reached,
// PauseIf or Pause requests a pause, the step limit is hit or ctx is done.
// Between batches it yields for After.
func (s *Simulation) AutoRun(ctx context.Context, opts AutoRunOptions) error {
	if opts.Batch <= 0 {
		opts.Batch = 10 * time.Millisecond
	}
	s.paused.Store(false)
	pause := func() {
		if opts.OnPause != nil {
			opts.OnPause(s)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			pause()
			return err
		}
		if _, err := s.runBatch(opts.Batch, opts.PauseIf, opts.StepLimit); err != nil {
			return err
		}
		switch {
		case s.atEnd:
			if opts.OnFinish != nil {
				opts.OnFinish(s)
			}
			return nil
		case s.markerHit, s.paused.Load(), opts.StepLimit > 0 && s.stepsTaken >= opts.StepLimit:
			s.paused.Store(false)
			pause()
			return nil
		}

		if opts.After > 0 {
			t := time.NewTimer(opts.After)
			select {
			case <-ctx.Done():
				t.Stop()
				pause()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
}
