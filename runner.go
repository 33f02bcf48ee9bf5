package atmt

import (
	"context"
	"errors"
)

// Run drives Step until a terminal state is reached, returning that
// state's body output. A cancelled ctx aborts the in-flight Step and is
// treated as a clean user interruption: Run returns (nil, nil) and the
// automaton is left paused, re-runnable with another Run call, matching
// spec.md section 7's "caught by run only, turned into a clean pause".
func (a *Automaton) Run(ctx context.Context) (any, error) {
	if !a.started {
		if err := a.Start(); err != nil {
			return nil, err
		}
	}
	for {
		_, err := a.Step(ctx)
		if err == nil {
			continue
		}

		var term *Terminated
		if errors.As(err, &term) {
			logf(1, a.label, "run finished in %q", term.State)
			return term.Result, nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logf(1, a.label, "interrupted, pausing in %q", a.CurrentState())
			return nil, nil
		}

		return nil, err
	}
}

// Iterator is the facade returned by NewIterator, mirroring spec.md's
// iter(self): each call to Next drives exactly one Step.
type Iterator struct {
	automaton *Automaton
}

// NewIterator starts the automaton if needed and returns an Iterator over
// its Step results.
func (a *Automaton) NewIterator() (*Iterator, error) {
	if !a.started {
		if err := a.Start(); err != nil {
			return nil, err
		}
	}
	return &Iterator{automaton: a}, nil
}

// Next drives one Step and returns its outcome or error.
func (it *Iterator) Next(ctx context.Context) (Outcome, error) {
	return it.automaton.Step(ctx)
}
