package atmt

import (
	"context"

	"github.com/google/uuid"
)

// Worker owns a background automaton run, moving the single cooperative
// driver to its own goroutine. Per spec.md section 5, background mode adds
// no parallelism inside the automaton; it only frees the foreground
// goroutine to interact through I/O pipes.
type Worker struct {
	automaton *Automaton
	cancel    context.CancelFunc
	done      chan struct{}
	result    any
	err       error
}

// RunBackground starts the automaton (if not already started) and runs it
// to completion on a new goroutine, returning immediately with a handle.
func (a *Automaton) RunBackground(ctx context.Context, args ...any) *Worker {
	runCtx, cancel := context.WithCancel(ctx)
	w := &Worker{automaton: a, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(w.done)
		if !a.started {
			if err := a.Start(args...); err != nil {
				w.err = err
				return
			}
		}
		w.result, w.err = a.Run(runCtx)
	}()

	return w
}

// Join blocks until the background run finishes (by termination, error, or
// Cancel) and returns its result.
func (w *Worker) Join() (any, error) {
	<-w.done
	return w.result, w.err
}

// Cancel requests the background run stop at its next poll boundary. The
// run then returns through Worker.Join as a clean interruption.
func (w *Worker) Cancel() {
	w.cancel()
}

// RunID returns the correlation id of the automaton this worker drives.
func (w *Worker) RunID() uuid.UUID {
	return w.automaton.RunID()
}
