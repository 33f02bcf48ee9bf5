package atmt

import (
	"fmt"
	"os"
	"sync"
)

// ObjectPipe is a FIFO queue of arbitrary objects whose read side exposes a
// pollable OS file descriptor, so it can sit in the same multiplex set as a
// network socket. It is safe for one concurrent producer and one concurrent
// consumer; higher concurrency must be serialized by the caller.
type ObjectPipe struct {
	mu    sync.Mutex
	queue []any

	r *os.File
	w *os.File
}

// NewObjectPipe allocates a pipe backed by a real OS pipe pair.
func NewObjectPipe() (*ObjectPipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("atmt: failed to create object pipe: %w", err)
	}
	return &ObjectPipe{r: r, w: w}, nil
}

// Send appends obj to the queue and signals the read end. It may block only
// if the OS pipe buffer is full, which is backpressure, not an error.
func (p *ObjectPipe) Send(obj any) error {
	p.mu.Lock()
	p.queue = append(p.queue, obj)
	p.mu.Unlock()
	if _, err := p.w.Write(sentinel[:]); err != nil {
		return fmt.Errorf("atmt: object pipe send: %w", err)
	}
	return nil
}

// Recv reads one sentinel byte and pops one object from the queue. The
// caller must only call Recv after the descriptor has been reported
// readable by a poller; calling it otherwise blocks on the underlying fd.
func (p *ObjectPipe) Recv() (any, error) {
	var buf [1]byte
	if _, err := p.r.Read(buf[:]); err != nil {
		return nil, fmt.Errorf("atmt: object pipe recv: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil, fmt.Errorf("atmt: object pipe recv: sentinel byte with no queued object")
	}
	obj := p.queue[0]
	p.queue = p.queue[1:]
	return obj, nil
}

// Descriptor returns the read end's OS file descriptor, suitable for a
// poller.
func (p *ObjectPipe) Descriptor() int {
	return int(p.r.Fd())
}

// Close releases both ends of the underlying OS pipe.
func (p *ObjectPipe) Close() error {
	rerr := p.r.Close()
	werr := p.w.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}

var sentinel = [1]byte{0}

// Endpoint is the user- or automaton-facing view of a named I/O pipe pair:
// one ObjectPipe to read from, one to write to.
type Endpoint struct {
	read  *ObjectPipe
	write *ObjectPipe
}

// Send writes obj to the endpoint's write pipe.
func (e *Endpoint) Send(obj any) error { return e.write.Send(obj) }

// Recv reads the next object from the endpoint's read pipe.
func (e *Endpoint) Recv() (any, error) { return e.read.Recv() }

// Read is an alias for Recv.
func (e *Endpoint) Read() (any, error) { return e.Recv() }

// Write is an alias for Send.
func (e *Endpoint) Write(obj any) error { return e.Send(obj) }

// Descriptor returns the pollable descriptor of the endpoint's read pipe.
func (e *Endpoint) Descriptor() int { return e.read.Descriptor() }

// namedPipe holds the pair of ObjectPipes backing one registered I/O name:
// toAutomaton is written by user code and read by the dispatch loop;
// toUser is written by the automaton and read by user code.
type namedPipe struct {
	toAutomaton *ObjectPipe
	toUser      *ObjectPipe
}

func newNamedPipe() (*namedPipe, error) {
	toAutomaton, err := NewObjectPipe()
	if err != nil {
		return nil, err
	}
	toUser, err := NewObjectPipe()
	if err != nil {
		toAutomaton.Close()
		return nil, err
	}
	return &namedPipe{toAutomaton: toAutomaton, toUser: toUser}, nil
}

func (p *namedPipe) close() {
	p.toAutomaton.Close()
	p.toUser.Close()
}

// userEndpoint is the view exposed to external code: send writes into the
// automaton, recv reads what the automaton sent out.
func (p *namedPipe) userEndpoint() *Endpoint {
	return &Endpoint{read: p.toUser, write: p.toAutomaton}
}

// automatonEndpoint is the view used inside condition/action bodies: recv
// reads what the user sent in, send writes out to the user.
func (p *namedPipe) automatonEndpoint() *Endpoint {
	return &Endpoint{read: p.toAutomaton, write: p.toUser}
}
