package atmt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Option configures an Automaton at construction time.
type Option func(*Automaton)

// WithLabel sets the label used to prefix log lines, matching the
// teacher's per-connection sm.label convention.
func WithLabel(label string) Option {
	return func(a *Automaton) { a.label = label }
}

// WithDebugLevel records a verbosity level on the Automaton. The value is
// not passed to dicomlog: which log lines are printed is decided by
// dicomlog's own process-wide level, for every Automaton alike.
func WithDebugLevel(level int) Option {
	return func(a *Automaton) { a.debugLevel = level }
}

// WithMasterFilter overrides the default accept-everything receive filter.
func WithMasterFilter(filter MasterFilter) Option {
	return func(a *Automaton) { a.masterFilter = filter }
}

// WithMaxPacketSize overrides the default read size passed to
// ListenSocket.Recv.
func WithMaxPacketSize(n int) Option {
	return func(a *Automaton) { a.maxPacketSize = n }
}

// WithPollInterval overrides the default slice the dispatch loop waits on a
// single poll syscall before re-checking ctx for cancellation, governing how
// quickly Run/Step notice a cancelled context (spec.md section 5's
// "Cancellation and timeouts").
func WithPollInterval(d time.Duration) Option {
	return func(a *Automaton) { a.pollInterval = d }
}

const defaultMaxPacketSize = 65536

// defaultPollInterval is the poll slice used when WithPollInterval is not
// given.
const defaultPollInterval = 200 * time.Millisecond

// Automaton drives one run of a Registry against a socket pair and any
// number of named I/O pipes. Registry is shared and immutable; everything
// else here is per-instance runtime state, touched only by the driving
// goroutine except through the Send/IO/breakpoint accessors documented as
// safe for concurrent use.
type Automaton struct {
	registry *Registry
	runID    uuid.UUID
	label    string

	listenSock    ListenSocket
	sendSock      SendSocket
	masterFilter  MasterFilter
	maxPacketSize int
	debugLevel    int
	pollInterval  time.Duration

	mu               sync.Mutex
	started          bool
	running          bool
	currentState     *StateDecl
	enterArgs        []any
	stateOutput      []any
	breakpoints      map[string]struct{}
	lastBreakpointed string
	sessionLog       []Packet

	pipes map[string]*namedPipe
}

// New constructs an Automaton from a built Registry and a socket pair. A
// namedPipe is created for every IOName the registry requires.
func New(reg *Registry, listen ListenSocket, send SendSocket, opts ...Option) (*Automaton, error) {
	a := &Automaton{
		registry:      reg,
		runID:         uuid.New(),
		listenSock:    listen,
		sendSock:      send,
		masterFilter:  acceptAll,
		maxPacketSize: defaultMaxPacketSize,
		pollInterval:  defaultPollInterval,
		breakpoints:   map[string]struct{}{},
		pipes:         map[string]*namedPipe{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.label == "" {
		a.label = a.runID.String()
	}
	for name := range reg.IONames {
		p, err := newNamedPipe()
		if err != nil {
			a.closePipes()
			return nil, fmt.Errorf("atmt: failed to create io pipe %q: %w", name, err)
		}
		a.pipes[name] = p
	}
	return a, nil
}

func (a *Automaton) closePipes() {
	for _, p := range a.pipes {
		p.close()
	}
}

// RunID returns the UUID assigned to this automaton instance at
// construction, used to correlate log lines across goroutines.
func (a *Automaton) RunID() uuid.UUID { return a.runID }

// IO returns the user-facing endpoint of a registered named pipe.
func (a *Automaton) IO(name string) (*Endpoint, error) {
	p, ok := a.pipes[name]
	if !ok {
		return nil, fmt.Errorf("atmt: no such io pipe %q", name)
	}
	return p.userEndpoint(), nil
}

// automatonIO returns the automaton-facing endpoint of a named pipe, used
// internally by condition/action bodies that need to reply over the same
// pipe they were woken up by.
func (a *Automaton) automatonIO(name string) *Endpoint {
	p, ok := a.pipes[name]
	doassert(ok, "automatonIO called with unregistered name %q", name)
	return p.automatonEndpoint()
}

// AutomatonIO exposes the automaton-facing endpoint of a named pipe to
// condition and action bodies.
func (a *Automaton) AutomatonIO(name string) (*Endpoint, error) {
	if _, ok := a.pipes[name]; !ok {
		return nil, fmt.Errorf("atmt: no such io pipe %q", name)
	}
	return a.automatonIO(name), nil
}

// SetMasterFilter replaces the receive filter at runtime, the same role
// automaton.py's master_filter hook plays for the original. Safe to call
// from outside the driving goroutine, like Send and the IO endpoints.
func (a *Automaton) SetMasterFilter(filter MasterFilter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.masterFilter = filter
}

func (a *Automaton) getMasterFilter() MasterFilter {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.masterFilter
}

// AddBreakpoint pauses the automaton the next time it enters state. Per
// SPEC_FULL.md's RunBackground serialization decision, this must be called
// before Start.
func (a *Automaton) AddBreakpoint(state string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return errAlreadyStarted{}
	}
	a.breakpoints[state] = struct{}{}
	return nil
}

// RemoveBreakpoint undoes AddBreakpoint. Must also be called before Start.
func (a *Automaton) RemoveBreakpoint(state string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return errAlreadyStarted{}
	}
	delete(a.breakpoints, state)
	return nil
}

// SessionLog returns a copy of the in-memory record of packets sent by the
// automaton and packets that matched a receive condition.
func (a *Automaton) SessionLog() []Packet {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Packet, len(a.sessionLog))
	copy(out, a.sessionLog)
	return out
}

// CurrentState returns the name of the state the automaton is currently in.
func (a *Automaton) CurrentState() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentState == nil {
		return ""
	}
	return a.currentState.Name
}

// Send forwards pkt to the send socket and appends a copy to the session
// log, matching spec.md's "copy then log" requirement.
func (a *Automaton) Send(pkt Packet) error {
	if err := a.sendSock.Send(pkt); err != nil {
		return fmt.Errorf("atmt(%s): send failed: %w", a.label, err)
	}
	logf(3, a.label, "SENT: %s", pkt.Summary())
	a.mu.Lock()
	a.sessionLog = append(a.sessionLog, pkt.Copy())
	a.mu.Unlock()
	return nil
}

func (a *Automaton) logRecv(pkt Packet) {
	a.mu.Lock()
	a.sessionLog = append(a.sessionLog, pkt)
	a.mu.Unlock()
}

// Start initializes runtime state and enters the first initial state. args
// are forwarded to that state's body. Start must be called at most once;
// subsequent drive calls go through Step/Run directly.
func (a *Automaton) Start(args ...any) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("atmt(%s): already started", a.label)
	}
	a.started = true
	a.running = true
	a.currentState = a.registry.InitialStates[0]
	a.enterArgs = args
	a.mu.Unlock()
	logf(1, a.label, "started in state %q", a.currentState.Name)
	return nil
}

// Running reports whether the automaton has not yet reached a terminal or
// error state (it may still be paused on a breakpoint or interrupted).
func (a *Automaton) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func normalizeOutput(v any) []any {
	if v == nil {
		return nil
	}
	if list, ok := v.([]any); ok {
		return list
	}
	return []any{v}
}

// Step advances the automaton by exactly one state entry or one dispatched
// event, implementing the state-entry protocol of spec.md section 4.3. It
// returns the committed Outcome on a transition, or one of *ErrorState,
// *Stuck, *BreakpointError, or *Terminated.
func (a *Automaton) Step(ctx context.Context) (Outcome, error) {
	if !a.started {
		if err := a.Start(); err != nil {
			return Outcome{}, err
		}
	}

	state := a.currentState
	logf(1, a.label, "## state=[%s]", state.Name)

	if _, bp := a.breakpoints[state.Name]; bp && state.Name != a.lastBreakpointed {
		a.lastBreakpointed = state.Name
		return Outcome{}, &BreakpointError{State: state.Name}
	}
	a.lastBreakpointed = ""

	out, err := state.Body(a, a.enterArgs...)
	if err != nil {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
		return Outcome{}, fmt.Errorf("atmt(%s): state %q body failed: %w", a.label, state.Name, err)
	}

	if state.Error {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
		return Outcome{}, &ErrorState{State: state.Name, Result: out}
	}
	if state.Final {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
		return Outcome{}, &Terminated{State: state.Name, Result: out}
	}

	a.stateOutput = normalizeOutput(out)

	for _, cond := range a.registry.Conditions[state.Name] {
		outcome, err := cond.body(a, a.stateOutput...)
		if err != nil {
			return Outcome{}, fmt.Errorf("atmt(%s): condition %q failed: %w", a.label, cond.name, err)
		}
		if outcome.IsTransition() {
			logf(2, a.label, "condition [%s] taken to state [%s]", cond.name, outcome.target.Name)
			if err := a.commit(cond.name, outcome); err != nil {
				return Outcome{}, err
			}
			return outcome, nil
		}
	}

	if a.registry.isDeadEnd(state.Name) {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
		return Outcome{}, &Stuck{State: state.Name, Result: out}
	}

	return a.dispatchOnce(ctx)
}

// commit runs the actions bound to conditionName in action-priority order
// and then replaces the current state, implementing the "commit of a
// transition request" step of spec.md section 4.3.
func (a *Automaton) commit(conditionName string, outcome Outcome) error {
	for _, act := range a.registry.Actions[conditionName] {
		logf(2, a.label, "running action [%s]", act.name)
		if err := act.body(a, outcome.actionArgs...); err != nil {
			return fmt.Errorf("atmt(%s): action %q failed: %w", a.label, act.name, err)
		}
	}
	a.currentState = outcome.target
	a.enterArgs = outcome.enterArgs
	return nil
}
