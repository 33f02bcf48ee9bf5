package atmt

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// StateFunc is the user-supplied callable executed on state entry. Its
// return value, if any, is normalized into the positional arguments
// forwarded to every condition evaluated for that state.
type StateFunc func(a *Automaton, args ...any) (any, error)

// ConditionFunc backs immediate conditions: evaluated synchronously right
// after a state is entered, before any blocking wait.
type ConditionFunc func(a *Automaton, args ...any) (Outcome, error)

// ReceiveConditionFunc backs receive conditions: evaluated once per packet
// accepted by the master filter while the owning state is current.
type ReceiveConditionFunc func(a *Automaton, pkt Packet, args ...any) (Outcome, error)

// IOEventConditionFunc backs I/O event conditions: evaluated when the named
// pipe becomes readable, with the object read from it.
type IOEventConditionFunc func(a *Automaton, obj any, args ...any) (Outcome, error)

// TimeoutConditionFunc backs timeout conditions: evaluated at most once,
// when the relative deadline elapses.
type TimeoutConditionFunc func(a *Automaton, args ...any) (Outcome, error)

// ActionFunc is a side-effecting callable attached to one or more
// conditions. It runs, in action-priority order, whenever its condition
// fires a transition. An error from an action aborts the Step; it is
// never retried.
type ActionFunc func(a *Automaton, args ...any) error

// StateDecl is an immutable, registered state. At most one state may be
// current at a time; at least one registered state must be Initial.
type StateDecl struct {
	Name    string
	Initial bool
	Final   bool
	Error   bool
	Body    StateFunc
}

// StateOption configures a StateDecl at registration time.
type StateOption func(*StateDecl)

// Initial marks a state as a valid entry point. If more than one state is
// marked Initial, the first one registered is used.
func Initial() StateOption { return func(s *StateDecl) { s.Initial = true } }

// Final marks a state as terminal: reaching it stops the automaton and
// yields its body's output as the run result.
func Final() StateOption { return func(s *StateDecl) { s.Final = true } }

// ErrorFlag marks a state as an error state: reaching it stops the
// automaton and surfaces an *ErrorState.
func ErrorFlag() StateOption { return func(s *StateDecl) { s.Error = true } }

type conditionDecl struct {
	name     string
	state    string
	priority int
	body     ConditionFunc
}

type receiveConditionDecl struct {
	name     string
	state    string
	priority int
	body     ReceiveConditionFunc
}

type ioEventDecl struct {
	name     string
	state    string
	ioName   string
	priority int
	body     IOEventConditionFunc
}

type timeoutDecl struct {
	name     string
	state    string
	deadline time.Duration
	body     TimeoutConditionFunc
	seq      int // registration order, the tiebreak for equal deadlines
}

type actionDecl struct {
	name       string
	conditions map[string]int
	body       ActionFunc
}

// Spec is the explicit, typed registration builder for one automaton type.
// It replaces the reflective "walk the class for tagged methods" pattern
// with plain method calls, collected once and compiled by Build.
type Spec struct {
	states     []*StateDecl
	conditions []conditionDecl
	receives   []receiveConditionDecl
	ioevents   []ioEventDecl
	timeouts   []timeoutDecl
	actions    []actionDecl
}

// NewSpec returns an empty builder.
func NewSpec() *Spec {
	return &Spec{}
}

// State registers a new state and returns its descriptor, to be referenced
// by later Condition/Receive/IOEvent/Timeout calls.
func (s *Spec) State(name string, body StateFunc, opts ...StateOption) *StateDecl {
	decl := &StateDecl{Name: name, Body: body}
	for _, opt := range opts {
		opt(decl)
	}
	s.states = append(s.states, decl)
	return decl
}

// Condition registers an immediate condition bound to state, evaluated in
// ascending priority order right after the state is entered.
func (s *Spec) Condition(state *StateDecl, priority int, name string, body ConditionFunc) {
	s.conditions = append(s.conditions, conditionDecl{name: name, state: state.Name, priority: priority, body: body})
}

// Receive registers a receive condition bound to state, evaluated against
// each packet accepted by the master filter.
func (s *Spec) Receive(state *StateDecl, priority int, name string, body ReceiveConditionFunc) {
	s.receives = append(s.receives, receiveConditionDecl{name: name, state: state.Name, priority: priority, body: body})
}

// IOEvent registers a condition bound to state and the named pipe,
// evaluated whenever that pipe becomes readable.
func (s *Spec) IOEvent(state *StateDecl, ioName string, priority int, name string, body IOEventConditionFunc) {
	s.ioevents = append(s.ioevents, ioEventDecl{name: name, state: state.Name, ioName: ioName, priority: priority, body: body})
}

// Timeout registers a condition that fires once a relative deadline
// (measured from state entry) elapses.
func (s *Spec) Timeout(state *StateDecl, deadline time.Duration, name string, body TimeoutConditionFunc) {
	s.timeouts = append(s.timeouts, timeoutDecl{name: name, state: state.Name, deadline: deadline, body: body, seq: len(s.timeouts)})
}

// Action registers a side-effecting callable tied to one or more
// conditions, each with its own action-priority.
func (s *Spec) Action(name string, body ActionFunc, conditions map[string]int) {
	s.actions = append(s.actions, actionDecl{name: name, conditions: conditions, body: body})
}

// Registry holds the read-only dispatch tables computed once from a Spec.
// It must never be mutated after Build returns it.
type Registry struct {
	States        map[string]*StateDecl
	InitialStates []*StateDecl

	Conditions     map[string][]conditionDecl
	RecvConditions map[string][]receiveConditionDecl
	IOEvents       map[string][]ioEventDecl
	Timeouts       map[string][]timeoutDecl // sentinel-terminated, ascending deadline

	Actions map[string][]actionDecl // keyed by condition name

	IONames map[string]struct{}
}

// timeoutSentinelDeadline marks the end-of-list sentinel entry appended to
// every state's timeout list, standing in for the source's (inf, null).
const timeoutSentinelDeadline = time.Duration(-1)

// InvalidDeclarationError reports one or more registry construction
// failures discovered by Build. Multiple failures are joined.
type InvalidDeclarationError struct {
	Errors []error
}

func (e *InvalidDeclarationError) Error() string {
	return fmt.Sprintf("atmt: invalid declaration: %s", errors.Join(e.Errors...))
}

func (e *InvalidDeclarationError) Unwrap() []error { return e.Errors }

// Build validates and compiles the Spec into an immutable Registry,
// performing the algorithm of spec.md section 4.2: partition by kind,
// index by state/condition name, sort, and append timeout sentinels.
func (s *Spec) Build() (*Registry, error) {
	reg := &Registry{
		States:         map[string]*StateDecl{},
		Conditions:     map[string][]conditionDecl{},
		RecvConditions: map[string][]receiveConditionDecl{},
		IOEvents:       map[string][]ioEventDecl{},
		Timeouts:       map[string][]timeoutDecl{},
		Actions:        map[string][]actionDecl{},
		IONames:        map[string]struct{}{},
	}

	var problems []error

	for _, st := range s.states {
		if _, dup := reg.States[st.Name]; dup {
			problems = append(problems, fmt.Errorf("duplicate state name %q", st.Name))
			continue
		}
		reg.States[st.Name] = st
		reg.Conditions[st.Name] = nil
		reg.RecvConditions[st.Name] = nil
		reg.IOEvents[st.Name] = nil
		reg.Timeouts[st.Name] = nil
		if st.Initial {
			reg.InitialStates = append(reg.InitialStates, st)
		}
	}
	if len(reg.InitialStates) == 0 {
		problems = append(problems, errors.New("no initial state registered"))
	}

	allConditionNames := map[string]struct{}{}

	for _, c := range s.conditions {
		if _, ok := reg.States[c.state]; !ok {
			problems = append(problems, fmt.Errorf("condition %q references unknown state %q", c.name, c.state))
			continue
		}
		reg.Conditions[c.state] = append(reg.Conditions[c.state], c)
		allConditionNames[c.name] = struct{}{}
	}
	for _, c := range s.receives {
		if _, ok := reg.States[c.state]; !ok {
			problems = append(problems, fmt.Errorf("receive condition %q references unknown state %q", c.name, c.state))
			continue
		}
		reg.RecvConditions[c.state] = append(reg.RecvConditions[c.state], c)
		allConditionNames[c.name] = struct{}{}
	}
	for _, c := range s.ioevents {
		if _, ok := reg.States[c.state]; !ok {
			problems = append(problems, fmt.Errorf("io-event condition %q references unknown state %q", c.name, c.state))
			continue
		}
		reg.IOEvents[c.state] = append(reg.IOEvents[c.state], c)
		reg.IONames[c.ioName] = struct{}{}
		allConditionNames[c.name] = struct{}{}
	}
	for _, t := range s.timeouts {
		if _, ok := reg.States[t.state]; !ok {
			problems = append(problems, fmt.Errorf("timeout %q references unknown state %q", t.name, t.state))
			continue
		}
		reg.Timeouts[t.state] = append(reg.Timeouts[t.state], t)
		allConditionNames[t.name] = struct{}{}
	}
	for _, a := range s.actions {
		for condName := range a.conditions {
			if _, ok := allConditionNames[condName]; !ok {
				problems = append(problems, fmt.Errorf("action %q references unknown condition %q", a.name, condName))
				continue
			}
			reg.Actions[condName] = append(reg.Actions[condName], a)
		}
	}

	for state, list := range reg.Conditions {
		sorted := append([]conditionDecl(nil), list...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].priority < sorted[j].priority })
		reg.Conditions[state] = sorted
	}
	for state, list := range reg.RecvConditions {
		sorted := append([]receiveConditionDecl(nil), list...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].priority < sorted[j].priority })
		reg.RecvConditions[state] = sorted
	}
	for state, list := range reg.IOEvents {
		sorted := append([]ioEventDecl(nil), list...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].priority < sorted[j].priority })
		reg.IOEvents[state] = sorted
	}
	for state, list := range reg.Timeouts {
		sorted := append([]timeoutDecl(nil), list...)
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].deadline != sorted[j].deadline {
				return sorted[i].deadline < sorted[j].deadline
			}
			return sorted[i].seq < sorted[j].seq
		})
		sorted = append(sorted, timeoutDecl{state: state, deadline: timeoutSentinelDeadline})
		reg.Timeouts[state] = sorted
	}
	for condName, list := range reg.Actions {
		sorted := append([]actionDecl(nil), list...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].conditions[condName] < sorted[j].conditions[condName]
		})
		reg.Actions[condName] = sorted
	}

	if len(problems) > 0 {
		return nil, &InvalidDeclarationError{Errors: problems}
	}
	return reg, nil
}

// isDeadEnd reports whether state has no receive/IO conditions and only the
// sentinel timeout entry, i.e. reaching it without an immediate transition
// can never make progress.
func (r *Registry) isDeadEnd(state string) bool {
	return len(r.RecvConditions[state]) == 0 &&
		len(r.IOEvents[state]) == 0 &&
		len(r.Timeouts[state]) == 1
}
