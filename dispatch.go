package atmt

import (
	"context"
	"fmt"
	"time"
)

// pollTargetKind distinguishes the listening socket from a named I/O pipe
// in the descriptor set built for one dispatch loop invocation.
type pollTargetKind int

const (
	targetListen pollTargetKind = iota
	targetIO
)

type pollTarget struct {
	kind   pollTargetKind
	fd     int
	ioName string
}

// dispatchOnce implements spec.md section 4.4: multiplex the listening
// socket and every registered I/O pipe for the current state, checking
// timers at the start of each wakeup, until exactly one condition commits
// a transition.
func (a *Automaton) dispatchOnce(ctx context.Context) (Outcome, error) {
	state := a.currentState
	timeouts := a.registry.Timeouts[state.Name]
	idx := 0
	t0 := time.Now()

	var targets []pollTarget
	if len(a.registry.RecvConditions[state.Name]) > 0 {
		targets = append(targets, pollTarget{kind: targetListen, fd: a.listenSock.Descriptor()})
	}
	for _, ev := range a.registry.IOEvents[state.Name] {
		targets = append(targets, pollTarget{kind: targetIO, fd: a.pipes[ev.ioName].toAutomaton.Descriptor(), ioName: ev.ioName})
	}

	for {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}

		elapsed := time.Since(t0)
		for idx < len(timeouts)-1 && timeouts[idx].deadline <= elapsed {
			logf(2, a.label, "timeout [%s] fired at %s", timeouts[idx].name, elapsed)
			outcome, err := timeouts[idx].body(a, a.stateOutput...)
			if err != nil {
				return Outcome{}, fmt.Errorf("atmt(%s): timeout %q failed: %w", a.label, timeouts[idx].name, err)
			}
			if outcome.IsTransition() {
				if err := a.commit(timeouts[idx].name, outcome); err != nil {
					return Outcome{}, err
				}
				return outcome, nil
			}
			idx++
		}

		var remaining time.Duration = -1
		if timeouts[idx].deadline != timeoutSentinelDeadline {
			remaining = timeouts[idx].deadline - elapsed
			if remaining < 0 {
				remaining = 0
			}
		}

		ready, err := pollWithContext(ctx, targets, remaining, a.pollInterval)
		if err != nil {
			return Outcome{}, fmt.Errorf("atmt(%s): dispatch poll failed: %w", a.label, err)
		}

		for _, t := range ready {
			var outcome Outcome
			var committed bool
			switch t.kind {
			case targetListen:
				outcome, committed, err = a.handleListenReady(state.Name)
			case targetIO:
				outcome, committed, err = a.handleIOReady(state.Name, t.ioName)
			}
			if err != nil {
				return Outcome{}, err
			}
			if committed {
				return outcome, nil
			}
		}
	}
}

func (a *Automaton) handleListenReady(stateName string) (Outcome, bool, error) {
	pkt, err := a.listenSock.Recv(a.maxPacketSize)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("atmt(%s): listen socket recv failed: %w", a.label, err)
	}
	if pkt == nil {
		return Outcome{}, false, nil
	}
	if !a.getMasterFilter()(pkt) {
		logf(4, a.label, "FILTR: %s", pkt.Summary())
		return Outcome{}, false, nil
	}
	if ts, ok := pkt.(Timestamped); ok {
		ts.SetTime(time.Now())
	}
	logf(3, a.label, "RECVD: %s", pkt.Summary())
	for _, rc := range a.registry.RecvConditions[stateName] {
		outcome, err := rc.body(a, pkt, a.stateOutput...)
		if err != nil {
			return Outcome{}, false, fmt.Errorf("atmt(%s): receive condition %q failed: %w", a.label, rc.name, err)
		}
		if outcome.IsTransition() {
			a.logRecv(pkt)
			if err := a.commit(rc.name, outcome); err != nil {
				return Outcome{}, false, err
			}
			return outcome, true, nil
		}
	}
	return Outcome{}, false, nil
}

func (a *Automaton) handleIOReady(stateName, ioName string) (Outcome, bool, error) {
	obj, err := a.pipes[ioName].toAutomaton.Recv()
	if err != nil {
		return Outcome{}, false, fmt.Errorf("atmt(%s): io pipe %q recv failed: %w", a.label, ioName, err)
	}
	logf(3, a.label, "IOEVENT on %s", ioName)
	for _, ie := range a.registry.IOEvents[stateName] {
		if ie.ioName != ioName {
			continue
		}
		outcome, err := ie.body(a, obj, a.stateOutput...)
		if err != nil {
			return Outcome{}, false, fmt.Errorf("atmt(%s): io-event condition %q failed: %w", a.label, ie.name, err)
		}
		if outcome.IsTransition() {
			if err := a.commit(ie.name, outcome); err != nil {
				return Outcome{}, false, err
			}
			return outcome, true, nil
		}
	}
	return Outcome{}, false, nil
}

// pollWithContext wraps the platform poller with bounded slices so a
// cancelled ctx interrupts an otherwise indefinite wait within pollInterval.
func pollWithContext(ctx context.Context, targets []pollTarget, remaining, pollInterval time.Duration) ([]pollTarget, error) {
	infinite := remaining < 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		wait := pollInterval
		if !infinite && remaining < wait {
			wait = remaining
		}
		ready, err := pollFds(targets, wait)
		if err != nil {
			return nil, err
		}
		if len(ready) > 0 {
			return ready, nil
		}
		if !infinite {
			remaining -= wait
			if remaining <= 0 {
				return nil, nil
			}
		}
	}
}
