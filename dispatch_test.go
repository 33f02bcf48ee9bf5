package atmt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTimeoutHandshake covers scenario S2: a state with two timeouts fires
// the shorter one once as a non-transition, then the longer one fires,
// runs its action, and transitions to a final state.
func TestTimeoutHandshake(t *testing.T) {
	spec := NewSpec()
	wait := spec.State("WAIT", func(a *Automaton, args ...any) (any, error) { return nil, nil }, Initial())
	done := spec.State("DONE", func(a *Automaton, args ...any) (any, error) { return "given-up", nil }, Final())

	resendCount := 0
	giveupActionRan := false

	spec.Timeout(wait, 20*time.Millisecond, "resend", func(a *Automaton, args ...any) (Outcome, error) {
		resendCount++
		return NoTransition(), nil
	})
	spec.Timeout(wait, 70*time.Millisecond, "giveup", func(a *Automaton, args ...any) (Outcome, error) {
		return GoTo(done, nil, nil), nil
	})
	spec.Action("mark-giveup", func(a *Automaton, args ...any) error {
		giveupActionRan = true
		return nil
	}, map[string]int{"giveup": 0})

	reg, err := spec.Build()
	require.NoError(t, err)

	a, err := New(reg, newFakeListenSocket(), &fakeSendSocket{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := a.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "given-up", result)
	assert.GreaterOrEqual(t, resendCount, 1)
	assert.True(t, giveupActionRan)
}

// TestReceiveConditionFiltering covers scenario S3: packets arrive on the
// listen socket one at a time; only one whose payload matches the receive
// condition triggers a transition, and only the matching packet is logged.
func TestReceiveConditionFiltering(t *testing.T) {
	spec := NewSpec()
	listen := spec.State("LISTEN", func(a *Automaton, args ...any) (any, error) { return nil, nil }, Initial())
	done := spec.State("DONE", func(a *Automaton, args ...any) (any, error) { return nil, nil }, Final())

	spec.Receive(listen, 0, "match-seven", func(a *Automaton, pkt Packet, args ...any) (Outcome, error) {
		fp := pkt.(*fakePacket)
		if fp.kind != 7 {
			return NoTransition(), nil
		}
		return GoTo(done, nil, nil), nil
	})

	reg, err := spec.Build()
	require.NoError(t, err)

	sock := newFakeListenSocket()
	sock.Push(&fakePacket{kind: 1})
	sock.Push(&fakePacket{kind: 7})
	sock.Push(&fakePacket{kind: 9})

	a, err := New(reg, sock, &fakeSendSocket{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = a.Run(ctx)
	require.NoError(t, err)

	log := a.SessionLog()
	require.Len(t, log, 1)
	assert.Equal(t, 7, log[0].(*fakePacket).kind)
}

// TestIOEventCondition covers scenario S4: an object written to a named pipe
// from outside wakes the dispatch loop and is handed to the matching
// condition as-is.
func TestIOEventCondition(t *testing.T) {
	spec := NewSpec()
	idle := spec.State("IDLE", func(a *Automaton, args ...any) (any, error) { return nil, nil }, Initial())
	ack := spec.State("ACK", func(a *Automaton, args ...any) (any, error) { return args[0], nil }, Final())

	spec.IOEvent(idle, "cmd", 0, "on-cmd", func(a *Automaton, obj any, args ...any) (Outcome, error) {
		return GoTo(ack, []any{obj}, nil), nil
	})

	reg, err := spec.Build()
	require.NoError(t, err)

	a, err := New(reg, newFakeListenSocket(), &fakeSendSocket{})
	require.NoError(t, err)

	endpoint, err := a.IO("cmd")
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = endpoint.Send("go")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := a.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "go", result)
}
