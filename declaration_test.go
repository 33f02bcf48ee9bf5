package atmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRejectsMissingInitialState(t *testing.T) {
	spec := NewSpec()
	spec.State("ONLY", func(a *Automaton, args ...any) (any, error) { return nil, nil }, Final())

	_, err := spec.Build()
	require.Error(t, err)

	var declErr *InvalidDeclarationError
	require.ErrorAs(t, err, &declErr)
	assert.Len(t, declErr.Errors, 1)
}

func TestBuildRejectsDuplicateStateNames(t *testing.T) {
	spec := NewSpec()
	spec.State("A", func(a *Automaton, args ...any) (any, error) { return nil, nil }, Initial())
	spec.State("A", func(a *Automaton, args ...any) (any, error) { return nil, nil }, Final())

	_, err := spec.Build()
	require.Error(t, err)
}

func TestBuildRejectsConditionOnUnknownState(t *testing.T) {
	spec := NewSpec()
	a := spec.State("A", func(*Automaton, ...any) (any, error) { return nil, nil }, Initial(), Final())
	_ = a

	spec.Condition(&StateDecl{Name: "GHOST"}, 0, "cond", func(*Automaton, ...any) (Outcome, error) {
		return NoTransition(), nil
	})

	_, err := spec.Build()
	require.Error(t, err)
}

func TestBuildSortsConditionsByPriority(t *testing.T) {
	spec := NewSpec()
	a := spec.State("A", func(*Automaton, ...any) (any, error) { return nil, nil }, Initial())
	spec.State("B", func(*Automaton, ...any) (any, error) { return nil, nil }, Final())

	spec.Condition(a, 10, "low-priority-number-second", func(*Automaton, ...any) (Outcome, error) {
		return NoTransition(), nil
	})
	spec.Condition(a, 1, "high-priority-number-first", func(*Automaton, ...any) (Outcome, error) {
		return NoTransition(), nil
	})

	reg, err := spec.Build()
	require.NoError(t, err)

	conds := reg.Conditions["A"]
	require.Len(t, conds, 2)
	assert.Equal(t, "high-priority-number-first", conds[0].name)
	assert.Equal(t, "low-priority-number-second", conds[1].name)
}

func TestBuildAppendsTimeoutSentinelAndSortsByDeadlineThenOrder(t *testing.T) {
	spec := NewSpec()
	a := spec.State("A", func(*Automaton, ...any) (any, error) { return nil, nil }, Initial())
	spec.State("B", func(*Automaton, ...any) (any, error) { return nil, nil }, Final())

	spec.Timeout(a, 50, "z-registered-first-same-deadline", func(*Automaton, ...any) (Outcome, error) {
		return NoTransition(), nil
	})
	spec.Timeout(a, 10, "earliest", func(*Automaton, ...any) (Outcome, error) {
		return NoTransition(), nil
	})
	spec.Timeout(a, 50, "a-registered-last-same-deadline", func(*Automaton, ...any) (Outcome, error) {
		return NoTransition(), nil
	})

	reg, err := spec.Build()
	require.NoError(t, err)

	timeouts := reg.Timeouts["A"]
	require.Len(t, timeouts, 4) // three + sentinel
	assert.Equal(t, "earliest", timeouts[0].name)
	// the two registrations at the 50ns deadline tiebreak by
	// registration order, not name.
	assert.Equal(t, "z-registered-first-same-deadline", timeouts[1].name)
	assert.Equal(t, "a-registered-last-same-deadline", timeouts[2].name)
	assert.Equal(t, timeoutSentinelDeadline, timeouts[3].deadline)
}

func TestIsDeadEndRequiresNoConditionsAtAll(t *testing.T) {
	spec := NewSpec()
	a := spec.State("A", func(*Automaton, ...any) (any, error) { return nil, nil }, Initial())
	spec.State("B", func(*Automaton, ...any) (any, error) { return nil, nil }, Final())

	reg, err := spec.Build()
	require.NoError(t, err)
	assert.True(t, reg.isDeadEnd("A"))

	spec2 := NewSpec()
	a2 := spec2.State("A", func(*Automaton, ...any) (any, error) { return nil, nil }, Initial())
	spec2.State("B", func(*Automaton, ...any) (any, error) { return nil, nil }, Final())
	spec2.Timeout(a2, 10, "tick", func(*Automaton, ...any) (Outcome, error) {
		return NoTransition(), nil
	})
	reg2, err := spec2.Build()
	require.NoError(t, err)
	assert.False(t, reg2.isDeadEnd("A"))
}
