// Package atmt implements a declarative protocol-automaton runtime: states,
// conditions, and actions are registered through a builder API and then
// driven against a listening socket, a sending socket, and any number of
// named I/O pipes until a terminal or error state is reached.
//
// A typical automaton is assembled once with a Spec, built into an
// immutable Registry, and then run through one or more Automaton
// instances:
//
//	spec := atmt.NewSpec()
//	start := spec.State("START", startBody, atmt.Initial())
//	done := spec.State("DONE", doneBody, atmt.Final())
//	spec.Condition(start, 0, "start->done", goToDone)
//	registry, err := spec.Build()
//
//	a, err := atmt.New(registry, listenSock, sendSock)
//	result, err := a.Run(context.Background())
package atmt
