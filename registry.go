package atmt

import (
	"fmt"
	"sort"
	"strings"
)

// DOT renders the registry as a Graphviz digraph: states as nodes
// (initial states filled blue, final green, error red) and conditions as
// labeled edges, generalizing Automaton_metaclass.graph() from the
// original without any packet-dissection concern.
func (r *Registry) DOT(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %q {\n", name)

	names := make([]string, 0, len(r.States))
	for n := range r.States {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		st := r.States[n]
		switch {
		case st.Initial:
			fmt.Fprintf(&b, "\t%q [style=filled, fillcolor=blue, shape=box];\n", n)
		case st.Final:
			fmt.Fprintf(&b, "\t%q [style=filled, fillcolor=green, shape=octagon];\n", n)
		case st.Error:
			fmt.Fprintf(&b, "\t%q [style=filled, fillcolor=red, shape=octagon];\n", n)
		default:
			fmt.Fprintf(&b, "\t%q;\n", n)
		}
	}

	for _, n := range names {
		for _, c := range r.Conditions[n] {
			b.WriteString(edgeLine(n, c.name, "purple", r.Actions[c.name]))
		}
		for _, c := range r.RecvConditions[n] {
			b.WriteString(edgeLine(n, c.name, "red", r.Actions[c.name]))
		}
		for _, c := range r.IOEvents[n] {
			b.WriteString(edgeLine(n, c.name, "orange", r.Actions[c.name]))
		}
		for _, t := range r.Timeouts[n] {
			if t.deadline == timeoutSentinelDeadline {
				continue
			}
			label := fmt.Sprintf("%s/%s", t.name, t.deadline)
			b.WriteString(labeledEdge(n, label, "blue", r.Actions[t.name]))
		}
	}

	b.WriteString("}\n")
	return b.String()
}

func edgeLine(from, condName, color string, actions []actionDecl) string {
	return labeledEdge(from, condName, color, actions)
}

func labeledEdge(from, label, color string, actions []actionDecl) string {
	for _, act := range actions {
		label += "\\l>[" + act.name + "]"
	}
	// The target state is only known once a condition body runs (it is a
	// Go closure, not a statically inspectable constant), so edges here
	// are informational per-state fan-out rather than precise arrows; a
	// caller wanting exact targets should label their GoTo calls.
	return fmt.Sprintf("\t%q -> %q [label=%q, color=%s];\n", from, from+"."+label, label, color)
}
