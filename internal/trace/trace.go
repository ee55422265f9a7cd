// Package trace computes, for every function in a resolved call graph,
// its inherited worst-case stack cost, its call height, and whether it is
// recursive.
package trace

import (
	"stackcheck/internal/callgraph"
)

// Result holds the traced numbers for one function.
type Result struct {
	Cost      int  // worst-case cumulative stack bytes from entry
	Height    int  // longest call chain, >= 1
	Recursive bool // true iff the function can reach itself
}

// Profile is the outcome of tracing a whole graph.
type Profile struct {
	Results   map[callgraph.Ident]Result
	HasCaller map[callgraph.Ident]bool
}

type state uint8

const (
	unvisited state = iota
	inProgress
	done
)

// Run traces every function in the graph. The traversal is an explicit
// work-stack depth-first search with memoization; heavily recursive or
// very deep call graphs cannot overflow the host stack.
//
// Cycles terminate at the edge that closes them: that edge contributes
// nothing, so a recursive function's cost covers exactly one level of
// unrolling. This is a deliberate conservative approximation, reported
// via the Recursive flag rather than treated as an error. Recursion
// marking itself is exact: a function is Recursive iff it sits on a cycle
// (strongly connected component of size >= 2, or a self call).
func Run(g *callgraph.Graph) *Profile {
	t := &tracer{
		g:        g,
		states:   make(map[callgraph.Ident]state, len(g.Callees)),
		index:    make(map[callgraph.Ident]int, len(g.Callees)),
		lowlink:  make(map[callgraph.Ident]int, len(g.Callees)),
		onStack:  make(map[callgraph.Ident]bool),
		selfLoop: make(map[callgraph.Ident]bool),
		p: &Profile{
			Results:   make(map[callgraph.Ident]Result, len(g.Callees)),
			HasCaller: make(map[callgraph.Ident]bool),
		},
	}
	for _, root := range g.SortedIdents() {
		if t.states[root] == unvisited {
			t.visit(root)
		}
	}
	return t.p
}

type tracer struct {
	g        *callgraph.Graph
	states   map[callgraph.Ident]state
	index    map[callgraph.Ident]int
	lowlink  map[callgraph.Ident]int
	next     int
	scc      []callgraph.Ident // Tarjan component stack
	onStack  map[callgraph.Ident]bool
	selfLoop map[callgraph.Ident]bool
	p        *Profile
}

// frame is one entry of the explicit traversal stack: a node and the index
// of the next callee to handle.
type frame struct {
	id   callgraph.Ident
	next int
}

func (t *tracer) visit(root callgraph.Ident) {
	stack := make([]frame, 0, 16)
	stack = t.push(stack, root)

	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		callees := t.g.Callees[f.id]

		if f.next < len(callees) {
			c := callees[f.next]
			f.next++
			t.p.HasCaller[c] = true
			if c == f.id {
				t.selfLoop[c] = true
			}
			if t.states[c] == unvisited {
				stack = t.push(stack, c)
			} else if t.onStack[c] && t.index[c] < t.lowlink[f.id] {
				t.lowlink[f.id] = t.index[c]
			}
			continue
		}

		// All callees handled: fold their memoized results.
		id := f.id
		t.finish(id)
		stack = stack[:len(stack)-1]
		if len(stack) > 0 {
			parent := &stack[len(stack)-1]
			if t.lowlink[id] < t.lowlink[parent.id] {
				t.lowlink[parent.id] = t.lowlink[id]
			}
		}
	}
}

func (t *tracer) push(stack []frame, id callgraph.Ident) []frame {
	t.states[id] = inProgress
	t.index[id] = t.next
	t.lowlink[id] = t.next
	t.next++
	t.onStack[id] = true
	t.scc = append(t.scc, id)
	return append(stack, frame{id: id})
}

// finish computes the memoized result for id and, if id is the root of a
// strongly connected component, pops the component and marks recursion.
func (t *tracer) finish(id callgraph.Ident) {
	maxCost, maxHeight := 0, 0
	for _, c := range t.g.Callees[id] {
		if t.states[c] != done {
			continue // edge closing a cycle: cut, contributes nothing
		}
		r := t.p.Results[c]
		if r.Cost > maxCost {
			maxCost = r.Cost
		}
		if r.Height > maxHeight {
			maxHeight = r.Height
		}
	}
	t.p.Results[id] = Result{
		Cost:   t.g.Frames[id] + maxCost,
		Height: maxHeight + 1,
	}
	t.states[id] = done

	if t.lowlink[id] != t.index[id] {
		return
	}
	var comp []callgraph.Ident
	for {
		n := len(t.scc) - 1
		m := t.scc[n]
		t.scc = t.scc[:n]
		t.onStack[m] = false
		comp = append(comp, m)
		if m == id {
			break
		}
	}
	if len(comp) > 1 || t.selfLoop[id] {
		for _, m := range comp {
			r := t.p.Results[m]
			r.Recursive = true
			t.p.Results[m] = r
		}
	}
}
