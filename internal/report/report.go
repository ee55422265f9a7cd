// Package report renders traced results: the cost-sorted function table,
// the peak execution estimate, and the unresolved-target listing.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"stackcheck/internal/callgraph"
	"stackcheck/internal/trace"
)

// Write prints the result table on w. Each row carries a recursion marker
// ('R' for functions that can reach themselves), a caller marker ('>' for
// roots no known function calls), the function name (qualified by object
// file only when the bare name is ambiguous), cost, own frame size, and
// call height, sorted by descending cost. A summary follows: main's cost,
// the interrupt root's cost, and their sum as the peak estimate. Every
// unresolved call target is listed at the end so missing edges can be
// audited by hand.
func Write(w io.Writer, g *callgraph.Graph, p *trace.Profile) {
	fmt.Fprintf(w, "   %-30s %8s %8s %8s\n", "Func", "Cost", "Frame", "Height")
	fmt.Fprintln(w, strings.Repeat("-", 72))

	ids := g.SortedIdents()
	sort.SliceStable(ids, func(i, j int) bool {
		return p.Results[ids[i]].Cost > p.Results[ids[j]].Cost
	})

	for _, id := range ids {
		r := p.Results[id]
		name := id.Name
		if g.Ambiguous[id.Name] {
			name = id.String()
		}
		rec := " "
		if r.Recursive {
			rec = "R"
		}
		tag := ">"
		if p.HasCaller[id] {
			tag = " "
		}
		fmt.Fprintf(w, "%s%s %-30s %8d %8d %8d\n", rec, tag, name, r.Cost, g.Frames[id], r.Height)
	}

	var mainCost int
	if id, ok := g.Global["main"]; ok {
		mainCost = p.Results[id].Cost
	}
	ivCost := p.Results[callgraph.InterruptRoot].Cost

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Peak execution estimate (main + worst-case IV):")
	fmt.Fprintf(w, "  main = %d, worst IV = %d, total = %d\n", mainCost, ivCost, mainCost+ivCost)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "The following call targets were not resolved:")
	for _, t := range g.Unresolved {
		fmt.Fprintf(w, "  %s\n", t)
	}
}
