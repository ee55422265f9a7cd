// Package callgraph builds and resolves the whole-program call graph:
// function identities qualified by object file, raw call targets, symbol
// resolution across translation units, and the synthetic interrupt root.
package callgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zboralski/lattice"
)

// Ident identifies one function: a raw symbol name qualified by the object
// file it was defined in. The same name defined in two object files yields
// two distinct idents. Synthetic idents (the interrupt root) carry an
// empty Object.
type Ident struct {
	Name   string
	Object string
}

func (id Ident) String() string {
	if id.Object == "" {
		return id.Name
	}
	return id.Name + "@" + id.Object
}

// InterruptRoot is the synthetic entry point whose callees are all
// interrupt vectors. It is not backed by any real address.
var InterruptRoot = Ident{Name: "INTERRUPT"}

// Target is one raw, unresolved call reference: either an offset within a
// specific object file's text section, or a symbol name.
type Target struct {
	Sym    string // symbol form; empty when the target is an offset
	Object string // offset form: the object file the offset belongs to
	Addr   uint64 // offset form: section offset of the callee
}

// IsAddr reports whether the target is in offset form.
func (t Target) IsAddr() bool { return t.Object != "" }

// String renders the form used when reporting unresolved targets.
func (t Target) String() string {
	if t.IsAddr() {
		return fmt.Sprintf("%x@%s", t.Addr, t.Object)
	}
	return t.Sym
}

// Graph is the fully resolved call graph together with the tables the
// cost trace and the report need. Callee lists hold resolved idents only,
// sorted and deduplicated. The graph may contain cycles.
type Graph struct {
	Callees    map[Ident][]Ident
	Frames     map[Ident]int    // own frame size per ident, call overhead included
	Global     map[string]Ident // last ident registered under each raw name
	Ambiguous  map[string]bool  // raw names defined in more than one object
	Unresolved []string         // verbatim targets that resolved to nothing
}

// SortedIdents returns every graph key in deterministic order.
func (g *Graph) SortedIdents() []Ident {
	ids := make([]Ident, 0, len(g.Callees))
	for id := range g.Callees {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// AddInterruptRoot inserts the synthetic interrupt root. Its callee set is
// exactly the known idents whose raw name starts with the interrupt-vector
// prefix, giving one entry point whose traced cost is the worst-case
// interrupt-context stack usage.
func (g *Graph) AddInterruptRoot(prefix string) {
	var vectors []Ident
	for id := range g.Callees {
		if strings.HasPrefix(id.Name, prefix) {
			vectors = append(vectors, id)
		}
	}
	sort.Slice(vectors, func(i, j int) bool { return vectors[i].String() < vectors[j].String() })
	g.Callees[InterruptRoot] = vectors
}

// Lattice converts the resolved graph into a lattice.Graph for DOT
// rendering.
func (g *Graph) Lattice() *lattice.Graph {
	lg := &lattice.Graph{}
	for _, id := range g.SortedIdents() {
		lg.Nodes = append(lg.Nodes, id.String())
		for _, c := range g.Callees[id] {
			lg.Edges = append(lg.Edges, lattice.Edge{
				Caller: id.String(),
				Callee: c.String(),
			})
		}
	}
	lg.Dedup()
	return lg
}
