package callgraph

import (
	"sort"
	"strings"

	"stackcheck/internal/diag"
)

type addrKey struct {
	object string
	addr   uint64
}

// Builder accumulates per-object symbol tables and raw call edges across
// all ingested object files, then resolves them into a Graph. It is the
// single context value threaded through ingestion; nothing here is global.
type Builder struct {
	calls     map[Ident][]Target
	order     []Ident // definition order, drives deterministic resolution
	addresses map[addrKey]Ident
	global    map[string]Ident
	ambiguous map[string]bool
	defined   map[string]bool // non-dummy names seen, for collision detection
	frames    map[Ident]int

	allow map[string]bool // nil means ingest everything

	cur   Ident
	curOK bool

	// Diags collects non-fatal ambiguity and attribution warnings.
	Diags diag.Diags
}

// NewBuilder creates an empty builder. A non-empty allowlist restricts
// ingestion to the named functions; definitions and edges outside the list
// are skipped.
func NewBuilder(allowlist []string) *Builder {
	b := &Builder{
		calls:     make(map[Ident][]Target),
		addresses: make(map[addrKey]Ident),
		global:    make(map[string]Ident),
		ambiguous: make(map[string]bool),
		defined:   make(map[string]bool),
		frames:    make(map[Ident]int),
	}
	if len(allowlist) > 0 {
		b.allow = make(map[string]bool, len(allowlist))
		for _, name := range allowlist {
			b.allow[name] = true
		}
	}
	return b
}

// Define registers a function definition and makes it the current edge
// attachment point. The dummy prefix has already been stripped by the
// parser, so a dummy definition shares the graph key of the real function
// it stands in for: its manual edges merge into the real function's callee
// set. Dummy definitions never enter the address table and never flag
// ambiguity.
func (b *Builder) Define(object, name string, addr uint64, dummy bool) {
	if b.allow != nil && !b.allow[name] {
		b.curOK = false
		return
	}
	id := Ident{Name: name, Object: object}
	b.cur, b.curOK = id, true

	if _, ok := b.calls[id]; !ok {
		b.calls[id] = nil
		b.order = append(b.order, id)
	}
	if !dummy {
		if b.defined[name] {
			b.ambiguous[name] = true
		}
		b.defined[name] = true
		b.addresses[addrKey{object, addr}] = id
	}
	// Last registration wins; resolution relies on this ordering.
	b.global[name] = id
}

// AddCall appends a raw call target to the most recently defined function.
// Targets with no attachment point (nothing defined yet, or the current
// definition was filtered out) are dropped.
func (b *Builder) AddCall(t Target) {
	if !b.curOK {
		return
	}
	b.calls[b.cur] = append(b.calls[b.cur], t)
}

// SetFrameSize records the frame size for one function. The caller adds
// the call-overhead constant before storing.
func (b *Builder) SetFrameSize(object, name string, size int) {
	b.frames[Ident{Name: name, Object: object}] = size
}

// Resolve maps every raw call target to exactly one ident, in precedence
// order: the address table of the target's own object file, then the
// global name table, then a target string that is itself already a graph
// key. Targets matching none of these land in the unresolved set, which is
// carried through to reporting rather than discarded.
//
// Resolving through an ambiguous name picks whichever ident last
// registered it. That is a pragmatic tie-break, not guaranteed-correct
// resolution, so each such pick raises a diagnostic.
func (b *Builder) Resolve() *Graph {
	g := &Graph{
		Callees:   make(map[Ident][]Ident, len(b.calls)),
		Frames:    b.frames,
		Global:    b.global,
		Ambiguous: b.ambiguous,
	}
	unresolved := make(map[string]bool)

	for _, from := range b.order {
		seen := make(map[Ident]bool)
		var resolved []Ident
		for _, t := range b.calls[from] {
			id, ok := b.resolveTarget(t)
			if !ok {
				unresolved[t.String()] = true
				continue
			}
			if !seen[id] {
				seen[id] = true
				resolved = append(resolved, id)
			}
		}
		sort.Slice(resolved, func(i, j int) bool {
			return resolved[i].String() < resolved[j].String()
		})
		g.Callees[from] = resolved
	}

	g.Unresolved = make([]string, 0, len(unresolved))
	for t := range unresolved {
		g.Unresolved = append(g.Unresolved, t)
	}
	sort.Strings(g.Unresolved)
	return g
}

func (b *Builder) resolveTarget(t Target) (Ident, bool) {
	if t.IsAddr() {
		id, ok := b.addresses[addrKey{t.Object, t.Addr}]
		return id, ok
	}
	if id, ok := b.global[t.Sym]; ok {
		if b.ambiguous[t.Sym] {
			b.Diags.Addf(diag.KindAmbiguous, "ambiguous resolution: %s -> %s", t.Sym, id)
		}
		return id, true
	}
	// The target may already be a qualified graph key, e.g. an edge
	// re-ingested from an earlier resolution pass.
	if i := strings.LastIndexByte(t.Sym, '@'); i > 0 {
		id := Ident{Name: t.Sym[:i], Object: t.Sym[i+1:]}
		if _, ok := b.calls[id]; ok {
			return id, true
		}
	}
	return Ident{}, false
}
