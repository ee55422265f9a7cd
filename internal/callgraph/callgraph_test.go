package callgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackcheck/internal/diag"
)

func TestResolvePrecedence(t *testing.T) {
	b := NewBuilder(nil)
	b.Define("a.o", "leaf", 0x0, false)
	b.Define("a.o", "caller", 0x2a, false)
	b.AddCall(Target{Object: "a.o", Addr: 0x0}) // offset form
	b.AddCall(Target{Sym: "uart_send"})         // global name form
	b.AddCall(Target{Sym: "leaf@a.o"})          // already a graph key
	b.AddCall(Target{Sym: "mystery"})           // resolves to nothing
	b.Define("b.o", "uart_send", 0x10, false)

	g := b.Resolve()

	caller := Ident{Name: "caller", Object: "a.o"}
	assert.ElementsMatch(t, []Ident{
		{Name: "leaf", Object: "a.o"},
		{Name: "uart_send", Object: "b.o"},
	}, g.Callees[caller], "duplicates collapse: offset and key forms hit the same ident")
	assert.Equal(t, []string{"mystery"}, g.Unresolved)
}

func TestResolveDuplicateTargetsCollapse(t *testing.T) {
	b := NewBuilder(nil)
	b.Define("a.o", "f", 0x0, false)
	b.Define("a.o", "g", 0x10, false)
	b.AddCall(Target{Sym: "f"})
	b.AddCall(Target{Sym: "f"})
	b.AddCall(Target{Object: "a.o", Addr: 0x0})

	g := b.Resolve()
	assert.Equal(t, []Ident{{Name: "f", Object: "a.o"}}, g.Callees[Ident{Name: "g", Object: "a.o"}])
}

func TestAmbiguousLastWins(t *testing.T) {
	b := NewBuilder(nil)
	b.Define("a.o", "foo", 0x0, false)
	b.Define("b.o", "foo", 0x0, false)
	b.Define("c.o", "main", 0x0, false)
	b.AddCall(Target{Sym: "foo"})

	g := b.Resolve()

	require.True(t, g.Ambiguous["foo"])
	assert.Equal(t, []Ident{{Name: "foo", Object: "b.o"}},
		g.Callees[Ident{Name: "main", Object: "c.o"}],
		"last registration wins")

	// Both instances keep their own graph entries.
	assert.Contains(t, g.Callees, Ident{Name: "foo", Object: "a.o"})
	assert.Contains(t, g.Callees, Ident{Name: "foo", Object: "b.o"})

	// The pick is surfaced, never silent.
	require.Equal(t, 1, b.Diags.Len())
	assert.Equal(t, diag.KindAmbiguous, b.Diags.Items()[0].Kind)
}

func TestDummySharesRealFunctionKey(t *testing.T) {
	b := NewBuilder(nil)
	b.Define("a.o", "test", 0x0, false)
	b.Define("a.o", "real_func", 0x10, false)
	// __stack_check_dummy__test, prefix already stripped by the parser.
	b.Define("a.o", "test", 0x20, true)
	b.AddCall(Target{Sym: "real_func"})

	g := b.Resolve()

	// The dummy's manual edge lands on the real function's ident.
	assert.Equal(t, []Ident{{Name: "real_func", Object: "a.o"}},
		g.Callees[Ident{Name: "test", Object: "a.o"}])
	// No separate dummy node, no ambiguity.
	assert.Len(t, g.Callees, 2)
	assert.False(t, g.Ambiguous["test"], "dummy definitions must not flag ambiguity")
}

func TestDummyAddressNotRegistered(t *testing.T) {
	b := NewBuilder(nil)
	b.Define("a.o", "shadow", 0x20, true) // dummy only
	b.Define("a.o", "caller", 0x0, false)
	b.AddCall(Target{Object: "a.o", Addr: 0x20})

	g := b.Resolve()
	assert.Empty(t, g.Callees[Ident{Name: "caller", Object: "a.o"}])
	assert.Equal(t, []string{"20@a.o"}, g.Unresolved)
}

func TestAllowlist(t *testing.T) {
	b := NewBuilder([]string{"keep"})
	b.Define("a.o", "keep", 0x0, false)
	b.AddCall(Target{Sym: "other"})
	b.Define("a.o", "drop", 0x10, false)
	b.AddCall(Target{Sym: "keep"})

	g := b.Resolve()

	assert.Contains(t, g.Callees, Ident{Name: "keep", Object: "a.o"})
	assert.NotContains(t, g.Callees, Ident{Name: "drop", Object: "a.o"})
	// Edges following a filtered definition are dropped with it, and must
	// not leak onto the previous function.
	assert.Equal(t, []string{"other"}, g.Unresolved)
}

func TestResolveIdempotent(t *testing.T) {
	first := NewBuilder(nil)
	first.Define("a.o", "main", 0x0, false)
	first.AddCall(Target{Sym: "helper"})
	first.Define("a.o", "helper", 0x10, false)
	g1 := first.Resolve()

	// Re-ingest the resolved edges as already-qualified targets.
	second := NewBuilder(nil)
	second.Define("a.o", "main", 0x0, false)
	for _, c := range g1.Callees[Ident{Name: "main", Object: "a.o"}] {
		second.AddCall(Target{Sym: c.String()})
	}
	second.Define("a.o", "helper", 0x10, false)
	g2 := second.Resolve()

	assert.Equal(t, g1.Callees, g2.Callees)
	assert.Empty(t, g2.Unresolved)
}

func TestAddInterruptRoot(t *testing.T) {
	b := NewBuilder(nil)
	b.Define("a.o", "__vector_3", 0x0, false)
	b.Define("a.o", "main", 0x10, false)
	b.Define("b.o", "__vector_11", 0x0, false)
	g := b.Resolve()

	g.AddInterruptRoot("__vector_")

	require.Contains(t, g.Callees, InterruptRoot)
	assert.ElementsMatch(t, []Ident{
		{Name: "__vector_11", Object: "b.o"},
		{Name: "__vector_3", Object: "a.o"},
	}, g.Callees[InterruptRoot])
}

func TestIdentString(t *testing.T) {
	assert.Equal(t, "foo@a.o", Ident{Name: "foo", Object: "a.o"}.String())
	assert.Equal(t, "INTERRUPT", InterruptRoot.String())
	assert.Equal(t, "2a@a.o", Target{Object: "a.o", Addr: 0x2a}.String())
	assert.Equal(t, "memset", Target{Sym: "memset"}.String())
}

func TestLatticeExport(t *testing.T) {
	b := NewBuilder(nil)
	b.Define("a.o", "main", 0x0, false)
	b.AddCall(Target{Sym: "leaf"})
	b.Define("a.o", "leaf", 0x10, false)
	g := b.Resolve()

	lg := g.Lattice()
	assert.ElementsMatch(t, []string{"leaf@a.o", "main@a.o"}, lg.Nodes)
	require.Len(t, lg.Edges, 1)
	assert.Equal(t, "main@a.o", lg.Edges[0].Caller)
	assert.Equal(t, "leaf@a.o", lg.Edges[0].Callee)
}
