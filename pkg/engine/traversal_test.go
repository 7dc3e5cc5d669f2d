package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/termgraph/pkg/engine/page"
	"github.com/rmax-ai/termgraph/pkg/graph"
	"github.com/rmax-ai/termgraph/pkg/store"
)

const obo = "http://purl.obolibrary.org/obo/"

func goIRI(id string) string { return obo + "GO_" + id }

func goTermFixture(id, label string) store.Term {
	return store.Term{
		IRI:          goIRI(id),
		OntologyName: "go",
		ShortForm:    "GO_" + id,
		OboID:        "GO:" + id,
		Label:        label,
	}
}

func isAEdge(from, to string) store.Edge {
	return store.Edge{OntologyName: "go", From: from, To: to, Relation: store.RelationSubClassOf}
}

func fixture() ([]store.Term, []store.Edge) {
	var terms []store.Term
	for _, id := range [][2]string{
		{"0008150", "biological_process"},
		{"0009987", "cellular process"},
		{"0008152", "metabolic process"},
		{"0044237", "cellular metabolic process"},
		{"0006091", "generation of precursor metabolites and energy"},
		{"0003674", "molecular_function"},
	} {
		terms = append(terms, goTermFixture(id[0], id[1]))
	}
	edges := []store.Edge{
		isAEdge(goIRI("0008150"), goIRI("0009987")),
		isAEdge(goIRI("0008150"), goIRI("0008152")),
		isAEdge(goIRI("0009987"), goIRI("0044237")),
		isAEdge(goIRI("0008152"), goIRI("0044237")),
		isAEdge(goIRI("0044237"), goIRI("0006091")),
		{OntologyName: "go", From: goIRI("0006091"), To: goIRI("0009987"), Relation: "part_of"},
	}

	for _, n := range []string{"a", "b", "c", "d"} {
		terms = append(terms, store.Term{IRI: "urn:cyc:" + n, OntologyName: "cyc", Label: n})
	}
	for _, e := range [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}, {"c", "d"}} {
		edges = append(edges, store.Edge{OntologyName: "cyc", From: "urn:cyc:" + e[0], To: "urn:cyc:" + e[1], Relation: store.RelationSubClassOf})
	}
	return terms, edges
}

func newFixture() *graph.Graph {
	g := graph.NewGraph()
	terms, edges := fixture()
	for _, t := range terms {
		g.AddTerm(t)
	}
	for _, e := range edges {
		g.AddEdge(e)
	}
	return g
}

func iris(terms []store.Term) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = t.IRI
	}
	return out
}

func all() page.Request { return page.Request{Size: 100} }

func TestSelectorFrom_Precedence(t *testing.T) {
	sel, ok := SelectorFrom("urn:x", "X_1", "X:1")
	require.True(t, ok)
	assert.Equal(t, ByIRI("urn:x"), sel)

	sel, ok = SelectorFrom("  ", "X_1", "X:1")
	require.True(t, ok)
	assert.Equal(t, ByShortForm("X_1"), sel)

	sel, ok = SelectorFrom("", "", "X:1")
	require.True(t, ok)
	assert.Equal(t, SelectOboID, sel.Kind)

	_, ok = SelectorFrom("", " ", "")
	assert.False(t, ok)
}

func TestLookupTerm(t *testing.T) {
	e := New(newFixture())
	ctx := context.Background()

	for _, sel := range []Selector{ByIRI(goIRI("0008150")), ByShortForm("GO_0008150"), ByOboID("GO:0008150")} {
		term, err := e.LookupTerm(ctx, "GO", sel)
		require.NoError(t, err, sel.Kind.String())
		assert.Equal(t, goIRI("0008150"), term.IRI)
		assert.True(t, term.IsRoot)
	}

	_, err := e.LookupTerm(ctx, "go", ByIRI(goIRI("9999999")))
	assert.ErrorIs(t, err, ErrTermNotFound)

	_, err = e.LookupTerm(ctx, "nope", ByIRI(goIRI("0008150")))
	assert.ErrorIs(t, err, ErrTermNotFound)

	_, err = e.LookupTerm(ctx, "go", ByShortForm(""))
	assert.ErrorIs(t, err, ErrTermNotFound)
}

func TestRoots(t *testing.T) {
	g := newFixture()
	e := New(g)
	ctx := context.Background()

	p, err := e.Roots(ctx, "Go", all())
	require.NoError(t, err)
	assert.Equal(t, []string{goIRI("0003674"), goIRI("0008150")}, iris(p.Items))
	assert.Equal(t, 2, p.TotalCount)

	g.AddEdge(store.Edge{OntologyName: "go", From: goIRI("0008150"), To: goIRI("0003674"), Relation: store.RelationSubClassOf})
	p, err = e.Roots(ctx, "go", all())
	require.NoError(t, err)
	assert.Equal(t, []string{goIRI("0008150")}, iris(p.Items))

	p, err = e.Roots(ctx, "unknown", all())
	require.NoError(t, err)
	assert.Zero(t, p.TotalCount)
	assert.Empty(t, p.Items)
}

func TestChildren_StableOrdering(t *testing.T) {
	e := New(newFixture())
	ctx := context.Background()

	first, err := e.Children(ctx, "go", goIRI("0008150"), page.Request{Size: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{goIRI("0008152"), goIRI("0009987")}, iris(first.Items))

	again, err := e.Children(ctx, "go", goIRI("0008150"), page.Request{Size: 10})
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestParentsChildrenRoundTrip(t *testing.T) {
	e := New(newFixture())
	ctx := context.Background()

	terms, err := e.Terms(ctx, "go", all())
	require.NoError(t, err)
	require.Equal(t, 6, terms.TotalCount)

	for _, term := range terms.Items {
		parents, err := e.Parents(ctx, "go", term.IRI, all())
		require.NoError(t, err)
		if term.IsRoot {
			assert.Empty(t, parents.Items, term.IRI)
			continue
		}
		require.NotEmpty(t, parents.Items, term.IRI)
		for _, p := range parents.Items {
			children, err := e.Children(ctx, "go", p.IRI, all())
			require.NoError(t, err)
			assert.Contains(t, iris(children.Items), term.IRI)
		}
	}
}

func TestNeighborsOfMissingTerm(t *testing.T) {
	e := New(newFixture())
	ctx := context.Background()

	_, err := e.Children(ctx, "go", goIRI("9999999"), all())
	assert.ErrorIs(t, err, ErrTermNotFound)

	_, err = e.Ancestors(ctx, "efo", goIRI("0006091"), all())
	assert.ErrorIs(t, err, ErrTermNotFound)

	// A resolved term without neighbors is an empty page, not an error.
	p, err := e.Children(ctx, "go", goIRI("0006091"), all())
	require.NoError(t, err)
	assert.Empty(t, p.Items)
}

func TestAncestorsAndDescendants(t *testing.T) {
	e := New(newFixture())
	ctx := context.Background()

	anc, err := e.Ancestors(ctx, "go", goIRI("0006091"), all())
	require.NoError(t, err)
	assert.Equal(t, []string{goIRI("0008150"), goIRI("0008152"), goIRI("0009987"), goIRI("0044237")}, iris(anc.Items))

	desc, err := e.Descendants(ctx, "go", goIRI("0008150"), all())
	require.NoError(t, err)
	assert.Equal(t, []string{goIRI("0006091"), goIRI("0008152"), goIRI("0009987"), goIRI("0044237")}, iris(desc.Items))
}

func TestClosureOnCycle(t *testing.T) {
	e := New(newFixture())
	ctx := context.Background()

	for _, origin := range []string{"urn:cyc:a", "urn:cyc:b", "urn:cyc:c"} {
		anc, err := e.Ancestors(ctx, "cyc", origin, all())
		require.NoError(t, err)
		got := iris(anc.Items)
		assert.NotContains(t, got, origin)
		assert.Len(t, got, 2)

		desc, err := e.Descendants(ctx, "cyc", origin, all())
		require.NoError(t, err)
		got = iris(desc.Items)
		assert.NotContains(t, got, origin)
		assert.Len(t, got, 3)
		assert.Contains(t, got, "urn:cyc:d")
	}
}

func TestDescendants_Paging(t *testing.T) {
	e := New(newFixture())
	ctx := context.Background()

	var joined []string
	for n := 0; n < 3; n++ {
		p, err := e.Descendants(ctx, "go", goIRI("0008150"), page.Request{Number: n, Size: 3})
		require.NoError(t, err)
		assert.Equal(t, 4, p.TotalCount)
		joined = append(joined, iris(p.Items)...)
	}
	assert.Equal(t, []string{goIRI("0006091"), goIRI("0008152"), goIRI("0009987"), goIRI("0044237")}, joined)

	_, err := e.Descendants(ctx, "go", goIRI("0008150"), page.Request{Number: -1})
	assert.ErrorIs(t, err, page.ErrInvalidRequest)
}

func TestRelated(t *testing.T) {
	e := New(newFixture())
	ctx := context.Background()

	p, err := e.Related(ctx, "go", goIRI("0006091"), "part_of", all())
	require.NoError(t, err)
	assert.Equal(t, []string{goIRI("0009987")}, iris(p.Items))

	p, err = e.Related(ctx, "go", goIRI("0006091"), "regulates", all())
	require.NoError(t, err)
	assert.Empty(t, p.Items)

	_, err = e.Related(ctx, "go", goIRI("0000000"), "part_of", all())
	assert.ErrorIs(t, err, ErrTermNotFound)
}

// failingStore fails every neighbor query.
type failingStore struct {
	store.GraphStore
	err error
}

func (f failingStore) Neighbors(ctx context.Context, onto, iri, rel string, dir store.Direction) ([]store.Term, error) {
	return nil, f.err
}

func TestStoreErrorsPropagateUnchanged(t *testing.T) {
	boom := errors.New("disk on fire")
	e := New(failingStore{GraphStore: newFixture(), err: boom})

	_, err := e.Children(context.Background(), "go", goIRI("0008150"), all())
	assert.Same(t, boom, err)

	_, err = e.Descendants(context.Background(), "go", goIRI("0008150"), all())
	assert.Same(t, boom, err)
	assert.NotErrorIs(t, err, ErrTermNotFound)
}

// pushdownStore answers closures natively, with deliberate duplicates.
type pushdownStore struct {
	*graph.Graph
	calls int
	err   error
}

func (p *pushdownStore) Closure(ctx context.Context, onto, iri, rel string, dir store.Direction) ([]store.Term, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	origin, _ := p.TermByIRI(ctx, onto, iri)
	kids, _ := p.Neighbors(ctx, onto, iri, rel, dir)
	return append(append(kids, kids...), *origin), nil
}

func TestClosurePushdown(t *testing.T) {
	ps := &pushdownStore{Graph: newFixture()}
	e := New(ps)

	p, err := e.Descendants(context.Background(), "go", goIRI("0008150"), all())
	require.NoError(t, err)
	assert.Equal(t, 1, ps.calls)
	assert.Equal(t, []string{goIRI("0008152"), goIRI("0009987")}, iris(p.Items))
}

func TestClosurePushdownUnsupportedFallsBack(t *testing.T) {
	ps := &pushdownStore{Graph: newFixture(), err: store.ErrClosureUnsupported}
	e := New(ps)

	p, err := e.Descendants(context.Background(), "go", goIRI("0008150"), all())
	require.NoError(t, err)
	assert.Equal(t, 4, p.TotalCount)
}

func TestCanceledTraversal(t *testing.T) {
	e := New(newFixture())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Descendants(ctx, "go", goIRI("0008150"), all())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClosure_SQLitePushdownMatchesTraversal(t *testing.T) {
	st, err := store.NewStore(filepath.Join(t.TempDir(), "closure.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	terms, edges := fixture()
	require.NoError(t, st.Import(context.Background(), terms, edges))

	pushdown := New(st)
	traversal := New(newFixture())
	ctx := context.Background()

	for _, tc := range []struct{ onto, iri string }{
		{"go", goIRI("0008150")},
		{"go", goIRI("0006091")},
		{"go", goIRI("0044237")},
		{"cyc", "urn:cyc:a"},
		{"cyc", "urn:cyc:d"},
	} {
		want, err := traversal.Descendants(ctx, tc.onto, tc.iri, all())
		require.NoError(t, err)
		got, err := pushdown.Descendants(ctx, tc.onto, tc.iri, all())
		require.NoError(t, err)
		assert.Equal(t, iris(want.Items), iris(got.Items), "descendants of %s", tc.iri)

		want, err = traversal.Ancestors(ctx, tc.onto, tc.iri, all())
		require.NoError(t, err)
		got, err = pushdown.Ancestors(ctx, tc.onto, tc.iri, all())
		require.NoError(t, err)
		assert.Equal(t, iris(want.Items), iris(got.Items), "ancestors of %s", tc.iri)
	}
}

func TestClosure_DanglingEdgeEndsStopBothWalks(t *testing.T) {
	terms := []store.Term{
		{IRI: "urn:dg:top", OntologyName: "dg", Label: "top"},
		{IRI: "urn:dg:mid", OntologyName: "dg", Label: "mid"},
		{IRI: "urn:dg:leaf", OntologyName: "dg", Label: "leaf"},
	}
	edges := []store.Edge{
		{OntologyName: "dg", From: "urn:dg:top", To: "urn:dg:mid", Relation: store.RelationSubClassOf},
		{OntologyName: "dg", From: "urn:dg:mid", To: "urn:dg:ghost", Relation: store.RelationSubClassOf},
		{OntologyName: "dg", From: "urn:dg:ghost", To: "urn:dg:leaf", Relation: store.RelationSubClassOf},
	}

	st, err := store.NewStore(filepath.Join(t.TempDir(), "dangling.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Import(context.Background(), terms, edges))

	g := graph.NewGraph()
	for _, term := range terms {
		g.AddTerm(term)
	}
	for _, e := range edges {
		g.AddEdge(e)
	}

	ctx := context.Background()
	for name, eng := range map[string]*Engine{"sqlite": New(st), "graph": New(g)} {
		down, err := eng.Descendants(ctx, "dg", "urn:dg:top", all())
		require.NoError(t, err)
		assert.Equal(t, []string{"urn:dg:mid"}, iris(down.Items), name)

		up, err := eng.Ancestors(ctx, "dg", "urn:dg:leaf", all())
		require.NoError(t, err)
		assert.Empty(t, up.Items, name)
	}
}
