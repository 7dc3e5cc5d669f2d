package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const obo = "http://purl.obolibrary.org/obo/"

func goTerm(id, label string) Term {
	return Term{
		IRI:          obo + "GO_" + id,
		OntologyName: "go",
		ShortForm:    "GO_" + id,
		OboID:        "GO:" + id,
		Label:        label,
	}
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := NewStore(filepath.Join(t.TempDir(), "termgraph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	seed(t, st,
		[]Term{
			goTerm("0008150", "biological_process"),
			goTerm("0009987", "cellular process"),
			goTerm("0008152", "metabolic process"),
			goTerm("0044237", "cellular metabolic process"),
			goTerm("0006091", "generation of precursor metabolites and energy"),
			goTerm("0003674", "molecular_function"),
			{IRI: "urn:cyc:a", OntologyName: "cyc", Label: "a"},
			{IRI: "urn:cyc:b", OntologyName: "cyc", Label: "b"},
			{IRI: "urn:cyc:c", OntologyName: "cyc", Label: "c"},
			{IRI: "urn:cyc:d", OntologyName: "cyc", Label: "d"},
		},
		[]Edge{
			{"go", obo + "GO_0008150", obo + "GO_0009987", RelationSubClassOf},
			{"go", obo + "GO_0008150", obo + "GO_0008152", RelationSubClassOf},
			{"go", obo + "GO_0009987", obo + "GO_0044237", RelationSubClassOf},
			{"go", obo + "GO_0008152", obo + "GO_0044237", RelationSubClassOf},
			{"go", obo + "GO_0044237", obo + "GO_0006091", RelationSubClassOf},
			{"go", obo + "GO_0006091", obo + "GO_0009987", "part_of"},
			{"cyc", "urn:cyc:a", "urn:cyc:b", RelationSubClassOf},
			{"cyc", "urn:cyc:b", "urn:cyc:c", RelationSubClassOf},
			{"cyc", "urn:cyc:c", "urn:cyc:a", RelationSubClassOf},
			{"cyc", "urn:cyc:c", "urn:cyc:d", RelationSubClassOf},
		},
	)
	return st
}

func seed(t *testing.T, st *Store, terms []Term, edges []Edge) {
	t.Helper()
	require.NoError(t, st.Import(context.Background(), terms, edges))
}

func iris(terms []Term) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = t.IRI
	}
	return out
}

func TestNewStore_CreatesSchema(t *testing.T) {
	st := setupTestStore(t)

	for _, table := range []string{"terms", "edges"} {
		var name string
		err := st.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err)
		assert.Equal(t, table, name)
	}
}

func TestStore_TermLookups(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	byIRI, err := st.TermByIRI(ctx, "go", obo+"GO_0008150")
	require.NoError(t, err)
	require.NotNil(t, byIRI)
	assert.Equal(t, "biological_process", byIRI.Label)
	assert.True(t, byIRI.IsRoot)
	assert.True(t, byIRI.HasChildren)

	byShort, err := st.TermByShortForm(ctx, "go", "GO_0044237")
	require.NoError(t, err)
	require.NotNil(t, byShort)
	assert.Equal(t, obo+"GO_0044237", byShort.IRI)
	assert.False(t, byShort.IsRoot)

	byObo, err := st.TermByOboID(ctx, "go", "GO:0006091")
	require.NoError(t, err)
	require.NotNil(t, byObo)
	assert.False(t, byObo.HasChildren)

	missing, err := st.TermByIRI(ctx, "go", obo+"GO_9999999")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// Terms never cross ontology boundaries.
	other, err := st.TermByIRI(ctx, "cyc", obo+"GO_0008150")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestStore_TermPayloadRoundTrip(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	seed(t, st, []Term{{
		IRI:          "urn:x:1",
		OntologyName: "x",
		Label:        "one",
		Description:  []string{"first"},
		Synonyms:     []string{"uno", "eins"},
		IsObsolete:   true,
		Annotation:   json.RawMessage(`{"database_cross_reference":["Wikipedia:One"]}`),
	}}, nil)

	got, err := st.TermByIRI(ctx, "x", "urn:x:1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"first"}, got.Description)
	assert.Equal(t, []string{"uno", "eins"}, got.Synonyms)
	assert.True(t, got.IsObsolete)
	assert.JSONEq(t, `{"database_cross_reference":["Wikipedia:One"]}`, string(got.Annotation))
}

func TestStore_Roots(t *testing.T) {
	st := setupTestStore(t)

	roots, err := st.Roots(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, []string{obo + "GO_0003674", obo + "GO_0008150"}, iris(roots))

	// Every term of a pure cycle has a parent.
	roots, err = st.Roots(context.Background(), "cyc")
	require.NoError(t, err)
	assert.Empty(t, roots)
}

func TestStore_Neighbors(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	children, err := st.Neighbors(ctx, "go", obo+"GO_0008150", RelationSubClassOf, Outgoing)
	require.NoError(t, err)
	assert.Equal(t, []string{obo + "GO_0008152", obo + "GO_0009987"}, iris(children))

	parents, err := st.Neighbors(ctx, "go", obo+"GO_0044237", RelationSubClassOf, Incoming)
	require.NoError(t, err)
	assert.Equal(t, []string{obo + "GO_0008152", obo + "GO_0009987"}, iris(parents))

	partOf, err := st.Neighbors(ctx, "go", obo+"GO_0006091", "part_of", Outgoing)
	require.NoError(t, err)
	assert.Equal(t, []string{obo + "GO_0009987"}, iris(partOf))

	unknown, err := st.Neighbors(ctx, "go", obo+"GO_0006091", "regulates", Outgoing)
	require.NoError(t, err)
	assert.Empty(t, unknown)
}

func TestStore_Closure(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	ancestors, err := st.Closure(ctx, "go", obo+"GO_0006091", RelationSubClassOf, Incoming)
	require.NoError(t, err)
	assert.Equal(t, []string{
		obo + "GO_0008150",
		obo + "GO_0008152",
		obo + "GO_0009987",
		obo + "GO_0044237",
	}, iris(ancestors))

	descendants, err := st.Closure(ctx, "go", obo+"GO_0008150", RelationSubClassOf, Outgoing)
	require.NoError(t, err)
	assert.Equal(t, []string{
		obo + "GO_0006091",
		obo + "GO_0008152",
		obo + "GO_0009987",
		obo + "GO_0044237",
	}, iris(descendants))
}

func TestStore_ClosureOnCycle(t *testing.T) {
	st := setupTestStore(t)

	ancestors, err := st.Closure(context.Background(), "cyc", "urn:cyc:a", RelationSubClassOf, Incoming)
	require.NoError(t, err)
	assert.Equal(t, []string{"urn:cyc:b", "urn:cyc:c"}, iris(ancestors))

	descendants, err := st.Closure(context.Background(), "cyc", "urn:cyc:b", RelationSubClassOf, Outgoing)
	require.NoError(t, err)
	assert.Equal(t, []string{"urn:cyc:a", "urn:cyc:c", "urn:cyc:d"}, iris(descendants))
}

func TestStore_ChildCounts(t *testing.T) {
	st := setupTestStore(t)

	counts, err := st.ChildCounts(context.Background(), "go", []string{
		obo + "GO_0008150", obo + "GO_0044237", obo + "GO_0006091",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, counts[obo+"GO_0008150"])
	assert.Equal(t, 1, counts[obo+"GO_0044237"])
	assert.Zero(t, counts[obo+"GO_0006091"])

	empty, err := st.ChildCounts(context.Background(), "go", nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_CanceledContext(t *testing.T) {
	st := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := st.Roots(ctx, "go")
	assert.Error(t, err)
}

func TestStore_ImportIsIdempotent(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	before, err := st.Terms(ctx, "go")
	require.NoError(t, err)

	renamed := goTerm("0008150", "biological process")
	require.NoError(t, st.Import(ctx, []Term{renamed}, []Edge{
		{OntologyName: "go", From: renamed.IRI, To: goTerm("0009987", "").IRI, Relation: RelationSubClassOf},
	}))

	after, err := st.Terms(ctx, "go")
	require.NoError(t, err)
	assert.Len(t, after, len(before))

	term, err := st.TermByIRI(ctx, "go", renamed.IRI)
	require.NoError(t, err)
	assert.Equal(t, "biological process", term.Label)

	kids, err := st.Neighbors(ctx, "go", renamed.IRI, RelationSubClassOf, Outgoing)
	require.NoError(t, err)
	assert.Len(t, kids, 2)
}

func TestStore_ImportNormalizesOntologyNames(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Import(ctx,
		[]Term{
			{IRI: "urn:hp:1", OntologyName: "HP", Label: "phenotypic abnormality"},
			{IRI: "urn:hp:2", OntologyName: " Hp ", Label: "abnormality of the eye"},
		},
		[]Edge{{OntologyName: "HP", From: "urn:hp:1", To: "urn:hp:2", Relation: RelationSubClassOf}},
	))

	term, err := st.TermByIRI(ctx, "hp", "urn:hp:2")
	require.NoError(t, err)
	require.NotNil(t, term)
	assert.Equal(t, "hp", term.OntologyName)

	kids, err := st.Neighbors(ctx, "hp", "urn:hp:1", RelationSubClassOf, Outgoing)
	require.NoError(t, err)
	assert.Equal(t, []string{"urn:hp:2"}, iris(kids))

	roots, err := st.Roots(ctx, "hp")
	require.NoError(t, err)
	assert.Equal(t, []string{"urn:hp:1"}, iris(roots))
}

func TestStore_DanglingEdgeEndsAreInvisible(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	// urn:dg:ghost has edges but no term row.
	require.NoError(t, st.Import(ctx,
		[]Term{
			{IRI: "urn:dg:top", OntologyName: "dg", Label: "top"},
			{IRI: "urn:dg:leaf", OntologyName: "dg", Label: "leaf"},
			{IRI: "urn:dg:orphan", OntologyName: "dg", Label: "orphan"},
		},
		[]Edge{
			{"dg", "urn:dg:top", "urn:dg:ghost", RelationSubClassOf},
			{"dg", "urn:dg:ghost", "urn:dg:leaf", RelationSubClassOf},
			{"dg", "urn:dg:ghost", "urn:dg:orphan", RelationSubClassOf},
		},
	))

	descendants, err := st.Closure(ctx, "dg", "urn:dg:top", RelationSubClassOf, Outgoing)
	require.NoError(t, err)
	assert.Empty(t, descendants, "the walk stops at the missing term")

	kids, err := st.Neighbors(ctx, "dg", "urn:dg:top", RelationSubClassOf, Outgoing)
	require.NoError(t, err)
	assert.Empty(t, kids)

	counts, err := st.ChildCounts(ctx, "dg", []string{"urn:dg:top"})
	require.NoError(t, err)
	assert.Zero(t, counts["urn:dg:top"])

	top, err := st.TermByIRI(ctx, "dg", "urn:dg:top")
	require.NoError(t, err)
	assert.False(t, top.HasChildren)

	roots, err := st.Roots(ctx, "dg")
	require.NoError(t, err)
	assert.Equal(t, []string{"urn:dg:leaf", "urn:dg:orphan", "urn:dg:top"}, iris(roots))

	leaf, err := st.TermByIRI(ctx, "dg", "urn:dg:leaf")
	require.NoError(t, err)
	assert.True(t, leaf.IsRoot)
}
