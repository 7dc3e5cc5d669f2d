package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rmax-ai/termgraph/pkg/store"
)

// Graph is an in-memory GraphStore. It has no native closure support, so
// transitive queries are traversed by the caller.
type Graph struct {
	mu         sync.RWMutex
	ontologies map[string]*ontologyIndex
}

var _ store.GraphStore = (*Graph)(nil)

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		ontologies: make(map[string]*ontologyIndex),
	}
}

// LoadSnapshot builds a graph from a JSON snapshot.
func LoadSnapshot(r io.Reader) (*Graph, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode graph snapshot: %w", err)
	}

	g := NewGraph()
	for _, t := range snap.Terms {
		if t.IRI == "" || t.OntologyName == "" {
			return nil, fmt.Errorf("snapshot term missing iri or ontology_name: %+v", t)
		}
		g.AddTerm(t)
	}
	for _, e := range snap.Edges {
		if e.From == "" || e.To == "" || e.Relation == "" || e.OntologyName == "" {
			return nil, fmt.Errorf("snapshot edge incomplete: %+v", e)
		}
		g.AddEdge(e)
	}
	return g, nil
}

// LoadSnapshotFile builds a graph from a JSON snapshot on disk.
func LoadSnapshotFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph snapshot: %w", err)
	}
	defer f.Close()
	return LoadSnapshot(f)
}

func (g *Graph) index(ontology string) *ontologyIndex {
	name := strings.ToLower(ontology)
	idx, ok := g.ontologies[name]
	if !ok {
		idx = newOntologyIndex()
		g.ontologies[name] = idx
	}
	return idx
}

// AddTerm adds or replaces a term.
func (g *Graph) AddTerm(t store.Term) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t.OntologyName = strings.ToLower(t.OntologyName)
	idx := g.index(t.OntologyName)
	idx.terms[t.IRI] = &t
	if t.ShortForm != "" {
		idx.byShortForm[t.ShortForm] = t.IRI
	}
	if t.OboID != "" {
		idx.byOboID[t.OboID] = t.IRI
	}
}

// AddEdge adds an edge. Adding the same edge twice is a no-op.
func (g *Graph) AddEdge(e store.Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e.OntologyName = strings.ToLower(e.OntologyName)
	idx := g.index(e.OntologyName)
	if _, dup := idx.edges[e]; dup {
		return
	}
	idx.edges[e] = struct{}{}

	from := adjKey{iri: e.From, relation: e.Relation}
	to := adjKey{iri: e.To, relation: e.Relation}
	idx.out[from] = append(idx.out[from], e.To)
	idx.in[to] = append(idx.in[to], e.From)
}

// materialize copies a stored term and fills in the computed hierarchy flags.
func (idx *ontologyIndex) materialize(iri string) (store.Term, bool) {
	t, ok := idx.terms[iri]
	if !ok {
		return store.Term{}, false
	}
	out := *t
	out.IsRoot = idx.known(idx.in[adjKey{iri: iri, relation: store.RelationSubClassOf}]) == 0
	out.HasChildren = idx.known(idx.out[adjKey{iri: iri, relation: store.RelationSubClassOf}]) > 0
	return out, true
}

// known counts the iris that have a term. Dangling edge ends are ignored
// everywhere, matching what Neighbors returns.
func (idx *ontologyIndex) known(iris []string) int {
	n := 0
	for _, iri := range iris {
		if _, ok := idx.terms[iri]; ok {
			n++
		}
	}
	return n
}

// collect materializes iris sorted by IRI. Dangling edge ends are skipped.
func (idx *ontologyIndex) collect(iris []string) []store.Term {
	terms := make([]store.Term, 0, len(iris))
	for _, iri := range iris {
		if t, ok := idx.materialize(iri); ok {
			terms = append(terms, t)
		}
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].IRI < terms[j].IRI })
	return terms
}

func (g *Graph) lookup(ontology string, resolve func(*ontologyIndex) (string, bool)) *store.Term {
	g.mu.RLock()
	defer g.mu.RUnlock()

	idx, ok := g.ontologies[ontology]
	if !ok {
		return nil
	}
	iri, ok := resolve(idx)
	if !ok {
		return nil
	}
	t, ok := idx.materialize(iri)
	if !ok {
		return nil
	}
	return &t
}

// TermByIRI returns the term with the given IRI, or nil.
func (g *Graph) TermByIRI(ctx context.Context, ontology, iri string) (*store.Term, error) {
	return g.lookup(ontology, func(idx *ontologyIndex) (string, bool) { return iri, true }), nil
}

// TermByShortForm returns the term with the given short form, or nil.
func (g *Graph) TermByShortForm(ctx context.Context, ontology, shortForm string) (*store.Term, error) {
	return g.lookup(ontology, func(idx *ontologyIndex) (string, bool) {
		iri, ok := idx.byShortForm[shortForm]
		return iri, ok
	}), nil
}

// TermByOboID returns the term with the given OBO id, or nil.
func (g *Graph) TermByOboID(ctx context.Context, ontology, oboID string) (*store.Term, error) {
	return g.lookup(ontology, func(idx *ontologyIndex) (string, bool) {
		iri, ok := idx.byOboID[oboID]
		return iri, ok
	}), nil
}

// Terms returns every term of the ontology.
func (g *Graph) Terms(ctx context.Context, ontology string) ([]store.Term, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	idx, ok := g.ontologies[ontology]
	if !ok {
		return []store.Term{}, nil
	}
	all := make([]string, 0, len(idx.terms))
	for iri := range idx.terms {
		all = append(all, iri)
	}
	return idx.collect(all), nil
}

// Roots returns the terms without a hierarchical parent.
func (g *Graph) Roots(ctx context.Context, ontology string) ([]store.Term, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	idx, ok := g.ontologies[ontology]
	if !ok {
		return []store.Term{}, nil
	}
	var roots []string
	for iri := range idx.terms {
		if idx.known(idx.in[adjKey{iri: iri, relation: store.RelationSubClassOf}]) == 0 {
			roots = append(roots, iri)
		}
	}
	return idx.collect(roots), nil
}

// Neighbors returns the direct neighbors of iri over relation.
func (g *Graph) Neighbors(ctx context.Context, ontology, iri, relation string, dir store.Direction) ([]store.Term, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	idx, ok := g.ontologies[ontology]
	if !ok {
		return []store.Term{}, nil
	}
	key := adjKey{iri: iri, relation: relation}
	if dir == store.Incoming {
		return idx.collect(idx.in[key]), nil
	}
	return idx.collect(idx.out[key]), nil
}

// ChildCounts counts the direct children of each IRI.
func (g *Graph) ChildCounts(ctx context.Context, ontology string, iris []string) (map[string]int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	counts := make(map[string]int, len(iris))
	idx, ok := g.ontologies[ontology]
	if !ok {
		return counts, nil
	}
	for _, iri := range iris {
		if n := idx.known(idx.out[adjKey{iri: iri, relation: store.RelationSubClassOf}]); n > 0 {
			counts[iri] = n
		}
	}
	return counts, nil
}

// Snapshot exports the graph in its serialized form, ordered by ontology,
// then IRI. Computed hierarchy flags are left unset.
func (g *Graph) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := make([]string, 0, len(g.ontologies))
	for name := range g.ontologies {
		names = append(names, name)
	}
	sort.Strings(names)

	snap := Snapshot{Terms: []store.Term{}, Edges: []store.Edge{}}
	for _, name := range names {
		idx := g.ontologies[name]

		terms := make([]store.Term, 0, len(idx.terms))
		for _, t := range idx.terms {
			terms = append(terms, *t)
		}
		sort.Slice(terms, func(i, j int) bool { return terms[i].IRI < terms[j].IRI })

		edges := make([]store.Edge, 0, len(idx.edges))
		for e := range idx.edges {
			edges = append(edges, e)
		}
		sort.Slice(edges, func(i, j int) bool {
			a, b := edges[i], edges[j]
			if a.From != b.From {
				return a.From < b.From
			}
			if a.Relation != b.Relation {
				return a.Relation < b.Relation
			}
			return a.To < b.To
		})

		snap.Terms = append(snap.Terms, terms...)
		snap.Edges = append(snap.Edges, edges...)
	}
	return snap
}
