package graph

import (
	"github.com/rmax-ai/termgraph/pkg/store"
)

// Snapshot is the serialized form of an already-built ontology graph.
type Snapshot struct {
	Terms []store.Term `json:"terms"`
	Edges []store.Edge `json:"edges"`
}

// adjKey addresses one relation's adjacency list for a term.
type adjKey struct {
	iri      string
	relation string
}

// ontologyIndex holds every lookup structure for one ontology.
type ontologyIndex struct {
	terms       map[string]*store.Term // iri -> term
	byShortForm map[string]string      // short form -> iri
	byOboID     map[string]string      // obo id -> iri
	out         map[adjKey][]string    // (from, relation) -> []to
	in          map[adjKey][]string    // (to, relation) -> []from
	edges       map[store.Edge]struct{}
}

func newOntologyIndex() *ontologyIndex {
	return &ontologyIndex{
		terms:       make(map[string]*store.Term),
		byShortForm: make(map[string]string),
		byOboID:     make(map[string]string),
		out:         make(map[adjKey][]string),
		in:          make(map[adjKey][]string),
		edges:       make(map[store.Edge]struct{}),
	}
}
