package store

import (
	"context"
	"encoding/json"
	"errors"
)

// RelationSubClassOf is the reserved hierarchical relation. Hierarchical edges
// run from parent to child.
const RelationSubClassOf = "is_a"

// Direction selects which end of an edge a traversal follows.
type Direction int

const (
	// Outgoing follows edges from the term to their targets.
	Outgoing Direction = iota
	// Incoming follows edges from their sources to the term.
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "in"
	}
	return "out"
}

// ErrClosureUnsupported is returned by a ClosureQuerier that cannot push a
// closure down for the given query. Callers fall back to their own traversal.
var ErrClosureUnsupported = errors.New("native closure not supported")

// Term is a node of an ontology graph.
type Term struct {
	IRI          string          `json:"iri"`
	OntologyName string          `json:"ontology_name"`
	ShortForm    string          `json:"short_form,omitempty"`
	OboID        string          `json:"obo_id,omitempty"`
	Label        string          `json:"label"`
	Description  []string        `json:"description,omitempty"`
	Synonyms     []string        `json:"synonyms,omitempty"`
	IsObsolete   bool            `json:"is_obsolete"`
	IsRoot       bool            `json:"is_root"`
	HasChildren  bool            `json:"has_children"`
	Annotation   json.RawMessage `json:"annotation,omitempty"` // Opaque, carried through unchanged
}

// Edge is a directed, typed relation between two terms of one ontology.
type Edge struct {
	OntologyName string `json:"ontology_name"`
	From         string `json:"from"`
	To           string `json:"to"`
	Relation     string `json:"relation"`
}

// GraphStore is the read-only query surface over a stored ontology graph.
// Ontology names are expected to be normalized by the caller. Lookups return
// (nil, nil) when nothing matches.
type GraphStore interface {
	TermByIRI(ctx context.Context, ontology, iri string) (*Term, error)
	TermByShortForm(ctx context.Context, ontology, shortForm string) (*Term, error)
	TermByOboID(ctx context.Context, ontology, oboID string) (*Term, error)

	// Terms returns every term of the ontology.
	Terms(ctx context.Context, ontology string) ([]Term, error)

	// Roots returns the terms with no incoming hierarchical edge.
	Roots(ctx context.Context, ontology string) ([]Term, error)

	// Neighbors returns the direct neighbors of iri over one relation.
	Neighbors(ctx context.Context, ontology, iri, relation string, dir Direction) ([]Term, error)

	// ChildCounts returns the number of direct children for each of iris.
	// IRIs without children may be absent from the result.
	ChildCounts(ctx context.Context, ontology string, iris []string) (map[string]int, error)
}

// ClosureQuerier is implemented by stores that compute transitive closures
// natively. The result excludes iri itself and holds no duplicates.
type ClosureQuerier interface {
	Closure(ctx context.Context, ontology, iri, relation string, dir Direction) ([]Term, error)
}
