package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/rmax-ai/termgraph/pkg/store"
)

// ErrTermNotFound reports that no term matched. It also covers unknown
// ontologies: the two cases are not told apart.
var ErrTermNotFound = errors.New("term not found")

// SelectorKind identifies which identifier a Selector carries.
type SelectorKind int

const (
	SelectIRI SelectorKind = iota
	SelectShortForm
	SelectOboID
)

func (k SelectorKind) String() string {
	switch k {
	case SelectIRI:
		return "iri"
	case SelectShortForm:
		return "short_form"
	case SelectOboID:
		return "obo_id"
	default:
		return "unknown"
	}
}

// Selector is one of the alternate term identifiers.
type Selector struct {
	Kind  SelectorKind
	Value string
}

// ByIRI selects a term by IRI.
func ByIRI(iri string) Selector { return Selector{Kind: SelectIRI, Value: iri} }

// ByShortForm selects a term by short form.
func ByShortForm(sf string) Selector { return Selector{Kind: SelectShortForm, Value: sf} }

// ByOboID selects a term by OBO id.
func ByOboID(id string) Selector { return Selector{Kind: SelectOboID, Value: id} }

// SelectorFrom picks the selector from optional identifiers with precedence
// IRI > short form > OBO id. Blank values count as not supplied; ok is false
// when none was supplied.
func SelectorFrom(iri, shortForm, oboID string) (Selector, bool) {
	switch {
	case strings.TrimSpace(iri) != "":
		return ByIRI(strings.TrimSpace(iri)), true
	case strings.TrimSpace(shortForm) != "":
		return ByShortForm(strings.TrimSpace(shortForm)), true
	case strings.TrimSpace(oboID) != "":
		return ByOboID(strings.TrimSpace(oboID)), true
	default:
		return Selector{}, false
	}
}

// NormalizeOntology lowercases an ontology id for lookup.
func NormalizeOntology(ontologyID string) string {
	return strings.ToLower(strings.TrimSpace(ontologyID))
}

// Resolve returns the term matching sel in the ontology, or ErrTermNotFound.
func (e *Engine) Resolve(ctx context.Context, ontologyID string, sel Selector) (*store.Term, error) {
	onto := NormalizeOntology(ontologyID)
	if onto == "" || strings.TrimSpace(sel.Value) == "" {
		return nil, ErrTermNotFound
	}

	var (
		t   *store.Term
		err error
	)
	switch sel.Kind {
	case SelectIRI:
		t, err = e.store.TermByIRI(ctx, onto, sel.Value)
	case SelectShortForm:
		t, err = e.store.TermByShortForm(ctx, onto, sel.Value)
	case SelectOboID:
		t, err = e.store.TermByOboID(ctx, onto, sel.Value)
	default:
		return nil, ErrTermNotFound
	}
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTermNotFound
	}
	return t, nil
}
