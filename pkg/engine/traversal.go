package engine

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/rmax-ai/termgraph/pkg/engine/page"
	"github.com/rmax-ai/termgraph/pkg/store"
)

// Engine answers term graph queries over a GraphStore. It keeps no state
// between calls and is safe for concurrent use.
type Engine struct {
	store  store.GraphStore
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for query diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an engine over st.
func New(st store.GraphStore, opts ...Option) *Engine {
	e := &Engine{store: st, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func termIRI(t store.Term) string { return t.IRI }

// LookupTerm resolves a single term.
func (e *Engine) LookupTerm(ctx context.Context, ontologyID string, sel Selector) (*store.Term, error) {
	start := time.Now()
	t, err := e.Resolve(ctx, ontologyID, sel)
	observe("lookup_term", start, err)
	return t, err
}

// Term fetches a term by its IRI.
func (e *Engine) Term(ctx context.Context, ontologyID, iri string) (*store.Term, error) {
	return e.LookupTerm(ctx, ontologyID, ByIRI(iri))
}

// Terms pages through every term of an ontology.
func (e *Engine) Terms(ctx context.Context, ontologyID string, req page.Request) (page.Page[store.Term], error) {
	return e.ontologyQuery(ctx, "terms", ontologyID, req, e.store.Terms)
}

// Roots pages through the terms of an ontology without a hierarchical parent.
// An unknown ontology yields an empty page.
func (e *Engine) Roots(ctx context.Context, ontologyID string, req page.Request) (page.Page[store.Term], error) {
	return e.ontologyQuery(ctx, "roots", ontologyID, req, e.store.Roots)
}

// Parents pages through the direct hierarchical parents of a term.
func (e *Engine) Parents(ctx context.Context, ontologyID, iri string, req page.Request) (page.Page[store.Term], error) {
	return e.termQuery(ctx, "parents", ontologyID, iri, req, func(ctx context.Context, onto string, t *store.Term) ([]store.Term, error) {
		return e.store.Neighbors(ctx, onto, t.IRI, store.RelationSubClassOf, store.Incoming)
	})
}

// Children pages through the direct hierarchical children of a term.
func (e *Engine) Children(ctx context.Context, ontologyID, iri string, req page.Request) (page.Page[store.Term], error) {
	return e.termQuery(ctx, "children", ontologyID, iri, req, func(ctx context.Context, onto string, t *store.Term) ([]store.Term, error) {
		return e.store.Neighbors(ctx, onto, t.IRI, store.RelationSubClassOf, store.Outgoing)
	})
}

// Ancestors pages through the transitive hierarchical parents of a term.
func (e *Engine) Ancestors(ctx context.Context, ontologyID, iri string, req page.Request) (page.Page[store.Term], error) {
	return e.termQuery(ctx, "ancestors", ontologyID, iri, req, func(ctx context.Context, onto string, t *store.Term) ([]store.Term, error) {
		return e.closure(ctx, onto, t.IRI, store.RelationSubClassOf, store.Incoming)
	})
}

// Descendants pages through the transitive hierarchical children of a term.
func (e *Engine) Descendants(ctx context.Context, ontologyID, iri string, req page.Request) (page.Page[store.Term], error) {
	return e.termQuery(ctx, "descendants", ontologyID, iri, req, func(ctx context.Context, onto string, t *store.Term) ([]store.Term, error) {
		return e.closure(ctx, onto, t.IRI, store.RelationSubClassOf, store.Outgoing)
	})
}

// Related pages through the terms a term points to over a named relation.
// Unknown relations yield an empty page.
func (e *Engine) Related(ctx context.Context, ontologyID, iri, relation string, req page.Request) (page.Page[store.Term], error) {
	return e.termQuery(ctx, "related", ontologyID, iri, req, func(ctx context.Context, onto string, t *store.Term) ([]store.Term, error) {
		if relation == "" {
			return nil, nil
		}
		return e.store.Neighbors(ctx, onto, t.IRI, relation, store.Outgoing)
	})
}

func (e *Engine) ontologyQuery(ctx context.Context, op, ontologyID string, req page.Request,
	fetch func(ctx context.Context, onto string) ([]store.Term, error)) (page.Page[store.Term], error) {
	start := time.Now()
	p, err := func() (page.Page[store.Term], error) {
		req, err := req.Normalize()
		if err != nil {
			return page.Page[store.Term]{}, err
		}
		onto := NormalizeOntology(ontologyID)
		if onto == "" {
			return page.Paginate([]store.Term{}, req)
		}
		terms, err := fetch(ctx, onto)
		if err != nil {
			return page.Page[store.Term]{}, err
		}
		return e.paginate(op, terms, req)
	}()
	observe(op, start, err)
	return p, err
}

func (e *Engine) termQuery(ctx context.Context, op, ontologyID, iri string, req page.Request,
	fetch func(ctx context.Context, onto string, t *store.Term) ([]store.Term, error)) (page.Page[store.Term], error) {
	start := time.Now()
	p, err := func() (page.Page[store.Term], error) {
		req, err := req.Normalize()
		if err != nil {
			return page.Page[store.Term]{}, err
		}
		t, err := e.Resolve(ctx, ontologyID, ByIRI(iri))
		if err != nil {
			return page.Page[store.Term]{}, err
		}
		terms, err := fetch(ctx, NormalizeOntology(ontologyID), t)
		if err != nil {
			return page.Page[store.Term]{}, err
		}
		return e.paginate(op, terms, req)
	}()
	observe(op, start, err)
	if err != nil && !errors.Is(err, ErrTermNotFound) {
		e.logger.Debug("query_failed", "operation", op, "ontology", ontologyID, "iri", iri, "error", err)
	}
	return p, err
}

// paginate sorts a private copy; store results may be shared between callers.
func (e *Engine) paginate(op string, terms []store.Term, req page.Request) (page.Page[store.Term], error) {
	terms = slices.Clone(terms)
	page.SortByKey(terms, termIRI)
	TermgraphResultSize.WithLabelValues(op).Observe(float64(len(terms)))
	return page.Paginate(terms, req)
}

// closure returns the transitive neighbors of iri, pushed down to the store
// when it supports it. The origin is never part of the result.
func (e *Engine) closure(ctx context.Context, onto, iri, relation string, dir store.Direction) ([]store.Term, error) {
	if cq, ok := e.store.(store.ClosureQuerier); ok {
		terms, err := cq.Closure(ctx, onto, iri, relation, dir)
		if err == nil {
			return distinct(terms, iri), nil
		}
		if !errors.Is(err, store.ErrClosureUnsupported) {
			return nil, err
		}
	}

	visited := map[string]struct{}{iri: {}}
	return e.walk(ctx, onto, relation, dir, []string{iri}, visited)
}

// walk expands frontier breadth-first. visited holds every IRI already
// reached and is updated in place.
func (e *Engine) walk(ctx context.Context, onto, relation string, dir store.Direction,
	frontier []string, visited map[string]struct{}) ([]store.Term, error) {
	var out []store.Term
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var next []string
		for _, iri := range frontier {
			neighbors, err := e.store.Neighbors(ctx, onto, iri, relation, dir)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				if _, seen := visited[n.IRI]; seen {
					continue
				}
				visited[n.IRI] = struct{}{}
				out = append(out, n)
				next = append(next, n.IRI)
			}
		}
		frontier = next
	}
	return out, nil
}

// distinct returns a new slice without duplicates and the excluded IRI,
// keeping first occurrences.
func distinct(terms []store.Term, exclude string) []store.Term {
	seen := make(map[string]struct{}, len(terms))
	out := make([]store.Term, 0, len(terms))
	for _, t := range terms {
		if t.IRI == exclude {
			continue
		}
		if _, dup := seen[t.IRI]; dup {
			continue
		}
		seen[t.IRI] = struct{}{}
		out = append(out, t)
	}
	return out
}
