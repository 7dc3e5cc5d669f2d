package engine

import (
	"context"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rmax-ai/termgraph/pkg/engine/page"
	"github.com/rmax-ai/termgraph/pkg/store"
)

// TreeNode is one entry of a lazily expanded tree view.
type TreeNode struct {
	Term        store.Term  `json:"term"`
	HasChildren bool        `json:"has_children"`
	Expanded    bool        `json:"expanded"`
	Children    []*TreeNode `json:"children,omitempty"`
	Siblings    []*TreeNode `json:"siblings,omitempty"`
}

// Tree builds a one-level tree view around a term: the term itself expanded
// into its direct children, each child marked expandable but not expanded.
// With includeSiblings, the terms sharing a parent with it are attached as
// unexpanded peers.
func (e *Engine) Tree(ctx context.Context, ontologyID, iri string, includeSiblings bool) (*TreeNode, error) {
	start := time.Now()
	node, err := e.tree(ctx, ontologyID, iri, includeSiblings)
	observe("tree", start, err)
	return node, err
}

func (e *Engine) tree(ctx context.Context, ontologyID, iri string, includeSiblings bool) (*TreeNode, error) {
	focus, err := e.Resolve(ctx, ontologyID, ByIRI(iri))
	if err != nil {
		return nil, err
	}
	onto := NormalizeOntology(ontologyID)

	var children, siblings []store.Term
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		children, err = e.store.Neighbors(gctx, onto, focus.IRI, store.RelationSubClassOf, store.Outgoing)
		return err
	})
	if includeSiblings {
		g.Go(func() error {
			var err error
			siblings, err = e.siblings(gctx, onto, focus.IRI)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	children = slices.Clone(children)
	page.SortByKey(children, termIRI)
	page.SortByKey(siblings, termIRI)

	iris := make([]string, 0, len(children)+len(siblings))
	for _, t := range children {
		iris = append(iris, t.IRI)
	}
	for _, t := range siblings {
		iris = append(iris, t.IRI)
	}
	counts, err := e.store.ChildCounts(ctx, onto, iris)
	if err != nil {
		return nil, err
	}

	root := &TreeNode{
		Term:        *focus,
		HasChildren: len(children) > 0,
		Expanded:    true,
		Children:    leaves(children, counts),
	}
	if includeSiblings {
		root.Siblings = leaves(siblings, counts)
	}
	return root, nil
}

// siblings returns the distinct children of every parent of iri, iri excluded.
func (e *Engine) siblings(ctx context.Context, onto, iri string) ([]store.Term, error) {
	parents, err := e.store.Neighbors(ctx, onto, iri, store.RelationSubClassOf, store.Incoming)
	if err != nil {
		return nil, err
	}

	groups := make([][]store.Term, len(parents))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range parents {
		g.Go(func() error {
			kids, err := e.store.Neighbors(gctx, onto, p.IRI, store.RelationSubClassOf, store.Outgoing)
			groups[i] = kids
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []store.Term
	for _, kids := range groups {
		all = append(all, kids...)
	}
	return distinct(all, iri), nil
}

func leaves(terms []store.Term, childCounts map[string]int) []*TreeNode {
	nodes := make([]*TreeNode, 0, len(terms))
	for _, t := range terms {
		nodes = append(nodes, &TreeNode{
			Term:        t,
			HasChildren: childCounts[t.IRI] > 0,
		})
	}
	return nodes
}
