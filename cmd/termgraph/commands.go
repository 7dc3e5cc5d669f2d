package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/termgraph/pkg/client"
	"github.com/rmax-ai/termgraph/pkg/mcp"
)

type pagedQuery func(ctx context.Context, ontology, iri string, opts client.PageOptions) (client.Page, error)

// cli holds the flags shared by every subcommand.
type cli struct {
	out      io.Writer
	endpoint string
	page     int
	size     int
	client   *client.Client
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:           "termgraph",
		Short:         "Query ontology hierarchies served by termgraph-d",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.client = client.NewClient(c.resolvedEndpoint())
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&c.endpoint, "endpoint", "", "termgraph-d base URL (env TERMGRAPH_URL, default http://127.0.0.1:8090)")

	lookup := &cobra.Command{
		Use:   "lookup <ontology>",
		Short: "Find a term by IRI, short form or OBO id",
		Args:  cobra.ExactArgs(1),
	}
	var sel client.Selector
	lookup.Flags().StringVar(&sel.IRI, "iri", "", "term IRI")
	lookup.Flags().StringVar(&sel.ShortForm, "short-form", "", "short form, e.g. GO_0008150")
	lookup.Flags().StringVar(&sel.OboID, "obo-id", "", "OBO id, e.g. GO:0008150")
	lookup.RunE = func(cmd *cobra.Command, args []string) error {
		if sel == (client.Selector{}) {
			return fmt.Errorf("one of --iri, --short-form or --obo-id is required")
		}
		term, err := c.client.LookupTerm(cmd.Context(), args[0], sel)
		if err != nil {
			return err
		}
		return c.print(term)
	}

	roots := &cobra.Command{
		Use:   "roots <ontology>",
		Short: "List the top-level terms of an ontology",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.client.Roots(cmd.Context(), args[0], c.pageOptions())
			if err != nil {
				return err
			}
			return c.print(p)
		},
	}
	c.pagingFlags(roots)

	related := &cobra.Command{
		Use:   "related <ontology> <iri> <relation>",
		Short: "List the terms a term points to over a named relation",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.client.Related(cmd.Context(), args[0], args[1], args[2], c.pageOptions())
			if err != nil {
				return err
			}
			return c.print(p)
		},
	}
	c.pagingFlags(related)

	var siblings bool
	tree := &cobra.Command{
		Use:   "tree <ontology> <iri>",
		Short: "Show a term with its direct children in jsTree form",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes, err := c.client.Tree(cmd.Context(), args[0], args[1], siblings)
			if err != nil {
				return err
			}
			return c.print(nodes)
		},
	}
	tree.Flags().BoolVar(&siblings, "siblings", false, "include terms sharing a parent with this one")

	version := &cobra.Command{
		Use:              "version",
		Short:            "Print version information",
		Args:             cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.out, "termgraph %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		},
	}

	serveMCP := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the termgraph tools over the Model Context Protocol on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcp.NewServer(c.resolvedEndpoint()).Serve()
		},
	}

	root.AddCommand(
		lookup,
		roots,
		c.termCmd("parents", "List the direct parents of a term", func(ctx context.Context, o, i string, p client.PageOptions) (client.Page, error) {
			return c.client.Parents(ctx, o, i, p)
		}),
		c.termCmd("children", "List the direct children of a term", func(ctx context.Context, o, i string, p client.PageOptions) (client.Page, error) {
			return c.client.Children(ctx, o, i, p)
		}),
		c.termCmd("ancestors", "List every transitive parent of a term", func(ctx context.Context, o, i string, p client.PageOptions) (client.Page, error) {
			return c.client.Ancestors(ctx, o, i, p)
		}),
		c.termCmd("descendants", "List every transitive child of a term", func(ctx context.Context, o, i string, p client.PageOptions) (client.Page, error) {
			return c.client.Descendants(ctx, o, i, p)
		}),
		related,
		tree,
		serveMCP,
		version,
	)
	return root
}

// termCmd builds a "<name> <ontology> <iri>" command around a paged query.
// query must read c.client at call time; the client only exists once flags
// are parsed.
func (c *cli) termCmd(name, short string, query pagedQuery) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name + " <ontology> <iri>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := query(cmd.Context(), args[0], args[1], c.pageOptions())
			if err != nil {
				return err
			}
			return c.print(p)
		},
	}
	c.pagingFlags(cmd)
	return cmd
}

func (c *cli) resolvedEndpoint() string {
	if c.endpoint != "" {
		return c.endpoint
	}
	return os.Getenv("TERMGRAPH_URL")
}

func (c *cli) pagingFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&c.page, "page", 0, "zero-based page number")
	cmd.Flags().IntVar(&c.size, "size", 0, "page size (default 20)")
}

func (c *cli) pageOptions() client.PageOptions {
	return client.PageOptions{Page: c.page, Size: c.size}
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
