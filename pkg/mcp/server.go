package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rmax-ai/termgraph/pkg/client"
)

// Server adapts termgraph-d to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	apiClient *client.Client
}

// NewServer creates a new MCP server instance.
func NewServer(apiURL string, opts ...client.Option) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"termgraph",
			"1.0.0",
		),
		apiClient: client.NewClient(apiURL, opts...),
	}
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Tools ---

func pagingOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithNumber("page", mcp.Description("Zero-based page number (default 0)")),
		mcp.WithNumber("size", mcp.Description("Page size (default 20)")),
	}
}

func termTool(name, description string, extra ...mcp.ToolOption) mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithString("ontology", mcp.Required(), mcp.Description("Ontology id, e.g. 'go' or 'efo'")),
		mcp.WithString("iri", mcp.Required(), mcp.Description("IRI of the term")),
	}
	opts = append(opts, extra...)
	return mcp.NewTool(name, opts...)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"lookup_term",
		mcp.WithDescription("Find a term by IRI, short form (GO_0008150) or OBO id (GO:0008150). At least one identifier is required."),
		mcp.WithString("ontology", mcp.Required(), mcp.Description("Ontology id, e.g. 'go' or 'efo'")),
		mcp.WithString("iri", mcp.Description("IRI of the term")),
		mcp.WithString("short_form", mcp.Description("Short form, e.g. GO_0008150")),
		mcp.WithString("obo_id", mcp.Description("OBO id, e.g. GO:0008150")),
	), s.handleLookupTerm)

	s.mcpServer.AddTool(mcp.NewTool(
		"list_roots",
		append([]mcp.ToolOption{
			mcp.WithDescription("List the top-level terms of an ontology"),
			mcp.WithString("ontology", mcp.Required(), mcp.Description("Ontology id, e.g. 'go' or 'efo'")),
		}, pagingOptions()...)...,
	), s.handleListRoots)

	s.mcpServer.AddTool(termTool("list_parents", "List the direct parents of a term", pagingOptions()...),
		s.pagedTermTool(s.apiClient.Parents))
	s.mcpServer.AddTool(termTool("list_children", "List the direct children of a term", pagingOptions()...),
		s.pagedTermTool(s.apiClient.Children))
	s.mcpServer.AddTool(termTool("list_ancestors", "List every transitive parent of a term", pagingOptions()...),
		s.pagedTermTool(s.apiClient.Ancestors))
	s.mcpServer.AddTool(termTool("list_descendants", "List every transitive child of a term", pagingOptions()...),
		s.pagedTermTool(s.apiClient.Descendants))

	s.mcpServer.AddTool(termTool("list_related", "List the terms a term points to over a named relation",
		append([]mcp.ToolOption{
			mcp.WithString("relation", mcp.Required(), mcp.Description("Relation label, e.g. 'part_of'")),
		}, pagingOptions()...)...,
	), s.handleListRelated)

	s.mcpServer.AddTool(termTool("tree_view", "Show a term with its direct children, optionally with its siblings",
		mcp.WithBoolean("siblings", mcp.Description("Include terms sharing a parent with this one")),
	), s.handleTreeView)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"ontology-navigator",
		mcp.WithPromptDescription("Explains how to explore ontology hierarchies with the termgraph tools"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func pageOptions(request mcp.CallToolRequest) client.PageOptions {
	return client.PageOptions{
		Page: mcp.ParseInt(request, "page", 0),
		Size: mcp.ParseInt(request, "size", 0),
	}
}

// toolResult renders v as indented JSON, turning lookup misses into tool
// errors the model can read.
func toolResult(v any, err error) (*mcp.CallToolResult, error) {
	if errors.Is(err, client.ErrNotFound) {
		return mcp.NewToolResultError("term not found"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleLookupTerm(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ontology := mcp.ParseString(request, "ontology", "")
	sel := client.Selector{
		IRI:       mcp.ParseString(request, "iri", ""),
		ShortForm: mcp.ParseString(request, "short_form", ""),
		OboID:     mcp.ParseString(request, "obo_id", ""),
	}
	if sel == (client.Selector{}) {
		return mcp.NewToolResultError("one of iri, short_form or obo_id is required"), nil
	}
	return toolResult(s.apiClient.LookupTerm(ctx, ontology, sel))
}

func (s *Server) handleListRoots(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ontology := mcp.ParseString(request, "ontology", "")
	return toolResult(s.apiClient.Roots(ctx, ontology, pageOptions(request)))
}

type pagedQuery func(ctx context.Context, ontology, iri string, opts client.PageOptions) (client.Page, error)

func (s *Server) pagedTermTool(query pagedQuery) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ontology := mcp.ParseString(request, "ontology", "")
		iri := mcp.ParseString(request, "iri", "")
		if ontology == "" || iri == "" {
			return mcp.NewToolResultError("ontology and iri are required"), nil
		}
		return toolResult(query(ctx, ontology, iri, pageOptions(request)))
	}
}

func (s *Server) handleListRelated(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	relation := mcp.ParseString(request, "relation", "")
	if relation == "" {
		return mcp.NewToolResultError("relation is required"), nil
	}
	return s.pagedTermTool(func(ctx context.Context, ontology, iri string, opts client.PageOptions) (client.Page, error) {
		return s.apiClient.Related(ctx, ontology, iri, relation, opts)
	})(ctx, request)
}

func (s *Server) handleTreeView(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ontology := mcp.ParseString(request, "ontology", "")
	iri := mcp.ParseString(request, "iri", "")
	siblings := mcp.ParseBoolean(request, "siblings", false)
	return toolResult(s.apiClient.Tree(ctx, ontology, iri, siblings))
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "ontology-navigator" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are exploring biomedical ontologies through termgraph.

Concepts:
- Ontology: a named vocabulary such as 'go' (Gene Ontology) or 'efo'. Ids are case-insensitive.
- Term: a concept identified by an IRI, a short form (GO_0008150) and usually an OBO id (GO:0008150).
- Hierarchy: 'is_a' links a parent to a child. Roots have no parent.
- Relations: other labelled links such as 'part_of', followed with list_related.

Start with lookup_term to resolve whatever identifier the user gives you, then use its IRI.
Use list_parents/list_children for one step, list_ancestors/list_descendants for the full
closure and tree_view to show a term in context. Results are paged; ask for the next page
when totalElements exceeds what you have.
`

	return mcp.NewGetPromptResult(
		"ontology-navigator",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}
