package api

import (
	"github.com/rmax-ai/termgraph/pkg/store"
)

// Link is a HAL hyperlink.
type Link struct {
	Href string `json:"href"`
}

// TermResource is a term with its navigation links.
type TermResource struct {
	store.Term
	Links map[string]Link `json:"_links"`
}

// PageMeta matches the Spring Data "page" object.
type PageMeta struct {
	Size          int `json:"size"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
	Number        int `json:"number"`
}

// EmbeddedTerms holds the items of a page.
type EmbeddedTerms struct {
	Terms []TermResource `json:"terms"`
}

// PagedTerms is the HAL envelope for every paged term response
type PagedTerms struct {
	Embedded EmbeddedTerms   `json:"_embedded"`
	Links    map[string]Link `json:"_links"`
	Page     PageMeta        `json:"page"`
}

// JSTreeState is the per-node display state of a jsTree node.
type JSTreeState struct {
	Opened bool `json:"opened"`
}

// JSTreeNode is one entry of the flat jsTree format. Parent is "#" for
// top-level nodes.
type JSTreeNode struct {
	ID       string      `json:"id"`
	Parent   string      `json:"parent"`
	IRI      string      `json:"iri"`
	Text     string      `json:"text"`
	State    JSTreeState `json:"state"`
	Children bool        `json:"children"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}
