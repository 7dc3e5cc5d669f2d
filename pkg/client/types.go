package client

import "encoding/json"

// Term is an ontology term as served by the daemon.
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
	Annotation   json.RawMessage `json:"annotation,omitempty"`
	// Links maps relation names ("self", "children", ...) to API paths.
	Links map[string]Link `json:"_links,omitempty"`
}

// Link is a hyperlink returned with terms and pages.
type Link struct {
	Href string `json:"href"`
}

// Page is one page of terms.
type Page struct {
	Terms         []Term `json:"terms"`
	Size          int    `json:"size"`
	TotalElements int    `json:"totalElements"`
	TotalPages    int    `json:"totalPages"`
	Number        int    `json:"number"`
}

// HasNext reports whether a later page exists.
func (p Page) HasNext() bool {
	return p.Number+1 < p.TotalPages
}

// halPage is the wire form of Page.
type halPage struct {
	Embedded struct {
		Terms []Term `json:"terms"`
	} `json:"_embedded"`
	Page struct {
		Size          int `json:"size"`
		TotalElements int `json:"totalElements"`
		TotalPages    int `json:"totalPages"`
		Number        int `json:"number"`
	} `json:"page"`
}

// PageOptions selects a page. Zero values use the daemon defaults.
type PageOptions struct {
	Page int
	Size int
}

// Selector identifies a term by one of its identifiers. When several are
// set the daemon prefers IRI, then ShortForm, then OboID.
type Selector struct {
	IRI       string
	ShortForm string
	OboID     string
}

// TreeNode is one entry of a flat tree view. Parent is "#" for top-level
// entries.
type TreeNode struct {
	ID     string `json:"id"`
	Parent string `json:"parent"`
	IRI    string `json:"iri"`
	Text   string `json:"text"`
	State  struct {
		Opened bool `json:"opened"`
	} `json:"state"`
	Children bool `json:"children"`
}

// Status is the daemon health response.
type Status struct {
	Status string `json:"status"`
}
