package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when the daemon does not know the term or ontology.
var ErrNotFound = errors.New("term not found")

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status: %d: %s", e.Code, e.Body)
}

// Client is the termgraph SDK client.
type Client struct {
	endpoint string
	http     *http.Client
	retry    RetryPolicy
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithRetryPolicy sets how transient failures are retried.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

// NewClient creates a new termgraph client.
// endpoint defaults to "http://127.0.0.1:8090" if empty.
func NewClient(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = "http://127.0.0.1:8090"
	}
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		retry: DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping checks the health of the daemon.
func (c *Client) Ping(ctx context.Context) (Status, error) {
	var status Status
	err := c.get(ctx, "/v1/health", nil, &status)
	return status, err
}

// LookupTerm resolves a term by IRI, short form or OBO id.
func (c *Client) LookupTerm(ctx context.Context, ontology string, sel Selector) (Term, error) {
	q := url.Values{}
	if sel.IRI != "" {
		q.Set("iri", sel.IRI)
	}
	if sel.ShortForm != "" {
		q.Set("short_form", sel.ShortForm)
	}
	if sel.OboID != "" {
		q.Set("obo_id", sel.OboID)
	}
	if len(q) == 0 {
		return Term{}, fmt.Errorf("invalid selector: no identifier given")
	}

	p, err := c.page(ctx, ontologyPath(ontology)+"/terms", q)
	if err != nil {
		return Term{}, err
	}
	if len(p.Terms) == 0 {
		return Term{}, ErrNotFound
	}
	return p.Terms[0], nil
}

// Term fetches a term by IRI.
func (c *Client) Term(ctx context.Context, ontology, iri string) (Term, error) {
	var t Term
	err := c.get(ctx, termPath(ontology, iri), nil, &t)
	return t, err
}

// Terms lists every term of an ontology.
func (c *Client) Terms(ctx context.Context, ontology string, opts PageOptions) (Page, error) {
	return c.page(ctx, ontologyPath(ontology)+"/terms", pageQuery(opts))
}

// Roots lists the terms of an ontology without a parent.
func (c *Client) Roots(ctx context.Context, ontology string, opts PageOptions) (Page, error) {
	return c.page(ctx, ontologyPath(ontology)+"/roots", pageQuery(opts))
}

// Parents lists the direct parents of a term.
func (c *Client) Parents(ctx context.Context, ontology, iri string, opts PageOptions) (Page, error) {
	return c.page(ctx, termPath(ontology, iri)+"/parents", pageQuery(opts))
}

// Children lists the direct children of a term.
func (c *Client) Children(ctx context.Context, ontology, iri string, opts PageOptions) (Page, error) {
	return c.page(ctx, termPath(ontology, iri)+"/children", pageQuery(opts))
}

// Ancestors lists every transitive parent of a term.
func (c *Client) Ancestors(ctx context.Context, ontology, iri string, opts PageOptions) (Page, error) {
	return c.page(ctx, termPath(ontology, iri)+"/ancestors", pageQuery(opts))
}

// Descendants lists every transitive child of a term.
func (c *Client) Descendants(ctx context.Context, ontology, iri string, opts PageOptions) (Page, error) {
	return c.page(ctx, termPath(ontology, iri)+"/descendants", pageQuery(opts))
}

// Related lists the terms a term points to over relation.
func (c *Client) Related(ctx context.Context, ontology, iri, relation string, opts PageOptions) (Page, error) {
	return c.page(ctx, termPath(ontology, iri)+"/"+encodeSegment(relation), pageQuery(opts))
}

// Tree fetches the one-level tree view around a term.
func (c *Client) Tree(ctx context.Context, ontology, iri string, siblings bool) ([]TreeNode, error) {
	q := url.Values{}
	if siblings {
		q.Set("siblings", "true")
	}
	var nodes []TreeNode
	err := c.get(ctx, termPath(ontology, iri)+"/jstree", q, &nodes)
	return nodes, err
}

func (c *Client) page(ctx context.Context, path string, q url.Values) (Page, error) {
	var hal halPage
	if err := c.get(ctx, path, q, &hal); err != nil {
		return Page{}, err
	}
	return Page{
		Terms:         hal.Embedded.Terms,
		Size:          hal.Page.Size,
		TotalElements: hal.Page.TotalElements,
		TotalPages:    hal.Page.TotalPages,
		Number:        hal.Page.Number,
	}, nil
}

// get performs a GET with retries and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	target := c.endpoint + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < c.retry.attempts(); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.retry.wait(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		retry, err := c.do(ctx, target, out)
		if err == nil || !retry {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, target string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, ErrNotFound
	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return true, statusError(resp)
	case resp.StatusCode != http.StatusOK:
		return false, statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return false, nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func pageQuery(opts PageOptions) url.Values {
	q := url.Values{}
	if opts.Page != 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Size != 0 {
		q.Set("size", strconv.Itoa(opts.Size))
	}
	return q
}

func ontologyPath(ontology string) string {
	return "/api/ontology/" + url.PathEscape(strings.ToLower(ontology))
}

// encodeSegment double-encodes a path segment; the daemon decodes it twice.
func encodeSegment(v string) string {
	return url.PathEscape(url.PathEscape(v))
}

func termPath(ontology, iri string) string {
	return ontologyPath(ontology) + "/terms/" + encodeSegment(iri)
}
