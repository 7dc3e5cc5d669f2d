package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rmax-ai/termgraph/pkg/engine"
	"github.com/rmax-ai/termgraph/pkg/engine/page"
	"github.com/rmax-ai/termgraph/pkg/store"
)

// Context keys
type contextKey string

const traceIDKey contextKey = "trace_id"

const apiPrefix = "/api/ontology"

// Engine is the query surface served over HTTP. *engine.Engine implements it.
type Engine interface {
	LookupTerm(ctx context.Context, ontologyID string, sel engine.Selector) (*store.Term, error)
	Term(ctx context.Context, ontologyID, iri string) (*store.Term, error)
	Terms(ctx context.Context, ontologyID string, req page.Request) (page.Page[store.Term], error)
	Roots(ctx context.Context, ontologyID string, req page.Request) (page.Page[store.Term], error)
	Parents(ctx context.Context, ontologyID, iri string, req page.Request) (page.Page[store.Term], error)
	Children(ctx context.Context, ontologyID, iri string, req page.Request) (page.Page[store.Term], error)
	Ancestors(ctx context.Context, ontologyID, iri string, req page.Request) (page.Page[store.Term], error)
	Descendants(ctx context.Context, ontologyID, iri string, req page.Request) (page.Page[store.Term], error)
	Related(ctx context.Context, ontologyID, iri, relation string, req page.Request) (page.Page[store.Term], error)
	Tree(ctx context.Context, ontologyID, iri string, includeSiblings bool) (*engine.TreeNode, error)
}

var _ Engine = (*engine.Engine)(nil)

// Server encapsulates the HTTP API server
type Server struct {
	engine  Engine
	server  *http.Server
	handler http.Handler
	logger  *slog.Logger

	// TLS Config
	tlsCertFile string
	tlsKeyFile  string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and lifecycle logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server instance
func NewServer(eng Engine, addr string, opts ...Option) *Server {
	s := &Server{
		engine: eng,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET "+apiPrefix+"/{onto}/terms", s.handleTerms)
	mux.HandleFunc("GET "+apiPrefix+"/{onto}/roots", s.handleRoots)
	mux.HandleFunc("GET "+apiPrefix+"/{onto}/terms/{id}", s.handleTerm)
	mux.HandleFunc("GET "+apiPrefix+"/{onto}/terms/{id}/parents", s.pagedTermQuery(eng.Parents))
	mux.HandleFunc("GET "+apiPrefix+"/{onto}/terms/{id}/children", s.pagedTermQuery(eng.Children))
	mux.HandleFunc("GET "+apiPrefix+"/{onto}/terms/{id}/ancestors", s.pagedTermQuery(eng.Ancestors))
	mux.HandleFunc("GET "+apiPrefix+"/{onto}/terms/{id}/descendants", s.pagedTermQuery(eng.Descendants))
	mux.HandleFunc("GET "+apiPrefix+"/{onto}/terms/{id}/jstree", s.handleJSTree)
	mux.HandleFunc("GET "+apiPrefix+"/{onto}/terms/{id}/{relation}", s.handleRelated)

	// Middleware: Logging, Panic Recovery, Security Headers
	s.handler = s.withLogging(s.withRecovery(withSecureHeaders(mux)))

	// Use default port if addr is empty
	if addr == "" {
		addr = ":8090"
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// SetTLS configures the server to use TLS
func (s *Server) SetTLS(certFile, keyFile string) {
	s.tlsCertFile = certFile
	s.tlsKeyFile = keyFile
}

// Start runs the HTTP server (blocking)
func (s *Server) Start() error {
	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		s.logger.Info("server_starting_tls", "addr", s.server.Addr)
		if err := s.server.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	} else {
		s.logger.Info("server_starting", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("server_stopping")
	return s.server.Shutdown(ctx)
}

// handleTerms looks a term up when a selector is given and lists the whole
// ontology otherwise.
func (s *Server) handleTerms(w http.ResponseWriter, r *http.Request) {
	onto := r.PathValue("onto")
	q := r.URL.Query()

	sel, ok := engine.SelectorFrom(q.Get("iri"), q.Get("short_form"), q.Get("obo_id"))
	if !ok {
		req, err := pageRequest(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		p, err := s.engine.Terms(r.Context(), onto, req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writePage(w, r, onto, p)
		return
	}

	term, err := s.engine.LookupTerm(r.Context(), onto, sel)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, _ := page.Paginate([]store.Term{*term}, page.Request{})
	s.writePage(w, r, onto, p)
}

func (s *Server) handleRoots(w http.ResponseWriter, r *http.Request) {
	onto := r.PathValue("onto")
	req, err := pageRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.engine.Roots(r.Context(), onto, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writePage(w, r, onto, p)
}

func (s *Server) handleTerm(w http.ResponseWriter, r *http.Request) {
	onto := r.PathValue("onto")
	iri, err := decodeSegment(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	term, err := s.engine.Term(r.Context(), onto, iri)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, termResource(onto, *term))
}

type termQuery func(ctx context.Context, ontologyID, iri string, req page.Request) (page.Page[store.Term], error)

func (s *Server) pagedTermQuery(query termQuery) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		onto := r.PathValue("onto")
		iri, err := decodeSegment(r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		req, err := pageRequest(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		p, err := query(r.Context(), onto, iri, req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writePage(w, r, onto, p)
	}
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	relation, err := decodeSegment(r.PathValue("relation"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.pagedTermQuery(func(ctx context.Context, onto, iri string, req page.Request) (page.Page[store.Term], error) {
		return s.engine.Related(ctx, onto, iri, relation, req)
	})(w, r)
}

func (s *Server) handleJSTree(w http.ResponseWriter, r *http.Request) {
	onto := r.PathValue("onto")
	iri, err := decodeSegment(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	siblings := false
	if v := r.URL.Query().Get("siblings"); v != "" {
		siblings, err = strconv.ParseBool(v)
		if err != nil {
			s.writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Reason: "invalid_siblings"})
			return
		}
	}

	tree, err := s.engine.Tree(r.Context(), onto, iri, siblings)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, jsTree(tree))
}

// handleHealth returns simple status
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

var errBadPaging = fmt.Errorf("%w: page and size must be integers", page.ErrInvalidRequest)

func pageRequest(r *http.Request) (page.Request, error) {
	var req page.Request
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &req.Number}, {"size", &req.Size}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return page.Request{}, errBadPaging
		}
		*p.dst = n
	}
	return req, nil
}

// decodeSegment undoes the second round of percent-encoding clients apply to
// IRIs in path segments; the mux has already undone the first.
func decodeSegment(v string) (string, error) {
	decoded, err := url.PathUnescape(v)
	if err != nil {
		return "", fmt.Errorf("%w: malformed path segment", errBadSegment)
	}
	return decoded, nil
}

var errBadSegment = errors.New("bad path segment")

// EncodeSegment double-encodes an IRI for use as a path segment.
func EncodeSegment(v string) string {
	return url.PathEscape(url.PathEscape(v))
}

func termPath(onto, iri string) string {
	return apiPrefix + "/" + url.PathEscape(engine.NormalizeOntology(onto)) + "/terms/" + EncodeSegment(iri)
}

func termResource(onto string, t store.Term) TermResource {
	self := termPath(onto, t.IRI)
	links := map[string]Link{
		"self":   {Href: self},
		"jstree": {Href: self + "/jstree"},
	}
	if !t.IsRoot {
		links["parents"] = Link{Href: self + "/parents"}
		links["ancestors"] = Link{Href: self + "/ancestors"}
	}
	if t.HasChildren {
		links["children"] = Link{Href: self + "/children"}
		links["descendants"] = Link{Href: self + "/descendants"}
	}
	return TermResource{Term: t, Links: links}
}

func pagedTerms(r *http.Request, onto string, p page.Page[store.Term]) PagedTerms {
	terms := make([]TermResource, 0, len(p.Items))
	for _, t := range p.Items {
		terms = append(terms, termResource(onto, t))
	}

	totalPages := p.TotalPages()
	pageLink := func(n int) Link {
		u := *r.URL
		q := u.Query()
		q.Set("page", strconv.Itoa(n))
		q.Set("size", strconv.Itoa(p.Size))
		u.RawQuery = q.Encode()
		return Link{Href: u.RequestURI()}
	}

	last := totalPages - 1
	if last < 0 {
		last = 0
	}
	links := map[string]Link{
		"self":  pageLink(p.Number),
		"first": pageLink(0),
		"last":  pageLink(last),
	}
	if p.Number > 0 {
		links["prev"] = pageLink(min(p.Number-1, last))
	}
	if p.Number < last {
		links["next"] = pageLink(p.Number + 1)
	}

	return PagedTerms{
		Embedded: EmbeddedTerms{Terms: terms},
		Links:    links,
		Page: PageMeta{
			Size:          p.Size,
			TotalElements: p.TotalCount,
			TotalPages:    totalPages,
			Number:        p.Number,
		},
	}
}

// jsTree flattens a tree view into jsTree nodes: the focus and its siblings
// at the top level, the children under the focus.
func jsTree(root *engine.TreeNode) []JSTreeNode {
	nodes := make([]JSTreeNode, 0, 1+len(root.Children)+len(root.Siblings))
	next := 0
	add := func(n *engine.TreeNode, parent string, opened bool) string {
		next++
		id := strconv.Itoa(next)
		nodes = append(nodes, JSTreeNode{
			ID:       id,
			Parent:   parent,
			IRI:      n.Term.IRI,
			Text:     n.Term.Label,
			State:    JSTreeState{Opened: opened},
			Children: n.HasChildren,
		})
		return id
	}

	focus := add(root, "#", root.Expanded)
	for _, c := range root.Children {
		add(c, focus, false)
	}
	for _, sib := range root.Siblings {
		add(sib, "#", false)
	}
	return nodes
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, onto string, p page.Page[store.Term]) {
	s.writeJSON(w, r, http.StatusOK, pagedTerms(r, onto, p))
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed_to_encode_response", "trace_id", getTraceID(r.Context()), "error", err)
	}
}

// writeError maps engine errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrTermNotFound):
		s.writeJSON(w, r, http.StatusNotFound, ErrorResponse{Error: "not_found", Reason: "term_not_found"})
	case errors.Is(err, page.ErrInvalidRequest):
		s.writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Reason: "invalid_paging"})
	case errors.Is(err, errBadSegment):
		s.writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Reason: "malformed_path"})
	default:
		s.logger.Error("query_failed", "trace_id", getTraceID(r.Context()), "path", r.URL.Path, "error", err)
		s.writeJSON(w, r, http.StatusInternalServerError, ErrorResponse{Error: "internal_server_error"})
	}
}

// Middleware: Panic Recovery
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic_recovered", "error", err, "path", r.URL.Path)
				http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Middleware: Request Logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), traceIDKey, traceID)
		r = r.WithContext(ctx)

		// Wrap writer to capture status code
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(ww, r)

		s.logger.Info("http_request",
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func getTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// statusWriter captures HTTP status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Middleware: Secure Headers
func withSecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")

		next.ServeHTTP(w, r)
	})
}
