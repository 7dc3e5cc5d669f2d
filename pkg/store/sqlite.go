package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite-backed GraphStore.
type Store struct {
	db *sql.DB
}

var (
	_ GraphStore     = (*Store)(nil)
	_ ClosureQuerier = (*Store)(nil)
)

// NewStore opens the SQLite graph database.
// It enables WAL mode so concurrent readers do not block each other.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the graph tables if they don't exist.
func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS terms (
		ontology_name TEXT NOT NULL,
		iri TEXT NOT NULL,
		short_form TEXT,
		obo_id TEXT,
		label TEXT NOT NULL DEFAULT '',
		description JSON,
		synonyms JSON,
		is_obsolete INTEGER NOT NULL DEFAULT 0,
		annotation JSON,
		PRIMARY KEY (ontology_name, iri)
	);

	CREATE INDEX IF NOT EXISTS idx_terms_short_form ON terms(ontology_name, short_form);
	CREATE INDEX IF NOT EXISTS idx_terms_obo_id ON terms(ontology_name, obo_id);

	CREATE TABLE IF NOT EXISTS edges (
		ontology_name TEXT NOT NULL,
		from_iri TEXT NOT NULL,
		to_iri TEXT NOT NULL,
		relation TEXT NOT NULL,
		PRIMARY KEY (ontology_name, from_iri, relation, to_iri)
	);

	-- Reverse lookups (parents, roots)
	CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(ontology_name, to_iri, relation);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create graph tables: %w", err)
	}

	return nil
}

// Edge ends without a terms row are invisible: they are never returned,
// walked through or counted.

// termColumns selects a term row aliased as t, with the computed hierarchy flags.
const termColumns = `t.iri, t.ontology_name, t.short_form, t.obo_id, t.label,
	t.description, t.synonyms, t.is_obsolete, t.annotation,
	NOT EXISTS (SELECT 1 FROM edges p JOIN terms pt
			ON pt.ontology_name = p.ontology_name AND pt.iri = p.from_iri
		WHERE p.ontology_name = t.ontology_name
		AND p.to_iri = t.iri AND p.relation = '` + RelationSubClassOf + `') AS is_root,
	EXISTS (SELECT 1 FROM edges c JOIN terms ct
			ON ct.ontology_name = c.ontology_name AND ct.iri = c.to_iri
		WHERE c.ontology_name = t.ontology_name
		AND c.from_iri = t.iri AND c.relation = '` + RelationSubClassOf + `') AS has_children`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTerm(row rowScanner) (Term, error) {
	var (
		t                      Term
		shortForm, oboID       sql.NullString
		description, synonyms  sql.NullString
		annotation             sql.NullString
		obsolete, root, hasKid bool
	)
	if err := row.Scan(&t.IRI, &t.OntologyName, &shortForm, &oboID, &t.Label,
		&description, &synonyms, &obsolete, &annotation, &root, &hasKid); err != nil {
		return Term{}, err
	}

	t.ShortForm = shortForm.String
	t.OboID = oboID.String
	t.IsObsolete = obsolete
	t.IsRoot = root
	t.HasChildren = hasKid

	if description.Valid && description.String != "" {
		if err := json.Unmarshal([]byte(description.String), &t.Description); err != nil {
			return Term{}, fmt.Errorf("malformed description for %s: %w", t.IRI, err)
		}
	}
	if synonyms.Valid && synonyms.String != "" {
		if err := json.Unmarshal([]byte(synonyms.String), &t.Synonyms); err != nil {
			return Term{}, fmt.Errorf("malformed synonyms for %s: %w", t.IRI, err)
		}
	}
	if annotation.Valid && annotation.String != "" {
		t.Annotation = json.RawMessage(annotation.String)
	}
	return t, nil
}

func (s *Store) queryTerms(ctx context.Context, op, query string, args ...any) ([]Term, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", op, err)
	}
	defer rows.Close()

	terms := make([]Term, 0)
	for rows.Next() {
		t, err := scanTerm(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", op, err)
		}
		terms = append(terms, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", op, err)
	}
	return terms, nil
}

func (s *Store) queryTerm(ctx context.Context, op, column, ontology, value string) (*Term, error) {
	query := `SELECT ` + termColumns + ` FROM terms t
		WHERE t.ontology_name = ? AND t.` + column + ` = ?
		ORDER BY t.iri LIMIT 1`

	t, err := scanTerm(s.db.QueryRowContext(ctx, query, ontology, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query %s: %w", op, err)
	}
	return &t, nil
}

// TermByIRI returns the term with the given IRI, or nil.
func (s *Store) TermByIRI(ctx context.Context, ontology, iri string) (*Term, error) {
	return s.queryTerm(ctx, "term by iri", "iri", ontology, iri)
}

// TermByShortForm returns the term with the given short form, or nil.
func (s *Store) TermByShortForm(ctx context.Context, ontology, shortForm string) (*Term, error) {
	return s.queryTerm(ctx, "term by short form", "short_form", ontology, shortForm)
}

// TermByOboID returns the term with the given OBO id, or nil.
func (s *Store) TermByOboID(ctx context.Context, ontology, oboID string) (*Term, error) {
	return s.queryTerm(ctx, "term by obo id", "obo_id", ontology, oboID)
}

// Terms returns all terms of the ontology ordered by IRI.
func (s *Store) Terms(ctx context.Context, ontology string) ([]Term, error) {
	query := `SELECT ` + termColumns + ` FROM terms t
		WHERE t.ontology_name = ? ORDER BY t.iri`
	return s.queryTerms(ctx, "terms", query, ontology)
}

// Roots returns the terms without a hierarchical parent.
func (s *Store) Roots(ctx context.Context, ontology string) ([]Term, error) {
	query := `SELECT ` + termColumns + ` FROM terms t
		WHERE t.ontology_name = ?
		AND NOT EXISTS (SELECT 1 FROM edges e JOIN terms p
				ON p.ontology_name = e.ontology_name AND p.iri = e.from_iri
			WHERE e.ontology_name = t.ontology_name
			AND e.to_iri = t.iri AND e.relation = ?)
		ORDER BY t.iri`
	return s.queryTerms(ctx, "roots", query, ontology, RelationSubClassOf)
}

// edgeEnds returns the (near, far) edge columns for a direction.
func edgeEnds(dir Direction) (string, string) {
	if dir == Incoming {
		return "to_iri", "from_iri"
	}
	return "from_iri", "to_iri"
}

// Neighbors returns the direct neighbors of iri over relation.
func (s *Store) Neighbors(ctx context.Context, ontology, iri, relation string, dir Direction) ([]Term, error) {
	near, far := edgeEnds(dir)
	query := fmt.Sprintf(`SELECT DISTINCT %s FROM edges e
		JOIN terms t ON t.ontology_name = e.ontology_name AND t.iri = e.%s
		WHERE e.ontology_name = ? AND e.%s = ? AND e.relation = ?
		ORDER BY t.iri`, termColumns, far, near)
	return s.queryTerms(ctx, "neighbors", query, ontology, iri, relation)
}

// Closure computes the transitive closure of iri with a recursive CTE. UNION
// discards rows already produced, which keeps the recursion finite on cycles.
// The recursive step joins terms so the walk stops at dangling edge ends,
// exactly like repeated Neighbors calls.
func (s *Store) Closure(ctx context.Context, ontology, iri, relation string, dir Direction) ([]Term, error) {
	near, far := edgeEnds(dir)
	query := fmt.Sprintf(`WITH RECURSIVE closure(iri) AS (
			SELECT ?
			UNION
			SELECT e.%s FROM edges e
			JOIN closure c ON e.%s = c.iri
			JOIN terms n ON n.ontology_name = e.ontology_name AND n.iri = e.%s
			WHERE e.ontology_name = ? AND e.relation = ?
		)
		SELECT %s FROM closure c
		JOIN terms t ON t.ontology_name = ? AND t.iri = c.iri
		WHERE c.iri <> ?
		ORDER BY t.iri`, far, near, far, termColumns)
	return s.queryTerms(ctx, "closure", query, iri, ontology, relation, ontology, iri)
}

// ChildCounts counts the direct children of each IRI in a single query.
func (s *Store) ChildCounts(ctx context.Context, ontology string, iris []string) (map[string]int, error) {
	counts := make(map[string]int, len(iris))
	if len(iris) == 0 {
		return counts, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(iris)), ",")
	query := `SELECT e.from_iri, COUNT(DISTINCT e.to_iri) FROM edges e
		JOIN terms c ON c.ontology_name = e.ontology_name AND c.iri = e.to_iri
		WHERE e.ontology_name = ? AND e.relation = ? AND e.from_iri IN (` + placeholders + `)
		GROUP BY e.from_iri`

	args := make([]any, 0, len(iris)+2)
	args = append(args, ontology, RelationSubClassOf)
	for _, iri := range iris {
		args = append(args, iri)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query child counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			iri   string
			count int
		)
		if err := rows.Scan(&iri, &count); err != nil {
			return nil, fmt.Errorf("failed to scan child count: %w", err)
		}
		counts[iri] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate child counts: %w", err)
	}
	return counts, nil
}

// Import writes terms and edges of an already-built graph in one transaction.
// Ontology names are stored lowercased, the form every query uses. Existing
// terms are replaced and duplicate edges ignored, so importing the same
// snapshot twice is a no-op.
func (s *Store) Import(ctx context.Context, terms []Term, edges []Edge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback()

	termStmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO terms
		(ontology_name, iri, short_form, obo_id, label, description, synonyms, is_obsolete, annotation)
		VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?, NULLIF(?, ''))`)
	if err != nil {
		return fmt.Errorf("failed to prepare term insert: %w", err)
	}
	defer termStmt.Close()

	for _, t := range terms {
		description, err := json.Marshal(t.Description)
		if err != nil {
			return fmt.Errorf("failed to marshal description for %s: %w", t.IRI, err)
		}
		synonyms, err := json.Marshal(t.Synonyms)
		if err != nil {
			return fmt.Errorf("failed to marshal synonyms for %s: %w", t.IRI, err)
		}
		if _, err := termStmt.ExecContext(ctx, normalizeOntology(t.OntologyName), t.IRI, t.ShortForm, t.OboID, t.Label,
			string(description), string(synonyms), t.IsObsolete, string(t.Annotation)); err != nil {
			return fmt.Errorf("failed to insert term %s: %w", t.IRI, err)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO edges
		(ontology_name, from_iri, to_iri, relation) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare edge insert: %w", err)
	}
	defer edgeStmt.Close()

	for _, e := range edges {
		if _, err := edgeStmt.ExecContext(ctx, normalizeOntology(e.OntologyName), e.From, e.To, e.Relation); err != nil {
			return fmt.Errorf("failed to insert edge %s -> %s: %w", e.From, e.To, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	return nil
}

func normalizeOntology(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
