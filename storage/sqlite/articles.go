package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scriptorium/archivist/core"
	"github.com/scriptorium/archivist/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS articles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    doc_id INTEGER NOT NULL UNIQUE,
    url TEXT NOT NULL UNIQUE,
    title TEXT,
    content TEXT,
    source_date TEXT,
    archived_at TEXT NOT NULL,
    essay_slug TEXT NOT NULL,
    query TEXT,
    metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_essay_slug ON articles(essay_slug);
`

// ArticleSource implements storage.DocumentSource on a SQLite archive of
// collected articles. Document IDs are content hashes of the article URL
// and are stored denormalized in the doc_id column for direct lookup.
type ArticleSource struct {
	db   *sql.DB
	slug string
}

var _ storage.DocumentSource = (*ArticleSource)(nil)

// Option configures an ArticleSource.
type Option func(*ArticleSource)

// WithEssaySlug scopes listing to articles collected for one essay.
func WithEssaySlug(slug string) Option {
	return func(s *ArticleSource) {
		s.slug = slug
	}
}

// OpenArticleSource opens (creating if necessary) the article archive at
// dbPath. WAL mode is enabled so readers don't block the archiving writer.
func OpenArticleSource(dbPath string, opts ...Option) (*ArticleSource, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening archive database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing archive schema: %w", err)
	}

	s := &ArticleSource{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *ArticleSource) Close() error {
	return s.db.Close()
}

// StoreArticle archives a document and returns its ID. The ID is derived
// from the URL, so archiving the same URL twice returns the existing ID
// without modifying the stored row.
func (s *ArticleSource) StoreArticle(ctx context.Context, doc *core.Document) (core.ID, error) {
	if err := core.ValidateDocument(doc); err != nil {
		return 0, err
	}

	doc.Id = core.IDFromContent(doc.URL)
	if doc.ArchivedAt.IsZero() {
		doc.ArchivedAt = time.Now().UTC()
	}

	var metadata any
	if len(doc.Metadata) > 0 {
		raw, err := json.Marshal(doc.Metadata)
		if err != nil {
			return 0, fmt.Errorf("encoding article metadata: %w", err)
		}
		metadata = string(raw)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (doc_id, url, title, content, source_date, archived_at, essay_slug, query, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING`,
		int64(doc.Id), doc.URL, doc.Title, doc.Body, doc.SourceDate,
		doc.ArchivedAt.Format(time.RFC3339), doc.EssaySlug, doc.Query, metadata)
	if err != nil {
		return 0, fmt.Errorf("archiving article: %w", err)
	}

	return doc.Id, nil
}

// ListDocuments returns refs for every archived article, optionally scoped
// to one essay slug. Bodies are not loaded.
func (s *ArticleSource) ListDocuments(ctx context.Context) ([]core.DocumentRef, error) {
	query := `SELECT doc_id, title, url FROM articles`
	var args []any
	if s.slug != "" {
		query += ` WHERE essay_slug = ?`
		args = append(args, s.slug)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing articles: %w", err)
	}
	defer rows.Close()

	var refs []core.DocumentRef
	for rows.Next() {
		var (
			docID int64
			title sql.NullString
			url   string
		)
		if err := rows.Scan(&docID, &title, &url); err != nil {
			return nil, fmt.Errorf("scanning article row: %w", err)
		}
		refs = append(refs, core.DocumentRef{
			Id:    core.ID(docID),
			Title: title.String,
			URL:   url,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing articles: %w", err)
	}
	return refs, nil
}

// GetDocument retrieves one archived article including its body.
func (s *ArticleSource) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT doc_id, url, title, content, source_date, archived_at, essay_slug, query, metadata
		FROM articles WHERE doc_id = ?`, int64(id))

	var (
		docID      int64
		url        string
		title      sql.NullString
		content    sql.NullString
		sourceDate sql.NullString
		archivedAt string
		essaySlug  string
		searchq    sql.NullString
		metadata   sql.NullString
	)
	err := row.Scan(&docID, &url, &title, &content, &sourceDate, &archivedAt, &essaySlug, &searchq, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading article: %w", err)
	}

	doc := &core.Document{
		Id:         core.ID(docID),
		URL:        url,
		Title:      title.String,
		Body:       content.String,
		SourceDate: sourceDate.String,
		EssaySlug:  essaySlug,
		Query:      searchq.String,
	}
	if t, err := time.Parse(time.RFC3339, archivedAt); err == nil {
		doc.ArchivedAt = t
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decoding article metadata: %w", err)
		}
	}
	return doc, nil
}
