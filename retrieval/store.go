// Package retrieval implements retrieval-augmented answering: a SQLite
// document store searched by embedding similarity, text ingestion, and a
// queued answering service with an HTTP front end.
package retrieval

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/martinemde/stepagent/internal/sqlitedb"
	"github.com/martinemde/stepagent/internal/vector"
	"github.com/martinemde/stepagent/unifiedllm"
)

// Document is one stored chunk of source text.
type Document struct {
	ID        string
	Content   string
	PageLabel string
	Source    string
	Embedding []float32
}

// Result is a document returned by a similarity search.
type Result struct {
	Document
	Score float64
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	content TEXT NOT NULL,
	page_label TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	embedding BLOB NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
`

// Store keeps documents and their embeddings in SQLite.
type Store struct {
	db       *sql.DB
	embedder unifiedllm.Embedder
	logger   *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the store's logger.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// OpenStore opens the document store at path.
func OpenStore(ctx context.Context, path string, embedder unifiedllm.Embedder, opts ...StoreOption) (*Store, error) {
	if embedder == nil {
		return nil, errors.New("retrieval: nil embedder")
	}
	db, err := sqlitedb.Open(ctx, path, storeSchema)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, embedder: embedder, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add stores docs in collection, embedding any that lack an embedding.
// Documents without an ID are assigned one.
func (s *Store) Add(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	var texts []string
	var missing []int
	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = uuid.NewString()
		}
		if len(docs[i].Embedding) == 0 {
			texts = append(texts, docs[i].Content)
			missing = append(missing, i)
		}
	}
	if len(texts) > 0 {
		vecs, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding documents: %w", err)
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
		}
		for j, i := range missing {
			docs[i].Embedding = vecs[j]
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (id, collection, content, page_label, source, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			collection = excluded.collection,
			content = excluded.content,
			page_label = excluded.page_label,
			source = excluded.source,
			embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, d := range docs {
		if _, err := stmt.ExecContext(ctx, d.ID, collection, d.Content, d.PageLabel, d.Source, vector.Encode(d.Embedding), now); err != nil {
			return fmt.Errorf("insert document %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("stored documents", "collection", collection, "count", len(docs))
	return nil
}

// SimilaritySearch returns the k documents in collection most similar to
// query, best first.
func (s *Store) SimilaritySearch(ctx context.Context, collection, query string, k int) ([]Result, error) {
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 query", len(vecs))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, page_label, source, embedding
		FROM documents WHERE collection = ? ORDER BY created_at, id`, collection)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	var embeddings [][]float32
	for rows.Next() {
		var d Document
		var blob []byte
		if err := rows.Scan(&d.ID, &d.Content, &d.PageLabel, &d.Source, &blob); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if d.Embedding, err = vector.Decode(blob); err != nil {
			return nil, fmt.Errorf("document %s: %w", d.ID, err)
		}
		docs = append(docs, d)
		embeddings = append(embeddings, d.Embedding)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	top := vector.TopK(vecs[0], embeddings, k)
	results := make([]Result, len(top))
	for i, sc := range top {
		results[i] = Result{Document: docs[sc.Index], Score: sc.Score}
	}
	return results, nil
}

// Count returns the number of documents in collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE collection = ?`, collection).Scan(&n)
	return n, err
}

// DeleteCollection removes every document in collection.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, collection)
	return err
}
