// Package memory keeps long-term facts about users. Facts are extracted
// from conversations by a model, embedded, and recalled by similarity.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/martinemde/stepagent/internal/sqlitedb"
	"github.com/martinemde/stepagent/internal/vector"
	"github.com/martinemde/stepagent/unifiedllm"
)

// Memory is one remembered fact.
type Memory struct {
	ID        string    `json:"id"`
	Text      string    `json:"memory"`
	Score     float64   `json:"score,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	text TEXT NOT NULL,
	embedding BLOB NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
`

// Extractor turns a conversation into standalone facts worth remembering.
type Extractor interface {
	Extract(ctx context.Context, msgs []unifiedllm.Message) ([]string, error)
}

// Store holds memories per user in SQLite.
type Store struct {
	db        *sql.DB
	embedder  unifiedllm.Embedder
	extractor Extractor
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithExtractor sets the fact extractor. Without one, Add stores the
// user's messages verbatim.
func WithExtractor(e Extractor) Option {
	return func(s *Store) { s.extractor = e }
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open opens the memory database at path.
func Open(ctx context.Context, path string, embedder unifiedllm.Embedder, opts ...Option) (*Store, error) {
	if embedder == nil {
		return nil, errors.New("memory: nil embedder")
	}
	db, err := sqlitedb.Open(ctx, path, schema)
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

// Add extracts facts from msgs and stores them for userID. It returns the
// stored memories. Duplicate facts already held for the user are skipped.
func (s *Store) Add(ctx context.Context, userID string, msgs []unifiedllm.Message) ([]Memory, error) {
	facts, err := s.facts(ctx, msgs)
	if err != nil {
		return nil, err
	}
	facts, err = s.withoutKnown(ctx, userID, facts)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return nil, nil
	}

	vecs, err := s.embedder.Embed(ctx, facts)
	if err != nil {
		return nil, fmt.Errorf("embedding memories: %w", err)
	}
	if len(vecs) != len(facts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d facts", len(vecs), len(facts))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	added := make([]Memory, len(facts))
	for i, fact := range facts {
		m := Memory{ID: uuid.NewString(), Text: fact, CreatedAt: now}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memories (id, user_id, text, embedding, created_at) VALUES (?, ?, ?, ?, ?)`,
			m.ID, userID, m.Text, vector.Encode(vecs[i]), m.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert memory: %w", err)
		}
		added[i] = m
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("memories added", "user_id", userID, "count", len(added))
	return added, nil
}

func (s *Store) facts(ctx context.Context, msgs []unifiedllm.Message) ([]string, error) {
	if s.extractor != nil {
		facts, err := s.extractor.Extract(ctx, msgs)
		if err == nil {
			return normalize(facts), nil
		}
		s.logger.Warn("fact extraction failed, storing user text", "error", err)
	}
	var facts []string
	for _, m := range msgs {
		if m.Role == unifiedllm.RoleUser {
			facts = append(facts, m.TextContent())
		}
	}
	return normalize(facts), nil
}

func normalize(facts []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range facts {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func (s *Store) withoutKnown(ctx context.Context, userID string, facts []string) ([]string, error) {
	var out []string
	for _, f := range facts {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM memories WHERE user_id = ? AND text = ?`, userID, f).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("checking memory: %w", err)
		}
		if n == 0 {
			out = append(out, f)
		}
	}
	return out, nil
}

// DefaultLimit is the number of memories Search returns when limit is not
// positive.
const DefaultLimit = 5

// Search returns up to limit memories of userID most similar to query.
func (s *Store) Search(ctx context.Context, userID, query string, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	all, embeddings, err := s.load(ctx, userID)
	if err != nil || len(all) == 0 {
		return nil, err
	}

	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 query", len(vecs))
	}

	top := vector.TopK(vecs[0], embeddings, limit)
	out := make([]Memory, len(top))
	for i, sc := range top {
		out[i] = all[sc.Index]
		out[i].Score = sc.Score
	}
	return out, nil
}

// All returns every memory of userID, oldest first.
func (s *Store) All(ctx context.Context, userID string) ([]Memory, error) {
	all, _, err := s.load(ctx, userID)
	return all, err
}

func (s *Store) load(ctx context.Context, userID string) ([]Memory, [][]float32, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, embedding, created_at FROM memories WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var mems []Memory
	var embeddings [][]float32
	for rows.Next() {
		var m Memory
		var blob []byte
		if err := rows.Scan(&m.ID, &m.Text, &blob, &m.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan memory: %w", err)
		}
		vec, err := vector.Decode(blob)
		if err != nil {
			return nil, nil, fmt.Errorf("memory %s: %w", m.ID, err)
		}
		mems = append(mems, m)
		embeddings = append(embeddings, vec)
	}
	return mems, embeddings, rows.Err()
}

// Delete removes the memory with id.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	return err
}

// FormatMemories renders memories for a system prompt.
func FormatMemories(mems []Memory) []string {
	out := make([]string, len(mems))
	for i, m := range mems {
		out[i] = fmt.Sprintf("ID: %s\nMemory: %s", m.ID, m.Text)
	}
	return out
}
