package retrieval

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordEmbedder embeds text as counts over a fixed vocabulary.
type wordEmbedder struct {
	vocab []string
	calls int
}

func (e *wordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, len(e.vocab))
		for _, w := range strings.Fields(strings.ToLower(t)) {
			for j, term := range e.vocab {
				if strings.Trim(w, ".,?!") == term {
					v[j]++
				}
			}
		}
		out[i] = v
	}
	return out, nil
}

func newTestStore(t *testing.T) (*Store, *wordEmbedder) {
	t.Helper()
	emb := &wordEmbedder{vocab: []string{"node", "event", "loop", "stream", "buffer", "module"}}
	store, err := OpenStore(context.Background(), ":memory:", emb)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, emb
}

func TestStoreSimilaritySearch(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Add(ctx, "docs", []Document{
		{Content: "The event loop drives node.", PageLabel: "3", Source: "node.pdf"},
		{Content: "A stream reads a buffer.", PageLabel: "7", Source: "node.pdf"},
		{Content: "Every module has its own scope.", PageLabel: "9", Source: "node.pdf"},
	}))
	require.NoError(t, store.Add(ctx, "other", []Document{
		{Content: "event loop event loop", PageLabel: "1", Source: "other.pdf"},
	}))

	n, err := store.Count(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	results, err := store.SimilaritySearch(ctx, "docs", "what is the event loop?", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "3", results[0].PageLabel)
	assert.Equal(t, "node.pdf", results[0].Source)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestStoreAddKeepsProvidedEmbeddings(t *testing.T) {
	ctx := context.Background()
	store, emb := newTestStore(t)

	docs := []Document{{ID: "fixed", Content: "loop", Embedding: []float32{0, 0, 1, 0, 0, 0}}}
	require.NoError(t, store.Add(ctx, "docs", docs))
	assert.Equal(t, 0, emb.calls)

	// Re-adding the same ID replaces the document.
	docs[0].Content = "loop again"
	require.NoError(t, store.Add(ctx, "docs", docs))
	n, err := store.Count(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.DeleteCollection(ctx, "docs"))
	n, err = store.Count(ctx, "docs")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpenStoreNeedsEmbedder(t *testing.T) {
	_, err := OpenStore(context.Background(), ":memory:", nil)
	assert.Error(t, err)
}

func TestChunk(t *testing.T) {
	text := strings.Repeat("word ", 50)
	chunks := Chunk(text, ChunkOptions{Size: 40, Overlap: 10})
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 40)
		assert.False(t, strings.HasPrefix(c, "ord"), "chunk split a word: %q", c)
	}
	assert.Greater(t, len(chunks), len([]rune(text))/40)

	assert.Equal(t, []string{"short"}, Chunk("  short  ", DefaultChunkOptions()))
	assert.Empty(t, Chunk("   ", DefaultChunkOptions()))
}

func TestDocumentsFromText(t *testing.T) {
	docs := DocumentsFromText("first page\fsecond page\f", "book.pdf", DefaultChunkOptions())
	require.Len(t, docs, 2)
	assert.Equal(t, "1", docs[0].PageLabel)
	assert.Equal(t, "second page", docs[1].Content)
	assert.Equal(t, "2", docs[1].PageLabel)
	assert.Equal(t, "book.pdf", docs[1].Source)
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("node event loop\fstream buffer"), 0o644))

	n, err := Ingest(ctx, store, "notes", path, DefaultChunkOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = Ingest(ctx, store, "notes", filepath.Join(t.TempDir(), "missing.txt"), DefaultChunkOptions())
	assert.Error(t, err)
}

func TestFormatContext(t *testing.T) {
	got := FormatContext([]Result{
		{Document: Document{Content: "a", PageLabel: "1", Source: "x.pdf"}},
		{Document: Document{Content: "b", PageLabel: "2", Source: "x.pdf"}},
	})
	assert.Equal(t,
		"Page Content: a\nPage Number: 1\nFile Location: x.pdf\n\n\nPage Content: b\nPage Number: 2\nFile Location: x.pdf",
		got)
	assert.Contains(t, SystemPrompt(got), "Context:\nPage Content: a")
}
