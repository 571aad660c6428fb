package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/stepagent/unifiedllm"
)

type wordEmbedder struct{ vocab []string }

func (e wordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
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

type staticExtractor struct {
	facts []string
	err   error
}

func (e staticExtractor) Extract(ctx context.Context, msgs []unifiedllm.Message) ([]string, error) {
	return e.facts, e.err
}

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	emb := wordEmbedder{vocab: []string{"vegetarian", "food", "pune", "live", "guitar", "music"}}
	s, err := Open(context.Background(), ":memory:", emb, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAndSearch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, WithExtractor(staticExtractor{facts: []string{
		"Is vegetarian and loves food",
		"Lives in Pune",
		"Plays guitar and loves music",
		"Lives in Pune",
		"  ",
	}}))

	added, err := s.Add(ctx, "vinit", []unifiedllm.Message{unifiedllm.UserMessage("hi")})
	require.NoError(t, err)
	require.Len(t, added, 3)
	assert.NotEmpty(t, added[0].ID)

	got, err := s.Search(ctx, "vinit", "what food should I cook?", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Is vegetarian and loves food", got[0].Text)
	assert.Greater(t, got[0].Score, 0.0)

	none, err := s.Search(ctx, "someone-else", "food", 3)
	require.NoError(t, err)
	assert.Empty(t, none)

	// Known facts are not stored twice.
	again, err := s.Add(ctx, "vinit", nil)
	require.NoError(t, err)
	assert.Empty(t, again)
	all, err := s.All(ctx, "vinit")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, s.Delete(ctx, all[0].ID))
	all, err = s.All(ctx, "vinit")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAddFallsBackToUserText(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, WithExtractor(staticExtractor{err: errors.New("model down")}))

	added, err := s.Add(ctx, "u", []unifiedllm.Message{
		unifiedllm.UserMessage("I live in Pune"),
		unifiedllm.AssistantMessage("Nice!"),
	})
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, "I live in Pune", added[0].Text)
}

type factsAdapter struct{ reply string }

func (f factsAdapter) Name() string { return "fake" }

func (f factsAdapter) Complete(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	return &unifiedllm.Response{
		Provider: "fake",
		Message:  unifiedllm.AssistantMessage(f.reply),
	}, nil
}

func TestLLMExtractor(t *testing.T) {
	client := unifiedllm.NewClient(unifiedllm.WithProvider("fake", factsAdapter{
		reply: "```json\n{\"facts\":[\"Lives in Pune\"]}\n```",
	}))
	e := &LLMExtractor{Client: client, Model: "m"}

	facts, err := e.Extract(context.Background(), []unifiedllm.Message{unifiedllm.UserMessage("I live in Pune")})
	require.NoError(t, err)
	assert.Equal(t, []string{"Lives in Pune"}, facts)
}

func TestFormatMemories(t *testing.T) {
	got := FormatMemories([]Memory{{ID: "1", Text: "Lives in Pune"}})
	assert.Equal(t, []string{"ID: 1\nMemory: Lives in Pune"}, got)
}
