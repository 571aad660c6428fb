package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/martinemde/stepagent/unifiedllm"
)

// FormatContext renders search results as the context block of the
// answering prompt.
func FormatContext(results []Result) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("Page Content: %s\nPage Number: %s\nFile Location: %s", r.Content, r.PageLabel, r.Source)
	}
	return strings.Join(blocks, "\n\n\n")
}

// SystemPrompt builds the answering instruction around a context block.
func SystemPrompt(context string) string {
	return "You are a helpful AI assistant who answers user queries based on the available context " +
		"retrieved from a document along with page contents and page numbers.\n\n" +
		"You should only answer the user based on the following context and navigate the user " +
		"to open the right page number to know more.\n\n" +
		"Context:\n" + context
}

// Answerer answers questions from a document collection.
type Answerer struct {
	Store      *Store
	Collection string
	K          int

	Client   *unifiedllm.Client
	Provider string
	Model    string
}

// Answer retrieves the K most similar chunks and asks the model to answer
// query from them.
func (a *Answerer) Answer(ctx context.Context, query string) (string, error) {
	if a.Store == nil || a.Client == nil {
		return "", errors.New("retrieval: answerer needs a store and a client")
	}
	k := a.K
	if k <= 0 {
		k = 3
	}

	results, err := a.Store.SimilaritySearch(ctx, a.Collection, query, k)
	if err != nil {
		return "", err
	}

	res, err := unifiedllm.Generate(ctx, unifiedllm.GenerateOptions{
		Client:   a.Client,
		Provider: a.Provider,
		Model:    a.Model,
		System:   SystemPrompt(FormatContext(results)),
		Prompt:   query,
	})
	if err != nil {
		return "", fmt.Errorf("answering: %w", err)
	}
	return res.Text, nil
}
