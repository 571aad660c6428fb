package unifiedllm

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackEncoding is used for models tiktoken has no mapping for.
const fallbackEncoding = "cl100k_base"

// TokenCounter encodes and decodes text with a model's BPE vocabulary.
type TokenCounter struct {
	model    string
	encoding *tiktoken.Tiktoken
}

var (
	countersMu sync.Mutex
	counters   = map[string]*TokenCounter{}
)

// NewTokenCounter returns a counter for the given model. Models unknown to
// tiktoken fall back to cl100k_base. Counters are cached per model since
// loading a vocabulary is expensive.
func NewTokenCounter(model string) (*TokenCounter, error) {
	countersMu.Lock()
	defer countersMu.Unlock()

	if tc, ok := counters[model]; ok {
		return tc, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("loading %s encoding: %w", fallbackEncoding, err)
		}
	}

	tc := &TokenCounter{model: model, encoding: enc}
	counters[model] = tc
	return tc, nil
}

// Model returns the model the counter was built for.
func (t *TokenCounter) Model() string { return t.model }

// Encode returns the token ids for text.
func (t *TokenCounter) Encode(text string) []int {
	return t.encoding.Encode(text, nil, nil)
}

// Decode turns token ids back into text.
func (t *TokenCounter) Decode(tokens []int) string {
	return t.encoding.Decode(tokens)
}

// Count returns the number of tokens in text.
func (t *TokenCounter) Count(text string) int {
	return len(t.Encode(text))
}

// CountMessages approximates the prompt size of a conversation. Each message
// carries a fixed overhead for its role framing.
func (t *TokenCounter) CountMessages(msgs []Message) int {
	const perMessage = 4
	total := 0
	for _, m := range msgs {
		total += perMessage + t.Count(string(m.Role)) + t.Count(m.TextContent())
	}
	return total
}

// estimateUsage fills in usage for providers that do not report it.
func estimateUsage(model string, req Request, output string) Usage {
	tc, err := NewTokenCounter(model)
	if err != nil {
		in := 0
		for _, m := range req.Messages {
			in += len(m.TextContent()) / 4
		}
		out := len(output) / 4
		return Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
	}
	in := tc.CountMessages(req.Messages)
	out := tc.Count(output)
	return Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
}
