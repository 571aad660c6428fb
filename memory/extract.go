package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/martinemde/stepagent/unifiedllm"
)

const extractionPrompt = `You extract durable facts about the user from a conversation.
Return standalone, third-person statements such as "Is vegetarian" or "Lives in Pune".
Include preferences, personal details, plans and relationships.
Skip greetings, questions without personal content and anything the assistant said about itself.
Return an empty list when there is nothing worth remembering.`

type extractedFacts struct {
	Facts []string `json:"facts" jsonschema:"description=Standalone facts about the user"`
}

// LLMExtractor asks a model to pull facts out of a conversation.
type LLMExtractor struct {
	Client   *unifiedllm.Client
	Provider string
	Model    string
}

// Extract implements Extractor.
func (e *LLMExtractor) Extract(ctx context.Context, msgs []unifiedllm.Message) ([]string, error) {
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.TextContent())
	}

	out, _, err := unifiedllm.GenerateObject[extractedFacts](ctx, unifiedllm.GenerateOptions{
		Client:   e.Client,
		Provider: e.Provider,
		Model:    e.Model,
		System:   extractionPrompt,
		Prompt:   b.String(),
	}, "facts")
	if err != nil {
		return nil, fmt.Errorf("extracting facts: %w", err)
	}
	return out.Facts, nil
}
