package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
)

// DefaultOllamaURL is where a local Ollama server listens.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaAdapter implements ProviderAdapter against a local Ollama server.
type OllamaAdapter struct {
	client *api.Client
}

// NewOllamaAdapter creates an adapter for the Ollama server at baseURL.
func NewOllamaAdapter(baseURL string) (*OllamaAdapter, error) {
	client, err := newOllamaClient(baseURL)
	if err != nil {
		return nil, err
	}
	return &OllamaAdapter{client: client}, nil
}

func newOllamaClient(baseURL string) (*api.Client, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "invalid Ollama URL", Cause: err}}
	}
	return api.NewClient(parsed, http.DefaultClient), nil
}

// Name returns the provider identifier.
func (a *OllamaAdapter) Name() string { return "ollama" }

// Complete sends a non-streaming chat request.
func (a *OllamaAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	chatReq, err := a.translateRequest(req)
	if err != nil {
		return nil, err
	}

	var (
		content  strings.Builder
		thinking strings.Builder
		final    api.ChatResponse
	)
	err = a.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		thinking.WriteString(resp.Message.Thinking)
		if resp.Done {
			final = resp
		}
		return nil
	})
	if err != nil {
		return nil, a.translateError(err)
	}

	message := assistantResponse(content.String())
	if thinking.Len() > 0 {
		message.Content = append([]ContentPart{ThinkingPart(thinking.String(), "")}, message.Content...)
	}

	in, out := final.PromptEvalCount, final.EvalCount
	return &Response{
		ID:           "resp_" + uuid.New().String()[:8],
		Model:        req.Model,
		Provider:     a.Name(),
		Message:      message,
		FinishReason: normalizeFinishReason(final.DoneReason),
		Usage:        Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
	}, nil
}

func (a *OllamaAdapter) translateRequest(req Request) (*api.ChatRequest, error) {
	stream := false
	chatReq := &api.ChatRequest{
		Model:   req.Model,
		Stream:  &stream,
		Options: map[string]any{},
	}

	for _, m := range req.Messages {
		role := string(m.Role)
		// Ollama templates know system, user, assistant and tool.
		if m.Role == RoleDeveloper {
			role = string(RoleSystem)
		}
		chatReq.Messages = append(chatReq.Messages, api.Message{Role: role, Content: m.TextContent()})
	}

	if rf := req.ResponseFormat; rf != nil {
		switch {
		case rf.Type == "json_schema" && rf.JSONSchema != nil:
			schema, err := json.Marshal(rf.JSONSchema)
			if err != nil {
				return nil, &InvalidRequestError{ProviderError: ProviderError{
					SDKError: SDKError{Message: "encoding response schema", Cause: err},
					Provider: a.Name(),
				}}
			}
			chatReq.Format = schema
		case rf.Type == "json" || rf.Type == "json_schema":
			chatReq.Format = json.RawMessage(`"json"`)
		}
	}

	if req.Temperature != nil {
		chatReq.Options["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		chatReq.Options["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		chatReq.Options["num_predict"] = *req.MaxTokens
	}
	if len(req.StopSequences) > 0 {
		chatReq.Options["stop"] = req.StopSequences
	}
	return chatReq, nil
}

func (a *OllamaAdapter) translateError(err error) error {
	var se api.StatusError
	if errors.As(err, &se) {
		msg := se.ErrorMessage
		if msg == "" {
			msg = se.Status
		}
		return ErrorFromStatusCode(se.StatusCode, fmt.Sprintf("ollama: %s", msg), a.Name(), "", err, nil)
	}
	return transportError(a.Name(), err)
}
