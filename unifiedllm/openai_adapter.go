package unifiedllm

import (
	"context"
	"errors"
	"strconv"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Base URLs of the OpenAI-compatible endpoints this package knows about.
const (
	OpenAIBaseURL     = "https://api.openai.com/v1/"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1/"
	GeminiBaseURL     = "https://generativelanguage.googleapis.com/v1beta/openai/"
)

// OpenAIConfig configures an adapter speaking the OpenAI chat completions
// protocol. The same adapter serves OpenAI itself, OpenRouter and Gemini's
// compatibility endpoint.
type OpenAIConfig struct {
	Name    string // provider identifier reported by Name()
	BaseURL string
	APIKey  string
	Headers map[string]string

	// DeveloperRole sends developer messages natively. Endpoints that reject
	// the role receive them as system messages instead.
	DeveloperRole bool

	// ExtraBody is merged into every request body (e.g. OpenRouter's
	// "reasoning" switch).
	ExtraBody map[string]any
}

// OpenAIAdapter implements ProviderAdapter with the official openai-go SDK.
type OpenAIAdapter struct {
	name          string
	client        openai.Client
	developerRole bool
	extra         []option.RequestOption
}

// NewOpenAIAdapter creates an adapter for an OpenAI-compatible endpoint.
func NewOpenAIAdapter(cfg OpenAIConfig) (*OpenAIAdapter, error) {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.APIKey == "" {
		return nil, &ConfigurationError{SDKError: SDKError{Message: cfg.Name + " API key is required"}}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenAIBaseURL
	}

	opts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0), // retries happen in Retry
	}
	for k, v := range cfg.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}

	var extra []option.RequestOption
	for k, v := range cfg.ExtraBody {
		extra = append(extra, option.WithJSONSet(k, v))
	}

	return &OpenAIAdapter{
		name:          cfg.Name,
		client:        openai.NewClient(opts...),
		developerRole: cfg.DeveloperRole,
		extra:         extra,
	}, nil
}

// NewOpenRouterAdapter creates an OpenRouter adapter. The referer and title
// headers identify the app on openrouter.ai rankings; reasoning asks the
// model to think before answering.
func NewOpenRouterAdapter(apiKey, referer, title string, reasoning bool) (*OpenAIAdapter, error) {
	cfg := OpenAIConfig{
		Name:    "openrouter",
		BaseURL: OpenRouterBaseURL,
		APIKey:  apiKey,
		Headers: map[string]string{},
	}
	if referer != "" {
		cfg.Headers["HTTP-Referer"] = referer
	}
	if title != "" {
		cfg.Headers["X-Title"] = title
	}
	if reasoning {
		cfg.ExtraBody = map[string]any{"reasoning": map[string]any{"enabled": true}}
	}
	return NewOpenAIAdapter(cfg)
}

// NewGeminiAdapter creates an adapter for Gemini's OpenAI-compatible endpoint.
func NewGeminiAdapter(apiKey string) (*OpenAIAdapter, error) {
	return NewOpenAIAdapter(OpenAIConfig{
		Name:    "gemini",
		BaseURL: GeminiBaseURL,
		APIKey:  apiKey,
	})
}

// Name returns the provider identifier.
func (a *OpenAIAdapter) Name() string { return a.name }

// Client exposes the underlying SDK client for embeddings and audio.
func (a *OpenAIAdapter) Client() *openai.Client { return &a.client }

// Complete sends a chat completion request.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	params := a.translateRequest(req)

	completion, err := a.client.Chat.Completions.New(ctx, params, a.extra...)
	if err != nil {
		return nil, a.translateError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, &ProviderError{
			SDKError:  SDKError{Message: "completion returned no choices"},
			Provider:  a.name,
			Retryable: true,
		}
	}

	choice := completion.Choices[0]
	usage := Usage{
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:  int(completion.Usage.TotalTokens),
	}
	if rt := int(completion.Usage.CompletionTokensDetails.ReasoningTokens); rt > 0 {
		usage.ReasoningTokens = &rt
	}

	return &Response{
		ID:           completion.ID,
		Model:        completion.Model,
		Provider:     a.name,
		Message:      assistantResponse(choice.Message.Content),
		FinishReason: normalizeFinishReason(choice.FinishReason),
		Usage:        usage,
	}, nil
}

func (a *OpenAIAdapter) translateRequest(req Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: a.translateMessages(req.Messages),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*req.MaxTokens))
	}

	if rf := req.ResponseFormat; rf != nil {
		switch rf.Type {
		case "json_schema":
			name := rf.Name
			if name == "" {
				name = "response"
			}
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
					JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
						Name:   name,
						Schema: rf.JSONSchema,
						Strict: openai.Bool(rf.Strict),
					},
				},
			}
		case "json":
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
			}
		}
	}
	return params
}

func (a *OpenAIAdapter) translateMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		text := m.TextContent()
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(text))
		case RoleDeveloper:
			if a.developerRole {
				out = append(out, openai.DeveloperMessage(text))
			} else {
				out = append(out, openai.SystemMessage(text))
			}
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(text))
		default:
			// Tool observations are plain text here; they carry no call id.
			out = append(out, openai.UserMessage(text))
		}
	}
	return out
}

func (a *OpenAIAdapter) translateError(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		var retryAfter *float64
		if apierr.Response != nil {
			if v, perr := strconv.ParseFloat(apierr.Response.Header.Get("Retry-After"), 64); perr == nil {
				retryAfter = &v
			}
		}
		return ErrorFromStatusCode(apierr.StatusCode, err.Error(), a.name, apierr.Code, err, retryAfter)
	}
	return transportError(a.name, err)
}

func normalizeFinishReason(raw string) FinishReason {
	switch raw {
	case "stop", "end_turn", "stop_sequence":
		return FinishReason{Reason: "stop", Raw: raw}
	case "length", "max_tokens":
		return FinishReason{Reason: "length", Raw: raw}
	case "content_filter", "refusal":
		return FinishReason{Reason: "content_filter", Raw: raw}
	case "":
		return FinishReason{Reason: "stop"}
	default:
		return FinishReason{Reason: "other", Raw: raw}
	}
}
