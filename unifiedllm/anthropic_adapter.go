package unifiedllm

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicAdapter implements ProviderAdapter with the Anthropic Messages API.
type AnthropicAdapter struct {
	client anthropic.Client
}

// NewAnthropicAdapter creates an Anthropic adapter. An empty baseURL uses the
// SDK default.
func NewAnthropicAdapter(apiKey, baseURL string) (*AnthropicAdapter, error) {
	if apiKey == "" {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "anthropic API key is required"}}
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicAdapter{client: anthropic.NewClient(opts...)}, nil
}

// Name returns the provider identifier.
func (a *AnthropicAdapter) Name() string { return "anthropic" }

// Complete sends a Messages API request.
func (a *AnthropicAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	msg, err := a.client.Messages.New(ctx, a.translateRequest(req))
	if err != nil {
		return nil, a.translateError(err)
	}

	var text, thinking strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "thinking":
			thinking.WriteString(block.Thinking)
		}
	}

	message := assistantResponse(text.String())
	if thinking.Len() > 0 {
		message.Content = append([]ContentPart{ThinkingPart(thinking.String(), "")}, message.Content...)
	}

	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return &Response{
		ID:           msg.ID,
		Model:        string(msg.Model),
		Provider:     a.Name(),
		Message:      message,
		FinishReason: normalizeFinishReason(string(msg.StopReason)),
		Usage:        Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
	}, nil
}

func (a *AnthropicAdapter) translateRequest(req Request) anthropic.MessageNewParams {
	system, turns := splitAnthropicTurns(req.Messages)
	if instr := schemaInstruction(req.ResponseFormat); instr != "" {
		system = append(system, instr)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: defaultAnthropicMaxTokens,
	}
	if req.MaxTokens != nil {
		params.MaxTokens = int64(*req.MaxTokens)
	}
	for _, s := range system {
		params.System = append(params.System, anthropic.TextBlockParam{Text: s})
	}
	for _, t := range turns {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(t.texts))
		for _, s := range t.texts {
			blocks = append(blocks, anthropic.NewTextBlock(s))
		}
		if t.role == RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(blocks...))
		}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}
	if len(req.StopSequences) > 0 {
		params.StopSequences = req.StopSequences
	}
	return params
}

type anthropicTurn struct {
	role  Role
	texts []string
}

// splitAnthropicTurns pulls system text out of the conversation and merges
// consecutive same-side messages, since the API only knows user and
// assistant turns. Developer and tool messages travel on the user side.
func splitAnthropicTurns(msgs []Message) ([]string, []anthropicTurn) {
	var system []string
	var turns []anthropicTurn
	for _, m := range msgs {
		text := m.TextContent()
		if text == "" {
			continue
		}
		if m.Role == RoleSystem {
			system = append(system, text)
			continue
		}
		side := RoleUser
		if m.Role == RoleAssistant {
			side = RoleAssistant
		} else if m.Role != RoleUser {
			text = "[" + roleLabel(m.Role) + "]: " + text
		}
		if n := len(turns); n > 0 && turns[n-1].role == side {
			turns[n-1].texts = append(turns[n-1].texts, text)
			continue
		}
		turns = append(turns, anthropicTurn{role: side, texts: []string{text}})
	}
	return system, turns
}

func (a *AnthropicAdapter) translateError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		var retryAfter *float64
		if apierr.Response != nil {
			if v, perr := strconv.ParseFloat(apierr.Response.Header.Get("Retry-After"), 64); perr == nil {
				retryAfter = &v
			}
		}
		return ErrorFromStatusCode(apierr.StatusCode, err.Error(), a.Name(), "", err, retryAfter)
	}
	return transportError(a.Name(), err)
}
