package unifiedllm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
)

// GenerateOptions configures a high-level Generate call.
type GenerateOptions struct {
	Model           string
	Prompt          string    // simple text prompt (mutually exclusive with Messages)
	Messages        []Message // full conversation (mutually exclusive with Prompt)
	System          string
	ResponseFormat  *ResponseFormat
	Temperature     *float64
	TopP            *float64
	MaxTokens       *int
	StopSequences   []string
	ReasoningEffort string
	Provider        string
	ProviderOptions map[string]interface{}
	RetryPolicy     *RetryPolicy  // nil uses DefaultRetryPolicy
	Timeout         time.Duration // per call, including retries; zero means none
	Client          *Client
}

// GenerateResult is the outcome of Generate.
type GenerateResult struct {
	Text         string
	Reasoning    string
	FinishReason FinishReason
	Usage        Usage
	Response     *Response
}

// Generate is the high-level blocking generation function. It standardizes
// the prompt, applies the timeout and retries transient failures.
func Generate(ctx context.Context, opts GenerateOptions) (*GenerateResult, error) {
	if opts.Prompt != "" && len(opts.Messages) > 0 {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "cannot specify both prompt and messages",
		}}
	}

	client := opts.Client
	if client == nil {
		client = GetDefaultClient()
	}

	policy := DefaultRetryPolicy()
	if opts.RetryPolicy != nil {
		policy = *opts.RetryPolicy
	}

	messages := opts.Messages
	if opts.Prompt != "" {
		messages = []Message{UserMessage(opts.Prompt)}
	}
	if opts.System != "" {
		messages = append([]Message{SystemMessage(opts.System)}, messages...)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req := Request{
		Model:           opts.Model,
		Messages:        messages,
		Provider:        opts.Provider,
		ResponseFormat:  opts.ResponseFormat,
		Temperature:     opts.Temperature,
		TopP:            opts.TopP,
		MaxTokens:       opts.MaxTokens,
		StopSequences:   opts.StopSequences,
		ReasoningEffort: opts.ReasoningEffort,
		ProviderOptions: opts.ProviderOptions,
	}

	resp, err := Retry(ctx, policy, func(ctx context.Context) (*Response, error) {
		return client.Complete(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	return &GenerateResult{
		Text:         resp.Text(),
		Reasoning:    resp.Reasoning(),
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
		Response:     resp,
	}, nil
}

// SchemaFor reflects a JSON schema for T with every definition inlined, the
// shape structured-output endpoints expect.
func SchemaFor[T any]() (map[string]interface{}, error) {
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	var zero T
	raw, err := json.Marshal(r.Reflect(&zero))
	if err != nil {
		return nil, fmt.Errorf("encoding schema: %w", err)
	}
	var schema map[string]interface{}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	return schema, nil
}

// GenerateObject generates a value of type T. The schema is reflected from T,
// requested natively where supported, and the reply is decoded after any
// reasoning blocks are stripped.
func GenerateObject[T any](ctx context.Context, opts GenerateOptions, name string) (T, *GenerateResult, error) {
	var out T
	schema, err := SchemaFor[T]()
	if err != nil {
		return out, nil, err
	}
	opts.ResponseFormat = &ResponseFormat{
		Type:       "json_schema",
		Name:       name,
		JSONSchema: schema,
		Strict:     true,
	}

	result, err := Generate(ctx, opts)
	if err != nil {
		return out, nil, err
	}

	text := StripThinking(result.Text)
	if err := json.Unmarshal([]byte(TrimCodeFence(text)), &out); err != nil {
		return out, result, &NoObjectGeneratedError{SDKError: SDKError{
			Message: "failed to parse structured output",
			Cause:   err,
		}}
	}
	return out, result, nil
}

// TrimCodeFence removes a surrounding ```json fence some models add.
func TrimCodeFence(s string) string {
	const fence = "```"
	if len(s) < 2*len(fence) || s[:len(fence)] != fence || s[len(s)-len(fence):] != fence {
		return s
	}
	s = s[len(fence) : len(s)-len(fence)]
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return s
}
