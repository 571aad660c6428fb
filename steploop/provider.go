package steploop

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/martinemde/stepagent/unifiedllm"
)

// Completion is one provider reply. Zero Steps means the reply held no
// parseable step.
type Completion struct {
	Steps []Step
	Raw   string
	Usage unifiedllm.Usage
}

// CompletionProvider obtains the next steps for a transcript. A returned
// error is a transport fault that ends the run.
type CompletionProvider interface {
	Complete(ctx context.Context, msgs []unifiedllm.Message) (Completion, error)
}

// ProviderFunc adapts a function to CompletionProvider.
type ProviderFunc func(ctx context.Context, msgs []unifiedllm.Message) (Completion, error)

// Complete calls f.
func (f ProviderFunc) Complete(ctx context.Context, msgs []unifiedllm.Message) (Completion, error) {
	return f(ctx, msgs)
}

// Mode selects how a reply is turned into steps.
type Mode string

const (
	// ModeStrict requests schema-constrained output and decodes the whole
	// reply as one step.
	ModeStrict Mode = "strict"
	// ModePermissive extracts every JSON object from free text.
	ModePermissive Mode = "permissive"
)

// ParseMode converts a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStrict, ModePermissive:
		return Mode(s), nil
	case "":
		return ModePermissive, nil
	}
	return "", fmt.Errorf("unknown step mode %q", s)
}

// ProviderOptions configures an LLMProvider.
type ProviderOptions struct {
	Provider    string
	Model       string
	Mode        Mode
	Temperature *float64
	MaxTokens   *int
	// RetryPolicy governs retries of retryable transport errors. Nil uses
	// unifiedllm.DefaultRetryPolicy.
	RetryPolicy *unifiedllm.RetryPolicy
	Logger      *slog.Logger
}

// LLMProvider is a CompletionProvider backed by a unifiedllm.Client.
type LLMProvider struct {
	client *unifiedllm.Client
	opts   ProviderOptions
	format *unifiedllm.ResponseFormat
	logger *slog.Logger
}

// NewLLMProvider builds a provider for the given client and options.
func NewLLMProvider(client *unifiedllm.Client, opts ProviderOptions) (*LLMProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("steploop: nil client")
	}
	if opts.Mode == "" {
		opts.Mode = ModePermissive
	}
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	p := &LLMProvider{client: client, opts: opts, logger: opts.Logger}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if opts.Mode == ModeStrict {
		schema, err := unifiedllm.SchemaFor[stepSchema]()
		if err != nil {
			return nil, fmt.Errorf("building step schema: %w", err)
		}
		p.format = &unifiedllm.ResponseFormat{Type: "json_schema", Name: "step", JSONSchema: schema}
	}
	return p, nil
}

// Mode returns the parsing strategy in use.
func (p *LLMProvider) Mode() Mode { return p.opts.Mode }

// Complete sends the transcript and parses the reply.
func (p *LLMProvider) Complete(ctx context.Context, msgs []unifiedllm.Message) (Completion, error) {
	req := unifiedllm.Request{
		Provider:       p.opts.Provider,
		Model:          p.opts.Model,
		Messages:       msgs,
		ResponseFormat: p.format,
		Temperature:    p.opts.Temperature,
		MaxTokens:      p.opts.MaxTokens,
	}

	policy := unifiedllm.DefaultRetryPolicy()
	if p.opts.RetryPolicy != nil {
		policy = *p.opts.RetryPolicy
	}
	resp, err := unifiedllm.Retry(ctx, policy.WithLogger(p.logger), func(ctx context.Context) (*unifiedllm.Response, error) {
		return p.client.Complete(ctx, req)
	})
	if err != nil {
		return Completion{}, err
	}

	raw := resp.Text()
	steps := ParseSteps(p.opts.Mode, raw)
	if len(steps) == 0 {
		p.logger.Debug("reply held no step", "mode", p.opts.Mode, "raw", raw)
	}
	return Completion{Steps: steps, Raw: raw, Usage: resp.Usage}, nil
}
