package unifiedllm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"
)

// Middleware wraps a provider call. It receives the request and a next function
// that calls the downstream handler, and returns the response.
type Middleware func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error)

// Client is the core orchestration layer. It holds registered provider adapters,
// routes requests by provider identifier, and applies middleware.
type Client struct {
	providers       map[string]ProviderAdapter
	defaultProvider string
	middleware      []Middleware
	mu              sync.RWMutex
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers a provider adapter.
func WithProvider(name string, adapter ProviderAdapter) ClientOption {
	return func(c *Client) {
		c.providers[name] = adapter
	}
}

// WithDefaultProvider sets the default provider name.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = name
	}
}

// WithMiddleware adds middleware to the client.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// NewClient creates a new Client with the given options.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers: make(map[string]ProviderAdapter),
	}
	for _, opt := range opts {
		opt(c)
	}
	// If no default and exactly one provider, use it.
	if c.defaultProvider == "" && len(c.providers) == 1 {
		for name := range c.providers {
			c.defaultProvider = name
		}
	}
	return c
}

// RegisterProvider adds a provider adapter to the client.
func (c *Client) RegisterProvider(name string, adapter ProviderAdapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[name] = adapter
	if c.defaultProvider == "" {
		c.defaultProvider = name
	}
}

// Providers lists the registered provider names in sorted order.
func (c *Client) Providers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolveProvider determines which provider adapter to use for a request.
func (c *Client) resolveProvider(req Request) (ProviderAdapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name := req.Provider
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		// Try to infer from model catalog.
		if info := GetModelInfo(req.Model); info != nil {
			name = info.Provider
		}
	}
	if name == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "no provider specified and no default provider configured",
		}}
	}

	adapter, ok := c.providers[name]
	if !ok {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("provider %q is not registered", name),
		}}
	}
	return adapter, nil
}

// Complete sends a blocking request through middleware to the resolved provider.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	adapter, err := c.resolveProvider(req)
	if err != nil {
		return nil, err
	}

	if req.Provider == "" {
		req.Provider = adapter.Name()
	}
	req.Model = ResolveModel(req.Model)
	if req.Model == "" {
		req.Model = DefaultModel(req.Provider)
	}

	handler := func(ctx context.Context, r Request) (*Response, error) {
		return adapter.Complete(ctx, r)
	}

	// Apply middleware in reverse order so first registered runs first.
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw := c.middleware[i]
		next := handler
		handler = func(ctx context.Context, r Request) (*Response, error) {
			return mw(ctx, r, next)
		}
	}

	return handler(ctx, req)
}

// Close releases resources held by all registered providers.
func (c *Client) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var firstErr error
	for _, adapter := range c.providers {
		if closer, ok := adapter.(Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// LoggingMiddleware logs every completion with its latency and token usage.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		elapsed := time.Since(start)
		if err != nil {
			logger.WarnContext(ctx, "completion failed",
				"provider", req.Provider,
				"model", req.Model,
				"elapsed", elapsed,
				"retryable", IsRetryable(err),
				"error", err,
			)
			return nil, err
		}
		logger.DebugContext(ctx, "completion",
			"provider", req.Provider,
			"model", req.Model,
			"elapsed", elapsed,
			"messages", len(req.Messages),
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens,
		)
		return resp, nil
	}
}

// ProviderSettings holds what is needed to construct one provider adapter.
type ProviderSettings struct {
	APIKey  string
	BaseURL string

	// OpenRouter only.
	Referer   string
	Title     string
	Reasoning bool
}

// NewProviderAdapter builds the adapter for a named provider. "gollm:<name>"
// routes through the gollm library instead of a native SDK.
func NewProviderAdapter(name string, s ProviderSettings) (ProviderAdapter, error) {
	switch name {
	case "openai":
		return NewOpenAIAdapter(OpenAIConfig{
			Name: "openai", BaseURL: s.BaseURL, APIKey: s.APIKey, DeveloperRole: true,
		})
	case "openrouter":
		return NewOpenRouterAdapter(s.APIKey, s.Referer, s.Title, s.Reasoning)
	case "gemini":
		return NewGeminiAdapter(s.APIKey)
	case "anthropic":
		return NewAnthropicAdapter(s.APIKey, s.BaseURL)
	case "ollama":
		return NewOllamaAdapter(s.BaseURL)
	}
	if len(name) > len("gollm:") && name[:len("gollm:")] == "gollm:" {
		return NewGollmAdapter(name[len("gollm:"):], s.APIKey)
	}
	return nil, &ConfigurationError{SDKError: SDKError{
		Message: fmt.Sprintf("unknown provider %q", name),
	}}
}

// envKeys maps provider names to the variables holding their API keys.
var envKeys = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
}

// Module-level default client.

var (
	defaultClient   *Client
	defaultClientMu sync.RWMutex
)

// SetDefaultClient sets the module-level default client.
func SetDefaultClient(c *Client) {
	defaultClientMu.Lock()
	defer defaultClientMu.Unlock()
	defaultClient = c
}

// GetDefaultClient returns the module-level default client, lazily initializing
// it from environment variables if not already set.
func GetDefaultClient() *Client {
	defaultClientMu.RLock()
	if defaultClient != nil {
		c := defaultClient
		defaultClientMu.RUnlock()
		return c
	}
	defaultClientMu.RUnlock()

	defaultClientMu.Lock()
	defer defaultClientMu.Unlock()
	if defaultClient != nil {
		return defaultClient
	}
	defaultClient = NewClientFromEnv()
	return defaultClient
}

// NewClientFromEnv creates a Client with an adapter for every provider whose
// API key is present in the environment. Ollama is registered when
// OLLAMA_HOST is set.
func NewClientFromEnv() *Client {
	c := NewClient()
	for _, name := range []string{"openai", "openrouter", "gemini", "anthropic"} {
		key := os.Getenv(envKeys[name])
		if key == "" {
			continue
		}
		if adapter, err := NewProviderAdapter(name, ProviderSettings{APIKey: key}); err == nil {
			c.RegisterProvider(name, adapter)
		}
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		if adapter, err := NewOllamaAdapter(host); err == nil {
			c.RegisterProvider("ollama", adapter)
		}
	}
	return c
}

// APIKeyEnv returns the environment variable conventionally holding a
// provider's API key, or "" for keyless providers.
func APIKeyEnv(provider string) string {
	return envKeys[provider]
}
