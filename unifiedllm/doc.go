// Package unifiedllm provides a provider-agnostic chat completion client.
//
// # Architecture
//
// The package follows a four-layer architecture:
//
//   - Layer 1 (Provider Contract): ProviderAdapter interface and shared types
//   - Layer 2 (Provider Utilities): Retry logic, error classification, token counting
//   - Layer 3 (Core Client): Client with provider routing and middleware
//   - Layer 4 (High-Level API): Generate and GenerateObject
//
// # Adapters
//
// OpenAIAdapter speaks the chat completions protocol through openai-go and
// serves OpenAI, OpenRouter and Gemini's compatibility endpoint.
// AnthropicAdapter uses the Messages API, OllamaAdapter a local Ollama
// server, and GollmAdapter routes through github.com/teilomillet/gollm.
//
//	adapter, _ := unifiedllm.NewOpenRouterAdapter(os.Getenv("OPENROUTER_API_KEY"), "http://127.0.0.1", "hello", true)
//	client := unifiedllm.NewClient(unifiedllm.WithProvider("openrouter", adapter))
//
//	resp, _ := client.Complete(ctx, unifiedllm.Request{
//	    Model:    "openai/gpt-oss-120b:free",
//	    Messages: []unifiedllm.Message{unifiedllm.UserMessage("Hello")},
//	})
//	fmt.Println(resp.Text())
//
// Reasoning that models emit inline as <think> blocks is split out of the
// visible text into thinking parts; see Response.Reasoning.
//
// # Structured output
//
// GenerateObject reflects a JSON schema from a Go type and requests it with
// a json_schema response format. Backends without native support receive the
// schema as a system instruction.
//
// # Model Catalog
//
//	info := unifiedllm.GetModelInfo("gpt-oss")
//	models := unifiedllm.ListModels("gemini")
//	latest := unifiedllm.GetLatestModel("ollama", "reasoning")
package unifiedllm
