package unifiedllm

// ModelInfo describes a known model in the catalog.
type ModelInfo struct {
	ID                string   `json:"id"`
	Provider          string   `json:"provider"`
	DisplayName       string   `json:"display_name"`
	ContextWindow     int      `json:"context_window"`
	MaxOutput         *int     `json:"max_output,omitempty"`
	SupportsJSON      bool     `json:"supports_json_schema"`
	SupportsReasoning bool     `json:"supports_reasoning"`
	Aliases           []string `json:"aliases,omitempty"`
}

func intPtr(v int) *int { return &v }

// Models is the built-in model catalog. The first entry per provider is the
// provider default.
var Models = []ModelInfo{
	// OpenRouter
	{
		ID: "openai/gpt-oss-120b:free", Provider: "openrouter", DisplayName: "gpt-oss-120b (free)",
		ContextWindow: 131072, MaxOutput: intPtr(32768),
		SupportsJSON: true, SupportsReasoning: true,
		Aliases: []string{"gpt-oss", "gpt-oss-120b"},
	},
	{
		ID: "meta-llama/llama-3.3-70b-instruct", Provider: "openrouter", DisplayName: "Llama 3.3 70B Instruct",
		ContextWindow: 131072, MaxOutput: intPtr(16384),
		SupportsJSON: true,
	},

	// Gemini (OpenAI-compatible endpoint)
	{
		ID: "gemini-2.5-flash", Provider: "gemini", DisplayName: "Gemini 2.5 Flash",
		ContextWindow: 1048576, MaxOutput: intPtr(65536),
		SupportsJSON: true, SupportsReasoning: true,
		Aliases: []string{"gemini-flash"},
	},
	{
		ID: "gemini-2.5-pro", Provider: "gemini", DisplayName: "Gemini 2.5 Pro",
		ContextWindow: 1048576, MaxOutput: intPtr(65536),
		SupportsJSON: true, SupportsReasoning: true,
		Aliases: []string{"gemini-pro"},
	},

	// OpenAI
	{
		ID: "gpt-4o-mini", Provider: "openai", DisplayName: "GPT-4o mini",
		ContextWindow: 128000, MaxOutput: intPtr(16384),
		SupportsJSON: true,
		Aliases: []string{"4o-mini"},
	},
	{
		ID: "gpt-4o", Provider: "openai", DisplayName: "GPT-4o",
		ContextWindow: 128000, MaxOutput: intPtr(16384),
		SupportsJSON: true,
		Aliases: []string{"4o"},
	},

	// Anthropic
	{
		ID: "claude-sonnet-4-5", Provider: "anthropic", DisplayName: "Claude Sonnet 4.5",
		ContextWindow: 200000, MaxOutput: intPtr(16384),
		SupportsReasoning: true,
		Aliases: []string{"sonnet", "claude-sonnet"},
	},
	{
		ID: "claude-haiku-4-5", Provider: "anthropic", DisplayName: "Claude Haiku 4.5",
		ContextWindow: 200000, MaxOutput: intPtr(16384),
		Aliases: []string{"haiku", "claude-haiku"},
	},

	// Ollama
	{
		ID: "llama3.1:latest", Provider: "ollama", DisplayName: "Llama 3.1 (local)",
		ContextWindow: 131072,
		SupportsJSON: true,
		Aliases: []string{"llama3.1"},
	},
	{
		ID: "qwen3:8b", Provider: "ollama", DisplayName: "Qwen3 8B (local)",
		ContextWindow: 40960,
		SupportsJSON: true, SupportsReasoning: true,
		Aliases: []string{"qwen3"},
	},
}

// GetModelInfo returns the catalog entry for a model, or nil if unknown.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// ResolveModel maps an alias to its canonical model ID. Unknown names are
// returned unchanged.
func ResolveModel(modelID string) string {
	if info := GetModelInfo(modelID); info != nil {
		return info.ID
	}
	return modelID
}

// ListModels returns all known models, optionally filtered by provider.
func ListModels(provider string) []ModelInfo {
	if provider == "" {
		result := make([]ModelInfo, len(Models))
		copy(result, Models)
		return result
	}
	var result []ModelInfo
	for _, m := range Models {
		if m.Provider == provider {
			result = append(result, m)
		}
	}
	return result
}

// DefaultModel returns the default model for a provider, or "" when the
// provider is not in the catalog.
func DefaultModel(provider string) string {
	if info := GetLatestModel(provider, ""); info != nil {
		return info.ID
	}
	return ""
}

// GetLatestModel returns the first model for a provider, optionally filtered
// by capability ("json", "reasoning").
func GetLatestModel(provider string, capability string) *ModelInfo {
	for i := range Models {
		if Models[i].Provider != provider {
			continue
		}
		switch capability {
		case "":
			return &Models[i]
		case "json":
			if Models[i].SupportsJSON {
				return &Models[i]
			}
		case "reasoning":
			if Models[i].SupportsReasoning {
				return &Models[i]
			}
		}
	}
	return nil
}
