package unifiedllm

import "testing"

func TestGetModelInfo(t *testing.T) {
	// By exact ID.
	info := GetModelInfo("gemini-2.5-flash")
	if info == nil {
		t.Fatal("expected to find gemini-2.5-flash")
	}
	if info.Provider != "gemini" {
		t.Errorf("expected provider %q, got %q", "gemini", info.Provider)
	}
	if !info.SupportsJSON {
		t.Error("expected supports_json_schema = true")
	}

	// By alias.
	info = GetModelInfo("gpt-oss")
	if info == nil {
		t.Fatal("expected to find model by alias 'gpt-oss'")
	}
	if info.ID != "openai/gpt-oss-120b:free" {
		t.Errorf("expected id %q, got %q", "openai/gpt-oss-120b:free", info.ID)
	}

	// Unknown model.
	info = GetModelInfo("nonexistent-model")
	if info != nil {
		t.Errorf("expected nil for unknown model, got %v", info)
	}
}

func TestListModels(t *testing.T) {
	all := ListModels("")
	if len(all) != len(Models) {
		t.Errorf("expected %d models, got %d", len(Models), len(all))
	}

	for _, provider := range []string{"openrouter", "gemini", "openai", "anthropic", "ollama"} {
		models := ListModels(provider)
		if len(models) != 2 {
			t.Errorf("expected 2 %s models, got %d", provider, len(models))
		}
		for _, m := range models {
			if m.Provider != provider {
				t.Errorf("expected provider %s, got %q", provider, m.Provider)
			}
		}
	}

	if got := ListModels("nonexistent"); len(got) != 0 {
		t.Errorf("expected no models for unknown provider, got %d", len(got))
	}
}

func TestDefaultModel(t *testing.T) {
	tests := map[string]string{
		"openrouter": "openai/gpt-oss-120b:free",
		"gemini":     "gemini-2.5-flash",
		"openai":     "gpt-4o-mini",
		"anthropic":  "claude-sonnet-4-5",
		"ollama":     "llama3.1:latest",
		"unknown":    "",
	}
	for provider, want := range tests {
		if got := DefaultModel(provider); got != want {
			t.Errorf("DefaultModel(%q) = %q, want %q", provider, got, want)
		}
	}
}

func TestGetLatestModelByCapability(t *testing.T) {
	info := GetLatestModel("anthropic", "json")
	if info != nil {
		t.Errorf("expected no anthropic model with json schema support, got %q", info.ID)
	}

	info = GetLatestModel("ollama", "reasoning")
	if info == nil || info.ID != "qwen3:8b" {
		t.Errorf("expected qwen3:8b for ollama reasoning, got %v", info)
	}
}

func TestResolveModel(t *testing.T) {
	if got := ResolveModel("sonnet"); got != "claude-sonnet-4-5" {
		t.Errorf("ResolveModel(sonnet) = %q", got)
	}
	if got := ResolveModel("custom/model"); got != "custom/model" {
		t.Errorf("ResolveModel should pass unknown ids through, got %q", got)
	}
}
