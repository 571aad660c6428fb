package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIAdapterComplete(t *testing.T) {
	var body map[string]interface{}
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "openai/gpt-oss-120b:free",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "<think>hmm</think>{\"step\":\"OUTPUT\",\"content\":\"hi\"}"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
		}`)
	}))
	defer srv.Close()

	adapter, err := NewOpenAIAdapter(OpenAIConfig{
		Name:      "openrouter",
		BaseURL:   srv.URL + "/",
		APIKey:    "test-key",
		Headers:   map[string]string{"X-Title": "stepagent"},
		ExtraBody: map[string]any{"reasoning": map[string]any{"enabled": true}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := adapter.Complete(context.Background(), Request{
		Model: "openai/gpt-oss-120b:free",
		Messages: []Message{
			SystemMessage("sys"),
			UserMessage("hello"),
			DeveloperMessage(`{"step":"OBSERVE"}`),
		},
		ResponseFormat: &ResponseFormat{Type: "json_schema", Name: "step", JSONSchema: map[string]interface{}{"type": "object"}, Strict: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Text() != `{"step":"OUTPUT","content":"hi"}` {
		t.Errorf("unexpected text %q", resp.Text())
	}
	if resp.Reasoning() != "hmm" {
		t.Errorf("unexpected reasoning %q", resp.Reasoning())
	}
	if resp.Usage.TotalTokens != 19 || resp.Provider != "openrouter" {
		t.Errorf("unexpected usage/provider %+v %q", resp.Usage, resp.Provider)
	}

	if headers.Get("X-Title") != "stepagent" {
		t.Errorf("expected X-Title header, got %q", headers.Get("X-Title"))
	}
	if _, ok := body["reasoning"]; !ok {
		t.Errorf("expected extra body field, got %v", body)
	}
	rf, _ := body["response_format"].(map[string]interface{})
	if rf["type"] != "json_schema" {
		t.Errorf("expected json_schema response format, got %v", body["response_format"])
	}
	msgs, _ := body["messages"].([]interface{})
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if last, _ := msgs[2].(map[string]interface{}); last["role"] != "system" {
		t.Errorf("expected developer message to be sent as system, got %v", last["role"])
	}
}

func TestOpenAIAdapterErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error": {"message": "slow down", "type": "rate_limit", "code": "rate_limited"}}`)
	}))
	defer srv.Close()

	adapter, err := NewOpenAIAdapter(OpenAIConfig{BaseURL: srv.URL + "/", APIKey: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = adapter.Complete(context.Background(), Request{Model: "gpt-4o-mini", Messages: []Message{UserMessage("x")}})

	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %T: %v", err, err)
	}
	if rl.RetryAfter == nil || *rl.RetryAfter != 2 {
		t.Errorf("expected Retry-After of 2s, got %v", rl.RetryAfter)
	}
}

func TestSplitAnthropicTurns(t *testing.T) {
	system, turns := splitAnthropicTurns([]Message{
		SystemMessage("be a step agent"),
		UserMessage("weather in Paris?"),
		AssistantMessage(`{"step":"PLAN"}`),
		AssistantMessage(`{"step":"TOOL"}`),
		DeveloperMessage(`{"step":"OBSERVE"}`),
	})

	if len(system) != 1 || system[0] != "be a step agent" {
		t.Errorf("unexpected system %v", system)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 merged turns, got %d", len(turns))
	}
	if turns[1].role != RoleAssistant || len(turns[1].texts) != 2 {
		t.Errorf("expected consecutive assistant messages merged, got %+v", turns[1])
	}
	if turns[2].role != RoleUser || turns[2].texts[0] != `[Developer]: {"step":"OBSERVE"}` {
		t.Errorf("expected developer message on the user side, got %+v", turns[2])
	}
}

func TestOllamaTranslateRequest(t *testing.T) {
	adapter := &OllamaAdapter{}
	temp := 0.2
	req, err := adapter.translateRequest(Request{
		Model:          "llama3.1:latest",
		Messages:       []Message{SystemMessage("s"), DeveloperMessage("d"), UserMessage("u")},
		ResponseFormat: &ResponseFormat{Type: "json_schema", JSONSchema: map[string]interface{}{"type": "object"}},
		Temperature:    &temp,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Stream == nil || *req.Stream {
		t.Error("expected streaming disabled")
	}
	if req.Messages[1].Role != "system" {
		t.Errorf("expected developer mapped to system, got %q", req.Messages[1].Role)
	}
	if string(req.Format) != `{"type":"object"}` {
		t.Errorf("unexpected format %s", req.Format)
	}
	if req.Options["temperature"] != 0.2 {
		t.Errorf("expected temperature option, got %v", req.Options)
	}
}
