package unifiedllm

import (
	"testing"
)

func TestMessageConstructors(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		role Role
	}{
		{"SystemMessage", SystemMessage("You are helpful."), RoleSystem},
		{"UserMessage", UserMessage("You are helpful."), RoleUser},
		{"AssistantMessage", AssistantMessage("You are helpful."), RoleAssistant},
		{"DeveloperMessage", DeveloperMessage("You are helpful."), RoleDeveloper},
		{"TextMessage", TextMessage(RoleTool, "You are helpful."), RoleTool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.msg.Role != tt.role {
				t.Errorf("expected role %q, got %q", tt.role, tt.msg.Role)
			}
			if tt.msg.TextContent() != "You are helpful." {
				t.Errorf("expected text %q, got %q", "You are helpful.", tt.msg.TextContent())
			}
		})
	}
}

func TestMessageTextContentSkipsThinking(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []ContentPart{
			ThinkingPart("hidden", ""),
			TextPart("Hello "),
			TextPart("world"),
		},
	}
	if got := msg.TextContent(); got != "Hello world" {
		t.Errorf("expected %q, got %q", "Hello world", got)
	}
}

func TestUsageAdd(t *testing.T) {
	a := Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30}
	b := Usage{InputTokens: 5, OutputTokens: 15, TotalTokens: 20}
	result := a.Add(b)

	if result.InputTokens != 15 {
		t.Errorf("expected input_tokens 15, got %d", result.InputTokens)
	}
	if result.OutputTokens != 35 {
		t.Errorf("expected output_tokens 35, got %d", result.OutputTokens)
	}
	if result.TotalTokens != 50 {
		t.Errorf("expected total_tokens 50, got %d", result.TotalTokens)
	}
	if result.ReasoningTokens != nil {
		t.Errorf("expected reasoning_tokens nil, got %v", result.ReasoningTokens)
	}
}

func TestUsageAddOptionalFields(t *testing.T) {
	five := 5
	ten := 10
	a := Usage{ReasoningTokens: &five}
	b := Usage{ReasoningTokens: &ten}
	if got := a.Add(b).ReasoningTokens; got == nil || *got != 15 {
		t.Errorf("expected reasoning_tokens 15, got %v", got)
	}

	if got := a.Add(Usage{}).ReasoningTokens; got == nil || *got != 5 {
		t.Errorf("expected reasoning_tokens 5 when one side is nil, got %v", got)
	}
}

func TestResponseAccessors(t *testing.T) {
	resp := Response{Message: assistantResponse("<think>reasoning here</think>The answer is 42.")}

	if resp.Text() != "The answer is 42." {
		t.Errorf("expected text %q, got %q", "The answer is 42.", resp.Text())
	}
	if resp.Reasoning() != "reasoning here" {
		t.Errorf("expected reasoning %q, got %q", "reasoning here", resp.Reasoning())
	}
}

func TestNormalizeFinishReason(t *testing.T) {
	cases := map[string]string{
		"stop":           "stop",
		"end_turn":       "stop",
		"":               "stop",
		"length":         "length",
		"max_tokens":     "length",
		"content_filter": "content_filter",
		"tool_calls":     "other",
	}
	for raw, want := range cases {
		if got := normalizeFinishReason(raw).Reason; got != want {
			t.Errorf("normalizeFinishReason(%q) = %q, want %q", raw, got, want)
		}
	}
}
