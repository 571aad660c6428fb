package unifiedllm

import (
	"strings"
	"testing"
)

func TestGollmAdapterTranslateError(t *testing.T) {
	adapter := &GollmAdapter{provider: "openai"}

	tests := []struct {
		errMsg string
		check  func(error) bool
		want   string
	}{
		{"401 Unauthorized", func(e error) bool { _, ok := e.(*AuthenticationError); return ok }, "AuthenticationError"},
		{"invalid api key", func(e error) bool { _, ok := e.(*AuthenticationError); return ok }, "AuthenticationError"},
		{"403 Forbidden", func(e error) bool { _, ok := e.(*AccessDeniedError); return ok }, "AccessDeniedError"},
		{"404 not found", func(e error) bool { _, ok := e.(*NotFoundError); return ok }, "NotFoundError"},
		{"429 rate limit exceeded", func(e error) bool { _, ok := e.(*RateLimitError); return ok }, "RateLimitError"},
		{"context length exceeded", func(e error) bool { _, ok := e.(*ContextLengthError); return ok }, "ContextLengthError"},
		{"500 internal server error", func(e error) bool { _, ok := e.(*ServerError); return ok }, "ServerError"},
		{"timeout waiting for response", func(e error) bool { _, ok := e.(*RequestTimeoutError); return ok }, "RequestTimeoutError"},
		{"content filter triggered", func(e error) bool { _, ok := e.(*ContentFilterError); return ok }, "ContentFilterError"},
		{"something unknown", func(e error) bool { _, ok := e.(*ProviderError); return ok }, "ProviderError"},
	}

	for _, tt := range tests {
		err := adapter.translateError(errForMsg(tt.errMsg))
		if err == nil {
			t.Errorf("expected non-nil error for %q", tt.errMsg)
			continue
		}
		if !tt.check(err) {
			t.Errorf("for %q: expected %s, got %T", tt.errMsg, tt.want, err)
		}
	}
}

type simpleError struct{ msg string }

func (e *simpleError) Error() string { return e.msg }
func errForMsg(msg string) error     { return &simpleError{msg: msg} }

func TestSchemaInstruction(t *testing.T) {
	if got := schemaInstruction(nil); got != "" {
		t.Errorf("expected no instruction for nil format, got %q", got)
	}
	if got := schemaInstruction(&ResponseFormat{Type: "text"}); got != "" {
		t.Errorf("expected no instruction for text format, got %q", got)
	}

	got := schemaInstruction(&ResponseFormat{
		Type:       "json_schema",
		JSONSchema: map[string]interface{}{"type": "object"},
	})
	if !strings.Contains(got, `{"type":"object"}`) {
		t.Errorf("expected schema in instruction, got %q", got)
	}
}

func TestRoleLabel(t *testing.T) {
	if roleLabel(RoleDeveloper) != "Developer" {
		t.Errorf("unexpected developer label %q", roleLabel(RoleDeveloper))
	}
	if roleLabel(RoleAssistant) != "Assistant" {
		t.Errorf("unexpected assistant label %q", roleLabel(RoleAssistant))
	}
}
