package steploop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObjects(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"single", `{"a":1}`, []string{`{"a":1}`}},
		{"surrounded by prose", `Sure! {"a":1} hope that helps`, []string{`{"a":1}`}},
		{"several", `{"a":1}{"b":2} {"c":3}`, []string{`{"a":1}`, `{"b":2}`, `{"c":3}`}},
		{"nested", `{"a":{"b":{}}}`, []string{`{"a":{"b":{}}}`}},
		{"braces in strings", `{"content":"use } and { freely"}`, []string{`{"content":"use } and { freely"}`}},
		{"escaped quote", `{"content":"say \"}\" now"}`, []string{`{"content":"say \"}\" now"}`}},
		{"unterminated tail", `{"a":1} {"b":`, []string{`{"a":1}`}},
		{"stray closer", `} {"a":1}`, []string{`{"a":1}`}},
		{"none", `no json here`, nil},
		{"empty", ``, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSONObjects(tt.in))
		})
	}
}

func TestParseStepsPermissive(t *testing.T) {
	raw := "<think>\nthe user wants {weather}\n</think>\n" +
		`{"step":"PLAN","content":"look up"} {"step":"TOOL","tool":"get_weather","input":"delhi"} {not json}`
	steps := ParseSteps(ModePermissive, raw)
	require.Len(t, steps, 2)
	assert.Equal(t, StepPlan, steps[0].Kind)
	assert.True(t, steps[1].Actionable())
}

func TestParseStepsStrict(t *testing.T) {
	steps := ParseSteps(ModeStrict, "```json\n{\"step\":\"OUTPUT\",\"content\":\"3.5\"}\n```")
	require.Len(t, steps, 1)
	assert.Equal(t, "3.5", steps[0].Content)

	assert.Empty(t, ParseSteps(ModeStrict, `Here you go: {"step":"OUTPUT"}`))
	assert.Empty(t, ParseSteps(ModeStrict, ""))
}
