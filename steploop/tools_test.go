package steploop

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name, desc string) Tool {
	return Tool{Name: name, Description: desc, Run: func(ctx context.Context, input string) (string, error) {
		return input, nil
	}}
}

func TestToolRegistry(t *testing.T) {
	r := NewToolRegistry(echoTool("run_command", "Runs a shell command."))
	r.Register(echoTool("get_weather", "Returns the weather."))

	assert.Equal(t, 2, r.Count())
	assert.Equal(t, []string{"get_weather", "run_command"}, r.Names())
	require.NotNil(t, r.Get("get_weather"))
	assert.Nil(t, r.Get("missing"))

	r.Register(echoTool("get_weather", "Replaced."))
	assert.Equal(t, "Replaced.", r.Get("get_weather").Description)

	r.Unregister("run_command")
	assert.Equal(t, []string{"get_weather"}, r.Names())
}

func TestToolRegistryMergeFrom(t *testing.T) {
	a := NewToolRegistry(echoTool("a", "first"))
	b := NewToolRegistry(echoTool("a", "second"), echoTool("b", "other"))
	a.MergeFrom(b)
	assert.Equal(t, []string{"a", "b"}, a.Names())
	assert.Equal(t, "second", a.Get("a").Description)
}

func TestToolRegistryCatalogue(t *testing.T) {
	r := NewToolRegistry(echoTool("run_command", "Runs a command."), echoTool("get_weather", "Weather for a city."))
	assert.Equal(t, "- get_weather: Weather for a city.\n- run_command: Runs a command.", r.Catalogue())
}

func TestBuildSystemInstruction(t *testing.T) {
	r := NewToolRegistry(echoTool("get_weather", "Takes a city name and returns its weather."))
	got := BuildSystemInstruction(r, InstructionOptions{})

	assert.True(t, strings.HasPrefix(got, defaultPersona))
	assert.Contains(t, got, "Output EXACTLY ONE JSON object per response")
	assert.Contains(t, got, "Available Tools:\n- get_weather: Takes a city name and returns its weather.")
	assert.Contains(t, got, "Example 1:\n\nSTART: Hey, Can you solve 2 + 3 * 5 / 10")
	assert.Contains(t, got, `OUTPUT: {"step":"OUTPUT","content":"3.5"}`)
}

func TestBuildSystemInstructionOptions(t *testing.T) {
	ex := Example{Query: "weather in delhi?", Steps: []Step{
		NewToolStep("get_weather", "delhi"),
		{Kind: StepOutput, Content: "20C"},
	}}
	got := BuildSystemInstruction(NewToolRegistry(), InstructionOptions{
		Persona:  "You are a weather bot.",
		Examples: []Example{ex},
		Extra:    "<env>linux</env>",
	})

	assert.True(t, strings.HasPrefix(got, "You are a weather bot.\n"))
	assert.Contains(t, got, "Available Tools:\n(none)")
	assert.Contains(t, got, `PLAN: {"step":"TOOL","tool":"get_weather","input":"delhi"}`)
	assert.NotContains(t, got, "BODMAS")
	assert.True(t, strings.HasSuffix(got, "<env>linux</env>\n"))

	none := BuildSystemInstruction(nil, InstructionOptions{Examples: []Example{}})
	assert.NotContains(t, none, "Example 1")
}
