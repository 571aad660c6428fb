package steploop

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StepKind tags a step with its role in the agent's reasoning.
type StepKind string

const (
	StepStart   StepKind = "START"
	StepPlan    StepKind = "PLAN"
	StepTool    StepKind = "TOOL"
	StepObserve StepKind = "OBSERVE"
	StepOutput  StepKind = "OUTPUT"
)

// Valid reports whether k is one of the five recognized kinds.
func (k StepKind) Valid() bool {
	switch k {
	case StepStart, StepPlan, StepTool, StepObserve, StepOutput:
		return true
	}
	return false
}

// Step is one structured unit exchanged with the model.
type Step struct {
	Kind    StepKind `json:"step"`
	Content string   `json:"content,omitempty"`
	Tool    string   `json:"tool,omitempty"`
	Input   string   `json:"input,omitempty"`
	Output  string   `json:"output,omitempty"`
	Error   string   `json:"error,omitempty"`

	// Presence of tool and input as strings. Steps built in code set these
	// through NewToolStep; decoded steps get them from the wire.
	hasTool  bool
	hasInput bool
}

// NewToolStep builds an actionable TOOL step.
func NewToolStep(tool, input string) Step {
	return Step{Kind: StepTool, Tool: tool, Input: input, hasTool: true, hasInput: true}
}

// Actionable reports whether a TOOL step carries both a tool name and an
// input, each as a JSON string.
func (s Step) Actionable() bool {
	return s.Kind == StepTool && s.hasTool && s.hasInput && s.Tool != ""
}

// UnmarshalJSON decodes a step tolerantly. Fields of the wrong type do not
// fail the decode: a non-string step leaves Kind empty (and so invalid), and
// a non-string tool or input leaves the step non-actionable.
func (s *Step) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("step must be a JSON object")
	}

	*s = Step{}
	var kind string
	kind, _ = stringField(fields, "step")
	s.Kind = StepKind(kind)
	s.Content = looseField(fields, "content")
	s.Output = looseField(fields, "output")
	s.Error = looseField(fields, "error")
	s.Tool, s.hasTool = stringField(fields, "tool")
	s.Input, s.hasInput = stringField(fields, "input")
	return nil
}

// stringField returns the named field when it is a JSON string.
func stringField(fields map[string]json.RawMessage, name string) (string, bool) {
	raw, ok := fields[name]
	if !ok {
		return "", false
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return v, true
}

// looseField returns a narration field, keeping non-string values as their
// raw JSON text rather than dropping them.
func looseField(fields map[string]json.RawMessage, name string) string {
	if v, ok := stringField(fields, name); ok {
		return v
	}
	raw, ok := fields[name]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return ""
	}
	return string(raw)
}

// Encode returns the canonical JSON text of the step.
func (s Step) Encode() string {
	b, err := json.Marshal(s)
	if err != nil {
		// Only string fields; Marshal cannot fail.
		return fmt.Sprintf(`{"step":%q}`, string(s.Kind))
	}
	return string(b)
}

// stepSchema is the shape the model is asked to produce in strict mode.
type stepSchema struct {
	Step    string `json:"step" jsonschema:"enum=START,enum=PLAN,enum=TOOL,enum=OBSERVE,enum=OUTPUT,description=The kind of this step"`
	Content string `json:"content,omitempty" jsonschema:"description=Narration for START PLAN and OUTPUT steps"`
	Tool    string `json:"tool,omitempty" jsonschema:"description=Name of the tool to call on a TOOL step"`
	Input   string `json:"input,omitempty" jsonschema:"description=The single string argument for the tool"`
	Output  string `json:"output,omitempty" jsonschema:"description=The tool result carried by an OBSERVE step"`
}
