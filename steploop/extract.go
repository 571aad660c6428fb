package steploop

import (
	"encoding/json"
	"strings"

	"github.com/martinemde/stepagent/unifiedllm"
)

// ExtractJSONObjects slices every balanced top-level {...} region out of
// text, in order of appearance. Braces inside JSON string literals do not
// count toward depth. An unterminated trailing object yields nothing.
func ExtractJSONObjects(text string) []string {
	var objects []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				objects = append(objects, text[start:i+1])
				start = -1
			}
		}
	}
	return objects
}

// ParseSteps turns a raw completion into steps according to mode. Strict
// replies must be a single JSON object; permissive replies may surround any
// number of objects with prose and <think> blocks. Candidates that fail to
// decode are dropped.
func ParseSteps(mode Mode, raw string) []Step {
	text := strings.TrimSpace(unifiedllm.StripThinking(raw))
	if mode == ModeStrict {
		var s Step
		if err := json.Unmarshal([]byte(unifiedllm.TrimCodeFence(text)), &s); err != nil {
			return nil
		}
		return []Step{s}
	}

	var steps []Step
	for _, candidate := range ExtractJSONObjects(text) {
		var s Step
		if err := json.Unmarshal([]byte(candidate), &s); err != nil {
			continue
		}
		steps = append(steps, s)
	}
	return steps
}
