package steploop

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateOutput(t *testing.T) {
	assert.Equal(t, "short", TruncateOutput("short", 10, TruncateHeadTail))
	assert.Equal(t, "anything", TruncateOutput("anything", 0, TruncateHeadTail))

	out := TruncateOutput("abcdefghij", 4, TruncateHeadTail)
	assert.True(t, strings.HasPrefix(out, "ab"))
	assert.True(t, strings.HasSuffix(out, "ij"))
	assert.Contains(t, out, "6 characters were removed from the middle")

	out = TruncateOutput("abcdefghij", 3, TruncateTail)
	assert.True(t, strings.HasSuffix(out, "hij"))
	assert.Contains(t, out, "First 7 characters were removed")
}

func TestTruncateLines(t *testing.T) {
	in := "1\n2\n3\n4\n5\n6"
	assert.Equal(t, in, TruncateLines(in, 6))
	assert.Equal(t, "1\n2\n[... 2 lines omitted ...]\n5\n6", TruncateLines(in, 4))
}

func TestTruncateToolOutputOnlyConfigured(t *testing.T) {
	long := strings.Repeat("x", 100)
	assert.Equal(t, long, truncateToolOutput(long, "get_weather", nil, nil))
	assert.NotEqual(t, long, truncateToolOutput(long, "run_command", map[string]int{"run_command": 10}, nil))
}

func TestDetectLoop(t *testing.T) {
	entries := func(inputs ...string) []Entry {
		var es []Entry
		for _, in := range inputs {
			s := NewToolStep("run_command", in)
			es = append(es, Entry{Kind: EntryStep, Step: &s})
			obs := Step{Kind: StepObserve, Output: "ok"}
			es = append(es, Entry{Kind: EntryObservation, Step: &obs})
		}
		return es
	}

	assert.True(t, DetectLoop(entries("ls", "ls", "ls", "ls"), 4))
	assert.True(t, DetectLoop(entries("ls", "pwd", "ls", "pwd"), 4))
	assert.True(t, DetectLoop(entries("a", "b", "c", "a", "b", "c"), 6))
	assert.False(t, DetectLoop(entries("ls", "pwd", "cat x", "ls"), 4))
	assert.False(t, DetectLoop(entries("ls", "ls"), 4))
	assert.False(t, DetectLoop(entries("ls", "ls"), 0))
}
