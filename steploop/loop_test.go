package steploop

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/stepagent/unifiedllm"
)

// scriptedProvider replays raw replies in order, parsing them permissively.
// Once the script runs out it repeats the last reply.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []string
	calls   int
	seen    [][]unifiedllm.Message
	err     error
}

func (p *scriptedProvider) Complete(ctx context.Context, msgs []unifiedllm.Message) (Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, msgs)
	if p.err != nil {
		return Completion{}, p.err
	}
	i := p.calls
	if i >= len(p.replies) {
		i = len(p.replies) - 1
	}
	p.calls++
	raw := p.replies[i]
	return Completion{
		Steps: ParseSteps(ModePermissive, raw),
		Raw:   raw,
		Usage: unifiedllm.Usage{InputTokens: 1, OutputTokens: 1, TotalTokens: 2},
	}, nil
}

func newTestLoop(t *testing.T, p CompletionProvider, tools *ToolRegistry, mutate ...func(*Config)) *Loop {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SystemInstruction = "sys"
	for _, m := range mutate {
		m(&cfg)
	}
	if tools == nil {
		tools = NewToolRegistry()
	}
	loop, err := NewLoop(p, tools, cfg, WithEventBuffer(1024))
	require.NoError(t, err)
	t.Cleanup(loop.Close)
	return loop
}

func weatherTool(output string) Tool {
	return Tool{
		Name:        "get_weather",
		Description: "Returns the weather for a city.",
		Run: func(ctx context.Context, input string) (string, error) {
			return output, nil
		},
	}
}

func stepKinds(entries []Entry) []string {
	var kinds []string
	for _, e := range entries {
		if e.Step != nil {
			kinds = append(kinds, string(e.Kind)+":"+string(e.Step.Kind))
		} else {
			kinds = append(kinds, string(e.Kind))
		}
	}
	return kinds
}

func TestRunImmediateOutput(t *testing.T) {
	p := &scriptedProvider{replies: []string{`{"step":"OUTPUT","content":"3.5"}`}}
	loop := newTestLoop(t, p, nil)

	out, err := loop.Run(context.Background(), "2 + 3 * 5 / 10")
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, out.Kind)
	assert.Equal(t, "3.5", out.FinalAnswer)
	assert.Equal(t, "3.5", out.Message())
	assert.Equal(t, 1, out.Calls)
	assert.Equal(t, 2, out.Usage.TotalTokens)
}

func TestRunToolThenOutput(t *testing.T) {
	p := &scriptedProvider{replies: []string{
		`{"step":"TOOL","tool":"get_weather","input":"delhi"}`,
		`{"step":"OUTPUT","content":"It is 20C in Delhi"}`,
	}}
	loop := newTestLoop(t, p, NewToolRegistry(weatherTool("20C")))

	out, err := loop.Run(context.Background(), "weather in delhi?")
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, out.Kind)

	assert.Equal(t, []string{
		"system", "user", "step:TOOL", "observation:OBSERVE", "step:OUTPUT",
	}, stepKinds(out.Entries))
	obs := out.Entries[3].Step
	assert.Equal(t, "20C", obs.Output)
	assert.Equal(t, "get_weather", obs.Tool)
	assert.Equal(t, "delhi", obs.Input)
	assert.Empty(t, obs.Error)
	assert.Equal(t, `{"step":"OBSERVE","tool":"get_weather","input":"delhi","output":"20C"}`, out.Entries[3].Text)

	// The second call sees the observation under the developer role.
	second := p.seen[1]
	require.Len(t, second, 4)
	assert.Equal(t, unifiedllm.RoleAssistant, second[2].Role)
	assert.Equal(t, unifiedllm.RoleDeveloper, second[3].Role)
}

func TestRunProviderFailedAfterRetryLimit(t *testing.T) {
	p := &scriptedProvider{replies: []string{"I think the answer is probably 4."}}
	loop := newTestLoop(t, p, nil, func(c *Config) { c.RetryLimit = 3 })

	out, err := loop.Run(context.Background(), "hi")
	require.NoError(t, err)

	assert.Equal(t, OutcomeProviderFailed, out.Kind)
	assert.Equal(t, 3, out.Calls)
	assert.Equal(t, 3, p.calls)
	assert.Contains(t, out.Message(), "too many failures")

	// Two corrections between three failed calls.
	corrections := 0
	for _, e := range out.Entries {
		if e.Kind == EntryCorrection {
			corrections++
			assert.Equal(t, DefaultCorrectionMessage, e.Text)
		}
	}
	assert.Equal(t, 2, corrections)
}

func TestRunUnknownToolContinues(t *testing.T) {
	p := &scriptedProvider{replies: []string{
		`{"step":"TOOL","tool":"unknown_tool","input":"x"}`,
		`{"step":"OUTPUT","content":"done"}`,
	}}
	loop := newTestLoop(t, p, NewToolRegistry(weatherTool("20C")))

	out, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, out.Kind)

	obs := out.Entries[3]
	require.Equal(t, EntryObservation, obs.Kind)
	assert.Equal(t, "unknown tool: unknown_tool", obs.Step.Error)
	require.NotNil(t, out.LastDispatchError)
	assert.Equal(t, DispatchUnknownTool, out.LastDispatchError.Reason)
}

func TestRunBudgetExhausted(t *testing.T) {
	p := &scriptedProvider{replies: []string{`{"step":"PLAN","content":"thinking"}`}}
	loop := newTestLoop(t, p, nil, func(c *Config) { c.MaxSteps = 4 })

	out, err := loop.Run(context.Background(), "hi")
	require.NoError(t, err)

	assert.Equal(t, OutcomeBudgetExhausted, out.Kind)
	assert.Equal(t, 4, p.calls)
	assert.Equal(t, "max steps reached (4) without a final answer", out.Message())
}

func TestRunOutputStopsBatch(t *testing.T) {
	var called bool
	tools := NewToolRegistry(Tool{Name: "get_weather", Run: func(ctx context.Context, input string) (string, error) {
		called = true
		return "", nil
	}})
	p := &scriptedProvider{replies: []string{
		`{"step":"PLAN","content":"a"} {"step":"OUTPUT","content":"final"} {"step":"TOOL","tool":"get_weather","input":"x"}`,
	}}
	loop := newTestLoop(t, p, tools)

	out, err := loop.Run(context.Background(), "hi")
	require.NoError(t, err)

	assert.Equal(t, "final", out.FinalAnswer)
	assert.False(t, called)
	assert.Equal(t, []string{"system", "user", "step:PLAN", "step:OUTPUT"}, stepKinds(out.Entries))
}

func TestRunDiscardsInvalidKinds(t *testing.T) {
	p := &scriptedProvider{replies: []string{
		`{"step":"THINK","content":"x"}{"content":"no kind"}{"step":"OUTPUT","content":"ok"}`,
	}}
	loop := newTestLoop(t, p, nil)

	out, err := loop.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []string{"system", "user", "step:OUTPUT"}, stepKinds(out.Entries))
}

func TestRunInvalidKindsResetFailures(t *testing.T) {
	p := &scriptedProvider{replies: []string{
		"nothing", "nothing",
		`{"step":"THINK"}`,
		"nothing", "nothing",
		`{"step":"OUTPUT","content":"ok"}`,
	}}
	loop := newTestLoop(t, p, nil, func(c *Config) { c.RetryLimit = 3 })

	out, err := loop.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, out.Kind)
	assert.Equal(t, 6, out.Calls)
}

func TestRunMalformedToolStep(t *testing.T) {
	p := &scriptedProvider{replies: []string{
		`{"step":"TOOL","tool":"get_weather","input":{"city":"delhi"}}`,
		`{"step":"OUTPUT","content":"ok"}`,
	}}
	loop := newTestLoop(t, p, NewToolRegistry(weatherTool("20C")))

	out, err := loop.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []string{"system", "user", "step:TOOL", "step:OUTPUT"}, stepKinds(out.Entries))
	assert.Nil(t, out.LastDispatchError)
}

func TestRunToolErrorsBecomeObservations(t *testing.T) {
	tests := []struct {
		name   string
		run    ToolFunc
		reason DispatchReason
		substr string
	}{
		{
			name: "error",
			run: func(ctx context.Context, input string) (string, error) {
				return "", errors.New("city not found")
			},
			reason: DispatchToolError,
			substr: "city not found",
		},
		{
			name: "panic",
			run: func(ctx context.Context, input string) (string, error) {
				panic("boom")
			},
			reason: DispatchToolPanic,
			substr: "boom",
		},
		{
			name: "timeout",
			run: func(ctx context.Context, input string) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			},
			reason: DispatchTimeout,
			substr: "timed out",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedProvider{replies: []string{
				`{"step":"TOOL","tool":"flaky","input":"x"}`,
				`{"step":"OUTPUT","content":"ok"}`,
			}}
			tools := NewToolRegistry(Tool{Name: "flaky", Run: tt.run})
			loop := newTestLoop(t, p, tools, func(c *Config) { c.ToolTimeout = 20 * time.Millisecond })

			out, err := loop.Run(context.Background(), "hi")
			require.NoError(t, err)
			require.Equal(t, OutcomeSuccess, out.Kind)
			require.NotNil(t, out.LastDispatchError)
			assert.Equal(t, tt.reason, out.LastDispatchError.Reason)
			assert.Contains(t, out.Entries[3].Step.Error, tt.substr)
		})
	}
}

func TestRunDispatchErrorsDoNotCountAsFailures(t *testing.T) {
	p := &scriptedProvider{replies: []string{`{"step":"TOOL","tool":"missing","input":"x"}`}}
	loop := newTestLoop(t, p, nil, func(c *Config) {
		c.RetryLimit = 1
		c.MaxSteps = 5
	})

	out, err := loop.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, OutcomeBudgetExhausted, out.Kind)
	assert.Equal(t, 5, out.Calls)
}

func TestRunTransportFaultIsFatal(t *testing.T) {
	p := &scriptedProvider{err: errors.New("connection refused")}
	loop := newTestLoop(t, p, nil)

	out, err := loop.Run(context.Background(), "hi")
	assert.Nil(t, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := ProviderFunc(func(ctx context.Context, msgs []unifiedllm.Message) (Completion, error) {
		cancel()
		return Completion{Steps: []Step{{Kind: StepPlan, Content: "x"}}}, nil
	})
	loop := newTestLoop(t, p, nil)

	out, err := loop.Run(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, out.Kind)
	assert.Equal(t, 1, out.Calls)
	assert.Equal(t, "run cancelled after 1 calls", out.Message())
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	p := ProviderFunc(func(ctx context.Context, msgs []unifiedllm.Message) (Completion, error) {
		close(entered)
		<-release
		return Completion{Steps: []Step{{Kind: StepOutput, Content: "ok"}}}, nil
	})
	loop := newTestLoop(t, p, nil)

	done := make(chan error, 1)
	go func() {
		_, err := loop.Run(context.Background(), "first")
		done <- err
	}()
	<-entered

	_, err := loop.Run(context.Background(), "second")
	assert.ErrorIs(t, err, ErrLoopRunning)

	close(release)
	require.NoError(t, <-done)
}

func TestRunIsReplayable(t *testing.T) {
	replies := []string{
		`{"step":"START","content":"user wants weather"}`,
		`garbage`,
		`{"step":"PLAN","content":"call tool"}{"step":"TOOL","tool":"get_weather","input":"paris"}`,
		`{"step":"OUTPUT","content":"sunny"}`,
	}
	run := func() *Outcome {
		loop := newTestLoop(t, &scriptedProvider{replies: replies}, NewToolRegistry(weatherTool("sunny +20C")))
		out, err := loop.Run(context.Background(), "weather in paris")
		require.NoError(t, err)
		return out
	}

	first, second := run(), run()
	assert.Equal(t, first.Kind, second.Kind)
	assert.Equal(t, first.Calls, second.Calls)
	assert.Equal(t, first.Entries, second.Entries)
}

func TestRunLoopDetection(t *testing.T) {
	p := &scriptedProvider{replies: []string{
		`{"step":"TOOL","tool":"get_weather","input":"paris"}`,
		`{"step":"TOOL","tool":"get_weather","input":"paris"}`,
		`{"step":"TOOL","tool":"get_weather","input":"paris"}`,
		`{"step":"OUTPUT","content":"ok"}`,
	}}
	loop := newTestLoop(t, p, NewToolRegistry(weatherTool("sunny")), func(c *Config) {
		c.EnableLoopDetection = true
		c.LoopDetectionWindow = 3
	})

	out, err := loop.Run(context.Background(), "hi")
	require.NoError(t, err)

	var steering []Entry
	for _, e := range out.Entries {
		if e.Kind == EntrySteering {
			steering = append(steering, e)
		}
	}
	require.Len(t, steering, 1)
	assert.True(t, strings.HasPrefix(steering[0].Text, "Loop detected"))
}

func TestRunTruncatesConfiguredTools(t *testing.T) {
	p := &scriptedProvider{replies: []string{
		`{"step":"TOOL","tool":"get_weather","input":"paris"}`,
		`{"step":"OUTPUT","content":"ok"}`,
	}}
	long := strings.Repeat("a", 50) + strings.Repeat("z", 50)
	loop := newTestLoop(t, p, NewToolRegistry(weatherTool(long)), func(c *Config) {
		c.ToolOutputLimits = map[string]int{"get_weather": 20}
	})

	out, err := loop.Run(context.Background(), "hi")
	require.NoError(t, err)
	obs := out.Entries[3].Step.Output
	assert.True(t, strings.HasPrefix(obs, strings.Repeat("a", 10)))
	assert.True(t, strings.HasSuffix(obs, strings.Repeat("z", 10)))
	assert.Contains(t, obs, "80 characters were removed")
}

func TestRunEmitsEvents(t *testing.T) {
	p := &scriptedProvider{replies: []string{
		`{"step":"START","content":"s"}{"step":"PLAN","content":"p"}{"step":"TOOL","tool":"get_weather","input":"x"}`,
		`{"step":"OUTPUT","content":"o"}`,
	}}
	loop := newTestLoop(t, p, NewToolRegistry(weatherTool("w")))

	_, err := loop.Run(context.Background(), "hi")
	require.NoError(t, err)
	loop.Close()

	var kinds []EventKind
	for ev := range loop.Events() {
		assert.Equal(t, loop.ID(), ev.LoopID)
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{
		EventRunStart, EventStart, EventPlan, EventToolCallStart, EventToolCallEnd, EventOutput, EventRunEnd,
	}, kinds)
}

func TestNewLoopValidates(t *testing.T) {
	p := &scriptedProvider{replies: []string{"x"}}

	_, err := NewLoop(nil, NewToolRegistry(), DefaultConfig())
	assert.Error(t, err)

	_, err = NewLoop(p, nil, DefaultConfig())
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.MaxSteps = 0
	cfg.ObservationRole = "narrator"
	_, err = NewLoop(p, NewToolRegistry(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max steps")
	assert.Contains(t, err.Error(), "narrator")
}

func TestDistinctLoopsRunConcurrently(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := &scriptedProvider{replies: []string{
				`{"step":"TOOL","tool":"get_weather","input":"x"}`,
				`{"step":"OUTPUT","content":"ok"}`,
			}}
			loop, err := NewLoop(p, NewToolRegistry(weatherTool("w")), DefaultConfig())
			if !assert.NoError(t, err) {
				return
			}
			defer loop.Close()
			out, err := loop.Run(context.Background(), "hi")
			if assert.NoError(t, err) {
				assert.Equal(t, OutcomeSuccess, out.Kind)
			}
		}()
	}
	wg.Wait()
}
