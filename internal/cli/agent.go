package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/martinemde/stepagent/steploop"
)

// PrintEvents writes progress markers for loop events until events is
// closed. Markers follow the step kinds: 🔥 START, 🧠 PLAN, 🛠️ TOOL and
// 🤖 OUTPUT.
func PrintEvents(w io.Writer, events <-chan steploop.Event) {
	for ev := range events {
		line := FormatEvent(ev)
		if line != "" {
			fmt.Fprintln(w, line)
		}
	}
}

// FormatEvent renders one event, or "" for events without a marker.
func FormatEvent(ev steploop.Event) string {
	str := func(key string) string {
		s, _ := ev.Data[key].(string)
		return s
	}
	switch ev.Kind {
	case steploop.EventStart:
		return "🔥 " + str("content")
	case steploop.EventPlan:
		return "🧠 " + str("content")
	case steploop.EventToolCallStart:
		return fmt.Sprintf("🛠️: %s %s", str("tool"), str("input"))
	case steploop.EventToolCallEnd:
		if e := str("error"); e != "" {
			return "⚠️ " + e
		}
	case steploop.EventOutput:
		return "🤖 " + str("content")
	case steploop.EventParseFailure:
		return "⚠️ Model returned no JSON, retrying..."
	case steploop.EventInvalidStep:
		return "⚠️ Skipping invalid step: " + str("step")
	case steploop.EventLoopDetection:
		return "⚠️ " + str("message")
	}
	return ""
}

// RunAgent runs loop on message while printing its events to w. It
// returns an ExitErr for any result other than success.
func RunAgent(ctx context.Context, loop *steploop.Loop, message string, w io.Writer) (*steploop.Outcome, error) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		PrintEvents(w, loop.Events())
	}()

	out, err := loop.Run(ctx, message)
	loop.Close()
	wg.Wait()

	code := ExitCode(out, err)
	switch {
	case err != nil:
		return out, &ExitErr{Code: code, Err: err}
	case code != ExitOK:
		fmt.Fprintln(w, "❌", out.Message())
		return out, &ExitErr{Code: code}
	}
	return out, nil
}

// NewAgentLoop builds a loop from the app's configuration with the given
// tools and instruction options. Mode overrides the configured mode when
// non-empty.
func (a *App) NewAgentLoop(tools *steploop.ToolRegistry, mode steploop.Mode, opts steploop.InstructionOptions) (*steploop.Loop, error) {
	if mode == "" {
		mode = a.Config.Mode()
	}
	provider, err := steploop.NewLLMProvider(a.Client, steploop.ProviderOptions{
		Provider:    a.Provider(),
		Model:       a.Model(),
		Mode:        mode,
		Temperature: a.Config.LLM.Temperature,
		Logger:      a.Logger,
	})
	if err != nil {
		return nil, err
	}

	cfg := a.Config.StepLoop()
	cfg.SystemInstruction = steploop.BuildSystemInstruction(tools, opts)
	return steploop.NewLoop(provider, tools, cfg, steploop.WithLogger(a.Logger))
}
