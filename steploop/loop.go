package steploop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Loop drives the START/PLAN/TOOL/OBSERVE/OUTPUT protocol against a
// CompletionProvider until the model produces an OUTPUT step or a limit is
// reached. A Loop runs one conversation at a time.
type Loop struct {
	id       string
	provider CompletionProvider
	tools    *ToolRegistry
	cfg      Config
	logger   *slog.Logger
	emitter  *EventEmitter
	running  atomic.Bool
}

// Option configures a Loop.
type Option func(*loopOptions)

type loopOptions struct {
	logger      *slog.Logger
	eventBuffer int
}

// WithLogger sets the logger used for loop diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *loopOptions) { o.logger = l }
}

// WithEventBuffer sets the capacity of the event channel. Events emitted
// while the channel is full are dropped.
func WithEventBuffer(n int) Option {
	return func(o *loopOptions) { o.eventBuffer = n }
}

// NewLoop creates a Loop. The registry may be empty but not nil.
func NewLoop(provider CompletionProvider, tools *ToolRegistry, cfg Config, opts ...Option) (*Loop, error) {
	if provider == nil {
		return nil, errors.New("steploop: nil provider")
	}
	if tools == nil {
		return nil, errors.New("steploop: nil tool registry")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("steploop: invalid config: %w", err)
	}

	o := loopOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	id := uuid.New().String()
	return &Loop{
		id:       id,
		provider: provider,
		tools:    tools,
		cfg:      cfg.withDefaults(),
		logger:   o.logger.With("loop_id", id),
		emitter:  NewEventEmitter(id, o.eventBuffer),
	}, nil
}

// ID returns the loop's identifier.
func (l *Loop) ID() string { return l.id }

// Events returns the channel of loop events.
func (l *Loop) Events() <-chan Event { return l.emitter.Events() }

// Close closes the event channel.
func (l *Loop) Close() { l.emitter.Close() }

// Run executes one conversation starting from message. It returns an error
// only when the provider reports a transport fault; every other ending is
// described by the Outcome.
func (l *Loop) Run(ctx context.Context, message string) (*Outcome, error) {
	if !l.running.CompareAndSwap(false, true) {
		return nil, ErrLoopRunning
	}
	defer l.running.Store(false)

	t := NewTranscript(l.cfg.SystemInstruction, message)
	l.emitter.Emit(EventRunStart, map[string]interface{}{"message": message})

	out, err := l.run(ctx, t)
	if err != nil {
		l.logger.Error("run failed", "error", err)
		l.emitter.Emit(EventRunEnd, map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	out.Entries = t.Entries()
	out.maxSteps = l.cfg.MaxSteps
	out.retryLimit = l.cfg.RetryLimit
	l.logger.Info("run finished", "outcome", out.Kind, "calls", out.Calls, "total_tokens", out.Usage.TotalTokens)
	l.emitter.Emit(EventRunEnd, map[string]interface{}{"outcome": string(out.Kind), "calls": out.Calls})
	return out, nil
}

func (l *Loop) run(ctx context.Context, t *Transcript) (*Outcome, error) {
	out := &Outcome{}
	failures := 0

	for {
		if ctx.Err() != nil {
			out.Kind = OutcomeCancelled
			return out, nil
		}
		if out.Calls >= l.cfg.MaxSteps {
			l.logger.Warn("max steps reached", "max_steps", l.cfg.MaxSteps)
			out.Kind = OutcomeBudgetExhausted
			return out, nil
		}

		out.Calls++
		comp, err := l.provider.Complete(ctx, t.Messages(l.cfg.ObservationRole))
		if err != nil {
			if ctx.Err() != nil {
				out.Kind = OutcomeCancelled
				return out, nil
			}
			return nil, fmt.Errorf("completion provider: %w", err)
		}
		out.Usage = out.Usage.Add(comp.Usage)

		if len(comp.Steps) == 0 {
			failures++
			l.logger.Warn("reply held no valid step", "failures", failures, "retry_limit", l.cfg.RetryLimit)
			l.emitter.Emit(EventParseFailure, map[string]interface{}{"failures": failures, "raw": comp.Raw})
			if failures >= l.cfg.RetryLimit {
				out.Kind = OutcomeProviderFailed
				return out, nil
			}
			t.AppendCorrection(l.cfg.CorrectionMessage)
			continue
		}
		failures = 0

		for _, step := range comp.Steps {
			if !step.Kind.Valid() {
				l.logger.Warn("skipping invalid step", "step", step.Encode())
				l.emitter.Emit(EventInvalidStep, map[string]interface{}{"step": step.Encode()})
				continue
			}
			t.AppendStep(step)

			switch step.Kind {
			case StepStart:
				l.emitter.Emit(EventStart, map[string]interface{}{"content": step.Content})
			case StepPlan:
				l.emitter.Emit(EventPlan, map[string]interface{}{"content": step.Content})
			case StepObserve:
				l.emitter.Emit(EventObserve, map[string]interface{}{"tool": step.Tool, "output": step.Output})
			case StepTool:
				if !step.Actionable() {
					l.logger.Warn("tool step missing tool or input", "step", step.Encode())
					l.emitter.Emit(EventMalformedToolStep, map[string]interface{}{"step": step.Encode()})
					continue
				}
				obs, dispatchErr := l.dispatch(ctx, step)
				t.AppendObservation(obs)
				if dispatchErr != nil {
					out.LastDispatchError = dispatchErr
				}
				if l.cfg.EnableLoopDetection && DetectLoop(t.entries, l.cfg.LoopDetectionWindow) {
					warning := fmt.Sprintf(loopWarning, l.cfg.LoopDetectionWindow)
					t.AppendSteering(warning)
					l.emitter.Emit(EventLoopDetection, map[string]interface{}{"message": warning})
				}
			case StepOutput:
				l.emitter.Emit(EventOutput, map[string]interface{}{"content": step.Content})
				out.Kind = OutcomeSuccess
				out.FinalAnswer = step.Content
				return out, nil
			}
		}
	}
}

// dispatch runs the tool named by an actionable TOOL step and returns the
// OBSERVE step recording its result. Tool failures are returned as a
// DispatchError and recorded in the observation's error field.
func (l *Loop) dispatch(ctx context.Context, step Step) (Step, *DispatchError) {
	l.emitter.Emit(EventToolCallStart, map[string]interface{}{"tool": step.Tool, "input": step.Input})
	start := time.Now()

	output, derr := l.invoke(ctx, step)
	obs := Step{Kind: StepObserve, Tool: step.Tool, Input: step.Input, hasTool: true, hasInput: true}
	if derr != nil {
		obs.Error = derr.Error()
		l.logger.Warn("tool dispatch failed", "tool", step.Tool, "reason", derr.Reason, "error", derr)
	} else {
		obs.Output = truncateToolOutput(output, step.Tool, l.cfg.ToolOutputLimits, l.cfg.ToolLineLimits)
	}

	data := map[string]interface{}{
		"tool":        step.Tool,
		"output":      output,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if derr != nil {
		data["error"] = derr.Error()
		data["reason"] = string(derr.Reason)
	}
	l.emitter.Emit(EventToolCallEnd, data)
	return obs, derr
}

type toolResult struct {
	output string
	err    error
	panic  interface{}
}

func (l *Loop) invoke(ctx context.Context, step Step) (string, *DispatchError) {
	tool := l.tools.Get(step.Tool)
	if tool == nil || tool.Run == nil {
		return "", &DispatchError{Tool: step.Tool, Input: step.Input, Reason: DispatchUnknownTool}
	}

	runCtx := ctx
	if l.cfg.ToolTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, l.cfg.ToolTimeout)
		defer cancel()
	}

	done := make(chan toolResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- toolResult{panic: r}
			}
		}()
		output, err := tool.Run(runCtx, step.Input)
		done <- toolResult{output: output, err: err}
	}()

	select {
	case res := <-done:
		switch {
		case res.panic != nil:
			return "", &DispatchError{Tool: step.Tool, Input: step.Input, Reason: DispatchToolPanic,
				Err: fmt.Errorf("panic: %v", res.panic)}
		case res.err != nil && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded):
			return "", &DispatchError{Tool: step.Tool, Input: step.Input, Reason: DispatchTimeout, Err: res.err}
		case res.err != nil:
			return "", &DispatchError{Tool: step.Tool, Input: step.Input, Reason: DispatchToolError, Err: res.err}
		}
		return res.output, nil
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return "", &DispatchError{Tool: step.Tool, Input: step.Input, Reason: DispatchToolError, Err: ctx.Err()}
		}
		return "", &DispatchError{Tool: step.Tool, Input: step.Input, Reason: DispatchTimeout, Err: runCtx.Err()}
	}
}
