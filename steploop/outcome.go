package steploop

import (
	"errors"
	"fmt"

	"github.com/martinemde/stepagent/unifiedllm"
)

// ErrLoopRunning is returned when Run is called on a Loop that is already
// running.
var ErrLoopRunning = errors.New("steploop: run already in progress")

// OutcomeKind classifies how a run ended.
type OutcomeKind string

const (
	OutcomeSuccess         OutcomeKind = "success"
	OutcomeProviderFailed  OutcomeKind = "provider_failed"
	OutcomeBudgetExhausted OutcomeKind = "budget_exhausted"
	OutcomeCancelled       OutcomeKind = "cancelled"
)

// Outcome is the terminal result of a run.
type Outcome struct {
	Kind        OutcomeKind
	FinalAnswer string
	// Calls is the number of provider calls made.
	Calls   int
	Entries []Entry
	// LastDispatchError is the most recent tool dispatch failure, if any.
	LastDispatchError *DispatchError
	Usage             unifiedllm.Usage
	maxSteps          int
	retryLimit        int
}

// Message renders a human-readable line describing the outcome.
func (o *Outcome) Message() string {
	switch o.Kind {
	case OutcomeSuccess:
		return o.FinalAnswer
	case OutcomeProviderFailed:
		msg := fmt.Sprintf("too many failures: no valid step in %d consecutive replies", o.retryLimit)
		if o.LastDispatchError != nil {
			msg += "; last tool error: " + o.LastDispatchError.Error()
		}
		return msg
	case OutcomeBudgetExhausted:
		return fmt.Sprintf("max steps reached (%d) without a final answer", o.maxSteps)
	case OutcomeCancelled:
		return fmt.Sprintf("run cancelled after %d calls", o.Calls)
	}
	return string(o.Kind)
}

// DispatchReason classifies a tool dispatch failure.
type DispatchReason string

const (
	DispatchUnknownTool DispatchReason = "unknown_tool"
	DispatchToolError   DispatchReason = "tool_error"
	DispatchToolPanic   DispatchReason = "tool_panic"
	DispatchTimeout     DispatchReason = "tool_timeout"
)

// DispatchError records a TOOL step whose tool could not produce output.
type DispatchError struct {
	Tool   string
	Input  string
	Reason DispatchReason
	Err    error
}

func (e *DispatchError) Error() string {
	switch e.Reason {
	case DispatchUnknownTool:
		return fmt.Sprintf("unknown tool: %s", e.Tool)
	case DispatchTimeout:
		return fmt.Sprintf("tool %s timed out", e.Tool)
	}
	if e.Err != nil {
		return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("tool %s failed", e.Tool)
}

func (e *DispatchError) Unwrap() error { return e.Err }
