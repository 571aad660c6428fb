package steploop

import (
	"errors"
	"fmt"
	"time"

	"github.com/martinemde/stepagent/unifiedllm"
)

// DefaultCorrectionMessage is sent after a reply that yields no step.
const DefaultCorrectionMessage = "You FAILED. Output ONE valid JSON step only."

// Config holds the parameters of a Loop.
type Config struct {
	// MaxSteps bounds the number of provider calls in one run.
	MaxSteps int
	// RetryLimit is the number of consecutive replies with no step
	// tolerated before the run ends as provider_failed.
	RetryLimit int
	// SystemInstruction is the first transcript entry.
	SystemInstruction string
	// ObservationRole is the message role of OBSERVE entries.
	ObservationRole unifiedllm.Role
	// CorrectionMessage is appended after each reply with no step.
	CorrectionMessage string
	// ToolTimeout bounds a single tool invocation; zero disables it.
	ToolTimeout time.Duration
	// ToolOutputLimits and ToolLineLimits truncate the output of the
	// named tools. Tools not listed are recorded verbatim.
	ToolOutputLimits map[string]int
	ToolLineLimits   map[string]int
	// EnableLoopDetection appends a steering entry when the recent TOOL
	// steps repeat within LoopDetectionWindow.
	EnableLoopDetection bool
	LoopDetectionWindow int
}

// DefaultConfig returns a Config with the standard limits.
func DefaultConfig() Config {
	return Config{
		MaxSteps:            30,
		RetryLimit:          5,
		ObservationRole:     unifiedllm.RoleDeveloper,
		CorrectionMessage:   DefaultCorrectionMessage,
		ToolTimeout:         60 * time.Second,
		LoopDetectionWindow: 6,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	if c.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("max steps must be positive, got %d", c.MaxSteps))
	}
	if c.RetryLimit <= 0 {
		errs = append(errs, fmt.Errorf("retry limit must be positive, got %d", c.RetryLimit))
	}
	if c.ToolTimeout < 0 {
		errs = append(errs, fmt.Errorf("tool timeout must not be negative, got %s", c.ToolTimeout))
	}
	switch c.ObservationRole {
	case "", unifiedllm.RoleDeveloper, unifiedllm.RoleUser, unifiedllm.RoleAssistant,
		unifiedllm.RoleSystem, unifiedllm.RoleTool:
	default:
		errs = append(errs, fmt.Errorf("unknown observation role %q", c.ObservationRole))
	}
	if c.EnableLoopDetection && c.LoopDetectionWindow <= 0 {
		errs = append(errs, fmt.Errorf("loop detection window must be positive, got %d", c.LoopDetectionWindow))
	}
	return errors.Join(errs...)
}

func (c Config) withDefaults() Config {
	if c.ObservationRole == "" {
		c.ObservationRole = unifiedllm.RoleDeveloper
	}
	if c.CorrectionMessage == "" {
		c.CorrectionMessage = DefaultCorrectionMessage
	}
	return c
}
