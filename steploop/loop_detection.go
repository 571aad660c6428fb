package steploop

import (
	"crypto/sha256"
	"fmt"
)

// toolStepSignature computes a deterministic signature for a TOOL step
// (name + hash of input).
func toolStepSignature(tool, input string) string {
	h := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%s:%x", tool, h[:8])
}

// extractToolSignatures returns signatures of the most recent actionable
// TOOL steps in chronological order.
func extractToolSignatures(entries []Entry, count int) []string {
	var sigs []string
	for i := len(entries) - 1; i >= 0 && len(sigs) < count; i-- {
		e := entries[i]
		if e.Kind == EntryStep && e.Step != nil && e.Step.Actionable() {
			sigs = append(sigs, toolStepSignature(e.Step.Tool, e.Step.Input))
		}
	}
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	return sigs
}

// DetectLoop checks if the last windowSize tool steps follow a repeating
// pattern of length 1, 2, or 3.
func DetectLoop(entries []Entry, windowSize int) bool {
	if windowSize <= 0 {
		return false
	}
	sigs := extractToolSignatures(entries, windowSize)
	if len(sigs) < windowSize {
		return false
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 {
			continue
		}
		pattern := sigs[:patternLen]
		allMatch := true
		for i := patternLen; i < windowSize && allMatch; i += patternLen {
			for j := 0; j < patternLen; j++ {
				if sigs[i+j] != pattern[j] {
					allMatch = false
					break
				}
			}
		}
		if allMatch {
			return true
		}
	}
	return false
}

const loopWarning = "Loop detected: the last %d tool calls repeat the same pattern. " +
	"Try a different approach or produce the OUTPUT step."
