package unifiedllm

import (
	"regexp"
	"strings"
)

var thinkBlock = regexp.MustCompile(`(?s)<think>(.*?)</think>`)

// SplitThinking separates <think>...</think> blocks from the visible text.
// An unterminated <think> tag swallows the rest of the text as reasoning.
func SplitThinking(text string) (visible, reasoning string) {
	var thoughts []string
	for _, m := range thinkBlock.FindAllStringSubmatch(text, -1) {
		thoughts = append(thoughts, strings.TrimSpace(m[1]))
	}
	visible = thinkBlock.ReplaceAllString(text, "")

	if idx := strings.Index(visible, "<think>"); idx != -1 {
		thoughts = append(thoughts, strings.TrimSpace(visible[idx+len("<think>"):]))
		visible = visible[:idx]
	}

	return strings.TrimSpace(visible), strings.Join(thoughts, "\n")
}

// StripThinking returns text with all reasoning blocks removed.
func StripThinking(text string) string {
	visible, _ := SplitThinking(text)
	return visible
}
