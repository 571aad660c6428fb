package graph

import (
	"context"

	"github.com/martinemde/stepagent/unifiedllm"
)

// MessagesState is the state of chat flows: a conversation that nodes
// append to.
type MessagesState struct {
	Messages []unifiedllm.Message `json:"messages"`
}

// Append returns s with msgs added.
func (s MessagesState) Append(msgs ...unifiedllm.Message) MessagesState {
	out := make([]unifiedllm.Message, 0, len(s.Messages)+len(msgs))
	out = append(out, s.Messages...)
	out = append(out, msgs...)
	return MessagesState{Messages: out}
}

// Last returns the newest message, or false when empty.
func (s MessagesState) Last() (unifiedllm.Message, bool) {
	if len(s.Messages) == 0 {
		return unifiedllm.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Merge appends the input conversation to a restored one.
func (s MessagesState) Merge(input MessagesState) MessagesState {
	return s.Append(input.Messages...)
}

// ChatNode returns a node that sends the conversation to a model and
// appends the reply.
func ChatNode(client *unifiedllm.Client, provider, model string) NodeFunc[MessagesState] {
	return func(ctx context.Context, s MessagesState) (MessagesState, error) {
		res, err := unifiedllm.Generate(ctx, unifiedllm.GenerateOptions{
			Client:   client,
			Provider: provider,
			Model:    model,
			Messages: s.Messages,
		})
		if err != nil {
			return s, err
		}
		return s.Append(unifiedllm.AssistantMessage(res.Text)), nil
	}
}
