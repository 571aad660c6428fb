package graph

import (
	"context"
	"fmt"

	"github.com/martinemde/stepagent/unifiedllm"
)

// SampleMessage is appended by the sample node of the two-node chat flow.
const SampleMessage = "Sample message from sample node"

// NewChatFlow builds Start -> chatbot -> sample_node -> End.
func NewChatFlow(chat NodeFunc[MessagesState], opts ...CompileOption) (*Graph[MessagesState], error) {
	return NewBuilder[MessagesState]().
		AddNode("chatbot", chat).
		AddNode("sample_node", func(ctx context.Context, s MessagesState) (MessagesState, error) {
			return s.Append(unifiedllm.AssistantMessage(SampleMessage)), nil
		}).
		AddEdge(Start, "chatbot").
		AddEdge("chatbot", "sample_node").
		AddEdge("sample_node", End).
		Compile(opts...)
}

// NewThreadChatFlow builds Start -> chatbot -> End. Compiled with a
// checkpointer, each run on a thread continues its conversation.
func NewThreadChatFlow(chat NodeFunc[MessagesState], opts ...CompileOption) (*Graph[MessagesState], error) {
	return NewBuilder[MessagesState]().
		AddNode("chatbot", chat).
		AddEdge(Start, "chatbot").
		AddEdge("chatbot", End).
		Compile(opts...)
}

// EvalState is the state of the answer-and-evaluate flow.
type EvalState struct {
	UserQuery   string `json:"user_query"`
	LLMResponse string `json:"llm_response,omitempty"`
	IsGood      *bool  `json:"is_good,omitempty"`
	Attempts    int    `json:"attempts"`
}

// Judge decides whether an answer is good enough.
type Judge func(ctx context.Context, query, answer string) (bool, error)

// NewEvalFlow builds Start -> chatbot, then routes back to chatbot until
// judge accepts the answer and ends at end_node. A nil judge accepts every
// answer.
func NewEvalFlow(answer func(ctx context.Context, query string) (string, error), judge Judge, opts ...CompileOption) (*Graph[EvalState], error) {
	return NewBuilder[EvalState]().
		AddNode("chatbot", func(ctx context.Context, s EvalState) (EvalState, error) {
			text, err := answer(ctx, s.UserQuery)
			if err != nil {
				return s, err
			}
			s.LLMResponse = text
			s.Attempts++
			return s, nil
		}).
		AddNode("end_node", func(ctx context.Context, s EvalState) (EvalState, error) {
			return s, nil
		}).
		AddEdge(Start, "chatbot").
		AddConditionalEdges("chatbot", func(ctx context.Context, s EvalState) (string, error) {
			good := true
			if judge != nil {
				var err error
				if good, err = judge(ctx, s.UserQuery, s.LLMResponse); err != nil {
					return "", err
				}
			}
			if good {
				return "end_node", nil
			}
			return "chatbot", nil
		}).
		AddEdge("end_node", End).
		Compile(opts...)
}

// AnswerFunc returns an answer function for NewEvalFlow backed by a model.
func AnswerFunc(client *unifiedllm.Client, provider, model string) func(context.Context, string) (string, error) {
	return func(ctx context.Context, query string) (string, error) {
		res, err := unifiedllm.Generate(ctx, unifiedllm.GenerateOptions{
			Client: client, Provider: provider, Model: model, Prompt: query,
		})
		if err != nil {
			return "", err
		}
		return res.Text, nil
	}
}

type verdict struct {
	IsGood bool   `json:"is_good" jsonschema:"description=Whether the answer is correct and complete"`
	Reason string `json:"reason"`
}

// LLMJudge returns a Judge that asks a second model to grade answers.
func LLMJudge(client *unifiedllm.Client, provider, model string) Judge {
	return func(ctx context.Context, query, answer string) (bool, error) {
		v, _, err := unifiedllm.GenerateObject[verdict](ctx, unifiedllm.GenerateOptions{
			Client:   client,
			Provider: provider,
			Model:    model,
			System:   "You grade answers. Reply with is_good true only when the answer is correct and complete.",
			Prompt:   fmt.Sprintf("Question: %s\n\nAnswer: %s", query, answer),
		}, "verdict")
		if err != nil {
			return false, fmt.Errorf("judging answer: %w", err)
		}
		return v.IsGood, nil
	}
}
