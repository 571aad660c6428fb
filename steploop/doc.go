// Package steploop implements an agent loop in which the model reasons in
// discrete JSON steps.
//
// Each model reply carries one or more steps tagged START, PLAN, TOOL,
// OBSERVE or OUTPUT. The loop appends every valid step to the run's
// Transcript, executes the tool named by each TOOL step from a ToolRegistry,
// records the result as an OBSERVE entry, and stops at the first OUTPUT
// step. Replies with no parseable step receive a correction message and are
// retried up to Config.RetryLimit times in a row; the total number of
// provider calls is bounded by Config.MaxSteps.
//
// Steps are obtained through a CompletionProvider. NewLLMProvider adapts a
// unifiedllm.Client in one of two modes: ModeStrict asks for
// schema-constrained output and decodes the whole reply as a single step,
// while ModePermissive strips <think> blocks and extracts every balanced
// JSON object from free text.
//
// Basic usage:
//
//	tools := steploop.NewToolRegistry(weatherTool)
//	provider, _ := steploop.NewLLMProvider(client, steploop.ProviderOptions{Mode: steploop.ModePermissive})
//	cfg := steploop.DefaultConfig()
//	cfg.SystemInstruction = steploop.BuildSystemInstruction(tools, steploop.InstructionOptions{})
//	loop, _ := steploop.NewLoop(provider, tools, cfg)
//	outcome, err := loop.Run(ctx, "What is the weather in Paris?")
package steploop
