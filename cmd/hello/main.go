// Command hello sends a single prompt to the configured model and prints
// the reply.
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/martinemde/stepagent/internal/cli"
	"github.com/martinemde/stepagent/unifiedllm"
)

func main() {
	prompt := flag.String("prompt", "Hello world", "message to send")
	showReasoning := flag.Bool("reasoning", false, "print the model's reasoning when present")
	flag.Parse()

	cli.Main(func(ctx context.Context, app *cli.App) error {
		res, err := unifiedllm.Generate(ctx, unifiedllm.GenerateOptions{
			Client:      app.Client,
			Provider:    app.Provider(),
			Model:       app.Model(),
			Prompt:      *prompt,
			Temperature: app.Config.LLM.Temperature,
		})
		if err != nil {
			return err
		}
		if *showReasoning && res.Reasoning != "" {
			fmt.Fprintf(app.Stdout, "Reasoning: %s\n\n", res.Reasoning)
		}
		fmt.Fprintln(app.Stdout, res.Text)
		return nil
	})
}
