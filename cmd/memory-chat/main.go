// Command memory-chat answers with what it remembers about the user and
// remembers new facts from each exchange.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strings"

	"github.com/martinemde/stepagent/internal/cli"
	"github.com/martinemde/stepagent/memory"
	"github.com/martinemde/stepagent/unifiedllm"
)

func main() {
	user := flag.String("user", "", "user id (default from config)")
	flag.Parse()

	cli.Main(func(ctx context.Context, app *cli.App) error {
		userID := *user
		if userID == "" {
			userID = app.Config.Memory.UserID
		}
		query, err := cli.ReadPrompt(app.Stdin, app.Stdout, strings.Join(flag.Args(), " "))
		if err != nil {
			return err
		}

		embedder, err := cli.NewEmbedder(app.Config)
		if err != nil {
			return err
		}
		extractor := &memory.LLMExtractor{Client: app.Client, Provider: app.Provider(), Model: app.Model()}
		store, err := memory.Open(ctx, app.Config.DBPath("memory"), embedder,
			memory.WithExtractor(extractor), memory.WithLogger(app.Logger))
		if err != nil {
			return err
		}
		defer store.Close()

		found, err := store.Search(ctx, userID, query, app.Config.Memory.Limit)
		if err != nil {
			return err
		}
		memories := memory.FormatMemories(found)
		fmt.Fprintln(app.Stdout, "Found memories:", memories)

		encoded, err := json.Marshal(memories)
		if err != nil {
			return err
		}
		res, err := unifiedllm.Generate(ctx, unifiedllm.GenerateOptions{
			Client:   app.Client,
			Provider: app.Provider(),
			Model:    app.Model(),
			System:   "Here is the context about the user:\n" + string(encoded),
			Prompt:   query,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(app.Stdout, "AI:", res.Text)

		if _, err := store.Add(ctx, userID, []unifiedllm.Message{
			unifiedllm.UserMessage(query),
			unifiedllm.AssistantMessage(res.Text),
		}); err != nil {
			return err
		}
		fmt.Fprintln(app.Stdout, "Memory has been saved..")
		return nil
	})
}
