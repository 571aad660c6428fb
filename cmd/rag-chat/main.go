// Command rag-chat answers a question from the ingested documents.
package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/martinemde/stepagent/internal/cli"
	"github.com/martinemde/stepagent/retrieval"
)

func main() {
	showSources := flag.Bool("sources", false, "print the retrieved chunks before the answer")
	flag.Parse()

	cli.Main(func(ctx context.Context, app *cli.App) error {
		query, err := cli.ReadPrompt(app.Stdin, app.Stdout, strings.Join(flag.Args(), " "))
		if err != nil {
			return err
		}

		embedder, err := cli.NewEmbedder(app.Config)
		if err != nil {
			return err
		}
		store, err := retrieval.OpenStore(ctx, app.Config.DBPath("documents"), embedder, retrieval.WithStoreLogger(app.Logger))
		if err != nil {
			return err
		}
		defer store.Close()

		if *showSources {
			results, err := store.SimilaritySearch(ctx, app.Config.Retrieval.Collection, query, app.Config.Retrieval.K)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Stdout, "%s\n\n", retrieval.FormatContext(results))
		}

		answerer := &retrieval.Answerer{
			Store:      store,
			Collection: app.Config.Retrieval.Collection,
			K:          app.Config.Retrieval.K,
			Client:     app.Client,
			Provider:   app.Provider(),
			Model:      app.Model(),
		}
		answer, err := answerer.Answer(ctx, query)
		if err != nil {
			return err
		}
		fmt.Fprintln(app.Stdout, answer)
		return nil
	})
}
