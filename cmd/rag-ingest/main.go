// Command rag-ingest splits text files into chunks, embeds them and stores
// them in the document collection. Convert PDFs first with pdftotext,
// which keeps page breaks as form feeds.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/martinemde/stepagent/internal/cli"
	"github.com/martinemde/stepagent/retrieval"
)

func main() {
	collection := flag.String("collection", "", "collection name (default from config)")
	reset := flag.Bool("reset", false, "delete the collection before ingesting")
	flag.Parse()

	cli.Main(func(ctx context.Context, app *cli.App) error {
		if flag.NArg() == 0 {
			return errors.New("usage: rag-ingest [-collection name] [-reset] file.txt...")
		}
		name := *collection
		if name == "" {
			name = app.Config.Retrieval.Collection
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

		if *reset {
			if err := store.DeleteCollection(ctx, name); err != nil {
				return err
			}
		}

		opts := retrieval.ChunkOptions{Size: app.Config.Retrieval.ChunkSize, Overlap: app.Config.Retrieval.ChunkOverlap}
		for _, path := range flag.Args() {
			n, err := retrieval.Ingest(ctx, store, name, path, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Stdout, "Ingested %d chunks from %s\n", n, path)
		}
		fmt.Fprintln(app.Stdout, "Indexing of documents done...")
		return nil
	})
}
