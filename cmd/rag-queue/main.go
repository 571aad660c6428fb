// Command rag-queue serves document questions over HTTP. Queries are
// queued and answered by a pool of workers; clients poll for results.
package main

import (
	"context"
	"flag"

	"github.com/martinemde/stepagent/internal/cli"
	"github.com/martinemde/stepagent/retrieval"
)

func main() {
	addr := flag.String("addr", "", "listen address (default from config)")
	workers := flag.Int("workers", 0, "number of workers (default from config)")
	flag.Parse()

	cli.Main(func(ctx context.Context, app *cli.App) error {
		qc := app.Config.Queue
		if *addr != "" {
			qc.Addr = *addr
		}
		if *workers > 0 {
			qc.Workers = *workers
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

		queue, err := retrieval.OpenQueue(ctx, app.Config.DBPath("queue"), retrieval.WithQueueLogger(app.Logger))
		if err != nil {
			return err
		}
		defer queue.Close()

		answerer := &retrieval.Answerer{
			Store:      store,
			Collection: app.Config.Retrieval.Collection,
			K:          app.Config.Retrieval.K,
			Client:     app.Client,
			Provider:   app.Provider(),
			Model:      app.Model(),
		}
		server := retrieval.NewServer(queue, app.Logger, qc.AllowedOrigins)
		return server.Serve(ctx, qc.Addr, qc.Workers, answerer.Answer)
	})
}
