// Command graph-chat runs the example conversation graphs.
//
//	graph-chat chat "Hi, my name is vinit"      chatbot then a fixed sample node
//	graph-chat eval "What is 2 + 2?"            answer, grade, retry until good
//	graph-chat thread -thread 1 "what is my name?"  conversation saved per thread
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/martinemde/stepagent/graph"
	"github.com/martinemde/stepagent/internal/cli"
	"github.com/martinemde/stepagent/unifiedllm"
)

func main() {
	thread := flag.String("thread", "1", "thread id for the thread flow")
	judge := flag.Bool("judge", false, "grade answers with a second model call in the eval flow")
	flag.Parse()

	cli.Main(func(ctx context.Context, app *cli.App) error {
		if flag.NArg() == 0 {
			return errors.New("usage: graph-chat [-thread id] [-judge] chat|eval|thread [message]")
		}
		flow := flag.Arg(0)
		message, err := cli.ReadPrompt(app.Stdin, app.Stdout, strings.Join(flag.Args()[1:], " "))
		if err != nil {
			return err
		}
		opts := []graph.CompileOption{graph.WithLogger(app.Logger)}
		chat := graph.ChatNode(app.Client, app.Provider(), app.Model())

		switch flow {
		case "chat":
			g, err := graph.NewChatFlow(chat, opts...)
			if err != nil {
				return err
			}
			out, err := g.Invoke(ctx, graph.MessagesState{}.Append(unifiedllm.UserMessage(message)), graph.RunConfig{})
			if err != nil {
				return err
			}
			printMessages(app.Stdout, out.Messages)

		case "eval":
			var j graph.Judge
			if *judge {
				j = graph.LLMJudge(app.Client, app.Provider(), app.Model())
			}
			g, err := graph.NewEvalFlow(graph.AnswerFunc(app.Client, app.Provider(), app.Model()), j, opts...)
			if err != nil {
				return err
			}
			out, err := g.Invoke(ctx, graph.EvalState{UserQuery: message}, graph.RunConfig{})
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Stdout, "Updated state: query=%q attempts=%d\n%s\n", out.UserQuery, out.Attempts, out.LLMResponse)

		case "thread":
			cp, err := graph.OpenSQLiteCheckpointer(ctx, app.Config.DBPath("checkpoints"))
			if err != nil {
				return err
			}
			defer cp.Close()
			g, err := graph.NewThreadChatFlow(chat, append(opts, graph.WithCheckpointer(cp))...)
			if err != nil {
				return err
			}
			input := graph.MessagesState{}.Append(unifiedllm.UserMessage(message))
			for u, err := range g.Stream(ctx, input, graph.RunConfig{ThreadID: *thread}) {
				if err != nil {
					return err
				}
				if last, ok := u.State.Last(); ok {
					printMessages(app.Stdout, []unifiedllm.Message{last})
				}
			}

		default:
			return fmt.Errorf("unknown flow %q", flow)
		}
		return nil
	})
}

func printMessages(w io.Writer, msgs []unifiedllm.Message) {
	for _, m := range msgs {
		fmt.Fprintf(w, "================ %s ================\n%s\n\n", m.Role, m.TextContent())
	}
}
