// Command coding-agent runs shell commands on this machine to carry out a
// request, using the step loop in strict mode.
package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/martinemde/stepagent/internal/cli"
	"github.com/martinemde/stepagent/steploop"
	"github.com/martinemde/stepagent/toolbox"
)

func main() {
	dir := flag.String("dir", "", "working directory for commands (default current)")
	timeout := flag.Duration("timeout", 2*time.Minute, "per-command timeout")
	maxOutput := flag.Int("max-output", 30000, "characters of command output shown to the model")
	permissive := flag.Bool("permissive", false, "extract steps from free text instead of requesting a schema")
	flag.Parse()

	cli.Main(func(ctx context.Context, app *cli.App) error {
		workDir := *dir
		if workDir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			workDir = wd
		}
		query, err := cli.ReadPrompt(app.Stdin, app.Stdout, strings.Join(flag.Args(), " "))
		if err != nil {
			return err
		}

		shell := &toolbox.Shell{WorkDir: workDir, Timeout: *timeout, MaxOutput: *maxOutput}
		tools := toolbox.NewRegistry(shell)

		mode := steploop.ModeStrict
		if *permissive {
			mode = steploop.ModePermissive
		}
		loop, err := app.NewAgentLoop(tools, mode, steploop.InstructionOptions{
			Examples: []steploop.Example{steploop.ArithmeticExample, toolbox.CodingExample},
			Extra:    toolbox.EnvironmentContext(workDir, app.Model(), time.Now()),
		})
		if err != nil {
			return err
		}
		_, err = cli.RunAgent(ctx, loop, query, app.Stdout)
		return err
	})
}
