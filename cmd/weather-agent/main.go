// Command weather-agent answers weather questions with the step loop and
// the get_weather tool.
package main

import (
	"context"
	"flag"
	"strings"

	"github.com/martinemde/stepagent/internal/cli"
	"github.com/martinemde/stepagent/steploop"
	"github.com/martinemde/stepagent/toolbox"
)

func main() {
	mode := flag.String("mode", "", "step parsing mode: strict or permissive (default from config)")
	weatherURL := flag.String("weather-url", toolbox.DefaultWeatherURL, "weather service base URL")
	flag.Parse()

	cli.Main(func(ctx context.Context, app *cli.App) error {
		var m steploop.Mode
		if *mode != "" {
			var err error
			if m, err = steploop.ParseMode(*mode); err != nil {
				return err
			}
		}
		query, err := cli.ReadPrompt(app.Stdin, app.Stdout, strings.Join(flag.Args(), " "))
		if err != nil {
			return err
		}

		weather := toolbox.NewWeather()
		weather.BaseURL = *weatherURL
		tools := toolbox.NewRegistry(weather)

		loop, err := app.NewAgentLoop(tools, m, steploop.InstructionOptions{
			Examples: []steploop.Example{steploop.ArithmeticExample, toolbox.WeatherExample},
		})
		if err != nil {
			return err
		}
		_, err = cli.RunAgent(ctx, loop, query, app.Stdout)
		return err
	})
}
