// Command voice-agent listens for a spoken request, carries it out with
// the step loop and the run_command tool, and speaks the answer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/martinemde/stepagent/internal/cli"
	"github.com/martinemde/stepagent/steploop"
	"github.com/martinemde/stepagent/toolbox"
	"github.com/martinemde/stepagent/unifiedllm"
	"github.com/martinemde/stepagent/voice"
)

const voicePersona = `You are an expert voice agent. You are given the transcript of what the user said.
Whatever you output is converted back to audio and played to the user, so answer as you would speak.`

func main() {
	audioFile := flag.String("audio", "", "transcribe this file instead of recording")
	chatOnly := flag.Bool("chat", false, "reply conversationally without tools")
	mute := flag.Bool("mute", false, "print the answer without speaking it")
	flag.Parse()

	cli.Main(func(ctx context.Context, app *cli.App) error {
		vc := app.Config.Voice
		query, err := listen(ctx, app, *audioFile)
		if err != nil {
			return err
		}
		fmt.Fprintln(app.Stdout, "You said:", query)

		var answer string
		if *chatOnly {
			res, err := unifiedllm.Generate(ctx, unifiedllm.GenerateOptions{
				Client:   app.Client,
				Provider: app.Provider(),
				Model:    app.Model(),
				System:   voicePersona,
				Prompt:   query,
			})
			if err != nil {
				return err
			}
			answer = res.Text
			fmt.Fprintln(app.Stdout, answer)
		} else {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			tools := toolbox.NewRegistry(&toolbox.Shell{WorkDir: wd, Timeout: 2 * time.Minute, MaxOutput: 30000})
			loop, err := app.NewAgentLoop(tools, steploop.ModeStrict, steploop.InstructionOptions{
				Examples: []steploop.Example{steploop.ArithmeticExample, toolbox.CodingExample},
			})
			if err != nil {
				return err
			}
			out, err := cli.RunAgent(ctx, loop, query, app.Stdout)
			if err != nil {
				return err
			}
			answer = out.FinalAnswer
		}

		if *mute {
			return nil
		}
		speaker := &voice.Speaker{
			Synthesizer: voice.NewSynthesizer(app.Config.Credentials.ElevenLabs, vc.VoiceID, vc.ModelID),
			Player:      voice.NewPlayer(vc.Player),
		}
		return speaker.Speak(ctx, answer)
	})
}

// listen records an utterance, or uses audioFile, and transcribes it.
func listen(ctx context.Context, app *cli.App, audioFile string) (string, error) {
	settings := app.Config.ProviderSettings("openai")
	if settings.APIKey == "" {
		return "", errors.New("speech to text needs OPENAI_API_KEY")
	}
	adapter, err := unifiedllm.NewProviderAdapter("openai", settings)
	if err != nil {
		return "", err
	}
	oa, ok := adapter.(*unifiedllm.OpenAIAdapter)
	if !ok {
		return "", errors.New("openai adapter has unexpected type")
	}
	transcriber := voice.NewTranscriber(oa.Client(), app.Config.Voice.TranscriptionModel)

	path := audioFile
	if path == "" {
		fmt.Fprintln(app.Stdout, "Speak something...")
		path, err = voice.NewRecorder().Record(ctx)
		if err != nil {
			return "", err
		}
		defer os.Remove(path)
		fmt.Fprintln(app.Stdout, "Processing audio...")
	}
	return transcriber.TranscribeFile(ctx, path)
}
