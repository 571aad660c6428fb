// Package voice turns speech into text and text into speech for the voice
// agent. Recording and playback shell out to sox and ffplay.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
)

// Transcriber converts recorded speech to text with an OpenAI-compatible
// transcription endpoint.
type Transcriber struct {
	client *openai.Client
	model  string
}

// NewTranscriber returns a Transcriber using model (whisper-1 when empty).
func NewTranscriber(client *openai.Client, model string) *Transcriber {
	if model == "" {
		model = "whisper-1"
	}
	return &Transcriber{client: client, model: model}
}

// TranscribeFile transcribes the audio file at path.
func (t *Transcriber) TranscribeFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	resp, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(t.model),
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// DefaultElevenLabsURL is the ElevenLabs API root.
const DefaultElevenLabsURL = "https://api.elevenlabs.io"

// Synthesizer converts text to speech with ElevenLabs.
type Synthesizer struct {
	APIKey     string
	VoiceID    string
	ModelID    string
	BaseURL    string
	HTTPClient *http.Client
}

// NewSynthesizer returns a Synthesizer for the given voice and model.
func NewSynthesizer(apiKey, voiceID, modelID string) *Synthesizer {
	return &Synthesizer{
		APIKey:     apiKey,
		VoiceID:    voiceID,
		ModelID:    modelID,
		BaseURL:    DefaultElevenLabsURL,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type synthesisRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Synthesize returns MP3 audio for text.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if s.APIKey == "" {
		return nil, errors.New("voice: ElevenLabs API key is not set")
	}
	body, err := json.Marshal(synthesisRequest{Text: text, ModelID: s.ModelID})
	if err != nil {
		return nil, err
	}

	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		base = DefaultElevenLabsURL
	}
	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=mp3_44100_128", base, url.PathEscape(s.VoiceID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", s.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("text to speech: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audio: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("text to speech: status %d: %s", resp.StatusCode, strings.TrimSpace(string(audio)))
	}
	return audio, nil
}

// Player plays audio through an external command reading stdin.
type Player struct {
	Command string
	Args    []string
	Logger  *slog.Logger
}

// NewPlayer returns a Player for command. ffplay gets flags that play stdin
// without a window and exit at the end.
func NewPlayer(command string) *Player {
	if command == "" {
		command = "ffplay"
	}
	p := &Player{Command: command}
	if filepath.Base(command) == "ffplay" {
		p.Args = []string{"-autoexit", "-nodisp", "-loglevel", "quiet", "-"}
	}
	return p
}

// Play blocks until audio has been played.
func (p *Player) Play(ctx context.Context, audio []byte) error {
	cmd := exec.CommandContext(ctx, p.Command, p.Args...)
	cmd.Stdin = bytes.NewReader(audio)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("play audio with %s: %w: %s", p.Command, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Recorder captures one utterance from the microphone into a WAV file.
type Recorder struct {
	Command string
	// Args are passed before the output path.
	Args []string
	// ArgsAfter follow the output path.
	ArgsAfter []string
}

// NewRecorder returns a Recorder using sox's rec, which stops after two
// seconds of silence.
func NewRecorder() *Recorder {
	return &Recorder{
		Command:   "rec",
		Args:      []string{"-q", "-c", "1", "-r", "16000"},
		ArgsAfter: []string{"silence", "1", "0.1", "1%", "1", "2.0", "1%"},
	}
}

// Record writes an utterance to a temporary file and returns its path. The
// caller removes the file.
func (r *Recorder) Record(ctx context.Context) (string, error) {
	f, err := os.CreateTemp("", "stepagent-*.wav")
	if err != nil {
		return "", err
	}
	path := f.Name()
	f.Close()

	args := append(append(append([]string{}, r.Args...), path), r.ArgsAfter...)
	cmd := exec.CommandContext(ctx, r.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("record with %s: %w: %s", r.Command, err, strings.TrimSpace(stderr.String()))
	}
	return path, nil
}

// Speaker synthesizes text and plays it.
type Speaker struct {
	Synthesizer *Synthesizer
	Player      *Player
}

// Speak says text aloud.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	audio, err := s.Synthesizer.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	return s.Player.Play(ctx, audio)
}
