// Package cli holds what the example binaries share: loading config,
// building the LLM client, reading the user's prompt, printing loop
// progress and mapping results to exit codes.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/martinemde/stepagent/config"
	"github.com/martinemde/stepagent/logging"
	"github.com/martinemde/stepagent/steploop"
	"github.com/martinemde/stepagent/unifiedllm"
)

// Exit codes.
const (
	ExitOK              = 0
	ExitError           = 1
	ExitProviderFailed  = 2
	ExitBudgetExhausted = 3
	ExitCancelled       = 130
)

// App is the environment a command runs in.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Client *unifiedllm.Client

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Bootstrap loads configuration and builds the logger and client.
func Bootstrap() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stderr, logging.Level(cfg.Debug))
	client, err := NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &App{
		Config: cfg,
		Logger: logger,
		Client: client,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}, nil
}

// Model returns the configured model, or the catalog default for the
// configured provider.
func (a *App) Model() string {
	if a.Config.LLM.Model != "" {
		return a.Config.LLM.Model
	}
	return unifiedllm.DefaultModel(a.Config.LLM.Provider)
}

// Provider returns the configured provider name.
func (a *App) Provider() string {
	return a.Config.LLM.Provider
}

// Close releases the client.
func (a *App) Close() error {
	return a.Client.Close()
}

// NewClient registers an adapter for every provider with credentials and
// makes the configured provider the default. The configured provider must
// be usable.
func NewClient(cfg *config.Config, logger *slog.Logger) (*unifiedllm.Client, error) {
	client := unifiedllm.NewClient(
		unifiedllm.WithDefaultProvider(cfg.LLM.Provider),
		unifiedllm.WithMiddleware(unifiedllm.LoggingMiddleware(logger)),
	)

	names := []string{"openai", "openrouter", "gemini", "anthropic", "ollama"}
	if strings.HasPrefix(cfg.LLM.Provider, "gollm:") {
		names = append(names, cfg.LLM.Provider)
	}

	for _, name := range names {
		settings := cfg.ProviderSettings(name)
		usable := settings.APIKey != ""
		if name == "ollama" {
			usable = settings.BaseURL != "" || cfg.LLM.Provider == "ollama"
		}
		if strings.HasPrefix(name, "gollm:") {
			settings.APIKey = cfg.ProviderSettings(strings.TrimPrefix(name, "gollm:")).APIKey
			usable = true
		}
		if !usable {
			continue
		}
		adapter, err := unifiedllm.NewProviderAdapter(name, settings)
		if err != nil {
			if name == cfg.LLM.Provider {
				return nil, fmt.Errorf("provider %s: %w", name, err)
			}
			logger.Warn("skipping provider", "provider", name, "error", err)
			continue
		}
		client.RegisterProvider(name, adapter)
	}

	for _, p := range client.Providers() {
		if p == cfg.LLM.Provider {
			return client, nil
		}
	}
	key := unifiedllm.APIKeyEnv(cfg.LLM.Provider)
	if key == "" {
		return nil, fmt.Errorf("provider %q is not configured", cfg.LLM.Provider)
	}
	return nil, fmt.Errorf("provider %q is not configured: set %s", cfg.LLM.Provider, key)
}

// NewEmbedder returns the embedder named by the retrieval config.
func NewEmbedder(cfg *config.Config) (unifiedllm.Embedder, error) {
	r := cfg.Retrieval
	switch r.EmbeddingProvider {
	case "ollama":
		return unifiedllm.NewOllamaEmbedder(cfg.Credentials.OllamaHost, r.EmbeddingModel)
	case "openai", "gemini", "openrouter":
		settings := cfg.ProviderSettings(r.EmbeddingProvider)
		if settings.APIKey == "" {
			return nil, fmt.Errorf("embedding provider %s: set %s", r.EmbeddingProvider, unifiedllm.APIKeyEnv(r.EmbeddingProvider))
		}
		adapter, err := unifiedllm.NewProviderAdapter(r.EmbeddingProvider, settings)
		if err != nil {
			return nil, err
		}
		oa, ok := adapter.(*unifiedllm.OpenAIAdapter)
		if !ok {
			return nil, fmt.Errorf("embedding provider %s is not OpenAI-compatible", r.EmbeddingProvider)
		}
		return unifiedllm.NewOpenAIEmbedder(oa, r.EmbeddingModel), nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q", r.EmbeddingProvider)
}

// ReadPrompt prints "> " and reads one line. Flags or arguments win over
// stdin when non-empty.
func ReadPrompt(in io.Reader, out io.Writer, given string) (string, error) {
	if s := strings.TrimSpace(given); s != "" {
		return s, nil
	}
	fmt.Fprint(out, "> ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", errors.New("no input")
		}
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("no input")
	}
	return line, nil
}

// ExitCode maps a run's result to the process exit code.
func ExitCode(out *steploop.Outcome, err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return ExitCancelled
	case err != nil:
		return ExitError
	case out == nil:
		return ExitError
	}
	switch out.Kind {
	case steploop.OutcomeSuccess:
		return ExitOK
	case steploop.OutcomeProviderFailed:
		return ExitProviderFailed
	case steploop.OutcomeBudgetExhausted:
		return ExitBudgetExhausted
	case steploop.OutcomeCancelled:
		return ExitCancelled
	}
	return ExitError
}

// ExitErr carries an exit code out of a command.
type ExitErr struct {
	Code int
	Err  error
}

func (e *ExitErr) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitErr) Unwrap() error { return e.Err }

// Main bootstraps the app, runs fn with a context cancelled by SIGINT or
// SIGTERM, and exits with the resulting code.
func Main(fn func(ctx context.Context, app *App) error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := Bootstrap()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(ExitError)
	}
	defer app.Close()

	code := codeFor(fn(ctx, app))
	if code != ExitOK {
		stop()
		app.Close()
		os.Exit(code)
	}
}

func codeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitErr
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(os.Stderr, "error:", exitErr.Err)
		}
		return exitErr.Code
	}
	if errors.Is(err, context.Canceled) {
		return ExitCancelled
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	return ExitError
}
