// Package config loads stepagent settings from a TOML file, a .env file and
// the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/martinemde/stepagent/steploop"
	"github.com/martinemde/stepagent/unifiedllm"
)

// Config is the full stepagent configuration.
type Config struct {
	DataDir     string          `toml:"data_dir"`
	Debug       bool            `toml:"debug"`
	LLM         LLMConfig       `toml:"llm"`
	Loop        LoopConfig      `toml:"loop"`
	Retrieval   RetrievalConfig `toml:"retrieval"`
	Memory      MemoryConfig    `toml:"memory"`
	Voice       VoiceConfig     `toml:"voice"`
	Queue       QueueConfig     `toml:"queue"`
	Credentials Credentials     `toml:"credentials"`
}

// LLMConfig selects the completion provider.
type LLMConfig struct {
	Provider    string   `toml:"provider"`
	Model       string   `toml:"model"`
	BaseURL     string   `toml:"base_url"`
	Referer     string   `toml:"referer"`
	Title       string   `toml:"title"`
	Reasoning   bool     `toml:"reasoning"`
	Temperature *float64 `toml:"temperature"`
}

// LoopConfig holds step loop limits.
type LoopConfig struct {
	MaxSteps        int      `toml:"max_steps"`
	RetryLimit      int      `toml:"retry_limit"`
	Mode            string   `toml:"mode"`
	ObservationRole string   `toml:"observation_role"`
	ToolTimeout     Duration `toml:"tool_timeout"`
	LoopDetection   bool     `toml:"loop_detection"`
}

// RetrievalConfig configures the document store used for RAG.
type RetrievalConfig struct {
	Collection        string `toml:"collection"`
	K                 int    `toml:"k"`
	EmbeddingProvider string `toml:"embedding_provider"`
	EmbeddingModel    string `toml:"embedding_model"`
	ChunkSize         int    `toml:"chunk_size"`
	ChunkOverlap      int    `toml:"chunk_overlap"`
}

// MemoryConfig configures long-term memory.
type MemoryConfig struct {
	UserID string `toml:"user_id"`
	Limit  int    `toml:"limit"`
}

// VoiceConfig configures speech input and output.
type VoiceConfig struct {
	VoiceID            string `toml:"voice_id"`
	ModelID            string `toml:"model_id"`
	Player             string `toml:"player"`
	TranscriptionModel string `toml:"transcription_model"`
}

// QueueConfig configures the queued RAG server.
type QueueConfig struct {
	Addr           string   `toml:"addr"`
	Workers        int      `toml:"workers"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Credentials holds API keys. They are normally supplied by the
// environment rather than the config file.
type Credentials struct {
	OpenAI     string `toml:"openai_api_key"`
	OpenRouter string `toml:"openrouter_api_key"`
	Gemini     string `toml:"gemini_api_key"`
	Anthropic  string `toml:"anthropic_api_key"`
	ElevenLabs string `toml:"elevenlabs_api_key"`
	OllamaHost string `toml:"ollama_host"`
}

// Duration is a time.Duration written as a string such as "60s".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText renders the duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	loop := steploop.DefaultConfig()
	return &Config{
		DataDir: defaultDataDir(),
		LLM: LLMConfig{
			Provider: "openrouter",
			Referer:  "http://127.0.0.1",
			Title:    "stepagent",
		},
		Loop: LoopConfig{
			MaxSteps:        loop.MaxSteps,
			RetryLimit:      loop.RetryLimit,
			Mode:            string(steploop.ModePermissive),
			ObservationRole: string(loop.ObservationRole),
			ToolTimeout:     Duration{loop.ToolTimeout},
		},
		Retrieval: RetrievalConfig{
			Collection:        "learning_rag",
			K:                 3,
			EmbeddingProvider: "openai",
			EmbeddingModel:    "text-embedding-3-large",
			ChunkSize:         1000,
			ChunkOverlap:      400,
		},
		Memory: MemoryConfig{UserID: "default", Limit: 5},
		Voice: VoiceConfig{
			VoiceID:            "EXAVITQu4vr4xnSDxMaL",
			ModelID:            "eleven_multilingual_v2",
			Player:             "ffplay",
			TranscriptionModel: "whisper-1",
		},
		Queue: QueueConfig{Addr: "127.0.0.1:3000", Workers: 2, AllowedOrigins: []string{"*"}},
	}
}

// Path returns the config file location: $STEPAGENT_CONFIG or
// ~/.config/stepagent/config.toml.
func Path() string {
	if p := os.Getenv("STEPAGENT_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(dir, "stepagent", "config.toml")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stepagent"
	}
	return filepath.Join(home, ".local", "share", "stepagent")
}

// Load reads .env from the working directory, then the config file at
// Path(), then applies environment overrides.
func Load() (*Config, error) {
	// A missing .env is not an error.
	_ = godotenv.Load()
	return LoadFile(Path(), os.LookupEnv)
}

// LoadFile reads the TOML file at path over the defaults and applies
// overrides from lookup. A missing file leaves the defaults in place.
func LoadFile(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if lookup != nil {
		if err := cfg.ApplyEnv(lookup); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	str(unifiedllm.APIKeyEnv("openai"), &c.Credentials.OpenAI)
	str(unifiedllm.APIKeyEnv("openrouter"), &c.Credentials.OpenRouter)
	str(unifiedllm.APIKeyEnv("gemini"), &c.Credentials.Gemini)
	str(unifiedllm.APIKeyEnv("anthropic"), &c.Credentials.Anthropic)
	str("ELEVENLABS_API_KEY", &c.Credentials.ElevenLabs)
	str("OLLAMA_HOST", &c.Credentials.OllamaHost)
	str("STEPAGENT_PROVIDER", &c.LLM.Provider)
	str("STEPAGENT_MODEL", &c.LLM.Model)
	str("STEPAGENT_DATA_DIR", &c.DataDir)
	str("STEPAGENT_MODE", &c.Loop.Mode)

	if v, ok := lookup("STEPAGENT_DEBUG"); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			debug = true
		}
		c.Debug = debug
	}
	if v, ok := lookup("STEPAGENT_MAX_STEPS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STEPAGENT_MAX_STEPS: %w", err)
		}
		c.Loop.MaxSteps = n
	}
	return nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if _, err := steploop.ParseMode(c.Loop.Mode); err != nil {
		errs = append(errs, err)
	}
	if err := c.StepLoop().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Retrieval.K <= 0 {
		errs = append(errs, fmt.Errorf("retrieval k must be positive, got %d", c.Retrieval.K))
	}
	if c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d",
			c.Retrieval.ChunkOverlap, c.Retrieval.ChunkSize))
	}
	if c.Queue.Workers <= 0 {
		errs = append(errs, fmt.Errorf("queue workers must be positive, got %d", c.Queue.Workers))
	}
	return errors.Join(errs...)
}

// StepLoop returns the steploop configuration. The system instruction is
// left for the caller to fill in.
func (c *Config) StepLoop() steploop.Config {
	cfg := steploop.DefaultConfig()
	cfg.MaxSteps = c.Loop.MaxSteps
	cfg.RetryLimit = c.Loop.RetryLimit
	cfg.ObservationRole = unifiedllm.Role(c.Loop.ObservationRole)
	cfg.ToolTimeout = c.Loop.ToolTimeout.Duration
	cfg.EnableLoopDetection = c.Loop.LoopDetection
	return cfg
}

// Mode returns the configured step parsing mode.
func (c *Config) Mode() steploop.Mode {
	m, err := steploop.ParseMode(c.Loop.Mode)
	if err != nil {
		return steploop.ModePermissive
	}
	return m
}

// ProviderSettings returns the adapter settings for the named provider.
func (c *Config) ProviderSettings(provider string) unifiedllm.ProviderSettings {
	s := unifiedllm.ProviderSettings{}
	switch provider {
	case "openai":
		s.APIKey = c.Credentials.OpenAI
	case "openrouter":
		s.APIKey = c.Credentials.OpenRouter
		s.Referer = c.LLM.Referer
		s.Title = c.LLM.Title
		s.Reasoning = c.LLM.Reasoning
	case "gemini":
		s.APIKey = c.Credentials.Gemini
	case "anthropic":
		s.APIKey = c.Credentials.Anthropic
	case "ollama":
		s.BaseURL = c.Credentials.OllamaHost
	}
	if provider == c.LLM.Provider && c.LLM.BaseURL != "" {
		s.BaseURL = c.LLM.BaseURL
	}
	return s
}

// DBPath returns the path of a SQLite database inside the data directory.
func (c *Config) DBPath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
}
