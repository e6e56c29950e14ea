package scanning

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
)

// Supported oracle backends
const (
	BackendGemini = "gemini"
	BackendClaude = "claude"
	BackendOllama = "ollama"
)

// Config selects and configures the model used to classify pages
type Config struct {
	Backend     string `validate:"oneof=gemini claude ollama"`
	GeminiKey   string `validate:"required_if=Backend gemini"`
	GeminiModel string
	ClaudeKey   string `validate:"required_if=Backend claude"`
	ClaudeModel string
	OllamaURL   string `validate:"omitempty,url"`
	OllamaModel string

	Retries           int           `validate:"gte=0,lte=10"`
	RetryBackoff      time.Duration `validate:"gte=0"`
	RequestsPerMinute int           `validate:"gte=0"`
}

// Validate checks the configuration for missing credentials and out-of-range values
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid scanner config: %w", err)
	}
	return nil
}

// New builds the configured backend wrapped with retries and rate limiting
func New(cfg Config) (PageClassifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		backend PageClassifier
		err     error
	)
	switch cfg.Backend {
	case BackendGemini:
		slog.Info("Initializing Gemini classifier...", "model", cfg.GeminiModel)
		backend, err = NewGemini(cfg.GeminiKey, cfg.GeminiModel)
	case BackendClaude:
		slog.Info("Initializing Claude classifier...", "model", cfg.ClaudeModel)
		backend, err = NewClaude(cfg.ClaudeKey, cfg.ClaudeModel)
	case BackendOllama:
		slog.Info("Initializing Ollama classifier...", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		backend, err = NewOllama(cfg.OllamaURL, cfg.OllamaModel)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s: %w", cfg.Backend, err)
	}

	backoff := cfg.RetryBackoff
	if backoff == 0 {
		backoff = 2 * time.Second
	}
	return NewRetrying(backend, RetryOptions{
		Attempts:          cfg.Retries + 1,
		Backoff:           backoff,
		RequestsPerMinute: cfg.RequestsPerMinute,
	}), nil
}
