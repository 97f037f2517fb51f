package story

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// GenerateOptions tune one completion.
type GenerateOptions struct {
	Temperature     float32
	MaxOutputTokens int32
}

// TextGenerator turns a prompt into story text.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

type GeminiConfig struct {
	APIKey  string `env:"GEMINI_API_KEY,required"`
	Model   string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	BaseURL string `env:"GEMINI_BASE_URL"`
}

var ErrMissingAPIKey = errors.New("story: gemini api key is required")

// GeminiGenerator calls the Gemini API through google.golang.org/genai.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

type GeminiOption func(*genai.ClientConfig)

// WithGeminiHTTPClient replaces the transport used for API calls.
func WithGeminiHTTPClient(c *http.Client) GeminiOption {
	return func(cc *genai.ClientConfig) { cc.HTTPClient = c }
}

func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig, opts ...GeminiOption) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	for _, opt := range opts {
		opt(cc)
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: cfg.Model}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	config := &genai.GenerateContentConfig{}
	if opts.Temperature > 0 {
		config.Temperature = genai.Ptr(opts.Temperature)
	}
	if opts.MaxOutputTokens > 0 {
		config.MaxOutputTokens = opts.MaxOutputTokens
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
