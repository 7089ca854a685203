// Package advisor wraps the generative-text service that writes the
// narrative financial advice.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/dvloznov/financio/internal/logger"
)

// DefaultModelName is used when no model is configured.
const DefaultModelName = "gemini-2.0-flash"

// ErrAdvisory marks every failure of the advisory service. Calls are never
// retried.
var ErrAdvisory = errors.New("advisor: generation failed")

// Client generates advice for a prompt.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ContentGenerator is the subset of the genai models service the client
// needs; *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient calls a Gemini model once per prompt.
type GeminiClient struct {
	models ContentGenerator
	model  string
}

// NewGeminiClient connects to the Gemini API with the given key.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("NewGeminiClient: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiClient: create genai client: %w", err)
	}
	return NewGeminiClientWithModels(client.Models, model), nil
}

// NewGeminiClientWithModels builds a client over an existing generator.
func NewGeminiClientWithModels(models ContentGenerator, model string) *GeminiClient {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiClient{models: models, model: model}
}

// Generate sends prompt as a single user turn and returns the response text.
// An empty response counts as a failure.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := c.models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		log.Error().Err(err).Str("model", c.model).Msg("Advice generation failed")
		return "", fmt.Errorf("%w: generate content: %w", ErrAdvisory, err)
	}
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", ErrAdvisory)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty response from model", ErrAdvisory)
	}

	log.Debug().
		Str("model", c.model).
		Int("chars", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Advice generated")
	return text, nil
}
