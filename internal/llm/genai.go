package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GenAI is the Gemini-backed Completer.
type GenAI struct {
	client *genai.Client
	logger *zap.Logger
}

// NewGenAI creates a Gemini client from an API key.
func NewGenAI(ctx context.Context, apiKey string, logger *zap.Logger) (*GenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAI{client: client, logger: logger}, nil
}

func (g *GenAI) Complete(ctx context.Context, model, system, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.2),
		MaxOutputTokens: 800,
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	result, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("GenAI completion failed: %w", err)
	}
	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("no completion returned")
	}
	g.logger.Debug("completion", zap.String("model", model), zap.Int("chars", len(text)))
	return text, nil
}

// Close releases the client. The genai client holds no long-lived
// connections, so there is nothing to tear down.
func (g *GenAI) Close() error {
	return nil
}
