package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// EmbeddingDim is the dimensionality of text-embedding-004 vectors. The
// qdrant collection and every stored embedding use this size.
const EmbeddingDim = 768

type GeminiService interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateText(ctx context.Context, prompt string, temperature float32) (string, error)
	GenerateTextWithRetry(ctx context.Context, prompt string, temperature float32, maxRetries int) (string, error)
}

type geminiService struct {
	client       *genai.Client
	modelName    string
	embedModel   string
	initialDelay time.Duration
	logger       *zap.Logger
}

func NewGeminiService(apiKey string, initialDelay time.Duration, logger *zap.Logger) (GeminiService, error) {
	ctx := context.Background()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	if initialDelay <= 0 {
		initialDelay = 2 * time.Second
	}

	return &geminiService{
		client:       client,
		modelName:    "gemini-2.5-flash",
		embedModel:   "text-embedding-004",
		initialDelay: initialDelay,
		logger:       logger,
	}, nil
}

// GenerateEmbedding implements GeminiService.
func (g *geminiService) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	// Truncate text if too long (max ~10000 tokens for embedding)
	if len(text) > 40000 {
		text = text[:40000]
	}

	result, err := g.client.Models.EmbedContent(ctx, g.embedModel, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	if result == nil || len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}

	vec := result.Embeddings[0].Values
	if len(vec) != EmbeddingDim {
		return nil, fmt.Errorf("unexpected embedding dimensionality: got %d, want %d", len(vec), EmbeddingDim)
	}
	return vec, nil
}

// GenerateText implements GeminiService.
func (g *geminiService) GenerateText(ctx context.Context, prompt string, temperature float32) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: 4096,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if resp == nil {
		return "", fmt.Errorf("no response generated (nil response)")
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("no text content in response")
	}

	return text, nil
}

// GenerateTextWithRetry implements GeminiService. Transient failures are
// retried with exponential backoff; context cancellation cuts the loop
// short so a matching request can enforce its own budget.
func (g *geminiService) GenerateTextWithRetry(ctx context.Context, prompt string, temperature float32, maxRetries int) (string, error) {
	var lastErr error
	delay := g.initialDelay

	for attempt := 1; attempt <= maxRetries; attempt++ {
		result, err := g.GenerateText(ctx, prompt, temperature)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %s", ErrExtractionTimeout, ctx.Err())
		}

		if attempt < maxRetries {
			g.logger.Warn("gemini call failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %s", ErrExtractionTimeout, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: %s", ErrExtractionTimeout, lastErr)
	}
	return "", fmt.Errorf("%w: failed after %d attempts: %s", ErrProviderUnavailable, maxRetries, lastErr)
}
