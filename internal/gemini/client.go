package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Client completes prompts with a Gemini model.
type Client struct {
	client      *genai.Client
	logger      *zap.Logger
	modelName   string
	temperature float32
	maxRetries  int
	retryDelay  time.Duration
}

// Config for Gemini client
type Config struct {
	APIKey      string
	ModelName   string // Default: "gemini-2.0-flash"
	Temperature float32
	MaxRetries  int
	RetryDelay  time.Duration
}

// NewClient creates a new Gemini client
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	if cfg.ModelName == "" {
		cfg.ModelName = "gemini-2.0-flash"
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	logger = logger.Named("gemini")
	logger.Info("Client ready", zap.String("model", cfg.ModelName), zap.Float32("temperature", cfg.Temperature))

	return &Client{
		client:      client,
		logger:      logger,
		modelName:   cfg.ModelName,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
	}, nil
}

// Close closes the Gemini client
func (c *Client) Close() error {
	return c.client.Close()
}

// model builds a generative model carrying the given system instruction.
func (c *Client) model(systemPrompt string) *genai.GenerativeModel {
	model := c.client.GenerativeModel(c.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](c.temperature),
		TopP:        genai.Ptr[float32](0.95),
	}
	return model
}

// Complete returns the concatenated text parts of the first candidate.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	model := c.model(systemPrompt)

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			c.logger.Warn("Retrying Gemini request", zap.Int("attempt", attempt), zap.Int("max_retries", c.maxRetries))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		text, err := c.generate(ctx, model, userPrompt)
		if err == nil {
			c.logger.Debug("Gemini completion received", zap.Int("attempt", attempt), zap.Int("chars", len(text)))
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.logger.Error("Gemini request failed", zap.Int("attempt", attempt), zap.Error(err))
		lastErr = err
	}

	return "", fmt.Errorf("gemini: failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) generate(ctx context.Context, model *genai.GenerativeModel, userPrompt string) (string, error) {
	return responseText(model.GenerateContent(ctx, genai.Text(userPrompt)))
}

// responseText returns the candidate text; an empty candidate yields "" and no error.
func responseText(resp *genai.GenerateContentResponse, err error) (string, error) {
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	return candidateText(resp), nil
}

func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}

// GetModelInfo returns model information
func (c *Client) GetModelInfo() map[string]interface{} {
	return map[string]interface{}{
		"provider":    "gemini",
		"model":       c.modelName,
		"temperature": c.temperature,
		"max_retries": c.maxRetries,
		"retry_delay": c.retryDelay.String(),
	}
}
