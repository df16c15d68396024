// Package classifier calls a hosted sentiment classification model over HTTP.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/karlnotmarx/synthec/internal/metrics"
)

// Backend kinds.
const (
	KindService     = "service"
	KindHuggingFace = "huggingface"
)

// DefaultModel is the FinBERT checkpoint used when none is configured.
const DefaultModel = "ProsusAI/finbert"

// Prediction is the top label returned for one text.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Config selects and configures the classification backend.
type Config struct {
	Kind     string        `yaml:"kind" validate:"oneof=service huggingface"`
	BaseURL  string        `yaml:"base_url" validate:"required,url"`
	Model    string        `yaml:"model"`
	APIToken string        `yaml:"api_token"`
	MaxChars int           `yaml:"max_chars" validate:"gte=0"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Client is a client for the classification model API
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

type classifyRequest struct {
	Text string `json:"text"`
}

type inferenceRequest struct {
	Inputs string `json:"inputs"`
}

type inferenceScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// NewClient creates a new classification client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Kind == "" {
		cfg.Kind = KindService
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("classifier"),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Classify returns the most likely label for text along with its probability.
// Label text is lowercased; it is not checked against the sentiment label set here.
func (c *Client) Classify(ctx context.Context, text string) (*Prediction, error) {
	text = truncate(text, c.cfg.MaxChars)

	var (
		pred *Prediction
		err  error
	)
	switch c.cfg.Kind {
	case KindHuggingFace:
		pred, err = c.classifyInference(ctx, text)
	default:
		pred, err = c.classifyService(ctx, text)
	}
	if err != nil {
		metrics.ClassifierRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ClassifierRequestsTotal.WithLabelValues("ok").Inc()

	pred.Label = strings.ToLower(strings.TrimSpace(pred.Label))
	return pred, nil
}

// classifyService talks to a self-hosted service exposing POST /api/v1/classify/single.
func (c *Client) classifyService(ctx context.Context, text string) (*Prediction, error) {
	var result Prediction
	if err := c.post(ctx, c.cfg.BaseURL+"/api/v1/classify/single", classifyRequest{Text: text}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// classifyInference talks to the Hugging Face inference API, which returns scores for every label.
func (c *Client) classifyInference(ctx context.Context, text string) (*Prediction, error) {
	var raw json.RawMessage
	if err := c.post(ctx, c.cfg.BaseURL+"/models/"+c.cfg.Model, inferenceRequest{Inputs: text}, &raw); err != nil {
		return nil, err
	}

	// The API nests scores one level deeper for single inputs on some deployments.
	var nested [][]inferenceScore
	var scores []inferenceScore
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested) > 0 {
		scores = nested[0]
	} else if err := json.Unmarshal(raw, &scores); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(scores) == 0 {
		return nil, fmt.Errorf("model %s returned no scores", c.cfg.Model)
	}
	best := scores[0]
	for _, s := range scores[1:] {
		if s.Score > best.Score {
			best = s
		}
	}
	return &Prediction{Label: best.Label, Confidence: best.Score}, nil
}

func (c *Client) post(ctx context.Context, url string, body, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.Error("Classifier returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("url", url))
		return fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// HealthCheck checks if a self-hosted classification service is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.Kind != KindService {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/v1/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// truncate cuts text to at most maxChars runes. Zero disables truncation.
func truncate(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxChars])
}
