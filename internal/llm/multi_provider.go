// Package llm puts rate limiting and provider fallback in front of the chat completion clients.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/karlnotmarx/synthec/internal/gemini"
	"github.com/karlnotmarx/synthec/internal/metrics"
	"github.com/karlnotmarx/synthec/internal/openai"
)

// ProviderType represents the type of LLM provider
type ProviderType string

const (
	ProviderGemini     ProviderType = "gemini"
	ProviderOpenAI     ProviderType = "openai"
	ProviderGroq       ProviderType = "groq"
	ProviderOpenRouter ProviderType = "openrouter"
)

// ErrAllProvidersFailed is returned when every configured provider failed for one request.
var ErrAllProvidersFailed = errors.New("all providers failed")

// ProviderConfig holds configuration for a single provider instance
type ProviderConfig struct {
	Type        ProviderType  `yaml:"type" validate:"required,oneof=gemini openai groq openrouter"`
	APIKey      string        `yaml:"api_key"`
	ModelName   string        `yaml:"model_name"`
	BaseURL     string        `yaml:"base_url"`
	Temperature *float32      `yaml:"temperature"`
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	Timeout     time.Duration `yaml:"timeout"`
	// Rate limiting per provider
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

func (cfg ProviderConfig) temperature() float32 {
	if cfg.Temperature == nil {
		return 0
	}
	return *cfg.Temperature
}

// Provider is anything that turns a system/user prompt pair into raw model text.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Close() error
	GetModelInfo() map[string]interface{}
}

// RateLimitedProvider wraps a provider with rate limiting
type RateLimitedProvider struct {
	provider Provider
	name     string
	limiter  *rate.Limiter
}

// NewRateLimitedProvider wraps a provider with a token bucket refilled requestsPerMinute times a minute.
func NewRateLimitedProvider(provider Provider, name string, requestsPerMinute int) *RateLimitedProvider {
	if requestsPerMinute <= 0 {
		requestsPerMinute = defaultRequestsPerMinute
	}
	every := rate.Every(time.Minute / time.Duration(requestsPerMinute))
	return &RateLimitedProvider{
		provider: provider,
		name:     name,
		limiter:  rate.NewLimiter(every, requestsPerMinute),
	}
}

func (p *RateLimitedProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	start := time.Now()
	out, err := p.provider.Complete(ctx, systemPrompt, userPrompt)
	metrics.LLMRequestDuration.WithLabelValues(p.name).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.LLMRequestsTotal.WithLabelValues(p.name, status).Inc()
	return out, err
}

func (p *RateLimitedProvider) Close() error {
	return p.provider.Close()
}

func (p *RateLimitedProvider) GetModelInfo() map[string]interface{} {
	return p.provider.GetModelInfo()
}

// MultiProviderClient sends each request to the active provider and moves on to the next
// one when it fails.
type MultiProviderClient struct {
	providers   []*RateLimitedProvider
	maxFailures int
	logger      *zap.Logger

	mu      sync.RWMutex
	active  int
	streaks []int // consecutive failures per provider
}

const defaultRequestsPerMinute = 30

// MultiProviderConfig lists the providers in fallback order.
type MultiProviderConfig struct {
	Providers []ProviderConfig
	// Consecutive failures at which a provider is reported as exhausted.
	MaxFailures int
}

// NewProvider builds the client for a single provider entry.
func NewProvider(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	switch cfg.Type {
	case ProviderGemini:
		return gemini.NewClient(gemini.Config{
			APIKey:      cfg.APIKey,
			ModelName:   cfg.ModelName,
			Temperature: cfg.temperature(),
			MaxRetries:  cfg.MaxRetries,
			RetryDelay:  cfg.RetryDelay,
		}, logger)
	case ProviderOpenAI, ProviderGroq, ProviderOpenRouter:
		return openai.NewClient(openai.Config{
			Provider:    string(cfg.Type),
			BaseURL:     baseURLFor(cfg),
			APIKey:      cfg.APIKey,
			ModelName:   cfg.ModelName,
			Temperature: cfg.temperature(),
			MaxRetries:  cfg.MaxRetries,
			RetryDelay:  cfg.RetryDelay,
			Timeout:     cfg.Timeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
}

func baseURLFor(cfg ProviderConfig) string {
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	switch cfg.Type {
	case ProviderGroq:
		return openai.GroqBaseURL
	case ProviderOpenRouter:
		return openai.OpenRouterBaseURL
	default:
		return openai.OpenAIBaseURL
	}
}

// NewMultiProviderClient builds every configured provider. Entries that fail to build are
// skipped; it is an error only when none remain.
func NewMultiProviderClient(cfg MultiProviderConfig, logger *zap.Logger) (*MultiProviderClient, error) {
	if len(cfg.Providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}

	var providers []*RateLimitedProvider
	for i, providerCfg := range cfg.Providers {
		provider, err := NewProvider(providerCfg, logger)
		if err != nil {
			logger.Error("Skipping provider", zap.Int("index", i), zap.String("type", string(providerCfg.Type)), zap.Error(err))
			continue
		}

		rpm := providerCfg.RequestsPerMinute
		if rpm <= 0 {
			rpm = defaultRequestsPerMinute
		}
		providers = append(providers, NewRateLimitedProvider(provider, string(providerCfg.Type), rpm))

		logger.Info("Provider ready",
			zap.Int("index", i),
			zap.String("type", string(providerCfg.Type)),
			zap.String("model", providerCfg.ModelName),
			zap.Int("requests_per_minute", rpm))
	}

	if len(providers) == 0 {
		return nil, errors.New("no providers could be initialized")
	}

	return newMultiProvider(providers, cfg.MaxFailures, logger), nil
}

// NewMultiProvider wraps already-built providers. Each gets its own rate limit of requestsPerMinute.
func NewMultiProvider(providers []Provider, requestsPerMinute, maxFailures int, logger *zap.Logger) *MultiProviderClient {
	wrapped := make([]*RateLimitedProvider, len(providers))
	for i, p := range providers {
		wrapped[i] = NewRateLimitedProvider(p, fmt.Sprintf("provider-%d", i), requestsPerMinute)
	}
	return newMultiProvider(wrapped, maxFailures, logger)
}

func newMultiProvider(providers []*RateLimitedProvider, maxFailures int, logger *zap.Logger) *MultiProviderClient {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	return &MultiProviderClient{
		providers:   providers,
		maxFailures: maxFailures,
		logger:      logger.Named("llm"),
		streaks:     make([]int, len(providers)),
	}
}

func (c *MultiProviderClient) current() (int, *RateLimitedProvider) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active, c.providers[c.active]
}

// fail bumps the streak of provider i and hands the active slot to the next provider.
func (c *MultiProviderClient) fail(i int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.streaks[i]++
	switch {
	case c.streaks[i] >= c.maxFailures:
		c.logger.Warn("Provider reached max failures", zap.Int("provider_index", i), zap.Int("failures", c.streaks[i]))
	case isRateLimitError(err):
		c.logger.Warn("Provider is rate limited", zap.Int("provider_index", i))
	}

	if len(c.providers) > 1 && c.active == i {
		c.active = (i + 1) % len(c.providers)
		c.logger.Info("Switching provider", zap.Int("from_index", i), zap.Int("to_index", c.active))
	}
}

func (c *MultiProviderClient) succeed(i int) {
	c.mu.Lock()
	c.streaks[i] = 0
	c.mu.Unlock()
}

// Complete asks each provider at most once, starting with the active one.
func (c *MultiProviderClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var errs error
	for range c.providers {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		i, provider := c.current()

		out, err := provider.Complete(ctx, systemPrompt, userPrompt)
		if err == nil {
			c.succeed(i)
			return out, nil
		}
		c.logger.Error("Provider failed", zap.Int("provider_index", i), zap.Error(err))
		c.fail(i, err)
		errs = err
	}
	return "", fmt.Errorf("%w: %w", ErrAllProvidersFailed, errs)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "quota", "rate limit"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Close closes every provider and returns the last error seen.
func (c *MultiProviderClient) Close() error {
	var last error
	for i, p := range c.providers {
		if err := p.Close(); err != nil {
			c.logger.Error("Failed to close provider", zap.Int("index", i), zap.Error(err))
			last = err
		}
	}
	return last
}

// GetModelInfo describes the active provider.
func (c *MultiProviderClient) GetModelInfo() map[string]interface{} {
	i, p := c.current()
	info := p.GetModelInfo()

	c.mu.RLock()
	defer c.mu.RUnlock()
	info["provider_index"] = i
	info["total_providers"] = len(c.providers)
	info["failure_count"] = c.streaks[i]
	return info
}

// GetProvidersInfo describes every provider in fallback order.
func (c *MultiProviderClient) GetProvidersInfo() []map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]map[string]interface{}, 0, len(c.providers))
	for i, p := range c.providers {
		info := p.GetModelInfo()
		info["is_current"] = i == c.active
		info["failure_count"] = c.streaks[i]
		out = append(out, info)
	}
	return out
}
