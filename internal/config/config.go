package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/karlnotmarx/synthec/internal/classifier"
	"github.com/karlnotmarx/synthec/internal/llm"
	"github.com/karlnotmarx/synthec/internal/prompts"
	"github.com/karlnotmarx/synthec/internal/repository"
	"github.com/karlnotmarx/synthec/internal/storage"
)

// Config holds application configuration
type Config struct {
	Log struct {
		Development bool   `yaml:"development"`
		Level       string `yaml:"level"`
	} `yaml:"log"`

	Server struct {
		Port string `yaml:"port" validate:"required,numeric"`
	} `yaml:"server"`

	// Providers are tried in order; the first one is the primary.
	Providers               []llm.ProviderConfig `yaml:"providers" validate:"required,min=1,dive"`
	MaxFailuresBeforeSwitch int                  `yaml:"max_failures_before_switch" validate:"gte=1"`

	Generation GenerationConfig  `yaml:"generation"`
	Evaluation EvaluationConfig  `yaml:"evaluation"`
	Classifier classifier.Config `yaml:"classifier"`
	Database   repository.Config `yaml:"database"`
	Storage    storage.Config    `yaml:"storage"`
}

// GenerationConfig controls the dataset generation loop.
type GenerationConfig struct {
	Target      int     `yaml:"target" validate:"gte=0"`
	BatchSize   int     `yaml:"batch_size" validate:"gte=1"`
	Prompt      string  `yaml:"prompt" validate:"required"`
	PromptsDir  string  `yaml:"prompts_dir"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxAttempts int     `yaml:"max_attempts" validate:"gte=1"`
	MaxFailures int     `yaml:"max_failures" validate:"gte=1"`

	Output         string `yaml:"output" validate:"required"`
	FailuresOutput string `yaml:"failures_output" validate:"required"`
}

// EvaluationConfig holds the evaluation inputs and outputs.
type EvaluationConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" validate:"gte=0,lte=1"`

	Dataset         string `yaml:"dataset" validate:"required"`
	Predictions     string `yaml:"predictions" validate:"required"`
	ModelReport     string `yaml:"model_report" validate:"required"`
	AnalystA        string `yaml:"analyst_a" validate:"required"`
	AnalystB        string `yaml:"analyst_b" validate:"required"`
	AgreementReport string `yaml:"agreement_report" validate:"required"`
}

// overrides are read from the environment after the YAML file. Unset variables stay nil.
type overrides struct {
	Target      *int     `env:"SYNTHEC_TARGET"`
	BatchSize   *int     `env:"SYNTHEC_BATCH_SIZE"`
	Prompt      *string  `env:"SYNTHEC_PROMPT"`
	Model       *string  `env:"SYNTHEC_MODEL"`
	Temperature *float32 `env:"SYNTHEC_TEMPERATURE"`
	Threshold   *float64 `env:"CONFIDENCE_THRESHOLD"`
	MaxAttempts *int     `env:"SYNTHEC_MAX_ATTEMPTS"`
	MaxFailures *int     `env:"SYNTHEC_MAX_FAILURES"`
}

// ErrMissingAPIKey is returned when a configured provider has no API key.
var ErrMissingAPIKey = errors.New("provider API key is not set")

// Default returns the configuration a YAML file is decoded over. Values the file
// sets, zeros included, replace these.
func Default() *Config {
	cfg := &Config{}
	cfg.Log.Level = "info"
	cfg.Server.Port = "8002"
	cfg.MaxFailuresBeforeSwitch = 3

	cfg.Generation = GenerationConfig{
		Target:      50,
		BatchSize:   5,
		Prompt:      prompts.DefaultName,
		Model:       "gpt-4o-mini",
		Temperature: 0.8,
		MaxAttempts: 200,
		MaxFailures: 25,
		Output:      "data/synthec_v0.jsonl",
	}
	cfg.Evaluation = EvaluationConfig{
		ConfidenceThreshold: 0.60,
		Predictions:         "evaluation/reports/finbert_predictions.jsonl",
		ModelReport:         "evaluation/reports/finbert_eval.json",
		AnalystA:            "evaluation/annotations/financial_analyst_a.csv",
		AnalystB:            "evaluation/annotations/financial_analyst_b.csv",
		AgreementReport:     "evaluation/reports/agreement_eval.json",
	}
	cfg.Classifier = classifier.Config{
		Kind:     classifier.KindHuggingFace,
		BaseURL:  "https://api-inference.huggingface.co",
		Model:    classifier.DefaultModel,
		MaxChars: 2000,
	}
	cfg.Database = repository.Config{
		Driver: repository.DriverSQLite,
		DSN:    "./data/synthec.db",
	}

	cfg.fillDerived()
	return cfg
}

// LoadConfig loads configuration from a YAML file, then the .env file, then SYNTHEC_* variables.
// A missing YAML file is not an error. envFile may be empty.
func LoadConfig(configPath, envFile string) (*Config, error) {
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}

	config := Default()
	// Paths derived from generation.output are recomputed after decoding.
	config.Generation.FailuresOutput = ""
	config.Evaluation.Dataset = ""
	config.Providers = nil

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to open config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to decode config file: %w", err)
			}
		}
	}

	config.fillDerived()

	var o overrides
	if err := env.Parse(&o); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	config.apply(o)

	// Expand environment variables in secrets
	for i := range config.Providers {
		config.Providers[i].APIKey = os.ExpandEnv(config.Providers[i].APIKey)
	}
	config.Classifier.APIToken = os.ExpandEnv(config.Classifier.APIToken)
	config.Database.DSN = os.ExpandEnv(config.Database.DSN)

	config.fillProviders()

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// The default .env is optional; an explicitly named one must exist.
func loadDotEnv(envFile string) error {
	if envFile == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return nil
}

// fillDerived sets the values that default from other settings.
func (c *Config) fillDerived() {
	if len(c.Providers) == 0 {
		c.Providers = []llm.ProviderConfig{{
			Type:   llm.ProviderOpenAI,
			APIKey: "${OPENAI_API_KEY}",
		}}
	}
	g := &c.Generation
	if g.FailuresOutput == "" {
		g.FailuresOutput = strings.TrimSuffix(g.Output, ".jsonl") + "_failures.jsonl"
	}
	if c.Evaluation.Dataset == "" {
		c.Evaluation.Dataset = g.Output
	}
}

func (c *Config) apply(o overrides) {
	g := &c.Generation
	if o.Target != nil {
		g.Target = *o.Target
	}
	if o.BatchSize != nil {
		g.BatchSize = *o.BatchSize
	}
	if o.Prompt != nil {
		g.Prompt = *o.Prompt
	}
	if o.MaxAttempts != nil {
		g.MaxAttempts = *o.MaxAttempts
	}
	if o.MaxFailures != nil {
		g.MaxFailures = *o.MaxFailures
	}
	if o.Threshold != nil {
		c.Evaluation.ConfidenceThreshold = *o.Threshold
	}

	// Explicit model settings win over the primary provider's own.
	if o.Model != nil {
		g.Model = *o.Model
		c.Providers[0].ModelName = *o.Model
	}
	if o.Temperature != nil {
		g.Temperature = *o.Temperature
		t := *o.Temperature
		c.Providers[0].Temperature = &t
	}
}

// fillProviders gives the primary provider the generation model when it names none, and
// every provider without its own temperature the generation temperature.
func (c *Config) fillProviders() {
	if p := &c.Providers[0]; p.ModelName == "" && p.Type != llm.ProviderGemini {
		p.ModelName = c.Generation.Model
	}
	for i := range c.Providers {
		if c.Providers[i].Temperature == nil {
			t := c.Generation.Temperature
			c.Providers[i].Temperature = &t
		}
	}
}

// CheckProviderKeys fails unless every configured provider has an API key.
func (c *Config) CheckProviderKeys() error {
	for i, p := range c.Providers {
		if strings.TrimSpace(p.APIKey) == "" {
			return fmt.Errorf("%w: providers[%d] (%s)", ErrMissingAPIKey, i, p.Type)
		}
	}
	return nil
}

// PrimaryModel is the model name the primary provider will request.
func (c *Config) PrimaryModel() string {
	if m := c.Providers[0].ModelName; m != "" {
		return m
	}
	return c.Generation.Model
}
