// Package generator drives the LLM until enough schema-valid records have been collected.
package generator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/karlnotmarx/synthec/internal/llmjson"
	"github.com/karlnotmarx/synthec/internal/metrics"
	"github.com/karlnotmarx/synthec/internal/models"
	"github.com/karlnotmarx/synthec/internal/prompts"
	"github.com/karlnotmarx/synthec/internal/schema"
)

// Completer is the slice of an LLM provider the generator needs.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// PromptSource resolves a system prompt by name.
type PromptSource interface {
	Load(name string) (string, error)
}

// Options controls a single generation run.
type Options struct {
	Target      int
	BatchSize   int
	PromptName  string
	MaxAttempts int
	MaxFailures int
	// OnProgress, if set, is called after every attempt.
	OnProgress func(Progress)
}

// Progress is a snapshot taken after each attempt.
type Progress struct {
	Attempts int
	Accepted int
	Failed   int
}

// Result of a run. On ExhaustedError it holds whatever was collected before the cap.
type Result struct {
	Records  []models.GeneratedRecord
	Failures []models.FailureRecord
	Attempts int
}

// ExhaustedError reports that a run hit its attempt or failure cap before reaching its target.
type ExhaustedError struct {
	Target   int
	Accepted int
	Attempts int
	Failures int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("generation stopped after %d attempts with %d/%d records and %d failures",
		e.Attempts, e.Accepted, e.Target, e.Failures)
}

// Generator runs the call, decode, validate loop against one provider.
type Generator struct {
	llm     Completer
	prompts PromptSource
	logger  *zap.Logger
}

func New(llm Completer, prompts PromptSource, logger *zap.Logger) *Generator {
	return &Generator{
		llm:     llm,
		prompts: prompts,
		logger:  logger.Named("generator"),
	}
}

// Run calls the model sequentially until opts.Target records are accepted.
// Malformed or non-conforming responses are recorded as failures and the loop continues.
// Provider errors and context cancellation abort the run.
func (g *Generator) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Target < 0 {
		return nil, fmt.Errorf("target must not be negative, got %d", opts.Target)
	}
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.PromptName == "" {
		opts.PromptName = prompts.DefaultName
	}

	systemPrompt, err := g.prompts.Load(opts.PromptName)
	if err != nil {
		return nil, fmt.Errorf("load prompt: %w", err)
	}
	userPrompt := prompts.UserPrompt(opts.BatchSize)

	result := &Result{Records: make([]models.GeneratedRecord, 0, opts.Target)}

	g.logger.Info("Starting generation",
		zap.Int("target", opts.Target),
		zap.Int("batch_size", opts.BatchSize),
		zap.String("prompt", opts.PromptName),
		zap.Int("max_attempts", opts.MaxAttempts),
		zap.Int("max_failures", opts.MaxFailures))

	for len(result.Records) < opts.Target {
		if capReached(opts, result) {
			exhausted := &ExhaustedError{
				Target:   opts.Target,
				Accepted: len(result.Records),
				Attempts: result.Attempts,
				Failures: len(result.Failures),
			}
			g.logger.Warn("Generation cap reached", zap.Error(exhausted))
			return result, exhausted
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		result.Attempts++
		raw, err := g.llm.Complete(ctx, systemPrompt, userPrompt)
		if err != nil {
			return result, fmt.Errorf("attempt %d: %w", result.Attempts, err)
		}

		records, err := Parse(raw)
		if err != nil {
			g.recordFailure(result, raw, err)
		} else {
			remaining := opts.Target - len(result.Records)
			if len(records) > remaining {
				records = records[:remaining]
			}
			result.Records = append(result.Records, records...)
			metrics.RecordsAcceptedTotal.Add(float64(len(records)))

			g.logger.Info("Batch accepted",
				zap.Int("attempt", result.Attempts),
				zap.Int("accepted", len(records)),
				zap.Int("total", len(result.Records)),
				zap.Int("target", opts.Target))
		}

		if opts.OnProgress != nil {
			opts.OnProgress(Progress{
				Attempts: result.Attempts,
				Accepted: len(result.Records),
				Failed:   len(result.Failures),
			})
		}
	}

	g.logger.Info("Generation completed",
		zap.Int("records", len(result.Records)),
		zap.Int("failures", len(result.Failures)),
		zap.Int("attempts", result.Attempts))

	return result, nil
}

func capReached(opts Options, result *Result) bool {
	if opts.MaxAttempts > 0 && result.Attempts >= opts.MaxAttempts {
		return true
	}
	return opts.MaxFailures > 0 && len(result.Failures) >= opts.MaxFailures
}

// Parse turns raw model text into records. Errors map to a stage via llmjson.StageOf.
func Parse(raw string) ([]models.GeneratedRecord, error) {
	data, err := llmjson.Decode(raw)
	if err != nil {
		return nil, err
	}
	return schema.Records(data)
}

func (g *Generator) recordFailure(result *Result, raw string, err error) {
	stage := llmjson.StageOf(err)
	result.Failures = append(result.Failures, models.FailureRecord{
		Raw:   raw,
		Error: err.Error(),
		Stage: stage,
	})
	metrics.GenerationFailuresTotal.WithLabelValues(string(stage)).Inc()

	var violation *schema.Violation
	if errors.As(err, &violation) {
		g.logger.Warn("Schema validation failed",
			zap.Int("attempt", result.Attempts),
			zap.Int("item", violation.Index),
			zap.String("field", violation.Field),
			zap.String("reason", violation.Reason))
		return
	}
	g.logger.Warn("Failed to parse model output",
		zap.Int("attempt", result.Attempts),
		zap.String("stage", string(stage)),
		zap.Error(err))
}
