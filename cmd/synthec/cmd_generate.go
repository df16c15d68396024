package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/karlnotmarx/synthec/internal/dataset"
	"github.com/karlnotmarx/synthec/internal/generator"
	"github.com/karlnotmarx/synthec/internal/llm"
	"github.com/karlnotmarx/synthec/internal/prompts"
	"github.com/karlnotmarx/synthec/internal/repository"
	"github.com/karlnotmarx/synthec/internal/service"
)

var generateFlags struct {
	target    int
	batchSize int
	prompt    string
	output    string
	failures  string
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a labelled earnings-call dataset with the configured LLM",
	RunE:  runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.IntVarP(&generateFlags.target, "target", "n", 0, "Number of records to accept (default from config)")
	f.IntVar(&generateFlags.batchSize, "batch-size", 0, "Records requested per LLM call (default from config)")
	f.StringVar(&generateFlags.prompt, "prompt", "", "System prompt file name (default from config)")
	f.StringVarP(&generateFlags.output, "output", "o", "", "Dataset JSONL path, local or s3:// (default from config)")
	f.StringVar(&generateFlags.failures, "failures", "", "Failure log JSONL path (default from config)")
}

// newLLMClient builds the provider chain from config. Every provider must have a key.
func newLLMClient() (*llm.MultiProviderClient, error) {
	if err := cfg.CheckProviderKeys(); err != nil {
		return nil, err
	}
	client, err := llm.NewMultiProviderClient(llm.MultiProviderConfig{
		Providers:   cfg.Providers,
		MaxFailures: cfg.MaxFailuresBeforeSwitch,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init LLM client: %w", err)
	}
	logger.Info("Multi-provider client initialized", zap.Int("provider_count", len(cfg.Providers)))
	return client, nil
}

func generationOptions() generator.Options {
	g := cfg.Generation
	return generator.Options{
		Target:      g.Target,
		BatchSize:   g.BatchSize,
		PromptName:  g.Prompt,
		MaxAttempts: g.MaxAttempts,
		MaxFailures: g.MaxFailures,
	}
}

// newGenerationService wires the generator to the run repository. The caller closes the repository.
func newGenerationService(client generator.Completer) (*service.GenerationService, *repository.RunRepository, error) {
	if cfg.Database.Driver == repository.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	repo, err := repository.NewRunRepository(cfg.Database, logger.Named("repository"))
	if err != nil {
		return nil, nil, fmt.Errorf("init repository: %w", err)
	}

	gen := generator.New(client, prompts.NewLoader(cfg.Generation.PromptsDir), logger)
	return service.NewGenerationService(gen, repo, cfg.PrimaryModel(), generationOptions(), logger), repo, nil
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	req := service.RunRequest{
		Target:     generateFlags.target,
		BatchSize:  generateFlags.batchSize,
		PromptName: generateFlags.prompt,
	}
	output, failuresOut := cfg.Generation.Output, cfg.Generation.FailuresOutput
	if generateFlags.output != "" {
		output = generateFlags.output
	}
	if generateFlags.failures != "" {
		failuresOut = generateFlags.failures
	}

	client, err := newLLMClient()
	if err != nil {
		return err
	}
	defer client.Close()
	logger.Info("Primary provider", zap.Any("info", client.GetModelInfo()))

	runs, repo, err := newGenerationService(client)
	if err != nil {
		return err
	}
	defer repo.Close()

	run, res, runErr := runs.Generate(ctx, req)

	// A stopped run still keeps what it produced.
	var exhausted *generator.ExhaustedError
	if runErr != nil && (res == nil || !errors.As(runErr, &exhausted)) {
		return fmt.Errorf("generate: %w", runErr)
	}

	data, err := dataset.EncodeJSONL(res.Records)
	if err != nil {
		return err
	}
	if err := store.Write(ctx, output, data); err != nil {
		return err
	}
	failData, err := dataset.EncodeJSONL(res.Failures)
	if err != nil {
		return err
	}
	if err := store.Write(ctx, failuresOut, failData); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run: %s\n", run.ID)
	fmt.Fprintf(out, "Generated %d samples\n", len(res.Records))
	fmt.Fprintf(out, "Logged %d failures\n", len(res.Failures))
	fmt.Fprintf(out, "Saved: %s\n", output)
	fmt.Fprintf(out, "Saved: %s\n", failuresOut)
	return runErr
}
