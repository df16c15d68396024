// synthec generates a synthetic earnings-call sentiment dataset with an LLM, scores a
// sentiment classifier on it and compares the classifier with human annotators.
//
// Usage:
//
//	synthec generate [--target N] [--batch-size N] [--output path]
//	synthec evaluate [--dataset path]
//	synthec agreement [--analyst-a path] [--analyst-b path] [--threshold 0.6]
//	synthec validate <file|->
//	synthec serve
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/karlnotmarx/synthec/internal/config"
	"github.com/karlnotmarx/synthec/internal/metrics"
	"github.com/karlnotmarx/synthec/internal/storage"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	envFile    string
}

// Set by the root command before any subcommand runs.
var (
	cfg    *config.Config
	logger *zap.Logger
	store  *storage.Store
)

var rootCmd = &cobra.Command{
	Use:           "synthec",
	Short:         "Synthetic earnings-call sentiment data and classifier evaluation",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&rootFlags.configPath, "config", "c", "configs/config.yml", "Path to the YAML config file")
	pf.StringVar(&rootFlags.envFile, "env-file", "", "Path to a .env file (default: ./.env when present)")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(agreementCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func setup(*cobra.Command, []string) error {
	var err error
	cfg, err = config.LoadConfig(rootFlags.configPath, rootFlags.envFile)
	if err != nil {
		return err
	}

	logger, err = newLogger(cfg.Log.Development, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	metrics.Init()
	store = storage.New(cfg.Storage, logger.Named("storage"))
	return nil
}

func newLogger(development bool, level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = lvl
	return zc.Build()
}

// readRequired reads an input file, failing with *storage.MissingFileError when it is absent.
func readRequired(ctx context.Context, path string) ([]byte, error) {
	ok, err := store.Exists(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &storage.MissingFileError{Path: path}
	}
	return store.Read(ctx, path)
}

// writeJSON stores v as indented JSON with non-ASCII text kept as is.
func writeJSON(ctx context.Context, path string, v interface{}) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return store.Write(ctx, path, buf.Bytes())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
