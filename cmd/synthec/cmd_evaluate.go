package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/karlnotmarx/synthec/internal/classifier"
	"github.com/karlnotmarx/synthec/internal/dataset"
	"github.com/karlnotmarx/synthec/internal/evaluation"
)

var evaluateFlags struct {
	dataset     string
	predictions string
	report      string
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score the sentiment classifier against the generated labels",
	RunE:  runEvaluate,
}

func init() {
	f := evaluateCmd.Flags()
	f.StringVarP(&evaluateFlags.dataset, "dataset", "d", "", "Dataset JSONL path (default from config)")
	f.StringVar(&evaluateFlags.predictions, "predictions", "", "Predictions JSONL output path (default from config)")
	f.StringVarP(&evaluateFlags.report, "report", "o", "", "Report JSON output path (default from config)")
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	e := cfg.Evaluation
	if evaluateFlags.dataset != "" {
		e.Dataset = evaluateFlags.dataset
	}
	if evaluateFlags.predictions != "" {
		e.Predictions = evaluateFlags.predictions
	}
	if evaluateFlags.report != "" {
		e.ModelReport = evaluateFlags.report
	}

	data, err := readRequired(ctx, e.Dataset)
	if err != nil {
		return err
	}
	records, err := dataset.DecodeRecords(data)
	if err != nil {
		return fmt.Errorf("load %s: %w", e.Dataset, err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Loaded %d rows\n", len(records))

	clf := classifier.NewClient(cfg.Classifier, logger)
	if err := clf.HealthCheck(ctx); err != nil {
		logger.Warn("Classifier health check failed", zap.Error(err))
	}

	preds, report, err := evaluation.NewModelEvaluator(clf, clf.Model(), logger).Evaluate(ctx, records)
	if err != nil {
		return err
	}
	report.DatasetPath = e.Dataset
	report.PredictionsPath = e.Predictions

	predData, err := dataset.EncodeJSONL(preds)
	if err != nil {
		return err
	}
	if err := store.Write(ctx, e.Predictions, predData); err != nil {
		return err
	}
	if err := writeJSON(ctx, e.ModelReport, report); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nAccuracy: %.2f%%\n", report.Accuracy*100)
	fmt.Fprintf(out, "Confusion matrix: %v\n", report.ConfusionMatrix)
	fmt.Fprintf(out, "Classification report:\n%s\n", report.ClassificationReport)
	fmt.Fprintf(out, "Saved: %s\n", e.Predictions)
	fmt.Fprintf(out, "Saved: %s\n", e.ModelReport)
	return nil
}
