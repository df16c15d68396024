package main

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/spf13/cobra"

	"github.com/karlnotmarx/synthec/internal/dataset"
	"github.com/karlnotmarx/synthec/internal/evaluation"
	"github.com/karlnotmarx/synthec/internal/models"
)

var agreementFlags struct {
	dataset     string
	predictions string
	analystA    string
	analystB    string
	threshold   float64
	report      string
}

var agreementCmd = &cobra.Command{
	Use:   "agreement",
	Short: "Compare two human annotators with each other and with the classifier",
	RunE:  runAgreement,
}

func init() {
	f := agreementCmd.Flags()
	f.StringVarP(&agreementFlags.dataset, "dataset", "d", "", "Dataset JSONL path (default from config)")
	f.StringVar(&agreementFlags.predictions, "predictions", "", "Predictions JSONL path (default from config)")
	f.StringVar(&agreementFlags.analystA, "analyst-a", "", "Annotator A CSV or XLSX (default from config)")
	f.StringVar(&agreementFlags.analystB, "analyst-b", "", "Annotator B CSV or XLSX (default from config)")
	f.Float64Var(&agreementFlags.threshold, "threshold", 0, "Hard-case confidence threshold (default from config)")
	f.StringVarP(&agreementFlags.report, "report", "o", "", "Report JSON output path (default from config)")
}

func runAgreement(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	e := cfg.Evaluation
	if agreementFlags.dataset != "" {
		e.Dataset = agreementFlags.dataset
	}
	if agreementFlags.predictions != "" {
		e.Predictions = agreementFlags.predictions
	}
	if agreementFlags.analystA != "" {
		e.AnalystA = agreementFlags.analystA
	}
	if agreementFlags.analystB != "" {
		e.AnalystB = agreementFlags.analystB
	}
	if cmd.Flags().Changed("threshold") {
		e.ConfidenceThreshold = agreementFlags.threshold
	}
	if agreementFlags.report != "" {
		e.AgreementReport = agreementFlags.report
	}

	// The dataset is not read, but the predictions are only meaningful next to it.
	if _, err := readRequired(ctx, e.Dataset); err != nil {
		return err
	}

	predData, err := readRequired(ctx, e.Predictions)
	if err != nil {
		return err
	}
	preds, err := dataset.DecodeJSONL[models.PredictionRecord](predData)
	if err != nil {
		return fmt.Errorf("load %s: %w", e.Predictions, err)
	}

	analystA, err := loadAnnotations(ctx, e.AnalystA)
	if err != nil {
		return err
	}
	analystB, err := loadAnnotations(ctx, e.AnalystB)
	if err != nil {
		return err
	}

	report, err := evaluation.Agreement(evaluation.AgreementInput{
		Predictions: preds,
		AnalystA:    analystA,
		AnalystB:    analystB,
		Threshold:   e.ConfidenceThreshold,
	})
	if err != nil {
		return err
	}
	report.Inputs = models.AgreementInputs{
		SyntheticData:    e.Dataset,
		AnalystA:         e.AnalystA,
		AnalystB:         e.AnalystB,
		ModelPredictions: e.Predictions,
	}

	if err := writeJSON(ctx, e.AgreementReport, report); err != nil {
		return err
	}

	printAgreement(cmd.OutOrStdout(), report)
	fmt.Fprintf(cmd.OutOrStdout(), "\nSaved: %s\n", e.AgreementReport)
	return nil
}

func loadAnnotations(ctx context.Context, p string) (*dataset.Annotations, error) {
	data, err := readRequired(ctx, p)
	if err != nil {
		return nil, err
	}
	ann, err := dataset.LoadAnnotations(path.Base(p), data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", p, err)
	}
	return ann, nil
}

func printAgreement(out io.Writer, r *models.AgreementReport) {
	fmt.Fprintf(out, "Items: %d\n", r.NumItems)
	fmt.Fprintf(out, "Consensus: %d (%.2f%%)\n", r.Consensus.NumConsensus, r.Consensus.ConsensusRate*100)
	fmt.Fprintln(out, "Cohen's kappa:")
	fmt.Fprintf(out, "  analyst A vs analyst B: %s\n", formatKappa(r.Kappa.AnalystAnalyst))
	fmt.Fprintf(out, "  analyst A vs model:     %s\n", formatKappa(r.Kappa.AnalystAModel))
	fmt.Fprintf(out, "  analyst B vs model:     %s\n", formatKappa(r.Kappa.AnalystBModel))
	fmt.Fprintf(out, "  consensus vs model:     %s\n", formatKappa(r.Kappa.ConsensusModel))
	if mc := r.ModelVsConsensus; mc != nil {
		fmt.Fprintf(out, "Model vs consensus accuracy: %.2f%% over %d items\n", mc.Accuracy*100, mc.SampleSize)
		fmt.Fprintf(out, "Confusion matrix: %v\n", mc.ConfusionMatrix)
		fmt.Fprintf(out, "Classification report:\n%s", mc.ClassificationReport)
	}
	fmt.Fprintf(out, "Disagreements: %d\n", len(r.Slices.Disagreements))
	fmt.Fprintf(out, "Hard cases (confidence < %.2f): %d\n", r.ConfidenceThreshold, len(r.Slices.HardCases))
}

func formatKappa(k *float64) string {
	if k == nil {
		return "undefined"
	}
	return fmt.Sprintf("%.4f", *k)
}
