// Package evaluation scores a sentiment classifier against generated labels and human annotators.
package evaluation

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/karlnotmarx/synthec/internal/classifier"
	"github.com/karlnotmarx/synthec/internal/models"
	"github.com/karlnotmarx/synthec/internal/stats"
)

// Classifier predicts a sentiment label for one text.
type Classifier interface {
	Classify(ctx context.Context, text string) (*classifier.Prediction, error)
}

// ModelEvaluator runs a classifier over a generated dataset.
type ModelEvaluator struct {
	clf    Classifier
	model  string
	digits int
	logger *zap.Logger
}

func NewModelEvaluator(clf Classifier, model string, logger *zap.Logger) *ModelEvaluator {
	return &ModelEvaluator{
		clf:    clf,
		model:  model,
		digits: 2,
		logger: logger.Named("model_eval"),
	}
}

// Evaluate classifies every record in order. Prediction ids are 1-based row numbers.
func (e *ModelEvaluator) Evaluate(ctx context.Context, records []models.GeneratedRecord) ([]models.PredictionRecord, *models.ModelReport, error) {
	e.logger.Info("Evaluating dataset", zap.Int("rows", len(records)), zap.String("model", e.model))

	preds := make([]models.PredictionRecord, 0, len(records))
	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		p, err := e.clf.Classify(ctx, r.Paragraph)
		if err != nil {
			return nil, nil, fmt.Errorf("classify row %d: %w", i+1, err)
		}
		preds = append(preds, models.PredictionRecord{
			ID:             strconv.Itoa(i + 1),
			Paragraph:      r.Paragraph,
			PredictedLabel: p.Label,
			TrueLabel:      string(r.Label),
			Confidence:     p.Confidence,
		})
		if (i+1)%50 == 0 {
			e.logger.Info("Progress", zap.Int("done", i+1), zap.Int("total", len(records)))
		}
	}

	report, err := e.Report(preds)
	if err != nil {
		return nil, nil, err
	}
	return preds, report, nil
}

// Report summarises predictions that have already been made.
func (e *ModelEvaluator) Report(preds []models.PredictionRecord) (*models.ModelReport, error) {
	yTrue := make([]string, len(preds))
	yPred := make([]string, len(preds))
	var confSum float64
	for i, p := range preds {
		yTrue[i], yPred[i] = p.TrueLabel, p.PredictedLabel
		confSum += p.Confidence
	}

	summary, err := summarize(yTrue, yPred, e.digits)
	if err != nil {
		return nil, err
	}

	report := &models.ModelReport{
		Model:                e.model,
		NumSamples:           len(preds),
		Accuracy:             summary.Accuracy,
		Labels:               models.Labels(),
		ConfusionMatrix:      summary.ConfusionMatrix,
		ClassificationReport: summary.ClassificationReport,
	}
	if len(preds) > 0 {
		avg := confSum / float64(len(preds))
		report.AvgConfidence = &avg
	}
	return report, nil
}

// summarize computes accuracy, confusion matrix and text report. Labels outside the set are fatal.
func summarize(yTrue, yPred []string, digits int) (*models.ClassificationSummary, error) {
	cm, err := stats.ConfusionMatrix(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	acc, err := stats.Accuracy(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	rep, err := stats.ClassificationReport(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	return &models.ClassificationSummary{
		SampleSize:           len(yTrue),
		Accuracy:             acc,
		ConfusionMatrix:      cm,
		ClassificationReport: rep.Text(digits),
	}, nil
}
