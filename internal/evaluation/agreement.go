package evaluation

import (
	"fmt"

	"github.com/karlnotmarx/synthec/internal/dataset"
	"github.com/karlnotmarx/synthec/internal/models"
	"github.com/karlnotmarx/synthec/internal/stats"
)

// AgreementInput gathers the label sources compared by Agreement.
type AgreementInput struct {
	Predictions []models.PredictionRecord
	AnalystA    *dataset.Annotations
	AnalystB    *dataset.Annotations
	// Items below this model confidence go to the hard-case slice.
	Threshold float64
}

// MissingAnnotationError reports a prediction id that an annotator did not label.
type MissingAnnotationError struct {
	Annotator string
	ID        string
}

func (e *MissingAnnotationError) Error() string {
	return fmt.Sprintf("%s has no label for item %s", e.Annotator, e.ID)
}

// Consensus returns a when both annotators agree, otherwise neutral with ok set to false.
func Consensus(a, b string) (label string, ok bool) {
	if a != b {
		return string(models.Neutral), false
	}
	return a, true
}

type item struct {
	pred   models.PredictionRecord
	a, b   string
	cons   string
	agreed bool
}

// Agreement compares two annotators with each other and with the model predictions.
// Items are joined on prediction id.
func Agreement(in AgreementInput) (*models.AgreementReport, error) {
	items := make([]item, 0, len(in.Predictions))
	var a, b, m []string
	for _, p := range in.Predictions {
		la, ok := in.AnalystA.Label(p.ID)
		if !ok {
			return nil, &MissingAnnotationError{Annotator: "analyst_a", ID: p.ID}
		}
		lb, ok := in.AnalystB.Label(p.ID)
		if !ok {
			return nil, &MissingAnnotationError{Annotator: "analyst_b", ID: p.ID}
		}
		it := item{pred: p, a: la, b: lb}
		it.cons, it.agreed = Consensus(la, lb)
		items = append(items, it)
		a, b, m = append(a, la), append(b, lb), append(m, p.PredictedLabel)
	}

	for _, labels := range [][]string{a, b, m} {
		if _, err := stats.LabelIDs(labels); err != nil {
			return nil, err
		}
	}

	report := &models.AgreementReport{
		NumItems:            len(items),
		Labels:              models.LabelIDs(),
		ConfidenceThreshold: in.Threshold,
		Slices: models.ReportSlices{
			Disagreements: []models.SliceEntry{},
			HardCases:     []models.SliceEntry{},
		},
	}

	var consTrue, consPred []string
	for _, it := range items {
		if it.agreed {
			consTrue = append(consTrue, it.cons)
			consPred = append(consPred, it.pred.PredictedLabel)
		}
	}
	report.Consensus.NumConsensus = len(consTrue)
	if len(items) > 0 {
		report.Consensus.ConsensusRate = float64(len(consTrue)) / float64(len(items))
	}

	var err error
	if report.Kappa.AnalystAnalyst, err = stats.CohenKappa(a, b); err != nil {
		return nil, err
	}
	if report.Kappa.AnalystAModel, err = stats.CohenKappa(a, m); err != nil {
		return nil, err
	}
	if report.Kappa.AnalystBModel, err = stats.CohenKappa(b, m); err != nil {
		return nil, err
	}
	if report.Kappa.ConsensusModel, err = stats.CohenKappa(consTrue, consPred); err != nil {
		return nil, err
	}
	if len(consTrue) > 0 {
		if report.ModelVsConsensus, err = summarize(consTrue, consPred, 4); err != nil {
			return nil, err
		}
	}

	for _, it := range items {
		if !it.agreed {
			report.Slices.Disagreements = append(report.Slices.Disagreements, models.SliceEntry{
				ID:         it.pred.ID,
				Paragraph:  it.pred.Paragraph,
				Type:       models.HumanDisagreement,
				AnalystA:   it.a,
				AnalystB:   it.b,
				Model:      it.pred.PredictedLabel,
				Confidence: it.pred.Confidence,
			})
		}
		if it.pred.Confidence < in.Threshold {
			report.Slices.HardCases = append(report.Slices.HardCases, models.SliceEntry{
				ID:         it.pred.ID,
				Paragraph:  it.pred.Paragraph,
				Type:       models.LowModelConfidence,
				AnalystA:   it.a,
				AnalystB:   it.b,
				Model:      it.pred.PredictedLabel,
				Confidence: it.pred.Confidence,
			})
		}
	}
	for _, it := range items {
		if it.agreed && it.cons != it.pred.PredictedLabel {
			report.Slices.Disagreements = append(report.Slices.Disagreements, models.SliceEntry{
				ID:         it.pred.ID,
				Paragraph:  it.pred.Paragraph,
				Type:       models.ModelVsConsensus,
				Consensus:  it.cons,
				Model:      it.pred.PredictedLabel,
				Confidence: it.pred.Confidence,
			})
		}
	}

	return report, nil
}
