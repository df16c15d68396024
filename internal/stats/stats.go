// Package stats computes classification and agreement metrics over sentiment labels.
//
// Labels are always indexed in the canonical order positive, negative, neutral, so matrices and
// reports line up regardless of which labels happen to appear in the data.
package stats

import (
	"fmt"
	"sort"
	"strings"

	"github.com/karlnotmarx/synthec/internal/models"
)

// UnexpectedLabelError lists label values outside the sentiment label set.
type UnexpectedLabelError struct {
	Labels []string
}

func (e *UnexpectedLabelError) Error() string {
	return fmt.Sprintf("unexpected labels: %v, expected one of %v", e.Labels, models.Labels())
}

// LabelIDs maps labels to their canonical ids. Every distinct bad value is reported at once.
func LabelIDs(labels []string) ([]int, error) {
	ids := models.LabelIDs()
	out := make([]int, len(labels))
	bad := map[string]struct{}{}
	for i, l := range labels {
		id, ok := ids[l]
		if !ok {
			bad[l] = struct{}{}
			continue
		}
		out[i] = id
	}
	if len(bad) > 0 {
		names := make([]string, 0, len(bad))
		for l := range bad {
			names = append(names, l)
		}
		sort.Strings(names)
		return nil, &UnexpectedLabelError{Labels: names}
	}
	return out, nil
}

func pairIDs(yTrue, yPred []string) ([]int, []int, error) {
	if len(yTrue) != len(yPred) {
		return nil, nil, fmt.Errorf("length mismatch: %d true labels, %d predicted", len(yTrue), len(yPred))
	}
	t, err := LabelIDs(yTrue)
	if err != nil {
		return nil, nil, err
	}
	p, err := LabelIDs(yPred)
	if err != nil {
		return nil, nil, err
	}
	return t, p, nil
}

// Accuracy is the share of positions where the labels match. Empty input scores 0.
func Accuracy(yTrue, yPred []string) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, fmt.Errorf("length mismatch: %d true labels, %d predicted", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return 0, nil
	}
	hits := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue)), nil
}

// ConfusionMatrix returns counts with rows as true labels and columns as predictions.
func ConfusionMatrix(yTrue, yPred []string) ([][]int, error) {
	t, p, err := pairIDs(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	return confusion(t, p), nil
}

func confusion(t, p []int) [][]int {
	n := len(models.Labels())
	cm := make([][]int, n)
	for i := range cm {
		cm[i] = make([]int, n)
	}
	for i := range t {
		cm[t[i]][p[i]]++
	}
	return cm
}

// CohenKappa measures agreement between two raters beyond chance.
// It returns nil when kappa is undefined: no items, or chance agreement of exactly 1.
func CohenKappa(a, b []string) (*float64, error) {
	ta, tb, err := pairIDs(a, b)
	if err != nil {
		return nil, err
	}
	if len(ta) == 0 {
		return nil, nil
	}

	cm := confusion(ta, tb)
	n := float64(len(ta))
	var observed, expected float64
	for i := range cm {
		var rowSum, colSum int
		for j := range cm {
			rowSum += cm[i][j]
			colSum += cm[j][i]
		}
		observed += float64(cm[i][i])
		expected += float64(rowSum) * float64(colSum)
	}
	observed /= n
	expected /= n * n

	if expected >= 1 {
		return nil, nil
	}
	k := (observed - expected) / (1 - expected)
	return &k, nil
}

// ClassMetrics are precision, recall and F1 for one label.
type ClassMetrics struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// Report is a per-class breakdown with accuracy and macro and weighted averages.
type Report struct {
	Classes     []ClassMetrics `json:"classes"`
	Accuracy    float64        `json:"accuracy"`
	MacroAvg    ClassMetrics   `json:"macro_avg"`
	WeightedAvg ClassMetrics   `json:"weighted_avg"`
}

// ClassificationReport computes precision, recall and F1 per label. Undefined ratios are 0.
func ClassificationReport(yTrue, yPred []string) (*Report, error) {
	t, p, err := pairIDs(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	cm := confusion(t, p)
	labels := models.Labels()

	r := &Report{Classes: make([]ClassMetrics, len(labels))}
	total := len(t)
	var hits int
	for i, l := range labels {
		var predicted, support int
		for j := range labels {
			predicted += cm[j][i]
			support += cm[i][j]
		}
		tp := cm[i][i]
		hits += tp

		m := ClassMetrics{
			Label:     string(l),
			Precision: ratio(tp, predicted),
			Recall:    ratio(tp, support),
			Support:   support,
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes[i] = m

		r.MacroAvg.Precision += m.Precision / float64(len(labels))
		r.MacroAvg.Recall += m.Recall / float64(len(labels))
		r.MacroAvg.F1 += m.F1 / float64(len(labels))
		if total > 0 {
			w := float64(support) / float64(total)
			r.WeightedAvg.Precision += m.Precision * w
			r.WeightedAvg.Recall += m.Recall * w
			r.WeightedAvg.F1 += m.F1 * w
		}
	}

	r.Accuracy = ratio(hits, total)
	r.MacroAvg.Label, r.MacroAvg.Support = "macro avg", total
	r.WeightedAvg.Label, r.WeightedAvg.Support = "weighted avg", total
	return r, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Text renders the report as a fixed-width table with the given number of decimals.
func (r *Report) Text(digits int) string {
	width := len(r.WeightedAvg.Label)
	for _, c := range r.Classes {
		if len(c.Label) > width {
			width = len(c.Label)
		}
	}
	if digits > width {
		width = digits
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*s  %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	row := func(c ClassMetrics) {
		fmt.Fprintf(&b, "%*s  %9.*f %9.*f %9.*f %9d\n",
			width, c.Label, digits, c.Precision, digits, c.Recall, digits, c.F1, c.Support)
	}
	for _, c := range r.Classes {
		row(c)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s  %9s %9s %9.*f %9d\n", width, "accuracy", "", "", digits, r.Accuracy, r.MacroAvg.Support)
	row(r.MacroAvg)
	row(r.WeightedAvg)
	return b.String()
}
