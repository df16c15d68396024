package stats

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sampleTrue = []string{"positive", "positive", "negative", "neutral", "neutral"}
	samplePred = []string{"positive", "negative", "negative", "neutral", "positive"}
)

func TestAccuracy(t *testing.T) {
	acc, err := Accuracy(sampleTrue, samplePred)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, acc, 1e-12)

	acc, err = Accuracy(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, acc)

	_, err = Accuracy([]string{"positive"}, nil)
	assert.Error(t, err)
}

func TestConfusionMatrix_CanonicalOrder(t *testing.T) {
	cm, err := ConfusionMatrix(sampleTrue, samplePred)
	require.NoError(t, err)
	assert.Equal(t, [][]int{
		{1, 1, 0},
		{0, 1, 0},
		{1, 0, 1},
	}, cm)
}

func TestConfusionMatrix_AbsentLabelsKeepShape(t *testing.T) {
	cm, err := ConfusionMatrix([]string{"neutral"}, []string{"neutral"})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 0, 0}, {0, 0, 0}, {0, 0, 1}}, cm)
}

func TestUnexpectedLabel(t *testing.T) {
	_, err := ConfusionMatrix([]string{"positive", "Bullish", "meh"}, []string{"positive", "neutral", "neutral"})
	var ule *UnexpectedLabelError
	require.True(t, errors.As(err, &ule))
	assert.Equal(t, []string{"Bullish", "meh"}, ule.Labels)
	assert.Contains(t, err.Error(), "Bullish")
}

func TestLabelIDs(t *testing.T) {
	ids, err := LabelIDs([]string{"neutral", "positive", "negative"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 1}, ids)
}

func TestCohenKappa(t *testing.T) {
	k, err := CohenKappa(sampleTrue, samplePred)
	require.NoError(t, err)
	require.NotNil(t, k)
	assert.InDelta(t, 0.28/0.68, *k, 1e-12)
}

func TestCohenKappa_PerfectAgreement(t *testing.T) {
	k, err := CohenKappa(sampleTrue, sampleTrue)
	require.NoError(t, err)
	require.NotNil(t, k)
	assert.InDelta(t, 1.0, *k, 1e-12)
}

func TestCohenKappa_Undefined(t *testing.T) {
	k, err := CohenKappa([]string{"neutral", "neutral"}, []string{"neutral", "neutral"})
	require.NoError(t, err)
	assert.Nil(t, k)

	k, err = CohenKappa(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, k)
}

func TestCohenKappa_BadLabel(t *testing.T) {
	_, err := CohenKappa([]string{"up"}, []string{"positive"})
	var ule *UnexpectedLabelError
	assert.ErrorAs(t, err, &ule)
}

func TestClassificationReport(t *testing.T) {
	r, err := ClassificationReport(sampleTrue, samplePred)
	require.NoError(t, err)
	require.Len(t, r.Classes, 3)

	pos, neg, neu := r.Classes[0], r.Classes[1], r.Classes[2]
	assert.Equal(t, "positive", pos.Label)
	assert.InDelta(t, 0.5, pos.Precision, 1e-12)
	assert.InDelta(t, 0.5, pos.Recall, 1e-12)
	assert.InDelta(t, 0.5, pos.F1, 1e-12)
	assert.Equal(t, 2, pos.Support)

	assert.InDelta(t, 0.5, neg.Precision, 1e-12)
	assert.InDelta(t, 1.0, neg.Recall, 1e-12)
	assert.InDelta(t, 2.0/3.0, neg.F1, 1e-12)

	assert.InDelta(t, 1.0, neu.Precision, 1e-12)
	assert.InDelta(t, 0.5, neu.Recall, 1e-12)
	assert.Equal(t, 2, neu.Support)

	assert.InDelta(t, 0.6, r.Accuracy, 1e-12)
	assert.InDelta(t, 2.0/3.0, r.MacroAvg.Precision, 1e-12)
	assert.InDelta(t, 0.7, r.WeightedAvg.Precision, 1e-12)
	assert.Equal(t, 5, r.WeightedAvg.Support)
}

func TestClassificationReport_ZeroDivision(t *testing.T) {
	r, err := ClassificationReport([]string{"positive", "positive"}, []string{"neutral", "neutral"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.Classes[0].Precision)
	assert.Equal(t, 0.0, r.Classes[0].F1)
	assert.Equal(t, 0.0, r.Classes[2].Precision)
	assert.Equal(t, 0.0, r.Accuracy)
}

func TestReportText(t *testing.T) {
	r, err := ClassificationReport(sampleTrue, samplePred)
	require.NoError(t, err)

	lines := strings.Split(r.Text(2), "\n")
	assert.Equal(t, "              precision    recall  f1-score   support", lines[0])
	assert.Equal(t, "", lines[1])
	assert.Equal(t, "    positive       0.50      0.50      0.50         2", lines[2])
	assert.Equal(t, "    accuracy                           0.60         5", lines[6])
	assert.Equal(t, "weighted avg       0.70      0.60      0.60         5", lines[8])

	assert.Contains(t, r.Text(4), "0.6667")
}
