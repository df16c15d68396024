package models

import (
	"fmt"
	"time"
)

// Label is the sentiment class attached to an earnings-call excerpt.
type Label string

const (
	Positive Label = "positive"
	Negative Label = "negative"
	Neutral  Label = "neutral"
)

// labelOrder is the canonical ordering used for ids, confusion matrices and reports.
var labelOrder = []Label{Positive, Negative, Neutral}

// Labels returns the three labels in canonical order.
func Labels() []Label {
	out := make([]Label, len(labelOrder))
	copy(out, labelOrder)
	return out
}

// LabelIDs maps each label to its canonical id.
func LabelIDs() map[string]int {
	ids := make(map[string]int, len(labelOrder))
	for i, l := range labelOrder {
		ids[string(l)] = i
	}
	return ids
}

// Valid reports whether l is one of the three accepted labels. Matching is exact.
func (l Label) Valid() bool {
	switch l {
	case Positive, Negative, Neutral:
		return true
	}
	return false
}

// ParseLabel converts s into a Label without any normalisation.
func ParseLabel(s string) (Label, error) {
	l := Label(s)
	if !l.Valid() {
		return "", fmt.Errorf("unexpected label %q, expected one of %v", s, labelOrder)
	}
	return l, nil
}

// GeneratedRecord is one accepted synthetic excerpt.
type GeneratedRecord struct {
	Paragraph string `json:"paragraph" db:"paragraph"`
	Label     Label  `json:"label" db:"label"`
}

// FailureStage identifies where a model response was rejected.
type FailureStage string

const (
	StageSanitize FailureStage = "sanitize"
	StageExtract  FailureStage = "extract"
	StageParse    FailureStage = "parse"
	StageValidate FailureStage = "validate"
)

// FailureRecord captures a rejected model response. Failures are never retried.
type FailureRecord struct {
	Raw   string       `json:"raw" db:"raw"`
	Error string       `json:"error" db:"error"`
	Stage FailureStage `json:"stage" db:"stage"`
}

// PredictionRecord is the classifier output for one dataset row.
type PredictionRecord struct {
	ID             string  `json:"id"`
	Paragraph      string  `json:"paragraph"`
	PredictedLabel string  `json:"predicted_label"`
	TrueLabel      string  `json:"true_label"`
	Confidence     float64 `json:"confidence"`
}

// RunStatus is the lifecycle state of a generation run.
type RunStatus string

const (
	RunPending    RunStatus = "pending"
	RunProcessing RunStatus = "processing"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// GenerationRun is the persisted bookkeeping row of one generation loop.
type GenerationRun struct {
	ID            string     `json:"id" db:"id"`
	Status        RunStatus  `json:"status" db:"status"`
	Target        int        `json:"target" db:"target"`
	BatchSize     int        `json:"batch_size" db:"batch_size"`
	PromptName    string     `json:"prompt_name" db:"prompt_name"`
	Model         string     `json:"model" db:"model"`
	AcceptedCount int        `json:"accepted_count" db:"accepted_count"`
	FailedCount   int        `json:"failed_count" db:"failed_count"`
	Attempts      int        `json:"attempts" db:"attempts"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	ErrorMessage  *string    `json:"error_message,omitempty" db:"error_message"`
}
