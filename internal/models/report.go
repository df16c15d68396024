package models

// ModelReport summarises a classifier run over a labelled dataset.
type ModelReport struct {
	DatasetPath          string   `json:"dataset_path"`
	PredictionsPath      string   `json:"predictions_path,omitempty"`
	Model                string   `json:"model,omitempty"`
	NumSamples           int      `json:"num_samples"`
	Accuracy             float64  `json:"accuracy"`
	Labels               []Label  `json:"labels"`
	AvgConfidence        *float64 `json:"avg_confidence"`
	ConfusionMatrix      [][]int  `json:"confusion_matrix"`
	ClassificationReport string   `json:"classification_report"`
}

// AgreementInputs records where each label source was read from.
type AgreementInputs struct {
	SyntheticData    string `json:"synthetic_data,omitempty"`
	AnalystA         string `json:"analyst_a"`
	AnalystB         string `json:"analyst_b"`
	ModelPredictions string `json:"model_predictions"`
}

// ConsensusSummary counts items on which both human annotators agree.
type ConsensusSummary struct {
	NumConsensus  int     `json:"num_consensus"`
	ConsensusRate float64 `json:"consensus_rate"`
}

// KappaScores holds pairwise Cohen's kappa; nil means undefined for the inputs.
type KappaScores struct {
	AnalystAnalyst *float64 `json:"analyst_analyst"`
	AnalystAModel  *float64 `json:"analyst_a_model"`
	AnalystBModel  *float64 `json:"analyst_b_model"`
	ConsensusModel *float64 `json:"consensus_model"`
}

// ClassificationSummary is accuracy plus confusion matrix and text report for one comparison.
type ClassificationSummary struct {
	SampleSize           int     `json:"sample_size"`
	Accuracy             float64 `json:"accuracy"`
	ConfusionMatrix      [][]int `json:"confusion_matrix"`
	ClassificationReport string  `json:"classification_report"`
}

// DisagreementKind tags an entry of the disagreement or hard-case slices.
type DisagreementKind string

const (
	HumanDisagreement  DisagreementKind = "human_disagreement"
	ModelVsConsensus   DisagreementKind = "model_vs_consensus"
	LowModelConfidence DisagreementKind = "low_model_confidence"
)

// SliceEntry is one item surfaced for manual review.
type SliceEntry struct {
	ID         string           `json:"id"`
	Paragraph  string           `json:"paragraph"`
	Type       DisagreementKind `json:"type"`
	AnalystA   string           `json:"analyst_a,omitempty"`
	AnalystB   string           `json:"analyst_b,omitempty"`
	Consensus  string           `json:"consensus,omitempty"`
	Model      string           `json:"model"`
	Confidence float64          `json:"model_confidence"`
}

// ReportSlices groups the review slices of an agreement report.
type ReportSlices struct {
	Disagreements []SliceEntry `json:"disagreements"`
	HardCases     []SliceEntry `json:"hard_cases_low_confidence"`
}

// AgreementReport compares two human annotators and the model. It is recomputed on every run.
type AgreementReport struct {
	Inputs              AgreementInputs        `json:"inputs"`
	NumItems            int                    `json:"num_items"`
	Labels              map[string]int         `json:"labels"`
	ConfidenceThreshold float64                `json:"confidence_threshold"`
	Consensus           ConsensusSummary       `json:"analysts_consensus"`
	Kappa               KappaScores            `json:"cohen_kappa_score"`
	ModelVsConsensus    *ClassificationSummary `json:"model_vs_consensus,omitempty"`
	Slices              ReportSlices           `json:"slices"`
}
