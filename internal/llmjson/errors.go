package llmjson

import (
	"errors"
	"fmt"

	"github.com/karlnotmarx/synthec/internal/models"
)

var (
	// ErrEmptyInput is returned when there is nothing to sanitize.
	ErrEmptyInput = errors.New("empty response")
	// ErrNoArrayFound is returned when the text holds no [ ... ] span.
	ErrNoArrayFound = errors.New("no JSON array found in text")
)

// ParseError reports that the candidate text is not valid JSON.
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid JSON: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StageOf maps a Decode error to the pipeline stage that produced it.
func StageOf(err error) models.FailureStage {
	var perr *ParseError
	switch {
	case errors.Is(err, ErrEmptyInput):
		return models.StageSanitize
	case errors.Is(err, ErrNoArrayFound):
		return models.StageExtract
	case errors.As(err, &perr):
		return models.StageParse
	}
	return models.StageValidate
}
