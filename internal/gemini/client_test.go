package gemini

import (
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCandidateText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text(`[{"paragraph": "x",`),
				genai.Text(` "label": "neutral"}]`),
			}},
		}},
	}
	assert.Equal(t, `[{"paragraph": "x", "label": "neutral"}]`, candidateText(resp))
}

func TestCandidateText_Empty(t *testing.T) {
	assert.Equal(t, "", candidateText(nil))
	assert.Equal(t, "", candidateText(&genai.GenerateContentResponse{}))
	assert.Equal(t, "", candidateText(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{}},
	}))
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(Config{}, zap.NewNop())
	assert.EqualError(t, err, "gemini API key is required")
}

func TestResponseText(t *testing.T) {
	text, err := responseText(&genai.GenerateContentResponse{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "", text)

	text, err = responseText(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []genai.Part{genai.Text("[]")}}}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", text)

	quota := errors.New("quota exceeded")
	_, err = responseText(nil, quota)
	assert.ErrorIs(t, err, quota)
}
