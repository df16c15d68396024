package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClassify_Service(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/classify/single", r.URL.Path)
		var req classifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Revenue grew.", req.Text)
		_, _ = w.Write([]byte(`{"label":"Positive","confidence":0.93}`))
	}))
	defer srv.Close()

	c := NewClient(Config{Kind: KindService, BaseURL: srv.URL + "/"}, zap.NewNop())
	pred, err := c.Classify(context.Background(), "Revenue grew.")
	require.NoError(t, err)
	assert.Equal(t, "positive", pred.Label)
	assert.InDelta(t, 0.93, pred.Confidence, 1e-9)
}

func TestClassify_HuggingFacePicksArgmax(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/ProsusAI/finbert", r.URL.Path)
		assert.Equal(t, "Bearer hf-token", r.Header.Get("Authorization"))
		var req inferenceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "abcd", req.Inputs)
		_, _ = w.Write([]byte(`[[{"label":"neutral","score":0.2},{"label":"negative","score":0.7},{"label":"positive","score":0.1}]]`))
	}))
	defer srv.Close()

	c := NewClient(Config{Kind: KindHuggingFace, BaseURL: srv.URL, APIToken: "hf-token", MaxChars: 4}, zap.NewNop())
	pred, err := c.Classify(context.Background(), "abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, "negative", pred.Label)
	assert.InDelta(t, 0.7, pred.Confidence, 1e-9)
}

func TestClassify_HuggingFaceFlatScores(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"label":"neutral","score":0.6},{"label":"positive","score":0.4}]`))
	}))
	defer srv.Close()

	c := NewClient(Config{Kind: KindHuggingFace, BaseURL: srv.URL}, zap.NewNop())
	pred, err := c.Classify(context.Background(), "flat")
	require.NoError(t, err)
	assert.Equal(t, "neutral", pred.Label)
}

func TestClassify_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("model loading"))
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}, zap.NewNop()).Classify(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model loading")
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	assert.NoError(t, NewClient(Config{BaseURL: srv.URL}, zap.NewNop()).HealthCheck(context.Background()))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héll", truncate("héllo", 4))
	assert.Equal(t, "héllo", truncate("héllo", 0))
	assert.Equal(t, "héllo", truncate("héllo", 10))
}
