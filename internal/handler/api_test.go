package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/karlnotmarx/synthec/internal/generator"
	"github.com/karlnotmarx/synthec/internal/llm"
	"github.com/karlnotmarx/synthec/internal/metrics"
	"github.com/karlnotmarx/synthec/internal/models"
	"github.com/karlnotmarx/synthec/internal/prompts"
	"github.com/karlnotmarx/synthec/internal/repository"
	"github.com/karlnotmarx/synthec/internal/service"
)

const batch = `Sure! [{"paragraph":"Margins widened, très bien.","label":"positive"},{"paragraph":"Churn rose.","label":"negative"}]`

type staticLLM struct{}

func (staticLLM) Complete(context.Context, string, string) (string, error) {
	return batch, nil
}

func (staticLLM) Close() error { return nil }

func (staticLLM) GetModelInfo() map[string]interface{} {
	return map[string]interface{}{"provider": "static", "model": "test-model"}
}

func newRouter(t *testing.T) (*gin.Engine, *service.GenerationService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo, err := repository.NewRunRepository(repository.Config{
		Driver: repository.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "api.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	client := llm.NewMultiProvider([]llm.Provider{staticLLM{}}, 600, 3, zap.NewNop())
	gen := generator.New(client, prompts.NewLoader(""), zap.NewNop())
	svc := service.NewGenerationService(gen, repo, "test-model", generator.Options{
		Target:      2,
		BatchSize:   2,
		PromptName:  prompts.DefaultName,
		MaxAttempts: 5,
		MaxFailures: 5,
	}, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Shutdown(ctx)
	})

	r := gin.New()
	NewHandler(svc, client, zap.NewNop()).RegisterRoutes(r)
	return r, svc
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStartRun_CompletesAndExports(t *testing.T) {
	r, _ := newRouter(t)

	w := do(r, http.MethodPost, "/api/v1/generate", `{"target":2}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var started struct {
		RunID  string `json:"run_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	require.NotEmpty(t, started.RunID)
	assert.Equal(t, string(models.RunPending), started.Status)

	require.Eventually(t, func() bool {
		w := do(r, http.MethodGet, "/api/v1/runs/"+started.RunID, "")
		var run models.GenerationRun
		return w.Code == http.StatusOK &&
			json.Unmarshal(w.Body.Bytes(), &run) == nil &&
			run.Status == models.RunCompleted
	}, 5*time.Second, 10*time.Millisecond)

	w = do(r, http.MethodGet, "/api/v1/runs/"+started.RunID+"/records", "")
	require.Equal(t, http.StatusOK, w.Code)
	var records struct {
		Records []models.GeneratedRecord `json:"records"`
		Total   int                      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	assert.Equal(t, 2, records.Total)
	assert.Equal(t, models.Positive, records.Records[0].Label)

	w = do(r, http.MethodGet, "/api/v1/runs/"+started.RunID+"/export/jsonl", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t,
		"{\"paragraph\":\"Margins widened, très bien.\",\"label\":\"positive\"}\n"+
			"{\"paragraph\":\"Churn rose.\",\"label\":\"negative\"}\n",
		w.Body.String())

	w = do(r, http.MethodGet, "/api/v1/runs/"+started.RunID+"/export/csv", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "id,paragraph,label\n"))

	w = do(r, http.MethodGet, "/api/v1/runs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), started.RunID)

	w = do(r, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats repository.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 1, stats.ByLabel["negative"])
}

func TestStartRun_RejectsInvalidBody(t *testing.T) {
	r, _ := newRouter(t)

	w := do(r, http.MethodPost, "/api/v1/generate", `{"target":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/generate", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunRoutes_UnknownRun(t *testing.T) {
	r, _ := newRouter(t)

	for _, path := range []string{
		"/api/v1/runs/nope",
		"/api/v1/runs/nope/records",
		"/api/v1/runs/nope/failures",
		"/api/v1/runs/nope/export/jsonl",
		"/api/v1/runs/nope/export/csv",
	} {
		w := do(r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestListRuns_InvalidLimit(t *testing.T) {
	r, _ := newRouter(t)
	w := do(r, http.MethodGet, "/api/v1/runs?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidate(t *testing.T) {
	r, _ := newRouter(t)

	tests := []struct {
		name  string
		text  string
		valid bool
		stage models.FailureStage
	}{
		{"fenced batch", "```json\n" + `[{"paragraph":"ok","label":"neutral"}]` + "\n```", true, ""},
		{"empty", "  ", false, models.StageSanitize},
		{"not json", "[oops]", false, models.StageParse},
		{"bad label", `[{"paragraph":"ok","label":"bullish"}]`, false, models.StageValidate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := json.Marshal(ValidateRequest{Text: tt.text})
			require.NoError(t, err)

			w := do(r, http.MethodPost, "/api/v1/validate", string(body))
			require.Equal(t, http.StatusOK, w.Code)

			var resp struct {
				Valid bool                `json:"valid"`
				Stage models.FailureStage `json:"stage"`
				Error string              `json:"error"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.valid, resp.Valid)
			assert.Equal(t, tt.stage, resp.Stage)
			if !tt.valid {
				assert.NotEmpty(t, resp.Error)
			}
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	metrics.Init()
	r, _ := newRouter(t)

	w := do(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy"`)
	assert.Contains(t, w.Body.String(), `"model":"test-model"`)

	w = do(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "synthec_generation_records_accepted_total")
}

func TestGetProviders(t *testing.T) {
	r, _ := newRouter(t)

	w := do(r, http.MethodGet, "/api/v1/providers", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Current   map[string]interface{}   `json:"current"`
		Providers []map[string]interface{} `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "static", resp.Current["provider"])
	assert.EqualValues(t, 1, resp.Current["total_providers"])
	require.Len(t, resp.Providers, 1)
	assert.Equal(t, true, resp.Providers[0]["is_current"])
	assert.EqualValues(t, 0, resp.Providers[0]["failure_count"])
}
