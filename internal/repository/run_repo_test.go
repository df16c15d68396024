package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/karlnotmarx/synthec/internal/models"
)

func newTestRepo(t *testing.T) *RunRepository {
	t.Helper()
	repo, err := NewRunRepository(Config{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "synthec.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newRun(id string, created time.Time) *models.GenerationRun {
	return &models.GenerationRun{
		ID:         id,
		Status:     models.RunPending,
		Target:     10,
		BatchSize:  5,
		PromptName: "sentiment_prompt.md",
		Model:      "gpt-4o-mini",
		CreatedAt:  created,
	}
}

func TestRunRepository_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run := newRun("run-1", created)
	require.NoError(t, repo.CreateRun(ctx, run))

	got, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunPending, got.Status)
	assert.Equal(t, 10, got.Target)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.ErrorMessage)

	done := created.Add(time.Minute)
	msg := "generation stopped"
	run.Status = models.RunFailed
	run.AcceptedCount, run.FailedCount, run.Attempts = 3, 4, 7
	run.CompletedAt = &done
	run.ErrorMessage = &msg
	require.NoError(t, repo.UpdateRun(ctx, run))

	got, err = repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, got.Status)
	assert.Equal(t, 3, got.AcceptedCount)
	assert.Equal(t, 4, got.FailedCount)
	assert.Equal(t, 7, got.Attempts)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, done.Equal(*got.CompletedAt))
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, msg, *got.ErrorMessage)
}

func TestRunRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, repo.UpdateRun(ctx, newRun("missing", time.Now())), ErrRunNotFound)
}

func TestRunRepository_ListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreateRun(ctx, newRun("old", base)))
	require.NoError(t, repo.CreateRun(ctx, newRun("new", base.Add(time.Hour))))

	runs, err := repo.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "old", runs[1].ID)

	runs, err = repo.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRunRepository_RecordsAndFailuresKeepOrder(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.CreateRun(ctx, newRun("run-1", time.Now().UTC())))

	require.NoError(t, repo.SaveRecords(ctx, "run-1", []models.GeneratedRecord{
		{Paragraph: "Revenue grew über plan.", Label: models.Positive},
		{Paragraph: "Costs rose.", Label: models.Negative},
	}))
	require.NoError(t, repo.SaveRecords(ctx, "run-1", []models.GeneratedRecord{
		{Paragraph: "Guidance unchanged.", Label: models.Neutral},
	}))
	require.NoError(t, repo.SaveFailures(ctx, "run-1", []models.FailureRecord{
		{Raw: "oops", Error: "invalid JSON", Stage: models.StageParse},
		{Raw: "[]x", Error: "bad label", Stage: models.StageValidate},
	}))

	records, err := repo.ListRecords(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []models.GeneratedRecord{
		{Paragraph: "Revenue grew über plan.", Label: models.Positive},
		{Paragraph: "Costs rose.", Label: models.Negative},
		{Paragraph: "Guidance unchanged.", Label: models.Neutral},
	}, records)

	failures, err := repo.ListFailures(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, models.StageParse, failures[0].Stage)
	assert.Equal(t, "[]x", failures[1].Raw)

	stats, err := repo.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Runs)
	assert.Equal(t, 3, stats.Records)
	assert.Equal(t, 2, stats.Failures)
	assert.Equal(t, map[string]int{"positive": 1, "negative": 1, "neutral": 1}, stats.ByLabel)
	assert.Equal(t, map[string]int{"parse": 1, "validate": 1}, stats.ByStage)
}

func TestRunRepository_RejectsInvalidLabel(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.CreateRun(ctx, newRun("run-1", time.Now().UTC())))

	err := repo.SaveRecords(ctx, "run-1", []models.GeneratedRecord{
		{Paragraph: "ok", Label: models.Positive},
		{Paragraph: "bad", Label: "bullish"},
	})
	require.Error(t, err)

	records, err := repo.ListRecords(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect(Config{Driver: "mysql", DSN: "x"}, zap.NewNop())
	assert.Error(t, err)
}
