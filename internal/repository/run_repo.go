// Package repository persists generation runs with their accepted records and failures.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/karlnotmarx/synthec/internal/models"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// RunRepository handles data storage
type RunRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewRunRepository connects, migrates and returns a repository.
func NewRunRepository(cfg Config, logger *zap.Logger) (*RunRepository, error) {
	db, err := Connect(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("Run repository initialized", zap.String("driver", cfg.Driver))
	return &RunRepository{db: db, logger: logger}, nil
}

// CreateRun inserts a new run row.
func (r *RunRepository) CreateRun(ctx context.Context, run *models.GenerationRun) error {
	query := r.db.Rebind(`
		INSERT INTO generation_runs (
			id, status, target, batch_size, prompt_name, model,
			accepted_count, failed_count, attempts, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		run.ID, string(run.Status), run.Target, run.BatchSize, run.PromptName, run.Model,
		run.AcceptedCount, run.FailedCount, run.Attempts, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// UpdateRun updates run progress
func (r *RunRepository) UpdateRun(ctx context.Context, run *models.GenerationRun) error {
	query := r.db.Rebind(`
		UPDATE generation_runs
		SET status = ?, accepted_count = ?, failed_count = ?, attempts = ?, completed_at = ?, error_message = ?
		WHERE id = ?
	`)

	res, err := r.db.ExecContext(ctx, query,
		string(run.Status), run.AcceptedCount, run.FailedCount, run.Attempts, run.CompletedAt, run.ErrorMessage, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun retrieves a run by ID
func (r *RunRepository) GetRun(ctx context.Context, id string) (*models.GenerationRun, error) {
	query := r.db.Rebind(`
		SELECT id, status, target, batch_size, prompt_name, model, accepted_count,
		       failed_count, attempts, created_at, completed_at, error_message
		FROM generation_runs
		WHERE id = ?
	`)

	run := &models.GenerationRun{}
	err := r.db.GetContext(ctx, run, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]models.GenerationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.Rebind(`
		SELECT id, status, target, batch_size, prompt_name, model, accepted_count,
		       failed_count, attempts, created_at, completed_at, error_message
		FROM generation_runs
		ORDER BY created_at DESC
		LIMIT ?
	`)

	runs := []models.GenerationRun{}
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// SaveRecords appends accepted records to a run, continuing its position sequence.
func (r *RunRepository) SaveRecords(ctx context.Context, runID string, records []models.GeneratedRecord) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		start, err := nextPosition(ctx, tx, "generated_records", runID)
		if err != nil {
			return err
		}
		stmt, err := tx.PreparexContext(ctx, tx.Rebind(
			`INSERT INTO generated_records (run_id, position, paragraph, label) VALUES (?, ?, ?, ?)`))
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, rec := range records {
			if _, err := stmt.ExecContext(ctx, runID, start+i, rec.Paragraph, string(rec.Label)); err != nil {
				return fmt.Errorf("failed to save record %d: %w", start+i, err)
			}
		}
		return nil
	})
}

// SaveFailures appends failure records to a run.
func (r *RunRepository) SaveFailures(ctx context.Context, runID string, failures []models.FailureRecord) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		start, err := nextPosition(ctx, tx, "generation_failures", runID)
		if err != nil {
			return err
		}
		stmt, err := tx.PreparexContext(ctx, tx.Rebind(
			`INSERT INTO generation_failures (run_id, position, raw, error, stage) VALUES (?, ?, ?, ?, ?)`))
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, f := range failures {
			if _, err := stmt.ExecContext(ctx, runID, start+i, f.Raw, f.Error, string(f.Stage)); err != nil {
				return fmt.Errorf("failed to save failure %d: %w", start+i, err)
			}
		}
		return nil
	})
}

// table is one of two fixed names, never user input.
func nextPosition(ctx context.Context, tx *sqlx.Tx, table, runID string) (int, error) {
	var next int
	query := tx.Rebind(fmt.Sprintf(`SELECT COALESCE(MAX(position), 0) + 1 FROM %s WHERE run_id = ?`, table))
	if err := tx.GetContext(ctx, &next, query, runID); err != nil {
		return 0, fmt.Errorf("failed to read %s position: %w", table, err)
	}
	return next, nil
}

func (r *RunRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListRecords returns a run's accepted records in acceptance order.
func (r *RunRepository) ListRecords(ctx context.Context, runID string) ([]models.GeneratedRecord, error) {
	query := r.db.Rebind(`
		SELECT paragraph, label FROM generated_records
		WHERE run_id = ?
		ORDER BY position
	`)
	records := []models.GeneratedRecord{}
	if err := r.db.SelectContext(ctx, &records, query, runID); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return records, nil
}

// ListFailures returns a run's failures in the order they happened.
func (r *RunRepository) ListFailures(ctx context.Context, runID string) ([]models.FailureRecord, error) {
	query := r.db.Rebind(`
		SELECT raw, error, stage FROM generation_failures
		WHERE run_id = ?
		ORDER BY position
	`)
	failures := []models.FailureRecord{}
	if err := r.db.SelectContext(ctx, &failures, query, runID); err != nil {
		return nil, fmt.Errorf("failed to list failures: %w", err)
	}
	return failures, nil
}

// Stats aggregates stored runs, records and failures.
type Stats struct {
	Runs     int            `json:"runs"`
	Records  int            `json:"records"`
	Failures int            `json:"failures"`
	ByLabel  map[string]int `json:"by_label"`
	ByStage  map[string]int `json:"by_stage"`
}

type groupCount struct {
	Name  string `db:"name"`
	Count int    `db:"count"`
}

// GetStats returns statistics about stored runs
func (r *RunRepository) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{ByLabel: map[string]int{}, ByStage: map[string]int{}}

	for _, c := range []struct {
		dst   *int
		query string
	}{
		{&s.Runs, "SELECT COUNT(*) FROM generation_runs"},
		{&s.Records, "SELECT COUNT(*) FROM generated_records"},
		{&s.Failures, "SELECT COUNT(*) FROM generation_failures"},
	} {
		if err := r.db.GetContext(ctx, c.dst, c.query); err != nil {
			return nil, fmt.Errorf("failed to count: %w", err)
		}
	}

	var byLabel []groupCount
	if err := r.db.SelectContext(ctx, &byLabel,
		`SELECT label AS name, COUNT(*) AS count FROM generated_records GROUP BY label`); err != nil {
		return nil, fmt.Errorf("failed to group records: %w", err)
	}
	for _, g := range byLabel {
		s.ByLabel[g.Name] = g.Count
	}

	var byStage []groupCount
	if err := r.db.SelectContext(ctx, &byStage,
		`SELECT stage AS name, COUNT(*) AS count FROM generation_failures GROUP BY stage`); err != nil {
		return nil, fmt.Errorf("failed to group failures: %w", err)
	}
	for _, g := range byStage {
		s.ByStage[g.Name] = g.Count
	}

	return s, nil
}

// Close closes the database connection
func (r *RunRepository) Close() error {
	return r.db.Close()
}
