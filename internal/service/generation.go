// Package service runs generation jobs and exposes their persisted results.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/karlnotmarx/synthec/internal/generator"
	"github.com/karlnotmarx/synthec/internal/models"
	"github.com/karlnotmarx/synthec/internal/repository"
)

// ErrRunInProgress is returned when a run is requested while another one is still going.
var ErrRunInProgress = errors.New("a generation run is already in progress")

// Runner executes one generation loop.
type Runner interface {
	Run(ctx context.Context, opts generator.Options) (*generator.Result, error)
}

// RunStore persists runs and their output.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.GenerationRun) error
	UpdateRun(ctx context.Context, run *models.GenerationRun) error
	GetRun(ctx context.Context, id string) (*models.GenerationRun, error)
	ListRuns(ctx context.Context, limit int) ([]models.GenerationRun, error)
	SaveRecords(ctx context.Context, runID string, records []models.GeneratedRecord) error
	SaveFailures(ctx context.Context, runID string, failures []models.FailureRecord) error
	ListRecords(ctx context.Context, runID string) ([]models.GeneratedRecord, error)
	ListFailures(ctx context.Context, runID string) ([]models.FailureRecord, error)
	GetStats(ctx context.Context) (*repository.Stats, error)
}

// RunRequest overrides the configured defaults for one run. Zero fields keep the default.
type RunRequest struct {
	Target      int    `json:"target" binding:"omitempty,min=1,max=10000"`
	BatchSize   int    `json:"batch_size" binding:"omitempty,min=1,max=100"`
	PromptName  string `json:"prompt_name"`
	MaxAttempts int    `json:"max_attempts" binding:"omitempty,min=1"`
	MaxFailures int    `json:"max_failures" binding:"omitempty,min=1"`
}

// GenerationService handles generation run business logic
type GenerationService struct {
	runner   Runner
	repo     RunStore
	model    string
	defaults generator.Options
	logger   *zap.Logger

	mu     sync.Mutex
	busy   bool
	active string
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGenerationService creates a new generation service
func NewGenerationService(runner Runner, repo RunStore, model string, defaults generator.Options, logger *zap.Logger) *GenerationService {
	ctx, cancel := context.WithCancel(context.Background())
	return &GenerationService{
		runner:   runner,
		repo:     repo,
		model:    model,
		defaults: defaults,
		logger:   logger.Named("service"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *GenerationService) options(req RunRequest) generator.Options {
	opts := s.defaults
	if req.Target > 0 {
		opts.Target = req.Target
	}
	if req.BatchSize > 0 {
		opts.BatchSize = req.BatchSize
	}
	if req.PromptName != "" {
		opts.PromptName = req.PromptName
	}
	if req.MaxAttempts > 0 {
		opts.MaxAttempts = req.MaxAttempts
	}
	if req.MaxFailures > 0 {
		opts.MaxFailures = req.MaxFailures
	}
	return opts
}

// Start creates a run and processes it in the background.
// Only one run is admitted at a time.
func (s *GenerationService) Start(ctx context.Context, req RunRequest) (*models.GenerationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return nil, ErrRunInProgress
	}

	opts := s.options(req)
	run := &models.GenerationRun{
		ID:         uuid.New().String(),
		Status:     models.RunPending,
		Target:     opts.Target,
		BatchSize:  opts.BatchSize,
		PromptName: opts.PromptName,
		Model:      s.model,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	s.busy, s.active = true, run.ID
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release()
		snapshot := *run
		if _, err := s.process(s.ctx, &snapshot, opts); err != nil {
			s.logger.Error("Generation run failed", zap.String("run_id", snapshot.ID), zap.Error(err))
		}
	}()

	return run, nil
}

func (s *GenerationService) release() {
	s.mu.Lock()
	s.busy, s.active = false, ""
	s.mu.Unlock()
}

// Generate creates a run and processes it before returning.
func (s *GenerationService) Generate(ctx context.Context, req RunRequest) (*models.GenerationRun, *generator.Result, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, nil, ErrRunInProgress
	}
	s.busy = true
	s.mu.Unlock()
	defer s.release()

	opts := s.options(req)
	run := &models.GenerationRun{
		ID:         uuid.New().String(),
		Status:     models.RunPending,
		Target:     opts.Target,
		BatchSize:  opts.BatchSize,
		PromptName: opts.PromptName,
		Model:      s.model,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, nil, fmt.Errorf("failed to create run: %w", err)
	}

	res, err := s.process(ctx, run, opts)
	return run, res, err
}

// process runs the loop, keeps the run row current and stores whatever was produced.
func (s *GenerationService) process(ctx context.Context, run *models.GenerationRun, opts generator.Options) (*generator.Result, error) {
	// Bookkeeping writes outlive a cancelled run so the final status is recorded.
	store := context.WithoutCancel(ctx)

	run.Status = models.RunProcessing
	s.update(store, run)

	opts.OnProgress = func(p generator.Progress) {
		run.Attempts, run.AcceptedCount, run.FailedCount = p.Attempts, p.Accepted, p.Failed
		s.update(store, run)
	}

	res, runErr := s.runner.Run(ctx, opts)
	if res != nil {
		if err := s.repo.SaveRecords(store, run.ID, res.Records); err != nil {
			s.logger.Error("Failed to save records", zap.String("run_id", run.ID), zap.Error(err))
			runErr = errors.Join(runErr, err)
		}
		if err := s.repo.SaveFailures(store, run.ID, res.Failures); err != nil {
			s.logger.Error("Failed to save failures", zap.String("run_id", run.ID), zap.Error(err))
			runErr = errors.Join(runErr, err)
		}
		run.Attempts, run.AcceptedCount, run.FailedCount = res.Attempts, len(res.Records), len(res.Failures)
	}

	completedAt := time.Now().UTC()
	run.CompletedAt = &completedAt
	if runErr != nil {
		msg := runErr.Error()
		run.Status = models.RunFailed
		run.ErrorMessage = &msg
	} else {
		run.Status = models.RunCompleted
	}
	s.update(store, run)

	s.logger.Info("Generation run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("accepted", run.AcceptedCount),
		zap.Int("failed", run.FailedCount),
		zap.Int("attempts", run.Attempts))

	return res, runErr
}

func (s *GenerationService) update(ctx context.Context, run *models.GenerationRun) {
	if err := s.repo.UpdateRun(ctx, run); err != nil {
		s.logger.Error("Failed to update run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// Active returns the id of the background run in progress, if any.
func (s *GenerationService) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Shutdown cancels background runs and waits for them to record their final state.
func (s *GenerationService) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetRun returns run status
func (s *GenerationService) GetRun(ctx context.Context, id string) (*models.GenerationRun, error) {
	return s.repo.GetRun(ctx, id)
}

// ListRuns returns recent runs
func (s *GenerationService) ListRuns(ctx context.Context, limit int) ([]models.GenerationRun, error) {
	return s.repo.ListRuns(ctx, limit)
}

// Records returns the accepted records of a run
func (s *GenerationService) Records(ctx context.Context, id string) ([]models.GeneratedRecord, error) {
	if _, err := s.repo.GetRun(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListRecords(ctx, id)
}

// Failures returns the rejected responses of a run
func (s *GenerationService) Failures(ctx context.Context, id string) ([]models.FailureRecord, error) {
	if _, err := s.repo.GetRun(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListFailures(ctx, id)
}

// Stats returns generation statistics
func (s *GenerationService) Stats(ctx context.Context) (*repository.Stats, error) {
	return s.repo.GetStats(ctx)
}
