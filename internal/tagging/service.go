// Package tagging orchestrates batch-tagging runs: it scans the folder,
// resolves cached results, drives the engine, and records progress in the
// store for collaborators to poll.
package tagging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/imagetagger/internal/cache"
	"github.com/kiranshivaraju/imagetagger/internal/config"
	"github.com/kiranshivaraju/imagetagger/internal/engine"
	"github.com/kiranshivaraju/imagetagger/internal/scan"
	"github.com/kiranshivaraju/imagetagger/internal/store"
	"github.com/kiranshivaraju/imagetagger/pkg/models"
)

var (
	ErrNoImages   = errors.New("no images found in folder")
	ErrRunActive  = engine.ErrAlreadyRunning
	ErrNoSuchRun  = errors.New("run not found")
	ErrNotCurrent = errors.New("run is not the active run")
)

// StartParams are the caller-supplied knobs for one run. Zero values fall
// back to the service defaults.
type StartParams struct {
	Folder    string
	Model     string
	BatchSize int
	Workers   int
	Authors   string
}

// Service coordinates one run at a time on top of the engine.
type Service struct {
	engine       *engine.Engine
	store        store.Store
	cache        cache.Cache
	provider     string
	defaultModel string
	defaults     config.TaggingConfig

	mu      sync.Mutex
	current *models.Run
}

func NewService(eng *engine.Engine, st store.Store, ca cache.Cache, providerName, defaultModel string, defaults config.TaggingConfig) *Service {
	return &Service{
		engine:       eng,
		store:        st,
		cache:        ca,
		provider:     providerName,
		defaultModel: defaultModel,
		defaults:     defaults,
	}
}

// StartRun scans the folder and launches a run in the background. Images
// whose content hash is already cached are reported as skipped without an
// API call; the rest go to the engine.
func (s *Service) StartRun(ctx context.Context, params StartParams) (*models.Run, error) {
	if params.Folder == "" {
		return nil, fmt.Errorf("folder is required")
	}
	paths, err := scan.Folder(params.Folder)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, ErrNoImages
	}

	if params.Model == "" {
		params.Model = s.defaultModel
	}
	batchSize := params.BatchSize
	if batchSize == 0 {
		batchSize = s.defaults.BatchSize
	}
	batchSize = config.ClampBatchSize(batchSize)
	workers := params.Workers
	if workers <= 0 {
		workers = s.defaults.MaxWorkers
	}
	authors := params.Authors
	if authors == "" {
		authors = s.defaults.Authors
	}

	s.mu.Lock()
	if s.current != nil && !finished(s.current.State) {
		s.mu.Unlock()
		return nil, ErrRunActive
	}
	run := &models.Run{
		ID:        uuid.New(),
		Folder:    params.Folder,
		Provider:  s.provider,
		Model:     params.Model,
		BatchSize: batchSize,
		Workers:   workers,
		Authors:   authors,
		State:     models.RunStateRunning,
		Total:     len(paths),
		StartedAt: time.Now().UTC(),
	}
	s.current = run
	s.mu.Unlock()

	if err := s.store.CreateRun(ctx, run); err != nil {
		slog.Error("persist run failed", "run_id", run.ID, "error", err)
	}

	pending, skipped := s.resolveCached(ctx, run, authors, paths)
	for _, result := range skipped {
		s.recordResult(run.ID, result)
	}

	if len(pending) == 0 {
		s.completeRun(run.ID, 0)
		return s.GetRun(ctx, run.ID)
	}

	hooks := engine.Hooks{
		OnImage: func(result models.ImageResult) {
			s.recordResult(run.ID, result)
			if result.Status == models.StatusSuccess {
				s.cacheResult(result)
			}
		},
		OnComplete: func(elapsed time.Duration, snap engine.Snapshot) {
			s.applySnapshot(run.ID, snap)
			s.completeRun(run.ID, elapsed)
		},
	}

	err = s.engine.Start(context.WithoutCancel(ctx), pending, engine.RunConfig{
		RunID:         run.ID,
		Model:         params.Model,
		Workers:       workers,
		BatchSize:     batchSize,
		TagCount:      s.defaults.TagCount,
		Authors:       authors,
		ClearMetadata: s.defaults.ClearMetadata,
	}, hooks)
	if err != nil {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
		return nil, err
	}

	slog.Info("run started",
		"run_id", run.ID,
		"folder", params.Folder,
		"images", len(paths),
		"skipped", len(skipped),
		"batch_size", batchSize,
		"workers", workers)
	return s.GetRun(ctx, run.ID)
}

// Pause suspends the active run.
func (s *Service) Pause(id uuid.UUID) error {
	if err := s.checkCurrent(id); err != nil {
		return err
	}
	if err := s.engine.Pause(); err != nil {
		return err
	}
	s.setState(id, models.RunStatePaused)
	return nil
}

// Resume reopens the active run's pause gate.
func (s *Service) Resume(id uuid.UUID) error {
	if err := s.checkCurrent(id); err != nil {
		return err
	}
	if err := s.engine.Resume(); err != nil {
		return err
	}
	s.setState(id, models.RunStateRunning)
	return nil
}

// Stop cancels the active run cooperatively.
func (s *Service) Stop(id uuid.UUID) error {
	if err := s.checkCurrent(id); err != nil {
		return err
	}
	if err := s.engine.Stop(); err != nil {
		return err
	}
	s.setState(id, models.RunStateStopping)
	return nil
}

// GetRun returns a copy of the live run if id matches it, falling back to
// the store for past runs.
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	s.mu.Lock()
	if s.current != nil && s.current.ID == id {
		run := *s.current
		s.mu.Unlock()
		return &run, nil
	}
	s.mu.Unlock()

	run, err := s.store.GetRun(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoSuchRun
	}
	return run, err
}

// ListRuns returns the persisted run history, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListRuns(ctx, limit)
}

// Results lists the persisted per-image results of a run.
func (s *Service) Results(ctx context.Context, id uuid.UUID) ([]*models.ImageResult, error) {
	return s.store.ListImageResults(ctx, id)
}

// resolveCached splits paths into engine work and cache-hit skip results.
func (s *Service) resolveCached(ctx context.Context, run *models.Run, authors string, paths []string) ([]string, []models.ImageResult) {
	var pending []string
	var skipped []models.ImageResult
	for _, path := range paths {
		hash, err := cache.HashFile(path)
		if err != nil {
			pending = append(pending, path)
			continue
		}
		ts, ok, err := s.cache.GetTagSet(ctx, hash)
		if err != nil || !ok {
			pending = append(pending, path)
			continue
		}
		skipped = append(skipped, models.SkippedResult(run.ID, path, ts, authors))
	}
	return pending, skipped
}

func (s *Service) recordResult(runID uuid.UUID, result models.ImageResult) {
	s.mu.Lock()
	if s.current != nil && s.current.ID == runID {
		s.current.Processed++
		switch result.Status {
		case models.StatusSuccess:
			s.current.OKCount++
		case models.StatusSkipped:
			s.current.Skipped++
		default:
			s.current.ErrorCount++
		}
	}
	progress := s.currentCopy()
	s.mu.Unlock()

	ctx := context.Background()
	if err := s.store.CreateImageResult(ctx, &result); err != nil {
		slog.Error("persist image result failed", "path", result.Path, "error", err)
	}
	if progress != nil {
		if err := s.store.UpdateRunProgress(ctx, progress); err != nil {
			slog.Error("persist run progress failed", "run_id", runID, "error", err)
		}
	}
}

func (s *Service) cacheResult(result models.ImageResult) {
	hash, err := cache.HashFile(result.Path)
	if err != nil {
		return
	}
	ts := models.TagSet{Title: result.Title, Tags: result.Tags}
	if err := s.cache.SetTagSet(context.Background(), hash, ts, s.defaults.CacheTTL); err != nil {
		slog.Warn("cache result failed", "path", result.Path, "error", err)
	}
}

func (s *Service) applySnapshot(runID uuid.UUID, snap engine.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.ID != runID {
		return
	}
	s.current.Dropped = snap.Dropped
}

func (s *Service) completeRun(runID uuid.UUID, elapsed time.Duration) {
	s.mu.Lock()
	if s.current == nil || s.current.ID != runID {
		s.mu.Unlock()
		return
	}
	if s.current.State == models.RunStateStopping {
		s.current.State = models.RunStateStopped
	} else {
		s.current.State = models.RunStateCompleted
	}
	now := time.Now().UTC()
	s.current.FinishedAt = &now
	run := *s.current
	s.mu.Unlock()

	if err := s.store.FinishRun(context.Background(), &run); err != nil {
		slog.Error("persist run completion failed", "run_id", runID, "error", err)
	}
	slog.Info("run complete", "run_id", runID, "elapsed", elapsed.Round(time.Millisecond),
		"processed", run.Processed, "ok", run.OKCount, "errors", run.ErrorCount,
		"skipped", run.Skipped, "dropped", run.Dropped)
}

func (s *Service) checkCurrent(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || finished(s.current.State) {
		return ErrNoSuchRun
	}
	if s.current.ID != id {
		return ErrNotCurrent
	}
	return nil
}

func (s *Service) setState(id uuid.UUID, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.ID == id {
		s.current.State = state
	}
}

// currentCopy returns a copy of the live run; callers must hold s.mu.
func (s *Service) currentCopy() *models.Run {
	if s.current == nil {
		return nil
	}
	run := *s.current
	return &run
}

func finished(state string) bool {
	return state == models.RunStateCompleted || state == models.RunStateStopped
}
