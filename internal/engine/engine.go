// Package engine is the controlled batch-submission core: it partitions the
// image list into batches, dispatches them across a bounded worker pool
// under a shared sliding-window rate limit, tolerates pause/resume/stop
// signals at every suspension point, and reports exactly one result per
// dispatched task.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/imagetagger/internal/metadata"
	"github.com/kiranshivaraju/imagetagger/internal/parse"
	"github.com/kiranshivaraju/imagetagger/internal/ratelimit"
	"github.com/kiranshivaraju/imagetagger/internal/vision"
	"github.com/kiranshivaraju/imagetagger/pkg/models"
)

var (
	ErrAlreadyRunning = errors.New("a run is already in progress")
	ErrNotRunning     = errors.New("no run in progress")
	ErrNoTasks        = errors.New("no tasks to process")
)

// Encoder prepares an image file for transmission.
type Encoder interface {
	EncodeFile(path string) (string, error)
}

// MetadataWriter persists a tagging result into an image file.
type MetadataWriter interface {
	Write(path string, opts metadata.Options) (string, error)
}

// Hooks are the outward notifications collaborators receive. All hooks are
// optional and may be invoked from any worker goroutine.
type Hooks struct {
	// OnImage fires exactly once per dispatched task. Batches never started
	// at the moment of a stop are dropped without a callback; they surface
	// only in the snapshot's Dropped count.
	OnImage func(models.ImageResult)
	// OnProgress fires after every completed task.
	OnProgress func(Snapshot)
	// OnComplete fires exactly once, after all dispatched workers return.
	OnComplete func(elapsed time.Duration, snap Snapshot)
}

// RunConfig is the per-run configuration, immutable once Start returns.
type RunConfig struct {
	RunID         uuid.UUID
	Model         string
	Workers       int
	BatchSize     int
	TagCount      int
	Authors       string
	ClearMetadata bool
}

// Snapshot is a point-in-time copy of the run counters.
type Snapshot struct {
	State       string        `json:"state"`
	Total       int           `json:"total"`
	Processed   int           `json:"processed"`
	OK          int           `json:"ok"`
	Errors      int           `json:"errors"`
	Unprocessed int           `json:"unprocessed"`
	Dropped     int           `json:"dropped"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Engine coordinates one run at a time. Construct once and reuse across
// runs; the provider, encoder, writer and limiter are injected at startup
// and never reinitialized.
type Engine struct {
	provider models.VisionProvider
	encoder  Encoder
	writer   MetadataWriter
	limiter  *ratelimit.Limiter

	mu        sync.Mutex
	state     string
	gate      *gate
	cancel    context.CancelFunc
	startedAt time.Time
	total     int
	processed int
	ok        int
	errs      int
	unproc    int
	dropped   int
}

func New(provider models.VisionProvider, encoder Encoder, writer MetadataWriter, limiter *ratelimit.Limiter) *Engine {
	return &Engine{
		provider: provider,
		encoder:  encoder,
		writer:   writer,
		limiter:  limiter,
		state:    models.RunStateIdle,
		gate:     newGate(),
	}
}

// Start validates cfg, partitions paths into batches, and launches the run
// in the background. It returns ErrAlreadyRunning if a run is active and
// ErrNoTasks for an empty path list.
func (e *Engine) Start(ctx context.Context, paths []string, cfg RunConfig, hooks Hooks) error {
	if len(paths) == 0 {
		return ErrNoTasks
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}

	e.mu.Lock()
	if e.state != models.RunStateIdle {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.state = models.RunStateRunning
	e.gate = newGate()
	e.cancel = cancel
	e.startedAt = time.Now()
	e.total = len(paths)
	e.processed, e.ok, e.errs, e.unproc, e.dropped = 0, 0, 0, 0, 0
	e.mu.Unlock()

	batches := Partition(cfg.RunID, paths, cfg.BatchSize)
	go e.run(runCtx, batches, cfg, hooks)
	return nil
}

// Pause blocks workers at their next decision point. In-flight network
// calls are not interrupted.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != models.RunStateRunning {
		return ErrNotRunning
	}
	e.state = models.RunStatePaused
	e.gate.pause()
	slog.Info("processing paused")
	return nil
}

// Resume reopens the pause gate.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != models.RunStatePaused {
		return ErrNotRunning
	}
	e.state = models.RunStateRunning
	e.gate.resume()
	slog.Info("processing resumed")
	return nil
}

// Stop cancels the run cooperatively: workers observe the signal at their
// next suspension point, dispatched-but-incomplete tasks get synthetic
// Error results, and never-started batches are dropped without callbacks.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != models.RunStateRunning && e.state != models.RunStatePaused {
		return ErrNotRunning
	}
	e.state = models.RunStateStopping
	e.cancel()
	slog.Info("processing stopping")
	return nil
}

// Snapshot returns a copy of the current run counters.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	var elapsed time.Duration
	if !e.startedAt.IsZero() {
		elapsed = time.Since(e.startedAt)
	}
	return Snapshot{
		State:       e.state,
		Total:       e.total,
		Processed:   e.processed,
		OK:          e.ok,
		Errors:      e.errs,
		Unprocessed: e.unproc,
		Dropped:     e.dropped,
		Elapsed:     elapsed,
	}
}

func (e *Engine) run(ctx context.Context, batches [][]models.ImageTask, cfg RunConfig, hooks Hooks) {
	queue := make(chan []models.ImageTask, len(batches))
	for _, b := range batches {
		queue <- b
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range queue {
				if ctx.Err() != nil {
					// Never started: dropped outright, no callbacks.
					e.addDropped(len(batch))
					continue
				}
				e.processBatch(ctx, batch, cfg, hooks)
			}
		}()
	}
	wg.Wait()

	stopped := ctx.Err() != nil

	e.mu.Lock()
	if stopped {
		e.state = models.RunStateStopped
	} else {
		e.state = models.RunStateCompleted
	}
	elapsed := time.Since(e.startedAt)
	snap := e.snapshotLocked()
	e.state = models.RunStateIdle
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	slog.Info("run finished",
		"run_id", cfg.RunID,
		"state", snap.State,
		"processed", snap.Processed,
		"ok", snap.OK,
		"errors", snap.Errors,
		"dropped", snap.Dropped,
		"elapsed", elapsed.Round(time.Millisecond))
	if hooks.OnComplete != nil {
		hooks.OnComplete(elapsed, snap)
	}
}

// processBatch takes one batch end-to-end: encode, call, parse, write,
// report. It retries indefinitely on rate-limit rejections and aborts with
// synthetic Error results when the run is stopped.
func (e *Engine) processBatch(ctx context.Context, batch []models.ImageTask, cfg RunConfig, hooks Hooks) {
	if err := e.gate.Wait(ctx); err != nil {
		e.abort(batch, cfg, hooks)
		return
	}

	tasks := make([]models.ImageTask, 0, len(batch))
	payloads := make([]models.ImagePayload, 0, len(batch))
	for _, task := range batch {
		data, err := e.encoder.EncodeFile(task.Path)
		if err != nil {
			slog.Error("thumbnail failed", "path", task.Path, "error", err)
			e.report(models.ErrorResult(cfg.RunID, task.Path, fmt.Sprintf("thumbnail: %v", err)), hooks)
			continue
		}
		tasks = append(tasks, task)
		payloads = append(payloads, models.ImagePayload{MediaType: "image/jpeg", Data: data})
	}
	if len(tasks) == 0 {
		return
	}

	req := models.TagRequest{
		Model:    cfg.Model,
		TagCount: cfg.TagCount,
		Prompt:   vision.SystemPrompt(cfg.TagCount, len(tasks)),
		Images:   payloads,
	}

	for {
		if ctx.Err() != nil {
			e.abort(tasks, cfg, hooks)
			return
		}
		if err := e.gate.Wait(ctx); err != nil {
			e.abort(tasks, cfg, hooks)
			return
		}
		if err := e.limiter.Wait(ctx); err != nil {
			e.abort(tasks, cfg, hooks)
			return
		}
		// The pause gate is re-checked after a limiter wait; a pause
		// issued during the wait must hold the batch here.
		if err := e.gate.Wait(ctx); err != nil {
			e.abort(tasks, cfg, hooks)
			return
		}

		reply, err := e.provider.Tag(ctx, req)
		if err != nil {
			if vision.IsRateLimited(err) {
				if berr := e.limiter.Backoff(ctx); berr != nil {
					e.abort(tasks, cfg, hooks)
					return
				}
				continue
			}
			slog.Error("vision call failed", "batch_id", tasks[0].BatchID, "error", err)
			for _, task := range tasks {
				e.report(models.ErrorResult(cfg.RunID, task.Path, err.Error()), hooks)
			}
			return
		}
		e.limiter.Record()
		e.finish(tasks, reply, cfg, hooks)
		return
	}
}

// finish decodes the reply and persists per-image results. A reply may be a
// single object or an array; an array shorter than the batch leaves the
// tail Unprocessed.
func (e *Engine) finish(tasks []models.ImageTask, reply string, cfg RunConfig, hooks Hooks) {
	sets, ok := parse.TagSets(reply)
	if !ok {
		slog.Warn("unparseable reply", "batch_id", tasks[0].BatchID)
		for _, task := range tasks {
			e.report(models.UnprocessedResult(cfg.RunID, task.Path), hooks)
		}
		return
	}

	for i, task := range tasks {
		if i >= len(sets) || !parse.Valid(sets[i]) {
			e.report(models.UnprocessedResult(cfg.RunID, task.Path), hooks)
			continue
		}
		ts := sets[i]
		_, err := e.writer.Write(task.Path, metadata.Options{
			Title:         ts.Title,
			Tags:          ts.Tags,
			Authors:       cfg.Authors,
			ClearExisting: cfg.ClearMetadata,
		})
		if err != nil {
			slog.Error("metadata write failed", "path", task.Path, "error", err)
			e.report(models.ErrorResult(cfg.RunID, task.Path, fmt.Sprintf("metadata: %v", err)), hooks)
			continue
		}
		e.report(models.SuccessResult(cfg.RunID, task.Path, ts, cfg.Authors), hooks)
	}
}

// abort emits synthetic Error results for dispatched tasks the worker could
// not complete before the stop was observed.
func (e *Engine) abort(tasks []models.ImageTask, cfg RunConfig, hooks Hooks) {
	for _, task := range tasks {
		e.report(models.ErrorResult(cfg.RunID, task.Path, "run stopped"), hooks)
	}
}

func (e *Engine) report(result models.ImageResult, hooks Hooks) {
	e.mu.Lock()
	e.processed++
	switch result.Status {
	case models.StatusSuccess:
		e.ok++
	case models.StatusUnprocessed:
		e.unproc++
	default:
		e.errs++
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if hooks.OnImage != nil {
		hooks.OnImage(result)
	}
	if hooks.OnProgress != nil {
		hooks.OnProgress(snap)
	}
}

func (e *Engine) addDropped(n int) {
	e.mu.Lock()
	e.dropped += n
	e.mu.Unlock()
}
