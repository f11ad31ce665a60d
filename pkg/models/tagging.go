// Package models contains shared data models used across the ImageTagger codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Per-image result statuses.
const (
	StatusSuccess     = "success"
	StatusError       = "error"
	StatusUnprocessed = "unprocessed"
	StatusSkipped     = "skipped"
)

// Run states.
const (
	RunStateIdle      = "idle"
	RunStateRunning   = "running"
	RunStatePaused    = "paused"
	RunStateStopping  = "stopping"
	RunStateCompleted = "completed"
	RunStateStopped   = "stopped"
)

// ImageTask is a single image queued for tagging. Tasks are immutable once
// a run starts; BatchID groups the tasks submitted together in one API call.
type ImageTask struct {
	Path    string    `json:"path"`
	BatchID uuid.UUID `json:"batch_id"`
}

// TagSet is the structured payload the vision model is asked to return for
// one image.
type TagSet struct {
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

// ImageResult is the outcome of processing one ImageTask. Exactly one result
// is produced per dispatched task, including under cancellation.
type ImageResult struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	RunID        uuid.UUID `db:"run_id"        json:"run_id"`
	Path         string    `db:"path"          json:"path"`
	Status       string    `db:"status"        json:"status"`
	Title        string    `db:"title"         json:"title,omitempty"`
	Tags         []string  `db:"tags"          json:"tags,omitempty"`
	Authors      string    `db:"authors"       json:"authors,omitempty"`
	ErrorMessage *string   `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
}

// Run tracks one batch-tagging run over a folder. The API returns a run id on
// POST /api/v1/runs; the client polls GET /api/v1/runs/{run_id} for progress.
type Run struct {
	ID         uuid.UUID  `db:"id"          json:"id"`
	Folder     string     `db:"folder"      json:"folder"`
	Provider   string     `db:"provider"    json:"provider"`
	Model      string     `db:"model"       json:"model"`
	BatchSize  int        `db:"batch_size"  json:"batch_size"`
	Workers    int        `db:"workers"     json:"workers"`
	Authors    string     `db:"authors"     json:"authors"`
	State      string     `db:"state"       json:"state"`
	Total      int        `db:"total"       json:"total"`
	Processed  int        `db:"processed"   json:"processed"`
	OKCount    int        `db:"ok_count"    json:"ok_count"`
	ErrorCount int        `db:"error_count" json:"error_count"`
	Skipped    int        `db:"skipped"     json:"skipped"`
	Dropped    int        `db:"dropped"     json:"dropped"`
	StartedAt  time.Time  `db:"started_at"  json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// SuccessResult builds a Success ImageResult for path.
func SuccessResult(runID uuid.UUID, path string, ts TagSet, authors string) ImageResult {
	return ImageResult{
		ID:        uuid.New(),
		RunID:     runID,
		Path:      path,
		Status:    StatusSuccess,
		Title:     ts.Title,
		Tags:      ts.Tags,
		Authors:   authors,
		CreatedAt: time.Now().UTC(),
	}
}

// ErrorResult builds an Error ImageResult carrying the failure reason.
func ErrorResult(runID uuid.UUID, path string, reason string) ImageResult {
	return ImageResult{
		ID:           uuid.New(),
		RunID:        runID,
		Path:         path,
		Status:       StatusError,
		ErrorMessage: &reason,
		CreatedAt:    time.Now().UTC(),
	}
}

// UnprocessedResult marks a task whose API call succeeded but whose reply was
// empty, unparseable, or missing this image's entry.
func UnprocessedResult(runID uuid.UUID, path string) ImageResult {
	return ImageResult{
		ID:        uuid.New(),
		RunID:     runID,
		Path:      path,
		Status:    StatusUnprocessed,
		CreatedAt: time.Now().UTC(),
	}
}

// SkippedResult marks a task resolved from the result cache without an API call.
func SkippedResult(runID uuid.UUID, path string, ts TagSet, authors string) ImageResult {
	return ImageResult{
		ID:        uuid.New(),
		RunID:     runID,
		Path:      path,
		Status:    StatusSkipped,
		Title:     ts.Title,
		Tags:      ts.Tags,
		Authors:   authors,
		CreatedAt: time.Now().UTC(),
	}
}
