// Package handler contains the HTTP handlers for the tagging API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/imagetagger/internal/api/response"
	"github.com/kiranshivaraju/imagetagger/internal/engine"
	"github.com/kiranshivaraju/imagetagger/internal/tagging"
	"github.com/kiranshivaraju/imagetagger/pkg/models"
)

// RunService defines the interface the run handlers depend on.
type RunService interface {
	StartRun(ctx context.Context, params tagging.StartParams) (*models.Run, error)
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	Pause(id uuid.UUID) error
	Resume(id uuid.UUID) error
	Stop(id uuid.UUID) error
	ListRuns(ctx context.Context, limit int) ([]*models.Run, error)
	Results(ctx context.Context, id uuid.UUID) ([]*models.ImageResult, error)
}

// NewStartRunHandler returns an http.HandlerFunc for POST /api/v1/runs.
func NewStartRunHandler(svc RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Folder    string `json:"folder"`
			Model     string `json:"model"`
			BatchSize int    `json:"batch_size"`
			Workers   int    `json:"workers"`
			Authors   string `json:"authors"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.Folder == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "folder is required", nil)
			return
		}
		if req.BatchSize < 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "batch_size must not be negative", nil)
			return
		}
		if req.Workers < 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "workers must not be negative", nil)
			return
		}

		run, err := svc.StartRun(r.Context(), tagging.StartParams{
			Folder:    req.Folder,
			Model:     req.Model,
			BatchSize: req.BatchSize,
			Workers:   req.Workers,
			Authors:   req.Authors,
		})
		if err != nil {
			switch {
			case errors.Is(err, tagging.ErrNoImages):
				response.Error(w, http.StatusBadRequest, "NO_IMAGES",
					"No supported images found in folder", nil)
			case errors.Is(err, tagging.ErrRunActive):
				response.Error(w, http.StatusConflict, "RUN_ACTIVE",
					"A run is already in progress", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to start run", nil)
			}
			return
		}

		response.Accepted(w, run)
	}
}

// NewGetRunHandler returns an http.HandlerFunc for GET /api/v1/runs/{runID}.
func NewGetRunHandler(svc RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := runIDParam(w, r)
		if !ok {
			return
		}

		run, err := svc.GetRun(r.Context(), id)
		if err != nil {
			writeRunError(w, err)
			return
		}

		response.JSON(w, run)
	}
}

// NewControlHandler returns an http.HandlerFunc for the pause, resume, and
// stop actions on POST /api/v1/runs/{runID}/{action}.
func NewControlHandler(svc RunService, action func(RunService, uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := runIDParam(w, r)
		if !ok {
			return
		}

		if err := action(svc, id); err != nil {
			writeRunError(w, err)
			return
		}

		run, err := svc.GetRun(r.Context(), id)
		if err != nil {
			writeRunError(w, err)
			return
		}

		response.JSON(w, run)
	}
}

// Control actions for NewControlHandler.
func PauseAction(svc RunService, id uuid.UUID) error  { return svc.Pause(id) }
func ResumeAction(svc RunService, id uuid.UUID) error { return svc.Resume(id) }
func StopAction(svc RunService, id uuid.UUID) error   { return svc.Stop(id) }

// NewListRunsHandler returns an http.HandlerFunc for GET /api/v1/runs.
// An optional "limit" query parameter caps the history returned.
func NewListRunsHandler(svc RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"limit must be a positive integer", nil)
				return
			}
			limit = n
		}

		runs, err := svc.ListRuns(r.Context(), limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list runs", nil)
			return
		}
		if runs == nil {
			runs = []*models.Run{}
		}

		response.Collection(w, runs, response.PaginationMeta{
			Page:  1,
			Limit: len(runs),
			Total: len(runs),
		})
	}
}

// NewListResultsHandler returns an http.HandlerFunc for
// GET /api/v1/runs/{runID}/results.
func NewListResultsHandler(svc RunService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := runIDParam(w, r)
		if !ok {
			return
		}

		results, err := svc.Results(r.Context(), id)
		if err != nil {
			writeRunError(w, err)
			return
		}
		if results == nil {
			results = []*models.ImageResult{}
		}

		response.Collection(w, results, response.PaginationMeta{
			Page:  1,
			Limit: len(results),
			Total: len(results),
		})
	}
}

func runIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid run ID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func writeRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tagging.ErrNoSuchRun):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Run not found", nil)
	case errors.Is(err, tagging.ErrNotCurrent):
		response.Error(w, http.StatusConflict, "RUN_FINISHED",
			"Run is no longer active", nil)
	case errors.Is(err, engine.ErrNotRunning):
		response.Error(w, http.StatusConflict, "RUN_NOT_ACTIVE",
			"No active run to control", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Failed to process request", nil)
	}
}
