package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/imagetagger/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*models.Run, error)
	UpdateRunProgress(ctx context.Context, run *models.Run) error
	FinishRun(ctx context.Context, run *models.Run) error

	CreateImageResult(ctx context.Context, result *models.ImageResult) error
	ListImageResults(ctx context.Context, runID uuid.UUID) ([]*models.ImageResult, error)
}

// NoopStore satisfies Store when no DATABASE_URL is configured: runs are
// tracked in memory by the tagging service and nothing is persisted.
type NoopStore struct{}

func (NoopStore) Ping(context.Context) error                       { return nil }
func (NoopStore) CreateRun(context.Context, *models.Run) error     { return nil }
func (NoopStore) GetRun(context.Context, uuid.UUID) (*models.Run, error) {
	return nil, ErrNotFound
}
func (NoopStore) ListRuns(context.Context, int) ([]*models.Run, error) { return nil, nil }
func (NoopStore) UpdateRunProgress(context.Context, *models.Run) error { return nil }
func (NoopStore) FinishRun(context.Context, *models.Run) error         { return nil }
func (NoopStore) CreateImageResult(context.Context, *models.ImageResult) error {
	return nil
}
func (NoopStore) ListImageResults(context.Context, uuid.UUID) ([]*models.ImageResult, error) {
	return nil, nil
}

var _ Store = NoopStore{}
