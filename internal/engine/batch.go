package engine

import (
	"github.com/google/uuid"

	"github.com/kiranshivaraju/imagetagger/pkg/models"
)

// Partition groups paths into ceil(len(paths)/batchSize) batches in order.
// Every path lands in exactly one batch; all tasks in a batch share a
// batch id because they travel in a single API call.
func Partition(runID uuid.UUID, paths []string, batchSize int) [][]models.ImageTask {
	if batchSize < 1 {
		batchSize = 1
	}
	var batches [][]models.ImageTask
	for start := 0; start < len(paths); start += batchSize {
		end := start + batchSize
		if end > len(paths) {
			end = len(paths)
		}
		batchID := uuid.New()
		batch := make([]models.ImageTask, 0, end-start)
		for _, p := range paths[start:end] {
			batch = append(batch, models.ImageTask{Path: p, BatchID: batchID})
		}
		batches = append(batches, batch)
	}
	return batches
}
