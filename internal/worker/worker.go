package worker

import (
	"context"

	"github.com/andresmejia3/faceprep/internal/landmark"
	"github.com/andresmejia3/faceprep/internal/normalize"
	"github.com/andresmejia3/faceprep/internal/types"
)

// Worker normalizes images pulled from a task channel. Workers share the
// landmark table read-only and never touch the batch buffer.
type Worker struct {
	ID      int
	Images  string
	SaveDir string // when set, each normalized image is also written here as a JPEG
	Table   *landmark.Table
	Norm    *normalize.Normalizer
}

func New(id int, images string, table *landmark.Table, norm *normalize.Normalizer) *Worker {
	return &Worker{
		ID:     id,
		Images: images,
		Table:  table,
		Norm:   norm,
	}
}

// Process normalizes a single task. Failures are returned in the result so the
// aggregator can decide whether they are fatal.
func (w *Worker) Process(task types.Task) types.Result {
	img, err := w.Norm.Process(w.Images, task.ID, w.Table)
	if err == nil && w.SaveDir != "" {
		_, err = normalize.Save(w.SaveDir, img)
	}
	return types.Result{Seq: task.Seq, ID: task.ID, Image: img, Err: err}
}

// Run processes tasks until the channel is closed or ctx is cancelled.
func (w *Worker) Run(ctx context.Context, tasks <-chan types.Task, results chan<- types.Result) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task, ok := <-tasks:
			if !ok {
				return nil
			}
			res := w.Process(task)
			select {
			case results <- res:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
