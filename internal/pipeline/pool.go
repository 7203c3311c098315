package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/andresmejia3/faceprep/internal/batch"
	"github.com/andresmejia3/faceprep/internal/config"
	"github.com/andresmejia3/faceprep/internal/faceerr"
	"github.com/andresmejia3/faceprep/internal/landmark"
	"github.com/andresmejia3/faceprep/internal/normalize"
	"github.com/andresmejia3/faceprep/internal/types"
	"github.com/andresmejia3/faceprep/internal/worker"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// pool fans normalization out to workers and feeds the results, in selection
// order, into the single batch writer.
type pool struct {
	cfg    *config.Settings
	table  *landmark.Table
	norm   *normalize.Normalizer
	writer *batch.Writer
	bar    *progressbar.ProgressBar

	skipped []batch.SkippedItem
}

func (p *pool) run(ctx context.Context, ids []int) error {
	// At most window items are dispatched but not yet consumed, which also
	// bounds the reorder buffer.
	window := p.cfg.Workers * 4
	sem := semaphore.NewWeighted(int64(window))
	g, gctx := errgroup.WithContext(ctx)

	taskChan := make(chan types.Task, p.cfg.Workers)
	resultsChan := make(chan types.Result, p.cfg.Workers*2)

	// 1. Dispatcher
	g.Go(func() error {
		defer close(taskChan)
		for seq, id := range ids {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			select {
			case taskChan <- types.Task{Seq: seq, ID: id}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	// 2. Worker pool
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		w := worker.New(i, p.cfg.Images, p.table, p.norm)
		w.SaveDir = p.cfg.SaveDir
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			return w.Run(gctx, taskChan, resultsChan)
		})
	}
	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	// 3. Aggregator
	g.Go(func() error {
		// Buffer for re-ordering results (worker 2 might finish before worker 1)
		buffer := make(map[int]types.Result, window)
		next := 0
		for res := range resultsChan {
			buffer[res.Seq] = res

			// Consume in strict selection order
			for {
				r, ok := buffer[next]
				if !ok {
					break
				}
				delete(buffer, next)
				next++
				sem.Release(1)

				if err := p.consume(r); err != nil {
					return err
				}
			}
		}
		if next != len(ids) {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("pool stopped after %d of %d images", next, len(ids))
		}
		return nil
	})

	return g.Wait()
}

func (p *pool) consume(r types.Result) error {
	var err error
	switch {
	case r.Err == nil:
		err = p.writer.Append(r.Image)
	case p.cfg.SkipErrors && faceerr.IsItemError(r.Err):
		p.skipped = append(p.skipped, batch.SkippedItem{
			ID:    r.ID,
			Stage: string(faceerr.StageOf(r.Err)),
			Error: r.Err.Error(),
		})
		err = p.writer.Skip(r.ID, r.Err)
	default:
		return r.Err
	}
	if err != nil {
		return err
	}
	if p.bar != nil {
		p.bar.Add(1)
	}
	return nil
}
