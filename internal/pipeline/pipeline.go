// Package pipeline runs the full preprocessing job: parse landmarks, select
// frontal faces, normalize them on a worker pool and checkpoint the results
// as chunk files.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/andresmejia3/faceprep/internal/batch"
	"github.com/andresmejia3/faceprep/internal/config"
	"github.com/andresmejia3/faceprep/internal/frontal"
	"github.com/andresmejia3/faceprep/internal/landmark"
	"github.com/andresmejia3/faceprep/internal/normalize"
	"github.com/andresmejia3/faceprep/internal/store"
	"github.com/andresmejia3/faceprep/internal/utils"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

// Ledger records runs and their chunks. *store.Store implements it.
type Ledger interface {
	CreateRun(ctx context.Context, r store.Run) error
	InsertChunk(ctx context.Context, runID string, c batch.Chunk) error
	InsertSkipped(ctx context.Context, runID string, item batch.SkippedItem) error
	FinishRun(ctx context.Context, runID, status string) error
	LatestComplete(ctx context.Context, fingerprint string) (*store.Run, error)
}

// Deps holds the collaborators of a run. Every field is optional.
type Deps struct {
	Logger     *slog.Logger
	Ledger     Ledger
	Progress   io.Writer // progress bar target; nil disables the bar
	Normalizer *normalize.Normalizer
}

// Result summarizes a finished run.
type Result struct {
	RunID       string
	Fingerprint string
	Stats       frontal.Stats
	Selected    []int
	Chunks      []batch.Chunk
	Skipped     []batch.SkippedItem
	Elapsed     time.Duration
}

// Stored returns the number of images written to chunks.
func (r *Result) Stored() int {
	n := 0
	for _, c := range r.Chunks {
		n += c.Count
	}
	return n
}

// Run executes the pipeline described by cfg. Chunks flushed before a failure
// stay on disk; no chunk is ever left half-written.
func Run(ctx context.Context, cfg *config.Settings, deps Deps) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log := deps.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	norm := deps.Normalizer
	if norm == nil {
		norm = normalize.New(normalize.DefaultGeometry)
	}
	if err := norm.Geometry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid geometry: %w", err)
	}
	start := time.Now()

	// 1. Landmark table
	table, err := landmark.Load(cfg.Landmarks)
	if err != nil {
		return nil, err
	}

	// 2. Frontal selection
	ids, err := frontal.Select(table, cfg.Threshold)
	if err != nil {
		return nil, err
	}
	res := &Result{
		RunID:    uuid.NewString(),
		Stats:    frontal.Summarize(table, cfg.Threshold),
		Selected: ids,
	}
	log.Info("selected frontal images", "kept", len(ids), "total", table.Len(), "threshold", cfg.Threshold)

	// 3. Register the run
	res.Fingerprint, err = utils.Fingerprint(cfg.Landmarks)
	if err != nil {
		return nil, fmt.Errorf("fingerprint landmarks: %w", err)
	}
	if deps.Ledger != nil {
		if prev, err := deps.Ledger.LatestComplete(ctx, res.Fingerprint); err != nil {
			return nil, fmt.Errorf("query ledger: %w", err)
		} else if prev != nil {
			log.Info("landmark file already processed", "previous_run", prev.ID, "output", prev.Output)
		}
		err := deps.Ledger.CreateRun(ctx, store.Run{
			ID:          res.RunID,
			Fingerprint: res.Fingerprint,
			Landmarks:   cfg.Landmarks,
			Output:      cfg.Output,
			Threshold:   cfg.Threshold,
			SaveStep:    cfg.SaveStep,
			Selected:    len(ids),
		})
		if err != nil {
			return nil, fmt.Errorf("register run: %w", err)
		}
	}

	// 4. Normalize and checkpoint
	var bar *progressbar.ProgressBar
	if deps.Progress != nil && len(ids) > 0 {
		bar = progressbar.NewOptions(len(ids),
			progressbar.OptionSetDescription("🧭 Normalizing faces"),
			progressbar.OptionSetWriter(deps.Progress),
			progressbar.OptionShowCount(),
		)
	}
	w, err := batch.NewWriter(batch.Options{
		Dir:         cfg.Output,
		SaveStep:    cfg.SaveStep,
		VerboseStep: cfg.VerboseStep,
		Total:       len(ids),
		Observer:    logObserver{log: log},
	})
	if err != nil {
		return nil, fail(deps.Ledger, res.RunID, err)
	}

	p := &pool{cfg: cfg, table: table, norm: norm, writer: w, bar: bar}
	if err := p.run(ctx, ids); err != nil {
		return nil, fail(deps.Ledger, res.RunID, err)
	}
	if !w.Done() {
		return nil, fail(deps.Ledger, res.RunID, fmt.Errorf("writer stopped after %d of %d images", w.Processed(), len(ids)))
	}
	if bar != nil {
		bar.Finish()
	}
	res.Chunks = w.Chunks()
	res.Skipped = p.skipped

	// 5. Manifest
	m := &batch.Manifest{
		RunID:       res.RunID,
		Fingerprint: res.Fingerprint,
		CreatedAt:   time.Now().UTC(),
		Landmarks:   cfg.Landmarks,
		Images:      cfg.Images,
		Threshold:   cfg.Threshold,
		SaveStep:    cfg.SaveStep,
		Size:        norm.Geometry.Output,
		Total:       len(ids),
		Chunks:      res.Chunks,
		Skipped:     res.Skipped,
	}
	if err := batch.WriteManifest(cfg.Output, m); err != nil {
		return nil, fail(deps.Ledger, res.RunID, err)
	}

	// 6. Ledger
	if deps.Ledger != nil {
		if err := record(ctx, deps.Ledger, res); err != nil {
			return nil, fail(deps.Ledger, res.RunID, fmt.Errorf("record run: %w", err))
		}
	}

	res.Elapsed = time.Since(start)
	log.Info("run complete", "run_id", res.RunID, "chunks", len(res.Chunks), "stored", res.Stored(), "skipped", len(res.Skipped), "duration", res.Elapsed)
	return res, nil
}

func record(ctx context.Context, l Ledger, res *Result) error {
	for _, c := range res.Chunks {
		if err := l.InsertChunk(ctx, res.RunID, c); err != nil {
			return err
		}
	}
	for _, s := range res.Skipped {
		if err := l.InsertSkipped(ctx, res.RunID, s); err != nil {
			return err
		}
	}
	return l.FinishRun(ctx, res.RunID, store.StatusComplete)
}

// fail marks the run as failed and returns err unchanged.
func fail(l Ledger, runID string, err error) error {
	if l != nil {
		// Use Background: the run context may already be cancelled (Ctrl+C).
		_ = l.FinishRun(context.Background(), runID, store.StatusFailed)
	}
	return err
}

// logObserver turns writer telemetry into structured log events.
type logObserver struct {
	log *slog.Logger
}

func (o logObserver) Completed(id int) {
	o.log.Info("completed image", "id", id)
}

func (o logObserver) Saved(c batch.Chunk, elapsed time.Duration) {
	o.log.Info("batch saved", "file", c.Name, "count", c.Count, "duration", elapsed.Round(time.Millisecond))
}

func (o logObserver) Skipped(id int, err error) {
	o.log.Warn("skipped image", "id", id, "error", err)
}
