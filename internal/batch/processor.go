// internal/batch/processor.go - Concurrent loading of tiles into layers
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/valpere/tile_merge/internal"
	"github.com/valpere/tile_merge/internal/layer"
	"github.com/valpere/tile_merge/internal/tile"
)

// BatchProcessor fetches and decodes the tiles of a job on a bounded pool
// and appends their features to a catalog
type BatchProcessor struct {
	fetcher   tile.Fetcher
	processor tile.Processor
	requests  RequestBuilder
	reporter  ProgressReporter
	logger    *zap.Logger
}

// NewBatchProcessor creates a new batch processor with the specified components
func NewBatchProcessor(fetcher tile.Fetcher, processor tile.Processor, requests RequestBuilder, reporter ProgressReporter, logger *zap.Logger) *BatchProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchProcessor{
		fetcher:   fetcher,
		processor: processor,
		requests:  requests,
		reporter:  reporter,
		logger:    logger,
	}
}

// Process loads every tile of job into catalog. Features are added in tile
// order once all tiles are in, so feature ids do not depend on which worker
// finished first. Missing tiles are counted and skipped; other failures
// abort the job only when FailOnError is set.
func (bp *BatchProcessor) Process(ctx context.Context, job *Job, catalog *layer.Catalog) error {
	now := time.Now()
	job.Status = JobStatusRunning
	job.StartedAt = &now
	job.Progress.StartTime = now

	if job.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Config.Timeout)
		defer cancel()
	}

	coords := job.Coordinates()
	for _, c := range coords {
		if err := tile.ValidateCoordinates(c.Z, c.X, c.Y); err != nil {
			return bp.fail(job, fmt.Errorf("invalid tile %s: %w", c, err))
		}
	}
	job.Progress.TotalTiles.Store(int64(len(coords)))
	bp.report(job)

	concurrency := job.Config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	p := pool.New().WithMaxGoroutines(concurrency).WithContext(ctx)
	if job.Config.FailOnError {
		p = p.WithCancelOnError().WithFirstError()
	}

	results := make([]*WorkResult, len(coords))
	for i, c := range coords {
		p.Go(func(ctx context.Context) error {
			result := bp.processTile(ctx, c)
			results[i] = result

			job.Progress.ProcessedTiles.Inc()
			switch {
			case result.Missing:
				job.Progress.MissingTiles.Inc()
			case result.Error != nil:
				job.Progress.FailedTiles.Inc()
				bp.logger.Warn("tile failed", zap.Stringer("tile", c), zap.Error(result.Error))
			case result.Tile.Metadata != nil:
				job.Progress.Dropped.Add(int64(result.Tile.Metadata.Dropped))
				job.Progress.BytesRead.Add(int64(result.Tile.Metadata.Size))
			}
			bp.report(job)

			if result.Error != nil && job.Config.FailOnError {
				return result.Error
			}
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return bp.fail(job, err)
	}
	if err := ctx.Err(); err != nil {
		return bp.fail(job, err)
	}

	var addErrs error
	for _, result := range results {
		if result == nil || result.Tile == nil || result.Tile.Collection == nil {
			continue
		}
		added, err := catalog.AddFeatureCollection(result.Tile.Collection, "")
		job.Progress.Features.Add(int64(added))
		if err != nil {
			addErrs = multierr.Append(addErrs, fmt.Errorf("tile %s: %w", result.Coordinate, err))
		}
	}
	if addErrs != nil {
		bp.logger.Warn("some features could not be added", zap.Error(addErrs))
		if job.Config.FailOnError {
			return bp.fail(job, addErrs)
		}
	}

	completed := time.Now()
	job.Status = JobStatusCompleted
	job.CompletedAt = &completed

	bp.logger.Info("tiles loaded",
		zap.String("job", job.ID),
		zap.Int64("tiles", job.Progress.TotalTiles.Load()),
		zap.Int64("missing", job.Progress.MissingTiles.Load()),
		zap.Int64("failed", job.Progress.FailedTiles.Load()),
		zap.Int64("features", job.Progress.Features.Load()),
		zap.Int64("dropped", job.Progress.Dropped.Load()),
		zap.Duration("duration", completed.Sub(now)))

	if bp.reporter != nil {
		if err := bp.reporter.ReportJobComplete(job); err != nil {
			bp.logger.Debug("progress reporter failed", zap.Error(err))
		}
	}
	return nil
}

// processTile fetches and decodes a single tile
func (bp *BatchProcessor) processTile(ctx context.Context, c *tile.TileCoordinate) *WorkResult {
	start := time.Now()
	result := &WorkResult{Coordinate: c}

	request, err := bp.requests(c.Z, c.X, c.Y)
	if err != nil {
		result.Error = fmt.Errorf("failed to build request: %w", err)
		return result
	}

	response, err := bp.fetcher.FetchWithRetry(ctx, request)
	if err != nil {
		var appErr *internal.Error
		if errors.As(err, &appErr) && appErr.Code == internal.ErrorCodeNotFound {
			result.Missing = true
			bp.logger.Debug("tile not found", zap.Stringer("tile", c))
		} else {
			result.Error = fmt.Errorf("fetch failed: %w", err)
		}
		result.Duration = time.Since(start)
		return result
	}

	processed, err := bp.processor.Process(response)
	if err != nil {
		result.Error = fmt.Errorf("process failed: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	result.Tile = processed
	result.Duration = time.Since(start)
	return result
}

func (bp *BatchProcessor) report(job *Job) {
	if bp.reporter == nil {
		return
	}
	if err := bp.reporter.ReportProgress(job); err != nil {
		bp.logger.Debug("progress reporter failed", zap.Error(err))
	}
}

// fail marks the job as failed, or canceled when its context ended
func (bp *BatchProcessor) fail(job *Job, err error) error {
	now := time.Now()
	job.Status = JobStatusFailed
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		job.Status = JobStatusCanceled
	}
	job.Error = err
	job.CompletedAt = &now

	if bp.reporter != nil {
		if reportErr := bp.reporter.ReportJobFailed(job, err); reportErr != nil {
			bp.logger.Debug("progress reporter failed", zap.Error(reportErr))
		}
	}
	return err
}
