// internal/batch/types.go - Tile loading job types
package batch

import (
	"time"

	"go.uber.org/atomic"

	"github.com/valpere/tile_merge/internal/tile"
)

// Job represents the loading of a set of tiles into a layer catalog
type Job struct {
	ID          string                 `json:"id"`
	TileRanges  []*tile.TileRange      `json:"tile_ranges,omitempty"`
	Tiles       []*tile.TileCoordinate `json:"tiles,omitempty"`
	Config      *JobConfig             `json:"config"`
	Status      JobStatus              `json:"status"`
	Progress    *JobProgress           `json:"progress"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Error       error                  `json:"error,omitempty"`
}

// JobConfig contains configuration for a loading job
type JobConfig struct {
	Concurrency int           `json:"concurrency"`
	Timeout     time.Duration `json:"timeout"`
	FailOnError bool          `json:"fail_on_error"`
}

// JobStatus represents the current status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// JobProgress tracks the progress of a job. Counters are updated by the
// workers while the job runs.
type JobProgress struct {
	TotalTiles     atomic.Int64 `json:"total_tiles"`
	ProcessedTiles atomic.Int64 `json:"processed_tiles"`
	FailedTiles    atomic.Int64 `json:"failed_tiles"`
	MissingTiles   atomic.Int64 `json:"missing_tiles"`
	Features       atomic.Int64 `json:"features"`
	Dropped        atomic.Int64 `json:"dropped"`
	BytesRead      atomic.Int64 `json:"bytes_read"`
	StartTime      time.Time    `json:"start_time"`
}

// WorkResult represents the outcome of loading one tile
type WorkResult struct {
	Coordinate *tile.TileCoordinate `json:"coordinate"`
	Tile       *tile.ProcessedTile  `json:"tile,omitempty"`
	Error      error                `json:"error,omitempty"`
	Missing    bool                 `json:"missing"`
	Duration   time.Duration        `json:"duration"`
}

// RequestBuilder resolves the request of a tile for the configured source
type RequestBuilder func(z, x, y int) (*tile.TileRequest, error)

// ProgressReporter receives job updates. ReportProgress is called from the
// workers and must be safe for concurrent use.
type ProgressReporter interface {
	ReportProgress(job *Job) error
	ReportJobComplete(job *Job) error
	ReportJobFailed(job *Job, err error) error
}

// NewJob creates a new loading job
func NewJob(id string, ranges []*tile.TileRange, config *JobConfig) *Job {
	if config == nil {
		config = NewJobConfig()
	}
	return &Job{
		ID:         id,
		TileRanges: ranges,
		Config:     config,
		Status:     JobStatusPending,
		Progress:   NewJobProgress(),
		CreatedAt:  time.Now(),
	}
}

// NewJobConfig creates a new job configuration with default values
func NewJobConfig() *JobConfig {
	return &JobConfig{
		Concurrency: 10,
		Timeout:     5 * time.Minute,
		FailOnError: false,
	}
}

// NewJobProgress creates a new job progress tracker
func NewJobProgress() *JobProgress {
	return &JobProgress{StartTime: time.Now()}
}

// Coordinates lists the tiles of the job: explicit tiles first, then the
// tiles of every range, without duplicates
func (j *Job) Coordinates() []*tile.TileCoordinate {
	seen := make(map[tile.TileCoordinate]bool)
	var coords []*tile.TileCoordinate

	add := func(c *tile.TileCoordinate) {
		if seen[*c] {
			return
		}
		seen[*c] = true
		coords = append(coords, c)
	}

	for _, c := range j.Tiles {
		add(c)
	}
	for _, r := range j.TileRanges {
		for _, c := range r.Coordinates() {
			add(c)
		}
	}
	return coords
}

// IsComplete returns true if the job has finished (successfully or with error)
func (j *Job) IsComplete() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed || j.Status == JobStatusCanceled
}

// CalculateProgress calculates the completion percentage
func (p *JobProgress) CalculateProgress() float64 {
	total := p.TotalTiles.Load()
	if total == 0 {
		return 0
	}
	return float64(p.ProcessedTiles.Load()) / float64(total) * 100
}

// Throughput returns the processed tiles per second since the start
func (p *JobProgress) Throughput() float64 {
	elapsed := time.Since(p.StartTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(p.ProcessedTiles.Load()) / elapsed
}

// EstimateCompletion estimates when the job will complete based on current progress
func (p *JobProgress) EstimateCompletion() time.Time {
	throughput := p.Throughput()
	if throughput == 0 {
		return time.Now().Add(time.Hour) // Default to 1 hour if no data
	}

	remaining := p.TotalTiles.Load() - p.ProcessedTiles.Load()
	if remaining <= 0 {
		return time.Now()
	}

	secondsRemaining := float64(remaining) / throughput
	return time.Now().Add(time.Duration(secondsRemaining) * time.Second)
}

// String returns a string representation of the job status
func (s JobStatus) String() string {
	return string(s)
}
