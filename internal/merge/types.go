// internal/merge/types.go - Merge engine options and results
package merge

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/valpere/tile_merge/internal/geometry"
	"github.com/valpere/tile_merge/internal/spatial"
)

var (
	// ErrGeometryValidationFailed marks a candidate rejected because its own
	// geometry or the accumulated group geometry is invalid
	ErrGeometryValidationFailed = errors.New("geometry validation failed")
	// ErrNullUnionResult marks a candidate whose union with the group failed
	ErrNullUnionResult = errors.New("union produced no geometry")
)

// DefaultProximityTolerance widens the first neighbour query of a group, in
// map units
const DefaultProximityTolerance = 10.0

// Options configures a Merger
type Options struct {
	// ProximityTolerance is the distance the seed geometry is grown by
	// before its first index query
	ProximityTolerance float64
	// BufferSegments is passed to every buffer call
	BufferSegments int
	// ResetGroups clears existing group ids before the run, so features
	// merged by an earlier run take part again
	ResetGroups bool
	// NewIndex creates the index used for one run
	NewIndex func() spatial.Index
	// NewGroupID returns a fresh group id
	NewGroupID func() string
	// Progress is called after every root with the number of processed and
	// total features
	Progress func(processed, total int)
	Logger   *zap.Logger
}

// DefaultOptions returns the options used when none are given
func DefaultOptions() *Options {
	return &Options{
		ProximityTolerance: DefaultProximityTolerance,
		BufferSegments:     geometry.DefaultBufferSegments,
		NewIndex:           func() spatial.Index { return spatial.NewDefaultRTree() },
		NewGroupID:         uuid.NewString,
		Logger:             zap.NewNop(),
	}
}

// Result summarizes one merge run over a layer
type Result struct {
	Layer     string        `json:"layer"`
	Features  int           `json:"features"`
	Indexed   int           `json:"indexed"`
	Groups    int           `json:"groups"`
	Merged    int           `json:"merged"`
	Skipped   int           `json:"skipped_grouped"`
	Invalid   int           `json:"skipped_invalid"`
	NullUnion int           `json:"skipped_null_union"`
	Remaining int           `json:"remaining"`
	Cancelled bool          `json:"cancelled"`
	Duration  time.Duration `json:"duration"`
}
