// internal/clip/clip.go - Clipping of tile fragments to tile extents
package clip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/valpere/tile_merge/internal"
	"github.com/valpere/tile_merge/internal/geometry"
	"github.com/valpere/tile_merge/internal/layer"
	"github.com/valpere/tile_merge/internal/tile"
)

// ErrNoRegionAvailable is returned when neither an explicit region nor the
// tile attributes of a feature give a clip rectangle
var ErrNoRegionAvailable = errors.New("no clip region available")

// Region is an inclusive block of tiles at one zoom level, in the scheme of
// the clipper
type Region struct {
	Zoom int
	XMin int
	YMin int
	XMax int
	YMax int
}

func (r *Region) String() string {
	return fmt.Sprintf("%d/%d/%d/%d/%d", r.Zoom, r.XMin, r.YMin, r.XMax, r.YMax)
}

// Options configures a Clipper
type Options struct {
	Scheme tile.Scheme
	CRS    string
	Logger *zap.Logger
}

// Stats describes one Clip call
type Stats struct {
	Features       int
	Clipped        int
	Emptied        int
	SkippedEmpty   int
	SkippedInvalid int
	Failed         int
	Cancelled      bool
	Duration       time.Duration
}

// Clipper cuts every feature of a layer down to a tile rectangle
type Clipper struct {
	scheme tile.Scheme
	crs    string
	logger *zap.Logger
}

// NewClipper creates a clipper; a nil opts clips xyz tiles in web mercator
func NewClipper(opts *Options) *Clipper {
	c := &Clipper{scheme: tile.SchemeXYZ, crs: tile.CRSWebMercator, logger: zap.NewNop()}
	if opts == nil {
		return c
	}
	if opts.Scheme != "" {
		c.scheme = opts.Scheme
	}
	if opts.CRS != "" {
		c.crs = opts.CRS
	}
	if opts.Logger != nil {
		c.logger = opts.Logger
	}
	return c
}

// Clip replaces the geometry of every valid feature of store with its
// intersection with the clip rectangle. With a nil region the rectangle is
// the tile the feature was cut from, read from its _col, _row and _zoom
// attributes.
//
// The edit session is committed however the run ends, so a cancelled or
// failed run keeps the features clipped so far. A missing region stops the
// run with ErrNoRegionAvailable.
func (c *Clipper) Clip(ctx context.Context, store layer.Store, region *Region) (stats *Stats, err error) {
	start := time.Now()
	stats = &Stats{}
	logger := c.logger.With(zap.String("layer", store.Name()))

	var regionRect geometry.Rect
	if region != nil {
		regionRect, err = tile.RangeBounds(region.Zoom, region.XMin, region.YMin, region.XMax, region.YMax, c.scheme, c.crs)
		if err != nil {
			return stats, internal.NewError(internal.ErrorCodeNoRegion,
				fmt.Sprintf("invalid clip region %s", region), fmt.Errorf("%w: %w", ErrNoRegionAvailable, err))
		}
		logger.Info("clipping to region", zap.Stringer("region", region), zap.Stringer("rect", regionRect))
	}

	if err := store.BeginEdit(); err != nil {
		return stats, internal.NewError(internal.ErrorCodeStoreTransaction,
			fmt.Sprintf("failed to begin edit of layer %s", store.Name()), err)
	}
	defer func() {
		if commitErr := store.CommitEdit(); commitErr != nil {
			err = multierr.Append(err, internal.NewError(internal.ErrorCodeStoreTransaction,
				fmt.Sprintf("failed to commit layer %s", store.Name()), commitErr))
		}
		stats.Duration = time.Since(start)
		logger.Info("clip finished",
			zap.Int("features", stats.Features),
			zap.Int("clipped", stats.Clipped),
			zap.Int("emptied", stats.Emptied),
			zap.Int("skipped_invalid", stats.SkippedInvalid),
			zap.Bool("cancelled", stats.Cancelled),
			zap.Duration("duration", stats.Duration))
	}()

	for _, f := range store.Features() {
		if ctx.Err() != nil {
			stats.Cancelled = true
			break
		}
		stats.Features++

		if f.Geometry == nil || f.Geometry.IsEmpty() {
			stats.SkippedEmpty++
			continue
		}

		if errs := f.Geometry.Validate(); len(errs) > 0 {
			stats.SkippedInvalid++
			logger.Debug("skipping invalid geometry",
				zap.Int64("feature", int64(f.ID)),
				zap.Error(multierr.Combine(errs...)))
			continue
		}

		rect := regionRect
		if region == nil {
			rect, err = c.featureRect(f)
			if err != nil {
				return stats, err
			}
		}

		clipped := f.Geometry.Intersection(geometry.Rectangle(rect))
		if clipped == nil {
			stats.Failed++
			logger.Warn("intersection failed", zap.Int64("feature", int64(f.ID)))
			continue
		}

		f.Geometry = clipped
		if err := store.UpdateFeature(f); err != nil {
			return stats, internal.NewError(internal.ErrorCodeStoreTransaction,
				fmt.Sprintf("failed to update feature %d of layer %s", f.ID, store.Name()), err)
		}

		stats.Clipped++
		if clipped.IsEmpty() {
			stats.Emptied++
		}
	}

	return stats, nil
}

// featureRect returns the extent of the tile a feature was cut from
func (c *Clipper) featureRect(f *layer.Feature) (geometry.Rect, error) {
	col, okCol := f.IntAttribute(layer.ColumnAttr)
	row, okRow := f.IntAttribute(layer.RowAttr)
	zoom, okZoom := f.IntAttribute(layer.ZoomAttr)
	if !okCol || !okRow || !okZoom {
		return geometry.EmptyRect(), internal.NewError(internal.ErrorCodeNoRegion,
			fmt.Sprintf("feature %d has no tile coordinates", f.ID), ErrNoRegionAvailable)
	}

	rect, err := tile.Bounds(zoom, col, row, c.scheme, c.crs)
	if err != nil {
		return geometry.EmptyRect(), internal.NewError(internal.ErrorCodeNoRegion,
			fmt.Sprintf("feature %d has invalid tile coordinates", f.ID), fmt.Errorf("%w: %w", ErrNoRegionAvailable, err))
	}
	return rect, nil
}
