// internal/tile/bounds.go - Tile extents in map coordinates
package tile

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"

	"github.com/valpere/tile_merge/internal/geometry"
)

// Scheme is the row numbering of a tile pyramid
type Scheme string

const (
	// SchemeXYZ counts rows from the north edge
	SchemeXYZ Scheme = "xyz"
	// SchemeTMS counts rows from the south edge
	SchemeTMS Scheme = "tms"
)

// CRS values understood by Bounds
const (
	CRSWebMercator = "web-mercator"
	CRSWGS84       = "wgs84"
)

// ParseScheme accepts "xyz" and "tms", empty meaning xyz
func ParseScheme(s string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(SchemeXYZ):
		return SchemeXYZ, nil
	case string(SchemeTMS):
		return SchemeTMS, nil
	default:
		return "", fmt.Errorf("unknown tile scheme %q", s)
	}
}

// XYZRow converts a row of the given scheme to the xyz row
func XYZRow(z, y int, scheme Scheme) int {
	if scheme == SchemeTMS {
		return (1 << uint(z)) - 1 - y
	}
	return y
}

// Bounds returns the extent of tile z/x/y in the given scheme. The extent is
// in web mercator meters unless crs is wgs84, in which case it is in degrees.
func Bounds(z, x, y int, scheme Scheme, crs string) (geometry.Rect, error) {
	if err := ValidateCoordinates(z, x, y); err != nil {
		return geometry.EmptyRect(), err
	}

	bound := maptile.New(uint32(x), uint32(XYZRow(z, y, scheme)), maptile.Zoom(z)).Bound()

	switch strings.ToLower(crs) {
	case "", CRSWebMercator:
		bound = orb.Bound{
			Min: project.WGS84.ToMercator(bound.Min),
			Max: project.WGS84.ToMercator(bound.Max),
		}
	case CRSWGS84:
	default:
		return geometry.EmptyRect(), fmt.Errorf("unsupported crs %q", crs)
	}

	return geometry.Rect{
		MinX: bound.Min[0],
		MinY: bound.Min[1],
		MaxX: bound.Max[0],
		MaxY: bound.Max[1],
	}, nil
}

// RangeBounds returns the extent covered by an inclusive block of tiles at
// one zoom level
func RangeBounds(z, xMin, yMin, xMax, yMax int, scheme Scheme, crs string) (geometry.Rect, error) {
	first, err := Bounds(z, xMin, yMin, scheme, crs)
	if err != nil {
		return geometry.EmptyRect(), err
	}
	last, err := Bounds(z, xMax, yMax, scheme, crs)
	if err != nil {
		return geometry.EmptyRect(), err
	}
	return first.Extend(last), nil
}
