// internal/geometry/geometry.go - Geometry contract used by the clipper and the merge engine
package geometry

import (
	"fmt"
	"math"
)

// Geometry is the set of operations the merge engine and the clipper need
// from a geometry library. Operations that fail inside the library return
// nil (or report disjoint) instead of panicking.
type Geometry interface {
	// Buffer returns the geometry grown by distance. Buffer(0, n) is used to
	// normalize polygons; lines and points collapse to an empty geometry.
	Buffer(distance float64, segments int) Geometry
	// Combine returns the union of both geometries, or nil on failure.
	Combine(other Geometry) Geometry
	// Intersection returns the shared part of both geometries, or nil on failure.
	Intersection(other Geometry) Geometry
	// Disjoint reports whether the geometries share no point.
	Disjoint(other Geometry) bool
	// BoundingBox returns the axis aligned extent of the geometry.
	BoundingBox() Rect
	// Validate returns the validity problems of the geometry; nil when valid.
	Validate() []error
	IsEmpty() bool
	Type() string
	// Equals reports topological equality.
	Equals(other Geometry) bool
	String() string
}

// Rect is an axis aligned rectangle in map units
type Rect struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// EmptyRect is the extent of an empty geometry. It intersects nothing and
// Extend on it yields the other rectangle.
func EmptyRect() Rect {
	return Rect{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
}

// IsEmpty reports whether the rectangle covers no point
func (r Rect) IsEmpty() bool {
	return r.MinX > r.MaxX || r.MinY > r.MaxY
}

func (r Rect) Width() float64 {
	return r.MaxX - r.MinX
}

func (r Rect) Height() float64 {
	return r.MaxY - r.MinY
}

// Expand grows the rectangle by d on every side
func (r Rect) Expand(d float64) Rect {
	if r.IsEmpty() {
		return r
	}
	return Rect{MinX: r.MinX - d, MinY: r.MinY - d, MaxX: r.MaxX + d, MaxY: r.MaxY + d}
}

// Extend returns the smallest rectangle covering both
func (r Rect) Extend(o Rect) Rect {
	return Rect{
		MinX: math.Min(r.MinX, o.MinX),
		MinY: math.Min(r.MinY, o.MinY),
		MaxX: math.Max(r.MaxX, o.MaxX),
		MaxY: math.Max(r.MaxY, o.MaxY),
	}
}

// Intersects reports whether the rectangles share at least one point
func (r Rect) Intersects(o Rect) bool {
	if r.IsEmpty() || o.IsEmpty() {
		return false
	}
	return r.MinX <= o.MaxX && o.MinX <= r.MaxX && r.MinY <= o.MaxY && o.MinY <= r.MaxY
}

func (r Rect) String() string {
	return fmt.Sprintf("[%g %g, %g %g]", r.MinX, r.MinY, r.MaxX, r.MaxY)
}

// ValidationError describes why a geometry is not valid
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid geometry: " + e.Reason
}
