// internal/geometry/geos.go - GEOS backed geometry
package geometry

import (
	"fmt"

	"github.com/twpayne/go-geos"
)

// DefaultBufferSegments is the number of segments per quarter circle used
// when callers pass a non-positive segment count
const DefaultBufferSegments = 8

// GEOS wraps a go-geos geometry. go-geos panics when the underlying library
// raises an exception, so every operation recovers and reports failure
// through its return value.
type GEOS struct {
	geom *geos.Geom
}

// New wraps an existing go-geos geometry
func New(g *geos.Geom) *GEOS {
	if g == nil {
		return nil
	}
	return &GEOS{geom: g}
}

// FromWKT parses well known text
func FromWKT(wkt string) (_ *GEOS, err error) {
	defer recoverError(&err)

	g, err := geos.NewGeomFromWKT(wkt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse WKT: %w", err)
	}
	return New(g), nil
}

// FromGeoJSON parses a GeoJSON geometry object
func FromGeoJSON(data []byte) (_ *GEOS, err error) {
	defer recoverError(&err)

	g, err := geos.NewGeomFromGeoJSON(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse GeoJSON geometry: %w", err)
	}
	return New(g), nil
}

// Rectangle returns the polygon covering r
func Rectangle(r Rect) *GEOS {
	return New(geos.NewPolygon([][][]float64{{
		{r.MinX, r.MinY},
		{r.MaxX, r.MinY},
		{r.MaxX, r.MaxY},
		{r.MinX, r.MaxY},
		{r.MinX, r.MinY},
	}}))
}

// Geom returns the wrapped go-geos geometry
func (g *GEOS) Geom() *geos.Geom {
	if g == nil {
		return nil
	}
	return g.geom
}

func (g *GEOS) Buffer(distance float64, segments int) (result Geometry) {
	if g.null() {
		return nil
	}
	if segments <= 0 {
		segments = DefaultBufferSegments
	}
	defer recoverNil(&result)

	return wrap(g.geom.Buffer(distance, segments))
}

func (g *GEOS) Combine(other Geometry) (result Geometry) {
	o, ok := other.(*GEOS)
	if g.null() || !ok || o.null() {
		return nil
	}
	defer recoverNil(&result)

	return wrap(g.geom.Union(o.geom))
}

func (g *GEOS) Intersection(other Geometry) (result Geometry) {
	o, ok := other.(*GEOS)
	if g.null() || !ok || o.null() {
		return nil
	}
	defer recoverNil(&result)

	return wrap(g.geom.Intersection(o.geom))
}

// Disjoint reports true when either geometry is missing or the predicate
// cannot be evaluated, so a failing pair is never merged.
func (g *GEOS) Disjoint(other Geometry) (disjoint bool) {
	o, ok := other.(*GEOS)
	if g.null() || !ok || o.null() {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			disjoint = true
		}
	}()

	return g.geom.Disjoint(o.geom)
}

func (g *GEOS) BoundingBox() (rect Rect) {
	if g.IsEmpty() {
		return EmptyRect()
	}
	defer func() {
		if r := recover(); r != nil {
			rect = EmptyRect()
		}
	}()

	b := g.geom.Bounds()
	return Rect{MinX: b.MinX, MinY: b.MinY, MaxX: b.MaxX, MaxY: b.MaxY}
}

func (g *GEOS) Validate() (errs []error) {
	if g.null() {
		return []error{&ValidationError{Reason: "null geometry"}}
	}
	defer func() {
		if r := recover(); r != nil {
			errs = []error{&ValidationError{Reason: fmt.Sprint(r)}}
		}
	}()

	if g.geom.IsValid() {
		return nil
	}
	return []error{&ValidationError{Reason: g.geom.IsValidReason()}}
}

func (g *GEOS) IsEmpty() (empty bool) {
	if g.null() {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			empty = true
		}
	}()

	return g.geom.IsEmpty()
}

func (g *GEOS) Type() string {
	if g.null() {
		return ""
	}
	return g.geom.Type()
}

func (g *GEOS) Equals(other Geometry) (equal bool) {
	o, ok := other.(*GEOS)
	if g.null() || !ok || o.null() {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			equal = false
		}
	}()

	return g.geom.Equals(o.geom)
}

// Area returns the planar area in square map units
func (g *GEOS) Area() float64 {
	if g.IsEmpty() {
		return 0
	}
	return g.geom.Area()
}

func (g *GEOS) String() string {
	if g.null() {
		return "<nil>"
	}
	return g.geom.ToWKT()
}

func (g *GEOS) null() bool {
	return g == nil || g.geom == nil
}

// wrap avoids returning a typed nil inside the Geometry interface
func wrap(g *geos.Geom) Geometry {
	if g == nil {
		return nil
	}
	return &GEOS{geom: g}
}

func recoverNil(result *Geometry) {
	if r := recover(); r != nil {
		*result = nil
	}
}

func recoverError(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("geometry library error: %v", r)
	}
}
