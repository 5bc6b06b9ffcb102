// internal/geometry/orb.go - Conversion between orb and GEOS geometries
package geometry

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FromOrb converts an orb geometry through its GeoJSON encoding
func FromOrb(g orb.Geometry) (*GEOS, error) {
	if g == nil {
		return nil, fmt.Errorf("geometry is nil")
	}

	data, err := geojson.NewGeometry(g).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode geometry: %w", err)
	}
	return FromGeoJSON(data)
}

// ToOrb converts a geometry back to orb. Only GEOS geometries are supported.
func ToOrb(g Geometry) (orb.Geometry, error) {
	gg, ok := g.(*GEOS)
	if !ok || gg.null() {
		return nil, fmt.Errorf("unsupported geometry %T", g)
	}
	return gg.Orb()
}

// Orb returns the geometry as an orb geometry
func (g *GEOS) Orb() (_ orb.Geometry, err error) {
	if g.null() {
		return nil, fmt.Errorf("geometry is nil")
	}
	defer recoverError(&err)

	decoded, err := geojson.UnmarshalGeometry([]byte(g.geom.ToGeoJSON(0)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode geometry: %w", err)
	}
	return decoded.Geometry(), nil
}

// MarshalJSON encodes the geometry as a GeoJSON geometry object
func (g *GEOS) MarshalJSON() (_ []byte, err error) {
	if g.null() {
		return []byte("null"), nil
	}
	defer recoverError(&err)

	return []byte(g.geom.ToGeoJSON(0)), nil
}
