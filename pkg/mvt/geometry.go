// pkg/mvt/geometry.go - Shared geometry transformation utilities
package mvt

import (
	"fmt"

	"github.com/paulmach/orb"
)

// applyGeometryTransform applies a transformation function to all coordinates in a geometry
func applyGeometryTransform(geom orb.Geometry, transform func(orb.Point) orb.Point) orb.Geometry {
	switch g := geom.(type) {
	case orb.Point:
		return transform(g)
	case orb.MultiPoint:
		result := make(orb.MultiPoint, len(g))
		for i, point := range g {
			result[i] = transform(point)
		}
		return result
	case orb.LineString:
		result := make(orb.LineString, len(g))
		for i, point := range g {
			result[i] = transform(point)
		}
		return result
	case orb.MultiLineString:
		result := make(orb.MultiLineString, len(g))
		for i, lineString := range g {
			result[i] = applyGeometryTransform(lineString, transform).(orb.LineString)
		}
		return result
	case orb.Ring:
		result := make(orb.Ring, len(g))
		for i, point := range g {
			result[i] = transform(point)
		}
		return result
	case orb.Polygon:
		result := make(orb.Polygon, len(g))
		for i, ring := range g {
			result[i] = applyGeometryTransform(ring, transform).(orb.Ring)
		}
		return result
	case orb.MultiPolygon:
		result := make(orb.MultiPolygon, len(g))
		for i, polygon := range g {
			result[i] = applyGeometryTransform(polygon, transform).(orb.Polygon)
		}
		return result
	default:
		return geom
	}
}

// rawCoordinates flattens an orb geometry into the nested sequence shape of
// GeoJSON coordinates, with orb.Point leaves.
func rawCoordinates(geom orb.Geometry) (interface{}, error) {
	switch g := geom.(type) {
	case orb.Point:
		return g, nil
	case orb.MultiPoint:
		return pointSequence(g), nil
	case orb.LineString:
		return pointSequence(g), nil
	case orb.Ring:
		return pointSequence(g), nil
	case orb.MultiLineString:
		result := make([]interface{}, len(g))
		for i, ls := range g {
			result[i] = pointSequence(ls)
		}
		return result, nil
	case orb.Polygon:
		return polygonSequence(g), nil
	case orb.MultiPolygon:
		result := make([]interface{}, len(g))
		for i, polygon := range g {
			result[i] = polygonSequence(polygon)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("%w: unsupported geometry %T", ErrMalformedGeometry, geom)
	}
}

func pointSequence(points []orb.Point) []interface{} {
	result := make([]interface{}, len(points))
	for i, p := range points {
		result[i] = p
	}
	return result
}

func polygonSequence(polygon orb.Polygon) []interface{} {
	result := make([]interface{}, len(polygon))
	for i, ring := range polygon {
		result[i] = pointSequence(ring)
	}
	return result
}

// buildGeometry turns raw coordinates back into an orb geometry of the given
// kind, using IsMulti to pick between the single and multi variants.
func buildGeometry(kind GeometryKind, coordinates interface{}) (orb.Geometry, error) {
	multi, err := IsMulti(kind, coordinates)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindPoint:
		if !multi {
			p, _ := coordinatePair(coordinates)
			return p, nil
		}
		points, err := toPoints(coordinates)
		if err != nil {
			return nil, err
		}
		return orb.MultiPoint(points), nil

	case KindLineString:
		if !multi {
			points, err := toPoints(coordinates)
			if err != nil {
				return nil, err
			}
			return orb.LineString(points), nil
		}
		lines, err := toSequences(coordinates)
		if err != nil {
			return nil, err
		}
		result := make(orb.MultiLineString, len(lines))
		for i, line := range lines {
			points, err := toPoints(line)
			if err != nil {
				return nil, err
			}
			result[i] = orb.LineString(points)
		}
		return result, nil

	case KindPolygon:
		if !multi {
			return toPolygon(coordinates)
		}
		polygons, err := toSequences(coordinates)
		if err != nil {
			return nil, err
		}
		result := make(orb.MultiPolygon, len(polygons))
		for i, polygon := range polygons {
			p, err := toPolygon(polygon)
			if err != nil {
				return nil, err
			}
			result[i] = p
		}
		return result, nil

	default:
		return nil, fmt.Errorf("%w: unknown geometry kind %d", ErrMalformedGeometry, int(kind))
	}
}

func toSequences(coordinates interface{}) ([]interface{}, error) {
	items, ok := asSequence(coordinates)
	if !ok {
		return nil, fmt.Errorf("%w: expected a coordinate sequence, got %T", ErrMalformedGeometry, coordinates)
	}
	return items, nil
}

func toPoints(coordinates interface{}) ([]orb.Point, error) {
	items, err := toSequences(coordinates)
	if err != nil {
		return nil, err
	}
	points := make([]orb.Point, len(items))
	for i, item := range items {
		p, ok := coordinatePair(item)
		if !ok {
			return nil, fmt.Errorf("%w: expected a numeric pair, got %v", ErrMalformedGeometry, item)
		}
		points[i] = p
	}
	return points, nil
}

// toPolygon accepts either rings or a bare ring
func toPolygon(coordinates interface{}) (orb.Polygon, error) {
	depth, err := ArrayDepth(coordinates)
	if err != nil {
		return nil, err
	}
	if depth == 0 {
		points, err := toPoints(coordinates)
		if err != nil {
			return nil, err
		}
		return orb.Polygon{orb.Ring(points)}, nil
	}

	rings, err := toSequences(coordinates)
	if err != nil {
		return nil, err
	}
	result := make(orb.Polygon, len(rings))
	for i, ring := range rings {
		points, err := toPoints(ring)
		if err != nil {
			return nil, err
		}
		result[i] = orb.Ring(points)
	}
	return result, nil
}
