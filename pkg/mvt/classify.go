// pkg/mvt/classify.go - Geometry kind classification and raw coordinate traversal
package mvt

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/paulmach/orb"
)

// ErrMalformedGeometry is returned when a type tag or a raw coordinate
// structure cannot be interpreted.
var ErrMalformedGeometry = errors.New("malformed geometry")

// GeometryKind is the base kind of a geometry, ignoring multi-ness
type GeometryKind int

const (
	KindUnknown GeometryKind = iota
	KindPoint
	KindLineString
	KindPolygon
)

func (k GeometryKind) String() string {
	switch k {
	case KindPoint:
		return "Point"
	case KindLineString:
		return "LineString"
	case KindPolygon:
		return "Polygon"
	default:
		return "Unknown"
	}
}

var kindsByTypeTag = map[string]GeometryKind{
	"Point":           KindPoint,
	"MultiPoint":      KindPoint,
	"LineString":      KindLineString,
	"MultiLineString": KindLineString,
	"Polygon":         KindPolygon,
	"MultiPolygon":    KindPolygon,
}

// MVT geometry type field values
var kindsByMVTType = map[int]GeometryKind{
	1: KindPoint,
	2: KindLineString,
	3: KindPolygon,
}

// Classify maps a GeoJSON geometry type tag to its base kind
func Classify(typeTag string) (GeometryKind, error) {
	kind, ok := kindsByTypeTag[typeTag]
	if !ok {
		return KindUnknown, fmt.Errorf("%w: unknown geometry type %q", ErrMalformedGeometry, typeTag)
	}
	return kind, nil
}

// KindFromMVT maps the numeric geometry type of a vector tile feature to its base kind
func KindFromMVT(mvtType int) (GeometryKind, error) {
	kind, ok := kindsByMVTType[mvtType]
	if !ok {
		return KindUnknown, fmt.Errorf("%w: unknown vector tile geometry type %d", ErrMalformedGeometry, mvtType)
	}
	return kind, nil
}

// IsMulti reports whether the raw coordinates of a geometry of the given
// kind describe a multi-part geometry.
//
// A point is multi unless the coordinates are exactly one numeric pair. A
// line string is multi unless the coordinates are a flat sequence of pairs.
// A polygon is multi when its array depth is two or more, so a polygon with
// rings is single while an extra enclosing level makes it multi.
func IsMulti(kind GeometryKind, coordinates interface{}) (bool, error) {
	switch kind {
	case KindPoint:
		_, single := coordinatePair(coordinates)
		return !single, nil
	case KindLineString:
		items, ok := asSequence(coordinates)
		if !ok {
			return false, fmt.Errorf("%w: line string coordinates are not a sequence", ErrMalformedGeometry)
		}
		for _, item := range items {
			if _, ok := coordinatePair(item); !ok {
				return true, nil
			}
		}
		return false, nil
	case KindPolygon:
		depth, err := ArrayDepth(coordinates)
		if err != nil {
			return false, err
		}
		return depth >= 2, nil
	default:
		return false, fmt.Errorf("%w: unknown geometry kind %d", ErrMalformedGeometry, int(kind))
	}
}

// ArrayDepth returns how many levels sit above the innermost sequence of
// numbers, following the first element at every level. A bare ring has depth
// 0, a polygon made of rings depth 1 and a multipolygon depth 2.
func ArrayDepth(coordinates interface{}) (int, error) {
	depth := 0
	current := coordinates
	for {
		items, ok := asSequence(current)
		if !ok {
			return 0, fmt.Errorf("%w: expected a sequence at depth %d", ErrMalformedGeometry, depth)
		}
		if len(items) == 0 {
			return 0, fmt.Errorf("%w: empty sequence at depth %d", ErrMalformedGeometry, depth)
		}

		first, ok := asSequence(items[0])
		if !ok {
			return 0, fmt.Errorf("%w: expected a sequence at depth %d", ErrMalformedGeometry, depth+1)
		}
		if len(first) == 0 {
			return 0, fmt.Errorf("%w: empty sequence at depth %d", ErrMalformedGeometry, depth+1)
		}
		if allNumbers(first) {
			return depth, nil
		}

		depth++
		current = items[0]
	}
}

// CoordinateTransform maps a single numeric pair
type CoordinateTransform func(orb.Point) orb.Point

// BoundsReporter receives one report per traversed level
type BoundsReporter func(allOutOfBounds bool)

// MapCoordinates walks a raw coordinate structure depth first and returns a
// structure of the same shape with every numeric pair replaced by
// transform(pair). Pairs come back as []float64, sequences as []interface{}.
//
// Each level calls report once. The report is true when the level directly
// holds at least one pair and none of its pairs lies inside [1, bound] on
// both axes. Levels holding only nested sequences report false. A nil
// transform keeps pairs unchanged; a nil report discards the reports.
func MapCoordinates(coordinates interface{}, bound float64, transform CoordinateTransform, report BoundsReporter) (interface{}, error) {
	if transform == nil {
		transform = func(p orb.Point) orb.Point { return p }
	}
	if report == nil {
		report = func(bool) {}
	}

	if pair, ok := coordinatePair(coordinates); ok {
		report(false)
		p := transform(pair)
		return []float64{p[0], p[1]}, nil
	}

	return mapLevel(coordinates, bound, transform, report)
}

func mapLevel(coordinates interface{}, bound float64, transform CoordinateTransform, report BoundsReporter) (interface{}, error) {
	items, ok := asSequence(coordinates)
	if !ok {
		return nil, fmt.Errorf("%w: expected a coordinate sequence, got %T", ErrMalformedGeometry, coordinates)
	}

	result := make([]interface{}, len(items))
	pairs, inside := 0, 0

	for i, item := range items {
		if pair, ok := coordinatePair(item); ok {
			pairs++
			if withinBound(pair, bound) {
				inside++
			}
			p := transform(pair)
			result[i] = []float64{p[0], p[1]}
			continue
		}

		mapped, err := mapLevel(item, bound, transform, report)
		if err != nil {
			return nil, err
		}
		result[i] = mapped
	}

	report(pairs > 0 && inside == 0)
	return result, nil
}

// OutOfBounds tallies MapCoordinates reports for one geometry
type OutOfBounds struct {
	levels  int
	outside int
}

// Report records one level report; pass it as the BoundsReporter
func (o *OutOfBounds) Report(allOutOfBounds bool) {
	o.levels++
	if allOutOfBounds {
		o.outside++
	}
}

// Outside returns the number of levels that were completely out of bounds
func (o *OutOfBounds) Outside() int {
	return o.outside
}

// Levels returns the number of reports received
func (o *OutOfBounds) Levels() int {
	return o.levels
}

// AllOutside reports whether every level holding pairs was out of bounds.
// pairLevels is the number of such levels, see PairLevels.
func (o *OutOfBounds) AllOutside(pairLevels int) bool {
	return pairLevels > 0 && o.outside == pairLevels
}

// PairLevels counts the sequences of a raw coordinate structure that
// directly contain at least one numeric pair.
func PairLevels(coordinates interface{}) int {
	if _, ok := coordinatePair(coordinates); ok {
		return 0
	}
	items, ok := asSequence(coordinates)
	if !ok {
		return 0
	}

	count, direct := 0, false
	for _, item := range items {
		if _, ok := coordinatePair(item); ok {
			direct = true
			continue
		}
		count += PairLevels(item)
	}
	if direct {
		count++
	}
	return count
}

func withinBound(p orb.Point, bound float64) bool {
	return p[0] >= 1 && p[0] <= bound && p[1] >= 1 && p[1] <= bound
}

// asSequence converts any slice or array value to a generic sequence
func asSequence(v interface{}) ([]interface{}, bool) {
	switch s := v.(type) {
	case nil:
		return nil, false
	case []interface{}:
		return s, true
	case string, []byte:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	items := make([]interface{}, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

// coordinatePair reports whether v is a sequence of exactly two numbers
func coordinatePair(v interface{}) (orb.Point, bool) {
	if p, ok := v.(orb.Point); ok {
		return p, true
	}

	items, ok := asSequence(v)
	if !ok || len(items) != 2 {
		return orb.Point{}, false
	}

	x, ok := toFloat(items[0])
	if !ok {
		return orb.Point{}, false
	}
	y, ok := toFloat(items[1])
	if !ok {
		return orb.Point{}, false
	}
	return orb.Point{x, y}, true
}

func allNumbers(items []interface{}) bool {
	for _, item := range items {
		if _, ok := toFloat(item); !ok {
			return false
		}
	}
	return true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
