// internal/layer/feature.go - Feature records held by a layer
package layer

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/valpere/tile_merge/internal/geometry"
	"github.com/valpere/tile_merge/pkg/mvt"
)

// FeatureID identifies a feature within a store. IDs are never reused.
type FeatureID int64

// Reserved attribute names
const (
	// DissolveGroupField holds the group id assigned by the merge engine
	DissolveGroupField = "dissolveGroup"

	LayerAttr  = mvt.PropertyLayer
	ColumnAttr = mvt.PropertyColumn
	RowAttr    = mvt.PropertyRow
	ZoomAttr   = mvt.PropertyZoom
)

// Feature is a geometry with attributes
type Feature struct {
	ID         FeatureID
	Geometry   geometry.Geometry
	Attributes map[string]interface{}
}

// NewFeature creates a feature that has not been added to a store yet
func NewFeature(g geometry.Geometry, attributes map[string]interface{}) *Feature {
	attrs := make(map[string]interface{}, len(attributes))
	for key, value := range attributes {
		attrs[key] = value
	}
	return &Feature{Geometry: g, Attributes: attrs}
}

// Clone returns a copy with its own attribute map. Geometries are immutable
// and shared.
func (f *Feature) Clone() *Feature {
	clone := NewFeature(f.Geometry, f.Attributes)
	clone.ID = f.ID
	return clone
}

// Attribute returns the value of an attribute
func (f *Feature) Attribute(name string) (interface{}, bool) {
	value, ok := f.Attributes[name]
	return value, ok
}

// SetAttribute sets the value of an attribute
func (f *Feature) SetAttribute(name string, value interface{}) {
	if f.Attributes == nil {
		f.Attributes = make(map[string]interface{})
	}
	f.Attributes[name] = value
}

// StringAttribute returns an attribute formatted as a string; empty when absent
func (f *Feature) StringAttribute(name string) string {
	value, ok := f.Attributes[name]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

// IntAttribute returns an attribute holding a whole number
func (f *Feature) IntAttribute(name string) (int, bool) {
	value, ok := f.Attributes[name]
	if !ok {
		return 0, false
	}

	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}

// DissolveGroup returns the group id, empty when the feature has not been
// merged yet
func (f *Feature) DissolveGroup() string {
	return f.StringAttribute(DissolveGroupField)
}

// Grouped reports whether the feature belongs to a dissolve group
func (f *Feature) Grouped() bool {
	return f.DissolveGroup() != ""
}
