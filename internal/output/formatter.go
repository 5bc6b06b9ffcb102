// internal/output/formatter.go - Output formatting implementation
package output

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"
)

// GeoJSONFormatter formats layers as GeoJSON FeatureCollections
type GeoJSONFormatter struct {
	pretty       bool
	includeStats bool
}

// NewGeoJSONFormatter creates a new GeoJSON formatter
func NewGeoJSONFormatter(pretty, includeStats bool) *GeoJSONFormatter {
	return &GeoJSONFormatter{
		pretty:       pretty,
		includeStats: includeStats,
	}
}

// Format formats a single layer as a FeatureCollection
func (f *GeoJSONFormatter) Format(layer *LayerOutput) ([]byte, error) {
	if layer == nil || layer.Collection == nil {
		return nil, fmt.Errorf("cannot format empty layer")
	}

	collection := *layer.Collection
	if f.includeStats {
		collection.ExtraMembers = geojson.Properties{
			"_metadata": layerMetadata(layer),
		}
	}

	return f.marshal(&collection)
}

// FormatBatch formats all layers as a single FeatureCollection
func (f *GeoJSONFormatter) FormatBatch(layers []*LayerOutput) ([]byte, error) {
	collection := geojson.NewFeatureCollection()
	names := make([]string, 0, len(layers))

	for _, l := range layers {
		if l == nil || l.Collection == nil {
			continue
		}
		names = append(names, l.Name)
		collection.Features = append(collection.Features, l.Collection.Features...)
	}

	if f.includeStats {
		collection.ExtraMembers = geojson.Properties{
			"_metadata": map[string]interface{}{
				"layers":         names,
				"total_features": len(collection.Features),
				"generated_at":   time.Now().UTC(),
			},
		}
	}

	return f.marshal(collection)
}

func (f *GeoJSONFormatter) marshal(collection *geojson.FeatureCollection) ([]byte, error) {
	if f.pretty {
		return json.MarshalIndent(collection, "", "  ")
	}
	return json.Marshal(collection)
}

// ContentType returns the MIME type for GeoJSON
func (f *GeoJSONFormatter) ContentType() string {
	return "application/geo+json"
}

// Extension returns the file extension for GeoJSON
func (f *GeoJSONFormatter) Extension() string {
	return ".geojson"
}

// JSONFormatter formats layers as structured JSON objects
type JSONFormatter struct {
	pretty       bool
	includeStats bool
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(pretty, includeStats bool) *JSONFormatter {
	return &JSONFormatter{
		pretty:       pretty,
		includeStats: includeStats,
	}
}

// Format formats a single layer as a JSON object
func (f *JSONFormatter) Format(layer *LayerOutput) ([]byte, error) {
	if layer == nil || layer.Collection == nil {
		return nil, fmt.Errorf("cannot format empty layer")
	}
	return f.marshal(f.layerObject(layer))
}

// FormatBatch formats multiple layers as a JSON object with a layer array
func (f *JSONFormatter) FormatBatch(layers []*LayerOutput) ([]byte, error) {
	output := make([]interface{}, 0, len(layers))
	totalFeatures := 0

	for _, l := range layers {
		if l == nil || l.Collection == nil {
			continue
		}
		output = append(output, f.layerObject(l))
		totalFeatures += len(l.Collection.Features)
	}

	result := map[string]interface{}{
		"layers": output,
	}

	if f.includeStats {
		result["summary"] = map[string]interface{}{
			"total_layers":   len(output),
			"total_features": totalFeatures,
			"generated_at":   time.Now().UTC(),
		}
	}

	return f.marshal(result)
}

func (f *JSONFormatter) layerObject(layer *LayerOutput) map[string]interface{} {
	object := map[string]interface{}{
		"layer": layer.Name,
		"data":  layer.Collection,
	}
	if f.includeStats {
		object["metadata"] = layerMetadata(layer)
	}
	return object
}

func (f *JSONFormatter) marshal(v interface{}) ([]byte, error) {
	if f.pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// ContentType returns the MIME type for JSON
func (f *JSONFormatter) ContentType() string {
	return "application/json"
}

// Extension returns the file extension for JSON
func (f *JSONFormatter) Extension() string {
	return ".json"
}

func layerMetadata(layer *LayerOutput) map[string]interface{} {
	metadata := map[string]interface{}{
		"layer":         layer.Name,
		"feature_count": len(layer.Collection.Features),
	}
	for key, value := range layer.Metadata {
		metadata[key] = value
	}
	return metadata
}

// NewFormatter creates a formatter based on the specified configuration
func NewFormatter(config *FormatterConfig) (Formatter, error) {
	switch config.Format {
	case FormatGeoJSON:
		return NewGeoJSONFormatter(config.Pretty, config.IncludeStats), nil
	case FormatJSON:
		return NewJSONFormatter(config.Pretty, config.IncludeStats), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", config.Format)
	}
}
