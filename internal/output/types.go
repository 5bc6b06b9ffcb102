// internal/output/types.go - Output handling types
package output

import (
	"fmt"
	"io"

	"github.com/paulmach/orb/geojson"

	"github.com/valpere/tile_merge/internal/layer"
)

// Format represents different output formats supported by the application
type Format string

const (
	FormatGeoJSON Format = "geojson"
	FormatJSON    Format = "json"
)

// LayerOutput is one layer ready to be written
type LayerOutput struct {
	Name       string
	Collection *geojson.FeatureCollection
	Metadata   map[string]interface{}
}

// Writer defines the interface for writing layers to various destinations
type Writer interface {
	Write(layer *LayerOutput) error
	WriteBatch(layers []*LayerOutput) error
	Close() error
}

// Formatter defines the interface for formatting layers into different output formats
type Formatter interface {
	Format(layer *LayerOutput) ([]byte, error)
	FormatBatch(layers []*LayerOutput) ([]byte, error)
	ContentType() string
	Extension() string
}

// Destination represents an output destination (file, stdout, etc.)
type Destination interface {
	io.WriteCloser
	Name() string
	Size() int64
}

// WriterConfig contains configuration for creating writers
type WriterConfig struct {
	Format      Format
	Pretty      bool
	Compression bool
	Metadata    bool
}

// FormatterConfig contains configuration for creating formatters
type FormatterConfig struct {
	Format       Format
	Pretty       bool
	IncludeStats bool
}

// NewLayerOutput converts a layer store into its output form
func NewLayerOutput(store layer.Store) (*LayerOutput, error) {
	fc, err := layer.FeatureCollection(store)
	if err != nil {
		return nil, fmt.Errorf("failed to export layer %s: %w", store.Name(), err)
	}
	return &LayerOutput{
		Name:       store.Name(),
		Collection: fc,
		Metadata:   make(map[string]interface{}),
	}, nil
}

// CatalogOutputs converts every layer of a catalog, ordered by name
func CatalogOutputs(catalog *layer.Catalog) ([]*LayerOutput, error) {
	stores := catalog.Layers()
	outputs := make([]*LayerOutput, 0, len(stores))
	for _, store := range stores {
		out, err := NewLayerOutput(store)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	f := Format(s)
	if !f.IsValid() {
		return "", fmt.Errorf("invalid output format: %s", s)
	}
	return f, nil
}

// String returns a string representation of the format
func (f Format) String() string {
	return string(f)
}

// IsValid checks if the format is supported
func (f Format) IsValid() bool {
	switch f {
	case FormatGeoJSON, FormatJSON:
		return true
	default:
		return false
	}
}
