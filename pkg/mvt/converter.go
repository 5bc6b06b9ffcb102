// pkg/mvt/converter.go - MVT to GeoJSON conversion implementation
package mvt

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"
	"go.uber.org/zap"
)

// Properties written on every converted feature. The tile coordinates let
// downstream steps recover the tile a fragment was cut from.
const (
	PropertyLayer  = "_layer"
	PropertyColumn = "_col"
	PropertyRow    = "_row"
	PropertyZoom   = "_zoom"
)

// Converter handles conversion of Mapbox Vector Tiles to GeoJSON format
type Converter struct {
	decoder *Decoder
	options *ConversionOptions
	logger  *zap.Logger
}

// ConversionOptions configures the conversion process
type ConversionOptions struct {
	IncludeMetadata   bool     `json:"include_metadata"`          // Include tile metadata in output
	LayerFilter       []string `json:"layer_filter,omitempty"`    // Only include specified layers
	PropertyFilter    []string `json:"property_filter,omitempty"` // Only include specified properties
	SimplifyGeometry  bool     `json:"simplify_geometry"`         // Simplify geometries using Douglas-Peucker
	SimplifyTolerance float64  `json:"simplify_tolerance"`        // Douglas-Peucker threshold in map units
	CoordinateSystem  string   `json:"coordinate_system"`         // "web-mercator" or "wgs84"
	Extent            int      `json:"extent"`                    // Fallback extent for layers without one
	KeepOutside       bool     `json:"keep_outside"`              // Keep fragments lying only in the tile buffer
}

// ConversionMetadata contains metadata about the conversion process
type ConversionMetadata struct {
	Layers       []string `json:"layers"`
	FeatureCount int      `json:"feature_count"`
	Dropped      int      `json:"dropped"`
	Version      int      `json:"version"`
	Extent       int      `json:"extent"`
	TileID       string   `json:"tile_id"`
}

// Coordinate system constants
const (
	CoordSystemWebMercator = "web-mercator"
	CoordSystemWGS84       = "wgs84"
)

// DefaultConversionOptions returns the options used by NewConverter
func DefaultConversionOptions() *ConversionOptions {
	return &ConversionOptions{
		SimplifyTolerance: 1.0,
		CoordinateSystem:  CoordSystemWebMercator,
		Extent:            DefaultExtent,
	}
}

// NewConverter creates a new MVT to GeoJSON converter with default options
func NewConverter() *Converter {
	return &Converter{
		decoder: NewDecoder(),
		options: DefaultConversionOptions(),
		logger:  zap.NewNop(),
	}
}

// NewConverterWithOptions creates a converter with custom options
func NewConverterWithOptions(options *ConversionOptions) (*Converter, error) {
	if err := ValidateConversionOptions(options); err != nil {
		return nil, fmt.Errorf("invalid conversion options: %w", err)
	}

	extent := options.Extent
	if extent <= 0 {
		extent = DefaultExtent
	}

	return &Converter{
		decoder: NewDecoderWithExtent(extent).KeepOutside(options.KeepOutside),
		options: options,
		logger:  zap.NewNop(),
	}, nil
}

// WithLogger sets the logger used for per-feature conversion problems
func (c *Converter) WithLogger(logger *zap.Logger) *Converter {
	if logger != nil {
		c.logger = logger
		c.decoder.WithLogger(logger)
	}
	return c
}

// Convert transforms MVT binary data to a GeoJSON feature collection
func (c *Converter) Convert(data []byte, z, x, y int) (*geojson.FeatureCollection, *ConversionMetadata, error) {
	decodedTile, err := c.decoder.Decode(data, z, x, y)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode MVT: %w", err)
	}

	featureCollection := geojson.NewFeatureCollection()
	failed := 0

	if decodedTile.IsEmpty() {
		c.logger.Debug("tile has no features",
			zap.String("tile", decodedTile.TileID.String()),
			zap.Int("dropped", decodedTile.Dropped))
	}

	for _, layerName := range decodedTile.GetLayerNames() {
		if len(c.options.LayerFilter) > 0 && !c.contains(c.options.LayerFilter, layerName) {
			continue
		}

		for _, feature := range decodedTile.Layers[layerName].Features {
			if feature.Geometry == nil {
				c.logger.Warn("skipping feature with nil geometry", zap.String("layer", layerName))
				continue
			}

			geoJSONFeature, err := c.convertFeatureToGeoJSON(feature, layerName, decodedTile.TileID)
			if err != nil {
				failed++
				c.logger.Debug("conversion error",
					zap.String("layer", layerName),
					zap.String("tile", decodedTile.TileID.String()),
					zap.Error(err))
				continue
			}

			if c.options.SimplifyGeometry && geoJSONFeature.Geometry != nil {
				geoJSONFeature.Geometry = simplify.DouglasPeucker(c.options.SimplifyTolerance).Simplify(geoJSONFeature.Geometry)
			}

			featureCollection.Append(geoJSONFeature)
		}
	}

	if failed > 0 {
		c.logger.Warn("conversion completed with errors",
			zap.String("tile", decodedTile.TileID.String()),
			zap.Int("failed", failed))
	}

	if c.options.CoordinateSystem == CoordSystemWGS84 {
		c.transformToWGS84(featureCollection)
	}

	metadata := &ConversionMetadata{
		Layers:       decodedTile.GetLayerNames(),
		FeatureCount: len(featureCollection.Features),
		Dropped:      decodedTile.Dropped,
		Version:      decodedTile.Version,
		Extent:       decodedTile.Extent,
		TileID:       decodedTile.TileID.String(),
	}

	if c.options.IncludeMetadata {
		featureCollection.ExtraMembers = geojson.Properties{"metadata": metadata}
	}

	return featureCollection, metadata, nil
}

// convertFeatureToGeoJSON converts a decoded feature to GeoJSON format
func (c *Converter) convertFeatureToGeoJSON(feature *DecodedFeature, layerName string, tileID TileID) (*geojson.Feature, error) {
	if feature.Geometry == nil {
		return nil, fmt.Errorf("feature has no geometry")
	}

	geoJSONFeature := geojson.NewFeature(feature.Geometry)
	if feature.ID != nil {
		geoJSONFeature.ID = feature.ID
	}

	for key, value := range feature.Tags {
		if len(c.options.PropertyFilter) > 0 && !c.contains(c.options.PropertyFilter, key) {
			continue
		}
		geoJSONFeature.Properties[key] = value
	}

	geoJSONFeature.Properties[PropertyLayer] = layerName
	geoJSONFeature.Properties[PropertyColumn] = tileID.X
	geoJSONFeature.Properties[PropertyRow] = tileID.Y
	geoJSONFeature.Properties[PropertyZoom] = tileID.Z

	return geoJSONFeature, nil
}

// transformToWGS84 converts Web Mercator coordinates to WGS84 (longitude/latitude)
func (c *Converter) transformToWGS84(featureCollection *geojson.FeatureCollection) {
	for _, feature := range featureCollection.Features {
		if feature.Geometry != nil {
			feature.Geometry = c.transformGeometryToWGS84(feature.Geometry)
		}
	}
}

// transformGeometryToWGS84 transforms a single geometry from Web Mercator to WGS84
func (c *Converter) transformGeometryToWGS84(geometry orb.Geometry) orb.Geometry {
	transform := func(point orb.Point) orb.Point {
		x, y := point[0], point[1]

		lon := (x / webMercatorMax) * 180.0

		lat := y / webMercatorMax
		lat = 180.0 / math.Pi * (2*math.Atan(math.Exp(lat*math.Pi)) - math.Pi/2.0)

		return orb.Point{lon, lat}
	}

	return applyGeometryTransform(geometry, transform)
}

// contains checks if a slice contains a specific string
func (c *Converter) contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// ConvertToGeoJSONString converts MVT data to a GeoJSON string
func (c *Converter) ConvertToGeoJSONString(data []byte, z, x, y int, pretty bool) (string, error) {
	result, _, err := c.Convert(data, z, x, y)
	if err != nil {
		return "", err
	}

	var jsonData []byte
	if pretty {
		jsonData, err = json.MarshalIndent(result, "", "  ")
	} else {
		jsonData, err = json.Marshal(result)
	}

	if err != nil {
		return "", fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}

	return string(jsonData), nil
}

// ValidateConversionOptions validates the conversion options
func ValidateConversionOptions(options *ConversionOptions) error {
	if options == nil {
		return fmt.Errorf("conversion options are required")
	}
	if options.CoordinateSystem != CoordSystemWebMercator && options.CoordinateSystem != CoordSystemWGS84 {
		return fmt.Errorf("invalid coordinate system: %s, must be '%s' or '%s'",
			options.CoordinateSystem, CoordSystemWebMercator, CoordSystemWGS84)
	}
	if options.SimplifyGeometry && options.SimplifyTolerance <= 0 {
		return fmt.Errorf("simplify tolerance must be positive when simplification is enabled")
	}
	if options.Extent < 0 {
		return fmt.Errorf("extent must not be negative")
	}
	return nil
}
