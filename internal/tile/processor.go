// internal/tile/processor.go - Tile processing implementation
package tile

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/valpere/tile_merge/pkg/mvt"
)

// MVTProcessor implements the Processor interface for Mapbox Vector Tiles
type MVTProcessor struct {
	converter *mvt.Converter
	scheme    Scheme
}

// NewMVTProcessor creates a new processor for Mapbox Vector Tiles
func NewMVTProcessor() *MVTProcessor {
	return &MVTProcessor{
		converter: mvt.NewConverter(),
		scheme:    SchemeXYZ,
	}
}

// NewMVTProcessorWithOptions creates a processor for tiles addressed in the
// given scheme
func NewMVTProcessorWithOptions(options *mvt.ConversionOptions, scheme Scheme, logger *zap.Logger) (*MVTProcessor, error) {
	converter, err := mvt.NewConverterWithOptions(options)
	if err != nil {
		return nil, err
	}
	if scheme == "" {
		scheme = SchemeXYZ
	}

	return &MVTProcessor{
		converter: converter.WithLogger(logger),
		scheme:    scheme,
	}, nil
}

// Process converts a single tile response to GeoJSON features. Rows of tms
// tiles are flipped for decoding while the _row property keeps the row the
// tile was requested with.
func (p *MVTProcessor) Process(response *TileResponse) (*ProcessedTile, error) {
	start := time.Now()

	coordinate := &TileCoordinate{
		Z: response.Request.Z,
		X: response.Request.X,
		Y: response.Request.Y,
	}

	// Handle cases where the fetch failed
	if response.Error != nil {
		return &ProcessedTile{
			Coordinate: coordinate,
			Error:      fmt.Errorf("tile fetch failed: %w", response.Error),
		}, response.Error
	}

	// Validate that we have data to process
	if len(response.Data) == 0 {
		return &ProcessedTile{
			Coordinate: coordinate,
			Error:      fmt.Errorf("empty tile data received"),
		}, fmt.Errorf("empty tile data for tile %s", coordinate.String())
	}

	if err := ValidateCoordinates(coordinate.Z, coordinate.X, coordinate.Y); err != nil {
		return &ProcessedTile{Coordinate: coordinate, Error: err}, err
	}

	collection, metadata, err := p.converter.Convert(
		response.Data,
		coordinate.Z,
		coordinate.X,
		XYZRow(coordinate.Z, coordinate.Y, p.scheme),
	)
	if err != nil {
		return &ProcessedTile{
			Coordinate: coordinate,
			Error:      fmt.Errorf("MVT conversion failed: %w", err),
		}, err
	}

	if p.scheme != SchemeXYZ {
		for _, feature := range collection.Features {
			feature.Properties[mvt.PropertyRow] = coordinate.Y
		}
	}

	return &ProcessedTile{
		Coordinate: coordinate,
		Collection: collection,
		Metadata: &TileMetadata{
			Layers:       metadata.Layers,
			FeatureCount: metadata.FeatureCount,
			Dropped:      metadata.Dropped,
			Size:         len(response.Data),
			ProcessTime:  time.Since(start),
			Version:      metadata.Version,
			Extent:       metadata.Extent,
			Compressed:   isCompressed(response.Headers),
		},
	}, nil
}

// isCompressed checks if the tile data was compressed based on response headers
func isCompressed(headers map[string][]string) bool {
	if contentEncoding, exists := headers["Content-Encoding"]; exists {
		for _, encoding := range contentEncoding {
			if encoding == "gzip" || encoding == "deflate" {
				return true
			}
		}
	}
	return false
}

// ValidateCoordinates ensures tile coordinates are within valid bounds
func ValidateCoordinates(z, x, y int) error {
	if z < 0 || z > 22 {
		return fmt.Errorf("invalid zoom level %d: must be between 0 and 22", z)
	}

	maxTile := 1 << uint(z)
	if x < 0 || x >= maxTile {
		return fmt.Errorf("invalid x coordinate %d for zoom %d: must be between 0 and %d", x, z, maxTile-1)
	}

	if y < 0 || y >= maxTile {
		return fmt.Errorf("invalid y coordinate %d for zoom %d: must be between 0 and %d", y, z, maxTile-1)
	}

	return nil
}
