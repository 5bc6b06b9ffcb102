// pkg/mvt/decoder.go - Mapbox Vector Tile decoding implementation
package mvt

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

// DefaultExtent is the tile extent assumed when a layer does not declare one
const DefaultExtent = 4096

var gzipMagic = []byte{0x1f, 0x8b}

// Decoder handles decoding of Mapbox Vector Tiles from Protocol Buffer format
type Decoder struct {
	extent      int
	keepOutside bool
	logger      *zap.Logger
}

// NewDecoder creates a new MVT decoder with default settings
func NewDecoder() *Decoder {
	return NewDecoderWithExtent(DefaultExtent)
}

// NewDecoderWithExtent creates a new MVT decoder with custom extent
func NewDecoderWithExtent(extent int) *Decoder {
	return &Decoder{
		extent: extent,
		logger: zap.NewNop(),
	}
}

// WithLogger sets the logger used for features that cannot be decoded
func (d *Decoder) WithLogger(logger *zap.Logger) *Decoder {
	if logger != nil {
		d.logger = logger
	}
	return d
}

// KeepOutside makes the decoder keep features that lie completely in the
// tile buffer. By default they are dropped since the neighbouring tile
// carries the same fragment.
func (d *Decoder) KeepOutside(keep bool) *Decoder {
	d.keepOutside = keep
	return d
}

// DecodedTile represents a decoded MVT tile with its layers and metadata
type DecodedTile struct {
	Layers  map[string]*DecodedLayer `json:"layers"`
	Extent  int                      `json:"extent"`
	Version int                      `json:"version"`
	TileID  TileID                   `json:"tile_id"`
	Dropped int                      `json:"dropped"`
}

// DecodedLayer represents a single layer within an MVT tile
type DecodedLayer struct {
	Name     string            `json:"name"`
	Features []*DecodedFeature `json:"features"`
	Extent   int               `json:"extent"`
	Version  int               `json:"version"`
}

// DecodedFeature represents a single feature within a layer
type DecodedFeature struct {
	ID       interface{}            `json:"id,omitempty"`
	Tags     map[string]interface{} `json:"tags"`
	Kind     GeometryKind           `json:"kind"`
	Type     string                 `json:"type"`
	Geometry orb.Geometry           `json:"geometry"`
}

// TileID represents the tile coordinates and zoom level
type TileID struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

// Decode decodes a Mapbox Vector Tile from binary Protocol Buffer data.
// Geometries are returned in Web Mercator meters.
func (d *Decoder) Decode(data []byte, z, x, y int) (*DecodedTile, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty tile data")
	}

	tileID := TileID{Z: z, X: x, Y: y}
	if err := tileID.Validate(); err != nil {
		return nil, err
	}

	var (
		layers mvt.Layers
		err    error
	)
	if bytes.HasPrefix(data, gzipMagic) {
		layers, err = mvt.UnmarshalGzipped(data)
	} else {
		layers, err = mvt.Unmarshal(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal MVT data: %w", err)
	}

	decodedTile := &DecodedTile{
		Layers:  make(map[string]*DecodedLayer, len(layers)),
		Extent:  d.extent,
		Version: 2, // MVT specification version
		TileID:  tileID,
	}

	for _, layer := range layers {
		decodedLayer, dropped := d.decodeLayer(layer, tileID)
		decodedTile.Dropped += dropped
		decodedTile.Layers[layer.Name] = decodedLayer
	}

	return decodedTile, nil
}

// decodeLayer processes a single layer, returning it with the number of
// features that were dropped
func (d *Decoder) decodeLayer(layer *mvt.Layer, tileID TileID) (*DecodedLayer, int) {
	extent := d.extent
	if layer.Extent > 0 {
		extent = int(layer.Extent)
	}

	decodedLayer := &DecodedLayer{
		Name:     layer.Name,
		Features: make([]*DecodedFeature, 0, len(layer.Features)),
		Extent:   extent,
		Version:  int(layer.Version),
	}

	dropped := 0
	for _, feature := range layer.Features {
		decodedFeature, err := d.decodeFeature(feature, extent, tileID)
		if err != nil {
			dropped++
			d.logger.Warn("dropping malformed feature",
				zap.String("tile", tileID.String()),
				zap.String("layer", layer.Name),
				zap.Any("feature", feature.ID),
				zap.Error(err))
			continue
		}
		if decodedFeature == nil {
			dropped++
			continue
		}
		decodedLayer.Features = append(decodedLayer.Features, decodedFeature)
	}

	return decodedLayer, dropped
}

// decodeFeature maps a feature from tile pixels to map coordinates. It
// returns nil without error when the feature lies completely outside the
// tile extent.
func (d *Decoder) decodeFeature(feature *geojson.Feature, extent int, tileID TileID) (*DecodedFeature, error) {
	if feature.Geometry == nil {
		return nil, fmt.Errorf("feature has no geometry")
	}

	typeTag := feature.Geometry.GeoJSONType()
	kind, err := Classify(typeTag)
	if err != nil {
		return nil, err
	}

	raw, err := rawCoordinates(feature.Geometry)
	if err != nil {
		return nil, err
	}

	var tally OutOfBounds
	mapped, err := MapCoordinates(raw, float64(extent), TileToMercator(tileID, extent), tally.Report)
	if err != nil {
		return nil, err
	}
	if !d.keepOutside && tally.AllOutside(PairLevels(raw)) {
		return nil, nil
	}

	geometry, err := buildGeometry(kind, mapped)
	if err != nil {
		return nil, err
	}

	tags := make(map[string]interface{}, len(feature.Properties))
	for key, value := range feature.Properties {
		tags[key] = value
	}

	return &DecodedFeature{
		ID:       feature.ID,
		Tags:     tags,
		Kind:     kind,
		Type:     geometry.GeoJSONType(),
		Geometry: geometry,
	}, nil
}

// webMercatorMax is half the circumference of the Web Mercator world in meters
const webMercatorMax = 20037508.342789244

// TileToMercator returns the transform from tile pixel coordinates of the
// given tile to Web Mercator meters
func TileToMercator(tileID TileID, extent int) CoordinateTransform {
	n := float64(uint64(1) << uint(tileID.Z))
	tileSize := float64(extent)

	return func(point orb.Point) orb.Point {
		// Convert tile pixel coordinates to global tile fractions
		globalX := (float64(tileID.X) + point[0]/tileSize) / n
		globalY := (float64(tileID.Y) + point[1]/tileSize) / n

		mercatorX := (globalX*2.0 - 1.0) * webMercatorMax
		mercatorY := (1.0 - globalY*2.0) * webMercatorMax

		return orb.Point{mercatorX, mercatorY}
	}
}

// GetLayerNames returns the names of all layers in the decoded tile, sorted
func (dt *DecodedTile) GetLayerNames() []string {
	names := make([]string, 0, len(dt.Layers))
	for name := range dt.Layers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetFeatureCount returns the total number of features across all layers
func (dt *DecodedTile) GetFeatureCount() int {
	count := 0
	for _, layer := range dt.Layers {
		count += len(layer.Features)
	}
	return count
}

// IsEmpty returns true if the tile contains no features
func (dt *DecodedTile) IsEmpty() bool {
	return dt.GetFeatureCount() == 0
}

// String returns a string representation of the tile ID
func (tid TileID) String() string {
	return fmt.Sprintf("%d/%d/%d", tid.Z, tid.X, tid.Y)
}

// Validate checks if the tile coordinates are valid
func (tid TileID) Validate() error {
	if tid.Z < 0 || tid.Z > 22 {
		return fmt.Errorf("invalid zoom level %d: must be between 0 and 22", tid.Z)
	}

	maxTile := 1 << uint(tid.Z)
	if tid.X < 0 || tid.X >= maxTile {
		return fmt.Errorf("invalid X coordinate %d for zoom %d: must be between 0 and %d", tid.X, tid.Z, maxTile-1)
	}

	if tid.Y < 0 || tid.Y >= maxTile {
		return fmt.Errorf("invalid Y coordinate %d for zoom %d: must be between 0 and %d", tid.Y, tid.Z, maxTile-1)
	}

	return nil
}
