// pkg/mvt/decoder_test.go - Unit tests for MVT decoder
package mvt

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewDecoder(t *testing.T) {
	decoder := NewDecoder()
	assert.Equal(t, 4096, decoder.extent)
	assert.False(t, decoder.keepOutside)
}

func TestNewDecoderWithExtent(t *testing.T) {
	decoder := NewDecoderWithExtent(512)
	assert.Equal(t, 512, decoder.extent)
}

func TestDecode_EmptyData(t *testing.T) {
	decoder := NewDecoder()
	_, err := decoder.Decode([]byte{}, 1, 1, 1)
	require.Error(t, err)
	assert.Equal(t, "empty tile data", err.Error())
}

func TestDecode_InvalidTile(t *testing.T) {
	_, err := NewDecoder().Decode([]byte{0x1a, 0x00}, 1, 5, 0)
	assert.Error(t, err)
}

// encodeTile builds a single layer tile in tile pixel coordinates
func encodeTile(t *testing.T, gzipped bool, features ...*geojson.Feature) []byte {
	t.Helper()

	layers := mvt.Layers{&mvt.Layer{
		Name:     "water",
		Version:  2,
		Extent:   4096,
		Features: features,
	}}

	var (
		data []byte
		err  error
	)
	if gzipped {
		data, err = mvt.MarshalGzipped(layers)
	} else {
		data, err = mvt.Marshal(layers)
	}
	require.NoError(t, err)
	return data
}

func squareFeature(minX, minY, maxX, maxY float64, name string) *geojson.Feature {
	f := geojson.NewFeature(orb.Polygon{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}})
	f.Properties["name"] = name
	return f
}

func TestDecode_MapsToMercatorAndDropsBufferFragments(t *testing.T) {
	for _, gzipped := range []bool{false, true} {
		data := encodeTile(t, gzipped,
			squareFeature(0, 0, 2048, 2048, "inside"),
			squareFeature(-60, -60, -10, -10, "buffer"),
		)

		tile, err := NewDecoder().Decode(data, 0, 0, 0)
		require.NoError(t, err)
		require.Contains(t, tile.Layers, "water")

		features := tile.Layers["water"].Features
		require.Len(t, features, 1)
		assert.Equal(t, 1, tile.Dropped)

		feature := features[0]
		assert.Equal(t, "inside", feature.Tags["name"])
		assert.Equal(t, KindPolygon, feature.Kind)
		assert.Equal(t, "Polygon", feature.Type)

		bound := feature.Geometry.Bound()
		assert.InDelta(t, -webMercatorMax, bound.Min[0], 1e-6)
		assert.InDelta(t, 0, bound.Max[0], 1e-6)
		assert.InDelta(t, 0, bound.Min[1], 1e-6)
		assert.InDelta(t, webMercatorMax, bound.Max[1], 1e-6)
	}
}

func TestDecode_KeepOutside(t *testing.T) {
	data := encodeTile(t, false, squareFeature(-60, -60, -10, -10, "buffer"))

	tile, err := NewDecoder().KeepOutside(true).Decode(data, 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, tile.GetFeatureCount())
	assert.Zero(t, tile.Dropped)
}

func TestTileToMercator(t *testing.T) {
	transform := TileToMercator(TileID{Z: 1, X: 1, Y: 1}, 4096)

	assert.Equal(t, orb.Point{0, 0}, transform(orb.Point{0, 0}))

	corner := transform(orb.Point{4096, 4096})
	assert.InDelta(t, webMercatorMax, corner[0], 1e-6)
	assert.InDelta(t, -webMercatorMax, corner[1], 1e-6)
}

func TestTileIDString(t *testing.T) {
	tid := TileID{Z: 14, X: 8362, Y: 5956}
	assert.Equal(t, "14/8362/5956", tid.String())
}

func TestTileIDValidate(t *testing.T) {
	tests := []struct {
		name    string
		tid     TileID
		wantErr bool
	}{
		{"valid coordinates", TileID{14, 8362, 5956}, false},
		{"invalid zoom negative", TileID{-1, 0, 0}, true},
		{"invalid zoom too high", TileID{23, 0, 0}, true},
		{"invalid x negative", TileID{1, -1, 0}, true},
		{"invalid x too high", TileID{1, 2, 0}, true},
		{"invalid y negative", TileID{1, 0, -1}, true},
		{"invalid y too high", TileID{1, 0, 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tid.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyGeometryTransform(t *testing.T) {
	shift := func(p orb.Point) orb.Point {
		return orb.Point{p[0] + 1, p[1]}
	}

	assert.Equal(t, orb.Point{2, 2}, applyGeometryTransform(orb.Point{1, 2}, shift))

	result := applyGeometryTransform(orb.LineString{{1, 2}, {3, 4}}, shift)
	assert.Equal(t, orb.LineString{{2, 2}, {4, 4}}, result)
}

func TestBuildGeometry(t *testing.T) {
	tests := []struct {
		name   string
		kind   GeometryKind
		coords interface{}
		want   orb.Geometry
	}{
		{"point", KindPoint, []float64{1, 2}, orb.Point{1, 2}},
		{"multi point", KindPoint, []interface{}{[]float64{1, 2}, []float64{3, 4}}, orb.MultiPoint{{1, 2}, {3, 4}}},
		{"line", KindLineString, []interface{}{[]float64{1, 2}, []float64{3, 4}}, orb.LineString{{1, 2}, {3, 4}}},
		{
			"multi line",
			KindLineString,
			[]interface{}{[]interface{}{[]float64{1, 2}, []float64{3, 4}}},
			orb.MultiLineString{{{1, 2}, {3, 4}}},
		},
		{
			"polygon",
			KindPolygon,
			[]interface{}{[]interface{}{[]float64{0, 0}, []float64{1, 0}, []float64{1, 1}, []float64{0, 0}}},
			orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
		},
		{
			"multi polygon",
			KindPolygon,
			[]interface{}{[]interface{}{[]interface{}{[]float64{0, 0}, []float64{1, 0}, []float64{1, 1}, []float64{0, 0}}}},
			orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildGeometry(tt.kind, tt.coords)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRawCoordinatesRoundTrip(t *testing.T) {
	polygon := orb.MultiPolygon{{{{0, 0}, {4, 0}, {4, 4}, {0, 0}}}}

	raw, err := rawCoordinates(polygon)
	require.NoError(t, err)

	kind, err := Classify(polygon.GeoJSONType())
	require.NoError(t, err)

	got, err := buildGeometry(kind, raw)
	require.NoError(t, err)
	assert.Equal(t, polygon, got)
}

func TestDecodedTileGetLayerNames(t *testing.T) {
	dt := &DecodedTile{
		Layers: map[string]*DecodedLayer{
			"water":  {},
			"roads":  {},
			"places": {},
		},
	}

	assert.Equal(t, []string{"places", "roads", "water"}, dt.GetLayerNames())
}

func TestDecodedTileIsEmpty(t *testing.T) {
	emptyTile := &DecodedTile{
		Layers: map[string]*DecodedLayer{},
	}
	assert.True(t, emptyTile.IsEmpty())

	nonEmptyTile := &DecodedTile{
		Layers: map[string]*DecodedLayer{
			"test": {
				Features: []*DecodedFeature{{}},
			},
		},
	}
	assert.False(t, nonEmptyTile.IsEmpty())
}

func TestDecodeLayer_LogsMalformedFeatures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	decoder := NewDecoder().WithLogger(zap.New(core))

	collection := geojson.NewFeature(orb.Collection{orb.Point{1, 1}})
	collection.ID = 7
	layer := &mvt.Layer{
		Name:    "water",
		Version: 2,
		Extent:  4096,
		Features: []*geojson.Feature{
			collection,
			{Properties: geojson.Properties{}},
			geojson.NewFeature(orb.Point{100, 100}),
		},
	}

	decoded, dropped := decoder.decodeLayer(layer, TileID{Z: 0, X: 0, Y: 0})
	assert.Equal(t, 2, dropped)
	assert.Len(t, decoded.Features, 1)

	entries := logs.FilterMessage("dropping malformed feature").All()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, "water", first["layer"])
	assert.Equal(t, "0/0/0", first["tile"])
	assert.EqualValues(t, 7, first["feature"])
	assert.Contains(t, first["error"], "unknown geometry type")
}
