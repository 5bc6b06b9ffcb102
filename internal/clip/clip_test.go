// internal/clip/clip_test.go - Unit tests for the bounds clipper
package clip

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/tile_merge/internal"
	"github.com/valpere/tile_merge/internal/geometry"
	"github.com/valpere/tile_merge/internal/layer"
	"github.com/valpere/tile_merge/internal/tile"
)

const half = 20037508.342789244 / 2

func squareWKT(minX, minY, maxX, maxY float64) string {
	return fmt.Sprintf("POLYGON ((%f %f, %f %f, %f %f, %f %f, %f %f))",
		minX, minY, maxX, minY, maxX, maxY, minX, maxY, minX, minY)
}

func addFeature(t *testing.T, store *layer.MemoryStore, wkt string, attrs map[string]interface{}) layer.FeatureID {
	t.Helper()
	g, err := geometry.FromWKT(wkt)
	require.NoError(t, err)
	id, err := store.AddFeature(layer.NewFeature(g, attrs))
	require.NoError(t, err)
	return id
}

func tileAttrs(z, x, y int) map[string]interface{} {
	return map[string]interface{}{layer.ZoomAttr: z, layer.ColumnAttr: x, layer.RowAttr: y}
}

func area(t *testing.T, store *layer.MemoryStore, id layer.FeatureID) float64 {
	t.Helper()
	f, ok := store.Feature(id)
	require.True(t, ok)
	g, ok := f.Geometry.(*geometry.GEOS)
	require.True(t, ok)
	return g.Area()
}

func TestClip_FeatureTiles(t *testing.T) {
	store := layer.NewMemoryStore("water")
	// spans the four zoom 1 tiles, tagged with the north-west one
	id := addFeature(t, store, squareWKT(-half, -half, half, half), tileAttrs(1, 0, 0))

	stats, err := NewClipper(nil).Clip(context.Background(), store, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Clipped)
	assert.False(t, store.IsEditing())

	f, _ := store.Feature(id)
	bbox := f.Geometry.BoundingBox()
	assert.InDelta(t, -half, bbox.MinX, 1e-3)
	assert.InDelta(t, 0, bbox.MaxX, 1e-3)
	assert.InDelta(t, 0, bbox.MinY, 1e-3)
	assert.InDelta(t, half, bbox.MaxY, 1e-3)
	assert.InDelta(t, half*half, area(t, store, id), 1)
}

func TestClip_TMSScheme(t *testing.T) {
	store := layer.NewMemoryStore("water")
	id := addFeature(t, store, squareWKT(-half, -half, half, half), tileAttrs(1, 0, 0))

	_, err := NewClipper(&Options{Scheme: tile.SchemeTMS}).Clip(context.Background(), store, nil)
	require.NoError(t, err)

	f, _ := store.Feature(id)
	bbox := f.Geometry.BoundingBox()
	assert.InDelta(t, -half, bbox.MinY, 1e-3)
	assert.InDelta(t, 0, bbox.MaxY, 1e-3)
}

func TestClip_Region(t *testing.T) {
	store := layer.NewMemoryStore("water")
	inside := addFeature(t, store, squareWKT(-half, -half, half, half), nil)
	outside := addFeature(t, store, squareWKT(half+10, half+10, half+20, half+20), nil)

	// zoom 2 column 1, rows 1..2 span the west half of the middle
	region := &Region{Zoom: 2, XMin: 1, YMin: 1, XMax: 1, YMax: 2}
	stats, err := NewClipper(nil).Clip(context.Background(), store, region)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Clipped)
	assert.Equal(t, 1, stats.Emptied)

	assert.InDelta(t, half*2*half, area(t, store, inside), 1)
	f, _ := store.Feature(outside)
	assert.True(t, f.Geometry.IsEmpty())
}

func TestClip_SkipsInvalidAndEmpty(t *testing.T) {
	store := layer.NewMemoryStore("water")
	bowtie := "POLYGON ((0 0, 10 10, 10 0, 0 10, 0 0))"
	invalid := addFeature(t, store, bowtie, tileAttrs(1, 0, 0))
	_, err := store.AddFeature(layer.NewFeature(nil, tileAttrs(1, 0, 0)))
	require.NoError(t, err)

	stats, err := NewClipper(nil).Clip(context.Background(), store, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SkippedInvalid)
	assert.Equal(t, 1, stats.SkippedEmpty)
	assert.Equal(t, 0, stats.Clipped)

	original, err := geometry.FromWKT(bowtie)
	require.NoError(t, err)
	f, _ := store.Feature(invalid)
	assert.Equal(t, original.String(), f.Geometry.String())
}

func TestClip_NoRegionAvailable(t *testing.T) {
	store := layer.NewMemoryStore("water")
	first := addFeature(t, store, squareWKT(-half, -half, half, half), tileAttrs(1, 0, 0))
	addFeature(t, store, squareWKT(-half, -half, half, half), map[string]interface{}{"name": "untiled"})

	stats, err := NewClipper(nil).Clip(context.Background(), store, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoRegionAvailable)

	var appErr *internal.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, internal.ErrorCodeNoRegion, appErr.Code)

	// work done before the failure is committed
	assert.Equal(t, 1, stats.Clipped)
	assert.False(t, store.IsEditing())
	assert.InDelta(t, half*half, area(t, store, first), 1)
}

func TestClip_InvalidRegion(t *testing.T) {
	store := layer.NewMemoryStore("water")
	addFeature(t, store, squareWKT(0, 0, 1, 1), nil)

	_, err := NewClipper(nil).Clip(context.Background(), store, &Region{Zoom: 1, XMin: 0, YMin: 0, XMax: 5, YMax: 0})
	assert.ErrorIs(t, err, ErrNoRegionAvailable)
	assert.False(t, store.IsEditing())
}

func TestClip_Cancelled(t *testing.T) {
	store := layer.NewMemoryStore("water")
	id := addFeature(t, store, squareWKT(-half, -half, half, half), tileAttrs(1, 0, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := NewClipper(nil).Clip(ctx, store, nil)
	require.NoError(t, err)
	assert.True(t, stats.Cancelled)
	assert.Equal(t, 0, stats.Clipped)
	assert.False(t, store.IsEditing())
	assert.InDelta(t, 4*half*half, area(t, store, id), 1)
}

func TestClip_WGS84(t *testing.T) {
	store := layer.NewMemoryStore("water")
	id := addFeature(t, store, squareWKT(-170, -80, 170, 80), tileAttrs(1, 1, 1))

	_, err := NewClipper(&Options{CRS: tile.CRSWGS84}).Clip(context.Background(), store, nil)
	require.NoError(t, err)

	f, _ := store.Feature(id)
	bbox := f.Geometry.BoundingBox()
	assert.InDelta(t, 0, bbox.MinX, 1e-9)
	assert.InDelta(t, 170, bbox.MaxX, 1e-9)
	assert.InDelta(t, -80, bbox.MinY, 1e-9)
	assert.InDelta(t, 0, bbox.MaxY, 1e-9)
}
