// internal/tile/bounds_test.go - Unit tests for tile extents
package tile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mercatorMax = 20037508.342789244

func TestParseScheme(t *testing.T) {
	tests := []struct {
		input   string
		want    Scheme
		wantErr bool
	}{
		{"", SchemeXYZ, false},
		{"xyz", SchemeXYZ, false},
		{"TMS", SchemeTMS, false},
		{"quadkey", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseScheme(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestXYZRow(t *testing.T) {
	assert.Equal(t, 3, XYZRow(2, 3, SchemeXYZ))
	assert.Equal(t, 0, XYZRow(2, 3, SchemeTMS))
	assert.Equal(t, 3, XYZRow(2, 0, SchemeTMS))
}

func TestBounds(t *testing.T) {
	world, err := Bounds(0, 0, 0, SchemeXYZ, CRSWebMercator)
	require.NoError(t, err)
	assert.InDelta(t, -mercatorMax, world.MinX, 1e-3)
	assert.InDelta(t, -mercatorMax, world.MinY, 1e-3)
	assert.InDelta(t, mercatorMax, world.MaxX, 1e-3)
	assert.InDelta(t, mercatorMax, world.MaxY, 1e-3)

	// xyz row 0 at zoom 1 is the northern half
	north, err := Bounds(1, 0, 0, SchemeXYZ, CRSWebMercator)
	require.NoError(t, err)
	assert.InDelta(t, 0, north.MinY, 1e-3)
	assert.InDelta(t, mercatorMax, north.MaxY, 1e-3)

	// tms row 0 at zoom 1 is the southern half
	south, err := Bounds(1, 0, 0, SchemeTMS, CRSWebMercator)
	require.NoError(t, err)
	assert.InDelta(t, -mercatorMax, south.MinY, 1e-3)
	assert.InDelta(t, 0, south.MaxY, 1e-3)

	degrees, err := Bounds(1, 1, 0, SchemeXYZ, CRSWGS84)
	require.NoError(t, err)
	assert.InDelta(t, 0, degrees.MinX, 1e-9)
	assert.InDelta(t, 180, degrees.MaxX, 1e-9)
	assert.InDelta(t, 0, degrees.MinY, 1e-9)

	_, err = Bounds(1, 2, 0, SchemeXYZ, CRSWebMercator)
	assert.Error(t, err)

	_, err = Bounds(1, 0, 0, SchemeXYZ, "EPSG:2056")
	assert.Error(t, err)
}

func TestRangeBounds(t *testing.T) {
	rect, err := RangeBounds(2, 1, 1, 2, 2, SchemeXYZ, CRSWebMercator)
	require.NoError(t, err)

	quarter := mercatorMax / 2
	assert.InDelta(t, -quarter, rect.MinX, 1e-3)
	assert.InDelta(t, quarter, rect.MaxX, 1e-3)
	assert.InDelta(t, -quarter, rect.MinY, 1e-3)
	assert.InDelta(t, quarter, rect.MaxY, 1e-3)
}
