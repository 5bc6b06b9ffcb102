// internal/tile/tilejson_test.go - Unit tests for TileJSON documents
package tile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTileJSON = `{
	"tilejson": "2.2.0",
	"name": "coastline",
	"tiles": ["https://tiles.example.com/{z}/{x}/{y}.pbf"],
	"bounds": [1, 1, 89, 80],
	"minzoom": 0,
	"maxzoom": 12,
	"vector_layers": [{"id": "water"}, {"id": "land"}]
}`

func TestParseTileJSON(t *testing.T) {
	doc, err := ParseTileJSON([]byte(sampleTileJSON))
	require.NoError(t, err)

	assert.Equal(t, SchemeXYZ, doc.TileScheme())
	assert.Equal(t, "EPSG:3857", doc.ProjectionCode())
	assert.Equal(t, []string{"water", "land"}, doc.LayerNames())
	assert.Equal(t, "https://tiles.example.com/3/4/2.pbf", doc.TileURL(3, 4, 2))

	minZoom, maxZoom := doc.ZoomLevels()
	assert.Equal(t, 0, minZoom)
	assert.Equal(t, 12, maxZoom)
}

func TestParseTileJSON_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"no tiles", `{"bounds": [0, 0, 1, 1]}`},
		{"no bounds or center", `{"tiles": ["a/{z}/{x}/{y}"]}`},
		{"short bounds", `{"tiles": ["a/{z}/{x}/{y}"], "bounds": [0, 0, 1]}`},
		{"bad scheme", `{"tiles": ["a/{z}/{x}/{y}"], "center": [0, 0, 2], "scheme": "wmts"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTileJSON([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidTileJSON)
		})
	}
}

func TestTileJSON_TileRange(t *testing.T) {
	doc, err := ParseTileJSON([]byte(sampleTileJSON))
	require.NoError(t, err)

	// 1..89 east, 1..80 north sits in one column of the north-east quarter
	r := doc.TileRange(2)
	assert.Equal(t, &TileRange{MinZ: 2, MaxZ: 2, MinX: 2, MaxX: 2, MinY: 0, MaxY: 1}, r)

	doc.Scheme = "tms"
	r = doc.TileRange(2)
	assert.Equal(t, 2, r.MinY)
	assert.Equal(t, 3, r.MaxY)

	world := &TileJSON{Tiles: []string{"x"}, Center: []float64{0, 0, 1}}
	assert.Equal(t, int64(4), world.TileRange(1).Count())
}

func TestLoadTileJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tiles.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(sampleTileJSON))
	}))
	defer server.Close()

	doc, err := LoadTileJSON(context.Background(), server.Client(), server.URL+"/tiles.json")
	require.NoError(t, err)
	assert.Equal(t, "coastline", doc.Name)

	_, err = LoadTileJSON(context.Background(), server.Client(), server.URL+"/missing.json")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "tiles.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleTileJSON), 0o644))
	doc, err = LoadTileJSON(context.Background(), nil, path)
	require.NoError(t, err)
	assert.Len(t, doc.Tiles, 1)
}
