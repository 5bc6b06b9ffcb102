// internal/output/output_test.go - Unit tests for formatters and writers
package output

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/tile_merge/internal/geometry"
	"github.com/valpere/tile_merge/internal/layer"
)

func sampleLayer(name string, n int) *LayerOutput {
	fc := geojson.NewFeatureCollection()
	for i := 0; i < n; i++ {
		f := geojson.NewFeature(orb.Point{float64(i), float64(i)})
		f.Properties["_layer"] = name
		fc.Append(f)
	}
	return &LayerOutput{Name: name, Collection: fc, Metadata: map[string]interface{}{"groups": n}}
}

func decode(t *testing.T, data []byte) map[string]interface{} {
	t.Helper()
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestGeoJSONFormatter(t *testing.T) {
	formatter := NewGeoJSONFormatter(false, true)

	data, err := formatter.Format(sampleLayer("water", 2))
	require.NoError(t, err)
	doc := decode(t, data)
	assert.Equal(t, "FeatureCollection", doc["type"])
	assert.Len(t, doc["features"], 2)
	metadata := doc["_metadata"].(map[string]interface{})
	assert.Equal(t, "water", metadata["layer"])
	assert.Equal(t, float64(2), metadata["groups"])

	data, err = formatter.FormatBatch([]*LayerOutput{sampleLayer("roads", 1), sampleLayer("water", 2)})
	require.NoError(t, err)
	doc = decode(t, data)
	assert.Len(t, doc["features"], 3)
	assert.Equal(t, float64(3), doc["_metadata"].(map[string]interface{})["total_features"])

	_, err = formatter.Format(&LayerOutput{Name: "empty"})
	assert.Error(t, err)

	plain, err := NewGeoJSONFormatter(true, false).Format(sampleLayer("water", 1))
	require.NoError(t, err)
	assert.NotContains(t, string(plain), "_metadata")
	assert.Contains(t, string(plain), "\n  ")
}

func TestJSONFormatter(t *testing.T) {
	formatter := NewJSONFormatter(false, true)

	data, err := formatter.FormatBatch([]*LayerOutput{sampleLayer("roads", 1), sampleLayer("water", 2)})
	require.NoError(t, err)
	doc := decode(t, data)

	layers := doc["layers"].([]interface{})
	require.Len(t, layers, 2)
	assert.Equal(t, "roads", layers[0].(map[string]interface{})["layer"])
	assert.Equal(t, float64(3), doc["summary"].(map[string]interface{})["total_features"])
}

func TestNewFormatter(t *testing.T) {
	f, err := NewFormatter(&FormatterConfig{Format: FormatGeoJSON})
	require.NoError(t, err)
	assert.Equal(t, ".geojson", f.Extension())

	f, err = NewFormatter(&FormatterConfig{Format: FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, "application/json", f.ContentType())

	_, err = NewFormatter(&FormatterConfig{Format: "kml"})
	assert.Error(t, err)

	_, err = ParseFormat("kml")
	assert.Error(t, err)
}

func TestStreamWriter(t *testing.T) {
	var buf bytes.Buffer
	writer, err := newStreamWriter(&buf, FormatGeoJSON, false)
	require.NoError(t, err)

	require.NoError(t, writer.WriteBatch([]*LayerOutput{sampleLayer("water", 2)}))
	require.NoError(t, writer.Close())

	doc := decode(t, bytes.TrimSpace(buf.Bytes()))
	assert.Len(t, doc["features"], 2)
}

func TestFileWriter_Compression(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "merged.geojson")

	writer, err := NewFileWriter(&WriterConfig{Format: FormatGeoJSON, Compression: true}, path)
	require.NoError(t, err)
	require.NoError(t, writer.WriteBatch([]*LayerOutput{sampleLayer("water", 3)}))
	require.NoError(t, writer.Close())
	assert.Equal(t, path+".gz", writer.Name())
	assert.Positive(t, writer.Size())

	file, err := os.Open(path + ".gz")
	require.NoError(t, err)
	defer file.Close()

	reader, err := gzip.NewReader(file)
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)

	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	assert.Len(t, fc.Features, 3)
}

func TestMultiFileWriter(t *testing.T) {
	dir := t.TempDir()

	writer, err := NewWriter(&WriterConfig{Format: FormatGeoJSON}, dir, true)
	require.NoError(t, err)
	require.NoError(t, writer.WriteBatch([]*LayerOutput{sampleLayer("water", 1), sampleLayer("land/use", 2)}))
	require.NoError(t, writer.Close())

	multi := writer.(*MultiFileWriter)
	assert.Equal(t, []string{filepath.Join(dir, "water.geojson"), filepath.Join(dir, "land_use.geojson")}, multi.Files())

	water, err := os.Stat(filepath.Join(dir, "water.geojson"))
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "land_use.geojson"))
	require.NoError(t, err)
	assert.Equal(t, water.Size()+int64(len(data)), multi.Size())
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2)
}

func TestNewWriter_Stdout(t *testing.T) {
	writer, err := NewWriter(&WriterConfig{Format: FormatJSON}, "-", false)
	require.NoError(t, err)
	assert.IsType(t, &StdoutWriter{}, writer)
}

func TestCatalogOutputs(t *testing.T) {
	catalog := layer.NewCatalog()
	g, err := geometry.FromWKT("POLYGON ((0 0, 1 0, 1 1, 0 1, 0 0))")
	require.NoError(t, err)
	_, err = catalog.Add("water", layer.NewFeature(g, map[string]interface{}{"name": "lake"}))
	require.NoError(t, err)
	_, err = catalog.Add("land", layer.NewFeature(g, nil))
	require.NoError(t, err)

	outputs, err := CatalogOutputs(catalog)
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	assert.Equal(t, "land", outputs[0].Name)
	assert.Equal(t, "water", outputs[1].Name)
	assert.Equal(t, "lake", outputs[1].Collection.Features[0].Properties["name"])
}
