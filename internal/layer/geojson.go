// internal/layer/geojson.go - GeoJSON import and export of layers
package layer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/multierr"

	"github.com/valpere/tile_merge/internal/geometry"
)

// ReadGeoJSON loads a feature collection into a new layer. Features without
// a geometry, or whose geometry the geometry library rejects, are skipped
// and reported through the returned error list; the layer is returned with
// the remaining features.
func ReadGeoJSON(r io.Reader, name string) (*MemoryStore, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read GeoJSON: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feature collection: %w", err)
	}

	store := NewMemoryStore(name)
	var skipped error

	for i, f := range fc.Features {
		if f.Geometry == nil {
			skipped = multierr.Append(skipped, fmt.Errorf("feature %d has no geometry", i))
			continue
		}

		g, err := geometry.FromOrb(f.Geometry)
		if err != nil {
			skipped = multierr.Append(skipped, fmt.Errorf("feature %d: %w", i, err))
			continue
		}

		if _, err := store.AddFeature(NewFeature(g, f.Properties)); err != nil {
			return nil, err
		}
	}

	return store, skipped
}

// LoadGeoJSONFile loads a layer named after the file
func LoadGeoJSONFile(path string) (*MemoryStore, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ReadGeoJSON(file, name)
}

// FeatureCollection exports the live features of a store, ordered by id.
// Feature ids are written as GeoJSON ids.
func FeatureCollection(store Store) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()

	for _, f := range store.Features() {
		g, err := geometry.ToOrb(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", f.ID, err)
		}

		out := geojson.NewFeature(g)
		out.ID = int64(f.ID)
		for key, value := range f.Attributes {
			out.Properties[key] = value
		}
		fc.Append(out)
	}

	return fc, nil
}

// AddFeatureCollection appends the features of a collection to the catalog,
// using the _layer property to pick the layer and defaultLayer otherwise
func (c *Catalog) AddFeatureCollection(fc *geojson.FeatureCollection, defaultLayer string) (int, error) {
	added := 0
	var errs error

	for i, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}

		g, err := geometry.FromOrb(f.Geometry)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("feature %d: %w", i, err))
			continue
		}

		name := defaultLayer
		if layerName, ok := f.Properties[LayerAttr].(string); ok && layerName != "" {
			name = layerName
		}

		if _, err := c.Add(name, NewFeature(g, f.Properties)); err != nil {
			return added, err
		}
		added++
	}

	return added, errs
}
