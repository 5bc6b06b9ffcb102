// internal/tile/tilejson.go - TileJSON source descriptions
package tile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// ErrInvalidTileJSON is returned for documents that cannot describe a source
var ErrInvalidTileJSON = errors.New("invalid tilejson")

// WorldBounds is used when a document carries no bounds
var WorldBounds = []float64{-180, -maxLatitude, 180, maxLatitude}

// just inside the web mercator limit so corners map to valid tiles
const maxLatitude = 85.0511

// VectorLayer describes one layer listed in a TileJSON document
type VectorLayer struct {
	ID          string            `json:"id"`
	Description string            `json:"description,omitempty"`
	MinZoom     *int              `json:"minzoom,omitempty"`
	MaxZoom     *int              `json:"maxzoom,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// TileJSON is a TileJSON 2.x document
type TileJSON struct {
	TileJSON     string        `json:"tilejson,omitempty"`
	ID           string        `json:"id,omitempty"`
	Name         string        `json:"name,omitempty"`
	Attribution  string        `json:"attribution,omitempty"`
	Scheme       string        `json:"scheme,omitempty"`
	CRS          string        `json:"crs,omitempty"`
	SRS          string        `json:"srs,omitempty"`
	Tiles        []string      `json:"tiles"`
	Bounds       []float64     `json:"bounds,omitempty"`
	Center       []float64     `json:"center,omitempty"`
	MinZoom      *int          `json:"minzoom,omitempty"`
	MaxZoom      *int          `json:"maxzoom,omitempty"`
	VectorLayers []VectorLayer `json:"vector_layers"`
}

// LoadTileJSON reads a TileJSON document from a local file or an http(s) URL
func LoadTileJSON(ctx context.Context, client *http.Client, location string) (*TileJSON, error) {
	var data []byte
	var err error

	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		data, err = fetchDocument(ctx, client, location)
	} else {
		data, err = os.ReadFile(location)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tilejson %s: %w", location, err)
	}

	return ParseTileJSON(data)
}

func fetchDocument(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// ParseTileJSON decodes and validates a TileJSON document
func ParseTileJSON(data []byte) (*TileJSON, error) {
	var doc TileJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTileJSON, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the fields needed to load tiles from the document
func (t *TileJSON) Validate() error {
	if len(t.Tiles) == 0 {
		return fmt.Errorf("%w: 'tiles' is required", ErrInvalidTileJSON)
	}
	if len(t.Bounds) == 0 && len(t.Center) == 0 {
		return fmt.Errorf("%w: either 'bounds' or 'center' must be present", ErrInvalidTileJSON)
	}
	if len(t.Bounds) != 0 && len(t.Bounds) != 4 {
		return fmt.Errorf("%w: 'bounds' must have 4 values, got %d", ErrInvalidTileJSON, len(t.Bounds))
	}
	if _, err := ParseScheme(t.Scheme); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTileJSON, err)
	}
	return nil
}

// TileScheme returns the scheme of the document, xyz by default
func (t *TileJSON) TileScheme() Scheme {
	scheme, err := ParseScheme(t.Scheme)
	if err != nil {
		return SchemeXYZ
	}
	return scheme
}

// ProjectionCode returns the crs of the document, EPSG:3857 by default
func (t *TileJSON) ProjectionCode() string {
	switch {
	case t.CRS != "":
		return t.CRS
	case t.SRS != "":
		return t.SRS
	default:
		return "EPSG:3857"
	}
}

// LonLatBounds returns west, south, east, north, the whole world by default
func (t *TileJSON) LonLatBounds() orb.Bound {
	b := t.Bounds
	if len(b) != 4 {
		b = WorldBounds
	}
	return orb.Bound{Min: orb.Point{b[0], b[1]}, Max: orb.Point{b[2], b[3]}}
}

// ZoomLevels returns the declared zoom span, 0 to 14 when absent
func (t *TileJSON) ZoomLevels() (int, int) {
	minZoom, maxZoom := 0, 14
	if t.MinZoom != nil {
		minZoom = *t.MinZoom
	}
	if t.MaxZoom != nil {
		maxZoom = *t.MaxZoom
	}
	return minZoom, maxZoom
}

// LayerNames lists the ids of the vector layers
func (t *TileJSON) LayerNames() []string {
	names := make([]string, 0, len(t.VectorLayers))
	for _, l := range t.VectorLayers {
		names = append(names, l.ID)
	}
	return names
}

// TileURL expands the first tile template of the document. Rows are passed
// in the document's own scheme.
func (t *TileJSON) TileURL(z, x, y int) string {
	if len(t.Tiles) == 0 {
		return ""
	}
	return strings.NewReplacer(
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
	).Replace(t.Tiles[0])
}

// TileRange returns the tiles covering the document bounds at one zoom
// level, with rows in the document's scheme
func (t *TileJSON) TileRange(zoom int) *TileRange {
	bound := t.LonLatBounds()
	z := maptile.Zoom(zoom)

	west, east := clampFloat(bound.Min[0], -180, 180), clampFloat(bound.Max[0], -180, 180)
	south, north := clampFloat(bound.Min[1], -maxLatitude, maxLatitude), clampFloat(bound.Max[1], -maxLatitude, maxLatitude)

	// The north-west corner has the smallest xyz row.
	topLeft := maptile.At(orb.Point{west, north}, z)
	bottomRight := maptile.At(orb.Point{east, south}, z)

	maxTile := (1 << uint(zoom)) - 1
	minX, maxX := clampTile(int(topLeft.X), maxTile), clampTile(int(bottomRight.X), maxTile)
	minY, maxY := clampTile(int(topLeft.Y), maxTile), clampTile(int(bottomRight.Y), maxTile)

	if t.TileScheme() == SchemeTMS {
		minY, maxY = XYZRow(zoom, maxY, SchemeTMS), XYZRow(zoom, minY, SchemeTMS)
	}

	return NewTileRange(zoom, zoom, minX, maxX, minY, maxY)
}

func clampTile(v, maxTile int) int {
	if v < 0 {
		return 0
	}
	if v > maxTile {
		return maxTile
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
