// cmd/tiles.go - Loading of tiles and GeoJSON input into a layer catalog
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valpere/tile_merge/internal"
	"github.com/valpere/tile_merge/internal/batch"
	"github.com/valpere/tile_merge/internal/config"
	"github.com/valpere/tile_merge/internal/layer"
	"github.com/valpere/tile_merge/internal/output"
	"github.com/valpere/tile_merge/internal/tile"
	"github.com/valpere/tile_merge/pkg/mvt"
)

// loadOptions selects the features a command works on
type loadOptions struct {
	Input       string
	Layer       string
	Zoom        int
	MinZoom     int
	MaxZoom     int
	BBox        string
	Tiles       string
	FailOnError bool
}

// addLoadFlags registers the input selection flags shared by merge and clip
func addLoadFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("input", "i", "", "GeoJSON feature collection to load instead of tiles")
	cmd.Flags().String("layer", "", "layer name for features without a _layer property")
	cmd.Flags().Int("zoom", -1, "single zoom level to load")
	cmd.Flags().Int("min-zoom", -1, "minimum zoom level")
	cmd.Flags().Int("max-zoom", -1, "maximum zoom level")
	cmd.Flags().String("bbox", "", "bounding box: 'min_lon,min_lat,max_lon,max_lat'")
	cmd.Flags().String("tiles", "", "specific tiles list: 'z/x/y,z/x/y,...'")
	cmd.Flags().Bool("fail-on-error", false, "stop loading on the first failed tile")
	cmd.Flags().StringSlice("layers", nil, "only load the listed tile layers")

	cmd.MarkFlagsMutuallyExclusive("zoom", "min-zoom")
	cmd.MarkFlagsMutuallyExclusive("zoom", "max-zoom")
	cmd.MarkFlagsMutuallyExclusive("input", "tiles")
	cmd.MarkFlagsMutuallyExclusive("input", "bbox")
}

// readLoadOptions reads the flags registered by addLoadFlags and applies
// the ones that map onto configuration
func readLoadOptions(cmd *cobra.Command, cfg *config.Config) *loadOptions {
	opts := &loadOptions{}
	opts.Input, _ = cmd.Flags().GetString("input")
	opts.Layer, _ = cmd.Flags().GetString("layer")
	opts.Zoom, _ = cmd.Flags().GetInt("zoom")
	opts.MinZoom, _ = cmd.Flags().GetInt("min-zoom")
	opts.MaxZoom, _ = cmd.Flags().GetInt("max-zoom")
	opts.BBox, _ = cmd.Flags().GetString("bbox")
	opts.Tiles, _ = cmd.Flags().GetString("tiles")
	opts.FailOnError, _ = cmd.Flags().GetBool("fail-on-error")

	if opts.Input != "" {
		cfg.Source.Input = opts.Input
	}
	if opts.FailOnError {
		cfg.Batch.FailOnError = true
	}
	if layers, _ := cmd.Flags().GetStringSlice("layers"); len(layers) > 0 {
		cfg.Tiles.LayerFilter = layers
	}
	return opts
}

// loadCatalog builds the layer catalog from the configured source
func loadCatalog(ctx context.Context, cfg *config.Config, opts *loadOptions, logger *zap.Logger) (*layer.Catalog, error) {
	if cfg.DetermineSourceType() == internal.SourceTypeGeoJSON {
		return loadGeoJSON(cfg.Source.Input, opts.Layer, logger)
	}
	return loadTiles(ctx, cfg, opts, logger)
}

// loadGeoJSON reads a feature collection; the _layer property picks the
// layer of each feature, defaulting to the file name
func loadGeoJSON(path, layerName string, logger *zap.Logger) (*layer.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeFileSystem, fmt.Sprintf("failed to read %s", path), err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeValidation, fmt.Sprintf("failed to parse %s", path), err)
	}

	if layerName == "" {
		layerName = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	catalog := layer.NewCatalog()
	added, err := catalog.AddFeatureCollection(fc, layerName)
	if err != nil {
		logger.Warn("some features were skipped", zap.String("input", path), zap.Error(err))
	}
	logger.Info("input loaded",
		zap.String("input", path),
		zap.Int("features", added),
		zap.Strings("layers", catalog.Names()))

	return catalog, nil
}

// loadTiles fetches and decodes tiles into a new catalog
func loadTiles(ctx context.Context, cfg *config.Config, opts *loadOptions, logger *zap.Logger) (*layer.Catalog, error) {
	sourceType := cfg.DetermineSourceType()
	if err := tile.NewFetcherFactory(cfg).ValidateConfiguration(sourceType); err != nil {
		return nil, internal.NewError(internal.ErrorCodeConfig,
			fmt.Sprintf("invalid %s source configuration", sourceType), err)
	}

	fetcher, err := tile.NewConvenientFetcher(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	var doc *tile.TileJSON
	if cfg.Server.TileJSON != "" {
		doc, err = tile.LoadTileJSON(ctx, fetcher.HTTPClient(), cfg.Server.TileJSON)
		if err != nil {
			return nil, err
		}
		fetcher.UseTileJSON(doc)
		if doc.Scheme != "" {
			cfg.Tiles.Scheme = string(doc.TileScheme())
		}
		logger.Info("using TileJSON source",
			zap.String("name", doc.Name),
			zap.String("projection", doc.ProjectionCode()),
			zap.Strings("layers", doc.LayerNames()))
	}

	scheme, err := tile.ParseScheme(cfg.Tiles.Scheme)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeConfig, "invalid tile scheme", err)
	}

	ranges, explicit, err := selectTiles(fetcher, doc, scheme, opts)
	if err != nil {
		return nil, err
	}
	if len(ranges) == 0 && len(explicit) == 0 {
		return nil, fmt.Errorf("no tiles to process")
	}

	processor, err := newTileProcessor(cfg, scheme, logger)
	if err != nil {
		return nil, err
	}

	var reporter batch.ProgressReporter
	if cfg.Logging.Progress {
		reporter = NewConsoleProgressReporter(os.Stderr)
	}

	job := batch.NewJob(uuid.NewString(), ranges, &batch.JobConfig{
		Concurrency: cfg.Batch.Concurrency,
		Timeout:     cfg.Batch.Timeout,
		FailOnError: cfg.Batch.FailOnError,
	})
	job.Tiles = explicit

	logger.Info("loading tiles",
		zap.String("job", job.ID),
		zap.String("source", string(fetcher.GetSourceType())),
		zap.String("scheme", string(scheme)),
		zap.Int("tiles", len(job.Coordinates())))

	catalog := layer.NewCatalog()
	loader := batch.NewBatchProcessor(fetcher, processor, fetcher.Request, reporter, logger)
	if err := loader.Process(ctx, job, catalog); err != nil {
		return nil, fmt.Errorf("tile loading failed: %w", err)
	}

	return catalog, nil
}

// newTileProcessor creates the MVT decoder configured by the tiles section
func newTileProcessor(cfg *config.Config, scheme tile.Scheme, logger *zap.Logger) (*tile.MVTProcessor, error) {
	processor, err := tile.NewMVTProcessorWithOptions(&mvt.ConversionOptions{
		LayerFilter:       cfg.Tiles.LayerFilter,
		SimplifyTolerance: 1.0,
		CoordinateSystem:  cfg.Tiles.CRS,
		Extent:            cfg.Tiles.Extent,
		KeepOutside:       cfg.Tiles.KeepOutside,
	}, scheme, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create processor: %w", err)
	}
	return processor, nil
}

// selectTiles resolves the tile selection flags into ranges and explicit
// tiles. A local source without zoom flags loads every tile on disk.
func selectTiles(fetcher *tile.ConvenientFetcher, doc *tile.TileJSON, scheme tile.Scheme, opts *loadOptions) ([]*tile.TileRange, []*tile.TileCoordinate, error) {
	if opts.Tiles != "" {
		coords, err := parseTilesList(opts.Tiles)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse tiles list: %w", err)
		}
		return nil, coords, nil
	}

	minZoom, maxZoom := opts.MinZoom, opts.MaxZoom
	if opts.Zoom >= 0 {
		minZoom, maxZoom = opts.Zoom, opts.Zoom
	}
	if maxZoom < 0 {
		maxZoom = minZoom
	}
	if minZoom < 0 {
		minZoom = maxZoom
	}

	if minZoom < 0 {
		if !fetcher.IsLocal() {
			return nil, nil, fmt.Errorf("zoom level(s) must be specified")
		}
		coords, err := fetcher.ListAvailableTiles()
		if err != nil {
			return nil, nil, err
		}
		return nil, coords, nil
	}
	if minZoom > maxZoom {
		return nil, nil, fmt.Errorf("min zoom %d exceeds max zoom %d", minZoom, maxZoom)
	}

	if opts.BBox != "" {
		bbox, err := parseBoundingBox(opts.BBox)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse bounding box: %w", err)
		}
		return generateTileRanges(minZoom, maxZoom, bbox, scheme), nil, nil
	}

	if doc != nil {
		var ranges []*tile.TileRange
		for z := minZoom; z <= maxZoom; z++ {
			ranges = append(ranges, doc.TileRange(z))
		}
		return ranges, nil, nil
	}

	return generateTileRanges(minZoom, maxZoom, nil, scheme), nil, nil
}

// BoundingBox represents a geographic bounding box
type BoundingBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// parseBoundingBox parses a bounding box string
func parseBoundingBox(bbox string) (*BoundingBox, error) {
	parts := strings.Split(bbox, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bounding box must have 4 values: min_lon,min_lat,max_lon,max_lat")
	}

	coords := make([]float64, 4)
	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid coordinate value: %s", part)
		}
		coords[i] = val
	}

	if coords[0] > coords[2] || coords[1] > coords[3] {
		return nil, fmt.Errorf("bounding box minimum exceeds maximum: %s", bbox)
	}

	return &BoundingBox{
		MinLon: coords[0],
		MinLat: coords[1],
		MaxLon: coords[2],
		MaxLat: coords[3],
	}, nil
}

// parseTilesList parses a comma-separated list of tile coordinates
func parseTilesList(tiles string) ([]*tile.TileCoordinate, error) {
	var coords []*tile.TileCoordinate

	for _, part := range strings.Split(tiles, ",") {
		values := strings.Split(strings.TrimSpace(part), "/")
		if len(values) != 3 {
			return nil, fmt.Errorf("invalid tile format: %s (expected z/x/y)", part)
		}

		z, err := strconv.Atoi(values[0])
		if err != nil {
			return nil, fmt.Errorf("invalid zoom level: %s", values[0])
		}

		x, err := strconv.Atoi(values[1])
		if err != nil {
			return nil, fmt.Errorf("invalid x coordinate: %s", values[1])
		}

		y, err := strconv.Atoi(values[2])
		if err != nil {
			return nil, fmt.Errorf("invalid y coordinate: %s", values[2])
		}

		coords = append(coords, tile.NewTileCoordinate(z, x, y))
	}

	return coords, nil
}

// generateTileRanges creates tile ranges from zoom levels and an optional
// bounding box; without one every tile of the zoom level is selected
func generateTileRanges(minZoom, maxZoom int, bbox *BoundingBox, scheme tile.Scheme) []*tile.TileRange {
	var ranges []*tile.TileRange

	for z := minZoom; z <= maxZoom; z++ {
		if bbox == nil {
			maxTile := (1 << uint(z)) - 1
			ranges = append(ranges, tile.NewTileRange(z, z, 0, maxTile, 0, maxTile))
			continue
		}

		area := &tile.TileJSON{
			Scheme: string(scheme),
			Bounds: []float64{bbox.MinLon, bbox.MinLat, bbox.MaxLon, bbox.MaxLat},
		}
		ranges = append(ranges, area.TileRange(z))
	}

	return ranges
}

// writeCatalog writes every layer of the catalog. metadata, keyed by layer
// name, is attached to the matching layer output.
func writeCatalog(cfg *config.Config, catalog *layer.Catalog, destination string, metadata map[string]map[string]interface{}, logger *zap.Logger) error {
	outputs, err := output.CatalogOutputs(catalog)
	if err != nil {
		return err
	}
	for _, out := range outputs {
		for key, value := range metadata[out.Name] {
			out.Metadata[key] = value
		}
	}

	format, err := output.ParseFormat(cfg.Output.Format)
	if err != nil {
		return internal.NewError(internal.ErrorCodeConfig, "invalid output format", err)
	}

	if destination == "" && !cfg.Output.Stdout && cfg.Output.Filename != "" {
		destination = filepath.Join(cfg.Output.Directory, cfg.Output.Filename)
	}
	if cfg.Output.MultiFile && destination == "" {
		destination = cfg.Output.Directory
	}

	writer, err := output.NewWriter(&output.WriterConfig{
		Format:      format,
		Pretty:      cfg.Output.Pretty,
		Compression: cfg.Output.Compression,
		Metadata:    len(metadata) > 0,
	}, destination, cfg.Output.MultiFile)
	if err != nil {
		return fmt.Errorf("failed to create writer: %w", err)
	}

	if err := writer.WriteBatch(outputs); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}

	fields := []zap.Field{
		zap.String("destination", describeDestination(writer, destination)),
		zap.Int("layers", len(outputs)),
		zap.Int("features", catalog.Len()),
	}
	if sized, ok := writer.(interface{ Size() int64 }); ok {
		fields = append(fields, zap.Int64("bytes", sized.Size()))
	}
	logger.Info("output written", fields...)
	return nil
}

func describeDestination(writer output.Writer, destination string) string {
	switch w := writer.(type) {
	case *output.FileWriter:
		return w.Name()
	case *output.MultiFileWriter:
		return strings.Join(w.Files(), ",")
	}
	if destination == "" {
		return "stdout"
	}
	return destination
}

// ConsoleProgressReporter implements progress reporting to console
type ConsoleProgressReporter struct {
	mu         sync.Mutex
	out        io.Writer
	lastUpdate time.Time
}

// NewConsoleProgressReporter creates a new console progress reporter
func NewConsoleProgressReporter(out io.Writer) *ConsoleProgressReporter {
	return &ConsoleProgressReporter{out: out}
}

// ReportProgress reports job progress to console
func (r *ConsoleProgressReporter) ReportProgress(job *batch.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if time.Since(r.lastUpdate) < time.Second {
		return nil // Rate limit updates
	}

	progress := job.Progress
	_, err := fmt.Fprintf(r.out, "\rProgress: %.1f%% (%d/%d tiles, %.2f tiles/sec)",
		progress.CalculateProgress(), progress.ProcessedTiles.Load(), progress.TotalTiles.Load(), progress.Throughput())

	r.lastUpdate = time.Now()
	return err
}

// ReportJobComplete reports job completion
func (r *ConsoleProgressReporter) ReportJobComplete(job *batch.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := fmt.Fprintf(r.out, "\rCompleted: %d tiles (%d missing, %d failed), %d features\n",
		job.Progress.ProcessedTiles.Load(), job.Progress.MissingTiles.Load(),
		job.Progress.FailedTiles.Load(), job.Progress.Features.Load())
	return err
}

// ReportJobFailed reports job failure
func (r *ConsoleProgressReporter) ReportJobFailed(job *batch.Job, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, writeErr := fmt.Fprintf(r.out, "\rFailed: %s\n", err.Error())
	return writeErr
}
