// cmd/convert.go - Single tile conversion command
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valpere/tile_merge/internal/output"
	"github.com/valpere/tile_merge/internal/tile"
)

// convertCmd represents the convert command
var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a single Mapbox Vector Tile to JSON format",
	Long: `Convert a single Mapbox Vector Tile from Protocol Buffer format to JSON/GeoJSON format.

This command fetches a single tile from the specified URL or constructs the request from
the provided coordinates and the configured source, then converts it without clipping
or merging. Every feature carries _layer, _col, _row and _zoom properties, so the
output can be fed back to the merge command.

Examples:
  # Convert using direct URL
  tile-merge convert --url "https://example.com/tiles/14/8362/5956.mvt" --z 14 --x 8362 --y 5956 --output tile.geojson

  # Convert using coordinates and base URL
  tile-merge convert --base-url "https://example.com/tiles" --z 14 --x 8362 --y 5956 --output tile.geojson

  # Convert a local tile to stdout
  tile-merge convert --base-path "/path/to/tiles" --z 14 --x 8362 --y 5956

  # Convert with custom format and compression
  tile-merge convert --base-url "https://example.com/tiles" --z 14 --x 8362 --y 5956 --format json --compression --output tile.json`,
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	// Tile source flags
	convertCmd.Flags().String("url", "", "direct URL to the tile")
	convertCmd.Flags().Int("z", 0, "tile zoom level")
	convertCmd.Flags().Int("x", 0, "tile x coordinate")
	convertCmd.Flags().Int("y", 0, "tile y coordinate")

	// Output flags
	convertCmd.Flags().StringP("output", "o", "", "output file path (default: stdout)")
	convertCmd.Flags().Bool("metadata", false, "include tile metadata in output")

	convertCmd.MarkFlagsRequiredTogether("z", "x", "y")
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, logger, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	// Get command flags
	url, _ := cmd.Flags().GetString("url")
	z, _ := cmd.Flags().GetInt("z")
	x, _ := cmd.Flags().GetInt("x")
	y, _ := cmd.Flags().GetInt("y")
	outputPath, _ := cmd.Flags().GetString("output")
	metadata, _ := cmd.Flags().GetBool("metadata")

	if !cmd.Flags().Changed("z") {
		return fmt.Errorf("--z/--x/--y coordinates must be specified")
	}
	if err := tile.ValidateCoordinates(z, x, y); err != nil {
		return fmt.Errorf("invalid tile coordinates: %w", err)
	}

	scheme, err := tile.ParseScheme(cfg.Tiles.Scheme)
	if err != nil {
		return fmt.Errorf("invalid tile scheme: %w", err)
	}

	// Build the tile request and pick the matching fetcher
	var (
		fetcher     tile.Fetcher
		tileRequest *tile.TileRequest
	)
	if url != "" {
		fetcher = tile.NewHTTPFetcher(cfg)
		tileRequest = tile.NewTileRequest(z, x, y, url)
	} else {
		convenient, err := tile.NewConvenientFetcher(cfg)
		if err != nil {
			return fmt.Errorf("failed to create fetcher: %w", err)
		}
		if cfg.Server.TileJSON != "" {
			doc, err := tile.LoadTileJSON(cmd.Context(), convenient.HTTPClient(), cfg.Server.TileJSON)
			if err != nil {
				return err
			}
			convenient.UseTileJSON(doc)
		}
		tileRequest, err = convenient.Request(z, x, y)
		if err != nil {
			return err
		}
		fetcher = convenient
	}

	logger.Debug("fetching tile", zap.String("tile", fmt.Sprintf("%d/%d/%d", z, x, y)), zap.String("url", tileRequest.URL))

	response, err := fetcher.FetchWithRetry(cmd.Context(), tileRequest)
	if err != nil {
		return fmt.Errorf("failed to fetch tile: %w", err)
	}

	processor, err := newTileProcessor(cfg, scheme, logger)
	if err != nil {
		return err
	}

	processedTile, err := processor.Process(response)
	if err != nil {
		return fmt.Errorf("failed to process tile: %w", err)
	}

	format, err := output.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	writer, err := output.NewWriter(&output.WriterConfig{
		Format:      format,
		Pretty:      cfg.Output.Pretty,
		Compression: cfg.Output.Compression,
		Metadata:    metadata,
	}, outputPath, false)
	if err != nil {
		return fmt.Errorf("failed to create writer: %w", err)
	}

	layerOutput := &output.LayerOutput{
		Name:       processedTile.Coordinate.String(),
		Collection: processedTile.Collection,
		Metadata:   make(map[string]interface{}),
	}
	if m := processedTile.Metadata; m != nil {
		layerOutput.Metadata["layers"] = m.Layers
		layerOutput.Metadata["dropped"] = m.Dropped
		layerOutput.Metadata["size"] = m.Size
		layerOutput.Metadata["extent"] = m.Extent
	}

	if err := writer.Write(layerOutput); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}

	if m := processedTile.Metadata; m != nil {
		logger.Info("tile converted",
			zap.Stringer("tile", processedTile.Coordinate),
			zap.Int("features", m.FeatureCount),
			zap.Strings("layers", m.Layers),
			zap.Int("size", m.Size),
			zap.String("destination", describeDestination(writer, outputPath)))
	}

	return nil
}
