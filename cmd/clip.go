// cmd/clip.go - Clip command
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valpere/tile_merge/internal/clip"
	"github.com/valpere/tile_merge/internal/config"
	"github.com/valpere/tile_merge/internal/layer"
	"github.com/valpere/tile_merge/internal/tile"
)

// clipCmd represents the clip command
var clipCmd = &cobra.Command{
	Use:   "clip",
	Short: "Clip tile fragments to their tile extents",
	Long: `Clip every feature to the extent of the tile it was decoded from, or to an
explicit block of tiles given as zoom/xmin/ymin/xmax/ymax. Features loaded from
GeoJSON need _col, _row and _zoom properties unless --clip-bounds is given.

Examples:
  # Clip the tiles of a bounding box to their own extents
  tile-merge clip --base-url "https://example.com/tiles" --zoom 14 --bbox "-74.0,40.7,-73.9,40.8" --output clipped.geojson

  # Clip a GeoJSON file to a block of tiles
  tile-merge clip --input fragments.geojson --clip-bounds 14/4823/6160/4824/6161`,
	RunE: runClip,
}

func init() {
	rootCmd.AddCommand(clipCmd)

	addLoadFlags(clipCmd)
	clipCmd.Flags().String("clip-bounds", "", "clip to a block of tiles: 'zoom/xmin/ymin/xmax/ymax'")
	clipCmd.Flags().StringP("output", "o", "", "output file or directory (default: stdout)")
	clipCmd.Flags().Bool("multi-file", false, "write each layer to its own file")
}

func runClip(cmd *cobra.Command, args []string) error {
	bindFlags(cmd, map[string]string{
		"clip.bounds":       "clip-bounds",
		"output.multi_file": "multi-file",
	})

	cfg, logger, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	opts := readLoadOptions(cmd, cfg)
	outputPath, _ := cmd.Flags().GetString("output")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := loadCatalog(ctx, cfg, opts, logger)
	if err != nil {
		return err
	}

	metadata, err := clipCatalog(ctx, cfg, catalog, logger)
	if err != nil {
		return err
	}

	return writeCatalog(cfg, catalog, outputPath, metadata, logger)
}

// clipCatalog clips every layer of the catalog and returns the per-layer
// statistics as output metadata. An interrupted run keeps what it clipped.
func clipCatalog(ctx context.Context, cfg *config.Config, catalog *layer.Catalog, logger *zap.Logger) (map[string]map[string]interface{}, error) {
	scheme, err := tile.ParseScheme(cfg.Tiles.Scheme)
	if err != nil {
		return nil, fmt.Errorf("invalid tile scheme: %w", err)
	}

	bounds, err := cfg.ClipRegion()
	if err != nil {
		return nil, err
	}
	var region *clip.Region
	if bounds != nil {
		region = &clip.Region{
			Zoom: bounds.Zoom,
			XMin: bounds.XMin,
			YMin: bounds.YMin,
			XMax: bounds.XMax,
			YMax: bounds.YMax,
		}
	}

	clipper := clip.NewClipper(&clip.Options{
		Scheme: scheme,
		CRS:    cfg.Tiles.CRS,
		Logger: logger,
	})

	metadata := make(map[string]map[string]interface{})
	for _, store := range catalog.Layers() {
		stats, err := clipper.Clip(ctx, store, region)
		if err != nil {
			return nil, fmt.Errorf("failed to clip layer %s: %w", store.Name(), err)
		}
		metadata[store.Name()] = map[string]interface{}{
			"clipped":         stats.Clipped,
			"emptied":         stats.Emptied,
			"clip_skipped":    stats.SkippedInvalid,
		}
		if stats.Cancelled {
			logger.Warn("clip interrupted, keeping partial result", zap.String("layer", store.Name()))
			break
		}
	}
	return metadata, nil
}
