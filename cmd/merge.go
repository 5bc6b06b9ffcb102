// cmd/merge.go - Merge command
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valpere/tile_merge/internal/config"
	"github.com/valpere/tile_merge/internal/layer"
	"github.com/valpere/tile_merge/internal/merge"
	"github.com/valpere/tile_merge/internal/spatial"
)

// mergeCmd represents the merge command
var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Dissolve fragments split at tile boundaries",
	Long: `Load features from tiles or a GeoJSON file and dissolve fragments of the same
object that touch across tile boundaries. Every group of touching fragments is
replaced by one feature holding the union geometry and a dissolveGroup id.

An interrupt stops the merge at the next feature; the groups formed so far are
kept and written.

Examples:
  # Merge a GeoJSON export of tile fragments
  tile-merge merge --input fragments.geojson --output merged.geojson

  # Load, clip and merge remote tiles
  tile-merge merge --base-url "https://example.com/tiles" --zoom 14 --bbox "-74.0,40.7,-73.9,40.8" --clip

  # Merge a TileJSON source into one file per layer
  tile-merge merge --tilejson tiles.json --zoom 12 --multi-file --output ./layers

  # Merge again, ignoring groups from an earlier run
  tile-merge merge --input merged.geojson --reset-groups --tolerance 5`,
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)

	addLoadFlags(mergeCmd)
	mergeCmd.Flags().Bool("clip", false, "clip fragments to their tiles before merging")
	mergeCmd.Flags().String("clip-bounds", "", "clip to a block of tiles: 'zoom/xmin/ymin/xmax/ymax'")
	mergeCmd.Flags().Float64("tolerance", merge.DefaultProximityTolerance, "proximity tolerance of the first neighbour search, in map units")
	mergeCmd.Flags().Bool("reset-groups", false, "clear dissolve groups from earlier runs")
	mergeCmd.Flags().StringP("output", "o", "", "output file or directory (default: stdout)")
	mergeCmd.Flags().Bool("multi-file", false, "write each layer to its own file")
}

func runMerge(cmd *cobra.Command, args []string) error {
	bindFlags(cmd, map[string]string{
		"clip.enabled":              "clip",
		"clip.bounds":               "clip-bounds",
		"merge.proximity_tolerance": "tolerance",
		"merge.reset_groups":        "reset-groups",
		"output.multi_file":         "multi-file",
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

	metadata := make(map[string]map[string]interface{})
	if cfg.Clip.Enabled || cfg.Clip.Bounds != "" {
		metadata, err = clipCatalog(ctx, cfg, catalog, logger)
		if err != nil {
			return err
		}
	}

	results, err := mergeCatalog(ctx, cfg, catalog, logger)
	if err != nil {
		return err
	}
	for _, result := range results {
		layerMetadata, ok := metadata[result.Layer]
		if !ok {
			layerMetadata = make(map[string]interface{})
			metadata[result.Layer] = layerMetadata
		}
		layerMetadata["groups"] = result.Groups
		layerMetadata["merged"] = result.Merged
		layerMetadata["skipped_invalid"] = result.Invalid
		layerMetadata["skipped_null_union"] = result.NullUnion
		layerMetadata["cancelled"] = result.Cancelled
	}

	return writeCatalog(cfg, catalog, outputPath, metadata, logger)
}

// mergeCatalog dissolves every layer of the catalog in name order. A
// cancelled run stops after the layer it interrupted, whose work is kept.
func mergeCatalog(ctx context.Context, cfg *config.Config, catalog *layer.Catalog, logger *zap.Logger) ([]*merge.Result, error) {
	newIndex, err := indexFactory(cfg.Index)
	if err != nil {
		return nil, err
	}

	merger := merge.NewMerger(&merge.Options{
		ProximityTolerance: cfg.Merge.ProximityTolerance,
		BufferSegments:     cfg.Merge.BufferSegments,
		ResetGroups:        cfg.Merge.ResetGroups,
		NewIndex:           newIndex,
		Logger:             logger,
	})

	var results []*merge.Result
	for _, store := range catalog.Layers() {
		result, err := merger.Merge(ctx, store)
		if err != nil {
			return results, fmt.Errorf("failed to merge layer %s: %w", store.Name(), err)
		}
		results = append(results, result)
		if result.Cancelled {
			logger.Warn("merge interrupted, writing partial result", zap.String("layer", store.Name()))
			break
		}
	}
	return results, nil
}

// indexFactory returns a constructor for R-trees sized by the configuration
func indexFactory(cfg config.IndexConfig) (func() spatial.Index, error) {
	if _, err := spatial.NewRTree(cfg.MinChildren, cfg.MaxChildren); err != nil {
		return nil, fmt.Errorf("invalid index configuration: %w", err)
	}
	return func() spatial.Index {
		tree, _ := spatial.NewRTree(cfg.MinChildren, cfg.MaxChildren)
		return tree
	}, nil
}
