// cmd/root.go - Root command implementation
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/valpere/tile_merge/internal/config"
	"github.com/valpere/tile_merge/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tile-merge",
	Short: "Dissolve features cut apart at vector tile boundaries",
	Long: `TileMerge loads features from Mapbox Vector Tiles or GeoJSON, optionally clips
them to their tile extents, and dissolves fragments of the same object that
were split at tile boundaries back into single features.

Data Sources:
- Remote tile servers via HTTP/HTTPS or a TileJSON document
- Local tile files and directories
- GeoJSON feature collections

Features:
- Concurrent tile loading with progress reporting
- Clipping to the source tile or to an explicit block of tiles
- Proximity-based dissolve of touching fragments using a spatial index
- GeoJSON and custom JSON output, single or per-layer files

Examples:
  # Merge the fragments of a GeoJSON export
  tile-merge merge --input fragments.geojson --output merged.geojson

  # Load remote tiles of a bounding box, clip them and merge
  tile-merge merge --base-url "https://example.com/tiles" --zoom 14 --bbox "-74.0,40.7,-73.9,40.8" --clip

  # Load every tile described by a TileJSON document at zoom 12
  tile-merge merge --tilejson "https://example.com/tiles.json" --zoom 12 --multi-file --output ./layers

  # Clip a local tile directory without merging
  tile-merge clip --base-path "/path/to/tiles" --zoom 14 --output clipped.geojson

  # Convert a single tile
  tile-merge convert --base-url "https://example.com/tiles" --z 14 --x 8362 --y 5956`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tile-merge.yaml)")

	// Source configuration flags
	rootCmd.PersistentFlags().String("source-type", "auto", "data source type (auto, http, local)")
	rootCmd.PersistentFlags().String("base-url", "", "base URL for tile server (HTTP source)")
	rootCmd.PersistentFlags().String("base-path", "", "base path for local tiles (local source)")
	rootCmd.PersistentFlags().String("tilejson", "", "TileJSON document describing the tile source (file or URL)")
	rootCmd.PersistentFlags().String("api-key", "", "API key for authentication (HTTP source)")
	rootCmd.PersistentFlags().String("scheme", "xyz", "tile row scheme (xyz, tms)")
	rootCmd.PersistentFlags().String("crs", "web-mercator", "coordinate system of decoded features (web-mercator, wgs84)")

	// Output flags
	rootCmd.PersistentFlags().StringP("format", "f", "geojson", "output format (geojson, json)")
	rootCmd.PersistentFlags().Bool("pretty", true, "pretty print JSON output")
	rootCmd.PersistentFlags().Bool("compression", false, "compress output files")

	// Processing flags
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose output")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().Int("concurrency", 10, "number of concurrent tile loads")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "request timeout (HTTP source)")
	rootCmd.PersistentFlags().Int("retries", 3, "number of retry attempts")

	// Bind flags to viper
	viper.BindPFlag("source.type", rootCmd.PersistentFlags().Lookup("source-type"))
	viper.BindPFlag("server.base_url", rootCmd.PersistentFlags().Lookup("base-url"))
	viper.BindPFlag("local.base_path", rootCmd.PersistentFlags().Lookup("base-path"))
	viper.BindPFlag("server.tilejson", rootCmd.PersistentFlags().Lookup("tilejson"))
	viper.BindPFlag("server.api_key", rootCmd.PersistentFlags().Lookup("api-key"))
	viper.BindPFlag("tiles.scheme", rootCmd.PersistentFlags().Lookup("scheme"))
	viper.BindPFlag("tiles.crs", rootCmd.PersistentFlags().Lookup("crs"))
	viper.BindPFlag("output.format", rootCmd.PersistentFlags().Lookup("format"))
	viper.BindPFlag("output.pretty", rootCmd.PersistentFlags().Lookup("pretty"))
	viper.BindPFlag("output.compression", rootCmd.PersistentFlags().Lookup("compression"))
	viper.BindPFlag("logging.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("batch.concurrency", rootCmd.PersistentFlags().Lookup("concurrency"))
	viper.BindPFlag("server.timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	viper.BindPFlag("server.max_retries", rootCmd.PersistentFlags().Lookup("retries"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".tile-merge" (without extension)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tile-merge")
	}

	// Environment variables
	viper.SetEnvPrefix("TILE_MERGE")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("logging.verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// bindFlags binds local flags of the running command to configuration keys.
// Several commands bind the same keys.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		viper.BindPFlag(key, cmd.Flags().Lookup(name))
	}
}

// setup loads the configuration and builds the logger for a command run.
// The returned cleanup flushes the logger.
func setup() (*config.Config, *zap.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, cleanup, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return cfg, logger, cleanup, nil
}
