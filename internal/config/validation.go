// internal/config/validation.go - Configuration validation
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"go.uber.org/multierr"
)

// Validate validates the configuration structure and values. All problems
// are reported together.
func Validate(config *Config) error {
	var errs error

	if err := validateServer(&config.Server); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("server configuration invalid: %w", err))
	}
	if err := validateTiles(&config.Tiles); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("tiles configuration invalid: %w", err))
	}
	if err := validateClip(&config.Clip); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("clip configuration invalid: %w", err))
	}
	if err := validateMerge(&config.Merge); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("merge configuration invalid: %w", err))
	}
	if err := validateIndex(&config.Index); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("index configuration invalid: %w", err))
	}
	if err := validateOutput(&config.Output); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("output configuration invalid: %w", err))
	}
	if err := validateBatch(&config.Batch); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("batch configuration invalid: %w", err))
	}
	if err := validateNetwork(&config.Network); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("network configuration invalid: %w", err))
	}
	if err := validateLogging(&config.Logging); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("logging configuration invalid: %w", err))
	}

	return errs
}

// validateServer validates server configuration parameters. The server is
// optional since tiles may come from disk or features from a GeoJSON file.
func validateServer(config *ServerConfig) error {
	if config.BaseURL != "" {
		if _, err := url.ParseRequestURI(config.BaseURL); err != nil {
			return fmt.Errorf("invalid base_url: %w", err)
		}
		if config.URLTemplate == "" {
			return fmt.Errorf("url_template is required")
		}
	}

	if config.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}

	if config.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	return nil
}

func validateTiles(config *TilesConfig) error {
	validSchemes := []string{"xyz", "tms"}
	if !contains(validSchemes, config.Scheme) {
		return fmt.Errorf("invalid scheme: %s, must be one of %v", config.Scheme, validSchemes)
	}

	validCRS := []string{"web-mercator", "wgs84"}
	if !contains(validCRS, config.CRS) {
		return fmt.Errorf("invalid crs: %s, must be one of %v", config.CRS, validCRS)
	}

	if config.Extent <= 0 {
		return fmt.Errorf("extent must be positive")
	}

	return nil
}

func validateClip(config *ClipConfig) error {
	if config.Bounds == "" {
		return nil
	}
	_, err := ParseClipBounds(config.Bounds)
	return err
}

func validateMerge(config *MergeConfig) error {
	if config.ProximityTolerance < 0 {
		return fmt.Errorf("proximity_tolerance must be non-negative")
	}
	if config.BufferSegments <= 0 {
		return fmt.Errorf("buffer_segments must be positive")
	}
	return nil
}

func validateIndex(config *IndexConfig) error {
	if config.MinChildren < 1 {
		return fmt.Errorf("min_children must be positive")
	}
	if config.MaxChildren < 2*config.MinChildren {
		return fmt.Errorf("max_children must be at least twice min_children")
	}
	return nil
}

// validateOutput validates output configuration parameters
func validateOutput(config *OutputConfig) error {
	validFormats := []string{"geojson", "json"}
	if !contains(validFormats, config.Format) {
		return fmt.Errorf("invalid format: %s, must be one of %v", config.Format, validFormats)
	}

	if !config.Stdout && config.Directory == "" {
		return fmt.Errorf("directory is required when not using stdout")
	}

	return nil
}

// validateBatch validates batch processing configuration parameters
func validateBatch(config *BatchConfig) error {
	if config.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}

	if config.Concurrency > 1000 {
		return fmt.Errorf("concurrency must not exceed 1000")
	}

	if config.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	return nil
}

// validateNetwork validates network configuration parameters
func validateNetwork(config *NetworkConfig) error {
	if config.ProxyURL != "" {
		if _, err := url.Parse(config.ProxyURL); err != nil {
			return fmt.Errorf("invalid proxy_url: %w", err)
		}
	}

	if config.MaxIdleConns < 0 {
		return fmt.Errorf("max_idle_conns must be non-negative")
	}

	if config.UserAgent == "" {
		return fmt.Errorf("user_agent cannot be empty")
	}

	if config.KeepAlive < 0 {
		return fmt.Errorf("keep_alive must be non-negative")
	}

	if config.IdleConnTimeout < 0 {
		return fmt.Errorf("idle_conn_timeout must be non-negative")
	}

	return nil
}

// validateLogging validates logging configuration parameters
func validateLogging(config *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error", "fatal", "panic"}
	if !contains(validLevels, config.Level) {
		return fmt.Errorf("invalid log level: %s, must be one of %v", config.Level, validLevels)
	}

	validFormats := []string{"text", "json"}
	if !contains(validFormats, config.Format) {
		return fmt.Errorf("invalid log format: %s, must be one of %v", config.Format, validFormats)
	}

	validOutputs := []string{"stdout", "stderr", "file"}
	if !contains(validOutputs, config.Output) {
		return fmt.Errorf("invalid log output: %s, must be one of %v", config.Output, validOutputs)
	}

	if strings.EqualFold(config.Output, "file") && config.File == "" {
		return fmt.Errorf("file is required when logging to a file")
	}

	return nil
}

// ValidateLocalTileDirectory checks that the local tile base path is an
// existing directory
func ValidateLocalTileDirectory(config *Config) error {
	if config.Local.BasePath == "" {
		return fmt.Errorf("base_path is required")
	}

	info, err := os.Stat(config.Local.BasePath)
	if err != nil {
		return fmt.Errorf("cannot access base_path %s: %w", config.Local.BasePath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("base_path %s is not a directory", config.Local.BasePath)
	}

	return nil
}

// contains checks if a string slice contains a specific string (case-insensitive)
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}
