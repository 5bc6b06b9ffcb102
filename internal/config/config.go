// internal/config/config.go - Configuration management
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valpere/tile_merge/internal"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Local   LocalConfig   `mapstructure:"local"`
	Source  SourceConfig  `mapstructure:"source"`
	Tiles   TilesConfig   `mapstructure:"tiles"`
	Clip    ClipConfig    `mapstructure:"clip"`
	Merge   MergeConfig   `mapstructure:"merge"`
	Index   IndexConfig   `mapstructure:"index"`
	Output  OutputConfig  `mapstructure:"output"`
	Batch   BatchConfig   `mapstructure:"batch"`
	Network NetworkConfig `mapstructure:"network"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig contains tile server configuration for HTTP sources
type ServerConfig struct {
	BaseURL     string            `mapstructure:"base_url"`
	APIKey      string            `mapstructure:"api_key"`
	Headers     map[string]string `mapstructure:"headers"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	MaxRetries  int               `mapstructure:"max_retries"`
	URLTemplate string            `mapstructure:"url_template"`
	TileJSON    string            `mapstructure:"tilejson"`
}

// LocalConfig contains configuration for local file processing
type LocalConfig struct {
	BasePath     string `mapstructure:"base_path"`
	PathTemplate string `mapstructure:"path_template"`
	Extension    string `mapstructure:"extension"`
	Compressed   bool   `mapstructure:"compressed"`
}

// SourceConfig determines the data source type and behavior
type SourceConfig struct {
	Type        string `mapstructure:"type"`
	DefaultType string `mapstructure:"default_type"`
	AutoDetect  bool   `mapstructure:"auto_detect"`
	Input       string `mapstructure:"input"`
}

// TilesConfig describes how tiles are addressed and decoded
type TilesConfig struct {
	Scheme      string   `mapstructure:"scheme"`
	CRS         string   `mapstructure:"crs"`
	Extent      int      `mapstructure:"extent"`
	LayerFilter []string `mapstructure:"layer_filter"`
	KeepOutside bool     `mapstructure:"keep_outside"`
}

// ClipConfig controls clipping of fragments to tile bounds
type ClipConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bounds  string `mapstructure:"bounds"`
}

// MergeConfig controls the dissolve of tile fragments
type MergeConfig struct {
	ProximityTolerance float64 `mapstructure:"proximity_tolerance"`
	BufferSegments     int     `mapstructure:"buffer_segments"`
	ResetGroups        bool    `mapstructure:"reset_groups"`
}

// IndexConfig sizes the spatial index nodes
type IndexConfig struct {
	MinChildren int `mapstructure:"min_children"`
	MaxChildren int `mapstructure:"max_children"`
}

// OutputConfig contains output formatting configuration
type OutputConfig struct {
	Format      string `mapstructure:"format"`
	Directory   string `mapstructure:"directory"`
	Filename    string `mapstructure:"filename"`
	Compression bool   `mapstructure:"compression"`
	Pretty      bool   `mapstructure:"pretty"`
	Stdout      bool   `mapstructure:"stdout"`
	MultiFile   bool   `mapstructure:"multi_file"`
}

// BatchConfig contains batch processing configuration
type BatchConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
	FailOnError bool          `mapstructure:"fail_on_error"`
}

// NetworkConfig contains network-related configuration
type NetworkConfig struct {
	ProxyURL         string        `mapstructure:"proxy_url"`
	UserAgent        string        `mapstructure:"user_agent"`
	KeepAlive        time.Duration `mapstructure:"keep_alive"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	IdleConnTimeout  time.Duration `mapstructure:"idle_conn_timeout"`
	DisableKeepAlive bool          `mapstructure:"disable_keep_alive"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	File     string `mapstructure:"file"`
	Verbose  bool   `mapstructure:"verbose"`
	Progress bool   `mapstructure:"progress"`
}

// ClipBounds is an inclusive range of tiles at one zoom level
type ClipBounds struct {
	Zoom int
	XMin int
	YMin int
	XMax int
	YMax int
}

// Load loads configuration from various sources
func Load() (*Config, error) {
	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, internal.NewError(internal.ErrorCodeConfig, "failed to unmarshal configuration", err)
	}

	if err := Validate(&config); err != nil {
		return nil, internal.NewError(internal.ErrorCodeConfig, "configuration validation failed", err)
	}

	return &config, nil
}

// setDefaults configures default values for all configuration options
func setDefaults() {
	// Source defaults
	viper.SetDefault("source.type", "auto")
	viper.SetDefault("source.default_type", "http")
	viper.SetDefault("source.auto_detect", true)

	// Server defaults
	viper.SetDefault("server.timeout", 30*time.Second)
	viper.SetDefault("server.max_retries", 3)
	viper.SetDefault("server.url_template", "{base_url}/{z}/{x}/{y}.mvt")

	// Local file defaults
	viper.SetDefault("local.path_template", "{base_path}/{z}/{x}/{y}{ext}")
	viper.SetDefault("local.extension", ".mvt")
	viper.SetDefault("local.compressed", false)

	// Tile defaults
	viper.SetDefault("tiles.scheme", "xyz")
	viper.SetDefault("tiles.crs", "web-mercator")
	viper.SetDefault("tiles.extent", 4096)
	viper.SetDefault("tiles.keep_outside", false)

	// Clip defaults
	viper.SetDefault("clip.enabled", false)

	// Merge defaults
	viper.SetDefault("merge.proximity_tolerance", 10.0)
	viper.SetDefault("merge.buffer_segments", 8)
	viper.SetDefault("merge.reset_groups", false)

	// Index defaults
	viper.SetDefault("index.min_children", 25)
	viper.SetDefault("index.max_children", 50)

	// Output defaults
	viper.SetDefault("output.format", "geojson")
	viper.SetDefault("output.directory", ".")
	viper.SetDefault("output.pretty", true)
	viper.SetDefault("output.compression", false)
	viper.SetDefault("output.stdout", false)
	viper.SetDefault("output.multi_file", false)

	// Batch defaults
	viper.SetDefault("batch.concurrency", 10)
	viper.SetDefault("batch.timeout", 5*time.Minute)
	viper.SetDefault("batch.fail_on_error", false)

	// Network defaults
	viper.SetDefault("network.user_agent", "TileMerge/1.0")
	viper.SetDefault("network.keep_alive", 30*time.Second)
	viper.SetDefault("network.max_idle_conns", 100)
	viper.SetDefault("network.idle_conn_timeout", 90*time.Second)
	viper.SetDefault("network.disable_keep_alive", false)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.output", "stderr")
	viper.SetDefault("logging.verbose", false)
	viper.SetDefault("logging.progress", true)
}

// GetTileURL builds a tile URL using the configured template for HTTP sources
func (c *Config) GetTileURL(z, x, y int) string {
	if c.Server.BaseURL == "" {
		return ""
	}
	template := c.Server.URLTemplate
	if template == "" {
		template = "{base_url}/{z}/{x}/{y}.mvt"
	}
	return expandTemplate(template, map[string]string{
		"base_url": strings.TrimSuffix(c.Server.BaseURL, "/"),
	}, z, x, y)
}

// GetTilePath builds a local file path using the configured template for local sources
func (c *Config) GetTilePath(z, x, y int) string {
	if c.Local.BasePath == "" {
		return ""
	}
	extension := c.Local.Extension
	if c.Local.Compressed {
		extension += ".gz"
	}
	template := c.Local.PathTemplate
	if template == "" {
		template = "{base_path}/{z}/{x}/{y}{ext}"
	}
	return expandTemplate(template, map[string]string{
		"base_path": strings.TrimSuffix(c.Local.BasePath, "/"),
		"ext":       extension,
	}, z, x, y)
}

func expandTemplate(template string, values map[string]string, z, x, y int) string {
	replacements := []string{
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
	}
	for key, value := range values {
		replacements = append(replacements, "{"+key+"}", value)
	}
	return strings.NewReplacer(replacements...).Replace(template)
}

// DetermineSourceType automatically determines the source type based on configuration
func (c *Config) DetermineSourceType() internal.SourceType {
	if c.Source.Input != "" {
		return internal.SourceTypeGeoJSON
	}

	if !c.Source.AutoDetect {
		switch c.Source.Type {
		case "local":
			return internal.SourceTypeLocal
		case "geojson":
			return internal.SourceTypeGeoJSON
		}
		return internal.SourceTypeHTTP
	}

	if c.Local.BasePath != "" && c.Server.BaseURL == "" && c.Server.TileJSON == "" {
		return internal.SourceTypeLocal
	}
	if (c.Server.BaseURL != "" || c.Server.TileJSON != "") && c.Local.BasePath == "" {
		return internal.SourceTypeHTTP
	}

	if c.Source.DefaultType == "local" {
		return internal.SourceTypeLocal
	}
	return internal.SourceTypeHTTP
}

// ClipRegion returns the configured clip bounds, nil when clipping uses the
// tile each feature was cut from
func (c *Config) ClipRegion() (*ClipBounds, error) {
	if c.Clip.Bounds == "" {
		return nil, nil
	}
	return ParseClipBounds(c.Clip.Bounds)
}

// ParseClipBounds parses "zoom/xmin/ymin/xmax/ymax"
func ParseClipBounds(s string) (*ClipBounds, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 5 {
		return nil, fmt.Errorf("invalid clip bounds %q: expected zoom/xmin/ymin/xmax/ymax", s)
	}

	values := make([]int, len(parts))
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid clip bounds %q: %w", s, err)
		}
		values[i] = v
	}

	bounds := &ClipBounds{Zoom: values[0], XMin: values[1], YMin: values[2], XMax: values[3], YMax: values[4]}
	if bounds.XMin > bounds.XMax || bounds.YMin > bounds.YMax {
		return nil, fmt.Errorf("invalid clip bounds %q: minimum exceeds maximum", s)
	}
	return bounds, nil
}
