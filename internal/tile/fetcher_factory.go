// internal/tile/fetcher_factory.go - Fetcher factory implementation
package tile

import (
	"context"
	"fmt"
	"net/http"

	"github.com/valpere/tile_merge/internal"
	"github.com/valpere/tile_merge/internal/config"
)

// FetcherFactory creates appropriate fetchers based on configuration
type FetcherFactory struct {
	config *config.Config
}

// NewFetcherFactory creates a new fetcher factory
func NewFetcherFactory(cfg *config.Config) *FetcherFactory {
	return &FetcherFactory{
		config: cfg,
	}
}

// CreateFetcherForType creates a fetcher for a specific source type
func (f *FetcherFactory) CreateFetcherForType(sourceType internal.SourceType) (Fetcher, error) {
	switch sourceType {
	case internal.SourceTypeHTTP:
		if f.config.Server.BaseURL == "" && f.config.Server.TileJSON == "" {
			return nil, fmt.Errorf("base_url or tilejson is required for HTTP fetcher")
		}
		return NewHTTPFetcher(f.config), nil
	case internal.SourceTypeLocal:
		if f.config.Local.BasePath == "" {
			return nil, fmt.Errorf("base_path is required for local fetcher")
		}
		return NewLocalFetcher(f.config), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sourceType)
	}
}

// ValidateConfiguration validates that the configuration supports the requested source type
func (f *FetcherFactory) ValidateConfiguration(sourceType internal.SourceType) error {
	switch sourceType {
	case internal.SourceTypeHTTP:
		if f.config.Server.BaseURL == "" && f.config.Server.TileJSON == "" {
			return fmt.Errorf("base_url or tilejson is required for HTTP source")
		}
		if f.config.Server.BaseURL != "" && f.config.Server.URLTemplate == "" {
			return fmt.Errorf("url_template is required for HTTP source")
		}
	case internal.SourceTypeLocal:
		if f.config.Local.BasePath == "" {
			return fmt.Errorf("base_path is required for local source")
		}
		if f.config.Local.PathTemplate == "" {
			return fmt.Errorf("path_template is required for local source")
		}
		// Validate that base path exists
		if err := config.ValidateLocalTileDirectory(f.config); err != nil {
			return fmt.Errorf("local tile directory validation failed: %w", err)
		}
	default:
		return fmt.Errorf("unsupported source type: %s", sourceType)
	}

	return nil
}

// GetSupportedSourceTypes returns the source types that can be created with current configuration
func (f *FetcherFactory) GetSupportedSourceTypes() []internal.SourceType {
	var supported []internal.SourceType

	// Check HTTP support
	if f.config.Server.BaseURL != "" || f.config.Server.TileJSON != "" {
		supported = append(supported, internal.SourceTypeHTTP)
	}

	// Check local support
	if f.config.Local.BasePath != "" {
		supported = append(supported, internal.SourceTypeLocal)
	}

	return supported
}

// AutoDetectSourceType attempts to automatically detect the best source type
func (f *FetcherFactory) AutoDetectSourceType() internal.SourceType {
	return f.config.DetermineSourceType()
}

// CreateOptimalFetcher creates the best fetcher based on current configuration and preferences
func (f *FetcherFactory) CreateOptimalFetcher() (Fetcher, error) {
	supportedTypes := f.GetSupportedSourceTypes()

	if len(supportedTypes) == 0 {
		return nil, fmt.Errorf("no valid source configuration found")
	}

	// If only one type is supported, use it
	if len(supportedTypes) == 1 {
		return f.CreateFetcherForType(supportedTypes[0])
	}

	// Multiple types supported - use auto-detection
	detectedType := f.AutoDetectSourceType()
	return f.CreateFetcherForType(detectedType)
}

// ConvenientFetcher wraps a fetcher with additional convenience methods
type ConvenientFetcher struct {
	Fetcher
	factory  *FetcherFactory
	config   *config.Config
	tileJSON *TileJSON
}

// NewConvenientFetcher creates a fetcher with convenience methods
func NewConvenientFetcher(cfg *config.Config) (*ConvenientFetcher, error) {
	factory := NewFetcherFactory(cfg)
	fetcher, err := factory.CreateOptimalFetcher()
	if err != nil {
		return nil, err
	}

	return &ConvenientFetcher{
		Fetcher: fetcher,
		factory: factory,
		config:  cfg,
	}, nil
}

// UseTileJSON makes tile URLs come from the templates of a TileJSON document
func (cf *ConvenientFetcher) UseTileJSON(doc *TileJSON) {
	cf.tileJSON = doc
}

// TileJSON returns the document set with UseTileJSON, if any
func (cf *ConvenientFetcher) TileJSON() *TileJSON {
	return cf.tileJSON
}

// HTTPClient returns the client of an HTTP fetcher, or the default client
func (cf *ConvenientFetcher) HTTPClient() *http.Client {
	if httpFetcher, ok := cf.Fetcher.(*HTTPFetcher); ok {
		return httpFetcher.Client()
	}
	return http.DefaultClient
}

// Request builds the tile request for the configured source
func (cf *ConvenientFetcher) Request(z, x, y int) (*TileRequest, error) {
	sourceType := cf.config.DetermineSourceType()
	switch sourceType {
	case internal.SourceTypeHTTP:
		url := cf.config.GetTileURL(z, x, y)
		if cf.tileJSON != nil {
			url = cf.tileJSON.TileURL(z, x, y)
		}
		if url == "" {
			return nil, fmt.Errorf("no tile URL available for %d/%d/%d", z, x, y)
		}
		return NewTileRequest(z, x, y, url), nil
	case internal.SourceTypeLocal:
		return NewTileRequest(z, x, y, ""), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sourceType)
	}
}

// FetchTile is a convenience method for fetching tiles by coordinates
func (cf *ConvenientFetcher) FetchTile(ctx context.Context, z, x, y int) (*TileResponse, error) {
	request, err := cf.Request(z, x, y)
	if err != nil {
		return nil, err
	}
	return cf.FetchWithRetry(ctx, request)
}

// GetSourceType returns the source type being used by this fetcher
func (cf *ConvenientFetcher) GetSourceType() internal.SourceType {
	return cf.config.DetermineSourceType()
}

// IsLocal returns true if this fetcher uses local file access
func (cf *ConvenientFetcher) IsLocal() bool {
	return cf.GetSourceType() == internal.SourceTypeLocal
}

// ListAvailableTiles lists the tiles stored under the base path of a local source
func (cf *ConvenientFetcher) ListAvailableTiles() ([]*TileCoordinate, error) {
	local, ok := cf.Fetcher.(*LocalFetcher)
	if !cf.IsLocal() || !ok {
		return nil, fmt.Errorf("tile listing requires a local source")
	}
	return local.ListAvailableTiles()
}
