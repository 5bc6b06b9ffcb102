// internal/tile/local_fetcher.go - Tile fetching from a directory tree
package tile

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/valpere/tile_merge/internal"
	"github.com/valpere/tile_merge/internal/config"
)

// localRetries bounds re-reads of a tile file after a transient file system error
const localRetries = 3

// LocalFetcher reads tiles laid out as {z}/{x}/{y} files under a base directory
type LocalFetcher struct {
	config  *config.LocalConfig
	paths   func(z, x, y int) string
	backoff func(attempt int) time.Duration
}

// NewLocalFetcher creates a fetcher for the tile tree configured under local
func NewLocalFetcher(cfg *config.Config) *LocalFetcher {
	return &LocalFetcher{
		config:  &cfg.Local,
		paths:   cfg.GetTilePath,
		backoff: linearBackoff,
	}
}

func linearBackoff(attempt int) time.Duration {
	return time.Duration(attempt) * 100 * time.Millisecond
}

// Fetch reads one tile file, gunzipping it when the name ends in .gz
func (f *LocalFetcher) Fetch(ctx context.Context, request *TileRequest) (*TileResponse, error) {
	start := time.Now()
	response := &TileResponse{Request: request}

	fail := func(code, message string, cause error) (*TileResponse, error) {
		response.FetchTime = time.Since(start)
		response.Error = internal.NewError(code, message, cause)
		return response, response.Error
	}

	if err := ctx.Err(); err != nil {
		response.Error = err
		return response, err
	}

	path, err := f.tilePath(request)
	if err != nil {
		return fail(internal.ErrorCodeValidation, "failed to build file path", err)
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fail(internal.ErrorCodeNotFound, "tile file not found: "+path, err)
	case errors.Is(err, fs.ErrPermission):
		return fail(internal.ErrorCodePermission, "tile file not readable: "+path, err)
	case err != nil:
		return fail(internal.ErrorCodeFileSystem, "cannot access tile file: "+path, err)
	case !info.Mode().IsRegular():
		return fail(internal.ErrorCodeValidation, "path is not a regular file: "+path, nil)
	}

	compressed := strings.HasSuffix(strings.ToLower(path), ".gz")
	data, err := readTileFile(path, compressed)
	if err != nil {
		return fail(internal.ErrorCodeFileSystem, "failed to read tile file: "+path, err)
	}

	response.Data = data
	response.Size = len(data)
	response.StatusCode = 200
	response.FetchTime = time.Since(start)
	response.Headers = map[string][]string{
		"Content-Type":   {"application/x-protobuf"},
		"Content-Length": {strconv.Itoa(len(data))},
	}
	if compressed {
		response.Headers["Content-Encoding"] = []string{"gzip"}
	}
	return response, nil
}

func readTileFile(path string, compressed bool) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var reader io.Reader = file
	if compressed {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}
	return io.ReadAll(reader)
}

// FetchWithRetry re-reads a tile after transient file system errors
func (f *LocalFetcher) FetchWithRetry(ctx context.Context, request *TileRequest) (*TileResponse, error) {
	return retryFetch(ctx, localRetries, f.backoff, func() (*TileResponse, error) {
		return f.Fetch(ctx, request)
	}, retryableLocal)
}

// retryableLocal refuses retries for missing, unreadable or malformed tiles
func retryableLocal(_ *TileResponse, err error) bool {
	var appErr *internal.Error
	if !errors.As(err, &appErr) {
		return true
	}
	switch appErr.Code {
	case internal.ErrorCodeNotFound, internal.ErrorCodePermission, internal.ErrorCodeValidation:
		return false
	}
	return true
}

// tilePath resolves a request URL as a file path, or expands the path template
func (f *LocalFetcher) tilePath(request *TileRequest) (string, error) {
	if request.URL != "" {
		if filepath.IsAbs(request.URL) {
			return request.URL, nil
		}
		return filepath.Join(f.config.BasePath, request.URL), nil
	}
	if f.config.BasePath == "" {
		return "", fmt.Errorf("base_path is required for coordinate-based file paths")
	}
	if err := ValidateCoordinates(request.Z, request.X, request.Y); err != nil {
		return "", fmt.Errorf("invalid coordinates: %w", err)
	}
	return filepath.FromSlash(f.paths(request.Z, request.X, request.Y)), nil
}

// ListAvailableTiles walks the base directory and returns every {z}/{x}/{y} tile file in it
func (f *LocalFetcher) ListAvailableTiles() ([]*TileCoordinate, error) {
	if f.config.BasePath == "" {
		return nil, fmt.Errorf("base_path is required for tile listing")
	}

	var tiles []*TileCoordinate
	err := filepath.WalkDir(f.config.BasePath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(f.config.BasePath, path)
		if err != nil {
			return err
		}
		if coord, ok := coordinateFromPath(rel); ok {
			tiles = append(tiles, coord)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan tile directory: %w", err)
	}
	return tiles, nil
}

// coordinateFromPath parses z/x/y.ext[.gz]; other files are skipped
func coordinateFromPath(rel string) (*TileCoordinate, bool) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 {
		return nil, false
	}

	name := parts[2]
	name = strings.TrimSuffix(name, ".gz")
	name = strings.TrimSuffix(name, filepath.Ext(name))

	var values [3]int
	for i, part := range []string{parts[0], parts[1], name} {
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, false
		}
		values[i] = v
	}
	return &TileCoordinate{Z: values[0], X: values[1], Y: values[2]}, true
}
