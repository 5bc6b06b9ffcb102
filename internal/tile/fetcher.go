// internal/tile/fetcher.go - Tile fetching implementation
package tile

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/valpere/tile_merge/internal"
	"github.com/valpere/tile_merge/internal/config"
)

// HTTPFetcher implements the Fetcher interface using HTTP requests
type HTTPFetcher struct {
	client    *http.Client
	config    *config.ServerConfig
	userAgent string
	backoff   func(attempt int) time.Duration
}

// NewHTTPFetcher creates a new HTTP-based tile fetcher
func NewHTTPFetcher(cfg *config.Config) *HTTPFetcher {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Network.MaxIdleConns,
		IdleConnTimeout:     cfg.Network.IdleConnTimeout,
		DisableKeepAlives:   cfg.Network.DisableKeepAlive,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxConnsPerHost:     cfg.Batch.Concurrency,
	}

	// Configure proxy if specified
	if cfg.Network.ProxyURL != "" {
		if proxyURL, err := url.Parse(cfg.Network.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	client := &http.Client{
		Timeout:   cfg.Server.Timeout,
		Transport: transport,
	}

	return &HTTPFetcher{
		client:    client,
		config:    &cfg.Server,
		userAgent: cfg.Network.UserAgent,
		backoff:   quadraticBackoff,
	}
}

// Client returns the HTTP client used for tile requests
func (f *HTTPFetcher) Client() *http.Client {
	return f.client
}

func quadraticBackoff(attempt int) time.Duration {
	return time.Duration(attempt*attempt) * time.Second
}

// Fetch retrieves a single tile from the configured server
func (f *HTTPFetcher) Fetch(ctx context.Context, request *TileRequest) (*TileResponse, error) {
	start := time.Now()

	req, err := f.buildHTTPRequest(ctx, request)
	if err != nil {
		return &TileResponse{
			Request: request,
			Error:   fmt.Errorf("failed to build HTTP request: %w", err),
		}, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return &TileResponse{
			Request:   request,
			FetchTime: time.Since(start),
			Error:     fmt.Errorf("HTTP request failed: %w", err),
		}, err
	}
	defer resp.Body.Close()

	// Handle compressed responses
	var reader io.Reader = resp.Body
	if strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return &TileResponse{
				Request:    request,
				StatusCode: resp.StatusCode,
				Headers:    resp.Header,
				FetchTime:  time.Since(start),
				Error:      fmt.Errorf("failed to create gzip reader: %w", err),
			}, err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return &TileResponse{
			Request:    request,
			StatusCode: resp.StatusCode,
			Headers:    resp.Header,
			FetchTime:  time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}, err
	}

	response := &TileResponse{
		Request:    request,
		Data:       data,
		Headers:    resp.Header,
		StatusCode: resp.StatusCode,
		Size:       len(data),
		FetchTime:  time.Since(start),
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		response.Error = internal.NewError(internal.ErrorCodeNotFound, fmt.Sprintf("tile not found: %s", request.URL), nil)
		return response, response.Error
	case resp.StatusCode != http.StatusOK:
		response.Error = internal.NewError(internal.ErrorCodeNetwork, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.Status), nil)
		return response, response.Error
	}

	return response, nil
}

// FetchWithRetry implements retry logic for failed tile requests
func (f *HTTPFetcher) FetchWithRetry(ctx context.Context, request *TileRequest) (*TileResponse, error) {
	return retryFetch(ctx, f.config.MaxRetries, f.backoff, func() (*TileResponse, error) {
		return f.Fetch(ctx, request)
	}, f.shouldRetry)
}

// retryFetch runs fetch until it succeeds, the context ends, retryable refuses the
// failure or maxRetries retries have been spent. The last response is returned with the error.
func retryFetch(
	ctx context.Context,
	maxRetries int,
	backoff func(attempt int) time.Duration,
	fetch func() (*TileResponse, error),
	retryable func(response *TileResponse, err error) bool,
) (*TileResponse, error) {
	var lastResponse *TileResponse
	var lastErr error

	attempts := 0
	for attempts <= maxRetries {
		if attempts > 0 {
			timer := time.NewTimer(backoff(attempts))
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastResponse, ctx.Err()
			case <-timer.C:
			}
		}

		response, err := fetch()
		attempts++
		if err == nil {
			return response, nil
		}
		lastResponse, lastErr = response, err

		if ctx.Err() != nil || !retryable(response, err) {
			break
		}
	}

	return lastResponse, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// buildHTTPRequest constructs an HTTP request from a tile request
func (f *HTTPFetcher) buildHTTPRequest(ctx context.Context, tileReq *TileRequest) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tileReq.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	// Set default headers
	req.Header.Set("Accept", "application/x-protobuf")
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	// Add authentication if configured
	if f.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.config.APIKey)
	}

	// Add server-level headers from configuration
	for key, value := range f.config.Headers {
		req.Header.Set(key, value)
	}

	// Add request-specific headers
	for key, value := range tileReq.Headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

// shouldRetry determines whether a failed request should be retried
func (f *HTTPFetcher) shouldRetry(response *TileResponse, err error) bool {
	// Always retry on network errors
	if response == nil {
		return true
	}

	// Don't retry on client errors (4xx)
	if response.StatusCode >= 400 && response.StatusCode < 500 {
		return false
	}

	// Retry on server errors (5xx) and timeout errors
	if response.StatusCode >= 500 || response.StatusCode == 0 {
		return true
	}

	return false
}
