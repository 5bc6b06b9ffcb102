// internal/types.go - Common types for internal packages
package internal

import (
	"context"
	"time"
)

// SourceType represents the type of tile data source
type SourceType string

const (
	SourceTypeHTTP    SourceType = "http"
	SourceTypeLocal   SourceType = "local"
	SourceTypeGeoJSON SourceType = "geojson"
)

// ProcessingStats represents metrics for processing operations
type ProcessingStats struct {
	TotalTiles     int64
	ProcessedTiles int64
	FailedTiles    int64
	TotalFeatures  int64
	StartTime      time.Time
	EndTime        time.Time
	Throughput     float64
}

// Duration returns the elapsed processing time, or the time since start
// when processing has not finished yet.
func (s *ProcessingStats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// ProcessingContext extends context with application-specific data
type ProcessingContext struct {
	context.Context
	Stats *ProcessingStats
}

// Error represents application-specific errors
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new application error
func NewError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ErrorCode constants for common error types
const (
	ErrorCodeNetwork    = "NETWORK_ERROR"
	ErrorCodeProcessing = "PROCESSING_ERROR"
	ErrorCodeValidation = "VALIDATION_ERROR"
	ErrorCodeConfig     = "CONFIG_ERROR"
	ErrorCodeNotFound   = "NOT_FOUND"
	ErrorCodeTimeout    = "TIMEOUT_ERROR"
	ErrorCodeFileSystem = "FILESYSTEM_ERROR"
	ErrorCodePermission = "PERMISSION_ERROR"

	ErrorCodeMalformedGeometry  = "MALFORMED_GEOMETRY"
	ErrorCodeNoRegion           = "NO_REGION_AVAILABLE"
	ErrorCodeGeometryValidation = "GEOMETRY_VALIDATION_FAILED"
	ErrorCodeNullUnion          = "NULL_UNION_RESULT"
	ErrorCodeStoreTransaction   = "STORE_TRANSACTION_ERROR"
)
