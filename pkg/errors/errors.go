package errors

import (
	"errors"
	"fmt"
)

// Common error types
var (
	// Server catalog errors
	ErrServerNotFound = errors.New("server not found")
	ErrCatalogEmpty   = errors.New("server catalog is empty")
	ErrCatalogInvalid = errors.New("invalid server catalog")

	// Settings errors
	ErrSettingNotFound   = errors.New("setting not found")
	ErrInvalidPreference = errors.New("invalid preference value")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")

	// Recommendation errors
	ErrEmptyQuery                = errors.New("query is empty")
	ErrRecommendationUnavailable = errors.New("recommendation service unavailable")
	ErrMissingAPIKey             = errors.New("API key not configured")

	// Scheduler errors
	ErrSchedulerRunning    = errors.New("scheduler is already running")
	ErrSchedulerNotRunning = errors.New("scheduler is not running")
)

// ServerError represents a server-related error
type ServerError struct {
	ServerID string
	Err      error
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server '%s': %v", e.ServerID, e.Err)
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

// CatalogError represents a failure while importing a server catalog
type CatalogError struct {
	Path string
	Err  error
}

func (e *CatalogError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("catalog '%s': %v", e.Path, e.Err)
	}
	return fmt.Sprintf("catalog: %v", e.Err)
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}

// RecommendationError represents a failed call to the text-generation API.
// It never escapes the recommend package; it is logged and turned into a
// fallback result.
type RecommendationError struct {
	Model string
	Err   error
}

func (e *RecommendationError) Error() string {
	return fmt.Sprintf("recommendation (%s): %v", e.Model, e.Err)
}

func (e *RecommendationError) Unwrap() error {
	return e.Err
}

// PreferenceError represents an invalid preference key or value
type PreferenceError struct {
	Key   string
	Value string
	Err   error
}

func (e *PreferenceError) Error() string {
	return fmt.Sprintf("preference '%s'='%s': %v", e.Key, e.Value, e.Err)
}

func (e *PreferenceError) Unwrap() error {
	return e.Err
}
