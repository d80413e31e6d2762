package model

import (
	"errors"
	"fmt"
)

// EngineError is the base wrapper for any failure a Handler reports back
// to the Scrape Pipeline's fallback loop. It carries the engine name so
// the pipeline's error tracker (spec §4.G) can attribute failures per
// engine.
type EngineError struct {
	Engine string
	Err    error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %q: %v", e.Engine, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// TimeoutError means the engine exceeded its allotted deadline.
type TimeoutError struct {
	Engine string
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("engine %q: timed out", e.Engine) }

// SSLError means the TLS handshake or certificate verification failed.
type SSLError struct {
	Engine string
	Err    error
}

func (e *SSLError) Error() string { return fmt.Sprintf("engine %q: tls error: %v", e.Engine, e.Err) }
func (e *SSLError) Unwrap() error { return e.Err }

// SiteError reports an origin-level failure with the status code seen.
// No engine in this repository returns it; the pipeline builds a
// Document for any status an engine hands back, 4xx/5xx included.
type SiteError struct {
	Engine     string
	StatusCode int
}

func (e *SiteError) Error() string {
	return fmt.Sprintf("engine %q: site returned status %d", e.Engine, e.StatusCode)
}

// DNSResolutionError means the hostname could not be resolved.
type DNSResolutionError struct {
	Engine string
	Host   string
}

func (e *DNSResolutionError) Error() string {
	return fmt.Sprintf("engine %q: could not resolve %q", e.Engine, e.Host)
}

// UnsupportedFileError means the resource's content type cannot be
// handled by any engine (e.g. a binary format with no extractor).
type UnsupportedFileError struct {
	ContentType string
}

func (e *UnsupportedFileError) Error() string {
	return fmt.Sprintf("unsupported content type %q", e.ContentType)
}

// ActionError means a scripted browser action (click, write, wait, ...)
// failed to execute.
type ActionError struct {
	Engine string
	Index  int
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("engine %q: action %d failed: %v", e.Engine, e.Index, e.Err)
}
func (e *ActionError) Unwrap() error { return e.Err }

// AddFeatureError signals the current engine cannot satisfy a requested
// feature and the pipeline must restart its fallback search including
// that feature in the requirement set (spec §4.G).
type AddFeatureError struct {
	Feature string
}

func (e *AddFeatureError) Error() string {
	return fmt.Sprintf("engine requires feature %q to be added to requirements", e.Feature)
}

// RemoveFeatureError signals a feature should be dropped from the
// requirement set before the pipeline retries the fallback search.
type RemoveFeatureError struct {
	Feature string
}

func (e *RemoveFeatureError) Error() string {
	return fmt.Sprintf("engine requires feature %q to be removed from requirements", e.Feature)
}

// RacedRedirectError means the final URL observed by the engine diverged
// from the URL the job was scheduled under, and the redirect target is
// itself in scope for separate scheduling (spec §4.H redirect handling).
type RacedRedirectError struct {
	RequestedURL string
	FinalURL     string
}

func (e *RacedRedirectError) Error() string {
	return fmt.Sprintf("redirect raced: requested %q, landed on %q", e.RequestedURL, e.FinalURL)
}

// NoEnginesLeftError means the fallback planner exhausted every
// candidate engine without a success (spec §4.F/4.G terminal state).
type NoEnginesLeftError struct {
	URL string
}

func (e *NoEnginesLeftError) Error() string {
	return fmt.Sprintf("no engines left to try for %q", e.URL)
}

// CancelledError means the job or crawl was cancelled before or during
// processing (spec §4.D cancel, §4.H cancellation checks).
type CancelledError struct {
	ID string
}

func (e *CancelledError) Error() string { return fmt.Sprintf("cancelled: %s", e.ID) }

// ErrStoreUnavailable is the sentinel the State Store Adapter returns
// once its bounded retry budget is exhausted (spec §4.A). Wrap it with
// fmt.Errorf("%w: ...", ErrStoreUnavailable) to add operation context
// and still satisfy errors.Is(err, ErrStoreUnavailable).
var ErrStoreUnavailable = errors.New("state store unavailable")

// StoreUnavailable wraps ErrStoreUnavailable with the failing operation
// name, so callers can log which adapter call finally gave up.
type StoreUnavailable struct {
	Op  string
	Err error
}

func (e *StoreUnavailable) Error() string {
	return fmt.Sprintf("store unavailable during %q: %v", e.Op, e.Err)
}
func (e *StoreUnavailable) Unwrap() error { return ErrStoreUnavailable }
func (e *StoreUnavailable) Is(target error) bool { return target == ErrStoreUnavailable }
