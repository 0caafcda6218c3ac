package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidImage signals an upload that cannot be decoded as JPEG or PNG. Aborts the run.
	ErrInvalidImage = errors.New("invalid image")
	// ErrDetection signals a detector failure. Aborts the run.
	ErrDetection = errors.New("detection failed")
	// ErrDegenerateRegion signals a bounding box with no pixels left after clamping.
	ErrDegenerateRegion = errors.New("degenerate region")
	// ErrUpload signals an image host failure.
	ErrUpload = errors.New("upload failed")
	// ErrSearch signals a visual search failure reported by the upstream.
	ErrSearch = errors.New("search failed")
	// ErrMalformedResponse signals an upstream body of unexpected shape.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrQuotaExceeded signals an exhausted search budget.
	ErrQuotaExceeded = errors.New("search quota exceeded")
	// ErrNotFound signals a missing scan.
	ErrNotFound = errors.New("scan not found")
	// ErrHistoryDisabled signals that scan history is not configured.
	ErrHistoryDisabled = errors.New("scan history disabled")
)

// UploadError carries the image host status and message.
type UploadError struct {
	Status  int
	Message string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", ErrUpload.Error(), e.Status, e.Message)
}

func (e *UploadError) Unwrap() error { return ErrUpload }

// SearchError carries the visual search status and message.
type SearchError struct {
	Status  int
	Message string
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", ErrSearch.Error(), e.Status, e.Message)
}

func (e *SearchError) Unwrap() error { return ErrSearch }

// UpstreamMessage returns the human-readable upstream message of an upload or
// search error, or err.Error() for anything else.
func UpstreamMessage(err error) string {
	var ue *UploadError
	if errors.As(err, &ue) {
		return ue.Message
	}
	var se *SearchError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
