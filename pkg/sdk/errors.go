package lensmatch

import "github.com/kailas-cloud/lensmatch/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidImage      = domain.ErrInvalidImage
	ErrDetection         = domain.ErrDetection
	ErrUpload            = domain.ErrUpload
	ErrSearch            = domain.ErrSearch
	ErrMalformedResponse = domain.ErrMalformedResponse
	ErrQuotaExceeded     = domain.ErrQuotaExceeded
	ErrNotFound          = domain.ErrNotFound
	ErrHistoryDisabled   = domain.ErrHistoryDisabled
)
