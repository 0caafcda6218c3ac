package domain

import "context"

// Detector finds object regions in an image file. An empty result is not an error.
type Detector interface {
	Detect(ctx context.Context, imagePath string) ([]DetectedRegion, error)
}

// ImageHost uploads a local image and returns its public URL.
type ImageHost interface {
	Upload(ctx context.Context, localPath, credential string) (string, error)
}

// VisualSearcher finds visual matches for a hosted image.
// An empty slice with a nil error is a genuine zero-result answer.
type VisualSearcher interface {
	Search(ctx context.Context, q SearchQuery) ([]VisualMatch, error)
}

// Captioner produces a short human-readable description of an encoded image.
type Captioner interface {
	Caption(ctx context.Context, png []byte) (string, error)
}

// HealthChecker verifies availability of an external dependency.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
