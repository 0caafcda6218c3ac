package domain

import (
	"fmt"
	"image"
)

// BoundingBox is a pixel rectangle in source image coordinates, corners inclusive-exclusive.
// Coordinates are kept exactly as the detector produced them.
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Rect converts the box to an image.Rectangle. The result is canonicalized by image.Rect,
// so callers that care about inverted boxes must check Valid first.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// Valid reports whether x1<x2 and y1<y2.
func (b BoundingBox) Valid() bool {
	return b.X1 < b.X2 && b.Y1 < b.Y2
}

// Width returns x2-x1 (may be negative for inverted boxes).
func (b BoundingBox) Width() int { return b.X2 - b.X1 }

// Height returns y2-y1 (may be negative for inverted boxes).
func (b BoundingBox) Height() int { return b.Y2 - b.Y1 }

func (b BoundingBox) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", b.X1, b.Y1, b.X2, b.Y2)
}

// DetectedRegion is one detection produced by a single detection pass.
type DetectedRegion struct {
	Box        BoundingBox `json:"box"`
	Confidence float64     `json:"confidence"`
	ClassID    int         `json:"class_id"`
	Label      string      `json:"label,omitempty"`
}

// CroppedAsset is the on-disk crop of exactly one DetectedRegion.
type CroppedAsset struct {
	Region    DetectedRegion
	Index     int
	LocalPath string
	Width     int
	Height    int
}

// HostedImage is a crop reachable through a public URL.
type HostedImage struct {
	Asset CroppedAsset
	URL   string
}

// VisualMatch is a candidate product page returned by visual search.
type VisualMatch struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Source    string `json:"source,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// SearchQuery is one visual search request.
type SearchQuery struct {
	ImageURL   string
	Country    string
	Credential string
}
