// Package crop cuts detected regions out of a decoded image and persists them as PNG.
package crop

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"github.com/kailas-cloud/lensmatch/internal/domain"
)

// Cropper extracts bounding boxes from a pixel buffer.
//
// Boxes are clamped to the image bounds; a box that is empty after clamping
// (inverted, zero-area, or fully outside the image) fails with domain.ErrDegenerateRegion.
type Cropper struct {
	maxSide int
}

// New creates a Cropper. maxSide > 0 downscales crops whose longest side exceeds it.
func New(maxSide int) *Cropper {
	return &Cropper{maxSide: maxSide}
}

// Crop writes cropped_object_<index>.png into outputDir.
func (c *Cropper) Crop(
	img image.Image, region domain.DetectedRegion, outputDir string, index int,
) (domain.CroppedAsset, []byte, error) {
	rect, err := clampedRect(img.Bounds(), region.Box)
	if err != nil {
		return domain.CroppedAsset{}, nil, err
	}

	// Copy into a fresh buffer with origin (0,0); SubImage would share the source pixels.
	var out image.Image = copyRect(img, rect)
	out = c.downscale(out)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return domain.CroppedAsset{}, nil, fmt.Errorf("encode crop: %w", err)
	}

	path := filepath.Join(outputDir, fmt.Sprintf("cropped_object_%d.png", index))
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return domain.CroppedAsset{}, nil, fmt.Errorf("write crop: %w", err)
	}

	b := out.Bounds()
	return domain.CroppedAsset{
		Region:    region,
		Index:     index,
		LocalPath: path,
		Width:     b.Dx(),
		Height:    b.Dy(),
	}, buf.Bytes(), nil
}

// clampedRect intersects the box with the image bounds without canonicalizing
// inverted boxes (image.Rect would silently swap the corners).
func clampedRect(bounds image.Rectangle, box domain.BoundingBox) (image.Rectangle, error) {
	if !box.Valid() {
		return image.Rectangle{}, fmt.Errorf("%w: box %s is inverted or empty", domain.ErrDegenerateRegion, box)
	}
	r := image.Rectangle{
		Min: image.Point{X: box.X1, Y: box.Y1},
		Max: image.Point{X: box.X2, Y: box.Y2},
	}.Intersect(bounds)
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: box %s outside image %v", domain.ErrDegenerateRegion, box, bounds)
	}
	return r, nil
}

func copyRect(src image.Image, r image.Rectangle) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)
	return dst
}

func (c *Cropper) downscale(img image.Image) image.Image {
	if c.maxSide <= 0 {
		return img
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if max(w, h) <= c.maxSide {
		return img
	}
	if w >= h {
		return resize.Resize(uint(c.maxSide), 0, img, resize.Lanczos3)
	}
	return resize.Resize(0, uint(c.maxSide), img, resize.Lanczos3)
}
