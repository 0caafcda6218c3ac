package ingest

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lensmatch/internal/domain"
	"github.com/kailas-cloud/lensmatch/internal/logger"
)

// uploadExt is the fixed extension of persisted uploads; decoding sniffs the real format.
const uploadExt = ".jpg"

// Image is a persisted and decoded upload.
type Image struct {
	Path   string
	Pixels image.Image
	Format string
}

// Ingestor writes raw uploads into a workspace and decodes them.
type Ingestor struct {
	maxPixels int
}

// New creates an Ingestor that rejects images whose width*height exceeds maxPixels.
// maxPixels <= 0 selects domain.DefaultMaxImagePixels.
func New(maxPixels int) *Ingestor {
	if maxPixels <= 0 {
		maxPixels = domain.DefaultMaxImagePixels
	}
	return &Ingestor{maxPixels: maxPixels}
}

// Ingest persists raw unchanged and decodes the written file.
// Any decode failure is reported as domain.ErrInvalidImage.
func (i *Ingestor) Ingest(ctx context.Context, ws *Workspace, raw []byte) (Image, error) {
	if len(raw) == 0 {
		return Image{}, fmt.Errorf("%w: empty upload", domain.ErrInvalidImage)
	}

	path, err := ws.Path("upload-" + uuid.New().String() + uploadExt)
	if err != nil {
		return Image{}, err
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return Image{}, fmt.Errorf("write upload: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return Image{}, fmt.Errorf("open upload: %w", err)
	}
	defer func() { _ = f.Close() }()

	// Check the declared canvas before allocating it.
	hdr, _, err := image.DecodeConfig(f)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %w", domain.ErrInvalidImage, err)
	}
	if hdr.Width <= 0 || hdr.Height <= 0 {
		return Image{}, fmt.Errorf("%w: empty canvas %dx%d", domain.ErrInvalidImage, hdr.Width, hdr.Height)
	}
	if int64(hdr.Width)*int64(hdr.Height) > int64(i.maxPixels) {
		return Image{}, fmt.Errorf("%w: %dx%d exceeds %d pixels",
			domain.ErrInvalidImage, hdr.Width, hdr.Height, i.maxPixels)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Image{}, fmt.Errorf("rewind upload: %w", err)
	}

	pixels, format, err := image.Decode(f)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %w", domain.ErrInvalidImage, err)
	}
	if format != "jpeg" && format != "png" {
		return Image{}, fmt.Errorf("%w: unsupported format %q", domain.ErrInvalidImage, format)
	}

	b := pixels.Bounds()
	logger.FromContext(ctx).Debug("Image ingested",
		zap.String("path", path),
		zap.String("format", format),
		zap.Int("width", b.Dx()),
		zap.Int("height", b.Dy()),
		zap.Int("bytes", len(raw)),
	)

	return Image{Path: path, Pixels: pixels, Format: format}, nil
}
