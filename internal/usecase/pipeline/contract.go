package pipeline

import (
	"context"
	"image"

	"github.com/kailas-cloud/lensmatch/internal/domain"
	"github.com/kailas-cloud/lensmatch/internal/domain/scan"
	"github.com/kailas-cloud/lensmatch/internal/ingest"
)

// Ingestor persists and decodes the raw upload inside the run workspace.
type Ingestor interface {
	Ingest(ctx context.Context, ws *ingest.Workspace, raw []byte) (ingest.Image, error)
}

// Cropper cuts one region out of the decoded image.
type Cropper interface {
	Crop(img image.Image, region domain.DetectedRegion, outputDir string, index int) (
		asset domain.CroppedAsset, png []byte, err error,
	)
}

// History stores finished reports.
type History interface {
	Save(ctx context.Context, rep *scan.Report) error
}

// Listener receives each region outcome as soon as the region is finished.
type Listener func(outcome scan.RegionOutcome)
