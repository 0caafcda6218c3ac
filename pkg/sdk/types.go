package lensmatch

import (
	"time"

	"github.com/kailas-cloud/lensmatch/internal/domain"
	"github.com/kailas-cloud/lensmatch/internal/domain/scan"
)

// Scan states.
const (
	StateDone    = string(scan.Done)
	StateAborted = string(scan.Aborted)
)

// Region statuses.
const (
	StatusMatched      = string(scan.StatusMatched)
	StatusNoMatches    = string(scan.StatusNoMatches)
	StatusCropFailed   = string(scan.StatusCropFailed)
	StatusUploadFailed = string(scan.StatusUploadFailed)
	StatusSearchFailed = string(scan.StatusSearchFailed)
	StatusMalformed    = string(scan.StatusMalformed)
)

// BoundingBox is a pixel rectangle in source image coordinates.
type BoundingBox struct {
	X1, Y1, X2, Y2 int
}

// Match is one candidate product page.
type Match struct {
	Title     string
	Link      string
	Source    string
	Thumbnail string
}

// Region is the outcome for one detected object.
type Region struct {
	Index      int
	Box        BoundingBox
	Confidence float64
	ClassID    int
	Label      string
	Caption    string
	Status     string
	Crop       []byte // PNG, empty for reports loaded from history
	HostedURL  string
	Matches    []Match
	// TotalMatches counts search results before the retail filter.
	TotalMatches int
	Error        string
}

// Failed reports whether the region stopped before a search answer was obtained.
func (r Region) Failed() bool {
	return scan.Status(r.Status).Failed()
}

// Report is the result of one scan.
type Report struct {
	ID         string
	State      string
	StartedAt  time.Time
	FinishedAt time.Time
	Regions    []Region
	Error      string
}

// Aborted reports whether the scan stopped before any region was processed.
func (r *Report) Aborted() bool { return r.State == StateAborted }

// --- converters ---

func reportFromDomain(rep *scan.Report) *Report {
	if rep == nil {
		return nil
	}
	out := &Report{
		ID:         rep.ID,
		State:      string(rep.State),
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
		Error:      rep.Error,
		Regions:    make([]Region, 0, len(rep.Regions)),
	}
	for _, o := range rep.Regions {
		out.Regions = append(out.Regions, regionFromDomain(o))
	}
	return out
}

func regionFromDomain(o scan.RegionOutcome) Region {
	return Region{
		Index:        o.Index,
		Box:          boxFromDomain(o.Region.Box),
		Confidence:   o.Region.Confidence,
		ClassID:      o.Region.ClassID,
		Label:        o.Region.Label,
		Caption:      o.Caption,
		Status:       string(o.Status),
		Crop:         o.CropPNG,
		HostedURL:    o.HostedURL,
		Matches:      matchesFromDomain(o.Matches),
		TotalMatches: o.TotalMatches,
		Error:        o.Error,
	}
}

func boxFromDomain(b domain.BoundingBox) BoundingBox {
	return BoundingBox{X1: b.X1, Y1: b.Y1, X2: b.X2, Y2: b.Y2}
}

func matchesFromDomain(ms []domain.VisualMatch) []Match {
	out := make([]Match, len(ms))
	for i, m := range ms {
		out[i] = Match{
			Title:     m.Title,
			Link:      m.Link,
			Source:    m.Source,
			Thumbnail: m.Thumbnail,
		}
	}
	return out
}
