// Package scan holds the outcome of one detection-to-search pipeline run.
package scan

import (
	"time"

	"github.com/kailas-cloud/lensmatch/internal/domain"
)

// RegionOutcome records what happened to one detected region.
type RegionOutcome struct {
	Index        int                   `json:"index"`
	Region       domain.DetectedRegion `json:"region"`
	Caption      string                `json:"caption,omitempty"`
	Stage        Stage                 `json:"stage"`
	Status       Status                `json:"status"`
	CropPNG      []byte                `json:"crop_png,omitempty"`
	CropWidth    int                   `json:"crop_width,omitempty"`
	CropHeight   int                   `json:"crop_height,omitempty"`
	HostedURL    string                `json:"hosted_url,omitempty"`
	Matches      []domain.VisualMatch  `json:"matches"`
	TotalMatches int                   `json:"total_matches"`
	Error        string                `json:"error,omitempty"`
}

// Report is the full result of one run.
type Report struct {
	ID         string          `json:"id"`
	State      State           `json:"state"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Regions    []RegionOutcome `json:"regions"`
	Error      string          `json:"error,omitempty"`
}

// NoObjects reports a completed run with zero detections.
func (r *Report) NoObjects() bool {
	return r.State == Done && len(r.Regions) == 0
}

// Duration returns the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// CountByStatus tallies region outcomes.
func (r *Report) CountByStatus() map[Status]int {
	counts := make(map[Status]int, len(r.Regions))
	for _, o := range r.Regions {
		counts[o.Status]++
	}
	return counts
}

// WithoutCrops returns a shallow copy with crop images stripped, for persistence.
func (r *Report) WithoutCrops() *Report {
	cp := *r
	cp.Regions = make([]RegionOutcome, len(r.Regions))
	for i, o := range r.Regions {
		o.CropPNG = nil
		cp.Regions[i] = o
	}
	return &cp
}
