package report

import (
	"strings"
	"testing"

	"github.com/kailas-cloud/lensmatch/internal/domain"
	"github.com/kailas-cloud/lensmatch/internal/domain/scan"
)

func TestMarkdown_Matched(t *testing.T) {
	rep := &scan.Report{
		ID:    "2abc",
		State: scan.Done,
		Regions: []scan.RegionOutcome{{
			Index:     0,
			Region:    domain.DetectedRegion{Confidence: 0.92, Label: "chair"},
			Status:    scan.StatusMatched,
			HostedURL: "https://img.host/abc.png",
			Matches: []domain.VisualMatch{
				{Title: "Chair A", Link: "https://www.amazon.in/chair-a"},
				{Title: "", Link: ""},
			},
			TotalMatches: 2,
		}},
	}

	md := Markdown(rep)
	for _, want := range []string{
		"# Scan 2abc",
		"Detected 1 objects.",
		"## Object 1 (chair, 92%)",
		"Hosted link: https://img.host/abc.png",
		"Results for Object 1:",
		"- **Chair A**: [Link](https://www.amazon.in/chair-a)",
		"- **No title**: [Link](No link)",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("missing %q in:\n%s", want, md)
		}
	}
}

func TestMarkdown_NoObjects(t *testing.T) {
	md := Markdown(&scan.Report{ID: "x", State: scan.Done})
	if !strings.Contains(md, "No objects detected in the image.") {
		t.Errorf("unexpected output:\n%s", md)
	}
}

func TestMarkdown_Aborted(t *testing.T) {
	md := Markdown(&scan.Report{ID: "x", State: scan.Aborted, Error: "ingest image: invalid image"})
	if !strings.Contains(md, "Scan aborted: ingest image: invalid image") {
		t.Errorf("unexpected output:\n%s", md)
	}
}

func TestWriteRegion_Failures(t *testing.T) {
	tests := []struct {
		name    string
		outcome scan.RegionOutcome
		want    string
		notWant string
	}{
		{
			name:    "crop failed",
			outcome: scan.RegionOutcome{Index: 2, Status: scan.StatusCropFailed, Error: "degenerate region"},
			want:    "Crop failed: degenerate region",
			notWant: "Hosted link",
		},
		{
			name:    "upload failed",
			outcome: scan.RegionOutcome{Status: scan.StatusUploadFailed, Error: "rate limited"},
			want:    "Upload failed: rate limited",
			notWant: "Hosted link",
		},
		{
			name:    "search failed",
			outcome: scan.RegionOutcome{Status: scan.StatusSearchFailed, HostedURL: "u", Error: "Invalid API key."},
			want:    "Search failed: Invalid API key.",
		},
		{
			name:    "no matches",
			outcome: scan.RegionOutcome{Status: scan.StatusNoMatches, HostedURL: "u"},
			want:    "No matches found.",
		},
		{
			name:    "all filtered",
			outcome: scan.RegionOutcome{Status: scan.StatusNoMatches, HostedURL: "u", TotalMatches: 4},
			want:    "No retail matches among 4 results.",
		},
		{
			name:    "unlabelled region",
			outcome: scan.RegionOutcome{Region: domain.DetectedRegion{ClassID: 56, Confidence: 0.5}, Status: scan.StatusNoMatches},
			want:    "## Object 1 (class 56, 50%)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b strings.Builder
			WriteRegion(&b, tt.outcome)
			out := b.String()
			if !strings.Contains(out, tt.want) {
				t.Errorf("missing %q in:\n%s", tt.want, out)
			}
			if tt.notWant != "" && strings.Contains(out, tt.notWant) {
				t.Errorf("unexpected %q in:\n%s", tt.notWant, out)
			}
		})
	}
}

func TestWriteRegion_CaptionFlattened(t *testing.T) {
	var b strings.Builder
	WriteRegion(&b, scan.RegionOutcome{Caption: "wooden\n  chair", Status: scan.StatusNoMatches})
	if !strings.Contains(b.String(), "_wooden chair_") {
		t.Errorf("unexpected output:\n%s", b.String())
	}
}
